package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/geocoder89/accounthub/internal/jobs"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const accountColumns = `id, username, email, full_name, password_hash, created_at, updated_at`

type AccountsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
	jobs *JobsRepo
}

// NewAccountsRepo wires the accounts table. When jobsRepo is non-nil every
// new account also gets a welcome job in the same transaction.
func NewAccountsRepo(pool *pgxpool.Pool, prom *observability.Prom, jobsRepo *JobsRepo) *AccountsRepo {
	return &AccountsRepo{
		pool: pool,
		prom: prom,
		jobs: jobsRepo,
	}
}

func (r *AccountsRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (account.Account, error) {
	var a account.Account

	err := row.Scan(
		&a.ID,
		&a.Username,
		&a.Email,
		&a.FullName,
		&a.PasswordHash,
		&a.CreatedAt,
		&a.UpdatedAt,
	)

	return a, err
}

// implementation of the create method using the named return and defer approach
func (r *AccountsRepo) Create(ctx context.Context, a account.Account) (created account.Account, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	err = r.observe("accounts.create", func() error {
		_, e := tx.Exec(ctx, `
		INSERT INTO accounts (id, username, email, full_name, password_hash, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, a.ID, a.Username, a.Email, a.FullName, a.PasswordHash, a.CreatedAt, a.UpdatedAt)
		return e
	})

	if err != nil {
		if isUsernameViolation(err) {
			err = account.ErrUsernameTaken
		}
		return
	}

	if r.jobs != nil {
		req, jerr := jobs.NewWelcomeJob(a)
		if jerr != nil {
			err = fmt.Errorf("build welcome job: %w", jerr)
			return
		}

		if _, err = r.jobs.CreateTx(ctx, tx, req); err != nil {
			err = fmt.Errorf("enqueue welcome job: %w", err)
			return
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return
	}

	created = a
	return
}

func (r *AccountsRepo) GetByID(ctx context.Context, id string) (account.Account, error) {
	var a account.Account

	err := r.observe("accounts.get_by_id", func() error {
		var e error
		a, e = scanAccount(r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, err
	}

	return a, nil
}

func (r *AccountsRepo) GetByUsername(ctx context.Context, username string) (account.Account, error) {
	var a account.Account

	err := r.observe("accounts.get_by_username", func() error {
		var e error
		a, e = scanAccount(r.pool.QueryRow(ctx,
			`SELECT `+accountColumns+` FROM accounts WHERE username = $1`, username))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, err
	}

	return a, nil
}

func (r *AccountsRepo) List(ctx context.Context, filter account.ListFilter) ([]account.Account, error) {
	var rows pgx.Rows

	err := r.observe("accounts.list", func() error {
		var qerr error
		// stable ordering for pagination
		rows, qerr = r.pool.Query(ctx, `
		SELECT `+accountColumns+`
		FROM accounts
		ORDER BY created_at ASC, id ASC
		LIMIT $1 OFFSET $2
	`, filter.Limit, filter.Offset)
		return qerr
	})
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]account.Account, 0, filter.Limit)

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func (r *AccountsRepo) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	var a account.Account

	err := r.observe("accounts.update", func() error {
		var e error
		a, e = scanAccount(r.pool.QueryRow(ctx, `
		UPDATE accounts
		SET username = COALESCE($2, username),
		    email = COALESCE($3, email),
		    full_name = COALESCE($4, full_name),
		    password_hash = COALESCE($5, password_hash),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING `+accountColumns,
			id, patch.Username, patch.Email, patch.FullName, patch.PasswordHash,
		))
		return e
	})

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		if isUsernameViolation(err) {
			return account.Account{}, account.ErrUsernameTaken
		}
		return account.Account{}, err
	}

	return a, nil
}

func (r *AccountsRepo) Delete(ctx context.Context, id string) error {
	var tag pgconn.CommandTag

	err := r.observe("accounts.delete", func() error {
		var e error
		tag, e = r.pool.Exec(ctx, `DELETE FROM accounts WHERE id = $1`, id)
		return e
	})

	if err != nil {
		return err
	}

	// if no rows were deleted as a result return a not found error
	if tag.RowsAffected() == 0 {
		return account.ErrNotFound
	}

	return nil
}

func (r *AccountsRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}
