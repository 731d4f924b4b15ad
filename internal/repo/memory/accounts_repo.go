package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/account"
)

// AccountsRepo keeps accounts in process. One mutex guards both the id map
// and the username index so uniqueness checks and inserts are atomic.
type AccountsRepo struct {
	mu         sync.RWMutex
	items      map[string]account.Account // {"id": account}
	byUsername map[string]string          // {"username": "id"}
}

func NewAccountsRepo() *AccountsRepo {
	return &AccountsRepo{
		items:      make(map[string]account.Account),
		byUsername: make(map[string]string),
	}
}

func (r *AccountsRepo) Create(ctx context.Context, a account.Account) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byUsername[a.Username]; taken {
		return account.Account{}, account.ErrUsernameTaken
	}

	r.items[a.ID] = a
	r.byUsername[a.Username] = a.ID

	return a, nil
}

func (r *AccountsRepo) GetByID(ctx context.Context, id string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.RLock()
	a, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	return a, nil
}

func (r *AccountsRepo) GetByUsername(ctx context.Context, username string) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byUsername[username]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	return r.items[id], nil
}

// List returns accounts ordered by creation time, then id.
func (r *AccountsRepo) List(ctx context.Context, filter account.ListFilter) ([]account.Account, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	all := make([]account.Account, 0, len(r.items))
	for _, a := range r.items {
		all = append(all, a)
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool {
		if all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].ID < all[j].ID
		}
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	if filter.Offset >= len(all) {
		return []account.Account{}, nil
	}

	all = all[filter.Offset:]

	if filter.Limit > 0 && filter.Limit < len(all) {
		all = all[:filter.Limit]
	}

	return all, nil
}

func (r *AccountsRepo) Update(ctx context.Context, id string, patch account.Patch) (account.Account, error) {
	if err := ctx.Err(); err != nil {
		return account.Account{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.items[id]
	if !ok {
		return account.Account{}, account.ErrNotFound
	}

	if patch.Username != nil && *patch.Username != current.Username {
		if _, taken := r.byUsername[*patch.Username]; taken {
			return account.Account{}, account.ErrUsernameTaken
		}
	}

	updated := patch.Apply(current, time.Now().UTC())

	if updated.Username != current.Username {
		delete(r.byUsername, current.Username)
		r.byUsername[updated.Username] = id
	}
	r.items[id] = updated

	return updated, nil
}

func (r *AccountsRepo) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.items[id]
	if !ok {
		return account.ErrNotFound
	}

	delete(r.items, id)
	delete(r.byUsername, a.Username)

	return nil
}

func (r *AccountsRepo) Ping(ctx context.Context) error {
	return ctx.Err()
}
