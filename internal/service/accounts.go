package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/geocoder89/accounthub/internal/observability"
	"github.com/geocoder89/accounthub/internal/security"
	"golang.org/x/sync/singleflight"
)

const (
	// loadTimeout bounds a shared cache-miss load; see Get.
	loadTimeout = 3 * time.Second
	// generation stripes; ids hash onto them, collisions only cost a skipped Set
	genStripes = 256
)

const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
	TokenTypeBearer  = "bearer"
)

type AccountStore interface {
	Create(ctx context.Context, a account.Account) (account.Account, error)
	GetByID(ctx context.Context, id string) (account.Account, error)
	GetByUsername(ctx context.Context, username string) (account.Account, error)
	List(ctx context.Context, filter account.ListFilter) ([]account.Account, error)
	Update(ctx context.Context, id string, patch account.Patch) (account.Account, error)
	Delete(ctx context.Context, id string) error
}

// AccountCache fronts GetByID. A miss is (zero, false, nil).
type AccountCache interface {
	Get(ctx context.Context, id string) (account.Account, bool, error)
	Set(ctx context.Context, a account.Account) error
	Delete(ctx context.Context, id string) error
}

type TokenIssuer interface {
	GenerateAccessToken(accountID, username string) (string, time.Time, error)
	AccessTTL() time.Duration
}

type Token struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresIn   int64     `json:"expires_in"`
	ExpiresAt   time.Time `json:"-"`
}

type Deps struct {
	Store  AccountStore
	Tokens TokenIssuer
	// optional
	Cache      AccountCache
	CacheLayer string // metrics label, "memory" or "redis"
	// SharedCache marks a cache other processes write too (redis). Writes
	// then delete the entry a second time once any concurrent load has
	// timed out.
	SharedCache bool
	Logger     *slog.Logger
	Prom       *observability.Prom
	// nil means bcrypt.DefaultCost
	Hasher *security.Hasher
}

type Accounts struct {
	store      AccountStore
	tokens     TokenIssuer
	cache      AccountCache
	cacheLayer string
	log        *slog.Logger
	prom       *observability.Prom
	hasher     *security.Hasher
	sf         singleflight.Group

	// gens[stripe(id)] moves on every invalidate; a load that saw it move
	// must not leave its result in the cache
	gens     [genStripes]atomic.Uint64
	redelete time.Duration
}

func NewAccounts(d Deps) *Accounts {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	layer := d.CacheLayer
	if layer == "" {
		layer = "memory"
	}
	hasher := d.Hasher
	if hasher == nil {
		hasher = security.NewHasher(0)
	}
	return &Accounts{
		store:      d.Store,
		tokens:     d.Tokens,
		cache:      d.Cache,
		cacheLayer: layer,
		log:        log,
		prom:       d.Prom,
		hasher:     hasher,
		redelete:   redeleteDelay(d.SharedCache),
	}
}

func redeleteDelay(shared bool) time.Duration {
	if !shared {
		return 0
	}
	return loadTimeout + 500*time.Millisecond
}

func (s *Accounts) Register(ctx context.Context, req account.RegisterRequest) (account.Account, error) {
	if err := account.ValidateUsername(account.NormalizeUsername(req.Username)); err != nil {
		return account.Account{}, err
	}

	hash, err := s.hashPassword(req.Password)
	if err != nil {
		return account.Account{}, err
	}

	a := account.NewFromRegisterRequest(req, hash)

	created, err := s.store.Create(ctx, a)
	if err != nil {
		if errors.Is(err, account.ErrUsernameTaken) {
			return account.Account{}, err
		}
		return account.Account{}, fmt.Errorf("create account: %w", err)
	}

	return created, nil
}

// Authenticate returns ErrInvalidCredentials for both an unknown username
// and a wrong password, after the same amount of bcrypt work.
func (s *Accounts) Authenticate(ctx context.Context, username, password string) (Token, error) {
	a, err := s.store.GetByUsername(ctx, account.NormalizeUsername(username))
	if err != nil {
		if errors.Is(err, account.ErrNotFound) {
			s.hasher.VerifyDummy(password)
			s.prom.ObserveAuth("invalid_credentials")
			return Token{}, account.ErrInvalidCredentials
		}
		return Token{}, fmt.Errorf("load account: %w", err)
	}

	if err := s.hasher.Verify(a.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrMismatch) {
			s.log.ErrorContext(ctx, "stored password hash unreadable", "account_id", a.ID, "err", err)
		}
		s.prom.ObserveAuth("invalid_credentials")
		return Token{}, account.ErrInvalidCredentials
	}

	if s.hasher.NeedsRehash(a.PasswordHash) {
		s.rehash(ctx, a.ID, password)
	}

	raw, exp, err := s.tokens.GenerateAccessToken(a.ID, a.Username)
	if err != nil {
		return Token{}, fmt.Errorf("issue token: %w", err)
	}
	s.prom.ObserveAuth("ok")

	return Token{
		AccessToken: raw,
		TokenType:   TokenTypeBearer,
		ExpiresIn:   int64(s.tokens.AccessTTL().Seconds()),
		ExpiresAt:   exp,
	}, nil
}

// List clamps the page: a zero limit means DefaultListLimit.
func (s *Accounts) List(ctx context.Context, skip, limit int) ([]account.Account, error) {
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	items, err := s.store.List(ctx, account.ListFilter{Offset: skip, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	if items == nil {
		items = []account.Account{}
	}
	return items, nil
}

// Get loads an account through the cache. Concurrent misses for the same id
// share one store read.
func (s *Accounts) Get(ctx context.Context, id string) (account.Account, error) {
	if !account.ValidID(id) {
		return account.Account{}, account.ErrNotFound
	}

	if s.cache != nil {
		a, ok, err := s.cache.Get(ctx, id)
		switch {
		case err != nil:
			s.prom.ObserveCache(s.cacheLayer, "error")
			s.log.WarnContext(ctx, "account cache get failed", "account_id", id, "err", err)
		case ok:
			s.prom.ObserveCache(s.cacheLayer, "hit")
			return a, nil
		default:
			s.prom.ObserveCache(s.cacheLayer, "miss")
		}
	}

	ch := s.sf.DoChan(id, func() (any, error) {
		// shared by every waiter, so it must outlive any single caller
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()

		gen := s.generation(id)

		a, err := s.store.GetByID(loadCtx, id)
		if err != nil {
			return account.Account{}, err
		}
		s.fill(loadCtx, a, gen)
		return a, nil
	})

	select {
	case <-ctx.Done():
		return account.Account{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			if errors.Is(res.Err, account.ErrNotFound) {
				return account.Account{}, account.ErrNotFound
			}
			return account.Account{}, fmt.Errorf("get account: %w", res.Err)
		}
		a := res.Val.(account.Account)
		a.PasswordHash = ""
		return a, nil
	}
}

// Update merges the non-nil fields of req into the account named by id.
func (s *Accounts) Update(ctx context.Context, id string, req account.UpdateRequest) (account.Account, error) {
	if !account.ValidID(id) {
		return account.Account{}, account.ErrNotFound
	}

	patch, err := s.buildPatch(req)
	if err != nil {
		return account.Account{}, err
	}

	updated, err := s.store.Update(ctx, id, patch)
	if err != nil {
		if errors.Is(err, account.ErrNotFound) || errors.Is(err, account.ErrUsernameTaken) {
			return account.Account{}, err
		}
		return account.Account{}, fmt.Errorf("update account: %w", err)
	}

	s.invalidate(ctx, id)
	return updated, nil
}

func (s *Accounts) Delete(ctx context.Context, id string) error {
	if !account.ValidID(id) {
		return account.ErrNotFound
	}

	if err := s.store.Delete(ctx, id); err != nil {
		if errors.Is(err, account.ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete account: %w", err)
	}

	s.invalidate(ctx, id)
	return nil
}

// EnsureBootstrapAccount creates the configured account if its username is
// free. Empty username or password is a no-op.
func (s *Accounts) EnsureBootstrapAccount(ctx context.Context, username, email, password string) error {
	username = account.NormalizeUsername(username)
	if username == "" || password == "" {
		return nil
	}

	_, err := s.store.GetByUsername(ctx, username)
	if err == nil {
		return nil
	}
	if !errors.Is(err, account.ErrNotFound) {
		return fmt.Errorf("lookup bootstrap account: %w", err)
	}

	if email == "" {
		email = username + "@accounthub.local"
	}

	_, err = s.Register(ctx, account.RegisterRequest{
		Username: username,
		Email:    email,
		Password: password,
	})
	if errors.Is(err, account.ErrUsernameTaken) {
		return nil
	}
	if err != nil {
		return err
	}

	s.log.InfoContext(ctx, "bootstrap account created", "username", username)
	return nil
}

// invalidate runs after a store write. The generation bump must precede
// the cache delete: a load that filled the cache before the bump is
// removed by the delete, one that fills after it sees the bump in fill.
func (s *Accounts) invalidate(ctx context.Context, id string) {
	s.gens[stripe(id)].Add(1)
	s.sf.Forget(id)
	if s.cache == nil {
		return
	}
	s.evict(ctx, id)

	if s.redelete > 0 {
		// another process may still be filling the shared cache from a read
		// that predates this write
		time.AfterFunc(s.redelete, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			s.evict(ctx, id)
		})
	}
}

func (s *Accounts) evict(ctx context.Context, id string) {
	if err := s.cache.Delete(ctx, id); err != nil {
		s.log.WarnContext(ctx, "account cache delete failed", "account_id", id, "err", err)
	}
}

// fill caches a, read while the id's generation was gen, unless a write
// has been invalidated since.
func (s *Accounts) fill(ctx context.Context, a account.Account, gen uint64) {
	if s.cache == nil || s.generation(a.ID) != gen {
		return
	}
	if err := s.cache.Set(ctx, a); err != nil {
		s.log.WarnContext(ctx, "account cache set failed", "account_id", a.ID, "err", err)
		return
	}
	// lost the race with an invalidate between the check and the Set
	if s.generation(a.ID) != gen {
		s.evict(ctx, a.ID)
	}
}

func (s *Accounts) generation(id string) uint64 {
	return s.gens[stripe(id)].Load()
}

func stripe(id string) uint64 {
	return xxhash.Sum64String(id) % genStripes
}

func (s *Accounts) buildPatch(req account.UpdateRequest) (account.Patch, error) {
	var p account.Patch

	if req.Username != nil {
		u := account.NormalizeUsername(*req.Username)
		if err := account.ValidateUsername(u); err != nil {
			return account.Patch{}, err
		}
		p.Username = &u
	}
	if req.Email != nil {
		e := account.NormalizeEmail(*req.Email)
		p.Email = &e
	}
	if req.FullName != nil {
		fn := strings.TrimSpace(*req.FullName)
		p.FullName = &fn
	}
	if req.Password != nil {
		hash, err := s.hashPassword(*req.Password)
		if err != nil {
			return account.Patch{}, err
		}
		p.PasswordHash = &hash
	}

	return p, nil
}

func (s *Accounts) hashPassword(plain string) (string, error) {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		if security.IsPasswordTooLong(err) {
			return "", account.ErrPasswordTooLong
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// rehash upgrades a hash made at an old BCRYPT_COST after a successful
// login. Failures only cost another attempt on the next login.
func (s *Accounts) rehash(ctx context.Context, id, plain string) {
	hash, err := s.hasher.Hash(plain)
	if err != nil {
		s.log.WarnContext(ctx, "password rehash failed", "account_id", id, "err", err)
		return
	}

	if _, err := s.store.Update(ctx, id, account.Patch{PasswordHash: &hash}); err != nil {
		s.log.WarnContext(ctx, "password rehash not stored", "account_id", id, "err", err)
		return
	}
	s.invalidate(ctx, id)
	s.log.InfoContext(ctx, "password hash upgraded", "account_id", id, "cost", s.hasher.Cost())
}
