package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/accounthub/internal/domain/account"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccount(username string) account.Account {
	return account.NewFromRegisterRequest(account.RegisterRequest{
		Username: username,
		Email:    username + "@example.com",
		Password: "password123",
	}, "hash")
}

func TestAccountsRepo_CreateAndGet(t *testing.T) {
	repo := NewAccountsRepo()
	ctx := context.Background()

	created, err := repo.Create(ctx, newAccount("alice"))
	require.NoError(t, err)

	byID, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", byID.Username)

	byName, err := repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_DuplicateUsername(t *testing.T) {
	repo := NewAccountsRepo()
	ctx := context.Background()

	_, err := repo.Create(ctx, newAccount("bob"))
	require.NoError(t, err)

	_, err = repo.Create(ctx, newAccount("bob"))
	assert.ErrorIs(t, err, account.ErrUsernameTaken)
}

func TestAccountsRepo_ConcurrentRegistrationOnlyOneWins(t *testing.T) {
	repo := NewAccountsRepo()
	ctx := context.Background()

	const attempts = 32

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		wins    int
		clashes int
	)

	start := make(chan struct{})

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := repo.Create(ctx, newAccount("racer"))

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				wins++
			case err == account.ErrUsernameTaken:
				clashes++
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, attempts-1, clashes)
}

func TestAccountsRepo_ListOrderedAndPaged(t *testing.T) {
	repo := NewAccountsRepo()
	ctx := context.Background()

	base := time.Now().UTC()
	for i, name := range []string{"carol", "alice", "bob"} {
		a := newAccount(name)
		a.CreatedAt = base.Add(time.Duration(i) * time.Second)
		_, err := repo.Create(ctx, a)
		require.NoError(t, err)
	}

	all, err := repo.List(ctx, account.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"carol", "alice", "bob"}, usernames(all))

	page, err := repo.List(ctx, account.ListFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, usernames(page))

	empty, err := repo.List(ctx, account.ListFilter{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestAccountsRepo_UpdateMergesAndReindexes(t *testing.T) {
	repo := NewAccountsRepo()
	ctx := context.Background()

	a, err := repo.Create(ctx, newAccount("dave"))
	require.NoError(t, err)
	_, err = repo.Create(ctx, newAccount("erin"))
	require.NoError(t, err)

	fullName := "Dave D"
	updated, err := repo.Update(ctx, a.ID, account.Patch{FullName: &fullName})
	require.NoError(t, err)
	require.NotNil(t, updated.FullName)
	assert.Equal(t, "Dave D", *updated.FullName)
	assert.Equal(t, "dave", updated.Username)
	assert.Equal(t, a.Email, updated.Email)

	taken := "erin"
	_, err = repo.Update(ctx, a.ID, account.Patch{Username: &taken})
	assert.ErrorIs(t, err, account.ErrUsernameTaken)

	renamed := "david"
	_, err = repo.Update(ctx, a.ID, account.Patch{Username: &renamed})
	require.NoError(t, err)

	_, err = repo.GetByUsername(ctx, "dave")
	assert.ErrorIs(t, err, account.ErrNotFound)

	got, err := repo.GetByUsername(ctx, "david")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = repo.Update(ctx, "missing", account.Patch{FullName: &fullName})
	assert.ErrorIs(t, err, account.ErrNotFound)
}

func TestAccountsRepo_Delete(t *testing.T) {
	repo := NewAccountsRepo()
	ctx := context.Background()

	a, err := repo.Create(ctx, newAccount("frank"))
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, a.ID))

	_, err = repo.GetByID(ctx, a.ID)
	assert.ErrorIs(t, err, account.ErrNotFound)

	assert.ErrorIs(t, repo.Delete(ctx, a.ID), account.ErrNotFound)

	// the username is free again
	_, err = repo.Create(ctx, newAccount("frank"))
	assert.NoError(t, err)
}

func usernames(list []account.Account) []string {
	out := make([]string, 0, len(list))
	for _, a := range list {
		out = append(out, a.Username)
	}
	return out
}
