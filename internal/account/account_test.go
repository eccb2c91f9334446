package account

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	byLogin map[string]*Account
	nextID  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byLogin: make(map[string]*Account)}
}

func (f *fakeStore) GetAccount(ctx context.Context, login string) (*Account, error) {
	return f.byLogin[login], nil
}

func (f *fakeStore) CreateAccount(ctx context.Context, login, passwordHash string) (*Account, error) {
	f.nextID++
	acc := &Account{AccountID: "acct-" + string(rune('0'+f.nextID)), Login: login, PasswordHash: passwordHash}
	f.byLogin[login] = acc
	return acc, nil
}

func TestAuthenticateSucceedsWithMatchingPassword(t *testing.T) {
	store := newFakeStore()
	store.byLogin["rowan"] = &Account{AccountID: "acct-1", Login: "rowan", PasswordHash: HashPassword("hunter2")}

	svc := New(store, false)
	id, err := svc.Authenticate(context.Background(), "rowan", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", id)
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	store := newFakeStore()
	store.byLogin["rowan"] = &Account{AccountID: "acct-1", Login: "rowan", PasswordHash: HashPassword("hunter2")}

	svc := New(store, false)
	_, err := svc.Authenticate(context.Background(), "rowan", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateRejectsUnknownLoginWithoutAutoCreate(t *testing.T) {
	store := newFakeStore()
	svc := New(store, false)

	_, err := svc.Authenticate(context.Background(), "nobody", "whatever")
	assert.ErrorIs(t, err, ErrCreationDisabled)
}

func TestAuthenticateAutoCreatesUnknownLogin(t *testing.T) {
	store := newFakeStore()
	svc := New(store, true)

	id, err := svc.Authenticate(context.Background(), "newplayer", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	acc, err := store.GetAccount(context.Background(), "newplayer")
	require.NoError(t, err)
	require.NotNil(t, acc)
	assert.Equal(t, HashPassword("secret"), acc.PasswordHash)
}

func TestAuthenticateRejectsLockedAccount(t *testing.T) {
	store := newFakeStore()
	store.byLogin["rowan"] = &Account{AccountID: "acct-1", Login: "rowan", PasswordHash: HashPassword("hunter2"), Locked: true}

	svc := New(store, false)
	_, err := svc.Authenticate(context.Background(), "rowan", "hunter2")
	assert.ErrorIs(t, err, ErrLocked)
}

func TestAuthenticateLowercasesAndTrimsLogin(t *testing.T) {
	store := newFakeStore()
	store.byLogin["rowan"] = &Account{AccountID: "acct-1", Login: "rowan", PasswordHash: HashPassword("hunter2")}

	svc := New(store, false)
	id, err := svc.Authenticate(context.Background(), "  Rowan  ", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "acct-1", id)
}
