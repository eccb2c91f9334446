package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wyldlands/wyldlands/internal/account"
)

// AccountStore implements account.Store over the accounts table.
type AccountStore struct {
	pool *pgxpool.Pool
}

// NewAccountStore builds an AccountStore over an already-migrated pool.
func NewAccountStore(pool *pgxpool.Pool) *AccountStore {
	return &AccountStore{pool: pool}
}

func (s *AccountStore) GetAccount(ctx context.Context, login string) (*account.Account, error) {
	var acc account.Account
	err := s.pool.QueryRow(ctx,
		`SELECT account_id, login, password_hash, locked
		 FROM accounts WHERE login = $1`, login,
	).Scan(&acc.AccountID, &acc.Login, &acc.PasswordHash, &acc.Locked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("looking up account %q: %w", login, err)
	}
	return &acc, nil
}

func (s *AccountStore) CreateAccount(ctx context.Context, login, passwordHash string) (*account.Account, error) {
	acc := account.Account{
		AccountID:    uuid.NewString(),
		Login:        login,
		PasswordHash: passwordHash,
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO accounts (account_id, login, password_hash, locked)
		 VALUES ($1, $2, $3, false)`,
		acc.AccountID, acc.Login, acc.PasswordHash,
	)
	if err != nil {
		return nil, fmt.Errorf("creating account %q: %w", login, err)
	}
	return &acc, nil
}
