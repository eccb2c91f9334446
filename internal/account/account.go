// Package account is the AccountService the World Router's Authentication
// handler depends on: login verification and, when enabled, auto-creation
// of new accounts on first login.
package account

import (
	"context"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"strings"
)

// ErrInvalidCredentials means the password does not match an existing
// login's hash. An unknown login is auto-created or reported as
// ErrCreationDisabled instead.
var ErrInvalidCredentials = errors.New("invalid credentials")

// ErrLocked means the account exists and the password matched, but the
// account is administratively barred from logging in.
var ErrLocked = errors.New("account locked")

// ErrCreationDisabled means the login does not exist and auto-creation is
// turned off, distinct from ErrInvalidCredentials so a client can tell
// "wrong password" from "registration is closed".
var ErrCreationDisabled = errors.New("account creation disabled")

// Account is the durable record backing a login.
type Account struct {
	AccountID    string
	Login        string
	PasswordHash string
	Locked       bool
}

// HashPassword hashes a password with SHA-1 and returns it base64-encoded,
// matching the teacher's stated L2J-compatible scheme. spec.md treats
// authentication as an external collaborator and specifies no hash of its
// own, so the teacher's is kept rather than invented.
func HashPassword(password string) string {
	h := sha1.New()
	h.Write([]byte(password))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// Store is the persistence collaborator Service needs: look up an account
// by login, and optionally create one.
type Store interface {
	GetAccount(ctx context.Context, login string) (*Account, error)
	CreateAccount(ctx context.Context, login, passwordHash string) (*Account, error)
}

// Service authenticates logins against Store, auto-creating unknown logins
// when AutoCreate is enabled (spec.md supplement: "Account auto-creation
// toggle").
type Service struct {
	store      Store
	autoCreate bool
}

// New builds a Service. autoCreate mirrors the teacher's
// AutoCreateAccounts config flag.
func New(store Store, autoCreate bool) *Service {
	return &Service{store: store, autoCreate: autoCreate}
}

// Authenticate verifies login/password, creating the account first if it
// does not exist and auto-creation is enabled. Returns the account id on
// success.
func (s *Service) Authenticate(ctx context.Context, login, password string) (string, error) {
	login = strings.ToLower(strings.TrimSpace(login))
	acc, err := s.store.GetAccount(ctx, login)
	if err != nil {
		return "", err
	}
	hash := HashPassword(password)

	if acc == nil {
		if !s.autoCreate {
			return "", ErrCreationDisabled
		}
		created, err := s.store.CreateAccount(ctx, login, hash)
		if err != nil {
			return "", err
		}
		return created.AccountID, nil
	}

	if acc.PasswordHash != hash {
		return "", ErrInvalidCredentials
	}
	if acc.Locked {
		return "", ErrLocked
	}
	return acc.AccountID, nil
}
