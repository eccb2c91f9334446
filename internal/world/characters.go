package world

import (
	"context"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
)

// CharacterStore is the persistence collaborator the router needs for
// CharacterSelection/CharacterCreation, grounded on the teacher's
// CharacterRepository (internal/db/character_repository.go) but trimmed
// to the bookkeeping this core cares about — combat/position/stats are
// the external command system's concern (spec.md Non-goals), not the
// router's.
type CharacterStore interface {
	ListCharacters(ctx context.Context, accountID string) ([]gatewayrpc.CharacterSummary, error)
	CreateCharacter(ctx context.Context, accountID string, builder CharacterBuilder) (characterID string, err error)
	DeleteCharacter(ctx context.Context, accountID, characterID string) error
	// Owns reports whether characterID belongs to accountID, so
	// select/delete can reject another account's character without
	// leaking whether the id exists at all.
	Owns(ctx context.Context, accountID, characterID string) (bool, error)
}

// Authenticator is the narrow surface Router needs from account.Service.
type Authenticator interface {
	Authenticate(ctx context.Context, login, password string) (accountID string, err error)
}
