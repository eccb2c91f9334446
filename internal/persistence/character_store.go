package persistence

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wyldlands/wyldlands/internal/gatewayrpc"
	"github.com/wyldlands/wyldlands/internal/world"
)

// CharacterStore implements world.CharacterStore over the characters
// table, grounded on the teacher's CharacterRepository
// (internal/db/character_repository.go).
type CharacterStore struct {
	pool *pgxpool.Pool
}

// NewCharacterStore builds a CharacterStore over an already-migrated pool.
func NewCharacterStore(pool *pgxpool.Pool) *CharacterStore {
	return &CharacterStore{pool: pool}
}

func (s *CharacterStore) ListCharacters(ctx context.Context, accountID string) ([]gatewayrpc.CharacterSummary, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT character_id, name, level FROM characters
		 WHERE account_id = $1 ORDER BY created_at ASC`, accountID)
	if err != nil {
		return nil, fmt.Errorf("listing characters for account %s: %w", accountID, err)
	}
	defer rows.Close()

	var summaries []gatewayrpc.CharacterSummary
	for rows.Next() {
		var sum gatewayrpc.CharacterSummary
		if err := rows.Scan(&sum.CharacterID, &sum.Name, &sum.Level); err != nil {
			return nil, fmt.Errorf("scanning character for account %s: %w", accountID, err)
		}
		summaries = append(summaries, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing characters for account %s: %w", accountID, err)
	}
	return summaries, nil
}

func (s *CharacterStore) CreateCharacter(ctx context.Context, accountID string, builder world.CharacterBuilder) (string, error) {
	characterID := uuid.NewString()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO characters
		 (character_id, account_id, name, class_id, is_female, hair_style, hair_color, face)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		characterID, accountID, builder.Name, builder.ClassID, builder.IsFemale,
		builder.HairStyle, builder.HairColor, builder.Face,
	)
	if err != nil {
		return "", fmt.Errorf("creating character for account %s: %w", accountID, err)
	}
	return characterID, nil
}

func (s *CharacterStore) DeleteCharacter(ctx context.Context, accountID, characterID string) error {
	_, err := s.pool.Exec(ctx,
		`DELETE FROM characters WHERE character_id = $1 AND account_id = $2`,
		characterID, accountID,
	)
	if err != nil {
		return fmt.Errorf("deleting character %s for account %s: %w", characterID, accountID, err)
	}
	return nil
}

func (s *CharacterStore) Owns(ctx context.Context, accountID, characterID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM characters WHERE character_id = $1 AND account_id = $2)`,
		characterID, accountID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking ownership of character %s: %w", characterID, err)
	}
	return exists, nil
}
