package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.PlayerDirectory = (*PlayerStore)(nil)

// PlayerStore serves player reference data from the players table.
type PlayerStore struct {
	pool *pgxpool.Pool
}

// NewPlayerStore creates a new PlayerStore backed by pool.
func NewPlayerStore(pool *pgxpool.Pool) *PlayerStore {
	return &PlayerStore{pool: pool}
}

// GetPlayer retrieves a player by ID.
func (s *PlayerStore) GetPlayer(ctx context.Context, id string) (domain.Player, error) {
	var p domain.Player
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, club_id, club_name, base_price FROM players WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.ClubID, &p.ClubName, &p.BasePrice)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Player{}, domain.ErrNotFound
		}
		return domain.Player{}, fmt.Errorf("postgres: get player %s: %w: %w", id, domain.ErrPersistence, err)
	}
	return p, nil
}

// UpsertBatch seeds or refreshes player rows.
func (s *PlayerStore) UpsertBatch(ctx context.Context, players []domain.Player) error {
	if len(players) == 0 {
		return nil
	}
	const query = `
		INSERT INTO players (id, name, club_id, club_name, base_price, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name       = EXCLUDED.name,
			club_id    = EXCLUDED.club_id,
			club_name  = EXCLUDED.club_name,
			base_price = EXCLUDED.base_price,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, p := range players {
		batch.Queue(query, p.ID, p.Name, p.ClubID, p.ClubName, p.BasePrice)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for i := range players {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert player batch item %d: %w", i, err)
		}
	}
	return nil
}
