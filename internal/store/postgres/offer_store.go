package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lavirtualzone/transfers/internal/domain"
)

var _ domain.OfferStore = (*OfferStore)(nil)

// OfferStore implements domain.OfferStore using PostgreSQL. Insertion order
// is kept by the seq column, which an upsert never changes.
type OfferStore struct {
	pool *pgxpool.Pool
}

// NewOfferStore creates a new OfferStore backed by the given connection pool.
func NewOfferStore(pool *pgxpool.Pool) *OfferStore {
	return &OfferStore{pool: pool}
}

const offerCols = `id, player_id, player_name, from_club_id, from_club_name,
	to_club_id, to_club_name, amount, status, reject_reason, created_at, expires_at`

const upsertOffer = `
	INSERT INTO offers (` + offerCols + `)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (id) DO UPDATE SET
		player_id      = EXCLUDED.player_id,
		player_name    = EXCLUDED.player_name,
		from_club_id   = EXCLUDED.from_club_id,
		from_club_name = EXCLUDED.from_club_name,
		to_club_id     = EXCLUDED.to_club_id,
		to_club_name   = EXCLUDED.to_club_name,
		amount         = EXCLUDED.amount,
		status         = EXCLUDED.status,
		reject_reason  = EXCLUDED.reject_reason,
		created_at     = EXCLUDED.created_at,
		expires_at     = EXCLUDED.expires_at,
		updated_at     = NOW()`

func offerArgs(o domain.Offer) []any {
	return []any{
		o.ID, o.PlayerID, o.PlayerName, o.FromClubID, o.FromClubName,
		o.ToClubID, o.ToClubName, o.Amount, string(o.Status), o.RejectReason,
		o.CreatedAt, o.ExpiresAt,
	}
}

func scanOffer(row pgx.Row) (domain.Offer, error) {
	var o domain.Offer
	var status string
	err := row.Scan(
		&o.ID, &o.PlayerID, &o.PlayerName, &o.FromClubID, &o.FromClubName,
		&o.ToClubID, &o.ToClubName, &o.Amount, &status, &o.RejectReason,
		&o.CreatedAt, &o.ExpiresAt,
	)
	if err != nil {
		return domain.Offer{}, err
	}
	o.Status = domain.OfferStatus(status)
	o.CreatedAt = o.CreatedAt.UTC()
	o.ExpiresAt = o.ExpiresAt.UTC()
	return o, nil
}

// Get retrieves an offer by its primary key.
func (s *OfferStore) Get(ctx context.Context, id string) (domain.Offer, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+offerCols+` FROM offers WHERE id = $1`, id)
	o, err := scanOffer(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Offer{}, domain.ErrNotFound
		}
		return domain.Offer{}, fmt.Errorf("postgres: get offer %s: %w: %w", id, domain.ErrPersistence, err)
	}
	return o, nil
}

// List returns all offers in insertion order.
func (s *OfferStore) List(ctx context.Context) ([]domain.Offer, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+offerCols+` FROM offers ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list offers: %w: %w", domain.ErrPersistence, err)
	}
	defer rows.Close()

	offers := []domain.Offer{}
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan offer: %w: %w", domain.ErrPersistence, err)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list offers rows: %w: %w", domain.ErrPersistence, err)
	}
	return offers, nil
}

// Put inserts or updates a single offer.
func (s *OfferStore) Put(ctx context.Context, o domain.Offer) error {
	if _, err := s.pool.Exec(ctx, upsertOffer, offerArgs(o)...); err != nil {
		return fmt.Errorf("postgres: upsert offer %s: %w: %w", o.ID, domain.ErrPersistence, err)
	}
	return nil
}

// PutBatch upserts offers in one round trip, preserving slice order for new
// rows.
func (s *OfferStore) PutBatch(ctx context.Context, offers []domain.Offer) error {
	if len(offers) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, o := range offers {
		batch.Queue(upsertOffer, offerArgs(o)...)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range offers {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert offer batch item %d: %w: %w", i, domain.ErrPersistence, err)
		}
	}
	return nil
}

// Delete removes an offer.
func (s *OfferStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM offers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: delete offer %s: %w: %w", id, domain.ErrPersistence, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
