// README: Tracking store backed by PostgreSQL; Tx variants compose into the
// acceptance transaction.
package tracking

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swoop/internal/types"
)

var ErrNotFound = errors.New("tracking record not found")

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// CreateTx inserts a tracking record inside the caller's transaction.
func (s *Store) CreateTx(ctx context.Context, tx pgx.Tx, rec *Record) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO delivery_tracking (id, offer_id, rider_id, created_at)
        VALUES ($1, $2, $3, $4)`,
		rec.ID, string(rec.OfferID), string(rec.RiderID), rec.CreatedAt,
	)
	return err
}

// AppendEventTx appends a tracking event inside the caller's transaction.
func (s *Store) AppendEventTx(ctx context.Context, tx pgx.Tx, e *Event) error {
	var lng, lat *float64
	if e.Position != nil {
		lng, lat = &e.Position.Lng, &e.Position.Lat
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO delivery_tracking_events (tracking_id, status, note, lng, lat, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		e.TrackingID, e.Status, e.Note, lng, lat, e.CreatedAt,
	)
	return err
}

// GetByOffer returns the tracking record for an offer.
func (s *Store) GetByOffer(ctx context.Context, offerID types.ID) (*Record, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, offer_id, rider_id, created_at
        FROM delivery_tracking
        WHERE offer_id = $1`, string(offerID),
	)
	var rec Record
	err := row.Scan(&rec.ID, &rec.OfferID, &rec.RiderID, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListEvents returns tracking events for a record, oldest first.
func (s *Store) ListEvents(ctx context.Context, trackingID string) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, tracking_id, status, note, lng, lat, created_at
        FROM delivery_tracking_events
        WHERE tracking_id = $1
        ORDER BY id ASC`, trackingID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var lng, lat *float64
		if err := rows.Scan(&e.ID, &e.TrackingID, &e.Status, &e.Note, &lng, &lat, &e.CreatedAt); err != nil {
			return nil, err
		}
		if lng != nil && lat != nil {
			e.Position = &types.Point{Lng: *lng, Lat: *lat}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
