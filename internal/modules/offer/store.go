// README: Offer store backed by PostgreSQL. Status mutation happens only
// through a conditional write keyed on the current status.
package offer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swoop/internal/modules/tracking"
	"swoop/internal/outbox"
	"swoop/internal/types"
)

type Store struct {
	db       *pgxpool.Pool
	tracking *tracking.Store
	outbox   *outbox.Repo
}

func NewStore(db *pgxpool.Pool, trackingStore *tracking.Store, outboxRepo *outbox.Repo) *Store {
	return &Store{db: db, tracking: trackingStore, outbox: outboxRepo}
}

// TransitionWrite is the atomic write group for one status transition: the
// CAS update itself, the history entry, optional tracking writes, and any
// outbox tasks. Either all of it commits or none of it does.
type TransitionWrite struct {
	OfferID  types.ID
	From, To Status
	Actor    *types.ID
	Note     *string
	Position *types.Point

	// AssignRider sets accepted_by; only the open->accepted transition
	// carries it.
	AssignRider *types.ID

	// TrackingSeed creates the delivery-tracking record (acceptance only).
	// TrackingEvent appends to an existing record when one exists.
	TrackingSeed  *tracking.Record
	TrackingEvent *tracking.Event

	Tasks []*outbox.Task

	At time.Time
}

// Create persists a new offer together with its first history entry.
func (s *Store) Create(ctx context.Context, o *Offer) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
        INSERT INTO offers (
            id, business_id,
            weight_kg, length_cm, width_cm, height_cm, fragile, instructions,
            pickup_address, pickup_lng, pickup_lat, pickup_contact_name, pickup_contact_phone,
            pickup_from, pickup_until,
            delivery_address, delivery_lng, delivery_lat, delivery_contact_name, delivery_contact_phone,
            deadline,
            amount, currency, method,
            required_vehicle, min_rating,
            status, accepted_by,
            est_distance_m, est_duration_min,
            created_at
        ) VALUES (
            $1, $2,
            $3, $4, $5, $6, $7, $8,
            $9, $10, $11, $12, $13,
            $14, $15,
            $16, $17, $18, $19, $20,
            $21,
            $22, $23, $24,
            $25, $26,
            $27, NULL,
            $28, $29,
            $30
        )`,
		string(o.ID), string(o.BusinessID),
		o.Package.WeightKg, o.Package.LengthCm, o.Package.WidthCm, o.Package.HeightCm, o.Package.Fragile, o.Package.Instructions,
		o.Pickup.Address, o.Pickup.Position.Lng, o.Pickup.Position.Lat, o.Pickup.ContactName, o.Pickup.ContactPhone,
		o.PickupFrom, o.PickupUntil,
		o.Delivery.Address, o.Delivery.Position.Lng, o.Delivery.Position.Lat, o.Delivery.ContactName, o.Delivery.ContactPhone,
		o.Deadline,
		o.Payment.Amount, string(o.Payment.Currency), string(o.Payment.Method),
		o.RequiredVehicle, o.MinRating,
		string(o.Status),
		o.EstimatedDistanceM, o.EstimatedDurationMin,
		o.CreatedAt,
	)
	if err != nil {
		return err
	}

	actor := o.BusinessID
	if err := appendEventTx(ctx, tx, &Event{
		OfferID:    o.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusOpen,
		ActorID:    &actor,
		CreatedAt:  o.CreatedAt,
	}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

const offerColumns = `
        id, business_id,
        weight_kg, length_cm, width_cm, height_cm, fragile, instructions,
        pickup_address, pickup_lng, pickup_lat, pickup_contact_name, pickup_contact_phone,
        pickup_from, pickup_until,
        delivery_address, delivery_lng, delivery_lat, delivery_contact_name, delivery_contact_phone,
        deadline,
        amount, currency, method,
        required_vehicle, min_rating,
        status, accepted_by,
        est_distance_m, est_duration_min,
        created_at, accepted_at, picked_up_at, in_transit_at, delivered_at, completed_at, cancelled_at`

func (s *Store) Get(ctx context.Context, id types.ID) (*Offer, error) {
	row := s.db.QueryRow(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = $1`, string(id))
	return scanOffer(row)
}

// ListOpenByIDs loads offers by id, keeping only those still open. Order of
// the input ids is preserved in the result.
func (s *Store) ListOpenByIDs(ctx context.Context, ids []types.ID) ([]*Offer, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	raw := make([]string, len(ids))
	for i, id := range ids {
		raw[i] = string(id)
	}
	rows, err := s.db.Query(ctx, `SELECT `+offerColumns+` FROM offers WHERE id = ANY($1) AND status = 'open'`, raw)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[types.ID]*Offer, len(ids))
	for rows.Next() {
		o, err := scanOffer(rows)
		if err != nil {
			return nil, err
		}
		byID[o.ID] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*Offer, 0, len(byID))
	for _, id := range ids {
		if o, ok := byID[id]; ok {
			out = append(out, o)
		}
	}
	return out, nil
}

// History returns the status history, oldest entry first.
func (s *Store) History(ctx context.Context, id types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, offer_id, from_status, to_status, actor_id, note, lng, lat, created_at
        FROM offer_status_events
        WHERE offer_id = $1
        ORDER BY id ASC`, string(id),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var actor, note *string
		var lng, lat *float64
		if err := rows.Scan(&e.ID, &e.OfferID, &e.FromStatus, &e.ToStatus, &actor, &note, &lng, &lat, &e.CreatedAt); err != nil {
			return nil, err
		}
		if actor != nil {
			a := types.ID(*actor)
			e.ActorID = &a
		}
		e.Note = note
		if lng != nil && lat != nil {
			e.Position = &types.Point{Lng: *lng, Lat: *lat}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ApplyTransition performs the conditional status write and its side-effect
// records as one transaction. It returns false without error when the stored
// status no longer matches w.From (a lost race), leaving nothing applied.
func (s *Store) ApplyTransition(ctx context.Context, w TransitionWrite) (bool, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var assign *string
	if w.AssignRider != nil {
		v := string(*w.AssignRider)
		assign = &v
	}

	tag, err := tx.Exec(ctx, `
        UPDATE offers
        SET status = $1,
            accepted_by = COALESCE($2, accepted_by),
            accepted_at   = CASE WHEN $1 = 'accepted'   THEN $5 ELSE accepted_at END,
            picked_up_at  = CASE WHEN $1 = 'picked_up'  THEN $5 ELSE picked_up_at END,
            in_transit_at = CASE WHEN $1 = 'in_transit' THEN $5 ELSE in_transit_at END,
            delivered_at  = CASE WHEN $1 = 'delivered'  THEN $5 ELSE delivered_at END,
            completed_at  = CASE WHEN $1 = 'completed'  THEN $5 ELSE completed_at END,
            cancelled_at  = CASE WHEN $1 = 'cancelled'  THEN $5 ELSE cancelled_at END
        WHERE id = $3 AND status = $4`,
		string(w.To), assign, string(w.OfferID), string(w.From), w.At,
	)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	if err := appendEventTx(ctx, tx, &Event{
		OfferID:    w.OfferID,
		FromStatus: w.From,
		ToStatus:   w.To,
		ActorID:    w.Actor,
		Note:       w.Note,
		Position:   w.Position,
		CreatedAt:  w.At,
	}); err != nil {
		return false, err
	}

	if w.TrackingSeed != nil {
		if err := s.tracking.CreateTx(ctx, tx, w.TrackingSeed); err != nil {
			return false, err
		}
		if err := s.tracking.AppendEventTx(ctx, tx, &tracking.Event{
			TrackingID: w.TrackingSeed.ID,
			Status:     string(w.To),
			Note:       w.Note,
			Position:   w.Position,
			CreatedAt:  w.At,
		}); err != nil {
			return false, err
		}
	} else if w.TrackingEvent != nil {
		var trackingID string
		err := tx.QueryRow(ctx,
			`SELECT id FROM delivery_tracking WHERE offer_id = $1`, string(w.OfferID),
		).Scan(&trackingID)
		switch {
		case errors.Is(err, pgx.ErrNoRows):
			// Offer cancelled before acceptance; there is no tracking record.
		case err != nil:
			return false, err
		default:
			parsed, parseErr := uuid.Parse(trackingID)
			if parseErr != nil {
				return false, parseErr
			}
			ev := *w.TrackingEvent
			ev.TrackingID = parsed
			if err := s.tracking.AppendEventTx(ctx, tx, &ev); err != nil {
				return false, err
			}
		}
	}

	for _, task := range w.Tasks {
		if err := s.outbox.CreateTx(ctx, tx, task); err != nil {
			return false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return true, nil
}

func appendEventTx(ctx context.Context, tx pgx.Tx, e *Event) error {
	var actor *string
	if e.ActorID != nil {
		v := string(*e.ActorID)
		actor = &v
	}
	var lng, lat *float64
	if e.Position != nil {
		lng, lat = &e.Position.Lng, &e.Position.Lat
	}
	_, err := tx.Exec(ctx, `
        INSERT INTO offer_status_events (offer_id, from_status, to_status, actor_id, note, lng, lat, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(e.OfferID), string(e.FromStatus), string(e.ToStatus), actor, e.Note, lng, lat, e.CreatedAt,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOffer(row rowScanner) (*Offer, error) {
	var o Offer
	var acceptedBy *string
	err := row.Scan(
		&o.ID, &o.BusinessID,
		&o.Package.WeightKg, &o.Package.LengthCm, &o.Package.WidthCm, &o.Package.HeightCm, &o.Package.Fragile, &o.Package.Instructions,
		&o.Pickup.Address, &o.Pickup.Position.Lng, &o.Pickup.Position.Lat, &o.Pickup.ContactName, &o.Pickup.ContactPhone,
		&o.PickupFrom, &o.PickupUntil,
		&o.Delivery.Address, &o.Delivery.Position.Lng, &o.Delivery.Position.Lat, &o.Delivery.ContactName, &o.Delivery.ContactPhone,
		&o.Deadline,
		&o.Payment.Amount, &o.Payment.Currency, &o.Payment.Method,
		&o.RequiredVehicle, &o.MinRating,
		&o.Status, &acceptedBy,
		&o.EstimatedDistanceM, &o.EstimatedDurationMin,
		&o.CreatedAt, &o.AcceptedAt, &o.PickedUpAt, &o.InTransitAt, &o.DeliveredAt, &o.CompletedAt, &o.CancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if acceptedBy != nil {
		r := types.ID(*acceptedBy)
		o.AcceptedBy = &r
	}
	return &o, nil
}
