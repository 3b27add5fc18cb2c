// README: Offer service implements validated creation, authorized status
// transitions, and the atomic acceptance protocol.
package offer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"swoop/internal/geo"
	"swoop/internal/modules/rider"
	"swoop/internal/modules/tracking"
	"swoop/internal/observability"
	"swoop/internal/outbox"
	"swoop/internal/types"
)

var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("offer not found")
	ErrNotAvailable = errors.New("offer not available")
	ErrNotEligible  = errors.New("rider not eligible")
	ErrUnauthorized = errors.New("not authorized")
	ErrInvalidState = errors.New("illegal status transition")
	ErrConflict     = errors.New("offer modified concurrently")
)

// Every store round-trip is bounded; a timed-out CAS is indistinguishable
// from a lost race and equally safe to retry.
const opTimeout = 5 * time.Second

// Storage is what the service needs from the offer store.
type Storage interface {
	Create(ctx context.Context, o *Offer) error
	Get(ctx context.Context, id types.ID) (*Offer, error)
	History(ctx context.Context, id types.ID) ([]Event, error)
	ApplyTransition(ctx context.Context, w TransitionWrite) (bool, error)
}

// RiderDirectory supplies point-in-time rider snapshots.
type RiderDirectory interface {
	Snapshot(ctx context.Context, id types.ID) (rider.Snapshot, error)
}

// GeoIndex mirrors open offers into the spatial index used by the matcher.
type GeoIndex interface {
	AddOpenOffer(ctx context.Context, id types.ID, pickup types.Point) error
	RemoveOffer(ctx context.Context, id types.ID) error
}

// RouteEstimator is an optional road-network estimator; when absent the
// haversine/speed-table estimate is used.
type RouteEstimator interface {
	Estimate(ctx context.Context, from, to types.Point) (meters, minutes float64, err error)
}

type Service struct {
	store    Storage
	riders   RiderDirectory
	geoIndex GeoIndex
	routes   RouteEstimator
}

func NewService(store Storage, riders RiderDirectory, geoIndex GeoIndex, routes RouteEstimator) *Service {
	return &Service{store: store, riders: riders, geoIndex: geoIndex, routes: routes}
}

type CreateCommand struct {
	BusinessID      types.ID
	Package         Package
	Pickup          Stop
	Delivery        Stop
	PickupFrom      *time.Time
	PickupUntil     *time.Time
	Deadline        *time.Time
	Payment         Payment
	RequiredVehicle string
	MinRating       float64
}

// Create validates and persists a new open offer. Estimated distance and
// duration are computed here, once; later transitions never recompute them.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Offer, error) {
	now := time.Now().UTC()
	o := &Offer{
		ID:              types.ID(uuid.NewString()),
		BusinessID:      cmd.BusinessID,
		Package:         cmd.Package,
		Pickup:          cmd.Pickup,
		Delivery:        cmd.Delivery,
		PickupFrom:      cmd.PickupFrom,
		PickupUntil:     cmd.PickupUntil,
		Deadline:        cmd.Deadline,
		Payment:         cmd.Payment,
		RequiredVehicle: cmd.RequiredVehicle,
		MinRating:       cmd.MinRating,
		Status:          StatusOpen,
		CreatedAt:       now,
	}
	if err := o.Validate(now); err != nil {
		return nil, err
	}

	o.EstimatedDistanceM, o.EstimatedDurationMin = s.estimate(ctx, o)

	cctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	if err := s.store.Create(cctx, o); err != nil {
		return nil, err
	}

	if s.geoIndex != nil {
		// Index write failure is recoverable (the offer simply stays out of
		// match results until re-indexed); it must not fail creation.
		_ = s.geoIndex.AddOpenOffer(ctx, o.ID, o.Pickup.Position)
	}
	return o, nil
}

func (s *Service) estimate(ctx context.Context, o *Offer) (meters, minutes float64) {
	if s.routes != nil {
		if m, min, err := s.routes.Estimate(ctx, o.Pickup.Position, o.Delivery.Position); err == nil {
			return m, min
		}
	}
	d, err := geo.Distance(o.Pickup.Position, o.Delivery.Position)
	if err != nil {
		return 0, 0
	}
	return d, geo.EstimateDuration(d, o.RequiredVehicle)
}

type AcceptanceResult struct {
	Offer      *Offer
	AcceptedAt time.Time
}

// Accept runs the atomic acceptance protocol: re-fetch, eligibility checks,
// then a conditional open->accepted write grouped with the history entry,
// tracking seed, and notification outbox rows. A lost race is retried once;
// a second loss reports the offer as taken.
func (s *Service) Accept(ctx context.Context, offerID, riderID types.ID) (*AcceptanceResult, error) {
	for attempt := 0; attempt < 2; attempt++ {
		res, retry, err := s.tryAccept(ctx, offerID, riderID)
		if err == nil && res != nil {
			return res, nil
		}
		if !retry {
			return nil, err
		}
	}
	observability.AcceptConflictsTotal.Inc()
	return nil, ErrNotAvailable
}

// tryAccept performs one pass of the protocol. retry=true means the CAS was
// lost (or timed out) and one more pass is worthwhile.
func (s *Service) tryAccept(ctx context.Context, offerID, riderID types.ID) (*AcceptanceResult, bool, error) {
	cctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	o, err := s.store.Get(cctx, offerID)
	if err != nil {
		return nil, false, err
	}
	if o.Status != StatusOpen {
		if o.AcceptedBy != nil && *o.AcceptedBy == riderID && o.AcceptedAt != nil {
			// The rider already won this offer; echo the result so retries
			// are harmless.
			return &AcceptanceResult{Offer: o, AcceptedAt: *o.AcceptedAt}, false, nil
		}
		return nil, false, ErrNotAvailable
	}
	if err := AuthorizeTransition(o, StatusAccepted, riderID); err != nil {
		return nil, false, err
	}

	snap, err := s.riders.Snapshot(ctx, riderID)
	if err != nil {
		if errors.Is(err, rider.ErrUnknownRider) {
			return nil, false, fmt.Errorf("%w: rider unknown", ErrNotEligible)
		}
		return nil, false, err
	}
	if err := CheckEligibility(snap, o); err != nil {
		return nil, false, err
	}

	now := time.Now().UTC()
	seed := &tracking.Record{
		ID:        uuid.New(),
		OfferID:   o.ID,
		RiderID:   riderID,
		CreatedAt: now,
	}
	tasks, err := acceptanceTasks(o, riderID)
	if err != nil {
		return nil, false, err
	}

	ok, err := s.store.ApplyTransition(cctx, TransitionWrite{
		OfferID:      o.ID,
		From:         StatusOpen,
		To:           StatusAccepted,
		Actor:        &riderID,
		AssignRider:  &riderID,
		TrackingSeed: seed,
		Tasks:        tasks,
		At:           now,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			// Indistinguishable from a lost race; the CAS predicate makes a
			// blind retry safe either way.
			return nil, true, nil
		}
		return nil, false, err
	}
	if !ok {
		return nil, true, nil
	}

	observability.AcceptsTotal.Inc()
	if s.geoIndex != nil {
		_ = s.geoIndex.RemoveOffer(ctx, o.ID)
	}

	o.Status = StatusAccepted
	o.AcceptedBy = &riderID
	o.AcceptedAt = &now
	return &AcceptanceResult{Offer: o, AcceptedAt: now}, false, nil
}

func acceptanceTasks(o *Offer, riderID types.ID) ([]*outbox.Task, error) {
	accepted, err := outbox.NewTask(outbox.TopicNotifications, outbox.NotificationPayload{
		Type:       "offer_accepted",
		OfferID:    o.ID,
		BusinessID: o.BusinessID,
		RiderID:    riderID,
		Status:     string(StatusAccepted),
	})
	if err != nil {
		return nil, err
	}
	// Broadcast to previously-notified riders that the offer is gone.
	unavailable, err := outbox.NewTask(outbox.TopicNotifications, outbox.NotificationPayload{
		Type:       "offer_unavailable",
		OfferID:    o.ID,
		BusinessID: o.BusinessID,
		Status:     string(StatusAccepted),
	})
	if err != nil {
		return nil, err
	}
	return []*outbox.Task{accepted, unavailable}, nil
}

type TransitionOptions struct {
	Note     *string
	Position *types.Point
}

type TransitionResult struct {
	Offer *Offer
	From  Status
	To    Status
	At    time.Time
}

// Transition moves an offer to target on behalf of actorID, enforcing
// legality first and authorization second. No partial state change occurs on
// any failure path.
func (s *Service) Transition(ctx context.Context, offerID types.ID, target Status, actorID types.ID, opts TransitionOptions) (*TransitionResult, error) {
	if target == StatusAccepted {
		// Acceptance has its own protocol (eligibility, tracking seed), but
		// legality is checked here first so a request against a progressed
		// offer reads as an illegal transition rather than a lost race. The
		// assigned rider retrying their own acceptance is still echoed.
		gctx, gcancel := context.WithTimeout(ctx, opTimeout)
		o, err := s.store.Get(gctx, offerID)
		gcancel()
		if err != nil {
			return nil, err
		}
		retry := o.Status == StatusAccepted && o.AcceptedBy != nil && *o.AcceptedBy == actorID
		if !retry && !CanTransition(o.Status, StatusAccepted) {
			return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, o.Status, StatusAccepted)
		}
		res, err := s.Accept(ctx, offerID, actorID)
		if err != nil {
			return nil, err
		}
		return &TransitionResult{Offer: res.Offer, From: StatusOpen, To: StatusAccepted, At: res.AcceptedAt}, nil
	}

	cctx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	o, err := s.store.Get(cctx, offerID)
	if err != nil {
		return nil, err
	}
	if !CanTransition(o.Status, target) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidState, o.Status, target)
	}
	if err := AuthorizeTransition(o, target, actorID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	w := TransitionWrite{
		OfferID:  o.ID,
		From:     o.Status,
		To:       target,
		Actor:    &actorID,
		Note:     opts.Note,
		Position: opts.Position,
		At:       now,
	}
	if o.AcceptedBy != nil {
		w.TrackingEvent = &tracking.Event{
			Status:    string(target),
			Note:      opts.Note,
			Position:  opts.Position,
			CreatedAt: now,
		}
	}
	if w.Tasks, err = transitionTasks(o, target, actorID); err != nil {
		return nil, err
	}

	ok, err := s.store.ApplyTransition(cctx, w)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConflict
	}

	observability.TransitionsTotal.WithLabelValues(string(target)).Inc()
	if target == StatusCancelled && o.Status == StatusOpen && s.geoIndex != nil {
		_ = s.geoIndex.RemoveOffer(ctx, o.ID)
	}

	o.Status = target
	if slot := o.timestamp(target); slot != nil {
		*slot = &now
	}
	return &TransitionResult{Offer: o, From: w.From, To: target, At: now}, nil
}

func transitionTasks(o *Offer, target Status, actor types.ID) ([]*outbox.Task, error) {
	var riderID types.ID
	if o.AcceptedBy != nil {
		riderID = *o.AcceptedBy
	}
	status, err := outbox.NewTask(outbox.TopicNotifications, outbox.NotificationPayload{
		Type:       "offer_status",
		OfferID:    o.ID,
		BusinessID: o.BusinessID,
		RiderID:    riderID,
		Status:     string(target),
	})
	if err != nil {
		return nil, err
	}
	tasks := []*outbox.Task{status}

	if target == StatusCompleted {
		settle, err := outbox.NewTask(outbox.TopicSettlements, outbox.SettlementPayload{
			OfferID:    o.ID,
			BusinessID: o.BusinessID,
			RiderID:    riderID,
			Amount:     o.Payment.Amount,
			Currency:   string(o.Payment.Currency),
		})
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, settle)
	}
	return tasks, nil
}

// Get returns the offer by id.
func (s *Service) Get(ctx context.Context, id types.ID) (*Offer, error) {
	return s.store.Get(ctx, id)
}

// History returns the append-only status history for an offer.
func (s *Service) History(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.History(ctx, id)
}
