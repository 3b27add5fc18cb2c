// README: Offer aggregate, status graph, and per-role authorization.
package offer

import (
	"fmt"
	"time"

	"swoop/internal/types"
)

type Status string

const (
	StatusNone      Status = "none" // history origin marker, never stored on the aggregate
	StatusOpen      Status = "open"
	StatusAccepted  Status = "accepted"
	StatusPickedUp  Status = "picked_up"
	StatusInTransit Status = "in_transit"
	StatusDelivered Status = "delivered"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// AllowedTransitions represents the offer state flow (diagram) as code.
var AllowedTransitions = map[Status][]Status{
	StatusOpen:      {StatusAccepted, StatusCancelled},
	StatusAccepted:  {StatusPickedUp, StatusCancelled},
	StatusPickedUp:  {StatusInTransit, StatusCancelled},
	StatusInTransit: {StatusDelivered, StatusCancelled},
	StatusDelivered: {StatusCompleted},
	StatusCompleted: {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	next, ok := AllowedTransitions[from]
	if !ok {
		return false
	}
	for _, s := range next {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a status has no outgoing transitions.
func IsTerminal(s Status) bool {
	return len(AllowedTransitions[s]) == 0
}

type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
)

func (c Currency) Valid() bool {
	switch c {
	case CurrencyUSD, CurrencyEUR, CurrencyGBP:
		return true
	}
	return false
}

type PaymentMethod string

const (
	MethodCard   PaymentMethod = "card"
	MethodCash   PaymentMethod = "cash"
	MethodWallet PaymentMethod = "wallet"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodCard, MethodCash, MethodWallet:
		return true
	}
	return false
}

// Package describes what is being delivered.
type Package struct {
	WeightKg     float64
	LengthCm     float64
	WidthCm      float64
	HeightCm     float64
	Fragile      bool
	Instructions string
}

// Stop is a pickup or delivery endpoint.
type Stop struct {
	Address      string
	Position     types.Point
	ContactName  string
	ContactPhone string
}

type Payment struct {
	Amount   int64 // minor units, must be > 0
	Currency Currency
	Method   PaymentMethod
}

// Offer is the aggregate root of the dispatch core.
type Offer struct {
	ID         types.ID
	BusinessID types.ID

	Package  Package
	Pickup   Stop
	Delivery Stop

	PickupFrom  *time.Time
	PickupUntil *time.Time
	Deadline    *time.Time

	Payment Payment

	RequiredVehicle string  // empty = any vehicle
	MinRating       float64 // 0 = no minimum

	Status     Status
	AcceptedBy *types.ID

	// Computed once at creation from the pickup/delivery coordinates and
	// never mandatorily recomputed afterwards.
	EstimatedDistanceM   float64
	EstimatedDurationMin float64

	CreatedAt   time.Time
	AcceptedAt  *time.Time
	PickedUpAt  *time.Time
	InTransitAt *time.Time
	DeliveredAt *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

// Event is one status-history entry. The sequence is append-only and the
// first entry is written at creation with status open.
type Event struct {
	ID         int64
	OfferID    types.ID
	FromStatus Status
	ToStatus   Status
	ActorID    *types.ID
	Note       *string
	Position   *types.Point
	CreatedAt  time.Time
}

type Role string

const (
	RoleBusiness Role = "business"
	RoleRider    Role = "rider"
	RoleUnknown  Role = "unknown"
)

// RoleOf derives the actor's role relative to an offer.
func RoleOf(o *Offer, actor types.ID) Role {
	if actor == o.BusinessID {
		return RoleBusiness
	}
	if o.AcceptedBy != nil && actor == *o.AcceptedBy {
		return RoleRider
	}
	return RoleUnknown
}

// AuthorizeTransition checks who may move the offer to target. Legality of
// the transition itself is a separate check; both must pass.
func AuthorizeTransition(o *Offer, target Status, actor types.ID) error {
	role := RoleOf(o, actor)
	switch target {
	case StatusAccepted:
		// Any rider except the owning business; tolerate the assigned
		// rider retrying their own accept.
		if actor == o.BusinessID {
			return fmt.Errorf("%w: business cannot accept its own offer", ErrUnauthorized)
		}
		if o.AcceptedBy != nil && *o.AcceptedBy != actor {
			return fmt.Errorf("%w: offer already assigned", ErrUnauthorized)
		}
		return nil
	case StatusPickedUp, StatusInTransit, StatusDelivered:
		if role != RoleRider {
			return fmt.Errorf("%w: only the assigned rider may mark %s", ErrUnauthorized, target)
		}
		return nil
	case StatusCompleted, StatusCancelled:
		if role != RoleBusiness && role != RoleRider {
			return fmt.Errorf("%w: only the business or assigned rider may mark %s", ErrUnauthorized, target)
		}
		return nil
	default:
		return fmt.Errorf("%w: no actor may set status %s", ErrUnauthorized, target)
	}
}

// Validate checks creation-time invariants and names the offending field.
func (o *Offer) Validate(now time.Time) error {
	switch {
	case o.BusinessID == "":
		return fieldErr("business_id", "required")
	case o.Package.WeightKg <= 0:
		return fieldErr("package.weight_kg", "must be > 0")
	case !o.Pickup.Position.Valid():
		return fieldErr("pickup.position", "coordinates out of range")
	case !o.Delivery.Position.Valid():
		return fieldErr("delivery.position", "coordinates out of range")
	case o.Payment.Amount <= 0:
		return fieldErr("payment.amount", "must be > 0")
	case !o.Payment.Currency.Valid():
		return fieldErr("payment.currency", "unknown currency")
	case !o.Payment.Method.Valid():
		return fieldErr("payment.method", "unknown method")
	}
	if o.PickupFrom != nil && o.PickupUntil != nil && o.PickupUntil.Before(*o.PickupFrom) {
		return fieldErr("pickup.window", "until precedes from")
	}
	if o.Deadline != nil && !o.Deadline.After(now) {
		return fieldErr("delivery.deadline", "must be in the future")
	}
	if o.RequiredVehicle != "" {
		switch o.RequiredVehicle {
		case "bike", "scooter", "car", "van":
		default:
			return fieldErr("required_vehicle", "unknown vehicle class")
		}
	}
	return nil
}

func fieldErr(field, msg string) error {
	return fmt.Errorf("%w: %s: %s", ErrValidation, field, msg)
}

// timestamp returns a pointer to the per-status timestamp slot for a target
// status, or nil if the status carries none.
func (o *Offer) timestamp(s Status) **time.Time {
	switch s {
	case StatusAccepted:
		return &o.AcceptedAt
	case StatusPickedUp:
		return &o.PickedUpAt
	case StatusInTransit:
		return &o.InTransitAt
	case StatusDelivered:
		return &o.DeliveredAt
	case StatusCompleted:
		return &o.CompletedAt
	case StatusCancelled:
		return &o.CancelledAt
	}
	return nil
}
