// README: State machine and authorization tests; no database required.
package offer

import (
	"errors"
	"strings"
	"testing"
	"time"

	"swoop/internal/types"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to Status
		want     bool
	}{
		// happy-path forward transitions
		{StatusOpen, StatusAccepted, true},
		{StatusAccepted, StatusPickedUp, true},
		{StatusPickedUp, StatusInTransit, true},
		{StatusInTransit, StatusDelivered, true},
		{StatusDelivered, StatusCompleted, true},
		// cancels from every non-terminal state except delivered
		{StatusOpen, StatusCancelled, true},
		{StatusAccepted, StatusCancelled, true},
		{StatusPickedUp, StatusCancelled, true},
		{StatusInTransit, StatusCancelled, true},
		{StatusDelivered, StatusCancelled, false},
		// invalid: terminal states have no outgoing transitions
		{StatusCompleted, StatusOpen, false},
		{StatusCompleted, StatusCancelled, false},
		{StatusCancelled, StatusOpen, false},
		{StatusCancelled, StatusAccepted, false},
		// invalid: skipping states
		{StatusOpen, StatusPickedUp, false},
		{StatusOpen, StatusDelivered, false},
		{StatusAccepted, StatusInTransit, false},
		{StatusAccepted, StatusCompleted, false},
		{StatusPickedUp, StatusDelivered, false},
		{StatusInTransit, StatusCompleted, false},
		// invalid: going backwards
		{StatusAccepted, StatusOpen, false},
		{StatusDelivered, StatusInTransit, false},
	}
	for _, tc := range cases {
		got := CanTransition(tc.from, tc.to)
		if got != tc.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range []Status{StatusCompleted, StatusCancelled} {
		if !IsTerminal(s) {
			t.Errorf("expected %s to be terminal", s)
		}
	}
	for _, s := range []Status{StatusOpen, StatusAccepted, StatusPickedUp, StatusInTransit, StatusDelivered} {
		if IsTerminal(s) {
			t.Errorf("expected %s to be non-terminal", s)
		}
	}
}

func TestRoleOf(t *testing.T) {
	riderID := types.ID("r1")
	o := &Offer{BusinessID: "b1", AcceptedBy: &riderID}

	if got := RoleOf(o, "b1"); got != RoleBusiness {
		t.Errorf("business: got %s", got)
	}
	if got := RoleOf(o, "r1"); got != RoleRider {
		t.Errorf("rider: got %s", got)
	}
	if got := RoleOf(o, "someone"); got != RoleUnknown {
		t.Errorf("stranger: got %s", got)
	}

	unassigned := &Offer{BusinessID: "b1"}
	if got := RoleOf(unassigned, "r1"); got != RoleUnknown {
		t.Errorf("unassigned rider: got %s", got)
	}
}

func TestAuthorizeTransition(t *testing.T) {
	riderID := types.ID("r1")
	open := &Offer{BusinessID: "b1", Status: StatusOpen}
	assigned := &Offer{BusinessID: "b1", Status: StatusAccepted, AcceptedBy: &riderID}

	cases := []struct {
		name   string
		offer  *Offer
		target Status
		actor  types.ID
		wantOK bool
	}{
		{"any rider may accept an open offer", open, StatusAccepted, "r9", true},
		{"business may not accept its own offer", open, StatusAccepted, "b1", false},
		{"assigned rider may retry accept", assigned, StatusAccepted, "r1", true},
		{"other rider may not accept an assigned offer", assigned, StatusAccepted, "r2", false},
		{"assigned rider marks picked_up", assigned, StatusPickedUp, "r1", true},
		{"business may not mark picked_up", assigned, StatusPickedUp, "b1", false},
		{"stranger may not mark in_transit", assigned, StatusInTransit, "r2", false},
		{"assigned rider marks delivered", assigned, StatusDelivered, "r1", true},
		{"business marks completed", assigned, StatusCompleted, "b1", true},
		{"assigned rider marks completed", assigned, StatusCompleted, "r1", true},
		{"stranger may not complete", assigned, StatusCompleted, "x", false},
		{"business cancels", assigned, StatusCancelled, "b1", true},
		{"assigned rider cancels", assigned, StatusCancelled, "r1", true},
		{"stranger may not cancel", assigned, StatusCancelled, "x", false},
	}
	for _, tc := range cases {
		err := AuthorizeTransition(tc.offer, tc.target, tc.actor)
		if tc.wantOK && err != nil {
			t.Errorf("%s: unexpected error %v", tc.name, err)
		}
		if !tc.wantOK {
			if err == nil {
				t.Errorf("%s: expected authorization error", tc.name)
			} else if !errors.Is(err, ErrUnauthorized) {
				t.Errorf("%s: expected ErrUnauthorized, got %v", tc.name, err)
			}
		}
	}
}

func validOffer() *Offer {
	return &Offer{
		BusinessID: "b1",
		Package:    Package{WeightKg: 2.5},
		Pickup:     Stop{Address: "1 Main St", Position: types.Point{Lng: -74.0060, Lat: 40.7128}},
		Delivery:   Stop{Address: "2 Other St", Position: types.Point{Lng: -73.9857, Lat: 40.6892}},
		Payment:    Payment{Amount: 2500, Currency: CurrencyUSD, Method: MethodCard},
	}
}

func TestValidateNamesOffendingField(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)
	later := future.Add(time.Hour)

	cases := []struct {
		name   string
		mutate func(o *Offer)
		field  string
	}{
		{"missing business", func(o *Offer) { o.BusinessID = "" }, "business_id"},
		{"zero weight", func(o *Offer) { o.Package.WeightKg = 0 }, "package.weight_kg"},
		{"pickup lng out of range", func(o *Offer) { o.Pickup.Position.Lng = 181 }, "pickup.position"},
		{"delivery lat out of range", func(o *Offer) { o.Delivery.Position.Lat = -91 }, "delivery.position"},
		{"non-positive payment", func(o *Offer) { o.Payment.Amount = 0 }, "payment.amount"},
		{"unknown currency", func(o *Offer) { o.Payment.Currency = "JPY" }, "payment.currency"},
		{"unknown method", func(o *Offer) { o.Payment.Method = "barter" }, "payment.method"},
		{"inverted pickup window", func(o *Offer) { o.PickupFrom = &later; o.PickupUntil = &future }, "pickup.window"},
		{"past deadline", func(o *Offer) { o.Deadline = &past }, "delivery.deadline"},
		{"unknown vehicle", func(o *Offer) { o.RequiredVehicle = "hoverboard" }, "required_vehicle"},
	}
	for _, tc := range cases {
		o := validOffer()
		tc.mutate(o)
		err := o.Validate(now)
		if err == nil {
			t.Errorf("%s: expected validation error", tc.name)
			continue
		}
		if !errors.Is(err, ErrValidation) {
			t.Errorf("%s: expected ErrValidation, got %v", tc.name, err)
		}
		if got := err.Error(); !strings.Contains(got, tc.field) {
			t.Errorf("%s: error %q does not name field %q", tc.name, got, tc.field)
		}
	}

	if err := validOffer().Validate(now); err != nil {
		t.Fatalf("valid offer rejected: %v", err)
	}
}
