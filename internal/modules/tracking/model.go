// README: Delivery tracking record seeded at acceptance and extended per transition.
package tracking

import (
	"time"

	"github.com/google/uuid"

	"swoop/internal/types"
)

type Record struct {
	ID        uuid.UUID
	OfferID   types.ID
	RiderID   types.ID
	CreatedAt time.Time
}

type Event struct {
	ID         int64
	TrackingID uuid.UUID
	Status     string
	Note       *string
	Position   *types.Point
	CreatedAt  time.Time
}
