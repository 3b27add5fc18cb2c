// README: Transactional outbox task model; rows are written atomically with
// the offer transition that caused them and drained asynchronously.
package outbox

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"swoop/internal/types"
)

type TaskStatus string

const (
	TaskStatusCreated    TaskStatus = "CREATED"
	TaskStatusProcessing TaskStatus = "PROCESSING"
	TaskStatusFailed     TaskStatus = "FAILED"
	TaskStatusDone       TaskStatus = "DONE"
)

const (
	TopicNotifications = "offer-notifications"
	TopicSettlements   = "payment-settlements"
)

type Task struct {
	ID          uuid.UUID
	Status      TaskStatus
	Topic       string
	Payload     json.RawMessage
	Attempts    int
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// NotificationPayload is consumed by the notification collaborator. Consumers
// are expected to be idempotent keyed by offer id + type.
type NotificationPayload struct {
	Type       string   `json:"type"` // offer_accepted | offer_unavailable | offer_status
	OfferID    types.ID `json:"offer_id"`
	BusinessID types.ID `json:"business_id"`
	RiderID    types.ID `json:"rider_id,omitempty"`
	Status     string   `json:"status,omitempty"`
}

// SettlementPayload triggers payment settlement once an offer completes.
type SettlementPayload struct {
	OfferID    types.ID `json:"offer_id"`
	BusinessID types.ID `json:"business_id"`
	RiderID    types.ID `json:"rider_id"`
	Amount     int64    `json:"amount"`
	Currency   string   `json:"currency"`
}

// NewTask builds a CREATED task with a fresh id and marshalled payload.
func NewTask(topic string, payload any) (*Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	return &Task{
		ID:        uuid.New(),
		Status:    TaskStatusCreated,
		Topic:     topic,
		Payload:   raw,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}
