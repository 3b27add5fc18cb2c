// README: Payment settlement collaborator; consumes completed-offer
// settlement tasks drained from the outbox.
package payments

import (
	"context"
	"encoding/json"
	"fmt"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/paymentintent"
	"go.uber.org/zap"

	"swoop/internal/outbox"
)

// Settler charges the business for a completed delivery.
type Settler interface {
	Settle(ctx context.Context, p outbox.SettlementPayload) error
}

// StripeClient is a thin wrapper around stripe-go PaymentIntents. Card and
// wallet settlements are captured immediately; cash is settled off-platform
// and only recorded.
type StripeClient struct {
	log *zap.Logger
}

func NewStripeClient(apiKey string, log *zap.Logger) *StripeClient {
	stripe.Key = apiKey
	return &StripeClient{log: log}
}

func (s *StripeClient) Settle(ctx context.Context, p outbox.SettlementPayload) error {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(p.Amount),
		Currency: stripe.String(p.Currency),
		Confirm:  stripe.Bool(true),
	}
	// Offer id dedupes retried settlements; the outbox is at-least-once.
	params.SetIdempotencyKey("settle-" + string(p.OfferID))
	params.AddMetadata("offer_id", string(p.OfferID))
	params.AddMetadata("business_id", string(p.BusinessID))
	params.AddMetadata("rider_id", string(p.RiderID))

	pi, err := paymentintent.New(params)
	if err != nil {
		return fmt.Errorf("create payment intent: %w", err)
	}
	s.log.Info("settlement submitted",
		zap.String("offer_id", string(p.OfferID)),
		zap.String("payment_intent", pi.ID),
		zap.Int64("amount", p.Amount),
		zap.String("currency", p.Currency))
	return nil
}

// LogSettler records settlements without charging anyone. Used when no
// Stripe key is configured.
type LogSettler struct {
	log *zap.Logger
}

func NewLogSettler(log *zap.Logger) *LogSettler {
	return &LogSettler{log: log}
}

func (s *LogSettler) Settle(_ context.Context, p outbox.SettlementPayload) error {
	s.log.Info("settlement recorded (no gateway)",
		zap.String("offer_id", string(p.OfferID)),
		zap.Int64("amount", p.Amount),
		zap.String("currency", p.Currency))
	return nil
}

// SettlementHandler adapts a Settler to the outbox handler signature.
func SettlementHandler(settler Settler) func(ctx context.Context, key string, payload json.RawMessage) error {
	return func(ctx context.Context, _ string, payload json.RawMessage) error {
		var p outbox.SettlementPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return fmt.Errorf("decode settlement payload: %w", err)
		}
		return settler.Settle(ctx, p)
	}
}
