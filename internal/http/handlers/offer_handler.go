// README: Offer handlers: create, fetch, history, accept, and status
// transitions.
package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"swoop/internal/http/middleware"
	"swoop/internal/modules/offer"
	"swoop/internal/types"
)

// OfferService is the slice of the offer module the handlers need.
type OfferService interface {
	Create(ctx context.Context, cmd offer.CreateCommand) (*offer.Offer, error)
	Get(ctx context.Context, id types.ID) (*offer.Offer, error)
	History(ctx context.Context, id types.ID) ([]offer.Event, error)
	Accept(ctx context.Context, offerID, riderID types.ID) (*offer.AcceptanceResult, error)
	Transition(ctx context.Context, offerID types.ID, target offer.Status, actorID types.ID, opts offer.TransitionOptions) (*offer.TransitionResult, error)
}

type OfferHandler struct {
	offers OfferService
}

func NewOfferHandler(offers OfferService) *OfferHandler {
	return &OfferHandler{offers: offers}
}

type stopReq struct {
	Address      string  `json:"address" binding:"required"`
	Lng          float64 `json:"lng"`
	Lat          float64 `json:"lat"`
	ContactName  string  `json:"contact_name"`
	ContactPhone string  `json:"contact_phone"`
}

type createOfferReq struct {
	Package struct {
		WeightKg     float64 `json:"weight_kg" binding:"required"`
		LengthCm     float64 `json:"length_cm"`
		WidthCm      float64 `json:"width_cm"`
		HeightCm     float64 `json:"height_cm"`
		Fragile      bool    `json:"fragile"`
		Instructions string  `json:"instructions"`
	} `json:"package" binding:"required"`
	Pickup      stopReq    `json:"pickup" binding:"required"`
	Delivery    stopReq    `json:"delivery" binding:"required"`
	PickupFrom  *time.Time `json:"pickup_from"`
	PickupUntil *time.Time `json:"pickup_until"`
	Deadline    *time.Time `json:"deadline"`
	Payment     struct {
		Amount   int64  `json:"amount" binding:"required"`
		Currency string `json:"currency" binding:"required"`
		Method   string `json:"method" binding:"required"`
	} `json:"payment" binding:"required"`
	RequiredVehicle string  `json:"required_vehicle"`
	MinRating       float64 `json:"min_rating"`
}

func (h *OfferHandler) Create(c *gin.Context) {
	var req createOfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}

	o, err := h.offers.Create(c.Request.Context(), offer.CreateCommand{
		BusinessID: types.ID(middleware.CallerUID(c)),
		Package: offer.Package{
			WeightKg:     req.Package.WeightKg,
			LengthCm:     req.Package.LengthCm,
			WidthCm:      req.Package.WidthCm,
			HeightCm:     req.Package.HeightCm,
			Fragile:      req.Package.Fragile,
			Instructions: req.Package.Instructions,
		},
		Pickup:      stopFromReq(req.Pickup),
		Delivery:    stopFromReq(req.Delivery),
		PickupFrom:  req.PickupFrom,
		PickupUntil: req.PickupUntil,
		Deadline:    req.Deadline,
		Payment: offer.Payment{
			Amount:   req.Payment.Amount,
			Currency: offer.Currency(req.Payment.Currency),
			Method:   offer.PaymentMethod(req.Payment.Method),
		},
		RequiredVehicle: req.RequiredVehicle,
		MinRating:       req.MinRating,
	})
	if err != nil {
		writeOfferError(c, err)
		return
	}
	c.JSON(http.StatusCreated, offerView(o))
}

func (h *OfferHandler) Get(c *gin.Context) {
	o, err := h.offers.Get(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOfferError(c, err)
		return
	}
	c.JSON(http.StatusOK, offerView(o))
}

func (h *OfferHandler) History(c *gin.Context) {
	events, err := h.offers.History(c.Request.Context(), types.ID(c.Param("id")))
	if err != nil {
		writeOfferError(c, err)
		return
	}
	out := make([]gin.H, len(events))
	for i, ev := range events {
		entry := gin.H{
			"status":     ev.ToStatus,
			"created_at": ev.CreatedAt,
		}
		if ev.FromStatus != offer.StatusNone {
			entry["from"] = ev.FromStatus
		}
		if ev.ActorID != nil {
			entry["actor_id"] = ev.ActorID
		}
		if ev.Note != nil {
			entry["note"] = ev.Note
		}
		if ev.Position != nil {
			entry["position"] = ev.Position
		}
		out[i] = entry
	}
	c.JSON(http.StatusOK, gin.H{"offer_id": c.Param("id"), "history": out})
}

func (h *OfferHandler) Accept(c *gin.Context) {
	res, err := h.offers.Accept(c.Request.Context(), types.ID(c.Param("id")), types.ID(middleware.CallerUID(c)))
	if err != nil {
		writeOfferError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"offer":       offerView(res.Offer),
		"accepted_at": res.AcceptedAt,
	})
}

type transitionReq struct {
	Status string   `json:"status" binding:"required"`
	Note   *string  `json:"note"`
	Lng    *float64 `json:"lng"`
	Lat    *float64 `json:"lat"`
}

func (h *OfferHandler) Transition(c *gin.Context) {
	var req transitionReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}

	opts := offer.TransitionOptions{Note: req.Note}
	if req.Lng != nil && req.Lat != nil {
		opts.Position = &types.Point{Lng: *req.Lng, Lat: *req.Lat}
	}

	res, err := h.offers.Transition(
		c.Request.Context(),
		types.ID(c.Param("id")),
		offer.Status(req.Status),
		types.ID(middleware.CallerUID(c)),
		opts,
	)
	if err != nil {
		writeOfferError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"offer": offerView(res.Offer),
		"from":  res.From,
		"to":    res.To,
		"at":    res.At,
	})
}

func stopFromReq(s stopReq) offer.Stop {
	return offer.Stop{
		Address:      s.Address,
		Position:     types.Point{Lng: s.Lng, Lat: s.Lat},
		ContactName:  s.ContactName,
		ContactPhone: s.ContactPhone,
	}
}

func offerView(o *offer.Offer) gin.H {
	view := gin.H{
		"id":          o.ID,
		"business_id": o.BusinessID,
		"status":      o.Status,
		"package": gin.H{
			"weight_kg":    o.Package.WeightKg,
			"fragile":      o.Package.Fragile,
			"instructions": o.Package.Instructions,
		},
		"pickup": gin.H{
			"address":  o.Pickup.Address,
			"position": o.Pickup.Position,
		},
		"delivery": gin.H{
			"address":  o.Delivery.Address,
			"position": o.Delivery.Position,
		},
		"payment": gin.H{
			"amount":   o.Payment.Amount,
			"currency": o.Payment.Currency,
			"method":   o.Payment.Method,
		},
		"estimated_distance_m":   o.EstimatedDistanceM,
		"estimated_duration_min": o.EstimatedDurationMin,
		"created_at":             o.CreatedAt,
	}
	if o.RequiredVehicle != "" {
		view["required_vehicle"] = o.RequiredVehicle
	}
	if o.MinRating > 0 {
		view["min_rating"] = o.MinRating
	}
	if o.AcceptedBy != nil {
		view["accepted_by"] = o.AcceptedBy
	}
	if o.Deadline != nil {
		view["deadline"] = o.Deadline
	}
	for status, at := range map[string]*time.Time{
		"accepted_at":   o.AcceptedAt,
		"picked_up_at":  o.PickedUpAt,
		"in_transit_at": o.InTransitAt,
		"delivered_at":  o.DeliveredAt,
		"completed_at":  o.CompletedAt,
		"cancelled_at":  o.CancelledAt,
	} {
		if at != nil {
			view[status] = at
		}
	}
	return view
}
