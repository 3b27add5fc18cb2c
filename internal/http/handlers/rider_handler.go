// README: Rider directory handlers: location/availability updates.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"swoop/internal/http/middleware"
	"swoop/internal/modules/rider"
	"swoop/internal/types"
)

// RiderDirectory is the slice of the rider store the handlers need.
type RiderDirectory interface {
	Upsert(ctx context.Context, snap rider.Snapshot) error
	Snapshot(ctx context.Context, id types.ID) (rider.Snapshot, error)
}

type RiderHandler struct {
	riders RiderDirectory
}

func NewRiderHandler(riders RiderDirectory) *RiderHandler {
	return &RiderHandler{riders: riders}
}

type updateRiderReq struct {
	Lng        float64 `json:"lng"`
	Lat        float64 `json:"lat"`
	Available  bool    `json:"available"`
	Vehicle    string  `json:"vehicle" binding:"required"`
	Rating     float64 `json:"rating"`
	CapacityKg float64 `json:"capacity_kg"`
}

// Update records the caller's own directory entry. Riders cannot write each
// other's state; the id always comes from the verified token.
func (h *RiderHandler) Update(c *gin.Context) {
	var req updateRiderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}
	pos := types.Point{Lng: req.Lng, Lat: req.Lat}
	if !pos.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"code": "VALIDATION_FAILED", "error": "coordinates out of range"})
		return
	}

	snap := rider.Snapshot{
		ID:         types.ID(middleware.CallerUID(c)),
		Position:   pos,
		Available:  req.Available,
		Vehicle:    req.Vehicle,
		Rating:     req.Rating,
		CapacityKg: req.CapacityKg,
	}
	if err := h.riders.Upsert(c.Request.Context(), snap); err != nil {
		abort(c, http.StatusInternalServerError, "INTERNAL", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rider_id": snap.ID, "available": snap.Available})
}

// Me returns the caller's current directory entry.
func (h *RiderHandler) Me(c *gin.Context) {
	snap, err := h.riders.Snapshot(c.Request.Context(), types.ID(middleware.CallerUID(c)))
	if err != nil {
		if err == rider.ErrUnknownRider {
			c.JSON(http.StatusNotFound, gin.H{"code": "RIDER_NOT_FOUND", "error": err.Error()})
			return
		}
		abort(c, http.StatusInternalServerError, "INTERNAL", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"rider_id":    snap.ID,
		"position":    snap.Position,
		"available":   snap.Available,
		"vehicle":     snap.Vehicle,
		"rating":      snap.Rating,
		"capacity_kg": snap.CapacityKg,
		"updated_at":  snap.UpdatedAt,
	})
}
