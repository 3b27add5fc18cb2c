// README: Matcher handlers: the nearby-offers feed and nearby-rider lookup.
package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"swoop/internal/modules/matching"
	"swoop/internal/types"
)

// Matcher is the slice of the matching module the handlers need.
type Matcher interface {
	FindNearbyOffers(ctx context.Context, q matching.Query) (*matching.Page, error)
	NearbyRiders(ctx context.Context, p types.Point, radiusM float64) ([]types.ID, error)
}

type MatchingHandler struct {
	matcher Matcher
}

func NewMatchingHandler(matcher Matcher) *MatchingHandler {
	return &MatchingHandler{matcher: matcher}
}

func (h *MatchingHandler) NearbyOffers(c *gin.Context) {
	q, err := parseNearbyOffersQuery(c)
	if err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}

	page, err := h.matcher.FindNearbyOffers(c.Request.Context(), q)
	if err != nil {
		writeMatchingError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *MatchingHandler) NearbyRiders(c *gin.Context) {
	lng, err := requireFloat(c, "lng")
	if err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}
	lat, err := requireFloat(c, "lat")
	if err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}
	radius, err := optionalFloat(c, "radius_m")
	if err != nil {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}

	ids, err := h.matcher.NearbyRiders(c.Request.Context(), types.Point{Lng: lng, Lat: lat}, radius)
	if err != nil {
		writeMatchingError(c, err)
		return
	}
	if ids == nil {
		ids = []types.ID{}
	}
	c.JSON(http.StatusOK, gin.H{"rider_ids": ids})
}

// parseNearbyOffersQuery builds a matching.Query from query parameters. Any
// parse failure names the offending parameter; lng and lat are required.
func parseNearbyOffersQuery(c *gin.Context) (matching.Query, error) {
	var q matching.Query
	var err error

	if q.Center.Lng, err = requireFloat(c, "lng"); err != nil {
		return q, err
	}
	if q.Center.Lat, err = requireFloat(c, "lat"); err != nil {
		return q, err
	}
	if q.RadiusM, err = optionalFloat(c, "radius_m"); err != nil {
		return q, err
	}
	if q.MinPayment, err = optionalInt64(c, "min_payment"); err != nil {
		return q, err
	}
	if q.MaxPayment, err = optionalInt64(c, "max_payment"); err != nil {
		return q, err
	}
	if q.MaxWeightKg, err = optionalFloat(c, "max_weight_kg"); err != nil {
		return q, err
	}
	page, err := optionalInt64(c, "page")
	if err != nil {
		return q, err
	}
	limit, err := optionalInt64(c, "limit")
	if err != nil {
		return q, err
	}
	q.Page = int(page)
	q.Limit = int(limit)

	q.FragileOnly = c.Query("fragile_only") == "true"
	q.Vehicle = c.Query("vehicle")
	q.Sort = matching.SortKey(c.Query("sort"))
	q.Descending = c.Query("order") == "desc"

	if raw := c.Query("deadline_before"); raw != "" {
		cutoff, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return q, fmt.Errorf("malformed query parameter %q: %v", "deadline_before", err)
		}
		q.DeadlineBefore = &cutoff
	}
	return q, nil
}

func requireFloat(c *gin.Context, key string) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, fmt.Errorf("missing query parameter %q", key)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed query parameter %q", key)
	}
	return v, nil
}

func optionalFloat(c *gin.Context, key string) (float64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed query parameter %q", key)
	}
	return v, nil
}

func optionalInt64(c *gin.Context, key string) (int64, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed query parameter %q", key)
	}
	return v, nil
}
