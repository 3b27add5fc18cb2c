// README: Shared handler utilities; maps module errors to HTTP statuses and
// machine-readable codes.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"swoop/internal/modules/matching"
	"swoop/internal/modules/offer"
)

func writeOfferError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, offer.ErrValidation):
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
	case errors.Is(err, offer.ErrNotFound):
		abort(c, http.StatusNotFound, "OFFER_NOT_FOUND", err)
	case errors.Is(err, offer.ErrNotAvailable):
		abort(c, http.StatusConflict, "OFFER_NOT_AVAILABLE", err)
	case errors.Is(err, offer.ErrNotEligible):
		abort(c, http.StatusForbidden, "RIDER_NOT_ELIGIBLE", err)
	case errors.Is(err, offer.ErrUnauthorized):
		abort(c, http.StatusForbidden, "NOT_AUTHORIZED", err)
	case errors.Is(err, offer.ErrInvalidState):
		abort(c, http.StatusConflict, "ILLEGAL_TRANSITION", err)
	case errors.Is(err, offer.ErrConflict):
		abort(c, http.StatusConflict, "CONCURRENT_MODIFICATION", err)
	default:
		abort(c, http.StatusInternalServerError, "INTERNAL", errors.New("internal error"))
	}
}

func writeMatchingError(c *gin.Context, err error) {
	if errors.Is(err, matching.ErrValidation) {
		abort(c, http.StatusBadRequest, "VALIDATION_FAILED", err)
		return
	}
	abort(c, http.StatusInternalServerError, "INTERNAL", errors.New("internal error"))
}

func abort(c *gin.Context, status int, code string, err error) {
	c.AbortWithStatusJSON(status, gin.H{"code": code, "error": err.Error()})
}
