// README: HTTP route registration.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"swoop/internal/http/handlers"
	"swoop/internal/http/middleware"
	"swoop/internal/infra"
)

type RouterDeps struct {
	Offers   handlers.OfferService
	Matcher  handlers.Matcher
	Riders   handlers.RiderDirectory
	Verifier infra.TokenVerifier
	Log      *zap.Logger
}

func NewRouter(deps RouterDeps) http.Handler {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(deps.Log), middleware.Logging(deps.Log))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api", middleware.Auth(deps.Verifier))

	offerHandler := handlers.NewOfferHandler(deps.Offers)
	api.POST("/offers", offerHandler.Create)
	api.GET("/offers/:id", offerHandler.Get)
	api.GET("/offers/:id/history", offerHandler.History)
	api.POST("/offers/:id/accept", offerHandler.Accept)
	api.POST("/offers/:id/transition", offerHandler.Transition)

	matchingHandler := handlers.NewMatchingHandler(deps.Matcher)
	api.GET("/offers/nearby", matchingHandler.NearbyOffers)
	api.GET("/riders/nearby", matchingHandler.NearbyRiders)

	riderHandler := handlers.NewRiderHandler(deps.Riders)
	api.PUT("/riders/me", riderHandler.Update)
	api.GET("/riders/me", riderHandler.Me)

	return r
}
