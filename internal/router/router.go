// Package router registers the HTTP routes of the reservation service.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/train-reservation/internal/config"
	"github.com/iliyamo/train-reservation/internal/handler"
	"github.com/iliyamo/train-reservation/internal/middleware"
)

// Options carries the Redis-backed middleware settings.  A nil Redis
// client turns caching and rate limiting off.
type Options struct {
	Redis     *redis.Client
	Cache     config.CacheConfig
	RateLimit config.RateLimitConfig
}

// RegisterRoutes registers health and metrics endpoints.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterReservations registers the train and ticket API under /v1.
// Search and train lookups are cached; every write purges the cache so
// availability is never served stale after a booking or cancellation.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, opts Options) {
	cache := middleware.NewRedisCache(opts.Cache, opts.Redis)
	purge := middleware.NewCachePurger(opts.Cache, opts.Redis)
	limit := middleware.NewTokenBucket(opts.RateLimit, opts.Redis)

	v1 := e.Group("/v1")

	v1.GET("/trains", h.SearchTrains, cache)
	v1.GET("/trains/:id", h.GetTrain, cache)
	v1.POST("/trains/:id/tickets", h.BookTicket, limit, purge)
	v1.POST("/trains/:id/reconcile", h.ReconcileTrain, purge)

	v1.GET("/tickets", h.ListTickets)
	v1.GET("/tickets/:id", h.GetTicket)
	v1.PATCH("/tickets/:id", h.UpdateTicket)
	v1.POST("/tickets/:id/cancel", h.CancelTicket, purge)
}
