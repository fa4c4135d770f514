package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"fleet-status-backend/config"
	"fleet-status-backend/internal/mw"
	"fleet-status-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, webpushOptions *webpush.Options, cfg *config.Config) *gin.Engine {
	return newRouter(NewHandler(s, webpushOptions, cfg.Report), &cfg.Server)
}

func newRouter(handler *Handler, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()
	s := handler.store

	if len(cfg.AllowedOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
		corsCfg.AddAllowHeaders(mw.RequestIDHeader)
		corsCfg.AddExposeHeaders(mw.RequestIDHeader, "Content-Disposition")
		r.Use(cors.New(corsCfg))
	}
	r.Use(mw.RequestID())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/fleets", caching, GetFleets(s))
		api.GET("/fleets/:fleet_id/machines", caching, GetMachineStatus(s))

		api.GET("/machines/:machine_id/intervals", handler.GetIntervals)
		api.GET("/machines/:machine_id/operational-report", caching, handler.GetOperationalReport)
		api.GET("/machines/:machine_id/operational-report/export", handler.ExportOperationalReport)
		api.POST("/operational-report", handler.PostOperationalReport)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
