package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"gpu-booking-backend/config"
	"gpu-booking-backend/internal/booking"
	"gpu-booking-backend/internal/model"
	"gpu-booking-backend/internal/mw"
	"gpu-booking-backend/internal/store"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(cfg config.ServerConfig, svc *booking.Service, s store.Store, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()
	r.Use(corsMiddleware(cfg.AllowedOrigins))
	r.Use(mw.RequestID())

	handler := NewHandler(svc, s, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	// 公告快取，管理員修改公告時清空
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	caching := mw.Cache(cacheStore, ttl)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/notifications/active", caching, handler.GetActiveNotifications)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	user := api.Group("")
	user.Use(mw.RequireUser(), mw.NoCache())
	{
		user.POST("/users", handler.PostUser)
		user.GET("/users/:email/bookings", handler.GetUserBookings)

		user.GET("/machines", handler.GetMachines)
		user.GET("/machines/:id/check-access", handler.CheckAccess)
		user.GET("/machines/:id/schedule", handler.GetSchedule)
		user.GET("/machines/:id/usage-status", handler.GetUsageStatus)
		user.GET("/machines/:id/restrictions", handler.GetMachineRestrictions)

		user.POST("/bookings", handler.PostBooking)
		user.DELETE("/bookings/:id", handler.CancelBooking)

		user.GET("/subscriptions", handler.GetSubscription)
		user.PUT("/subscriptions", handler.PutSubscription)
		user.DELETE("/subscriptions", handler.DeleteSubscription)
	}

	admin := user.Group("/admin")
	admin.Use(mw.RequireRole(svc, model.RoleManager, model.RoleAdmin), mw.SanitizeJSON())
	{
		admin.GET("/machines", handler.AdminListMachines)
		admin.POST("/machines", handler.AdminCreateMachine)
		admin.PUT("/machines/:id", handler.AdminUpdateMachine)
		admin.DELETE("/machines/:id", handler.AdminDeleteMachine)

		admin.POST("/machines/:id/restrictions", handler.AdminSaveRestriction)
		admin.DELETE("/machines/:id/restrictions/:rid", handler.AdminDeleteRestriction)
		admin.GET("/restrictions", handler.AdminListRestrictions)

		notifications := admin.Group("/notifications", mw.Invalidate(cacheStore))
		notifications.GET("", handler.AdminListNotifications)
		notifications.POST("", handler.AdminCreateNotification)
		notifications.PUT("/:id", handler.AdminUpdateNotification)
		notifications.DELETE("/:id", handler.AdminDeleteNotification)

		admin.GET("/bookings", handler.AdminListBookings)
		admin.DELETE("/bookings/:id", handler.AdminDeleteBooking)

		admin.GET("/users", handler.AdminListUsers)
		admin.PUT("/users/role", handler.AdminUpdateRole)
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", mw.UserEmailHeader, mw.RequestIDHeader},
		ExposeHeaders: []string{"Content-Length", mw.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	return cors.New(cfg)
}
