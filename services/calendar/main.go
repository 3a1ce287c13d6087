package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/activity"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/eventflow"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/server"
	"github.com/julis-sh/intranet/shared/tenancy"
)

type deps struct {
	db       *gorm.DB
	public   config.PublicConfig
	contact  string
	auth     *middleware.AuthMiddleware
	resolver *tenancy.Resolver
	flow     *eventflow.Flow
	audit    *audit.Logger
}

func main() {
	cfg, db, err := server.Init()
	if err != nil {
		log.Fatal("Failed to initialize calendar service:", err)
	}

	publisher := activity.NewPublisher(cfg.KafkaBroker)
	defer publisher.Close()

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	resolver := tenancy.NewResolver(tenancy.NewGormStore(db))
	d := &deps{
		db:       db,
		public:   cfg.Public,
		contact:  cfg.SMTP.Sender(),
		auth:     middleware.NewAuthMiddleware(db, tokens, server.Sessions(cfg.Redis)),
		resolver: resolver,
		flow:     eventflow.New(resolver),
		audit:    audit.NewLogger(publisher),
	}

	router := server.NewEngine("Calendar")
	registerRoutes(router, d)

	if err := server.Run("Calendar", config.Port("calendar", "8003"), router); err != nil {
		log.Fatal("Failed to start calendar service:", err)
	}
}

func registerRoutes(router *gin.Engine, d *deps) {
	events := router.Group("/events")
	events.Use(d.auth.RequireAuth())
	{
		events.GET("", handleListEvents(d))
		events.POST("", handleCreateEvent(d))
		events.GET("/:id", handleGetEvent(d))
		events.PUT("/:id", handleUpdateEvent(d))
		events.DELETE("/:id", handleDeleteEvent(d))
	}

	admin := router.Group("/admin/events")
	admin.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleVorstand))
	{
		admin.GET("/pending", handleListPending(d))
		admin.POST("/:id/approve", handleApproveEvent(d))
		admin.POST("/:id/reject", handleRejectEvent(d))
	}

	categories := router.Group("/categories")
	categories.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleVorstand))
	{
		categories.GET("", handleListCategories(d))
		categories.POST("", handleCreateCategory(d))
		categories.GET("/:id", handleGetCategory(d))
		categories.PUT("/:id", handleUpdateCategory(d))
		categories.DELETE("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleDeactivateCategory(d))
	}

	// No authentication on the public calendar
	public := router.Group("/public")
	{
		public.GET("/calendars", handlePublicCalendars(d))
		public.GET("/events", handlePublicEvents(d))
		public.GET("/events.ics", handlePublicICal(d))
		public.GET("/events/:id", handlePublicEvent(d))
		public.POST("/events", handleSubmitPublicEvent(d))
		public.GET("/categories", handlePublicCategories(d))
	}
}
