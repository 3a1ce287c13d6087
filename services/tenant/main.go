package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/activity"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/server"
	"github.com/julis-sh/intranet/shared/tenancy"
)

type deps struct {
	db       *gorm.DB
	auth     *middleware.AuthMiddleware
	resolver *tenancy.Resolver
	audit    *audit.Logger
}

func main() {
	cfg, db, err := server.Init()
	if err != nil {
		log.Fatal("Failed to initialize tenant service:", err)
	}

	publisher := activity.NewPublisher(cfg.KafkaBroker)
	defer publisher.Close()

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	d := &deps{
		db:       db,
		auth:     middleware.NewAuthMiddleware(db, tokens, server.Sessions(cfg.Redis)),
		resolver: tenancy.NewResolver(tenancy.NewGormStore(db)),
		audit:    audit.NewLogger(publisher),
	}

	router := server.NewEngine("Tenant")
	registerRoutes(router, d)

	if err := server.Run("Tenant", config.Port("tenant", "8002"), router); err != nil {
		log.Fatal("Failed to start tenant service:", err)
	}
}

func registerRoutes(router *gin.Engine, d *deps) {
	tenants := router.Group("/tenants")
	tenants.Use(d.auth.RequireAuth())
	{
		tenants.GET("", handleGetTenants(d))
		tenants.GET("/tree", handleGetTenantTree(d))
		tenants.GET("/:id", handleGetTenant(d))
		tenants.GET("/:id/users", d.auth.RequireRole(rbac.RoleVorstand), handleGetTenantUsers(d))

		// Admin-only routes
		tenants.POST("", d.auth.RequireRole(rbac.RoleAdmin), handleCreateTenant(d))
		tenants.PUT("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleUpdateTenant(d))
		tenants.DELETE("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleDeactivateTenant(d))
	}
}
