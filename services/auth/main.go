package main

import (
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/activity"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/mailer"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/server"
	"github.com/julis-sh/intranet/shared/tenancy"
	"github.com/julis-sh/intranet/shared/utils"
)

// deps bundles what the handlers need
type deps struct {
	db       *gorm.DB
	cfg      *config.AppConfig
	tokens   *security.TokenManager
	sessions *utils.SessionStore
	auth     *middleware.AuthMiddleware
	resolver *tenancy.Resolver
	mailer   mailer.Sender
	audit    *audit.Logger
}

func main() {
	cfg, db, err := server.Init()
	if err != nil {
		log.Fatal("Failed to initialize auth service:", err)
	}

	publisher := activity.NewPublisher(cfg.KafkaBroker)
	defer publisher.Close()

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	sessions := server.Sessions(cfg.Redis)

	d := &deps{
		db:       db,
		cfg:      cfg,
		tokens:   tokens,
		sessions: sessions,
		auth:     middleware.NewAuthMiddleware(db, tokens, sessions),
		resolver: tenancy.NewResolver(tenancy.NewGormStore(db)),
		mailer:   mailer.New(cfg.SMTP),
		audit:    audit.NewLogger(publisher),
	}

	router := server.NewEngine("Auth")
	registerRoutes(router, d)

	if err := server.Run("Auth", config.Port("auth", "8001"), router); err != nil {
		log.Fatal("Failed to start auth service:", err)
	}
}

func registerRoutes(router *gin.Engine, d *deps) {
	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/login", handleLogin(d))
		authRoutes.POST("/logout", d.auth.RequireAuth(), handleLogout(d))
		authRoutes.GET("/me", d.auth.RequireAuth(), handleMe(d))
		authRoutes.PATCH("/me", d.auth.RequireAuth(), handleUpdateProfile(d))
		authRoutes.POST("/refresh", d.auth.RequireAuth(), handleRefresh(d))
		authRoutes.POST("/change-password", d.auth.RequireAuth(), handleChangePassword(d))
	}

	admin := router.Group("")
	admin.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleAdmin))
	{
		admin.GET("/users", handleListUsers(d.db))
		admin.POST("/users", handleCreateUser(d))
		admin.GET("/users/:id", handleGetUser(d.db))
		admin.PUT("/users/:id", handleUpdateUser(d))
		admin.DELETE("/users/:id", handleDeleteUser(d))

		admin.GET("/audit", handleListAudit(d.db))
		admin.POST("/settings/smtp-test", handleSMTPTest(d.mailer))
	}
}
