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
	"github.com/julis-sh/intranet/shared/storage"
)

type deps struct {
	db     *gorm.DB
	store  storage.Store
	mail   mailer.Sender
	notify *dispatcher
	auth   *middleware.AuthMiddleware
	audit  *audit.Logger
}

func newDeps(db *gorm.DB, store storage.Store, mail mailer.Sender, auth *middleware.AuthMiddleware, logger *audit.Logger) *deps {
	return &deps{
		db:     db,
		store:  store,
		mail:   mail,
		notify: &dispatcher{store: store, mail: mail},
		auth:   auth,
		audit:  logger,
	}
}

func main() {
	cfg, db, err := server.Init()
	if err != nil {
		log.Fatal("Failed to initialize members service:", err)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize upload store:", err)
	}

	publisher := activity.NewPublisher(cfg.KafkaBroker)
	defer publisher.Close()

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	d := newDeps(
		db,
		store,
		mailer.New(cfg.SMTP),
		middleware.NewAuthMiddleware(db, tokens, server.Sessions(cfg.Redis)),
		audit.NewLogger(publisher),
	)

	router := server.NewEngine("Members")
	registerRoutes(router, d)

	if err := server.Run("Members", config.Port("members", "8005"), router); err != nil {
		log.Fatal("Failed to start members service:", err)
	}
}

func registerRoutes(router *gin.Engine, d *deps) {
	chapters := router.Group("/kreisverband")
	chapters.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleMitarbeiter))
	{
		chapters.GET("", handleListChapters(d))
		chapters.GET("/landesverband/vorstand-uebersicht", d.auth.RequireRole(rbac.RoleVorstand), handleBoardOverview(d))
		chapters.POST("", d.auth.RequireRole(rbac.RoleAdmin), handleCreateChapter(d))
		chapters.GET("/:id", handleGetChapter(d))
		chapters.PUT("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleUpdateChapter(d))
		chapters.DELETE("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleDeactivateChapter(d))

		chapters.GET("/:id/vorstand", handleListBoardMembers(d))
		chapters.POST("/:id/vorstand", d.auth.RequireRole(rbac.RoleVorstand), handleCreateBoardMember(d))
		chapters.PUT("/vorstand/:id", d.auth.RequireRole(rbac.RoleVorstand), handleUpdateBoardMember(d))
		chapters.DELETE("/vorstand/:id", d.auth.RequireRole(rbac.RoleVorstand), handleDeleteBoardMember(d))

		chapters.GET("/:id/protokolle", handleListProtocols(d))
		chapters.POST("/:id/protokolle", handleCreateProtocol(d))
		chapters.GET("/protokolle/:id/datei", handleDownloadProtocol(d))
		chapters.DELETE("/protokolle/:id", handleDeleteProtocol(d))
	}

	changes := router.Group("/member-changes")
	changes.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleVorstand))
	{
		changes.GET("", handleListChanges(d))
		changes.GET("/:id", handleGetChange(d))
		changes.POST("", d.auth.RequireRole(rbac.RoleLeitung), handleCreateChange(d))
		changes.POST("/:id/send", d.auth.RequireRole(rbac.RoleLeitung), handleSendChange(d))
		changes.POST("/:id/resend", d.auth.RequireRole(rbac.RoleLeitung), handleResendChange(d))
	}

	templates := router.Group("/email-templates")
	templates.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleLeitung))
	{
		templates.GET("", handleListTemplates(d))
		templates.POST("", handleCreateTemplate(d))
		templates.GET("/:id", handleGetTemplate(d))
		templates.PUT("/:id", handleUpdateTemplate(d))
		templates.DELETE("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleDeleteTemplate(d))
		templates.POST("/:id/test", handleTestTemplate(d))
		templates.PUT("/:id/attachment", handleUploadAttachment(d))
		templates.DELETE("/:id/attachment", d.auth.RequireRole(rbac.RoleAdmin), handleDeleteAttachment(d))
	}

	recipients := router.Group("/email-recipients")
	recipients.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleLeitung))
	{
		recipients.GET("", handleListRecipients(d))
		recipients.POST("", handleCreateRecipient(d))
		recipients.GET("/:id", handleGetRecipient(d))
		recipients.PUT("/:id", handleUpdateRecipient(d))
		recipients.DELETE("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleDeleteRecipient(d))
	}
}
