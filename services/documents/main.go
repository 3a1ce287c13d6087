package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/activity"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/docgen"
	"github.com/julis-sh/intranet/shared/mailer"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/server"
	"github.com/julis-sh/intranet/shared/storage"
)

// pdfConverter turns an exported DOCX into PDF
type pdfConverter interface {
	ConvertBytes(ctx context.Context, docx []byte, name string) ([]byte, error)
}

type deps struct {
	db        *gorm.DB
	store     storage.Store
	converter pdfConverter
	notify    *notifier
	auth      *middleware.AuthMiddleware
	audit     *audit.Logger
}

func main() {
	cfg, db, err := server.Init()
	if err != nil {
		log.Fatal("Failed to initialize documents service:", err)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize upload store:", err)
	}

	publisher := activity.NewPublisher(cfg.KafkaBroker)
	defer publisher.Close()

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	d := &deps{
		db:        db,
		store:     store,
		converter: docgen.NewConverter(),
		notify: &notifier{
			mail:       mailer.New(cfg.SMTP),
			recipients: cfg.AmendmentNotifyEmails,
			appURL:     cfg.AppURL,
		},
		auth:  middleware.NewAuthMiddleware(db, tokens, server.Sessions(cfg.Redis)),
		audit: audit.NewLogger(publisher),
	}

	router := server.NewEngine("Documents")
	registerRoutes(router, d)

	if err := server.Run("Documents", config.Port("documents", "8006"), router); err != nil {
		log.Fatal("Failed to start documents service:", err)
	}
}

func registerRoutes(router *gin.Engine, d *deps) {
	docs := router.Group("/documents")
	docs.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleVorstand))
	{
		docs.GET("", handleListDocuments(d))
		docs.POST("", d.auth.RequireRole(rbac.RoleLeitung), handleCreateDocument(d))
		docs.GET("/:id", handleGetDocument(d))
		docs.PUT("/:id", d.auth.RequireRole(rbac.RoleLeitung), handleUpdateDocument(d))
		docs.DELETE("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleDeleteDocument(d))
		docs.POST("/:id/upload", d.auth.RequireRole(rbac.RoleLeitung), handleUploadDocument(d))
		docs.GET("/:id/datei", handleDownloadDocument(d))

		docs.GET("/:id/aenderungsantraege", handleListAmendments(d))
		docs.POST("/:id/aenderungsantraege", handleCreateAmendment(d))
	}

	amendments := docs.Group("/aenderungsantraege/:id")
	{
		amendments.PUT("", d.auth.RequireRole(rbac.RoleLeitung), handleUpdateAmendment(d))
		amendments.DELETE("", d.auth.RequireRole(rbac.RoleAdmin), handleDeleteAmendment(d))
		amendments.POST("/send-email", d.auth.RequireRole(rbac.RoleLeitung), handleSendAmendmentEmail(d))
		amendments.GET("/export.docx", handleExportDOCX(d))
		amendments.GET("/export.pdf", handleExportPDF(d))

		amendments.GET("/stellen", handleListPassages(d))
		amendments.POST("/stellen", handleCreatePassage(d))
		amendments.PUT("/stellen/:passage", d.auth.RequireRole(rbac.RoleLeitung), handleUpdatePassage(d))
		amendments.DELETE("/stellen/:passage", d.auth.RequireRole(rbac.RoleAdmin), handleDeletePassage(d))
	}
}
