package main

import (
	"context"
	"log"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/activity"
	"github.com/julis-sh/intranet/shared/agenda"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/docgen"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
	"github.com/julis-sh/intranet/shared/server"
	"github.com/julis-sh/intranet/shared/storage"
)

// pdfConverter turns a generated DOCX into PDF
type pdfConverter interface {
	ConvertBytes(ctx context.Context, docx []byte, name string) ([]byte, error)
}

type deps struct {
	db          *gorm.DB
	templateDir string
	roster      agenda.Roster
	store       storage.Store
	filler      *docgen.Filler
	converter   pdfConverter
	auth        *middleware.AuthMiddleware
	audit       *audit.Logger
}

func main() {
	cfg, db, err := server.Init()
	if err != nil {
		log.Fatal("Failed to initialize meetings service:", err)
	}

	store, err := storage.New(cfg.Storage)
	if err != nil {
		log.Fatal("Failed to initialize upload store:", err)
	}

	publisher := activity.NewPublisher(cfg.KafkaBroker)
	defer publisher.Close()

	tokens := security.NewTokenManager(cfg.JWT.Secret, cfg.JWT.AccessTokenTTL)
	d := &deps{
		db:          db,
		templateDir: cfg.Storage.TemplateDir,
		roster:      agenda.Roster{Names: cfg.BoardRoster, BoardSize: cfg.BoardSize},
		store:       store,
		filler:      docgen.NewFiller(cfg.Docx),
		converter:   docgen.NewConverter(),
		auth:        middleware.NewAuthMiddleware(db, tokens, server.Sessions(cfg.Redis)),
		audit:       audit.NewLogger(publisher),
	}

	router := server.NewEngine("Meetings")
	registerRoutes(router, d)

	if err := server.Run("Meetings", config.Port("meetings", "8004"), router); err != nil {
		log.Fatal("Failed to start meetings service:", err)
	}
}

func registerRoutes(router *gin.Engine, d *deps) {
	meetings := router.Group("/meetings")
	meetings.Use(d.auth.RequireAuth(), d.auth.RequireRole(rbac.RoleMitarbeiter))
	{
		meetings.GET("", handleListMeetings(d))
		meetings.GET("/teilnehmer-optionen/:variant", handleAttendeeOptions(d))
		meetings.POST("", d.auth.RequireRole(rbac.RoleLeitung), handleCreateMeeting(d))
		meetings.GET("/:id", handleGetMeeting(d))
		meetings.PUT("/:id", handleUpdateMeeting(d))
		meetings.DELETE("/:id", d.auth.RequireRole(rbac.RoleAdmin), handleDeleteMeeting(d))

		meetings.POST("/:id/generate-invitation", handleGenerate(d, invitation))
		meetings.POST("/:id/generate-protocol", handleGenerate(d, protocol))
		meetings.GET("/:id/einladung.pdf", handleDownloadPDF(d, invitation))
		meetings.GET("/:id/protokoll.pdf", handleDownloadPDF(d, protocol))
	}
}
