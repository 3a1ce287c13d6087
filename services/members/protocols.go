package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
	"github.com/julis-sh/intranet/shared/audit"
	"github.com/julis-sh/intranet/shared/middleware"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/storage"
	"github.com/julis-sh/intranet/shared/utils"
)

const (
	protocolPrefix   = "protokolle"
	maxProtocolBytes = 20 * 1024 * 1024
)

var protocolExtensions = []string{".pdf", ".docx", ".doc"}

func loadProtocol(c *gin.Context, db *gorm.DB) (*models.ChapterProtocol, error) {
	id, err := utils.ParseUUIDParam(c, "id")
	if err != nil {
		return nil, err
	}
	var p models.ChapterProtocol
	if err := utils.FindByID(db, &p, id, "Protokoll"); err != nil {
		return nil, err
	}
	return &p, nil
}

func handleListProtocols(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		db := d.db.WithContext(c.Request.Context())
		chapter, err := loadChapter(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		query := db.Where("chapter_id = ?", chapter.ID)
		if typ := c.Query("typ"); typ != "" {
			query = query.Where("type = ?", typ)
		}
		var protocols []models.ChapterProtocol
		if err := query.Order(`"date" DESC`).Find(&protocols).Error; err != nil {
			utils.RespondError(c, apperr.Internal("failed to list protocols", err))
			return
		}
		utils.OKResponse(c, "Protocols retrieved successfully", protocols)
	}
}

// handleCreateProtocol takes a multipart form with titel, datum, typ, an
// optional beschreibung and an optional file in datei
func handleCreateProtocol(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		chapter, err := loadChapter(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		protocol := models.ChapterProtocol{
			ChapterID:    chapter.ID,
			Title:        c.PostForm("titel"),
			Type:         c.PostForm("typ"),
			Description:  c.PostForm("beschreibung"),
			UploadedByID: user.ID,
		}
		if protocol.Title == "" || protocol.Type == "" {
			utils.BadRequestResponse(c, "titel, datum and typ are required")
			return
		}
		if protocol.Date, err = models.ParseDate(c.PostForm("datum")); err != nil {
			utils.BadRequestResponse(c, "datum must be a date as YYYY-MM-DD")
			return
		}

		if file, err := c.FormFile("datei"); err == nil && file.Filename != "" {
			if err := storage.CheckUpload(file.Filename, file.Size, protocolExtensions, maxProtocolBytes); err != nil {
				utils.RespondError(c, err)
				return
			}
			src, err := file.Open()
			if err != nil {
				utils.RespondError(c, apperr.Internal("failed to read upload", err))
				return
			}
			key := storage.NewKey(protocolPrefix, file.Filename)
			err = d.store.Put(ctx, key, src)
			src.Close()
			if err != nil {
				utils.RespondError(c, apperr.Internal("failed to store upload", err))
				return
			}
			protocol.StorageKey = key
			protocol.OriginalFilename = file.Filename
		} else if err != nil && err != http.ErrMissingFile {
			utils.BadRequestResponse(c, "Invalid upload")
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(&protocol).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionUpload, "kv_protokoll", &protocol.ID, "Protokoll hochgeladen: "+protocol.Title))
			return err
		})
		if err != nil {
			removeStored(ctx, d.store, protocol.StorageKey)
			utils.RespondError(c, apperr.Internal("failed to create protocol", err))
			return
		}
		d.audit.Publish(row)

		utils.CreatedResponse(c, "Protocol created successfully", protocol)
	}
}

func handleDownloadProtocol(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		protocol, err := loadProtocol(c, d.db.WithContext(ctx))
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		if !protocol.HasFile() {
			utils.NotFoundResponse(c, "Keine Datei zu diesem Protokoll vorhanden.")
			return
		}
		rc, err := d.store.Get(ctx, protocol.StorageKey)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		defer rc.Close()

		c.DataFromReader(http.StatusOK, -1, "application/octet-stream", rc, map[string]string{
			"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, protocol.OriginalFilename),
		})
	}
}

func handleDeleteProtocol(d *deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := middleware.CurrentUser(c)
		if err != nil {
			utils.RespondError(c, err)
			return
		}
		ctx := c.Request.Context()
		db := d.db.WithContext(ctx)
		protocol, err := loadProtocol(c, db)
		if err != nil {
			utils.RespondError(c, err)
			return
		}

		var row *models.AuditLog
		err = db.Transaction(func(tx *gorm.DB) error {
			if err := tx.Delete(protocol).Error; err != nil {
				return err
			}
			row, err = d.audit.Record(tx, audit.For(c, user.ID, models.ActionDelete, "kv_protokoll", &protocol.ID, "Protokoll gelöscht: "+protocol.Title))
			return err
		})
		if err != nil {
			utils.RespondError(c, apperr.Internal("failed to delete protocol", err))
			return
		}
		d.audit.Publish(row)
		removeStored(ctx, d.store, protocol.StorageKey)

		utils.OKResponse(c, "Protocol deleted successfully", nil)
	}
}

// removeStored deletes a stored file whose row is gone. Failures only leave
// an orphaned file behind.
func removeStored(ctx context.Context, store storage.Store, key string) {
	if key == "" {
		return
	}
	if err := store.Delete(ctx, key); err != nil {
		logrus.WithFields(logrus.Fields{
			"key":   key,
			"error": err.Error(),
		}).Warn("Failed to remove stored file")
	}
}
