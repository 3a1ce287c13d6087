// Package audit records who changed what, in the database and on the
// activity stream.
package audit

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/activity"
	"github.com/julis-sh/intranet/shared/models"
)

// Entry describes one audited write
type Entry struct {
	UserID     *uuid.UUID
	Action     models.AuditAction
	EntityType string
	EntityID   *uuid.UUID
	Details    string
	IPAddress  string
}

// Logger writes audit rows and forwards them to the activity stream
type Logger struct {
	publisher activity.Publisher
}

// NewLogger creates a logger publishing to p
func NewLogger(p activity.Publisher) *Logger {
	if p == nil {
		p = activity.Noop{}
	}
	return &Logger{publisher: p}
}

// For builds an entry for the acting user of a request
func For(c *gin.Context, userID uuid.UUID, action models.AuditAction, entityType string, entityID *uuid.UUID, details string) Entry {
	return Entry{
		UserID:     &userID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Details:    details,
		IPAddress:  c.ClientIP(),
	}
}

// Record inserts the row through tx, usually inside the transaction of the
// audited write. Call Publish once that transaction committed.
func (l *Logger) Record(tx *gorm.DB, e Entry) (*models.AuditLog, error) {
	row := &models.AuditLog{
		UserID:     e.UserID,
		Action:     e.Action,
		EntityType: e.EntityType,
		EntityID:   e.EntityID,
		Details:    e.Details,
		IPAddress:  e.IPAddress,
	}
	if err := tx.Create(row).Error; err != nil {
		return nil, errors.Wrap(err, "write audit log")
	}
	return row, nil
}

// Publish forwards committed rows to the activity stream
func (l *Logger) Publish(rows ...*models.AuditLog) {
	for _, row := range rows {
		if row == nil {
			continue
		}
		err := l.publisher.Publish(activity.Event{
			ID:         row.ID,
			Action:     string(row.Action),
			EntityType: row.EntityType,
			EntityID:   row.EntityID,
			UserID:     row.UserID,
			Details:    row.Details,
			OccurredAt: row.CreatedAt,
		})
		if err != nil {
			logrus.WithError(err).Warn("Activity event not published")
		}
	}
}

// Log records and publishes in one step for writes outside a transaction
func (l *Logger) Log(db *gorm.DB, e Entry) error {
	row, err := l.Record(db, e)
	if err != nil {
		return err
	}
	l.Publish(row)
	return nil
}
