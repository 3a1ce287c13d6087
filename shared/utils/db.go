package utils

import (
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/julis-sh/intranet/shared/apperr"
)

// FindByID loads one row by primary key into dest, reporting a miss as
// NotFound(entity)
func FindByID(db *gorm.DB, dest interface{}, id uuid.UUID, entity string) error {
	err := db.First(dest, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(entity)
	}
	if err != nil {
		return apperr.Internal("failed to fetch "+entity, err)
	}
	return nil
}

// Exists reports whether model has a row matching query
func Exists(db *gorm.DB, model interface{}, query string, args ...interface{}) (bool, error) {
	var count int64
	if err := db.Model(model).Where(query, args...).Count(&count).Error; err != nil {
		return false, apperr.Internal("failed to query database", err)
	}
	return count > 0, nil
}
