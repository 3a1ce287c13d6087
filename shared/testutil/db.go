// Package testutil provides fixtures for service tests backed by an in-memory
// SQLite database.
package testutil

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/julis-sh/intranet/shared/config"
	"github.com/julis-sh/intranet/shared/models"
	"github.com/julis-sh/intranet/shared/rbac"
	"github.com/julis-sh/intranet/shared/security"
)

// TestSecret signs tokens issued by Token
const TestSecret = "test-secret"

// NewDB opens a migrated in-memory database that lives as long as the test
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection would get its own empty in-memory database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, config.Migrate(db))
	return db
}

// CreateTenant inserts an active tenant below parent
func CreateTenant(t *testing.T, db *gorm.DB, name string, parent *models.Tenant) *models.Tenant {
	t.Helper()
	tenant := &models.Tenant{
		Name:     name,
		Slug:     slug(name),
		Level:    models.LevelKreisverband,
		IsActive: true,
	}
	if parent == nil {
		tenant.Level = models.LevelLandesverband
	} else {
		tenant.ParentID = &parent.ID
	}
	require.NoError(t, db.Create(tenant).Error)
	return tenant
}

// CreateUser inserts an active user with password "Geheim123"
func CreateUser(t *testing.T, db *gorm.DB, username string, role rbac.Role, tenant *models.Tenant) *models.User {
	t.Helper()
	hash, err := security.HashPassword("Geheim123")
	require.NoError(t, err)
	user := &models.User{
		Username:     username,
		Email:        username + "@example.org",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if tenant != nil {
		user.TenantID = &tenant.ID
	}
	require.NoError(t, db.Create(user).Error)
	if tenant != nil {
		user.Tenant = tenant
	}
	return user
}

// Tokens returns the token manager matching Token
func Tokens() *security.TokenManager {
	return security.NewTokenManager(TestSecret, time.Hour)
}

// Token issues a bearer header value for user
func Token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := Tokens().Issue(user.ID, user.Username, user.Role)
	require.NoError(t, err)
	return "Bearer " + token
}

func slug(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		ch := name[i]
		switch {
		case ch >= 'A' && ch <= 'Z':
			out = append(out, ch+'a'-'A')
		case ch >= 'a' && ch <= 'z', ch >= '0' && ch <= '9':
			out = append(out, ch)
		default:
			out = append(out, '-')
		}
	}
	return string(out) + "-" + uuid.NewString()[:8]
}
