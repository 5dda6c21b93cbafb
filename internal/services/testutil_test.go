package services

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/database"
)

const testJWTExpiry = time.Hour

// testProvider wires the provider to an in-memory sqlite database with the
// schema migrated.
func testProvider(t *testing.T) *database.Provider {
	t.Helper()
	return database.NewProvider("file::memory:", func() (*gorm.DB, error) {
		db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
		if err != nil {
			return nil, err
		}
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	})
}

func testConfig() *config.Config {
	return &config.Config{
		JWTSecret:      "test-secret",
		JWTExpiry:      testJWTExpiry,
		GoogleClientID: "client-id.apps.googleusercontent.com",
		AdminEmail:     "admin@stockbud.app",
		TimerDays:      160,
	}
}

// fakeVerifier returns canned claims or a canned error.
type fakeVerifier struct {
	claims *GoogleTokenClaims
	err    error
}

func (f *fakeVerifier) Verify(_, _ string) (*GoogleTokenClaims, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.claims, nil
}

func mustAcquire(t *testing.T, p *database.Provider) *gorm.DB {
	t.Helper()
	db, err := p.Acquire(context.Background())
	require.NoError(t, err)
	return db
}
