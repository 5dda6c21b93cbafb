package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/stockbud/stockbud-backend/internal/config"
	"github.com/stockbud/stockbud-backend/internal/models"
)

// ErrMissingDSN is returned when the provider was built without a
// connection string. It is a configuration error and is never retried.
var ErrMissingDSN = errors.New("database: missing connection string")

// OpenFunc establishes a single physical connection.
type OpenFunc func() (*gorm.DB, error)

// Provider hands out one shared *gorm.DB per process. The first caller
// starts the connect attempt; concurrent callers join the same in-flight
// attempt instead of opening duplicate connections. A failed attempt is
// cleared so the next caller starts a fresh retry sequence.
type Provider struct {
	dsn         string
	open        OpenFunc
	maxAttempts int
	baseDelay   time.Duration

	mu       sync.Mutex
	conn     *gorm.DB
	inflight *attempt
}

type attempt struct {
	done chan struct{}
	conn *gorm.DB
	err  error
}

// NewProvider builds a provider around the given open function.
// maxAttempts and baseDelay bound the retry loop for transient failures.
func NewProvider(dsn string, open OpenFunc) *Provider {
	return &Provider{
		dsn:         dsn,
		open:        open,
		maxAttempts: 3,
		baseDelay:   500 * time.Millisecond,
	}
}

// NewPostgresProvider wires the provider to a GORM/Postgres open function
// with the standard pool settings.
func NewPostgresProvider(cfg *config.Config) *Provider {
	dsn := cfg.DSN()
	return NewProvider(dsn, func() (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Warn),
			TranslateError: true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to get sql.DB: %w", err)
		}
		sqlDB.SetMaxOpenConns(50)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)

		return db, nil
	})
}

// Acquire returns the shared connection, establishing it on first use.
func (p *Provider) Acquire(ctx context.Context) (*gorm.DB, error) {
	p.mu.Lock()
	if p.conn != nil {
		conn := p.conn
		p.mu.Unlock()
		return conn, nil
	}
	if p.dsn == "" {
		p.mu.Unlock()
		return nil, ErrMissingDSN
	}
	a := p.inflight
	if a == nil {
		a = &attempt{done: make(chan struct{})}
		p.inflight = a
		go p.connect(a)
	}
	p.mu.Unlock()

	select {
	case <-a.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if a.err != nil {
		return nil, a.err
	}
	return a.conn, nil
}

func (p *Provider) connect(a *attempt) {
	var conn *gorm.DB
	var err error
	for i := 1; i <= p.maxAttempts; i++ {
		conn, err = p.open()
		if err == nil {
			break
		}
		if i < p.maxAttempts {
			delay := p.baseDelay << i
			slog.Warn("database connect failed, retrying", "attempt", i, "delay", delay, "error", err)
			time.Sleep(delay)
		}
	}

	a.conn, a.err = conn, err

	p.mu.Lock()
	p.inflight = nil
	if err == nil {
		p.conn = conn
		slog.Info("database connected")
	}
	p.mu.Unlock()

	close(a.done)
}

// Migrate runs AutoMigrate for all persisted models.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.SystemLog{},
	)
}

// Ping checks the underlying connection.
func Ping(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Ping()
}
