package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ksred/plansmart/internal/config"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Database manages the database connection and operations
type Database struct {
	db       *gorm.DB
	config   config.Database
	logLevel string
	logger   zerolog.Logger
	mu       sync.RWMutex
}

// NewDatabase creates a new Database instance. logLevel is one of
// silent, error, warn or info and only affects SQL logging.
func NewDatabase(cfg config.Database, logLevel string, logger zerolog.Logger) *Database {
	return &Database{
		config:   cfg,
		logLevel: logLevel,
		logger:   logger.With().Str("component", "database").Logger(),
	}
}

// Connect opens the configured database, retrying with exponential backoff
func (d *Database) Connect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	gormConfig := &gorm.Config{
		Logger: gormlogger.New(zerologWriter{d.logger}, gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  d.getLogLevel(),
			IgnoreRecordNotFoundError: true,
		}),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	}

	maxRetries := 5
	retryDelay := 2 * time.Second

	var err error
	for i := 0; i < maxRetries; i++ {
		d.db, err = gorm.Open(d.dialector(), gormConfig)
		if err == nil {
			break
		}

		d.logger.Warn().Err(err).Int("attempt", i+1).Msg("Database connection failed")
		if i < maxRetries-1 {
			select {
			case <-time.After(retryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
			retryDelay *= 2
		}
	}

	if err != nil {
		return fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, err)
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if d.config.Driver == config.DriverSQLite {
		// sqlite serialises writers; one connection avoids SQLITE_BUSY
		sqlDB.SetMaxOpenConns(1)
		return nil
	}

	sqlDB.SetMaxIdleConns(d.config.MaxIdleConns)
	sqlDB.SetMaxOpenConns(d.config.MaxConnections)
	sqlDB.SetConnMaxLifetime(d.config.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(d.config.ConnMaxIdleTime)

	return nil
}

// Health checks the database connection health
func (d *Database) Health(ctx context.Context) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return fmt.Errorf("database not connected")
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}

// Close closes the database connection
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}

	sqlDB, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	d.db = nil
	return nil
}

// DB returns the underlying gorm.DB instance
func (d *Database) DB() *gorm.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

// SetDB sets the underlying gorm.DB instance (for testing)
func (d *Database) SetDB(db *gorm.DB) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.db = db
}

// WithTransaction executes a function within a database transaction
func (d *Database) WithTransaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	d.mu.RLock()
	db := d.db
	d.mu.RUnlock()

	if db == nil {
		return fmt.Errorf("database not connected")
	}

	var opts *sql.TxOptions
	if d.config.Driver != config.DriverSQLite {
		opts = &sql.TxOptions{Isolation: sql.LevelReadCommitted}
	}
	return db.WithContext(ctx).Transaction(fn, opts)
}

func (d *Database) dialector() gorm.Dialector {
	if d.config.Driver == config.DriverSQLite {
		return sqlite.Open(sqliteDSN(d.config.Path))
	}
	return postgres.Open(d.buildDSN())
}

// buildDSN constructs the PostgreSQL DSN from config
func (d *Database) buildDSN() string {
	c := d.config
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
		c.Host, c.Port, c.User, c.Password, c.DBName, sslmode)
}

// sqliteDSN enables WAL and a busy timeout unless the path already carries options
func sqliteDSN(path string) string {
	if path == ":memory:" || strings.Contains(path, "?") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// getLogLevel maps the configured level onto GORM's levels
func (d *Database) getLogLevel() gormlogger.LogLevel {
	switch d.logLevel {
	case "silent":
		return gormlogger.Silent
	case "warn":
		return gormlogger.Warn
	case "info", "debug":
		return gormlogger.Info
	default:
		return gormlogger.Error
	}
}

// zerologWriter routes GORM's printf-style logger into zerolog
type zerologWriter struct {
	logger zerolog.Logger
}

func (w zerologWriter) Printf(format string, args ...interface{}) {
	w.logger.Debug().Msg(strings.TrimSpace(fmt.Sprintf(format, args...)))
}
