package database

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"failguard/internal/config"
	"failguard/internal/domain"
	"failguard/internal/support"
)

const (
	defaultSQLitePath  = "data/failguard.db"
	slowQueryThreshold = 500 * time.Millisecond
)

var ErrNotInitialised = errors.New("database not initialised")

type Config struct {
	ExistingDB  *gorm.DB
	Dialector   gorm.Dialector
	Logger      logger.Interface
	AutoMigrate bool
	Pool        PoolConfig
}

// PoolConfig tunes database/sql. Zero values keep the driver defaults, except
// MaxOpen which falls back to 1 for sqlite and 16 otherwise.
type PoolConfig struct {
	MaxOpen     int
	MaxIdle     int
	MaxLifetime time.Duration
	MaxIdleTime time.Duration
}

type Option func(*Config)

// Open builds the dialector for cfg and sets up the ban schema on it.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}

	opts := []Option{
		WithDialector(dialector),
		WithPool(PoolConfig{
			MaxOpen:     cfg.MaxOpenConns,
			MaxIdle:     cfg.MaxIdleConns,
			MaxLifetime: cfg.ConnMaxLifetime,
			MaxIdleTime: cfg.ConnMaxIdleTime,
		}),
	}
	if cfg.LogQueries {
		opts = append(opts, WithLogger(QueryLogger()))
	}
	return SetupDB(opts...)
}

// SetupDB opens (or adopts) a connection and migrates the ban schema.
func SetupDB(opts ...Option) (*gorm.DB, error) {
	cfg := Config{Logger: silentLogger(), AutoMigrate: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	var db *gorm.DB
	switch {
	case cfg.ExistingDB != nil:
		db = cfg.ExistingDB
	case cfg.Dialector != nil:
		opened, err := gorm.Open(cfg.Dialector, &gorm.Config{Logger: cfg.Logger})
		if err != nil {
			return nil, fmt.Errorf("database: open connection: %w", err)
		}
		db = opened
		if err := applyPool(db, cfg.Pool); err != nil {
			log.Warn("database: connection pool left at defaults", "error", err)
		}
	default:
		return nil, fmt.Errorf("database: no dialector or existing connection provided")
	}

	if cfg.AutoMigrate {
		if err := db.AutoMigrate(&domain.BanRecord{}); err != nil {
			return nil, fmt.Errorf("database: auto migrate: %w", err)
		}
		log.Debug("ban schema ready", "dialect", db.Dialector.Name())
	}

	return db, nil
}

// Dialector picks the gorm driver for the configured database. The sqlite
// directory is created when missing.
func Dialector(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "", "sqlite":
		path := cfg.Path
		if path == "" {
			path = defaultSQLitePath
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("database: create directory %s: %w", dir, err)
			}
		}
		return sqlite.Open(path + "?_busy_timeout=5000&_journal_mode=WAL"), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("database: postgres requires a dsn")
		}
		return postgres.Open(cfg.DSN), nil
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}
}

func silentLogger() logger.Interface {
	return logger.New(log.Default(), logger.Config{LogLevel: logger.Silent})
}

// QueryLogger routes gorm's statement log through the package logger and
// flags slow queries.
func QueryLogger() logger.Interface {
	return logger.New(log.Default(), logger.Config{
		LogLevel:                  logger.Info,
		SlowThreshold:             slowQueryThreshold,
		IgnoreRecordNotFoundError: true,
	})
}

func WithExistingDB(db *gorm.DB) Option {
	return func(cfg *Config) {
		cfg.ExistingDB = db
	}
}

func WithDialector(d gorm.Dialector) Option {
	return func(cfg *Config) {
		cfg.Dialector = d
	}
}

func WithLogger(l logger.Interface) Option {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

func WithPool(p PoolConfig) Option {
	return func(cfg *Config) {
		cfg.Pool = p
	}
}

// applyPool sets pool limits, letting FAILGUARD_DB_MAX_OPEN_CONNS and
// FAILGUARD_DB_CONN_MAX_LIFETIME override the settings file.
func applyPool(db *gorm.DB, p PoolConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	if p.MaxOpen <= 0 {
		p.MaxOpen = 16
		if db.Dialector.Name() == "sqlite" {
			p.MaxOpen = 1
		}
	}
	p.MaxOpen = support.GetEnvInt("FAILGUARD_DB_MAX_OPEN_CONNS", p.MaxOpen)
	p.MaxLifetime = support.GetEnvDuration("FAILGUARD_DB_CONN_MAX_LIFETIME", p.MaxLifetime)

	if p.MaxIdle <= 0 || p.MaxIdle > p.MaxOpen {
		p.MaxIdle = p.MaxOpen
	}

	sqlDB.SetMaxOpenConns(p.MaxOpen)
	sqlDB.SetMaxIdleConns(p.MaxIdle)
	if p.MaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(p.MaxLifetime)
	}
	if p.MaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(p.MaxIdleTime)
	}
	return nil
}
