package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/symptom-assessment-server/internal/domain"
)

// NewPostgresStore wraps an open PostgreSQL connection.
// It expects the schema to already exist (created via migrations).
func NewPostgresStore(db *sql.DB, logger *logrus.Logger) (*SQLStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		logger = logrus.New()
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLStore{db: db, dialect: dialectPostgres, logger: logger}, nil
}

// NewPostgresStoreFromURL opens a pooled connection, optionally migrating first
func NewPostgresStoreFromURL(ctx context.Context, config domain.DatabaseConfig, logger *logrus.Logger) (*SQLStore, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if config.URL == "" {
		return nil, fmt.Errorf("database URL is required for postgres")
	}

	if config.MigrateOnStart {
		runner, err := NewMigrationRunner(config.URL, logger)
		if err != nil {
			return nil, err
		}
		err = runner.Up(ctx)
		if closeErr := runner.Close(); closeErr != nil {
			logger.WithError(closeErr).Warn("Failed to close migration runner")
		}
		if err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("postgres", config.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	maxOpen, maxIdle, lifetime := config.MaxOpenConns, config.MaxIdleConns, config.ConnMaxLifetime
	if maxOpen == 0 {
		maxOpen = 25
	}
	if maxIdle == 0 {
		maxIdle = 5
	}
	if lifetime == 0 {
		lifetime = 5 * time.Minute
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(lifetime)

	store, err := NewPostgresStore(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"max_open_conns": maxOpen,
		"max_idle_conns": maxIdle,
	}).Info("PostgreSQL store ready")
	return store, nil
}
