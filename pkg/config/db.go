package config

import (
	"context"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	dbConnectAttempts = 5
	dbConnectDelay    = 2 * time.Second
)

// PostgresDSN renders the Storage.Postgres section as a libpq DSN.
func (c *Config) PostgresDSN() string {
	pg := c.Storage.Postgres
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		pg.Host, pg.Port, pg.User, pg.Password, pg.Name, pg.SSLMode,
	)
}

// NewDB opens the Postgres database used by the "postgres" storage driver.
// The server may start before the database accepts connections, so the
// first ping is retried until ctx is done.
func NewDB(ctx context.Context, cfg *Config) (*gorm.DB, error) {
	if cfg == nil {
		cfg = Get()
	}

	mode := logger.Error
	if cfg.Server.Env == "development" {
		mode = logger.Warn
	}
	db, err := gorm.Open(postgres.Open(cfg.PostgresDSN()), &gorm.Config{
		Logger:               logger.Default.LogMode(mode),
		DisableAutomaticPing: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get database connection: %w", err)
	}
	maxConns := cfg.Storage.Postgres.MaxConns
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxIdleConns(2)
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	for attempt := 1; ; attempt++ {
		err = sqlDB.PingContext(ctx)
		if err == nil {
			return db, nil
		}
		if attempt == dbConnectAttempts {
			break
		}
		select {
		case <-ctx.Done():
			_ = sqlDB.Close()
			return nil, ctx.Err()
		case <-time.After(dbConnectDelay):
		}
	}
	_ = sqlDB.Close()
	return nil, fmt.Errorf("connect to postgres at %s:%s after %d attempts: %w",
		cfg.Storage.Postgres.Host, cfg.Storage.Postgres.Port, dbConnectAttempts, err)
}
