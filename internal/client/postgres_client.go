package client

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"repairdesk/internal/config"
	"repairdesk/internal/models"
	"repairdesk/internal/util"
)

// PostgresClient wraps the GORM connection to the primary store.
type PostgresClient struct {
	DB     *gorm.DB
	config *config.PostgresConfig
}

// NewPostgresClient opens the GORM connection and optionally migrates the schema.
func NewPostgresClient(cfg *config.Config, logger *zap.Logger) (*PostgresClient, error) {
	pgConfig := cfg.Postgres

	logLevel := gormlogger.Warn
	if cfg.IsDevelopment() {
		logLevel = gormlogger.Info
	}

	db, err := gorm.Open(postgres.Open(pgConfig.DSN), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(pgConfig.MaxOpenConns)
	sqlDB.SetMaxIdleConns(pgConfig.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(pgConfig.ConnMaxLifetime)

	if pgConfig.AutoMigrate {
		if err := db.AutoMigrate(
			&models.Account{},
			&models.LoginAttempt{},
			&models.Customer{},
			&models.DeviceType{},
		); err != nil {
			return nil, fmt.Errorf("failed to migrate schema: %w", err)
		}
	}

	util.Info("Postgres client initialized",
		zap.Int("max_open_conns", pgConfig.MaxOpenConns),
		zap.Bool("auto_migrate", pgConfig.AutoMigrate))

	return &PostgresClient{
		DB:     db,
		config: &pgConfig,
	}, nil
}

// HealthCheck verifies database connectivity.
func (p *PostgresClient) HealthCheck(ctx context.Context) error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *PostgresClient) Close() error {
	sqlDB, err := p.DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access underlying sql.DB: %w", err)
	}
	if err := sqlDB.Close(); err != nil {
		util.Error("failed to close Postgres client", zap.Error(err))
		return err
	}
	util.Info("Postgres client closed")
	return nil
}
