package client

import (
	"context"
	"fmt"
	"time"

	ch "github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"repairdesk/internal/config"
	"repairdesk/internal/util"
)

// ClickHouseClient holds the connection used by the audit sink and the
// login-activity report.
type ClickHouseClient struct {
	Conn   driver.Conn
	config *config.ClickhouseConfig
}

// NewClickHouseClient opens and pings a ClickHouse connection.
func NewClickHouseClient(cfg *config.Config, logger *zap.Logger) (*ClickHouseClient, error) {
	chConfig := cfg.Clickhouse

	opts := &ch.Options{
		Addr: []string{chConfig.Addr},
		Auth: ch.Auth{
			Username: chConfig.Username,
			Password: chConfig.Password,
			Database: chConfig.Database,
		},
		DialTimeout:      30 * time.Second,
		MaxOpenConns:     10,
		MaxIdleConns:     5,
		ConnMaxLifetime:  time.Hour,
		ConnOpenStrategy: ch.ConnOpenInOrder,
	}

	conn, err := ch.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	util.Info("ClickHouse client initialized",
		zap.String("addr", chConfig.Addr),
		zap.String("database", chConfig.Database))

	return &ClickHouseClient{
		Conn:   conn,
		config: &chConfig,
	}, nil
}

// HealthCheck verifies connectivity.
func (c *ClickHouseClient) HealthCheck(ctx context.Context) error {
	if err := c.Conn.Ping(ctx); err != nil {
		return fmt.Errorf("clickhouse ping failed: %w", err)
	}
	return nil
}

// Close releases the connection.
func (c *ClickHouseClient) Close() error {
	if c.Conn != nil {
		if err := c.Conn.Close(); err != nil {
			util.Error("failed to close ClickHouse client", zap.Error(err))
			return err
		}
		util.Info("ClickHouse client closed")
	}
	return nil
}
