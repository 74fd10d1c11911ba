package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repairdesk/internal/client"
	"repairdesk/internal/util"
)

const (
	loginCodePrefix = "rate_limit:login:code:"
	loginIPPrefix   = "rate_limit:login:ip:"
)

// RateLimitCache throttles login attempts per employee code and per source IP.
type RateLimitCache struct {
	client *client.RedisClient
}

func NewRateLimitCache(client *client.RedisClient) *RateLimitCache {
	return &RateLimitCache{client: client}
}

// IncrementLoginCounter bumps the per-code counter and returns the new count
// inside the window.
func (c *RateLimitCache) IncrementLoginCounter(ctx context.Context, employeeCode string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, loginCodePrefix+employeeCode, window)
	if err != nil {
		util.Error("Failed to increment login counter",
			zap.String("employee_code", employeeCode),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment login counter: %w", err)
	}
	return count, nil
}

// IncrementIPCounter bumps the per-IP counter and returns the new count.
func (c *RateLimitCache) IncrementIPCounter(ctx context.Context, ip string, window time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	count, err := c.client.IncrWithExpire(ctx, loginIPPrefix+ip, window)
	if err != nil {
		util.Error("Failed to increment IP counter",
			zap.String("ip", ip),
			zap.Error(err))
		return 0, fmt.Errorf("failed to increment ip counter: %w", err)
	}
	return count, nil
}

// ResetLoginCounter clears the per-code counter after a successful login.
func (c *RateLimitCache) ResetLoginCounter(ctx context.Context, employeeCode string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := c.client.Del(ctx, loginCodePrefix+employeeCode); err != nil {
		return fmt.Errorf("failed to reset login counter: %w", err)
	}
	return nil
}
