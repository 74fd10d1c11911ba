package postgres

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"repairdesk/internal/client"
	"repairdesk/internal/models"
)

// DeviceTypeRepository serves the device-type master data.
type DeviceTypeRepository interface {
	ListActive(ctx context.Context) ([]*models.DeviceType, error)
}

type deviceTypeRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewDeviceTypeRepository(pg *client.PostgresClient, logger *zap.Logger) DeviceTypeRepository {
	return &deviceTypeRepository{db: pg.DB, logger: logger}
}

func (r *deviceTypeRepository) ListActive(ctx context.Context) ([]*models.DeviceType, error) {
	var types []*models.DeviceType
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("name").
		Find(&types).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list device types: %w", err)
	}
	return types, nil
}
