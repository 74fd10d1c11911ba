package postgres

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"repairdesk/internal/client"
	"repairdesk/internal/models"
)

// CustomerRepository is the persistence surface for repair records.
type CustomerRepository interface {
	Create(ctx context.Context, customer *models.Customer) error
	GetByID(ctx context.Context, id uint) (*models.Customer, error)
	ListActive(ctx context.Context) ([]*models.Customer, error)
	Update(ctx context.Context, customer *models.Customer) error
	Deactivate(ctx context.Context, id uint) error
}

type customerRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewCustomerRepository(pg *client.PostgresClient, logger *zap.Logger) CustomerRepository {
	return &customerRepository{db: pg.DB, logger: logger}
}

func (r *customerRepository) Create(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Create(customer).Error; err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetByID returns the customer only while it is still active.
func (r *customerRepository) GetByID(ctx context.Context, id uint) (*models.Customer, error) {
	var customer models.Customer
	err := r.db.WithContext(ctx).
		Preload("DeviceType").
		Where("id = ? AND is_active = ?", id, true).
		First(&customer).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer %d: %w", id, err)
	}
	return &customer, nil
}

// ListActive returns active repair records, newest first.
func (r *customerRepository) ListActive(ctx context.Context) ([]*models.Customer, error) {
	var customers []*models.Customer
	err := r.db.WithContext(ctx).
		Preload("DeviceType").
		Where("is_active = ?", true).
		Order("created_at DESC").
		Find(&customers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	return customers, nil
}

func (r *customerRepository) Update(ctx context.Context, customer *models.Customer) error {
	if err := r.db.WithContext(ctx).Save(customer).Error; err != nil {
		return fmt.Errorf("failed to update customer %d: %w", customer.ID, err)
	}
	return nil
}

func (r *customerRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.Customer{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate customer %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
