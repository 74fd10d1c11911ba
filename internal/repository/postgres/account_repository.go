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

// ErrNotFound is returned when a lookup matches no active row.
var ErrNotFound = errors.New("record not found")

// AccountRepository is the persistence surface for employee accounts.
type AccountRepository interface {
	Create(ctx context.Context, account *models.Account) error
	GetByID(ctx context.Context, id uint) (*models.Account, error)
	GetActiveByCode(ctx context.Context, employeeCode string) (*models.Account, error)
	ListStandard(ctx context.Context) ([]*models.Account, error)
	Update(ctx context.Context, account *models.Account) error
	SetLoggedIn(ctx context.Context, id uint, loggedIn bool) error
	Deactivate(ctx context.Context, id uint) error
	LastEmployeeCode(ctx context.Context) (string, error)
}

type accountRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewAccountRepository(pg *client.PostgresClient, logger *zap.Logger) AccountRepository {
	return &accountRepository{db: pg.DB, logger: logger}
}

func (r *accountRepository) Create(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Create(account).Error; err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}
	return nil
}

func (r *accountRepository) GetByID(ctx context.Context, id uint) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).First(&account, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account %d: %w", id, err)
	}
	return &account, nil
}

// GetActiveByCode looks up an account by employee code, active rows only.
func (r *accountRepository) GetActiveByCode(ctx context.Context, employeeCode string) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("employee_code = ? AND is_active = ?", employeeCode, true).
		First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account by code: %w", err)
	}
	return &account, nil
}

// ListStandard returns active non-privileged accounts for the employee table.
func (r *accountRepository) ListStandard(ctx context.Context) ([]*models.Account, error) {
	var accounts []*models.Account
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND role <> ?", true, models.RolePrivileged).
		Order("id").
		Find(&accounts).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	return accounts, nil
}

func (r *accountRepository) Update(ctx context.Context, account *models.Account) error {
	if err := r.db.WithContext(ctx).Save(account).Error; err != nil {
		return fmt.Errorf("failed to update account %d: %w", account.ID, err)
	}
	return nil
}

func (r *accountRepository) SetLoggedIn(ctx context.Context, id uint, loggedIn bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("is_logged_in", loggedIn)
	if res.Error != nil {
		return fmt.Errorf("failed to set logged_in for account %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *accountRepository) Deactivate(ctx context.Context, id uint) error {
	res := r.db.WithContext(ctx).
		Model(&models.Account{}).
		Where("id = ?", id).
		Update("is_active", false)
	if res.Error != nil {
		return fmt.Errorf("failed to deactivate account %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// LastEmployeeCode returns the most recently assigned code, or "" when the
// table is empty. Used to derive the next PRnnnn code.
func (r *accountRepository) LastEmployeeCode(ctx context.Context) (string, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Order("id DESC").First(&account).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get last employee code: %w", err)
	}
	return account.EmployeeCode, nil
}
