package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"repairdesk/internal/client"
	"repairdesk/internal/models"
)

// ErrAlreadyResolved is returned when resolving an attempt that has already
// been approved or rejected.
var ErrAlreadyResolved = errors.New("login attempt already resolved")

// LoginAttemptRepository is the approval ledger: one row per login attempt
// that needed super-admin approval.
type LoginAttemptRepository interface {
	CreateAttempt(ctx context.Context, accountID uint) (*models.LoginAttempt, error)
	GetByID(ctx context.Context, id uint) (*models.LoginAttempt, error)
	Resolve(ctx context.Context, id uint, status models.ApprovalStatus, resolvedBy uint) (*models.LoginAttempt, error)
	RejectStalePending(ctx context.Context, olderThan time.Time) (int64, error)
}

type loginAttemptRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewLoginAttemptRepository(pg *client.PostgresClient, logger *zap.Logger) LoginAttemptRepository {
	return &loginAttemptRepository{db: pg.DB, logger: logger}
}

// CreateAttempt inserts a pending, timestamped ledger entry.
func (r *loginAttemptRepository) CreateAttempt(ctx context.Context, accountID uint) (*models.LoginAttempt, error) {
	attempt := &models.LoginAttempt{
		AccountID:   accountID,
		Status:      models.ApprovalPending,
		AttemptedAt: time.Now(),
		IsActive:    true,
	}
	if err := r.db.WithContext(ctx).Create(attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to create login attempt: %w", err)
	}
	return attempt, nil
}

func (r *loginAttemptRepository) GetByID(ctx context.Context, id uint) (*models.LoginAttempt, error) {
	var attempt models.LoginAttempt
	err := r.db.WithContext(ctx).First(&attempt, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get login attempt %d: %w", id, err)
	}
	return &attempt, nil
}

// Resolve sets the terminal outcome for a pending attempt. The guarded UPDATE
// makes the pending -> resolved transition atomic, so a second resolver gets
// ErrAlreadyResolved instead of overwriting the first outcome.
func (r *loginAttemptRepository) Resolve(ctx context.Context, id uint, status models.ApprovalStatus, resolvedBy uint) (*models.LoginAttempt, error) {
	now := time.Now()
	res := r.db.WithContext(ctx).
		Model(&models.LoginAttempt{}).
		Where("id = ? AND status = ?", id, models.ApprovalPending).
		Updates(map[string]interface{}{
			"status":      status,
			"resolved_by": resolvedBy,
			"resolved_at": now,
		})
	if res.Error != nil {
		return nil, fmt.Errorf("failed to resolve login attempt %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		// Either the row does not exist or it was resolved already.
		existing, err := r.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return existing, ErrAlreadyResolved
	}
	return r.GetByID(ctx, id)
}

// RejectStalePending marks pending attempts older than the cutoff as rejected.
// Used by the background sweep; resolved_by stays NULL for swept rows.
func (r *loginAttemptRepository) RejectStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.LoginAttempt{}).
		Where("status = ? AND attempted_at < ?", models.ApprovalPending, olderThan).
		Updates(map[string]interface{}{
			"status":      models.ApprovalRejected,
			"resolved_at": time.Now(),
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to reject stale attempts: %w", res.Error)
	}
	return res.RowsAffected, nil
}
