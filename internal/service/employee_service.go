package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"repairdesk/internal/hashing"
	"repairdesk/internal/models"
	"repairdesk/internal/repository/postgres"
	"repairdesk/internal/util"
)

const (
	employeeCodePrefix = "PR"
	employeeCodeDigits = 4
)

// EmployeeService manages employee accounts: creation with auto-assigned
// codes, profile updates and soft deletion.
type EmployeeService struct {
	accounts postgres.AccountRepository
	hasher   *hashing.Hasher
	logger   *zap.Logger
}

func NewEmployeeService(accounts postgres.AccountRepository, hasher *hashing.Hasher, logger *zap.Logger) *EmployeeService {
	return &EmployeeService{accounts: accounts, hasher: hasher, logger: logger}
}

// CreateEmployeeInput is the payload for a new employee account.
type CreateEmployeeInput struct {
	DisplayName string
	Password    string
	Role        models.Role
	AvatarPath  string
	CreatedBy   uint
}

// UpdateEmployeeInput carries a partial profile update. Empty Password keeps
// the current hash; empty AvatarPath keeps the current avatar.
type UpdateEmployeeInput struct {
	DisplayName string
	Password    string
	AvatarPath  string
	ModifiedBy  uint
}

// CreateEmployee assigns the next employee code, hashes the password and
// inserts the account.
func (s *EmployeeService) CreateEmployee(ctx context.Context, input CreateEmployeeInput) (*models.Account, error) {
	code, err := s.NextEmployeeCode(ctx)
	if err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	role := input.Role
	if role == "" {
		role = models.RoleStandard
	}

	createdBy := input.CreatedBy
	account := &models.Account{
		EmployeeCode: code,
		DisplayName:  util.SanitizeInput(input.DisplayName),
		PasswordHash: hash,
		Role:         role,
		Avatar:       input.AvatarPath,
		IsActive:     true,
		CreatedBy:    &createdBy,
	}
	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, err
	}

	s.logger.Info("Employee created",
		util.Uint("account_id", account.ID),
		util.String("employee_code", account.EmployeeCode))
	return account, nil
}

// GetEmployee fetches one account by id.
func (s *EmployeeService) GetEmployee(ctx context.Context, id uint) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return account, nil
}

// ListEmployees returns the active standard accounts shown in the employee
// table. The super-admin never appears in it.
func (s *EmployeeService) ListEmployees(ctx context.Context) ([]*models.Account, error) {
	return s.accounts.ListStandard(ctx)
}

// UpdateEmployee applies a partial profile update. A replaced avatar's old
// file is removed from disk, best-effort.
func (s *EmployeeService) UpdateEmployee(ctx context.Context, id uint, input UpdateEmployeeInput) (*models.Account, error) {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if input.DisplayName != "" {
		account.DisplayName = util.SanitizeInput(input.DisplayName)
	}
	if input.Password != "" {
		hash, err := s.hasher.Hash(input.Password)
		if err != nil {
			return nil, err
		}
		account.PasswordHash = hash
	}

	oldAvatar := ""
	if input.AvatarPath != "" && input.AvatarPath != account.Avatar {
		oldAvatar = account.Avatar
		account.Avatar = input.AvatarPath
	}

	modifiedBy := input.ModifiedBy
	account.ModifiedBy = &modifiedBy

	if err := s.accounts.Update(ctx, account); err != nil {
		return nil, err
	}

	if oldAvatar != "" {
		if err := os.Remove(oldAvatar); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove replaced avatar",
				util.String("path", oldAvatar),
				util.ErrorField(err))
		}
	}

	return account, nil
}

// DeactivateEmployee soft-deletes the account and removes its avatar file.
// The row and its code survive so NextEmployeeCode never reuses a code.
func (s *EmployeeService) DeactivateEmployee(ctx context.Context, id uint) error {
	account, err := s.accounts.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if err := s.accounts.Deactivate(ctx, id); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}

	if account.Avatar != "" {
		if err := os.Remove(account.Avatar); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("Failed to remove avatar of deactivated employee",
				util.String("path", account.Avatar),
				util.ErrorField(err))
		}
	}

	s.logger.Info("Employee deactivated", util.Uint("account_id", id))
	return nil
}

// NextEmployeeCode derives the next PRnnnn code from the most recently
// assigned one. An empty table starts at PR0001.
func (s *EmployeeService) NextEmployeeCode(ctx context.Context) (string, error) {
	last, err := s.accounts.LastEmployeeCode(ctx)
	if err != nil {
		return "", err
	}
	if last == "" {
		return fmt.Sprintf("%s%0*d", employeeCodePrefix, employeeCodeDigits, 1), nil
	}

	numeric := strings.TrimPrefix(last, employeeCodePrefix)
	n, err := strconv.Atoi(numeric)
	if err != nil {
		return "", fmt.Errorf("malformed employee code %q: %w", last, err)
	}
	return fmt.Sprintf("%s%0*d", employeeCodePrefix, employeeCodeDigits, n+1), nil
}
