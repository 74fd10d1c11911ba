package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"repairdesk/internal/config"
	"repairdesk/internal/hashing"
	"repairdesk/internal/models"
)

func newEmployeeService() (*EmployeeService, *fakeAccountRepo, *hashing.Hasher) {
	cfg := &config.Config{Auth: config.AuthConfig{BcryptCost: bcrypt.MinCost}}
	hasher := hashing.NewHasher(cfg)
	repo := newFakeAccountRepo()
	return NewEmployeeService(repo, hasher, zap.NewNop()), repo, hasher
}

func TestNextEmployeeCode(t *testing.T) {
	svc, repo, _ := newEmployeeService()
	ctx := context.Background()

	code, err := svc.NextEmployeeCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PR0001", code)

	require.NoError(t, repo.Create(ctx, &models.Account{EmployeeCode: "PR0007"}))
	code, err = svc.NextEmployeeCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PR0008", code)

	require.NoError(t, repo.Create(ctx, &models.Account{EmployeeCode: "PR0099"}))
	code, err = svc.NextEmployeeCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PR0100", code)
}

func TestNextEmployeeCodeMalformed(t *testing.T) {
	svc, repo, _ := newEmployeeService()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Account{EmployeeCode: "bogus"}))
	_, err := svc.NextEmployeeCode(ctx)
	assert.Error(t, err)
}

func TestCreateEmployee(t *testing.T) {
	svc, _, hasher := newEmployeeService()
	ctx := context.Background()

	first, err := svc.CreateEmployee(ctx, CreateEmployeeInput{
		DisplayName: "  Asha Verma  ",
		Password:    "hunter2",
		AvatarPath:  "uploads/asha.png",
		CreatedBy:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, "PR0001", first.EmployeeCode)
	assert.Equal(t, "Asha Verma", first.DisplayName)
	assert.Equal(t, models.RoleStandard, first.Role)
	assert.True(t, first.IsActive)
	require.NotNil(t, first.CreatedBy)
	assert.Equal(t, uint(1), *first.CreatedBy)

	// password is stored hashed, never verbatim
	assert.NotEqual(t, "hunter2", first.PasswordHash)
	assert.True(t, hasher.Compare(first.PasswordHash, "hunter2"))

	second, err := svc.CreateEmployee(ctx, CreateEmployeeInput{
		DisplayName: "Ben Okafor",
		Password:    "pw",
		CreatedBy:   1,
	})
	require.NoError(t, err)
	assert.Equal(t, "PR0002", second.EmployeeCode)
}

func TestUpdateEmployeePartial(t *testing.T) {
	svc, repo, hasher := newEmployeeService()
	ctx := context.Background()

	created, err := svc.CreateEmployee(ctx, CreateEmployeeInput{
		DisplayName: "Asha Verma",
		Password:    "old-pw",
		CreatedBy:   1,
	})
	require.NoError(t, err)

	// name only: password hash survives
	updated, err := svc.UpdateEmployee(ctx, created.ID, UpdateEmployeeInput{
		DisplayName: "Asha V",
		ModifiedBy:  1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha V", updated.DisplayName)
	assert.True(t, hasher.Compare(updated.PasswordHash, "old-pw"))

	// password only: rehashed
	updated, err = svc.UpdateEmployee(ctx, created.ID, UpdateEmployeeInput{
		Password:   "new-pw",
		ModifiedBy: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Asha V", updated.DisplayName)
	assert.True(t, hasher.Compare(updated.PasswordHash, "new-pw"))
	assert.False(t, hasher.Compare(updated.PasswordHash, "old-pw"))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ModifiedBy)
	assert.Equal(t, uint(1), *stored.ModifiedBy)
}

func TestUpdateEmployeeNotFound(t *testing.T) {
	svc, _, _ := newEmployeeService()

	_, err := svc.UpdateEmployee(context.Background(), 404, UpdateEmployeeInput{DisplayName: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeactivateEmployee(t *testing.T) {
	svc, repo, _ := newEmployeeService()
	ctx := context.Background()

	created, err := svc.CreateEmployee(ctx, CreateEmployeeInput{
		DisplayName: "Asha Verma",
		Password:    "pw",
		CreatedBy:   1,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateEmployee(ctx, created.ID))

	stored, err := repo.GetByID(ctx, created.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	// codes keep advancing past deactivated rows
	next, err := svc.NextEmployeeCode(ctx)
	require.NoError(t, err)
	assert.Equal(t, "PR0002", next)

	assert.ErrorIs(t, svc.DeactivateEmployee(ctx, 404), ErrNotFound)
}

func TestListEmployeesExcludesPrivileged(t *testing.T) {
	svc, repo, _ := newEmployeeService()
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Account{
		EmployeeCode: "PR0001", Role: models.RolePrivileged, IsActive: true,
	}))
	_, err := svc.CreateEmployee(ctx, CreateEmployeeInput{
		DisplayName: "Asha Verma",
		Password:    "pw",
		CreatedBy:   1,
	})
	require.NoError(t, err)

	list, err := svc.ListEmployees(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "PR0002", list[0].EmployeeCode)
}
