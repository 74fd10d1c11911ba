package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/internal/models"
)

func testAccount() *models.Account {
	return &models.Account{
		ID:           7,
		EmployeeCode: "PR0007",
		DisplayName:  "Asha Pillai",
		Role:         models.RoleStandard,
	}
}

func TestIssueAndVerify(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	signed, err := m.Issue(testAccount())
	require.NoError(t, err)
	require.NotEmpty(t, signed)

	claims, err := m.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.AccountID)
	assert.Equal(t, "Asha Pillai", claims.DisplayName)
	assert.Equal(t, models.RoleStandard, claims.Role)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt.Time, time.Minute)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	signed, err := NewManager("secret-a", time.Hour).Issue(testAccount())
	require.NoError(t, err)

	_, err = NewManager("secret-b", time.Hour).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsExpired(t *testing.T) {
	signed, err := NewManager("test-secret", -time.Minute).Issue(testAccount())
	require.NoError(t, err)

	_, err = NewManager("test-secret", -time.Minute).Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	_, err := NewManager("test-secret", time.Hour).Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
