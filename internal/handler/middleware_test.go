package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/internal/models"
	"repairdesk/internal/token"
)

func okHandler(claimsSeen **token.Claims) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*claimsSeen = ClaimsFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthenticator(t *testing.T) {
	tokens := token.NewManager("test-secret", time.Hour)
	account := &models.Account{ID: 7, DisplayName: "Asha", Role: models.RoleStandard}
	signed, err := tokens.Issue(account)
	require.NoError(t, err)

	var seen *token.Claims
	mw := Authenticator(tokens)(okHandler(&seen))

	// valid token: claims land in the context
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, uint(7), seen.AccountID)

	// missing header
	seen = nil
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Nil(t, seen)

	// garbage token
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer nonsense")
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// token signed with a different secret
	forged, err := token.NewManager("other-secret", time.Hour).Issue(account)
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+forged)
	rec = httptest.NewRecorder()
	mw.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequirePrivileged(t *testing.T) {
	tokens := token.NewManager("test-secret", time.Hour)

	var seen *token.Claims
	chain := Authenticator(tokens)(RequirePrivileged(okHandler(&seen)))

	standard, err := tokens.Issue(&models.Account{ID: 1, Role: models.RoleStandard})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+standard)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	privileged, err := tokens.Issue(&models.Account{ID: 2, Role: models.RolePrivileged})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+privileged)
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, models.RolePrivileged, seen.Role)
}

func TestBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, "", bearerToken(req))

	req.Header.Set("Authorization", "Basic abc")
	assert.Equal(t, "", bearerToken(req))

	req.Header.Set("Authorization", "Bearer abc.def.ghi")
	assert.Equal(t, "abc.def.ghi", bearerToken(req))

	req.Header.Set("Authorization", "bearer lowercase-scheme")
	assert.Equal(t, "lowercase-scheme", bearerToken(req))
}
