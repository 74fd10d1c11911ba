package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"repairdesk/internal/models"
)

// ErrInvalidToken covers malformed, expired and badly signed tokens alike.
var ErrInvalidToken = errors.New("invalid token")

// Claims is the signed payload carried by an issued login token.
type Claims struct {
	AccountID   uint        `json:"account_id"`
	DisplayName string      `json:"display_name"`
	Role        models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Manager signs and verifies login tokens with a shared HS256 secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
}

func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Issue signs a token for the account, valid for the configured TTL.
func (m *Manager) Issue(account *models.Account) (string, error) {
	now := time.Now()
	claims := &Claims{
		AccountID:   account.ID,
		DisplayName: account.DisplayName,
		Role:        account.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates a token string, returning its claims.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
