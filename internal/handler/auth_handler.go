package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"repairdesk/internal/config"
	"repairdesk/internal/repository/redis"
	"repairdesk/internal/service"
	"repairdesk/internal/util"
)

var errTooManyAttempts = errors.New("too many login attempts")

// AuthHandler serves the login/logout endpoints.
type AuthHandler struct {
	login     *service.LoginService
	rateLimit *redis.RateLimitCache
	limits    config.RateLimitConfig
	logger    *zap.Logger
}

func NewAuthHandler(login *service.LoginService, rateLimit *redis.RateLimitCache, limits config.RateLimitConfig, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{
		login:     login,
		rateLimit: rateLimit,
		limits:    limits,
		logger:    logger,
	}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.Post("/logout", h.Logout)
	})
}

type loginRequest struct {
	EmployeeCode string `json:"employee_code"`
	Password     string `json:"password"`
}

type loginResponse struct {
	Status    string      `json:"status"`
	Token     string      `json:"token,omitempty"`
	LoginID   uint        `json:"login_id,omitempty"`
	AccountID uint        `json:"account_id,omitempty"`
	Account   interface{} `json:"account,omitempty"`
}

// Login verifies credentials and either returns a token or parks the attempt
// for super-admin approval.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err, "Invalid request body")
		return
	}
	if req.EmployeeCode == "" || req.Password == "" {
		respondWithError(w, http.StatusBadRequest,
			errors.New("employee_code and password are required"), "Invalid request")
		return
	}

	if !h.allowAttempt(ctx, req.EmployeeCode, clientIP(r)) {
		respondWithError(w, http.StatusTooManyRequests, errTooManyAttempts, "Try again later")
		return
	}

	result, err := h.login.AttemptLogin(ctx, req.EmployeeCode, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrInvalidCredentials) {
			respondWithError(w, http.StatusUnauthorized, err, "Login failed")
			return
		}
		respondWithError(w, http.StatusInternalServerError, err, "Login failed")
		return
	}

	if result.Authorized {
		h.resetCounter(ctx, req.EmployeeCode)
		respondWithJSON(w, http.StatusOK, successResponse(loginResponse{
			Status:  "ok",
			Token:   result.Token,
			Account: result.Account,
		}, "Login successful"))
		return
	}

	respondWithJSON(w, http.StatusAccepted, successResponse(loginResponse{
		Status:    "awaiting_approval",
		LoginID:   result.AttemptID,
		AccountID: result.Account.ID,
	}, "Awaiting super-admin approval"))
}

// Logout invalidates the presented bearer token.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tokenString := bearerToken(r)
	if tokenString == "" {
		respondWithError(w, http.StatusUnauthorized, errMissingToken, "Logout failed")
		return
	}

	account, err := h.login.Logout(ctx, tokenString)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidToken):
			respondWithError(w, http.StatusUnauthorized, err, "Logout failed")
		case errors.Is(err, service.ErrNotFound):
			respondWithError(w, http.StatusNotFound, err, "Logout failed")
		default:
			respondWithError(w, http.StatusInternalServerError, err, "Logout failed")
		}
		return
	}

	respondWithJSON(w, http.StatusOK, successResponse(map[string]interface{}{
		"account_id": account.ID,
	}, "Logged out"))
}

// allowAttempt applies the per-code and per-IP counters. Redis being down
// fails open: rate limiting is protection, not a dependency.
func (h *AuthHandler) allowAttempt(ctx context.Context, employeeCode, ip string) bool {
	if h.rateLimit == nil || h.limits.LoginMaxAttempts <= 0 {
		return true
	}

	byCode, err := h.rateLimit.IncrementLoginCounter(ctx, employeeCode, h.limits.LoginWindow)
	if err != nil {
		return true
	}
	byIP, err := h.rateLimit.IncrementIPCounter(ctx, ip, h.limits.LoginWindow)
	if err != nil {
		return true
	}

	limit := int64(h.limits.LoginMaxAttempts)
	if byCode > limit || byIP > limit*3 {
		h.logger.Warn("Login rate limit hit",
			util.String("employee_code", employeeCode),
			util.String("ip", ip),
			zap.Int64("code_count", byCode),
			zap.Int64("ip_count", byIP))
		return false
	}
	return true
}

func (h *AuthHandler) resetCounter(ctx context.Context, employeeCode string) {
	if h.rateLimit == nil {
		return
	}
	if err := h.rateLimit.ResetLoginCounter(ctx, employeeCode); err != nil {
		h.logger.Warn("Failed to reset login counter",
			util.String("employee_code", employeeCode),
			util.ErrorField(err))
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
