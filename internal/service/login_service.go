package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"repairdesk/internal/audit"
	"repairdesk/internal/hashing"
	"repairdesk/internal/models"
	"repairdesk/internal/realtime"
	"repairdesk/internal/repository/postgres"
	"repairdesk/internal/token"
	"repairdesk/internal/util"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("not found")
	ErrAlreadyResolved    = errors.New("login attempt already resolved")
)

// ErrInvalidToken is surfaced on logout with a malformed/expired token.
var ErrInvalidToken = token.ErrInvalidToken

// LoginResult is the outcome of a login attempt. Authorized carries a token;
// otherwise the attempt is parked in the approval ledger under AttemptID.
type LoginResult struct {
	Authorized bool
	Token      string
	AttemptID  uint
	Account    *models.Account
}

// LoginService is the login coordinator. It mediates the two-step handshake
// between a logging-in employee and the approving super-admin, and enforces
// single-active-session semantics with forced remote logout.
type LoginService struct {
	accounts postgres.AccountRepository
	attempts postgres.LoginAttemptRepository
	registry *realtime.Registry
	notifier realtime.Notifier
	tokens   *token.Manager
	hasher   *hashing.Hasher
	auditLog audit.Publisher
	logger   *zap.Logger

	pendingTTL    time.Duration
	sweepInterval time.Duration

	// per-account locks: each login/approval/logout transition for an account
	// runs as one atomic step against the registry and the logged_in flag
	lockMu       sync.Mutex
	accountLocks map[uint]*sync.Mutex

	// issued-but-not-logged-out tokens per account; process lifetime only,
	// a restart invalidates all tracked sessions
	tokenMu      sync.Mutex
	activeTokens map[uint]map[string]struct{}
}

func NewLoginService(
	accounts postgres.AccountRepository,
	attempts postgres.LoginAttemptRepository,
	registry *realtime.Registry,
	notifier realtime.Notifier,
	tokens *token.Manager,
	hasher *hashing.Hasher,
	auditLog audit.Publisher,
	pendingTTL, sweepInterval time.Duration,
	logger *zap.Logger,
) *LoginService {
	return &LoginService{
		accounts:      accounts,
		attempts:      attempts,
		registry:      registry,
		notifier:      notifier,
		tokens:        tokens,
		hasher:        hasher,
		auditLog:      auditLog,
		logger:        logger,
		pendingTTL:    pendingTTL,
		sweepInterval: sweepInterval,
		accountLocks:  make(map[uint]*sync.Mutex),
		activeTokens:  make(map[uint]map[string]struct{}),
	}
}

// AttemptLogin verifies credentials and either issues a token directly
// (privileged accounts) or parks the attempt in the approval ledger and
// broadcasts a login_request. A live session for the account is pre-empted
// unconditionally before either path.
func (s *LoginService) AttemptLogin(ctx context.Context, employeeCode, password string) (*LoginResult, error) {
	account, err := s.accounts.GetActiveByCode(ctx, employeeCode)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			// same response as a wrong password; never reveal which
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.hasher.Compare(account.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}

	unlock := s.lockAccount(account.ID)
	defer unlock()

	// Re-read under the lock: a concurrent login for the same account may
	// have flipped logged_in between the credential fetch and here.
	account, err = s.accounts.GetByID(ctx, account.ID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !account.IsActive {
		return nil, ErrInvalidCredentials
	}

	if account.IsLoggedIn {
		if err := s.preemptSession(ctx, account); err != nil {
			return nil, err
		}
	}

	if account.IsPrivileged() {
		signed, err := s.authorize(ctx, account)
		if err != nil {
			return nil, err
		}
		s.publishAudit(ctx, models.AuditLoginDirect, account, account.ID, "")
		s.logger.Info("Privileged login",
			util.Uint("account_id", account.ID),
			util.String("employee_code", account.EmployeeCode))
		return &LoginResult{Authorized: true, Token: signed, Account: account}, nil
	}

	attempt, err := s.attempts.CreateAttempt(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	// any connected client may render the prompt; only a super-admin's
	// client is expected to act on it
	s.notifier.Broadcast(realtime.EventLoginRequest, realtime.LoginRequestPayload{
		LoginID:   attempt.ID,
		Avatar:    account.Avatar,
		Code:      account.EmployeeCode,
		AccountID: account.ID,
		Name:      account.DisplayName,
	})
	s.publishAudit(ctx, models.AuditLoginRequested, account, account.ID, "")

	s.logger.Info("Login awaiting approval",
		util.Uint("account_id", account.ID),
		util.Uint("login_id", attempt.ID))

	return &LoginResult{Authorized: false, AttemptID: attempt.ID, Account: account}, nil
}

// ResolveApproval applies a super-admin decision to a pending attempt and
// notifies the requester's primary channel. A vanished attempt or account is
// a benign no-op; only a double resolution is an error.
func (s *LoginService) ResolveApproval(ctx context.Context, attemptID uint, approved bool, resolverID uint) error {
	status := models.ApprovalRejected
	if approved {
		status = models.ApprovalApproved
	}

	attempt, err := s.attempts.Resolve(ctx, attemptID, status, resolverID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.logger.Warn("Resolving unknown login attempt", util.Uint("login_id", attemptID))
			return nil
		}
		if errors.Is(err, postgres.ErrAlreadyResolved) {
			return ErrAlreadyResolved
		}
		return err
	}

	account, err := s.accounts.GetByID(ctx, attempt.AccountID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			s.logger.Warn("Resolved attempt for vanished account",
				util.Uint("login_id", attemptID),
				util.Uint("account_id", attempt.AccountID))
			return nil
		}
		return err
	}

	unlock := s.lockAccount(account.ID)
	defer unlock()

	payload := realtime.LoginResponsePayload{Approved: false}
	if approved {
		signed, err := s.authorize(ctx, account)
		if err != nil {
			return err
		}
		payload = realtime.LoginResponsePayload{Approved: true, Token: signed, Account: account}
		s.publishAudit(ctx, models.AuditLoginApproved, account, resolverID, "")
	} else {
		s.publishAudit(ctx, models.AuditLoginRejected, account, resolverID, "")
	}

	// dropped silently when the requester never registered a channel
	if primary, ok := s.registry.PrimaryChannel(account.ID); ok {
		s.notifier.EmitTo(primary, realtime.EventLoginResponse, payload)
	}

	s.logger.Info("Login attempt resolved",
		util.Uint("login_id", attemptID),
		util.Uint("account_id", account.ID),
		util.Bool("approved", approved),
		util.Uint("resolved_by", resolverID))
	return nil
}

// Logout invalidates one issued token. The logged_in flag is cleared
// unconditionally even when other tokens for the account remain tracked,
// matching the shipped behavior.
func (s *LoginService) Logout(ctx context.Context, tokenString string) (*models.Account, error) {
	claims, err := s.tokens.Verify(tokenString)
	if err != nil {
		return nil, ErrInvalidToken
	}

	account, err := s.accounts.GetByID(ctx, claims.AccountID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	unlock := s.lockAccount(account.ID)
	defer unlock()

	if err := s.accounts.SetLoggedIn(ctx, account.ID, false); err != nil {
		return nil, err
	}
	account.IsLoggedIn = false
	s.dropToken(account.ID, tokenString)

	s.publishAudit(ctx, models.AuditLogout, account, account.ID, "")
	return account, nil
}

// ForceLogoutAll notifies every channel registered for the account and then
// destroys its session entry.
func (s *LoginService) ForceLogoutAll(ctx context.Context, accountID uint) error {
	unlock := s.lockAccount(accountID)
	defer unlock()

	payload := realtime.ForcedLogoutPayload{
		Reason:    realtime.ReasonLoggedOutRemotely,
		Timestamp: time.Now(),
	}
	for _, channelID := range s.registry.Channels(accountID) {
		s.notifier.EmitTo(channelID, realtime.EventForcedLogout, payload)
	}
	s.registry.Clear(accountID)

	if account, err := s.accounts.GetByID(ctx, accountID); err == nil {
		s.publishAudit(ctx, models.AuditForcedLogout, account, accountID, realtime.ReasonLoggedOutRemotely)
	}
	return nil
}

// StartPendingSweep launches the background rejection of stale pending
// attempts. No-op when the TTL is zero.
func (s *LoginService) StartPendingSweep(ctx context.Context) {
	if s.pendingTTL <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(s.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-s.pendingTTL)
				n, err := s.attempts.RejectStalePending(ctx, cutoff)
				if err != nil {
					s.logger.Error("Pending sweep failed", util.ErrorField(err))
					continue
				}
				if n > 0 {
					s.logger.Info("Rejected stale pending attempts", zap.Int64("count", n))
				}
			}
		}
	}()
}

// preemptSession evicts the account's live session: one forced_logout to the
// current primary channel, logged_in cleared, tracked tokens and registry
// entry dropped. Caller holds the account lock.
func (s *LoginService) preemptSession(ctx context.Context, account *models.Account) error {
	if primary, ok := s.registry.PrimaryChannel(account.ID); ok {
		s.notifier.EmitTo(primary, realtime.EventForcedLogout, realtime.ForcedLogoutPayload{
			Reason:    realtime.ReasonLoggedInElsewhere,
			Timestamp: time.Now(),
		})
	}

	if err := s.accounts.SetLoggedIn(ctx, account.ID, false); err != nil {
		return err
	}
	account.IsLoggedIn = false
	s.dropAllTokens(account.ID)
	s.registry.Clear(account.ID)

	s.publishAudit(ctx, models.AuditForcedLogout, account, account.ID, realtime.ReasonLoggedInElsewhere)
	return nil
}

// authorize issues a token, flips logged_in and tracks the token. Caller
// holds the account lock.
func (s *LoginService) authorize(ctx context.Context, account *models.Account) (string, error) {
	signed, err := s.tokens.Issue(account)
	if err != nil {
		return "", fmt.Errorf("failed to issue token: %w", err)
	}
	if err := s.accounts.SetLoggedIn(ctx, account.ID, true); err != nil {
		return "", err
	}
	account.IsLoggedIn = true
	s.trackToken(account.ID, signed)
	return signed, nil
}

func (s *LoginService) publishAudit(ctx context.Context, eventType string, account *models.Account, actorID uint, detail string) {
	s.auditLog.Publish(ctx, models.AuditEvent{
		EventType:    eventType,
		AccountID:    account.ID,
		EmployeeCode: account.EmployeeCode,
		ActorID:      actorID,
		Detail:       detail,
		OccurredAt:   time.Now(),
	})
}

func (s *LoginService) lockAccount(accountID uint) func() {
	s.lockMu.Lock()
	mu, ok := s.accountLocks[accountID]
	if !ok {
		mu = &sync.Mutex{}
		s.accountLocks[accountID] = mu
	}
	s.lockMu.Unlock()

	mu.Lock()
	return mu.Unlock
}

func (s *LoginService) trackToken(accountID uint, tok string) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	set, ok := s.activeTokens[accountID]
	if !ok {
		set = make(map[string]struct{})
		s.activeTokens[accountID] = set
	}
	set[tok] = struct{}{}
}

func (s *LoginService) dropToken(accountID uint, tok string) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	if set, ok := s.activeTokens[accountID]; ok {
		delete(set, tok)
		if len(set) == 0 {
			delete(s.activeTokens, accountID)
		}
	}
}

func (s *LoginService) dropAllTokens(accountID uint) {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	delete(s.activeTokens, accountID)
}

// ActiveTokenCount reports how many issued tokens are still tracked for an
// account.
func (s *LoginService) ActiveTokenCount(accountID uint) int {
	s.tokenMu.Lock()
	defer s.tokenMu.Unlock()
	return len(s.activeTokens[accountID])
}
