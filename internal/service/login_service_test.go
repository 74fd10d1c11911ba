package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"repairdesk/internal/config"
	"repairdesk/internal/hashing"
	"repairdesk/internal/models"
	"repairdesk/internal/realtime"
	"repairdesk/internal/repository/postgres"
	"repairdesk/internal/token"
)

// ---- fakes ----

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[uint]*models.Account
	nextID   uint
}

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{accounts: make(map[uint]*models.Account), nextID: 1}
}

func (r *fakeAccountRepo) Create(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account.ID = r.nextID
	r.nextID++
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) GetByID(_ context.Context, id uint) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

func (r *fakeAccountRepo) GetActiveByCode(_ context.Context, code string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, account := range r.accounts {
		if account.EmployeeCode == code && account.IsActive {
			cp := *account
			return &cp, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (r *fakeAccountRepo) ListStandard(_ context.Context) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Account
	for _, account := range r.accounts {
		if account.IsActive && account.Role != models.RolePrivileged {
			cp := *account
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAccountRepo) Update(_ context.Context, account *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *account
	r.accounts[account.ID] = &cp
	return nil
}

func (r *fakeAccountRepo) SetLoggedIn(_ context.Context, id uint, loggedIn bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return postgres.ErrNotFound
	}
	account.IsLoggedIn = loggedIn
	return nil
}

func (r *fakeAccountRepo) Deactivate(_ context.Context, id uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[id]
	if !ok {
		return postgres.ErrNotFound
	}
	account.IsActive = false
	return nil
}

func (r *fakeAccountRepo) LastEmployeeCode(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *models.Account
	for _, account := range r.accounts {
		if last == nil || account.ID > last.ID {
			last = account
		}
	}
	if last == nil {
		return "", nil
	}
	return last.EmployeeCode, nil
}

func (r *fakeAccountRepo) loggedIn(id uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].IsLoggedIn
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts map[uint]*models.LoginAttempt
	nextID   uint
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{attempts: make(map[uint]*models.LoginAttempt), nextID: 1}
}

func (r *fakeAttemptRepo) CreateAttempt(_ context.Context, accountID uint) (*models.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt := &models.LoginAttempt{
		ID:          r.nextID,
		AccountID:   accountID,
		Status:      models.ApprovalPending,
		AttemptedAt: time.Now(),
		IsActive:    true,
	}
	r.nextID++
	r.attempts[attempt.ID] = attempt
	cp := *attempt
	return &cp, nil
}

func (r *fakeAttemptRepo) GetByID(_ context.Context, id uint) (*models.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	cp := *attempt
	return &cp, nil
}

func (r *fakeAttemptRepo) Resolve(_ context.Context, id uint, status models.ApprovalStatus, resolvedBy uint) (*models.LoginAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	attempt, ok := r.attempts[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	if attempt.Status != models.ApprovalPending {
		cp := *attempt
		return &cp, postgres.ErrAlreadyResolved
	}
	now := time.Now()
	attempt.Status = status
	attempt.ResolvedBy = &resolvedBy
	attempt.ResolvedAt = &now
	cp := *attempt
	return &cp, nil
}

func (r *fakeAttemptRepo) RejectStalePending(_ context.Context, olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	now := time.Now()
	for _, attempt := range r.attempts {
		if attempt.Status == models.ApprovalPending && attempt.AttemptedAt.Before(olderThan) {
			attempt.Status = models.ApprovalRejected
			attempt.ResolvedAt = &now
			n++
		}
	}
	return n, nil
}

type sentEvent struct {
	ChannelID string
	Event     string
	Payload   interface{}
}

type fakeNotifier struct {
	mu         sync.Mutex
	emitted    []sentEvent
	broadcasts []sentEvent
}

func (n *fakeNotifier) EmitTo(channelID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.emitted = append(n.emitted, sentEvent{ChannelID: channelID, Event: event, Payload: payload})
}

func (n *fakeNotifier) Broadcast(event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.broadcasts = append(n.broadcasts, sentEvent{Event: event, Payload: payload})
}

func (n *fakeNotifier) emittedEvents() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.emitted...)
}

func (n *fakeNotifier) broadcastEvents() []sentEvent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]sentEvent(nil), n.broadcasts...)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.AuditEvent
}

func (p *fakePublisher) Publish(_ context.Context, event models.AuditEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *fakePublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

// ---- harness ----

type loginFixture struct {
	svc      *LoginService
	accounts *fakeAccountRepo
	attempts *fakeAttemptRepo
	registry *realtime.Registry
	notifier *fakeNotifier
	auditLog *fakePublisher
	tokens   *token.Manager
	hasher   *hashing.Hasher
}

func newLoginFixture(t *testing.T) *loginFixture {
	t.Helper()

	cfg := &config.Config{Auth: config.AuthConfig{BcryptCost: bcrypt.MinCost}}
	f := &loginFixture{
		accounts: newFakeAccountRepo(),
		attempts: newFakeAttemptRepo(),
		registry: realtime.NewRegistry(),
		notifier: &fakeNotifier{},
		auditLog: &fakePublisher{},
		tokens:   token.NewManager("test-secret", time.Hour),
		hasher:   hashing.NewHasher(cfg),
	}
	f.svc = NewLoginService(
		f.accounts, f.attempts, f.registry, f.notifier,
		f.tokens, f.hasher, f.auditLog,
		0, time.Minute,
		zap.NewNop(),
	)
	return f
}

func (f *loginFixture) addAccount(t *testing.T, code, password string, role models.Role) *models.Account {
	t.Helper()
	hash, err := f.hasher.Hash(password)
	require.NoError(t, err)
	account := &models.Account{
		EmployeeCode: code,
		DisplayName:  "Employee " + code,
		PasswordHash: hash,
		Role:         role,
		Avatar:       "uploads/" + code + ".png",
		IsActive:     true,
	}
	require.NoError(t, f.accounts.Create(context.Background(), account))
	return account
}

// ---- tests ----

func TestAttemptLoginInvalidCredentials(t *testing.T) {
	f := newLoginFixture(t)
	f.addAccount(t, "PR0001", "secret", models.RoleStandard)
	ctx := context.Background()

	_, err := f.svc.AttemptLogin(ctx, "PR0001", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = f.svc.AttemptLogin(ctx, "PR9999", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	// no ledger entry, no broadcast, no state change on failure
	assert.Empty(t, f.attempts.attempts)
	assert.Empty(t, f.notifier.broadcastEvents())
	assert.Empty(t, f.auditLog.types())
}

func TestAttemptLoginDeactivatedAccount(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0001", "secret", models.RoleStandard)
	ctx := context.Background()

	require.NoError(t, f.accounts.Deactivate(ctx, account.ID))

	_, err := f.svc.AttemptLogin(ctx, "PR0001", "secret")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAttemptLoginPrivilegedBypassesApproval(t *testing.T) {
	f := newLoginFixture(t)
	admin := f.addAccount(t, "PR0001", "secret", models.RolePrivileged)
	ctx := context.Background()

	result, err := f.svc.AttemptLogin(ctx, "PR0001", "secret")
	require.NoError(t, err)
	assert.True(t, result.Authorized)
	assert.NotEmpty(t, result.Token)
	assert.True(t, result.Account.IsLoggedIn)

	claims, err := f.tokens.Verify(result.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, claims.AccountID)

	// no ledger entry and no login_request for the direct path
	assert.Empty(t, f.attempts.attempts)
	assert.Empty(t, f.notifier.broadcastEvents())
	assert.True(t, f.accounts.loggedIn(admin.ID))
	assert.Equal(t, []string{models.AuditLoginDirect}, f.auditLog.types())
	assert.Equal(t, 1, f.svc.ActiveTokenCount(admin.ID))
}

func TestAttemptLoginStandardParksPending(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	result, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)
	assert.False(t, result.Authorized)
	assert.Empty(t, result.Token)
	require.NotZero(t, result.AttemptID)

	attempt, err := f.attempts.GetByID(ctx, result.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalPending, attempt.Status)
	assert.Equal(t, account.ID, attempt.AccountID)

	// nothing authorized until a decision lands
	assert.False(t, f.accounts.loggedIn(account.ID))
	assert.Zero(t, f.svc.ActiveTokenCount(account.ID))

	broadcasts := f.notifier.broadcastEvents()
	require.Len(t, broadcasts, 1)
	assert.Equal(t, realtime.EventLoginRequest, broadcasts[0].Event)
	payload := broadcasts[0].Payload.(realtime.LoginRequestPayload)
	assert.Equal(t, result.AttemptID, payload.LoginID)
	assert.Equal(t, "PR0002", payload.Code)
	assert.Equal(t, account.ID, payload.AccountID)
	assert.Equal(t, account.DisplayName, payload.Name)
	assert.Equal(t, account.Avatar, payload.Avatar)
}

func TestAttemptLoginPreemptsLiveSession(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	// first device: pending -> approved -> registered channel
	first, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)
	require.NoError(t, f.svc.ResolveApproval(ctx, first.AttemptID, true, 99))
	f.registry.Register(account.ID, "chan-old")
	require.True(t, f.accounts.loggedIn(account.ID))
	require.Equal(t, 1, f.svc.ActiveTokenCount(account.ID))

	// second device logs in with the same credentials
	second, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)
	assert.False(t, second.Authorized)

	// old primary channel got exactly one forced_logout with the takeover reason
	var forced []sentEvent
	for _, e := range f.notifier.emittedEvents() {
		if e.Event == realtime.EventForcedLogout {
			forced = append(forced, e)
		}
	}
	require.Len(t, forced, 1)
	assert.Equal(t, "chan-old", forced[0].ChannelID)
	payload := forced[0].Payload.(realtime.ForcedLogoutPayload)
	assert.Equal(t, realtime.ReasonLoggedInElsewhere, payload.Reason)

	// session state torn down before the new attempt was parked
	assert.False(t, f.accounts.loggedIn(account.ID))
	assert.Zero(t, f.svc.ActiveTokenCount(account.ID))
	_, ok := f.registry.PrimaryChannel(account.ID)
	assert.False(t, ok)
}

// gatedAccountRepo parks the first credential fetch until released, opening
// the window between fetching the account row and taking the account lock.
type gatedAccountRepo struct {
	*fakeAccountRepo
	fetched chan struct{}
	release chan struct{}
	gated   atomic.Bool
}

func (r *gatedAccountRepo) GetActiveByCode(ctx context.Context, code string) (*models.Account, error) {
	account, err := r.fakeAccountRepo.GetActiveByCode(ctx, code)
	// only the first fetch parks; later fetches must not block on the gate
	if r.gated.CompareAndSwap(false, true) {
		close(r.fetched)
		<-r.release
	}
	return account, err
}

func TestAttemptLoginPreemptsAcrossConcurrentLogin(t *testing.T) {
	f := newLoginFixture(t)
	admin := f.addAccount(t, "PR0001", "secret", models.RolePrivileged)
	ctx := context.Background()

	gated := &gatedAccountRepo{
		fakeAccountRepo: f.accounts,
		fetched:         make(chan struct{}),
		release:         make(chan struct{}),
	}
	svc := NewLoginService(
		gated, f.attempts, f.registry, f.notifier,
		f.tokens, f.hasher, f.auditLog,
		0, time.Minute,
		zap.NewNop(),
	)

	// login B suspends right after fetching a not-logged-in account row
	type outcome struct {
		result *LoginResult
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := svc.AttemptLogin(ctx, "PR0001", "secret")
		done <- outcome{result, err}
	}()
	<-gated.fetched

	// login A completes in the window and registers its channel
	first, err := svc.AttemptLogin(ctx, "PR0001", "secret")
	require.NoError(t, err)
	require.True(t, first.Authorized)
	f.registry.Register(admin.ID, "chan-old")

	close(gated.release)
	res := <-done
	require.NoError(t, res.err)
	assert.True(t, res.result.Authorized)

	// B must see A's session despite its stale pre-lock fetch: exactly one
	// forced_logout to the old primary, and the old session entry is gone
	var forced []sentEvent
	for _, e := range f.notifier.emittedEvents() {
		if e.Event == realtime.EventForcedLogout {
			forced = append(forced, e)
		}
	}
	require.Len(t, forced, 1)
	assert.Equal(t, "chan-old", forced[0].ChannelID)
	payload := forced[0].Payload.(realtime.ForcedLogoutPayload)
	assert.Equal(t, realtime.ReasonLoggedInElsewhere, payload.Reason)

	_, ok := f.registry.PrimaryChannel(admin.ID)
	assert.False(t, ok)
	assert.Equal(t, 1, svc.ActiveTokenCount(admin.ID))
	assert.True(t, f.accounts.loggedIn(admin.ID))
}

func TestAttemptLoginPreemptsWithoutChannel(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	require.NoError(t, f.accounts.SetLoggedIn(ctx, account.ID, true))

	// no registered channel: the forced_logout is dropped, state still resets
	result, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)
	assert.False(t, result.Authorized)
	assert.Empty(t, f.notifier.emittedEvents())
	assert.False(t, f.accounts.loggedIn(account.ID))
}

func TestResolveApprovalApproved(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	result, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)
	f.registry.Register(account.ID, "chan-1")

	require.NoError(t, f.svc.ResolveApproval(ctx, result.AttemptID, true, 99))

	attempt, err := f.attempts.GetByID(ctx, result.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, attempt.Status)
	require.NotNil(t, attempt.ResolvedBy)
	assert.Equal(t, uint(99), *attempt.ResolvedBy)
	assert.NotNil(t, attempt.ResolvedAt)

	assert.True(t, f.accounts.loggedIn(account.ID))
	assert.Equal(t, 1, f.svc.ActiveTokenCount(account.ID))

	emitted := f.notifier.emittedEvents()
	require.Len(t, emitted, 1)
	assert.Equal(t, "chan-1", emitted[0].ChannelID)
	assert.Equal(t, realtime.EventLoginResponse, emitted[0].Event)
	payload := emitted[0].Payload.(realtime.LoginResponsePayload)
	assert.True(t, payload.Approved)
	assert.NotEmpty(t, payload.Token)
	require.NotNil(t, payload.Account)
	assert.Equal(t, account.ID, payload.Account.ID)

	claims, err := f.tokens.Verify(payload.Token)
	require.NoError(t, err)
	assert.Equal(t, account.ID, claims.AccountID)

	assert.Equal(t, []string{models.AuditLoginRequested, models.AuditLoginApproved}, f.auditLog.types())
}

func TestResolveApprovalRejected(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	result, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)
	f.registry.Register(account.ID, "chan-1")

	require.NoError(t, f.svc.ResolveApproval(ctx, result.AttemptID, false, 99))

	attempt, err := f.attempts.GetByID(ctx, result.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, attempt.Status)

	// rejection issues nothing
	assert.False(t, f.accounts.loggedIn(account.ID))
	assert.Zero(t, f.svc.ActiveTokenCount(account.ID))

	emitted := f.notifier.emittedEvents()
	require.Len(t, emitted, 1)
	payload := emitted[0].Payload.(realtime.LoginResponsePayload)
	assert.False(t, payload.Approved)
	assert.Empty(t, payload.Token)
}

func TestResolveApprovalTwiceFails(t *testing.T) {
	f := newLoginFixture(t)
	f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	result, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)

	require.NoError(t, f.svc.ResolveApproval(ctx, result.AttemptID, true, 99))
	err = f.svc.ResolveApproval(ctx, result.AttemptID, false, 99)
	assert.ErrorIs(t, err, ErrAlreadyResolved)

	// the first outcome stands
	attempt, err := f.attempts.GetByID(ctx, result.AttemptID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalApproved, attempt.Status)
}

func TestResolveApprovalUnknownAttemptIsBenign(t *testing.T) {
	f := newLoginFixture(t)

	assert.NoError(t, f.svc.ResolveApproval(context.Background(), 4242, true, 99))
	assert.Empty(t, f.notifier.emittedEvents())
}

func TestResolveApprovalWithoutChannelDropsResponse(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	result, err := f.svc.AttemptLogin(ctx, "PR0002", "secret")
	require.NoError(t, err)

	// requester never registered; the decision still lands in the ledger
	require.NoError(t, f.svc.ResolveApproval(ctx, result.AttemptID, true, 99))
	assert.Empty(t, f.notifier.emittedEvents())
	assert.True(t, f.accounts.loggedIn(account.ID))
}

func TestLogout(t *testing.T) {
	f := newLoginFixture(t)
	admin := f.addAccount(t, "PR0001", "secret", models.RolePrivileged)
	ctx := context.Background()

	result, err := f.svc.AttemptLogin(ctx, "PR0001", "secret")
	require.NoError(t, err)

	account, err := f.svc.Logout(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, admin.ID, account.ID)
	assert.False(t, f.accounts.loggedIn(admin.ID))
	assert.Zero(t, f.svc.ActiveTokenCount(admin.ID))
}

func TestLogoutInvalidToken(t *testing.T) {
	f := newLoginFixture(t)
	admin := f.addAccount(t, "PR0001", "secret", models.RolePrivileged)
	ctx := context.Background()

	_, err := f.svc.AttemptLogin(ctx, "PR0001", "secret")
	require.NoError(t, err)

	_, err = f.svc.Logout(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)

	// a token signed with a different secret is rejected the same way
	other := token.NewManager("other-secret", time.Hour)
	forged, err := other.Issue(admin)
	require.NoError(t, err)
	_, err = f.svc.Logout(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// failed logouts mutate nothing
	assert.True(t, f.accounts.loggedIn(admin.ID))
	assert.Equal(t, 1, f.svc.ActiveTokenCount(admin.ID))
}

func TestLogoutVanishedAccount(t *testing.T) {
	f := newLoginFixture(t)
	ctx := context.Background()

	ghost := &models.Account{ID: 777, DisplayName: "Ghost", Role: models.RoleStandard}
	tok, err := f.tokens.Issue(ghost)
	require.NoError(t, err)

	_, err = f.svc.Logout(ctx, tok)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLogoutClearsFlagWithOtherTokensTracked(t *testing.T) {
	f := newLoginFixture(t)
	admin := f.addAccount(t, "PR0001", "secret", models.RolePrivileged)
	ctx := context.Background()

	first, err := f.svc.AttemptLogin(ctx, "PR0001", "secret")
	require.NoError(t, err)

	// second direct login pre-empts the first, so force two tracked tokens by
	// marking the account logged out between logins; the display name change
	// keeps the two tokens distinct within the same second
	require.NoError(t, f.accounts.SetLoggedIn(ctx, admin.ID, false))
	stored, err := f.accounts.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	stored.DisplayName = "Renamed Admin"
	require.NoError(t, f.accounts.Update(ctx, stored))
	second, err := f.svc.AttemptLogin(ctx, "PR0001", "secret")
	require.NoError(t, err)
	require.NotEqual(t, first.Token, second.Token)
	require.Equal(t, 2, f.svc.ActiveTokenCount(admin.ID))

	// logging out one token clears the flag even though another remains
	_, err = f.svc.Logout(ctx, first.Token)
	require.NoError(t, err)
	assert.False(t, f.accounts.loggedIn(admin.ID))
	assert.Equal(t, 1, f.svc.ActiveTokenCount(admin.ID))
}

func TestForceLogoutAll(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	f.registry.Register(account.ID, "chan-1")
	f.registry.Register(account.ID, "chan-2")

	require.NoError(t, f.svc.ForceLogoutAll(ctx, account.ID))

	emitted := f.notifier.emittedEvents()
	require.Len(t, emitted, 2)
	channels := map[string]bool{}
	for _, e := range emitted {
		assert.Equal(t, realtime.EventForcedLogout, e.Event)
		payload := e.Payload.(realtime.ForcedLogoutPayload)
		assert.Equal(t, realtime.ReasonLoggedOutRemotely, payload.Reason)
		channels[e.ChannelID] = true
	}
	assert.True(t, channels["chan-1"])
	assert.True(t, channels["chan-2"])

	_, ok := f.registry.PrimaryChannel(account.ID)
	assert.False(t, ok)
	assert.Empty(t, f.registry.Channels(account.ID))
}

func TestForceLogoutAllNoChannels(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)

	require.NoError(t, f.svc.ForceLogoutAll(context.Background(), account.ID))
	assert.Empty(t, f.notifier.emittedEvents())
}

func TestPendingSweepRejectsStaleAttempts(t *testing.T) {
	f := newLoginFixture(t)
	account := f.addAccount(t, "PR0002", "secret", models.RoleStandard)
	ctx := context.Background()

	attempt, err := f.attempts.CreateAttempt(ctx, account.ID)
	require.NoError(t, err)

	// push the attempt past any cutoff
	f.attempts.mu.Lock()
	f.attempts.attempts[attempt.ID].AttemptedAt = time.Now().Add(-time.Hour)
	f.attempts.mu.Unlock()

	n, err := f.attempts.RejectStalePending(ctx, time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	swept, err := f.attempts.GetByID(ctx, attempt.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ApprovalRejected, swept.Status)
	assert.Nil(t, swept.ResolvedBy)

	// a swept attempt can no longer be approved
	err = f.svc.ResolveApproval(ctx, attempt.ID, true, 99)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestFullApprovalRoundTrip(t *testing.T) {
	f := newLoginFixture(t)
	admin := f.addAccount(t, "PR0001", "admin-secret", models.RolePrivileged)
	employee := f.addAccount(t, "PR0002", "emp-secret", models.RoleStandard)
	ctx := context.Background()

	// admin logs in directly and registers a channel
	adminLogin, err := f.svc.AttemptLogin(ctx, "PR0001", "admin-secret")
	require.NoError(t, err)
	require.True(t, adminLogin.Authorized)
	f.registry.Register(admin.ID, "chan-admin")

	// employee attempts login, registers, waits
	empLogin, err := f.svc.AttemptLogin(ctx, "PR0002", "emp-secret")
	require.NoError(t, err)
	require.False(t, empLogin.Authorized)
	f.registry.Register(employee.ID, "chan-emp")

	broadcasts := f.notifier.broadcastEvents()
	require.Len(t, broadcasts, 1)
	prompt := broadcasts[0].Payload.(realtime.LoginRequestPayload)

	// admin approves the prompted attempt
	require.NoError(t, f.svc.ResolveApproval(ctx, prompt.LoginID, true, admin.ID))

	var response *realtime.LoginResponsePayload
	for _, e := range f.notifier.emittedEvents() {
		if e.Event == realtime.EventLoginResponse && e.ChannelID == "chan-emp" {
			p := e.Payload.(realtime.LoginResponsePayload)
			response = &p
		}
	}
	require.NotNil(t, response)
	assert.True(t, response.Approved)

	claims, err := f.tokens.Verify(response.Token)
	require.NoError(t, err)
	assert.Equal(t, employee.ID, claims.AccountID)
	assert.True(t, f.accounts.loggedIn(employee.ID))

	// and the employee can log out with that token
	_, err = f.svc.Logout(ctx, response.Token)
	require.NoError(t, err)
	assert.False(t, f.accounts.loggedIn(employee.ID))
}
