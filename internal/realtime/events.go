package realtime

import (
	"encoding/json"
	"time"

	"repairdesk/internal/models"
)

// Client -> server events.
const (
	EventRegister     = "register"
	EventApproveLogin = "approve_login"
	EventForceLogout  = "force_logout"
	EventPing         = "ping"
)

// Server -> client events.
const (
	EventForcedLogout    = "forced_logout"
	EventLoginRequest    = "login_request"
	EventLoginResponse   = "login_response"
	EventApproveLoginAck = "approve_login_ack"
	EventPong            = "pong"
)

// Forced-logout reasons.
const (
	ReasonLoggedInElsewhere = "logged_in_elsewhere"
	ReasonLoggedOutRemotely = "logged_out_from_another_device"
)

// Envelope is the wire frame for inbound messages: an event name plus a
// raw payload decoded per event.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Message is an outbound frame.
type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// RegisterPayload binds the sending channel to an account.
type RegisterPayload struct {
	AccountID uint `json:"accountId"`
}

// ApproveLoginPayload carries a super-admin's decision on a pending attempt.
type ApproveLoginPayload struct {
	LoginID      uint `json:"loginId"`
	Approved     bool `json:"approved"`
	SuperAdminID uint `json:"superAdminId"`
}

// ForceLogoutPayload asks the server to evict every channel of an account.
type ForceLogoutPayload struct {
	AccountID uint `json:"accountId"`
}

// AckPayload acknowledges an approve_login frame.
type AckPayload struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// ForcedLogoutPayload tells a client its session was pre-empted.
type ForcedLogoutPayload struct {
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// LoginRequestPayload is broadcast so a super-admin client can show the
// approval prompt.
type LoginRequestPayload struct {
	LoginID   uint   `json:"loginId"`
	Avatar    string `json:"avatar"`
	Code      string `json:"code"`
	AccountID uint   `json:"accountId"`
	Name      string `json:"name"`
}

// LoginResponsePayload delivers the approval outcome to the requester.
type LoginResponsePayload struct {
	Approved bool            `json:"approved"`
	Token    string          `json:"token,omitempty"`
	Account  *models.Account `json:"account,omitempty"`
}

// Notifier delivers events to channels. Delivery is best-effort: no retry,
// no persistence, events to disconnected channels are dropped.
type Notifier interface {
	EmitTo(channelID, event string, payload interface{})
	Broadcast(event string, payload interface{})
}
