package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

// Coordinator is the slice of the login coordinator the hub needs to act on
// inbound frames. Wired after construction to break the hub/service cycle.
type Coordinator interface {
	ResolveApproval(ctx context.Context, attemptID uint, approved bool, resolverID uint) error
	ForceLogoutAll(ctx context.Context, accountID uint) error
}

// Hub owns every live websocket connection and implements Notifier on top of
// them. Channel/account bookkeeping is delegated to the Registry.
type Hub struct {
	registry *Registry
	logger   *zap.Logger

	mu    sync.RWMutex
	conns map[string]*Conn

	coordMu     sync.RWMutex
	coordinator Coordinator
}

func NewHub(registry *Registry, logger *zap.Logger) *Hub {
	return &Hub{
		registry: registry,
		logger:   logger,
		conns:    make(map[string]*Conn),
	}
}

// SetCoordinator wires the login coordinator in. Frames that need it are
// dropped with a warning until it is set.
func (h *Hub) SetCoordinator(c Coordinator) {
	h.coordMu.Lock()
	defer h.coordMu.Unlock()
	h.coordinator = c
}

func (h *Hub) getCoordinator() Coordinator {
	h.coordMu.RLock()
	defer h.coordMu.RUnlock()
	return h.coordinator
}

// Registry exposes the session registry backing this hub.
func (h *Hub) Registry() *Registry {
	return h.registry
}

func (h *Hub) addConn(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	h.logger.Info("Channel connected", zap.String("channel_id", c.id))
}

// removeConn drops the connection and its registry entry. Called exactly once
// per connection, from the read pump's defer.
func (h *Hub) removeConn(c *Conn) {
	h.mu.Lock()
	if _, ok := h.conns[c.id]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.conns, c.id)
	h.mu.Unlock()

	h.registry.Unregister(c.id)
	c.closeSend()

	h.logger.Info("Channel disconnected", zap.String("channel_id", c.id))
}

// EmitTo delivers one event to a specific channel. Best-effort: unknown
// channels and full send buffers drop the event.
func (h *Hub) EmitTo(channelID, event string, payload interface{}) {
	h.mu.RLock()
	c, ok := h.conns[channelID]
	h.mu.RUnlock()
	if !ok {
		h.logger.Debug("Dropping event for disconnected channel",
			zap.String("channel_id", channelID),
			zap.String("event", event))
		return
	}
	c.enqueue(Message{Event: event, Data: payload})
}

// Broadcast delivers one event to every connected channel.
func (h *Hub) Broadcast(event string, payload interface{}) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	msg := Message{Event: event, Data: payload}
	for _, c := range h.conns {
		c.enqueue(msg)
	}
}

// ConnectionCount reports the number of live channels, for health output.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// handleFrame dispatches one inbound envelope. Errors never propagate to the
// connection: realtime failures are logged and swallowed so they cannot take
// the coordinator down.
func (h *Hub) handleFrame(ctx context.Context, c *Conn, env Envelope) {
	switch env.Event {
	case EventPing:
		c.enqueue(Message{Event: EventPong})

	case EventRegister:
		var payload RegisterPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.AccountID == 0 {
			h.logger.Warn("Invalid register frame", zap.String("channel_id", c.id))
			return
		}
		h.registry.Register(payload.AccountID, c.id)
		h.logger.Info("Channel registered",
			zap.Uint("account_id", payload.AccountID),
			zap.String("channel_id", c.id))

	case EventApproveLogin:
		var payload ApproveLoginPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil ||
			payload.LoginID == 0 || payload.SuperAdminID == 0 {
			c.enqueue(Message{Event: EventApproveLoginAck, Data: AckPayload{
				Success: false,
				Error:   "invalid data for approval",
			}})
			return
		}

		coord := h.getCoordinator()
		if coord == nil {
			h.logger.Warn("approve_login before coordinator wired", zap.String("channel_id", c.id))
			return
		}
		if err := coord.ResolveApproval(ctx, payload.LoginID, payload.Approved, payload.SuperAdminID); err != nil {
			h.logger.Error("Approval failed",
				zap.Uint("login_id", payload.LoginID),
				zap.Error(err))
			c.enqueue(Message{Event: EventApproveLoginAck, Data: AckPayload{
				Success: false,
				Error:   err.Error(),
			}})
			return
		}
		c.enqueue(Message{Event: EventApproveLoginAck, Data: AckPayload{Success: true}})

	case EventForceLogout:
		var payload ForceLogoutPayload
		if err := json.Unmarshal(env.Data, &payload); err != nil || payload.AccountID == 0 {
			h.logger.Warn("Invalid force_logout frame", zap.String("channel_id", c.id))
			return
		}
		coord := h.getCoordinator()
		if coord == nil {
			return
		}
		if err := coord.ForceLogoutAll(ctx, payload.AccountID); err != nil {
			h.logger.Error("Force logout failed",
				zap.Uint("account_id", payload.AccountID),
				zap.Error(err))
		}

	default:
		h.logger.Debug("Unknown event",
			zap.String("event", env.Event),
			zap.String("channel_id", c.id))
	}
}
