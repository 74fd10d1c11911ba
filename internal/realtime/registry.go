package realtime

import "sync"

// Registry is the process-wide map from account id to its live realtime
// channels, with one channel designated primary. All mutation goes through
// this type; the maps are never exposed.
type Registry struct {
	mu sync.Mutex
	// account id -> session entry
	sessions map[uint]*sessionEntry
	// channel id -> owning account id
	owners map[string]uint
}

type sessionEntry struct {
	// registration order is kept so primary reassignment is deterministic
	channels []string
	primary  string
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[uint]*sessionEntry),
		owners:   make(map[string]uint),
	}
}

// Register adds channelID to the account's channel set and makes it primary.
// Idempotent; a channel already owned by a different account is moved. Never
// fails.
func (r *Registry) Register(accountID uint, channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if owner, ok := r.owners[channelID]; ok && owner != accountID {
		r.removeLocked(owner, channelID)
	}

	entry, ok := r.sessions[accountID]
	if !ok {
		entry = &sessionEntry{}
		r.sessions[accountID] = entry
	}

	if !contains(entry.channels, channelID) {
		entry.channels = append(entry.channels, channelID)
	}
	entry.primary = channelID
	r.owners[channelID] = accountID
}

// PrimaryChannel returns the account's current primary channel id, or false
// when the account has no active channels.
func (r *Registry) PrimaryChannel(accountID uint) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[accountID]
	if !ok || entry.primary == "" {
		return "", false
	}
	return entry.primary, true
}

// Channels returns a copy of the account's active channel ids.
func (r *Registry) Channels(accountID uint) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[accountID]
	if !ok {
		return nil
	}
	out := make([]string, len(entry.channels))
	copy(out, entry.channels)
	return out
}

// Unregister removes channelID from whichever account owns it. The session
// entry is destroyed when its last channel goes; if the primary goes while
// other channels remain, the oldest remaining channel becomes primary.
func (r *Registry) Unregister(channelID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	owner, ok := r.owners[channelID]
	if !ok {
		return
	}
	r.removeLocked(owner, channelID)
}

// Clear destroys the account's session entry entirely (forced logout).
func (r *Registry) Clear(accountID uint) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[accountID]
	if !ok {
		return
	}
	for _, ch := range entry.channels {
		delete(r.owners, ch)
	}
	delete(r.sessions, accountID)
}

func (r *Registry) removeLocked(accountID uint, channelID string) {
	delete(r.owners, channelID)

	entry, ok := r.sessions[accountID]
	if !ok {
		return
	}

	kept := entry.channels[:0]
	for _, ch := range entry.channels {
		if ch != channelID {
			kept = append(kept, ch)
		}
	}
	entry.channels = kept

	if len(entry.channels) == 0 {
		delete(r.sessions, accountID)
		return
	}
	if entry.primary == channelID {
		entry.primary = entry.channels[0]
	}
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
