// Package registry tracks live transport connections per owner.
//
// The registry is purely in-memory and process-local: it is rebuilt from
// scratch on restart, and the delivery queue compensates for lost handles
// via its persisted backlog. Registering a connection triggers a backlog
// flush for that owner through the OnRegister hook.
package registry

import (
	"log/slog"
	"sync"
	"time"
)

// SendFunc pushes one serialized payload over a live transport. It returns
// an error when the transport-level send failed.
type SendFunc func(payload []byte) error

// Handle describes one live connection for an owner.
type Handle struct {
	OwnerID     string
	SessionID   string
	Send        SendFunc
	ConnectedAt time.Time
}

// Registry is the sole owner of live connection handles. One handle per
// owner: a new registration replaces any previous one.
type Registry struct {
	mu         sync.RWMutex
	handles    map[string]*Handle
	onRegister func(ownerID string)
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{handles: make(map[string]*Handle)}
}

// OnRegister installs the callback invoked (in its own goroutine) after each
// successful registration. The delivery queue uses it to flush backlog.
func (r *Registry) OnRegister(fn func(ownerID string)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRegister = fn
}

// Register records a live handle for the owner, replacing any previous one,
// and triggers the registered flush hook.
func (r *Registry) Register(h *Handle) {
	r.mu.Lock()
	prev := r.handles[h.OwnerID]
	r.handles[h.OwnerID] = h
	hook := r.onRegister
	r.mu.Unlock()

	slog.Info("Registry.Register: connection registered", "ownerID", h.OwnerID, "sessionID", h.SessionID, "replaced", prev != nil)
	if hook != nil {
		go hook(h.OwnerID)
	}
}

// Unregister removes the owner's handle, but only if it still belongs to the
// given session. A disconnect racing a newer registration for the same owner
// must not drop the newer connection.
func (r *Registry) Unregister(ownerID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handles[ownerID]
	if !ok || h.SessionID != sessionID {
		slog.Debug("Registry.Unregister: stale or unknown session", "ownerID", ownerID, "sessionID", sessionID)
		return
	}
	delete(r.handles, ownerID)
	slog.Info("Registry.Unregister: connection removed", "ownerID", ownerID, "sessionID", sessionID)
}

// Live reports whether the owner currently has a registered handle.
func (r *Registry) Live(ownerID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handles[ownerID]
	return ok
}

// Sender returns the owner's send function, or nil when offline.
func (r *Registry) Sender(ownerID string) SendFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, ok := r.handles[ownerID]; ok {
		return h.Send
	}
	return nil
}
