package registry

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/quizduel/internal/obslog"
)

// Conn is one live duplex channel. WriteJSON must be safe for concurrent callers.
type Conn interface {
	ID() string
	WriteJSON(ctx context.Context, v any) error
}

// Registry binds player identities to their current connection. Last write wins.
type Registry struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func New() *Registry {
	return &Registry{conns: make(map[string]Conn)}
}

// Register binds player to c and returns the binding it replaced, if any.
func (r *Registry) Register(player string, c Conn) Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.conns[player]
	r.conns[player] = c
	return prev
}

func (r *Registry) Unregister(player string) {
	r.mu.Lock()
	delete(r.conns, player)
	r.mu.Unlock()
}

// Release removes the binding only if it still points at c, so cleanup of a replaced
// connection leaves the newer one alone.
func (r *Registry) Release(player string, c Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[player]
	if !ok || cur.ID() != c.ID() {
		return false
	}
	delete(r.conns, player)
	return true
}

func (r *Registry) Lookup(player string) (Conn, bool) {
	r.mu.RLock()
	c, ok := r.conns[player]
	r.mu.RUnlock()
	return c, ok
}

// Send writes msg to player's connection. It returns false when the player is not
// connected or the write fails; callers treat both as "peer absent".
func (r *Registry) Send(ctx context.Context, player string, msg any) bool {
	c, ok := r.Lookup(player)
	if !ok {
		return false
	}
	if err := c.WriteJSON(ctx, msg); err != nil {
		obslog.L().Debug("registry_send_failed", zap.String("player", player), zap.String("conn_id", c.ID()), zap.Error(err))
		return false
	}
	return true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}
