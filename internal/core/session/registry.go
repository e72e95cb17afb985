package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/pdf-markup/internal/core/domain"
)

// Registry keeps live sessions in memory, keyed by a generated id.
type Registry struct {
	opts Options

	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry(opts Options) *Registry {
	return &Registry{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

func (r *Registry) Create() *Session {
	sess := New(uuid.NewString(), r.opts)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sess.ID()] = sess
	return sess
}

func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sess, ok := r.sessions[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrNotFound, "get session", fmt.Errorf("id=%s", id))
	}
	return sess, nil
}

func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return domain.WrapError(domain.ErrNotFound, "delete session", fmt.Errorf("id=%s", id))
	}
	delete(r.sessions, id)
	return nil
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Sweep removes sessions that have not changed since now minus idle.
// Sessions with a processing run in flight are kept.
func (r *Registry) Sweep(now time.Time, idle time.Duration) int {
	if idle <= 0 {
		return 0
	}
	cutoff := now.Add(-idle)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, sess := range r.sessions {
		if sess.idleSince(cutoff) {
			delete(r.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper sweeps idle sessions until ctx is done. It returns at once when
// idle is not positive.
func (r *Registry) RunSweeper(ctx context.Context, idle time.Duration, logger *slog.Logger) {
	if idle <= 0 {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	ticker := time.NewTicker(max(idle/4, time.Second))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if removed := r.Sweep(now, idle); removed > 0 {
				logger.Info("sessions_swept", "removed", removed, "remaining", r.Len(), "idle_ttl", idle.String())
			}
		}
	}
}
