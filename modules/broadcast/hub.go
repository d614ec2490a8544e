package broadcast

import (
	"context"
	"sync"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/uvuchan/chanchu/domain/file"
)

// Snapshotter runs fn with the current file list while no mutation can
// commit. The registry implements it.
type Snapshotter interface {
	Snapshot(fn func([]file.Record))
}

// Hub tracks connected sessions and fans registry changes out to them.
type Hub struct {
	sessions map[string]*Session
	done     chan struct{}
	mu       sync.RWMutex
	logger   types.Logger
}

// NewHub creates a new Hub.
func NewHub(logger types.Logger) *Hub {
	return &Hub{
		sessions: make(map[string]*Session),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Run blocks until ctx is cancelled, then disconnects every session.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.logger.Info("Hub shutting down", "sessions", h.ClientCount())
	h.closeAllSessions()
	close(h.done)
}

// Wait blocks until Run has returned.
func (h *Hub) Wait() {
	<-h.done
}

func (h *Hub) closeAllSessions() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*Session)
	h.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
	sessionsConnected.Set(0)
}

// Join sends the current file list to s and starts delivering changes to
// it. Both happen inside one snapshot, so s sees every later change exactly
// once and no earlier change twice.
func (h *Hub) Join(s *Session, snap Snapshotter) error {
	var err error
	snap.Snapshot(func(records []file.Record) {
		if err = s.Send(Envelope{Type: EventFilesList, Payload: file.CloneList(records)}); err != nil {
			return
		}

		h.mu.Lock()
		h.sessions[s.ID] = s
		count := len(h.sessions)
		h.mu.Unlock()

		s.markConnected()
		sessionsConnected.Set(float64(count))
	})
	if err != nil {
		return err
	}

	h.logger.Info("Session joined", "session_id", s.ID, "identity", s.Identity)
	return nil
}

// Leave removes s and closes it.
func (h *Hub) Leave(s *Session) {
	h.mu.Lock()
	_, ok := h.sessions[s.ID]
	if ok {
		delete(h.sessions, s.ID)
	}
	count := len(h.sessions)
	h.mu.Unlock()

	s.Close()
	if ok {
		sessionsConnected.Set(float64(count))
		h.logger.Info("Session left", "session_id", s.ID, "identity", s.Identity)
	}
}

// FileUpdated pushes a file_updated event to every session.
func (h *Hub) FileUpdated(rec file.Record) {
	h.Broadcast(Envelope{Type: EventFileUpdated, Payload: rec})
}

// FileDeleted pushes a file_deleted event to every session.
func (h *Hub) FileDeleted(rec file.Record) {
	h.Broadcast(Envelope{Type: EventFileDeleted, Payload: rec.ID})
}

// Broadcast queues env on every connected session without blocking.
// Sessions whose queue is full are disconnected; they recover the full
// state from the snapshot sent when they reconnect.
func (h *Hub) Broadcast(env Envelope) {
	data, err := env.Encode()
	if err != nil {
		h.logger.Error("Failed to marshal broadcast message", "type", env.Type, "error", err)
		return
	}

	var slow []*Session
	h.mu.RLock()
	for _, s := range h.sessions {
		if err := s.enqueue(data); err != nil {
			slow = append(slow, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range slow {
		h.logger.Warn("Dropping session that cannot keep up",
			"session_id", s.ID,
			"identity", s.Identity,
			"event", env.Type)
		sessionsDropped.Inc()
		h.Leave(s)
	}
}

// ClientCount returns the number of connected sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}
