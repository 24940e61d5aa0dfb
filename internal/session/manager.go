package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusActive Status = "active"
	StatusEnded  Status = "ended"
)

var ErrNotFound = errors.New("session not found")

// Session records one live voice connection for introspection. The bridge
// owns the websocket itself; the registry only tracks lifecycle metadata.
type Session struct {
	ID             string        `json:"session_id"`
	AssistantID    int64         `json:"assistant_id"`
	AssistantUUID  string        `json:"assistant_uuid"`
	OrganizationID int64         `json:"organization_id"`
	APIKeyID       int64         `json:"api_key_id"`
	RemoteAddr     string        `json:"remote_addr"`
	Status         Status        `json:"status"`
	MaxDuration    time.Duration `json:"-"`
	StartedAt      time.Time     `json:"started_at"`
	LastActivityAt time.Time     `json:"last_activity_at"`
}

// StartInfo carries the identity of a newly established voice session.
type StartInfo struct {
	AssistantID    int64
	AssistantUUID  string
	OrganizationID int64
	APIKeyID       int64
	RemoteAddr     string
	MaxDuration    time.Duration
}

type Manager struct {
	mu                sync.RWMutex
	sessions          map[string]*Session
	inactivityTimeout time.Duration
	onExpire          func(*Session)
}

func NewManager(inactivityTimeout time.Duration) *Manager {
	if inactivityTimeout <= 0 {
		inactivityTimeout = 2 * time.Minute
	}
	return &Manager{
		sessions:          make(map[string]*Session),
		inactivityTimeout: inactivityTimeout,
	}
}

// SetExpireHook registers the callback the janitor invokes for each session
// it ends. The bridge uses it to force-close the underlying websocket.
func (m *Manager) SetExpireHook(hook func(*Session)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onExpire = hook
}

func (m *Manager) Start(info StartInfo) *Session {
	now := time.Now().UTC()
	s := &Session{
		ID:             uuid.NewString(),
		AssistantID:    info.AssistantID,
		AssistantUUID:  info.AssistantUUID,
		OrganizationID: info.OrganizationID,
		APIKeyID:       info.APIKeyID,
		RemoteAddr:     info.RemoteAddr,
		Status:         StatusActive,
		MaxDuration:    info.MaxDuration,
		StartedAt:      now,
		LastActivityAt: now,
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.ID] = s
	return clone(s)
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	return clone(s), nil
}

// Touch marks the session as recently active. The bridge calls it on every
// relayed client frame so the janitor only reaps genuinely idle sessions.
func (m *Manager) Touch(sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return ErrNotFound
	}
	s.LastActivityAt = time.Now().UTC()
	return nil
}

func (m *Manager) End(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	delete(m.sessions, sessionID)
	s.Status = StatusEnded
	s.LastActivityAt = time.Now().UTC()
	return clone(s), nil
}

func (m *Manager) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.expireStale()
			}
		}
	}()
}

func (m *Manager) ActiveCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// List returns all live sessions, most recent first is not guaranteed.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, clone(s))
	}
	return out
}

// expireStale ends sessions that have been idle past the inactivity timeout
// or have outlived their per-assistant maximum duration.
func (m *Manager) expireStale() {
	now := time.Now().UTC()
	var expired []*Session

	m.mu.Lock()
	for id, s := range m.sessions {
		idle := now.Sub(s.LastActivityAt) >= m.inactivityTimeout
		overran := s.MaxDuration > 0 && now.Sub(s.StartedAt) >= s.MaxDuration
		if !idle && !overran {
			continue
		}
		delete(m.sessions, id)
		s.Status = StatusEnded
		s.LastActivityAt = now
		expired = append(expired, clone(s))
	}
	hook := m.onExpire
	m.mu.Unlock()

	if hook != nil {
		for _, s := range expired {
			hook(s)
		}
	}
}

func clone(s *Session) *Session {
	c := *s
	return &c
}
