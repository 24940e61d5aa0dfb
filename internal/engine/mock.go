package engine

import (
	"context"
	"encoding/json"
	"sync"
)

// MockClient is a local fallback engine used when no Gemini API key is
// configured. Sessions acknowledge audio silently and echo text turns back as
// engine messages so the relay path stays exercisable end to end.
type MockClient struct{}

func NewMockClient() *MockClient { return &MockClient{} }

func (c *MockClient) Connect(_ context.Context, _ SessionConfig, cb Callbacks) (Session, error) {
	s := &mockSession{cb: cb}
	cb.open()
	return s, nil
}

type mockSession struct {
	mu     sync.Mutex
	cb     Callbacks
	closed bool

	audioChunks int
	texts       []string
}

func (s *mockSession) SendAudio(_ context.Context, _ []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.audioChunks++
	return nil
}

func (s *mockSession) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.texts = append(s.texts, text)
	cb := s.cb
	s.mu.Unlock()

	echo, _ := json.Marshal(map[string]string{"echo": text})
	cb.message(echo)
	return nil
}

func (s *mockSession) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cb := s.cb
	s.mu.Unlock()

	cb.close("mock session closed")
	return nil
}
