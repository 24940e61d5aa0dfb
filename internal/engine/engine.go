package engine

import (
	"context"
	"encoding/json"
)

// SessionConfig is the per-assistant snapshot passed to the engine at
// establishment. It is read once; no live updates happen mid-session.
type SessionConfig struct {
	SystemInstruction string
	Model             string
	Temperature       float64
	VoiceName         string
}

// Callbacks receive session events. Exactly one subscriber per session; all
// callbacks fire from a single goroutine in the order the engine emits them.
type Callbacks struct {
	OnOpen    func()
	OnMessage func(raw json.RawMessage)
	OnError   func(err error)
	OnClose   func(reason string)
}

func (cb Callbacks) open() {
	if cb.OnOpen != nil {
		cb.OnOpen()
	}
}

func (cb Callbacks) message(raw json.RawMessage) {
	if cb.OnMessage != nil {
		cb.OnMessage(raw)
	}
}

func (cb Callbacks) error(err error) {
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

func (cb Callbacks) close(reason string) {
	if cb.OnClose != nil {
		cb.OnClose(reason)
	}
}

// Session is one live streaming session with the speech engine.
type Session interface {
	SendAudio(ctx context.Context, pcm []byte) error
	SendText(ctx context.Context, text string) error
	Close() error
}

// Client opens streaming sessions with the external realtime speech engine.
type Client interface {
	Connect(ctx context.Context, cfg SessionConfig, cb Callbacks) (Session, error)
}
