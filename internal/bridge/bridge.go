package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/irkan/assistant-admin-panel-backend/internal/engine"
	"github.com/irkan/assistant-admin-panel-backend/internal/observability"
	"github.com/irkan/assistant-admin-panel-backend/internal/protocol"
	"github.com/irkan/assistant-admin-panel-backend/internal/session"
	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

// Validator resolves an API key and assistant UUID to a published assistant.
// Denials are opaque; the handler never learns which check failed.
type Validator interface {
	Validate(ctx context.Context, rawKey, assistantUUID string) (*store.Assistant, *store.APIKey, error)
}

type Config struct {
	AllowAnyOrigin     bool
	ConnectTimeout     time.Duration
	MaxSessionDuration time.Duration
	DefaultModel       string
	DefaultVoice       string
	DefaultTemperature float64
}

// Handler relays browser audio over a websocket to the realtime speech
// engine. One connection maps to exactly one engine session; closing either
// side tears down the other.
type Handler struct {
	cfg       Config
	validator Validator
	engine    engine.Client
	sessions  *session.Manager
	metrics   *observability.Metrics
	log       *zap.Logger
	upgrader  websocket.Upgrader

	mu    sync.Mutex
	links map[string]*link
}

func NewHandler(cfg Config, v Validator, eng engine.Client, sessions *session.Manager, metrics *observability.Metrics, log *zap.Logger) *Handler {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	h := &Handler{
		cfg:       cfg,
		validator: v,
		engine:    eng,
		sessions:  sessions,
		metrics:   metrics,
		log:       log,
		links:     make(map[string]*link),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			// Only allow browser connections from the same origin unless
			// explicitly opened up. Non-browser clients omit Origin.
			if cfg.AllowAnyOrigin {
				return true
			}
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			if origin == "" {
				return true
			}
			u, err := url.Parse(origin)
			if err != nil {
				return false
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return false
			}
			return strings.EqualFold(u.Host, r.Host)
		},
	}
	return h
}

// HandleExpired force-closes the connection backing a session the registry
// janitor has reaped. Registered as the session manager's expire hook.
func (h *Handler) HandleExpired(s *session.Session) {
	h.mu.Lock()
	l := h.links[s.ID]
	h.mu.Unlock()
	if l == nil {
		return
	}
	h.metrics.VoiceSessionEvents.WithLabelValues("expired").Inc()
	h.log.Info("voice session expired",
		zap.String("session_id", s.ID),
		zap.String("assistant_uuid", s.AssistantUUID))
	l.teardown()
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	assistantUUID := strings.TrimSpace(r.URL.Query().Get("assistantUuid"))
	rawKey := strings.TrimSpace(r.URL.Query().Get("apiKey"))

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	// Gatekeeper: both parameters are required before any other work.
	if assistantUUID == "" {
		h.reject(conn, websocket.ClosePolicyViolation, "assistantUuid is required", "rejected_params")
		return
	}
	if rawKey == "" {
		h.reject(conn, websocket.ClosePolicyViolation, "apiKey is required", "rejected_params")
		return
	}

	assistant, key, err := h.validator.Validate(r.Context(), rawKey, assistantUUID)
	if err != nil {
		// One generic reason for every denial so callers cannot probe which
		// check failed.
		h.reject(conn, websocket.ClosePolicyViolation, "access denied", "rejected_auth")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	l := &link{conn: conn, outbound: make(chan protocol.ServerMessage, 256)}

	writerDone := make(chan struct{})
	go l.writeLoop(ctx, writerDone, h.metrics)

	cb := engine.Callbacks{
		OnOpen: func() {
			l.send(h.metrics, protocol.Status("session opened"))
		},
		OnMessage: func(raw json.RawMessage) {
			l.send(h.metrics, protocol.Engine(raw))
		},
		OnError: func(err error) {
			h.metrics.EngineErrors.WithLabelValues("session").Inc()
			l.send(h.metrics, protocol.Error(err.Error()))
		},
		OnClose: func(reason string) {
			l.send(h.metrics, protocol.Status("session closed: "+reason))
			l.teardown()
		},
	}

	connectCtx, cancelConnect := context.WithTimeout(ctx, h.cfg.ConnectTimeout)
	start := time.Now()
	engSess, err := h.engine.Connect(connectCtx, h.sessionConfig(assistant), cb)
	cancelConnect()
	if err != nil {
		h.metrics.EngineErrors.WithLabelValues("connect").Inc()
		h.log.Warn("engine session establishment failed",
			zap.String("assistant_uuid", assistantUUID),
			zap.Error(err))
		h.reject(conn, websocket.CloseInternalServerErr, "speech engine unavailable", "rejected_upstream")
		cancel()
		<-writerDone
		return
	}
	h.metrics.ObserveEngineConnectLatency(time.Since(start))
	l.attach(engSess)

	rec := h.sessions.Start(session.StartInfo{
		AssistantID:    assistant.ID,
		AssistantUUID:  assistant.UUID,
		OrganizationID: assistant.OrganizationID,
		APIKeyID:       key.ID,
		RemoteAddr:     r.RemoteAddr,
		MaxDuration:    h.maxDuration(assistant),
	})
	h.track(rec.ID, l)
	h.metrics.VoiceSessionEvents.WithLabelValues("connected").Inc()
	h.metrics.ActiveVoiceSessions.Set(float64(h.sessions.ActiveCount()))
	h.log.Info("voice session connected",
		zap.String("session_id", rec.ID),
		zap.String("assistant_uuid", assistant.UUID),
		zap.Int64("organization_id", assistant.OrganizationID))

	h.maybeGreet(ctx, l, assistant)
	h.relay(ctx, l, rec.ID)

	l.teardown()
	cancel()
	<-writerDone
	h.untrack(rec.ID)
	if _, err := h.sessions.End(rec.ID); err == nil {
		h.metrics.VoiceSessionEvents.WithLabelValues("closed").Inc()
	}
	h.metrics.ActiveVoiceSessions.Set(float64(h.sessions.ActiveCount()))
	h.log.Info("voice session closed", zap.String("session_id", rec.ID))
}

// maybeGreet sends the configured opening line once per session when the
// assistant is supposed to speak first.
func (h *Handler) maybeGreet(ctx context.Context, l *link, assistant *store.Assistant) {
	if assistant.Details.InteractionMode != store.AssistantSpeaksFirst {
		return
	}
	greeting := strings.TrimSpace(assistant.Details.FirstMessage)
	if greeting == "" {
		return
	}
	if !l.markGreeted() {
		return
	}
	if err := l.sess.SendText(ctx, greeting); err != nil {
		h.log.Warn("greeting delivery failed", zap.Error(err))
	}
}

// relay forwards binary client frames to the engine in receipt order. Text
// frames are ignored; the audio direction carries no JSON framing.
func (h *Handler) relay(ctx context.Context, l *link, sessionID string) {
	l.conn.SetReadLimit(2 << 20)
	for {
		msgType, data, err := l.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		_ = h.sessions.Touch(sessionID)
		h.metrics.WSMessages.WithLabelValues("inbound", "audio").Inc()
		if err := l.sess.SendAudio(ctx, data); err != nil {
			h.metrics.EngineErrors.WithLabelValues("relay").Inc()
			l.send(h.metrics, protocol.Error("audio relay failed"))
			return
		}
	}
}

// maxDuration resolves the session duration cap: the assistant's configured
// maximum, bounded by the process-wide ceiling, which also serves as the
// fallback when the assistant sets none.
func (h *Handler) maxDuration(assistant *store.Assistant) time.Duration {
	d := time.Duration(assistant.Details.MaxDurationSec) * time.Second
	ceiling := h.cfg.MaxSessionDuration
	if d <= 0 {
		return ceiling
	}
	if ceiling > 0 && d > ceiling {
		return ceiling
	}
	return d
}

func (h *Handler) sessionConfig(assistant *store.Assistant) engine.SessionConfig {
	cfg := engine.SessionConfig{
		SystemInstruction: assistant.Details.SystemPrompt,
		Model:             assistant.Details.Model,
		Temperature:       assistant.Details.Temperature,
		VoiceName:         assistant.Details.SelectedVoice,
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = h.cfg.DefaultModel
	}
	if strings.TrimSpace(cfg.VoiceName) == "" {
		cfg.VoiceName = h.cfg.DefaultVoice
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = h.cfg.DefaultTemperature
	}
	return cfg
}

func (h *Handler) reject(conn *websocket.Conn, code int, reason, event string) {
	h.metrics.VoiceSessionEvents.WithLabelValues(event).Inc()
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(5*time.Second))
}

func (h *Handler) track(id string, l *link) {
	h.mu.Lock()
	h.links[id] = l
	h.mu.Unlock()
}

func (h *Handler) untrack(id string) {
	h.mu.Lock()
	delete(h.links, id)
	h.mu.Unlock()
}

// link ties one client websocket to one engine session.
type link struct {
	conn     *websocket.Conn
	outbound chan protocol.ServerMessage

	mu       sync.Mutex
	sess     engine.Session
	greeted  bool
	downOnce sync.Once
}

func (l *link) attach(s engine.Session) {
	l.mu.Lock()
	l.sess = s
	l.mu.Unlock()
}

// markGreeted flips the greeting flag, reporting whether this call won.
func (l *link) markGreeted() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.greeted {
		return false
	}
	l.greeted = true
	return true
}

// send enqueues a message for the single writer goroutine, dropping it when
// the outbound queue is saturated rather than blocking an engine callback.
func (l *link) send(m *observability.Metrics, msg protocol.ServerMessage) {
	select {
	case l.outbound <- msg:
	default:
		m.WSMessages.WithLabelValues("outbound", "dropped").Inc()
	}
}

func (l *link) writeLoop(ctx context.Context, done chan<- struct{}, m *observability.Metrics) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-l.outbound:
			_ = l.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := l.conn.WriteJSON(msg); err != nil {
				return
			}
			m.WSMessages.WithLabelValues("outbound", string(msg.Type)).Inc()
		}
	}
}

// teardown closes both ends exactly once. Safe to call from any goroutine
// and before an engine session exists.
func (l *link) teardown() {
	l.downOnce.Do(func() {
		l.mu.Lock()
		sess := l.sess
		l.mu.Unlock()
		if sess != nil {
			_ = sess.Close()
		}
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session ended")
		_ = l.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = l.conn.Close()
	})
}
