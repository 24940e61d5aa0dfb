package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/irkan/assistant-admin-panel-backend/internal/apikey"
	"github.com/irkan/assistant-admin-panel-backend/internal/engine"
	"github.com/irkan/assistant-admin-panel-backend/internal/observability"
	"github.com/irkan/assistant-admin-panel-backend/internal/protocol"
	"github.com/irkan/assistant-admin-panel-backend/internal/session"
	"github.com/irkan/assistant-admin-panel-backend/internal/store"
)

// fakeStore backs the real key validator and counts every lookup so tests can
// assert that rejected handshakes never touch storage.
type fakeStore struct {
	mu         sync.Mutex
	key        *store.APIKey
	assistants map[string]*store.Assistant
	lookups    int
	touches    int
}

func (f *fakeStore) APIKeyByHash(_ context.Context, keyHash string) (*store.APIKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.key != nil && f.key.KeyHash == keyHash {
		k := *f.key
		return &k, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) PublishedAssistantByUUID(_ context.Context, uuid string, organizationID int64) (*store.Assistant, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	a, ok := f.assistants[uuid]
	if !ok || a.OrganizationID != organizationID {
		return nil, store.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (f *fakeStore) TouchAPIKeyLastUsed(_ context.Context, _ int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touches++
	return nil
}

func (f *fakeStore) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

// fakeEngine records session traffic in order and can be told to fail.
type fakeEngine struct {
	mu         sync.Mutex
	connectErr error
	sessions   []*fakeEngineSession
}

func (f *fakeEngine) Connect(_ context.Context, cfg engine.SessionConfig, cb engine.Callbacks) (engine.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return nil, f.connectErr
	}
	s := &fakeEngineSession{cfg: cfg, cb: cb}
	f.sessions = append(f.sessions, s)
	cb.OnOpen()
	return s, nil
}

func (f *fakeEngine) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeEngine) sessionCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions)
}

func (f *fakeEngine) session(t *testing.T) *fakeEngineSession {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sessions) != 1 {
		t.Fatalf("engine opened %d sessions, want 1", len(f.sessions))
	}
	return f.sessions[0]
}

type fakeEngineSession struct {
	cfg engine.SessionConfig
	cb  engine.Callbacks

	mu     sync.Mutex
	audio  [][]byte
	texts  []string
	closes int
}

func (s *fakeEngineSession) SendAudio(_ context.Context, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio = append(s.audio, append([]byte(nil), pcm...))
	return nil
}

func (s *fakeEngineSession) SendText(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	return nil
}

func (s *fakeEngineSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *fakeEngineSession) audioFrames() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.audio))
	copy(out, s.audio)
	return out
}

func (s *fakeEngineSession) sentTexts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.texts...)
}

func (s *fakeEngineSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

type fixture struct {
	store    *fakeStore
	engine   *fakeEngine
	sessions *session.Manager
	handler  *Handler
	server   *httptest.Server
	rawKey   string
}

func newFixture(t *testing.T, assistant *store.Assistant, allowed []int64) *fixture {
	t.Helper()
	return newFixtureWithCap(t, assistant, allowed, 0)
}

func newFixtureWithCap(t *testing.T, assistant *store.Assistant, allowed []int64, sessionCap time.Duration) *fixture {
	t.Helper()

	gen, err := apikey.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	fs := &fakeStore{
		key: &store.APIKey{
			ID:                  11,
			OrganizationID:      assistant.OrganizationID,
			KeyHash:             gen.Hash,
			AllowedAssistantIDs: allowed,
			Active:              true,
			ExpiresAt:           time.Now().Add(time.Hour),
		},
		assistants: map[string]*store.Assistant{assistant.UUID: assistant},
	}
	fe := &fakeEngine{}
	sessions := session.NewManager(time.Minute)
	metrics := observability.NewMetrics("bridgetest" + strings.ReplaceAll(t.Name(), "/", "_"))

	h := NewHandler(Config{
		AllowAnyOrigin:     true,
		ConnectTimeout:     2 * time.Second,
		MaxSessionDuration: sessionCap,
		DefaultModel:       "default-model",
		DefaultVoice:       "DefaultVoice",
		DefaultTemperature: 0.5,
	}, apikey.NewValidator(fs, zap.NewNop()), fe, sessions, metrics, zap.NewNop())
	sessions.SetExpireHook(h.HandleExpired)

	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return &fixture{store: fs, engine: fe, sessions: sessions, handler: h, server: srv, rawKey: gen.Raw}
}

func publishedAssistant() *store.Assistant {
	return &store.Assistant{
		ID:             7,
		UUID:           "1f0a4c9e-0000-4000-8000-000000000001",
		OrganizationID: 3,
		Name:           "Support",
		Status:         store.AssistantPublished,
		Active:         true,
		Details: store.AssistantDetails{
			SystemPrompt:    "You help customers.",
			InteractionMode: store.UserSpeaksFirst,
			Model:           "gemini-live",
			SelectedVoice:   "Orus",
			Temperature:     0.7,
		},
	}
}

func (fx *fixture) dial(t *testing.T, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(fx.server.URL, "http") + "/?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func (fx *fixture) dialValid(t *testing.T, assistantUUID string) *websocket.Conn {
	t.Helper()
	return fx.dial(t, "assistantUuid="+assistantUUID+"&apiKey="+fx.rawKey)
}

// readClose reads until the peer closes and returns the close code and reason.
func readClose(t *testing.T, conn *websocket.Conn) (int, string) {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		if errors.As(err, &ce) {
			return ce.Code, ce.Text
		}
		t.Fatalf("ReadMessage() error = %v, want close frame", err)
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg protocol.ServerMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func TestMissingParamsRejectedWithoutLookups(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)

	cases := map[string]string{
		"no_assistant": "apiKey=" + fx.rawKey,
		"no_key":       "assistantUuid=" + assistant.UUID,
		"neither":      "",
	}
	for name, query := range cases {
		t.Run(name, func(t *testing.T) {
			conn := fx.dial(t, query)
			code, reason := readClose(t, conn)
			if code != websocket.ClosePolicyViolation {
				t.Fatalf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
			}
			if !strings.Contains(reason, "required") {
				t.Fatalf("close reason = %q, want a missing-parameter message", reason)
			}
		})
	}
	if n := fx.store.lookupCount(); n != 0 {
		t.Fatalf("store lookups = %d, want 0", n)
	}
}

func TestDenialsAreIndistinguishable(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)

	otherTenant := publishedAssistant()
	otherTenant.UUID = "1f0a4c9e-0000-4000-8000-000000000099"
	otherTenant.OrganizationID = 999
	fx.store.assistants[otherTenant.UUID] = otherTenant

	cases := map[string]string{
		"malformed_key":     "assistantUuid=" + assistant.UUID + "&apiKey=not-a-key",
		"unknown_key":       "assistantUuid=" + assistant.UUID + "&apiKey=ak_" + strings.Repeat("0", 64),
		"foreign_assistant": "assistantUuid=" + otherTenant.UUID + "&apiKey=" + fx.rawKey,
	}
	var reasons []string
	for name, query := range cases {
		t.Run(name, func(t *testing.T) {
			conn := fx.dial(t, query)
			code, reason := readClose(t, conn)
			if code != websocket.ClosePolicyViolation {
				t.Fatalf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
			}
			reasons = append(reasons, reason)
		})
	}
	for i := 1; i < len(reasons); i++ {
		if reasons[i] != reasons[0] {
			t.Fatalf("denial reasons differ: %q vs %q", reasons[0], reasons[i])
		}
	}
	if n := fx.engine.sessionCount(); n != 0 {
		t.Fatalf("engine sessions = %d, want 0 after denials", n)
	}
}

func TestScopedKeyDeniesOutOfScopeAssistant(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, []int64{12345})

	conn := fx.dialValid(t, assistant.UUID)
	code, _ := readClose(t, conn)
	if code != websocket.ClosePolicyViolation {
		t.Fatalf("close code = %d, want %d", code, websocket.ClosePolicyViolation)
	}
}

func TestUpstreamFailureClosesWithInternalError(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)
	fx.engine.setConnectErr(errors.New("engine down"))

	conn := fx.dialValid(t, assistant.UUID)
	code, reason := readClose(t, conn)
	if code != websocket.CloseInternalServerErr {
		t.Fatalf("close code = %d, want %d", code, websocket.CloseInternalServerErr)
	}
	if !strings.Contains(reason, "unavailable") {
		t.Fatalf("close reason = %q, want upstream-unavailable message", reason)
	}
	if fx.sessions.ActiveCount() != 0 {
		t.Fatalf("ActiveCount() = %d, want 0 after failed establishment", fx.sessions.ActiveCount())
	}
}

func TestSuccessfulSessionEmitsOpenedStatus(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeStatus {
		t.Fatalf("first message type = %q, want %q", msg.Type, protocol.TypeStatus)
	}
	var text string
	if err := json.Unmarshal(msg.Data, &text); err != nil {
		t.Fatalf("status data = %s, want JSON string", msg.Data)
	}
	if !strings.Contains(text, "opened") {
		t.Fatalf("status text = %q, want opened notification", text)
	}

	sess := fx.engine.session(t)
	if sess.cfg.SystemInstruction != assistant.Details.SystemPrompt {
		t.Fatalf("SystemInstruction = %q, want %q", sess.cfg.SystemInstruction, assistant.Details.SystemPrompt)
	}
	if sess.cfg.Model != "gemini-live" || sess.cfg.VoiceName != "Orus" {
		t.Fatalf("engine config = %+v, want assistant overrides applied", sess.cfg)
	}
	waitFor(t, func() bool { return fx.sessions.ActiveCount() == 1 })
}

func TestGreetingSentExactlyOnce(t *testing.T) {
	assistant := publishedAssistant()
	assistant.Details.InteractionMode = store.AssistantSpeaksFirst
	assistant.Details.FirstMessage = "Hello, how can I help?"
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	readEnvelope(t, conn)

	sess := fx.engine.session(t)
	waitFor(t, func() bool { return len(sess.sentTexts()) == 1 })

	// More inbound traffic must not re-trigger the greeting.
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	waitFor(t, func() bool { return len(sess.audioFrames()) == 1 })

	texts := sess.sentTexts()
	if len(texts) != 1 || texts[0] != "Hello, how can I help?" {
		t.Fatalf("greetings = %v, want exactly one configured greeting", texts)
	}
}

func TestNoGreetingWhenUserSpeaksFirst(t *testing.T) {
	assistant := publishedAssistant()
	assistant.Details.FirstMessage = "Should stay unsent"
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	readEnvelope(t, conn)

	sess := fx.engine.session(t)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1}); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}
	waitFor(t, func() bool { return len(sess.audioFrames()) == 1 })
	if texts := sess.sentTexts(); len(texts) != 0 {
		t.Fatalf("greetings = %v, want none", texts)
	}
}

func TestRelayPreservesFrameOrder(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	readEnvelope(t, conn)

	frames := [][]byte{{0xF1}, {0xF2, 0x00}, {0xF3, 0x01, 0x02}}
	for _, f := range frames {
		if err := conn.WriteMessage(websocket.BinaryMessage, f); err != nil {
			t.Fatalf("WriteMessage() error = %v", err)
		}
	}
	// Text frames are not audio and must be ignored.
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"noise":true}`)); err != nil {
		t.Fatalf("WriteMessage() error = %v", err)
	}

	sess := fx.engine.session(t)
	waitFor(t, func() bool { return len(sess.audioFrames()) == 3 })
	got := sess.audioFrames()
	for i, f := range frames {
		if !bytes.Equal(got[i], f) {
			t.Fatalf("frame %d = %v, want %v", i, got[i], f)
		}
	}
}

func TestEngineMessagesPassThroughAsEnvelopes(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	readEnvelope(t, conn)

	sess := fx.engine.session(t)
	raw := json.RawMessage(`{"serverContent":{"turnComplete":true}}`)
	sess.cb.OnMessage(raw)

	msg := readEnvelope(t, conn)
	if msg.Type != protocol.TypeEngine {
		t.Fatalf("type = %q, want %q", msg.Type, protocol.TypeEngine)
	}
	if string(msg.Data) != string(raw) {
		t.Fatalf("data = %s, want engine payload unchanged", msg.Data)
	}
}

func TestClientDisconnectTearsDownEngineSessionOnce(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	readEnvelope(t, conn)
	sess := fx.engine.session(t)

	conn.Close()
	waitFor(t, func() bool { return sess.closeCount() >= 1 })
	waitFor(t, func() bool { return fx.sessions.ActiveCount() == 0 })

	time.Sleep(50 * time.Millisecond)
	if n := sess.closeCount(); n != 1 {
		t.Fatalf("engine Close called %d times, want 1", n)
	}
}

func TestEngineCloseTearsDownClientConnection(t *testing.T) {
	assistant := publishedAssistant()
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	readEnvelope(t, conn)
	sess := fx.engine.session(t)

	sess.cb.OnClose("upstream gone")

	code, _ := readClose(t, conn)
	if code != websocket.CloseNormalClosure {
		t.Fatalf("close code = %d, want %d", code, websocket.CloseNormalClosure)
	}
	waitFor(t, func() bool { return fx.sessions.ActiveCount() == 0 })
}

func TestSessionDurationCapFromConfig(t *testing.T) {
	t.Run("fallback_when_assistant_unset", func(t *testing.T) {
		assistant := publishedAssistant()
		fx := newFixtureWithCap(t, assistant, nil, 30*time.Minute)

		conn := fx.dialValid(t, assistant.UUID)
		readEnvelope(t, conn)
		waitFor(t, func() bool { return fx.sessions.ActiveCount() == 1 })

		if got := fx.sessions.List()[0].MaxDuration; got != 30*time.Minute {
			t.Fatalf("MaxDuration = %v, want configured cap %v", got, 30*time.Minute)
		}
	})

	t.Run("ceiling_clamps_assistant_value", func(t *testing.T) {
		assistant := publishedAssistant()
		assistant.Details.MaxDurationSec = 7200
		fx := newFixtureWithCap(t, assistant, nil, 30*time.Minute)

		conn := fx.dialValid(t, assistant.UUID)
		readEnvelope(t, conn)
		waitFor(t, func() bool { return fx.sessions.ActiveCount() == 1 })

		if got := fx.sessions.List()[0].MaxDuration; got != 30*time.Minute {
			t.Fatalf("MaxDuration = %v, want clamped to cap %v", got, 30*time.Minute)
		}
	})

	t.Run("assistant_value_within_cap_kept", func(t *testing.T) {
		assistant := publishedAssistant()
		assistant.Details.MaxDurationSec = 600
		fx := newFixtureWithCap(t, assistant, nil, 30*time.Minute)

		conn := fx.dialValid(t, assistant.UUID)
		readEnvelope(t, conn)
		waitFor(t, func() bool { return fx.sessions.ActiveCount() == 1 })

		if got := fx.sessions.List()[0].MaxDuration; got != 10*time.Minute {
			t.Fatalf("MaxDuration = %v, want assistant value %v", got, 10*time.Minute)
		}
	})
}

func TestJanitorExpiryForcesConnectionClosed(t *testing.T) {
	assistant := publishedAssistant()
	assistant.Details.MaxDurationSec = 1
	fx := newFixture(t, assistant, nil)

	conn := fx.dialValid(t, assistant.UUID)
	readEnvelope(t, conn)
	sess := fx.engine.session(t)

	// The janitor reaps the session once its maximum duration elapses and
	// the expire hook must close both ends.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.sessions.StartJanitor(ctx, 50*time.Millisecond)

	waitFor(t, func() bool { return fx.sessions.ActiveCount() == 0 })
	waitFor(t, func() bool { return sess.closeCount() >= 1 })

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}
