package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestBuildSetupFrame(t *testing.T) {
	frame := buildSetupFrame(SessionConfig{
		SystemInstruction: "You are a support assistant.",
		Model:             "gemini-2.5-flash-preview-native-audio-dialog",
		Temperature:       0.7,
		VoiceName:         "Orus",
	})

	if frame.Setup.Model != "models/gemini-2.5-flash-preview-native-audio-dialog" {
		t.Fatalf("Model = %q, want models/ prefix applied", frame.Setup.Model)
	}
	if frame.Setup.GenerationConfig.Temperature != 0.7 {
		t.Fatalf("Temperature = %v, want 0.7", frame.Setup.GenerationConfig.Temperature)
	}
	if got := frame.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName; got != "Orus" {
		t.Fatalf("VoiceName = %q, want %q", got, "Orus")
	}
	if frame.Setup.SystemInstruction == nil || frame.Setup.SystemInstruction.Parts[0].Text != "You are a support assistant." {
		t.Fatalf("SystemInstruction = %+v, want configured prompt", frame.Setup.SystemInstruction)
	}

	noPrompt := buildSetupFrame(SessionConfig{Model: "models/already-prefixed"})
	if noPrompt.Setup.Model != "models/already-prefixed" {
		t.Fatalf("Model = %q, want prefix untouched", noPrompt.Setup.Model)
	}
	if noPrompt.Setup.SystemInstruction != nil {
		t.Fatalf("SystemInstruction = %+v, want nil when prompt empty", noPrompt.Setup.SystemInstruction)
	}
}

// fakeEngineServer plays the engine side of the protocol: it acknowledges the
// setup frame, records subsequent client frames and can push messages back.
type fakeEngineServer struct {
	t  *testing.T
	up websocket.Upgrader

	mu     sync.Mutex
	frames []map[string]any
	conn   *websocket.Conn
	ready  chan struct{}
}

func newFakeEngineServer(t *testing.T) (*fakeEngineServer, *httptest.Server) {
	fe := &fakeEngineServer{t: t, ready: make(chan struct{})}
	srv := httptest.NewServer(http.HandlerFunc(fe.handle))
	t.Cleanup(srv.Close)
	return fe, srv
}

func (fe *fakeEngineServer) handle(w http.ResponseWriter, r *http.Request) {
	conn, err := fe.up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	fe.mu.Lock()
	fe.conn = conn
	fe.mu.Unlock()

	// First frame must be the setup.
	var setup map[string]any
	if err := conn.ReadJSON(&setup); err != nil {
		return
	}
	if _, ok := setup["setup"]; !ok {
		fe.t.Errorf("first frame = %v, want setup", setup)
	}
	if err := conn.WriteJSON(map[string]any{"setupComplete": map[string]any{}}); err != nil {
		return
	}
	close(fe.ready)

	for {
		var frame map[string]any
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		fe.mu.Lock()
		fe.frames = append(fe.frames, frame)
		fe.mu.Unlock()
	}
}

// drop kills the underlying connection without a close handshake, the way a
// network reset looks to the client.
func (fe *fakeEngineServer) drop() {
	fe.mu.Lock()
	conn := fe.conn
	fe.mu.Unlock()
	_ = conn.Close()
}

func (fe *fakeEngineServer) push(v any) {
	fe.mu.Lock()
	conn := fe.conn
	fe.mu.Unlock()
	if err := conn.WriteJSON(v); err != nil {
		fe.t.Errorf("push: %v", err)
	}
}

func (fe *fakeEngineServer) frameCount() int {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return len(fe.frames)
}

func (fe *fakeEngineServer) frame(i int) map[string]any {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.frames[i]
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestGeminiClientConnectAndRelay(t *testing.T) {
	fe, srv := newFakeEngineServer(t)

	client := NewGeminiClient(GeminiConfig{APIKey: "test", WSBaseURL: wsURL(srv), ConnectTimeout: 2 * time.Second})

	var (
		mu       sync.Mutex
		opened   bool
		messages []string
		errs     []error
		closed   []string
	)
	cb := Callbacks{
		OnOpen: func() { mu.Lock(); opened = true; mu.Unlock() },
		OnMessage: func(raw json.RawMessage) {
			mu.Lock()
			messages = append(messages, string(raw))
			mu.Unlock()
		},
		OnError: func(err error) { mu.Lock(); errs = append(errs, err); mu.Unlock() },
		OnClose: func(reason string) { mu.Lock(); closed = append(closed, reason); mu.Unlock() },
	}

	sess, err := client.Connect(context.Background(), SessionConfig{Model: "m", VoiceName: "Orus"}, cb)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	mu.Lock()
	if !opened {
		mu.Unlock()
		t.Fatalf("OnOpen not fired after Connect returned")
	}
	mu.Unlock()

	<-fe.ready

	if err := sess.SendAudio(context.Background(), []byte{0x01, 0x02}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}
	if err := sess.SendText(context.Background(), "Hello!"); err != nil {
		t.Fatalf("SendText() error = %v", err)
	}

	waitFor(t, func() bool { return fe.frameCount() == 2 })

	audio := fe.frame(0)
	ri, ok := audio["realtimeInput"].(map[string]any)
	if !ok {
		t.Fatalf("frame 0 = %v, want realtimeInput", audio)
	}
	chunks := ri["mediaChunks"].([]any)
	chunk := chunks[0].(map[string]any)
	if chunk["mimeType"] != inputAudioMIME {
		t.Fatalf("mimeType = %v, want %q", chunk["mimeType"], inputAudioMIME)
	}
	if chunk["data"] != base64.StdEncoding.EncodeToString([]byte{0x01, 0x02}) {
		t.Fatalf("data = %v, want base64 of the payload", chunk["data"])
	}

	text := fe.frame(1)
	if _, ok := text["clientContent"]; !ok {
		t.Fatalf("frame 1 = %v, want clientContent", text)
	}

	fe.push(map[string]any{"serverContent": map[string]any{"turnComplete": true}})
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(messages) == 1
	})
	mu.Lock()
	if !strings.Contains(messages[0], "serverContent") {
		t.Fatalf("message = %s, want raw serverContent frame", messages[0])
	}
	mu.Unlock()

	if err := sess.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := sess.Close(); err != nil {
		t.Fatalf("second Close() error = %v, want idempotent nil", err)
	}

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	if len(closed) > 1 {
		mu.Unlock()
		t.Fatalf("OnClose fired %d times, want at most once", len(closed))
	}
	if len(errs) != 0 {
		mu.Unlock()
		t.Fatalf("OnError fired %v after a local Close, want none", errs)
	}
	mu.Unlock()
}

func TestGeminiClientSurfacesAbruptDisconnect(t *testing.T) {
	fe, srv := newFakeEngineServer(t)

	client := NewGeminiClient(GeminiConfig{APIKey: "test", WSBaseURL: wsURL(srv), ConnectTimeout: 2 * time.Second})

	var (
		mu     sync.Mutex
		errs   []error
		closed []string
	)
	cb := Callbacks{
		OnError: func(err error) { mu.Lock(); errs = append(errs, err); mu.Unlock() },
		OnClose: func(reason string) { mu.Lock(); closed = append(closed, reason); mu.Unlock() },
	}

	sess, err := client.Connect(context.Background(), SessionConfig{Model: "m", VoiceName: "Orus"}, cb)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sess.Close()

	<-fe.ready
	fe.drop()

	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(closed) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if len(errs) != 1 {
		t.Fatalf("OnError fired %d times, want 1 for a dropped connection", len(errs))
	}
	if closed[0] != "connection closed" {
		t.Fatalf("OnClose reason = %q, want %q", closed[0], "connection closed")
	}
}

func TestGeminiClientConnectFailsWithoutSetupAck(t *testing.T) {
	var up websocket.Upgrader
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		var setup map[string]any
		_ = conn.ReadJSON(&setup)
		_ = conn.WriteJSON(map[string]any{"error": "bad setup"})
	}))
	defer srv.Close()

	client := NewGeminiClient(GeminiConfig{APIKey: "test", WSBaseURL: wsURL(srv), ConnectTimeout: 2 * time.Second})
	if _, err := client.Connect(context.Background(), SessionConfig{Model: "m"}, Callbacks{}); err == nil {
		t.Fatalf("Connect() error = nil, want setup rejection")
	}
}

func TestGeminiClientConnectRefused(t *testing.T) {
	client := NewGeminiClient(GeminiConfig{APIKey: "test", WSBaseURL: "ws://127.0.0.1:1", ConnectTimeout: time.Second})
	if _, err := client.Connect(context.Background(), SessionConfig{Model: "m"}, Callbacks{}); err == nil {
		t.Fatalf("Connect() error = nil, want dial failure")
	}
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
