package engine

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const bidiPath = "/ws/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

// inputAudioMIME describes the raw audio the bridge relays: 16 kHz mono PCM.
const inputAudioMIME = "audio/pcm;rate=16000"

type GeminiConfig struct {
	APIKey         string
	WSBaseURL      string
	ConnectTimeout time.Duration
}

// GeminiClient speaks the Gemini Live bidirectional websocket protocol.
type GeminiClient struct {
	cfg GeminiConfig
}

func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if strings.TrimSpace(cfg.WSBaseURL) == "" {
		cfg.WSBaseURL = "wss://generativelanguage.googleapis.com"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 15 * time.Second
	}
	return &GeminiClient{cfg: cfg}
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type setupFrame struct {
	Setup struct {
		Model            string `json:"model"`
		GenerationConfig struct {
			Temperature        float64  `json:"temperature"`
			ResponseModalities []string `json:"responseModalities"`
			SpeechConfig       struct {
				VoiceConfig struct {
					PrebuiltVoiceConfig struct {
						VoiceName string `json:"voiceName"`
					} `json:"prebuiltVoiceConfig"`
				} `json:"voiceConfig"`
			} `json:"speechConfig"`
		} `json:"generationConfig"`
		SystemInstruction *geminiContent `json:"systemInstruction,omitempty"`
	} `json:"setup"`
}

func buildSetupFrame(cfg SessionConfig) setupFrame {
	var frame setupFrame
	model := cfg.Model
	if !strings.HasPrefix(model, "models/") {
		model = "models/" + model
	}
	frame.Setup.Model = model
	frame.Setup.GenerationConfig.Temperature = cfg.Temperature
	frame.Setup.GenerationConfig.ResponseModalities = []string{"AUDIO"}
	frame.Setup.GenerationConfig.SpeechConfig.VoiceConfig.PrebuiltVoiceConfig.VoiceName = cfg.VoiceName
	if strings.TrimSpace(cfg.SystemInstruction) != "" {
		frame.Setup.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: cfg.SystemInstruction}},
		}
	}
	return frame
}

// Connect dials the engine, sends the setup frame and waits for the engine to
// acknowledge it before handing the session back. The wait is bounded by
// ConnectTimeout so a hung upstream can never park a connection forever.
func (c *GeminiClient) Connect(ctx context.Context, cfg SessionConfig, cb Callbacks) (Session, error) {
	u, err := url.Parse(strings.TrimRight(c.cfg.WSBaseURL, "/") + bidiPath)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("key", c.cfg.APIKey)
	u.RawQuery = q.Encode()

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial engine websocket: %w", err)
	}

	if err := conn.WriteJSON(buildSetupFrame(cfg)); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("send setup frame: %w", err)
	}

	// The first frame back must acknowledge the setup.
	_ = conn.SetReadDeadline(time.Now().Add(c.cfg.ConnectTimeout))
	_, ack, err := conn.ReadMessage()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("await setup ack: %w", err)
	}
	var ackFrame struct {
		SetupComplete *struct{} `json:"setupComplete"`
	}
	if err := json.Unmarshal(ack, &ackFrame); err != nil || ackFrame.SetupComplete == nil {
		_ = conn.Close()
		return nil, fmt.Errorf("unexpected setup response: %s", ack)
	}
	_ = conn.SetReadDeadline(time.Time{})

	s := &geminiSession{conn: conn, cb: cb}
	cb.open()
	go s.readLoop()
	return s, nil
}

type geminiSession struct {
	conn      *websocket.Conn
	cb        Callbacks
	writeMu   sync.Mutex
	closeOnce sync.Once
	notified  sync.Once
	// localClose marks a deliberate teardown so the read loop can tell it
	// apart from a mid-session transport fault.
	localClose atomic.Bool
}

func (s *geminiSession) SendAudio(_ context.Context, pcm []byte) error {
	payload := map[string]any{
		"realtimeInput": map[string]any{
			"mediaChunks": []map[string]any{{
				"mimeType": inputAudioMIME,
				"data":     base64.StdEncoding.EncodeToString(pcm),
			}},
		},
	}
	return s.writeJSON(payload)
}

func (s *geminiSession) SendText(_ context.Context, text string) error {
	payload := map[string]any{
		"clientContent": map[string]any{
			"turns": []map[string]any{{
				"role":  "user",
				"parts": []map[string]any{{"text": text}},
			}},
			"turnComplete": true,
		},
	}
	return s.writeJSON(payload)
}

func (s *geminiSession) Close() error {
	var retErr error
	s.closeOnce.Do(func() {
		s.localClose.Store(true)
		retErr = s.conn.Close()
	})
	return retErr
}

func (s *geminiSession) writeJSON(payload any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(payload)
}

func (s *geminiSession) readLoop() {
	defer s.Close()
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			s.notified.Do(func() {
				if closeErr, ok := err.(*websocket.CloseError); ok {
					reason := closeErr.Text
					if reason == "" {
						reason = fmt.Sprintf("close code %d", closeErr.Code)
					}
					if closeErr.Code != websocket.CloseNormalClosure {
						s.cb.error(err)
					}
					s.cb.close(reason)
					return
				}
				// A read error without a close frame is a transport
				// fault unless we tore the connection down ourselves.
				if !s.localClose.Load() {
					s.cb.error(err)
				}
				s.cb.close("connection closed")
			})
			return
		}
		s.cb.message(json.RawMessage(data))
	}
}
