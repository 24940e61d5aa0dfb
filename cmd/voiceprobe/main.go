// voiceprobe is a diagnostic client for the voice websocket endpoint. It
// connects with an assistant UUID and API key, streams synthetic PCM silence
// and prints every envelope the bridge sends back.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/irkan/assistant-admin-panel-backend/internal/protocol"
)

type options struct {
	baseURL       string
	assistantUUID string
	apiKey        string
	duration      time.Duration
	chunkMS       int
	sampleRate    int
	verbose       bool
}

func main() {
	opts := parseFlags()
	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "voiceprobe: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.baseURL, "base-url", "http://127.0.0.1:3003", "backend base URL")
	flag.StringVar(&opts.assistantUUID, "assistant", "", "assistant UUID (required)")
	flag.StringVar(&opts.apiKey, "api-key", "", "API key (required)")
	flag.DurationVar(&opts.duration, "duration", 10*time.Second, "how long to stream audio")
	flag.IntVar(&opts.chunkMS, "chunk-ms", 100, "audio chunk size in milliseconds")
	flag.IntVar(&opts.sampleRate, "sample-rate", 16000, "PCM sample rate in Hz")
	flag.BoolVar(&opts.verbose, "v", false, "print engine payloads in full")
	flag.Parse()

	if opts.assistantUUID == "" || opts.apiKey == "" {
		flag.Usage()
		os.Exit(2)
	}
	return opts
}

func run(opts options) error {
	u, err := url.Parse(opts.baseURL)
	if err != nil {
		return fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	u.Path = "/voice/ws"
	q := u.Query()
	q.Set("assistantUuid", opts.assistantUUID)
	q.Set("apiKey", opts.apiKey)
	u.RawQuery = q.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", u.Host, err)
	}
	defer conn.Close()
	fmt.Printf("connected to %s\n", u.Host)

	done := make(chan error, 1)
	go func() { done <- readEnvelopes(conn, opts.verbose) }()

	// 16-bit mono silence, chunked the way a browser capture loop would.
	chunk := make([]byte, opts.sampleRate*2*opts.chunkMS/1000)
	ticker := time.NewTicker(time.Duration(opts.chunkMS) * time.Millisecond)
	defer ticker.Stop()
	deadline := time.After(opts.duration)

	for {
		select {
		case err := <-done:
			return err
		case <-deadline:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "probe finished")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			select {
			case err := <-done:
				return err
			case <-time.After(2 * time.Second):
				return nil
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
		}
	}
}

func readEnvelopes(conn *websocket.Conn, verbose bool) error {
	for {
		var msg protocol.ServerMessage
		if err := conn.ReadJSON(&msg); err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				fmt.Printf("closed: code=%d reason=%q\n", ce.Code, ce.Text)
				return nil
			}
			return err
		}
		switch msg.Type {
		case protocol.TypeStatus, protocol.TypeError:
			var text string
			_ = json.Unmarshal(msg.Data, &text)
			fmt.Printf("%s: %s\n", msg.Type, text)
		case protocol.TypeEngine:
			if verbose {
				fmt.Printf("engine: %s\n", msg.Data)
			} else {
				fmt.Printf("engine: %s\n", summarize(msg.Data))
			}
		}
	}
}

func summarize(raw json.RawMessage) string {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return fmt.Sprintf("%d bytes", len(raw))
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return fmt.Sprintf("{%s} %d bytes", strings.Join(keys, ","), len(raw))
}
