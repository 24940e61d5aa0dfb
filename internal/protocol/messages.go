package protocol

import "encoding/json"

// MessageType identifies the JSON frames the bridge sends to the client.
type MessageType string

const (
	// TypeStatus carries session opened / closed notifications.
	TypeStatus MessageType = "status"
	// TypeEngine is an opaque pass-through of the upstream engine's message.
	TypeEngine MessageType = "gemini"
	// TypeError carries an error message text.
	TypeError MessageType = "error"
)

// ServerMessage is the single outbound envelope shape.
type ServerMessage struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

func Status(text string) ServerMessage {
	return ServerMessage{Type: TypeStatus, Data: marshalString(text)}
}

func Engine(raw json.RawMessage) ServerMessage {
	return ServerMessage{Type: TypeEngine, Data: raw}
}

func Error(text string) ServerMessage {
	return ServerMessage{Type: TypeError, Data: marshalString(text)}
}

func marshalString(s string) json.RawMessage {
	out, err := json.Marshal(s)
	if err != nil {
		// json.Marshal of a string cannot fail; keep the envelope well formed anyway.
		return json.RawMessage(`""`)
	}
	return out
}
