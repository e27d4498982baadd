package notifyws

import (
	"encoding/json"
	"fmt"
)

// Control messages a client may send on the $default route. Notifications
// themselves go out as the event's payload, unwrapped.
const (
	MsgPing = "ping"
	MsgPong = "pong"
)

// ClientMessage is a message received from a client.
type ClientMessage struct {
	Type string `json:"type"`
}

// ParseMessage parses a client message from a JSON string.
func ParseMessage(body string) (*ClientMessage, error) {
	var msg ClientMessage
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return nil, fmt.Errorf("invalid client message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("missing message type")
	}
	return &msg, nil
}

// PongMessage returns a pong message.
func PongMessage() []byte {
	b, _ := json.Marshal(ClientMessage{Type: MsgPong})
	return b
}
