// Package protocol defines the JSON messages spoken on the mint websocket
// and the notification feed.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello      = "HELLO"
	TypeWelcome    = "WELCOME"
	TypeReq        = "REQ"
	TypeResult     = "RESULT"
	TypeError      = "ERROR"
	TypeSubscribe  = "SUBSCRIBE"
	TypeEvent      = "EVENT"
	TypeEventBatch = "EVENT_BATCH"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
