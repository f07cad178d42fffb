package hub

import "github.com/gofiber/websocket/v2"

// Message is one websocket frame queued for delivery. Snapshots travel as
// text frames, camera JPEGs as binary frames.
type Message struct {
	Binary bool
	Data   []byte
}

// NewJSONMessage wraps already encoded JSON as a text frame.
func NewJSONMessage(data []byte) Message {
	return Message{Data: data}
}

// NewBinaryMessage wraps data as a binary frame.
func NewBinaryMessage(data []byte) Message {
	return Message{Binary: true, Data: data}
}

func (m Message) frameType() int {
	if m.Binary {
		return websocket.BinaryMessage
	}
	return websocket.TextMessage
}
