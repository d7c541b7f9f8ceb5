package dispatch

import (
	"encoding/json"
	"errors"

	"github.com/cwrk-planet/realtime-service/internal/domain"
)

// ErrQueueFull - очередь отправки соединения переполнена.
var ErrQueueFull = errors.New("send queue full")

// Sink - исходящая сторона соединения. Send не должен блокироваться.
type Sink interface {
	ID() domain.ConnID
	UserID() domain.UserID
	Send(data []byte) error
	Close() error
}

type Overflow string

const (
	OverflowDrop       Overflow = "drop"
	OverflowDisconnect Overflow = "disconnect"
)

// Envelope - формат кадра на проводе.
type Envelope struct {
	Type    string `json:"type"`
	ID      string `json:"id,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

func Encode(event string, payload any) ([]byte, error) {
	return json.Marshal(Envelope{Type: event, Payload: payload})
}
