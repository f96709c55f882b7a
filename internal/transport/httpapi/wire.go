package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/matheus3301/peerchat/internal/store"
)

// wireUser is a roster entry as served by the API.
type wireUser struct {
	ID         string `json:"_id"`
	FullName   string `json:"fullName"`
	ProfilePic string `json:"profilePic"`
}

// WireMessage is a message as served by the API and the push socket.
type WireMessage struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	Seen       bool      `json:"seen"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Message converts the wire shape to the store shape.
func (w WireMessage) Message() store.Message {
	return store.Message{
		ID:         w.ID,
		SenderID:   w.SenderID,
		ReceiverID: w.ReceiverID,
		Text:       w.Text,
		Image:      w.Image,
		CreatedAt:  w.CreatedAt,
		Seen:       w.Seen,
	}
}

// DecodeMessage parses a single wire message.
func DecodeMessage(data []byte) (store.Message, error) {
	var w WireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return store.Message{}, fmt.Errorf("decode message: %w", err)
	}
	return w.Message(), nil
}

// envelope covers every response shape the API uses. Some endpoints wrap
// their data in {success, ...}, others return it bare.
type envelope struct {
	Success        *bool           `json:"success"`
	Message        string          `json:"message"`
	Users          []wireUser      `json:"users"`
	UnseenMessages map[string]int  `json:"unseenMessages"`
	NewMessage     *WireMessage    `json:"newMessage"`
	Messages       []WireMessage   `json:"messages"`
	Data           json.RawMessage `json:"data"`
}

func (e *envelope) failed() bool {
	return e.Success != nil && !*e.Success
}

type sendRequest struct {
	Text  string `json:"text,omitempty"`
	Image string `json:"image,omitempty"`
}
