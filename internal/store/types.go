package store

import "time"

// Peer is the other party of a one-to-one conversation.
type Peer struct {
	ID     string
	Name   string
	Avatar string
}

// Message is a single chat message. Only Seen changes after creation.
type Message struct {
	ID         string
	SenderID   string
	ReceiverID string
	Text       string
	Image      string
	CreatedAt  time.Time
	Seen       bool
}

// Involves reports whether peerID is the sender or the recipient.
func (m Message) Involves(peerID string) bool {
	return peerID != "" && (m.SenderID == peerID || m.ReceiverID == peerID)
}

// Payload is the content of an outgoing message.
type Payload struct {
	Text  string
	Image string
}

// Empty reports whether the payload carries neither text nor an attachment.
func (p Payload) Empty() bool {
	return p.Text == "" && p.Image == ""
}

// Snapshot is a consistent copy of the whole store.
type Snapshot struct {
	Roster       []Peer
	Selected     string
	Conversation []Message
	Unseen       map[string]int
}
