package sync

import (
	"context"

	"github.com/matheus3301/peerchat/internal/store"
)

// EventNewMessage is the push event carrying a new message.
const EventNewMessage = "newMessage"

// Roster is the peer list with the server's unseen counts.
type Roster struct {
	Peers  []store.Peer
	Unseen map[string]int
}

// Fetcher is the request/response collaborator.
type Fetcher interface {
	ListPeersAndUnseen(ctx context.Context) (Roster, error)
	GetHistory(ctx context.Context, peerID string) ([]store.Message, error)
	SendMessage(ctx context.Context, peerID string, payload store.Payload) (store.Message, error)
	MarkSeen(ctx context.Context, messageID string) error
}

// PushSource delivers push events. Subscribe registers h for event and
// returns the function that removes exactly that registration.
type PushSource interface {
	Subscribe(event string, h func(store.Message)) (unsubscribe func())
}

// Acknowledger schedules fire-and-forget seen acknowledgements.
type Acknowledger interface {
	Enqueue(messageID string) bool
}
