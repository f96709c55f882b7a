package sync

import (
	"errors"
	"fmt"
)

// Operations reported in FetchError.Op.
const (
	OpListPeers = "list_peers"
	OpHistory   = "get_history"
	OpSend      = "send_message"
	OpMarkSeen  = "mark_seen"
	// OpPush reports that the push link gave up reconnecting.
	OpPush = "push"
)

var (
	// ErrNoSelection is returned by SendMessage when no peer is selected.
	ErrNoSelection = errors.New("sync: no peer selected")
	// ErrEmptyPayload is returned by SendMessage for a payload without content.
	ErrEmptyPayload = errors.New("sync: empty message payload")
	// ErrClosed is returned after Teardown.
	ErrClosed = errors.New("sync: session torn down")
)

// FetchError is a failed call to the fetch collaborator.
type FetchError struct {
	Op     string
	PeerID string
	Err    error
}

func (e *FetchError) Error() string {
	if e.PeerID != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.PeerID, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Notice is the payload of a user-visible error published on the bus.
type Notice struct {
	Op  string
	Err error
}

// Message renders the notice for display.
func (n Notice) Message() string {
	var what string
	switch n.Op {
	case OpListPeers:
		what = "Could not load contacts"
	case OpHistory:
		what = "Could not load conversation"
	case OpSend:
		what = "Message not sent"
	case OpPush:
		what = "Live updates stopped"
	default:
		what = "Request failed"
	}
	var fe *FetchError
	if errors.As(n.Err, &fe) {
		return what + ": " + fe.Err.Error()
	}
	return what + ": " + n.Err.Error()
}
