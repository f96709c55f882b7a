package model

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/matheus3301/peerchat/internal/bus"
	"github.com/matheus3301/peerchat/internal/status"
	"github.com/matheus3301/peerchat/internal/store"
	intsync "github.com/matheus3301/peerchat/internal/sync"
)

const flashTTL = 5 * time.Second

// Session is the part of the synchronizer the UI drives.
type Session interface {
	LoadRoster(ctx context.Context) error
	SelectPeer(ctx context.Context, peerID string) error
	SendMessage(ctx context.Context, payload store.Payload) error
	View() status.View
}

// PeerRow is one line of the peer list.
type PeerRow struct {
	ID       string
	Name     string
	Unseen   int
	Selected bool
}

// Line is one rendered message of the open conversation.
type Line struct {
	ID     string
	Sender string
	Text   string
	Image  string
	At     time.Time
	Mine   bool
	Seen   bool
}

// ViewModel turns store state and bus events into what the views render.
type ViewModel struct {
	session Session
	store   *store.Store
	self    string
	Flash   Flash

	mu        sync.RWMutex
	connected bool
}

// NewViewModel creates a view model for the signed-in user selfID.
func NewViewModel(s Session, st *store.Store, selfID string) *ViewModel {
	return &ViewModel{session: s, store: st, self: selfID}
}

// Apply folds a bus event into the view model. It reports whether the
// screen needs a redraw.
func (vm *ViewModel) Apply(evt bus.Event) bool {
	switch evt.Kind {
	case bus.KindNotice:
		if n, ok := evt.Payload.(intsync.Notice); ok {
			vm.Flash.Set(n.Message(), flashTTL)
		}
	case bus.KindPushConnected, bus.KindPushDisconnected:
		vm.mu.Lock()
		vm.connected = evt.Kind == bus.KindPushConnected
		vm.mu.Unlock()
		if !vm.Connected() {
			vm.Flash.Set("Live updates interrupted, reconnecting", flashTTL)
		}
	}
	return true
}

// Connected reports whether live updates are flowing.
func (vm *ViewModel) Connected() bool {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.connected
}

// Peers returns the roster in server order with unseen badges.
func (vm *ViewModel) Peers() []PeerRow {
	snap := vm.store.Snapshot()
	rows := make([]PeerRow, 0, len(snap.Roster))
	for _, p := range snap.Roster {
		name := p.Name
		if name == "" {
			name = p.ID
		}
		rows = append(rows, PeerRow{
			ID:       p.ID,
			Name:     name,
			Unseen:   snap.Unseen[p.ID],
			Selected: p.ID == snap.Selected,
		})
	}
	return rows
}

// Conversation returns the open conversation, oldest first.
func (vm *ViewModel) Conversation() []Line {
	msgs := vm.store.Conversation()
	selected := vm.store.Selected()
	peerName := vm.Title()

	lines := make([]Line, 0, len(msgs))
	for _, m := range msgs {
		l := Line{ID: m.ID, Text: m.Text, Image: m.Image, At: m.CreatedAt, Seen: m.Seen}
		switch {
		case m.SenderID == vm.self || (vm.self == "" && m.ReceiverID == selected):
			l.Mine = true
			l.Sender = "You"
		default:
			l.Sender = peerName
		}
		lines = append(lines, l)
	}
	return lines
}

// Title is the display name of the selected peer, or empty.
func (vm *ViewModel) Title() string {
	id := vm.store.Selected()
	if id == "" {
		return ""
	}
	if p, ok := vm.store.Peer(id); ok && p.Name != "" {
		return p.Name
	}
	return id
}

// State is the conversation view state for the status bar.
func (vm *ViewModel) State() status.View {
	return vm.session.View()
}

// Reload fetches the roster again.
func (vm *ViewModel) Reload(ctx context.Context) error {
	return vm.session.LoadRoster(ctx)
}

// Open selects peerID; an empty id closes the conversation.
func (vm *ViewModel) Open(ctx context.Context, peerID string) error {
	return vm.session.SelectPeer(ctx, peerID)
}

// Send sends payload to the selected peer. Fetch failures already reach the
// flash through a notice, other errors are flashed here.
func (vm *ViewModel) Send(ctx context.Context, payload store.Payload) error {
	err := vm.session.SendMessage(ctx, payload)
	switch {
	case err == nil:
	case isFetchError(err):
	default:
		vm.Flash.Set(sendError(err), flashTTL)
	}
	return err
}

func isFetchError(err error) bool {
	var fe *intsync.FetchError
	return errors.As(err, &fe)
}

func sendError(err error) string {
	switch {
	case errors.Is(err, intsync.ErrNoSelection):
		return "Pick a contact first"
	case errors.Is(err, intsync.ErrEmptyPayload):
		return "Nothing to send"
	default:
		return "Message not sent: " + err.Error()
	}
}
