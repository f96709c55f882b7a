package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/matheus3301/peerchat/internal/bus"
	"github.com/matheus3301/peerchat/internal/status"
	"github.com/matheus3301/peerchat/internal/store"
	"go.uber.org/zap"
)

// DefaultDedupeWindow is how many recently applied push message ids are
// remembered.
const DefaultDedupeWindow = 1024

// Ticket identifies the session and selection a request was issued under.
// A result is applied only while its ticket is still current.
type Ticket struct {
	PeerID string
	epoch  uint64
	gen    uint64
}

// Synchronizer reconciles fetched history and pushed messages into the
// store. Every store mutation happens while holding mu, and mu is never held
// across a collaborator call, so mutations are linearized while fetches run
// concurrently.
type Synchronizer struct {
	store  *store.Store
	fetch  Fetcher
	push   PushSource
	acker  Acknowledger
	bus    *bus.Bus
	view   *status.Machine
	logger *zap.Logger
	recent *lru.Cache[string, struct{}]

	mu    sync.Mutex
	epoch uint64
	gen   uint64
	// rosterGen orders overlapping roster loads; only the latest applies.
	rosterGen uint64
	closed    bool
	unsub     func()
}

// NewSynchronizer creates a synchronizer for one chat session.
func NewSynchronizer(st *store.Store, fetch Fetcher, push PushSource, acker Acknowledger, b *bus.Bus, logger *zap.Logger, dedupeWindow int) (*Synchronizer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if b == nil {
		b = bus.New()
	}
	if dedupeWindow <= 0 {
		dedupeWindow = DefaultDedupeWindow
	}
	recent, err := lru.New[string, struct{}](dedupeWindow)
	if err != nil {
		return nil, fmt.Errorf("dedupe cache: %w", err)
	}
	return &Synchronizer{
		store:  st,
		fetch:  fetch,
		push:   push,
		acker:  acker,
		bus:    b,
		view:   status.NewMachine(b),
		logger: logger,
		recent: recent,
	}, nil
}

// View returns the conversation view state.
func (s *Synchronizer) View() status.View {
	return s.view.Current()
}

// Attach registers the push handler. Calling it while attached is a no-op,
// so a message is never applied twice through two registrations.
func (s *Synchronizer) Attach() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.unsub != nil {
		return nil
	}
	s.unsub = s.push.Subscribe(EventNewMessage, s.OnIncomingMessage)
	s.logger.Info("push handler attached")
	return nil
}

// Detach removes the push handler, if any. Used on transport loss.
func (s *Synchronizer) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detachLocked()
}

func (s *Synchronizer) detachLocked() {
	if s.unsub == nil {
		return
	}
	s.unsub()
	s.unsub = nil
	s.logger.Info("push handler detached")
}

// Attached reports whether the push handler is registered.
func (s *Synchronizer) Attached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsub != nil
}

// Teardown ends the session: it detaches the push handler, discards all
// state and invalidates every request still in flight.
func (s *Synchronizer) Teardown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.detachLocked()
	s.closed = true
	s.epoch++
	s.gen++
	s.store.Reset()
	s.view.Reset()
	s.recent.Purge()
	s.emitAll()
	s.logger.Info("session torn down")
}

// reopen starts a new session after Teardown. Results of requests issued
// before the teardown stay discarded.
func (s *Synchronizer) reopen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = false
}

// LoadRoster fetches the peer list and unseen counts. On failure the
// previous roster is left untouched. When loads overlap, only the most
// recently issued one is applied.
func (s *Synchronizer) LoadRoster(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.rosterGen++
	epoch, gen := s.epoch, s.rosterGen
	s.mu.Unlock()

	roster, err := s.fetch.ListPeersAndUnseen(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.epoch != epoch || s.rosterGen != gen {
		s.logger.Debug("discarding stale result", zap.String("op", OpListPeers))
		return nil
	}
	if err != nil {
		return s.fail(&FetchError{Op: OpListPeers, Err: err})
	}

	s.store.SetRoster(roster.Peers, roster.Unseen)
	s.logger.Info("roster loaded", zap.Int("peers", len(roster.Peers)), zap.Int("unseen_peers", len(roster.Unseen)))
	s.bus.Emit(bus.KindRosterChanged, len(roster.Peers))
	s.bus.Emit(bus.KindUnseenChanged, "")
	return nil
}

// SelectPeer changes the open conversation and loads its history. An empty
// peerID closes the conversation. A history that arrives after the
// selection moved on is discarded.
func (s *Synchronizer) SelectPeer(ctx context.Context, peerID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.gen++
	t := Ticket{PeerID: peerID, epoch: s.epoch, gen: s.gen}
	s.store.SelectPeer(peerID)
	if err := s.view.Select(peerID); err != nil {
		s.logger.Error("view transition", zap.Error(err))
	}
	s.bus.Emit(bus.KindConversationChanged, peerID)
	if peerID != "" {
		s.bus.Emit(bus.KindUnseenChanged, peerID)
	}
	s.mu.Unlock()

	if peerID == "" {
		return nil
	}

	msgs, err := s.fetch.GetHistory(ctx, peerID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.currentLocked(t) {
		s.logger.Debug("discarding stale result",
			zap.String("op", OpHistory),
			zap.String("peer", peerID),
			zap.String("selected", s.store.Selected()),
		)
		return nil
	}
	if err != nil {
		return s.fail(&FetchError{Op: OpHistory, PeerID: peerID, Err: err})
	}
	if err := s.store.ReplaceConversation(peerID, msgs); err != nil {
		s.logger.Debug("discarding stale result", zap.String("op", OpHistory), zap.Error(err))
		return nil
	}
	if err := s.view.Loaded(peerID); err != nil {
		s.logger.Error("view transition", zap.Error(err))
	}
	s.bus.Emit(bus.KindConversationChanged, peerID)
	return nil
}

// SendMessage persists payload to the selected peer and, on success, shows
// the server's copy of the message. Nothing is shown before the server
// accepts it.
func (s *Synchronizer) SendMessage(ctx context.Context, payload store.Payload) error {
	if payload.Empty() {
		return ErrEmptyPayload
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	peerID := s.store.Selected()
	epoch := s.epoch
	s.mu.Unlock()

	if peerID == "" {
		return ErrNoSelection
	}

	msg, err := s.fetch.SendMessage(ctx, peerID, payload)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.epoch != epoch {
		s.logger.Debug("discarding stale result", zap.String("op", OpSend), zap.String("peer", peerID))
		return nil
	}
	if err != nil {
		return s.fail(&FetchError{Op: OpSend, PeerID: peerID, Err: err})
	}

	switch err := s.store.AppendMessage(msg); {
	case err == nil:
		s.bus.Emit(bus.KindConversationChanged, peerID)
	case errors.Is(err, store.ErrDuplicate):
	default:
		// The user moved to another conversation while the send was in flight.
		s.logger.Debug("sent message not shown", zap.String("msg_id", msg.ID), zap.Error(err))
	}
	s.logger.Info("message sent", zap.String("peer", peerID), zap.String("msg_id", msg.ID))
	return nil
}

func (s *Synchronizer) currentLocked(t Ticket) bool {
	return !s.closed && t.epoch == s.epoch && t.gen == s.gen && t.PeerID == s.store.Selected()
}

// fail logs and publishes a user-visible notice for err.
func (s *Synchronizer) fail(err *FetchError) error {
	s.logger.Error("fetch failed", zap.String("op", err.Op), zap.String("peer", err.PeerID), zap.Error(err.Err))
	s.bus.Emit(bus.KindNotice, Notice{Op: err.Op, Err: err})
	return err
}

func (s *Synchronizer) emitAll() {
	s.bus.Emit(bus.KindRosterChanged, 0)
	s.bus.Emit(bus.KindConversationChanged, "")
	s.bus.Emit(bus.KindUnseenChanged, "")
}
