package store

import (
	"errors"
	"maps"
	"slices"
	"sync"
)

var (
	// ErrStale is returned when a conversation is replaced for a peer that is
	// no longer selected.
	ErrStale = errors.New("store: peer is no longer selected")
	// ErrNoSelection is returned when no peer is selected.
	ErrNoSelection = errors.New("store: no peer selected")
	// ErrNotInvolved is returned when a message does not involve the selected peer.
	ErrNotInvolved = errors.New("store: message does not involve the selected peer")
	// ErrSelected is returned when counting an unseen message from the selected peer.
	ErrSelected = errors.New("store: peer is selected")
	// ErrDuplicate is returned when a message is already in the conversation view.
	ErrDuplicate = errors.New("store: message already in conversation")
)

// Store holds the in-memory state of one chat session: the roster, the
// selected peer, the conversation with that peer and the unseen counters.
//
// The unseen map never holds an entry for the selected peer.
type Store struct {
	mu sync.RWMutex

	roster   []Peer
	selected string
	conv     []Message
	ids      map[string]struct{}
	unseen   map[string]int

	// Messages appended between a selection and its history, replayed on
	// top of the fetched history when it does not contain them.
	early  []Message
	loaded bool
}

// New creates an empty store with nothing selected.
func New() *Store {
	return &Store{
		ids:    make(map[string]struct{}),
		unseen: make(map[string]int),
	}
}

// SetRoster replaces the roster and rebuilds the unseen map from the snapshot,
// keeping only peers present in the roster.
func (s *Store) SetRoster(peers []Peer, unseen map[string]int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roster = slices.Clone(peers)
	known := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		known[p.ID] = struct{}{}
	}

	next := make(map[string]int, len(unseen))
	for id, n := range unseen {
		if _, ok := known[id]; !ok || id == s.selected || n <= 0 {
			continue
		}
		next[id] = n
	}
	s.unseen = next
}

// SelectPeer changes the selection and discards the conversation view.
// An empty peerID selects nothing. The new peer's unseen entry is removed.
func (s *Store) SelectPeer(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = peerID
	s.conv = nil
	s.early = nil
	s.loaded = false
	clear(s.ids)
	if peerID != "" {
		delete(s.unseen, peerID)
	}
}

// ReplaceConversation installs the fetched history for peerID. Messages
// appended while the history was in flight and missing from it are kept
// after it; those already in it keep their Seen flag.
func (s *Store) ReplaceConversation(peerID string, msgs []Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peerID == "" || peerID != s.selected {
		return ErrStale
	}

	conv := make([]Message, 0, len(msgs)+len(s.early))
	pos := make(map[string]int, cap(conv))
	add := func(m Message) {
		if m.ID != "" {
			if i, dup := pos[m.ID]; dup {
				// Seen is the only field updated locally; keep it.
				conv[i].Seen = conv[i].Seen || m.Seen
				return
			}
			pos[m.ID] = len(conv)
		}
		conv = append(conv, m)
	}
	for _, m := range msgs {
		if m.Involves(peerID) {
			add(m)
		}
	}
	for _, m := range s.early {
		add(m)
	}

	ids := make(map[string]struct{}, len(pos))
	for id := range pos {
		ids[id] = struct{}{}
	}
	s.conv = conv
	s.ids = ids
	s.early = nil
	s.loaded = true
	return nil
}

// AppendMessage appends msg to the conversation view. The message must
// involve the selected peer.
func (s *Store) AppendMessage(msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == "" {
		return ErrNoSelection
	}
	if !msg.Involves(s.selected) {
		return ErrNotInvolved
	}
	if msg.ID != "" {
		if _, ok := s.ids[msg.ID]; ok {
			return ErrDuplicate
		}
		s.ids[msg.ID] = struct{}{}
	}
	s.conv = append(s.conv, msg)
	if !s.loaded {
		s.early = append(s.early, msg)
	}
	return nil
}

// IncrementUnseen adds one to the unseen count of peerID.
func (s *Store) IncrementUnseen(peerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if peerID == s.selected {
		return ErrSelected
	}
	s.unseen[peerID]++
	return nil
}

// ClearUnseen removes the unseen entry of peerID.
func (s *Store) ClearUnseen(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.unseen, peerID)
}

// Reset discards all state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roster = nil
	s.selected = ""
	s.conv = nil
	s.early = nil
	s.loaded = false
	s.ids = make(map[string]struct{})
	s.unseen = make(map[string]int)
}

// Roster returns a copy of the roster.
func (s *Store) Roster() []Peer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.roster)
}

// Peer looks up a roster entry.
func (s *Store) Peer(id string) (Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.roster {
		if p.ID == id {
			return p, true
		}
	}
	return Peer{}, false
}

// Selected returns the selected peer ID, or "" when nothing is selected.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Conversation returns a copy of the conversation view.
func (s *Store) Conversation() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conv)
}

// Unseen returns a copy of the unseen map.
func (s *Store) Unseen() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.unseen)
}

// UnseenFor returns the unseen count of peerID.
func (s *Store) UnseenFor(peerID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unseen[peerID]
}

// Snapshot returns a consistent copy of the whole store.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Roster:       slices.Clone(s.roster),
		Selected:     s.selected,
		Conversation: slices.Clone(s.conv),
		Unseen:       maps.Clone(s.unseen),
	}
}
