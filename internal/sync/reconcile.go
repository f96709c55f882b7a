package sync

import (
	"errors"

	"github.com/matheus3301/peerchat/internal/bus"
	"github.com/matheus3301/peerchat/internal/store"
	"go.uber.org/zap"
)

// OnIncomingMessage applies a pushed message. A message from the selected
// peer is shown as seen and acknowledged in the background; any other
// message bumps its sender's unseen count. The decision reads the selection
// at call time, so it holds whether or not a history load is in flight.
func (s *Synchronizer) OnIncomingMessage(msg store.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	if msg.SenderID == "" {
		s.logger.Warn("dropping push message without sender", zap.String("msg_id", msg.ID))
		return
	}
	if msg.ID != "" {
		if s.recent.Contains(msg.ID) {
			s.logger.Debug("dropping redelivered push message", zap.String("msg_id", msg.ID))
			return
		}
		s.recent.Add(msg.ID, struct{}{})
	}

	if selected := s.store.Selected(); selected != "" && msg.SenderID == selected {
		s.applyToConversation(msg)
		return
	}

	if err := s.store.IncrementUnseen(msg.SenderID); err != nil {
		s.logger.Error("increment unseen", zap.Error(err), zap.String("peer", msg.SenderID))
		return
	}
	s.bus.Emit(bus.KindUnseenChanged, msg.SenderID)
}

func (s *Synchronizer) applyToConversation(msg store.Message) {
	msg.Seen = true
	switch err := s.store.AppendMessage(msg); {
	case err == nil:
	case errors.Is(err, store.ErrDuplicate):
		s.logger.Debug("message already in conversation", zap.String("msg_id", msg.ID))
		return
	default:
		s.logger.Error("append message", zap.Error(err), zap.String("msg_id", msg.ID))
		return
	}
	s.bus.Emit(bus.KindConversationChanged, msg.SenderID)

	if msg.ID == "" || s.acker == nil {
		return
	}
	s.acker.Enqueue(msg.ID)
}
