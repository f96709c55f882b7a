package bus

import "time"

// Event kinds published by the client. Subscribers filter by prefix, so
// "store." receives every state change.
const (
	KindRosterChanged       = "store.roster_changed"
	KindConversationChanged = "store.conversation_changed"
	KindUnseenChanged       = "store.unseen_changed"
	KindViewChanged         = "conversation.state_changed"
	KindNotice              = "notice.error"
	KindPushConnected       = "push.connected"
	KindPushDisconnected    = "push.disconnected"
)

// Event is a notification published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
