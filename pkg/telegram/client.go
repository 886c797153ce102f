package telegram

import "context"

// Client is the messaging-side boundary of the bridge. Implementations talk
// to the actual chat service; the bridge never blocks on them beyond the
// call itself. SendMessage returns a random send token immediately, the
// permanent message ID arrives later as a MessageSent event.
type Client interface {
	SendMessage(ctx context.Context, peer Peer, text string) (uint64, error)
	SetMessageAction(ctx context.Context, peer Peer, action MessageAction) error
	ReadHistory(ctx context.Context, peer Peer, maxID uint32) error
	DialogInfo(ctx context.Context, peer Peer) (DialogInfo, error)
	ChatInfo(ctx context.Context, peer Peer) (ChatInfo, error)
	MessageMediaInfo(ctx context.Context, peer Peer, messageID uint32) (MediaInfo, error)
}

// Event is the marker interface for remote events delivered through the bus.
type Event interface {
	EventPeer() Peer
}

// Publisher is where a client implementation pushes its events. Satisfied by
// the bridge event bus.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// MessageReceived carries a new or replayed remote message.
type MessageReceived struct {
	Message Message
}

func (e MessageReceived) EventPeer() Peer { return e.Message.Peer }

// MessageActionChanged signals a typing/activity change by a remote user.
type MessageActionChanged struct {
	Peer   Peer
	UserID int64
	Action MessageAction
}

func (e MessageActionChanged) EventPeer() Peer { return e.Peer }

// MessageSent confirms a local send: the random token the send returned is
// now bound to a permanent message ID.
type MessageSent struct {
	Peer      Peer
	RandomID  uint64
	MessageID uint32
}

func (e MessageSent) EventPeer() Peer { return e.Peer }

// InboxRead advances the inbound read watermark for a peer.
type InboxRead struct {
	Peer  Peer
	MaxID uint32
}

func (e InboxRead) EventPeer() Peer { return e.Peer }

// OutboxRead advances the outbound read watermark for a peer.
type OutboxRead struct {
	Peer  Peer
	MaxID uint32
}

func (e OutboxRead) EventPeer() Peer { return e.Peer }

// ChatDetailsChanged signals a change in a group peer's roster or metadata.
type ChatDetailsChanged struct {
	Peer    Peer
	Members []int64
}

func (e ChatDetailsChanged) EventPeer() Peer { return e.Peer }
