package host

import (
	"time"

	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// Host is the channel-facing surface a bridge channel emits into. One Host
// per bound channel; implementations own the pending-message queue and the
// client connection, nothing more.
type Host interface {
	// DeliverMessage hands a normalized message to the hosting framework.
	// The message stays pending until acknowledged.
	DeliverMessage(parts PartList)

	// ChatStateChanged reports a remote user's typing state.
	ChatStateChanged(handle uint32, state ChatState)

	// PendingMessages returns delivered but not yet acknowledged messages.
	PendingMessages() []PartList

	// AcknowledgeMessages removes the given tokens from the pending queue.
	AcknowledgeMessages(tokens []string) error

	// SetCapabilities advertises the content types and message classes the
	// channel can emit. Called once when the channel is bound.
	SetCapabilities(contentTypes []string, messageTypes []MessageType)

	// Group configuration pass-through. No-ops for user peers.
	SetGroupMembers(handles []uint32)
	SetRoomConfig(title string, created time.Time)

	// BindCallbacks registers the channel-side entry points for requests
	// arriving from the hosting client.
	BindCallbacks(cb Callbacks)
}

// Opener creates the host surface for a newly bound peer.
type Opener interface {
	OpenChannel(peer telegram.Peer) (Host, error)
}

// Identity allocates and resolves channel-layer handles for peers. Handle
// allocation is idempotent: the same peer always maps to the same handle.
type Identity interface {
	EnsureHandle(peer telegram.Peer) (uint32, error)
	EnsureContact(userID int64) (uint32, error)
	Alias(peer telegram.Peer) string
	SelfHandle() uint32
	SelfID() string
	SelfPeer() telegram.Peer
}

// Callbacks are the channel-side entry points a Host invokes on behalf of
// its client. Registered by the bridge when a channel is bound.
type Callbacks interface {
	SendMessage(parts PartList, flags uint) (string, error)
	SetChatState(state ChatState) error
	MessageAcknowledged(token string)
}
