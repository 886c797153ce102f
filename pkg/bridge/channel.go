package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// remoteCallTimeout bounds synchronous calls into the messaging client made
// on behalf of the channel host.
const remoteCallTimeout = 15 * time.Second

var (
	// ErrUnresolvableIdentity means a handle could not be allocated for a
	// peer or user. Message flows degrade instead of failing on it; only
	// channel binding treats it as fatal.
	ErrUnresolvableIdentity = errors.New("cannot resolve identity handle")

	// ErrUnrenderableContent means a structured body part could not be
	// built from the resolved media metadata.
	ErrUnrenderableContent = errors.New("unrenderable media content")

	// ErrChannelStopped is returned for host requests arriving after the
	// channel was torn down.
	ErrChannelStopped = errors.New("channel stopped")
)

// Options configure per-channel bridge behavior.
type Options struct {
	// ScrollbackReplay re-emits self-sent messages that show up again in
	// history. Most clients mishandle duplicated messages, so it is off
	// unless the deployment opts in.
	ScrollbackReplay bool
}

// TextChannel translates between one remote conversation peer and one hosted
// channel. It owns the peer's watermark cache, the sent-token table and the
// typing reassertion timer; none of that state is shared across channels.
type TextChannel struct {
	client telegram.Client
	host   host.Host
	ident  host.Identity
	log    zerolog.Logger
	opts   Options

	peer         telegram.Peer
	targetHandle uint32
	broadcast    bool

	running atomic.Bool

	mu         sync.Mutex
	dialog     telegram.DialogInfo
	sentTokens map[uint32]uint64 // permanent message ID -> random send token

	typingTicker *time.Ticker
	typingDone   chan struct{}
	composing    bool
}

// NewTextChannel binds a channel to a peer. For group and broadcast peers the
// chat metadata is fetched and forwarded to the host; failures there degrade
// to an untitled room rather than failing the bind.
func NewTextChannel(
	ctx context.Context,
	client telegram.Client,
	h host.Host,
	ident host.Identity,
	logger zerolog.Logger,
	peer telegram.Peer,
	opts Options,
) (*TextChannel, error) {
	handle, err := ident.EnsureHandle(peer)
	if err != nil {
		return nil, fmt.Errorf("%w: peer %s: %v", ErrUnresolvableIdentity, peer, err)
	}

	c := &TextChannel{
		client:       client,
		host:         h,
		ident:        ident,
		log:          logger.With().Stringer("peer", peer).Logger(),
		opts:         opts,
		peer:         peer,
		targetHandle: handle,
		sentTokens:   make(map[uint32]uint64),
	}

	contentTypes, messageTypes := c.Capabilities()
	h.SetCapabilities(contentTypes, messageTypes)

	if peer.IsRoom() {
		info, err := client.ChatInfo(ctx, peer)
		if err != nil {
			c.log.Warn().Err(err).Msg("chat info unavailable")
		} else {
			c.broadcast = info.Broadcast
			h.SetRoomConfig(info.Title, info.Created)
		}
	}

	c.refreshDialogInfo(ctx)
	c.running.Store(true)
	return c, nil
}

// Peer returns the conversation target this channel is bound to.
func (c *TextChannel) Peer() telegram.Peer {
	return c.peer
}

func (c *TextChannel) IsRunning() bool {
	return c.running.Load()
}

// Capabilities lists the content types and message classes the channel can
// emit, for the host to advertise to its clients.
func (c *TextChannel) Capabilities() (contentTypes []string, messageTypes []host.MessageType) {
	contentTypes = []string{
		host.ContentTypeText,
		host.ContentTypeVCard,
		host.ContentTypeGeoJSON,
		host.ContentTypeJPEG,
	}
	messageTypes = []host.MessageType{host.MessageTypeNormal, host.MessageTypeDeliveryReport}
	return contentTypes, messageTypes
}

// HandleEvent feeds one remote event into the channel. Events arriving after
// Stop are dropped.
func (c *TextChannel) HandleEvent(ctx context.Context, ev telegram.Event) {
	if !c.running.Load() {
		return
	}
	switch e := ev.(type) {
	case telegram.MessageReceived:
		c.onMessageReceived(ctx, e.Message)
	case telegram.MessageActionChanged:
		c.onMessageActionChanged(e.UserID, e.Action)
	case telegram.MessageSent:
		c.onMessageSent(e.RandomID, e.MessageID)
	case telegram.InboxRead:
		c.onInboxRead(e.MaxID)
	case telegram.OutboxRead:
		c.onOutboxRead(e.MaxID)
	case telegram.ChatDetailsChanged:
		c.onChatDetailsChanged(ctx, e.Members)
	default:
		c.log.Debug().Type("event", ev).Msg("unhandled event")
	}
}

// Stop tears the channel down: the typing timer is stopped and in-flight
// send reconciliation state is discarded, so a confirmation arriving late is
// dropped rather than emitted.
func (c *TextChannel) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.typingTicker != nil {
		c.typingTicker.Stop()
		c.typingTicker = nil
	}
	if c.typingDone != nil {
		close(c.typingDone)
		c.typingDone = nil
	}
	c.composing = false
	c.sentTokens = make(map[uint32]uint64)
}

func (c *TextChannel) onChatDetailsChanged(ctx context.Context, members []int64) {
	handles := make([]uint32, 0, len(members))
	for _, userID := range members {
		h, err := c.ident.EnsureContact(userID)
		if err != nil {
			c.log.Warn().Int64("user", userID).Err(err).Msg("member handle unavailable")
			continue
		}
		handles = append(handles, h)
	}
	c.host.SetGroupMembers(handles)

	info, err := c.client.ChatInfo(ctx, c.peer)
	if err != nil {
		c.log.Warn().Err(err).Msg("chat info unavailable")
		return
	}
	c.broadcast = info.Broadcast
	c.host.SetRoomConfig(info.Title, info.Created)
}

// refreshDialogInfo pulls the current watermarks, keeping them monotonic
// against anything the channel already applied. Best-effort: a failed fetch
// leaves the cached values in place.
func (c *TextChannel) refreshDialogInfo(ctx context.Context) {
	info, err := c.client.DialogInfo(ctx, c.peer)
	if err != nil {
		c.log.Debug().Err(err).Msg("dialog info unavailable")
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if info.TopMessageID > c.dialog.TopMessageID {
		c.dialog.TopMessageID = info.TopMessageID
	}
	if info.ReadInboxMaxID > c.dialog.ReadInboxMaxID {
		c.dialog.ReadInboxMaxID = info.ReadInboxMaxID
	}
	if info.ReadOutboxMaxID > c.dialog.ReadOutboxMaxID {
		c.dialog.ReadOutboxMaxID = info.ReadOutboxMaxID
	}
}

// deliverReport emits a header-only delivery report attributed to the
// conversation peer. The report reuses the delivery token as its own message
// token so the hosting client can acknowledge it out of the pending queue.
func (c *TextChannel) deliverReport(token string, status host.DeliveryStatus) {
	header := host.Part{
		host.KeyToken:       token,
		host.KeySender:      c.targetHandle,
		host.KeySenderID:    c.peer.String(),
		host.KeyType:        string(host.MessageTypeDeliveryReport),
		host.KeyStatus:      string(status),
		host.KeyDeliveryTok: token,
	}
	c.host.DeliverMessage(host.PartList{header})
}
