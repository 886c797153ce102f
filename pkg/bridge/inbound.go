package bridge

import (
	"context"
	"time"

	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// onMessageReceived turns a raw remote message into a normalized message and
// hands it to the host. Self-echoes of messages this channel already sent are
// suppressed unless scrollback replay is enabled.
func (c *TextChannel) onMessageReceived(ctx context.Context, msg telegram.Message) {
	c.refreshDialogInfo(ctx)

	c.mu.Lock()
	_, replayed := c.sentTokens[msg.ID]
	dialog := c.dialog
	c.mu.Unlock()

	if replayed && !c.opts.ScrollbackReplay {
		c.log.Debug().Uint32("message", msg.ID).Msg("suppressing self-echo")
		return
	}

	token := c.MessageToken(msg.ID)

	header := host.Part{
		host.KeyToken: token,
		host.KeyType:  string(host.MessageTypeNormal),
		host.KeySent:  msg.Timestamp,
	}

	toSelf := msg.Peer == c.ident.SelfPeer()

	switch {
	case c.broadcast:
		header[host.KeySender] = c.targetHandle
		header[host.KeySenderID] = c.peer.String()
	case msg.Out:
		header[host.KeySender] = c.ident.SelfHandle()
		header[host.KeySenderID] = c.ident.SelfID()
	default:
		handle, senderID := c.senderHandle(msg.FromUserID)
		header[host.KeySender] = handle
		header[host.KeySenderID] = senderID
	}

	isRead := toSelf
	if !isRead {
		if msg.Out {
			isRead = dialog.ReadOutboxMaxID >= msg.ID
		} else {
			isRead = dialog.ReadInboxMaxID >= msg.ID
		}
	}

	status := host.DeliveryStatusAccepted
	if isRead {
		status = host.DeliveryStatusRead
	}
	header[host.KeyStatus] = string(status)

	if replayed {
		header[host.KeyScrollback] = true
	}

	silent := isRead || msg.Out
	if silent {
		header[host.KeySilent] = true
		// The remote has no receive timestamp for already-read messages.
		// Reuse the sent timestamp to keep chronological order stable.
		header[host.KeyReceived] = msg.Timestamp
	} else {
		header[host.KeyReceived] = time.Now().Unix()
	}

	parts := host.PartList{header}

	if fwd := c.forwardingPart(msg); fwd != nil {
		parts = append(parts, fwd)
	}

	var media telegram.MediaInfo
	if msg.Type != telegram.MessageText {
		var err error
		media, err = c.client.MessageMediaInfo(ctx, c.peer, msg.ID)
		if err != nil {
			c.log.Warn().Uint32("message", msg.ID).Err(err).Msg("media info unavailable")
		}
	}

	body := c.renderBody(msg, media)
	if len(body) == 0 {
		c.log.Debug().Uint32("message", msg.ID).Msg("no renderable content")
		return
	}

	c.host.DeliverMessage(append(parts, body...))
}

// forwardingPart builds the forward-origin metadata part, or nil when the
// message is not a forward from a single user.
func (c *TextChannel) forwardingPart(msg telegram.Message) host.Part {
	origin := msg.ForwardFromPeer
	if !origin.IsValid() || origin.IsRoom() {
		return nil
	}
	handle, err := c.ident.EnsureHandle(origin)
	if err != nil {
		c.log.Warn().Stringer("origin", origin).Err(err).Msg("forward origin handle unavailable")
		handle = 0
	}
	part := host.Part{
		host.KeyInterface: host.IfaceForwarding,
		host.KeySender:    handle,
		host.KeySenderID:  origin.String(),
		host.KeySent:      msg.ForwardTimestamp,
	}
	if alias := c.ident.Alias(origin); alias != "" {
		part[host.KeySenderAlias] = alias
	}
	return part
}
