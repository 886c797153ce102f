package bridge

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tinyland-inc/telebridge/pkg/host"
)

// SendMessage is the host-side send callback. It extracts the first plain
// text part, dispatches it and returns the provisional token without waiting
// for remote confirmation. Sending implies the user has caught up on the
// conversation, so inbound history is marked read first.
func (c *TextChannel) SendMessage(parts host.PartList, flags uint) (string, error) {
	if !c.running.Load() {
		return "", ErrChannelStopped
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
	defer cancel()

	c.mu.Lock()
	top := c.dialog.TopMessageID
	c.mu.Unlock()
	if top > 0 {
		if err := c.client.ReadHistory(ctx, c.peer, top); err != nil {
			c.log.Warn().Err(err).Msg("read history before send failed")
		}
	}

	var content string
	for _, part := range parts {
		if contentType, _ := part[host.KeyContentType].(string); contentType != host.ContentTypeText {
			continue
		}
		if text, ok := part[host.KeyContent].(string); ok {
			content = text
			break
		}
	}

	randomID, err := c.client.SendMessage(ctx, c.peer, content)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return strconv.FormatUint(randomID, 10), nil
}

// MessageAcknowledged records that the hosting client stored or displayed a
// message. Acknowledge != read: this must never mark the message read
// upstream, that transition only comes from the remote read watermark.
func (c *TextChannel) MessageAcknowledged(token string) {
	c.log.Debug().Str("token", token).Msg("message acknowledged")
}

// onMessageSent reconciles a send confirmation: the random token is bound to
// its permanent message ID and an accepted delivery receipt goes out,
// attributed to the conversation peer.
func (c *TextChannel) onMessageSent(randomID uint64, messageID uint32) {
	c.mu.Lock()
	c.sentTokens[messageID] = randomID
	c.mu.Unlock()

	c.deliverReport(strconv.FormatUint(randomID, 10), host.DeliveryStatusAccepted)
}
