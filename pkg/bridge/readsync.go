package bridge

import (
	"strconv"

	"github.com/tinyland-inc/telebridge/pkg/host"
)

// onInboxRead applies an inbound read-watermark advance: every pending
// message whose numeric token is at or below the watermark gets a bulk read
// acknowledgement. Tokens that do not parse as message IDs belong to sent
// messages and are skipped. Re-applying a watermark is a no-op.
func (c *TextChannel) onInboxRead(maxID uint32) {
	c.mu.Lock()
	if maxID <= c.dialog.ReadInboxMaxID {
		c.mu.Unlock()
		return
	}
	c.dialog.ReadInboxMaxID = maxID
	c.mu.Unlock()

	var tokens []string
	for _, msg := range c.host.PendingMessages() {
		// Delivery reports wait for the hosting client, not the remote.
		if len(msg) > 0 && msg[0][host.KeyType] == string(host.MessageTypeDeliveryReport) {
			continue
		}
		token := msg.Token()
		if token == "" {
			continue
		}
		id, err := strconv.ParseUint(token, 10, 32)
		if err != nil {
			c.log.Debug().Str("token", token).Msg("skipping non-numeric token")
			continue
		}
		if uint32(id) <= maxID {
			tokens = append(tokens, token)
		}
	}
	if len(tokens) == 0 {
		return
	}
	if err := c.host.AcknowledgeMessages(tokens); err != nil {
		c.log.Warn().Err(err).Msg("acknowledge pending messages failed")
	}
}

// onOutboxRead applies an outbound read-watermark advance by emitting a read
// delivery report for the newest covered message, attributed to the
// conversation peer. Re-applying a watermark is a no-op.
func (c *TextChannel) onOutboxRead(maxID uint32) {
	c.mu.Lock()
	if maxID <= c.dialog.ReadOutboxMaxID {
		c.mu.Unlock()
		return
	}
	c.dialog.ReadOutboxMaxID = maxID
	c.mu.Unlock()

	c.deliverReport(c.MessageToken(maxID), host.DeliveryStatusRead)
}
