package bridge

import (
	"strconv"

	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// MessageToken returns the channel-stable token for a message ID: the random
// send token when the message is a confirmed self-send, else the decimal
// message ID. An absent mapping is not an error.
func (c *TextChannel) MessageToken(messageID uint32) string {
	c.mu.Lock()
	randomID, ok := c.sentTokens[messageID]
	c.mu.Unlock()
	if ok {
		return strconv.FormatUint(randomID, 10)
	}
	return strconv.FormatUint(uint64(messageID), 10)
}

// senderHandle resolves a remote user into a channel handle and peer ID.
// Allocation failure degrades to a zero handle so the message still flows.
func (c *TextChannel) senderHandle(userID int64) (uint32, string) {
	peer := telegram.UserPeer(userID)
	handle, err := c.ident.EnsureContact(userID)
	if err != nil {
		c.log.Warn().Int64("user", userID).Err(err).Msg("sender handle unavailable")
		return 0, peer.String()
	}
	return handle, peer.String()
}
