package bridge

import (
	"context"
	"fmt"
	"time"

	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// onMessageActionChanged maps a remote activity notification onto the two
// client-facing chat states: the explicit "none" action de-escalates to
// active, everything else collapses to composing.
func (c *TextChannel) onMessageActionChanged(userID int64, action telegram.MessageAction) {
	handle, err := c.ident.EnsureContact(userID)
	if err != nil {
		c.log.Warn().Int64("user", userID).Err(err).Msg("typing sender handle unavailable")
		return
	}
	state := host.ChatStateComposing
	if action == telegram.ActionNone {
		state = host.ChatStateActive
	}
	c.host.ChatStateChanged(handle, state)
}

// SetChatState is the host-side chat state callback. Entering composing
// asserts typing immediately and keeps the reassertion timer running;
// leaving it stops the timer and clears the remote action.
func (c *TextChannel) SetChatState(state host.ChatState) error {
	if !c.running.Load() {
		return ErrChannelStopped
	}
	ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
	defer cancel()

	if state == host.ChatStateComposing {
		if err := c.client.SetMessageAction(ctx, c.peer, telegram.ActionTyping); err != nil {
			return fmt.Errorf("set message action: %w", err)
		}
		c.startTypingTimer()
		return nil
	}

	c.stopTypingTimer()
	if err := c.client.SetMessageAction(ctx, c.peer, telegram.ActionNone); err != nil {
		return fmt.Errorf("set message action: %w", err)
	}
	return nil
}

// startTypingTimer lazily creates the single reassertion ticker for this
// channel, or resumes it after a non-composing interval.
func (c *TextChannel) startTypingTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running.Load() {
		return
	}
	switch {
	case c.typingTicker == nil:
		c.typingTicker = time.NewTicker(telegram.ActionRepeatInterval)
		c.typingDone = make(chan struct{})
		go c.typingLoop(c.typingTicker, c.typingDone)
	case !c.composing:
		c.typingTicker.Reset(telegram.ActionRepeatInterval)
	}
	c.composing = true
}

func (c *TextChannel) stopTypingTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.typingTicker != nil {
		c.typingTicker.Stop()
	}
	c.composing = false
}

func (c *TextChannel) typingLoop(ticker *time.Ticker, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			c.reassertTyping()
		}
	}
}

func (c *TextChannel) reassertTyping() {
	ctx, cancel := context.WithTimeout(context.Background(), remoteCallTimeout)
	defer cancel()
	if err := c.client.SetMessageAction(ctx, c.peer, telegram.ActionTyping); err != nil {
		c.log.Warn().Err(err).Msg("reassert typing failed")
	}
}
