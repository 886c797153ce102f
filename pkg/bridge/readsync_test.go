package bridge

import (
	"context"
	"reflect"
	"testing"

	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

func pendingWithTokens(env *testEnv, tokens ...string) {
	env.host.mu.Lock()
	defer env.host.mu.Unlock()
	for _, tok := range tokens {
		env.host.pending = append(env.host.pending, host.PartList{{host.KeyToken: tok}})
	}
}

func TestInboxReadAcksTokensUpToWatermark(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})
	pendingWithTokens(env, "10", "45", "77")

	env.ch.HandleEvent(context.Background(), telegram.InboxRead{Peer: peer, MaxID: 50})

	env.host.mu.Lock()
	defer env.host.mu.Unlock()
	if len(env.host.acked) != 1 {
		t.Fatalf("expected 1 bulk ack, got %d", len(env.host.acked))
	}
	if !reflect.DeepEqual(env.host.acked[0], []string{"10", "45"}) {
		t.Errorf("unexpected ack set %v", env.host.acked[0])
	}
}

func TestInboxReadSkipsRandomSendTokens(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})
	// 64-bit random send tokens never parse as 32-bit message IDs.
	pendingWithTokens(env, "12", "18446744073709551615")

	env.ch.HandleEvent(context.Background(), telegram.InboxRead{Peer: peer, MaxID: 100})

	env.host.mu.Lock()
	defer env.host.mu.Unlock()
	if len(env.host.acked) != 1 || !reflect.DeepEqual(env.host.acked[0], []string{"12"}) {
		t.Errorf("unexpected ack set %v", env.host.acked)
	}
}

func TestInboxReadSkipsPendingDeliveryReports(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})
	env.host.mu.Lock()
	env.host.pending = append(env.host.pending,
		host.PartList{{host.KeyToken: "30", host.KeyType: string(host.MessageTypeDeliveryReport)}},
		host.PartList{{host.KeyToken: "10"}},
	)
	env.host.mu.Unlock()

	env.ch.HandleEvent(context.Background(), telegram.InboxRead{Peer: peer, MaxID: 50})

	env.host.mu.Lock()
	defer env.host.mu.Unlock()
	if len(env.host.acked) != 1 || !reflect.DeepEqual(env.host.acked[0], []string{"10"}) {
		t.Errorf("delivery reports must not be read-acked, got %v", env.host.acked)
	}
}

func TestInboxReadWatermarkIsMonotonic(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})
	pendingWithTokens(env, "10")

	env.ch.HandleEvent(context.Background(), telegram.InboxRead{Peer: peer, MaxID: 50})
	env.ch.HandleEvent(context.Background(), telegram.InboxRead{Peer: peer, MaxID: 50})
	env.ch.HandleEvent(context.Background(), telegram.InboxRead{Peer: peer, MaxID: 40})

	env.host.mu.Lock()
	defer env.host.mu.Unlock()
	if len(env.host.acked) != 1 {
		t.Errorf("stale or repeated watermark must be a no-op, got %d acks", len(env.host.acked))
	}
}

func TestInboxReadWithNothingPendingSendsNoAck(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})

	env.ch.HandleEvent(context.Background(), telegram.InboxRead{Peer: peer, MaxID: 50})

	env.host.mu.Lock()
	defer env.host.mu.Unlock()
	if len(env.host.acked) != 0 {
		t.Errorf("expected no ack call, got %v", env.host.acked)
	}
}

func TestOutboxReadEmitsReadReceipt(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})

	env.ch.HandleEvent(context.Background(), telegram.MessageSent{Peer: peer, RandomID: 7777, MessageID: 200})
	env.ch.HandleEvent(context.Background(), telegram.OutboxRead{Peer: peer, MaxID: 200})

	if env.host.deliveredCount() != 2 {
		t.Fatalf("expected accepted + read receipts, got %d", env.host.deliveredCount())
	}
	header := env.host.lastDelivered()[0]
	if header[host.KeyStatus] != string(host.DeliveryStatusRead) {
		t.Errorf("unexpected status %v", header[host.KeyStatus])
	}
	if header[host.KeyDeliveryTok] != "7777" {
		t.Errorf("read receipt must reference the send token, got %v", header[host.KeyDeliveryTok])
	}
	if header[host.KeySenderID] != peer.String() {
		t.Errorf("read receipt must be attributed to the conversation peer, got %v", header[host.KeySenderID])
	}
}

func TestOutboxReadWatermarkIsMonotonic(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})

	env.ch.HandleEvent(context.Background(), telegram.OutboxRead{Peer: peer, MaxID: 30})
	env.ch.HandleEvent(context.Background(), telegram.OutboxRead{Peer: peer, MaxID: 30})
	env.ch.HandleEvent(context.Background(), telegram.OutboxRead{Peer: peer, MaxID: 20})

	if env.host.deliveredCount() != 1 {
		t.Errorf("stale or repeated watermark must be a no-op, got %d receipts", env.host.deliveredCount())
	}
}

func TestOutboxReadForUnconfirmedMessageUsesNumericToken(t *testing.T) {
	peer := telegram.UserPeer(42)
	env := newTestChannel(t, peer, Options{})

	env.ch.HandleEvent(context.Background(), telegram.OutboxRead{Peer: peer, MaxID: 333})

	header := env.host.lastDelivered()[0]
	if header[host.KeyDeliveryTok] != "333" {
		t.Errorf("unexpected token %v", header[host.KeyDeliveryTok])
	}
}
