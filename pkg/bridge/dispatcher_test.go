package bridge

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/telebridge/pkg/bus"
	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

type fakeOpener struct {
	mu    sync.Mutex
	hosts map[string]*fakeHost
}

func newFakeOpener() *fakeOpener {
	return &fakeOpener{hosts: make(map[string]*fakeHost)}
}

func (f *fakeOpener) OpenChannel(peer telegram.Peer) (host.Host, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hosts[peer.String()]
	if !ok {
		h = &fakeHost{}
		f.hosts[peer.String()] = h
	}
	return h, nil
}

func (f *fakeOpener) hostFor(peer telegram.Peer) *fakeHost {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hosts[peer.String()]
}

func newTestDispatcher(allowList []string) (*Dispatcher, *fakeOpener, *bus.EventBus) {
	opener := newFakeOpener()
	events := bus.NewEventBus()
	d := NewDispatcher(
		newFakeClient(),
		opener,
		newFakeIdentity(testSelfPeer),
		events,
		zerolog.Nop(),
		Options{},
		allowList,
	)
	return d, opener, events
}

func TestDispatcherRoutesEventsPerPeer(t *testing.T) {
	d, opener, events := newTestDispatcher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	alice := telegram.UserPeer(42)
	bob := telegram.UserPeer(43)
	for i, peer := range []telegram.Peer{alice, bob} {
		err := events.Publish(ctx, telegram.MessageReceived{Message: telegram.Message{
			ID:         uint32(i + 1),
			FromUserID: peer.ID,
			Peer:       peer,
			Timestamp:  1700000000,
			Type:       telegram.MessageText,
			Text:       "hello",
		}})
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
	}

	deadline := time.Now().Add(5 * time.Second)
	for _, peer := range []telegram.Peer{alice, bob} {
		for {
			h := opener.hostFor(peer)
			if h != nil && h.deliveredCount() == 1 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("peer %s: delivery did not arrive", peer)
			}
			time.Sleep(5 * time.Millisecond)
		}
	}

	events.Close()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop after bus close")
	}
	if d.Channel(alice) == d.Channel(bob) {
		t.Error("each peer must get its own channel")
	}
}

func TestDispatcherReusesRunningChannel(t *testing.T) {
	d, _, _ := newTestDispatcher(nil)
	peer := telegram.UserPeer(42)
	ctx := context.Background()

	first, err := d.ensureChannel(ctx, peer)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	second, err := d.ensureChannel(ctx, peer)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if first != second {
		t.Error("a running channel must be reused")
	}

	first.Stop()
	third, err := d.ensureChannel(ctx, peer)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if third == first {
		t.Error("a stopped channel must be replaced")
	}
	third.Stop()
}

func TestDispatcherAllowlist(t *testing.T) {
	d, _, _ := newTestDispatcher([]string{"user42", "300"})

	cases := []struct {
		peer telegram.Peer
		want bool
	}{
		{telegram.UserPeer(42), true},
		{telegram.Peer{Kind: telegram.PeerChat, ID: 300}, true},
		{telegram.UserPeer(300), true},
		{telegram.UserPeer(43), false},
		{telegram.Peer{Kind: telegram.PeerChannel, ID: 42}, false},
	}
	for _, tc := range cases {
		if got := d.IsAllowed(tc.peer); got != tc.want {
			t.Errorf("IsAllowed(%s) = %v, want %v", tc.peer, got, tc.want)
		}
	}

	open, _, _ := newTestDispatcher(nil)
	if !open.IsAllowed(telegram.UserPeer(1)) {
		t.Error("empty allowlist must admit everyone")
	}
}

func TestDispatcherIgnoresDisallowedPeers(t *testing.T) {
	d, opener, _ := newTestDispatcher([]string{"user42"})
	stranger := telegram.UserPeer(666)

	d.dispatch(context.Background(), telegram.MessageReceived{Message: telegram.Message{
		ID:         1,
		FromUserID: stranger.ID,
		Peer:       stranger,
		Timestamp:  1700000000,
		Type:       telegram.MessageText,
		Text:       "spam",
	}})

	if opener.hostFor(stranger) != nil {
		t.Error("no channel must be opened for a disallowed peer")
	}
	if d.Channel(stranger) != nil {
		t.Error("disallowed peer must not be bound")
	}
}

func TestDispatcherStopAll(t *testing.T) {
	d, _, _ := newTestDispatcher(nil)
	peer := telegram.UserPeer(42)

	ch, err := d.ensureChannel(context.Background(), peer)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	d.StopAll()
	if ch.IsRunning() {
		t.Error("StopAll must tear down bound channels")
	}
}
