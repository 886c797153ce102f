package bridge

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// fakeClient is an in-memory messaging client for testing.
type fakeClient struct {
	mu           sync.Mutex
	dialog       telegram.DialogInfo
	dialogErr    error
	chat         telegram.ChatInfo
	chatErr      error
	media        map[uint32]telegram.MediaInfo
	nextRandomID uint64
	sendErr      error
	sentTexts    []string
	actions      []telegram.MessageAction
	readHistory  []uint32
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		media:        make(map[uint32]telegram.MediaInfo),
		nextRandomID: 7777,
	}
}

func (f *fakeClient) SendMessage(_ context.Context, _ telegram.Peer, text string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sentTexts = append(f.sentTexts, text)
	return f.nextRandomID, nil
}

func (f *fakeClient) SetMessageAction(_ context.Context, _ telegram.Peer, action telegram.MessageAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, action)
	return nil
}

func (f *fakeClient) ReadHistory(_ context.Context, _ telegram.Peer, maxID uint32) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readHistory = append(f.readHistory, maxID)
	return nil
}

func (f *fakeClient) DialogInfo(_ context.Context, _ telegram.Peer) (telegram.DialogInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialogErr != nil {
		return telegram.DialogInfo{}, f.dialogErr
	}
	return f.dialog, nil
}

func (f *fakeClient) ChatInfo(_ context.Context, _ telegram.Peer) (telegram.ChatInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.chatErr != nil {
		return telegram.ChatInfo{}, f.chatErr
	}
	return f.chat, nil
}

func (f *fakeClient) MessageMediaInfo(_ context.Context, _ telegram.Peer, messageID uint32) (telegram.MediaInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.media[messageID], nil
}

func (f *fakeClient) actionCount(action telegram.MessageAction) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, a := range f.actions {
		if a == action {
			n++
		}
	}
	return n
}

// fakeHost records everything the channel emits.
type fakeHost struct {
	mu        sync.Mutex
	cb        host.Callbacks
	delivered []host.PartList
	pending   []host.PartList
	acked     [][]string
	states    []host.ChatState
	members   []uint32
	title     string
	created   time.Time

	contentTypes []string
	messageTypes []host.MessageType
}

func (f *fakeHost) DeliverMessage(parts host.PartList) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delivered = append(f.delivered, parts)
	f.pending = append(f.pending, parts)
}

func (f *fakeHost) ChatStateChanged(_ uint32, state host.ChatState) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = append(f.states, state)
}

func (f *fakeHost) PendingMessages() []host.PartList {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]host.PartList, len(f.pending))
	copy(out, f.pending)
	return out
}

func (f *fakeHost) AcknowledgeMessages(tokens []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tokens)
	return nil
}

func (f *fakeHost) SetCapabilities(contentTypes []string, messageTypes []host.MessageType) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.contentTypes = contentTypes
	f.messageTypes = messageTypes
}

func (f *fakeHost) SetGroupMembers(handles []uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = handles
}

func (f *fakeHost) SetRoomConfig(title string, created time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.title = title
	f.created = created
}

func (f *fakeHost) BindCallbacks(cb host.Callbacks) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cb = cb
}

func (f *fakeHost) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func (f *fakeHost) lastDelivered() host.PartList {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.delivered) == 0 {
		return nil
	}
	return f.delivered[len(f.delivered)-1]
}

// fakeIdentity allocates deterministic handles: self is 1, everything else
// gets sequential handles per peer string.
type fakeIdentity struct {
	mu           sync.Mutex
	handles      map[string]uint32
	aliases      map[string]string
	next         uint32
	self         telegram.Peer
	failContacts bool
	failHandles  bool
}

func newFakeIdentity(self telegram.Peer) *fakeIdentity {
	return &fakeIdentity{
		handles: map[string]uint32{self.String(): 1},
		aliases: make(map[string]string),
		next:    1,
		self:    self,
	}
}

func (f *fakeIdentity) EnsureHandle(peer telegram.Peer) (uint32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failHandles {
		return 0, errors.New("handle store unavailable")
	}
	if h, ok := f.handles[peer.String()]; ok {
		return h, nil
	}
	f.next++
	f.handles[peer.String()] = f.next
	return f.next, nil
}

func (f *fakeIdentity) EnsureContact(userID int64) (uint32, error) {
	f.mu.Lock()
	failing := f.failContacts
	f.mu.Unlock()
	if failing {
		return 0, errors.New("contact store unavailable")
	}
	return f.EnsureHandle(telegram.UserPeer(userID))
}

func (f *fakeIdentity) Alias(peer telegram.Peer) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.aliases[peer.String()]
}

func (f *fakeIdentity) SelfHandle() uint32 { return 1 }

func (f *fakeIdentity) SelfID() string { return f.self.String() }

func (f *fakeIdentity) SelfPeer() telegram.Peer { return f.self }

var testSelfPeer = telegram.UserPeer(999)

type testEnv struct {
	client *fakeClient
	host   *fakeHost
	ident  *fakeIdentity
	ch     *TextChannel
}

func newTestChannel(t *testing.T, peer telegram.Peer, opts Options) *testEnv {
	t.Helper()
	env := &testEnv{
		client: newFakeClient(),
		host:   &fakeHost{},
		ident:  newFakeIdentity(testSelfPeer),
	}
	ch, err := NewTextChannel(context.Background(), env.client, env.host, env.ident, zerolog.Nop(), peer, opts)
	if err != nil {
		t.Fatalf("new channel: %v", err)
	}
	t.Cleanup(ch.Stop)
	env.ch = ch
	return env
}
