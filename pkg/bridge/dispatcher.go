package bridge

import (
	"context"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tinyland-inc/telebridge/pkg/bus"
	"github.com/tinyland-inc/telebridge/pkg/host"
	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// Dispatcher consumes remote events from the bus and routes each one to the
// channel bound to its peer, creating channels lazily on first contact.
type Dispatcher struct {
	client telegram.Client
	opener host.Opener
	ident  host.Identity
	events *bus.EventBus
	log    zerolog.Logger
	opts   Options

	allowList []string

	mu       sync.Mutex
	channels map[string]*TextChannel
}

func NewDispatcher(
	client telegram.Client,
	opener host.Opener,
	ident host.Identity,
	events *bus.EventBus,
	logger zerolog.Logger,
	opts Options,
	allowList []string,
) *Dispatcher {
	return &Dispatcher{
		client:    client,
		opener:    opener,
		ident:     ident,
		events:    events,
		log:       logger,
		opts:      opts,
		allowList: allowList,
		channels:  make(map[string]*TextChannel),
	}
}

// Run consumes the event bus until the context ends or the bus closes, then
// tears down every channel.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		ev, ok := d.events.Consume(ctx)
		if !ok {
			d.StopAll()
			return
		}
		d.dispatch(ctx, ev)
	}
}

func (d *Dispatcher) dispatch(ctx context.Context, ev telegram.Event) {
	peer := ev.EventPeer()
	if !peer.IsValid() {
		return
	}
	if !d.IsAllowed(peer) {
		d.log.Debug().Stringer("peer", peer).Msg("peer not in allowlist")
		return
	}
	ch, err := d.ensureChannel(ctx, peer)
	if err != nil {
		d.log.Error().Stringer("peer", peer).Err(err).Msg("cannot bind channel")
		return
	}
	ch.HandleEvent(ctx, ev)
}

// IsAllowed checks the peer against the allowlist. Entries may be full peer
// strings ("user123") or bare IDs; an empty allowlist admits everyone.
func (d *Dispatcher) IsAllowed(peer telegram.Peer) bool {
	if len(d.allowList) == 0 {
		return true
	}
	id := peer.String()
	bare := strconv.FormatInt(peer.ID, 10)
	for _, allowed := range d.allowList {
		if allowed == id || allowed == bare {
			return true
		}
	}
	return false
}

func (d *Dispatcher) ensureChannel(ctx context.Context, peer telegram.Peer) (*TextChannel, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[peer.String()]; ok && ch.IsRunning() {
		return ch, nil
	}

	h, err := d.opener.OpenChannel(peer)
	if err != nil {
		return nil, err
	}
	ch, err := NewTextChannel(ctx, d.client, h, d.ident, d.log, peer, d.opts)
	if err != nil {
		return nil, err
	}
	h.BindCallbacks(ch)
	d.channels[peer.String()] = ch
	return ch, nil
}

// Channel returns the bound channel for a peer, or nil.
func (d *Dispatcher) Channel(peer telegram.Peer) *TextChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[peer.String()]
}

// StopAll tears down every bound channel.
func (d *Dispatcher) StopAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range d.channels {
		ch.Stop()
	}
}
