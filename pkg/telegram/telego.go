package telegram

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"unicode/utf16"

	"github.com/mymmrac/telego"
	"github.com/rs/zerolog"
)

// BotClient implements Client over the Telegram Bot API. The Bot API hides
// the richer MTProto dialog state, so read watermarks and per-message media
// metadata are tracked locally, best-effort: a missing value degrades the
// bridge instead of failing it.
type BotClient struct {
	bot    *telego.Bot
	pub    Publisher
	log    zerolog.Logger
	selfID int64

	mu      sync.Mutex
	dialogs map[string]DialogInfo
	media   map[mediaKey]MediaInfo
}

type mediaKey struct {
	peer string
	id   uint32
}

func NewBotClient(token string, selfUserID int64, pub Publisher, logger zerolog.Logger) (*BotClient, error) {
	bot, err := telego.NewBot(token, telego.WithDefaultLogger(false, false))
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &BotClient{
		bot:     bot,
		pub:     pub,
		log:     logger,
		selfID:  selfUserID,
		dialogs: make(map[string]DialogInfo),
		media:   make(map[mediaKey]MediaInfo),
	}, nil
}

// Run pumps Bot API updates into the publisher until the context ends.
func (b *BotClient) Run(ctx context.Context) error {
	if b.selfID == 0 {
		me, err := b.bot.GetMe(ctx)
		if err != nil {
			return fmt.Errorf("get me: %w", err)
		}
		b.selfID = me.ID
	}

	updates, err := b.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("long polling: %w", err)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case upd, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, upd)
		}
	}
}

func (b *BotClient) handleUpdate(ctx context.Context, upd telego.Update) {
	msg := upd.Message
	if msg == nil {
		return
	}
	peer := peerFromChat(msg.Chat)

	m := Message{
		ID:        uint32(msg.MessageID),
		Peer:      peer,
		Timestamp: msg.Date,
		Type:      MessageText,
		Text:      msg.Text,
	}
	if msg.From != nil {
		m.FromUserID = msg.From.ID
		m.Out = msg.From.ID == b.selfID
	}

	var media MediaInfo
	switch {
	case msg.Location != nil:
		m.Type = MessageGeo
		media.Latitude = msg.Location.Latitude
		media.Longitude = msg.Location.Longitude
	case msg.Contact != nil:
		m.Type = MessageContact
		media.FirstName = msg.Contact.FirstName
		media.LastName = msg.Contact.LastName
		media.Phone = msg.Contact.PhoneNumber
	case len(msg.Photo) > 0, msg.Document != nil, msg.Sticker != nil, msg.Video != nil, msg.Voice != nil, msg.Audio != nil:
		m.Type = MessageUnsupported
	default:
		if url := firstURLEntity(msg.Text, msg.Entities); url != "" {
			// The Bot API carries no preview metadata, only the link itself.
			m.Type = MessageWebPage
			media.URL = url
			media.DisplayURL = url
		}
	}
	media.Caption = msg.Caption

	if origin, ok := msg.ForwardOrigin.(*telego.MessageOriginUser); ok {
		m.ForwardFromPeer = UserPeer(origin.SenderUser.ID)
		m.ForwardTimestamp = origin.Date
	}

	b.mu.Lock()
	if m.Type != MessageText {
		b.media[mediaKey{peer.String(), m.ID}] = media
	}
	dialog := b.dialogs[peer.String()]
	dialog.Peer = peer
	if m.ID > dialog.TopMessageID {
		dialog.TopMessageID = m.ID
	}
	b.dialogs[peer.String()] = dialog
	b.mu.Unlock()

	if err := b.pub.Publish(ctx, MessageReceived{Message: m}); err != nil {
		b.log.Warn().Err(err).Msg("publish message event failed")
	}
}

// SendMessage dispatches text and returns a random send token. The Bot API
// confirms synchronously; the permanent ID is replayed as the MessageSent
// event the bridge expects from an async remote.
func (b *BotClient) SendMessage(ctx context.Context, peer Peer, text string) (uint64, error) {
	randomID := rand.Uint64()
	if randomID == 0 {
		randomID = 1
	}

	sent, err := b.bot.SendMessage(ctx, &telego.SendMessageParams{
		ChatID: telego.ChatID{ID: peer.ID},
		Text:   text,
	})
	if err != nil {
		return 0, fmt.Errorf("telegram send: %w", err)
	}

	b.mu.Lock()
	dialog := b.dialogs[peer.String()]
	dialog.Peer = peer
	if id := uint32(sent.MessageID); id > dialog.TopMessageID {
		dialog.TopMessageID = id
	}
	b.dialogs[peer.String()] = dialog
	b.mu.Unlock()

	ev := MessageSent{Peer: peer, RandomID: randomID, MessageID: uint32(sent.MessageID)}
	if err := b.pub.Publish(ctx, ev); err != nil {
		b.log.Warn().Err(err).Msg("publish sent event failed")
	}
	return randomID, nil
}

func (b *BotClient) SetMessageAction(ctx context.Context, peer Peer, action MessageAction) error {
	if action == ActionNone {
		// The Bot API cannot cancel a chat action; it expires on its own.
		return nil
	}
	err := b.bot.SendChatAction(ctx, &telego.SendChatActionParams{
		ChatID: telego.ChatID{ID: peer.ID},
		Action: telego.ChatActionTyping,
	})
	if err != nil {
		return fmt.Errorf("send chat action: %w", err)
	}
	return nil
}

// ReadHistory records the local read watermark and echoes it back as an
// InboxRead event, the way an MTProto server confirms the advance.
func (b *BotClient) ReadHistory(ctx context.Context, peer Peer, maxID uint32) error {
	b.mu.Lock()
	dialog := b.dialogs[peer.String()]
	if maxID <= dialog.ReadInboxMaxID {
		b.mu.Unlock()
		return nil
	}
	dialog.Peer = peer
	dialog.ReadInboxMaxID = maxID
	b.dialogs[peer.String()] = dialog
	b.mu.Unlock()

	if err := b.pub.Publish(ctx, InboxRead{Peer: peer, MaxID: maxID}); err != nil {
		b.log.Warn().Err(err).Msg("publish inbox read failed")
	}
	return nil
}

func (b *BotClient) DialogInfo(_ context.Context, peer Peer) (DialogInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	dialog, ok := b.dialogs[peer.String()]
	if !ok {
		return DialogInfo{Peer: peer}, nil
	}
	return dialog, nil
}

func (b *BotClient) ChatInfo(ctx context.Context, peer Peer) (ChatInfo, error) {
	chat, err := b.bot.GetChat(ctx, &telego.GetChatParams{ChatID: telego.ChatID{ID: peer.ID}})
	if err != nil {
		return ChatInfo{}, fmt.Errorf("get chat: %w", err)
	}
	return ChatInfo{
		Title:     chat.Title,
		Broadcast: chat.Type == telego.ChatTypeChannel,
	}, nil
}

func (b *BotClient) MessageMediaInfo(_ context.Context, peer Peer, messageID uint32) (MediaInfo, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	media, ok := b.media[mediaKey{peer.String(), messageID}]
	if !ok {
		return MediaInfo{}, fmt.Errorf("no media info for message %d", messageID)
	}
	return media, nil
}

// firstURLEntity extracts the first URL entity from a message text. Entity
// offsets are in UTF-16 code units.
func firstURLEntity(text string, entities []telego.MessageEntity) string {
	for _, e := range entities {
		if e.Type != telego.EntityTypeURL {
			continue
		}
		units := utf16.Encode([]rune(text))
		if e.Offset < 0 || e.Length <= 0 || e.Offset+e.Length > len(units) {
			return ""
		}
		return string(utf16.Decode(units[e.Offset : e.Offset+e.Length]))
	}
	return ""
}

func peerFromChat(chat telego.Chat) Peer {
	switch chat.Type {
	case telego.ChatTypePrivate:
		return Peer{Kind: PeerUser, ID: chat.ID}
	case telego.ChatTypeChannel:
		return Peer{Kind: PeerChannel, ID: chat.ID}
	default:
		return Peer{Kind: PeerChat, ID: chat.ID}
	}
}
