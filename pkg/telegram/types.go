package telegram

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// PeerKind distinguishes the three addressable conversation targets.
type PeerKind int

const (
	PeerUser PeerKind = iota
	PeerChat
	PeerChannel
)

// Peer is an addressable conversation target. The string form is stable and
// round-trips through ParsePeer.
type Peer struct {
	Kind PeerKind
	ID   int64
}

func (p Peer) IsValid() bool {
	return p.ID != 0
}

// IsRoom reports whether the peer is a multi-user target (chat or channel).
func (p Peer) IsRoom() bool {
	return p.Kind != PeerUser
}

func (p Peer) String() string {
	switch p.Kind {
	case PeerChat:
		return "chat" + strconv.FormatInt(p.ID, 10)
	case PeerChannel:
		return "channel" + strconv.FormatInt(p.ID, 10)
	default:
		return "user" + strconv.FormatInt(p.ID, 10)
	}
}

// UserPeer builds a user peer from a sender user ID.
func UserPeer(userID int64) Peer {
	return Peer{Kind: PeerUser, ID: userID}
}

// ParsePeer parses the stable string form produced by Peer.String.
func ParsePeer(s string) (Peer, error) {
	for _, prefix := range []struct {
		tag  string
		kind PeerKind
	}{
		{"user", PeerUser},
		{"channel", PeerChannel},
		{"chat", PeerChat},
	} {
		if strings.HasPrefix(s, prefix.tag) {
			id, err := strconv.ParseInt(s[len(prefix.tag):], 10, 64)
			if err != nil {
				return Peer{}, fmt.Errorf("invalid peer %q: %w", s, err)
			}
			return Peer{Kind: prefix.kind, ID: id}, nil
		}
	}
	return Peer{}, fmt.Errorf("invalid peer %q", s)
}

// MessageType is the closed set of content kinds the bridge renders.
type MessageType int

const (
	MessageText MessageType = iota
	MessageGeo
	MessageContact
	MessageWebPage
	MessageUnsupported
)

// Message is a raw remote message event record.
type Message struct {
	ID               uint32
	FromUserID       int64
	Peer             Peer
	Timestamp        int64 // unix seconds, remote send time
	Type             MessageType
	Text             string
	Out              bool // sent by the local account
	ForwardFromPeer  Peer
	ForwardTimestamp int64
	RandomID         uint64 // only set for self-sent messages
}

// MediaInfo is the resolved metadata for a non-text message. Fields are
// populated per message type; Alt and Caption may accompany any of them.
type MediaInfo struct {
	Latitude  float64
	Longitude float64

	FirstName string
	LastName  string
	Phone     string

	Title       string
	URL         string
	DisplayURL  string
	SiteName    string
	Description string

	Alt         string
	Caption     string
	CachedPhoto []byte
}

// DialogInfo carries the per-peer read watermarks and the newest message ID.
type DialogInfo struct {
	Peer            Peer
	TopMessageID    uint32
	ReadInboxMaxID  uint32
	ReadOutboxMaxID uint32
}

// ChatInfo describes a group or broadcast peer.
type ChatInfo struct {
	Title     string
	Broadcast bool
	Created   time.Time
}

// MessageAction is a typing/activity notification state.
type MessageAction int

const (
	ActionNone MessageAction = iota
	ActionTyping
)

// ActionRepeatInterval is how often a client must re-assert a message action
// for the remote to keep showing it.
const ActionRepeatInterval = 5 * time.Second
