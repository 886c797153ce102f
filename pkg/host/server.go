// Package host exposes bridge channels to a generic hosting client over a
// websocket JSON-RPC connection and owns the channel-layer identity space.
package host

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/tinyland-inc/telebridge/pkg/telegram"
)

// RPC methods the hosting client may call.
const (
	methodSendMessage  = "message.send"
	methodSetChatState = "chatstate.set"
	methodAcknowledge  = "message.ack"
	methodPending      = "message.pending"
	methodSetAlias     = "alias.set"
)

// Notifications pushed to the hosting client.
const (
	notifyChannelOpen  = "channel.open"
	notifyDeliver      = "message.deliver"
	notifyChatState    = "chatstate.changed"
	notifyCapabilities = "channel.capabilities"
	notifyGroupMembers = "group.members"
	notifyRoomConfig   = "room.config"
)

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      uint64    `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcNotification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type sendParams struct {
	Channel string   `json:"channel"`
	Parts   PartList `json:"parts"`
	Flags   uint     `json:"flags"`
}

type chatStateParams struct {
	Channel string `json:"channel"`
	State   string `json:"state"`
}

type ackParams struct {
	Channel string   `json:"channel"`
	Tokens  []string `json:"tokens"`
}

type channelParams struct {
	Channel string `json:"channel"`
}

type aliasParams struct {
	Peer  string `json:"peer"`
	Alias string `json:"alias"`
}

// Server is the websocket Channel Host. It serves a single hosting client,
// routes its requests to the bound channel callbacks and pushes normalized
// messages back as notifications. It also implements Identity: handles are
// allocated per peer string, idempotently, with the self peer fixed first.
type Server struct {
	log       zerolog.Logger
	upgrader  websocket.Upgrader
	selfPeer  telegram.Peer
	authToken string

	mu       sync.Mutex
	channels map[string]*serverChannel

	connMu sync.Mutex
	conn   *websocket.Conn

	handleMu   sync.Mutex
	handles    map[string]uint32
	nextHandle uint32
	aliases    map[string]string
}

func NewServer(selfPeer telegram.Peer, logger zerolog.Logger) *Server {
	s := &Server{
		log:      logger,
		selfPeer: selfPeer,
		channels: make(map[string]*serverChannel),
		handles:  make(map[string]uint32),
		aliases:  make(map[string]string),
	}
	s.handles[selfPeer.String()] = 1
	s.nextHandle = 1
	return s
}

// SetAuthToken requires hosting clients to present the token as a bearer
// credential. An empty token disables the check.
func (s *Server) SetAuthToken(token string) {
	s.authToken = token
}

// EnsureHandle allocates or returns the handle for a peer.
func (s *Server) EnsureHandle(peer telegram.Peer) (uint32, error) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	if h, ok := s.handles[peer.String()]; ok {
		return h, nil
	}
	s.nextHandle++
	s.handles[peer.String()] = s.nextHandle
	return s.nextHandle, nil
}

func (s *Server) EnsureContact(userID int64) (uint32, error) {
	return s.EnsureHandle(telegram.UserPeer(userID))
}

// SetAlias records a display alias for a peer.
func (s *Server) SetAlias(peer telegram.Peer, alias string) {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	s.aliases[peer.String()] = alias
}

func (s *Server) Alias(peer telegram.Peer) string {
	s.handleMu.Lock()
	defer s.handleMu.Unlock()
	return s.aliases[peer.String()]
}

func (s *Server) SelfHandle() uint32 {
	return 1
}

func (s *Server) SelfID() string {
	return s.selfPeer.String()
}

func (s *Server) SelfPeer() telegram.Peer {
	return s.selfPeer
}

// OpenChannel creates the host surface for a peer and announces it to the
// hosting client.
func (s *Server) OpenChannel(peer telegram.Peer) (Host, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.channels[peer.String()]; ok {
		return ch, nil
	}
	ch := &serverChannel{
		srv:  s,
		id:   uuid.NewString(),
		peer: peer,
	}
	s.channels[peer.String()] = ch
	s.notify(notifyChannelOpen, map[string]any{"channel": peer.String(), "id": ch.id})
	return ch, nil
}

func (s *Server) channel(name string) (*serverChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch, ok := s.channels[name]
	if !ok {
		return nil, fmt.Errorf("unknown channel %q", name)
	}
	return ch, nil
}

// ServeHTTP upgrades the hosting client connection. A new connection
// replaces the previous one.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.authToken != "" {
		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(s.authToken)) != 1 {
			s.log.Warn().Str("remote", r.RemoteAddr).Msg("host client rejected: bad token")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	s.connMu.Lock()
	if s.conn != nil {
		s.conn.Close()
	}
	s.conn = conn
	s.connMu.Unlock()

	s.log.Info().Str("remote", conn.RemoteAddr().String()).Msg("host client connected")
	s.readLoop(conn)
}

func (s *Server) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			s.log.Info().Err(err).Msg("host client disconnected")
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(data, &req); err != nil {
			s.log.Warn().Err(err).Msg("malformed request frame")
			continue
		}
		result, err := s.handleRequest(req)
		resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
		if err != nil {
			resp.Error = &rpcError{Code: -32000, Message: err.Error()}
		} else {
			resp.Result = result
		}
		s.write(resp)
	}
}

func (s *Server) handleRequest(req rpcRequest) (any, error) {
	switch req.Method {
	case methodSendMessage:
		var params sendParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		ch, err := s.channel(params.Channel)
		if err != nil {
			return nil, err
		}
		cb := ch.callbacks()
		if cb == nil {
			return nil, fmt.Errorf("channel %q not bound", params.Channel)
		}
		token, err := cb.SendMessage(params.Parts, params.Flags)
		if err != nil {
			return nil, err
		}
		return map[string]any{"token": token}, nil

	case methodSetChatState:
		var params chatStateParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		ch, err := s.channel(params.Channel)
		if err != nil {
			return nil, err
		}
		cb := ch.callbacks()
		if cb == nil {
			return nil, fmt.Errorf("channel %q not bound", params.Channel)
		}
		if err := cb.SetChatState(ChatState(params.State)); err != nil {
			return nil, err
		}
		return map[string]any{"ok": true}, nil

	case methodAcknowledge:
		var params ackParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		ch, err := s.channel(params.Channel)
		if err != nil {
			return nil, err
		}
		ch.clientAcknowledge(params.Tokens)
		return map[string]any{"ok": true}, nil

	case methodPending:
		var params channelParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		ch, err := s.channel(params.Channel)
		if err != nil {
			return nil, err
		}
		return ch.PendingMessages(), nil

	case methodSetAlias:
		var params aliasParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("invalid params: %w", err)
		}
		peer, err := telegram.ParsePeer(params.Peer)
		if err != nil {
			return nil, err
		}
		s.SetAlias(peer, params.Alias)
		return map[string]any{"ok": true}, nil

	default:
		return nil, fmt.Errorf("unknown method %q", req.Method)
	}
}

func (s *Server) notify(method string, params any) {
	s.write(rpcNotification{JSONRPC: "2.0", Method: method, Params: params})
}

func (s *Server) write(v any) {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return
	}
	if err := s.conn.WriteJSON(v); err != nil {
		s.log.Warn().Err(err).Msg("notification write failed")
	}
}

// serverChannel is the per-peer host surface: it owns the pending message
// queue and relays everything else to the connected hosting client.
type serverChannel struct {
	srv  *Server
	id   string
	peer telegram.Peer

	mu      sync.Mutex
	cb      Callbacks
	pending []PartList
	members []uint32
	title   string
	created time.Time
}

func (ch *serverChannel) BindCallbacks(cb Callbacks) {
	ch.mu.Lock()
	ch.cb = cb
	ch.mu.Unlock()
}

func (ch *serverChannel) callbacks() Callbacks {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.cb
}

func (ch *serverChannel) DeliverMessage(parts PartList) {
	ch.mu.Lock()
	ch.pending = append(ch.pending, parts)
	ch.mu.Unlock()
	ch.srv.notify(notifyDeliver, map[string]any{"channel": ch.peer.String(), "parts": parts})
}

func (ch *serverChannel) ChatStateChanged(handle uint32, state ChatState) {
	ch.srv.notify(notifyChatState, map[string]any{
		"channel": ch.peer.String(),
		"sender":  handle,
		"state":   string(state),
	})
}

func (ch *serverChannel) PendingMessages() []PartList {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]PartList, len(ch.pending))
	copy(out, ch.pending)
	return out
}

// AcknowledgeMessages drops the given tokens from the pending queue. Tokens
// already acknowledged by the client are silently ignored.
func (ch *serverChannel) AcknowledgeMessages(tokens []string) error {
	ch.mu.Lock()
	ch.remove(tokens)
	ch.mu.Unlock()
	return nil
}

// clientAcknowledge handles an acknowledgement initiated by the hosting
// client: the message leaves the pending queue and the channel is told, but
// this never marks anything read upstream.
func (ch *serverChannel) clientAcknowledge(tokens []string) {
	ch.mu.Lock()
	ch.remove(tokens)
	cb := ch.cb
	ch.mu.Unlock()
	if cb == nil {
		return
	}
	for _, token := range tokens {
		cb.MessageAcknowledged(token)
	}
}

// remove filters the pending queue in place. Callers hold ch.mu.
func (ch *serverChannel) remove(tokens []string) {
	drop := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		drop[t] = true
	}
	kept := ch.pending[:0]
	for _, msg := range ch.pending {
		if !drop[msg.Token()] {
			kept = append(kept, msg)
		}
	}
	ch.pending = kept
}

func (ch *serverChannel) SetCapabilities(contentTypes []string, messageTypes []MessageType) {
	ch.srv.notify(notifyCapabilities, map[string]any{
		"channel":       ch.peer.String(),
		"content-types": contentTypes,
		"message-types": messageTypes,
	})
}

func (ch *serverChannel) SetGroupMembers(handles []uint32) {
	ch.mu.Lock()
	ch.members = handles
	ch.mu.Unlock()
	ch.srv.notify(notifyGroupMembers, map[string]any{"channel": ch.peer.String(), "members": handles})
}

func (ch *serverChannel) SetRoomConfig(title string, created time.Time) {
	ch.mu.Lock()
	ch.title = title
	ch.created = created
	ch.mu.Unlock()
	ch.srv.notify(notifyRoomConfig, map[string]any{
		"channel": ch.peer.String(),
		"title":   title,
		"created": created.Unix(),
	})
}
