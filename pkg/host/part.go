package host

// Part is one element of a normalized message: a header, a forwarding
// metadata block or a body part. Key names and value types are a wire
// contract with the channel host and must not drift.
type Part map[string]any

// PartList is an ordered normalized message: header first, then an optional
// forwarding part, then body parts.
type PartList []Part

// Header part keys.
const (
	KeyToken       = "message-token"
	KeyType        = "message-type"
	KeySent        = "message-sent"
	KeySender      = "message-sender"
	KeySenderID    = "message-sender-id"
	KeySenderAlias = "message-sender-alias"
	KeyStatus      = "delivery-status"
	KeyReceived    = "message-received"
	KeySilent      = "silent"
	KeyScrollback  = "scrollback"
	KeyDeliveryTok = "delivery-token"
	KeyInterface   = "interface"
)

// Body part keys.
const (
	KeyContentType = "content-type"
	KeyContent     = "content"
	KeyAlternative = "alternative"
	KeyThumbnail   = "thumbnail"
	KeyTitle       = "title"
	KeyURL         = "url"
	KeyDisplayURL  = "displayUrl"
	KeySiteName    = "siteName"
	KeyDescription = "description"
)

// Content types the bridge emits.
const (
	ContentTypeText    = "text/plain"
	ContentTypeVCard   = "text/vcard"
	ContentTypeGeoJSON = "application/geo+json"
	ContentTypeJPEG    = "image/jpeg"
)

// Extension interface namespaces for non-standard parts.
const (
	IfaceForwarding = "im.telebridge.Interface.Forwarding"
	IfaceWebPage    = "im.telebridge.Interface.WebPage"
)

// Alternative grouping tags.
const (
	AltMultimedia = "multimedia"
	AltCaption    = "caption"
)

// MessageType values for the message-type header key.
type MessageType string

const (
	MessageTypeNormal         MessageType = "normal"
	MessageTypeDeliveryReport MessageType = "delivery-report"
)

// DeliveryStatus values for the delivery-status header key.
type DeliveryStatus string

const (
	DeliveryStatusAccepted DeliveryStatus = "accepted"
	DeliveryStatusRead     DeliveryStatus = "read"
)

// ChatState is the client-facing typing state.
type ChatState string

const (
	ChatStateActive    ChatState = "active"
	ChatStateComposing ChatState = "composing"
)

// Token returns the message-token of the list's header part, or "" if the
// list is empty or carries no token.
func (pl PartList) Token() string {
	if len(pl) == 0 {
		return ""
	}
	tok, _ := pl[0][KeyToken].(string)
	return tok
}
