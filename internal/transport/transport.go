// Package transport defines the abstract inbound/outbound messaging surface
// shared by all chat transports. Adapters translate their wire formats into
// InboundEvent values and implement Sender; nothing above this package issues
// a raw network call.
package transport

import "context"

// Transport identifies a chat transport. A user identity is only meaningful
// within its transport namespace.
type Transport string

const (
	Telegram Transport = "telegram"
	WhatsApp Transport = "whatsapp"
)

// Kind classifies an inbound event.
type Kind string

const (
	// KindStart is the registration entrypoint ("/start").
	KindStart Kind = "start"
	// KindContact carries a shared contact's phone number.
	KindContact Kind = "contact"
	// KindText is a plain text message.
	KindText Kind = "text"
)

// InboundEvent is one message delivered by a transport adapter.
type InboundEvent struct {
	// Identity is the opaque per-transport chat/user id.
	Identity  string
	Transport Transport
	Kind      Kind
	// Text is the message body for KindText.
	Text string
	// Contact is the raw phone number for KindContact.
	Contact string
	// DisplayName is a human label for the sender, used in greetings and
	// escalations. May be empty.
	DisplayName string
}

// SendOptions are presentation hints. Adapters apply what their platform
// supports and ignore the rest.
type SendOptions struct {
	// RequestContact asks the platform to offer a share-contact control.
	RequestContact bool
	// YesNoKeyboard offers Да/Нет quick replies.
	YesNoKeyboard bool
	// RemoveKeyboard clears any previously offered quick replies.
	RemoveKeyboard bool
	// Markdown requests rich formatting for the text.
	Markdown bool
}

// Sender delivers one outbound message to an identity on this transport.
type Sender interface {
	Send(ctx context.Context, identity, text string, opts *SendOptions) error
}
