// Package transport defines the narrow surface the bot uses to talk to the
// messaging network. The WhatsApp adapter implements it; tests use fakes.
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrNotConnected is returned by transport calls made before a session is open.
var ErrNotConnected = errors.New("transport is not connected")

// MessageKind identifies the shape of an inbound message.
type MessageKind int

const (
	KindUnknown MessageKind = iota
	KindText
	KindExtendedText
	KindImage
	KindVideo
	KindSticker
	KindAudio
	KindDocument
)

func (k MessageKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindExtendedText:
		return "extended_text"
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	case KindSticker:
		return "sticker"
	case KindAudio:
		return "audio"
	case KindDocument:
		return "document"
	default:
		return "unknown"
	}
}

// Message is an inbound chat message reduced to the fields the bot reads.
type Message struct {
	ID           string
	Conversation string
	PushName     string
	FromMe       bool
	Timestamp    time.Time

	// Sender is the phone-number identity whenever the network reveals it.
	// Permissions, cooldowns and records key on it.
	Sender string

	// SenderLID is set when the message was addressed by hidden-user ID.
	// Message keys and mentions use it in that case.
	SenderLID string

	Kind    MessageKind
	Text    string // plain or extended text body
	Caption string // image or video caption

	Mentions          []string
	QuotedID          string
	QuotedParticipant string
}

// Address returns the identifier the network addressed the sender by.
func (m *Message) Address() string {
	if m.SenderLID != "" {
		return m.SenderLID
	}
	return m.Sender
}

// IsGroup reports whether the message was sent in a group conversation.
func (m *Message) IsGroup() bool {
	return IsGroupID(m.Conversation)
}

// Media is an outbound attachment.
type Media struct {
	Data     []byte
	MimeType string
	FileName string
	Caption  string
}

// Content is an outbound message. Exactly one of Text, Image, Video or Audio
// is expected to be set; Mentions applies to text and captions.
type Content struct {
	Text     string
	Mentions []string
	Image    *Media
	Video    *Media
	Audio    *Media
}

// SendOptions controls how an outbound message relates to the conversation.
type SendOptions struct {
	Quoted *Message
}

// Participant is a member of a group. ID is the address used for sending;
// PhoneNumber and LID carry both identities when the group is LID-addressed.
type Participant struct {
	ID           string
	PhoneNumber  string
	LID          string
	IsAdmin      bool
	IsSuperAdmin bool
}

// Matches reports whether id names this participant under any identity.
func (p *Participant) Matches(id string) bool {
	want := NormalizeID(id)
	if want == "" {
		return false
	}
	for _, have := range [...]string{p.ID, p.PhoneNumber, p.LID} {
		if have != "" && NormalizeID(have) == want {
			return true
		}
	}
	return false
}

// GroupMetadata is a live snapshot of a group's subject and membership.
type GroupMetadata struct {
	ID           string
	Subject      string
	Participants []Participant
}

// HasAdmin reports whether id is an admin or superadmin of the group. A
// phone number and a LID for the same member both match.
func (g *GroupMetadata) HasAdmin(id string) bool {
	for i := range g.Participants {
		p := &g.Participants[i]
		if (p.IsAdmin || p.IsSuperAdmin) && p.Matches(id) {
			return true
		}
	}
	return false
}

// ParticipantAction is a group membership change.
type ParticipantAction string

const (
	ActionAdd     ParticipantAction = "add"
	ActionRemove  ParticipantAction = "remove"
	ActionPromote ParticipantAction = "promote"
	ActionDemote  ParticipantAction = "demote"
)

// Sender delivers outbound messages.
type Sender interface {
	Send(ctx context.Context, conversation string, content Content, opts SendOptions) error
}

// Transport is the full set of network operations handlers may use.
type Transport interface {
	Sender

	React(ctx context.Context, msg *Message, emoji string) error
	FetchMetadata(ctx context.Context, conversation string) (*GroupMetadata, error)
	FetchAllGroups(ctx context.Context) ([]GroupMetadata, error)
	AcceptInvite(ctx context.Context, code string) (string, error)
	UpdateParticipants(ctx context.Context, conversation string, ids []string, action ParticipantAction) error
	UpdateSubject(ctx context.Context, conversation, subject string) error
	Revoke(ctx context.Context, msg *Message) error
	SelfID() string
	SelfLID() string
}
