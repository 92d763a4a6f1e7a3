package whatsapp

import (
	"fmt"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/edgard/wabot/internal/transport"
)

// convertMessage reduces a whatsmeow message event to a transport message.
func convertMessage(evt *events.Message) *transport.Message {
	msg := &transport.Message{
		ID:           evt.Info.ID,
		Conversation: evt.Info.Chat.ToNonAD().String(),
		Sender:       evt.Info.Sender.ToNonAD().String(),
		PushName:     evt.Info.PushName,
		FromMe:       evt.Info.IsFromMe,
		Timestamp:    evt.Info.Timestamp,
	}
	if evt.Info.Sender.Server == types.HiddenUserServer {
		msg.SenderLID = msg.Sender
		if alt := evt.Info.SenderAlt; alt.Server == types.DefaultUserServer {
			msg.Sender = alt.ToNonAD().String()
		}
	}

	m := evt.Message
	if m == nil {
		return msg
	}

	var ctxInfo *waE2E.ContextInfo
	switch {
	case m.Conversation != nil:
		msg.Kind = transport.KindText
		msg.Text = m.GetConversation()
	case m.ExtendedTextMessage != nil:
		msg.Kind = transport.KindExtendedText
		msg.Text = m.GetExtendedTextMessage().GetText()
		ctxInfo = m.GetExtendedTextMessage().GetContextInfo()
	case m.ImageMessage != nil:
		msg.Kind = transport.KindImage
		msg.Caption = m.GetImageMessage().GetCaption()
		ctxInfo = m.GetImageMessage().GetContextInfo()
	case m.VideoMessage != nil:
		msg.Kind = transport.KindVideo
		msg.Caption = m.GetVideoMessage().GetCaption()
		ctxInfo = m.GetVideoMessage().GetContextInfo()
	case m.StickerMessage != nil:
		msg.Kind = transport.KindSticker
		ctxInfo = m.GetStickerMessage().GetContextInfo()
	case m.AudioMessage != nil:
		msg.Kind = transport.KindAudio
		ctxInfo = m.GetAudioMessage().GetContextInfo()
	case m.DocumentMessage != nil:
		msg.Kind = transport.KindDocument
		msg.Caption = m.GetDocumentMessage().GetCaption()
		ctxInfo = m.GetDocumentMessage().GetContextInfo()
	}

	if ctxInfo != nil {
		msg.Mentions = append(msg.Mentions, ctxInfo.GetMentionedJID()...)
		msg.QuotedID = ctxInfo.GetStanzaID()
		msg.QuotedParticipant = ctxInfo.GetParticipant()
	}
	return msg
}

// convertGroupInfo splits a membership event into one change per action.
func convertGroupInfo(evt *events.GroupInfo) []transport.ParticipantsChanged {
	conv := evt.JID.String()
	var out []transport.ParticipantsChanged
	add := func(jids []types.JID, action transport.ParticipantAction) {
		if len(jids) == 0 {
			return
		}
		ids := make([]string, 0, len(jids))
		for _, j := range jids {
			ids = append(ids, j.ToNonAD().String())
		}
		out = append(out, transport.ParticipantsChanged{Conversation: conv, Participants: ids, Action: action})
	}
	add(evt.Join, transport.ActionAdd)
	add(evt.Leave, transport.ActionRemove)
	add(evt.Promote, transport.ActionPromote)
	add(evt.Demote, transport.ActionDemote)
	return out
}

// convertGroup maps whatsmeow group info to transport metadata.
func convertGroup(info *types.GroupInfo) *transport.GroupMetadata {
	meta := &transport.GroupMetadata{
		ID:           info.JID.String(),
		Subject:      info.GroupName.Name,
		Participants: make([]transport.Participant, 0, len(info.Participants)),
	}
	for _, p := range info.Participants {
		meta.Participants = append(meta.Participants, transport.Participant{
			ID:           p.JID.ToNonAD().String(),
			PhoneNumber:  jidString(p.PhoneNumber),
			LID:          jidString(p.LID),
			IsAdmin:      p.IsAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		})
	}
	return meta
}

// quoteContext builds the context info that renders a reply and mentions.
func quoteContext(mentions []string, quoted *transport.Message) *waE2E.ContextInfo {
	if len(mentions) == 0 && quoted == nil {
		return nil
	}
	info := &waE2E.ContextInfo{}
	if len(mentions) > 0 {
		info.MentionedJID = append([]string(nil), mentions...)
	}
	if quoted != nil && quoted.ID != "" {
		info.StanzaID = proto.String(quoted.ID)
		participant := quoted.Address()
		if participant == "" {
			participant = quoted.Conversation
		}
		info.Participant = proto.String(participant)
		info.QuotedMessage = &waE2E.Message{Conversation: proto.String(quoted.Text + quoted.Caption)}
	}
	return info
}

// textMessage builds a plain or extended text message.
func textMessage(text string, mentions []string, quoted *transport.Message) *waE2E.Message {
	ctxInfo := quoteContext(mentions, quoted)
	if ctxInfo == nil {
		return &waE2E.Message{Conversation: proto.String(text)}
	}
	return &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
		Text:        proto.String(text),
		ContextInfo: ctxInfo,
	}}
}

func jidString(jid types.JID) string {
	if jid.IsEmpty() {
		return ""
	}
	return jid.ToNonAD().String()
}

func parseJID(id string) (types.JID, error) {
	jid, err := types.ParseJID(id)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("invalid jid %q: %w", id, err)
	}
	return jid, nil
}

func parseJIDs(ids []string) ([]types.JID, error) {
	out := make([]types.JID, 0, len(ids))
	for _, id := range ids {
		jid, err := parseJID(id)
		if err != nil {
			return nil, err
		}
		out = append(out, jid)
	}
	return out, nil
}
