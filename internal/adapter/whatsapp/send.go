package whatsapp

import (
	"context"
	"errors"
	"fmt"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/edgard/wabot/internal/transport"
)

var errEmptyContent = errors.New("message content is empty")

// Send delivers text or a single media attachment to a conversation.
func (c *Client) Send(ctx context.Context, conversation string, content transport.Content, opts transport.SendOptions) error {
	cli, err := c.client(ctx)
	if err != nil {
		return err
	}
	to, err := parseJID(conversation)
	if err != nil {
		return err
	}

	var msg *waE2E.Message
	switch {
	case content.Image != nil:
		msg, err = c.imageMessage(ctx, cli, content, opts.Quoted)
	case content.Video != nil:
		msg, err = c.videoMessage(ctx, cli, content, opts.Quoted)
	case content.Audio != nil:
		msg, err = c.audioMessage(ctx, cli, content.Audio)
	case content.Text != "":
		msg = textMessage(content.Text, content.Mentions, opts.Quoted)
	default:
		return errEmptyContent
	}
	if err != nil {
		return err
	}

	if _, err := cli.SendMessage(ctx, to, msg); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", conversation, err)
	}
	return nil
}

func (c *Client) imageMessage(ctx context.Context, cli *whatsmeow.Client, content transport.Content, quoted *transport.Message) (*waE2E.Message, error) {
	media := content.Image
	up, err := cli.Upload(ctx, media.Data, whatsmeow.MediaImage)
	if err != nil {
		return nil, fmt.Errorf("failed to upload image: %w", err)
	}
	return &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       optional(media.Caption),
		Mimetype:      proto.String(mimeOr(media.MimeType, "image/jpeg")),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
		ContextInfo:   quoteContext(content.Mentions, quoted),
	}}, nil
}

func (c *Client) videoMessage(ctx context.Context, cli *whatsmeow.Client, content transport.Content, quoted *transport.Message) (*waE2E.Message, error) {
	media := content.Video
	up, err := cli.Upload(ctx, media.Data, whatsmeow.MediaVideo)
	if err != nil {
		return nil, fmt.Errorf("failed to upload video: %w", err)
	}
	return &waE2E.Message{VideoMessage: &waE2E.VideoMessage{
		Caption:       optional(media.Caption),
		Mimetype:      proto.String(mimeOr(media.MimeType, "video/mp4")),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
		ContextInfo:   quoteContext(content.Mentions, quoted),
	}}, nil
}

func (c *Client) audioMessage(ctx context.Context, cli *whatsmeow.Client, media *transport.Media) (*waE2E.Message, error) {
	up, err := cli.Upload(ctx, media.Data, whatsmeow.MediaAudio)
	if err != nil {
		return nil, fmt.Errorf("failed to upload audio: %w", err)
	}
	return &waE2E.Message{AudioMessage: &waE2E.AudioMessage{
		Mimetype:      proto.String(mimeOr(media.MimeType, "audio/mp4")),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
		PTT:           proto.Bool(false),
	}}, nil
}

// React sets an emoji reaction on msg.
func (c *Client) React(ctx context.Context, msg *transport.Message, emoji string) error {
	cli, err := c.client(ctx)
	if err != nil {
		return err
	}
	chat, sender, err := messageKey(msg)
	if err != nil {
		return err
	}
	if _, err := cli.SendMessage(ctx, chat, cli.BuildReaction(chat, sender, msg.ID, emoji)); err != nil {
		return fmt.Errorf("failed to react: %w", err)
	}
	return nil
}

// Revoke deletes msg for everyone. Deleting another member's message needs
// admin rights in the group.
func (c *Client) Revoke(ctx context.Context, msg *transport.Message) error {
	cli, err := c.client(ctx)
	if err != nil {
		return err
	}
	chat, sender, err := messageKey(msg)
	if err != nil {
		return err
	}
	if msg.FromMe {
		sender = types.EmptyJID
	}
	if _, err := cli.SendMessage(ctx, chat, cli.BuildRevoke(chat, sender, msg.ID)); err != nil {
		return fmt.Errorf("failed to revoke message: %w", err)
	}
	return nil
}

// FetchMetadata returns the live group snapshot.
func (c *Client) FetchMetadata(ctx context.Context, conversation string) (*transport.GroupMetadata, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	jid, err := parseJID(conversation)
	if err != nil {
		return nil, err
	}
	info, err := cli.GetGroupInfo(jid)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch group %s: %w", conversation, err)
	}
	return convertGroup(info), nil
}

// FetchAllGroups lists every group the bot is a member of.
func (c *Client) FetchAllGroups(ctx context.Context) ([]transport.GroupMetadata, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := cli.GetJoinedGroups(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list groups: %w", err)
	}
	out := make([]transport.GroupMetadata, 0, len(groups))
	for _, g := range groups {
		out = append(out, *convertGroup(g))
	}
	return out, nil
}

// AcceptInvite joins a group by invite code and returns its identifier.
func (c *Client) AcceptInvite(ctx context.Context, code string) (string, error) {
	cli, err := c.client(ctx)
	if err != nil {
		return "", err
	}
	jid, err := cli.JoinGroupWithLink(code)
	if err != nil {
		return "", fmt.Errorf("failed to join group: %w", err)
	}
	return jid.String(), nil
}

// UpdateParticipants adds, removes, promotes or demotes members.
func (c *Client) UpdateParticipants(ctx context.Context, conversation string, ids []string, action transport.ParticipantAction) error {
	cli, err := c.client(ctx)
	if err != nil {
		return err
	}
	group, err := parseJID(conversation)
	if err != nil {
		return err
	}
	jids, err := parseJIDs(ids)
	if err != nil {
		return err
	}

	var change whatsmeow.ParticipantChange
	switch action {
	case transport.ActionAdd:
		change = whatsmeow.ParticipantChangeAdd
	case transport.ActionRemove:
		change = whatsmeow.ParticipantChangeRemove
	case transport.ActionPromote:
		change = whatsmeow.ParticipantChangePromote
	case transport.ActionDemote:
		change = whatsmeow.ParticipantChangeDemote
	default:
		return fmt.Errorf("unsupported participant action %q", action)
	}

	if _, err := cli.UpdateGroupParticipants(group, jids, change); err != nil {
		return fmt.Errorf("failed to %s participants: %w", action, err)
	}
	return nil
}

// UpdateSubject renames a group.
func (c *Client) UpdateSubject(ctx context.Context, conversation, subject string) error {
	cli, err := c.client(ctx)
	if err != nil {
		return err
	}
	jid, err := parseJID(conversation)
	if err != nil {
		return err
	}
	if err := cli.SetGroupName(jid, subject); err != nil {
		return fmt.Errorf("failed to rename group: %w", err)
	}
	return nil
}

func messageKey(msg *transport.Message) (types.JID, types.JID, error) {
	chat, err := parseJID(msg.Conversation)
	if err != nil {
		return types.EmptyJID, types.EmptyJID, err
	}
	senderID := msg.Address()
	if senderID == "" {
		senderID = msg.Conversation
	}
	sender, err := parseJID(senderID)
	if err != nil {
		return types.EmptyJID, types.EmptyJID, err
	}
	return chat, sender, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return proto.String(s)
}

func mimeOr(mime, fallback string) string {
	if mime == "" {
		return fallback
	}
	return mime
}

var _ transport.Transport = (*Client)(nil)
