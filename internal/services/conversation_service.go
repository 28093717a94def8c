package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"duochat/internal/content"
	"duochat/internal/domain/conversation"
	"duochat/internal/domain/message"
	"duochat/internal/repository"
	"duochat/internal/storage"
	"duochat/internal/transport/wsdto"
	duochat_errors "duochat/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const sidebarConcurrency = 8

// PeerNotifier delivers an event to one user if connected.
type PeerNotifier interface {
	RouteToPeer(event string, peerID uuid.UUID, payload interface{})
}

type silentNotifier struct{}

func (silentNotifier) RouteToPeer(string, uuid.UUID, interface{}) {}

type ConversationService struct {
	users    repository.UserRepository
	messages repository.MessageRepository
	blobs    storage.BlobStore
	notifier PeerNotifier
	logger   *zap.Logger
	now      func() time.Time
}

func NewConversationService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	blobs storage.BlobStore,
	notifier PeerNotifier,
	logger *zap.Logger,
) *ConversationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if notifier == nil {
		notifier = silentNotifier{}
	}
	return &ConversationService{
		users:    users,
		messages: messages,
		blobs:    blobs,
		notifier: notifier,
		logger:   logger.Named("conversation"),
		now:      time.Now,
	}
}

// SendInput is the body of a send. Exactly one of Text, Image and Audio must
// be set. Image and Audio are data URIs.
type SendInput struct {
	Text        string       `validate:"max=10000"`
	Image       string       `validate:"omitempty,max=8388608"`
	Audio       string       `validate:"omitempty,max=8388608"`
	MessageType message.Type `validate:"omitempty,oneof=text image audio"`
	Duration    float64      `validate:"gte=0,lte=3600"`
}

// ListConversations builds the sidebar for viewerID: every other user with
// the number of unseen messages they sent and the preview of the latest
// message in either direction.
func (s *ConversationService) ListConversations(ctx context.Context, viewerID uuid.UUID) ([]conversation.Summary, error) {
	peers, err := s.users.ListOthers(ctx, viewerID)
	if err != nil {
		return nil, err
	}

	summaries := make([]conversation.Summary, len(peers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(sidebarConcurrency)
	for i, peer := range peers {
		g.Go(func() error {
			unseen, err := s.messages.CountUnseen(gctx, peer.ID, viewerID)
			if err != nil {
				return fmt.Errorf("count unseen from %s: %w", peer.ID, err)
			}
			var preview string
			latest, err := s.messages.Latest(gctx, viewerID, peer.ID)
			switch {
			case err == nil:
				preview = latest.Preview()
			case !errors.Is(err, duochat_errors.ErrNotFound):
				return fmt.Errorf("latest with %s: %w", peer.ID, err)
			}
			summaries[i] = conversation.Summary{
				Peer:        peer.Profile(),
				UnseenCount: unseen,
				LastMessage: preview,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return summaries, nil
}

// FetchThread returns the conversation in chronological order and marks
// everything peerID sent to viewerID as seen. The sender is not notified.
func (s *ConversationService) FetchThread(ctx context.Context, viewerID, peerID uuid.UUID) ([]message.Message, error) {
	if viewerID == peerID {
		return nil, invalid("cannot open a conversation with yourself")
	}
	if _, err := s.users.GetUserByID(ctx, peerID); err != nil {
		return nil, err
	}

	thread, err := s.messages.ListThread(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}
	if _, err := s.messages.MarkThreadSeen(ctx, peerID, viewerID); err != nil {
		return nil, err
	}

	for i := range thread {
		if thread[i].SenderID == peerID {
			thread[i].Seen = true
		}
		normalize(&thread[i])
	}
	return thread, nil
}

// MarkSeen flags one message as seen by its receiver and tells the sender.
func (s *ConversationService) MarkSeen(ctx context.Context, viewerID, messageID uuid.UUID) (message.Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if m.ReceiverID != viewerID {
		return message.Message{}, duochat_errors.ErrUnauthorized
	}

	if !m.Seen {
		if err := s.messages.MarkSeen(ctx, messageID); err != nil {
			return message.Message{}, err
		}
		m.Seen = true
		s.notifier.RouteToPeer(wsdto.EventMessagesSeen, m.SenderID, wsdto.MessageRef{MessageID: m.ID})
	}
	normalize(&m)
	return m, nil
}

func (s *ConversationService) Send(ctx context.Context, senderID, receiverID uuid.UUID, in SendInput) (message.Message, error) {
	if senderID == receiverID {
		return message.Message{}, invalid("cannot send a message to yourself")
	}
	if err := validateStruct(in); err != nil {
		return message.Message{}, err
	}

	kind, err := payloadType(in)
	if err != nil {
		return message.Message{}, err
	}
	if _, err := s.users.GetUserByID(ctx, receiverID); err != nil {
		return message.Message{}, err
	}

	now := s.now()
	m := message.Message{
		ID:          uuid.New(),
		SenderID:    senderID,
		ReceiverID:  receiverID,
		MessageType: kind,
		Delivered:   true,
		Reactions:   []message.Reaction{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	switch kind {
	case message.TypeText:
		text, ok := content.MessageText(in.Text)
		if !ok {
			return message.Message{}, invalid("message text is empty")
		}
		m.Text = text
	case message.TypeImage:
		if m.Image, err = s.upload(ctx, in.Image, "images", storage.Blob.IsImage); err != nil {
			return message.Message{}, err
		}
	case message.TypeAudio:
		if m.Audio, err = s.upload(ctx, in.Audio, "audio", storage.Blob.IsAudio); err != nil {
			return message.Message{}, err
		}
		m.Duration = in.Duration
	}

	if err := s.messages.Create(ctx, &m); err != nil {
		return message.Message{}, err
	}

	s.notifier.RouteToPeer(wsdto.EventNewMessage, receiverID, m)
	return m, nil
}

// payloadType checks that exactly one payload is present and agrees with the
// declared type, and returns the effective type.
func payloadType(in SendInput) (message.Type, error) {
	var present []message.Type
	if strings.TrimSpace(in.Text) != "" {
		present = append(present, message.TypeText)
	}
	if in.Image != "" {
		present = append(present, message.TypeImage)
	}
	if in.Audio != "" {
		present = append(present, message.TypeAudio)
	}

	switch len(present) {
	case 0:
		return "", invalid("message has no content")
	case 1:
	default:
		return "", invalid("message must carry exactly one of text, image or audio")
	}

	if in.MessageType != "" && in.MessageType != present[0] {
		return "", invalid(fmt.Sprintf("message type %q does not match its %s payload", in.MessageType, present[0]))
	}
	return present[0], nil
}

func (s *ConversationService) upload(ctx context.Context, raw, prefix string, accept func(storage.Blob) bool) (string, error) {
	blob, err := storage.DecodeDataURI(raw)
	if err != nil {
		return "", err
	}
	if !accept(blob) {
		return "", invalid(fmt.Sprintf("%s is not an accepted %s upload", blob.MIME, prefix))
	}
	if s.blobs == nil {
		return "", fmt.Errorf("%w: no blob store configured", duochat_errors.ErrUpstream)
	}
	url, err := s.blobs.Put(ctx, blob.Key(prefix), blob.Data, blob.MIME)
	if err != nil {
		s.logger.Error("blob upload failed", zap.String("prefix", prefix), zap.Error(err))
		return "", fmt.Errorf("%w: upload failed", duochat_errors.ErrUpstream)
	}
	return url, nil
}

// React toggles userID's reaction and returns the resulting reaction list.
func (s *ConversationService) React(ctx context.Context, userID, messageID uuid.UUID, emoji string) ([]message.Reaction, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, invalid("emoji is required")
	}
	if len(emoji) > 32 {
		return nil, invalid("emoji is too long")
	}

	// A concurrent reaction from the peer bumps the revision; the toggle is
	// reapplied once on the fresh copy.
	var m message.Message
	for attempt := 0; ; attempt++ {
		var err error
		m, err = s.messages.GetByID(ctx, messageID)
		if err != nil {
			return nil, err
		}
		if !m.HasParticipant(userID) {
			return nil, duochat_errors.ErrUnauthorized
		}

		m.ToggleReaction(userID, emoji)
		m.UpdatedAt = s.now()
		err = s.messages.Update(ctx, &m)
		if err == nil {
			break
		}
		if !errors.Is(err, duochat_errors.ErrConflict) || attempt > 0 {
			return nil, err
		}
	}

	normalize(&m)
	s.notifier.RouteToPeer(wsdto.EventMessageReaction, m.Peer(userID), wsdto.ReactionPayload{
		MessageID: m.ID,
		Reactions: m.Reactions,
	})
	return m.Reactions, nil
}

// Edit replaces the text of a text message. Only the sender may edit.
func (s *ConversationService) Edit(ctx context.Context, userID, messageID uuid.UUID, text string) (message.Message, error) {
	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return message.Message{}, err
	}
	if m.SenderID != userID {
		return message.Message{}, duochat_errors.ErrUnauthorized
	}
	if m.MessageType != message.TypeText {
		return message.Message{}, invalid("only text messages can be edited")
	}

	text, ok := content.MessageText(text)
	if !ok {
		return message.Message{}, invalid("message text is empty")
	}

	m.Text = text
	m.Edited = true
	m.UpdatedAt = s.now()
	if err := s.messages.Update(ctx, &m); err != nil {
		return message.Message{}, err
	}

	normalize(&m)
	s.notifier.RouteToPeer(wsdto.EventMessageEdited, m.ReceiverID, m)
	return m, nil
}

// Delete removes a message. Deleting for "me" only hides it on the caller's
// client and changes nothing server side.
func (s *ConversationService) Delete(ctx context.Context, userID, messageID uuid.UUID, scope message.DeleteScope) error {
	switch scope {
	case "":
		scope = message.DeleteForMe
	case message.DeleteForMe, message.DeleteForEveryone:
	default:
		return invalid(fmt.Sprintf("unknown delete scope %q", scope))
	}

	m, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return err
	}
	if !m.HasParticipant(userID) {
		return duochat_errors.ErrUnauthorized
	}
	if scope == message.DeleteForMe {
		return nil
	}

	if m.SenderID != userID {
		return duochat_errors.ErrUnauthorized
	}
	if err := s.messages.Delete(ctx, messageID); err != nil {
		return err
	}

	s.notifier.RouteToPeer(wsdto.EventMessageDeleted, m.ReceiverID, wsdto.MessageRef{MessageID: m.ID})
	return nil
}

func normalize(m *message.Message) {
	if m.Reactions == nil {
		m.Reactions = []message.Reaction{}
	}
}
