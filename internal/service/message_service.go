package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/events"
	"github.com/fathima-sithara/classroom-chat/internal/metrics"
	"github.com/fathima-sithara/classroom-chat/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
	// MaxPage bounds the skip a page number can ask for.
	MaxPage        = 100000
	MaxAttachments = 10
)

type SendInput struct {
	Content     string
	MessageType domain.MessageType
	ReplyTo     string
	Attachments []domain.Attachment
}

// ToggleResult reports the state of a toggle after it was applied.
type ToggleResult struct {
	Message *domain.Message `json:"message"`
	Action  string          `json:"action"`
}

type MessagePage struct {
	Messages []*domain.Message `json:"messages"`
	Page     int               `json:"page"`
	Limit    int               `json:"limit"`
	HasMore  bool              `json:"hasMore"`
}

type MessageService struct {
	chats    repository.ChatRepository
	messages repository.MessageRepository
	notify   *Notifier
	log      *zap.Logger
	now      func() time.Time
}

func NewMessageService(chats repository.ChatRepository, messages repository.MessageRepository, notify *Notifier, log *zap.Logger) *MessageService {
	return &MessageService{chats: chats, messages: messages, notify: notify, log: log, now: nowUTC}
}

func normalizeContent(content string, hasAttachments bool) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		if hasAttachments {
			return domain.AttachmentPlaceholder, nil
		}
		return "", domain.Invalidf("Message content or an attachment is required")
	}
	if utf8.RuneCountInString(trimmed) > domain.MaxContentLength {
		return "", domain.Invalidf("Message content cannot exceed %d characters", domain.MaxContentLength)
	}
	return trimmed, nil
}

func validateAttachments(atts []domain.Attachment) error {
	if len(atts) > MaxAttachments {
		return domain.Invalidf("A message can carry at most %d attachments", MaxAttachments)
	}
	for _, a := range atts {
		if strings.TrimSpace(a.Filename) == "" || strings.TrimSpace(a.URL) == "" {
			return domain.Invalidf("Attachments need a filename and url")
		}
		if a.Size < 0 {
			return domain.Invalidf("Attachment size cannot be negative")
		}
		if a.Size > domain.MaxAttachmentSize {
			return domain.TooLargef("Attachment %s exceeds the 25MB limit", a.Filename)
		}
	}
	return nil
}

func messageType(requested domain.MessageType, atts []domain.Attachment) (domain.MessageType, error) {
	if requested == "" {
		if len(atts) > 0 {
			return domain.KindForMIME(atts[0].MimeType), nil
		}
		return domain.MessageText, nil
	}
	if !requested.Valid() || requested == domain.MessageSystem {
		return "", domain.Invalidf("invalid message type %q", requested)
	}
	return requested, nil
}

// Send stores a message in the chat and bumps the unread counter of every
// other participant role.
func (s *MessageService) Send(ctx context.Context, caller domain.Identity, rawChatID string, in SendInput) (*domain.Message, error) {
	chat, me, err := loadChatFor(ctx, s.chats, rawChatID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if err := validateAttachments(in.Attachments); err != nil {
		return nil, err
	}
	content, err := normalizeContent(in.Content, len(in.Attachments) > 0)
	if err != nil {
		return nil, err
	}
	mt, err := messageType(in.MessageType, in.Attachments)
	if err != nil {
		return nil, err
	}

	var replyTo *primitive.ObjectID
	if strings.TrimSpace(in.ReplyTo) != "" {
		id, err := domain.ParseID("reply message id", in.ReplyTo)
		if err != nil {
			return nil, err
		}
		target, err := s.messages.GetByID(ctx, id)
		if errors.Is(err, repository.ErrNotFound) {
			return nil, domain.NotFoundf("Reply message not found")
		}
		if err != nil {
			return nil, err
		}
		if target.ChatID != chat.ID {
			return nil, domain.Invalidf("Reply message belongs to another chat")
		}
		replyTo = &id
	}

	m := newMessage(chat.ID, caller.UserID, me.Role, content, mt, in.Attachments, s.now())
	m.ReplyTo = replyTo
	if err := s.store(ctx, chat, m); err != nil {
		return nil, err
	}
	return m, nil
}

func newMessage(chatID, sender primitive.ObjectID, role domain.Role, content string, mt domain.MessageType, atts []domain.Attachment, now time.Time) *domain.Message {
	return &domain.Message{
		ID:          primitive.NewObjectID(),
		ChatID:      chatID,
		SenderID:    sender,
		SenderRole:  role,
		Content:     content,
		MessageType: mt,
		Attachments: append([]domain.Attachment{}, atts...),
		Status:      domain.StatusSent,
		ReadBy:      []domain.ReadReceipt{},
		Reactions:   []domain.Reaction{},
		StarredBy:   []primitive.ObjectID{},
		PinnedBy:    []primitive.ObjectID{},
		DeletedBy:   []domain.DeletedEntry{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// store persists m, moves the chat's last message pointer and publishes it.
func (s *MessageService) store(ctx context.Context, chat *domain.Chat, m *domain.Message) error {
	if err := s.messages.Insert(ctx, m); err != nil {
		return err
	}
	if err := s.chats.RecordMessage(ctx, chat.ID, m.ID, m.CreatedAt, chat.OtherRoles(m.SenderID)); err != nil {
		return err
	}
	metrics.MessagesSent.WithLabelValues(string(m.MessageType)).Inc()
	s.notify.Notify(ctx, events.Event{
		Type:      events.NewMessage,
		Topic:     chat.ID.Hex(),
		ChatID:    chat.ID.Hex(),
		MessageID: m.ID.Hex(),
		UserID:    m.SenderID.Hex(),
		Message:   m,
	})
	return nil
}

// MarkSeen marks every message of the chat sent by others as read by the
// caller and resets the caller's unread counter.
func (s *MessageService) MarkSeen(ctx context.Context, caller domain.Identity, rawChatID string) (int64, error) {
	chat, me, err := loadChatFor(ctx, s.chats, rawChatID, caller.UserID)
	if err != nil {
		return 0, err
	}
	return s.markSeen(ctx, chat, me)
}

func (s *MessageService) markSeen(ctx context.Context, chat *domain.Chat, me domain.Participant) (int64, error) {
	n, err := s.messages.MarkSeen(ctx, chat.ID, me.UserID, s.now())
	if err != nil {
		return 0, err
	}
	if err := s.chats.ResetUnread(ctx, chat.ID, me.Role); err != nil {
		return 0, err
	}
	if n > 0 {
		s.notify.Notify(ctx, events.Event{
			Type:   events.MessagesSeen,
			Topic:  chat.ID.Hex(),
			ChatID: chat.ID.Hex(),
			UserID: me.UserID.Hex(),
			Count:  n,
		})
	}
	return n, nil
}

// List returns one page of the caller's visible messages in chronological
// order. Reading marks the chat as seen.
func (s *MessageService) List(ctx context.Context, caller domain.Identity, rawChatID string, page, limit int) (*MessagePage, error) {
	if page > MaxPage {
		return nil, domain.Invalidf("page must be at most %d", MaxPage)
	}
	chat, me, err := loadChatFor(ctx, s.chats, rawChatID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if _, err := s.markSeen(ctx, chat, me); err != nil {
		return nil, err
	}

	skip := int64(page-1) * int64(limit)
	msgs, err := s.messages.List(ctx, chat.ID, caller.UserID, skip, int64(limit)+1)
	if err != nil {
		return nil, err
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return &MessagePage{Messages: msgs, Page: page, Limit: limit, HasMore: hasMore}, nil
}

// loadMessageFor loads a message visible to userID together with its chat.
func (s *MessageService) loadMessageFor(ctx context.Context, rawMessageID string, userID primitive.ObjectID) (*domain.Message, *domain.Chat, domain.Participant, error) {
	m, chat, me, err := s.loadMessage(ctx, rawMessageID, userID)
	if err != nil {
		return nil, nil, domain.Participant{}, err
	}
	if m.IsDeletedFor(userID) {
		return nil, nil, domain.Participant{}, domain.NotFoundf("Message not found")
	}
	return m, chat, me, nil
}

// loadMessage is loadMessageFor without the visibility check.
func (s *MessageService) loadMessage(ctx context.Context, rawMessageID string, userID primitive.ObjectID) (*domain.Message, *domain.Chat, domain.Participant, error) {
	id, err := domain.ParseID("message id", rawMessageID)
	if err != nil {
		return nil, nil, domain.Participant{}, err
	}
	m, err := s.messages.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, domain.Participant{}, domain.NotFoundf("Message not found")
	}
	if err != nil {
		return nil, nil, domain.Participant{}, err
	}
	chat, me, err := loadChatFor(ctx, s.chats, m.ChatID.Hex(), userID)
	if err != nil {
		return nil, nil, domain.Participant{}, err
	}
	return m, chat, me, nil
}

func (s *MessageService) Edit(ctx context.Context, caller domain.Identity, rawMessageID, content string) (*domain.Message, error) {
	m, chat, _, err := s.loadMessageFor(ctx, rawMessageID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if m.SenderID != caller.UserID {
		return nil, domain.Forbiddenf("Only the sender can edit this message")
	}
	normalized, err := normalizeContent(content, len(m.Attachments) > 0)
	if err != nil {
		return nil, err
	}
	updated, err := s.messages.UpdateContent(ctx, m.ID, normalized, s.now())
	if err != nil {
		return nil, err
	}
	s.notify.Notify(ctx, events.Event{
		Type:      events.MessageEdited,
		Topic:     chat.ID.Hex(),
		ChatID:    chat.ID.Hex(),
		MessageID: m.ID.Hex(),
		UserID:    caller.UserID.Hex(),
		Message:   updated,
	})
	return updated, nil
}

func actionFor(added bool) string {
	if added {
		return events.ActionAdded
	}
	return events.ActionRemoved
}

func (s *MessageService) React(ctx context.Context, caller domain.Identity, rawMessageID, emoji string) (*ToggleResult, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return nil, domain.Invalidf("Emoji is required")
	}
	if len(emoji) > domain.MaxEmojiLength {
		return nil, domain.Invalidf("Emoji is too long")
	}
	m, chat, _, err := s.loadMessageFor(ctx, rawMessageID, caller.UserID)
	if err != nil {
		return nil, err
	}
	added, updated, err := s.messages.ToggleReaction(ctx, m.ID, caller.UserID, emoji, s.now())
	if err != nil {
		return nil, err
	}
	res := &ToggleResult{Message: updated, Action: actionFor(added)}
	s.notify.Notify(ctx, events.Event{
		Type:      events.MessageReactionUpdated,
		Topic:     chat.ID.Hex(),
		ChatID:    chat.ID.Hex(),
		MessageID: m.ID.Hex(),
		UserID:    caller.UserID.Hex(),
		Action:    res.Action,
		Emoji:     emoji,
		Message:   updated,
	})
	return res, nil
}

type toggleFunc func(ctx context.Context, id, userID primitive.ObjectID) (bool, *domain.Message, error)

func (s *MessageService) toggle(ctx context.Context, caller domain.Identity, rawMessageID string, fn toggleFunc, evType events.Type) (*ToggleResult, error) {
	m, chat, _, err := s.loadMessageFor(ctx, rawMessageID, caller.UserID)
	if err != nil {
		return nil, err
	}
	added, updated, err := fn(ctx, m.ID, caller.UserID)
	if err != nil {
		return nil, err
	}
	res := &ToggleResult{Message: updated, Action: actionFor(added)}
	s.notify.Notify(ctx, events.Event{
		Type:      evType,
		Topic:     chat.ID.Hex(),
		ChatID:    chat.ID.Hex(),
		MessageID: m.ID.Hex(),
		UserID:    caller.UserID.Hex(),
		Action:    res.Action,
	})
	return res, nil
}

func (s *MessageService) Star(ctx context.Context, caller domain.Identity, rawMessageID string) (*ToggleResult, error) {
	return s.toggle(ctx, caller, rawMessageID, s.messages.ToggleStar, events.MessageStarUpdated)
}

// Pin toggles the caller's own pin; other participants' pins are untouched.
func (s *MessageService) Pin(ctx context.Context, caller domain.Identity, rawMessageID string) (*ToggleResult, error) {
	return s.toggle(ctx, caller, rawMessageID, s.messages.TogglePin, events.MessagePinUpdated)
}

// Delete hides the message from the caller, or from every participant when
// forEveryone is set by the sender. Deleting again is a no-op.
func (s *MessageService) Delete(ctx context.Context, caller domain.Identity, rawMessageID string, forEveryone bool) (*domain.Message, error) {
	m, chat, _, err := s.loadMessage(ctx, rawMessageID, caller.UserID)
	if err != nil {
		return nil, err
	}
	if !forEveryone && m.IsDeletedFor(caller.UserID) {
		return m, nil
	}
	users := []primitive.ObjectID{caller.UserID}
	evType := events.MessageDeleted
	if forEveryone {
		if m.SenderID != caller.UserID {
			return nil, domain.Forbiddenf("Only the sender can delete this message for everyone")
		}
		users = chat.ParticipantIDs()
		evType = events.MessageDeletedForEveryone
	}
	updated, err := s.messages.MarkDeleted(ctx, m.ID, users, s.now())
	if err != nil {
		return nil, err
	}
	s.notify.Notify(ctx, events.Event{
		Type:      evType,
		Topic:     chat.ID.Hex(),
		ChatID:    chat.ID.Hex(),
		MessageID: m.ID.Hex(),
		UserID:    caller.UserID.Hex(),
	})
	return updated, nil
}

// Forward copies a message the caller can see into another chat of theirs.
func (s *MessageService) Forward(ctx context.Context, caller domain.Identity, rawMessageID, rawTargetChatID string) (*domain.Message, error) {
	src, _, _, err := s.loadMessageFor(ctx, rawMessageID, caller.UserID)
	if err != nil {
		return nil, err
	}
	target, me, err := loadChatFor(ctx, s.chats, rawTargetChatID, caller.UserID)
	if err != nil {
		return nil, err
	}
	m := newMessage(target.ID, caller.UserID, me.Role, src.Content, src.MessageType, src.Attachments, s.now())
	srcID, by := src.ID, caller.UserID
	m.ForwardedFrom = &srcID
	m.ForwardedBy = &by
	if err := s.store(ctx, target, m); err != nil {
		return nil, err
	}
	return m, nil
}
