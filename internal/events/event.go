package events

import (
	"context"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
)

type Type string

const (
	NewMessage                Type = "new-message"
	MessagesSeen              Type = "messages-seen"
	MessageEdited             Type = "message-edited"
	MessageReactionUpdated    Type = "message-reaction-updated"
	MessageStarUpdated        Type = "message-star-updated"
	MessagePinUpdated         Type = "message-pin-updated"
	MessageDeleted            Type = "message-deleted"
	MessageDeletedForEveryone Type = "message-deleted-for-everyone"
	ChatCreated               Type = "chat-created"
	ChatCleared               Type = "chat-cleared"
)

const (
	ActionAdded   = "added"
	ActionRemoved = "removed"
)

// Event is delivered to every subscriber of Topic. Topic is a chat id for
// message events and a user id for per-user events.
type Event struct {
	Type      Type            `json:"type"`
	Topic     string          `json:"topic"`
	ChatID    string          `json:"chatId,omitempty"`
	MessageID string          `json:"messageId,omitempty"`
	UserID    string          `json:"userId,omitempty"`
	Action    string          `json:"action,omitempty"`
	Emoji     string          `json:"emoji,omitempty"`
	Count     int64           `json:"count,omitempty"`
	Message   *domain.Message `json:"message,omitempty"`
	At        time.Time       `json:"at"`
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type Handler func(ev Event)

// Bus publishes events and delivers events published by any instance.
type Bus interface {
	Publisher
	// Subscribe blocks delivering events to h until ctx is done.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}
