package domain

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type MessageType string

const (
	MessageText   MessageType = "text"
	MessageImage  MessageType = "image"
	MessageVideo  MessageType = "video"
	MessageAudio  MessageType = "audio"
	MessageFile   MessageType = "file"
	MessageSystem MessageType = "system"
)

func (t MessageType) Valid() bool {
	switch t {
	case MessageText, MessageImage, MessageVideo, MessageAudio, MessageFile, MessageSystem:
		return true
	}
	return false
}

type Status string

const (
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusSeen      Status = "seen"
)

const (
	MaxContentLength = 1000
	// MaxAttachmentSize is 25 MiB.
	MaxAttachmentSize int64 = 25 * 1024 * 1024
	// AttachmentPlaceholder is stored as content of attachment-only messages.
	AttachmentPlaceholder = " "
	MaxEmojiLength        = 32
)

type Attachment struct {
	Filename  string  `bson:"filename" json:"filename"`
	URL       string  `bson:"url" json:"url"`
	MimeType  string  `bson:"mime_type,omitempty" json:"mimeType,omitempty"`
	Size      int64   `bson:"size" json:"size"`
	Thumbnail string  `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	Width     int     `bson:"width,omitempty" json:"width,omitempty"`
	Height    int     `bson:"height,omitempty" json:"height,omitempty"`
	Duration  float64 `bson:"duration,omitempty" json:"duration,omitempty"`
}

type ReadReceipt struct {
	UserID primitive.ObjectID `bson:"user_id" json:"userId"`
	ReadAt time.Time          `bson:"read_at" json:"readAt"`
}

type Reaction struct {
	Emoji     string             `bson:"emoji" json:"emoji"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}

type DeletedEntry struct {
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	DeletedAt time.Time          `bson:"deleted_at" json:"deletedAt"`
}

type Message struct {
	ID            primitive.ObjectID   `bson:"_id" json:"id"`
	ChatID        primitive.ObjectID   `bson:"chat_id" json:"chatId"`
	SenderID      primitive.ObjectID   `bson:"sender_id" json:"senderId"`
	SenderRole    Role                 `bson:"sender_role" json:"senderRole"`
	Content       string               `bson:"content" json:"content"`
	MessageType   MessageType          `bson:"message_type" json:"messageType"`
	Attachments   []Attachment         `bson:"attachments" json:"attachments"`
	Status        Status               `bson:"status" json:"status"`
	ReadBy        []ReadReceipt        `bson:"read_by" json:"readBy"`
	ReplyTo       *primitive.ObjectID  `bson:"reply_to,omitempty" json:"replyTo,omitempty"`
	Reactions     []Reaction           `bson:"reactions" json:"reactions"`
	ForwardedFrom *primitive.ObjectID  `bson:"forwarded_from,omitempty" json:"forwardedFrom,omitempty"`
	ForwardedBy   *primitive.ObjectID  `bson:"forwarded_by,omitempty" json:"forwardedBy,omitempty"`
	StarredBy     []primitive.ObjectID `bson:"starred_by" json:"starredBy"`
	PinnedBy      []primitive.ObjectID `bson:"pinned_by" json:"pinnedBy"`
	IsEdited      bool                 `bson:"is_edited" json:"isEdited"`
	EditedAt      *time.Time           `bson:"edited_at,omitempty" json:"editedAt,omitempty"`
	DeletedBy     []DeletedEntry       `bson:"deleted_by" json:"deletedBy"`
	CreatedAt     time.Time            `bson:"created_at" json:"createdAt"`
	UpdatedAt     time.Time            `bson:"updated_at" json:"updatedAt"`
}

func (m *Message) IsDeletedFor(userID primitive.ObjectID) bool {
	for _, d := range m.DeletedBy {
		if d.UserID == userID {
			return true
		}
	}
	return false
}

func (m *Message) IsReadBy(userID primitive.ObjectID) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

func (m *Message) HasReaction(userID primitive.ObjectID, emoji string) bool {
	for _, r := range m.Reactions {
		if r.UserID == userID && r.Emoji == emoji {
			return true
		}
	}
	return false
}

func containsID(ids []primitive.ObjectID, id primitive.ObjectID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (m *Message) IsStarredBy(userID primitive.ObjectID) bool { return containsID(m.StarredBy, userID) }
func (m *Message) IsPinnedBy(userID primitive.ObjectID) bool  { return containsID(m.PinnedBy, userID) }

// KindForMIME maps a MIME type onto the message type used for it.
func KindForMIME(mime string) MessageType {
	mime = strings.ToLower(mime)
	switch {
	case strings.HasPrefix(mime, "image/"):
		return MessageImage
	case strings.HasPrefix(mime, "video/"):
		return MessageVideo
	case strings.HasPrefix(mime, "audio/"):
		return MessageAudio
	}
	return MessageFile
}
