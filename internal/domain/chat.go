package domain

import (
	"sort"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type ChatType string

const (
	ChatTeacherStudent ChatType = "teacher-student"
	ChatTeacherParent  ChatType = "teacher-parent"
)

func (t ChatType) Valid() bool {
	return t == ChatTeacherStudent || t == ChatTeacherParent
}

// CounterpartRole is the non-teacher role of a chat type.
func (t ChatType) CounterpartRole() Role {
	if t == ChatTeacherStudent {
		return RoleStudent
	}
	return RoleParent
}

type Participant struct {
	UserID   primitive.ObjectID `bson:"user_id" json:"userId"`
	Role     Role               `bson:"role" json:"role"`
	JoinedAt time.Time          `bson:"joined_at" json:"joinedAt"`
}

type Chat struct {
	ID             primitive.ObjectID  `bson:"_id" json:"id"`
	TenantID       string              `bson:"tenant_id" json:"tenantId"`
	StudentID      primitive.ObjectID  `bson:"student_id" json:"studentId"`
	ChatType       ChatType            `bson:"chat_type" json:"chatType"`
	Participants   []Participant       `bson:"participants" json:"participants"`
	ParticipantKey string              `bson:"participant_key" json:"-"`
	LastMessage    *primitive.ObjectID `bson:"last_message,omitempty" json:"lastMessage,omitempty"`
	LastMessageAt  time.Time           `bson:"last_message_at" json:"lastMessageAt"`
	IsActive       bool                `bson:"is_active" json:"isActive"`
	UnreadCount    map[string]int      `bson:"unread_count" json:"unreadCount"`
	CreatedAt      time.Time           `bson:"created_at" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updatedAt"`
}

// NewChat builds an active chat between a teacher and one counterpart.
func NewChat(tenantID string, studentID primitive.ObjectID, chatType ChatType, teacher, other primitive.ObjectID, now time.Time) *Chat {
	otherRole := chatType.CounterpartRole()
	return &Chat{
		ID:        primitive.NewObjectID(),
		TenantID:  tenantID,
		StudentID: studentID,
		ChatType:  chatType,
		Participants: []Participant{
			{UserID: teacher, Role: RoleTeacher, JoinedAt: now},
			{UserID: other, Role: otherRole, JoinedAt: now},
		},
		ParticipantKey: ParticipantKey(teacher, other),
		LastMessageAt:  now,
		IsActive:       true,
		UnreadCount:    map[string]int{string(RoleTeacher): 0, string(otherRole): 0},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

// ParticipantKey is an order independent key for a participant set.
func ParticipantKey(ids ...primitive.ObjectID) string {
	hex := make([]string, 0, len(ids))
	for _, id := range ids {
		hex = append(hex, id.Hex())
	}
	sort.Strings(hex)
	return strings.Join(hex, ":")
}

func (c *Chat) Participant(userID primitive.ObjectID) (Participant, bool) {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return p, true
		}
	}
	return Participant{}, false
}

func (c *Chat) HasParticipant(userID primitive.ObjectID) bool {
	_, ok := c.Participant(userID)
	return ok
}

// OtherRoles returns the roles of every participant except userID.
func (c *Chat) OtherRoles(userID primitive.ObjectID) []Role {
	out := make([]Role, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.UserID != userID {
			out = append(out, p.Role)
		}
	}
	return out
}

func (c *Chat) ParticipantIDs() []primitive.ObjectID {
	out := make([]primitive.ObjectID, 0, len(c.Participants))
	for _, p := range c.Participants {
		out = append(out, p.UserID)
	}
	return out
}
