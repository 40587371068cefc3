package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

type ChatRepository interface {
	// Create fails with ErrDuplicate when an active chat with the same
	// tenant, student, type and participant set already exists.
	Create(ctx context.Context, c *domain.Chat) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Chat, error)
	FindByParticipants(ctx context.Context, tenantID string, studentID primitive.ObjectID, chatType domain.ChatType, a, b primitive.ObjectID) (*domain.Chat, error)
	FindActiveWithParticipant(ctx context.Context, tenantID string, studentID primitive.ObjectID, chatType domain.ChatType, userID primitive.ObjectID) (*domain.Chat, error)
	ListForUser(ctx context.Context, tenantID string, userID primitive.ObjectID) ([]*domain.Chat, error)
	// RecordMessage sets the last message pointer and increments the unread
	// counter of each role in one atomic update.
	RecordMessage(ctx context.Context, chatID, messageID primitive.ObjectID, at time.Time, unreadRoles []domain.Role) error
	ResetUnread(ctx context.Context, chatID primitive.ObjectID, role domain.Role) error
}

type MessageRepository interface {
	Insert(ctx context.Context, m *domain.Message) error
	GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Message, error)
	// List returns messages of chatID not deleted for viewer, newest first.
	List(ctx context.Context, chatID, viewer primitive.ObjectID, skip, limit int64) ([]*domain.Message, error)
	// MarkSeen appends a read receipt for reader to every message in chatID
	// authored by someone else and not read by reader yet.
	MarkSeen(ctx context.Context, chatID, reader primitive.ObjectID, at time.Time) (int64, error)
	UpdateContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) (*domain.Message, error)
	ToggleReaction(ctx context.Context, id, userID primitive.ObjectID, emoji string, at time.Time) (bool, *domain.Message, error)
	ToggleStar(ctx context.Context, id, userID primitive.ObjectID) (bool, *domain.Message, error)
	TogglePin(ctx context.Context, id, userID primitive.ObjectID) (bool, *domain.Message, error)
	// MarkDeleted adds a deletion entry for every user that has none yet.
	MarkDeleted(ctx context.Context, id primitive.ObjectID, users []primitive.ObjectID, at time.Time) (*domain.Message, error)
	MarkChatDeleted(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (int64, error)
}

// DirectoryRepository reads users and student profiles owned by other services.
type DirectoryRepository interface {
	GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error)
	GetUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error)
	GetStudentProfile(ctx context.Context, userID primitive.ObjectID) (*domain.StudentProfile, error)
	// FindTeacherLinkedToStudent returns a teacher whose linked students include studentID.
	FindTeacherLinkedToStudent(ctx context.Context, tenantID string, studentID primitive.ObjectID) (*domain.User, error)
	FindAnyTeacher(ctx context.Context, tenantID string) (*domain.User, error)
}

type UploadRepository interface {
	Save(ctx context.Context, u *domain.Upload) error
	GetByID(ctx context.Context, id string) (*domain.Upload, error)
}
