package service

import (
	"context"
	"errors"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/cache"
	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/events"
	"github.com/fathima-sithara/classroom-chat/internal/metrics"
	"github.com/fathima-sithara/classroom-chat/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

type ParticipantView struct {
	UserID   string      `json:"userId"`
	Role     domain.Role `json:"role"`
	JoinedAt time.Time   `json:"joinedAt"`
	Name     string      `json:"name,omitempty"`
	Email    string      `json:"email,omitempty"`
	Avatar   string      `json:"avatar,omitempty"`
}

// ChatView is a chat as returned to clients, with participants and the
// student populated from the directory.
type ChatView struct {
	ChatID         string                `json:"chatId"`
	TenantID       string                `json:"tenantId"`
	ChatType       domain.ChatType       `json:"chatType"`
	Participants   []ParticipantView     `json:"participants"`
	StudentID      string                `json:"studentId"`
	StudentDetails domain.StudentDetails `json:"studentDetails"`
	LastMessage    *domain.Message       `json:"lastMessage"`
	LastMessageAt  time.Time             `json:"lastMessageAt"`
	UnreadCount    map[string]int        `json:"unreadCount"`
	IsActive       bool                  `json:"isActive"`
	CreatedAt      time.Time             `json:"createdAt"`
	UpdatedAt      time.Time             `json:"updatedAt"`
}

type ChatService struct {
	chats      repository.ChatRepository
	messages   repository.MessageRepository
	dir        repository.DirectoryRepository
	students   cache.StudentCache
	strategies []TeacherStrategy
	notify     *Notifier
	log        *zap.Logger
	now        func() time.Time
}

func NewChatService(
	chats repository.ChatRepository,
	messages repository.MessageRepository,
	dir repository.DirectoryRepository,
	students cache.StudentCache,
	notify *Notifier,
	log *zap.Logger,
) *ChatService {
	return &ChatService{
		chats:      chats,
		messages:   messages,
		dir:        dir,
		students:   students,
		strategies: DefaultTeacherStrategies(dir),
		notify:     notify,
		log:        log,
		now:        nowUTC,
	}
}

func nowUTC() time.Time { return time.Now().UTC().Truncate(time.Millisecond) }

// InferChatType picks the chat type for callers that do not name one.
func InferChatType(role domain.Role) domain.ChatType {
	if role == domain.RoleStudent {
		return domain.ChatTeacherStudent
	}
	return domain.ChatTeacherParent
}

func inTenant(u *domain.User, tenantID string) bool {
	if tenantID == domain.LegacyTenant {
		return u.TenantID == "" || u.TenantID == domain.LegacyTenant
	}
	return u.TenantID == tenantID
}

// ResolveChat returns the chat between the caller and the counterpart for a
// student, creating it on first contact. chatType may be empty.
func (s *ChatService) ResolveChat(ctx context.Context, caller domain.Identity, rawStudentID string, chatType domain.ChatType) (*ChatView, error) {
	studentID, err := domain.ParseID("student id", rawStudentID)
	if err != nil {
		return nil, err
	}
	role, ok := domain.NormalizeRole(caller.Role)
	if !ok {
		return nil, domain.Forbiddenf("Role %q cannot use chat", caller.Role)
	}
	if chatType == "" {
		chatType = InferChatType(role)
	}
	if !chatType.Valid() {
		return nil, domain.Invalidf("invalid chat type %q", chatType)
	}
	tenantID := caller.Tenant()

	student, err := s.dir.GetUser(ctx, studentID)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && !inTenant(student, tenantID)) {
		return nil, domain.NotFoundf("Student not found")
	}
	if err != nil {
		return nil, err
	}

	teacherID, otherID, err := s.resolveParties(ctx, caller, role, chatType, student)
	if err != nil {
		return nil, err
	}

	chat, outcome, err := s.findOrCreate(ctx, caller, tenantID, student.ID, chatType, teacherID, otherID)
	if err != nil {
		return nil, err
	}
	metrics.Resolutions.WithLabelValues(outcome).Inc()
	s.log.Debug("chat resolved",
		zap.String("chat_id", chat.ID.Hex()),
		zap.String("outcome", outcome),
		zap.String("tenant_id", tenantID))

	views, err := s.views(ctx, caller, []*domain.Chat{chat}, map[primitive.ObjectID]*domain.User{student.ID: student})
	if err != nil {
		return nil, err
	}
	return views[0], nil
}

// resolveParties returns the teacher and the non-teacher participant.
func (s *ChatService) resolveParties(ctx context.Context, caller domain.Identity, role domain.Role, chatType domain.ChatType, student *domain.User) (primitive.ObjectID, primitive.ObjectID, error) {
	nilID := primitive.NilObjectID
	switch role {
	case domain.RoleParent:
		if chatType != domain.ChatTeacherParent {
			return nilID, nilID, domain.Forbiddenf("Parents can only open teacher-parent chats")
		}
		linked, err := s.parentLinked(ctx, caller.UserID, student)
		if err != nil {
			return nilID, nilID, err
		}
		if !linked {
			return nilID, nilID, domain.Forbiddenf("You are not linked to this student")
		}
		teacher, strategy, err := resolveTeacher(ctx, s.strategies, caller.Tenant(), student)
		if err != nil {
			return nilID, nilID, err
		}
		s.log.Debug("teacher resolved", zap.String("strategy", strategy), zap.String("teacher_id", teacher.Hex()))
		return teacher, caller.UserID, nil

	case domain.RoleStudent:
		if chatType != domain.ChatTeacherStudent {
			return nilID, nilID, domain.Forbiddenf("Students can only open teacher-student chats")
		}
		if caller.UserID != student.ID {
			return nilID, nilID, domain.Forbiddenf("Students can only open their own chats")
		}
		teacher, strategy, err := resolveTeacher(ctx, s.strategies, caller.Tenant(), student)
		if err != nil {
			return nilID, nilID, err
		}
		s.log.Debug("teacher resolved", zap.String("strategy", strategy), zap.String("teacher_id", teacher.Hex()))
		return teacher, caller.UserID, nil

	case domain.RoleTeacher:
		if chatType == domain.ChatTeacherStudent {
			return caller.UserID, student.ID, nil
		}
		for _, id := range student.LinkedIDs.ParentIDs {
			if !id.IsZero() {
				return caller.UserID, id, nil
			}
		}
		return nilID, nilID, domain.NotFoundf("No parent linked to this student")
	}
	return nilID, nilID, domain.Forbiddenf("Role %q cannot use chat", role)
}

// parentLinked accepts a link recorded on either side.
func (s *ChatService) parentLinked(ctx context.Context, parentID primitive.ObjectID, student *domain.User) (bool, error) {
	for _, id := range student.LinkedIDs.ParentIDs {
		if id == parentID {
			return true, nil
		}
	}
	parent, err := s.dir.GetUser(ctx, parentID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, id := range parent.LinkedIDs.StudentIDs {
		if id == student.ID {
			return true, nil
		}
	}
	return false, nil
}

func (s *ChatService) findOrCreate(ctx context.Context, caller domain.Identity, tenantID string, studentID primitive.ObjectID, chatType domain.ChatType, teacherID, otherID primitive.ObjectID) (*domain.Chat, string, error) {
	chat, err := s.chats.FindByParticipants(ctx, tenantID, studentID, chatType, teacherID, otherID)
	if err == nil {
		return chat, "existing", nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, "", err
	}

	// A parent or student keeps their chat even when fallback now picks a
	// different teacher.
	if caller.UserID == otherID {
		chat, err = s.chats.FindActiveWithParticipant(ctx, tenantID, studentID, chatType, otherID)
		if err == nil {
			return chat, "reused", nil
		}
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, "", err
		}
	}

	chat = domain.NewChat(tenantID, studentID, chatType, teacherID, otherID, s.now())
	if err := s.chats.Create(ctx, chat); err != nil {
		if !errors.Is(err, repository.ErrDuplicate) {
			return nil, "", err
		}
		// lost a race with a concurrent first contact
		winner, ferr := s.chats.FindByParticipants(ctx, tenantID, studentID, chatType, teacherID, otherID)
		if ferr != nil {
			return nil, "", ferr
		}
		return winner, "existing", nil
	}

	counterpart := teacherID
	if caller.UserID == teacherID {
		counterpart = otherID
	}
	s.notify.Notify(ctx, events.Event{
		Type:   events.ChatCreated,
		Topic:  counterpart.Hex(),
		ChatID: chat.ID.Hex(),
		UserID: caller.UserID.Hex(),
	})
	return chat, "created", nil
}

// ListUserChats returns the caller's active chats, most recent first.
func (s *ChatService) ListUserChats(ctx context.Context, caller domain.Identity) ([]*ChatView, error) {
	chats, err := s.chats.ListForUser(ctx, caller.Tenant(), caller.UserID)
	if err != nil {
		return nil, err
	}
	return s.views(ctx, caller, chats, nil)
}

// ClearChat hides every message of the chat from the caller and resets the
// caller's unread counter. Other participants are unaffected.
func (s *ChatService) ClearChat(ctx context.Context, caller domain.Identity, rawChatID string) (int64, error) {
	chat, me, err := loadChatFor(ctx, s.chats, rawChatID, caller.UserID)
	if err != nil {
		return 0, err
	}
	n, err := s.messages.MarkChatDeleted(ctx, chat.ID, caller.UserID, s.now())
	if err != nil {
		return 0, err
	}
	if err := s.chats.ResetUnread(ctx, chat.ID, me.Role); err != nil {
		return 0, err
	}
	s.notify.Notify(ctx, events.Event{
		Type:   events.ChatCleared,
		Topic:  caller.UserID.Hex(),
		ChatID: chat.ID.Hex(),
		UserID: caller.UserID.Hex(),
		Count:  n,
	})
	return n, nil
}

// CanJoin reports whether userID may subscribe to the chat's events.
func (s *ChatService) CanJoin(ctx context.Context, userID primitive.ObjectID, rawChatID string) error {
	_, _, err := loadChatFor(ctx, s.chats, rawChatID, userID)
	return err
}

func (s *ChatService) views(ctx context.Context, caller domain.Identity, chats []*domain.Chat, known map[primitive.ObjectID]*domain.User) ([]*ChatView, error) {
	want := []primitive.ObjectID{}
	for _, c := range chats {
		for _, id := range append(c.ParticipantIDs(), c.StudentID) {
			if _, ok := known[id]; !ok {
				want = append(want, id)
			}
		}
	}
	users, err := s.dir.GetUsers(ctx, want)
	if err != nil {
		return nil, err
	}
	for id, u := range known {
		users[id] = u
	}

	now := s.now()
	details := map[primitive.ObjectID]domain.StudentDetails{}
	out := make([]*ChatView, 0, len(chats))
	for _, c := range chats {
		v := &ChatView{
			ChatID:        c.ID.Hex(),
			TenantID:      c.TenantID,
			ChatType:      c.ChatType,
			StudentID:     c.StudentID.Hex(),
			LastMessageAt: c.LastMessageAt,
			UnreadCount:   c.UnreadCount,
			IsActive:      c.IsActive,
			CreatedAt:     c.CreatedAt,
			UpdatedAt:     c.UpdatedAt,
		}
		for _, p := range c.Participants {
			pv := ParticipantView{UserID: p.UserID.Hex(), Role: p.Role, JoinedAt: p.JoinedAt}
			if u, ok := users[p.UserID]; ok {
				pv.Name, pv.Email, pv.Avatar = u.Name, u.Email, u.Avatar
			}
			v.Participants = append(v.Participants, pv)
		}

		d, ok := details[c.StudentID]
		if !ok {
			d, err = s.studentDetails(ctx, c.StudentID, users[c.StudentID])
			if err != nil {
				return nil, err
			}
			details[c.StudentID] = d
		}
		v.StudentDetails = d
		v.StudentDetails.Age = domain.AgeAt(d.DateOfBirth, now)

		if c.LastMessage != nil {
			m, err := s.messages.GetByID(ctx, *c.LastMessage)
			if err != nil && !errors.Is(err, repository.ErrNotFound) {
				return nil, err
			}
			if m != nil && !m.IsDeletedFor(caller.UserID) {
				v.LastMessage = m
			}
		}
		out = append(out, v)
	}
	return out, nil
}

// studentDetails merges the student profile over the directory record,
// going through the cache first.
func (s *ChatService) studentDetails(ctx context.Context, studentID primitive.ObjectID, u *domain.User) (domain.StudentDetails, error) {
	key := studentID.Hex()
	if d, ok := s.students.Get(ctx, key); ok {
		return *d, nil
	}
	if u == nil {
		return domain.StudentDetails{}, nil
	}
	profile, err := s.dir.GetStudentProfile(ctx, studentID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return domain.StudentDetails{}, err
	}
	d := domain.MergeStudentDetails(u, profile)
	s.students.Set(ctx, key, &d)
	return d, nil
}

// loadChatFor loads a chat and the caller's participant entry.
func loadChatFor(ctx context.Context, chats repository.ChatRepository, rawChatID string, userID primitive.ObjectID) (*domain.Chat, domain.Participant, error) {
	chatID, err := domain.ParseID("chat id", rawChatID)
	if err != nil {
		return nil, domain.Participant{}, err
	}
	chat, err := chats.GetByID(ctx, chatID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, domain.Participant{}, domain.NotFoundf("Chat not found")
	}
	if err != nil {
		return nil, domain.Participant{}, err
	}
	me, ok := chat.Participant(userID)
	if !ok {
		return nil, domain.Participant{}, domain.Forbiddenf("You are not a participant of this chat")
	}
	return chat, me, nil
}
