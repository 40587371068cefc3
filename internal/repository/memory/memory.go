// Package memory holds in-process implementations of the repository
// interfaces. They back the service and handler tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Store struct {
	mu       sync.Mutex
	chats    map[primitive.ObjectID]*domain.Chat
	messages map[primitive.ObjectID]*domain.Message
	users    map[primitive.ObjectID]*domain.User
	profiles map[primitive.ObjectID]*domain.StudentProfile
	uploads  map[string]*domain.Upload
	// insertion order, used as tie breaker for equal timestamps
	seq   map[primitive.ObjectID]int
	next  int
	order []primitive.ObjectID // users in insertion order
}

func NewStore() *Store {
	return &Store{
		chats:    map[primitive.ObjectID]*domain.Chat{},
		messages: map[primitive.ObjectID]*domain.Message{},
		users:    map[primitive.ObjectID]*domain.User{},
		profiles: map[primitive.ObjectID]*domain.StudentProfile{},
		uploads:  map[string]*domain.Upload{},
		seq:      map[primitive.ObjectID]int{},
	}
}

func (s *Store) Chats() *Chats         { return &Chats{s} }
func (s *Store) Messages() *Messages   { return &Messages{s} }
func (s *Store) Directory() *Directory { return &Directory{s} }
func (s *Store) Uploads() *Uploads     { return &Uploads{s} }

// PutUser adds or replaces a directory user.
func (s *Store) PutUser(u *domain.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		s.order = append(s.order, u.ID)
	}
	cp := *u
	s.users[u.ID] = &cp
}

func (s *Store) PutStudentProfile(p *domain.StudentProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.profiles[p.UserID] = &cp
}

// ChatCount reports how many chats are stored.
func (s *Store) ChatCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chats)
}

// DeactivateChat marks a chat inactive.
func (s *Store) DeactivateChat(id primitive.ObjectID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.chats[id]; ok {
		c.IsActive = false
	}
}

func (s *Store) UploadCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.uploads)
}

func cloneChat(c *domain.Chat) *domain.Chat {
	cp := *c
	cp.Participants = append([]domain.Participant(nil), c.Participants...)
	cp.UnreadCount = make(map[string]int, len(c.UnreadCount))
	for k, v := range c.UnreadCount {
		cp.UnreadCount[k] = v
	}
	if c.LastMessage != nil {
		id := *c.LastMessage
		cp.LastMessage = &id
	}
	return &cp
}

func cloneMessage(m *domain.Message) *domain.Message {
	cp := *m
	cp.Attachments = append([]domain.Attachment{}, m.Attachments...)
	cp.ReadBy = append([]domain.ReadReceipt{}, m.ReadBy...)
	cp.Reactions = append([]domain.Reaction{}, m.Reactions...)
	cp.StarredBy = append([]primitive.ObjectID{}, m.StarredBy...)
	cp.PinnedBy = append([]primitive.ObjectID{}, m.PinnedBy...)
	cp.DeletedBy = append([]domain.DeletedEntry{}, m.DeletedBy...)
	return &cp
}

type Chats struct{ s *Store }

func (r *Chats) Create(_ context.Context, c *domain.Chat) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.chats {
		if existing.IsActive && c.IsActive &&
			existing.TenantID == c.TenantID &&
			existing.StudentID == c.StudentID &&
			existing.ChatType == c.ChatType &&
			existing.ParticipantKey == c.ParticipantKey {
			return repository.ErrDuplicate
		}
	}
	if _, ok := r.s.chats[c.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.chats[c.ID] = cloneChat(c)
	return nil
}

func (r *Chats) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneChat(c), nil
}

func (r *Chats) first(match func(*domain.Chat) bool) (*domain.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var found *domain.Chat
	for _, c := range r.s.chats {
		if match(c) && (found == nil || c.CreatedAt.Before(found.CreatedAt)) {
			found = c
		}
	}
	if found == nil {
		return nil, repository.ErrNotFound
	}
	return cloneChat(found), nil
}

func (r *Chats) FindByParticipants(_ context.Context, tenantID string, studentID primitive.ObjectID, chatType domain.ChatType, a, b primitive.ObjectID) (*domain.Chat, error) {
	return r.first(func(c *domain.Chat) bool {
		return c.IsActive && c.TenantID == tenantID && c.StudentID == studentID && c.ChatType == chatType &&
			c.HasParticipant(a) && c.HasParticipant(b)
	})
}

func (r *Chats) FindActiveWithParticipant(_ context.Context, tenantID string, studentID primitive.ObjectID, chatType domain.ChatType, userID primitive.ObjectID) (*domain.Chat, error) {
	return r.first(func(c *domain.Chat) bool {
		return c.IsActive && c.TenantID == tenantID && c.StudentID == studentID && c.ChatType == chatType && c.HasParticipant(userID)
	})
}

func (r *Chats) ListForUser(_ context.Context, tenantID string, userID primitive.ObjectID) ([]*domain.Chat, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*domain.Chat{}
	for _, c := range r.s.chats {
		if c.IsActive && c.TenantID == tenantID && c.HasParticipant(userID) {
			out = append(out, cloneChat(c))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LastMessageAt.After(out[j].LastMessageAt) })
	return out, nil
}

func (r *Chats) RecordMessage(_ context.Context, chatID, messageID primitive.ObjectID, at time.Time, unreadRoles []domain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.chats[chatID]
	if !ok {
		return repository.ErrNotFound
	}
	id := messageID
	c.LastMessage = &id
	c.LastMessageAt = at
	c.UpdatedAt = at
	for _, role := range unreadRoles {
		c.UnreadCount[string(role)]++
	}
	return nil
}

func (r *Chats) ResetUnread(_ context.Context, chatID primitive.ObjectID, role domain.Role) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c, ok := r.s.chats[chatID]; ok {
		c.UnreadCount[string(role)] = 0
	}
	return nil
}

type Messages struct{ s *Store }

func (r *Messages) Insert(_ context.Context, m *domain.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.messages[m.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.messages[m.ID] = cloneMessage(m)
	r.s.next++
	r.s.seq[m.ID] = r.s.next
	return nil
}

func (r *Messages) GetByID(_ context.Context, id primitive.ObjectID) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return cloneMessage(m), nil
}

func (r *Messages) List(_ context.Context, chatID, viewer primitive.ObjectID, skip, limit int64) ([]*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	all := []*domain.Message{}
	for _, m := range r.s.messages {
		if m.ChatID == chatID && !m.IsDeletedFor(viewer) {
			all = append(all, m)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
			return all[i].CreatedAt.After(all[j].CreatedAt)
		}
		return r.s.seq[all[i].ID] > r.s.seq[all[j].ID]
	})
	if skip >= int64(len(all)) {
		return []*domain.Message{}, nil
	}
	all = all[skip:]
	if limit > 0 && limit < int64(len(all)) {
		all = all[:limit]
	}
	out := make([]*domain.Message, 0, len(all))
	for _, m := range all {
		out = append(out, cloneMessage(m))
	}
	return out, nil
}

func (r *Messages) MarkSeen(_ context.Context, chatID, reader primitive.ObjectID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.ChatID != chatID || m.SenderID == reader || m.IsReadBy(reader) {
			continue
		}
		m.ReadBy = append(m.ReadBy, domain.ReadReceipt{UserID: reader, ReadAt: at})
		m.Status = domain.StatusSeen
		m.UpdatedAt = at
		n++
	}
	return n, nil
}

func (r *Messages) mutate(id primitive.ObjectID, fn func(*domain.Message)) (*domain.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.messages[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	fn(m)
	return cloneMessage(m), nil
}

func (r *Messages) UpdateContent(_ context.Context, id primitive.ObjectID, content string, at time.Time) (*domain.Message, error) {
	return r.mutate(id, func(m *domain.Message) {
		m.Content = content
		m.IsEdited = true
		t := at
		m.EditedAt = &t
		m.UpdatedAt = at
	})
}

func (r *Messages) ToggleReaction(_ context.Context, id, userID primitive.ObjectID, emoji string, at time.Time) (bool, *domain.Message, error) {
	var added bool
	m, err := r.mutate(id, func(m *domain.Message) {
		kept := m.Reactions[:0:0]
		for _, rc := range m.Reactions {
			if rc.UserID == userID && rc.Emoji == emoji {
				continue
			}
			kept = append(kept, rc)
		}
		if len(kept) == len(m.Reactions) {
			kept = append(kept, domain.Reaction{Emoji: emoji, UserID: userID, CreatedAt: at})
			added = true
		}
		m.Reactions = kept
		m.UpdatedAt = at
	})
	return added, m, err
}

func toggleID(ids []primitive.ObjectID, id primitive.ObjectID) ([]primitive.ObjectID, bool) {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	if len(out) == len(ids) {
		return append(out, id), true
	}
	return out, false
}

func (r *Messages) ToggleStar(_ context.Context, id, userID primitive.ObjectID) (bool, *domain.Message, error) {
	var added bool
	m, err := r.mutate(id, func(m *domain.Message) { m.StarredBy, added = toggleID(m.StarredBy, userID) })
	return added, m, err
}

func (r *Messages) TogglePin(_ context.Context, id, userID primitive.ObjectID) (bool, *domain.Message, error) {
	var added bool
	m, err := r.mutate(id, func(m *domain.Message) { m.PinnedBy, added = toggleID(m.PinnedBy, userID) })
	return added, m, err
}

func (r *Messages) MarkDeleted(_ context.Context, id primitive.ObjectID, users []primitive.ObjectID, at time.Time) (*domain.Message, error) {
	return r.mutate(id, func(m *domain.Message) {
		for _, u := range users {
			if !m.IsDeletedFor(u) {
				m.DeletedBy = append(m.DeletedBy, domain.DeletedEntry{UserID: u, DeletedAt: at})
			}
		}
	})
}

func (r *Messages) MarkChatDeleted(_ context.Context, chatID, userID primitive.ObjectID, at time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for _, m := range r.s.messages {
		if m.ChatID == chatID && !m.IsDeletedFor(userID) {
			m.DeletedBy = append(m.DeletedBy, domain.DeletedEntry{UserID: userID, DeletedAt: at})
			n++
		}
	}
	return n, nil
}

type Directory struct{ s *Store }

func (r *Directory) GetUser(_ context.Context, id primitive.ObjectID) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (r *Directory) GetUsers(_ context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make(map[primitive.ObjectID]*domain.User, len(ids))
	for _, id := range ids {
		if u, ok := r.s.users[id]; ok {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (r *Directory) GetStudentProfile(_ context.Context, userID primitive.ObjectID) (*domain.StudentProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[userID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func sameTenant(u *domain.User, tenantID string) bool {
	if tenantID == domain.LegacyTenant {
		return u.TenantID == "" || u.TenantID == domain.LegacyTenant
	}
	return u.TenantID == tenantID
}

func isTeacher(u *domain.User) bool {
	role, ok := domain.NormalizeRole(u.Role)
	return ok && role == domain.RoleTeacher
}

func (r *Directory) findTeacher(tenantID string, match func(*domain.User) bool) (*domain.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.order {
		u := r.s.users[id]
		if isTeacher(u) && sameTenant(u, tenantID) && match(u) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Directory) FindTeacherLinkedToStudent(_ context.Context, tenantID string, studentID primitive.ObjectID) (*domain.User, error) {
	return r.findTeacher(tenantID, func(u *domain.User) bool {
		for _, id := range u.LinkedIDs.StudentIDs {
			if id == studentID {
				return true
			}
		}
		return false
	})
}

func (r *Directory) FindAnyTeacher(_ context.Context, tenantID string) (*domain.User, error) {
	return r.findTeacher(tenantID, func(*domain.User) bool { return true })
}

type Uploads struct{ s *Store }

func (r *Uploads) Save(_ context.Context, u *domain.Upload) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.uploads[u.ID]; ok {
		return repository.ErrDuplicate
	}
	cp := *u
	r.s.uploads[u.ID] = &cp
	return nil
}

func (r *Uploads) GetByID(_ context.Context, id string) (*domain.Upload, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.uploads[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

var (
	_ repository.ChatRepository      = (*Chats)(nil)
	_ repository.MessageRepository   = (*Messages)(nil)
	_ repository.DirectoryRepository = (*Directory)(nil)
	_ repository.UploadRepository    = (*Uploads)(nil)
)
