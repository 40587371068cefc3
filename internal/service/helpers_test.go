package service

import (
	"context"
	"testing"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/cache"
	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/events"
	"github.com/fathima-sithara/classroom-chat/internal/repository/memory"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const tenant = "school-1"

type fixture struct {
	store   *memory.Store
	bus     *events.LocalBus
	chats   *ChatService
	msgs    *MessageService
	teacher *domain.User
	parent  *domain.User
	student *domain.User
	clock   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	teacherID, parentID, studentID := primitive.NewObjectID(), primitive.NewObjectID(), primitive.NewObjectID()
	f := &fixture{
		store: memory.NewStore(),
		bus:   events.NewLocalBus(),
		clock: time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC),
		teacher: &domain.User{
			ID: teacherID, TenantID: tenant, Name: "Meera Rao", Email: "meera@school.test", Role: "school_teacher",
			LinkedIDs: domain.LinkedIDs{StudentIDs: []primitive.ObjectID{studentID}},
		},
		parent: &domain.User{
			ID: parentID, TenantID: tenant, Name: "Anil Kumar", Email: "anil@home.test", Role: "parent",
			LinkedIDs: domain.LinkedIDs{StudentIDs: []primitive.ObjectID{studentID}},
		},
		student: &domain.User{
			ID: studentID, TenantID: tenant, Name: "Kiran Kumar", Email: "kiran@school.test", Role: "student",
			LinkedIDs: domain.LinkedIDs{
				TeacherIDs: []primitive.ObjectID{teacherID},
				ParentIDs:  []primitive.ObjectID{parentID},
			},
		},
	}
	f.store.PutUser(f.teacher)
	f.store.PutUser(f.parent)
	f.store.PutUser(f.student)

	log := zap.NewNop()
	n := NewNotifier(f.bus, log)
	f.chats = NewChatService(f.store.Chats(), f.store.Messages(), f.store.Directory(), cache.NewMemoryStudentCache(time.Minute), n, log)
	f.msgs = NewMessageService(f.store.Chats(), f.store.Messages(), n, log)
	f.chats.now = f.tick
	f.msgs.now = f.tick
	return f
}

// tick advances the fixture clock by one second per call so message order
// is deterministic.
func (f *fixture) tick() time.Time {
	f.clock = f.clock.Add(time.Second)
	return f.clock
}

func who(u *domain.User) domain.Identity {
	return domain.Identity{UserID: u.ID, Role: u.Role, TenantID: u.TenantID}
}

func (f *fixture) parentChat(t *testing.T) *ChatView {
	t.Helper()
	v, err := f.chats.ResolveChat(context.Background(), who(f.parent), f.student.ID.Hex(), domain.ChatTeacherParent)
	require.NoError(t, err)
	return v
}

func (f *fixture) chat(t *testing.T, id string) *domain.Chat {
	t.Helper()
	oid, err := primitive.ObjectIDFromHex(id)
	require.NoError(t, err)
	c, err := f.store.Chats().GetByID(context.Background(), oid)
	require.NoError(t, err)
	return c
}

func (f *fixture) send(t *testing.T, from *domain.User, chatID, content string) *domain.Message {
	t.Helper()
	m, err := f.msgs.Send(context.Background(), who(from), chatID, SendInput{Content: content})
	require.NoError(t, err)
	return m
}

func (f *fixture) eventsOf(typ events.Type) []events.Event {
	out := []events.Event{}
	for _, ev := range f.bus.Published() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}
