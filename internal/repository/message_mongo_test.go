package repository

import (
	"context"
	"testing"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestToggleDocuments(t *testing.T) {
	id, user := primitive.NewObjectID(), primitive.NewObjectID()
	at := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	match := bson.M{"user_id": user, "emoji": "👍"}

	cases := []struct {
		name string
		ops  toggleOps
		want toggleOps
	}{
		{
			name: "reaction",
			ops:  reactionToggle(user, "👍", at),
			want: toggleOps{
				present: bson.M{"reactions": bson.M{"$elemMatch": match}},
				pull:    bson.M{"$pull": bson.M{"reactions": match}, "$set": bson.M{"updated_at": at}},
				absent:  bson.M{"reactions": bson.M{"$not": bson.M{"$elemMatch": match}}},
				push: bson.M{
					"$push": bson.M{"reactions": domain.Reaction{Emoji: "👍", UserID: user, CreatedAt: at}},
					"$set":  bson.M{"updated_at": at},
				},
			},
		},
		{
			name: "star",
			ops:  memberToggle("starred_by", user),
			want: toggleOps{
				present: bson.M{"starred_by": user},
				pull:    bson.M{"$pull": bson.M{"starred_by": user}},
				absent:  bson.M{"starred_by": bson.M{"$ne": user}},
				push:    bson.M{"$addToSet": bson.M{"starred_by": user}},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.ops)
			filter := byID(id, tc.ops.present)
			assert.Equal(t, id, filter["_id"])
			assert.Len(t, filter, 2)
			assert.NotContains(t, tc.ops.present, "_id", "byID must not mutate its input")
		})
	}
}

func messageDoc(t *testing.T, m *domain.Message) bson.D {
	t.Helper()
	raw, err := bson.Marshal(m)
	require.NoError(t, err)
	var d bson.D
	require.NoError(t, bson.Unmarshal(raw, &d))
	return d
}

func noValue() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
}

func withValue(d bson.D) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: d})
}

// updates returns the update document of every findAndModify sent.
func updates(mt *mtest.T) []bson.Raw {
	out := []bson.Raw{}
	for _, ev := range mt.GetAllStartedEvents() {
		if ev.CommandName == "findAndModify" {
			out = append(out, ev.Command.Lookup("update").Document())
		}
	}
	return out
}

func TestMongoToggles(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	at := time.Date(2024, 9, 1, 8, 0, 0, 0, time.UTC)
	user := primitive.NewObjectID()
	base := func() *domain.Message {
		return &domain.Message{
			ID: primitive.NewObjectID(), ChatID: primitive.NewObjectID(), SenderID: primitive.NewObjectID(),
			Content: "hello", MessageType: domain.MessageText, Status: domain.StatusSent,
			Attachments: []domain.Attachment{}, ReadBy: []domain.ReadReceipt{}, Reactions: []domain.Reaction{},
			StarredBy: []primitive.ObjectID{}, PinnedBy: []primitive.ObjectID{}, DeletedBy: []domain.DeletedEntry{},
			CreatedAt: at, UpdatedAt: at,
		}
	}

	mt.Run("reaction added when absent", func(mt *mtest.T) {
		m := base()
		after := base()
		after.ID = m.ID
		after.Reactions = []domain.Reaction{{Emoji: "👍", UserID: user, CreatedAt: at}}
		mt.AddMockResponses(noValue(), withValue(messageDoc(t, after)))

		r := &MessageMongo{coll: mt.Coll}
		added, got, err := r.ToggleReaction(context.Background(), m.ID, user, "👍", at)
		require.NoError(mt, err)
		assert.True(mt, added)
		assert.True(mt, got.HasReaction(user, "👍"))

		ups := updates(mt)
		require.Len(mt, ups, 2)
		_, err = ups[0].LookupErr("$pull", "reactions")
		assert.NoError(mt, err)
		_, err = ups[1].LookupErr("$push", "reactions")
		assert.NoError(mt, err)
	})

	mt.Run("reaction removed when present", func(mt *mtest.T) {
		m := base()
		mt.AddMockResponses(withValue(messageDoc(t, m)))

		r := &MessageMongo{coll: mt.Coll}
		added, got, err := r.ToggleReaction(context.Background(), m.ID, user, "👍", at)
		require.NoError(mt, err)
		assert.False(mt, added)
		assert.Empty(mt, got.Reactions)
		assert.Len(mt, updates(mt), 1)
	})

	mt.Run("lost race reports current state", func(mt *mtest.T) {
		m := base()
		m.StarredBy = []primitive.ObjectID{user}
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(noValue(), noValue(), mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, messageDoc(t, m)))

		r := &MessageMongo{coll: mt.Coll}
		added, got, err := r.ToggleStar(context.Background(), m.ID, user)
		require.NoError(mt, err)
		assert.True(mt, added, "the concurrent toggle left the user starred")
		assert.True(mt, got.IsStarredBy(user))

		ups := updates(mt)
		require.Len(mt, ups, 2)
		_, err = ups[1].LookupErr("$addToSet", "starred_by")
		assert.NoError(mt, err)
	})

	mt.Run("missing message", func(mt *mtest.T) {
		ns := mt.Coll.Database().Name() + "." + mt.Coll.Name()
		mt.AddMockResponses(noValue(), noValue(), mtest.CreateCursorResponse(0, ns, mtest.FirstBatch))

		r := &MessageMongo{coll: mt.Coll}
		_, _, err := r.TogglePin(context.Background(), primitive.NewObjectID(), user)
		assert.ErrorIs(mt, err, ErrNotFound)
	})
}
