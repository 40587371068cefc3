package repository

import (
	"context"
	"time"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type ChatMongo struct {
	coll *mongo.Collection
}

// NewChatMongo ensures the chat indexes, including the unique partial index
// that keeps one active chat per tenant, student, type and participant set.
func NewChatMongo(ctx context.Context, coll *mongo.Collection) (*ChatMongo, error) {
	models := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "tenant_id", Value: 1},
				{Key: "student_id", Value: 1},
				{Key: "chat_type", Value: 1},
				{Key: "participant_key", Value: 1},
			},
			Options: options.Index().
				SetName("uniq_active_chat").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"is_active": true}),
		},
		{
			Keys:    bson.D{{Key: "participants.user_id", Value: 1}, {Key: "last_message_at", Value: -1}},
			Options: options.Index().SetName("participant_recent_idx"),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return nil, err
	}
	return &ChatMongo{coll: coll}, nil
}

func (r *ChatMongo) Create(ctx context.Context, c *domain.Chat) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, c)
	return mapErr(err)
}

func (r *ChatMongo) findOne(ctx context.Context, filter bson.M) (*domain.Chat, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var c domain.Chat
	if err := r.coll.FindOne(ctx, filter).Decode(&c); err != nil {
		return nil, mapErr(err)
	}
	return &c, nil
}

func (r *ChatMongo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *ChatMongo) FindByParticipants(ctx context.Context, tenantID string, studentID primitive.ObjectID, chatType domain.ChatType, a, b primitive.ObjectID) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{
		"tenant_id":            tenantID,
		"student_id":           studentID,
		"chat_type":            chatType,
		"is_active":            true,
		"participants.user_id": bson.M{"$all": bson.A{a, b}},
	})
}

func (r *ChatMongo) FindActiveWithParticipant(ctx context.Context, tenantID string, studentID primitive.ObjectID, chatType domain.ChatType, userID primitive.ObjectID) (*domain.Chat, error) {
	return r.findOne(ctx, bson.M{
		"tenant_id":            tenantID,
		"student_id":           studentID,
		"chat_type":            chatType,
		"is_active":            true,
		"participants.user_id": userID,
	})
}

func (r *ChatMongo) ListForUser(ctx context.Context, tenantID string, userID primitive.ObjectID) ([]*domain.Chat, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	filter := bson.M{"tenant_id": tenantID, "participants.user_id": userID, "is_active": true}
	opts := options.Find().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Chat{}
	for cur.Next(ctx) {
		var c domain.Chat
		if err := cur.Decode(&c); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, cur.Err()
}

func (r *ChatMongo) RecordMessage(ctx context.Context, chatID, messageID primitive.ObjectID, at time.Time, unreadRoles []domain.Role) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	update := bson.M{"$set": bson.M{"last_message": messageID, "last_message_at": at, "updated_at": at}}
	if len(unreadRoles) > 0 {
		inc := bson.M{}
		for _, role := range unreadRoles {
			inc["unread_count."+string(role)] = 1
		}
		update["$inc"] = inc
	}
	res, err := r.coll.UpdateByID(ctx, chatID, update)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ChatMongo) ResetUnread(ctx context.Context, chatID primitive.ObjectID, role domain.Role) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.UpdateByID(ctx, chatID, bson.M{"$set": bson.M{"unread_count." + string(role): 0}})
	return err
}
