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

type MessageMongo struct {
	coll *mongo.Collection
}

func NewMessageMongo(ctx context.Context, coll *mongo.Collection) (*MessageMongo, error) {
	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "created_at", Value: -1}},
			Options: options.Index().SetName("chat_created_idx"),
		},
		{
			Keys:    bson.D{{Key: "chat_id", Value: 1}, {Key: "deleted_by.user_id", Value: 1}},
			Options: options.Index().SetName("chat_deleted_idx"),
		},
	}
	if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
		return nil, err
	}
	return &MessageMongo{coll: coll}, nil
}

func (r *MessageMongo) Insert(ctx context.Context, m *domain.Message) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, m)
	return mapErr(err)
}

func (r *MessageMongo) GetByID(ctx context.Context, id primitive.ObjectID) (*domain.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var m domain.Message
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *MessageMongo) List(ctx context.Context, chatID, viewer primitive.ObjectID, skip, limit int64) ([]*domain.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	filter := bson.M{"chat_id": chatID, "deleted_by.user_id": bson.M{"$ne": viewer}}
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(skip).
		SetLimit(limit)
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*domain.Message{}
	for cur.Next(ctx) {
		var m domain.Message
		if err := cur.Decode(&m); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, cur.Err()
}

func (r *MessageMongo) MarkSeen(ctx context.Context, chatID, reader primitive.ObjectID, at time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	filter := bson.M{
		"chat_id":         chatID,
		"sender_id":       bson.M{"$ne": reader},
		"read_by.user_id": bson.M{"$ne": reader},
	}
	update := bson.M{
		"$push": bson.M{"read_by": domain.ReadReceipt{UserID: reader, ReadAt: at}},
		"$set":  bson.M{"status": domain.StatusSeen, "updated_at": at},
	}
	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

func (r *MessageMongo) findOneAndUpdate(ctx context.Context, filter, update bson.M) (*domain.Message, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var m domain.Message
	if err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&m); err != nil {
		return nil, mapErr(err)
	}
	return &m, nil
}

func (r *MessageMongo) UpdateContent(ctx context.Context, id primitive.ObjectID, content string, at time.Time) (*domain.Message, error) {
	return r.findOneAndUpdate(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{
		"content":    content,
		"is_edited":  true,
		"edited_at":  at,
		"updated_at": at,
	}})
}

// toggleOps is a toggle expressed as two conditional updates: pull applies
// when present matches, push when absent matches.
type toggleOps struct {
	present, pull, absent, push bson.M
}

func reactionToggle(userID primitive.ObjectID, emoji string, at time.Time) toggleOps {
	match := bson.M{"user_id": userID, "emoji": emoji}
	return toggleOps{
		present: bson.M{"reactions": bson.M{"$elemMatch": match}},
		pull:    bson.M{"$pull": bson.M{"reactions": match}, "$set": bson.M{"updated_at": at}},
		absent:  bson.M{"reactions": bson.M{"$not": bson.M{"$elemMatch": match}}},
		push:    bson.M{"$push": bson.M{"reactions": domain.Reaction{Emoji: emoji, UserID: userID, CreatedAt: at}}, "$set": bson.M{"updated_at": at}},
	}
}

func memberToggle(field string, userID primitive.ObjectID) toggleOps {
	return toggleOps{
		present: bson.M{field: userID},
		pull:    bson.M{"$pull": bson.M{field: userID}},
		absent:  bson.M{field: bson.M{"$ne": userID}},
		push:    bson.M{"$addToSet": bson.M{field: userID}},
	}
}

func byID(id primitive.ObjectID, cond bson.M) bson.M {
	filter := bson.M{"_id": id}
	for k, v := range cond {
		filter[k] = v
	}
	return filter
}

// toggle tries to remove the entry first and adds it when nothing was
// removed. Each step is a single conditional update.
func (r *MessageMongo) toggle(ctx context.Context, id primitive.ObjectID, ops toggleOps) (bool, *domain.Message, error) {
	m, err := r.findOneAndUpdate(ctx, byID(id, ops.present), ops.pull)
	if err == nil {
		return false, m, nil
	}
	if err != ErrNotFound {
		return false, nil, err
	}

	m, err = r.findOneAndUpdate(ctx, byID(id, ops.absent), ops.push)
	if err == nil {
		return true, m, nil
	}
	if err != ErrNotFound {
		return false, nil, err
	}
	// either the message is gone or a concurrent toggle won; report current state
	cur, err := r.GetByID(ctx, id)
	if err != nil {
		return false, nil, err
	}
	return false, cur, nil
}

func (r *MessageMongo) ToggleReaction(ctx context.Context, id, userID primitive.ObjectID, emoji string, at time.Time) (bool, *domain.Message, error) {
	added, m, err := r.toggle(ctx, id, reactionToggle(userID, emoji, at))
	if err == nil && !added && m != nil && m.HasReaction(userID, emoji) {
		added = true
	}
	return added, m, err
}

func (r *MessageMongo) toggleSet(ctx context.Context, id, userID primitive.ObjectID, field string) (bool, *domain.Message, error) {
	added, m, err := r.toggle(ctx, id, memberToggle(field, userID))
	if err == nil && !added && m != nil && memberOf(field, m, userID) {
		added = true
	}
	return added, m, err
}

func memberOf(field string, m *domain.Message, userID primitive.ObjectID) bool {
	switch field {
	case "starred_by":
		return m.IsStarredBy(userID)
	case "pinned_by":
		return m.IsPinnedBy(userID)
	}
	return false
}

func (r *MessageMongo) ToggleStar(ctx context.Context, id, userID primitive.ObjectID) (bool, *domain.Message, error) {
	return r.toggleSet(ctx, id, userID, "starred_by")
}

func (r *MessageMongo) TogglePin(ctx context.Context, id, userID primitive.ObjectID) (bool, *domain.Message, error) {
	return r.toggleSet(ctx, id, userID, "pinned_by")
}

func (r *MessageMongo) MarkDeleted(ctx context.Context, id primitive.ObjectID, users []primitive.ObjectID, at time.Time) (*domain.Message, error) {
	for _, u := range users {
		cctx, cancel := withTimeout(ctx)
		_, err := r.coll.UpdateOne(cctx,
			bson.M{"_id": id, "deleted_by.user_id": bson.M{"$ne": u}},
			bson.M{"$push": bson.M{"deleted_by": domain.DeletedEntry{UserID: u, DeletedAt: at}}},
		)
		cancel()
		if err != nil {
			return nil, err
		}
	}
	return r.GetByID(ctx, id)
}

func (r *MessageMongo) MarkChatDeleted(ctx context.Context, chatID, userID primitive.ObjectID, at time.Time) (int64, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"chat_id": chatID, "deleted_by.user_id": bson.M{"$ne": userID}},
		bson.M{"$push": bson.M{"deleted_by": domain.DeletedEntry{UserID: userID, DeletedAt: at}}},
	)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}
