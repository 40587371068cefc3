package repository

import (
	"context"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

type UploadMongo struct {
	coll *mongo.Collection
}

func NewUploadMongo(coll *mongo.Collection) *UploadMongo {
	return &UploadMongo{coll: coll}
}

func (r *UploadMongo) Save(ctx context.Context, u *domain.Upload) error {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	_, err := r.coll.InsertOne(ctx, u)
	return mapErr(err)
}

func (r *UploadMongo) GetByID(ctx context.Context, id string) (*domain.Upload, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var u domain.Upload
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}
