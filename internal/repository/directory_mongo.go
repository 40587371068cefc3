package repository

import (
	"context"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

var teacherRoles = bson.A{"teacher", "school_teacher"}

// DirectoryMongo reads the users and student_profiles collections. It never writes.
type DirectoryMongo struct {
	users    *mongo.Collection
	profiles *mongo.Collection
}

func NewDirectoryMongo(users, profiles *mongo.Collection) *DirectoryMongo {
	return &DirectoryMongo{users: users, profiles: profiles}
}

func (r *DirectoryMongo) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var u domain.User
	if err := r.users.FindOne(ctx, filter).Decode(&u); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

func (r *DirectoryMongo) GetUser(ctx context.Context, id primitive.ObjectID) (*domain.User, error) {
	return r.findUser(ctx, bson.M{"_id": id})
}

func (r *DirectoryMongo) GetUsers(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*domain.User, error) {
	out := make(map[primitive.ObjectID]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	cur, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var u domain.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = &u
	}
	return out, cur.Err()
}

func (r *DirectoryMongo) GetStudentProfile(ctx context.Context, userID primitive.ObjectID) (*domain.StudentProfile, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()
	var p domain.StudentProfile
	if err := r.profiles.FindOne(ctx, bson.M{"user_id": userID}).Decode(&p); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func tenantFilter(tenantID string) bson.M {
	if tenantID == domain.LegacyTenant {
		return bson.M{"$in": bson.A{tenantID, nil, ""}}
	}
	return bson.M{"$eq": tenantID}
}

func (r *DirectoryMongo) FindTeacherLinkedToStudent(ctx context.Context, tenantID string, studentID primitive.ObjectID) (*domain.User, error) {
	return r.findUser(ctx, bson.M{
		"tenant_id":              tenantFilter(tenantID),
		"role":                   bson.M{"$in": teacherRoles},
		"linked_ids.student_ids": studentID,
	})
}

func (r *DirectoryMongo) FindAnyTeacher(ctx context.Context, tenantID string) (*domain.User, error) {
	return r.findUser(ctx, bson.M{
		"tenant_id": tenantFilter(tenantID),
		"role":      bson.M{"$in": teacherRoles},
	})
}
