package service

import (
	"context"
	"errors"

	"github.com/fathima-sithara/classroom-chat/internal/domain"
	"github.com/fathima-sithara/classroom-chat/internal/repository"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// TeacherStrategy proposes a teacher for a student. ok is false when the
// strategy has no candidate; the next strategy is tried then.
type TeacherStrategy interface {
	Name() string
	FindTeacher(ctx context.Context, tenantID string, student *domain.User) (id primitive.ObjectID, ok bool, err error)
}

// DefaultTeacherStrategies is the fallback order used to find a teacher:
// the student's own teacher link, then a teacher linking back to the
// student, then any teacher of the tenant.
func DefaultTeacherStrategies(dir repository.DirectoryRepository) []TeacherStrategy {
	return []TeacherStrategy{
		linkedTeacher{},
		reverseLinkedTeacher{dir: dir},
		anyTenantTeacher{dir: dir},
	}
}

type linkedTeacher struct{}

func (linkedTeacher) Name() string { return "student-linked-teacher" }

func (linkedTeacher) FindTeacher(_ context.Context, _ string, student *domain.User) (primitive.ObjectID, bool, error) {
	for _, id := range student.LinkedIDs.TeacherIDs {
		if !id.IsZero() {
			return id, true, nil
		}
	}
	return primitive.NilObjectID, false, nil
}

type reverseLinkedTeacher struct {
	dir repository.DirectoryRepository
}

func (reverseLinkedTeacher) Name() string { return "reverse-linked-teacher" }

func (s reverseLinkedTeacher) FindTeacher(ctx context.Context, tenantID string, student *domain.User) (primitive.ObjectID, bool, error) {
	return fromLookup(s.dir.FindTeacherLinkedToStudent(ctx, tenantID, student.ID))
}

type anyTenantTeacher struct {
	dir repository.DirectoryRepository
}

func (anyTenantTeacher) Name() string { return "any-tenant-teacher" }

func (s anyTenantTeacher) FindTeacher(ctx context.Context, tenantID string, _ *domain.User) (primitive.ObjectID, bool, error) {
	return fromLookup(s.dir.FindAnyTeacher(ctx, tenantID))
}

func fromLookup(u *domain.User, err error) (primitive.ObjectID, bool, error) {
	if errors.Is(err, repository.ErrNotFound) {
		return primitive.NilObjectID, false, nil
	}
	if err != nil {
		return primitive.NilObjectID, false, err
	}
	return u.ID, true, nil
}

// resolveTeacher runs strategies in order and returns the first hit along
// with the name of the strategy that produced it.
func resolveTeacher(ctx context.Context, strategies []TeacherStrategy, tenantID string, student *domain.User) (primitive.ObjectID, string, error) {
	for _, st := range strategies {
		id, ok, err := st.FindTeacher(ctx, tenantID, student)
		if err != nil {
			return primitive.NilObjectID, "", err
		}
		if ok {
			return id, st.Name(), nil
		}
	}
	return primitive.NilObjectID, "", domain.NotFoundf("No teacher found for this student. Please contact support to link a teacher.")
}
