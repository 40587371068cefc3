package domain

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Role string

const (
	RoleTeacher Role = "teacher"
	RoleParent  Role = "parent"
	RoleStudent Role = "student"
)

// LegacyTenant is used for accounts created before tenants existed.
const LegacyTenant = "legacy"

// NormalizeRole maps directory roles onto chat participant roles.
// school_teacher and teacher are the same participant role.
func NormalizeRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "teacher", "school_teacher":
		return RoleTeacher, true
	case "parent":
		return RoleParent, true
	case "student":
		return RoleStudent, true
	}
	return "", false
}

// Identity is the authenticated caller of an operation.
type Identity struct {
	UserID   primitive.ObjectID
	Role     string
	TenantID string
}

// Tenant returns the tenant the caller acts in.
func (i Identity) Tenant() string {
	if i.TenantID == "" {
		return LegacyTenant
	}
	return i.TenantID
}

// ParseID parses a hex object id, reporting an invalid argument naming field.
func ParseID(field, raw string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(raw))
	if err != nil {
		return primitive.NilObjectID, Invalidf("invalid %s", field)
	}
	return id, nil
}
