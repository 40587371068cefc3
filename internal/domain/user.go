package domain

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type LinkedIDs struct {
	TeacherIDs []primitive.ObjectID `bson:"teacher_ids" json:"teacherIds"`
	ParentIDs  []primitive.ObjectID `bson:"parent_ids" json:"parentIds"`
	StudentIDs []primitive.ObjectID `bson:"student_ids" json:"studentIds"`
}

// User is the read-only directory record of a platform account.
type User struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	TenantID    string             `bson:"tenant_id,omitempty" json:"tenantId,omitempty"`
	Name        string             `bson:"name" json:"name"`
	Email       string             `bson:"email" json:"email"`
	Avatar      string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
	Role        string             `bson:"role" json:"role"`
	Gender      string             `bson:"gender,omitempty" json:"gender,omitempty"`
	DateOfBirth *time.Time         `bson:"date_of_birth,omitempty" json:"dateOfBirth,omitempty"`
	LinkedIDs   LinkedIDs          `bson:"linked_ids" json:"linkedIds"`
}

type StudentProfile struct {
	ID          primitive.ObjectID `bson:"_id" json:"id"`
	UserID      primitive.ObjectID `bson:"user_id" json:"userId"`
	Name        string             `bson:"name,omitempty" json:"name,omitempty"`
	Gender      string             `bson:"gender,omitempty" json:"gender,omitempty"`
	DateOfBirth *time.Time         `bson:"date_of_birth,omitempty" json:"dateOfBirth,omitempty"`
	Avatar      string             `bson:"avatar,omitempty" json:"avatar,omitempty"`
}

// StudentDetails is the merged view of a student shown in a chat header.
type StudentDetails struct {
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Avatar      string     `json:"avatar,omitempty"`
	Gender      string     `json:"gender,omitempty"`
	DateOfBirth *time.Time `json:"dateOfBirth,omitempty"`
	Age         *int       `json:"age,omitempty"`
}

// MergeStudentDetails prefers profile fields and falls back to the user record.
func MergeStudentDetails(u *User, p *StudentProfile) StudentDetails {
	d := StudentDetails{Name: u.Name, Email: u.Email, Avatar: u.Avatar, Gender: u.Gender, DateOfBirth: u.DateOfBirth}
	if p == nil {
		return d
	}
	if p.Name != "" {
		d.Name = p.Name
	}
	if p.Avatar != "" {
		d.Avatar = p.Avatar
	}
	if p.Gender != "" {
		d.Gender = p.Gender
	}
	if p.DateOfBirth != nil {
		d.DateOfBirth = p.DateOfBirth
	}
	return d
}

// AgeAt returns whole years between dob and now, or nil without a date of birth.
func AgeAt(dob *time.Time, now time.Time) *int {
	if dob == nil || dob.IsZero() {
		return nil
	}
	age := now.Year() - dob.Year()
	if now.Month() < dob.Month() || (now.Month() == dob.Month() && now.Day() < dob.Day()) {
		age--
	}
	if age < 0 {
		age = 0
	}
	return &age
}

// Upload records a blob stored for a chat attachment.
type Upload struct {
	ID        string             `bson:"_id" json:"id"`
	TenantID  string             `bson:"tenant_id" json:"tenantId"`
	UserID    primitive.ObjectID `bson:"user_id" json:"userId"`
	Key       string             `bson:"key" json:"key"`
	URL       string             `bson:"url" json:"url"`
	Thumbnail string             `bson:"thumbnail,omitempty" json:"thumbnail,omitempty"`
	ThumbKey  string             `bson:"thumb_key,omitempty" json:"-"`
	Filename  string             `bson:"filename" json:"filename"`
	FileType  MessageType        `bson:"file_type" json:"fileType"`
	MimeType  string             `bson:"mime_type" json:"mimeType"`
	Size      int64              `bson:"size" json:"size"`
	CreatedAt time.Time          `bson:"created_at" json:"createdAt"`
}
