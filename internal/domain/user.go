package domain

import (
	"encoding/json"
	"time"
)

// TimestampLayout is the createdAt format: UTC with exactly three fractional
// digits, e.g. 2024-11-14T22:13:20.000Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTimestamp renders t in TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

type UserType string

const (
	UserTypeUser  UserType = "user"
	UserTypeAdmin UserType = "admin"
)

// Valid reports whether t is one of the known user types.
func (t UserType) Valid() bool {
	return t == UserTypeUser || t == UserTypeAdmin
}

// UserRecord is a registered account as stored in the user registry.
type UserRecord struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	UserType  UserType  `json:"userType"`
	Password  string    `json:"password"`
	CreatedAt time.Time `json:"createdAt"`
}

func (u UserRecord) MarshalJSON() ([]byte, error) {
	type record UserRecord
	return json.Marshal(struct {
		record
		CreatedAt string `json:"createdAt"`
	}{record(u), FormatTimestamp(u.CreatedAt)})
}

// SessionRecord is the identity of the currently authenticated user. It is a
// UserRecord without the password.
type SessionRecord struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	FullName  string    `json:"fullName"`
	UserType  UserType  `json:"userType"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session strips the password off the record.
func (u UserRecord) Session() SessionRecord {
	return SessionRecord{
		ID:        u.ID,
		Email:     u.Email,
		FullName:  u.FullName,
		UserType:  u.UserType,
		CreatedAt: u.CreatedAt,
	}
}

func (s SessionRecord) MarshalJSON() ([]byte, error) {
	type record SessionRecord
	return json.Marshal(struct {
		record
		CreatedAt string `json:"createdAt"`
	}{record(s), FormatTimestamp(s.CreatedAt)})
}

func (s SessionRecord) IsAdmin() bool {
	return s.UserType == UserTypeAdmin
}
