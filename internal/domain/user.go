// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

const MaxDisplayNameLen = 64

var (
	ErrNameEmpty   = errors.New("display name empty")
	ErrNameTooLong = errors.New("display name too long")
)

type (
	UserID string
	BookID string
)

// User is the opaque reader identity consumed from the session layer.
// Authentication is not this subsystem's concern.
type User struct {
	ID        UserID `json:"id"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	IsAuthor  bool   `json:"isAuthor,omitempty"`
}

// NewUser is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewUser(id UserID, name string) (*User, error) {
	if len(name) == 0 {
		return nil, ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return nil, ErrNameTooLong
	}
	return &User{ID: id, Name: name}, nil
}

// NewGuest mints an anonymous reader for sessions that carry no identity yet.
func NewGuest() *User {
	id := uuid.NewString()
	return &User{
		ID:   UserID(id),
		Name: fmt.Sprintf("Reader-%s", id[:8]),
	}
}

func (u *User) SetName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrNameTooLong
	}
	u.Name = name
	return nil
}
