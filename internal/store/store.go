// ABOUTME: User account types and the UserStore interface
// ABOUTME: Sentinel errors shared by every implementation

package store

import (
	"context"
	"errors"
	"time"
)

// ErrUserNotFound is returned when a user doesn't exist.
var ErrUserNotFound = errors.New("user not found")

// ErrUsernameExists is returned when trying to create a user with an existing username.
var ErrUsernameExists = errors.New("username already exists")

// User is an account that owns agents.
type User struct {
	ID           string
	Username     string
	PasswordHash string // bcrypt
	CreatedAt    time.Time
}

// UserStore persists user accounts.
type UserStore interface {
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
	CountUsers(ctx context.Context) (int, error)
	Ping(ctx context.Context) error
	Close() error
}
