// ABOUTME: User registration and password login backed by the user store
// ABOUTME: bcrypt hashing with a constant-time path for unknown usernames

package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/bot-fleet/internal/store"
)

var (
	// ErrInvalidCredentials is returned for an unknown user or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrMissingCredentials is returned when username or password is empty.
	ErrMissingCredentials = errors.New("username and password are required")
)

// dummyHash keeps login timing constant when the username does not exist.
const dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// Accounts registers users and issues tokens.
type Accounts struct {
	users    store.UserStore
	verifier *JWTVerifier
	ttl      time.Duration
	cost     int
}

// NewAccounts creates an Accounts service issuing tokens valid for ttl.
func NewAccounts(users store.UserStore, verifier *JWTVerifier, ttl time.Duration) *Accounts {
	return &Accounts{users: users, verifier: verifier, ttl: ttl, cost: bcrypt.DefaultCost}
}

// Register creates a user. Returns store.ErrUsernameExists if taken.
func (a *Accounts) Register(ctx context.Context, username, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), a.cost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &store.User{
		ID:           uuid.New().String(),
		Username:     username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now().UTC(),
	}
	if err := a.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Login checks credentials and returns a signed token.
func (a *Accounts) Login(ctx context.Context, username, password string) (string, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		return "", ErrMissingCredentials
	}

	user, err := a.users.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := a.verifier.Generate(user.ID, a.ttl)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// Authenticate verifies a token and confirms its user still exists.
func (a *Accounts) Authenticate(ctx context.Context, token string) (*AuthContext, error) {
	userID, err := a.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	user, err := a.users.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: unknown user", ErrInvalidToken)
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return &AuthContext{UserID: user.ID, Username: user.Username}, nil
}
