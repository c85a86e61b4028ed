// ABOUTME: Tests for user registration, password login, and token authentication
// ABOUTME: Runs against the in-memory MockStore

package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/2389/bot-fleet/internal/store"
)

func newTestAccounts(t *testing.T) (*Accounts, *store.MockStore) {
	t.Helper()
	users := store.NewMockStore()
	a := NewAccounts(users, newTestVerifier(t), time.Hour)
	a.cost = bcrypt.MinCost
	return a, users
}

func TestAccounts_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)

	user, err := a.Register(ctx, "  alice ", "hunter22")
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if user.ID == "" {
		t.Error("Register() returned empty id")
	}
	if user.Username != "alice" {
		t.Errorf("Username = %q, want %q", user.Username, "alice")
	}
	if user.PasswordHash == "hunter22" {
		t.Error("password stored in plain text")
	}

	token, err := a.Login(ctx, "alice", "hunter22")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	authCtx, err := a.Authenticate(ctx, token)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if authCtx.UserID != user.ID || authCtx.Username != "alice" {
		t.Errorf("Authenticate() = %+v, want user %s", authCtx, user.ID)
	}
}

func TestAccounts_RegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)

	if _, err := a.Register(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if _, err := a.Register(ctx, "alice", "other"); !errors.Is(err, store.ErrUsernameExists) {
		t.Errorf("Register() error = %v, want ErrUsernameExists", err)
	}
}

func TestAccounts_MissingCredentials(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)

	if _, err := a.Register(ctx, " ", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Register() error = %v, want ErrMissingCredentials", err)
	}
	if _, err := a.Register(ctx, "bob", ""); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Register() error = %v, want ErrMissingCredentials", err)
	}
	if _, err := a.Login(ctx, "", "pw"); !errors.Is(err, ErrMissingCredentials) {
		t.Errorf("Login() error = %v, want ErrMissingCredentials", err)
	}
}

func TestAccounts_LoginRejectsBadCredentials(t *testing.T) {
	ctx := context.Background()
	a, _ := newTestAccounts(t)

	if _, err := a.Register(ctx, "alice", "hunter22"); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if _, err := a.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(wrong password) error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := a.Login(ctx, "nobody", "hunter22"); !errors.Is(err, ErrInvalidCredentials) {
		t.Errorf("Login(unknown user) error = %v, want ErrInvalidCredentials", err)
	}
}

func TestAccounts_AuthenticateUnknownUser(t *testing.T) {
	a, _ := newTestAccounts(t)

	token, err := a.verifier.Generate("ghost", time.Hour)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if _, err := a.Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("Authenticate() error = %v, want ErrInvalidToken", err)
	}
}
