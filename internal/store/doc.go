// Package store provides persistent storage for gateway user accounts.
//
// # Architecture
//
// UserStore is the only interface. SQLiteStore implements it on a local
// SQLite file through modernc.org/sqlite (pure Go, no cgo); MockStore is an
// in-memory implementation for tests.
//
// Agents themselves are never persisted. A restart starts with an empty
// fleet.
//
// # Schema
//
//	users(id TEXT PRIMARY KEY, username TEXT UNIQUE, password_hash TEXT, created_at TEXT)
//
// Timestamps are stored as RFC 3339 strings in UTC.
//
// # Usage
//
//	s, err := store.NewSQLiteStore("/var/lib/bot-fleet/fleet.db")
//	if err != nil {
//	    return err
//	}
//	defer s.Close()
//
//	err = s.CreateUser(ctx, &store.User{ID: id, Username: "alice", PasswordHash: hash})
//	u, err := s.GetUserByUsername(ctx, "alice")
package store
