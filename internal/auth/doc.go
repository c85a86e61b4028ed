// Package auth provides authentication for the fleet gateway.
//
// # Accounts
//
// Users register with a username and password. Passwords are hashed with
// bcrypt and stored through store.UserStore:
//
//	accounts := auth.NewAccounts(users, verifier, 12*time.Hour)
//	user, err := accounts.Register(ctx, "alice", "hunter22")
//	token, err := accounts.Login(ctx, "alice", "hunter22")
//
// # JWT Tokens
//
// Tokens are HS256-signed with the configured jwt_secret. The "sub" claim is
// the user id, which is also the owner id of every agent the user creates.
//
// # HTTP
//
// HTTPAuthMiddleware reads "Authorization: Bearer <token>", verifies it,
// confirms the user still exists and stores an AuthContext on the request
// context. Streaming endpoints that cannot set headers pass the token as a
// query parameter and call Authenticate directly.
package auth
