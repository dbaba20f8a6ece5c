// Package auth provides user accounts, password and OAuth login, and the
// bearer session tokens that identify the caller on every API request.
//
// # Sessions
//
// Tokens are HS256 JWTs whose subject is the user id:
//
//	tm := auth.NewTokenManager(secret, "taskhub", 24*time.Hour)
//	token, expiresAt, err := tm.Issue(user)
//	claims, err := tm.Validate(token)
//
// Service.Authenticate validates a token and loads the user; a token for a
// user that no longer exists fails with USER_NOT_FOUND.
//
// # Login
//
// Passwords are hashed with bcrypt. OAuth logins (see pkg/sso) are mapped to
// users by provider id, then by email, and otherwise create a new account.
// Every login updates the user's counters and a bounded login history.
package auth
