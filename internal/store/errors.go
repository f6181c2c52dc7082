// Package store holds the session.Store implementations: in-memory, Redis
// and SQL (PostgreSQL or SQLite).
package store

import "errors"

var (
	ErrDuplicateSession = errors.New("session already exists")
	ErrInvalidSession   = errors.New("invalid session payload")
)
