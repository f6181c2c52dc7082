package session

import (
	"context"

	"github.com/YassineElZaart/learn-chess/internal/domain"
)

// Store persists the session record together with its move log.
//
// Commit must write s (record and log) atomically and only if the stored
// version still equals expectedVersion; on success s.Version is advanced.
// A lost race is reported as domain.ErrConcurrentUpdate and an unknown id
// as domain.ErrSessionNotFound.
type Store interface {
	Create(ctx context.Context, s *domain.Session) error
	Load(ctx context.Context, id string) (*domain.Session, error)
	Commit(ctx context.Context, s *domain.Session, expectedVersion int64) error
	Delete(ctx context.Context, id string) error
	ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Session, error)
}

//go:generate mockgen -source=store.go -destination=mocks/result_sink.go -package=mocks ResultSink Messages

// ResultSink receives sessions that just reached a terminal status.
type ResultSink interface {
	SessionEnded(ctx context.Context, s *domain.Session, reason string) error
}

// Messages renders the client-facing text for an error code.
type Messages interface {
	ErrorMessage(code domain.Error) string
}
