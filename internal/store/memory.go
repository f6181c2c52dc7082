package store

import (
    "context"
    "sort"
    "strings"
    "sync"

    "github.com/YassineElZaart/learn-chess/internal/domain"
)

// Memory is an in-process store used for development and tests.
// Every read and write goes through a deep copy.
type Memory struct {
    mu       sync.RWMutex
    sessions map[string]*domain.Session
}

func NewMemory() *Memory {
    return &Memory{sessions: make(map[string]*domain.Session)}
}

func (m *Memory) Create(ctx context.Context, s *domain.Session) error {
    if s == nil || strings.TrimSpace(s.ID) == "" {
        return ErrInvalidSession
    }
    m.mu.Lock()
    defer m.mu.Unlock()
    if _, exists := m.sessions[s.ID]; exists {
        return ErrDuplicateSession
    }
    m.sessions[s.ID] = s.Clone()
    return nil
}

func (m *Memory) Load(ctx context.Context, id string) (*domain.Session, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    s, ok := m.sessions[strings.TrimSpace(id)]
    if !ok {
        return nil, domain.ErrSessionNotFound
    }
    return s.Clone(), nil
}

func (m *Memory) Commit(ctx context.Context, s *domain.Session, expectedVersion int64) error {
    if s == nil {
        return ErrInvalidSession
    }
    m.mu.Lock()
    defer m.mu.Unlock()
    cur, ok := m.sessions[s.ID]
    if !ok {
        return domain.ErrSessionNotFound
    }
    if cur.Version != expectedVersion {
        return domain.ErrConcurrentUpdate
    }
    next := s.Clone()
    next.Version = expectedVersion + 1
    m.sessions[s.ID] = next
    s.Version = next.Version
    return nil
}

func (m *Memory) Delete(ctx context.Context, id string) error {
    m.mu.Lock()
    delete(m.sessions, strings.TrimSpace(id))
    m.mu.Unlock()
    return nil
}

func (m *Memory) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Session, error) {
    playerID = strings.TrimSpace(playerID)
    m.mu.RLock()
    var items []*domain.Session
    for _, s := range m.sessions {
        if _, seated := s.SeatOf(playerID); seated {
            items = append(items, s.Clone())
        }
    }
    m.mu.RUnlock()
    sortRecent(items)
    if limit > 0 && len(items) > limit {
        items = items[:limit]
    }
    return items, nil
}

// sortRecent orders sessions by UpdatedAt desc, then ID.
func sortRecent(items []*domain.Session) {
    sort.Slice(items, func(i, j int) bool {
        if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
            return items[i].UpdatedAt.After(items[j].UpdatedAt)
        }
        return items[i].ID < items[j].ID
    })
}

// IDs lists every stored session id in lexical order.
func (m *Memory) IDs(ctx context.Context) ([]string, error) {
    m.mu.RLock()
    ids := make([]string, 0, len(m.sessions))
    for id := range m.sessions {
        ids = append(ids, id)
    }
    m.mu.RUnlock()
    sort.Strings(ids)
    return ids, nil
}
