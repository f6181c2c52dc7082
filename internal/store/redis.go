package store

import (
    "context"
    "encoding/json"
    "errors"
    "fmt"
    "net/url"
    "sort"
    "strconv"
    "strings"
    "time"

    "github.com/redis/go-redis/v9"
    "go.uber.org/zap"

    "github.com/YassineElZaart/learn-chess/internal/domain"
    "github.com/YassineElZaart/learn-chess/internal/obslog"
)

// Redis keeps one JSON document per session and a per-player index set.
// Commits are guarded by WATCH on the session key.
type Redis struct {
    rdb *redis.Client
    ttl time.Duration
}

func NewRedis(rdb *redis.Client, ttl time.Duration) *Redis {
    return &Redis{rdb: rdb, ttl: ttl}
}

// OpenRedis connects to redisURL (redis:// or rediss://) and pings it.
func OpenRedis(ctx context.Context, redisURL string, ttl time.Duration) (*Redis, error) {
    if strings.TrimSpace(redisURL) == "" { return nil, fmt.Errorf("REDIS_URL required for redis store") }
    opts, err := ParseRedisURL(redisURL)
    if err != nil { return nil, err }
    rdb := redis.NewClient(opts)
    if err := rdb.Ping(ctx).Err(); err != nil {
        _ = rdb.Close()
        return nil, fmt.Errorf("redis ping: %w", err)
    }
    return NewRedis(rdb, ttl), nil
}

func (r *Redis) Close() error {
    if r == nil || r.rdb == nil { return nil }
    return r.rdb.Close()
}

func (r *Redis) Create(ctx context.Context, s *domain.Session) error {
    if s == nil || strings.TrimSpace(s.ID) == "" { return ErrInvalidSession }
    raw, err := json.Marshal(s)
    if err != nil { return err }
    ok, err := r.rdb.SetNX(ctx, sessionKey(s.ID), raw, r.ttl).Result()
    if err != nil { return err }
    if !ok { return ErrDuplicateSession }
    return r.indexPlayers(ctx, r.rdb, s)
}

func (r *Redis) Load(ctx context.Context, id string) (*domain.Session, error) {
    raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
    if err == redis.Nil { return nil, domain.ErrSessionNotFound }
    if err != nil { return nil, err }
    return decodeSession(raw)
}

// Commit rewrites the session document if its stored version still equals
// expectedVersion. A key touched between WATCH and EXEC is a lost race too.
func (r *Redis) Commit(ctx context.Context, s *domain.Session, expectedVersion int64) error {
    if s == nil { return ErrInvalidSession }
    key := sessionKey(s.ID)
    next := s.Clone()
    next.Version = expectedVersion + 1

    err := r.rdb.Watch(ctx, func(tx *redis.Tx) error {
        raw, err := tx.Get(ctx, key).Bytes()
        if err == redis.Nil { return domain.ErrSessionNotFound }
        if err != nil { return err }
        cur, err := decodeSession(raw)
        if err != nil { return err }
        if cur.Version != expectedVersion { return domain.ErrConcurrentUpdate }

        newRaw, err := json.Marshal(next)
        if err != nil { return err }
        pipe := tx.TxPipeline()
        pipe.Set(ctx, key, newRaw, r.ttl)
        if err := r.indexPlayers(ctx, pipe, next); err != nil { return err }
        _, err = pipe.Exec(ctx)
        return err
    }, key)
    if errors.Is(err, redis.TxFailedErr) { return domain.ErrConcurrentUpdate }
    if err != nil { return err }
    s.Version = next.Version
    return nil
}

func (r *Redis) Delete(ctx context.Context, id string) error {
    s, err := r.Load(ctx, id)
    if errors.Is(err, domain.ErrSessionNotFound) { return nil }
    if err != nil { return err }
    pipe := r.rdb.TxPipeline()
    pipe.Del(ctx, sessionKey(s.ID))
    for _, p := range []*domain.Participant{s.White, s.Black} {
        if p != nil { pipe.SRem(ctx, playerIndexKey(p.ID), s.ID) }
    }
    _, err = pipe.Exec(ctx)
    return err
}

func (r *Redis) ListByPlayer(ctx context.Context, playerID string, limit int) ([]*domain.Session, error) {
    playerID = strings.TrimSpace(playerID)
    if playerID == "" { return nil, nil }
    idxKey := playerIndexKey(playerID)
    ids, err := r.rdb.SMembers(ctx, idxKey).Result()
    if err != nil { return nil, err }
    var items []*domain.Session
    for _, id := range ids {
        s, err := r.Load(ctx, id)
        if errors.Is(err, domain.ErrSessionNotFound) {
            // expired session, drop the stale index entry
            _ = r.rdb.SRem(ctx, idxKey, id).Err()
            continue
        }
        if err != nil { return nil, err }
        if _, seated := s.SeatOf(playerID); seated { items = append(items, s) }
    }
    sortRecent(items)
    if limit > 0 && len(items) > limit { items = items[:limit] }
    return items, nil
}

func (r *Redis) indexPlayers(ctx context.Context, c redis.Cmdable, s *domain.Session) error {
    for _, p := range []*domain.Participant{s.White, s.Black} {
        if p == nil || strings.TrimSpace(p.ID) == "" { continue }
        key := playerIndexKey(p.ID)
        if err := c.SAdd(ctx, key, s.ID).Err(); err != nil { return err }
        if r.ttl > 0 {
            if err := c.Expire(ctx, key, r.ttl).Err(); err != nil {
                obslog.L().Warn("store_index_expire_error", zap.String("key", key), zap.Error(err))
            }
        }
    }
    return nil
}

func decodeSession(raw []byte) (*domain.Session, error) {
    var s domain.Session
    if err := json.Unmarshal(raw, &s); err != nil { return nil, fmt.Errorf("decode session: %w", err) }
    return &s, nil
}

func sessionKey(id string) string { return "chess:session:" + strings.TrimSpace(id) }
func playerIndexKey(playerID string) string { return "chess:index:player:" + strings.TrimSpace(playerID) }

// ParseRedisURL turns redis://[:password@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
    u, err := url.Parse(strings.TrimSpace(raw))
    if err != nil { return nil, err }
    if u.Scheme != "redis" && u.Scheme != "rediss" { return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme) }
    db := 0
    if p := strings.TrimPrefix(u.Path, "/"); p != "" {
        n, err := strconv.Atoi(p)
        if err != nil { return nil, fmt.Errorf("invalid redis db %q", p) }
        db = n
    }
    pass, _ := u.User.Password()
    return &redis.Options{Addr: u.Host, Username: u.User.Username(), Password: pass, DB: db}, nil
}

// IDs scans the keyspace for session records.
func (r *Redis) IDs(ctx context.Context) ([]string, error) {
    var ids []string
    iter := r.rdb.Scan(ctx, 0, sessionKey("*"), 200).Iterator()
    for iter.Next(ctx) {
        ids = append(ids, strings.TrimPrefix(iter.Val(), sessionKey("")))
    }
    if err := iter.Err(); err != nil {
        return nil, fmt.Errorf("scan sessions: %w", err)
    }
    sort.Strings(ids)
    return ids, nil
}
