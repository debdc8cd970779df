package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/domain/repository"

	"github.com/redis/go-redis/v9"
)

// RedisDatasetStore keeps each dataset as JSON under
// {prefix}:dataset:{session}:{kind}, a per-session set of kinds and a global
// set of sessions. Every write refreshes the session TTL.
type RedisDatasetStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisDatasetStore(client *redis.Client, prefix string, ttl time.Duration) *RedisDatasetStore {
	return &RedisDatasetStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisDatasetStore) datasetKey(session string, kind models.DatasetKind) string {
	return fmt.Sprintf("%s:dataset:%s:%s", s.prefix, session, kind)
}

func (s *RedisDatasetStore) kindsKey(session string) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, session)
}

func (s *RedisDatasetStore) sessionsKey() string { return s.prefix + ":sessions" }

func (s *RedisDatasetStore) Save(ctx context.Context, d *models.Dataset) error {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode dataset: %w", err)
	}
	kinds, err := s.client.SMembers(ctx, s.kindsKey(d.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("list session kinds: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.datasetKey(d.SessionID, d.Kind), b, s.ttl)
		p.SAdd(ctx, s.kindsKey(d.SessionID), string(d.Kind))
		p.SAdd(ctx, s.sessionsKey(), d.SessionID)
		if s.ttl > 0 {
			p.Expire(ctx, s.kindsKey(d.SessionID), s.ttl)
			for _, k := range kinds {
				p.Expire(ctx, s.datasetKey(d.SessionID, models.DatasetKind(k)), s.ttl)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	return nil
}

func (s *RedisDatasetStore) Get(ctx context.Context, session string, kind models.DatasetKind) (*models.Dataset, error) {
	b, err := s.client.Get(ctx, s.datasetKey(session, kind)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, repository.ErrDatasetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dataset: %w", err)
	}
	var d models.Dataset
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return &d, nil
}

// List returns the session's datasets in DatasetKinds order.
func (s *RedisDatasetStore) List(ctx context.Context, session string) ([]*models.Dataset, error) {
	var out []*models.Dataset
	for _, k := range models.DatasetKinds {
		d, err := s.Get(ctx, session, k)
		if errors.Is(err, repository.ErrDatasetNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func (s *RedisDatasetStore) Delete(ctx context.Context, session string, kind models.DatasetKind) error {
	n, err := s.client.Del(ctx, s.datasetKey(session, kind)).Result()
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	if n == 0 {
		return repository.ErrDatasetNotFound
	}
	return s.client.SRem(ctx, s.kindsKey(session), string(kind)).Err()
}

// Sessions lists live sessions and prunes expired ones from the index.
func (s *RedisDatasetStore) Sessions(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, s.sessionsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var live []string
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.kindsKey(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("session exists: %w", err)
		}
		if n == 0 {
			s.client.SRem(ctx, s.sessionsKey(), id)
			continue
		}
		live = append(live, id)
	}
	sort.Strings(live)
	return live, nil
}

// MemoryDatasetStore is the in-process store used when Redis is not
// configured and in tests.
type MemoryDatasetStore struct {
	mu   sync.RWMutex
	data map[string]map[models.DatasetKind]*memEntry
	ttl  time.Duration
	now  func() time.Time
}

type memEntry struct {
	d       *models.Dataset
	expires time.Time
}

func NewMemoryDatasetStore(ttl time.Duration) *MemoryDatasetStore {
	return &MemoryDatasetStore{data: make(map[string]map[models.DatasetKind]*memEntry), ttl: ttl, now: time.Now}
}

func (s *MemoryDatasetStore) Save(_ context.Context, d *models.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.data[d.SessionID]
	if !ok {
		m = make(map[models.DatasetKind]*memEntry)
		s.data[d.SessionID] = m
	}
	var exp time.Time
	if s.ttl > 0 {
		exp = s.now().Add(s.ttl)
		for _, e := range m {
			e.expires = exp
		}
	}
	cp := *d
	m[d.Kind] = &memEntry{d: &cp, expires: exp}
	return nil
}

func (s *MemoryDatasetStore) live(e *memEntry) bool {
	return e != nil && (e.expires.IsZero() || s.now().Before(e.expires))
}

func (s *MemoryDatasetStore) Get(_ context.Context, session string, kind models.DatasetKind) (*models.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e := s.data[session][kind]
	if !s.live(e) {
		return nil, repository.ErrDatasetNotFound
	}
	cp := *e.d
	return &cp, nil
}

func (s *MemoryDatasetStore) List(ctx context.Context, session string) ([]*models.Dataset, error) {
	var out []*models.Dataset
	for _, k := range models.DatasetKinds {
		if d, err := s.Get(ctx, session, k); err == nil {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *MemoryDatasetStore) Delete(_ context.Context, session string, kind models.DatasetKind) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.data[session][kind]
	if !s.live(e) {
		return repository.ErrDatasetNotFound
	}
	delete(s.data[session], kind)
	return nil
}

func (s *MemoryDatasetStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, m := range s.data {
		alive := false
		for k, e := range m {
			if s.live(e) {
				alive = true
			} else {
				delete(m, k)
			}
		}
		if !alive {
			delete(s.data, id)
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

var (
	_ repository.DatasetStore = (*RedisDatasetStore)(nil)
	_ repository.DatasetStore = (*MemoryDatasetStore)(nil)
)
