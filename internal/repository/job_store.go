package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"PowerDesk/internal/domain/models"
	"PowerDesk/internal/domain/repository"
	"PowerDesk/pkg/cache"
)

// CacheJobStore keeps job status in a cache.Service for ttl.
type CacheJobStore struct {
	cache cache.Service
	ttl   time.Duration
}

func NewCacheJobStore(c cache.Service, ttl time.Duration) *CacheJobStore {
	return &CacheJobStore{cache: c, ttl: ttl}
}

func jobKey(id string) string { return cache.GenerateKey("job", id) }

func (s *CacheJobStore) Save(ctx context.Context, j *models.Job) error {
	if err := s.cache.Set(ctx, jobKey(j.ID), j, s.ttl); err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

func (s *CacheJobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	var j models.Job
	err := s.cache.Get(ctx, jobKey(id), &j)
	if errors.Is(err, cache.ErrCacheMiss) {
		return nil, repository.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &j, nil
}

var _ repository.JobStore = (*CacheJobStore)(nil)
