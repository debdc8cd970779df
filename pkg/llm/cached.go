package llm

import (
	"context"
	"strconv"
	"time"

	"PowerDesk/pkg/cache"
)

// CacheObserver is notified of every lookup; metrics.Recorder satisfies it.
type CacheObserver interface {
	RecordCacheLookup(hit bool)
}

// CachedCompleter memoizes completions of identical requests.
type CachedCompleter struct {
	next     Completer
	cache    cache.Service
	ttl      time.Duration
	provider string
	model    string
	observer CacheObserver
}

// NewCachedCompleter wraps next. provider and model are part of the key so a
// config change never serves stale answers.
func NewCachedCompleter(next Completer, c cache.Service, ttl time.Duration, provider, model string, obs CacheObserver) *CachedCompleter {
	return &CachedCompleter{next: next, cache: c, ttl: ttl, provider: provider, model: model, observer: obs}
}

func (c *CachedCompleter) Complete(ctx context.Context, req Request) (Completion, error) {
	req = req.withDefaults()
	key := c.key(req)

	var hit Completion
	err := c.cache.Get(ctx, key, &hit)
	if err == nil {
		c.observe(true)
		hit.Cached = true
		return hit, nil
	}
	// any cache failure falls through to the provider
	c.observe(false)

	out, err := c.next.Complete(ctx, req)
	if err != nil {
		return Completion{}, err
	}
	_ = c.cache.Set(ctx, key, out, c.ttl)
	return out, nil
}

func (c *CachedCompleter) key(req Request) string {
	return cache.GenerateKey("llm", c.provider, cache.HashKey(
		c.model,
		req.System,
		req.Prompt,
		strconv.Itoa(req.MaxTokens),
		strconv.FormatFloat(req.Temperature, 'f', -1, 64),
	))
}

func (c *CachedCompleter) observe(hit bool) {
	if c.observer != nil {
		c.observer.RecordCacheLookup(hit)
	}
}
