package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Job handles messages of one type.
type Job interface {
	Name() string
	Type() string
	Handle(ctx context.Context, payload json.RawMessage) error
}

// ExhaustedJob is implemented by jobs that record a final failure once a
// message has used up its retries.
type ExhaustedJob interface {
	Exhausted(ctx context.Context, payload json.RawMessage, err error)
}

// Publisher enqueues messages for a registered job type.
type Publisher interface {
	Enqueue(ctx context.Context, msgType string, payload interface{}) (string, error)
}

type QueueConfig struct {
	Workers    int
	RetryLimit int
	RetryDelay time.Duration
	// JobTimeout bounds a single Handle call; zero means no limit.
	JobTimeout time.Duration
	// PollInterval is the BRPOP block time and the retry scan period.
	PollInterval time.Duration
}

// Message is the envelope stored in Redis.
type Message struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Attempts  int             `json:"attempts"`
	Timestamp time.Time       `json:"timestamp"`
	LastError string          `json:"last_error,omitempty"`
}

// ParsePayload decodes a message payload into T.
func ParsePayload[T any](payload json.RawMessage) (*T, error) {
	var result T
	if err := json.Unmarshal(payload, &result); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}
	return &result, nil
}
