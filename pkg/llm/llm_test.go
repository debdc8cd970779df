package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"PowerDesk/pkg/cache"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSONResponse(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"plain JSON unchanged", `{"tariff":"0.12"}`, `{"tariff":"0.12"}`},
		{"strips json fenced block", "```json\n{\"tariff\":\"0.12\"}\n```", `{"tariff":"0.12"}`},
		{"strips plain fenced block", "```\n{\"tariff\":\"0.12\"}\n```", `{"tariff":"0.12"}`},
		{"drops surrounding prose", "Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"keeps arrays", "```json\n[{\"a\":1},{\"a\":2}]\n```", `[{"a":1},{"a":2}]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanJSONResponse(tt.input))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	type terms struct {
		Buyer string `json:"buyer"`
	}
	got, err := DecodeJSON[terms]("```json\n{\"buyer\":\"GridCo\"}\n```")
	require.NoError(t, err)
	assert.Equal(t, "GridCo", got.Buyer)

	_, err = DecodeJSON[terms]("no json here")
	assert.Error(t, err)
}

func TestNewRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Provider: ProviderOpenAI})
	assert.Error(t, err, "missing key")

	_, err = New(Config{Provider: ProviderAzure, APIKey: "k"})
	assert.Error(t, err, "azure without endpoint")

	_, err = New(Config{Provider: "mistral", APIKey: "k"})
	assert.Error(t, err)

	c, err := New(Config{Provider: ProviderAnthropic, APIKey: "k"})
	require.NoError(t, err)
	assert.IsType(t, &AnthropicClient{}, c)
}

func TestOpenAIClientComplete(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",
			"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Buy North at 0.12"}}],
			"usage":{"prompt_tokens":42,"completion_tokens":7,"total_tokens":49}}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "test", Endpoint: srv.URL, MaxRetries: 0})
	out, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hello", MaxTokens: 350})
	require.NoError(t, err)

	assert.Equal(t, "Buy North at 0.12", out.Text)
	assert.Equal(t, ProviderOpenAI, out.Provider)
	assert.EqualValues(t, 42, out.PromptTokens)
	assert.EqualValues(t, 7, out.CompletionTokens)
	assert.EqualValues(t, 350, body["max_tokens"])
	assert.EqualValues(t, 0.4, body["temperature"])
	assert.Len(t, body["messages"], 2)
}

func TestOpenAIClientEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`))
	}))
	defer srv.Close()

	c := NewOpenAIClient(Config{APIKey: "test", Endpoint: srv.URL})
	_, err := c.Complete(context.Background(), Request{Prompt: "hello"})
	assert.True(t, errors.Is(err, ErrEmptyResponse), "got %v", err)
}

func TestAnthropicClientComplete(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v1/messages"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-haiku-latest",
			"content":[{"type":"text","text":"Hold South."}],
			"stop_reason":"end_turn","usage":{"input_tokens":11,"output_tokens":3}}`))
	}))
	defer srv.Close()

	c := NewAnthropicClient(Config{APIKey: "test", Endpoint: srv.URL})
	out, err := c.Complete(context.Background(), Request{System: "sys", Prompt: "hello", MaxTokens: 1000})
	require.NoError(t, err)

	assert.Equal(t, "Hold South.", out.Text)
	assert.EqualValues(t, 11, out.PromptTokens)
	assert.EqualValues(t, 1000, body["max_tokens"])
	assert.NotNil(t, body["system"])
}

type countingCompleter struct{ calls int32 }

func (c *countingCompleter) Complete(_ context.Context, req Request) (Completion, error) {
	atomic.AddInt32(&c.calls, 1)
	return Completion{Text: "answer to " + req.Prompt, Provider: "fake", Model: "m"}, nil
}

type hits struct{ hit, miss int }

func (h *hits) RecordCacheLookup(hit bool) {
	if hit {
		h.hit++
	} else {
		h.miss++
	}
}

func TestCachedCompleterReturnsCachedAnswer(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	next := &countingCompleter{}
	obs := &hits{}
	c := NewCachedCompleter(next, mem, time.Hour, "fake", "m", obs)

	ctx := context.Background()
	first, err := c.Complete(ctx, Request{Prompt: "p1"})
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := c.Complete(ctx, Request{Prompt: "p1"})
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Text, second.Text)

	_, err = c.Complete(ctx, Request{Prompt: "p1", MaxTokens: 1000})
	require.NoError(t, err)

	assert.EqualValues(t, 2, atomic.LoadInt32(&next.calls), "different max tokens is a different key")
	assert.Equal(t, 1, obs.hit)
	assert.Equal(t, 2, obs.miss)
}

func TestCachedCompleterDoesNotCacheErrors(t *testing.T) {
	mem := cache.NewMemoryCache()
	defer mem.Close()
	var calls int
	failing := CompleterFunc(func(context.Context, Request) (Completion, error) {
		calls++
		return Completion{}, errors.New("rate limited")
	})
	c := NewCachedCompleter(failing, mem, time.Hour, "fake", "m", nil)

	_, err := c.Complete(context.Background(), Request{Prompt: "x"})
	assert.Error(t, err)
	_, err = c.Complete(context.Background(), Request{Prompt: "x"})
	assert.Error(t, err)
	assert.Equal(t, 2, calls)
}
