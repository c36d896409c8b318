package completion

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/docgen/pkg/types"
)

func sseHandler(contents ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for i, c := range contents {
			chunk := map[string]any{
				"id":      fmt.Sprintf("chunk-%d", i),
				"object":  "chat.completion.chunk",
				"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": c}}},
			}
			data, _ := json.Marshal(chunk)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}
}

func newTestClient(t *testing.T, url string, attempts int) *Client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.BaseURL = url
	cfg.Token = "secret-token"
	cfg.Retry = fastRetry(attempts)
	cfg.Timeout = 2 * time.Second

	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(DefaultConfig(), nil)
	assert.ErrorIs(t, err, ErrMissingURL)
}

func TestClient_RequestShape(t *testing.T) {
	var captured *http.Request
	var body []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		body, _ = io.ReadAll(r.Body)
		sseHandler("ok")(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL+"/v1/chat/", 1)

	msg, err := types.NewChatMessage(types.RoleSystem, "document this")
	require.NoError(t, err)

	stream, err := client.StreamCompletion(context.Background(), []types.ChatMessage{msg}, Options{
		Model:       "gpt-4o",
		Temperature: 0.7,
		MaxTokens:   512,
		Extra:       map[string]string{"user": "docgen", "empty": ""},
	})
	require.NoError(t, err)
	_, err = Collect(stream)
	require.NoError(t, err)

	require.NotNil(t, captured)
	assert.Equal(t, http.MethodPost, captured.Method)
	assert.Equal(t, "/v1/chat", captured.URL.Path)
	assert.Equal(t, "application/json", captured.Header.Get("Content-Type"))
	assert.Equal(t, "text/event-stream", captured.Header.Get("Accept"))

	q := captured.URL.Query()
	assert.Equal(t, "gpt-4o", q.Get("model"))
	assert.Equal(t, "true", q.Get("stream"))
	assert.Equal(t, "secret-token", q.Get("token"))
	assert.Equal(t, "false", q.Get("nofeed"))
	assert.Equal(t, "0.7", q.Get("temperature"))
	assert.Equal(t, "512", q.Get("max_tokens"))
	assert.Equal(t, "docgen", q.Get("user"))
	assert.False(t, q.Has("empty"))

	var payload struct {
		Messages []types.ChatMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(body, &payload))
	require.Len(t, payload.Messages, 1)
	assert.Equal(t, types.RoleSystem, payload.Messages[0].Role)
	assert.Equal(t, "document this", payload.Messages[0].Content)
}

func TestClient_DefaultMaxTokens(t *testing.T) {
	var maxTokens atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		maxTokens.Store(r.URL.Query().Get("max_tokens"))
		sseHandler()(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	_, err := client.SimpleCompletion(context.Background(), "p", "m", 0)
	require.NoError(t, err)
	assert.Equal(t, "12000", maxTokens.Load())
}

func TestClient_SimpleCompletionConcatenates(t *testing.T) {
	server := httptest.NewServer(sseHandler("Hello, ", "world!"))
	defer server.Close()

	client := newTestClient(t, server.URL, 1)

	text, err := client.SimpleCompletion(context.Background(), "say hello", "gpt-4o", 0.2)
	require.NoError(t, err)
	assert.Equal(t, "Hello, world!", text)
}

func TestClient_SimpleCompletionZeroChunks(t *testing.T) {
	server := httptest.NewServer(sseHandler())
	defer server.Close()

	client := newTestClient(t, server.URL, 1)

	text, err := client.SimpleCompletion(context.Background(), "anything", "gpt-4o", 0)
	require.NoError(t, err)
	assert.Equal(t, "", text)
}

func TestClient_RetriesTransientStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		sseHandler("done")(w, r)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 5)

	text, err := client.SimpleCompletion(context.Background(), "p", "m", 0)
	require.NoError(t, err)
	assert.Equal(t, "done", text)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_NonRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 5)

	_, err := client.SimpleCompletion(context.Background(), "p", "m", 0)
	require.Error(t, err)

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, http.StatusUnauthorized, te.StatusCode)
	assert.Equal(t, "bad token", te.Body)
	assert.Equal(t, 1, te.Attempts)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RetriesExhausted(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "60")
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 3)

	_, err := client.SimpleCompletion(context.Background(), "p", "m", 0)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, http.StatusTooManyRequests, te.StatusCode)
	assert.Equal(t, 3, te.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Contains(t, te.Error(), "429")
}

func TestClient_NetworkErrorIsTransportError(t *testing.T) {
	server := httptest.NewServer(sseHandler())
	url := server.URL
	server.Close()

	client := newTestClient(t, url, 2)

	_, err := client.SimpleCompletion(context.Background(), "p", "m", 0)

	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 0, te.StatusCode)
	assert.Equal(t, 2, te.Attempts)
	assert.Error(t, te.Unwrap())
}

func TestClient_EmptyMessages(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", 1)
	_, err := client.StreamCompletion(context.Background(), nil, Options{})
	assert.ErrorIs(t, err, ErrEmptyMessages)
}

func TestClient_InvalidRole(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1", 1)
	_, err := client.StreamCompletion(context.Background(), []types.ChatMessage{{Role: "robot", Content: "x"}}, Options{})
	assert.True(t, types.IsValidationError(err))
}

// blockingServer sends one chunk, then holds the connection open until the
// client goes away.
func blockingServer(t *testing.T, released chan<- struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"first\"}}]}\n\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(released)
	}))
}

func TestStream_ContextCancelClosesConnection(t *testing.T) {
	released := make(chan struct{})
	server := blockingServer(t, released)
	defer server.Close()

	client := newTestClient(t, server.URL, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	msg, _ := types.NewChatMessage(types.RoleUser, "hi")
	stream, err := client.StreamCompletion(ctx, []types.ChatMessage{msg}, Options{Model: "m"})
	require.NoError(t, err)

	require.True(t, stream.Next())
	assert.Equal(t, "first", stream.Chunk().Content())

	cancel()
	assert.False(t, stream.Next())
	assert.Error(t, stream.Err())

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection was not released after cancel")
	}
}

func TestStream_CloseReleasesConnection(t *testing.T) {
	released := make(chan struct{})
	server := blockingServer(t, released)
	defer server.Close()

	client := newTestClient(t, server.URL, 1)

	msg, _ := types.NewChatMessage(types.RoleUser, "hi")
	stream, err := client.StreamCompletion(context.Background(), []types.ChatMessage{msg}, Options{Model: "m"})
	require.NoError(t, err)
	require.True(t, stream.Next())

	require.NoError(t, stream.Close())
	assert.NoError(t, stream.Close())

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection was not released after close")
	}
}

func TestClient_RateLimiterCancelled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "http://127.0.0.1:1"
	cfg.Retry = fastRetry(3)
	cfg.RateLimit = 0.001
	cfg.Burst = 1

	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)

	// Consume the single burst token
	client.limiter.Allow()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = client.SimpleCompletion(ctx, "p", "m", 0)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 1, te.Attempts)
}

func TestNewStream_FromRecordedBody(t *testing.T) {
	body := io.NopCloser(strings.NewReader("data: {\"choices\":[{\"delta\":{\"content\":\" recorded \"}}]}\n\ndata: [DONE]\n"))
	text, err := Collect(NewStream(body, nil))
	require.NoError(t, err)
	assert.Equal(t, "recorded", text)
}

func TestClient_StalledBodyIsTransportError(t *testing.T) {
	released := make(chan struct{})
	server := blockingServer(t, released)
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Retry = fastRetry(1)
	cfg.Timeout = 200 * time.Millisecond
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		_, err := client.SimpleCompletion(context.Background(), "p", "m", 0)
		done <- err
	}()

	select {
	case err := <-done:
		var te *TransportError
		require.ErrorAs(t, err, &te)
		assert.ErrorIs(t, err, ErrStalled)
		assert.Equal(t, 1, te.Attempts)
	case <-time.After(3 * time.Second):
		t.Fatal("completion still blocked after the body stalled")
	}

	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("server connection was not released after the stall")
	}
}

func TestClient_SlowSteadyStreamNotCutOff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, c := range []string{"a", "b", "c", "d", "e", "f"} {
			_, _ = fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", c)
			w.(http.Flusher).Flush()
			time.Sleep(100 * time.Millisecond)
		}
		_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer server.Close()

	cfg := DefaultConfig()
	cfg.BaseURL = server.URL
	cfg.Retry = fastRetry(1)
	cfg.Timeout = 300 * time.Millisecond
	client, err := NewClient(cfg, zap.NewNop())
	require.NoError(t, err)
	defer client.Close()

	text, err := client.SimpleCompletion(context.Background(), "p", "m", 0)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", text)
}
