package batch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/docgen/internal/completion"
	"github.com/dshills/docgen/internal/generator"
	"github.com/dshills/docgen/pkg/types"
)

// mockGenerator records calls and tracks peak concurrency
type mockGenerator struct {
	mu       sync.Mutex
	calls    []generator.FileRequest
	failures map[string]error
	delays   map[string]time.Duration
	tokens   int
	block    chan struct{}
	started  chan string

	active    atomic.Int32
	maxActive atomic.Int32
}

func (m *mockGenerator) GenerateFile(ctx context.Context, req generator.FileRequest) (*generator.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	err := m.failures[req.Path]
	delay := m.delays[req.Path]
	m.mu.Unlock()

	n := m.active.Add(1)
	defer m.active.Add(-1)
	for {
		peak := m.maxActive.Load()
		if n <= peak || m.maxActive.CompareAndSwap(peak, n) {
			break
		}
	}

	if m.started != nil {
		m.started <- req.Path
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err != nil {
		return nil, err
	}
	return &generator.Result{
		Content:  "docs for " + req.Path,
		DocID:    "doc-" + filepath.Base(req.Path),
		Metadata: &types.DocMetadata{SourcePath: req.Path, TokensUsed: m.tokens},
	}, nil
}

func (m *mockGenerator) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func newTestEngine(gen FileGenerator) *Engine {
	return NewEngine(gen, WithLogger(zap.NewNop()))
}

func TestRun_OneTransportFailure(t *testing.T) {
	gen := &mockGenerator{
		tokens: 100,
		failures: map[string]error{
			"src/b.ts": &completion.TransportError{StatusCode: 503, Body: "unavailable", Attempts: 15},
		},
	}
	engine := newTestEngine(gen)

	report, err := engine.Run(context.Background(), []string{"src/a.ts", "src/b.ts", "src/c.ts"}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 3, report.TotalFiles)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 200, report.TotalTokens)
	assert.NotEmpty(t, report.RunID)

	require.Len(t, report.Results, 3)
	failed := report.Results[1]
	assert.Equal(t, "src/b.ts", failed.Path)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Contains(t, failed.Error, "503")

	assert.Equal(t, StatusSuccess, report.Results[0].Status)
	assert.Equal(t, "doc-a.ts", report.Results[0].DocID)
	assert.Equal(t, 100, report.Results[0].Tokens)
	assert.Equal(t, StateCompleted, engine.State())
	assert.Same(t, report, engine.LastReport())
}

func TestRun_UnsupportedLanguageSkippedWithoutCall(t *testing.T) {
	gen := &mockGenerator{}
	engine := newTestEngine(gen)

	report, err := engine.Run(context.Background(), []string{"README.md", "Makefile"}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 0, gen.callCount())
	assert.Equal(t, 2, report.Skipped)
	for _, r := range report.Results {
		assert.Equal(t, StatusSkipped, r.Status)
		assert.Equal(t, ReasonUnsupportedLanguage, r.Reason)
	}
}

func TestRun_PassesLanguageAndOptions(t *testing.T) {
	gen := &mockGenerator{}
	engine := newTestEngine(gen)

	temp := 0.3
	opts := DefaultOptions()
	opts.Model = "gpt-4o-mini"
	opts.Temperature = &temp
	opts.OutputFormat = types.FormatJSON

	_, err := engine.Run(context.Background(), []string{"tool.py"}, opts)
	require.NoError(t, err)

	require.Len(t, gen.calls, 1)
	call := gen.calls[0]
	assert.Equal(t, types.LanguagePython, call.Language)
	assert.Equal(t, "gpt-4o-mini", call.Model)
	assert.Equal(t, &temp, call.Temperature)
	assert.Equal(t, types.FormatJSON, call.OutputFormat)
	assert.True(t, call.Save)
}

func TestRun_ResultsFollowInputOrder(t *testing.T) {
	items := make([]string, 8)
	delays := make(map[string]time.Duration)
	for i := range items {
		items[i] = fmt.Sprintf("f%d.ts", i)
		// Earlier items finish last
		delays[items[i]] = time.Duration(len(items)-i) * 5 * time.Millisecond
	}

	engine := newTestEngine(&mockGenerator{delays: delays})
	opts := DefaultOptions()
	opts.MaxWorkers = 8

	report, err := engine.Run(context.Background(), items, opts)
	require.NoError(t, err)

	for i, r := range report.Results {
		assert.Equal(t, items[i], r.Path)
	}
}

func TestRun_WorkerLimit(t *testing.T) {
	items := make([]string, 12)
	delays := make(map[string]time.Duration)
	for i := range items {
		items[i] = fmt.Sprintf("f%d.js", i)
		delays[items[i]] = 10 * time.Millisecond
	}

	gen := &mockGenerator{delays: delays}
	opts := DefaultOptions()
	opts.MaxWorkers = 3

	report, err := newTestEngine(gen).Run(context.Background(), items, opts)
	require.NoError(t, err)
	assert.Equal(t, 12, report.Succeeded)
	assert.LessOrEqual(t, gen.maxActive.Load(), int32(3))
}

func TestRun_ChunkBoundsInFlight(t *testing.T) {
	items := make([]string, 9)
	delays := make(map[string]time.Duration)
	for i := range items {
		items[i] = fmt.Sprintf("f%d.ts", i)
		delays[items[i]] = 10 * time.Millisecond
	}

	gen := &mockGenerator{delays: delays}
	opts := DefaultOptions()
	opts.MaxWorkers = 10
	opts.BatchSize = 2

	report, err := newTestEngine(gen).Run(context.Background(), items, opts)
	require.NoError(t, err)
	assert.Equal(t, 9, report.Succeeded)
	assert.LessOrEqual(t, gen.maxActive.Load(), int32(2))
}

func TestRun_CostEstimate(t *testing.T) {
	engine := newTestEngine(&mockGenerator{tokens: 1000})

	report, err := engine.Run(context.Background(), []string{"a.ts", "b.ts", "c.ts"}, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 3000, report.TotalTokens)
	assert.InDelta(t, 0.09, report.EstimatedCost, 1e-9)

	opts := DefaultOptions()
	opts.PricePerKToken = 0.5
	report, err = engine.Run(context.Background(), []string{"a.ts"}, opts)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, report.EstimatedCost, 1e-9)
}

func TestRun_ZeroPriceIsFree(t *testing.T) {
	engine := newTestEngine(&mockGenerator{tokens: 1000})

	opts := DefaultOptions()
	opts.PricePerKToken = 0
	report, err := engine.Run(context.Background(), []string{"a.ts", "b.ts"}, opts)
	require.NoError(t, err)
	assert.Equal(t, 2000, report.TotalTokens)
	assert.Equal(t, 0.0, report.EstimatedCost)
}

func TestRun_ProgressCallback(t *testing.T) {
	var updates []Progress
	opts := DefaultOptions()
	opts.MaxWorkers = 4
	opts.Progress = func(p Progress) {
		updates = append(updates, p)
	}

	gen := &mockGenerator{failures: map[string]error{"b.ts": errors.New("boom")}}
	_, err := newTestEngine(gen).Run(context.Background(), []string{"a.ts", "b.ts", "c.md"}, opts)
	require.NoError(t, err)

	require.Len(t, updates, 3)
	for i, u := range updates {
		assert.Equal(t, i+1, u.Done)
		assert.Equal(t, 3, u.Total)
	}
	final := updates[2]
	assert.Equal(t, 1, final.Succeeded)
	assert.Equal(t, 1, final.Failed)
	assert.Equal(t, 1, final.Skipped)
}

func TestRun_EmptyItems(t *testing.T) {
	report, err := newTestEngine(&mockGenerator{}).Run(context.Background(), nil, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, 0, report.TotalFiles)
	assert.Empty(t, report.Results)
	assert.Equal(t, 0.0, report.EstimatedCost)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	gen := &mockGenerator{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := newTestEngine(gen).Run(ctx, []string{"a.ts", "b.ts"}, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, report)

	assert.Equal(t, 0, gen.callCount())
	assert.Equal(t, 2, report.Skipped)
	for _, r := range report.Results {
		assert.Equal(t, ReasonCancelled, r.Reason)
	}
}

func TestRun_TimeoutSkipsPendingItems(t *testing.T) {
	gen := &mockGenerator{block: make(chan struct{})}
	opts := DefaultOptions()
	opts.MaxWorkers = 1
	opts.BatchSize = 1
	opts.Timeout = 50 * time.Millisecond

	report, err := newTestEngine(gen).Run(context.Background(), []string{"a.ts", "b.ts", "c.ts"}, opts)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, report)

	assert.Equal(t, 1, gen.callCount())
	assert.Equal(t, StatusFailed, report.Results[0].Status)
	assert.Contains(t, report.Results[0].Error, "deadline")
	assert.Equal(t, StatusSkipped, report.Results[1].Status)
	assert.Equal(t, ReasonCancelled, report.Results[1].Reason)
	assert.Equal(t, StatusSkipped, report.Results[2].Status)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Skipped)
}

func TestRun_ConcurrentRunRejected(t *testing.T) {
	gen := &mockGenerator{block: make(chan struct{}), started: make(chan string, 1)}
	engine := newTestEngine(gen)
	assert.Equal(t, StateIdle, engine.State())

	done := make(chan error, 1)
	go func() {
		_, err := engine.Run(context.Background(), []string{"a.ts"}, DefaultOptions())
		done <- err
	}()

	<-gen.started
	assert.Equal(t, StateRunning, engine.State())

	_, err := engine.Run(context.Background(), []string{"b.ts"}, DefaultOptions())
	assert.ErrorIs(t, err, ErrRunInProgress)

	_, err = engine.RunWorkspace(context.Background(), t.TempDir(), nil, nil, DefaultOptions())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(gen.block)
	require.NoError(t, <-done)
	assert.Equal(t, StateCompleted, engine.State())

	// Lock released after the run
	_, err = engine.Run(context.Background(), []string{"c.ts"}, DefaultOptions())
	assert.NoError(t, err)
}

func TestRunWorkspace(t *testing.T) {
	root := t.TempDir()
	for _, f := range []string{"src/a.ts", "src/b.js", "node_modules/lib/index.js", "src/a.test.ts"} {
		path := filepath.Join(root, f)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte("export {}"), 0o644))
	}

	gen := &mockGenerator{}
	report, err := newTestEngine(gen).RunWorkspace(context.Background(), root, nil, nil, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalFiles)
	assert.Equal(t, filepath.Join(root, "src/a.ts"), report.Results[0].Path)
	assert.Equal(t, filepath.Join(root, "src/b.js"), report.Results[1].Path)
}

func TestRunWorkspace_DiscoveryError(t *testing.T) {
	engine := newTestEngine(&mockGenerator{})
	_, err := engine.RunWorkspace(context.Background(), filepath.Join(t.TempDir(), "missing"), nil, nil, DefaultOptions())
	assert.Error(t, err)
	assert.Equal(t, StateIdle, engine.State())
}

func TestRun_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)

	gen := &mockGenerator{tokens: 10, failures: map[string]error{"b.ts": errors.New("boom")}}
	engine := NewEngine(gen, WithMetrics(metrics))

	_, err = engine.Run(context.Background(), []string{"a.ts", "b.ts", "c.txt"}, DefaultOptions())
	require.NoError(t, err)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.filesTotal.WithLabelValues("success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.filesTotal.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.filesTotal.WithLabelValues("skipped")))
	assert.Equal(t, 10.0, testutil.ToFloat64(metrics.tokensTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.runsTotal))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.inFlight))

	// Registering twice reuses the existing collectors
	again, err := NewMetrics(reg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(again.runsTotal))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "discovering", StateDiscovering.String())
	assert.Equal(t, "running", StateRunning.String())
	assert.Equal(t, "completed", StateCompleted.String())
	assert.Equal(t, "state(9)", State(9).String())
}
