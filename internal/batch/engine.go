package batch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/docgen/internal/generator"
	"github.com/dshills/docgen/internal/tokens"
	"github.com/dshills/docgen/pkg/types"
)

// Run defaults
const (
	DefaultMaxWorkers     = 8
	DefaultBatchSize      = 50
	DefaultPricePerKToken = 0.03
)

// ErrRunInProgress is returned when a run is already active on the engine
var ErrRunInProgress = errors.New("batch run already in progress")

// State is the engine lifecycle state
type State int32

const (
	StateIdle State = iota
	StateDiscovering
	StateRunning
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// FileGenerator generates documentation for one file. *generator.Generator implements it.
type FileGenerator interface {
	GenerateFile(ctx context.Context, req generator.FileRequest) (*generator.Result, error)
}

// Progress is reported after each item completes
type Progress struct {
	Done      int
	Total     int
	Succeeded int
	Failed    int
	Skipped   int
	Last      Result
}

// Options configures one run
type Options struct {
	MaxWorkers     int
	BatchSize      int
	OutputFormat   types.OutputFormat
	Model          string
	Temperature    *float64
	PricePerKToken float64       // used as given; zero means a free endpoint
	Timeout        time.Duration // zero means no run deadline
	Save           bool
	Progress       func(Progress)
}

// DefaultOptions returns the reference run configuration
func DefaultOptions() Options {
	return Options{
		MaxWorkers:     DefaultMaxWorkers,
		BatchSize:      DefaultBatchSize,
		OutputFormat:   types.FormatMarkdown,
		PricePerKToken: DefaultPricePerKToken,
		Save:           true,
	}
}

func (o Options) withDefaults() Options {
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = DefaultMaxWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Engine runs batches of documentation generation
type Engine struct {
	gen     FileGenerator
	logger  *zap.Logger
	metrics *Metrics
	guard   runGuard
	state   atomic.Int32
	now     func() time.Time

	mu   sync.Mutex
	last *Report
}

// EngineOption configures an Engine
type EngineOption func(*Engine)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithMetrics records per-item metrics
func WithMetrics(m *Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates an engine that delegates each file to gen
func NewEngine(gen FileGenerator, opts ...EngineOption) *Engine {
	e := &Engine{
		gen:    gen,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.Named("batch")
	return e
}

// State returns the current lifecycle state
func (e *Engine) State() State {
	return State(e.state.Load())
}

// LastReport returns the report of the most recently finished run, if any
func (e *Engine) LastReport() *Report {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

func (e *Engine) setState(s State) {
	e.state.Store(int32(s))
}

// Run documents items and returns the aggregated report. When ctx is
// cancelled or opts.Timeout expires, the full report is returned together
// with the context error.
func (e *Engine) Run(ctx context.Context, items []string, opts Options) (*Report, error) {
	release := e.guard.enter()
	if release == nil {
		return nil, ErrRunInProgress
	}
	defer release()

	return e.run(ctx, items, opts)
}

// RunWorkspace discovers files under root and runs them
func (e *Engine) RunWorkspace(ctx context.Context, root string, include, exclude []string, opts Options) (*Report, error) {
	release := e.guard.enter()
	if release == nil {
		return nil, ErrRunInProgress
	}
	defer release()

	e.setState(StateDiscovering)
	items, err := Discover(root, include, exclude)
	if err != nil {
		e.setState(StateIdle)
		return nil, err
	}
	e.logger.Info("discovered files", zap.String("root", root), zap.Int("count", len(items)))

	return e.run(ctx, items, opts)
}

func (e *Engine) run(ctx context.Context, items []string, opts Options) (*Report, error) {
	opts = opts.withDefaults()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	e.setState(StateRunning)
	defer e.setState(StateCompleted)
	e.metrics.runStarted()

	runID := uuid.NewString()
	start := e.now()
	logger := e.logger.With(zap.String("run_id", runID))
	logger.Info("starting batch run",
		zap.Int("files", len(items)),
		zap.Int("workers", opts.MaxWorkers),
		zap.Int("batch_size", opts.BatchSize))

	results := make([]Result, len(items))
	tracker := &progressTracker{total: len(items), callback: opts.Progress}

	for first := 0; first < len(items); first += opts.BatchSize {
		last := min(first+opts.BatchSize, len(items))
		logger.Debug("processing chunk",
			zap.Int("chunk", first/opts.BatchSize+1),
			zap.Int("files", last-first))

		// Items never abort siblings, so no errgroup context
		var g errgroup.Group
		g.SetLimit(opts.MaxWorkers)
		for i := first; i < last; i++ {
			g.Go(func() error {
				results[i] = e.processItem(ctx, items[i], opts)
				tracker.record(results[i])
				return nil
			})
		}
		_ = g.Wait()
	}

	report := buildReport(runID, results, e.now().Sub(start), opts.PricePerKToken)

	e.mu.Lock()
	e.last = report
	e.mu.Unlock()

	logger.Info("batch run finished",
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
		zap.Int("skipped", report.Skipped),
		zap.Int("tokens", report.TotalTokens),
		zap.Float64("estimated_cost", report.EstimatedCost),
		zap.Float64("seconds", report.TotalTimeSeconds))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// processItem converts one generation outcome into a Result
func (e *Engine) processItem(ctx context.Context, path string, opts Options) Result {
	if ctx.Err() != nil {
		res := Result{Path: path, Status: StatusSkipped, Reason: ReasonCancelled}
		e.metrics.itemFinished(res, 0, false)
		return res
	}

	lang, ok := types.DetectLanguage(path)
	if !ok {
		res := Result{Path: path, Status: StatusSkipped, Reason: ReasonUnsupportedLanguage}
		e.metrics.itemFinished(res, 0, false)
		return res
	}

	e.metrics.itemStarted()
	start := e.now()
	out, err := e.gen.GenerateFile(ctx, generator.FileRequest{
		Path:         path,
		Language:     lang,
		OutputFormat: opts.OutputFormat,
		Model:        opts.Model,
		Temperature:  opts.Temperature,
		Save:         opts.Save,
	})
	elapsed := e.now().Sub(start)

	var res Result
	if err != nil {
		e.logger.Warn("file failed", zap.String("path", path), zap.Error(err))
		res = Result{Path: path, Status: StatusFailed, Error: err.Error()}
	} else {
		res = Result{
			Path:    path,
			Status:  StatusSuccess,
			DocID:   out.DocID,
			Elapsed: elapsed.Seconds(),
		}
		if out.Metadata != nil {
			res.Tokens = out.Metadata.TokensUsed
		}
	}

	e.metrics.itemFinished(res, elapsed, true)
	return res
}

func buildReport(runID string, results []Result, elapsed time.Duration, pricePerK float64) *Report {
	report := &Report{
		RunID:            runID,
		TotalFiles:       len(results),
		TotalTimeSeconds: elapsed.Seconds(),
		Results:          results,
	}
	for _, r := range results {
		switch r.Status {
		case StatusSuccess:
			report.Succeeded++
			report.TotalTokens += r.Tokens
		case StatusFailed:
			report.Failed++
		case StatusSkipped:
			report.Skipped++
		}
	}
	report.EstimatedCost = tokens.Cost(report.TotalTokens, pricePerK)
	return report
}

// progressTracker serializes progress callbacks
type progressTracker struct {
	mu        sync.Mutex
	total     int
	done      int
	succeeded int
	failed    int
	skipped   int
	callback  func(Progress)
}

func (t *progressTracker) record(res Result) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.done++
	switch res.Status {
	case StatusSuccess:
		t.succeeded++
	case StatusFailed:
		t.failed++
	case StatusSkipped:
		t.skipped++
	}

	if t.callback != nil {
		t.callback(Progress{
			Done:      t.done,
			Total:     t.total,
			Succeeded: t.succeeded,
			Failed:    t.failed,
			Skipped:   t.skipped,
			Last:      res,
		})
	}
}
