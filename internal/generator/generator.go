// Package generator turns source files into persisted documentation by
// combining prompt construction, a completion stream and the document store.
package generator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dshills/docgen/internal/completion"
	"github.com/dshills/docgen/internal/deps"
	"github.com/dshills/docgen/internal/embedder"
	"github.com/dshills/docgen/internal/prompt"
	"github.com/dshills/docgen/internal/storage"
	"github.com/dshills/docgen/internal/tokens"
	"github.com/dshills/docgen/pkg/types"
)

// Generation defaults
const (
	DefaultModel       = "gpt-4o"
	DefaultTemperature = 0.7
)

var (
	// ErrNoStore is returned when persistence is requested without a store
	ErrNoStore = errors.New("no document store configured")
	// ErrNotRegularFile is returned for directories and other non-regular inputs
	ErrNotRegularFile = errors.New("not a regular file")
)

// Completer opens completion streams. *completion.Client implements it.
type Completer interface {
	StreamCompletion(ctx context.Context, messages []types.ChatMessage, opts completion.Options) (*completion.Stream, error)
	Close() error
}

// Defaults are applied to requests that leave fields empty
type Defaults struct {
	Model        string
	Temperature  float64
	MaxTokens    int
	OutputFormat types.OutputFormat
}

// Result is the outcome of one generation
type Result struct {
	Content  string             `json:"content"`
	Metadata *types.DocMetadata `json:"metadata"`
	DocID    string             `json:"doc_id,omitempty"`
}

// FileRequest asks for documentation of a file on disk
type FileRequest struct {
	Path         string
	Language     types.Language // detected from the extension when empty
	OutputFormat types.OutputFormat
	Model        string
	Temperature  *float64
	Save         bool
}

// Generator orchestrates documentation generation. It is safe for concurrent use.
type Generator struct {
	client   Completer
	store    storage.Storage
	prompts  *prompt.Builder
	embedder embedder.Embedder
	defaults Defaults
	logger   *zap.Logger
	now      func() time.Time

	closeOnce sync.Once
	closeErr  error
}

// Option configures a Generator
type Option func(*Generator)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

// WithPromptBuilder replaces the built-in prompt templates
func WithPromptBuilder(b *prompt.Builder) Option {
	return func(g *Generator) {
		g.prompts = b
	}
}

// WithEmbedder stores an embedding of every saved document. Embedding
// failures are logged and the document is saved without a vector.
func WithEmbedder(e embedder.Embedder) Option {
	return func(g *Generator) {
		g.embedder = e
	}
}

// WithDefaults sets request defaults
func WithDefaults(d Defaults) Option {
	return func(g *Generator) {
		g.defaults = d
	}
}

// New creates a Generator. store may be nil when nothing is persisted.
func New(client Completer, store storage.Storage, opts ...Option) *Generator {
	g := &Generator{
		client: client,
		store:  store,
		defaults: Defaults{
			Model:        DefaultModel,
			Temperature:  DefaultTemperature,
			MaxTokens:    completion.DefaultMaxTokens,
			OutputFormat: types.FormatMarkdown,
		},
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.prompts == nil {
		g.prompts, _ = prompt.NewBuilder(nil)
	}
	if g.defaults.Model == "" {
		g.defaults.Model = DefaultModel
	}
	if g.defaults.OutputFormat == "" {
		g.defaults.OutputFormat = types.FormatMarkdown
	}
	g.logger = g.logger.Named("generator")
	return g
}

// Generate sends req.Prompt as a system message, accumulates the streamed
// content in arrival order and optionally persists the result.
func (g *Generator) Generate(ctx context.Context, req types.GenerationRequest) (*Result, error) {
	if req.Model == "" {
		req.Model = g.defaults.Model
	}
	if req.OutputFormat == "" {
		req.OutputFormat = g.defaults.OutputFormat
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.SaveResult && g.store == nil {
		return nil, ErrNoStore
	}

	msg, err := types.NewChatMessage(types.RoleSystem, req.Prompt)
	if err != nil {
		return nil, err
	}

	g.logger.Info("starting documentation generation",
		zap.String("path", req.SourcePath),
		zap.String("model", req.Model))

	start := g.now()
	content, err := g.drain(ctx, msg, req)
	if err != nil {
		g.logger.Error("documentation generation failed",
			zap.String("path", req.SourcePath),
			zap.Error(err))
		return nil, fmt.Errorf("generate %s: %w", req.SourcePath, err)
	}
	elapsed := g.now().Sub(start)

	meta := &types.DocMetadata{
		SourcePath:     req.SourcePath,
		Model:          req.Model,
		TokensUsed:     tokens.Count(content, req.Model),
		GenerationTime: elapsed.Seconds(),
		Temperature:    req.Temperature,
		Config:         map[string]any{"max_tokens": g.defaults.MaxTokens},
		Dependencies:   req.Dependencies,
		CreatedAt:      g.now(),
	}

	result := &Result{Content: content, Metadata: meta}
	if req.SaveResult {
		id, err := g.store.Save(ctx, content, meta, req.Prompt, g.embed(ctx, req.SourcePath, content)...)
		if err != nil {
			return nil, fmt.Errorf("save %s: %w", req.SourcePath, err)
		}
		result.DocID = id
	}

	g.logger.Info("documentation generated",
		zap.String("path", req.SourcePath),
		zap.Int("tokens", meta.TokensUsed),
		zap.Float64("seconds", meta.GenerationTime),
		zap.String("doc_id", result.DocID))
	return result, nil
}

func (g *Generator) drain(ctx context.Context, msg types.ChatMessage, req types.GenerationRequest) (string, error) {
	stream, err := g.client.StreamCompletion(ctx, []types.ChatMessage{msg}, completion.Options{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   g.defaults.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	defer func() {
		_ = stream.Close()
	}()

	var sb strings.Builder
	for stream.Next() {
		sb.WriteString(stream.Chunk().Content())
	}
	if err := stream.Err(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

func (g *Generator) embed(ctx context.Context, path, content string) []storage.SaveOption {
	if g.embedder == nil || content == "" {
		return nil
	}
	vec, err := g.embedder.Embed(ctx, content)
	if err != nil {
		g.logger.Warn("embedding failed, saving without vector",
			zap.String("path", path),
			zap.String("provider", g.embedder.Provider()),
			zap.Error(err))
		return nil
	}
	return []storage.SaveOption{storage.WithVector(vec)}
}

// GenerateFile reads req.Path, builds the prompt for its language and generates.
func (g *Generator) GenerateFile(ctx context.Context, req FileRequest) (*Result, error) {
	if req.Path == "" {
		return nil, &types.ValidationError{Field: "source_path", Err: types.ErrEmptySourcePath}
	}

	lang := req.Language
	if lang == "" {
		detected, ok := types.DetectLanguage(req.Path)
		if !ok {
			return nil, &UnsupportedLanguageError{Path: req.Path}
		}
		lang = detected
	}

	format := req.OutputFormat
	if format == "" {
		format = g.defaults.OutputFormat
	}

	code, err := readSource(req.Path)
	if err != nil {
		return nil, err
	}

	p, err := g.prompts.Build(string(code), lang, format)
	if err != nil {
		return nil, fmt.Errorf("build prompt for %s: %w", req.Path, err)
	}

	temperature := g.defaults.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	return g.Generate(ctx, types.GenerationRequest{
		Prompt:       p,
		SourcePath:   req.Path,
		Model:        req.Model,
		Temperature:  temperature,
		OutputFormat: format,
		SaveResult:   req.Save,
		Dependencies: deps.Extract(req.Path, code, lang),
	})
}

// readSource reads a regular file. Missing and non-regular paths wrap os.ErrNotExist.
func readSource(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("invalid file %s: %w", path, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("invalid file %s: %w: %w", path, ErrNotRegularFile, os.ErrNotExist)
	}
	code, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return code, nil
}

// Get returns a stored document, or nil when it does not exist
func (g *Generator) Get(ctx context.Context, id string) (*types.Document, error) {
	if g.store == nil {
		return nil, ErrNoStore
	}
	doc, err := g.store.Get(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// List returns the stored documents for a source path, newest first
func (g *Generator) List(ctx context.Context, sourcePath string) ([]*types.Document, error) {
	if g.store == nil {
		return nil, ErrNoStore
	}
	docs, err := g.store.ListByPath(ctx, sourcePath)
	if errors.Is(err, storage.ErrNotFound) {
		return []*types.Document{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list documents for %s: %w", sourcePath, err)
	}
	return docs, nil
}

// Delete removes a stored document
func (g *Generator) Delete(ctx context.Context, id string) (bool, error) {
	if g.store == nil {
		return false, ErrNoStore
	}
	deleted, err := g.store.Delete(ctx, id)
	if err != nil {
		return false, fmt.Errorf("delete document %s: %w", id, err)
	}
	return deleted, nil
}

// Stats reports store counts
func (g *Generator) Stats(ctx context.Context) (*storage.Stats, error) {
	if g.store == nil {
		return nil, ErrNoStore
	}
	return g.store.Stats(ctx)
}

// Defaults returns the request defaults in effect
func (g *Generator) Defaults() Defaults {
	return g.defaults
}

// Close closes the client and the store exactly once
func (g *Generator) Close() error {
	g.closeOnce.Do(func() {
		var errs []error
		if g.client != nil {
			errs = append(errs, g.client.Close())
		}
		if g.embedder != nil {
			errs = append(errs, g.embedder.Close())
		}
		if g.store != nil {
			errs = append(errs, g.store.Close())
		}
		g.closeErr = errors.Join(errs...)
	})
	return g.closeErr
}

// UnsupportedLanguageError reports a file whose extension has no language mapping
type UnsupportedLanguageError struct {
	Path string
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language for %s", e.Path)
}
