package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/dshills/docgen/internal/completion"
	"github.com/dshills/docgen/internal/config"
	"github.com/dshills/docgen/internal/embedder"
	"github.com/dshills/docgen/internal/generator"
	"github.com/dshills/docgen/internal/prompt"
	"github.com/dshills/docgen/internal/storage"
)

// app holds the components shared by every command
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	gen    *generator.Generator
}

// newFlagSet creates a command flag set carrying the shared config flags
func newFlagSet(name string, stderr io.Writer) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(stderr)
	config.RegisterFlags(fs)
	return fs
}

// parseFlags parses args and reports the exit code to use when parsing stops
// the command.
func parseFlags(fs *pflag.FlagSet, args []string) (int, bool) {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return exitOK, false
		}
		return exitUsage, false
	}
	return exitOK, true
}

// newApp loads configuration and wires logger, store, client and generator.
// Commands that only read the store pass needClient=false so no endpoint
// has to be configured.
func newApp(fs *pflag.FlagSet, needClient bool) (*app, error) {
	cfg, _, err := config.Load(fs)
	if err != nil {
		return nil, err
	}

	logger, err := config.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	builder, err := prompt.NewBuilder(cfg.Prompt.Templates)
	if err != nil {
		return nil, fmt.Errorf("prompt templates: %w", err)
	}

	store, err := storage.NewSQLiteStorage(cfg.Database.Path,
		storage.WithLogger(logger),
		storage.WithCacheSize(cfg.Database.CacheSize))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	var client generator.Completer
	if needClient {
		c, err := completion.NewClient(cfg.ClientConfig(), logger)
		if err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("completion client: %w", err)
		}
		client = c
	}

	genOpts := []generator.Option{
		generator.WithLogger(logger),
		generator.WithPromptBuilder(builder),
		generator.WithDefaults(cfg.GeneratorDefaults()),
	}
	if ec, enabled := cfg.EmbedderConfig(); enabled && needClient {
		emb, err := embedder.New(ec)
		if err != nil {
			_ = store.Close()
			if client != nil {
				_ = client.Close()
			}
			return nil, fmt.Errorf("embedder: %w", err)
		}
		genOpts = append(genOpts, generator.WithEmbedder(emb))
	}

	gen := generator.New(client, store, genOpts...)

	return &app{cfg: cfg, logger: logger, gen: gen}, nil
}

// Close releases the generator and flushes the logger
func (a *app) Close() error {
	err := a.gen.Close()
	_ = a.logger.Sync()
	return err
}
