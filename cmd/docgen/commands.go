package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"

	"github.com/dshills/docgen/internal/batch"
	"github.com/dshills/docgen/internal/generator"
	"github.com/dshills/docgen/internal/mcp"
	"github.com/dshills/docgen/internal/render"
	"github.com/dshills/docgen/pkg/types"
)

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "docgen: %v\n", err)
	return exitFailure
}

// requireArgs checks the positional argument count
func requireArgs(fs *pflag.FlagSet, stderr io.Writer, want int, name string) bool {
	if fs.NArg() != want {
		fmt.Fprintf(stderr, "docgen %s: expected %d argument(s), got %d\n", name, want, fs.NArg())
		return false
	}
	return true
}

func runBatch(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("batch", stderr)
	quiet := fs.BoolP("quiet", "q", false, "Suppress per-file progress")
	noSave := fs.Bool("no-save", false, "Do not persist generated documents")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if fs.NArg() > 1 {
		fmt.Fprintf(stderr, "docgen batch: expected at most 1 argument, got %d\n", fs.NArg())
		return exitUsage
	}
	root := "."
	if fs.NArg() == 1 {
		root = fs.Arg(0)
	}

	a, err := newApp(fs, true)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = a.Close() }()

	format, err := batch.ParseReportFormat(a.cfg.Batch.ReportFormat)
	if err != nil {
		return fail(stderr, err)
	}

	ctx, stop := signalContext()
	defer stop()

	engineOpts := []batch.EngineOption{batch.WithLogger(a.logger)}
	if a.cfg.Metrics.Addr != "" {
		reg := prometheus.NewRegistry()
		metrics, err := batch.NewMetrics(reg)
		if err != nil {
			return fail(stderr, err)
		}
		engineOpts = append(engineOpts, batch.WithMetrics(metrics))

		srv := newMetricsServer(a.cfg.Metrics.Addr, reg, a.logger)
		srv.Start()
		defer srv.Shutdown()
	}
	engine := batch.NewEngine(a.gen, engineOpts...)

	opts := a.cfg.BatchOptions()
	opts.Save = !*noSave
	if !*quiet {
		opts.Progress = func(p batch.Progress) {
			fmt.Fprintf(stderr, "[%d/%d] %-7s %s\n", p.Done, p.Total, p.Last.Status, p.Last.Path)
		}
	}

	report, runErr := engine.RunWorkspace(ctx, root, a.cfg.Batch.Include, a.cfg.Batch.Exclude, opts)
	if report != nil {
		if err := report.Write(stdout, format); err != nil {
			return fail(stderr, err)
		}
	}
	if runErr != nil {
		return fail(stderr, runErr)
	}
	if report.Failed > 0 {
		return exitFailure
	}
	return exitOK
}

func runGenerate(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("generate", stderr)
	noSave := fs.Bool("no-save", false, "Do not persist the generated document")
	output := fs.StringP("output", "o", "", "Write documentation to this file instead of stdout")
	language := fs.StringP("language", "l", "", "Source language (default: from extension)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if !requireArgs(fs, stderr, 1, "generate") {
		return exitUsage
	}

	req := generator.FileRequest{Path: fs.Arg(0), Save: !*noSave}
	if *language != "" {
		lang, ok := types.ParseLanguage(*language)
		if !ok {
			return fail(stderr, fmt.Errorf("unsupported language %q", *language))
		}
		req.Language = lang
	}

	a, err := newApp(fs, true)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signalContext()
	defer stop()

	result, err := a.gen.GenerateFile(ctx, req)
	if err != nil {
		return fail(stderr, err)
	}

	if *output != "" {
		if err := os.WriteFile(*output, []byte(result.Content), 0o644); err != nil {
			return fail(stderr, fmt.Errorf("write output: %w", err))
		}
	} else {
		fmt.Fprintln(stdout, result.Content)
	}

	meta := result.Metadata
	if result.DocID != "" {
		fmt.Fprintf(stderr, "saved %s (%d tokens, %.2fs)\n", result.DocID, meta.TokensUsed, meta.GenerationTime)
	} else {
		fmt.Fprintf(stderr, "generated %d tokens in %.2fs\n", meta.TokensUsed, meta.GenerationTime)
	}
	return exitOK
}

func runShow(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("show", stderr)
	raw := fs.Bool("raw", false, "Print the stored content without styling")
	asJSON := fs.Bool("json", false, "Print the full document as JSON")
	style := fs.String("style", "", "Glamour style (dark, light, notty; default: auto)")
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if !requireArgs(fs, stderr, 1, "show") {
		return exitUsage
	}
	id := fs.Arg(0)

	a, err := newApp(fs, false)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = a.Close() }()

	doc, err := a.gen.Get(context.Background(), id)
	if err != nil {
		return fail(stderr, err)
	}
	if doc == nil {
		return fail(stderr, fmt.Errorf("document %s not found", id))
	}

	if *asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fail(stderr, err)
		}
		return exitOK
	}

	var opts []render.Option
	if *raw {
		opts = append(opts, render.WithRaw())
	}
	if *style != "" {
		opts = append(opts, render.WithStyle(*style))
	}
	r, err := render.NewRenderer(stdout, opts...)
	if err != nil {
		return fail(stderr, err)
	}
	if err := r.Document(doc); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

func runList(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("list", stderr)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if !requireArgs(fs, stderr, 1, "list") {
		return exitUsage
	}
	source := fs.Arg(0)

	a, err := newApp(fs, false)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = a.Close() }()

	docs, err := a.gen.List(context.Background(), source)
	if err != nil {
		return fail(stderr, err)
	}
	if len(docs) == 0 {
		fmt.Fprintf(stderr, "no documents for %s\n", source)
		return exitOK
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tMODEL\tTOKENS")
	for _, d := range docs {
		var created, model string
		var tokens int
		if m := d.Metadata; m != nil {
			created = m.CreatedAt.Local().Format(time.DateTime)
			model = m.Model
			tokens = m.TokensUsed
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", d.ID, created, model, tokens)
	}
	if err := tw.Flush(); err != nil {
		return fail(stderr, err)
	}
	return exitOK
}

func runDelete(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("delete", stderr)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}
	if !requireArgs(fs, stderr, 1, "delete") {
		return exitUsage
	}
	id := fs.Arg(0)

	a, err := newApp(fs, false)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = a.Close() }()

	deleted, err := a.gen.Delete(context.Background(), id)
	if err != nil {
		return fail(stderr, err)
	}
	if !deleted {
		return fail(stderr, fmt.Errorf("document %s not found", id))
	}
	fmt.Fprintf(stdout, "deleted %s\n", id)
	return exitOK
}

func runServe(args []string, _, stderr io.Writer) int {
	fs := newFlagSet("serve", stderr)
	if code, ok := parseFlags(fs, args); !ok {
		return code
	}

	a, err := newApp(fs, true)
	if err != nil {
		return fail(stderr, err)
	}
	defer func() { _ = a.Close() }()

	ctx, stop := signalContext()
	defer stop()

	engine := batch.NewEngine(a.gen, batch.WithLogger(a.logger))
	srv := mcp.NewServer(a.gen, engine,
		mcp.WithLogger(a.logger),
		mcp.WithBatchOptions(a.cfg.BatchOptions()))

	if err := srv.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fail(stderr, err)
	}
	return exitOK
}
