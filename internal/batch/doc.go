// Package batch documents many files concurrently and aggregates a run report.
//
// # Pipeline
//
//  1. Discover files under a root (include globs on the base name, exclude
//     globs on any path segment, hidden directories skipped)
//  2. Partition the list into chunks of Options.BatchSize
//  3. Fan each chunk out over at most Options.MaxWorkers goroutines and wait
//     for the chunk before starting the next
//  4. Record one Result per input, in input order, and aggregate the Report
//
// Files with an extension that maps to no language are skipped without
// calling the generator. Generator errors become Failed results; a single
// failure never aborts the run.
//
// # Cancellation
//
// Run honors its context and the optional Options.Timeout. Once the run is
// cancelled, items that have not started are recorded as skipped with
// ReasonCancelled, in-flight items fail with the context error, and Run
// returns the complete report together with the context error.
//
// # Usage
//
//	engine := batch.NewEngine(gen, batch.WithLogger(logger))
//	report, err := engine.RunWorkspace(ctx, "./src", nil, nil, batch.DefaultOptions())
//	if report != nil {
//	    _ = report.Write(os.Stdout, batch.FormatText)
//	}
//
// An Engine runs one batch at a time; a concurrent Run returns ErrRunInProgress.
package batch
