// Package storage provides SQLite-based persistence for generated documentation.
//
// The storage layer manages:
//   - Generated documents and their generation metadata
//   - Deduplicated prompt text keyed by prompt hash
//   - Optional embedding vectors per document (stored, never queried)
//
// # Database Schema
//
// Tables:
//   - documents: content-addressed documents (id, file_path, content, metadata columns)
//   - prompts: prompt text by SHA-256 hash with a last_used timestamp
//   - embeddings: one vector blob per document, removed with the document
//   - schema_version: applied migration versions
//
// # Document IDs
//
// A document id is the first 20 hex characters of
// sha256(sourcePath + ":" + promptHash). Saving the same file with the same
// prompt therefore overwrites the previous row instead of adding one.
//
// # Basic Usage
//
//	store, err := storage.NewSQLiteStorage("docs.db", storage.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	id, err := store.Save(ctx, content, meta, prompt)
//	doc, err := store.Get(ctx, id)
//	docs, err := store.ListByPath(ctx, "src/app.ts")
//
// # Concurrency
//
// Every operation, reads included, runs under a single mutex and the pool is
// limited to one connection. Close compacts the database with VACUUM; any call
// made after Close returns ErrStoreClosed.
//
// # Build Modes
//
// The default build uses the pure Go modernc.org/sqlite driver. Building with
// -tags sqlite_cgo switches to github.com/mattn/go-sqlite3.
package storage
