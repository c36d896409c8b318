// Package embedder turns generated documentation into vector embeddings that
// are stored next to each document in the embeddings table.
//
// Two providers exist:
//   - http: any OpenAI-compatible /embeddings endpoint
//   - local: a deterministic hash-derived vector, useful offline and in tests
//
// Both cache vectors by content hash in an LRU cache.
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider: embedder.ProviderHTTP,
//	    BaseURL:  "https://llm.internal/v1/embeddings",
//	    Token:    token,
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	vec, err := emb.Embed(ctx, doc.Content)
package embedder
