// Package types provides shared type definitions for docgen.
//
// This package defines the wire and domain types used across the completion
// client, the document store, the generator and the batch engine.
//
// # Chat Messages
//
// ChatMessage carries one role/content pair sent to the completion endpoint.
// Roles are restricted to system, user and assistant:
//
//	msg, err := types.NewChatMessage(types.RoleSystem, prompt)
//	if err != nil {
//	    // err is a *types.ValidationError
//	}
//
// # Completion Chunks
//
// CompletionChunk is one decoded Server-Sent Event from a streaming
// chat completion. Content returns the first choice's delta text and never
// fails on an empty choice list:
//
//	for stream.Next() {
//	    buf.WriteString(stream.Chunk().Content())
//	}
//
// # Documents
//
// Document is a persisted piece of generated documentation. Its ID is derived
// from the source path and the prompt hash, so regenerating the same file with
// the same prompt overwrites the previous record:
//
//	id := types.DocumentID("src/app.ts", types.HashPrompt(prompt))
package types
