// Package mcp implements the Model Context Protocol (MCP) server for docgen.
//
// The server exposes documentation generation to AI coding assistants:
//   - generate_documentation: document a single source file
//   - batch_generate: discover and document every matching file under a directory
//   - get_document: fetch a stored document by ID
//   - list_documents: list stored documents for a source path
//   - delete_document: remove a stored document
//   - get_status: batch engine state, last run summary and store statistics
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport. The server is started
// with:
//
//	docgen serve
//
// It reads MCP messages from stdin and writes responses to stdout. Logs go to
// stderr.
//
// # Tool: generate_documentation
//
//	Request:
//	{
//	  "name": "generate_documentation",
//	  "arguments": {
//	    "path": "/work/app/src/user.ts",
//	    "format": "markdown",
//	    "save": true
//	  }
//	}
//
//	Response:
//	{
//	  "content": "# user.ts ...",
//	  "doc_id": "3f0c9a1e2b7d4c5a6e8f",
//	  "metadata": {
//	    "source_path": "/work/app/src/user.ts",
//	    "model": "gpt-4o",
//	    "tokens_used": 812,
//	    "dependencies": ["./db", "zod"]
//	  }
//	}
//
// # Tool: batch_generate
//
//	Request:
//	{
//	  "name": "batch_generate",
//	  "arguments": {
//	    "path": "/work/app",
//	    "include": ["*.ts"],
//	    "max_workers": 4
//	  }
//	}
//
// The response carries the full run report: counts, tokens, estimated cost
// and one result per file in discovery order. Only one batch runs at a time.
//
// # Error Handling
//
// Invalid calls return JSON-RPC errors:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (completion endpoint, database)
//   - -32001: Path does not exist or is the wrong kind
//   - -32002: Batch run already in progress
//   - -32003: Unsupported source language
//
// Lookups of unknown documents are not errors: get_document answers
// {"found": false} and list_documents an empty list.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "docgen": {
//	      "command": "/usr/local/bin/docgen",
//	      "args": ["serve"],
//	      "env": {
//	        "DOCGEN_API_BASE_URL": "https://llm.internal/v1/chat/completions",
//	        "DOCGEN_API_TOKEN": "your-token"
//	      }
//	    }
//	  }
//	}
package mcp
