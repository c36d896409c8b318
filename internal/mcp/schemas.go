package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var formatProperty = map[string]interface{}{
	"type":        "string",
	"description": "Documentation output format",
	"enum":        []string{"markdown", "json"},
	"default":     "markdown",
}

// generateDocumentationTool returns the tool definition for generate_documentation
func generateDocumentationTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_documentation",
		Description: "Generate documentation for a single TypeScript, JavaScript, Python, Java or Go source file",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the source file",
				},
				"format": formatProperty,
				"model": map[string]interface{}{
					"type":        "string",
					"description": "Model override",
				},
				"temperature": map[string]interface{}{
					"type":        "number",
					"description": "Sampling temperature override (0.0-2.0)",
					"minimum":     0.0,
					"maximum":     2.0,
				},
				"save": map[string]interface{}{
					"type":        "boolean",
					"description": "If true, persist the result in the document store",
					"default":     true,
				},
			},
			Required: []string{"path"},
		},
	}
}

// batchGenerateTool returns the tool definition for batch_generate
func batchGenerateTool() mcp.Tool {
	return mcp.Tool{
		Name:        "batch_generate",
		Description: "Discover source files under a directory and generate documentation for each of them concurrently",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the workspace root",
				},
				"include": map[string]interface{}{
					"type":        "array",
					"description": "Base-name globs to include (default *.ts, *.tsx, *.js)",
					"items":       map[string]interface{}{"type": "string"},
				},
				"exclude": map[string]interface{}{
					"type":        "array",
					"description": "Globs matched against every path segment to exclude",
					"items":       map[string]interface{}{"type": "string"},
				},
				"format": formatProperty,
				"max_workers": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum concurrent generations (1-64)",
					"minimum":     1,
					"maximum":     64,
				},
				"timeout_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "Overall run deadline in seconds (0 = none)",
					"minimum":     0,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getDocumentTool returns the tool definition for get_document
func getDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_document",
		Description: "Fetch a stored document by ID",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Document ID",
				},
			},
			Required: []string{"id"},
		},
	}
}

// listDocumentsTool returns the tool definition for list_documents
func listDocumentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_documents",
		Description: "List stored documents generated from a source file, newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"source_path": map[string]interface{}{
					"type":        "string",
					"description": "Source path exactly as it was generated",
				},
			},
			Required: []string{"source_path"},
		},
	}
}

// deleteDocumentTool returns the tool definition for delete_document
func deleteDocumentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_document",
		Description: "Delete a stored document and its embedding",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"id": map[string]interface{}{
					"type":        "string",
					"description": "Document ID",
				},
			},
			Required: []string{"id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report batch engine state, the last run summary and document store statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
