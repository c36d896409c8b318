package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/docgen/internal/batch"
	"github.com/dshills/docgen/internal/generator"
	"github.com/dshills/docgen/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams       = -32602 // Invalid method parameters
	ErrorCodeInternalError       = -32603 // Internal JSON-RPC error
	ErrorCodePathNotFound        = -32001 // Path does not exist or is not the expected kind
	ErrorCodeRunInProgress       = -32002 // Another batch run is active
	ErrorCodeUnsupportedLanguage = -32003 // File extension has no language mapping
)

const maxBatchWorkers = 64

// handleGenerateDocumentation handles the generate_documentation tool invocation
func (s *Server) handleGenerateDocumentation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := request.RequireString("path")
	if err != nil || path == "" {
		return nil, missingParam("path")
	}
	if err := validateFile(path); err != nil {
		return nil, newMCPError(ErrorCodePathNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	format, err := formatArg(request)
	if err != nil {
		return nil, err
	}

	req := generator.FileRequest{
		Path:         path,
		OutputFormat: format,
		Model:        request.GetString("model", ""),
		Save:         request.GetBool("save", true),
	}
	if args := request.GetArguments(); args["temperature"] != nil {
		temp := request.GetFloat("temperature", 0)
		if temp < 0 || temp > 2 {
			return nil, newMCPError(ErrorCodeInvalidParams, "temperature must be between 0 and 2", map[string]interface{}{
				"param": "temperature",
				"value": temp,
			})
		}
		req.Temperature = &temp
	}

	result, err := s.docs.GenerateFile(ctx, req)
	if err != nil {
		var unsupported *generator.UnsupportedLanguageError
		if errors.As(err, &unsupported) {
			return nil, newMCPError(ErrorCodeUnsupportedLanguage, "unsupported language", map[string]interface{}{
				"path": path,
			})
		}
		s.logger.Error("generate_documentation failed", zap.String("path", path), zap.Error(err))
		return nil, newMCPError(ErrorCodeInternalError, "generation failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(result)), nil
}

// handleBatchGenerate handles the batch_generate tool invocation
func (s *Server) handleBatchGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.engine == nil {
		return nil, newMCPError(ErrorCodeInternalError, "batch engine not configured", nil)
	}

	path, err := request.RequireString("path")
	if err != nil || path == "" {
		return nil, missingParam("path")
	}
	if err := validateDir(path); err != nil {
		return nil, newMCPError(ErrorCodePathNotFound, "invalid path", map[string]interface{}{
			"param":  "path",
			"reason": err.Error(),
		})
	}

	opts := s.batchOpts
	if format, err := formatArg(request); err != nil {
		return nil, err
	} else if format != "" {
		opts.OutputFormat = format
	}

	if workers := request.GetInt("max_workers", 0); workers != 0 {
		if workers < 1 || workers > maxBatchWorkers {
			return nil, newMCPError(ErrorCodeInvalidParams, "max_workers must be between 1 and 64", map[string]interface{}{
				"param": "max_workers",
				"value": workers,
			})
		}
		opts.MaxWorkers = workers
	}
	if secs := request.GetInt("timeout_seconds", 0); secs > 0 {
		opts.Timeout = time.Duration(secs) * time.Second
	}

	include := request.GetStringSlice("include", nil)
	exclude := request.GetStringSlice("exclude", nil)

	report, err := s.engine.RunWorkspace(ctx, path, include, exclude, opts)
	if errors.Is(err, batch.ErrRunInProgress) {
		return nil, newMCPError(ErrorCodeRunInProgress, "a batch run is already in progress", nil)
	}
	if err != nil && report == nil {
		return nil, newMCPError(ErrorCodeInternalError, "batch run failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	response := map[string]interface{}{
		"completed": err == nil,
		"report":    report,
	}
	if err != nil {
		response["error"] = err.Error()
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetDocument handles the get_document tool invocation
func (s *Server) handleGetDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || id == "" {
		return nil, missingParam("id")
	}

	doc, err := s.docs.Get(ctx, id)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get document", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if doc == nil {
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{
			"found": false,
			"id":    id,
		})), nil
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"found":    true,
		"document": doc,
	})), nil
}

// documentSummary is the list_documents row shape
type documentSummary struct {
	ID         string    `json:"id"`
	Model      string    `json:"model,omitempty"`
	TokensUsed int       `json:"tokens_used"`
	CreatedAt  time.Time `json:"created_at"`
}

// handleListDocuments handles the list_documents tool invocation
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sourcePath, err := request.RequireString("source_path")
	if err != nil || sourcePath == "" {
		return nil, missingParam("source_path")
	}

	docs, err := s.docs.List(ctx, sourcePath)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list documents", map[string]interface{}{
			"error": err.Error(),
		})
	}

	summaries := make([]documentSummary, 0, len(docs))
	for _, d := range docs {
		sum := documentSummary{ID: d.ID}
		if d.Metadata != nil {
			sum.Model = d.Metadata.Model
			sum.TokensUsed = d.Metadata.TokensUsed
			sum.CreatedAt = d.Metadata.CreatedAt
		}
		summaries = append(summaries, sum)
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"source_path": sourcePath,
		"count":       len(summaries),
		"documents":   summaries,
	})), nil
}

// handleDeleteDocument handles the delete_document tool invocation
func (s *Server) handleDeleteDocument(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil || id == "" {
		return nil, missingParam("id")
	}

	deleted, err := s.docs.Delete(ctx, id)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to delete document", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"id":      id,
		"deleted": deleted,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	response := map[string]interface{}{
		"server":  ServerName,
		"version": ServerVersion,
	}

	if s.engine != nil {
		batchStatus := map[string]interface{}{
			"state": s.engine.State().String(),
		}
		if last := s.engine.LastReport(); last != nil {
			batchStatus["last_run"] = map[string]interface{}{
				"run_id":             last.RunID,
				"total_files":        last.TotalFiles,
				"succeeded":          last.Succeeded,
				"failed":             last.Failed,
				"skipped":            last.Skipped,
				"total_tokens":       last.TotalTokens,
				"estimated_cost":     last.EstimatedCost,
				"total_time_seconds": last.TotalTimeSeconds,
			}
		}
		response["batch"] = batchStatus
	}

	stats, err := s.docs.Stats(ctx)
	if err != nil {
		response["store"] = map[string]interface{}{
			"accessible": false,
			"error":      err.Error(),
		}
	} else {
		response["store"] = map[string]interface{}{
			"accessible":     true,
			"documents":      stats.Documents,
			"prompts":        stats.Prompts,
			"embeddings":     stats.Embeddings,
			"schema_version": stats.SchemaVersion,
			"build_mode":     stats.BuildMode,
		}
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// formatArg reads the optional format argument
func formatArg(request mcp.CallToolRequest) (types.OutputFormat, error) {
	raw := request.GetString("format", "")
	if raw == "" {
		return "", nil
	}
	format, err := types.ParseOutputFormat(raw)
	if err != nil {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid format", map[string]interface{}{
			"param":   "format",
			"value":   raw,
			"allowed": []string{string(types.FormatMarkdown), string(types.FormatJSON)},
		})
	}
	return format, nil
}

// validateFile checks that path is an absolute, existing regular file
func validateFile(path string) error {
	info, err := statAbs(path)
	if err != nil {
		return err
	}
	if !info.Mode().IsRegular() {
		return ErrNotRegularFile
	}
	return nil
}

// validateDir checks that path is an absolute, readable directory
func validateDir(path string) error {
	info, err := statAbs(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}
	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

func statAbs(path string) (os.FileInfo, error) {
	if !filepath.IsAbs(path) {
		return nil, ErrPathNotAbsolute
	}
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, ErrPathNotFound
	}
	if err != nil {
		return nil, ErrPathNotReadable
	}
	return info, nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// Validation errors

var (
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
	ErrNotRegularFile  = errors.New("path is not a regular file")
)
