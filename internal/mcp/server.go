package mcp

import (
	"context"
	"io"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/docgen/internal/batch"
	"github.com/dshills/docgen/internal/generator"
	"github.com/dshills/docgen/internal/storage"
	"github.com/dshills/docgen/pkg/types"
)

const (
	// ServerName is the MCP server name
	ServerName = "docgen"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Documents is the generation and document store surface used by the tools.
// *generator.Generator satisfies it.
type Documents interface {
	GenerateFile(ctx context.Context, req generator.FileRequest) (*generator.Result, error)
	Get(ctx context.Context, id string) (*types.Document, error)
	List(ctx context.Context, sourcePath string) ([]*types.Document, error)
	Delete(ctx context.Context, id string) (bool, error)
	Stats(ctx context.Context) (*storage.Stats, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp       *server.MCPServer
	docs      Documents
	engine    *batch.Engine
	batchOpts batch.Options
	logger    *zap.Logger
}

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server logger. Logs must not go to stdout.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBatchOptions sets the base options for batch_generate runs
func WithBatchOptions(opts batch.Options) Option {
	return func(s *Server) { s.batchOpts = opts }
}

// NewServer creates a new MCP server instance
func NewServer(docs Documents, engine *batch.Engine, opts ...Option) *Server {
	s := &Server{
		docs:      docs,
		engine:    engine,
		batchOpts: batch.DefaultOptions(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("mcp")

	s.mcp = server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)
	s.mcp.AddTools(s.tools()...)

	return s
}

// Serve runs the MCP server on stdio and blocks until ctx is done or stdin closes
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs the MCP protocol over the given streams
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(zap.NewStdLog(s.logger))
	s.logger.Info("MCP server started", zap.String("version", ServerVersion))
	return stdio.Listen(ctx, in, out)
}

// tools lists every registered tool with its handler
func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: generateDocumentationTool(), Handler: s.handleGenerateDocumentation},
		{Tool: batchGenerateTool(), Handler: s.handleBatchGenerate},
		{Tool: getDocumentTool(), Handler: s.handleGetDocument},
		{Tool: listDocumentsTool(), Handler: s.handleListDocuments},
		{Tool: deleteDocumentTool(), Handler: s.handleDeleteDocument},
		{Tool: getStatusTool(), Handler: s.handleGetStatus},
	}
}
