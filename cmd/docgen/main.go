// Command docgen generates source documentation through a streaming
// chat-completion endpoint and stores the results in SQLite.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dshills/docgen/internal/mcp"
	"github.com/dshills/docgen/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

// Exit codes
const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

const usage = `Usage: docgen <command> [flags] [args]

Commands:
  batch [root]       Generate documentation for every matching file under root (default ".")
  generate <file>    Generate documentation for one file
  show <id>          Render a stored document
  list <source>      List stored documents for a source path
  delete <id>        Delete a stored document
  serve              Run the MCP server on stdio
  version            Print version information

Run "docgen <command> --help" for command flags.
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return exitUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "batch":
		return runBatch(rest, stdout, stderr)
	case "generate":
		return runGenerate(rest, stdout, stderr)
	case "show":
		return runShow(rest, stdout, stderr)
	case "list":
		return runList(rest, stdout, stderr)
	case "delete":
		return runDelete(rest, stdout, stderr)
	case "serve":
		return runServe(rest, stdout, stderr)
	case "version", "--version":
		printVersion(stdout)
		return exitOK
	case "help", "-h", "--help":
		fmt.Fprint(stdout, usage)
		return exitOK
	default:
		fmt.Fprintf(stderr, "docgen: unknown command %q\n\n%s", cmd, usage)
		return exitUsage
	}
}

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "docgen %s\n", version)
	fmt.Fprintf(w, "Build Time: %s\n", buildTime)
	fmt.Fprintf(w, "Build Mode: %s\n", storage.BuildMode)
	fmt.Fprintf(w, "SQLite Driver: %s\n", storage.DriverName)
	fmt.Fprintf(w, "MCP Server: %s %s\n", mcp.ServerName, mcp.ServerVersion)
}
