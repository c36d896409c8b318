// Package render prints stored documentation to the terminal.
package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"

	"github.com/dshills/docgen/pkg/types"
)

// DefaultWordWrap is the wrap column used for styled output
const DefaultWordWrap = 100

// Renderer renders markdown to the terminal.
type Renderer struct {
	gr     *glamour.TermRenderer
	writer io.Writer
	raw    bool
}

type settings struct {
	style string
	wrap  int
	raw   bool
}

// Option configures a Renderer
type Option func(*settings)

// WithStyle selects a glamour standard style ("dark", "light", "notty", ...)
// instead of detecting one from the terminal.
func WithStyle(name string) Option {
	return func(s *settings) { s.style = name }
}

// WithWordWrap sets the wrap column
func WithWordWrap(n int) Option {
	return func(s *settings) { s.wrap = n }
}

// WithRaw disables styling; content is written as stored.
func WithRaw() Option {
	return func(s *settings) { s.raw = true }
}

// NewRenderer creates a Renderer writing to the given writer.
// If w is nil, os.Stdout is used.
func NewRenderer(w io.Writer, opts ...Option) (*Renderer, error) {
	if w == nil {
		w = os.Stdout
	}
	s := settings{wrap: DefaultWordWrap}
	for _, opt := range opts {
		opt(&s)
	}
	r := &Renderer{writer: w, raw: s.raw}
	if s.raw {
		return r, nil
	}

	styleOpt := glamour.WithAutoStyle()
	if s.style != "" {
		styleOpt = glamour.WithStandardStyle(s.style)
	}
	gr, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(s.wrap))
	if err != nil {
		return nil, fmt.Errorf("create glamour renderer: %w", err)
	}
	r.gr = gr
	return r, nil
}

// Render renders a complete markdown string to the writer.
func (r *Renderer) Render(markdown string) error {
	if r.raw {
		_, err := io.WriteString(r.writer, markdown)
		return err
	}
	out, err := r.gr.Render(markdown)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = fmt.Fprint(r.writer, out)
	return err
}

// Document renders a stored document: a metadata header followed by the
// body. JSON bodies are indented and fenced.
func (r *Renderer) Document(doc *types.Document) error {
	if doc == nil {
		return fmt.Errorf("render document: nil document")
	}
	if r.raw {
		content := doc.Content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		_, err := io.WriteString(r.writer, content)
		return err
	}
	return r.Render(Header(doc) + "\n" + body(doc.Content))
}

// Header formats document metadata as a markdown table
func Header(doc *types.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.SourcePath)
	b.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(&b, "| ID | `%s` |\n", doc.ID)
	if m := doc.Metadata; m != nil {
		fmt.Fprintf(&b, "| Model | %s |\n", m.Model)
		fmt.Fprintf(&b, "| Tokens | %d |\n", m.TokensUsed)
		fmt.Fprintf(&b, "| Generation time | %.2fs |\n", m.GenerationTime)
		if !m.CreatedAt.IsZero() {
			fmt.Fprintf(&b, "| Created | %s |\n", m.CreatedAt.Local().Format(time.RFC3339))
		}
		if len(m.Dependencies) > 0 {
			fmt.Fprintf(&b, "| Dependencies | %s |\n", strings.Join(m.Dependencies, ", "))
		}
	}
	return b.String()
}

func body(content string) string {
	trimmed := strings.TrimSpace(content)
	if (strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[")) && json.Valid([]byte(trimmed)) {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(trimmed), "", "  "); err == nil {
			return "```json\n" + buf.String() + "\n```\n"
		}
	}
	return content
}
