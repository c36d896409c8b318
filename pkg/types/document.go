package types

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"maps"
	"slices"
	"time"
)

// DocumentIDLength is the number of hex characters kept from the id digest
const DocumentIDLength = 20

// OutputFormat selects the shape of generated documentation
type OutputFormat string

const (
	FormatMarkdown OutputFormat = "markdown"
	FormatJSON     OutputFormat = "json"
)

// ParseOutputFormat validates s as an OutputFormat
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(s); f {
	case FormatMarkdown, FormatJSON:
		return f, nil
	default:
		return "", &ValidationError{Field: "output_format", Value: s, Err: ErrInvalidOutputFormat}
	}
}

// GenerationRequest describes one documentation generation call
type GenerationRequest struct {
	Prompt       string
	SourcePath   string
	Model        string
	Temperature  float64
	OutputFormat OutputFormat
	SaveResult   bool
	Dependencies []string
}

// Validate checks the request fields that can be checked locally
func (r *GenerationRequest) Validate() error {
	if r.SourcePath == "" {
		return &ValidationError{Field: "source_path", Err: ErrEmptySourcePath}
	}
	if _, err := ParseOutputFormat(string(r.OutputFormat)); err != nil {
		return err
	}
	return nil
}

// DocMetadata describes a completed generation.
// PromptHash is set by the store when the document is persisted.
type DocMetadata struct {
	SourcePath     string         `json:"source_path" yaml:"source_path"`
	Model          string         `json:"model" yaml:"model"`
	TokensUsed     int            `json:"tokens_used" yaml:"tokens_used"`
	GenerationTime float64        `json:"generation_time_seconds" yaml:"generation_time_seconds"`
	PromptHash     string         `json:"prompt_hash" yaml:"prompt_hash"`
	Temperature    float64        `json:"temperature" yaml:"temperature"`
	Config         map[string]any `json:"config" yaml:"config"`
	Dependencies   []string       `json:"dependencies" yaml:"dependencies"`
	CreatedAt      time.Time      `json:"created_at" yaml:"created_at"`
}

// Clone returns a deep copy of the metadata
func (m *DocMetadata) Clone() *DocMetadata {
	if m == nil {
		return nil
	}
	c := *m
	c.Config = maps.Clone(m.Config)
	c.Dependencies = slices.Clone(m.Dependencies)
	return &c
}

// Document is a persisted generation result
type Document struct {
	ID         string       `json:"id" yaml:"id"`
	SourcePath string       `json:"source_path" yaml:"source_path"`
	Content    string       `json:"content" yaml:"content"`
	Metadata   *DocMetadata `json:"metadata" yaml:"metadata"`
	Prompt     string       `json:"prompt" yaml:"prompt"`
}

// Clone returns a deep copy of the document
func (d *Document) Clone() *Document {
	if d == nil {
		return nil
	}
	c := *d
	c.Metadata = d.Metadata.Clone()
	return &c
}

// HashPrompt returns the hex SHA-256 digest of a prompt
func HashPrompt(prompt string) string {
	h := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(h[:])
}

// DocumentID derives the content-addressed id for a (sourcePath, promptHash) pair
func DocumentID(sourcePath, promptHash string) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%s", sourcePath, promptHash)))
	return hex.EncodeToString(h[:])[:DocumentIDLength]
}
