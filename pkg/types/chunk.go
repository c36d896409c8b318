package types

// CompletionChunk is one decoded event of a streaming chat completion
type CompletionChunk struct {
	ID                  string           `json:"id"`
	Object              string           `json:"object"`
	Created             int64            `json:"created"`
	Model               string           `json:"model"`
	Choices             []ChunkChoice    `json:"choices"`
	SystemFingerprint   string           `json:"system_fingerprint,omitempty"`
	PromptFilterResults []map[string]any `json:"prompt_filter_results,omitempty"`
}

// ChunkChoice is a single choice within a streamed chunk.
// FinishReason is nil for intermediate chunks.
type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
}

// ChunkDelta holds the incremental content of a choice
type ChunkDelta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Content returns the first choice's delta content, or "" when there is none
func (c *CompletionChunk) Content() string {
	if c == nil || len(c.Choices) == 0 {
		return ""
	}
	if c.Choices[0].Delta.Content == nil {
		return ""
	}
	return *c.Choices[0].Delta.Content
}

// IsFinished reports whether the first choice carries a finish reason
func (c *CompletionChunk) IsFinished() bool {
	if c == nil || len(c.Choices) == 0 {
		return false
	}
	fr := c.Choices[0].FinishReason
	return fr != nil && *fr != ""
}
