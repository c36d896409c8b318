// Package tokens counts tokens in generated text.
//
// Counts use the model's BPE encoding via tiktoken-go, with the encoding
// tables embedded through the offline loader so no network access is needed.
// Models without a known encoding fall back to a whitespace word count.
package tokens

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

func init() {
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// encoders caches one encoder per model name; nil marks an unknown model
var encoders sync.Map

func encoderFor(model string) *tiktoken.Tiktoken {
	if cached, ok := encoders.Load(model); ok {
		return cached.(*tiktoken.Tiktoken)
	}
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		enc = nil
	}
	actual, _ := encoders.LoadOrStore(model, enc)
	return actual.(*tiktoken.Tiktoken)
}

// Count returns the number of tokens in text under model's encoding, or the
// number of whitespace-separated words when model has no known encoding.
func Count(text, model string) int {
	if text == "" {
		return 0
	}
	if enc := encoderFor(model); enc != nil {
		return len(enc.Encode(text, nil, nil))
	}
	return len(strings.Fields(text))
}

// Known reports whether model has a tokenizer encoding
func Known(model string) bool {
	return encoderFor(model) != nil
}

// Cost returns the estimated monetary cost of n tokens at pricePerK per 1000 tokens
func Cost(n int, pricePerK float64) float64 {
	return float64(n) / 1000 * pricePerK
}
