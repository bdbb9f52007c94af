package tokenizer

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Tiktoken adapts tiktoken encodings to the Estimator interface.
type Tiktoken struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// modelEncodings maps model names to their tiktoken encoding.
var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// modelPrefixes orders prefix fallback longest-first, so versioned names
// like "gpt-4o-2024-08-06" resolve to their family encoding.
var modelPrefixes = []string{"gpt-4o-mini", "gpt-4-turbo", "gpt-3.5-turbo", "gpt-4o", "gpt-4"}

// NewTiktoken creates a tiktoken-backed estimator for the given model.
// Unknown models fall back to cl100k_base.
func NewTiktoken(model string) *Tiktoken {
	encoding, ok := modelEncodings[model]
	if !ok {
		for _, prefix := range modelPrefixes {
			if strings.HasPrefix(model, prefix) {
				encoding = modelEncodings[prefix]
				ok = true
				break
			}
		}
	}
	if !ok {
		encoding = "cl100k_base"
	}
	return &Tiktoken{encoding: encoding}
}

// init lazily loads the encoding (it can download data on first use).
func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// EstimateTokens returns the exact token count under the configured
// encoding. When the encoding cannot be loaded it falls back to the
// character heuristic rather than failing the assembly path.
func (t *Tiktoken) EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if err := t.init(); err != nil {
		return NewHeuristic().EstimateTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}
