// Package tokenizer counts tokens for chunk metadata and prompt context budgets.
package tokenizer

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// Tokenizer counts tokens in a piece of text.
type Tokenizer interface {
	CountTokens(text string) int
}

// Estimator approximates one token per four bytes. It needs no encoding data.
type Estimator struct{}

// CountTokens returns a rough token estimate, never less than one for non-empty text.
func (Estimator) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	n := len(text) / 4
	if n == 0 {
		n = 1
	}
	return n
}

var modelEncodings = map[string]string{
	"gpt-4o":                 "o200k_base",
	"gpt-4o-mini":            "o200k_base",
	"gpt-4":                  "cl100k_base",
	"gpt-3.5-turbo":          "cl100k_base",
	"text-embedding-3-small": "cl100k_base",
	"text-embedding-3-large": "cl100k_base",
}

// Tiktoken counts tokens with a BPE encoding. The encoding is loaded lazily;
// if it cannot be loaded the count falls back to the Estimator.
type Tiktoken struct {
	encoding string
	logger   *zap.Logger

	once    sync.Once
	enc     *tiktoken.Tiktoken
	initErr error
}

// NewTiktoken picks the encoding for model, defaulting to cl100k_base.
func NewTiktoken(model string, logger *zap.Logger) *Tiktoken {
	if logger == nil {
		logger = zap.NewNop()
	}
	encoding, ok := modelEncodings[model]
	if !ok {
		encoding = "cl100k_base"
	}
	return &Tiktoken{encoding: encoding, logger: logger}
}

func (t *Tiktoken) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("tiktoken unavailable, falling back to estimate", zap.Error(t.initErr))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// CountTokens returns the BPE token count of text.
func (t *Tiktoken) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return Estimator{}.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// TruncateRunes cuts s to at most n runes.
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
