package chunker

import (
	"fmt"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer counts tokens in a piece of text.
type Tokenizer interface {
	Count(text string) int
}

// Estimator approximates tokens as characters divided by CharsPerToken.
type Estimator struct {
	CharsPerToken int
}

// Count returns the estimated token count of text.
func (e Estimator) Count(text string) int {
	cpt := e.CharsPerToken
	if cpt <= 0 {
		cpt = 4
	}
	return utf8.RuneCountInString(text) / cpt
}

// DefaultEncoding is the BPE used by current OpenAI embedding models.
const DefaultEncoding = "cl100k_base"

// TikToken counts real BPE tokens.
type TikToken struct {
	enc *tiktoken.Tiktoken
}

// NewTikToken loads the named encoding. The BPE ranks are fetched on first use
// unless TIKTOKEN_CACHE_DIR points at a warm cache.
func NewTikToken(encoding string) (*TikToken, error) {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("load encoding %s: %w", encoding, err)
	}
	return &TikToken{enc: enc}, nil
}

// Count returns the exact token count of text.
func (t *TikToken) Count(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}
