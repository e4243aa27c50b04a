package session

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter measures how much prompt budget a retrieved context uses.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts BPE tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base". The BPE
// ranks are fetched on first use, so this can fail without network access.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// WordEstimate approximates tokens as four thirds of the word count.
type WordEstimate struct{}

func (WordEstimate) Count(text string) int {
	n := len(strings.Fields(text))
	return (n*4 + 2) / 3
}
