package memory

import (
	"math"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter measures prompt cost in the unit the budget is configured in.
type TokenCounter interface {
	Count(text string) int
}

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// NewTokenCounter returns a cl100k_base counter, falling back to a chars/4
// heuristic when the codec cannot be loaded.
func NewTokenCounter() TokenCounter {
	if c, err := getCodec(); err == nil {
		return &tiktokenCounter{codec: c}
	}
	return HeuristicCounter{}
}

type tiktokenCounter struct {
	codec tokenizer.Codec
}

func (c *tiktokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ids, _, err := c.codec.Encode(text)
	if err != nil {
		return HeuristicCounter{}.Count(text)
	}
	return len(ids)
}

// HeuristicCounter approximates tokens as ceil(len/4). Deterministic, which
// also makes budget tests independent of the tokenizer data files.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	return int(math.Ceil(float64(len(text)) / 4.0))
}
