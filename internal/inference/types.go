package inference

import (
	"context"
	"time"

	"github.com/samcharles93/rollout/internal/logits"
)

// StreamFunc receives each non-blank chunk as soon as it decodes.
type StreamFunc func(chunk string)

type Engine interface {
	Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error)
	Close() error
}

type Request struct {
	Prompt string

	// MaxTokens caps generated tokens below the context size when > 0.
	MaxTokens int

	Sampling logits.SamplingConfig
	Penalty  logits.PenaltyConfig

	EchoPrompt bool
	FlushTail  bool
}

type StopReason string

const (
	StopEOS       StopReason = "eos"
	StopLength    StopReason = "length"
	StopCancelled StopReason = "cancelled"
)

type Result struct {
	Text       string
	Tokens     []int
	StopReason StopReason
	Stats      Stats
}

type Stats struct {
	PromptTokens    int
	TokensGenerated int
	Duration        time.Duration
	TPS             float64
}
