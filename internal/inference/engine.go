package inference

import (
	"context"
	"strings"
	"time"

	"github.com/samcharles93/rollout/internal/lm"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/logits"
	"github.com/samcharles93/rollout/internal/metrics"
)

// Model is the part of *lm.Model a decode loop drives.
type Model interface {
	Detokenizer
	Tokenize(text string, addBOS bool) ([]int, error)
	Evaluate(tokens []int) error
	Sample(cfg logits.SamplingConfig, pen logits.PenaltyConfig) (int, error)
	Reset(keep int) error
	ContextSize() int
	EOS() int
	Mu() (float32, bool)
}

// Generator runs one generation session against a Model.
type Generator struct {
	Model    Model
	Sampling logits.SamplingConfig
	Penalty  logits.PenaltyConfig

	// MaxTokens caps the loop below ContextSize when > 0.
	MaxTokens int

	// FlushTail appends trailing whitespace still held by the stream
	// decoder when the run ends. An incomplete final character is dropped.
	FlushTail bool

	Log logger.Logger
}

// Run tokenizes prompt with BOS, evaluates it, then alternates sample and
// evaluate until EOS or the token budget. Chunks reach stream as soon as
// they decode to non-blank text. The model window is reset to empty on
// every return path.
//
// Invalid sampling or penalty configurations fail with lm.ErrConfiguration
// before the prompt is tokenized.
//
// Cancellation is checked between tokens only. A cancelled run returns the
// partial result with StopCancelled and a nil error.
func (g *Generator) Run(ctx context.Context, prompt string, stream StreamFunc) (res *Result, err error) {
	log := g.Log
	if log == nil {
		log = logger.Discard()
	}
	start := time.Now()
	res = &Result{StopReason: StopLength}
	dec := NewStreamDecoder(g.Model)

	defer func() {
		mu, mirostat := g.Model.Mu()
		if rerr := g.Model.Reset(0); rerr != nil && err == nil {
			err = rerr
		}
		if err != nil {
			metrics.RecordError(lm.KindName(err))
			return
		}
		res.Stats.TokensGenerated = len(res.Tokens)
		res.Stats.Duration = time.Since(start)
		if s := res.Stats.Duration.Seconds(); s > 0 {
			res.Stats.TPS = float64(res.Stats.TokensGenerated) / s
		}
		metrics.RecordGeneration(string(res.StopReason), res.Stats.TokensGenerated, res.Stats.Duration)
		log.Debug("generation finished",
			"prompt_tokens", res.Stats.PromptTokens,
			"tokens", res.Stats.TokensGenerated,
			"stop", res.StopReason,
			"tps", res.Stats.TPS,
			"pending_tokens", dec.Pending(),
			"mirostat", mirostat,
			"mirostat_mu", mu,
		)
	}()

	if err := lm.ValidateConfigs(g.Sampling, g.Penalty); err != nil {
		return nil, err
	}
	ids, err := g.Model.Tokenize(prompt, true)
	if err != nil {
		return nil, err
	}
	res.Stats.PromptTokens = len(ids)
	log.Debug("generation started", "prompt_tokens", len(ids))
	if err := g.Model.Evaluate(ids); err != nil {
		return nil, err
	}

	budget := g.Model.ContextSize()
	if g.MaxTokens > 0 && g.MaxTokens < budget {
		budget = g.MaxTokens
	}
	eos := g.Model.EOS()
	var text strings.Builder

	for range budget {
		if ctx.Err() != nil {
			res.StopReason = StopCancelled
			break
		}
		id, err := g.Model.Sample(g.Sampling, g.Penalty)
		if err != nil {
			return nil, err
		}
		if id == eos {
			res.StopReason = StopEOS
			break
		}
		res.Tokens = append(res.Tokens, id)

		chunk, ok, err := dec.Push(id)
		if err != nil {
			return nil, err
		}
		if ok {
			text.WriteString(chunk)
			if stream != nil {
				stream(chunk)
			}
		}

		if err := g.Model.Evaluate([]int{id}); err != nil {
			return nil, err
		}
	}

	if g.FlushTail {
		tail, err := dec.Flush()
		if err != nil {
			return nil, err
		}
		if tail != "" {
			text.WriteString(tail)
			if stream != nil {
				stream(tail)
			}
		}
	}
	res.Text = text.String()
	return res, nil
}
