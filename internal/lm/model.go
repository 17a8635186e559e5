// Package lm binds an inference backend, its tokenizer and the sampling
// machinery into a single stateful model handle.
//
// A Model owns one context window. It is not safe for concurrent use;
// callers serialise access (inference.Engine holds a mutex per model).
package lm

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/samcharles93/rollout/internal/backend"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/logits"
	"github.com/samcharles93/rollout/internal/metrics"
	"github.com/samcharles93/rollout/internal/tokenizer"
	"github.com/samcharles93/rollout/internal/window"
	"github.com/sethvargo/go-retry"
)

type Model struct {
	params Params
	props  backend.Properties
	log    logger.Logger

	backend backend.InferenceBackend
	tok     tokenizer.Tokenizer

	window    *window.Buffer
	penalizer *logits.Penalizer
	sampler   *logits.Sampler
	history   []int
}

// Load validates p, opens the configured backend and wraps it.
func Load(ctx context.Context, p Params, log logger.Logger) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	loaded, err := backend.Open(ctx, p.Backend, p.BackendOptions())
	if err != nil {
		if errors.Is(err, backend.ErrUnknown) {
			return nil, newError(ErrConfiguration, "load", err)
		}
		return nil, newError(ErrEval, "load", err)
	}
	m, err := New(p, loaded, log)
	if err != nil {
		_ = loaded.Backend.Close()
		return nil, err
	}
	return m, nil
}

// New wraps an already loaded backend. p.ModelPath is not checked here.
// The backend's reported context size is authoritative for the window.
func New(p Params, loaded *backend.Loaded, log logger.Logger) (*Model, error) {
	if loaded == nil || loaded.Backend == nil || loaded.Tokenizer == nil {
		return nil, errorf(ErrConfiguration, "new", "backend and tokenizer are required")
	}
	props := loaded.Backend.Properties()
	p.ContextSize = props.ContextSize
	if err := p.validate(false); err != nil {
		return nil, err
	}
	if props.VocabSize <= 0 {
		return nil, errorf(ErrConfiguration, "new", "backend reports vocabulary size %d", props.VocabSize)
	}
	if tv := loaded.Tokenizer.VocabSize(); tv > props.VocabSize {
		return nil, errorf(ErrConfiguration, "new", "tokenizer vocabulary %d exceeds backend vocabulary %d", tv, props.VocabSize)
	}
	buf, err := window.New(props.ContextSize, props.VocabSize)
	if err != nil {
		return nil, newError(ErrConfiguration, "new", err)
	}
	if log == nil {
		log = logger.Discard()
	}
	log = log.With("backend", props.Name)
	if p.Verbose {
		log.Info("model loaded",
			"context", props.ContextSize,
			"vocab", props.VocabSize,
			"batch", p.BatchSize,
			"threads", p.Threads,
			"embedding", p.EmbeddingMode,
		)
	}
	return &Model{
		params:    p,
		props:     props,
		log:       log,
		backend:   loaded.Backend,
		tok:       loaded.Tokenizer,
		window:    buf,
		penalizer: logits.NewPenalizer(props.Newline, props.ContextSize),
		sampler:   logits.NewSampler(p.Seed),
	}, nil
}

// Tokenize encodes text. The first attempt uses a buffer of ContextSize ids;
// if the tokenizer reports a larger requirement it is retried exactly once
// with a buffer of that size.
func (m *Model) Tokenize(text string, addBOS bool) ([]int, error) {
	buf := make([]int, m.props.ContextSize)
	var n, attempts int
	backoff := retry.WithMaxRetries(1, retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))
	err := retry.Do(context.Background(), backoff, func(context.Context) error {
		attempts++
		got, err := safeEncode(m.tok, text, addBOS, buf)
		var small *tokenizer.BufferTooSmallError
		if errors.As(err, &small) {
			buf = make([]int, small.Required)
			return retry.RetryableError(err)
		}
		if err != nil {
			return err
		}
		n = got
		return nil
	})
	if err != nil {
		return nil, errorf(ErrTokenization, "tokenize", "attempts %d: %w", attempts, err)
	}
	return buf[:n:n], nil
}

// Detokenize concatenates the pieces of ids. ok is false when the bytes are
// not complete UTF-8, which is expected in the middle of a multi-byte
// character.
func (m *Model) Detokenize(ids []int) (text string, ok bool, err error) {
	text, ok, err = tokenizer.Decode(m.tok, ids)
	if err != nil {
		return "", false, newError(ErrTokenization, "detokenize", err)
	}
	return text, ok, nil
}

// Evaluate scores tokens in batches of BatchSize. Before each batch that
// would overflow the window, the oldest positions are evicted so that
// ContextSize - max(batch, ContextSize/2) remain.
func (m *Model) Evaluate(tokens []int) error {
	const op = "evaluate"
	ctxSize := m.props.ContextSize
	for start := 0; start < len(tokens); start += m.params.BatchSize {
		batch := tokens[start:min(start+m.params.BatchSize, len(tokens))]

		if keep, evict := m.window.EvictionKeep(len(batch)); evict {
			if err := m.evict(min(keep, m.window.Len()), len(batch)); err != nil {
				return err
			}
		}
		past := m.window.Len()
		if past+len(batch) > ctxSize-1 {
			return errorf(ErrInvariantViolation, op, "%d past + %d batch exceeds context %d - 1", past, len(batch), ctxSize)
		}

		began := time.Now()
		if err := m.safeEvaluate(batch, past); err != nil {
			return newError(ErrEval, op, err)
		}
		metrics.RecordEvaluation(len(batch), time.Since(began))
		if err := m.store(batch); err != nil {
			return err
		}
	}
	metrics.RecordWindow(m.window.Len())
	return nil
}

func (m *Model) evict(keep, batchLen int) error {
	dropped := m.window.Len() - keep
	if err := m.window.Reset(keep); err != nil {
		return newError(ErrInvariantViolation, "evict", err)
	}
	if err := m.syncBackend(keep); err != nil {
		return newError(ErrEval, "evict", err)
	}
	m.log.Debug("context window evicted", "keep", keep, "dropped", dropped, "batch", batchLen)
	metrics.RecordEviction(dropped)
	return nil
}

// syncBackend makes the backend's cached positions match the window after
// the window kept only its newest keep positions.
func (m *Model) syncBackend(keep int) error {
	if s, ok := m.backend.(backend.Shifter); ok {
		return safeCall("Shift", func() error { return s.Shift(keep) })
	}
	if keep == 0 {
		return nil
	}
	kept := m.window.Tokens()
	for start := 0; start < len(kept); start += m.params.BatchSize {
		end := min(start+m.params.BatchSize, len(kept))
		if err := m.safeEvaluate(kept[start:end], start); err != nil {
			return err
		}
	}
	return nil
}

// store records one logit vector per evaluated token. Backends without
// per-position output repeat their final vector.
func (m *Model) store(batch []int) error {
	var perPos [][]float32
	if pl, ok := m.backend.(backend.PositionLogits); ok {
		if got := pl.BatchLogits(); len(got) == len(batch) {
			perPos = got
		}
	}
	last := m.backend.Logits()
	for i, tok := range batch {
		l := last
		if perPos != nil {
			l = perPos[i]
		}
		if len(l) != m.props.VocabSize {
			return errorf(ErrInvariantViolation, "evaluate", "backend produced %d logits for vocabulary %d", len(l), m.props.VocabSize)
		}
		if err := m.window.Push(tok, l); err != nil {
			return newError(ErrInvariantViolation, "evaluate", err)
		}
	}
	return nil
}

func (m *Model) safeEvaluate(batch []int, past int) error {
	return safeCall("Evaluate", func() error {
		return m.backend.Evaluate(batch, past, m.params.Threads)
	})
}

func safeCall(name string, fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: panic in %s: %v", backend.ErrEval, name, rec)
		}
	}()
	return fn()
}

func safeEncode(tok tokenizer.Tokenizer, text string, addBOS bool, dst []int) (n int, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("panic in Encode: %v", rec)
		}
	}()
	return tok.Encode(text, addBOS, dst)
}

// ValidateConfigs checks both configurations and reports the first failure
// as ErrConfiguration.
func ValidateConfigs(cfg logits.SamplingConfig, pen logits.PenaltyConfig) error {
	const op = "validate sampling"
	if err := cfg.Validate(); err != nil {
		return newError(ErrConfiguration, op, err)
	}
	if err := pen.Validate(); err != nil {
		return newError(ErrConfiguration, op, err)
	}
	return nil
}

// Sample penalises the most recent logits with the window history and draws
// the next token. Both configurations are validated first.
func (m *Model) Sample(cfg logits.SamplingConfig, pen logits.PenaltyConfig) (int, error) {
	const op = "sample"
	if err := ValidateConfigs(cfg, pen); err != nil {
		return -1, err
	}
	last := m.window.Last()
	if last == nil {
		return -1, errorf(ErrInvariantViolation, op, "no logits to sample from; evaluate first")
	}

	began := time.Now()
	m.history = m.window.AppendTokens(m.history[:0])
	c := m.penalizer.Penalize(last, m.history, pen)
	id, err := m.sampler.Sample(c, cfg)
	if err != nil {
		if errors.Is(err, logits.ErrUnknownStrategy) {
			return -1, newError(ErrConfiguration, op, err)
		}
		return -1, newError(ErrInvariantViolation, op, err)
	}
	metrics.RecordSample(strategyLabel(cfg), time.Since(began))
	return id, nil
}

func strategyLabel(cfg logits.SamplingConfig) string {
	if cfg.Greedy() {
		return "greedy"
	}
	return cfg.Mirostat.String()
}

// Reset keeps the newest keep positions. Reset(0) also ends the sampling
// session, so Mirostat starts again from 2*tau.
func (m *Model) Reset(keep int) error {
	if keep < 0 || keep > m.window.Len() {
		return errorf(ErrInvariantViolation, "reset", "keep %d with %d past tokens", keep, m.window.Len())
	}
	if keep == m.window.Len() && keep > 0 {
		return nil
	}
	if err := m.window.Reset(keep); err != nil {
		return newError(ErrInvariantViolation, "reset", err)
	}
	if err := m.syncBackend(keep); err != nil {
		return newError(ErrEval, "reset", err)
	}
	if keep == 0 {
		m.sampler.EndSession()
	}
	metrics.RecordWindow(m.window.Len())
	return nil
}

// Embed evaluates text from an empty window and returns the backend
// embedding. The model must have been loaded with EmbeddingMode.
func (m *Model) Embed(text string) ([]float32, error) {
	const op = "embed"
	if !m.params.EmbeddingMode {
		return nil, errorf(ErrUnsupportedOperation, op, "model was not loaded in embedding mode")
	}
	ids, err := m.Tokenize(text, true)
	if err != nil {
		return nil, err
	}
	if err := m.Reset(0); err != nil {
		return nil, err
	}
	if err := m.Evaluate(ids); err != nil {
		return nil, err
	}
	var emb []float32
	err = safeCall("Embeddings", func() error {
		var err error
		emb, err = m.backend.Embeddings()
		return err
	})
	if errors.Is(err, backend.ErrNotEmbedding) {
		return nil, newError(ErrUnsupportedOperation, op, err)
	}
	if err != nil {
		return nil, newError(ErrEval, op, err)
	}
	return slices.Clone(emb), nil
}

// State returns a copy of the backend's opaque state blob.
func (m *Model) State() ([]byte, error) {
	var blob []byte
	err := safeCall("State", func() error {
		var err error
		blob, err = m.backend.State()
		return err
	})
	if err != nil {
		return nil, newError(ErrEval, "state", err)
	}
	if want := m.backend.StateSize(); len(blob) != want {
		return nil, errorf(ErrInvariantViolation, "state", "backend returned %d bytes, StateSize is %d", len(blob), want)
	}
	return slices.Clone(blob), nil
}

// LoadState restores a blob produced by State. The length is checked before
// the backend sees it. The window is left as it is.
func (m *Model) LoadState(blob []byte) error {
	const op = "load state"
	if want := m.backend.StateSize(); len(blob) != want {
		return errorf(ErrStateSizeMismatch, op, "got %d bytes, want %d", len(blob), want)
	}
	err := safeCall("LoadState", func() error { return m.backend.LoadState(blob) })
	switch {
	case errors.Is(err, backend.ErrStateSize):
		return newError(ErrStateSizeMismatch, op, err)
	case err != nil:
		return newError(ErrEval, op, err)
	}
	m.log.Info("backend state loaded", "bytes", len(blob))
	return nil
}

// Close releases the backend.
func (m *Model) Close() error {
	return m.backend.Close()
}

// NPast is the number of tokens in the window.
func (m *Model) NPast() int { return m.window.Len() }

// InputTokens returns a copy of the window, oldest first.
func (m *Model) InputTokens() []int { return m.window.Tokens() }

// InputLogits returns a copy of the logits stored for window position i.
func (m *Model) InputLogits(i int) ([]float32, error) {
	l, err := m.window.Logits(i)
	if err != nil {
		return nil, newError(ErrInvariantViolation, "input logits", err)
	}
	return slices.Clone(l), nil
}

func (m *Model) ContextSize() int   { return m.props.ContextSize }
func (m *Model) VocabSize() int     { return m.props.VocabSize }
func (m *Model) EmbeddingSize() int { return m.props.EmbeddingSize }
func (m *Model) BOS() int           { return m.props.BOS }
func (m *Model) EOS() int           { return m.props.EOS }
func (m *Model) Newline() int       { return m.props.Newline }

func (m *Model) Params() Params                 { return m.params }
func (m *Model) Properties() backend.Properties { return m.props }
func (m *Model) Tokenizer() tokenizer.Tokenizer { return m.tok }
func (m *Model) StateSize() int                 { return m.backend.StateSize() }

// Mu exposes the sampler's Mirostat state for diagnostics.
func (m *Model) Mu() (float32, bool) { return m.sampler.Mu() }
