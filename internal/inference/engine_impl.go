package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/samcharles93/rollout/internal/lm"
	"github.com/samcharles93/rollout/internal/logger"
	"github.com/samcharles93/rollout/internal/metrics"
)

var ErrClosed = errors.New("inference: engine closed")

// EngineImpl serialises generation sessions and direct model access over a
// single lm.Model.
type EngineImpl struct {
	mu       sync.Mutex
	model    *lm.Model
	defaults GenDefaults
	log      logger.Logger
	closed   bool
}

func NewEngine(m *lm.Model, defaults GenDefaults, log logger.Logger) *EngineImpl {
	if log == nil {
		log = logger.Discard()
	}
	return &EngineImpl{model: m, defaults: defaults, log: log}
}

func (e *EngineImpl) Defaults() GenDefaults { return e.defaults }

func (e *EngineImpl) Close() error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.model.Close()
}

func (e *EngineImpl) Generate(ctx context.Context, req *Request, stream StreamFunc) (*Result, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if req == nil {
		return nil, fmt.Errorf("request is required")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := lm.ValidateConfigs(req.Sampling, req.Penalty); err != nil {
		metrics.RecordError(lm.KindName(err))
		return nil, err
	}

	if req.EchoPrompt && stream != nil && req.Prompt != "" {
		stream(req.Prompt)
	}

	gen := &Generator{
		Model:     e.model,
		Sampling:  req.Sampling,
		Penalty:   req.Penalty,
		MaxTokens: req.MaxTokens,
		FlushTail: req.FlushTail,
		Log:       e.log,
	}
	return gen.Run(ctx, req.Prompt, stream)
}

// WithModel runs fn with exclusive access to the model, for operations such
// as tokenize or embed that are not generation sessions.
func (e *EngineImpl) WithModel(fn func(*lm.Model) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	return fn(e.model)
}
