package api

import (
	"context"

	"github.com/samcharles93/rollout/internal/inference"
	"github.com/samcharles93/rollout/internal/lm"
)

// Service is what the HTTP handlers need from a loaded model.
type Service interface {
	Validate(opts inference.RequestOptions) error
	Generate(ctx context.Context, opts inference.RequestOptions, stream inference.StreamFunc) (*inference.Result, error)
	Tokenize(ctx context.Context, text string, addBOS bool) ([]int, error)
	Detokenize(ctx context.Context, ids []int) (string, bool, error)
	Embed(ctx context.Context, text string) ([]float32, error)
	Info() ModelInfo
}

// InferenceService serves one engine. Every call holds the engine lock, so
// tokenize and embed requests queue behind running generations.
type InferenceService struct {
	engine *inference.EngineImpl
	info   ModelInfo
}

func NewInferenceService(id string, engine *inference.EngineImpl, m *lm.Model) *InferenceService {
	props := m.Properties()
	return &InferenceService{
		engine: engine,
		info: ModelInfo{
			ID:            id,
			Object:        "model",
			OwnedBy:       "local",
			Backend:       props.Name,
			ContextSize:   props.ContextSize,
			VocabSize:     props.VocabSize,
			EmbeddingSize: props.EmbeddingSize,
			Embedding:     m.Params().EmbeddingMode,
		},
	}
}

func (s *InferenceService) Info() ModelInfo { return s.info }

// Validate resolves opts against the engine defaults and checks the result
// without touching the model.
func (s *InferenceService) Validate(opts inference.RequestOptions) error {
	req := inference.ResolveRequest(opts, s.engine.Defaults())
	return lm.ValidateConfigs(req.Sampling, req.Penalty)
}

func (s *InferenceService) Generate(ctx context.Context, opts inference.RequestOptions, stream inference.StreamFunc) (*inference.Result, error) {
	req := inference.ResolveRequest(opts, s.engine.Defaults())
	return s.engine.Generate(ctx, &req, stream)
}

func (s *InferenceService) Tokenize(ctx context.Context, text string, addBOS bool) ([]int, error) {
	var ids []int
	err := s.withModel(ctx, func(m *lm.Model) error {
		var err error
		ids, err = m.Tokenize(text, addBOS)
		return err
	})
	return ids, err
}

func (s *InferenceService) Detokenize(ctx context.Context, ids []int) (string, bool, error) {
	var (
		text string
		ok   bool
	)
	err := s.withModel(ctx, func(m *lm.Model) error {
		var err error
		text, ok, err = m.Detokenize(ids)
		return err
	})
	return text, ok, err
}

func (s *InferenceService) Embed(ctx context.Context, text string) ([]float32, error) {
	var emb []float32
	err := s.withModel(ctx, func(m *lm.Model) error {
		var err error
		emb, err = m.Embed(text)
		return err
	})
	return emb, err
}

func (s *InferenceService) withModel(ctx context.Context, fn func(*lm.Model) error) error {
	return s.engine.WithModel(func(m *lm.Model) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return fn(m)
	})
}
