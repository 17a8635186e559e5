package logits

import (
	"fmt"
	"math/rand"
	"time"
)

// Sampler picks the next token from a candidate set. It owns the random
// source and the Mirostat state of one generation session, so a Sampler
// must not be shared between concurrent sessions.
type Sampler struct {
	rng      *rand.Rand
	mirostat MirostatState
}

// NewSampler seeds the random source. A negative seed uses the clock.
func NewSampler(seed int64) *Sampler {
	if seed < 0 {
		seed = time.Now().UnixNano()
	}
	return &Sampler{rng: rand.New(rand.NewSource(seed))}
}

// Sample draws one token id. With Temperature <= 0 it returns the argmax
// and ignores the rest of cfg. Otherwise the strategy decides the pipeline:
//
//   - DISABLED: top-k, tail-free, typical, top-p, temperature, draw.
//   - V1/V2: temperature, then Mirostat, updating mu for the next call.
//
// The candidate set is consumed.
func (s *Sampler) Sample(c *Candidates, cfg SamplingConfig) (int, error) {
	if !cfg.Mirostat.Valid() {
		return -1, fmt.Errorf("%w: %d", ErrUnknownStrategy, int(cfg.Mirostat))
	}
	if c.Len() == 0 {
		return -1, fmt.Errorf("sample: empty candidate set")
	}
	if cfg.Greedy() {
		return argmax(c), nil
	}

	switch cfg.Mirostat {
	case MirostatV1:
		vocab := c.Len()
		s.mirostat.Begin(cfg.MirostatTau)
		Temperature(c, cfg.Temperature)
		return mirostatV1(c, vocab, cfg.MirostatTau, cfg.MirostatEta, &s.mirostat, s.rng), nil
	case MirostatV2:
		s.mirostat.Begin(cfg.MirostatTau)
		Temperature(c, cfg.Temperature)
		return mirostatV2(c, cfg.MirostatTau, cfg.MirostatEta, &s.mirostat, s.rng), nil
	}

	TopK(c, cfg.TopK, 1)
	TailFree(c, cfg.TailFreeZ, 1)
	Typical(c, cfg.TypicalP, 1)
	TopP(c, cfg.TopP, 1)
	Temperature(c, cfg.Temperature)
	return c.Data[draw(c, s.rng)].ID, nil
}

// Mu reports the current Mirostat mu and whether a session has started.
func (s *Sampler) Mu() (float32, bool) {
	return s.mirostat.Mu, s.mirostat.Active()
}

// EndSession clears Mirostat state so the next session starts from 2*tau.
func (s *Sampler) EndSession() {
	s.mirostat.Reset()
}
