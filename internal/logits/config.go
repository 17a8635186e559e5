package logits

import (
	"errors"
	"fmt"
	"math"

	"github.com/invopop/validation"
)

var ErrUnknownStrategy = errors.New("unknown mirostat strategy")

// SamplingConfig controls how a token is drawn from penalised candidates.
// Temperature <= 0 selects greedy decoding and ignores every other field.
type SamplingConfig struct {
	Temperature float32          `json:"temperature" yaml:"temperature"`
	TopK        int              `json:"top_k" yaml:"top_k"`
	TopP        float32          `json:"top_p" yaml:"top_p"`
	TailFreeZ   float32          `json:"tfs_z" yaml:"tfs_z"`
	TypicalP    float32          `json:"typical_p" yaml:"typical_p"`
	Mirostat    MirostatStrategy `json:"mirostat" yaml:"mirostat"`
	MirostatEta float32          `json:"mirostat_eta" yaml:"mirostat_eta"`
	MirostatTau float32          `json:"mirostat_tau" yaml:"mirostat_tau"`
}

func DefaultSamplingConfig() SamplingConfig {
	return SamplingConfig{
		Temperature: 0.8,
		TopK:        40,
		TopP:        0.95,
		TailFreeZ:   1,
		TypicalP:    1,
		Mirostat:    MirostatDisabled,
		MirostatEta: 0.1,
		MirostatTau: 5,
	}
}

func (c SamplingConfig) Greedy() bool { return c.Temperature <= 0 }

// Validate reports every violated constraint as a validation.Errors map keyed
// by field name.
func (c SamplingConfig) Validate() error {
	mirostat := c.Mirostat != MirostatDisabled
	return validation.ValidateStruct(&c,
		validation.Field(&c.Temperature, validation.By(finite)),
		validation.Field(&c.TopK, validation.Min(0)),
		validation.Field(&c.TopP, validation.By(finite), validation.Min(float32(0)), validation.Max(float32(1))),
		validation.Field(&c.TailFreeZ, validation.By(finite), validation.Min(float32(0))),
		validation.Field(&c.TypicalP, validation.By(finite), validation.Min(float32(0))),
		validation.Field(&c.Mirostat, validation.By(func(v any) error {
			if s, _ := v.(MirostatStrategy); !s.Valid() {
				return fmt.Errorf("%w: %d", ErrUnknownStrategy, int(s))
			}
			return nil
		})),
		validation.Field(&c.MirostatEta, validation.When(mirostat, validation.Required, validation.By(finite), validation.Min(float32(0)).Exclusive())),
		validation.Field(&c.MirostatTau, validation.When(mirostat, validation.Required, validation.By(finite), validation.Min(float32(0)).Exclusive())),
	)
}

// PenaltyConfig controls how recent history adjusts raw logits before
// sampling. RepeatLastN of -1 means the whole context window and 0 disables
// both history penalties.
type PenaltyConfig struct {
	RepeatPenalty    float32 `json:"repeat_penalty" yaml:"repeat_penalty"`
	RepeatLastN      int     `json:"repeat_last_n" yaml:"repeat_last_n"`
	PenalizeNewline  bool    `json:"penalize_newline" yaml:"penalize_newline"`
	FrequencyPenalty float32 `json:"frequency_penalty" yaml:"frequency_penalty"`
	PresencePenalty  float32 `json:"presence_penalty" yaml:"presence_penalty"`
}

func DefaultPenaltyConfig() PenaltyConfig {
	return PenaltyConfig{
		RepeatPenalty:   1.1,
		RepeatLastN:     64,
		PenalizeNewline: true,
	}
}

func (c PenaltyConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.RepeatPenalty, validation.Required, validation.By(finite), validation.Min(float32(0)).Exclusive()),
		validation.Field(&c.RepeatLastN, validation.Min(-1)),
		validation.Field(&c.FrequencyPenalty, validation.By(finite)),
		validation.Field(&c.PresencePenalty, validation.By(finite)),
	)
}

func finite(v any) error {
	f, ok := v.(float32)
	if !ok {
		return nil
	}
	if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
		return errors.New("must be a finite number")
	}
	return nil
}
