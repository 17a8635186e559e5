package inference

import "github.com/samcharles93/rollout/internal/logits"

// RequestOptions carries per-request overrides. Nil fields fall back to the
// defaults passed to ResolveRequest.
type RequestOptions struct {
	Prompt    string `json:"prompt" yaml:"prompt"`
	MaxTokens *int   `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`

	Temperature *float32                 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	TopK        *int                     `json:"top_k,omitempty" yaml:"top_k,omitempty"`
	TopP        *float32                 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	TailFreeZ   *float32                 `json:"tfs_z,omitempty" yaml:"tfs_z,omitempty"`
	TypicalP    *float32                 `json:"typical_p,omitempty" yaml:"typical_p,omitempty"`
	Mirostat    *logits.MirostatStrategy `json:"mirostat,omitempty" yaml:"mirostat,omitempty"`
	MirostatEta *float32                 `json:"mirostat_eta,omitempty" yaml:"mirostat_eta,omitempty"`
	MirostatTau *float32                 `json:"mirostat_tau,omitempty" yaml:"mirostat_tau,omitempty"`

	RepeatPenalty    *float32 `json:"repeat_penalty,omitempty" yaml:"repeat_penalty,omitempty"`
	RepeatLastN      *int     `json:"repeat_last_n,omitempty" yaml:"repeat_last_n,omitempty"`
	PenalizeNewline  *bool    `json:"penalize_newline,omitempty" yaml:"penalize_newline,omitempty"`
	FrequencyPenalty *float32 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float32 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`

	EchoPrompt *bool `json:"echo,omitempty" yaml:"echo,omitempty"`
	FlushTail  *bool `json:"flush_tail,omitempty" yaml:"flush_tail,omitempty"`
}

// GenDefaults are the engine-wide generation settings.
type GenDefaults struct {
	MaxTokens int                   `yaml:"max_tokens"`
	Sampling  logits.SamplingConfig `yaml:"sampling"`
	Penalty   logits.PenaltyConfig  `yaml:"penalty"`
}

func DefaultGenDefaults() GenDefaults {
	return GenDefaults{
		Sampling: logits.DefaultSamplingConfig(),
		Penalty:  logits.DefaultPenaltyConfig(),
	}
}

// ResolveRequest applies opts over defaults. Values are not validated here;
// Generate rejects invalid configurations before touching the model.
func ResolveRequest(opts RequestOptions, defaults GenDefaults) Request {
	req := Request{
		Prompt:    opts.Prompt,
		MaxTokens: defaults.MaxTokens,
		Sampling:  defaults.Sampling,
		Penalty:   defaults.Penalty,
	}

	set(&req.MaxTokens, opts.MaxTokens)
	set(&req.EchoPrompt, opts.EchoPrompt)
	set(&req.FlushTail, opts.FlushTail)

	s := &req.Sampling
	set(&s.Temperature, opts.Temperature)
	set(&s.TopK, opts.TopK)
	set(&s.TopP, opts.TopP)
	set(&s.TailFreeZ, opts.TailFreeZ)
	set(&s.TypicalP, opts.TypicalP)
	set(&s.Mirostat, opts.Mirostat)
	set(&s.MirostatEta, opts.MirostatEta)
	set(&s.MirostatTau, opts.MirostatTau)

	p := &req.Penalty
	set(&p.RepeatPenalty, opts.RepeatPenalty)
	set(&p.RepeatLastN, opts.RepeatLastN)
	set(&p.PenalizeNewline, opts.PenalizeNewline)
	set(&p.FrequencyPenalty, opts.FrequencyPenalty)
	set(&p.PresencePenalty, opts.PresencePenalty)

	return req
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}
