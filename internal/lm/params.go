package lm

import (
	"errors"
	"math"
	"os"
	"runtime"

	"github.com/invopop/validation"
	"github.com/samcharles93/rollout/internal/backend"
)

const minContextSize = 8

// Params are the load-time settings of a Model.
type Params struct {
	Verbose       bool              `yaml:"verbose" json:"verbose"`
	Backend       string            `yaml:"backend" json:"backend"`
	ModelPath     string            `yaml:"model" json:"model"`
	ContextSize   int               `yaml:"context_size" json:"context_size"`
	BatchSize     int               `yaml:"batch_size" json:"batch_size"`
	Seed          int64             `yaml:"seed" json:"seed"`
	Threads       int               `yaml:"threads" json:"threads"`
	RopeFreqBase  float32           `yaml:"rope_freq_base" json:"rope_freq_base"`
	RopeFreqScale float32           `yaml:"rope_freq_scale" json:"rope_freq_scale"`
	LoraPath      string            `yaml:"lora" json:"lora"`
	LoraBase      string            `yaml:"lora_base" json:"lora_base"`
	EmbeddingMode bool              `yaml:"embedding" json:"embedding"`
	Extra         map[string]string `yaml:"extra" json:"extra"`
}

func DefaultParams() Params {
	return Params{
		Backend:       backend.Auto,
		ContextSize:   512,
		BatchSize:     64,
		Seed:          -1,
		Threads:       DefaultThreads(),
		RopeFreqBase:  10000,
		RopeFreqScale: 1,
	}
}

// DefaultThreads is half the logical CPUs, rounded, and at least one.
func DefaultThreads() int {
	return max(int(math.Round(float64(runtime.NumCPU())/2)), 1)
}

// Validate checks every field, including that ModelPath exists.
func (p Params) Validate() error {
	return p.validate(true)
}

func (p Params) validate(checkPath bool) error {
	err := validation.ValidateStruct(&p,
		validation.Field(&p.ModelPath, validation.When(checkPath, validation.Required, validation.By(fileExists))),
		validation.Field(&p.ContextSize, validation.Required, validation.Min(minContextSize), validation.By(func(any) error {
			if p.ContextSize <= p.BatchSize {
				return errors.New("must be greater than batch_size")
			}
			return nil
		})),
		validation.Field(&p.BatchSize, validation.Required, validation.Min(1)),
		validation.Field(&p.Threads, validation.Required, validation.Min(1)),
		validation.Field(&p.RopeFreqBase, validation.Required, validation.Min(float32(0)).Exclusive()),
		validation.Field(&p.RopeFreqScale, validation.Required, validation.Min(float32(0)).Exclusive()),
		validation.Field(&p.LoraPath, validation.When(checkPath && p.LoraPath != "", validation.By(fileExists))),
		validation.Field(&p.LoraBase, validation.By(func(any) error {
			if p.LoraBase != "" && p.LoraPath == "" {
				return errors.New("requires lora")
			}
			return nil
		})),
	)
	if err != nil {
		return newError(ErrConfiguration, "validate params", err)
	}
	return nil
}

func fileExists(v any) error {
	path, _ := v.(string)
	if _, err := os.Stat(path); err != nil {
		return errors.New("file not found")
	}
	return nil
}

// BackendOptions converts p into the options handed to a backend factory.
func (p Params) BackendOptions() backend.Options {
	return backend.Options{
		ModelPath:     p.ModelPath,
		ContextSize:   p.ContextSize,
		BatchSize:     p.BatchSize,
		Seed:          p.Seed,
		Threads:       p.Threads,
		RopeFreqBase:  p.RopeFreqBase,
		RopeFreqScale: p.RopeFreqScale,
		LoraPath:      p.LoraPath,
		LoraBase:      p.LoraBase,
		EmbeddingMode: p.EmbeddingMode,
		Extra:         p.Extra,
	}
}
