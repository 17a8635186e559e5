package toy

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/samcharles93/rollout/internal/backend"
	"github.com/samcharles93/rollout/internal/tokenizer"
	"gopkg.in/yaml.v3"
)

// Descriptor is the YAML document a toy model path points at.
//
//	hidden: 32
//	context: 4096
//	seed: 7
//	tokenizer: byte            # or a tokenizer.json path relative to this file
type Descriptor struct {
	Vocab           int     `yaml:"vocab"`
	Hidden          int     `yaml:"hidden"`
	Context         int     `yaml:"context"`
	Seed            int64   `yaml:"seed"`
	Decay           float32 `yaml:"decay"`
	EOSBias         float32 `yaml:"eos_bias"`
	Tokenizer       string  `yaml:"tokenizer"`
	TokenizerConfig string  `yaml:"tokenizer_config"`
}

var errLoraUnsupported = errors.New("toy: LoRA adapters are not supported")

func init() {
	backend.Register("toy", Open)
}

func LoadDescriptor(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read toy descriptor: %w", err)
	}
	var d Descriptor
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return Descriptor{}, fmt.Errorf("parse toy descriptor %s: %w", path, err)
	}
	if d.Hidden == 0 {
		d.Hidden = 32
	}
	return d, nil
}

// Open is the backend.Factory for toy models.
func Open(_ context.Context, opts backend.Options) (*backend.Loaded, error) {
	if opts.LoraPath != "" {
		return nil, errLoraUnsupported
	}
	d, err := LoadDescriptor(opts.ModelPath)
	if err != nil {
		return nil, err
	}
	tok, err := d.loadTokenizer(filepath.Dir(opts.ModelPath))
	if err != nil {
		return nil, err
	}

	vocab := d.Vocab
	if vocab == 0 {
		vocab = tok.VocabSize()
	}
	if vocab < tok.VocabSize() {
		return nil, fmt.Errorf("toy: vocab %d smaller than tokenizer vocabulary %d", vocab, tok.VocabSize())
	}
	ctxSize := opts.ContextSize
	if d.Context > 0 && ctxSize > d.Context {
		return nil, fmt.Errorf("toy: context %d exceeds trained context %d", ctxSize, d.Context)
	}

	m, err := New(Config{
		Vocab:         vocab,
		Hidden:        d.Hidden,
		Context:       ctxSize,
		Seed:          d.Seed,
		Decay:         d.Decay,
		EOSBias:       d.EOSBias,
		RopeFreqBase:  opts.RopeFreqBase,
		RopeFreqScale: opts.RopeFreqScale,
		Embedding:     opts.EmbeddingMode,
		Specials:      tok.Specials(),
	})
	if err != nil {
		return nil, err
	}
	return &backend.Loaded{Backend: m, Tokenizer: tok}, nil
}

func (d Descriptor) loadTokenizer(dir string) (tokenizer.Tokenizer, error) {
	switch d.Tokenizer {
	case "", "byte":
		return tokenizer.NewByteTokenizer(), nil
	}
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	return tokenizer.LoadHFTokenizer(resolve(d.Tokenizer), resolve(d.TokenizerConfig))
}
