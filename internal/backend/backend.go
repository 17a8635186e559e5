// Package backend defines the contract between the decode engine and the
// component that actually runs the model forward pass.
package backend

import (
	"errors"

	"github.com/samcharles93/rollout/internal/tokenizer"
)

var (
	ErrEval          = errors.New("backend: evaluation failed")
	ErrNotEmbedding  = errors.New("backend: not in embedding mode")
	ErrStateSize     = errors.New("backend: state size mismatch")
	ErrUnknown       = errors.New("backend: unknown backend")
	ErrContextLength = errors.New("backend: position exceeds context")
)

// Properties are fixed for the lifetime of a loaded backend.
type Properties struct {
	Name          string
	ContextSize   int
	VocabSize     int
	EmbeddingSize int
	BOS           int
	EOS           int
	Newline       int
}

// InferenceBackend scores token batches. Evaluate processes tokens as
// positions [past, past+len(tokens)) and discards anything the backend held
// at or after past. Logits then returns the vector for the final position.
//
// Implementations are not safe for concurrent use.
type InferenceBackend interface {
	Properties() Properties
	Evaluate(tokens []int, past, threads int) error
	Logits() []float32
	Embeddings() ([]float32, error)
	StateSize() int
	State() ([]byte, error)
	LoadState(blob []byte) error
	Close() error
}

// PositionLogits is implemented by backends that keep one vector per token
// of the most recent batch, oldest first.
type PositionLogits interface {
	BatchLogits() [][]float32
}

// Shifter is implemented by backends that can drop their oldest positions in
// place. After Shift(keep) the most recent keep positions occupy [0, keep).
// Backends without it are re-fed the kept tokens from position zero.
type Shifter interface {
	Shift(keep int) error
}

// Options are the load-time settings handed to a Factory. Extra carries
// backend-specific keys such as n_gpu_layers untouched.
type Options struct {
	ModelPath     string
	ContextSize   int
	BatchSize     int
	Seed          int64
	Threads       int
	RopeFreqBase  float32
	RopeFreqScale float32
	LoraPath      string
	LoraBase      string
	EmbeddingMode bool
	Extra         map[string]string
}

// Loaded pairs a backend with the tokenizer that matches its vocabulary.
type Loaded struct {
	Backend   InferenceBackend
	Tokenizer tokenizer.Tokenizer
}
