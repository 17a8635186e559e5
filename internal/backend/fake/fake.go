// Package fake provides a scripted InferenceBackend for tests.
package fake

import (
	"encoding/binary"
	"fmt"

	"github.com/samcharles93/rollout/internal/backend"
)

// Call records one Evaluate invocation.
type Call struct {
	Tokens  []int
	Past    int
	Threads int
}

// Backend computes logits with Next, which sees every token evaluated so far
// including the current position. Failures can be scripted by call number
// (1-based).
type Backend struct {
	Props     backend.Properties
	Next      func(history []int) []float32
	Embedding bool
	FailOn    int
	PanicOn   int

	Calls   []Call
	history []int
	batch   [][]float32
	closed  bool
}

func New(props backend.Properties, next func(history []int) []float32) *Backend {
	return &Backend{Props: props, Next: next}
}

// Positional is a Backend that also exposes per-position batch logits.
type Positional struct {
	*Backend
}

func (p Positional) BatchLogits() [][]float32 { return p.batch }

func (b *Backend) Properties() backend.Properties { return b.Props }

func (b *Backend) Evaluate(tokens []int, past, threads int) error {
	b.Calls = append(b.Calls, Call{Tokens: append([]int(nil), tokens...), Past: past, Threads: threads})
	n := len(b.Calls)
	if b.PanicOn == n {
		panic(fmt.Sprintf("fake backend: scripted panic on call %d", n))
	}
	if b.FailOn == n {
		return fmt.Errorf("%w: scripted failure on call %d", backend.ErrEval, n)
	}
	if past < 0 || past > len(b.history) {
		return fmt.Errorf("%w: past %d with %d cached positions", backend.ErrEval, past, len(b.history))
	}
	if past+len(tokens) > b.Props.ContextSize {
		return fmt.Errorf("%w: %d+%d > %d", backend.ErrContextLength, past, len(tokens), b.Props.ContextSize)
	}
	b.history = b.history[:past]
	b.batch = b.batch[:0]
	for _, tok := range tokens {
		if tok < 0 || tok >= b.Props.VocabSize {
			return fmt.Errorf("%w: token %d out of vocabulary", backend.ErrEval, tok)
		}
		b.history = append(b.history, tok)
		l := b.Next(b.history)
		b.batch = append(b.batch, append([]float32(nil), l...))
	}
	return nil
}

// Shifter is a Backend that drops old positions without re-evaluation.
type Shifter struct {
	*Backend
	Shifts []int
}

func (s *Shifter) Shift(keep int) error {
	if keep < 0 || keep > len(s.history) {
		return fmt.Errorf("%w: shift keep %d of %d", backend.ErrEval, keep, len(s.history))
	}
	s.Shifts = append(s.Shifts, keep)
	s.history = append(s.history[:0], s.history[len(s.history)-keep:]...)
	return nil
}

func (b *Backend) Logits() []float32 {
	if len(b.batch) == 0 {
		return nil
	}
	return b.batch[len(b.batch)-1]
}

// Embeddings returns [len(history), sum(history), 0...] sized to EmbeddingSize.
func (b *Backend) Embeddings() ([]float32, error) {
	if !b.Embedding {
		return nil, backend.ErrNotEmbedding
	}
	out := make([]float32, b.Props.EmbeddingSize)
	if len(out) > 0 {
		out[0] = float32(len(b.history))
	}
	if len(out) > 1 {
		for _, t := range b.history {
			out[1] += float32(t)
		}
	}
	return out, nil
}

func (b *Backend) StateSize() int { return 4 + 4*b.Props.ContextSize }

func (b *Backend) State() ([]byte, error) {
	blob := make([]byte, b.StateSize())
	binary.LittleEndian.PutUint32(blob, uint32(len(b.history)))
	for i, t := range b.history {
		binary.LittleEndian.PutUint32(blob[4+4*i:], uint32(t))
	}
	return blob, nil
}

func (b *Backend) LoadState(blob []byte) error {
	if len(blob) != b.StateSize() {
		return fmt.Errorf("%w: got %d bytes, want %d", backend.ErrStateSize, len(blob), b.StateSize())
	}
	n := int(binary.LittleEndian.Uint32(blob))
	if n > b.Props.ContextSize {
		return fmt.Errorf("fake backend: state holds %d positions", n)
	}
	b.history = b.history[:0]
	for i := range n {
		b.history = append(b.history, int(binary.LittleEndian.Uint32(blob[4+4*i:])))
	}
	return nil
}

func (b *Backend) Close() error {
	b.closed = true
	return nil
}

func (b *Backend) Closed() bool { return b.closed }

// History returns the tokens the backend currently conditions on.
func (b *Backend) History() []int { return append([]int(nil), b.history...) }

// OneHot returns logits that make id the clear argmax.
func OneHot(vocab, id int) []float32 {
	l := make([]float32, vocab)
	if id >= 0 && id < vocab {
		l[id] = 10
	}
	return l
}

// Script returns a Next function that always favours next(history).
func Script(vocab int, next func(history []int) int) func([]int) []float32 {
	return func(h []int) []float32 { return OneHot(vocab, next(h)) }
}
