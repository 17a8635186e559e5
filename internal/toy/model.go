// Package toy implements a small deterministic recurrent language model that
// satisfies backend.InferenceBackend. It exists so the decode engine can be
// driven end to end without native model code.
package toy

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/samcharles93/rollout/internal/backend"
	"github.com/samcharles93/rollout/internal/tokenizer"
)

// ToyLM keeps one hidden state per position:
//
//	h[p] = tanh(decay*h[p-1] + emb[tok] + pe(p))
//	logits = h[p]·W + bias
//
// pe is a sinusoidal position signal parameterised like RoPE (base, scale).
type ToyLM struct {
	props     backend.Properties
	hidden    int
	decay     float32
	ropeBase  float64
	ropeScale float64
	embedding bool

	emb  []float32 // [vocab][hidden]
	w    []float32 // [hidden][vocab]
	bias []float32

	tokens []int
	states []float32 // [context][hidden]
	batch  [][]float32
}

// Config is the resolved shape of a ToyLM.
type Config struct {
	Vocab         int
	Hidden        int
	Context       int
	Seed          int64
	Decay         float32
	EOSBias       float32
	RopeFreqBase  float32
	RopeFreqScale float32
	Embedding     bool
	Specials      tokenizer.Specials
}

func New(cfg Config) (*ToyLM, error) {
	if cfg.Vocab <= 0 || cfg.Hidden <= 0 || cfg.Context <= 0 {
		return nil, fmt.Errorf("toy: invalid shape vocab=%d hidden=%d context=%d", cfg.Vocab, cfg.Hidden, cfg.Context)
	}
	if cfg.Decay == 0 {
		cfg.Decay = 0.5
	}
	if cfg.RopeFreqBase <= 0 {
		cfg.RopeFreqBase = 10000
	}
	if cfg.RopeFreqScale <= 0 {
		cfg.RopeFreqScale = 1
	}
	m := &ToyLM{
		props: backend.Properties{
			Name:          "toy",
			ContextSize:   cfg.Context,
			VocabSize:     cfg.Vocab,
			EmbeddingSize: cfg.Hidden,
			BOS:           cfg.Specials.BOS,
			EOS:           cfg.Specials.EOS,
			Newline:       cfg.Specials.Newline,
		},
		hidden:    cfg.Hidden,
		decay:     cfg.Decay,
		ropeBase:  float64(cfg.RopeFreqBase),
		ropeScale: float64(cfg.RopeFreqScale),
		embedding: cfg.Embedding,
		emb:       make([]float32, cfg.Vocab*cfg.Hidden),
		w:         make([]float32, cfg.Hidden*cfg.Vocab),
		bias:      make([]float32, cfg.Vocab),
		tokens:    make([]int, 0, cfg.Context),
		states:    make([]float32, cfg.Context*cfg.Hidden),
	}

	var key [16]byte
	binary.LittleEndian.PutUint64(key[:8], uint64(cfg.Seed))
	for tok := range cfg.Vocab {
		binary.LittleEndian.PutUint64(key[8:], uint64(tok))
		rng := rand.New(rand.NewSource(int64(xxhash.Sum64(key[:]))))
		row := m.emb[tok*cfg.Hidden : (tok+1)*cfg.Hidden]
		for i := range row {
			row[i] = rng.Float32()*2 - 1
		}
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	scale := float32(1 / math.Sqrt(float64(cfg.Hidden)))
	for i := range m.w {
		m.w[i] = (rng.Float32()*2 - 1) * 4 * scale
	}
	if eos := cfg.Specials.EOS; eos >= 0 && eos < cfg.Vocab {
		m.bias[eos] = cfg.EOSBias
	}
	return m, nil
}

func (m *ToyLM) Properties() backend.Properties { return m.props }

func (m *ToyLM) Evaluate(tokens []int, past, threads int) error {
	if past < 0 || past > len(m.tokens) {
		return fmt.Errorf("%w: past %d but %d positions cached", backend.ErrEval, past, len(m.tokens))
	}
	if past+len(tokens) > m.props.ContextSize {
		return fmt.Errorf("%w: %d+%d > %d", backend.ErrContextLength, past, len(tokens), m.props.ContextSize)
	}
	for _, tok := range tokens {
		if tok < 0 || tok >= m.props.VocabSize {
			return fmt.Errorf("%w: token %d outside vocabulary of %d", backend.ErrEval, tok, m.props.VocabSize)
		}
	}

	m.tokens = m.tokens[:past]
	m.batch = m.batch[:0]
	for _, tok := range tokens {
		pos := len(m.tokens)
		m.step(pos, tok)
		m.tokens = append(m.tokens, tok)
		out := make([]float32, m.props.VocabSize)
		m.project(m.state(pos), out, threads)
		m.batch = append(m.batch, out)
	}
	return nil
}

func (m *ToyLM) state(pos int) []float32 {
	return m.states[pos*m.hidden : (pos+1)*m.hidden]
}

func (m *ToyLM) step(pos, tok int) {
	h := m.state(pos)
	e := m.emb[tok*m.hidden : (tok+1)*m.hidden]
	var prev []float32
	if pos > 0 {
		prev = m.state(pos - 1)
	}
	for i := range h {
		v := e[i]
		if prev != nil {
			v += m.decay * prev[i]
		}
		freq := math.Pow(m.ropeBase, -float64(2*(i/2))/float64(m.hidden))
		angle := float64(pos) * m.ropeScale * freq
		if i%2 == 0 {
			v += 0.1 * float32(math.Sin(angle))
		} else {
			v += 0.1 * float32(math.Cos(angle))
		}
		h[i] = float32(math.Tanh(float64(v)))
	}
}

// project writes h·W + bias into out, splitting the vocabulary across
// threads goroutines.
func (m *ToyLM) project(h, out []float32, threads int) {
	vocab := m.props.VocabSize
	threads = max(1, min(threads, vocab))
	chunk := (vocab + threads - 1) / threads
	var wg sync.WaitGroup
	for lo := 0; lo < vocab; lo += chunk {
		hi := min(lo+chunk, vocab)
		wg.Go(func() {
			for j := lo; j < hi; j++ {
				sum := m.bias[j]
				for i, hv := range h {
					sum += hv * m.w[i*vocab+j]
				}
				out[j] = sum
			}
		})
	}
	wg.Wait()
}

func (m *ToyLM) Logits() []float32 {
	if len(m.batch) == 0 {
		return nil
	}
	return m.batch[len(m.batch)-1]
}

func (m *ToyLM) BatchLogits() [][]float32 { return m.batch }

// Shift keeps the newest keep positions. Hidden states carry their position
// signal, so the kept tokens are replayed from position zero.
func (m *ToyLM) Shift(keep int) error {
	if keep < 0 || keep > len(m.tokens) {
		return fmt.Errorf("%w: shift keep %d of %d", backend.ErrEval, keep, len(m.tokens))
	}
	kept := append([]int(nil), m.tokens[len(m.tokens)-keep:]...)
	m.tokens = m.tokens[:0]
	if keep == 0 {
		m.batch = m.batch[:0]
		return nil
	}
	return m.Evaluate(kept, 0, 1)
}

// Embeddings returns the hidden state of the last evaluated position.
func (m *ToyLM) Embeddings() ([]float32, error) {
	if !m.embedding {
		return nil, backend.ErrNotEmbedding
	}
	if len(m.tokens) == 0 {
		return make([]float32, m.hidden), nil
	}
	return append([]float32(nil), m.state(len(m.tokens)-1)...), nil
}

// StateSize is a count followed by one uint32 per context slot.
func (m *ToyLM) StateSize() int { return 4 + 4*m.props.ContextSize }

func (m *ToyLM) State() ([]byte, error) {
	blob := make([]byte, m.StateSize())
	binary.LittleEndian.PutUint32(blob, uint32(len(m.tokens)))
	for i, tok := range m.tokens {
		binary.LittleEndian.PutUint32(blob[4+4*i:], uint32(tok))
	}
	return blob, nil
}

// LoadState replays the stored tokens to rebuild hidden states.
func (m *ToyLM) LoadState(blob []byte) error {
	if len(blob) != m.StateSize() {
		return fmt.Errorf("%w: got %d bytes, want %d", backend.ErrStateSize, len(blob), m.StateSize())
	}
	n := int(binary.LittleEndian.Uint32(blob))
	if n > m.props.ContextSize {
		return fmt.Errorf("toy: state claims %d positions, context is %d", n, m.props.ContextSize)
	}
	tokens := make([]int, n)
	for i := range tokens {
		tokens[i] = int(binary.LittleEndian.Uint32(blob[4+4*i:]))
	}
	m.tokens = m.tokens[:0]
	m.batch = m.batch[:0]
	if n == 0 {
		return nil
	}
	return m.Evaluate(tokens, 0, 1)
}

func (m *ToyLM) Close() error {
	m.tokens, m.batch = nil, nil
	return nil
}
