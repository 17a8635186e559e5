// Package window holds the bounded token history of a decode session and the
// logit vector produced at every position.
//
// Storage is a ring over two arenas allocated once: one int per slot for
// tokens and capacity*vocab float32s for logits. Reset moves the logical
// start forward instead of shifting data.
package window

import (
	"errors"
	"fmt"
)

// ErrOutOfRange reports a position or count the window cannot hold.
var ErrOutOfRange = errors.New("window: index out of range")

// Buffer is a fixed-capacity window of tokens and their logits.
type Buffer struct {
	capacity int
	vocab    int
	start    int
	n        int
	tokens   []int
	logits   []float32
}

// New allocates a window of capacity positions over a vocab-sized logit row.
func New(capacity, vocab int) (*Buffer, error) {
	if capacity <= 0 || vocab <= 0 {
		return nil, fmt.Errorf("window: invalid shape capacity=%d vocab=%d", capacity, vocab)
	}
	return &Buffer{
		capacity: capacity,
		vocab:    vocab,
		tokens:   make([]int, capacity),
		logits:   make([]float32, capacity*vocab),
	}, nil
}

func (b *Buffer) Cap() int { return b.capacity }

// Len is the number of past tokens currently held.
func (b *Buffer) Len() int { return b.n }

func (b *Buffer) slot(i int) int { return (b.start + i) % b.capacity }

// AppendTokens appends the window contents, oldest first, to dst.
func (b *Buffer) AppendTokens(dst []int) []int {
	for i := range b.n {
		dst = append(dst, b.tokens[b.slot(i)])
	}
	return dst
}

func (b *Buffer) Tokens() []int {
	return b.AppendTokens(make([]int, 0, b.n))
}

// Logits returns the vector stored for position i. The slice aliases the
// arena and is only valid until the next Push or Reset.
func (b *Buffer) Logits(i int) ([]float32, error) {
	if i < 0 || i >= b.n {
		return nil, fmt.Errorf("%w: logits %d of %d", ErrOutOfRange, i, b.n)
	}
	off := b.slot(i) * b.vocab
	return b.logits[off : off+b.vocab : off+b.vocab], nil
}

// Last returns the logits of the most recent position, or nil when empty.
func (b *Buffer) Last() []float32 {
	if b.n == 0 {
		return nil
	}
	l, _ := b.Logits(b.n - 1)
	return l
}

// Push appends one position. logits shorter than the vocabulary are
// zero-padded; nil stores zeros.
func (b *Buffer) Push(token int, logits []float32) error {
	if b.n >= b.capacity {
		return fmt.Errorf("%w: push into full window of %d", ErrOutOfRange, b.capacity)
	}
	if len(logits) > b.vocab {
		return fmt.Errorf("window: logits length %d exceeds vocab %d", len(logits), b.vocab)
	}
	s := b.slot(b.n)
	b.tokens[s] = token
	dst := b.logits[s*b.vocab : (s+1)*b.vocab]
	n := copy(dst, logits)
	clear(dst[n:])
	b.n++
	return nil
}

// Reset drops the oldest Len()-keep positions so that the most recent keep
// positions remain, in order. Reset(0) empties the window.
func (b *Buffer) Reset(keep int) error {
	if keep < 0 || keep > b.n {
		return fmt.Errorf("%w: reset keep=%d with %d past tokens", ErrOutOfRange, keep, b.n)
	}
	if keep == 0 {
		b.start, b.n = 0, 0
		return nil
	}
	b.start = b.slot(b.n - keep)
	b.n = keep
	return nil
}

// EvictionKeep reports whether appending batchLen positions requires an
// eviction and, if so, how many past positions to keep:
// capacity - max(batchLen, capacity/2).
func (b *Buffer) EvictionKeep(batchLen int) (keep int, evict bool) {
	if b.n+batchLen < b.capacity {
		return b.n, false
	}
	return b.capacity - max(batchLen, b.capacity/2), true
}
