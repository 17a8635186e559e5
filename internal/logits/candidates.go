package logits

import (
	"cmp"
	"math"
	"slices"
)

// Candidate is one vocabulary entry under consideration for the next token.
type Candidate struct {
	ID    int
	Logit float32
	Prob  float32
}

// Candidates is the transient working set of one sampling call. Sorted
// reports whether Data is currently ordered by descending logit (and so by
// descending probability).
type Candidates struct {
	Data   []Candidate
	Sorted bool
}

// NewCandidates builds an unsorted set covering every id in logits.
func NewCandidates(logits []float32) *Candidates {
	c := &Candidates{Data: make([]Candidate, len(logits))}
	for id, l := range logits {
		c.Data[id] = Candidate{ID: id, Logit: l}
	}
	return c
}

func (c *Candidates) Len() int { return len(c.Data) }

// Softmax sorts by descending logit when needed and recomputes Prob for
// every surviving candidate.
func (c *Candidates) Softmax() {
	if len(c.Data) == 0 {
		return
	}
	c.sort()
	maxLogit := float64(c.Data[0].Logit)
	var sum float64
	for i := range c.Data {
		p := math.Exp(float64(c.Data[i].Logit) - maxLogit)
		c.Data[i].Prob = float32(p)
		sum += p
	}
	for i := range c.Data {
		c.Data[i].Prob = float32(float64(c.Data[i].Prob) / sum)
	}
}

func (c *Candidates) sort() {
	if c.Sorted {
		return
	}
	slices.SortStableFunc(c.Data, func(a, b Candidate) int {
		if a.Logit != b.Logit {
			return cmp.Compare(b.Logit, a.Logit)
		}
		return cmp.Compare(a.ID, b.ID)
	})
	c.Sorted = true
}

func (c *Candidates) truncate(n int) {
	if n < len(c.Data) {
		c.Data = c.Data[:n]
	}
}

// argmax returns the id of the highest logit, preferring the lowest id on ties.
func argmax(c *Candidates) int {
	best := -1
	var bestLogit float32
	for _, cand := range c.Data {
		if best < 0 || cand.Logit > bestLogit || (cand.Logit == bestLogit && cand.ID < best) {
			best = cand.ID
			bestLogit = cand.Logit
		}
	}
	return best
}
