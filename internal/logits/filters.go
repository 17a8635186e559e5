package logits

import (
	"math"
	"math/rand"
	"slices"
)

// Each filter keeps at least minKeep candidates and only ever shrinks the set.

// TopK keeps the k highest logits. k <= 0 disables the filter.
func TopK(c *Candidates, k, minKeep int) {
	if k <= 0 {
		k = len(c.Data)
	}
	k = min(max(k, minKeep), len(c.Data))
	c.sort()
	c.truncate(k)
}

// TailFree drops the tail where the curvature of the sorted probability
// curve has accumulated z of its total mass. z >= 1 disables the filter.
func TailFree(c *Candidates, z float32, minKeep int) {
	if z >= 1 || len(c.Data) <= 2 {
		return
	}
	c.Softmax()

	first := make([]float64, len(c.Data)-1)
	for i := range first {
		first[i] = float64(c.Data[i].Prob - c.Data[i+1].Prob)
	}
	second := make([]float64, len(first)-1)
	var sum float64
	for i := range second {
		second[i] = math.Abs(first[i] - first[i+1])
		sum += second[i]
	}
	for i := range second {
		if sum > 1e-6 {
			second[i] /= sum
		} else {
			second[i] = 1 / float64(len(second))
		}
	}

	keep := len(c.Data)
	var cum float64
	for i, d := range second {
		cum += d
		if cum > float64(z) && i >= minKeep {
			keep = i
			break
		}
	}
	c.truncate(keep)
}

// Typical keeps the candidates whose surprise is closest to the entropy of
// the distribution until their cumulative probability exceeds p.
// p >= 1 disables the filter.
func Typical(c *Candidates, p float32, minKeep int) {
	if p >= 1 {
		return
	}
	c.Softmax()

	var entropy float64
	for _, cand := range c.Data {
		if cand.Prob > 0 {
			entropy -= float64(cand.Prob) * math.Log(float64(cand.Prob))
		}
	}

	type scored struct {
		idx   int
		shift float64
	}
	order := make([]scored, len(c.Data))
	for i, cand := range c.Data {
		shift := math.Inf(1)
		if cand.Prob > 0 {
			shift = math.Abs(-math.Log(float64(cand.Prob)) - entropy)
		}
		order[i] = scored{idx: i, shift: shift}
	}
	slices.SortStableFunc(order, func(a, b scored) int {
		switch {
		case a.shift < b.shift:
			return -1
		case a.shift > b.shift:
			return 1
		}
		return 0
	})

	keep := len(order)
	var cum float64
	for i, s := range order {
		cum += float64(c.Data[s.idx].Prob)
		if cum > float64(p) && i >= minKeep-1 {
			keep = i + 1
			break
		}
	}

	kept := make([]Candidate, keep)
	for i := range kept {
		kept[i] = c.Data[order[i].idx]
	}
	c.Data = kept
	c.Sorted = false
}

// TopP keeps the smallest prefix whose cumulative probability reaches p.
// p >= 1 disables the filter.
func TopP(c *Candidates, p float32, minKeep int) {
	if p >= 1 {
		return
	}
	c.Softmax()

	keep := len(c.Data)
	var cum float64
	for i, cand := range c.Data {
		cum += float64(cand.Prob)
		if cum >= float64(p) && i+1 >= minKeep {
			keep = i + 1
			break
		}
	}
	c.truncate(keep)
}

// Temperature divides every logit by t. Probabilities are stale afterwards.
func Temperature(c *Candidates, t float32) {
	for i := range c.Data {
		c.Data[i].Logit /= t
	}
}

// draw picks an index into c.Data proportionally to its probability.
func draw(c *Candidates, rng *rand.Rand) int {
	c.Softmax()
	var total float64
	for _, cand := range c.Data {
		total += float64(cand.Prob)
	}
	r := rng.Float64() * total
	var cum float64
	for i, cand := range c.Data {
		cum += float64(cand.Prob)
		if r < cum {
			return i
		}
	}
	return len(c.Data) - 1
}
