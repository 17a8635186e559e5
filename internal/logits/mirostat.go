package logits

import (
	"math"
	"math/rand"
)

// mirostatM is the number of top candidates used to estimate the Zipf
// exponent in Mirostat v1.
const mirostatM = 100

// MirostatState carries mu between sampling calls of one session.
type MirostatState struct {
	Mu    float32
	ready bool
}

// Begin initialises mu to 2*tau unless the session already has a value.
func (m *MirostatState) Begin(tau float32) {
	if !m.ready {
		m.Mu = 2 * tau
		m.ready = true
	}
}

// Reset forgets mu so the next session starts from 2*tau again.
func (m *MirostatState) Reset() {
	m.Mu = 0
	m.ready = false
}

func (m *MirostatState) Active() bool { return m.ready }

func (m *MirostatState) update(prob, tau, eta float32) {
	surprise := -math.Log2(float64(prob))
	m.Mu -= eta * (float32(surprise) - tau)
}

// mirostatV1 estimates the tail exponent over the top mirostatM candidates,
// derives k from mu and samples among the k most likely tokens.
func mirostatV1(c *Candidates, vocab int, tau, eta float32, state *MirostatState, rng *rand.Rand) int {
	c.Softmax()

	var sumTiBi, sumTiSq float64
	for i := 0; i < mirostatM-1 && i < len(c.Data)-1; i++ {
		if c.Data[i+1].Prob <= 0 {
			break
		}
		ti := math.Log(float64(i+2) / float64(i+1))
		bi := math.Log(float64(c.Data[i].Prob) / float64(c.Data[i+1].Prob))
		sumTiBi += ti * bi
		sumTiSq += ti * ti
	}

	k := len(c.Data)
	if sumTiSq > 0 {
		sHat := sumTiBi / sumTiSq
		k = mirostatK(sHat, float64(state.Mu), float64(vocab), len(c.Data))
	}

	TopK(c, k, 1)
	idx := draw(c, rng)
	state.update(c.Data[idx].Prob, tau, eta)
	return c.Data[idx].ID
}

func mirostatK(sHat, mu, vocab float64, limit int) int {
	if sHat <= 0 {
		return limit
	}
	eps := sHat - 1
	var base float64
	if math.Abs(eps) < 1e-9 {
		base = math.Pow(2, mu) / math.Log(vocab)
	} else {
		base = eps * math.Pow(2, mu) / (1 - math.Pow(vocab, -eps))
	}
	k := math.Pow(base, 1/sHat)
	switch {
	case math.IsNaN(k) || k >= float64(limit):
		return limit
	case k < 1:
		return 1
	}
	return int(k)
}

// mirostatV2 keeps candidates whose surprise is below mu and samples among
// them. At least the most likely candidate always survives.
func mirostatV2(c *Candidates, tau, eta float32, state *MirostatState, rng *rand.Rand) int {
	c.Softmax()

	keep := len(c.Data)
	for i, cand := range c.Data {
		if -math.Log2(float64(cand.Prob)) > float64(state.Mu) {
			keep = i
			break
		}
	}
	c.truncate(max(keep, 1))

	idx := draw(c, rng)
	state.update(c.Data[idx].Prob, tau, eta)
	return c.Data[idx].ID
}
