package logits

// Penalizer turns a raw logit vector into an adjusted, unsorted candidate set
// using the recent token history. It keeps scratch space between calls and
// must not be shared across goroutines.
type Penalizer struct {
	Newline     int
	ContextSize int

	counts map[int]int
	order  []int
}

func NewPenalizer(newline, contextSize int) *Penalizer {
	return &Penalizer{
		Newline:     newline,
		ContextSize: contextSize,
		counts:      make(map[int]int),
	}
}

// Window returns the slice of history the penalties look at.
func (p *Penalizer) Window(history []int, lastN int) []int {
	if lastN < 0 {
		lastN = p.ContextSize
	}
	n := min(len(history), lastN)
	if p.ContextSize > 0 {
		n = min(n, p.ContextSize)
	}
	return history[len(history)-n:]
}

// Penalize applies the repetition penalty once per distinct id in the
// window, then subtracts freq*count + presence for those ids. With
// PenalizeNewline off the newline candidate keeps its original logit.
func (p *Penalizer) Penalize(logits []float32, history []int, cfg PenaltyConfig) *Candidates {
	c := NewCandidates(logits)

	var newlineLogit float32
	haveNewline := p.Newline >= 0 && p.Newline < len(logits)
	if haveNewline {
		newlineLogit = logits[p.Newline]
	}

	if p.counts == nil {
		p.counts = make(map[int]int)
	}
	clear(p.counts)
	p.order = p.order[:0]
	for _, id := range p.Window(history, cfg.RepeatLastN) {
		if id < 0 || id >= len(c.Data) {
			continue
		}
		if p.counts[id] == 0 {
			p.order = append(p.order, id)
		}
		p.counts[id]++
	}

	if cfg.RepeatPenalty != 1 && cfg.RepeatPenalty > 0 {
		for _, id := range p.order {
			if c.Data[id].Logit > 0 {
				c.Data[id].Logit /= cfg.RepeatPenalty
			} else {
				c.Data[id].Logit *= cfg.RepeatPenalty
			}
		}
	}

	if cfg.FrequencyPenalty != 0 || cfg.PresencePenalty != 0 {
		for _, id := range p.order {
			c.Data[id].Logit -= float32(p.counts[id])*cfg.FrequencyPenalty + cfg.PresencePenalty
		}
	}

	if haveNewline && !cfg.PenalizeNewline {
		c.Data[p.Newline].Logit = newlineLogit
	}
	return c
}
