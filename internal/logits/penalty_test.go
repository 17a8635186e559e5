package logits

import (
	"slices"
	"testing"
)

func candidateLogits(c *Candidates) []float32 {
	out := make([]float32, len(c.Data))
	for _, cand := range c.Data {
		out[cand.ID] = cand.Logit
	}
	return out
}

func TestPenalizeRepetitionOncePerID(t *testing.T) {
	t.Parallel()
	p := NewPenalizer(-1, 16)
	cfg := PenaltyConfig{RepeatPenalty: 2, RepeatLastN: 64}
	c := p.Penalize([]float32{2, -2, 1, 0.5}, []int{0, 1, 0}, cfg)

	want := []float32{1, -4, 1, 0.5}
	if got := candidateLogits(c); !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if c.Sorted {
		t.Fatal("penalised candidates must stay unsorted")
	}
}

func TestPenalizeFrequencyPresence(t *testing.T) {
	t.Parallel()
	p := NewPenalizer(-1, 16)
	cfg := PenaltyConfig{RepeatPenalty: 1, RepeatLastN: 64, FrequencyPenalty: 0.5, PresencePenalty: 1}
	c := p.Penalize([]float32{2, -2, 1, 0.5}, []int{0, 1, 0}, cfg)

	want := []float32{0, -3.5, 1, 0.5}
	if got := candidateLogits(c); !slices.Equal(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestPenalizeNewlineExemption(t *testing.T) {
	t.Parallel()
	const newline = 2
	logits := []float32{1, 1, 3.25, 1}
	history := []int{2, 2, 2, 0}
	cfg := PenaltyConfig{RepeatPenalty: 1.7, RepeatLastN: 64, FrequencyPenalty: 0.4, PresencePenalty: 0.9}

	p := NewPenalizer(newline, 16)
	c := p.Penalize(logits, history, cfg)
	if got, _ := logitOf(c, newline); got != 3.25 {
		t.Fatalf("exempt newline changed: %v", got)
	}
	if got, _ := logitOf(c, 0); got == 1 {
		t.Fatal("non-newline token in history should be penalised")
	}

	cfg.PenalizeNewline = true
	c = p.Penalize(logits, history, cfg)
	if got, _ := logitOf(c, newline); got == 3.25 {
		t.Fatal("newline should be penalised when PenalizeNewline is set")
	}
}

func TestPenalizeDoesNotMutateInput(t *testing.T) {
	t.Parallel()
	logits := []float32{4, 4, 4}
	NewPenalizer(-1, 8).Penalize(logits, []int{0, 1, 2}, DefaultPenaltyConfig())
	if !slices.Equal(logits, []float32{4, 4, 4}) {
		t.Fatalf("input logits were modified: %v", logits)
	}
}

func TestPenalizerWindow(t *testing.T) {
	t.Parallel()
	history := []int{1, 2, 3, 4, 5, 6}
	tests := []struct {
		name  string
		ctx   int
		lastN int
		want  []int
	}{
		{name: "last two", ctx: 100, lastN: 2, want: []int{5, 6}},
		{name: "disabled", ctx: 100, lastN: 0, want: []int{}},
		{name: "longer than history", ctx: 100, lastN: 64, want: history},
		{name: "whole context", ctx: 4, lastN: -1, want: []int{3, 4, 5, 6}},
		{name: "capped by context", ctx: 3, lastN: 64, want: []int{4, 5, 6}},
	}
	for _, tc := range tests {
		got := NewPenalizer(-1, tc.ctx).Window(history, tc.lastN)
		if !slices.Equal(got, tc.want) {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

// logitOf returns the current logit for id, or false when id has been
// filtered out.
func logitOf(c *Candidates, id int) (float32, bool) {
	for _, cand := range c.Data {
		if cand.ID == id {
			return cand.Logit, true
		}
	}
	return 0, false
}
