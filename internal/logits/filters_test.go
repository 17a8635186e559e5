package logits

import (
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/invopop/validation"
)

func ids(c *Candidates) []int {
	out := make([]int, len(c.Data))
	for i, cand := range c.Data {
		out[i] = cand.ID
	}
	return out
}

func TestSoftmaxSortsAndNormalises(t *testing.T) {
	t.Parallel()
	c := NewCandidates([]float32{0, 2, 1})
	c.Softmax()
	if !c.Sorted || !slices.Equal(ids(c), []int{1, 2, 0}) {
		t.Fatalf("unexpected order %v", ids(c))
	}
	var sum float64
	for _, cand := range c.Data {
		sum += float64(cand.Prob)
	}
	if math.Abs(sum-1) > 1e-6 {
		t.Fatalf("probabilities sum to %v", sum)
	}
}

func TestTopK(t *testing.T) {
	t.Parallel()
	c := NewCandidates([]float32{1, 5, 3, 7, 2})
	TopK(c, 2, 1)
	if !slices.Equal(ids(c), []int{3, 1}) {
		t.Fatalf("got %v", ids(c))
	}

	c = NewCandidates([]float32{1, 5, 3})
	TopK(c, 0, 1)
	if c.Len() != 3 {
		t.Fatalf("k=0 should keep everything, kept %d", c.Len())
	}
}

func TestTopP(t *testing.T) {
	t.Parallel()
	c := NewCandidates([]float32{10, 0, 0, 0, 0})
	TopP(c, 0.5, 1)
	if !slices.Equal(ids(c), []int{0}) {
		t.Fatalf("got %v", ids(c))
	}

	c = NewCandidates([]float32{1, 1, 1, 1})
	TopP(c, 0.6, 1)
	if c.Len() != 3 {
		t.Fatalf("uniform p=0.6 over 4 should keep 3, kept %d", c.Len())
	}
}

func TestTailFree(t *testing.T) {
	t.Parallel()
	logits := []float32{4, 2, 1, 0.5, 0, -1, -3}

	c := NewCandidates(logits)
	TailFree(c, 1, 1)
	if c.Len() != len(logits) {
		t.Fatalf("z=1 must be a no-op, kept %d", c.Len())
	}

	c = NewCandidates(logits)
	TailFree(c, 0, 1)
	if c.Len() != 1 || c.Data[0].ID != 0 {
		t.Fatalf("z=0 should keep only the head, got %v", ids(c))
	}

	c = NewCandidates(logits)
	TailFree(c, 0.95, 1)
	if c.Len() < 1 || c.Len() >= len(logits) || c.Data[0].ID != 0 {
		t.Fatalf("z=0.95 should trim part of the tail, got %v", ids(c))
	}
}

func TestTypical(t *testing.T) {
	t.Parallel()
	logits := []float32{3, 2.5, 2, 0, -2}

	c := NewCandidates(logits)
	Typical(c, 1, 1)
	if c.Len() != len(logits) {
		t.Fatal("p=1 must be a no-op")
	}

	c = NewCandidates(logits)
	Typical(c, 0, 1)
	if c.Len() != 1 {
		t.Fatalf("p=0 should keep exactly one candidate, got %v", ids(c))
	}

	c = NewCandidates(logits)
	Typical(c, 0.5, 1)
	if c.Len() == 0 || c.Len() >= len(logits) || c.Sorted {
		t.Fatalf("unexpected typical result %v sorted=%v", ids(c), c.Sorted)
	}
}

func TestFiltersShrinkMonotonically(t *testing.T) {
	t.Parallel()
	c := NewCandidates(zipfLogits(128, 0.08))
	sizes := []int{c.Len()}
	TopK(c, 40, 1)
	sizes = append(sizes, c.Len())
	TailFree(c, 0.97, 1)
	sizes = append(sizes, c.Len())
	Typical(c, 0.9, 1)
	sizes = append(sizes, c.Len())
	TopP(c, 0.9, 1)
	sizes = append(sizes, c.Len())
	for i := 1; i < len(sizes); i++ {
		if sizes[i] > sizes[i-1] || sizes[i] < 1 {
			t.Fatalf("filter chain grew or emptied the set: %v", sizes)
		}
	}
}

func TestParseMirostatStrategy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    MirostatStrategy
		wantErr bool
	}{
		{in: "DISABLED", want: MirostatDisabled},
		{in: "", want: MirostatDisabled},
		{in: "MIRO_STAT_V1", want: MirostatV1},
		{in: "miro_stat_v2", want: MirostatV2},
		{in: "2", want: MirostatV2},
		{in: "v3", wantErr: true},
	}
	for _, tc := range tests {
		got, err := ParseMirostatStrategy(tc.in)
		if tc.wantErr {
			if !errors.Is(err, ErrUnknownStrategy) {
				t.Errorf("%q: expected ErrUnknownStrategy, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: got %v, %v", tc.in, got, err)
		}
	}

	var s MirostatStrategy
	if err := s.UnmarshalText([]byte("MIRO_STAT_V1")); err != nil || s != MirostatV1 {
		t.Fatalf("UnmarshalText: %v %v", s, err)
	}
	if _, err := MirostatStrategy(5).MarshalText(); err == nil {
		t.Fatal("MarshalText should reject an invalid strategy")
	}
}

func TestConfigValidate(t *testing.T) {
	t.Parallel()
	if err := DefaultSamplingConfig().Validate(); err != nil {
		t.Fatalf("default sampling config invalid: %v", err)
	}
	if err := DefaultPenaltyConfig().Validate(); err != nil {
		t.Fatalf("default penalty config invalid: %v", err)
	}

	bad := DefaultSamplingConfig()
	bad.TopK = -1
	bad.TopP = 1.5
	bad.Mirostat = MirostatV2
	bad.MirostatTau = 0
	var errs validation.Errors
	if err := bad.Validate(); !errors.As(err, &errs) {
		t.Fatalf("expected validation.Errors, got %v", err)
	}
	for _, field := range []string{"top_k", "top_p", "mirostat_tau"} {
		if errs[field] == nil {
			t.Errorf("expected an error for %s, got %v", field, errs)
		}
	}

	pen := DefaultPenaltyConfig()
	pen.RepeatLastN = -2
	pen.RepeatPenalty = 0
	if err := pen.Validate(); !errors.As(err, &errs) || errs["repeat_last_n"] == nil || errs["repeat_penalty"] == nil {
		t.Fatalf("expected repeat_last_n and repeat_penalty errors, got %v", err)
	}
}
