package main

import (
	"bytes"
	"errors"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/samcharles93/rollout/internal/backend"
	"github.com/samcharles93/rollout/internal/backend/fake"
	"github.com/samcharles93/rollout/internal/lm"
	"github.com/samcharles93/rollout/internal/statefile"
	"github.com/samcharles93/rollout/internal/tokenizer"
)

func newFakeModel(t *testing.T, ctx int) (*lm.Model, *fake.Backend) {
	t.Helper()
	raw := fake.New(backend.Properties{
		Name:        "fake",
		ContextSize: ctx,
		VocabSize:   tokenizer.ByteVocab,
		BOS:         tokenizer.ByteBOS,
		EOS:         tokenizer.ByteEOS,
		Newline:     tokenizer.ByteToken('\n'),
	}, fake.Script(tokenizer.ByteVocab, func([]int) int { return tokenizer.ByteEOS }))
	p := lm.DefaultParams()
	p.BatchSize = 8
	m, err := lm.New(p, &backend.Loaded{Backend: raw, Tokenizer: tokenizer.NewByteTokenizer()}, nil)
	if err != nil {
		t.Fatalf("lm.New: %v", err)
	}
	return m, raw
}

func TestSaveInspectVerifyState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.state")

	src, _ := newFakeModel(t, 32)
	h, err := saveState(src, "abc", path)
	if err != nil {
		t.Fatalf("saveState: %v", err)
	}
	want := []int{tokenizer.ByteBOS, tokenizer.ByteToken('a'), tokenizer.ByteToken('b'), tokenizer.ByteToken('c')}
	if !slices.Equal(h.Tokens, want) {
		t.Fatalf("header tokens = %v, want %v", h.Tokens, want)
	}

	var out bytes.Buffer
	if err := inspectState(path, &out); err != nil {
		t.Fatalf("inspectState: %v", err)
	}
	if !strings.Contains(out.String(), `"backend": "fake"`) {
		t.Fatalf("inspect output missing backend:\n%s", out.String())
	}

	dst, raw := newFakeModel(t, 32)
	if err := verifyState(dst, path); err != nil {
		t.Fatalf("verifyState: %v", err)
	}
	if !slices.Equal(raw.History(), want) {
		t.Fatalf("restored history = %v, want %v", raw.History(), want)
	}
}

func TestVerifyStateRejectsOtherModel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snap.state")
	src, _ := newFakeModel(t, 32)
	if _, err := saveState(src, "abc", path); err != nil {
		t.Fatalf("saveState: %v", err)
	}

	other, _ := newFakeModel(t, 64)
	if err := verifyState(other, path); !errors.Is(err, statefile.ErrIncompatible) {
		t.Fatalf("verifyState err = %v, want ErrIncompatible", err)
	}
}
