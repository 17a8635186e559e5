package tokenizer

import (
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
)

// newTestHF builds a byte-level BPE vocabulary with a handful of merges and
// two control tokens.
func newTestHF(t *testing.T) *HFTokenizer {
	t.Helper()
	enc, _ := byteUnicode()
	vocab := make(map[string]int, 260)
	for b := range 256 {
		vocab[enc[b]] = b
	}
	merges := []string{"h e", "l l", "he ll", "Ġ w", "o r"}
	next := 256
	for _, m := range merges {
		a, b, _ := strings.Cut(m, " ")
		if _, ok := vocab[a+b]; !ok {
			vocab[a+b] = next
			next++
		}
	}
	doc := map[string]any{
		"model": map[string]any{
			"type":   "BPE",
			"vocab":  vocab,
			"merges": merges,
		},
		"added_tokens": []map[string]any{
			{"id": next, "content": "<s>", "special": true},
			{"id": next + 1, "content": "</s>", "special": true},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatal(err)
	}
	tok, err := ParseHFTokenizer(raw, []byte(`{"bos_token":"<s>","eos_token":"</s>"}`))
	if err != nil {
		t.Fatalf("ParseHFTokenizer: %v", err)
	}
	return tok
}

var roundTripInputs = []string{
	"hello world",
	"héllo wörld",
	"日本語のテキスト",
	"emoji 🙂 and symbols ∑≠",
	"tabs\tand\nnewlines inside",
	"x",
}

func TestRoundTrip(t *testing.T) {
	t.Parallel()
	for _, tok := range []Tokenizer{NewByteTokenizer(), newTestHF(t)} {
		for _, s := range roundTripInputs {
			ids, err := encodeAll(tok, s, false)
			if err != nil {
				t.Fatalf("%T encode %q: %v", tok, s, err)
			}
			got, ok, err := Decode(tok, ids)
			if err != nil || !ok {
				t.Fatalf("%T decode %q: ok=%v err=%v", tok, s, ok, err)
			}
			if got != s {
				t.Errorf("%T round trip: got %q, want %q", tok, got, s)
			}
		}
	}
}

func TestEncodeProbe(t *testing.T) {
	t.Parallel()
	for _, tok := range []Tokenizer{NewByteTokenizer(), newTestHF(t)} {
		_, err := tok.Encode("hello world", true, make([]int, 1))
		var small *BufferTooSmallError
		if !errors.As(err, &small) || !errors.Is(err, ErrBufferTooSmall) {
			t.Fatalf("%T: expected BufferTooSmallError, got %v", tok, err)
		}
		dst := make([]int, small.Required)
		n, err := tok.Encode("hello world", true, dst)
		if err != nil || n != small.Required {
			t.Fatalf("%T: retry with exact size gave n=%d err=%v", tok, n, err)
		}
		if dst[0] != tok.Specials().BOS {
			t.Fatalf("%T: first token %d is not BOS", tok, dst[0])
		}
	}
}

func TestMergesApplied(t *testing.T) {
	t.Parallel()
	tok := newTestHF(t)
	ids, err := encodeAll(tok, "hello world", false)
	if err != nil {
		t.Fatal(err)
	}
	// "hell" "o" "Ġw" "or" "l" "d"
	if len(ids) != 6 {
		var parts []string
		for _, id := range ids {
			parts = append(parts, tok.TokenString(id))
		}
		t.Fatalf("expected 6 tokens, got %d: %v", len(ids), parts)
	}
}

func TestDecodeIncompleteUTF8(t *testing.T) {
	t.Parallel()
	tok := NewByteTokenizer()
	head := []int{ByteToken(0xC3)}
	if _, ok, err := Decode(tok, head); ok || err != nil {
		t.Fatalf("lone lead byte should be undecodable, ok=%v err=%v", ok, err)
	}
	text, ok, err := Decode(tok, append(head, ByteToken(0xA9)))
	if !ok || err != nil || text != "é" {
		t.Fatalf("complete sequence: %q ok=%v err=%v", text, ok, err)
	}
	if _, _, err := Decode(tok, []int{ByteVocab}); err == nil {
		t.Fatal("out of range id should error")
	}
}

func TestDecodeInvalidBytesDoNotStall(t *testing.T) {
	t.Parallel()
	tok := NewByteTokenizer()
	cases := []struct {
		name string
		in   []byte
		want string
	}{
		{"stray continuation", []byte{0x80, 'a'}, "\uFFFDa"},
		{"lead then ascii", []byte{0xC3, 'a'}, "\uFFFDa"},
		{"invalid byte", []byte{'x', 0xFF}, "x\uFFFD"},
		{"complete four byte", []byte("🙂"), "🙂"},
	}
	for _, tc := range cases {
		ids := make([]int, len(tc.in))
		for i, b := range tc.in {
			ids[i] = ByteToken(b)
		}
		text, ok, err := Decode(tok, ids)
		if err != nil || !ok || text != tc.want {
			t.Fatalf("%s: %q ok=%v err=%v", tc.name, text, ok, err)
		}
	}
	for _, n := range []int{1, 2, 3} {
		ids := make([]int, n)
		for i, b := range []byte("🙂")[:n] {
			ids[i] = ByteToken(b)
		}
		if _, ok, _ := Decode(tok, ids); ok {
			t.Fatalf("first %d bytes of a four byte character decoded", n)
		}
	}
}

func TestSpecials(t *testing.T) {
	t.Parallel()
	b := NewByteTokenizer().Specials()
	if b.Newline != '\n'+3 || b.BOS != ByteBOS || b.EOS != ByteEOS {
		t.Fatalf("byte specials: %+v", b)
	}
	hf := newTestHF(t)
	s := hf.Specials()
	if s.BOS < 0 || s.EOS < 0 || s.Newline != '\n' {
		t.Fatalf("hf specials: %+v", s)
	}
	if p, _ := hf.Piece(s.EOS); len(p) != 0 {
		t.Fatalf("control token should render empty, got %q", p)
	}
	ids, err := encodeAll(hf, "a</s>b", false)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 3 || ids[1] != s.EOS {
		t.Fatalf("special token not split out: %v", ids)
	}
}

func TestParseHFTokenizerRejectsNonBPE(t *testing.T) {
	t.Parallel()
	_, err := ParseHFTokenizer([]byte(`{"model":{"type":"WordPiece","vocab":{}}}`), nil)
	if err == nil || !strings.Contains(err.Error(), "WordPiece") {
		t.Fatalf("expected unsupported model error, got %v", err)
	}
	_, err = ParseHFTokenizer([]byte(`{`), nil)
	if err == nil {
		t.Fatal("expected parse error")
	}
}

// encodeAll retries once with the size reported by BufferTooSmallError.
func encodeAll(t Tokenizer, text string, addBOS bool) ([]int, error) {
	dst := make([]int, len(text)/4+1)
	n, err := t.Encode(text, addBOS, dst)
	var small *BufferTooSmallError
	if errors.As(err, &small) {
		dst = make([]int, small.Required)
		n, err = t.Encode(text, addBOS, dst)
	}
	if err != nil {
		return nil, err
	}
	return dst[:n], nil
}
