package tokenizer

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"sync"

	"github.com/goccy/go-json"
)

// HFTokenizer is a byte-level BPE tokenizer loaded from a Hugging Face
// tokenizer.json.
type HFTokenizer struct {
	encoder  map[string]int
	decoder  []string
	control  []bool
	ranks    map[Pair]int
	byteEnc  [256]string
	byteDec  map[rune]byte
	pattern  *regexp.Regexp
	specials []string
	ids      Specials
	ignoreMg bool

	mu    sync.Mutex
	cache map[string][]string
}

type hfFile struct {
	Model struct {
		Type         string         `json:"type"`
		Vocab        map[string]int `json:"vocab"`
		Merges       []any          `json:"merges"`
		IgnoreMerges bool           `json:"ignore_merges"`
		UnkToken     string         `json:"unk_token"`
	} `json:"model"`
	PreTokenizer hfPreTokenizer `json:"pre_tokenizer"`
	AddedTokens  []struct {
		ID      int    `json:"id"`
		Content string `json:"content"`
		Special bool   `json:"special"`
	} `json:"added_tokens"`
}

type hfPreTokenizer struct {
	Type          string `json:"type"`
	Pretokenizers []struct {
		Type    string `json:"type"`
		Pattern struct {
			Regex string `json:"Regex"`
		} `json:"pattern"`
	} `json:"pretokenizers"`
}

type hfConfig struct {
	BOS string `json:"bos_token"`
	EOS string `json:"eos_token"`
}

// Well-known control token spellings, tried when tokenizer_config.json does
// not name BOS or EOS.
var (
	bosNames = []string{"<s>", "<|begin_of_text|>", "<|startoftext|>", "<bos>"}
	eosNames = []string{"</s>", "<|end_of_text|>", "<|endoftext|>", "<|im_end|>", "<eos>"}
)

// LoadHFTokenizer reads tokenizer.json and, if present, tokenizer_config.json.
func LoadHFTokenizer(tokJSON, tokConfig string) (*HFTokenizer, error) {
	data, err := os.ReadFile(tokJSON)
	if err != nil {
		return nil, fmt.Errorf("read tokenizer: %w", err)
	}
	var cfg []byte
	if tokConfig != "" {
		if cfg, err = os.ReadFile(tokConfig); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read tokenizer config: %w", err)
		}
	}
	return ParseHFTokenizer(data, cfg)
}

func ParseHFTokenizer(tokJSON, tokConfig []byte) (*HFTokenizer, error) {
	var f hfFile
	if err := json.Unmarshal(tokJSON, &f); err != nil {
		return nil, fmt.Errorf("parse tokenizer.json: %w", err)
	}
	if !strings.EqualFold(f.Model.Type, "BPE") {
		return nil, fmt.Errorf("unsupported tokenizer model %q", f.Model.Type)
	}

	size := 0
	for _, id := range f.Model.Vocab {
		size = max(size, id+1)
	}
	for _, at := range f.AddedTokens {
		size = max(size, at.ID+1)
	}

	t := &HFTokenizer{
		encoder:  make(map[string]int, size),
		decoder:  make([]string, size),
		control:  make([]bool, size),
		ranks:    make(map[Pair]int, len(f.Model.Merges)),
		pattern:  preTokenizerPattern(f.PreTokenizer),
		ignoreMg: f.Model.IgnoreMerges,
		cache:    make(map[string][]string),
	}
	t.byteEnc, t.byteDec = byteUnicode()

	for tok, id := range f.Model.Vocab {
		if id < 0 {
			return nil, fmt.Errorf("negative id %d for %q", id, tok)
		}
		t.encoder[tok] = id
		t.decoder[id] = tok
	}
	for _, at := range f.AddedTokens {
		if at.ID < 0 {
			continue
		}
		t.encoder[at.Content] = at.ID
		t.decoder[at.ID] = at.Content
		if at.Special {
			t.control[at.ID] = true
			t.specials = append(t.specials, at.Content)
		}
	}
	slices.SortFunc(t.specials, func(a, b string) int { return len(b) - len(a) })

	rank := 0
	for _, raw := range f.Model.Merges {
		var a, b string
		switch v := raw.(type) {
		case string:
			var ok bool
			if a, b, ok = strings.Cut(strings.TrimSpace(v), " "); !ok {
				continue
			}
		case []any:
			if len(v) != 2 {
				continue
			}
			a, _ = v[0].(string)
			b, _ = v[1].(string)
		}
		if a == "" || b == "" || strings.HasPrefix(a, "#") {
			continue
		}
		if _, dup := t.ranks[Pair{A: a, B: b}]; !dup {
			t.ranks[Pair{A: a, B: b}] = rank
			rank++
		}
	}

	var cfg hfConfig
	if len(tokConfig) > 0 {
		if err := json.Unmarshal(tokConfig, &cfg); err != nil {
			return nil, fmt.Errorf("parse tokenizer_config.json: %w", err)
		}
	}
	t.ids = Specials{
		BOS:     t.lookup(cfg.BOS, bosNames),
		EOS:     t.lookup(cfg.EOS, eosNames),
		Unknown: t.lookup(f.Model.UnkToken, nil),
		Newline: t.lookup(t.byteEnc['\n'], nil),
	}
	for _, id := range []int{t.ids.BOS, t.ids.EOS, t.ids.Unknown} {
		if id >= 0 {
			t.control[id] = true
		}
	}
	return t, nil
}

func (t *HFTokenizer) lookup(name string, fallbacks []string) int {
	if name != "" {
		if id, ok := t.encoder[name]; ok {
			return id
		}
	}
	for _, n := range fallbacks {
		if id, ok := t.encoder[n]; ok {
			return id
		}
	}
	return -1
}

func (t *HFTokenizer) Encode(text string, addBOS bool, dst []int) (int, error) {
	ids := make([]int, 0, len(text)/2+2)
	if addBOS && t.ids.BOS >= 0 {
		ids = append(ids, t.ids.BOS)
	}
	for _, part := range splitSpecials(text, t.specials) {
		if part.special {
			ids = append(ids, t.encoder[part.text])
			continue
		}
		for _, chunk := range t.pattern.FindAllString(part.text, -1) {
			for _, sym := range t.bpe(t.byteEncode(chunk)) {
				id, ok := t.encoder[sym]
				switch {
				case ok:
					ids = append(ids, id)
				case t.ids.Unknown >= 0:
					ids = append(ids, t.ids.Unknown)
				default:
					return 0, fmt.Errorf("tokenizer: symbol %q not in vocabulary", sym)
				}
			}
		}
	}
	if len(dst) < len(ids) {
		return 0, &BufferTooSmallError{Required: len(ids), Have: len(dst)}
	}
	return copy(dst, ids), nil
}

func (t *HFTokenizer) Piece(id int) ([]byte, error) {
	if err := checkRange(id, len(t.decoder)); err != nil {
		return nil, err
	}
	if t.control[id] {
		return nil, nil
	}
	tok := t.decoder[id]
	out := make([]byte, 0, len(tok))
	for _, r := range tok {
		if b, ok := t.byteDec[r]; ok {
			out = append(out, b)
		} else {
			out = append(out, string(r)...)
		}
	}
	return out, nil
}

func (t *HFTokenizer) VocabSize() int     { return len(t.decoder) }
func (t *HFTokenizer) Specials() Specials { return t.ids }

// TokenString returns the vocabulary entry for id as stored in the file.
func (t *HFTokenizer) TokenString(id int) string {
	if id < 0 || id >= len(t.decoder) {
		return ""
	}
	return t.decoder[id]
}

func (t *HFTokenizer) byteEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		b.WriteString(t.byteEnc[s[i]])
	}
	return b.String()
}

func (t *HFTokenizer) bpe(token string) []string {
	t.mu.Lock()
	cached, ok := t.cache[token]
	t.mu.Unlock()
	if ok {
		return cached
	}

	var word []string
	if _, whole := t.encoder[token]; whole && t.ignoreMg {
		word = []string{token}
	} else {
		word = splitRunes(token)
		for len(word) > 1 {
			p, found := lowestRankPair(word, t.ranks)
			if !found {
				break
			}
			word = mergePair(word, p)
		}
	}

	t.mu.Lock()
	t.cache[token] = word
	t.mu.Unlock()
	return word
}

// preTokenizerPattern picks the Split regex from the pre-tokenizer, falling
// back to the GPT-2 pattern. Patterns using lookahead, which RE2 lacks, are
// replaced by the llama.cpp equivalent.
func preTokenizerPattern(pre hfPreTokenizer) *regexp.Regexp {
	const gpt2 = `'s|'t|'re|'ve|'m|'ll|'d| ?\p{L}+| ?\p{N}+| ?[^\s\p{L}\p{N}]+|\s+`
	pat := gpt2
	if pre.Type == "Sequence" {
		for _, p := range pre.Pretokenizers {
			if p.Type == "Split" && p.Pattern.Regex != "" {
				pat = p.Pattern.Regex
				break
			}
		}
	}
	if strings.Contains(pat, `(?!\S)`) || strings.Contains(pat, "(?i:") {
		pat = `(?:'[sS]|'[tT]|'[rR][eE]|'[vV][eE]|'[mM]|'[lL][lL]|'[dD])|[^\r\n\p{L}\p{N}]?\p{L}+|\p{N}{1,3}| ?[^\s\p{L}\p{N}]+[\r\n]*|\s*[\r\n]+|\s+`
	}
	re, err := regexp.Compile(pat)
	if err != nil {
		return regexp.MustCompile(gpt2)
	}
	return re
}
