package tokenizer

import (
	"strings"
	"unicode/utf8"
)

// Pair is two adjacent BPE symbols.
type Pair struct {
	A, B string
}

func splitRunes(s string) []string {
	out := make([]string, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// lowestRankPair returns the adjacent pair with the best merge rank.
func lowestRankPair(word []string, ranks map[Pair]int) (Pair, bool) {
	best, bestRank, found := Pair{}, 0, false
	for i := 0; i+1 < len(word); i++ {
		p := Pair{A: word[i], B: word[i+1]}
		if r, ok := ranks[p]; ok && (!found || r < bestRank) {
			best, bestRank, found = p, r, true
		}
	}
	return best, found
}

func mergePair(word []string, pair Pair) []string {
	out := word[:0:0]
	for i := 0; i < len(word); i++ {
		if i+1 < len(word) && word[i] == pair.A && word[i+1] == pair.B {
			out = append(out, pair.A+pair.B)
			i++
			continue
		}
		out = append(out, word[i])
	}
	return out
}

type textPart struct {
	text    string
	special bool
}

// splitSpecials cuts text around occurrences of special token strings,
// preferring the longest match at each offset. specials must be sorted
// longest first.
func splitSpecials(text string, specials []string) []textPart {
	if len(specials) == 0 {
		return []textPart{{text: text}}
	}
	var parts []textPart
	last := 0
	for i := 0; i < len(text); {
		match := ""
		for _, sp := range specials {
			if strings.HasPrefix(text[i:], sp) {
				match = sp
				break
			}
		}
		if match == "" {
			i++
			continue
		}
		if last < i {
			parts = append(parts, textPart{text: text[last:i]})
		}
		parts = append(parts, textPart{text: match, special: true})
		i += len(match)
		last = i
	}
	if last < len(text) {
		parts = append(parts, textPart{text: text[last:]})
	}
	return parts
}

// byteUnicode is the GPT-2 reversible mapping between raw bytes and
// printable runes used in byte-level BPE vocabularies.
func byteUnicode() (enc [256]string, dec map[rune]byte) {
	printable := func(b int) bool {
		return (b >= '!' && b <= '~') || (b >= 0xA1 && b <= 0xAC) || (b >= 0xAE && b <= 0xFF)
	}
	dec = make(map[rune]byte, 256)
	n := 0
	for b := range 256 {
		r := rune(b)
		if !printable(b) {
			r = rune(256 + n)
			n++
		}
		enc[b] = string(r)
		dec[r] = byte(b)
	}
	return enc, dec
}
