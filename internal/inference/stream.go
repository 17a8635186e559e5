package inference

import "strings"

// Detokenizer turns a run of token ids back into text. ok is false while the
// bytes end inside a multi-byte character.
type Detokenizer interface {
	Detokenize(ids []int) (text string, ok bool, err error)
}

// StreamDecoder buffers sampled tokens until they decode to non-blank text.
// Whitespace-only text stays pending and is emitted as the prefix of the
// next visible chunk, so joined chunks equal the decoded sequence minus any
// trailing whitespace.
type StreamDecoder struct {
	dec     Detokenizer
	pending []int
}

func NewStreamDecoder(dec Detokenizer) *StreamDecoder {
	return &StreamDecoder{dec: dec, pending: make([]int, 0, 8)}
}

// Push adds id and returns the chunk to emit, if any.
func (s *StreamDecoder) Push(id int) (chunk string, emitted bool, err error) {
	s.pending = append(s.pending, id)
	text, ok, err := s.dec.Detokenize(s.pending)
	if err != nil {
		s.pending = s.pending[:len(s.pending)-1]
		return "", false, err
	}
	if !ok || strings.TrimSpace(text) == "" {
		return "", false, nil
	}
	s.pending = s.pending[:0]
	return text, true, nil
}

// Flush returns whatever the pending tokens decode to, blank or not, and
// clears them. Undecodable bytes are dropped.
func (s *StreamDecoder) Flush() (string, error) {
	if len(s.pending) == 0 {
		return "", nil
	}
	text, ok, err := s.dec.Detokenize(s.pending)
	s.pending = s.pending[:0]
	if err != nil || !ok {
		return "", err
	}
	return text, nil
}

// Pending is the number of buffered tokens.
func (s *StreamDecoder) Pending() int { return len(s.pending) }
