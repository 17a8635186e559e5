package tokenizer

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// ErrBufferTooSmall is matched by *BufferTooSmallError.
var ErrBufferTooSmall = errors.New("tokenizer: destination buffer too small")

// BufferTooSmallError reports the exact number of slots Encode needs.
type BufferTooSmallError struct {
	Required int
	Have     int
}

func (e *BufferTooSmallError) Error() string {
	return fmt.Sprintf("tokenizer: need %d token slots, have %d", e.Required, e.Have)
}

func (e *BufferTooSmallError) Unwrap() error { return ErrBufferTooSmall }

// Specials holds the control token ids a decode loop cares about. Any of them
// may be -1 when the vocabulary lacks it.
type Specials struct {
	BOS     int
	EOS     int
	Unknown int
	Newline int
}

// Tokenizer converts text to token ids and back.
//
// Encode writes into dst and returns the count. When dst is too short it
// writes nothing and returns a *BufferTooSmallError carrying the exact size,
// so callers can probe with a guess and retry once.
//
// Piece returns the raw bytes of one token. A piece may be an incomplete
// UTF-8 sequence; control tokens render as nothing.
type Tokenizer interface {
	Encode(text string, addBOS bool, dst []int) (int, error)
	Piece(id int) ([]byte, error)
	VocabSize() int
	Specials() Specials
}

// Decode concatenates the pieces of ids. ok is false only when the bytes end
// inside a multi-byte character whose remaining bytes have not been produced
// yet. Invalid sequences elsewhere decode as U+FFFD.
func Decode(t Tokenizer, ids []int) (text string, ok bool, err error) {
	var buf []byte
	for _, id := range ids {
		p, err := t.Piece(id)
		if err != nil {
			return "", false, err
		}
		buf = append(buf, p...)
	}
	if partialTail(buf) {
		return "", false, nil
	}
	if !utf8.Valid(buf) {
		return strings.ToValidUTF8(string(buf), string(utf8.RuneError)), true, nil
	}
	return string(buf), true, nil
}

// partialTail reports whether buf ends with the start of a character that
// needs more bytes.
func partialTail(buf []byte) bool {
	for i := len(buf) - 1; i >= 0 && i > len(buf)-utf8.UTFMax; i-- {
		if utf8.RuneStart(buf[i]) {
			return !utf8.FullRune(buf[i:])
		}
	}
	return false
}

func checkRange(id, vocab int) error {
	if id < 0 || id >= vocab {
		return fmt.Errorf("tokenizer: token id %d out of range [0,%d)", id, vocab)
	}
	return nil
}
