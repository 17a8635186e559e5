package tokenizer

// Byte-level vocabulary: three control tokens followed by one token per byte.
const (
	ByteUnknown = 0
	ByteBOS     = 1
	ByteEOS     = 2
	byteOffset  = 3
	ByteVocab   = 256 + byteOffset
)

// ByteTokenizer maps every UTF-8 byte to its own token. It never fails to
// encode and round-trips any input exactly.
type ByteTokenizer struct{}

func NewByteTokenizer() *ByteTokenizer { return &ByteTokenizer{} }

// ByteToken returns the id of byte b.
func ByteToken(b byte) int { return int(b) + byteOffset }

func (ByteTokenizer) Encode(text string, addBOS bool, dst []int) (int, error) {
	need := len(text)
	if addBOS {
		need++
	}
	if len(dst) < need {
		return 0, &BufferTooSmallError{Required: need, Have: len(dst)}
	}
	n := 0
	if addBOS {
		dst[n] = ByteBOS
		n++
	}
	for i := 0; i < len(text); i++ {
		dst[n] = ByteToken(text[i])
		n++
	}
	return n, nil
}

func (ByteTokenizer) Piece(id int) ([]byte, error) {
	if err := checkRange(id, ByteVocab); err != nil {
		return nil, err
	}
	if id < byteOffset {
		return nil, nil
	}
	return []byte{byte(id - byteOffset)}, nil
}

func (ByteTokenizer) VocabSize() int { return ByteVocab }

func (ByteTokenizer) Specials() Specials {
	return Specials{
		BOS:     ByteBOS,
		EOS:     ByteEOS,
		Unknown: ByteUnknown,
		Newline: ByteToken('\n'),
	}
}
