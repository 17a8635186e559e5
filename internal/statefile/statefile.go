// Package statefile persists a backend state blob with enough metadata to
// refuse loading it into an incompatible model.
//
// Layout:
//
//	magic    [8]byte  "RLSTATE\x00"
//	hdrLen   uint32   little endian
//	header   hdrLen bytes of JSON
//	body     zstd frame holding the raw blob
package statefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/goccy/go-json"
	"github.com/klauspost/compress/zstd"
	"github.com/samcharles93/rollout/internal/backend"
	"golang.org/x/sys/unix"
)

const (
	Version = 1

	prefixSize = 12
	maxHeader  = 1 << 20
)

var magic = [8]byte{'R', 'L', 'S', 'T', 'A', 'T', 'E', 0}

var (
	ErrCorrupt      = errors.New("statefile: corrupt file")
	ErrChecksum     = errors.New("statefile: checksum mismatch")
	ErrVersion      = errors.New("statefile: unsupported version")
	ErrIncompatible = errors.New("statefile: incompatible model")
)

type Header struct {
	Version     int       `json:"version"`
	Backend     string    `json:"backend"`
	ContextSize int       `json:"context_size"`
	VocabSize   int       `json:"vocab_size"`
	StateSize   int       `json:"state_size"`
	Tokens      []int     `json:"tokens,omitempty"`
	Checksum    uint64    `json:"xxhash"`
	Compressed  int       `json:"compressed_size"`
	Created     time.Time `json:"created"`
}

// NewHeader describes a blob taken from a backend with props.
func NewHeader(props backend.Properties, tokens []int) Header {
	return Header{
		Version:     Version,
		Backend:     props.Name,
		ContextSize: props.ContextSize,
		VocabSize:   props.VocabSize,
		Tokens:      tokens,
		Created:     time.Now().UTC(),
	}
}

// Compatible reports whether the blob can be loaded into a backend with props
// whose StateSize is stateSize.
func (h Header) Compatible(props backend.Properties, stateSize int) error {
	switch {
	case h.Backend != props.Name:
		return fmt.Errorf("%w: saved from %q, loading into %q", ErrIncompatible, h.Backend, props.Name)
	case h.ContextSize != props.ContextSize:
		return fmt.Errorf("%w: context %d, model has %d", ErrIncompatible, h.ContextSize, props.ContextSize)
	case h.VocabSize != props.VocabSize:
		return fmt.Errorf("%w: vocabulary %d, model has %d", ErrIncompatible, h.VocabSize, props.VocabSize)
	case h.StateSize != stateSize:
		return fmt.Errorf("%w: state %d bytes, model expects %d", ErrIncompatible, h.StateSize, stateSize)
	}
	return nil
}

var (
	encoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
	decoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
)

// Write encodes h and blob to w. StateSize, Checksum and Compressed are
// filled in from blob.
func Write(w io.Writer, h Header, blob []byte) error {
	enc, err := encoder()
	if err != nil {
		return err
	}
	body := enc.EncodeAll(blob, nil)

	h.Version = Version
	h.StateSize = len(blob)
	h.Checksum = xxhash.Sum64(blob)
	h.Compressed = len(body)
	hdr, err := json.Marshal(h)
	if err != nil {
		return fmt.Errorf("statefile: encode header: %w", err)
	}

	var prefix [prefixSize]byte
	copy(prefix[:], magic[:])
	binary.LittleEndian.PutUint32(prefix[8:], uint32(len(hdr)))
	for _, part := range [][]byte{prefix[:], hdr, body} {
		if _, err := w.Write(part); err != nil {
			return err
		}
	}
	return nil
}

// Save writes atomically by renaming a temporary file over path.
func Save(path string, h Header, blob []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".rollout-state-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := Write(tmp, h, blob); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// File is an opened snapshot. The body stays compressed until Blob is called.
type File struct {
	Header Header

	data    []byte
	body    []byte
	mmapped bool
}

// Open maps path read-only where mmap is available and reads it otherwise.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := stat.Size()
	if size < prefixSize || size > int64(int(^uint(0)>>1)) {
		return nil, ErrCorrupt
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		sf, parseErr := parse(data, true)
		if parseErr != nil {
			_ = unix.Munmap(data)
			return nil, parseErr
		}
		return sf, nil
	}

	data, err = io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return parse(data, false)
}

// Read parses a snapshot held in memory.
func Read(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return parse(data, false)
}

func parse(data []byte, mmapped bool) (*File, error) {
	if len(data) < prefixSize || !bytes.Equal(data[:8], magic[:]) {
		return nil, ErrCorrupt
	}
	n := int(binary.LittleEndian.Uint32(data[8:prefixSize]))
	if n > maxHeader || prefixSize+n > len(data) {
		return nil, fmt.Errorf("%w: header length %d", ErrCorrupt, n)
	}
	var h Header
	if err := json.Unmarshal(data[prefixSize:prefixSize+n], &h); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorrupt, err)
	}
	if h.Version != Version {
		return nil, fmt.Errorf("%w: %d", ErrVersion, h.Version)
	}
	body := data[prefixSize+n:]
	if len(body) != h.Compressed {
		return nil, fmt.Errorf("%w: body is %d bytes, header says %d", ErrCorrupt, len(body), h.Compressed)
	}
	return &File{Header: h, data: data, body: body, mmapped: mmapped}, nil
}

// Blob decompresses the state and verifies its length and checksum.
func (f *File) Blob() ([]byte, error) {
	if f == nil || f.data == nil {
		return nil, ErrCorrupt
	}
	dec, err := decoder()
	if err != nil {
		return nil, err
	}
	blob, err := dec.DecodeAll(f.body, make([]byte, 0, f.Header.StateSize))
	if err != nil {
		return nil, fmt.Errorf("%w: body: %v", ErrCorrupt, err)
	}
	if len(blob) != f.Header.StateSize {
		return nil, fmt.Errorf("%w: state is %d bytes, header says %d", ErrCorrupt, len(blob), f.Header.StateSize)
	}
	if xxhash.Sum64(blob) != f.Header.Checksum {
		return nil, ErrChecksum
	}
	return blob, nil
}

func (f *File) Close() error {
	if f == nil || f.data == nil {
		return nil
	}
	var err error
	if f.mmapped {
		err = unix.Munmap(f.data)
	}
	f.data, f.body, f.mmapped = nil, nil, false
	return err
}
