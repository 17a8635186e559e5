package statefile

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"github.com/samcharles93/rollout/internal/backend"
)

var props = backend.Properties{Name: "toy", ContextSize: 64, VocabSize: 259}

func testBlob() []byte {
	blob := make([]byte, 4+4*64)
	for i := range blob {
		blob[i] = byte(i % 7)
	}
	return blob
}

func TestSaveOpenRoundTrip(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "session.state")
	blob := testBlob()
	if err := Save(path, NewHeader(props, []int{1, 2, 3}), blob); err != nil {
		t.Fatalf("save: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil {
			t.Fatalf("close: %v", cerr)
		}
	}()

	if f.Header.StateSize != len(blob) || !slices.Equal(f.Header.Tokens, []int{1, 2, 3}) {
		t.Fatalf("header = %+v", f.Header)
	}
	if err := f.Header.Compatible(props, len(blob)); err != nil {
		t.Fatal(err)
	}
	got, err := f.Blob()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, blob) {
		t.Fatal("blob changed across save and open")
	}
}

func TestCompatible(t *testing.T) {
	t.Parallel()
	h := NewHeader(props, nil)
	h.StateSize = 100
	other := props
	other.ContextSize = 128
	if err := h.Compatible(other, 100); !errors.Is(err, ErrIncompatible) {
		t.Fatalf("context mismatch: %v", err)
	}
	if err := h.Compatible(props, 99); !errors.Is(err, ErrIncompatible) {
		t.Fatalf("state size mismatch: %v", err)
	}
}

func TestDetectsCorruption(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := Write(&buf, NewHeader(props, nil), testBlob()); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()

	if _, err := Read(bytes.NewReader(raw[:5])); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("truncated prefix: %v", err)
	}
	bad := slices.Clone(raw)
	bad[0] = 'X'
	if _, err := Read(bytes.NewReader(bad)); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("bad magic: %v", err)
	}
	if _, err := Read(bytes.NewReader(raw[:len(raw)-1])); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("truncated body: %v", err)
	}

	f, err := Read(bytes.NewReader(raw))
	if err != nil {
		t.Fatal(err)
	}
	f.Header.Checksum++
	if _, err := f.Blob(); !errors.Is(err, ErrChecksum) {
		t.Fatalf("checksum: %v", err)
	}
}

func TestOpenMissing(t *testing.T) {
	t.Parallel()
	if _, err := Open(filepath.Join(t.TempDir(), "none")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist, got %v", err)
	}
}
