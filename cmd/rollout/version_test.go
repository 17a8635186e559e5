package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/samcharles93/rollout/internal/version"
)

func TestWriteVersion(t *testing.T) {
	var buf bytes.Buffer
	info := version.Info{Version: "v1.2.3", GoVersion: "go1.26.0", Modified: true}
	if err := writeVersion(&buf, info); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"version:    v1.2.3\n",
		"go:         go1.26.0\n",
		"user agent: " + version.UserAgent() + "\n",
		"tree:       modified\n",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "commit:") || strings.Contains(out, "built:") {
		t.Fatalf("empty fields printed:\n%s", out)
	}
	if !strings.Contains(out, "backends:") || !strings.Contains(out, "toy") {
		t.Fatalf("registered backends not listed:\n%s", out)
	}
}
