package main

import (
	"bytes"
	"testing"
)

func TestStreamWriterInstant(t *testing.T) {
	var out bytes.Buffer
	w := NewStreamWriter(StreamInstant, &out)
	w.Write("he")
	if out.String() != "he" {
		t.Fatalf("instant mode should write immediately, got %q", out.String())
	}
	w.Write("llo")
	if got := w.Flush(); got != "hello" || out.String() != "hello" {
		t.Fatalf("Flush = %q, output %q", got, out.String())
	}
}

func TestStreamWriterQuiet(t *testing.T) {
	var out bytes.Buffer
	w := NewStreamWriter(StreamQuiet, &out)
	w.Write("he")
	w.Write("llo")
	if out.Len() != 0 {
		t.Fatalf("quiet mode wrote early: %q", out.String())
	}
	if got := w.Flush(); got != "hello" || out.String() != "hello" {
		t.Fatalf("Flush = %q, output %q", got, out.String())
	}
}

func TestParseStreamMode(t *testing.T) {
	cases := map[string]StreamMode{"": StreamInstant, "instant": StreamInstant, " QUIET ": StreamQuiet}
	for in, want := range cases {
		got, err := parseStreamMode(in)
		if err != nil || got != want {
			t.Fatalf("parseStreamMode(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := parseStreamMode("typewriter"); err == nil {
		t.Fatal("unknown mode should fail")
	}
}
