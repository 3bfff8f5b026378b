package models

import (
	"bytes"
	"testing"
)

func TestProgressWriterKnownTotal(t *testing.T) {
	var buf bytes.Buffer
	pw := &progressWriter{writer: &buf, total: 10, label: "model"}

	n, err := pw.Write([]byte("hello"))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if n != 5 {
		t.Errorf("n = %d, want 5", n)
	}
	if pw.written != 5 {
		t.Errorf("written = %d, want 5", pw.written)
	}
	if buf.String() != "hello" {
		t.Errorf("underlying writer got %q, want %q", buf.String(), "hello")
	}
}

func TestProgressWriterUnknownTotal(t *testing.T) {
	var buf bytes.Buffer
	pw := &progressWriter{writer: &buf, total: -1, label: "model"}

	if _, err := pw.Write([]byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if pw.written != 4 {
		t.Errorf("written = %d, want 4", pw.written)
	}
}
