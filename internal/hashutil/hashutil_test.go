package hashutil

import (
	"bytes"
	"testing"
)

func TestHashDeterministic(t *testing.T) {
	content := []byte("package main\n\nfunc main() {}\n")
	a := Hash(content)
	b := Hash(content)
	if a != b {
		t.Fatalf("expected identical hashes for identical content")
	}
	if a.IsZero() {
		t.Fatalf("expected non-zero hash")
	}
}

func TestHashDistinguishesContent(t *testing.T) {
	a := Hash([]byte("foo"))
	b := Hash([]byte("bar"))
	if a == b {
		t.Fatalf("expected different hashes for different content")
	}
}

func TestHashReaderMatchesHash(t *testing.T) {
	content := []byte("some file content\nwith multiple lines\n")
	want := Hash(content)
	got, err := HashReader(bytes.NewReader(content))
	if err != nil {
		t.Fatalf("HashReader: %v", err)
	}
	if got != want {
		t.Fatalf("HashReader result differs from Hash result")
	}
}
