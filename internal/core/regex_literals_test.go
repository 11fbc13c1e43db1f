package core

import (
	"reflect"
	"testing"
)

func TestExtractLiteralsWildcard(t *testing.T) {
	got := ExtractLiterals("class.*Controller")
	want := []string{"Controller", "class"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractLiteralsClassEscape(t *testing.T) {
	got := ExtractLiterals(`fn\s+test_\w+`)
	want := []string{"test_"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractLiteralsNoLiterals(t *testing.T) {
	got := ExtractLiterals(".*")
	if len(got) != 0 {
		t.Fatalf("expected no literals, got %v", got)
	}
}

func TestExtractLiteralsPureLiteral(t *testing.T) {
	got := ExtractLiterals("foobar")
	want := []string{"foobar"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestExtractLiteralsNonClassEscape(t *testing.T) {
	// \. escapes a literal dot rather than terminating the buffer.
	got := ExtractLiterals(`foo\.bar`)
	want := []string{"foo.bar"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTrigramsFromLiterals(t *testing.T) {
	tris := TrigramsFromLiterals([]string{"class", "Controller"})
	if len(tris) == 0 {
		t.Fatalf("expected non-empty trigram set")
	}
}
