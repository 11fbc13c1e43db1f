package core

import (
	"testing"

	"github.com/standardbeagle/reflexcore/internal/types"
)

func TestExtractTrigrams(t *testing.T) {
	got := ExtractTrigrams([]byte("hello"))
	want := []types.Trigram{
		bytesToTrigram('h', 'e', 'l'),
		bytesToTrigram('e', 'l', 'l'),
		bytesToTrigram('l', 'l', 'o'),
	}
	if len(got) != len(want) {
		t.Fatalf("got %d trigrams, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("trigram %d: got %x, want %x", i, got[i], want[i])
		}
	}
}

func TestExtractTrigramsShort(t *testing.T) {
	if n := len(ExtractTrigrams([]byte("ab"))); n != 0 {
		t.Errorf("expected 0 trigrams for 2-byte input, got %d", n)
	}
	if n := len(ExtractTrigrams([]byte("abc"))); n != 1 {
		t.Errorf("expected 1 trigram for 3-byte input, got %d", n)
	}
}

func TestBytesToTrigramRoundTrip(t *testing.T) {
	tri := bytesToTrigram('f', 'o', 'o')
	back := trigramToBytes(tri)
	if back != [3]byte{'f', 'o', 'o'} {
		t.Errorf("round trip failed: got %v", back)
	}
}

func TestExtractTrigramsWithLocations(t *testing.T) {
	locs := ExtractTrigramsWithLocations([]byte("hello\nworld"), 0)

	// "hello\nworld" is 11 bytes -> 9 trigrams.
	if len(locs) != 9 {
		t.Fatalf("expected 9 trigram locations, got %d", len(locs))
	}
	if locs[0].Location.LineNo != 1 {
		t.Errorf("expected first trigram on line 1, got %d", locs[0].Location.LineNo)
	}

	worldStart := uint32(6) // byte offset of 'w' in "hello\nworld"
	for _, tl := range locs {
		if tl.Location.ByteOffset == worldStart {
			if tl.Location.LineNo != 2 {
				t.Errorf("expected line 2 at world start, got %d", tl.Location.LineNo)
			}
		}
	}
}
