package core

import (
	"testing"

	"github.com/standardbeagle/reflexcore/internal/types"
)

func TestPostingListRoundTrip(t *testing.T) {
	locs := []types.FileLocation{
		{FileID: 0, LineNo: 1, ByteOffset: 0},
		{FileID: 0, LineNo: 2, ByteOffset: 10},
		{FileID: 3, LineNo: 1, ByteOffset: 5},
		{FileID: 5, LineNo: 100, ByteOffset: 9000},
	}

	encoded := EncodePostingList(locs)
	decoded, err := DecodePostingList(encoded)
	if err != nil {
		t.Fatalf("DecodePostingList: %v", err)
	}
	if len(decoded) != len(locs) {
		t.Fatalf("expected %d locations, got %d", len(locs), len(decoded))
	}
	for i := range locs {
		if decoded[i] != locs[i] {
			t.Errorf("entry %d: got %+v, want %+v", i, decoded[i], locs[i])
		}
	}
}

func TestPostingListEmpty(t *testing.T) {
	encoded := EncodePostingList(nil)
	if len(encoded) != 0 {
		t.Fatalf("expected empty encoding for empty input")
	}
	decoded, err := DecodePostingList(encoded)
	if err != nil {
		t.Fatalf("DecodePostingList: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected empty decode, got %d entries", len(decoded))
	}
}

func TestPostingListTruncated(t *testing.T) {
	_, err := DecodePostingList([]byte{0x80})
	if err == nil {
		t.Fatalf("expected error decoding truncated varint")
	}
}
