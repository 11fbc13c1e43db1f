// Package hashutil computes the content-addressed hash the Indexer (C7)
// uses to detect unchanged files and key the symbol cache (spec §4.7).
package hashutil

import (
	"io"

	"github.com/standardbeagle/reflexcore/internal/types"
	"lukechampine.com/blake3"
)

// Hash computes the 256-bit BLAKE3 digest of content.
func Hash(content []byte) types.ContentHash {
	sum := blake3.Sum256(content)
	return types.ContentHash(sum)
}

// HashReader streams r through BLAKE3 without buffering the whole input,
// for files the Indexer reads incrementally rather than loading whole.
func HashReader(r io.Reader) (types.ContentHash, error) {
	h := blake3.New(32, nil)
	if _, err := io.Copy(h, r); err != nil {
		return types.ContentHash{}, err
	}
	var out types.ContentHash
	copy(out[:], h.Sum(nil))
	return out, nil
}
