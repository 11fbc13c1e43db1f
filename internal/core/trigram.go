package core

import "github.com/standardbeagle/reflexcore/internal/types"

// ExtractTrigrams yields every trigram in content, for pattern-side
// extraction (spec §4.1). Trigrams are byte-level: non-UTF-8 input is
// tolerated.
func ExtractTrigrams(content []byte) []types.Trigram {
	if len(content) < 3 {
		return nil
	}
	trigrams := make([]types.Trigram, 0, len(content)-2)
	for i := 0; i <= len(content)-3; i++ {
		trigrams = append(trigrams, bytesToTrigram(content[i], content[i+1], content[i+2]))
	}
	return trigrams
}

// TrigramLocation pairs a trigram with the file location it occurred at,
// the unit the indexing-side extractor (below) produces for C3 to stage.
type TrigramLocation struct {
	Trigram  types.Trigram
	Location types.FileLocation
}

// ExtractTrigramsWithLocations extracts trigrams from a file's content
// alongside their 1-indexed line number and byte offset, for the Indexer
// to feed into the C3 staging structure.
func ExtractTrigramsWithLocations(content []byte, fileID types.FileID) []TrigramLocation {
	if len(content) < 3 {
		return nil
	}
	result := make([]TrigramLocation, 0, len(content)-2)
	lineNo := uint32(1)

	for i, b := range content {
		if b == '\n' {
			lineNo++
		}
		if i+2 < len(content) {
			result = append(result, TrigramLocation{
				Trigram: bytesToTrigram(content[i], content[i+1], content[i+2]),
				Location: types.FileLocation{
					FileID:     fileID,
					LineNo:     lineNo,
					ByteOffset: uint32(i),
				},
			})
		}
	}
	return result
}

func bytesToTrigram(b0, b1, b2 byte) types.Trigram {
	return types.Trigram(uint32(b0)<<16 | uint32(b1)<<8 | uint32(b2))
}

// trigramToBytes reverses bytesToTrigram; used only by tests.
func trigramToBytes(t types.Trigram) [3]byte {
	return [3]byte{byte(t >> 16), byte(t >> 8), byte(t)}
}
