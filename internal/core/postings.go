// Package core implements the leaf components of the search substrate: the
// trigram codec and regex literal extractor (C1), the posting-list codec
// (C2), the trigram inverted index (C3), and the memory-mapped content
// store (C4).
package core

import (
	"encoding/binary"
	"fmt"

	"github.com/standardbeagle/reflexcore/internal/types"
)

// EncodePostingList writes locs (already sorted ascending and deduplicated
// by the caller) as delta+varint triplets per spec §4.2: each entry is
// (Δfile_id, Δline_no, Δbyte_offset) relative to the previous entry, with
// the initial "previous" taken to be all zeros.
func EncodePostingList(locs []types.FileLocation) []byte {
	buf := make([]byte, 0, len(locs)*3)
	var prevFile, prevLine, prevOffset uint32
	var varintBuf [binary.MaxVarintLen64]byte

	for _, loc := range locs {
		n := binary.PutUvarint(varintBuf[:], uint64(uint32(loc.FileID)-prevFile))
		buf = append(buf, varintBuf[:n]...)
		n = binary.PutUvarint(varintBuf[:], uint64(loc.LineNo-prevLine))
		buf = append(buf, varintBuf[:n]...)
		n = binary.PutUvarint(varintBuf[:], uint64(loc.ByteOffset-prevOffset))
		buf = append(buf, varintBuf[:n]...)

		prevFile = uint32(loc.FileID)
		prevLine = loc.LineNo
		prevOffset = loc.ByteOffset
	}
	return buf
}

// DecodePostingList reverses EncodePostingList. data must hold exactly one
// encoded posting list; the caller supplies its length out-of-band (the
// directory's compressed_size) rather than a trailing sentinel.
func DecodePostingList(data []byte) ([]types.FileLocation, error) {
	var locs []types.FileLocation
	var prevFile, prevLine, prevOffset uint32
	pos := 0

	for pos < len(data) {
		fileDelta, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("posting list: truncated file_id varint at byte %d", pos)
		}
		pos += n

		lineDelta, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("posting list: truncated line_no varint at byte %d", pos)
		}
		pos += n

		offsetDelta, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, fmt.Errorf("posting list: truncated byte_offset varint at byte %d", pos)
		}
		pos += n

		prevFile += uint32(fileDelta)
		prevLine += uint32(lineDelta)
		prevOffset += uint32(offsetDelta)

		locs = append(locs, types.FileLocation{
			FileID:     types.FileID(prevFile),
			LineNo:     prevLine,
			ByteOffset: prevOffset,
		})
	}
	return locs, nil
}
