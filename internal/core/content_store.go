package core

import (
	"bufio"
	"encoding/binary"
	"os"
	"strings"
	"unicode/utf8"

	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
	"github.com/standardbeagle/reflexcore/internal/types"

	mmap "github.com/edsrzf/mmap-go"
)

const (
	contentMagic      = "RFCT"
	contentVersion    = uint32(1)
	contentHeaderSize = 32
)

type contentFileEntry struct {
	path   string
	offset uint64
	length uint64
}

// ContentWriter is C4's build-mode handle. Streaming mode (after Init) is
// the default the Indexer uses for real workspaces; the in-memory fallback
// exists for callers (tests) that build a store without a destination path
// up front. Both paths must produce bit-identical files for the same input
// (spec §4.4).
type ContentWriter struct {
	files  []contentFileEntry
	path   string
	f      *os.File
	w      *bufio.Writer
	offset uint64

	memContent []byte
}

// NewContentWriter returns a writer in in-memory mode; call Init to switch
// to streaming mode before AddFile.
func NewContentWriter() *ContentWriter { return &ContentWriter{} }

// Init creates path and writes a placeholder header, switching the writer
// into streaming mode: subsequent AddFile calls append straight to disk
// rather than buffering in RAM.
func (cw *ContentWriter) Init(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return rcerrors.NewIoError("create", path, err)
	}
	cw.f = f
	cw.w = bufio.NewWriterSize(f, 16*1024*1024)
	cw.path = path

	var placeholder [contentHeaderSize]byte
	copy(placeholder[0:4], contentMagic)
	binary.LittleEndian.PutUint32(placeholder[4:8], contentVersion)
	if _, err := cw.w.Write(placeholder[:]); err != nil {
		return err
	}
	cw.offset = 0
	return nil
}

// AddFile appends content and returns its file_id. In streaming mode the
// bytes are written immediately; in in-memory mode they are buffered.
func (cw *ContentWriter) AddFile(path string, content []byte) types.FileID {
	id := types.FileID(len(cw.files))
	length := uint64(len(content))

	if cw.w != nil {
		offset := cw.offset
		cw.w.Write(content) //nolint:errcheck // surfaced by Finalize's flush/sync
		cw.offset += length
		cw.files = append(cw.files, contentFileEntry{path: path, offset: offset, length: length})
	} else {
		offset := uint64(len(cw.memContent))
		cw.memContent = append(cw.memContent, content...)
		cw.files = append(cw.files, contentFileEntry{path: path, offset: offset, length: length})
	}
	return id
}

// FileCount reports how many files have been added so far.
func (cw *ContentWriter) FileCount() int { return len(cw.files) }

// Write finalizes the store at path. If Init was never called (pure
// in-memory mode), it builds the whole file in one pass; otherwise it
// finalizes the already-streaming file.
func (cw *ContentWriter) Write(path string) error {
	if cw.w == nil && cw.f == nil {
		return cw.writeInMemory(path)
	}
	return cw.Finalize()
}

// Finalize writes the trailing file index and rewrites the header with the
// final num_files and index_offset. Safe to call once; a second call is a
// no-op.
func (cw *ContentWriter) Finalize() error {
	if cw.w == nil {
		return nil
	}
	indexOffset := uint64(contentHeaderSize) + cw.offset

	if err := writeContentFileIndex(cw.w, cw.files); err != nil {
		return err
	}
	if err := cw.w.Flush(); err != nil {
		return err
	}

	if _, err := cw.f.Seek(0, 0); err != nil {
		return err
	}
	var hdr [contentHeaderSize]byte
	copy(hdr[0:4], contentMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], contentVersion)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(cw.files)))
	binary.LittleEndian.PutUint64(hdr[16:24], indexOffset)
	if _, err := cw.f.WriteAt(hdr[:], 0); err != nil {
		return err
	}
	if err := cw.f.Sync(); err != nil {
		return err
	}
	err := cw.f.Close()
	cw.w = nil
	cw.f = nil
	return err
}

func (cw *ContentWriter) writeInMemory(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return rcerrors.NewIoError("create", path, err)
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 8*1024*1024)

	indexOffset := uint64(contentHeaderSize) + uint64(len(cw.memContent))

	var hdr [contentHeaderSize]byte
	copy(hdr[0:4], contentMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], contentVersion)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(cw.files)))
	binary.LittleEndian.PutUint64(hdr[16:24], indexOffset)
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	if _, err := w.Write(cw.memContent); err != nil {
		return err
	}
	if err := writeContentFileIndex(w, cw.files); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func writeContentFileIndex(w *bufio.Writer, files []contentFileEntry) error {
	var lenBuf [4]byte
	var u64Buf [8]byte
	for _, e := range files {
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(e.path)))
		if _, err := w.Write(lenBuf[:]); err != nil {
			return err
		}
		if _, err := w.WriteString(e.path); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(u64Buf[:], e.offset)
		if _, err := w.Write(u64Buf[:]); err != nil {
			return err
		}
		binary.LittleEndian.PutUint64(u64Buf[:], e.length)
		if _, err := w.Write(u64Buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// ContentReader is C4's read-mode handle: a memory-mapped content.bin
// offering zero-copy reads (spec §4.4).
type ContentReader struct {
	data  mmap.MMap
	f     *os.File
	files []contentFileEntry
}

// OpenContentReader memory-maps path and reads its trailing file index.
func OpenContentReader(path string) (*ContentReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rcerrors.NewIoError("open", path, err)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, rcerrors.NewIoError("mmap", path, err)
	}

	cr, err := parseContentReader(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	cr.f = f
	return cr, nil
}

func parseContentReader(data []byte) (*ContentReader, error) {
	if len(data) < contentHeaderSize {
		return nil, rcerrors.NewCorruptArtifactError("content.bin", "truncated header", nil)
	}
	if string(data[0:4]) != contentMagic {
		return nil, rcerrors.NewCorruptArtifactError("content.bin", "wrong magic", nil)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != contentVersion {
		return nil, rcerrors.NewCorruptArtifactError("content.bin", "unsupported version", nil)
	}
	numFiles := binary.LittleEndian.Uint64(data[8:16])
	indexOffset := binary.LittleEndian.Uint64(data[16:24])

	pos := int(indexOffset)
	files := make([]contentFileEntry, 0, numFiles)
	for i := uint64(0); i < numFiles; i++ {
		if pos+4 > len(data) {
			return nil, rcerrors.NewCorruptArtifactError("content.bin", "truncated file index entry", nil)
		}
		pathLen := int(binary.LittleEndian.Uint32(data[pos : pos+4]))
		pos += 4
		if pos+pathLen+16 > len(data) {
			return nil, rcerrors.NewCorruptArtifactError("content.bin", "truncated file index entry", nil)
		}
		path := string(data[pos : pos+pathLen])
		pos += pathLen
		offset := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8
		length := binary.LittleEndian.Uint64(data[pos : pos+8])
		pos += 8

		files = append(files, contentFileEntry{path: path, offset: offset, length: length})
	}

	return &ContentReader{data: data, files: files}, nil
}

// Close unmaps the content store and closes its file handle.
func (cr *ContentReader) Close() error {
	if err := cr.data.Unmap(); err != nil {
		return err
	}
	return cr.f.Close()
}

// FileCount reports the number of files in the store.
func (cr *ContentReader) FileCount() int { return len(cr.files) }

// GetPath returns the workspace-relative path for fileID.
func (cr *ContentReader) GetPath(fileID types.FileID) (string, bool) {
	i := int(fileID)
	if i < 0 || i >= len(cr.files) {
		return "", false
	}
	return cr.files[i].path, true
}

// FindIDByPath returns the file_id for path, tolerating an optional "./"
// prefix on either side (spec §4.4).
func (cr *ContentReader) FindIDByPath(path string) (types.FileID, bool) {
	normalized := strings.TrimPrefix(path, "./")
	for i, e := range cr.files {
		if strings.TrimPrefix(e.path, "./") == normalized {
			return types.FileID(i), true
		}
	}
	return 0, false
}

// GetContent returns the UTF-8 validated content of fileID.
func (cr *ContentReader) GetContent(fileID types.FileID) (string, error) {
	entry, ok := cr.entry(fileID)
	if !ok {
		return "", rcerrors.NewCorruptArtifactError("content.bin", "invalid file_id", nil)
	}
	start := contentHeaderSize + int(entry.offset)
	end := start + int(entry.length)
	if end > len(cr.data) {
		return "", rcerrors.NewCorruptArtifactError("content.bin", "content out of bounds", nil)
	}
	b := cr.data[start:end]
	if !utf8.Valid(b) {
		return "", rcerrors.NewCorruptArtifactError("content.bin", "invalid UTF-8 in file content", nil)
	}
	return string(b), nil
}

// GetContentAtOffset returns length bytes starting byteOffset into fileID's
// content, UTF-8 validated.
func (cr *ContentReader) GetContentAtOffset(fileID types.FileID, byteOffset uint32, length int) (string, error) {
	entry, ok := cr.entry(fileID)
	if !ok {
		return "", rcerrors.NewCorruptArtifactError("content.bin", "invalid file_id", nil)
	}
	start := contentHeaderSize + int(entry.offset) + int(byteOffset)
	end := start + length
	if end > len(cr.data) {
		return "", rcerrors.NewCorruptArtifactError("content.bin", "content out of bounds", nil)
	}
	b := cr.data[start:end]
	if !utf8.Valid(b) {
		return "", rcerrors.NewCorruptArtifactError("content.bin", "invalid UTF-8 in content", nil)
	}
	return string(b), nil
}

func (cr *ContentReader) entry(fileID types.FileID) (contentFileEntry, bool) {
	i := int(fileID)
	if i < 0 || i >= len(cr.files) {
		return contentFileEntry{}, false
	}
	return cr.files[i], true
}

// Context is the (before, matching, after) triple context_by_byte_offset
// and context_by_line return (spec §4.4).
type Context struct {
	Before  []string
	Line    string // empty for context_by_line, which has no single matching line
	After   []string
}

// ContextByByteOffset locates the line containing byteOffset and returns up
// to contextLines of surrounding lines plus the matching line itself.
func (cr *ContentReader) ContextByByteOffset(fileID types.FileID, byteOffset uint32, contextLines int) (Context, error) {
	content, err := cr.GetContent(fileID)
	if err != nil {
		return Context{}, err
	}
	lines := strings.Split(content, "\n")

	lineIdx := 0
	current := 0
	for i, line := range lines {
		lineEnd := current + len(line) + 1
		if int(byteOffset) >= current && int(byteOffset) < lineEnd {
			lineIdx = i
			break
		}
		current = lineEnd
	}

	start := lineIdx - contextLines
	if start < 0 {
		start = 0
	}
	end := lineIdx + contextLines + 1
	if end > len(lines) {
		end = len(lines)
	}

	var matching string
	if lineIdx < len(lines) {
		matching = lines[lineIdx]
	}

	return Context{
		Before: append([]string{}, lines[start:lineIdx]...),
		Line:   matching,
		After:  append([]string{}, lines[lineIdx+1:end]...),
	}, nil
}

// ContextByLine returns up to contextLines before and after the 1-indexed
// lineNo, without the matching line itself (callers already have it).
func (cr *ContentReader) ContextByLine(fileID types.FileID, lineNo int, contextLines int) (Context, error) {
	content, err := cr.GetContent(fileID)
	if err != nil {
		return Context{}, err
	}
	lines := strings.Split(content, "\n")
	lineIdx := lineNo - 1
	if lineIdx < 0 {
		lineIdx = 0
	}

	start := lineIdx - contextLines
	if start < 0 {
		start = 0
	}
	end := lineIdx + contextLines + 1
	if end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		start = len(lines)
	}
	if lineIdx > len(lines) {
		lineIdx = len(lines)
	}

	before := lines[start:min(lineIdx, len(lines))]
	var after []string
	if lineIdx+1 <= len(lines) {
		after = lines[min(lineIdx+1, len(lines)):end]
	}

	return Context{
		Before: append([]string{}, before...),
		After:  append([]string{}, after...),
	}, nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
