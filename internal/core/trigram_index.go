package core

import (
	"bufio"
	"container/heap"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"

	rcerrors "github.com/standardbeagle/reflexcore/internal/errors"
	"github.com/standardbeagle/reflexcore/internal/obs"
	"github.com/standardbeagle/reflexcore/internal/types"

	"github.com/cespare/xxhash/v2"
	mmap "github.com/edsrzf/mmap-go"
)

const (
	trigramMagic      = "RFTG"
	trigramVersion    = uint32(3)
	trigramHeaderSize = 24
	directoryEntrySz  = 16

	// defaultBatchFlushThreshold is the staged-location count (summed across
	// shards) that triggers a partial-run flush for large corpora (spec
	// §4.3 batch-flush mode; threshold is implementation-defined).
	defaultBatchFlushThreshold = 2_000_000
	numStagingShards           = 16
)

// stagingShard is one partition of the staging HashMap<Trigram, []FileLocation>
// analogue, guarded independently so concurrent IndexFile calls (spec §5)
// don't serialize on a single mutex.
type stagingShard struct {
	mu sync.Mutex
	m  map[types.Trigram][]types.FileLocation
}

func newStagingShard() *stagingShard {
	return &stagingShard{m: make(map[types.Trigram][]types.FileLocation)}
}

func shardFor(shards []*stagingShard, t types.Trigram) *stagingShard {
	var key [4]byte
	binary.LittleEndian.PutUint32(key[:], uint32(t))
	h := xxhash.Sum64(key[:])
	return shards[h%uint64(len(shards))]
}

// TrigramBuilder is C3's build-mode handle: "initialized → appending →
// finalized" (spec §9). It accumulates (trigram, location) pairs across
// files, optionally batch-flushing partial runs to bound memory, then
// produces the final on-disk artifact.
type TrigramBuilder struct {
	mu    sync.Mutex
	files []string

	shards []*stagingShard

	batchFlushEnabled bool
	batchThreshold    int
	tempDir           string
	partialRuns       []string

	finalized  bool
	finalIndex []trigramEntry // populated by Finalize when no partial runs exist
}

type trigramEntry struct {
	trigram types.Trigram
	locs    []types.FileLocation
}

// NewTrigramBuilder returns an empty builder in "appending" state.
func NewTrigramBuilder() *TrigramBuilder {
	shards := make([]*stagingShard, numStagingShards)
	for i := range shards {
		shards[i] = newStagingShard()
	}
	return &TrigramBuilder{shards: shards}
}

// EnableBatchFlush switches the builder into batch-flush mode for large
// corpora: once the staged location count reaches threshold (0 selects
// defaultBatchFlushThreshold), the staging map is flushed to a partial run
// file under tempDir and evicted from memory (spec §4.3, [SUPPLEMENT]).
func (b *TrigramBuilder) EnableBatchFlush(tempDir string, threshold int) error {
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return rcerrors.NewIoError("mkdir", tempDir, err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.batchFlushEnabled = true
	b.tempDir = tempDir
	if threshold <= 0 {
		threshold = defaultBatchFlushThreshold
	}
	b.batchThreshold = threshold
	obs.LogIndex("batch-flush enabled, threshold=%d locations", b.batchThreshold)
	return nil
}

// AddFile registers path and returns its sequential file_id (spec §4.3).
func (b *TrigramBuilder) AddFile(path string) types.FileID {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := types.FileID(len(b.files))
	b.files = append(b.files, path)
	return id
}

// IndexFile accumulates content's trigrams into the staging structure. Safe
// to call concurrently for distinct files.
func (b *TrigramBuilder) IndexFile(fileID types.FileID, content []byte) {
	for _, tl := range ExtractTrigramsWithLocations(content, fileID) {
		shard := shardFor(b.shards, tl.Trigram)
		shard.mu.Lock()
		shard.m[tl.Trigram] = append(shard.m[tl.Trigram], tl.Location)
		shard.mu.Unlock()
	}

	b.mu.Lock()
	enabled, threshold := b.batchFlushEnabled, b.batchThreshold
	b.mu.Unlock()

	if enabled && b.stagedLocationCount() >= threshold {
		b.mu.Lock()
		err := b.flushBatchLocked()
		b.mu.Unlock()
		if err != nil {
			obs.LogError("INDEX", err)
		}
	}
}

func (b *TrigramBuilder) stagedLocationCount() int {
	total := 0
	for _, s := range b.shards {
		s.mu.Lock()
		for _, locs := range s.m {
			total += len(locs)
		}
		s.mu.Unlock()
	}
	return total
}

// flushBatchLocked drains every shard into a sorted partial-run file. b.mu
// must be held.
func (b *TrigramBuilder) flushBatchLocked() error {
	merged := make(map[types.Trigram][]types.FileLocation)
	for _, s := range b.shards {
		s.mu.Lock()
		for t, locs := range s.m {
			merged[t] = append(merged[t], locs...)
		}
		s.m = make(map[types.Trigram][]types.FileLocation)
		s.mu.Unlock()
	}
	if len(merged) == 0 {
		return nil
	}

	entries := make([]trigramEntry, 0, len(merged))
	for t, locs := range merged {
		sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
		locs = dedupLocations(locs)
		entries = append(entries, trigramEntry{trigram: t, locs: locs})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].trigram < entries[j].trigram })

	path := filepath.Join(b.tempDir, fmt.Sprintf("partial_%d.bin", len(b.partialRuns)))
	if err := writePartialRun(path, entries); err != nil {
		return rcerrors.NewIoError("write partial run", path, err)
	}
	b.partialRuns = append(b.partialRuns, path)
	obs.LogIndex("flushed batch %d with %d trigrams to %s", len(b.partialRuns), len(entries), path)
	return nil
}

func dedupLocations(locs []types.FileLocation) []types.FileLocation {
	out := locs[:0]
	var prev types.FileLocation
	for i, l := range locs {
		if i > 0 && l == prev {
			continue
		}
		out = append(out, l)
		prev = l
	}
	return out
}

// writePartialRun serializes entries as: num_trigrams u64, then per entry
// trigram u32 | count u32 | count×{file_id u32 | line_no u32 | byte_offset
// u32} — an uncompressed intermediate format consumed only by the k-way
// merge, distinct from the final compressed on-disk format.
func writePartialRun(path string, entries []trigramEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriterSize(f, 16*1024*1024)

	var hdr [8]byte
	binary.LittleEndian.PutUint64(hdr[:], uint64(len(entries)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	var buf [12]byte
	for _, e := range entries {
		binary.LittleEndian.PutUint32(buf[:4], uint32(e.trigram))
		if _, err := w.Write(buf[:4]); err != nil {
			return err
		}
		binary.LittleEndian.PutUint32(buf[:4], uint32(len(e.locs)))
		if _, err := w.Write(buf[:4]); err != nil {
			return err
		}
		for _, loc := range e.locs {
			binary.LittleEndian.PutUint32(buf[0:4], uint32(loc.FileID))
			binary.LittleEndian.PutUint32(buf[4:8], loc.LineNo)
			binary.LittleEndian.PutUint32(buf[8:12], loc.ByteOffset)
			if _, err := w.Write(buf[:]); err != nil {
				return err
			}
		}
	}
	return w.Flush()
}

// Finalize closes the builder for further IndexFile calls. With no partial
// runs it sorts and dedups the in-memory staging map so Search and WriteTo
// can use it directly; with partial runs, it flushes any remaining staged
// entries as a final run and defers merging to WriteTo (spec §4.3).
func (b *TrigramBuilder) Finalize() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil
	}
	b.finalized = true

	if b.batchFlushEnabled && len(b.partialRuns) > 0 {
		if b.stagedLocationCount() > 0 {
			if err := b.flushBatchLocked(); err != nil {
				return err
			}
		}
		return nil
	}

	merged := make(map[types.Trigram][]types.FileLocation)
	for _, s := range b.shards {
		s.mu.Lock()
		for t, locs := range s.m {
			merged[t] = append(merged[t], locs...)
		}
		s.mu.Unlock()
	}

	entries := make([]trigramEntry, 0, len(merged))
	for t, locs := range merged {
		sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
		entries = append(entries, trigramEntry{trigram: t, locs: dedupLocations(locs)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].trigram < entries[j].trigram })
	b.finalIndex = entries
	return nil
}

// Search queries the builder directly (no disk round trip), used by tests
// validating spec §8 property 3 (in-memory vs. on-disk parity) and by
// small workspaces that never enable batch-flush.
func (b *TrigramBuilder) Search(pattern string) []types.FileLocation {
	if len(pattern) < 3 {
		return nil
	}
	trigrams := dedupTrigrams(ExtractTrigrams([]byte(pattern)))

	b.mu.Lock()
	defer b.mu.Unlock()

	lists := make([][]types.FileLocation, 0, len(trigrams))
	for _, t := range trigrams {
		idx := sort.Search(len(b.finalIndex), func(i int) bool { return b.finalIndex[i].trigram >= t })
		if idx >= len(b.finalIndex) || b.finalIndex[idx].trigram != t {
			return nil
		}
		lists = append(lists, b.finalIndex[idx].locs)
	}
	return intersectByFileLine(lists)
}

func dedupTrigrams(in []types.Trigram) []types.Trigram {
	seen := make(map[types.Trigram]struct{}, len(in))
	out := in[:0]
	for _, t := range in {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// intersectByFileLine implements spec §4.3 step 5: a (file_id, line_no)
// pair is a candidate iff every list contains it; one representative
// location per surviving pair is returned, taken from the shortest list.
func intersectByFileLine(lists [][]types.FileLocation) []types.FileLocation {
	if len(lists) == 0 {
		return nil
	}
	sort.Slice(lists, func(i, j int) bool { return len(lists[i]) < len(lists[j]) })

	type key struct {
		file types.FileID
		line uint32
	}
	candidates := make(map[key]types.FileLocation, len(lists[0]))
	for _, l := range lists[0] {
		candidates[key{l.FileID, l.LineNo}] = l
	}

	for _, list := range lists[1:] {
		present := make(map[key]struct{}, len(list))
		for _, l := range list {
			present[key{l.FileID, l.LineNo}] = struct{}{}
		}
		for k := range candidates {
			if _, ok := present[k]; !ok {
				delete(candidates, k)
			}
		}
	}

	out := make([]types.FileLocation, 0, len(candidates))
	for _, loc := range candidates {
		out = append(out, loc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}

// WriteTo writes the final trigrams.bin at path, per the format in spec
// §4.3. With partial runs pending it performs a streaming k-way merge;
// otherwise it writes directly from the sorted in-memory index. Both paths
// must produce identical bytes for identical logical content (spec §4.3).
func (b *TrigramBuilder) WriteTo(path string) error {
	if !b.finalized {
		if err := b.Finalize(); err != nil {
			return err
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.partialRuns) > 0 {
		return b.mergeAndWriteLocked(path)
	}
	return writeTrigramFile(path, b.finalIndex, b.files)
}

func writeTrigramFile(path string, entries []trigramEntry, files []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return rcerrors.NewIoError("create", path, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	w := bufio.NewWriterSize(f, 16*1024*1024)

	compressed := make([][]byte, len(entries))
	directoryStart := uint64(trigramHeaderSize)
	dataStart := directoryStart + uint64(len(entries))*directoryEntrySz
	offset := dataStart
	dirOffsets := make([]uint64, len(entries))
	dirSizes := make([]uint32, len(entries))
	for i, e := range entries {
		c := EncodePostingList(e.locs)
		compressed[i] = c
		dirOffsets[i] = offset
		dirSizes[i] = uint32(len(c))
		offset += uint64(len(c))
	}

	var hdr [trigramHeaderSize]byte
	copy(hdr[0:4], trigramMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], trigramVersion)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(entries)))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(len(files)))
	if _, err = w.Write(hdr[:]); err != nil {
		return err
	}

	var dirBuf [directoryEntrySz]byte
	for i, e := range entries {
		binary.LittleEndian.PutUint32(dirBuf[0:4], uint32(e.trigram))
		binary.LittleEndian.PutUint64(dirBuf[4:12], dirOffsets[i])
		binary.LittleEndian.PutUint32(dirBuf[12:16], dirSizes[i])
		if _, err = w.Write(dirBuf[:]); err != nil {
			return err
		}
	}

	for _, c := range compressed {
		if _, err = w.Write(c); err != nil {
			return err
		}
	}

	if err = writeFilePaths(w, files); err != nil {
		return err
	}
	if err = w.Flush(); err != nil {
		return err
	}
	return f.Sync()
}

func writeFilePaths(w io.Writer, files []string) error {
	var varintBuf [binary.MaxVarintLen64]byte
	for _, path := range files {
		n := binary.PutUvarint(varintBuf[:], uint64(len(path)))
		if _, err := w.Write(varintBuf[:n]); err != nil {
			return err
		}
		if _, err := io.WriteString(w, path); err != nil {
			return err
		}
	}
	return nil
}

// heapItem is one entry in the k-way merge's min-heap, ordered by trigram
// then by reader index to keep the merge deterministic (spec §4.3: merge
// path must match the in-memory path modulo tie-breaking among equal
// locations, eliminated by dedup).
type heapItem struct {
	trigram  types.Trigram
	readerID int
}

type mergeHeap []heapItem

func (h mergeHeap) Len() int { return len(h) }
func (h mergeHeap) Less(i, j int) bool {
	if h[i].trigram != h[j].trigram {
		return h[i].trigram < h[j].trigram
	}
	return h[i].readerID < h[j].readerID
}
func (h mergeHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }
func (h *mergeHeap) Push(x any)        { *h = append(*h, x.(heapItem)) }
func (h *mergeHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

type partialRunReader struct {
	r              *bufio.Reader
	f              *os.File
	current        types.Trigram
	currentLocs    []types.FileLocation
	exhausted      bool
}

func openPartialRun(path string) (*partialRunReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r := bufio.NewReaderSize(f, 16*1024*1024)
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		f.Close()
		return nil, err
	}
	pr := &partialRunReader{r: r, f: f}
	if err := pr.advance(); err != nil && err != io.EOF {
		f.Close()
		return nil, err
	}
	return pr, nil
}

func (pr *partialRunReader) advance() error {
	var tbuf [4]byte
	if _, err := io.ReadFull(pr.r, tbuf[:]); err != nil {
		pr.exhausted = true
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return err
	}
	pr.current = types.Trigram(binary.LittleEndian.Uint32(tbuf[:]))

	var cbuf [4]byte
	if _, err := io.ReadFull(pr.r, cbuf[:]); err != nil {
		return err
	}
	count := binary.LittleEndian.Uint32(cbuf[:])

	locs := make([]types.FileLocation, count)
	var lbuf [12]byte
	for i := uint32(0); i < count; i++ {
		if _, err := io.ReadFull(pr.r, lbuf[:]); err != nil {
			return err
		}
		locs[i] = types.FileLocation{
			FileID:     types.FileID(binary.LittleEndian.Uint32(lbuf[0:4])),
			LineNo:     binary.LittleEndian.Uint32(lbuf[4:8]),
			ByteOffset: binary.LittleEndian.Uint32(lbuf[8:12]),
		}
	}
	pr.currentLocs = locs
	return nil
}

func (pr *partialRunReader) close() { pr.f.Close() }

// mergeAndWriteLocked streams all partial runs through a min-heap k-way
// merge directly into the final compressed file, never materializing more
// than one trigram's accumulated postings at a time (spec §4.3). b.mu must
// be held.
func (b *TrigramBuilder) mergeAndWriteLocked(path string) (err error) {
	readers := make([]*partialRunReader, len(b.partialRuns))
	for i, p := range b.partialRuns {
		r, e := openPartialRun(p)
		if e != nil {
			return rcerrors.NewIoError("open partial run", p, e)
		}
		readers[i] = r
	}
	defer func() {
		for _, r := range readers {
			r.close()
		}
	}()

	h := &mergeHeap{}
	heap.Init(h)
	for i, r := range readers {
		if !r.exhausted {
			heap.Push(h, heapItem{trigram: r.current, readerID: i})
		}
	}

	tmpPath := path + ".merging"
	f, err := os.Create(tmpPath)
	if err != nil {
		return rcerrors.NewIoError("create", tmpPath, err)
	}
	w := bufio.NewWriterSize(f, 16*1024*1024)

	var built []builtEntry
	offset := uint64(0)

	flushCurrent := func(trigram types.Trigram, locs []types.FileLocation) error {
		sort.Slice(locs, func(i, j int) bool { return locs[i].Less(locs[j]) })
		locs = dedupLocations(locs)
		c := EncodePostingList(locs)
		if _, err := w.Write(c); err != nil {
			return err
		}
		built = append(built, builtEntry{trigram: trigram, offset: offset, size: uint32(len(c))})
		offset += uint64(len(c))
		return nil
	}

	var curTrigram types.Trigram
	var curLocs []types.FileLocation
	haveCur := false

	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)
		r := readers[item.readerID]

		if haveCur && curTrigram != item.trigram {
			if err := flushCurrent(curTrigram, curLocs); err != nil {
				f.Close()
				return err
			}
			curLocs = nil
		}
		curTrigram = item.trigram
		haveCur = true
		curLocs = append(curLocs, r.currentLocs...)

		if err := r.advance(); err == nil {
			heap.Push(h, heapItem{trigram: r.current, readerID: item.readerID})
		} else if err != io.EOF {
			f.Close()
			return err
		}
	}
	if haveCur {
		if err := flushCurrent(curTrigram, curLocs); err != nil {
			f.Close()
			return err
		}
	}

	if err := writeFilePaths(w, b.files); err != nil {
		f.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	return rewriteWithDirectory(tmpPath, path, built, len(b.files))
}

// builtEntry is one directory entry awaiting a final header+directory
// rewrite: mergeAndWriteLocked accumulates these as it merges partial runs,
// then rewriteWithDirectory turns them into the on-disk directory section.
type builtEntry struct {
	trigram types.Trigram
	offset  uint64
	size    uint32
}

// rewriteWithDirectory reads the data+filepaths sections written by
// mergeAndWriteLocked (at data_offset 0) and rewrites them behind a proper
// header+directory, shifting each data_offset by the header and directory
// sizes so it becomes an absolute file offset — the
// same two-pass approach the original indexer uses since the directory's
// byte size isn't known until every trigram has been merged.
func rewriteWithDirectory(tmpPath, finalPath string, built []builtEntry, numFiles int) error {
	defer os.Remove(tmpPath)

	body, err := os.ReadFile(tmpPath)
	if err != nil {
		return rcerrors.NewIoError("read", tmpPath, err)
	}

	dirSize := uint64(len(built)) * directoryEntrySz

	out, err := os.Create(finalPath)
	if err != nil {
		return rcerrors.NewIoError("create", finalPath, err)
	}
	defer out.Close()
	w := bufio.NewWriterSize(out, 16*1024*1024)

	var hdr [trigramHeaderSize]byte
	copy(hdr[0:4], trigramMagic)
	binary.LittleEndian.PutUint32(hdr[4:8], trigramVersion)
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(len(built)))
	binary.LittleEndian.PutUint64(hdr[16:24], uint64(numFiles))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}

	var dirBuf [directoryEntrySz]byte
	for _, e := range built {
		binary.LittleEndian.PutUint32(dirBuf[0:4], uint32(e.trigram))
		binary.LittleEndian.PutUint64(dirBuf[4:12], e.offset+uint64(trigramHeaderSize)+dirSize)
		binary.LittleEndian.PutUint32(dirBuf[12:16], e.size)
		if _, err := w.Write(dirBuf[:]); err != nil {
			return err
		}
	}

	if _, err := w.Write(body); err != nil {
		return err
	}
	if err := w.Flush(); err != nil {
		return err
	}
	return out.Sync()
}

// TrigramIndex is C3's read-mode handle: a memory-mapped directory with
// posting lists decompressed on demand (spec §4.3 "lazy-read" mode).
type TrigramIndex struct {
	data      mmap.MMap
	f         *os.File
	directory []directoryEntry
	files     []string
}

type directoryEntry struct {
	trigram        types.Trigram
	dataOffset     uint64
	compressedSize uint32
}

// LoadTrigramIndex memory-maps path and reads its directory and file-paths
// sections; posting lists stay compressed in the mapping until Search
// touches them (spec §8 scenario E5).
func LoadTrigramIndex(path string) (*TrigramIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, rcerrors.NewIoError("open", path, err)
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, rcerrors.NewIoError("mmap", path, err)
	}

	idx, err := parseTrigramIndex(data)
	if err != nil {
		data.Unmap()
		f.Close()
		return nil, err
	}
	idx.f = f
	return idx, nil
}

func parseTrigramIndex(data []byte) (*TrigramIndex, error) {
	if len(data) < trigramHeaderSize {
		return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "truncated header", nil)
	}
	if string(data[0:4]) != trigramMagic {
		return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "wrong magic", nil)
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	if version != trigramVersion {
		return nil, rcerrors.NewCorruptArtifactError("trigrams.bin",
			fmt.Sprintf("unsupported version %d (expected %d)", version, trigramVersion), nil)
	}
	numTrigrams := binary.LittleEndian.Uint64(data[8:16])
	numFiles := binary.LittleEndian.Uint64(data[16:24])

	pos := trigramHeaderSize
	directory := make([]directoryEntry, 0, numTrigrams)
	for i := uint64(0); i < numTrigrams; i++ {
		if pos+directoryEntrySz > len(data) {
			return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "truncated directory entry", nil)
		}
		directory = append(directory, directoryEntry{
			trigram:        types.Trigram(binary.LittleEndian.Uint32(data[pos : pos+4])),
			dataOffset:     binary.LittleEndian.Uint64(data[pos+4 : pos+12]),
			compressedSize: binary.LittleEndian.Uint32(data[pos+12 : pos+16]),
		})
		pos += directoryEntrySz
	}

	var dataSectionSize uint64
	for _, e := range directory {
		dataSectionSize += uint64(e.compressedSize)
	}
	pos = trigramHeaderSize + int(numTrigrams)*directoryEntrySz + int(dataSectionSize)

	files := make([]string, 0, numFiles)
	for i := uint64(0); i < numFiles; i++ {
		if pos > len(data) {
			return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "truncated file path section", nil)
		}
		pathLen, n := binary.Uvarint(data[pos:])
		if n <= 0 {
			return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "truncated path length varint", nil)
		}
		pos += n
		if pos+int(pathLen) > len(data) {
			return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "truncated path bytes", nil)
		}
		files = append(files, string(data[pos:pos+int(pathLen)]))
		pos += int(pathLen)
	}

	return &TrigramIndex{data: data, directory: directory, files: files}, nil
}

// Close unmaps the index and closes its file handle.
func (idx *TrigramIndex) Close() error {
	if err := idx.data.Unmap(); err != nil {
		return err
	}
	return idx.f.Close()
}

// FileCount reports the number of files recorded in the directory.
func (idx *TrigramIndex) FileCount() int { return len(idx.files) }

// FilePath returns the workspace-relative path for fileID.
func (idx *TrigramIndex) FilePath(fileID types.FileID) (string, bool) {
	i := int(fileID)
	if i < 0 || i >= len(idx.files) {
		return "", false
	}
	return idx.files[i], true
}

// Search implements spec §4.3's query operation: patterns shorter than 3
// bytes fall back to caller full-scan (empty result); any trigram absent
// from the directory means the pattern cannot match anywhere.
func (idx *TrigramIndex) Search(pattern string) ([]types.FileLocation, error) {
	if len(pattern) < 3 {
		return nil, nil
	}
	trigrams := dedupTrigrams(ExtractTrigrams([]byte(pattern)))
	if len(trigrams) == 0 {
		return nil, nil
	}

	lists := make([][]types.FileLocation, 0, len(trigrams))
	for _, t := range trigrams {
		entry, ok := idx.lookup(t)
		if !ok {
			return nil, nil
		}
		locs, err := idx.decompress(entry)
		if err != nil {
			return nil, err
		}
		lists = append(lists, locs)
	}
	return intersectByFileLine(lists), nil
}

func (idx *TrigramIndex) lookup(t types.Trigram) (directoryEntry, bool) {
	i := sort.Search(len(idx.directory), func(i int) bool { return idx.directory[i].trigram >= t })
	if i >= len(idx.directory) || idx.directory[i].trigram != t {
		return directoryEntry{}, false
	}
	return idx.directory[i], true
}

func (idx *TrigramIndex) decompress(e directoryEntry) ([]types.FileLocation, error) {
	start := e.dataOffset
	end := start + uint64(e.compressedSize)
	if end > uint64(len(idx.data)) {
		return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "posting list out of bounds", nil)
	}
	locs, err := DecodePostingList(idx.data[start:end])
	if err != nil {
		return nil, rcerrors.NewCorruptArtifactError("trigrams.bin", "posting list decode failed", err)
	}
	return locs, nil
}
