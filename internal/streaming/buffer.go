package streaming

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"sync"
)

// ErrBufferClosed indicates a write to a buffer whose stream has ended.
var ErrBufferClosed = errors.New("stream buffer closed")

// ErrReaderLagged indicates a reader fell behind the retention window
// with no fragment boundary left to resync to. The viewer must be
// dropped; any byte it could be given would land mid-segment.
var ErrReaderLagged = errors.New("viewer fell behind stream retention")

// fragMarker is the box type that opens every fragmented-MP4 segment.
var fragMarker = []byte("moof")

// maxAtomSize bounds plausible moof atom sizes during boundary
// verification; anything larger is a false match inside media data.
const maxAtomSize = 16 * 1024 * 1024

// Buffer is an append-only broadcast buffer for live container output.
// One writer (the encoder output pump) appends chunks; any number of
// readers follow with independent cursors over absolute stream offsets.
// Retention is bounded: once the window exceeds max, the oldest quarter
// is dropped and lagging readers resync forward instead of blocking the
// writer.
type Buffer struct {
	mu   sync.Mutex
	cond *sync.Cond

	data  []byte
	start int64 // absolute offset of data[0]

	init     []byte
	haveInit bool

	// lastFrag is the absolute offset of the most recent fragment
	// (moof atom start) seen in the stream, or -1 before the first one.
	lastFrag int64

	closed bool
	max    int
}

// NewBuffer returns a Buffer retaining at most max bytes of history.
func NewBuffer(max int) *Buffer {
	b := &Buffer{max: max, lastFrag: -1}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// SetInit records the stream's initialization segment (ftyp+moov).
// Late-joining readers receive it before any live data.
func (b *Buffer) SetInit(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.init = append([]byte(nil), p...)
	b.haveInit = true
	b.cond.Broadcast()
}

// InitReady reports whether the initialization segment is available.
func (b *Buffer) InitReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.haveInit
}

// Write appends a chunk of container output and wakes waiting readers.
func (b *Buffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBufferClosed
	}

	prevLen := len(b.data)
	b.data = append(b.data, p...)

	// Scan the appended region (with a small overlap for markers that
	// straddle chunk boundaries) for fragment starts.
	b.scanFragments(max(prevLen-int(len(fragMarker))-4, 0))

	if len(b.data) > b.max {
		keep := b.max * 3 / 4
		drop := len(b.data) - keep
		b.data = append(b.data[:0:0], b.data[drop:]...)
		b.start += int64(drop)
	}

	b.cond.Broadcast()
	return len(p), nil
}

// scanFragments records the newest moof atom boundary at or after the
// given index into the retained window.
func (b *Buffer) scanFragments(from int) {
	region := b.data[from:]
	for {
		idx := bytes.Index(region, fragMarker)
		if idx < 0 {
			return
		}
		abs := from + idx
		if atomStart := abs - 4; atomStart >= 0 {
			size := binary.BigEndian.Uint32(b.data[atomStart:abs])
			if size >= 8 && size <= maxAtomSize {
				b.lastFrag = b.start + int64(atomStart)
			}
		}
		from = abs + len(fragMarker)
		region = b.data[from:]
	}
}

// End returns the absolute offset one past the last appended byte.
func (b *Buffer) End() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start + int64(len(b.data))
}

// Close ends the stream. Blocked readers drain what remains and then
// see io.EOF; subsequent writes fail.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// NewReader returns a reader positioned at the most recent fragment
// boundary, or at the live end when no fragment has been seen yet. If
// the reader joins after the stream's beginning it is primed with the
// initialization segment so its first delivered bytes form a playable
// stream.
func (b *Buffer) NewReader() *Reader {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos := b.start + int64(len(b.data))
	if b.lastFrag >= b.start {
		pos = b.lastFrag
	}

	r := &Reader{b: b, pos: pos}
	if pos > 0 && b.haveInit {
		r.pending = append([]byte(nil), b.init...)
	}
	return r
}

// Reader is one viewer's cursor into the buffer. Read blocks until
// data beyond the cursor arrives or the stream closes. Readers hold no
// copy of history beyond what the buffer retains; a cursor that falls
// behind the retention window resyncs forward to the newest retained
// fragment boundary, or fails with ErrReaderLagged when none remains.
type Reader struct {
	b       *Buffer
	pos     int64
	pending []byte // init segment remainder, delivered first
}

// Read implements io.Reader over the live stream.
func (r *Reader) Read(p []byte) (int, error) {
	if len(r.pending) > 0 {
		n := copy(p, r.pending)
		r.pending = r.pending[n:]
		return n, nil
	}

	b := r.b
	b.mu.Lock()
	defer b.mu.Unlock()

	for r.pos >= b.start+int64(len(b.data)) {
		if b.closed {
			return 0, io.EOF
		}
		b.cond.Wait()
	}

	if r.pos < b.start {
		// History was trimmed out from under this reader. Jump to the
		// newest fragment boundary so delivery resumes on a decodable
		// segment; without one there is nothing playable to offer.
		if b.lastFrag < b.start {
			return 0, ErrReaderLagged
		}
		r.pos = b.lastFrag
	}

	n := copy(p, b.data[r.pos-b.start:])
	r.pos += int64(n)
	return n, nil
}

// Offset returns the reader's absolute stream position.
func (r *Reader) Offset() int64 {
	return r.pos
}
