package transport

import lerrors "github.com/mbocsi/lime-go/internal/errors"

// DefaultBufferCapacity is the fixed input buffer size used when no
// explicit capacity is configured, per spec.md §4.B.
const DefaultBufferCapacity = 8192

// Framer turns a byte stream into whole JSON envelope documents using
// bracket counting rather than a length prefix (spec.md §4.B). It owns a
// single contiguous buffer, compacting in place when the buffer fills
// and a pending envelope has already consumed some of it.
//
// A Framer is not safe for concurrent use; the transport's read task is
// its only caller.
type Framer struct {
	buf           []byte
	writeOffset   int
	envelopeStart int
	scanOffset    int

	depth          int
	inString       bool
	backslashCount int
}

// NewFramer allocates a Framer with the given fixed capacity.
func NewFramer(capacity int) *Framer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &Framer{buf: make([]byte, capacity)}
}

// ReadSlice returns the region of the buffer the next socket read should
// fill. It compacts in place first if the buffer is full and a complete
// envelope has already been consumed past envelopeStart; it fails with
// errors.BufferOverflow if compaction cannot free any space, meaning a
// single pending envelope already spans the entire capacity.
func (f *Framer) ReadSlice() ([]byte, error) {
	if f.writeOffset == len(f.buf) {
		if f.envelopeStart > 0 {
			f.compact()
		}
		if f.writeOffset == len(f.buf) {
			return nil, lerrors.Newf(lerrors.BufferOverflow, "envelope exceeds buffer capacity of %d bytes", len(f.buf))
		}
	}
	return f.buf[f.writeOffset:], nil
}

// Advance records that n freshly-read bytes were placed at the slice
// ReadSlice most recently returned.
func (f *Framer) Advance(n int) {
	f.writeOffset += n
}

func (f *Framer) compact() {
	shift := f.envelopeStart
	n := copy(f.buf, f.buf[shift:f.writeOffset])
	f.writeOffset = n
	f.envelopeStart = 0
	f.scanOffset -= shift
	if f.scanOffset < 0 {
		f.scanOffset = 0
	}
}

func isFrameWhitespace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\r' || b == '\n'
}

// Scan walks every newly-buffered byte, delivering one copy of each
// complete envelope found (a byte slice independent of the internal
// buffer, since it may be compacted or overwritten afterwards). Partial
// state (depth, inString, the pending envelope start) persists across
// calls, so Scan can be called once per Advance with only the bytes
// written so far considered.
//
// A non-whitespace byte encountered at depth 0 before the next envelope
// starts is rejected with errors.Serialization: the LIME wire grammar
// does not define a case for it (spec.md §9's open question; this
// implementation rejects rather than silently skipping).
func (f *Framer) Scan(deliver func(frame []byte) error) error {
	i := f.scanOffset
	defer func() { f.scanOffset = i }()
	for ; i < f.writeOffset; i++ {
		c := f.buf[i]

		if f.inString {
			if c == '"' && f.backslashCount%2 == 0 {
				f.inString = false
			}
			if c == '\\' {
				f.backslashCount++
			} else {
				f.backslashCount = 0
			}
			continue
		}

		switch c {
		case '"':
			if f.depth == 0 {
				return lerrors.Newf(lerrors.Serialization, "unexpected byte %q at depth 0 before next envelope", c)
			}
			f.inString = true
			f.backslashCount = 0
		case '{':
			if f.depth == 0 {
				f.envelopeStart = i
			}
			f.depth++
		case '}':
			f.depth--
			if f.depth < 0 {
				return lerrors.New(lerrors.Serialization, "unbalanced '}' in envelope stream")
			}
			if f.depth == 0 {
				end := i + 1
				frame := make([]byte, end-f.envelopeStart)
				copy(frame, f.buf[f.envelopeStart:end])
				if err := deliver(frame); err != nil {
					return err
				}
				f.envelopeStart = end
			}
		default:
			if f.depth == 0 && !isFrameWhitespace(c) {
				return lerrors.Newf(lerrors.Serialization, "unexpected byte %q at depth 0 before next envelope", c)
			}
		}
	}
	return nil
}
