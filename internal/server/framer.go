package server

import (
	"bytes"

	"github.com/nullbyte-io/gelf-ingest/internal/metrics"
)

// Framer implements the null-delimited, size-bounded record protocol
// described in spec §4.3.1. It owns a growable input buffer and is driven by
// repeated calls to Feed (as bytes arrive off the wire) and Flush (on EOF).
// A Framer is not safe for concurrent use; each TCP connection owns one.
type Framer[M any] struct {
	decode     Decoder[M]
	max        int
	buf        bytes.Buffer
	head       int
	discarding bool
}

// NewFramer constructs a Framer bound to max bytes per record (not counting
// the delimiter) and a per-connection decoder.
func NewFramer[M any](decode Decoder[M], max int) *Framer[M] {
	return &Framer[M]{decode: decode, max: max}
}

// Feed appends newly read bytes to the framer's buffer. Call Next
// repeatedly afterwards to drain zero or more frames.
func (f *Framer[M]) Feed(p []byte) {
	f.buf.Write(p)
}

// Next extracts and decodes the next available frame, if any. ok is false
// when the buffer holds no complete record yet (more bytes are needed) — in
// that case no decode occurred and callers must not treat this as protocol
// progress (the idle watchdog must not reset).
func (f *Framer[M]) Next() (out Received[M], ok bool) {
	for {
		src := f.buf.Bytes()
		scanLimit := f.max + 1
		if scanLimit > len(src) {
			scanLimit = len(src)
		}

		offset := bytes.IndexByte(src[f.head:], 0)

		switch {
		case !f.discarding && offset >= 0:
			end := f.head + offset
			if end > f.max {
				metrics.IncTCPMsgOverflow()
				f.discarding = true
				continue
			}
			frame := make([]byte, end)
			copy(frame, src[:end])
			f.buf.Next(end + 1)
			f.head = 0
			return decodeToReceived(f.decode, frame), true

		case !f.discarding && len(src) > f.max:
			metrics.IncTCPMsgOverflow()
			f.discarding = true
			continue

		case !f.discarding:
			f.head = scanLimit
			return Received[M]{}, false

		case f.discarding && offset >= 0:
			f.buf.Next(f.head + offset + 1)
			f.discarding = false
			f.head = 0
			continue

		default: // discarding, no delimiter found yet
			f.buf.Next(scanLimit)
			f.head = 0
			if f.buf.Len() == 0 {
				return Received[M]{}, false
			}
			continue
		}
	}
}

// Flush makes one last decode attempt on any residual bytes, as if they
// were a complete record with no trailing delimiter. Call this once, on a
// clean EOF with data still buffered; the spec treats this as the only
// exception to "every frame ends with a delimiter".
func (f *Framer[M]) Flush() (out Received[M], ok bool) {
	if f.buf.Len() == 0 {
		return Received[M]{}, false
	}
	frame := make([]byte, f.buf.Len())
	copy(frame, f.buf.Bytes())
	f.buf.Reset()
	f.head = 0
	if f.discarding {
		// The tail of a discarded oversize record with no delimiter:
		// still not a record the decoder should ever see.
		return Received[M]{}, false
	}
	return decodeToReceived(f.decode, frame), true
}
