// Package bytecode emits and reads class definitions in the JVM class-file layout.
package bytecode

import (
	"encoding/binary"
	"math"

	errs "hostscript/internal/core/errors"
)

// MaxUTFLength is the largest string a u2 length prefix can describe.
const MaxUTFLength = math.MaxUint16

// Writer is an append-only big-endian buffer. Bytes already written can only
// be changed through a Mark obtained from Reserve2/Reserve4, exactly once.
type Writer struct {
	buf   []byte
	marks map[int]*markState
}

type markState struct {
	width   int
	patched bool
}

// Mark identifies a reserved placeholder awaiting a Patch.
type Mark struct {
	owner  *Writer
	offset int
	width  int
}

// Offset is the position of the placeholder in the buffer.
func (m Mark) Offset() int { return m.offset }

func NewWriter(capacity int) *Writer {
	if capacity < 16 {
		capacity = 16
	}
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// Cap returns the current buffer capacity.
func (w *Writer) Cap() int { return cap(w.buf) }

// ensure grows the buffer to max(2*cap, len+n) when n more bytes do not fit.
func (w *Writer) ensure(n int) {
	need := len(w.buf) + n
	if need <= cap(w.buf) {
		return
	}
	newCap := 2 * cap(w.buf)
	if newCap < need {
		newCap = need
	}
	grown := make([]byte, len(w.buf), newCap)
	copy(grown, w.buf)
	w.buf = grown
}

func (w *Writer) U1(v uint8) {
	w.ensure(1)
	w.buf = append(w.buf, v)
}

func (w *Writer) U2(v uint16) {
	w.ensure(2)
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) U4(v uint32) {
	w.ensure(4)
	w.buf = binary.BigEndian.AppendUint32(w.buf, v)
}

func (w *Writer) U8(v uint64) {
	w.ensure(8)
	w.buf = binary.BigEndian.AppendUint64(w.buf, v)
}

// Write appends p verbatim. It never fails; the signature satisfies io.Writer.
func (w *Writer) Write(p []byte) (int, error) {
	w.ensure(len(p))
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// UTF appends s with a u2 byte-length prefix. Oversized text is rejected, never truncated.
func (w *Writer) UTF(s string) error {
	if len(s) > MaxUTFLength {
		return errs.ByteEmission("text of %d bytes exceeds u2 length prefix capacity %d", len(s), MaxUTFLength)
	}
	w.U2(uint16(len(s)))
	w.ensure(len(s))
	w.buf = append(w.buf, s...)
	return nil
}

// Reserve2 appends a zeroed u2 placeholder to be filled by Patch.
func (w *Writer) Reserve2() Mark { return w.reserve(2) }

// Reserve4 appends a zeroed u4 placeholder to be filled by Patch.
func (w *Writer) Reserve4() Mark { return w.reserve(4) }

func (w *Writer) reserve(width int) Mark {
	if w.marks == nil {
		w.marks = make(map[int]*markState)
	}
	m := Mark{owner: w, offset: len(w.buf), width: width}
	w.marks[m.offset] = &markState{width: width}
	w.ensure(width)
	w.buf = append(w.buf, make([]byte, width)...)
	return m
}

// Patch fills a reserved placeholder. Each mark may be patched once.
func (w *Writer) Patch(m Mark, v uint32) error {
	if m.owner != w {
		return errs.ByteEmission("backpatch point at offset %d belongs to another writer", m.offset)
	}
	state, ok := w.marks[m.offset]
	if !ok || state.width != m.width {
		return errs.ByteEmission("offset %d is not a reserved backpatch point", m.offset)
	}
	if state.patched {
		return errs.ByteEmission("backpatch point at offset %d already written", m.offset)
	}
	switch m.width {
	case 2:
		if v > math.MaxUint16 {
			return errs.ByteEmission("value %d does not fit u2 backpatch at offset %d", v, m.offset)
		}
		binary.BigEndian.PutUint16(w.buf[m.offset:], uint16(v))
	case 4:
		binary.BigEndian.PutUint32(w.buf[m.offset:], v)
	}
	state.patched = true
	return nil
}

// PatchLength patches m with the number of bytes written after it.
func (w *Writer) PatchLength(m Mark) error {
	return w.Patch(m, uint32(len(w.buf)-m.offset-m.width))
}

// Finish returns a copy of the buffer. Unpatched placeholders are an error.
func (w *Writer) Finish() ([]byte, error) {
	for offset, state := range w.marks {
		if !state.patched {
			return nil, errs.ByteEmission("backpatch point at offset %d was never written", offset)
		}
	}
	out := make([]byte, len(w.buf))
	copy(out, w.buf)
	return out, nil
}
