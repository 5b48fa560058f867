// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package xcdr implements the serializer interpreter (spec.md §4.E): it
// walks a compiled Descriptor's constructed types and member records
// (internal/descriptor), dispatching on the AST type each member resolves
// to, to serialize, deserialize, and key-hash an in-memory sample. It does
// not decode the op-code words of the instruction stream. This file holds the low-level aligned
// reader/writer primitives shared by the interpreter and by
// internal/typemeta's TypeObject XCDR2-LE encoding.
package xcdr

import (
	"encoding/binary"
	"errors"
)

// Encoding selects wire format + byte order. XCDR2 is the default; XCDR1 is
// kept for the allowed-data-representations mask (spec.md §6). Both are
// supported in big- and little-endian form by threading byteOrder through
// the cursor rather than forking the code (design notes intent: a data
// parameter, not a code fork).
type Encoding uint8

const (
	XCDR1LE Encoding = iota
	XCDR1BE
	XCDR2LE
	XCDR2BE
)

func (e Encoding) byteOrder() binary.ByteOrder {
	switch e {
	case XCDR1BE, XCDR2BE:
		return binary.BigEndian
	default:
		return binary.LittleEndian
	}
}

func (e Encoding) isXCDR2() bool {
	return e == XCDR2LE || e == XCDR2BE
}

var (
	// ErrBadData is returned for any malformed-input condition found during
	// decode: length overruns, invalid enum values, unknown
	// must-understand parameters (spec.md §7).
	ErrBadData = errors.New("xcdr: bad data")
	// ErrNoMemory models allocation failure on the decode path.
	ErrNoMemory = errors.New("xcdr: allocation failed")
)

// Writer accumulates an encoded CDR stream with alignment tracked relative
// to the stream origin, as XCDR requires.
type Writer struct {
	enc Encoding
	buf []byte
}

func NewWriter(enc Encoding) *Writer { return &Writer{enc: enc} }

func (w *Writer) Bytes() []byte { return w.buf }
func (w *Writer) Len() int      { return len(w.buf) }

func (w *Writer) align(n int) {
	if rem := len(w.buf) % n; rem != 0 {
		w.buf = append(w.buf, make([]byte, n-rem)...)
	}
}

func (w *Writer) WriteU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *Writer) WriteBool(v bool)  { w.WriteU8(boolByte(v)) }

func (w *Writer) WriteU16(v uint16) {
	w.align(2)
	b := make([]byte, 2)
	w.enc.byteOrder().PutUint16(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteU32(v uint32) {
	w.align(4)
	b := make([]byte, 4)
	w.enc.byteOrder().PutUint32(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteU64(v uint64) {
	align := 8
	if w.enc.isXCDR2() {
		align = 4 // XCDR2 caps natural alignment at 4 bytes (spec.md §6)
	}
	w.align(align)
	b := make([]byte, 8)
	w.enc.byteOrder().PutUint64(b, v)
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteBytes(p []byte) { w.buf = append(w.buf, p...) }

// WriteString writes {uint32 len, bytes, NUL} per spec.md §6.
func (w *Writer) WriteString(s string) {
	w.WriteU32(uint32(len(s)) + 1)
	w.WriteBytes([]byte(s))
	w.WriteU8(0)
}

// ReservePlaceholder writes a zero uint32 and returns its byte offset, used
// for DLC/DHEADER back-patching.
func (w *Writer) ReservePlaceholder() int {
	w.align(4)
	pos := len(w.buf)
	w.WriteU32(0)
	return pos
}

// PatchU32 overwrites the 4 bytes at pos (as produced by
// ReservePlaceholder) with v.
func (w *Writer) PatchU32(pos int, v uint32) {
	w.enc.byteOrder().PutUint32(w.buf[pos:pos+4], v)
}

func boolByte(v bool) uint8 {
	if v {
		return 1
	}
	return 0
}

// Reader walks an encoded CDR stream.
type Reader struct {
	enc Encoding
	buf []byte
	pos int
}

func NewReader(enc Encoding, buf []byte) *Reader { return &Reader{enc: enc, buf: buf} }

func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) align(n int) {
	if rem := r.pos % n; rem != 0 {
		r.pos += n - rem
	}
}

func (r *Reader) need(n int) error {
	if r.pos+n > len(r.buf) {
		return ErrBadData
	}
	return nil
}

func (r *Reader) ReadU8() (uint8, error) {
	if err := r.need(1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

func (r *Reader) ReadBool() (bool, error) {
	v, err := r.ReadU8()
	return v != 0, err
}

func (r *Reader) ReadU16() (uint16, error) {
	r.align(2)
	if err := r.need(2); err != nil {
		return 0, err
	}
	v := r.enc.byteOrder().Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *Reader) ReadU32() (uint32, error) {
	r.align(4)
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := r.enc.byteOrder().Uint32(r.buf[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *Reader) ReadU64() (uint64, error) {
	align := 8
	if r.enc.isXCDR2() {
		align = 4
	}
	r.align(align)
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := r.enc.byteOrder().Uint64(r.buf[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *Reader) ReadBytes(n int) ([]byte, error) {
	if err := r.need(n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadString reads {uint32 len, bytes, NUL} and returns the string without
// its trailing NUL.
func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", ErrBadData
	}
	b, err := r.ReadBytes(int(n))
	if err != nil {
		return "", err
	}
	return string(b[:len(b)-1]), nil
}

// Skip advances n bytes without interpreting them, used when an APPENDABLE
// DHEADER indicates trailing bytes the local type doesn't understand.
func (r *Reader) Skip(n int) error {
	if err := r.need(n); err != nil {
		return err
	}
	r.pos += n
	return nil
}

func (r *Reader) Pos() int { return r.pos }
