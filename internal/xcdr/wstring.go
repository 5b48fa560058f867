// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xcdr

import (
	"golang.org/x/text/encoding/unicode"
)

// wstring members are encoded as {uint32 len (UTF-16 code units), units...,
// 0x0000}, the wide variant of the CDR string encoding. The UTF-16 codec
// is repurposed here from decoding version-resource strings to
// decoding/encoding wire wstrings.
var wstringEncoding = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM)

// WriteWString writes s as UTF-16 code units, length-prefixed, NUL-terminated.
func (w *Writer) WriteWString(s string) error {
	enc := wstringEncoding.NewEncoder()
	units, err := enc.Bytes([]byte(s))
	if err != nil {
		return err
	}
	w.WriteU32(uint32(len(units)/2) + 1)
	w.WriteBytes(units)
	w.WriteU16(0)
	return nil
}

// ReadWString reads a length-prefixed, NUL-terminated UTF-16 wstring.
func (r *Reader) ReadWString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	raw, err := r.ReadBytes(int(n) * 2)
	if err != nil {
		return "", err
	}
	dec := wstringEncoding.NewDecoder()
	s, err := dec.Bytes(raw[:len(raw)-2]) // drop the trailing NUL unit
	if err != nil {
		return "", ErrBadData
	}
	return string(s), nil
}
