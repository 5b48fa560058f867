// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package blobio persists compiled descriptor bundles (one or more named
// TopicDescriptor blobs) to a single file and mmaps it back for zero-copy
// lookup, rather than read()-ing it whole into a byte slice.
package blobio

import (
	"encoding/binary"
	"errors"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/log"
)

// magic tags a blobio bundle file; version allows the index layout to
// evolve without breaking older bundles silently.
var magic = [4]byte{'C', 'D', 'D', 'S'}

const version = 1

var (
	ErrBadMagic   = errors.New("blobio: not a descriptor bundle")
	ErrBadVersion = errors.New("blobio: unsupported bundle version")
	ErrTruncated  = errors.New("blobio: truncated bundle")
)

// Entry is one named blob's extent inside the mapped file.
type Entry struct {
	Name   string
	Offset uint32
	Length uint32
}

// Bundle is a read-only, memory-mapped descriptor bundle.
type Bundle struct {
	data    mmap.MMap
	f       *os.File
	entries []Entry
	byName  map[string]int
	log     *log.Helper
}

// Options configures Open. The zero value is usable.
type Options struct {
	Logger log.Logger
}

// Open mmaps path and parses its index. The returned Bundle holds the
// mapping open until Close is called.
func Open(path string, opts Options) (*Bundle, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}
	b := &Bundle{data: data, f: f, byName: make(map[string]int), log: log.NewHelper(opts.Logger)}
	if err := b.parseIndex(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}

func (b *Bundle) parseIndex() error {
	if len(b.data) < 12 {
		return ErrTruncated
	}
	if [4]byte(b.data[0:4]) != magic {
		return ErrBadMagic
	}
	if binary.LittleEndian.Uint32(b.data[4:8]) != version {
		return ErrBadVersion
	}
	count := binary.LittleEndian.Uint32(b.data[8:12])
	pos := uint32(12)
	for i := uint32(0); i < count; i++ {
		if pos+4 > uint32(len(b.data)) {
			return ErrTruncated
		}
		nameLen := binary.LittleEndian.Uint32(b.data[pos:])
		pos += 4
		if pos+nameLen+8 > uint32(len(b.data)) {
			return ErrTruncated
		}
		name := string(b.data[pos : pos+nameLen])
		pos += nameLen
		offset := binary.LittleEndian.Uint32(b.data[pos:])
		pos += 4
		length := binary.LittleEndian.Uint32(b.data[pos:])
		pos += 4
		b.byName[name] = len(b.entries)
		b.entries = append(b.entries, Entry{Name: name, Offset: offset, Length: length})
	}
	b.log.Info("bundle opened", "entries", len(b.entries))
	return nil
}

// Lookup returns the raw bytes of the named blob, a zero-copy slice into
// the mapping.
func (b *Bundle) Lookup(name string) ([]byte, bool) {
	i, ok := b.byName[name]
	if !ok {
		return nil, false
	}
	e := b.entries[i]
	return b.data[e.Offset : e.Offset+e.Length], true
}

// Entries lists every blob name the bundle carries.
func (b *Bundle) Entries() []Entry { return append([]Entry{}, b.entries...) }

// Close unmaps the file and releases the descriptor.
func (b *Bundle) Close() error {
	var err error
	if b.data != nil {
		err = b.data.Unmap()
	}
	if b.f != nil {
		if cerr := b.f.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Write serializes named blobs into a new bundle file at path, in the
// format Open parses.
func Write(path string, blobs map[string][]byte) error {
	names := make([]string, 0, len(blobs))
	for name := range blobs {
		names = append(names, name)
	}
	sortStrings(names)

	var body []byte
	header := make([]byte, 12)
	copy(header[0:4], magic[:])
	binary.LittleEndian.PutUint32(header[4:8], version)
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(names)))

	index := make([]byte, 0)
	// Offsets are absolute file positions: the body starts after the header
	// and the whole index.
	offset := uint32(len(header))
	for _, name := range names {
		offset += uint32(4 + len(name) + 8)
	}
	for _, name := range names {
		blob := blobs[name]
		entry := make([]byte, 4+len(name)+8)
		binary.LittleEndian.PutUint32(entry[0:4], uint32(len(name)))
		copy(entry[4:], name)
		binary.LittleEndian.PutUint32(entry[4+len(name):], offset)
		binary.LittleEndian.PutUint32(entry[4+len(name)+4:], uint32(len(blob)))
		index = append(index, entry...)
		body = append(body, blob...)
		offset += uint32(len(blob))
	}

	out := append(header, index...)
	out = append(out, body...)
	return os.WriteFile(path, out, 0o644)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
