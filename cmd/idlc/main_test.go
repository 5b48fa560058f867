// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/blobio"
)

const pointStructJSON = `{
	"kind": "struct",
	"name": "Point",
	"extensibility": "final",
	"members": [
		{"name": "x", "id": 0, "key": true, "type": {"kind": "scalar", "scalar": "int32"}},
		{"name": "y", "id": 1, "type": {"kind": "scalar", "scalar": "int32"}}
	]
}`

func TestCompileWritesDescriptorAndTypeMetaBlobs(t *testing.T) {
	dir := t.TempDir()
	inPath := filepath.Join(dir, "point.json")
	outPath := filepath.Join(dir, "point.cddsbundle")
	if err := os.WriteFile(inPath, []byte(pointStructJSON), 0o644); err != nil {
		t.Fatalf("os.WriteFile() error = %v", err)
	}

	if err := compile(inPath, outPath, false); err != nil {
		t.Fatalf("compile() error = %v", err)
	}

	bundle, err := blobio.Open(outPath, blobio.Options{})
	if err != nil {
		t.Fatalf("blobio.Open() error = %v", err)
	}
	defer bundle.Close()

	summary, ok := bundle.Lookup("descriptor.summary")
	if !ok || len(summary) == 0 {
		t.Errorf("expected a non-empty descriptor.summary blob")
	}
	ti, ok := bundle.Lookup("typeinformation")
	if !ok || len(ti) == 0 {
		t.Errorf("expected a non-empty typeinformation blob")
	}
	tm, ok := bundle.Lookup("typemapping")
	if !ok || len(tm) == 0 {
		t.Errorf("expected a non-empty typemapping blob")
	}
}
