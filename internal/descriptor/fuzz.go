// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package descriptor

import "github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/astjson"

// Fuzz decodes data as a JSON pstate description (internal/astjson) and
// runs it through the emitter, the classic go-fuzz entry point convention
// (astjson.Decode+Compile on raw JSON bytes).
func Fuzz(data []byte) int {
	root, err := astjson.Decode(data)
	if err != nil {
		return 0
	}
	e := NewEmitter(Options{})
	if _, err := e.Compile(root); err != nil {
		return 0
	}
	return 1
}
