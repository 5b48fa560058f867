// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package typemeta

import "errors"

var (
	ErrUnsupportedElement = errors.New("typemeta: unsupported collection element type")
	ErrCaseLabelRange      = errors.New("typemeta: union case label does not fit in int32")
)
