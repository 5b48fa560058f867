// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package expand implements shell-style variable expansion (spec.md §4.G),
// grounded on original_source/src/ddsrt/src/expand_vars.c and
// expand_envvars.c: ${NAME}, ${NAME:-ALT}, ${NAME:+ALT}, ${NAME:?ALT}, plus a
// shell variant adding bare $NAME/$X and backslash escapes.
package expand

import (
	"errors"
	"fmt"
	"os"
	"strconv"
)

// maxDepth caps recursive ALT-segment expansion (spec.md §4.G).
const maxDepth = 20

// maxOutput caps total expanded output size (spec.md §4.G).
const maxOutput = 10 << 20

var (
	ErrTooDeep      = errors.New("expand: recursion depth exceeded")
	ErrTooLarge     = errors.New("expand: output exceeds 10MiB cap")
	ErrUnbalanced   = errors.New("expand: unbalanced ${...}")
	ErrUnknownVar   = errors.New("expand: required variable is unset")
)

// Lookup resolves a variable name to its value, reporting whether it is
// set at all (as opposed to set-but-empty).
type Lookup func(name string) (value string, ok bool)

// Expand applies the generic ${...} grammar to s using lookup.
func Expand(s string, lookup Lookup) (string, error) {
	e := &expander{lookup: lookup, shell: false}
	out, err := e.expand(s, 0)
	if err != nil {
		return "", err
	}
	return out, nil
}

// ExpandShell applies the shell variant: ${...} plus bare $NAME/$X and
// backslash escapes for $ and \.
func ExpandShell(s string, lookup Lookup) (string, error) {
	e := &expander{lookup: lookup, shell: true}
	out, err := e.expand(s, 0)
	if err != nil {
		return "", err
	}
	return out, nil
}

// EnvLookup adapts the process environment to Lookup, adding the synthetic
// keys spec.md §4.G names: CYCLONEDDS_PID (current pid) and, when domainID
// is non-negative, CYCLONEDDS_DOMAIN_ID.
func EnvLookup(domainID int) Lookup {
	return func(name string) (string, bool) {
		switch name {
		case "CYCLONEDDS_PID":
			return strconv.Itoa(os.Getpid()), true
		case "CYCLONEDDS_DOMAIN_ID":
			if domainID < 0 {
				return "", false
			}
			return strconv.Itoa(domainID), true
		}
		return os.LookupEnv(name)
	}
}

type expander struct {
	lookup Lookup
	shell  bool
}

func (e *expander) expand(s string, depth int) (string, error) {
	if depth > maxDepth {
		return "", ErrTooDeep
	}
	var out []byte
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == '\\' && e.shell && i+1 < len(s) && (s[i+1] == '$' || s[i+1] == '\\'):
			out = append(out, s[i+1])
			i += 2
		case c == '$' && i+1 < len(s) && s[i+1] == '{':
			val, n, err := e.expandBraced(s[i:], depth)
			if err != nil {
				return "", err
			}
			out = append(out, val...)
			i += n
		case c == '$' && e.shell && i+1 < len(s) && isNameStart(s[i+1]):
			name, n := scanShellName(s[i+1:])
			v, _ := e.lookup(name)
			out = append(out, v...)
			i += 1 + n
		default:
			out = append(out, c)
			i++
		}
		if len(out) > maxOutput {
			return "", ErrTooLarge
		}
	}
	return string(out), nil
}

// expandBraced parses one ${...} form starting at s[0]=='$', s[1]=='{', and
// returns its expansion plus the number of input bytes consumed.
func (e *expander) expandBraced(s string, depth int) (string, int, error) {
	end, err := matchBrace(s)
	if err != nil {
		return "", 0, err
	}
	inner := s[2:end] // between "${" and the matching "}"
	name, op, alt := splitSpec(inner)

	v, ok := e.lookup(name)
	switch op {
	case "":
		if !ok {
			return "", end + 1, nil
		}
		return v, end + 1, nil
	case ":-":
		if ok && v != "" {
			return v, end + 1, nil
		}
		expanded, err := e.expand(alt, depth+1)
		return expanded, end + 1, err
	case ":+":
		if ok && v != "" {
			expanded, err := e.expand(alt, depth+1)
			return expanded, end + 1, err
		}
		return "", end + 1, nil
	case ":?":
		if ok {
			return v, end + 1, nil
		}
		msg, err := e.expand(alt, depth+1)
		if err != nil {
			return "", 0, err
		}
		return "", 0, fmt.Errorf("%w: %s: %s", ErrUnknownVar, name, msg)
	}
	return "", 0, ErrUnbalanced
}

// matchBrace finds the index of the "}" balancing the "{" at s[1], honoring
// nested "${...}" inside the ALT segment (spec.md §4.G: "nesting of braces
// inside ALT is respected").
func matchBrace(s string) (int, error) {
	depth := 0
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, ErrUnbalanced
}

// splitSpec splits "NAME", "NAME:-ALT", "NAME:+ALT", or "NAME:?ALT".
func splitSpec(inner string) (name, op, alt string) {
	for i := 0; i+1 < len(inner); i++ {
		if inner[i] == ':' {
			switch inner[i+1] {
			case '-', '+', '?':
				return inner[:i], inner[i : i+2], inner[i+2:]
			}
		}
	}
	return inner, "", ""
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func isNameCont(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// scanShellName reads a bare $NAME reference: if the first character is a
// digit, only that single character is the name ($X, single-char);
// otherwise the run of name characters.
func scanShellName(s string) (string, int) {
	if s[0] >= '0' && s[0] <= '9' {
		return s[0:1], 1
	}
	n := 0
	for n < len(s) && isNameCont(s[n]) {
		n++
	}
	if n == 0 {
		n = 1
	}
	return s[:n], n
}
