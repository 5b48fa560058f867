// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package descriptor

import (
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/mangler"
)

// ConstructedType is one entry of the constructed-type table: spec.md §3's
// "linked list of {ast_node, name, scope, instructions[], pl_offset,
// offset_in_flat_stream, has_key_member}", kept here as a slice backing an
// arena (ConstructedType.id is the TypeID).
type ConstructedType struct {
	id           TypeID
	Node         ast.Node
	Name         string
	Scope        mangler.Scope
	Instructions []Instruction
	PLOffset     int // index of the PLC instruction, -1 if not MUTABLE
	OffsetInFlat uint32
	HasKeyMember bool

	// Members is a structural view of the body kept alongside Instructions
	// as it is built, so the key planner (§4.C) and type-meta builder
	// (§4.D) can walk member structure directly instead of re-decoding the
	// op stream — the two stay consistent by construction, which is what
	// spec.md §3's "the ordered key list derived from the ops yields the
	// same n_keys the type-meta pass independently computes" invariant
	// requires.
	Members []MemberInfo
	Base    *TypeID // non-nil iff this type inherits from another
}

// MemberInfo is the structural record behind one member's ADR/PLM entry.
type MemberInfo struct {
	ID          uint32
	Name        string
	Flags       OpFlags
	Resolved    ast.Node // unaliased member type
	IsAggregate bool
	Aggregate   TypeID
	InstrOffset uint32 // absolute op-offset of the member's ADR, set by ResolveOffsets
}

// ID returns the arena index used for self-referential relocations.
func (c *ConstructedType) ID() TypeID { return c.id }

// Descriptor is the per-root-type compile output: the constructed-type
// table, key metadata, and the KOF section that follows the main op list in
// the same flat stream (spec.md §4.C).
type Descriptor struct {
	ConstructedTypes []*ConstructedType
	Keys             []KeyMember
	KeyOffsets       []Instruction
	Flags            Flags
	KeySizeXCDR1     uint32
	KeySizeXCDR2     uint32
}

// Find returns the constructed type with the given arena id.
func (d *Descriptor) Find(id TypeID) *ConstructedType {
	if int(id) >= len(d.ConstructedTypes) {
		return nil
	}
	return d.ConstructedTypes[id]
}

// FlattenMembers returns ct's own members prefixed by its base chain's
// members, in declaration order, skipping the synthetic "@base" marker
// entries — the same flattened view the key planner and the serializer
// interpreter both need and must agree on (spec.md §3 cross-check
// invariant).
func (d *Descriptor) FlattenMembers(ct *ConstructedType) []MemberInfo {
	var out []MemberInfo
	if ct.Base != nil {
		out = append(out, d.FlattenMembers(d.Find(*ct.Base))...)
	}
	for _, m := range ct.Members {
		if m.Name == "@base" {
			continue
		}
		out = append(out, m)
	}
	return out
}

// TotalInstructions sums every constructed type's instruction count plus
// the KOF section, the quantity MaxInstructions bounds.
func (d *Descriptor) TotalInstructions() int {
	n := len(d.KeyOffsets)
	for _, ct := range d.ConstructedTypes {
		n += len(ct.Instructions)
	}
	return n
}
