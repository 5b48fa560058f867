// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package descriptor

import "math"

// ResolveOffsets assigns every constructed type's start address in the flat
// stream, then patches every relocatable instruction's 16-bit offset
// (spec.md §3: "Relocation offsets fit in int16; exceeding the range is a
// hard error at compile time"). It also back-fills MemberInfo.InstrOffset
// from the per-member local offsets emitStruct recorded, turning them into
// absolute stream positions the key planner and type-meta builder can use.
func ResolveOffsets(d *Descriptor) error {
	var pos uint32
	for _, ct := range d.ConstructedTypes {
		ct.OffsetInFlat = pos
		pos += uint32(len(ct.Instructions))
	}

	for _, ct := range d.ConstructedTypes {
		for i := range ct.Members {
			ct.Members[i].InstrOffset += ct.OffsetInFlat
		}
		for i := range ct.Instructions {
			in := &ct.Instructions[i]
			switch in.Kind {
			case KindElemOffset, KindJeqOffset, KindMemberOffset, KindBaseMembersOffset:
				target := d.Find(in.RelocTarget)
				if target == nil {
					return ErrUnsupported
				}
				abs := int64(ct.OffsetInFlat) + int64(i)
				rel := int64(target.OffsetInFlat) - abs
				if rel > math.MaxInt16 || rel < math.MinInt16 {
					return ErrRelocationRange
				}
				in.RelocResolved = uint16(int16(rel))
				in.relocated = true
			}
		}
	}
	return nil
}

// Resolved reports whether a relocation instruction has been patched by
// ResolveOffsets; used by the bytecode-closure test (spec.md §8).
func (in Instruction) Resolved() bool { return in.relocated }
