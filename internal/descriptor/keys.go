// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package descriptor

import (
	"sort"
	"strings"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
)

// candidateKey is one key path discovered by the walk, before the two
// running totals (declaration order / member-id order) are folded in.
type candidateKey struct {
	name    string
	instOff uint32
	order   []uint32
	size    uint32
	align   uint32
	dheader bool
	dims    []uint32
}

// PlanKeys implements spec.md §4.C: after the op-emitter (§4.B) finishes,
// discover key members, compute the fixed-key-size totals, and build the
// KOF section. Must run after ResolveOffsets so MemberInfo.InstrOffset is
// absolute.
func PlanKeys(d *Descriptor) error {
	if len(d.ConstructedTypes) == 0 {
		return nil
	}
	w := &keyWalker{d: d}
	cands, err := w.walk(d.ConstructedTypes[0], nil, nil, false)
	if err != nil {
		return err
	}

	keys := make([]KeyMember, len(cands))
	var szDecl uint32
	for i, c := range cands {
		align := c.align
		if align > 8 {
			align = 8
		}
		szDecl = alignedAdd(szDecl, align, c.size)
		keys[i] = KeyMember{
			Name:     c.name,
			InstOffs: c.instOff,
			KeyIdx:   i,
			Order:    c.order,
			Size:     c.size,
			Align:    c.align,
			DHeader:  c.dheader,
			Dims:     c.dims,
		}
	}
	if szDecl > DDSFixedKeyMaxSize {
		szDecl = keySizeUnbounded
	}

	sorted := append([]candidateKey{}, cands...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return leafOrder(sorted[i].order) < leafOrder(sorted[j].order)
	})
	var szXCDR2 uint32
	for _, c := range sorted {
		align := c.align
		if align > 4 {
			align = 4
		}
		szXCDR2 = alignedAdd(szXCDR2, align, c.size)
		if c.dheader {
			szXCDR2 += 4
		}
	}
	if szXCDR2 > DDSFixedKeyMaxSize {
		szXCDR2 = keySizeUnbounded
	}

	for i := range keys {
		keys[i].KeyIdx = i
	}
	sort.SliceStable(keys, func(i, j int) bool {
		return leafOrder(keys[i].Order) < leafOrder(keys[j].Order)
	})

	d.Keys = keys
	d.KeySizeXCDR1 = szDecl
	d.KeySizeXCDR2 = szXCDR2
	d.KeyOffsets = buildKOF(keys)
	return nil
}

func leafOrder(order []uint32) uint32 {
	if len(order) == 0 {
		return 0
	}
	return order[len(order)-1]
}

func alignedAdd(total, align, size uint32) uint32 {
	if align == 0 {
		align = 1
	}
	if rem := total % align; rem != 0 {
		total += align - rem
	}
	return total + size
}

type keyWalker struct {
	d *Descriptor
}

// walk recursively discovers key paths starting at ct, following
// BASE_MEMBERS_OFFSET into parent types and ELEM_OFFSET into nested struct
// types (spec.md §4.C step 1), honoring the "parent_is_key" rule: a member
// is a key iff its own ADR carries FLAG_KEY, or the enclosing member is a
// key-of-aggregated-type and that aggregate declares no explicit key
// members of its own (in which case every one of its members becomes an
// implicit key).
func (w *keyWalker) walk(ct *ConstructedType, pathPrefix []string, orderPrefix []uint32, parentIsKey bool) ([]candidateKey, error) {
	var out []candidateKey

	if ct.Base != nil {
		baseCT := w.d.Find(*ct.Base)
		sub, err := w.walk(baseCT, pathPrefix, orderPrefix, parentIsKey)
		if err != nil {
			return nil, err
		}
		out = append(out, sub...)
	}

	for _, m := range ct.Members {
		if m.Name == "@base" {
			continue
		}
		isKey := m.Flags.Has(FlagKey) || parentIsKey
		if !isKey {
			continue
		}

		path := append(append([]string{}, pathPrefix...), m.Name)
		order := append(append([]uint32{}, orderPrefix...), m.ID)
		dotted := strings.Join(path, ".")

		switch t := m.Resolved.(type) {
		case *ast.Union:
			return nil, ErrKeyThroughUnion
		case *ast.Sequence:
			return nil, ErrKeyThroughSeq
		case *ast.Array:
			elem := ast.Unalias(t.Element)
			if isUnboundedElement(elem) {
				return nil, ErrKeyUnboundedArr
			}
			if _, isAgg := elem.(*ast.Struct); isAgg {
				return nil, ErrUnsupported
			}
			if _, isAgg := elem.(*ast.Union); isAgg {
				return nil, ErrUnsupported
			}
			size, align := leafSizeAlign(elem)
			out = append(out, candidateKey{
				name: dotted, instOff: m.InstrOffset, order: order,
				size: size * t.TotalLength(), align: align, dheader: true, dims: t.Dims,
			})
		case *ast.StringType:
			if t.Bound == 0 {
				out = append(out, candidateKey{name: dotted, instOff: m.InstrOffset, order: order, size: keySizeUnbounded, align: 4})
			} else {
				out = append(out, candidateKey{name: dotted, instOff: m.InstrOffset, order: order, size: 4 + t.Bound + 1, align: 4})
			}
		case *ast.Struct:
			subCT := w.d.Find(m.Aggregate)
			childParentIsKey := !subCT.HasKeyMember
			sub, err := w.walk(subCT, path, order, childParentIsKey)
			if err != nil {
				return nil, err
			}
			out = append(out, sub...)
		default:
			size, align := leafSizeAlign(t)
			out = append(out, candidateKey{name: dotted, instOff: m.InstrOffset, order: order, size: size, align: align})
		}
	}
	return out, nil
}

func isUnboundedElement(n ast.Node) bool {
	switch t := n.(type) {
	case *ast.StringType:
		return t.Bound == 0
	case *ast.Sequence:
		return true
	}
	return false
}

func leafSizeAlign(n ast.Node) (uint32, uint32) {
	switch t := n.(type) {
	case *ast.BaseScalarType:
		w := t.Scalar.Width()
		return w, w
	case *ast.Enum:
		switch t.BitWidthClass() {
		case 1:
			return 2, 2
		case 2:
			return 4, 4
		default:
			return 8, 8
		}
	case *ast.Bitmask:
		switch t.BitWidthClass() {
		case 1:
			return 2, 2
		case 2:
			return 4, 4
		default:
			return 8, 8
		}
	}
	return keySizeUnbounded, 1
}

// buildKOF emits the KOF section: for each key, {KOF(len), SINGLE(op_offset)
// x len} where each SINGLE also carries the member id in its upper half
// (spec.md §4.C step 5), used by the serializer to recover XCDR2 key order.
func buildKOF(keys []KeyMember) []Instruction {
	var out []Instruction
	for _, k := range keys {
		out = append(out, Instruction{Kind: KindOpcode, Op: OpKOF, Order: uint32(len(k.Order))})
		for _, memberID := range k.Order {
			out = append(out, Instruction{Kind: KindSingle, Single: k.InstOffs, CoupleA: memberID})
		}
	}
	return out
}
