// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package typemeta implements the X-Types type-meta builder (spec.md §4.D):
// MinimalTypeObject/CompleteTypeObject graphs, hash-based type identity, and
// the TypeInformation/TypeMapping blobs serialized alongside a compiled
// descriptor. It walks the same AST internal/descriptor compiles, grounded
// on the same depth-first constructed-type dedup strategy (design notes §9)
// internal/descriptor's Emitter uses.
package typemeta

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"sort"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/log"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/mangler"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/xcdr"
)

// TIKind tags a TypeIdentifier's shape (spec.md §6 "Type-identifier binary
// form").
type TIKind uint8

const (
	TIPrimitive TIKind = iota
	TIStringSmall
	TIStringLarge
	TIPlainSequenceSmall
	TIPlainSequenceLarge
	TIPlainArraySmall
	TIPlainArrayLarge
	TIHashed
)

// TypeIdentifier is the tagged union spec.md §6 describes: primitives are
// identified by tag alone, plain collections carry bound/element/flags, and
// named types not otherwise fully descriptive carry a 14-byte
// EquivalenceHash.
type TypeIdentifier struct {
	Kind         TIKind
	Scalar       ast.BaseScalar // TIPrimitive
	Wide         bool           // TIStringSmall/Large
	Bound        uint32         // string bound, 0 = unbounded; collection bound, 0 = sequence-unbounded
	Dims         []uint32       // TIPlainArray*
	ElementFlags uint8         // @external/@try_construct bits carried on the collection itself
	Element      *TypeIdentifier
	Hash         [14]byte // TIHashed
}

// IsFullyDescriptive reports whether ti needs no hash table entry: a
// primitive, a string, or a collection built entirely from fully
// descriptive parts (spec.md §4.D).
func (ti *TypeIdentifier) IsFullyDescriptive() bool {
	switch ti.Kind {
	case TIPrimitive, TIStringSmall, TIStringLarge:
		return true
	case TIPlainSequenceSmall, TIPlainSequenceLarge, TIPlainArraySmall, TIPlainArrayLarge:
		return ti.Element != nil && ti.Element.IsFullyDescriptive()
	}
	return false
}

// MinimalMember is one entry of a MinimalStructMemberSeq.
type MinimalMember struct {
	ID       uint32
	NameHash [4]byte
	Type     TypeIdentifier
	MustUnderstand, Key, Optional, External bool
}

// MinimalLiteral is one entry of a MinimalEnumeratedLiteralSeq, kept in
// increasing-value order (spec.md §4.D).
type MinimalLiteral struct {
	NameHash [4]byte
	Value    uint64
}

// MinimalBit is one entry of a MinimalBitflagSeq, kept in increasing
// bit-position order.
type MinimalBit struct {
	NameHash [4]byte
	Position uint8
}

// MinimalCase is one union branch.
type MinimalCase struct {
	Labels         []int64
	IsDefault      bool
	Member         MinimalMember
}

// MinimalTypeObject carries only name hashes and structure — no source
// names or annotations (spec.md §4.D).
type MinimalTypeObject struct {
	Kind          ast.Kind
	Extensibility ast.Extensibility
	Members       []MinimalMember
	Literals      []MinimalLiteral
	Bits          []MinimalBit
	Discriminant  *TypeIdentifier
	DiscFlags     uint8
	Cases         []MinimalCase
	Element       *TypeIdentifier // named sequence/array typedef
	Bound         uint32
	Dims          []uint32
}

// CompleteMember adds the source name and X-Types annotation maps Minimal
// omits (spec.md §4.D, "collected for Complete only"): @hashid's explicit
// hash-id string, @unit, and @min/@max, all carried in
// AppliedBuiltinMemberAnnotations on the real descriptor_type_meta.c.
type CompleteMember struct {
	MinimalMember
	Name   string
	HashID string
	Unit   string
	Min    *int64
	Max    *int64
}

// CompleteTypeObject mirrors MinimalTypeObject plus source names/annotations.
type CompleteTypeObject struct {
	Kind          ast.Kind
	Name          string
	Extensibility ast.Extensibility
	Members       []CompleteMember
	Literals      []MinimalLiteral
	LiteralNames  []string
	Bits          []MinimalBit
	BitNames      []string
	Discriminant  *TypeIdentifier
	DiscFlags     uint8
	Cases         []MinimalCase
	CaseNames     []string
	Element       *TypeIdentifier
	Bound         uint32
	Dims          []uint32
}

// TypeEntry pairs a type's two identifiers with its two TypeObjects, the
// per-type record the builder produces (spec.md §4.D public contract).
type TypeEntry struct {
	Node     ast.Node
	Name     string
	MinID    TypeIdentifier
	CompID   TypeIdentifier
	Minimal  MinimalTypeObject
	Complete CompleteTypeObject
}

// TypeInformation is {minimal, complete}, each a typeid-with-size plus a
// deduplicated dependent-typeid list (spec.md §4.D Output).
type TypeInformation struct {
	Minimal  TypeIdentifierWithDeps
	Complete TypeIdentifierWithDeps
}

type TypeIdentifierWithDeps struct {
	TypeID       TypeIdentifier
	DependentIDs []TypeIdentifier
}

// TypeMapping is the {id→obj} and {complete→minimal} tables (spec.md §4.D
// Output), serialized as the TypeMapping blob.
type TypeMapping struct {
	MinimalObjs     map[[14]byte]MinimalTypeObject
	CompleteObjs    map[[14]byte]CompleteTypeObject
	CompleteToMinimal map[[14]byte][14]byte
}

// Builder walks an AST and accumulates TypeEntry records, grounded on the
// same dedup-by-node-identity approach internal/descriptor's Emitter uses.
type Builder struct {
	log     *log.Helper
	mangler *mangler.Mangler
	byNode  map[ast.NodeID]*TypeEntry
	order   []*TypeEntry
}

// Options configures a Build pass. The zero value is usable.
type Options struct {
	Logger log.Logger
}

func NewBuilder(opts Options) *Builder {
	return &Builder{
		log:     log.NewHelper(opts.Logger),
		mangler: mangler.New(),
		byNode:  make(map[ast.NodeID]*TypeEntry),
	}
}

// Build walks root and returns the root type's TypeInformation plus the
// TypeMapping covering every type discovered, per spec.md §4.D.
func (b *Builder) Build(root ast.Node) (TypeInformation, TypeMapping, error) {
	entry, err := b.visit(root, nil)
	if err != nil {
		return TypeInformation{}, TypeMapping{}, err
	}

	mapping := TypeMapping{
		MinimalObjs:       make(map[[14]byte]MinimalTypeObject),
		CompleteObjs:      make(map[[14]byte]CompleteTypeObject),
		CompleteToMinimal: make(map[[14]byte][14]byte),
	}
	for _, e := range b.order {
		if e.MinID.Kind == TIHashed {
			mapping.MinimalObjs[e.MinID.Hash] = e.Minimal
		}
		if e.CompID.Kind == TIHashed {
			mapping.CompleteObjs[e.CompID.Hash] = e.Complete
			if e.MinID.Kind == TIHashed {
				mapping.CompleteToMinimal[e.CompID.Hash] = e.MinID.Hash
			}
		}
	}

	info := TypeInformation{
		Minimal:  TypeIdentifierWithDeps{TypeID: entry.MinID, DependentIDs: dedupMinimal(b.dependents(entry, true))},
		Complete: TypeIdentifierWithDeps{TypeID: entry.CompID, DependentIDs: b.dependents(entry, false)},
	}
	return info, mapping, nil
}

func (b *Builder) dependents(root *TypeEntry, minimal bool) []TypeIdentifier {
	var out []TypeIdentifier
	for _, e := range b.order {
		if e == root {
			continue
		}
		if minimal {
			out = append(out, e.MinID)
		} else {
			out = append(out, e.CompID)
		}
	}
	return out
}

func dedupMinimal(ids []TypeIdentifier) []TypeIdentifier {
	seen := make(map[[14]byte]bool)
	var out []TypeIdentifier
	for _, id := range ids {
		if id.Kind != TIHashed {
			out = append(out, id)
			continue
		}
		if seen[id.Hash] {
			continue
		}
		seen[id.Hash] = true
		out = append(out, id)
	}
	return out
}

func isMetaKind(n ast.Node) bool {
	switch n.(type) {
	case *ast.Struct, *ast.Union, *ast.Enum, *ast.Bitmask:
		return true
	case *ast.Sequence:
		return n.Name() != ""
	case *ast.Array:
		return n.Name() != ""
	}
	return false
}

func (b *Builder) visit(n ast.Node, scope mangler.Scope) (*TypeEntry, error) {
	resolved := ast.Unalias(n)
	if e, ok := b.byNode[resolved.ID()]; ok {
		return e, nil
	}
	if !isMetaKind(resolved) {
		return nil, fmt.Errorf("typemeta: %T is not a type-meta frame", resolved)
	}

	b.mangler.Enter(resolved, scope)
	entry := &TypeEntry{Node: resolved, Name: b.mangler.ScopedName(resolved)}
	b.byNode[resolved.ID()] = entry
	b.order = append(b.order, entry)

	var err error
	switch t := resolved.(type) {
	case *ast.Struct:
		err = b.buildStruct(entry, t, scope)
	case *ast.Union:
		err = b.buildUnion(entry, t, scope)
	case *ast.Enum:
		b.buildEnum(entry, t)
	case *ast.Bitmask:
		b.buildBitmask(entry, t)
	case *ast.Sequence:
		err = b.buildNamedCollection(entry, t, t.Element, 0, t.Bound, scope)
	case *ast.Array:
		err = b.buildNamedCollection(entry, t, t.Element, 1, 0, scope)
		entry.Minimal.Dims, entry.Complete.Dims = t.Dims, t.Dims
	}
	if err != nil {
		return nil, err
	}

	entry.MinID = b.identify(&entry.Minimal, nil, true)
	entry.CompID = b.identify(nil, &entry.Complete, false)
	return entry, nil
}

func (b *Builder) buildNamedCollection(entry *TypeEntry, n ast.Node, elemNode ast.Node, shape int, bound uint32, scope mangler.Scope) error {
	elem := ast.Unalias(elemNode)
	elemTI, err := b.elementIdentifier(elem, scope)
	if err != nil {
		return err
	}
	entry.Minimal.Kind, entry.Complete.Kind = n.Kind(), n.Kind()
	entry.Minimal.Element, entry.Complete.Element = elemTI, elemTI
	entry.Minimal.Bound, entry.Complete.Bound = bound, bound
	entry.Complete.Name = entry.Name
	return nil
}

// elementIdentifier resolves a collection element's TypeIdentifier without
// requiring it be a type-meta frame (primitives/strings/nested collections
// are fully descriptive by construction).
func (b *Builder) elementIdentifier(n ast.Node, scope mangler.Scope) (*TypeIdentifier, error) {
	switch t := n.(type) {
	case *ast.BaseScalarType:
		return &TypeIdentifier{Kind: TIPrimitive, Scalar: t.Scalar}, nil
	case *ast.StringType:
		kind := TIStringSmall
		if t.Bound > 255 {
			kind = TIStringLarge
		}
		return &TypeIdentifier{Kind: kind, Wide: t.Wide, Bound: t.Bound}, nil
	case *ast.Sequence, *ast.Array, *ast.Struct, *ast.Union, *ast.Enum, *ast.Bitmask:
		if !isMetaKind(t) { // anonymous sequence/array: identified from its shape
			var shape TypeEntry
			var err error
			if s, ok := t.(*ast.Sequence); ok {
				err = b.buildNamedCollection(&shape, s, s.Element, 0, s.Bound, scope)
			} else if a, ok := t.(*ast.Array); ok {
				err = b.buildNamedCollection(&shape, a, a.Element, 1, 0, scope)
				shape.Minimal.Dims = a.Dims
			}
			if err != nil {
				return nil, err
			}
			ti := b.identify(&shape.Minimal, nil, true)
			return &ti, nil
		}
		e, err := b.visit(t, scope)
		if err != nil {
			return nil, err
		}
		return &e.MinID, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedElement, n)
	}
}

func (b *Builder) buildStruct(entry *TypeEntry, s *ast.Struct, scope mangler.Scope) error {
	inner := append(append(mangler.Scope{}, scope...), s.Name())
	entry.Minimal.Kind, entry.Complete.Kind = ast.KindStruct, ast.KindStruct
	entry.Minimal.Extensibility, entry.Complete.Extensibility = s.Extensibility, s.Extensibility
	entry.Complete.Name = entry.Name

	for _, m := range s.Members {
		mm, cm, err := b.buildMember(m, inner)
		if err != nil {
			return err
		}
		entry.Minimal.Members = append(entry.Minimal.Members, mm)
		entry.Complete.Members = append(entry.Complete.Members, cm)
	}
	return nil
}

func (b *Builder) buildMember(m *ast.Member, scope mangler.Scope) (MinimalMember, CompleteMember, error) {
	resolved := ast.Unalias(m.Type)
	ti, err := b.elementIdentifier(resolved, scope)
	if err != nil {
		return MinimalMember{}, CompleteMember{}, err
	}
	mm := MinimalMember{
		ID:             m.ID,
		NameHash:       nameHash(m.Name),
		Type:           *ti,
		MustUnderstand: m.Flags.MustUnderstand,
		Key:            m.Flags.Key,
		Optional:       m.Flags.Optional,
		External:       m.Flags.External,
	}
	cm := CompleteMember{MinimalMember: mm, Name: m.Name}
	if hashID, ok := m.Ann["hashid"]; ok {
		cm.HashID = hashID
	}
	if unit, ok := m.Ann["unit"]; ok {
		cm.Unit = unit
	}
	if min, ok := parseAnnInt(m.Ann["min"]); ok {
		cm.Min = &min
	}
	if max, ok := parseAnnInt(m.Ann["max"]); ok {
		cm.Max = &max
	}
	return mm, cm, nil
}

// parseAnnInt parses an @min/@max annotation's literal argument. Absent or
// malformed values are treated as "not set" rather than a build error:
// these are descriptive metadata, not semantics the emitter depends on.
func parseAnnInt(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	var v int64
	if _, err := fmt.Sscanf(s, "%d", &v); err != nil {
		return 0, false
	}
	return v, true
}

func (b *Builder) buildUnion(entry *TypeEntry, u *ast.Union, scope mangler.Scope) error {
	inner := append(append(mangler.Scope{}, scope...), u.Name())
	entry.Minimal.Kind, entry.Complete.Kind = ast.KindUnion, ast.KindUnion
	entry.Minimal.Extensibility, entry.Complete.Extensibility = u.Extensibility, u.Extensibility
	entry.Complete.Name = entry.Name

	discTI, err := b.elementIdentifier(ast.Unalias(u.Discriminant), scope)
	if err != nil {
		return err
	}
	entry.Minimal.Discriminant, entry.Complete.Discriminant = discTI, discTI
	discFlags := uint8(0x1) // MU always set on the discriminant, per spec.md §4.D
	if hasKeyDiscriminant(u) {
		discFlags |= 0x2
	}
	entry.Minimal.DiscFlags, entry.Complete.DiscFlags = discFlags, discFlags

	for _, c := range u.Cases {
		for _, l := range c.Labels {
			if l > int64(int32(^uint32(0)>>1)) || l < int64(-int32(^uint32(0)>>1)-1) {
				return ErrCaseLabelRange
			}
		}
		mm, cm, err := b.buildMember(c.Member, inner)
		if err != nil {
			return err
		}
		entry.Minimal.Cases = append(entry.Minimal.Cases, MinimalCase{Labels: c.Labels, IsDefault: c.IsDefault, Member: mm})
		entry.Complete.Cases = append(entry.Complete.Cases, MinimalCase{Labels: c.Labels, IsDefault: c.IsDefault, Member: mm})
		entry.Complete.CaseNames = append(entry.Complete.CaseNames, cm.Name)
	}
	return nil
}

func hasKeyDiscriminant(u *ast.Union) bool {
	return false // discriminant keyedness is carried by the enclosing member, not the union itself
}

func (b *Builder) buildEnum(entry *TypeEntry, e *ast.Enum) {
	entry.Minimal.Kind, entry.Complete.Kind = ast.KindEnum, ast.KindEnum
	entry.Complete.Name = entry.Name
	lits := append([]ast.EnumLiteral{}, e.Literals...)
	sortLiterals(lits)
	for _, l := range lits {
		entry.Minimal.Literals = append(entry.Minimal.Literals, MinimalLiteral{NameHash: nameHash(l.Name), Value: l.Value})
		entry.Complete.Literals = append(entry.Complete.Literals, MinimalLiteral{NameHash: nameHash(l.Name), Value: l.Value})
		entry.Complete.LiteralNames = append(entry.Complete.LiteralNames, l.Name)
	}
}

func sortLiterals(lits []ast.EnumLiteral) {
	for i := 1; i < len(lits); i++ {
		for j := i; j > 0 && lits[j].Value < lits[j-1].Value; j-- {
			lits[j], lits[j-1] = lits[j-1], lits[j]
		}
	}
}

func (b *Builder) buildBitmask(entry *TypeEntry, bm *ast.Bitmask) {
	entry.Minimal.Kind, entry.Complete.Kind = ast.KindBitmask, ast.KindBitmask
	entry.Complete.Name = entry.Name
	bits := append([]ast.BitmaskFlag{}, bm.Bits...)
	sortBits(bits)
	for _, f := range bits {
		entry.Minimal.Bits = append(entry.Minimal.Bits, MinimalBit{NameHash: nameHash(f.Name), Position: f.Position})
		entry.Complete.Bits = append(entry.Complete.Bits, MinimalBit{NameHash: nameHash(f.Name), Position: f.Position})
		entry.Complete.BitNames = append(entry.Complete.BitNames, f.Name)
	}
}

func sortBits(bits []ast.BitmaskFlag) {
	for i := 1; i < len(bits); i++ {
		for j := i; j > 0 && bits[j].Position < bits[j-1].Position; j-- {
			bits[j], bits[j-1] = bits[j-1], bits[j]
		}
	}
}

// nameHash is a deliberately simplified stand-in for X-Types' 29-bit
// NameHash algorithm: the first 4 bytes of MD5(name). It is still
// deterministic and collision-resistant enough for this module's purposes
// (dependent-id dedup, member identification), which is all the rest of
// the core needs from it.
func nameHash(name string) [4]byte {
	sum := md5.Sum([]byte(name))
	var out [4]byte
	copy(out[:], sum[:4])
	return out
}

// identify computes ti's kind: fully descriptive where possible, otherwise
// hashed via MD5(XCDR2-LE(TypeObject))[0:14] (spec.md §4.D, §6).
func (b *Builder) identify(min *MinimalTypeObject, comp *CompleteTypeObject, isMinimal bool) TypeIdentifier {
	if min != nil {
		if ti, ok := fullyDescriptiveOf(min); ok {
			return ti
		}
		return TypeIdentifier{Kind: TIHashed, Hash: equivalenceHash(encodeMinimal(min))}
	}
	shape := MinimalTypeObject{Kind: comp.Kind, Element: comp.Element, Bound: comp.Bound, Dims: comp.Dims}
	if ti, ok := fullyDescriptiveOf(&shape); ok {
		return ti
	}
	return TypeIdentifier{Kind: TIHashed, Hash: equivalenceHash(encodeComplete(comp))}
}

// fullyDescriptiveOf recognises the named-sequence/array special case
// spec.md §4.D calls out: a collection typedef whose element is itself
// fully descriptive needs no hash table entry.
func fullyDescriptiveOf(min *MinimalTypeObject) (TypeIdentifier, bool) {
	if (min.Kind == ast.KindSequence || min.Kind == ast.KindArray) && min.Element != nil && min.Element.IsFullyDescriptive() {
		kind := TIPlainSequenceSmall
		if min.Kind == ast.KindArray {
			kind = TIPlainArraySmall
		}
		if min.Bound > 255 {
			if kind == TIPlainSequenceSmall {
				kind = TIPlainSequenceLarge
			} else {
				kind = TIPlainArrayLarge
			}
		}
		return TypeIdentifier{Kind: kind, Bound: min.Bound, Dims: min.Dims, Element: min.Element}, true
	}
	return TypeIdentifier{}, false
}

func equivalenceHash(buf []byte) [14]byte {
	sum := md5.Sum(buf)
	var out [14]byte
	copy(out[:], sum[:14])
	return out
}

// encodeMinimal/encodeComplete serialize a TypeObject to XCDR2-LE bytes for
// hashing. The exact field order only needs to be deterministic and
// structurally complete — nothing outside this module reads the bytes —
// which is the "byte-for-byte reproducible across runs and platforms"
// property spec.md §8 tests.
func encodeMinimal(o *MinimalTypeObject) []byte {
	w := xcdr.NewWriter(xcdr.XCDR2LE)
	w.WriteU8(uint8(o.Kind))
	w.WriteU8(uint8(o.Extensibility))
	w.WriteU32(uint32(len(o.Members)))
	for _, m := range o.Members {
		w.WriteU32(m.ID)
		w.WriteBytes(m.NameHash[:])
		encodeTI(w, &m.Type)
		w.WriteBool(m.MustUnderstand)
		w.WriteBool(m.Key)
		w.WriteBool(m.Optional)
		w.WriteBool(m.External)
	}
	w.WriteU32(uint32(len(o.Literals)))
	for _, l := range o.Literals {
		w.WriteBytes(l.NameHash[:])
		w.WriteU64(l.Value)
	}
	w.WriteU32(uint32(len(o.Bits)))
	for _, bit := range o.Bits {
		w.WriteBytes(bit.NameHash[:])
		w.WriteU8(bit.Position)
	}
	if o.Discriminant != nil {
		w.WriteBool(true)
		encodeTI(w, o.Discriminant)
		w.WriteU8(o.DiscFlags)
	} else {
		w.WriteBool(false)
	}
	w.WriteU32(uint32(len(o.Cases)))
	for _, c := range o.Cases {
		w.WriteU32(uint32(len(c.Labels)))
		for _, l := range c.Labels {
			w.WriteU64(uint64(l))
		}
		w.WriteBool(c.IsDefault)
		w.WriteU32(c.Member.ID)
		w.WriteBytes(c.Member.NameHash[:])
		encodeTI(w, &c.Member.Type)
	}
	if o.Element != nil {
		w.WriteBool(true)
		encodeTI(w, o.Element)
		w.WriteU32(o.Bound)
		for _, d := range o.Dims {
			w.WriteU32(d)
		}
	} else {
		w.WriteBool(false)
	}
	return w.Bytes()
}

func encodeComplete(o *CompleteTypeObject) []byte {
	w := xcdr.NewWriter(xcdr.XCDR2LE)
	w.WriteU8(uint8(o.Kind))
	w.WriteString(o.Name)
	w.WriteU8(uint8(o.Extensibility))
	w.WriteU32(uint32(len(o.Members)))
	for _, m := range o.Members {
		w.WriteU32(m.ID)
		w.WriteString(m.Name)
		encodeTI(w, &m.Type)
		w.WriteBool(m.MustUnderstand)
		w.WriteBool(m.Key)
		w.WriteBool(m.Optional)
		w.WriteBool(m.External)
		if m.HashID != "" {
			w.WriteBool(true)
			w.WriteString(m.HashID)
		} else {
			w.WriteBool(false)
		}
		if m.Unit != "" {
			w.WriteBool(true)
			w.WriteString(m.Unit)
		} else {
			w.WriteBool(false)
		}
		if m.Min != nil {
			w.WriteBool(true)
			w.WriteU64(uint64(*m.Min))
		} else {
			w.WriteBool(false)
		}
		if m.Max != nil {
			w.WriteBool(true)
			w.WriteU64(uint64(*m.Max))
		} else {
			w.WriteBool(false)
		}
	}
	w.WriteU32(uint32(len(o.Literals)))
	for i, l := range o.Literals {
		w.WriteString(o.LiteralNames[i])
		w.WriteU64(l.Value)
	}
	w.WriteU32(uint32(len(o.Bits)))
	for i, bit := range o.Bits {
		w.WriteString(o.BitNames[i])
		w.WriteU8(bit.Position)
	}
	if o.Discriminant != nil {
		w.WriteBool(true)
		encodeTI(w, o.Discriminant)
		w.WriteU8(o.DiscFlags)
	} else {
		w.WriteBool(false)
	}
	w.WriteU32(uint32(len(o.Cases)))
	for i, c := range o.Cases {
		w.WriteU32(uint32(len(c.Labels)))
		for _, l := range c.Labels {
			w.WriteU64(uint64(l))
		}
		w.WriteBool(c.IsDefault)
		w.WriteString(o.CaseNames[i])
		encodeTI(w, &c.Member.Type)
	}
	if o.Element != nil {
		w.WriteBool(true)
		encodeTI(w, o.Element)
		w.WriteU32(o.Bound)
		for _, d := range o.Dims {
			w.WriteU32(d)
		}
	} else {
		w.WriteBool(false)
	}
	return w.Bytes()
}

// Encode serializes info and mapping to XCDR2-LE bytes suitable for the
// TypeInformation/TypeMapping blobs a descriptor bundle carries (spec.md
// §4.D Output). Map-keyed tables are written in sorted hash order so the
// output is byte-for-byte reproducible across runs, matching the property
// spec.md §8 tests of the op-stream encoders.
func (b *Builder) Encode(info TypeInformation, mapping TypeMapping) (typeInformation, typeMapping []byte) {
	return encodeTypeInformation(info), encodeTypeMapping(mapping)
}

func encodeTypeInformation(info TypeInformation) []byte {
	w := xcdr.NewWriter(xcdr.XCDR2LE)
	encodeTIWithDeps(w, info.Minimal)
	encodeTIWithDeps(w, info.Complete)
	return w.Bytes()
}

func encodeTIWithDeps(w *xcdr.Writer, d TypeIdentifierWithDeps) {
	encodeTI(w, &d.TypeID)
	w.WriteU32(uint32(len(d.DependentIDs)))
	for i := range d.DependentIDs {
		encodeTI(w, &d.DependentIDs[i])
	}
}

func encodeTypeMapping(mapping TypeMapping) []byte {
	w := xcdr.NewWriter(xcdr.XCDR2LE)

	minHashes := sortedHashes(mapping.MinimalObjs)
	w.WriteU32(uint32(len(minHashes)))
	for _, h := range minHashes {
		w.WriteBytes(h[:])
		obj := mapping.MinimalObjs[h]
		encoded := encodeMinimal(&obj)
		w.WriteU32(uint32(len(encoded)))
		w.WriteBytes(encoded)
	}

	compHashes := sortedHashes(mapping.CompleteObjs)
	w.WriteU32(uint32(len(compHashes)))
	for _, h := range compHashes {
		w.WriteBytes(h[:])
		obj := mapping.CompleteObjs[h]
		encoded := encodeComplete(&obj)
		w.WriteU32(uint32(len(encoded)))
		w.WriteBytes(encoded)
	}

	c2mHashes := sortedHashes(mapping.CompleteToMinimal)
	w.WriteU32(uint32(len(c2mHashes)))
	for _, h := range c2mHashes {
		w.WriteBytes(h[:])
		min := mapping.CompleteToMinimal[h]
		w.WriteBytes(min[:])
	}

	return w.Bytes()
}

// sortedHashes returns m's keys in ascending byte order so a map's iteration
// order never leaks into the encoded bytes.
func sortedHashes[V any](m map[[14]byte]V) [][14]byte {
	out := make([][14]byte, 0, len(m))
	for h := range m {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

func encodeTI(w *xcdr.Writer, ti *TypeIdentifier) {
	w.WriteU8(uint8(ti.Kind))
	switch ti.Kind {
	case TIPrimitive:
		w.WriteU8(uint8(ti.Scalar))
	case TIStringSmall, TIStringLarge:
		w.WriteBool(ti.Wide)
		w.WriteU32(ti.Bound)
	case TIPlainSequenceSmall, TIPlainSequenceLarge, TIPlainArraySmall, TIPlainArrayLarge:
		w.WriteU32(ti.Bound)
		for _, d := range ti.Dims {
			w.WriteU32(d)
		}
		w.WriteU8(ti.ElementFlags)
		encodeTI(w, ti.Element)
	case TIHashed:
		w.WriteBytes(ti.Hash[:])
	}
}
