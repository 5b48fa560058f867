// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package ast is the parsed, annotated IDL AST ("pstate") the core consumes.
// Lexing and AST construction are out of scope (spec.md §1); this package
// only declares the shape the rest of the module walks.
package ast

// Kind is the closed sum of type shapes the core understands.
type Kind uint8

const (
	KindStruct Kind = iota
	KindUnion
	KindEnum
	KindBitmask
	KindSequence
	KindArray
	KindString
	KindWString
	KindBaseScalar
	KindAlias
	KindForward
)

// BaseScalar enumerates the IDL primitive types.
type BaseScalar uint8

const (
	ScalarBoolean BaseScalar = iota
	ScalarOctet
	ScalarChar
	ScalarWChar
	ScalarInt8
	ScalarUint8
	ScalarInt16
	ScalarUint16
	ScalarInt32
	ScalarUint32
	ScalarInt64
	ScalarUint64
	ScalarFloat32
	ScalarFloat64
)

// Width returns the scalar's natural size in bytes.
func (b BaseScalar) Width() uint32 {
	switch b {
	case ScalarBoolean, ScalarOctet, ScalarChar, ScalarInt8, ScalarUint8:
		return 1
	case ScalarInt16, ScalarUint16, ScalarWChar:
		return 2
	case ScalarInt32, ScalarUint32, ScalarFloat32:
		return 4
	case ScalarInt64, ScalarUint64, ScalarFloat64:
		return 8
	}
	return 0
}

// Extensibility classifies a struct/union's evolution contract.
type Extensibility uint8

const (
	Final Extensibility = iota
	Appendable
	Mutable
)

// TryConstruct governs recovery from one-bit deserialization errors.
type TryConstruct uint8

const (
	TryConstructDiscard TryConstruct = iota
	TryConstructUseDefault
	TryConstructTrim
)

// MemberFlags are the per-member annotation bits spec.md §3 names.
type MemberFlags struct {
	Key             bool
	Optional        bool
	MustUnderstand  bool
	External        bool
	Try             TryConstruct
}

// Node is any AST node the core visits. NodeID gives every node a stable
// identity so the constructed-type table can dedup by identity rather than
// by pointer equality with value types (design notes §9).
type Node interface {
	ID() NodeID
	Kind() Kind
	Name() string
}

// NodeID is a process-wide unique identity assigned at AST construction
// time, standing in for the C pointer identity constructed types are
// deduped by.
type NodeID uint32

type base struct {
	id   NodeID
	name string
}

func (b *base) ID() NodeID    { return b.id }
func (b *base) Name() string  { return b.name }

// Member is one field of a struct or one case body of a union.
type Member struct {
	ID    uint32 // stable 32-bit member id (spec.md §3)
	Name  string
	Type  Node
	Flags MemberFlags

	// Ann carries the X-Types annotations spec.md §4.D collects for the
	// Complete graph only (@hashid, @unit, @min, @max), keyed by the bare
	// annotation name with its literal argument as a string. Nil when the
	// member carries none.
	Ann map[string]string
}

// Struct is an aggregated record type.
type Struct struct {
	base
	Extensibility Extensibility
	Base          *Struct // non-nil iff this struct inherits from another
	Members       []*Member
}

func (s *Struct) Kind() Kind { return KindStruct }

// UnionCase is one labeled branch of a union.
type UnionCase struct {
	Labels    []int64 // empty means the default case
	IsDefault bool
	Member    *Member
}

// Union is a discriminated choice type.
type Union struct {
	base
	Extensibility Extensibility
	Discriminant  Node // a BaseScalarType or an *Enum
	Cases         []*UnionCase
}

func (u *Union) Kind() Kind { return KindUnion }

// HasExplicitDefault reports whether a case declares `default:`.
func (u *Union) HasExplicitDefault() bool {
	for _, c := range u.Cases {
		if c.IsDefault {
			return true
		}
	}
	return false
}

// EnumLiteral is one named value of an Enum.
type EnumLiteral struct {
	Name  string
	Value uint64
}

// Enum is a closed set of named integral values.
type Enum struct {
	base
	Literals []EnumLiteral
}

func (e *Enum) Kind() Kind { return KindEnum }

// MaxValue returns the largest declared literal value.
func (e *Enum) MaxValue() uint64 {
	var max uint64
	for _, l := range e.Literals {
		if l.Value > max {
			max = l.Value
		}
	}
	return max
}

// IsConsecutive reports whether the literal values form 0..n with no gaps,
// a property enum-value validation depends on (spec.md §9 open question:
// this module validates rather than merely warning).
func (e *Enum) IsConsecutive() bool {
	seen := make(map[uint64]bool, len(e.Literals))
	for _, l := range e.Literals {
		seen[l.Value] = true
	}
	for i := uint64(0); i < uint64(len(e.Literals)); i++ {
		if !seen[i] {
			return false
		}
	}
	return true
}

// BitWidthClass returns the enum's 2-bit size class (see
// Bitmask.BitWidthClass). Enums carry no bit bound in this AST, so every
// enum is the default 32-bit width: class 2, matching the 4-byte enum
// encoding internal/xcdr uses.
func (e *Enum) BitWidthClass() uint8 { return 2 }

// Bitmask is a named set of bit positions.
type Bitmask struct {
	base
	Bits []BitmaskFlag
}

// BitmaskFlag names one declared bit position (0..63).
type BitmaskFlag struct {
	Name     string
	Position uint8
}

func (b *Bitmask) Kind() Kind { return KindBitmask }

// BitWidthClass returns the 2-bit size class spec.md §4.B assigns enums and
// bitmasks: 1 = 16-bit-ish, 2 = 32-bit, 3 = 64-bit (bitmask only).
func (b *Bitmask) BitWidthClass() uint8 {
	var max uint8
	for _, f := range b.Bits {
		if f.Position > max {
			max = f.Position
		}
	}
	switch {
	case max < 16:
		return 1
	case max < 32:
		return 2
	default:
		return 3
	}
}

// Mask returns the 64-bit mask of declared bit positions.
func (b *Bitmask) Mask() uint64 {
	var m uint64
	for _, f := range b.Bits {
		m |= 1 << f.Position
	}
	return m
}

// Sequence is a bounded or unbounded homogeneous collection.
type Sequence struct {
	base
	Element Node
	Bound   uint32 // 0 means unbounded
}

func (s *Sequence) Kind() Kind { return KindSequence }

// Array is a fixed-length (possibly multi-dimensional) homogeneous
// collection. Multi-dimensional arrays are flattened by the emitter by
// multiplying Dims (spec.md §4.B).
type Array struct {
	base
	Element Node
	Dims    []uint32
}

func (a *Array) Kind() Kind { return KindArray }

// TotalLength returns the product of all dimensions.
func (a *Array) TotalLength() uint32 {
	n := uint32(1)
	for _, d := range a.Dims {
		n *= d
	}
	return n
}

// StringType is a bounded or unbounded IDL string/wstring.
type StringType struct {
	base
	Wide  bool
	Bound uint32 // 0 means unbounded
}

func (s *StringType) Kind() Kind {
	if s.Wide {
		return KindWString
	}
	return KindString
}

// BaseScalarType wraps a primitive scalar as a Node.
type BaseScalarType struct {
	base
	Scalar BaseScalar
}

func (b *BaseScalarType) Kind() Kind { return KindBaseScalar }

// Alias is a named typedef.
type Alias struct {
	base
	Aliased Node
}

func (a *Alias) Kind() Kind { return KindAlias }

// Forward is a forward declaration, resolved to Resolved once the full
// definition is seen. Visitors must follow Resolved, never recurse into a
// Forward directly.
type Forward struct {
	base
	Resolved Node
}

func (f *Forward) Kind() Kind { return KindForward }

// Unalias follows Alias and Forward wrappers to the underlying definition.
// This implements the "IDL_VISIT_UNALIAS_TYPE_SPEC" policy design notes §9
// describes: resolving typedefs before descending, as opposed to keeping
// the alias wrapper (plain NewNode-returning callers that want the wrapper
// should not call this).
func Unalias(n Node) Node {
	for {
		switch t := n.(type) {
		case *Alias:
			n = t.Aliased
		case *Forward:
			if t.Resolved == nil {
				return n
			}
			n = t.Resolved
		default:
			return n
		}
	}
}

// NewStruct, NewUnion, ... construct nodes with a fresh stable ID. Callers
// building a pstate in-process (e.g. tests, the fuzz driver) use an IDGen to
// keep ids process-unique.
type IDGen struct{ next NodeID }

func (g *IDGen) Next() NodeID { g.next++; return g.next }

func NewStruct(g *IDGen, name string, ext Extensibility) *Struct {
	return &Struct{base: base{id: g.Next(), name: name}, Extensibility: ext}
}

func NewUnion(g *IDGen, name string, ext Extensibility, disc Node) *Union {
	return &Union{base: base{id: g.Next(), name: name}, Extensibility: ext, Discriminant: disc}
}

func NewEnum(g *IDGen, name string, lits []EnumLiteral) *Enum {
	return &Enum{base: base{id: g.Next(), name: name}, Literals: lits}
}

func NewBitmask(g *IDGen, name string, bits []BitmaskFlag) *Bitmask {
	return &Bitmask{base: base{id: g.Next(), name: name}, Bits: bits}
}

func NewSequence(g *IDGen, name string, elem Node, bound uint32) *Sequence {
	return &Sequence{base: base{id: g.Next(), name: name}, Element: elem, Bound: bound}
}

func NewArray(g *IDGen, name string, elem Node, dims []uint32) *Array {
	return &Array{base: base{id: g.Next(), name: name}, Element: elem, Dims: dims}
}

func NewString(g *IDGen, bound uint32, wide bool) *StringType {
	return &StringType{base: base{id: g.Next(), name: "string"}, Bound: bound, Wide: wide}
}

func NewBaseScalar(g *IDGen, s BaseScalar) *BaseScalarType {
	return &BaseScalarType{base: base{id: g.Next(), name: "scalar"}, Scalar: s}
}

func NewAlias(g *IDGen, name string, aliased Node) *Alias {
	return &Alias{base: base{id: g.Next(), name: name}, Aliased: aliased}
}
