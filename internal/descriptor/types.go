// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package descriptor implements the op-code emitter (spec.md §4.B) and the
// key planner (spec.md §4.C): given a parsed IDL AST it produces, per
// constructed type, the flat 32-bit instruction stream the runtime
// interpreter (internal/xcdr) walks, plus the key metadata the fixed-key
// predicate and key-CDR ordering depend on.
package descriptor

import "errors"

// Errors is one var block of wrapped errors.New values per concern.
var (
	ErrOutOfRange       = errors.New("descriptor: instruction count exceeds INT16_MAX")
	ErrRelocationRange  = errors.New("descriptor: relocation offset does not fit in int16")
	ErrUnsupported      = errors.New("descriptor: unsupported construct")
	ErrKeyThroughUnion  = errors.New("descriptor: key path nests through a union")
	ErrKeyThroughSeq    = errors.New("descriptor: key path nests through a sequence")
	ErrKeyUnboundedArr  = errors.New("descriptor: key path nests through an unbounded array element")
	ErrCaseLabelRange   = errors.New("descriptor: union case label does not fit in int32")
)

// MaxInstructions is spec.md §4.B's INT16_MAX bound on total instruction
// count per compile unit.
const MaxInstructions = 1<<15 - 1

// DDSFixedKeyMaxSize is the inclusive byte-size ceiling spec.md §3 names
// for the FIXED_KEY / FIXED_KEY_XCDR2 predicate.
const DDSFixedKeyMaxSize = 16

// keySizeUnbounded is the saturating sentinel both key-size totals clamp to
// once they would otherwise exceed DDSFixedKeyMaxSize.
const keySizeUnbounded = DDSFixedKeyMaxSize + 1

// OpCode is the 8-bit op tag of an OPCODE instruction.
type OpCode uint8

const (
	OpADR OpCode = iota
	OpJEQ4
	OpDLC
	OpPLC
	OpPLM
	OpKOF
	OpRTS
)

func (o OpCode) String() string {
	switch o {
	case OpADR:
		return "ADR"
	case OpJEQ4:
		return "JEQ4"
	case OpDLC:
		return "DLC"
	case OpPLC:
		return "PLC"
	case OpPLM:
		return "PLM"
	case OpKOF:
		return "KOF"
	case OpRTS:
		return "RTS"
	}
	return "?"
}

// TypeCode is the 4-bit type/subtype nibble of an OPCODE instruction.
type TypeCode uint8

const (
	Type1BY TypeCode = iota
	Type2BY
	Type4BY
	Type8BY
	TypeBST // bounded string
	TypeSTR // unbounded string
	TypeBWSTR
	TypeWSTR
	TypeSEQ
	TypeBSQ // bounded sequence
	TypeARR
	TypeUNI
	TypeSTU // nested struct/union (aggregated element)
	TypeENU
	TypeBMK
	TypeEXT
)

// OpFlags are the bit flags packed alongside an OPCODE's op/type nibbles.
type OpFlags uint16

const (
	FlagKey OpFlags = 1 << iota
	FlagMustUnderstand
	FlagOptional
	FlagExternal
	FlagBase
	FlagDefault
	FlagExt
)

func (f OpFlags) Has(bit OpFlags) bool { return f&bit != 0 }

// InstrKind discriminates the instruction-stream word kinds spec.md §3
// names: OPCODE, OFFSET, MEMBER_SIZE, CONSTANT, SINGLE, COUPLE, and the four
// relocatable reference kinds.
type InstrKind uint8

const (
	KindOpcode InstrKind = iota
	KindOffset
	KindMemberSize
	KindConstant
	KindSingle
	KindCouple
	KindElemOffset
	KindJeqOffset
	KindMemberOffset
	KindBaseMembersOffset
)

// Instruction is one word of the flat per-type instruction stream. Only the
// fields relevant to Kind are meaningful; this mirrors the union-of-words
// nature of the real 32-bit-packed stream while keeping the Go
// representation struct-typed and inspectable rather than raw byte packing.
type Instruction struct {
	Kind InstrKind

	// KindOpcode fields.
	Op      OpCode
	Flags   OpFlags
	Type    TypeCode
	Subtype TypeCode
	Size    uint8  // 2-bit size class (enum/bitmask width class)
	Order   uint32 // order_or_len: member id for key ADRs, case count, or PLM jump

	// KindOffset / KindMemberSize hold a textual operand in generated C but
	// here simply the byte offset / size the emitter already knows, since
	// this port has no separate codegen stage (spec.md is a table-driven
	// interpreter with no generated code per type).
	ByteOffset uint32
	ByteSize   uint32

	// KindConstant / KindSingle / KindCouple.
	Const   uint64
	Single  uint32
	CoupleA uint32
	CoupleB uint32

	// Relocation target, resolved by ResolveOffsets into RelocResolved.
	RelocTarget   TypeID
	RelocResolved uint16
	relocated     bool
}

// TypeID is the arena index of a ConstructedType, used in place of the C
// source's pointer identity for self-referential back-edges (design notes
// §9: "never pointers").
type TypeID uint32

// KeyMember is one entry of Descriptor.Keys: spec.md §3's key meta-data
// tuple.
type KeyMember struct {
	Name     string // dotted path
	InstOffs uint32 // op-offset of the key's ADR in the flat (all constructed types) stream
	KeyIdx   int
	Order    []uint32 // member ids along the key path (XCDR2 key order)
	Size     uint32
	Align    uint32
	DHeader  bool
	Dims     []uint32
}

// Flags are the descriptor-level bits spec.md §6 names.
type Flags uint32

const (
	FlagFixedKey Flags = 1 << iota
	FlagFixedKeyXCDR2
	FlagFixedSize
	FlagContainsUnion
	FlagRestrictDataRepresentation
	FlagXTypesMetadata
)
