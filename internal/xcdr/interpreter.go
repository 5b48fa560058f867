// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xcdr

import (
	"fmt"
	"math"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/descriptor"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/log"
)

// Struct is the in-memory sample representation for an aggregated type:
// member name -> value. There is no generated per-type Go struct to offset
// into (spec.md §1: "no generated code per-type beyond the op table"), so
// the interpreter walks a dynamic value tree instead of raw memory, keyed
// by the same member names the descriptor's MemberInfo carries.
type Struct map[string]any

// UnionValue is the in-memory sample representation for a union instance.
type UnionValue struct {
	Discriminant any
	Case         *ast.UnionCase // nil: no case selected, only the discriminant is encoded
	Value        any
}

// emheaderSentinel terminates a PLC member list at encode/decode time
// (spec.md §4.E: "close with a sentinel").
const emheaderSentinel = 0xFFFFFFFF

// Interpreter is the re-entrant VM spec.md §4.E and §5 describe: each call
// takes a fresh Writer/Reader and touches no shared state, so multiple
// goroutines may serialize/deserialize the same Descriptor concurrently.
type Interpreter struct {
	desc *descriptor.Descriptor
	log  *log.Helper
}

// New returns an Interpreter bound to a compiled Descriptor. The Descriptor
// itself must not be mutated while in-flight calls are using it (spec.md §5).
func New(desc *descriptor.Descriptor, logger log.Logger) *Interpreter {
	return &Interpreter{desc: desc, log: log.NewHelper(logger)}
}

// Serialize encodes sample (the value for Descriptor's root constructed
// type) to enc's wire format.
func (ip *Interpreter) Serialize(sample Struct, enc Encoding) ([]byte, error) {
	root := ip.desc.ConstructedTypes[0]
	w := NewWriter(enc)
	if err := ip.encodeAggregate(w, root, sample); err != nil {
		return nil, err
	}
	return w.Bytes(), nil
}

// Deserialize parses buf into a freshly-allocated sample.
func (ip *Interpreter) Deserialize(buf []byte, enc Encoding) (Struct, error) {
	root := ip.desc.ConstructedTypes[0]
	r := NewReader(enc, buf)
	v, err := ip.decodeAggregate(r, root)
	if err != nil {
		return nil, err
	}
	return v, nil
}

// KeyCDR extracts the canonical key-CDR for hashing, in XCDR2 key order
// (spec.md §4.E point 3, §8 "key-hash stability").
func (ip *Interpreter) KeyCDR(sample Struct) ([]byte, error) {
	w := NewWriter(XCDR2LE)
	root := ip.desc.ConstructedTypes[0]
	for _, k := range ip.desc.Keys {
		value, node, err := navigatePath(ip.desc, root, sample, splitPath(k.Name))
		if err != nil {
			return nil, err
		}
		if err := ip.encodeValue(w, node, value, 0); err != nil {
			return nil, err
		}
	}
	return w.Bytes(), nil
}

func splitPath(dotted string) []string {
	var out []string
	start := 0
	for i := 0; i < len(dotted); i++ {
		if dotted[i] == '.' {
			out = append(out, dotted[start:i])
			start = i + 1
		}
	}
	out = append(out, dotted[start:])
	return out
}

func navigatePath(desc *descriptor.Descriptor, ct *descriptor.ConstructedType, sample Struct, path []string) (any, ast.Node, error) {
	members := desc.FlattenMembers(ct)
	var mi *descriptor.MemberInfo
	for i := range members {
		if members[i].Name == path[0] {
			mi = &members[i]
			break
		}
	}
	if mi == nil {
		return nil, nil, fmt.Errorf("%w: key path member %q not found", ErrBadData, path[0])
	}
	value := sample[path[0]]
	if len(path) == 1 {
		return value, mi.Resolved, nil
	}
	sub, ok := value.(Struct)
	if !ok {
		return nil, nil, fmt.Errorf("%w: key path %q is not a nested struct", ErrBadData, path[0])
	}
	subCT := desc.Find(mi.Aggregate)
	return navigatePath(desc, subCT, sub, path[1:])
}

func (ip *Interpreter) encodeAggregate(w *Writer, ct *descriptor.ConstructedType, sample Struct) error {
	if u, ok := ct.Node.(*ast.Union); ok {
		return ip.encodeUnion(w, ct, u, sample)
	}
	s, _ := ct.Node.(*ast.Struct)
	members := ip.desc.FlattenMembers(ct)

	switch s.Extensibility {
	case ast.Appendable:
		placeholder := w.ReservePlaceholder()
		start := w.Len()
		for _, m := range members {
			if err := ip.encodeMember(w, m, sample, false); err != nil {
				return err
			}
		}
		w.PatchU32(placeholder, uint32(w.Len()-start))
	case ast.Mutable:
		for _, m := range members {
			value, present := sample[m.Name]
			if m.Flags.Has(descriptor.FlagOptional) && (!present || value == nil) {
				continue // absent from the PLC list, per spec.md §4.E
			}
			body := NewWriter(w.enc)
			if err := ip.encodeValue(body, m.Resolved, value, m.Flags); err != nil {
				return err
			}
			header := m.ID &^ (1 << 31)
			if m.Flags.Has(descriptor.FlagMustUnderstand) {
				header |= 1 << 31
			}
			w.WriteU32(header)
			w.WriteU32(uint32(len(body.Bytes())))
			w.WriteBytes(body.Bytes())
		}
		w.WriteU32(emheaderSentinel)
	default: // Final
		for _, m := range members {
			if err := ip.encodeMember(w, m, sample, false); err != nil {
				return err
			}
		}
	}
	return nil
}

func (ip *Interpreter) encodeMember(w *Writer, m descriptor.MemberInfo, sample Struct, inPLC bool) error {
	value := sample[m.Name]
	if m.Flags.Has(descriptor.FlagOptional) {
		present := value != nil
		w.WriteBool(present)
		if !present {
			return nil
		}
	}
	return ip.encodeValue(w, m.Resolved, value, m.Flags)
}

func (ip *Interpreter) encodeUnion(w *Writer, ct *descriptor.ConstructedType, u *ast.Union, sample Struct) error {
	uv, ok := sample["$union"].(UnionValue)
	if !ok {
		return fmt.Errorf("%w: union sample missing $union value", ErrBadData)
	}
	if err := ip.encodeValue(w, ast.Unalias(u.Discriminant), uv.Discriminant, 0); err != nil {
		return err
	}
	if uv.Case != nil && uv.Case.Member != nil {
		return ip.encodeValue(w, ast.Unalias(uv.Case.Member.Type), uv.Value, 0)
	}
	return nil
}

func (ip *Interpreter) encodeValue(w *Writer, node ast.Node, value any, flags descriptor.OpFlags) error {
	switch t := node.(type) {
	case *ast.BaseScalarType:
		return encodeScalar(w, t.Scalar, value)
	case *ast.StringType:
		s, _ := value.(string)
		if t.Wide {
			return w.WriteWString(s)
		}
		w.WriteString(s)
		return nil
	case *ast.Enum:
		v := toUint64(value)
		if v > t.MaxValue() {
			return fmt.Errorf("%w: enum value %d exceeds max %d", ErrBadData, v, t.MaxValue())
		}
		w.WriteU32(uint32(v))
		return nil
	case *ast.Bitmask:
		w.WriteU64(toUint64(value))
		return nil
	case *ast.Sequence:
		elems, _ := value.([]any)
		if t.Bound != 0 && uint32(len(elems)) > t.Bound {
			return fmt.Errorf("%w: sequence length %d exceeds bound %d", ErrBadData, len(elems), t.Bound)
		}
		w.WriteU32(uint32(len(elems)))
		elem := ast.Unalias(t.Element)
		for _, e := range elems {
			if err := ip.encodeValue(w, elem, e, 0); err != nil {
				return err
			}
		}
		return nil
	case *ast.Array:
		elems, _ := value.([]any)
		elem := ast.Unalias(t.Element)
		n := int(t.TotalLength())
		for i := 0; i < n; i++ {
			var e any
			if i < len(elems) {
				e = elems[i]
			}
			if err := ip.encodeValue(w, elem, e, 0); err != nil {
				return err
			}
		}
		return nil
	case *ast.Struct:
		sub, _ := value.(Struct)
		subCT := ip.desc.ConstructedTypes[ip.findTypeID(t)]
		return ip.encodeAggregate(w, subCT, sub)
	case *ast.Union:
		sub, _ := value.(Struct)
		subCT := ip.desc.ConstructedTypes[ip.findTypeID(t)]
		return ip.encodeAggregate(w, subCT, sub)
	default:
		return fmt.Errorf("%w: cannot encode %T", ErrBadData, node)
	}
}

// findTypeID locates the ConstructedType arena index for an arbitrary AST
// node already known to the descriptor (every aggregate reachable from the
// root was registered during compilation).
func (ip *Interpreter) findTypeID(n ast.Node) descriptor.TypeID {
	for _, ct := range ip.desc.ConstructedTypes {
		if ct.Node.ID() == n.ID() {
			return ct.ID()
		}
	}
	return 0
}

func encodeScalar(w *Writer, scalar ast.BaseScalar, value any) error {
	switch scalar {
	case ast.ScalarBoolean:
		b, _ := value.(bool)
		w.WriteBool(b)
	case ast.ScalarOctet, ast.ScalarUint8:
		w.WriteU8(uint8(toUint64(value)))
	case ast.ScalarChar:
		w.WriteU8(uint8(toUint64(value)))
	case ast.ScalarWChar, ast.ScalarUint16:
		w.WriteU16(uint16(toUint64(value)))
	case ast.ScalarInt8:
		w.WriteU8(uint8(toUint64(value)))
	case ast.ScalarInt16:
		w.WriteU16(uint16(toUint64(value)))
	case ast.ScalarInt32, ast.ScalarUint32:
		w.WriteU32(uint32(toUint64(value)))
	case ast.ScalarInt64, ast.ScalarUint64:
		w.WriteU64(toUint64(value))
	case ast.ScalarFloat32:
		f, _ := value.(float32)
		w.WriteU32(math.Float32bits(f))
	case ast.ScalarFloat64:
		f, _ := value.(float64)
		w.WriteU64(math.Float64bits(f))
	default:
		return fmt.Errorf("%w: unknown scalar kind %d", ErrBadData, scalar)
	}
	return nil
}

func toUint64(v any) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int64:
		return uint64(n)
	case uint32:
		return uint64(n)
	case int32:
		return uint64(int64(n))
	case uint16:
		return uint64(n)
	case int16:
		return uint64(int64(n))
	case uint8:
		return uint64(n)
	case int8:
		return uint64(int64(n))
	case int:
		return uint64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}
