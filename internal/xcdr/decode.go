// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package xcdr

import (
	"math"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/descriptor"
)

func (ip *Interpreter) decodeAggregate(r *Reader, ct *descriptor.ConstructedType) (Struct, error) {
	if u, ok := ct.Node.(*ast.Union); ok {
		return ip.decodeUnion(r, ct, u)
	}
	s, _ := ct.Node.(*ast.Struct)
	members := ip.desc.FlattenMembers(ct)
	out := make(Struct, len(members))

	switch s.Extensibility {
	case ast.Appendable:
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		bodyEnd := r.Pos() + int(n)
		if bodyEnd > len(r.buf) {
			return nil, ErrBadData
		}
		for _, m := range members {
			if r.Pos() >= bodyEnd {
				break // member dropped by an evolved writer type
			}
			v, err := ip.decodeMember(r, m)
			if err != nil {
				return nil, err
			}
			if v != nil {
				out[m.Name] = v
			}
		}
		r.pos = bodyEnd // skip trailing bytes the local type doesn't understand
	case ast.Mutable:
		for {
			header, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			if header == emheaderSentinel {
				break
			}
			mustUnderstand := header&(1<<31) != 0
			memberID := header &^ (1 << 31)
			length, err := r.ReadU32()
			if err != nil {
				return nil, err
			}
			body, err := r.ReadBytes(int(length))
			if err != nil {
				return nil, err
			}
			m, found := findMember(members, memberID)
			if !found {
				if mustUnderstand {
					return nil, ErrBadData
				}
				continue
			}
			sub := NewReader(r.enc, body)
			v, err := ip.decodeValue(sub, m.Resolved)
			if err != nil {
				return nil, err
			}
			out[m.Name] = v
		}
	default: // Final
		for _, m := range members {
			v, err := ip.decodeMember(r, m)
			if err != nil {
				return nil, err
			}
			if v != nil {
				out[m.Name] = v
			}
		}
	}
	return out, nil
}

func findMember(members []descriptor.MemberInfo, id uint32) (descriptor.MemberInfo, bool) {
	for _, m := range members {
		if m.ID == id {
			return m, true
		}
	}
	return descriptor.MemberInfo{}, false
}

func (ip *Interpreter) decodeMember(r *Reader, m descriptor.MemberInfo) (any, error) {
	if m.Flags.Has(descriptor.FlagOptional) {
		present, err := r.ReadBool()
		if err != nil {
			return nil, err
		}
		if !present {
			return nil, nil
		}
	}
	return ip.decodeValue(r, m.Resolved)
}

func (ip *Interpreter) decodeUnion(r *Reader, ct *descriptor.ConstructedType, u *ast.Union) (Struct, error) {
	disc, err := ip.decodeValue(r, ast.Unalias(u.Discriminant))
	if err != nil {
		return nil, err
	}
	label := toInt64(disc)
	var selected *ast.UnionCase
	for _, c := range u.Cases {
		if c.IsDefault {
			continue
		}
		for _, l := range c.Labels {
			if l == label {
				selected = c
				break
			}
		}
		if selected != nil {
			break
		}
	}
	if selected == nil {
		for _, c := range u.Cases {
			if c.IsDefault {
				selected = c
				break
			}
		}
	}
	uv := UnionValue{Discriminant: disc, Case: selected}
	if selected != nil && selected.Member != nil {
		v, err := ip.decodeValue(r, ast.Unalias(selected.Member.Type))
		if err != nil {
			return nil, err
		}
		uv.Value = v
	}
	return Struct{"$union": uv}, nil
}

func (ip *Interpreter) decodeValue(r *Reader, node ast.Node) (any, error) {
	switch t := node.(type) {
	case *ast.BaseScalarType:
		return decodeScalar(r, t.Scalar)
	case *ast.StringType:
		if t.Wide {
			return r.ReadWString()
		}
		return r.ReadString()
	case *ast.Enum:
		v, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if uint64(v) > t.MaxValue() {
			return nil, ErrBadData
		}
		return uint64(v), nil
	case *ast.Bitmask:
		return r.ReadU64()
	case *ast.Sequence:
		n, err := r.ReadU32()
		if err != nil {
			return nil, err
		}
		if t.Bound != 0 && n > t.Bound {
			return nil, ErrBadData
		}
		elem := ast.Unalias(t.Element)
		out := make([]any, n)
		for i := range out {
			out[i], err = ip.decodeValue(r, elem)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case *ast.Array:
		elem := ast.Unalias(t.Element)
		n := int(t.TotalLength())
		out := make([]any, n)
		var err error
		for i := 0; i < n; i++ {
			out[i], err = ip.decodeValue(r, elem)
			if err != nil {
				return nil, err
			}
		}
		return out, nil
	case *ast.Struct:
		subCT := ip.desc.ConstructedTypes[ip.findTypeID(t)]
		return ip.decodeAggregate(r, subCT)
	case *ast.Union:
		subCT := ip.desc.ConstructedTypes[ip.findTypeID(t)]
		return ip.decodeAggregate(r, subCT)
	default:
		return nil, ErrBadData
	}
}

func decodeScalar(r *Reader, scalar ast.BaseScalar) (any, error) {
	switch scalar {
	case ast.ScalarBoolean:
		return r.ReadBool()
	case ast.ScalarOctet, ast.ScalarUint8:
		return r.ReadU8()
	case ast.ScalarChar:
		v, err := r.ReadU8()
		return v, err
	case ast.ScalarInt8:
		v, err := r.ReadU8()
		return int8(v), err
	case ast.ScalarWChar, ast.ScalarUint16:
		return r.ReadU16()
	case ast.ScalarInt16:
		v, err := r.ReadU16()
		return int16(v), err
	case ast.ScalarUint32:
		return r.ReadU32()
	case ast.ScalarInt32:
		v, err := r.ReadU32()
		return int32(v), err
	case ast.ScalarUint64:
		return r.ReadU64()
	case ast.ScalarInt64:
		v, err := r.ReadU64()
		return int64(v), err
	case ast.ScalarFloat32:
		v, err := r.ReadU32()
		return math.Float32frombits(v), err
	case ast.ScalarFloat64:
		v, err := r.ReadU64()
		return math.Float64frombits(v), err
	default:
		return nil, ErrBadData
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case uint64:
		return int64(n)
	case int64:
		return n
	case uint32:
		return int64(n)
	case int32:
		return int64(n)
	case uint16:
		return int64(n)
	case int16:
		return int64(n)
	case uint8:
		return int64(n)
	case int8:
		return int64(n)
	case bool:
		if n {
			return 1
		}
		return 0
	default:
		return 0
	}
}
