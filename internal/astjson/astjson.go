// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package astjson builds an internal/ast graph from a JSON description.
// Lexing/parsing IDL source text is out of scope (spec.md Non-goals); tools
// that need a concrete pstate from the command line (cmd/idlc) or a corpus
// file (internal/descriptor's fuzz harness) take this JSON shape instead,
// since internal/ast's node types carry unexported identity fields gob
// cannot round-trip.
package astjson

import (
	"encoding/json"
	"fmt"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
)

// Node is the JSON-level sum type. Exactly one of the pointer fields
// relevant to Kind is populated; Kind selects which.
type Node struct {
	Kind  string `json:"kind"`
	Name  string `json:"name,omitempty"`
	Scalar string `json:"scalar,omitempty"` // base-scalar kind name

	Extensibility string   `json:"extensibility,omitempty"` // struct/union
	Base          *Node    `json:"base,omitempty"`
	Members       []Member `json:"members,omitempty"`

	Discriminant *Node        `json:"discriminant,omitempty"`
	Cases        []UnionCase  `json:"cases,omitempty"`

	Literals []Literal `json:"literals,omitempty"` // enum
	Bits     []Bit     `json:"bits,omitempty"`     // bitmask

	Element *Node  `json:"element,omitempty"` // sequence/array
	Bound   uint32 `json:"bound,omitempty"`
	Dims    []uint32 `json:"dims,omitempty"`
	Wide    bool   `json:"wide,omitempty"` // string/wstring

	Aliased *Node `json:"aliased,omitempty"` // alias
}

type Member struct {
	ID     uint32 `json:"id"`
	Name   string `json:"name"`
	Type   Node   `json:"type"`
	Key    bool   `json:"key,omitempty"`
	Optional bool `json:"optional,omitempty"`
	MustUnderstand bool `json:"must_understand,omitempty"`
	External bool `json:"external,omitempty"`

	// Ann carries @hashid/@unit/@min/@max (and any other X-Types
	// annotation) through to internal/typemeta's Complete-graph builder.
	Ann map[string]string `json:"ann,omitempty"`
}

type UnionCase struct {
	Labels    []int64 `json:"labels,omitempty"`
	IsDefault bool    `json:"is_default,omitempty"`
	Member    Member  `json:"member"`
}

type Literal struct {
	Name  string `json:"name"`
	Value uint64 `json:"value"`
}

type Bit struct {
	Name     string `json:"name"`
	Position uint8  `json:"position"`
}

var scalarByName = map[string]ast.BaseScalar{
	"boolean": ast.ScalarBoolean, "octet": ast.ScalarOctet, "char": ast.ScalarChar,
	"wchar": ast.ScalarWChar, "int8": ast.ScalarInt8, "uint8": ast.ScalarUint8,
	"int16": ast.ScalarInt16, "uint16": ast.ScalarUint16, "int32": ast.ScalarInt32,
	"uint32": ast.ScalarUint32, "int64": ast.ScalarInt64, "uint64": ast.ScalarUint64,
	"float32": ast.ScalarFloat32, "float64": ast.ScalarFloat64,
}

var extByName = map[string]ast.Extensibility{
	"final": ast.Final, "appendable": ast.Appendable, "mutable": ast.Mutable,
}

// Decode parses a JSON pstate description into a root ast.Node.
func Decode(data []byte) (ast.Node, error) {
	var n Node
	if err := json.Unmarshal(data, &n); err != nil {
		return nil, err
	}
	g := &ast.IDGen{}
	return build(g, &n)
}

func build(g *ast.IDGen, n *Node) (ast.Node, error) {
	switch n.Kind {
	case "scalar":
		s, ok := scalarByName[n.Scalar]
		if !ok {
			return nil, fmt.Errorf("astjson: unknown scalar %q", n.Scalar)
		}
		return ast.NewBaseScalar(g, s), nil
	case "string":
		return ast.NewString(g, n.Bound, n.Wide), nil
	case "struct":
		ext := extByName[n.Extensibility]
		s := ast.NewStruct(g, n.Name, ext)
		if n.Base != nil {
			baseNode, err := build(g, n.Base)
			if err != nil {
				return nil, err
			}
			base, ok := baseNode.(*ast.Struct)
			if !ok {
				return nil, fmt.Errorf("astjson: struct %q base is not a struct", n.Name)
			}
			s.Base = base
		}
		for _, jm := range n.Members {
			m, err := buildMember(g, jm)
			if err != nil {
				return nil, err
			}
			s.Members = append(s.Members, m)
		}
		return s, nil
	case "union":
		ext := extByName[n.Extensibility]
		if n.Discriminant == nil {
			return nil, fmt.Errorf("astjson: union %q missing discriminant", n.Name)
		}
		disc, err := build(g, n.Discriminant)
		if err != nil {
			return nil, err
		}
		u := ast.NewUnion(g, n.Name, ext, disc)
		for _, jc := range n.Cases {
			m, err := buildMember(g, jc.Member)
			if err != nil {
				return nil, err
			}
			u.Cases = append(u.Cases, &ast.UnionCase{Labels: jc.Labels, IsDefault: jc.IsDefault, Member: m})
		}
		return u, nil
	case "enum":
		var lits []ast.EnumLiteral
		for _, l := range n.Literals {
			lits = append(lits, ast.EnumLiteral{Name: l.Name, Value: l.Value})
		}
		return ast.NewEnum(g, n.Name, lits), nil
	case "bitmask":
		var bits []ast.BitmaskFlag
		for _, b := range n.Bits {
			bits = append(bits, ast.BitmaskFlag{Name: b.Name, Position: b.Position})
		}
		return ast.NewBitmask(g, n.Name, bits), nil
	case "sequence":
		elem, err := build(g, n.Element)
		if err != nil {
			return nil, err
		}
		return ast.NewSequence(g, n.Name, elem, n.Bound), nil
	case "array":
		elem, err := build(g, n.Element)
		if err != nil {
			return nil, err
		}
		return ast.NewArray(g, n.Name, elem, n.Dims), nil
	case "alias":
		aliased, err := build(g, n.Aliased)
		if err != nil {
			return nil, err
		}
		return ast.NewAlias(g, n.Name, aliased), nil
	default:
		return nil, fmt.Errorf("astjson: unknown kind %q", n.Kind)
	}
}

func buildMember(g *ast.IDGen, jm Member) (*ast.Member, error) {
	t, err := build(g, &jm.Type)
	if err != nil {
		return nil, err
	}
	return &ast.Member{
		ID:   jm.ID,
		Name: jm.Name,
		Type: t,
		Flags: ast.MemberFlags{
			Key: jm.Key, Optional: jm.Optional, MustUnderstand: jm.MustUnderstand, External: jm.External,
		},
		Ann: jm.Ann,
	}, nil
}
