package descriptor

import (
	"testing"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
)

func simpleStruct(g *ast.IDGen) *ast.Struct {
	s := ast.NewStruct(g, "Point", ast.Final)
	s.Members = []*ast.Member{
		{ID: 0, Name: "x", Type: ast.NewBaseScalar(g, ast.ScalarInt32), Flags: ast.MemberFlags{Key: true}},
		{ID: 1, Name: "y", Type: ast.NewBaseScalar(g, ast.ScalarInt32)},
	}
	return s
}

func TestEmitterCompileFinalStruct(t *testing.T) {
	g := &ast.IDGen{}
	s := simpleStruct(g)

	e := NewEmitter(Options{})
	desc, err := e.Compile(s)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(desc.ConstructedTypes) != 1 {
		t.Fatalf("expected 1 constructed type, got %d", len(desc.ConstructedTypes))
	}
	ct := desc.ConstructedTypes[0]
	if !ct.HasKeyMember {
		t.Errorf("expected HasKeyMember = true")
	}
	last := ct.Instructions[len(ct.Instructions)-1]
	if last.Op != OpRTS {
		t.Errorf("expected stream to end with RTS, got %v", last.Op)
	}
	if desc.Flags&FlagFixedSize == 0 {
		t.Errorf("expected FlagFixedSize set for an all-scalar struct")
	}
	if desc.Flags&FlagFixedKey == 0 {
		t.Errorf("expected FlagFixedKey set for an int32 key")
	}
}

func TestEmitterDedupsSharedBase(t *testing.T) {
	g := &ast.IDGen{}
	base := ast.NewStruct(g, "Base", ast.Final)
	base.Members = []*ast.Member{
		{ID: 0, Name: "id", Type: ast.NewBaseScalar(g, ast.ScalarUint32), Flags: ast.MemberFlags{Key: true}},
	}
	child := ast.NewStruct(g, "Child", ast.Final)
	child.Base = base
	child.Members = []*ast.Member{
		{ID: 1, Name: "extra", Type: ast.NewBaseScalar(g, ast.ScalarInt32)},
	}

	e := NewEmitter(Options{})
	desc, err := e.Compile(child)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	// base + child = 2 constructed types, base visited exactly once.
	if len(desc.ConstructedTypes) != 2 {
		t.Fatalf("expected 2 constructed types (base + child), got %d", len(desc.ConstructedTypes))
	}
	childCT := desc.ConstructedTypes[0]
	if childCT.Base == nil {
		t.Fatalf("expected child.Base to be set")
	}
	if !childCT.HasKeyMember {
		t.Errorf("expected child to inherit HasKeyMember from its keyed base")
	}
}

func TestEmitterMutableStructPLM(t *testing.T) {
	g := &ast.IDGen{}
	s := ast.NewStruct(g, "Evolving", ast.Mutable)
	s.Members = []*ast.Member{
		{ID: 0, Name: "a", Type: ast.NewBaseScalar(g, ast.ScalarInt32)},
		{ID: 1, Name: "b", Type: ast.NewBaseScalar(g, ast.ScalarInt32)},
	}

	e := NewEmitter(Options{})
	desc, err := e.Compile(s)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	ct := desc.ConstructedTypes[0]
	if ct.PLOffset < 0 {
		t.Fatalf("expected PLOffset to be set for a MUTABLE struct")
	}
	if ct.Instructions[ct.PLOffset].Op != OpPLC {
		t.Errorf("expected PLC instruction at PLOffset, got %v", ct.Instructions[ct.PLOffset].Op)
	}
	var plmCount int
	for _, in := range ct.Instructions {
		if in.Kind == KindOpcode && in.Op == OpPLM {
			plmCount++
		}
	}
	if plmCount != len(s.Members) {
		t.Errorf("expected %d PLM headers, got %d", len(s.Members), plmCount)
	}
}

func TestEmitterAppendableStructDLC(t *testing.T) {
	g := &ast.IDGen{}
	s := ast.NewStruct(g, "Versioned", ast.Appendable)
	s.Members = []*ast.Member{
		{ID: 0, Name: "a", Type: ast.NewBaseScalar(g, ast.ScalarInt32)},
	}
	e := NewEmitter(Options{})
	desc, err := e.Compile(s)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	ct := desc.ConstructedTypes[0]
	if ct.Instructions[0].Op != OpDLC {
		t.Errorf("expected first instruction to be DLC for APPENDABLE struct, got %v", ct.Instructions[0].Op)
	}
}

func TestEmitterRejectsUnionKeyMember(t *testing.T) {
	g := &ast.IDGen{}
	disc := ast.NewBaseScalar(g, ast.ScalarInt32)
	u := ast.NewUnion(g, "U", ast.Final, disc)
	u.Cases = []*ast.UnionCase{
		{Labels: []int64{0}, Member: &ast.Member{ID: 0, Name: "a", Type: ast.NewBaseScalar(g, ast.ScalarInt32)}},
	}
	s := ast.NewStruct(g, "Holder", ast.Final)
	s.Members = []*ast.Member{
		{ID: 0, Name: "u", Type: u, Flags: ast.MemberFlags{Key: true}},
	}

	e := NewEmitter(Options{})
	if _, err := e.Compile(s); err == nil {
		t.Fatal("expected error compiling a struct with a union key member")
	}
}

func TestEmitterRejectsNonConsecutiveEnum(t *testing.T) {
	g := &ast.IDGen{}
	e := ast.NewEnum(g, "Color", []ast.EnumLiteral{
		{Name: "RED", Value: 0},
		{Name: "BLUE", Value: 2}, // gap: no literal with value 1
	})
	s := ast.NewStruct(g, "Holder", ast.Final)
	s.Members = []*ast.Member{{ID: 0, Name: "c", Type: e}}

	em := NewEmitter(Options{})
	if _, err := em.Compile(s); err == nil {
		t.Fatal("expected an error compiling a struct with a non-consecutive enum member")
	}
}

func TestEmitterAcceptsConsecutiveEnum(t *testing.T) {
	g := &ast.IDGen{}
	e := ast.NewEnum(g, "Color", []ast.EnumLiteral{
		{Name: "RED", Value: 0},
		{Name: "GREEN", Value: 1},
		{Name: "BLUE", Value: 2},
	})
	s := ast.NewStruct(g, "Holder", ast.Final)
	s.Members = []*ast.Member{{ID: 0, Name: "c", Type: e}}

	em := NewEmitter(Options{})
	if _, err := em.Compile(s); err != nil {
		t.Fatalf("Compile() error = %v, want nil for a consecutive enum", err)
	}
}

func TestEmitterInstructionBudget(t *testing.T) {
	g := &ast.IDGen{}
	s := ast.NewStruct(g, "Huge", ast.Final)
	for i := 0; i < MaxInstructions; i++ {
		s.Members = append(s.Members, &ast.Member{
			ID: uint32(i), Name: "m", Type: ast.NewBaseScalar(g, ast.ScalarInt32),
		})
	}
	e := NewEmitter(Options{})
	if _, err := e.Compile(s); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange, got %v", err)
	}
}
