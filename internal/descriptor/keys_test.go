package descriptor

import (
	"testing"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
)

func TestPlanKeysFixedSizeScalarKey(t *testing.T) {
	g := &ast.IDGen{}
	s := simpleStruct(g)

	e := NewEmitter(Options{})
	desc, err := e.Compile(s)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(desc.Keys) != 1 {
		t.Fatalf("expected 1 key, got %d", len(desc.Keys))
	}
	if desc.Keys[0].Name != "x" {
		t.Errorf("expected key name 'x', got %q", desc.Keys[0].Name)
	}
	if desc.KeySizeXCDR1 != 4 || desc.KeySizeXCDR2 != 4 {
		t.Errorf("expected key size 4/4, got %d/%d", desc.KeySizeXCDR1, desc.KeySizeXCDR2)
	}
}

func TestPlanKeysNestedStructImplicitKey(t *testing.T) {
	g := &ast.IDGen{}
	// Nested struct with no explicit keys of its own: per the
	// parent_is_key rule, when the enclosing member is itself a key, every
	// member of the nested (unkeyed) aggregate becomes an implicit key.
	nested := ast.NewStruct(g, "Inner", ast.Final)
	nested.Members = []*ast.Member{
		{ID: 0, Name: "a", Type: ast.NewBaseScalar(g, ast.ScalarInt16)},
		{ID: 1, Name: "b", Type: ast.NewBaseScalar(g, ast.ScalarInt16)},
	}
	outer := ast.NewStruct(g, "Outer", ast.Final)
	outer.Members = []*ast.Member{
		{ID: 0, Name: "inner", Type: nested, Flags: ast.MemberFlags{Key: true}},
	}

	e := NewEmitter(Options{})
	desc, err := e.Compile(outer)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if len(desc.Keys) != 2 {
		t.Fatalf("expected 2 implicit keys from the nested struct, got %d", len(desc.Keys))
	}
	names := map[string]bool{}
	for _, k := range desc.Keys {
		names[k.Name] = true
	}
	if !names["inner.a"] || !names["inner.b"] {
		t.Errorf("expected dotted key names inner.a/inner.b, got %v", desc.Keys)
	}
}

func TestPlanKeysRejectsKeyThroughSequence(t *testing.T) {
	g := &ast.IDGen{}
	seq := ast.NewSequence(g, "", ast.NewBaseScalar(g, ast.ScalarInt32), 0)
	s := ast.NewStruct(g, "S", ast.Final)
	s.Members = []*ast.Member{
		{ID: 0, Name: "items", Type: seq, Flags: ast.MemberFlags{Key: true}},
	}
	e := NewEmitter(Options{})
	if _, err := e.Compile(s); err != ErrKeyThroughSeq {
		t.Fatalf("expected ErrKeyThroughSeq, got %v", err)
	}
}

func TestPlanKeysUnboundedKeySizeSaturates(t *testing.T) {
	g := &ast.IDGen{}
	s := ast.NewStruct(g, "S", ast.Final)
	s.Members = []*ast.Member{
		{ID: 0, Name: "name", Type: ast.NewString(g, 0, false), Flags: ast.MemberFlags{Key: true}},
	}
	e := NewEmitter(Options{})
	desc, err := e.Compile(s)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if desc.KeySizeXCDR1 != keySizeUnbounded {
		t.Errorf("expected saturated key size %d, got %d", keySizeUnbounded, desc.KeySizeXCDR1)
	}
	if desc.Flags&FlagFixedKey != 0 {
		t.Errorf("expected FlagFixedKey unset for an unbounded string key")
	}
}

func TestResolveOffsetsRelocationRange(t *testing.T) {
	// A relocation target so far away from its instruction that the
	// int16-bounded offset cannot represent it must fail compilation.
	g := &ast.IDGen{}
	padding := ast.NewStruct(g, "Padding", ast.Final)
	for i := 0; i < 1<<15; i++ {
		padding.Members = append(padding.Members, &ast.Member{
			ID: uint32(i), Name: "p", Type: ast.NewBaseScalar(g, ast.ScalarInt32),
		})
	}
	nested := ast.NewStruct(g, "Nested", ast.Final)
	nested.Members = []*ast.Member{{ID: 0, Name: "v", Type: ast.NewBaseScalar(g, ast.ScalarInt32)}}

	root := ast.NewStruct(g, "Root", ast.Final)
	root.Members = []*ast.Member{
		{ID: 0, Name: "padding", Type: padding},
		{ID: 1, Name: "nested", Type: nested},
	}

	e := NewEmitter(Options{})
	_, err := e.Compile(root)
	if err == nil {
		t.Fatal("expected an error (either ErrOutOfRange or ErrRelocationRange) for a huge intervening type")
	}
}
