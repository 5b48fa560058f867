package mangler

import (
	"testing"

	"github.com/eclipse-cyclonedds/cyclonedds-sub015/internal/ast"
)

func TestFlatAndScopedName(t *testing.T) {
	g := &ast.IDGen{}
	s := ast.NewStruct(g, "Leaf", ast.Final)

	m := New()
	m.Enter(s, Scope{"Outer", "Inner"})

	if got, want := m.FlatName(s), "Outer_Inner_Leaf"; got != want {
		t.Errorf("FlatName() = %q, want %q", got, want)
	}
	if got, want := m.ScopedName(s), "Outer::Inner::Leaf"; got != want {
		t.Errorf("ScopedName() = %q, want %q", got, want)
	}
}

func TestFlatNameMemoizes(t *testing.T) {
	g := &ast.IDGen{}
	s := ast.NewStruct(g, "T", ast.Final)
	m := New()
	m.Enter(s, Scope{"M"})

	first := m.FlatName(s)
	m.Enter(s, Scope{"Different"}) // should not affect the memoized result
	second := m.FlatName(s)
	if first != second {
		t.Errorf("FlatName() not memoized: %q != %q", first, second)
	}
}

func TestSequenceName(t *testing.T) {
	g := &ast.IDGen{}
	elem := ast.NewBaseScalar(g, ast.ScalarInt32)
	seq := ast.NewSequence(g, "Seq", elem, 0)
	m := New()
	m.Enter(seq, nil)
	if got, want := m.FlatName(seq), "dds_sequence_int32"; got != want {
		t.Errorf("FlatName(sequence) = %q, want %q", got, want)
	}
}

func TestNestedSequenceName(t *testing.T) {
	g := &ast.IDGen{}
	elem := ast.NewBaseScalar(g, ast.ScalarUint8)
	inner := ast.NewSequence(g, "Inner", elem, 0)
	outer := ast.NewSequence(g, "Outer", inner, 0)
	m := New()
	m.Enter(outer, nil)
	if got, want := m.FlatName(outer), "dds_sequence_sequence_uint8"; got != want {
		t.Errorf("FlatName(nested sequence) = %q, want %q", got, want)
	}
}

func TestArrayName(t *testing.T) {
	g := &ast.IDGen{}
	elem := ast.NewBaseScalar(g, ast.ScalarFloat64)
	arr := ast.NewArray(g, "Arr", elem, []uint32{4})
	m := New()
	m.Enter(arr, nil)
	if got, want := m.FlatName(arr), "dds_array_float64"; got != want {
		t.Errorf("FlatName(array) = %q, want %q", got, want)
	}
}

func TestStringNameBounded(t *testing.T) {
	g := &ast.IDGen{}
	bounded := ast.NewString(g, 32, false)
	unbounded := ast.NewString(g, 0, false)
	wide := ast.NewString(g, 16, true)
	m := New()
	m.Enter(bounded, nil)
	m.Enter(unbounded, nil)
	m.Enter(wide, nil)

	if got, want := m.FlatName(bounded), "dds_string_32"; got != want {
		t.Errorf("FlatName(bounded string) = %q, want %q", got, want)
	}
	if got, want := m.FlatName(unbounded), "dds_string"; got != want {
		t.Errorf("FlatName(unbounded string) = %q, want %q", got, want)
	}
	if got, want := m.FlatName(wide), "dds_wstring_16"; got != want {
		t.Errorf("FlatName(wide string) = %q, want %q", got, want)
	}
}

func TestAliasUnwrapped(t *testing.T) {
	g := &ast.IDGen{}
	scalar := ast.NewBaseScalar(g, ast.ScalarInt16)
	seq := ast.NewSequence(g, "Seq", scalar, 0)
	alias := ast.NewAlias(g, "MySeq", seq)
	m := New()
	m.Enter(alias, nil)
	if got, want := m.FlatName(alias), "dds_sequence_int16"; got != want {
		t.Errorf("FlatName(alias->sequence) = %q, want %q", got, want)
	}
}
