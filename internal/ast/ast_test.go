package ast

import (
	"testing"

	"github.com/hassan/kcc/internal/lexer"
	"github.com/hassan/kcc/internal/symtab"
	"github.com/hassan/kcc/internal/types"
)

var testPos = lexer.Position{Filename: "t.c", Line: 1, Column: 1}

func varNode(name string, t *types.Type) *Node {
	n := &Node{Kind: Var, Var: &symtab.Var{Name: name, Type: t}, Pos: testPos}
	_ = AddType(n)
	return n
}

func TestNewAdd_IntPlusInt(t *testing.T) {
	n, err := NewAdd(NewNum(1, testPos), NewNum(2, testPos), testPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind != Add {
		t.Errorf("Kind = %v, want Add", n.Kind)
	}
	if n.Type.Kind != types.Int {
		t.Errorf("Type = %v, want Int", n.Type)
	}
}

func TestNewAdd_IntPlusPointerScalesAndCanonicalizes(t *testing.T) {
	p := varNode("p", types.NewPointer(types.TypeInt))
	i := varNode("i", types.TypeInt)

	n, err := NewAdd(i, p, testPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.RHS != p {
		t.Errorf("expected pointer operand canonicalized to RHS")
	}
	if n.LHS.Kind != Mul {
		t.Fatalf("expected scaled Mul node on LHS, got %v", n.LHS.Kind)
	}
	if n.LHS.RHS.NumValue != 4 {
		t.Errorf("scale factor = %d, want 4 (sizeof int)", n.LHS.RHS.NumValue)
	}
	if n.Type.Kind != types.Pointer {
		t.Errorf("result type = %v, want Pointer", n.Type)
	}
}

func TestNewAdd_PointerPlusPointerIsFatal(t *testing.T) {
	p1 := varNode("p1", types.NewPointer(types.TypeInt))
	p2 := varNode("p2", types.NewPointer(types.TypeInt))
	if _, err := NewAdd(p1, p2, testPos); err == nil {
		t.Fatal("expected error adding two pointers, got nil")
	}
}

func TestNewSub_PointerMinusPointerDividesByElementSize(t *testing.T) {
	p1 := varNode("p1", types.NewPointer(types.TypeInt))
	p2 := varNode("p2", types.NewPointer(types.TypeInt))

	n, err := NewSub(p1, p2, testPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind != Div {
		t.Fatalf("Kind = %v, want Div", n.Kind)
	}
	if n.LHS.Kind != Sub {
		t.Errorf("expected raw Sub beneath the scaling Div")
	}
	if n.RHS.NumValue != 4 {
		t.Errorf("divisor = %d, want 4", n.RHS.NumValue)
	}
	if n.Type.Kind != types.Int {
		t.Errorf("pointer difference type = %v, want Int", n.Type)
	}
}

func TestNewSub_IncompatiblePointerKindsIsFatal(t *testing.T) {
	p1 := varNode("p1", types.NewPointer(types.TypeInt))
	p2 := varNode("p2", types.NewPointer(types.TypeChar))
	if _, err := NewSub(p1, p2, testPos); err == nil {
		t.Fatal("expected error subtracting incompatible pointer kinds, got nil")
	}
}

func TestNewMul_RejectsNonIntegerOperands(t *testing.T) {
	p := varNode("p", types.NewPointer(types.TypeInt))
	i := varNode("i", types.TypeInt)
	if _, err := NewMul(p, i, testPos); err == nil {
		t.Fatal("expected error multiplying a pointer, got nil")
	}
}

func TestNewAssign_RejectsNonLvalue(t *testing.T) {
	notLvalue := NewNum(1, testPos)
	rhs := NewNum(2, testPos)
	if _, err := NewAssign(notLvalue, rhs, testPos); err == nil {
		t.Fatal("expected error assigning to a non-lvalue, got nil")
	}
}

func TestNewAssign_LvalueForms(t *testing.T) {
	v := varNode("x", types.TypeInt)
	if _, err := NewAssign(v, NewNum(1, testPos), testPos); err != nil {
		t.Errorf("assigning to a Var should succeed: %v", err)
	}

	ptr := varNode("p", types.NewPointer(types.TypeInt))
	deref, err := NewDeref(ptr, testPos)
	if err != nil {
		t.Fatalf("unexpected error building Deref: %v", err)
	}
	if _, err := NewAssign(deref, NewNum(1, testPos), testPos); err != nil {
		t.Errorf("assigning to a Deref should succeed: %v", err)
	}
}

func TestNewSubscript_IsSugarForDerefOfAdd(t *testing.T) {
	arr := varNode("a", types.NewArray(types.TypeInt, 10))
	idx := NewNum(3, testPos)

	n, err := NewSubscript(arr, idx, testPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n.Kind != Deref {
		t.Fatalf("Kind = %v, want Deref", n.Kind)
	}
	if n.LHS.Kind != Add {
		t.Fatalf("expected Deref wrapping an Add, got %v", n.LHS.Kind)
	}
}

func TestAddType_Idempotent(t *testing.T) {
	lhs := varNode("x", types.TypeInt)
	rhs := NewNum(2, testPos)
	n, err := NewAdd(lhs, rhs, testPos)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := n.Type
	if err := AddType(n); err != nil {
		t.Fatalf("unexpected error on second AddType pass: %v", err)
	}
	if n.Type.Kind != first.Kind {
		t.Errorf("AddType is not idempotent: first pass %v, second pass %v", first, n.Type)
	}
}

func TestAddType_DerefOfNonPointerIsFatal(t *testing.T) {
	n := &Node{Kind: Deref, LHS: NewNum(1, testPos), Pos: testPos}
	if err := AddType(n); err == nil {
		t.Fatal("expected error dereferencing a non-pointer, got nil")
	}
}

func TestIsLvalue(t *testing.T) {
	intVar := varNode("x", types.TypeInt)
	if !IsLvalue(intVar) {
		t.Error("Var should be an lvalue")
	}

	num := NewNum(1, testPos)
	if IsLvalue(num) {
		t.Error("Num should not be an lvalue")
	}

	ptrAdd := &Node{Kind: Add, Type: types.NewPointer(types.TypeInt)}
	if !IsLvalue(ptrAdd) {
		t.Error("pointer-typed Add should be an lvalue (scaled pointer arithmetic)")
	}

	intAdd := &Node{Kind: Add, Type: types.TypeInt}
	if IsLvalue(intAdd) {
		t.Error("int-typed Add should not be an lvalue")
	}
}
