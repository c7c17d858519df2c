package ast

import (
	"fmt"

	"github.com/hassan/kcc/internal/lexer"
	"github.com/hassan/kcc/internal/types"
)

// NewNum builds an integer literal node.
func NewNum(value int64, pos lexer.Position) *Node {
	n := &Node{Kind: Num, NumValue: value, Pos: pos}
	_ = AddType(n)
	return n
}

// NewBinop builds a plain binary node of the given kind with no operand
// canonicalization — used for the comparison, logical, and bitwise
// operators, which don't scale or reorder their operands the way +/-/*
// do.
func NewBinop(kind Kind, lhs, rhs *Node, pos lexer.Position) (*Node, error) {
	n := &Node{Kind: kind, LHS: lhs, RHS: rhs, Pos: pos}
	if err := AddType(n); err != nil {
		return nil, err
	}
	return n, nil
}

// NewAdd builds an addition node, applying the pointer-arithmetic
// canonicalization rule: Int+Int is a plain Add; Int+Pointer, Int+Array
// and their mirror images are canonicalized so the pointer/array operand
// is on the right and the integer side is scaled by the pointee's size. Any other
// combination (pointer+pointer, etc.) is fatal.
func NewAdd(lhs, rhs *Node, pos lexer.Position) (*Node, error) {
	lp, rp := isPointerish(lhs.Type), isPointerish(rhs.Type)

	switch {
	case !lp && !rp:
		return NewBinop(Add, lhs, rhs, pos)

	case !lp && rp:
		scaled, err := scaleByPointee(lhs, rhs.Type, pos)
		if err != nil {
			return nil, err
		}
		return NewBinop(Add, scaled, rhs, pos)

	case lp && !rp:
		scaled, err := scaleByPointee(rhs, lhs.Type, pos)
		if err != nil {
			return nil, err
		}
		return NewBinop(Add, scaled, lhs, pos)

	default:
		return nil, fmt.Errorf("%s: invalid operands to +: %s and %s", pos, lhs.Type, rhs.Type)
	}
}

// NewSub builds a subtraction node. Int-Int is plain; Pointer-Int scales
// the integer side; Pointer-Pointer of the same pointee type yields the
// element count between them (an Int-typed Sub of the raw byte
// difference, wrapped in a Div by the pointee's size). Int-Pointer and
// mismatched pointer kinds are fatal.
func NewSub(lhs, rhs *Node, pos lexer.Position) (*Node, error) {
	lp, rp := isPointerish(lhs.Type), isPointerish(rhs.Type)

	switch {
	case !lp && !rp:
		return NewBinop(Sub, lhs, rhs, pos)

	case lp && !rp:
		scaled, err := scaleByPointee(rhs, lhs.Type, pos)
		if err != nil {
			return nil, err
		}
		return NewBinop(Sub, lhs, scaled, pos)

	case lp && rp:
		if !lhs.Type.To.Equal(rhs.Type.To) {
			return nil, fmt.Errorf("%s: pointer difference between incompatible types %s and %s",
				pos, lhs.Type, rhs.Type)
		}
		n, err := NewBinop(Sub, lhs, rhs, pos)
		if err != nil {
			return nil, err
		}
		size := lhs.Type.To.Size
		divisor := NewNum(int64(size), pos)
		return NewBinop(Div, n, divisor, pos)

	default:
		return nil, fmt.Errorf("%s: invalid operands to -: %s and %s", pos, lhs.Type, rhs.Type)
	}
}

// NewMul, NewDiv, NewMod accept integer operands only, and canonicalize
// operand order by Kind rank (Char < Int) the same way the original
// compiler's new_mul/new_div/new_mod do — purely cosmetic for commutative
// multiplication, but new_div/new_mod still require both sides be
// integers regardless of order.
func NewMul(lhs, rhs *Node, pos lexer.Position) (*Node, error) {
	if err := requireInteger(lhs, rhs, "*", pos); err != nil {
		return nil, err
	}
	lhs, rhs = canonicalizeByRank(lhs, rhs)
	return NewBinop(Mul, lhs, rhs, pos)
}

func NewDiv(lhs, rhs *Node, pos lexer.Position) (*Node, error) {
	if err := requireInteger(lhs, rhs, "/", pos); err != nil {
		return nil, err
	}
	lhs, rhs = canonicalizeByRank(lhs, rhs)
	return NewBinop(Div, lhs, rhs, pos)
}

func NewMod(lhs, rhs *Node, pos lexer.Position) (*Node, error) {
	if err := requireInteger(lhs, rhs, "%", pos); err != nil {
		return nil, err
	}
	lhs, rhs = canonicalizeByRank(lhs, rhs)
	return NewBinop(Mod, lhs, rhs, pos)
}

// NewAssign builds an assignment node, requiring lhs be a recognized
// lvalue form and rhs be castable to lhs's type.
func NewAssign(lhs, rhs *Node, pos lexer.Position) (*Node, error) {
	if !IsLvalue(lhs) {
		return nil, fmt.Errorf("%s: left-hand side of assignment is not an lvalue", pos)
	}
	return NewBinop(Assign, lhs, rhs, pos)
}

// NewAddr and NewDeref build address-of and dereference nodes.
func NewAddr(operand *Node, pos lexer.Position) (*Node, error) {
	n := &Node{Kind: Addr, LHS: operand, Pos: pos}
	if err := AddType(n); err != nil {
		return nil, err
	}
	return n, nil
}

func NewDeref(operand *Node, pos lexer.Position) (*Node, error) {
	n := &Node{Kind: Deref, LHS: operand, Pos: pos}
	if err := AddType(n); err != nil {
		return nil, err
	}
	return n, nil
}

// NewSubscript builds a[i] as sugar for *(a + i), matching the original
// compiler's postfix handling of "[" expr "]".
func NewSubscript(array, index *Node, pos lexer.Position) (*Node, error) {
	sum, err := NewAdd(array, index, pos)
	if err != nil {
		return nil, err
	}
	return NewDeref(sum, pos)
}

// NewCast builds a cast node with an explicit target type.
func NewCast(operand *Node, target *types.Type, pos lexer.Position) (*Node, error) {
	if !types.CanCast(operand.Type, target.Kind) {
		return nil, fmt.Errorf("%s: cannot cast %s to %s", pos, operand.Type, target)
	}
	n := &Node{Kind: Cast, LHS: operand, Type: target, Pos: pos}
	return n, nil
}

// isPointerish reports whether t decays to an address (pointer or
// array) for the purposes of the +/- scaling rule.
func isPointerish(t *types.Type) bool {
	return t.Kind == types.Pointer || t.Kind == types.Array
}

// scaleByPointee builds `intNode * sizeof(pointee)`, the scalar
// multiplication pointer arithmetic injects on the integer side of a
// pointer +/- int expression. The stride is the immediate pointee's size,
// not the innermost scalar's — `int a[2][3]; a+1` must advance by the
// 12-byte row (types.To.Size), not the 4-byte int at the bottom of the
// chain.
func scaleByPointee(intNode *Node, pointerType *types.Type, pos lexer.Position) (*Node, error) {
	size := pointerType.To.Size
	scale := NewNum(int64(size), pos)
	return NewBinop(Mul, intNode, scale, pos)
}

func requireInteger(lhs, rhs *Node, op string, pos lexer.Position) error {
	if !types.IsInteger(lhs.Type.Kind) || !types.IsInteger(rhs.Type.Kind) {
		return fmt.Errorf("%s: operands to %s must be integers, got %s and %s", pos, op, lhs.Type, rhs.Type)
	}
	return nil
}

func canonicalizeByRank(lhs, rhs *Node) (*Node, *Node) {
	if types.Rank(lhs.Type.Kind) > types.Rank(rhs.Type.Kind) {
		return rhs, lhs
	}
	return lhs, rhs
}
