// Package ast defines the compiler's abstract syntax tree and the smart
// constructors that build it.
//
// DESIGN CHOICE: Node is a single tagged struct, not an interface with one
// concrete type per node kind. The parser and code generator both need to
// switch on "what kind of node is this" far more than they need per-kind
// polymorphism, and a node's children are themselves Nodes regardless of
// kind — a tagged union avoids a forest of type assertions and lets every
// tree-walking pass (type propagation, codegen) be one exhaustive switch
// over Kind.
package ast

import (
	"github.com/hassan/kcc/internal/lexer"
	"github.com/hassan/kcc/internal/symtab"
	"github.com/hassan/kcc/internal/types"
)

// Kind discriminates the cases of Node.
type Kind int

const (
	// Null is the sentinel "no-op" node: declarations with no
	// initializer lower to Null so they emit no code, yet still satisfy
	// the one-value-per-statement stack discipline (Null pushes a dummy).
	Null Kind = iota

	// Literals
	Num    // integer constant, value in NumValue
	String // string literal, pooled index in StrIndex

	// References
	Var          // a declared variable
	Addr         // &x
	Deref        // *x
	StructMember // x.m or x->m, resolved offset in Val

	// Arithmetic
	Add
	Sub
	Mul
	Div
	Mod

	// Bitwise
	BitAnd
	BitOr
	BitXor
	BitNot
	LShift
	RShift

	// Relational
	Eq
	Ne
	Lt
	Le

	// Logical
	LogicalAnd
	LogicalNot
	LogicalOr

	// Control flow
	If
	Ternary
	While
	For
	Break
	Continue
	Return

	// Composition
	Block    // { ... }, Children in source order
	StmtExpr // GNU statement-expression ({ ...; expr; }), yields Children's last value
	Suger    // desugared comma-separated declaration list

	// Call
	Call

	// Assignment
	Assign

	// Cast
	Cast
)

// Node is one node of the abstract syntax tree.
//
// Only the fields relevant to Kind are meaningful; see the per-kind
// comments on each field.
type Node struct {
	Kind Kind
	Type *types.Type
	Pos  lexer.Position

	// Num
	NumValue int64

	// String
	StrIndex int

	// Var, and the variable an lvalue ultimately resolves to
	Var *symtab.Var

	// Unary / binary operand slots. Most kinds use LHS alone or
	// LHS+RHS; see each smart constructor for which.
	LHS *Node
	RHS *Node

	// StructMember: resolved byte offset of the member from the base
	// the access computes an address off of.
	Val int

	// If / Ternary / While / For
	Cond *Node
	Then *Node
	Else *Node
	Init *Node // For: init-clause
	Inc  *Node // For: increment-clause

	// Block / StmtExpr / Suger
	Children []*Node

	// Call
	FnName string
	Args   []*Node
}

// IsLvalue reports whether node denotes an addressable memory location:
// a variable reference, a dereference, a struct-member access, or
// pointer arithmetic (Add/Sub between a pointer and an integer, which
// codegen resolves to an address rather than a loaded value).
func IsLvalue(node *Node) bool {
	switch node.Kind {
	case Var, Deref, StructMember:
		return true
	case Add, Sub:
		return node.Type != nil && (node.Type.Kind == types.Pointer || node.Type.Kind == types.Array)
	default:
		return false
	}
}
