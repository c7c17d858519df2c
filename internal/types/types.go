// Package types implements the compiler's type system: primitive kinds,
// pointer-to, array-of, and struct-of types, with size computation and
// structural equality.
//
// DESIGN CHOICE: Type is a single struct with a Kind tag rather than an
// interface with one implementation per kind. The parser and code
// generator both need to pattern-match exhaustively on "what kind of type
// is this" far more often than they need per-kind behavior, so a tagged
// union (switch on Kind) reads more directly than a forest of type
// assertions against a Type interface would. The struct is shared by
// pointer, not copied, since it's immutable after construction.
package types

import (
	"fmt"
	"strings"
)

// Kind discriminates the cases of Type.
type Kind int

const (
	Void Kind = iota
	Char
	Int
	Pointer
	Array
	Struct
)

func (k Kind) String() string {
	switch k {
	case Void:
		return "void"
	case Char:
		return "char"
	case Int:
		return "int"
	case Pointer:
		return "pointer"
	case Array:
		return "array"
	case Struct:
		return "struct"
	default:
		return "unknown"
	}
}

// rank orders the integer kinds for canonicalization of binary-operator
// operand order: Char < Int. Used by the parser's smart constructors to
// decide which operand goes on which side before emitting a binary node.
func (k Kind) rank() int {
	switch k {
	case Char:
		return 0
	case Int:
		return 1
	default:
		return -1
	}
}

// Member is a single field of a struct type: its name, its type, and its
// byte offset from the struct's base address. Offsets accumulate as the
// running sum of preceding members' sizes, in declaration order — no
// padding, matching the original compiler's layout exactly (see
// spec/DESIGN discussion of alignment).
type Member struct {
	Name   string
	Type   *Type
	Offset int
}

// Type is a node in the type system's discriminated union.
//
// Only the fields relevant to Kind are meaningful:
//   - Pointer: To
//   - Array:   To (element type), Len
//   - Struct:  Name, Members, Size (NewStruct sets Size to the sum of
//     the member sizes)
//   - Void/Char/Int: none beyond Size
type Type struct {
	Kind    Kind
	To      *Type    // Pointer.To, Array element type
	Len     int      // Array length
	Name    string   // Struct tag name
	Members []Member // Struct fields, in declaration order
	Size    int       // bytes
}

// Predefined scalar instances. Shared by reference — safe because Type is
// immutable after construction, and it keeps the parser from allocating a
// fresh *Type every time it sees "int".
var (
	TypeVoid = &Type{Kind: Void, Size: 0}
	TypeChar = &Type{Kind: Char, Size: 1}
	TypeInt  = &Type{Kind: Int, Size: 4}
)

// NewPointer builds a pointer-to-to type. Pointers are always 8 bytes:
// this is a 64-bit-only compiler.
func NewPointer(to *Type) *Type {
	return &Type{Kind: Pointer, To: to, Size: 8}
}

// NewArray builds a len-element array of elements of type of.
// size = elem.Size * len, matching spec.md's array sizing rule exactly.
func NewArray(of *Type, length int) *Type {
	return &Type{Kind: Array, To: of, Len: length, Size: of.Size * length}
}

// NewStruct builds a named struct type from members already carrying
// their accumulated offsets. Size is the sum of member sizes in
// declaration order — no padding is inserted, matching the original
// compiler's layout.
func NewStruct(name string, members []Member) *Type {
	size := 0
	for _, m := range members {
		size += m.Type.Size
	}
	return &Type{Kind: Struct, Name: name, Members: members, Size: size}
}

// IsInteger reports whether kind is one of the scalar integer kinds
// (Char, Int). Pointers and arrays are addresses, not integers, even
// though they fit in a register the same way.
func IsInteger(k Kind) bool {
	return k == Char || k == Int
}

// Rank exposes Kind.rank for the parser's canonicalization logic.
func Rank(k Kind) int {
	return k.rank()
}

// ArrayBaseSize walks a chain of Array/Pointer types down to the
// innermost scalar and returns its size. Used by the code generator to
// decide which data directive to emit for a global initializer element,
// and which register width to use for an array-typed operand.
func ArrayBaseSize(t *Type) int {
	for t.To != nil {
		t = t.To
	}
	return t.Size
}

// CanCast reports whether a value of type from may be cast to (or
// assigned into) a value of kind to. Every integer and pointer kind may
// cast to any integer or pointer kind, and a struct may be assigned into
// a struct; void may not appear as the source
// of an assignment or cast, and may not be read back out of a cast
// target — it's only valid as a function return type annotation.
func CanCast(from *Type, to Kind) bool {
	if from.Kind == Void || to == Void {
		return false
	}
	switch from.Kind {
	case Char, Int, Pointer, Array:
		return to == Char || to == Int || to == Pointer
	case Struct:
		return to == Struct
	default:
		return false
	}
}

// LookupMember finds a struct field by name, or nil if t is not a
// struct or has no such field.
func (t *Type) LookupMember(name string) *Member {
	if t.Kind != Struct {
		return nil
	}
	for i := range t.Members {
		if t.Members[i].Name == name {
			return &t.Members[i]
		}
	}
	return nil
}

// String renders a human-readable type name, used in diagnostics.
func (t *Type) String() string {
	switch t.Kind {
	case Void:
		return "void"
	case Char:
		return "char"
	case Int:
		return "int"
	case Pointer:
		return t.To.String() + "*"
	case Array:
		return fmt.Sprintf("%s[%d]", t.To.String(), t.Len)
	case Struct:
		if t.Name != "" {
			return "struct " + t.Name
		}
		names := make([]string, len(t.Members))
		for i, m := range t.Members {
			names[i] = m.Name
		}
		return "struct {" + strings.Join(names, "; ") + "}"
	default:
		return "<invalid>"
	}
}

// Equal reports structural equality: two pointer/array types are equal if
// their element types and (for arrays) lengths match; two struct types
// are equal only if they share a tag name (nominal typing, matching the
// original compiler's per-function struct registry keyed by name).
func (t *Type) Equal(other *Type) bool {
	if t == other {
		return true
	}
	if other == nil || t.Kind != other.Kind {
		return false
	}
	switch t.Kind {
	case Void, Char, Int:
		return true
	case Pointer:
		return t.To.Equal(other.To)
	case Array:
		return t.Len == other.Len && t.To.Equal(other.To)
	case Struct:
		return t.Name != "" && t.Name == other.Name
	default:
		return false
	}
}
