package ast

import (
	"fmt"

	"github.com/hassan/kcc/internal/types"
)

// AddType decorates node and, recursively, everything reachable from it,
// with a concrete *types.Type, by the kind-indexed rule table. It is
// idempotent: running it twice on the same already-typed tree recomputes
// and re-assigns the same type to every node, rather than reaching back
// into already-built operands to mutate them in place. The smart
// constructors in this package rely on that idempotence: they call
// AddType on a freshly built node whose children are already fully
// typed, so the recursive walk below only ever re-derives work it has
// already done.
func AddType(node *Node) error {
	if node == nil {
		return nil
	}

	for _, child := range operands(node) {
		if child != nil {
			if err := AddType(child); err != nil {
				return err
			}
		}
	}
	for _, child := range node.Children {
		if err := AddType(child); err != nil {
			return err
		}
	}
	if node.Init != nil {
		if err := AddType(node.Init); err != nil {
			return err
		}
	}
	if node.Inc != nil {
		if err := AddType(node.Inc); err != nil {
			return err
		}
	}
	for _, arg := range node.Args {
		if err := AddType(arg); err != nil {
			return err
		}
	}

	switch node.Kind {
	case Num:
		node.Type = types.TypeInt

	case String:
		node.Type = types.NewPointer(types.TypeChar)

	case Var:
		if node.Var == nil {
			return fmt.Errorf("%s: internal error: Var node missing symbol", node.Pos)
		}
		node.Type = node.Var.Type

	case Addr:
		node.Type = types.NewPointer(node.LHS.Type)

	case Deref:
		t := node.LHS.Type
		if t.Kind != types.Pointer && t.Kind != types.Array {
			return fmt.Errorf("%s: cannot dereference non-pointer type %s", node.Pos, t)
		}
		node.Type = t.To

	case Add, Sub, Mul, Div, Mod:
		node.Type = widerOperand(node.LHS.Type, node.RHS.Type)
		if node.Kind == Sub && isPointerish(node.LHS.Type) && isPointerish(node.RHS.Type) {
			// Pointer difference: a byte count, not an address.
			node.Type = types.TypeInt
		}

	case BitAnd, BitOr, BitXor, LShift, RShift:
		node.Type = widerOperand(node.LHS.Type, node.RHS.Type)

	case BitNot:
		node.Type = node.LHS.Type

	case Eq, Ne, Lt, Le, LogicalAnd, LogicalOr, LogicalNot:
		node.Type = types.TypeInt

	case Assign:
		if !types.CanCast(node.RHS.Type, node.LHS.Type.Kind) {
			return fmt.Errorf("%s: cannot assign %s to %s", node.Pos, node.RHS.Type, node.LHS.Type)
		}
		node.Type = node.LHS.Type

	case Call:
		if node.Type == nil {
			node.Type = types.TypeInt
		}

	case StructMember:
		// node.Type is resolved by the parser at the point of the access
		// (it needs the struct registry, which AddType has no access
		// to); this case only guards against an internal ordering bug.
		if node.Type == nil {
			return fmt.Errorf("%s: internal error: StructMember node missing resolved type", node.Pos)
		}

	case Cast:
		// node.Type already carries the declared target type, set by
		// the parser before calling AddType.

	case Ternary:
		node.Type = widerOperand(node.Then.Type, node.Else.Type)

	case StmtExpr, Suger, Block:
		if len(node.Children) > 0 {
			node.Type = node.Children[len(node.Children)-1].Type
		} else {
			node.Type = types.TypeInt
		}

	case Null, Break, Continue:
		node.Type = types.TypeInt

	case If, While, For, Return:
		node.Type = types.TypeVoid
	}

	return nil
}

// operands returns a node's LHS/RHS/Cond/Then/Else slots as children to
// recurse into, omitting the ones Children/Args/Init/Inc already cover.
func operands(node *Node) []*Node {
	return []*Node{node.LHS, node.RHS, node.Cond, node.Then, node.Else}
}

// widerOperand implements the "larger operand type, by Kind order"
// rule: Char < Int, and any pointer/array outranks both (pointer
// arithmetic's result is always the pointer type, never the integer
// offset's type).
func widerOperand(a, b *types.Type) *types.Type {
	if a.Kind == types.Pointer || a.Kind == types.Array {
		return a
	}
	if b.Kind == types.Pointer || b.Kind == types.Array {
		return b
	}
	if types.Rank(a.Kind) >= types.Rank(b.Kind) {
		return a
	}
	return b
}
