// Package symtab tracks the named entities of a compilation unit: local
// and global variables, functions, and struct tags. Lookup always
// resolves a bare identifier by checking the current function's locals
// before falling back to the globals table, matching how the original
// parser's find_var walks locals-then-globals.
//
// DESIGN CHOICE: no Scope tree. The source language has exactly two
// variable lifetimes — function-local and global — and no nested block
// scoping (a declaration anywhere in a function body lives for the rest
// of that function, shadowing rules aside). A two-table Context models
// that directly instead of building general lexical-scope machinery the
// grammar never exercises.
package symtab

import (
	"fmt"

	"github.com/hassan/kcc/internal/lexer"
	"github.com/hassan/kcc/internal/types"
)

// Var is a variable record: a local, a global, a parameter, or a struct
// member (members reuse Var with Offset meaning "byte offset from the
// struct's base" rather than "byte offset from the frame pointer").
type Var struct {
	Name string
	Type *types.Type

	// Offset is the stack offset (locals: positive, distance below rbp)
	// or the struct-member byte offset. Meaningless for globals.
	Offset int

	IsGlobal bool
	IsExtern bool

	// Init holds a global's initializer elements, in declaration order.
	// Nil for locals, parameters, and uninitialized globals.
	Init []InitElement

	Pos lexer.Position
}

// InitElement is one piece of a global variable's initializer: a
// constant integer (emitted as .quad/.long/.value/.byte sized by the
// variable's base type), a reference to a pooled string literal
// (emitted as a pointer to its .LC<i> label), or a reference to another
// global's address (`= &other`, emitted as `.quad other`).
type InitElementKind int

const (
	InitInt InitElementKind = iota
	InitStringRef
	InitSymbolRef
)

type InitElement struct {
	Kind       InitElementKind
	IntValue   int64
	StrLabel   int
	SymbolName string
}

// Function is a function record: its signature, its parameter list, its
// locals table, and the frame layout computed once all locals are
// declared.
type Function struct {
	Name       string
	ReturnType *types.Type
	Params     []*Var
	Locals     *OrderedMap[*Var]

	Body interface{} // *ast.Node; interface{} avoids an import cycle with ast

	StackSize   int
	IsPrototype bool

	Pos lexer.Position
}

// Context is the compiler's explicit, per-compilation-unit state: the
// current function's locals, the global variable table, the function
// table, the struct-tag registry, and the monotonic label counters used
// by control-flow codegen.
//
// The original compiler keeps all of this as package-level globals (the
// token cursor, the globals list, the function list, the struct
// registry, the label counters). Threading it through an explicit
// Context instead means a compilation unit never leaks into the next —
// a test can build as many Contexts as it likes without a process
// restart between them.
type Context struct {
	Globals   *OrderedMap[*Var]
	Functions *OrderedMap[*Function]
	Structs   *OrderedMap[*types.Type]

	current         *Function
	nextLocalOffset int

	ifCounter   int
	loopCounter int
	loopStack   []loopLabels
}

// loopLabels is the (begin, inc, end) label suffix set captured on entry
// to a loop, so nested loops don't need to recompute their own targets
// every time break/continue looks up "the innermost loop".
type loopLabels struct {
	begin, inc, end int
}

// NewContext returns an empty compilation context.
func NewContext() *Context {
	return &Context{
		Globals:   NewOrderedMap[*Var](),
		Functions: NewOrderedMap[*Function](),
		Structs:   NewOrderedMap[*types.Type](),
	}
}

// BeginFunction starts a new function's local-variable scope, resetting
// the local-offset accumulator and the struct-tag registry. The original
// compiler resets both `locals` and `struct_local_lists` at the top of
// func_define: a struct declared inside one function is not visible in
// another, even though it is visible for the rest of the function it was
// declared in (an intentional, if surprising, quirk we preserve rather
// than widen into a global registry).
func (c *Context) BeginFunction(fn *Function) {
	fn.Locals = NewOrderedMap[*Var]()
	c.current = fn
	c.nextLocalOffset = 0
	c.Structs = NewOrderedMap[*types.Type]()
}

// EndFunction finalizes the current function's frame size and clears the
// active function, mirroring assign_lvar_offsets: stack_size is simply
// the running total of local sizes accumulated as they were declared.
func (c *Context) EndFunction() {
	if c.current != nil {
		c.current.StackSize = c.nextLocalOffset
	}
	c.current = nil
	c.nextLocalOffset = 0
}

// CurrentFunction returns the function currently being parsed, or nil at
// global scope.
func (c *Context) CurrentFunction() *Function {
	return c.current
}

// DeclareLocal adds a new local variable to the current function,
// assigning it the next stack offset. The offset accumulates as a raw
// running sum of sizes with no alignment — intentionally: this preserves
// the original compiler's exact (occasionally misaligned) frame layout
// rather than silently adopting natural alignment.
//
// Returns an error if the name is already declared in this function
// (redeclaration is fatal, matching declear_node_ident).
func (c *Context) DeclareLocal(name string, t *types.Type, pos lexer.Position) (*Var, error) {
	if c.current == nil {
		return nil, fmt.Errorf("%s: internal error: DeclareLocal outside a function", pos)
	}
	if c.current.Locals.Has(name) {
		return nil, fmt.Errorf("%s: redeclaration of %q", pos, name)
	}
	c.nextLocalOffset += t.Size
	v := &Var{Name: name, Type: t, Offset: c.nextLocalOffset, Pos: pos}
	c.current.Locals.Set(name, v)
	return v, nil
}

// DeclareParam is like DeclareLocal but for a function parameter — the
// parser calls it once per parameter before the body is parsed, and also
// appends the Var to fn.Params in declaration order.
func (c *Context) DeclareParam(fn *Function, name string, t *types.Type, pos lexer.Position) (*Var, error) {
	v, err := c.DeclareLocal(name, t, pos)
	if err != nil {
		return nil, err
	}
	fn.Params = append(fn.Params, v)
	return v, nil
}

// DeclareGlobal registers a global variable. Redeclaration is fatal.
func (c *Context) DeclareGlobal(name string, t *types.Type, pos lexer.Position) (*Var, error) {
	if c.Globals.Has(name) {
		return nil, fmt.Errorf("%s: redeclaration of %q", pos, name)
	}
	v := &Var{Name: name, Type: t, IsGlobal: true, Pos: pos}
	c.Globals.Set(name, v)
	return v, nil
}

// LookupVar resolves a bare identifier: current function's locals first
// (including parameters, which live in the same table), then globals.
// Returns nil if undeclared — callers treat that as fatal, per the
// no-recovery error policy.
func (c *Context) LookupVar(name string) *Var {
	if c.current != nil {
		if v, ok := c.current.Locals.Get(name); ok {
			return v
		}
	}
	if v, ok := c.Globals.Get(name); ok {
		return v
	}
	return nil
}

// DeclareFunction registers a function (prototype or definition). A
// prototype may be followed by a definition with the same name — that is
// not a redeclaration error; only two definitions of the same name are.
func (c *Context) DeclareFunction(fn *Function) error {
	if existing, ok := c.Functions.Get(fn.Name); ok && !existing.IsPrototype {
		return fmt.Errorf("%s: redefinition of function %q", fn.Pos, fn.Name)
	}
	c.Functions.Set(fn.Name, fn)
	return nil
}

// LookupFunction resolves a called function by name.
func (c *Context) LookupFunction(name string) (*Function, bool) {
	return c.Functions.Get(name)
}

// DeclareStruct registers a struct tag's type, keyed by its name, so a
// later bare "struct name" reference resolves to it.
func (c *Context) DeclareStruct(t *types.Type) {
	c.Structs.Set(t.Name, t)
}

// LookupStruct resolves a previously declared struct tag.
func (c *Context) LookupStruct(name string) (*types.Type, bool) {
	return c.Structs.Get(name)
}

// NewIfLabel returns the next if/else label suffix (.Lifelse<n>/.Lifend<n>
// share one counter, since every if-statement uses at most one of each).
func (c *Context) NewIfLabel() int {
	n := c.ifCounter
	c.ifCounter++
	return n
}

// EnterLoop allocates a fresh (begin, inc, end) label triple for a
// while/for loop and pushes it as the innermost loop, for break/continue
// to target. Returns the triple so the caller can emit the loop's own
// labels.
func (c *Context) EnterLoop() (begin, inc, end int) {
	n := c.loopCounter
	c.loopCounter++
	ll := loopLabels{begin: n, inc: n, end: n}
	c.loopStack = append(c.loopStack, ll)
	return ll.begin, ll.inc, ll.end
}

// ExitLoop pops the innermost loop's label triple once its body has been
// fully generated.
func (c *Context) ExitLoop() {
	if len(c.loopStack) > 0 {
		c.loopStack = c.loopStack[:len(c.loopStack)-1]
	}
}

// InnermostLoop returns the label triple of the nearest enclosing loop,
// and whether one exists — break/continue outside any loop is fatal,
// matching the original's "now_loop_count - 1 < 0" check.
func (c *Context) InnermostLoop() (begin, inc, end int, ok bool) {
	if len(c.loopStack) == 0 {
		return 0, 0, 0, false
	}
	ll := c.loopStack[len(c.loopStack)-1]
	return ll.begin, ll.inc, ll.end, true
}
