// Package codegen walks the typed AST and emits x86-64 assembly (Intel
// syntax, no prefix, GNU-assembler compatible). It is a stack machine:
// every node gen emits leaves exactly one value pushed, so a parent node
// can always pop its operands off in a fixed order regardless of how
// deep the subtree that produced them was.
package codegen

import (
	"bufio"
	"fmt"
	"io"

	"github.com/hassan/kcc/internal/ast"
	"github.com/hassan/kcc/internal/parser"
	"github.com/hassan/kcc/internal/symtab"
	"github.com/hassan/kcc/internal/types"
)

var (
	argreg64 = []string{"rdi", "rsi", "rdx", "rcx", "r8", "r9"}
	argreg32 = []string{"edi", "esi", "edx", "ecx", "r8d", "r9d"}
	argreg16 = []string{"di", "si", "dx", "cx", "r8w", "r9w"}
	argreg8  = []string{"dil", "sil", "dl", "cl", "r8b", "r9b"}

	raxByIndex = []string{"rax", "eax", "ax", "al"}
	rdiByIndex = []string{"rdi", "edi", "di", "dil"}
)

// Generator emits assembly for a parsed program onto an io.Writer.
type Generator struct {
	out *bufio.Writer
	ctx *symtab.Context
	fn  *symtab.Function
}

// Generate writes the full assembly listing for prog to w: a .data
// section (string literals, then non-extern globals), followed by a
// .text section with one function per non-prototype definition.
func Generate(prog *parser.Program, w io.Writer) error {
	g := &Generator{out: bufio.NewWriter(w), ctx: prog.Ctx}

	g.emit(".intel_syntax noprefix")
	g.emit(".data")
	g.emitStrings(prog.Strings)
	if err := g.emitGlobals(); err != nil {
		return err
	}

	g.emit(".text")
	for _, fn := range prog.Functions {
		if fn.IsPrototype {
			continue
		}
		if err := g.function(fn); err != nil {
			return err
		}
	}

	return g.out.Flush()
}

func (g *Generator) emit(format string, args ...any) {
	fmt.Fprintf(g.out, format, args...)
	g.out.WriteByte('\n')
}

func (g *Generator) emitStrings(strs []string) {
	for i, s := range strs {
		g.emit(".LC%d:", i)
		g.emit("  .string %q", s)
	}
}

func (g *Generator) emitGlobals() error {
	for _, v := range g.ctx.Globals.Values() {
		if v.IsExtern {
			continue
		}
		g.emit("%s:", v.Name)
		if len(v.Init) == 0 {
			g.emit("  .zero %d", v.Type.Size)
			continue
		}
		for _, elem := range v.Init {
			if err := g.emitInitElement(v.Type, elem); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Generator) emitInitElement(t *types.Type, elem symtab.InitElement) error {
	switch elem.Kind {
	case symtab.InitStringRef:
		g.emit("  .quad .LC%d", elem.StrLabel)
		return nil
	case symtab.InitSymbolRef:
		g.emit("  .quad %s", elem.SymbolName)
		return nil
	}

	switch types.ArrayBaseSize(t) {
	case 8:
		g.emit("  .quad %d", elem.IntValue)
	case 4:
		g.emit("  .long %d", elem.IntValue)
	case 2:
		g.emit("  .value %d", elem.IntValue)
	case 1:
		g.emit("  .byte %d", elem.IntValue)
	default:
		return fmt.Errorf("internal error: unsupported global initializer size %d for %s", t.Size, t)
	}
	return nil
}

// function emits one function's prologue, body, and epilogue.
func (g *Generator) function(fn *symtab.Function) error {
	g.fn = fn

	g.emit(".globl %s", fn.Name)
	g.emit("%s:", fn.Name)

	g.emit("  push rbp")
	g.emit("  mov rbp, rsp")
	g.emit("  sub rsp, %d", fn.StackSize)

	for i, param := range fn.Params {
		g.emit("  mov rax, rbp")
		g.emit("  sub rax, %d", param.Offset)
		reg, err := getArgReg(i, param.Type)
		if err != nil {
			return err
		}
		g.emit("  mov [rax], %s", reg)
	}

	body, ok := fn.Body.(*ast.Node)
	if !ok {
		return fmt.Errorf("internal error: function %q has no parsed body", fn.Name)
	}
	if err := g.gen(body); err != nil {
		return err
	}
	g.pop()

	g.emit(".L.return.%s:", fn.Name)
	g.emit("  mov rsp, rbp")
	g.emit("  pop rbp")
	g.emit("  ret")

	g.fn = nil
	return nil
}

func (g *Generator) push()    { g.emit("  push rax") }
func (g *Generator) pushRDI() { g.emit("  push rdi") }
func (g *Generator) pop()     { g.emit("  pop rax") }
func (g *Generator) popRDI()  { g.emit("  pop rdi") }

func (g *Generator) pushNum(n int64) {
	g.emit("  mov rax, %d", n)
	g.push()
}

// genLval emits the address of a Var node into rax and pushes it.
func (g *Generator) genLval(node *ast.Node) error {
	if node.Kind != ast.Var {
		return fmt.Errorf("%s: internal error: genLval on non-Var node", node.Pos)
	}
	if node.Var.IsGlobal {
		g.emit("  lea rax, [rip+%s]", node.Var.Name)
	} else {
		g.emit("  mov rax, rbp")
		g.emit("  sub rax, %d", node.Var.Offset)
	}
	g.push()
	return nil
}

// genAddr emits the address a lvalue-shaped node denotes, for the left
// side of an assignment or the operand of "&".
func (g *Generator) genAddr(node *ast.Node) error {
	switch node.Kind {
	case ast.Deref:
		return g.gen(node.LHS)
	case ast.Var:
		return g.genLval(node)
	case ast.Add, ast.Sub:
		return g.gen(node)
	case ast.StructMember:
		if err := g.genAddr(node.LHS); err != nil {
			return err
		}
		g.pop()
		g.emit("  add rax, %d", node.Val)
		g.push()
		return nil
	case ast.Ternary, ast.Suger, ast.StmtExpr:
		return g.gen(node)
	}
	return fmt.Errorf("%s: internal error: %v is not an lvalue form", node.Pos, node.Kind)
}

// load reads the value addressed by rax into rax, sign-extending to a
// full register width per the operand's type. Arrays and structs stay
// as addresses — loading one would copy nothing useful.
func (g *Generator) load(t *types.Type) {
	if t.Kind == types.Array || t.Kind == types.Struct {
		return
	}
	if t.Kind == types.Char {
		g.emit("  movsx eax, BYTE PTR [rax]")
		return
	}
	reg, _ := properRegister(t, raxByIndex)
	g.emit("  mov %s, [rax]", reg)
	switch t.Size {
	case 4:
		g.emit("  cdqe")
	case 2:
		g.emit("  cwde")
	case 1:
		g.emit("  cbw")
	}
}

func sizeToIndex(size int) (int, error) {
	switch size {
	case 8:
		return 0, nil
	case 4:
		return 1, nil
	case 2:
		return 2, nil
	case 1:
		return 3, nil
	default:
		return 0, fmt.Errorf("internal error: unsupported operand size %d", size)
	}
}

func properRegister(t *types.Type, table []string) (string, error) {
	size := t.Size
	if t.Kind == types.Array {
		size = types.ArrayBaseSize(t)
	}
	idx, err := sizeToIndex(size)
	if err != nil {
		return "", err
	}
	return table[idx], nil
}

func getArgReg(index int, t *types.Type) (string, error) {
	if t.Kind == types.Array {
		return argreg64[index], nil
	}
	switch t.Size {
	case 8:
		return argreg64[index], nil
	case 4:
		return argreg32[index], nil
	case 2:
		return argreg16[index], nil
	case 1:
		return argreg8[index], nil
	default:
		return "", fmt.Errorf("internal error: unsupported argument size %d", t.Size)
	}
}

// gen emits code for node and leaves exactly one value pushed on the
// stack — the single invariant every case below must preserve.
func (g *Generator) gen(node *ast.Node) error {
	switch node.Kind {
	case ast.Null:
		g.push()
		return nil

	case ast.Num:
		g.pushNum(node.NumValue)
		return nil

	case ast.String:
		g.emit("  lea rax, [rip+.LC%d]", node.StrIndex)
		g.push()
		return nil

	case ast.StructMember:
		if err := g.genAddr(node); err != nil {
			return err
		}
		g.pop()
		g.load(node.Type)
		g.push()
		return nil

	case ast.Var:
		if err := g.genLval(node); err != nil {
			return err
		}
		g.pop()
		g.load(node.Type)
		g.push()
		return nil

	case ast.Addr:
		return g.genAddr(node.LHS)

	case ast.Deref:
		if err := g.gen(node.LHS); err != nil {
			return err
		}
		g.pop()
		g.load(node.Type)
		g.push()
		return nil

	case ast.Assign:
		return g.genAssign(node)

	case ast.Return:
		return g.genReturn(node)

	case ast.If:
		return g.genIf(node)

	case ast.Ternary:
		return g.genTernary(node)

	case ast.While:
		return g.genWhile(node)

	case ast.For:
		return g.genFor(node)

	case ast.Break:
		return g.genBreak(node)

	case ast.Continue:
		return g.genContinue(node)

	case ast.Block, ast.StmtExpr, ast.Suger:
		for _, child := range node.Children {
			if err := g.gen(child); err != nil {
				return err
			}
			g.pop()
		}
		g.push()
		return nil

	case ast.Call:
		return g.genCall(node)

	case ast.LogicalNot:
		if err := g.gen(node.LHS); err != nil {
			return err
		}
		g.pop()
		g.emit("  test rax, rax")
		g.emit("  sete al")
		g.emit("  movzx rax, al")
		g.push()
		return nil

	case ast.BitNot:
		if err := g.gen(node.LHS); err != nil {
			return err
		}
		g.pop()
		g.emit("  not rax")
		g.push()
		return nil

	case ast.Cast:
		return g.genCast(node)
	}

	return g.genBinop(node)
}

func (g *Generator) genAssign(node *ast.Node) error {
	if err := g.genAddr(node.LHS); err != nil {
		return err
	}
	if err := g.gen(node.RHS); err != nil {
		return err
	}
	g.popRDI()
	g.pop()

	if node.Type.Kind == types.Struct {
		for i := 0; i < node.Type.Size; i++ {
			g.emit("  mov r8b, [rdi+%d]", i)
			g.emit("  mov [rax+%d], r8b", i)
		}
	} else {
		reg, err := properRegister(node.LHS.Type, rdiByIndex)
		if err != nil {
			return err
		}
		g.emit("  mov [rax], %s", reg)
	}
	g.pushRDI()
	return nil
}

func (g *Generator) genReturn(node *ast.Node) error {
	if err := g.gen(node.LHS); err != nil {
		return err
	}
	g.popRDI()

	ret := g.fn.ReturnType
	switch {
	case ret.Kind == types.Char:
		g.emit("  movsx rax, dil")
	case ret.Kind != types.Void && ret.Size < 8:
		reg, err := properRegister(ret, rdiByIndex)
		if err != nil {
			return err
		}
		g.emit("  movsx rax, %s", reg)
	case ret.Kind != types.Void && ret.Size == 8:
		g.emit("  mov rax, rdi")
	case ret.Kind != types.Void:
		return fmt.Errorf("%s: internal error: return type %s wider than 8 bytes", node.Pos, ret)
	}

	g.emit("  jmp .L.return.%s", g.fn.Name)
	return nil
}

func (g *Generator) genIf(node *ast.Node) error {
	label := g.ctx.NewIfLabel()

	if err := g.gen(node.Cond); err != nil {
		return err
	}
	g.pop()
	g.emit("  cmp rax, 0")

	if node.Else != nil {
		g.emit("  je  .Lifelse%04d", label)
		if err := g.gen(node.Then); err != nil {
			return err
		}
		g.pop()
		g.emit("  jmp .Lifend%04d", label)
		g.emit(".Lifelse%04d:", label)
		if err := g.gen(node.Else); err != nil {
			return err
		}
		g.pop()
		g.emit(".Lifend%04d:", label)
		g.push()
		return nil
	}

	g.emit("  je  .Lifend%04d", label)
	if err := g.gen(node.Then); err != nil {
		return err
	}
	g.pop()
	g.emit(".Lifend%04d:", label)
	g.push()
	return nil
}

func (g *Generator) genTernary(node *ast.Node) error {
	label := g.ctx.NewIfLabel()

	if err := g.gen(node.Cond); err != nil {
		return err
	}
	g.pop()
	g.emit("  cmp rax, 0")
	g.emit("  je  .Lifelse%04d", label)
	if err := g.gen(node.Then); err != nil {
		return err
	}
	g.pop()
	g.emit("  jmp .Lifend%04d", label)
	g.emit(".Lifelse%04d:", label)
	if err := g.gen(node.Else); err != nil {
		return err
	}
	g.pop()
	g.emit(".Lifend%04d:", label)
	g.push()
	return nil
}

func (g *Generator) genWhile(node *ast.Node) error {
	begin, inc, end := g.ctx.EnterLoop()

	g.emit(".Lloopbegin%04d:", begin)
	if err := g.gen(node.Cond); err != nil {
		return err
	}
	g.pop()
	g.emit("  cmp rax, 0")
	g.emit("  je  .Lloopend%04d", end)

	if err := g.gen(node.Then); err != nil {
		return err
	}
	g.pop()

	g.emit(".Lloopinc%04d:", inc)
	g.emit("  jmp .Lloopbegin%04d", begin)
	g.emit(".Lloopend%04d:", end)

	g.ctx.ExitLoop()
	g.push()
	return nil
}

func (g *Generator) genFor(node *ast.Node) error {
	begin, inc, end := g.ctx.EnterLoop()

	if node.Init != nil {
		if err := g.gen(node.Init); err != nil {
			return err
		}
		g.pop()
	}

	g.emit(".Lloopbegin%04d:", begin)
	if node.Cond != nil {
		if err := g.gen(node.Cond); err != nil {
			return err
		}
		g.pop()
		g.emit("  cmp rax, 0")
		g.emit("  je  .Lloopend%04d", end)
	}

	if err := g.gen(node.Then); err != nil {
		return err
	}
	g.pop()

	g.emit(".Lloopinc%04d:", inc)
	if node.Inc != nil {
		if err := g.gen(node.Inc); err != nil {
			return err
		}
		g.pop()
	}
	g.emit("  jmp .Lloopbegin%04d", begin)
	g.emit(".Lloopend%04d:", end)

	g.ctx.ExitLoop()
	g.push()
	return nil
}

func (g *Generator) genBreak(node *ast.Node) error {
	_, _, end, ok := g.ctx.InnermostLoop()
	if !ok {
		return fmt.Errorf("%s: break used outside a loop", node.Pos)
	}
	g.push()
	g.emit("  jmp .Lloopend%04d", end)
	return nil
}

func (g *Generator) genContinue(node *ast.Node) error {
	_, inc, _, ok := g.ctx.InnermostLoop()
	if !ok {
		return fmt.Errorf("%s: continue used outside a loop", node.Pos)
	}
	g.push()
	g.emit("  jmp .Lloopinc%04d", inc)
	return nil
}

func (g *Generator) genCall(node *ast.Node) error {
	for _, arg := range node.Args {
		if err := g.gen(arg); err != nil {
			return err
		}
	}
	for i := len(node.Args) - 1; i >= 0; i-- {
		g.emit("  pop %s", argreg64[i])
	}

	// rsp must be 16-byte aligned at the call instruction; rbp is saved
	// and restored around the realignment so the frame is intact when
	// the callee returns.
	g.emit("  mov rax, 0")
	g.emit("  push rbp")
	g.emit("  mov rbp, rsp")
	g.emit("  and rsp, -16")
	g.emit("  call %s", node.FnName)
	g.emit("  mov rsp, rbp")
	g.emit("  pop rbp")
	g.push()
	return nil
}

func (g *Generator) genCast(node *ast.Node) error {
	if err := g.gen(node.LHS); err != nil {
		return err
	}
	g.pop()
	switch node.Type.Size {
	case 8:
		// no conversion needed
	case 4:
		g.emit("  movsxd rax, eax")
	default:
		reg, err := properRegister(node.Type, raxByIndex)
		if err != nil {
			return err
		}
		g.emit("  movsx rax, %s", reg)
	}
	g.push()
	return nil
}

// genBinop handles every node kind with a plain LHS/RHS evaluate-both-
// then-combine shape: arithmetic, bitwise, relational, and logical
// (non-short-circuiting — both operands are always evaluated).
func (g *Generator) genBinop(node *ast.Node) error {
	if err := g.gen(node.LHS); err != nil {
		return err
	}
	if err := g.gen(node.RHS); err != nil {
		return err
	}
	g.popRDI()
	g.pop()

	switch node.Kind {
	case ast.Add:
		g.emit("  add rax, rdi")
	case ast.Sub:
		g.emit("  sub rax, rdi")
	case ast.Mul:
		g.emit("  imul rax, rdi")
	case ast.Div:
		g.emit("  cqo")
		g.emit("  idiv rdi")
	case ast.Mod:
		g.emit("  cqo")
		g.emit("  idiv rdi")
		g.emit("  mov rax, rdx")
	case ast.Eq:
		g.emit("  cmp rax, rdi")
		g.emit("  sete al")
		g.emit("  movzx rax, al")
	case ast.Ne:
		g.emit("  cmp rax, rdi")
		g.emit("  setne al")
		g.emit("  movzx rax, al")
	case ast.Lt:
		g.emit("  cmp rax, rdi")
		g.emit("  setl al")
		g.emit("  movzx rax, al")
	case ast.Le:
		g.emit("  cmp rax, rdi")
		g.emit("  setle al")
		g.emit("  movzx rax, al")
	case ast.LogicalAnd:
		g.emit("  cmp rax, 0")
		g.emit("  setne al")
		g.emit("  movzx rax, al")
		g.emit("  cmp rdi, 0")
		g.emit("  setne dil")
		g.emit("  movzx rdi, dil")
		g.emit("  and rax, rdi")
	case ast.LogicalOr:
		g.emit("  cmp rax, 0")
		g.emit("  setne al")
		g.emit("  movzx rax, al")
		g.emit("  cmp rdi, 0")
		g.emit("  setne dil")
		g.emit("  movzx rdi, dil")
		g.emit("  or rax, rdi")
	case ast.BitAnd:
		g.emit("  and rax, rdi")
	case ast.BitOr:
		g.emit("  or rax, rdi")
	case ast.BitXor:
		g.emit("  xor rax, rdi")
	case ast.LShift:
		g.emit("  mov rcx, rdi")
		g.emit("  sal rax, cl")
	case ast.RShift:
		g.emit("  mov rcx, rdi")
		g.emit("  sar rax, cl")
	default:
		return fmt.Errorf("%s: internal error: codegen has no case for %v", node.Pos, node.Kind)
	}

	g.push()
	return nil
}
