// Package parser implements the recursive-descent parser. Parsing and
// type propagation are interleaved: every expression node is built
// through the ast package's smart constructors, which type the node
// before returning it, so by the time a statement is fully parsed every
// expression beneath it already carries a concrete type.
package parser

import (
	"fmt"

	"github.com/hassan/kcc/internal/ast"
	"github.com/hassan/kcc/internal/lexer"
	"github.com/hassan/kcc/internal/symtab"
	"github.com/hassan/kcc/internal/types"
)

// Program is the parsed compilation unit: every function definition and
// prototype (in source order) plus the shared Context holding globals, the function
// table, and the struct registry last active at top level.
type Program struct {
	Functions []*symtab.Function
	Ctx       *symtab.Context
	Strings   []string
}

// Parser holds one token of lookahead beyond the current token, enough
// for every grammar decision this language needs (distinguishing a
// function definition from a global declaration, an assignment operator
// from a lone "=", etc).
type Parser struct {
	lex  *lexer.Lexer
	ctx  *symtab.Context
	cur  lexer.Token
	peek lexer.Token
}

// New primes the two-token lookahead window and returns a ready-to-use
// Parser.
func New(lex *lexer.Lexer, ctx *symtab.Context) (*Parser, error) {
	p := &Parser{lex: lex, ctx: ctx}
	var err error
	if p.cur, err = lex.NextToken(); err != nil {
		return nil, err
	}
	if p.peek, err = lex.NextToken(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Parser) advance() error {
	p.cur = p.peek
	tok, err := p.lex.NextToken()
	if err != nil {
		return err
	}
	p.peek = tok
	return nil
}

func (p *Parser) check(tt lexer.TokenType) bool {
	return p.cur.Type == tt
}

func (p *Parser) checkPeek(tt lexer.TokenType) bool {
	return p.peek.Type == tt
}

func (p *Parser) match(tt lexer.TokenType) (bool, error) {
	if !p.check(tt) {
		return false, nil
	}
	return true, p.advance()
}

func (p *Parser) expect(tt lexer.TokenType, what string) (lexer.Token, error) {
	if !p.check(tt) {
		return lexer.Token{}, p.errorf("expected %s, got %s", what, p.cur.String())
	}
	tok := p.cur
	if err := p.advance(); err != nil {
		return tok, err
	}
	return tok, nil
}

func (p *Parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("%s: %s", p.cur.Position.String(), fmt.Sprintf(format, args...))
}

// ParseProgram parses an entire translation unit.
//
//	program = ( declaration_global | func_define )*
func ParseProgram(lex *lexer.Lexer, ctx *symtab.Context) (*Program, error) {
	p, err := New(lex, ctx)
	if err != nil {
		return nil, err
	}

	prog := &Program{Ctx: ctx}

	for !p.check(lexer.TokenEOF) {
		isExtern, err := p.match(lexer.TokenExtern)
		if err != nil {
			return nil, err
		}

		base, err := p.typeSpecifier()
		if err != nil {
			return nil, err
		}
		// The original compiler consumes one shared run of leading
		// stars right after the type specifier, common to every
		// declarator in the statement, then each declarator parses its
		// own additional stars on top of that shared base. int *a, b
		// therefore makes both a and b pointers even though only the
		// first has an explicit star (and int *a, *b makes b an int**) — a quirk of the
		// original grammar we preserve rather than silently tighten to
		// ordinary C declarator scoping.
		sharedBase, err := p.pointerType(base)
		if err != nil {
			return nil, err
		}

		t, err := p.pointerType(sharedBase)
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expect(lexer.TokenIdentifier, "identifier")
		if err != nil {
			return nil, err
		}

		if p.check(lexer.TokenLeftParen) {
			fn, err := p.funcDefine(t, nameTok)
			if err != nil {
				return nil, err
			}
			prog.Functions = append(prog.Functions, fn)
			continue
		}

		if err := p.globalDeclarators(sharedBase, t, nameTok, isExtern); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
			return nil, err
		}
	}

	prog.Strings = lex.StringLiterals()
	return prog, nil
}

// typeSpecifier = "int" | "char" | "void" | "struct" ident ( "{" struct_decl* "}" )?
func (p *Parser) typeSpecifier() (*types.Type, error) {
	if p.check(lexer.TokenTypeKeyword) {
		t := p.cur.TypeValue
		if err := p.advance(); err != nil {
			return nil, err
		}
		return t, nil
	}

	if ok, err := p.match(lexer.TokenStruct); err != nil {
		return nil, err
	} else if ok {
		nameTok, err := p.expect(lexer.TokenIdentifier, "struct tag")
		if err != nil {
			return nil, err
		}
		if ok, err := p.match(lexer.TokenLeftBrace); err != nil {
			return nil, err
		} else if ok {
			members, err := p.structMembers()
			if err != nil {
				return nil, err
			}
			st := types.NewStruct(nameTok.Lexeme, members)
			p.ctx.DeclareStruct(st)
			return st, nil
		}
		st, ok := p.ctx.LookupStruct(nameTok.Lexeme)
		if !ok {
			return nil, fmt.Errorf("%s: undeclared struct %q", nameTok.Position, nameTok.Lexeme)
		}
		return st, nil
	}

	return nil, p.errorf("expected a type, got %s", p.cur.String())
}

// structMembers parses the "{" struct_decl* "}" body already past its
// opening brace, accumulating each member's offset as the running sum of
// preceding members' sizes — no padding, matching the struct layout the
// rest of the compiler assumes.
func (p *Parser) structMembers() ([]types.Member, error) {
	var members []types.Member
	offset := 0

	for !p.check(lexer.TokenRightBrace) {
		base, err := p.typeSpecifier()
		if err != nil {
			return nil, err
		}
		t, err := p.pointerType(base)
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expect(lexer.TokenIdentifier, "member name")
		if err != nil {
			return nil, err
		}
		t, err = p.typeSuffix(t)
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
			return nil, err
		}

		members = append(members, types.Member{Name: nameTok.Lexeme, Type: t, Offset: offset})
		offset += t.Size
	}
	if _, err := p.expect(lexer.TokenRightBrace, "'}'"); err != nil {
		return nil, err
	}
	return members, nil
}

// pointerType consumes zero or more leading '*' and wraps base
// accordingly: "int **p" wraps Int in two layers of Pointer.
func (p *Parser) pointerType(base *types.Type) (*types.Type, error) {
	t := base
	for {
		ok, err := p.match(lexer.TokenStar)
		if err != nil {
			return nil, err
		}
		if !ok {
			return t, nil
		}
		t = types.NewPointer(t)
	}
}

// typeSuffix = ( "[" num "]" )*
//
// Wraps right-to-left: the outermost bracket parses first but wraps
// last, so `int a[2][3]` becomes Array(Array(Int,3),2).
func (p *Parser) typeSuffix(base *types.Type) (*types.Type, error) {
	ok, err := p.match(lexer.TokenLeftBracket)
	if err != nil {
		return nil, err
	}
	if !ok {
		return base, nil
	}
	if !p.check(lexer.TokenNumber) {
		return nil, p.errorf("expected array length, got %s", p.cur.String())
	}
	length := int(p.cur.NumValue)
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRightBracket, "']'"); err != nil {
		return nil, err
	}

	inner, err := p.typeSuffix(base)
	if err != nil {
		return nil, err
	}
	return types.NewArray(inner, length), nil
}

// globalDeclarators parses the comma-separated tail of a top-level
// declaration, given the first declarator's already-parsed type and
// name.
func (p *Parser) globalDeclarators(sharedBase, firstType *types.Type, firstName lexer.Token, isExtern bool) error {
	t, nameTok := firstType, firstName

	for {
		finalType, err := p.typeSuffix(t)
		if err != nil {
			return err
		}

		v, err := p.ctx.DeclareGlobal(nameTok.Lexeme, finalType, nameTok.Position)
		if err != nil {
			return err
		}
		v.IsExtern = isExtern

		if ok, err := p.match(lexer.TokenAssign); err != nil {
			return err
		} else if ok {
			if isExtern {
				return fmt.Errorf("%s: extern declaration %q may not have an initializer",
					nameTok.Position, nameTok.Lexeme)
			}
			elems, err := p.globalInitializer(finalType)
			if err != nil {
				return err
			}
			v.Init = elems
		}

		ok, err := p.match(lexer.TokenComma)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		t, err = p.pointerType(sharedBase)
		if err != nil {
			return err
		}
		nameTok, err = p.expect(lexer.TokenIdentifier, "identifier")
		if err != nil {
			return err
		}
	}
}

// globalInitializer parses a global's "= ..." initializer: a constant
// integer, a string literal (for a char* or char[] target), or the
// address of another global (`&other`). Array- and struct-valued
// initializer lists are not supported, matching the original compiler's
// own unfinished initializer handling.
func (p *Parser) globalInitializer(target *types.Type) ([]symtab.InitElement, error) {
	if p.check(lexer.TokenString) {
		tok := p.cur
		if err := p.advance(); err != nil {
			return nil, err
		}
		return []symtab.InitElement{{Kind: symtab.InitStringRef, StrLabel: tok.StrLiteralIndex}}, nil
	}

	if ok, err := p.match(lexer.TokenAmp); err != nil {
		return nil, err
	} else if ok {
		nameTok, err := p.expect(lexer.TokenIdentifier, "global name")
		if err != nil {
			return nil, err
		}
		return []symtab.InitElement{{Kind: symtab.InitSymbolRef, SymbolName: nameTok.Lexeme}}, nil
	}

	neg := false
	if ok, err := p.match(lexer.TokenMinus); err != nil {
		return nil, err
	} else if ok {
		neg = true
	}
	numTok, err := p.expect(lexer.TokenNumber, "constant initializer")
	if err != nil {
		return nil, err
	}
	value := numTok.NumValue
	if neg {
		value = -value
	}
	return []symtab.InitElement{{Kind: symtab.InitInt, IntValue: value}}, nil
}

// params = declaration_param ("," declaration_param)*
func (p *Parser) params(fn *symtab.Function) error {
	for {
		base, err := p.typeSpecifier()
		if err != nil {
			return err
		}
		t, err := p.pointerType(base)
		if err != nil {
			return err
		}
		nameTok, err := p.expect(lexer.TokenIdentifier, "parameter name")
		if err != nil {
			return err
		}
		t, err = p.typeSuffix(t)
		if err != nil {
			return err
		}
		// Array parameters decay to pointer-to-element.
		if t.Kind == types.Array {
			t = types.NewPointer(t.To)
		}

		if _, err := p.ctx.DeclareParam(fn, nameTok.Lexeme, t, nameTok.Position); err != nil {
			return err
		}

		ok, err := p.match(lexer.TokenComma)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// funcDefine = type_specifier pointer ident "(" params? ")" ( compound_stmt | ";" )
//
// A ";" in place of the body records the function as a prototype.
func (p *Parser) funcDefine(retType *types.Type, nameTok lexer.Token) (*symtab.Function, error) {
	fn := &symtab.Function{Name: nameTok.Lexeme, ReturnType: retType, Pos: nameTok.Position}

	if _, err := p.expect(lexer.TokenLeftParen, "'('"); err != nil {
		return nil, err
	}

	p.ctx.BeginFunction(fn)

	if !p.check(lexer.TokenRightParen) {
		if err := p.params(fn); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
		return nil, err
	}

	if ok, err := p.match(lexer.TokenSemicolon); err != nil {
		return nil, err
	} else if ok {
		fn.IsPrototype = true
		p.ctx.EndFunction()
		if err := p.ctx.DeclareFunction(fn); err != nil {
			return nil, err
		}
		return fn, nil
	}

	body, err := p.compoundStmt()
	if err != nil {
		return nil, err
	}
	fn.Body = body

	p.ctx.EndFunction()

	if err := p.ctx.DeclareFunction(fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// compound_stmt = "{" ( declaration ";" | stmt )* "}"
//
// A Suger node spliced in from a multi-declarator local declaration is
// flattened into its children; a bare variable declarator (one with no
// initializer) is replaced by Null, since declarations emit no code —
// only their side effect on the symbol table matters.
func (p *Parser) compoundStmt() (*ast.Node, error) {
	lbrace, err := p.expect(lexer.TokenLeftBrace, "'{'")
	if err != nil {
		return nil, err
	}

	block := &ast.Node{Kind: ast.Block, Pos: lbrace.Position}

	for !p.check(lexer.TokenRightBrace) {
		stmtNode, err := p.stmt()
		if err != nil {
			return nil, err
		}
		block.Children = append(block.Children, flattenDeclaration(stmtNode)...)
	}
	if _, err := p.expect(lexer.TokenRightBrace, "'}'"); err != nil {
		return nil, err
	}
	if err := ast.AddType(block); err != nil {
		return nil, err
	}
	return block, nil
}

// flattenDeclaration splices a Suger node's children into the block and
// replaces any bare (uninitialized) Var declarator with Null, matching
// compound_stmt's "declarations emit no code" rule.
func flattenDeclaration(n *ast.Node) []*ast.Node {
	if n.Kind == ast.Suger {
		var out []*ast.Node
		for _, child := range n.Children {
			out = append(out, nullifyBareVar(child))
		}
		return out
	}
	return []*ast.Node{nullifyBareVar(n)}
}

func nullifyBareVar(n *ast.Node) *ast.Node {
	if n.Kind == ast.Var {
		return &ast.Node{Kind: ast.Null, Type: types.TypeInt, Pos: n.Pos}
	}
	return n
}

// stmt = "return" expr? ";" | if | while | for | break ";" | continue ";"
//      | compound_stmt | ";" | expr ";"
func (p *Parser) stmt() (*ast.Node, error) {
	switch {
	case p.check(lexer.TokenReturn):
		return p.returnStmt()
	case p.check(lexer.TokenIf):
		return p.ifStmt()
	case p.check(lexer.TokenWhile):
		return p.whileStmt()
	case p.check(lexer.TokenFor):
		return p.forStmt()
	case p.check(lexer.TokenBreak):
		pos := p.cur.Position
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
			return nil, err
		}
		n := &ast.Node{Kind: ast.Break, Pos: pos}
		return n, ast.AddType(n)
	case p.check(lexer.TokenContinue):
		pos := p.cur.Position
		if err := p.advance(); err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
			return nil, err
		}
		n := &ast.Node{Kind: ast.Continue, Pos: pos}
		return n, ast.AddType(n)
	case p.check(lexer.TokenLeftBrace):
		return p.compoundStmt()
	case p.check(lexer.TokenSemicolon):
		pos := p.cur.Position
		if err := p.advance(); err != nil {
			return nil, err
		}
		n := &ast.Node{Kind: ast.Null, Pos: pos}
		return n, ast.AddType(n)
	default:
		n, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
			return nil, err
		}
		return n, nil
	}
}

// return stmt. A missing expression becomes a dummy Num 0, and — per
// the original compiler's unconditional void-return coercion — any
// return value in a void function is replaced with dummy 0 too,
// regardless of what was written.
func (p *Parser) returnStmt() (*ast.Node, error) {
	pos := p.cur.Position
	if err := p.advance(); err != nil {
		return nil, err
	}

	var value *ast.Node
	if !p.check(lexer.TokenSemicolon) {
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		value = v
	}
	if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
		return nil, err
	}

	fn := p.ctx.CurrentFunction()
	isVoidReturn := fn != nil && fn.ReturnType.Kind == types.Void

	if value == nil || isVoidReturn {
		value = ast.NewNum(0, pos)
	} else if fn != nil && !types.CanCast(value.Type, fn.ReturnType.Kind) {
		return nil, fmt.Errorf("%s: cannot return %s from a function returning %s",
			pos, value.Type, fn.ReturnType)
	}

	n := &ast.Node{Kind: ast.Return, LHS: value, Pos: pos}
	return n, ast.AddType(n)
}

func (p *Parser) ifStmt() (*ast.Node, error) {
	pos := p.cur.Position
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLeftParen, "'('"); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
		return nil, err
	}
	then, err := p.stmt()
	if err != nil {
		return nil, err
	}

	n := &ast.Node{Kind: ast.If, Cond: cond, Then: then, Pos: pos}
	if ok, err := p.match(lexer.TokenElse); err != nil {
		return nil, err
	} else if ok {
		elseBranch, err := p.stmt()
		if err != nil {
			return nil, err
		}
		n.Else = elseBranch
	}
	return n, ast.AddType(n)
}

func (p *Parser) whileStmt() (*ast.Node, error) {
	pos := p.cur.Position
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLeftParen, "'('"); err != nil {
		return nil, err
	}
	cond, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
		return nil, err
	}
	body, err := p.stmt()
	if err != nil {
		return nil, err
	}
	n := &ast.Node{Kind: ast.While, Cond: cond, Then: body, Pos: pos}
	return n, ast.AddType(n)
}

func (p *Parser) forStmt() (*ast.Node, error) {
	pos := p.cur.Position
	if err := p.advance(); err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenLeftParen, "'('"); err != nil {
		return nil, err
	}

	n := &ast.Node{Kind: ast.For, Pos: pos}

	if !p.check(lexer.TokenSemicolon) {
		init, err := p.expr()
		if err != nil {
			return nil, err
		}
		n.Init = init
	}
	if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
		return nil, err
	}

	if !p.check(lexer.TokenSemicolon) {
		cond, err := p.expr()
		if err != nil {
			return nil, err
		}
		n.Cond = cond
	}
	if _, err := p.expect(lexer.TokenSemicolon, "';'"); err != nil {
		return nil, err
	}

	if !p.check(lexer.TokenRightParen) {
		inc, err := p.expr()
		if err != nil {
			return nil, err
		}
		n.Inc = inc
	}
	if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
		return nil, err
	}

	body, err := p.stmt()
	if err != nil {
		return nil, err
	}
	n.Then = body
	return n, ast.AddType(n)
}

// expr = declaration | assign
//
// Dispatches on whether the next token opens a type, the same
// lookahead the original compiler uses to decide whether an expression
// statement is actually a local variable declaration.
func (p *Parser) expr() (*ast.Node, error) {
	if p.check(lexer.TokenTypeKeyword) || p.check(lexer.TokenStruct) {
		return p.localDeclaration()
	}
	return p.assign()
}

// localDeclaration parses one or more comma-separated local declarators,
// wrapping more than one in a Suger node. A struct type_specifier with no
// declarators following (just "struct Point { ... };") short-circuits to
// Null — it only needs to register the type.
func (p *Parser) localDeclaration() (*ast.Node, error) {
	pos := p.cur.Position
	base, err := p.typeSpecifier()
	if err != nil {
		return nil, err
	}
	sharedBase, err := p.pointerType(base)
	if err != nil {
		return nil, err
	}

	if p.check(lexer.TokenSemicolon) {
		return &ast.Node{Kind: ast.Null, Type: types.TypeInt, Pos: pos}, nil
	}

	var decls []*ast.Node
	for {
		t, err := p.pointerType(sharedBase)
		if err != nil {
			return nil, err
		}
		nameTok, err := p.expect(lexer.TokenIdentifier, "identifier")
		if err != nil {
			return nil, err
		}
		t, err = p.typeSuffix(t)
		if err != nil {
			return nil, err
		}

		v, err := p.ctx.DeclareLocal(nameTok.Lexeme, t, nameTok.Position)
		if err != nil {
			return nil, err
		}
		varNode := &ast.Node{Kind: ast.Var, Var: v, Pos: nameTok.Position}
		if err := ast.AddType(varNode); err != nil {
			return nil, err
		}

		if ok, err := p.match(lexer.TokenAssign); err != nil {
			return nil, err
		} else if ok {
			rhs, err := p.assign()
			if err != nil {
				return nil, err
			}
			assignNode, err := ast.NewAssign(varNode, rhs, nameTok.Position)
			if err != nil {
				return nil, err
			}
			decls = append(decls, assignNode)
		} else {
			decls = append(decls, varNode)
		}

		ok, err := p.match(lexer.TokenComma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}

	if len(decls) == 1 {
		return decls[0], nil
	}
	n := &ast.Node{Kind: ast.Suger, Children: decls, Pos: pos}
	return n, ast.AddType(n)
}

// assign = ternary ( ("=" | "+=" | "-=" | "*=" | "/=" | "%=") assign )?
//
// Compound assignment desugars to `lhs = lhs <op> rhs`, exactly as the
// original compiler's assign() does.
func (p *Parser) assign() (*ast.Node, error) {
	lhs, err := p.ternary()
	if err != nil {
		return nil, err
	}

	pos := p.cur.Position
	switch p.cur.Type {
	case lexer.TokenAssign:
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.assign()
		if err != nil {
			return nil, err
		}
		return ast.NewAssign(lhs, rhs, pos)

	case lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq, lexer.TokenSlashEq, lexer.TokenPercentEq:
		opTok := p.cur.Type
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.assign()
		if err != nil {
			return nil, err
		}
		combined, err := combine(opTok, lhs, rhs, pos)
		if err != nil {
			return nil, err
		}
		return ast.NewAssign(lhs, combined, pos)
	}

	return lhs, nil
}

func combine(op lexer.TokenType, lhs, rhs *ast.Node, pos lexer.Position) (*ast.Node, error) {
	switch op {
	case lexer.TokenPlusEq:
		return ast.NewAdd(lhs, rhs, pos)
	case lexer.TokenMinusEq:
		return ast.NewSub(lhs, rhs, pos)
	case lexer.TokenStarEq:
		return ast.NewMul(lhs, rhs, pos)
	case lexer.TokenSlashEq:
		return ast.NewDiv(lhs, rhs, pos)
	case lexer.TokenPercentEq:
		return ast.NewMod(lhs, rhs, pos)
	default:
		return nil, fmt.Errorf("%s: internal error: unhandled compound-assignment operator", pos)
	}
}

// ternary = logical ( "?" expr ":" ternary )?
func (p *Parser) ternary() (*ast.Node, error) {
	cond, err := p.logical()
	if err != nil {
		return nil, err
	}
	if !p.check(lexer.TokenQuestion) {
		return cond, nil
	}
	pos := p.cur.Position
	if err := p.advance(); err != nil {
		return nil, err
	}
	then, err := p.expr()
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(lexer.TokenColon, "':'"); err != nil {
		return nil, err
	}
	els, err := p.ternary()
	if err != nil {
		return nil, err
	}
	n := &ast.Node{Kind: ast.Ternary, Cond: cond, Then: then, Else: els, Pos: pos}
	return n, ast.AddType(n)
}

// logical = equality ( ("&&"|"||") equality )*
func (p *Parser) logical() (*ast.Node, error) {
	lhs, err := p.equality()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur.Position
		switch p.cur.Type {
		case lexer.TokenLogicalAnd:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.equality()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewBinop(ast.LogicalAnd, lhs, rhs, pos); err != nil {
				return nil, err
			}
		case lexer.TokenLogicalOr:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.equality()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewBinop(ast.LogicalOr, lhs, rhs, pos); err != nil {
				return nil, err
			}
		default:
			return lhs, nil
		}
	}
}

// equality = relational ( ("=="|"!=") relational )*
func (p *Parser) equality() (*ast.Node, error) {
	lhs, err := p.relational()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur.Position
		var kind ast.Kind
		switch p.cur.Type {
		case lexer.TokenEqual:
			kind = ast.Eq
		case lexer.TokenNotEqual:
			kind = ast.Ne
		default:
			return lhs, nil
		}
		if err := p.advance(); err != nil {
			return nil, err
		}
		rhs, err := p.relational()
		if err != nil {
			return nil, err
		}
		if lhs, err = ast.NewBinop(kind, lhs, rhs, pos); err != nil {
			return nil, err
		}
	}
}

// relational = add ( ("<"|"<="|">"|">=") add )*
//
// ">" and ">=" are implemented by swapping operand order into "<" and
// "<=", matching the original compiler's relational().
func (p *Parser) relational() (*ast.Node, error) {
	lhs, err := p.add()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur.Position
		switch p.cur.Type {
		case lexer.TokenLess:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.add()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewBinop(ast.Lt, lhs, rhs, pos); err != nil {
				return nil, err
			}
		case lexer.TokenLessEqual:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.add()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewBinop(ast.Le, lhs, rhs, pos); err != nil {
				return nil, err
			}
		case lexer.TokenGreater:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.add()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewBinop(ast.Lt, rhs, lhs, pos); err != nil {
				return nil, err
			}
		case lexer.TokenGreaterEqual:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.add()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewBinop(ast.Le, rhs, lhs, pos); err != nil {
				return nil, err
			}
		default:
			return lhs, nil
		}
	}
}

// add = mul ( ("+"|"-") mul )*
func (p *Parser) add() (*ast.Node, error) {
	lhs, err := p.mul()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur.Position
		switch p.cur.Type {
		case lexer.TokenPlus:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.mul()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewAdd(lhs, rhs, pos); err != nil {
				return nil, err
			}
		case lexer.TokenMinus:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.mul()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewSub(lhs, rhs, pos); err != nil {
				return nil, err
			}
		default:
			return lhs, nil
		}
	}
}

// mul = unary ( ("*"|"/"|"%") unary )*
func (p *Parser) mul() (*ast.Node, error) {
	lhs, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		pos := p.cur.Position
		switch p.cur.Type {
		case lexer.TokenStar:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.unary()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewMul(lhs, rhs, pos); err != nil {
				return nil, err
			}
		case lexer.TokenSlash:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.unary()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewDiv(lhs, rhs, pos); err != nil {
				return nil, err
			}
		case lexer.TokenPercent:
			if err := p.advance(); err != nil {
				return nil, err
			}
			rhs, err := p.unary()
			if err != nil {
				return nil, err
			}
			if lhs, err = ast.NewMod(lhs, rhs, pos); err != nil {
				return nil, err
			}
		default:
			return lhs, nil
		}
	}
}

// unary = ("+"|"-"|"*"|"&"|"!"|"sizeof"|"++"|"--") unary? | postfix ("++"|"--")?
func (p *Parser) unary() (*ast.Node, error) {
	pos := p.cur.Position

	switch p.cur.Type {
	case lexer.TokenPlus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		return p.unary()

	case lexer.TokenMinus:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return ast.NewSub(ast.NewNum(0, pos), operand, pos)

	case lexer.TokenStar:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return ast.NewDeref(operand, pos)

	case lexer.TokenAmp:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return ast.NewAddr(operand, pos)

	case lexer.TokenNot:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return ast.NewBinop(ast.LogicalNot, operand, nil, pos)

	case lexer.TokenTilde:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		n := &ast.Node{Kind: ast.BitNot, LHS: operand, Pos: pos}
		return n, ast.AddType(n)

	case lexer.TokenSizeof:
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.check(lexer.TokenLeftParen) && (p.checkPeek(lexer.TokenTypeKeyword) || p.checkPeek(lexer.TokenStruct)) {
			if err := p.advance(); err != nil {
				return nil, err
			}
			t, err := p.typeSpecifier()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
				return nil, err
			}
			return ast.NewNum(int64(t.Size), pos), nil
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return ast.NewNum(int64(operand.Type.Size), pos), nil

	case lexer.TokenInc:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return prefixStep(operand, 1, pos)

	case lexer.TokenDec:
		if err := p.advance(); err != nil {
			return nil, err
		}
		operand, err := p.unary()
		if err != nil {
			return nil, err
		}
		return prefixStep(operand, -1, pos)
	}

	node, err := p.postfix()
	if err != nil {
		return nil, err
	}

	switch p.cur.Type {
	case lexer.TokenInc:
		incPos := p.cur.Position
		if err := p.advance(); err != nil {
			return nil, err
		}
		return postfixStep(node, 1, incPos)
	case lexer.TokenDec:
		decPos := p.cur.Position
		if err := p.advance(); err != nil {
			return nil, err
		}
		return postfixStep(node, -1, decPos)
	}
	return node, nil
}

// prefixStep desugars "++x"/"--x" to "(x = x + 1)"/"(x = x - 1)".
func prefixStep(operand *ast.Node, delta int64, pos lexer.Position) (*ast.Node, error) {
	stepped, err := stepBy(operand, delta, pos)
	if err != nil {
		return nil, err
	}
	return ast.NewAssign(operand, stepped, pos)
}

// postfixStep desugars "x++"/"x--" to "((x = x + 1) - 1)"/"((x = x - 1)
// + 1)" so the expression's value is x's value *before* the step.
func postfixStep(operand *ast.Node, delta int64, pos lexer.Position) (*ast.Node, error) {
	assigned, err := prefixStep(operand, delta, pos)
	if err != nil {
		return nil, err
	}
	return stepBy(assigned, -delta, pos)
}

func stepBy(operand *ast.Node, delta int64, pos lexer.Position) (*ast.Node, error) {
	if delta >= 0 {
		return ast.NewAdd(operand, ast.NewNum(delta, pos), pos)
	}
	return ast.NewSub(operand, ast.NewNum(-delta, pos), pos)
}

// postfix = primary ( "[" expr "]" | "." ident | "->" ident )*
func (p *Parser) postfix() (*ast.Node, error) {
	node, err := p.primary()
	if err != nil {
		return nil, err
	}

	for {
		pos := p.cur.Position
		switch p.cur.Type {
		case lexer.TokenLeftBracket:
			if err := p.advance(); err != nil {
				return nil, err
			}
			index, err := p.expr()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRightBracket, "']'"); err != nil {
				return nil, err
			}
			if node, err = ast.NewSubscript(node, index, pos); err != nil {
				return nil, err
			}

		case lexer.TokenDot:
			if err := p.advance(); err != nil {
				return nil, err
			}
			nameTok, err := p.expect(lexer.TokenIdentifier, "member name")
			if err != nil {
				return nil, err
			}
			if node, err = p.structMemberAccess(node, nameTok); err != nil {
				return nil, err
			}

		case lexer.TokenArrow:
			if err := p.advance(); err != nil {
				return nil, err
			}
			nameTok, err := p.expect(lexer.TokenIdentifier, "member name")
			if err != nil {
				return nil, err
			}
			deref, err := ast.NewDeref(node, pos)
			if err != nil {
				return nil, err
			}
			if node, err = p.structMemberAccess(deref, nameTok); err != nil {
				return nil, err
			}

		default:
			return node, nil
		}
	}
}

// structMemberAccess resolves base.name against base's struct type,
// storing the resolved byte offset on the node the way the original
// compiler's postfix() does.
func (p *Parser) structMemberAccess(base *ast.Node, nameTok lexer.Token) (*ast.Node, error) {
	if base.Type.Kind != types.Struct {
		return nil, fmt.Errorf("%s: %s is not a struct", nameTok.Position, base.Type)
	}
	member := base.Type.LookupMember(nameTok.Lexeme)
	if member == nil {
		return nil, fmt.Errorf("%s: no member %q on %s", nameTok.Position, nameTok.Lexeme, base.Type)
	}
	n := &ast.Node{
		Kind: ast.StructMember,
		LHS:  base,
		Val:  member.Offset,
		Type: member.Type,
		Pos:  nameTok.Position,
	}
	return n, nil
}

// primary = "(" expr ")" | num | string | ident ( "(" args? ")" )?
func (p *Parser) primary() (*ast.Node, error) {
	pos := p.cur.Position

	switch p.cur.Type {
	case lexer.TokenLeftParen:
		if err := p.advance(); err != nil {
			return nil, err
		}
		// GNU statement-expression: ({ ...; expr; })
		if p.check(lexer.TokenLeftBrace) {
			block, err := p.compoundStmt()
			if err != nil {
				return nil, err
			}
			if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
				return nil, err
			}
			n := &ast.Node{Kind: ast.StmtExpr, Children: block.Children, Pos: pos}
			return n, ast.AddType(n)
		}
		inner, err := p.expr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
			return nil, err
		}
		return inner, nil

	case lexer.TokenNumber:
		v := p.cur.NumValue
		if err := p.advance(); err != nil {
			return nil, err
		}
		return ast.NewNum(v, pos), nil

	case lexer.TokenString:
		idx := p.cur.StrLiteralIndex
		if err := p.advance(); err != nil {
			return nil, err
		}
		n := &ast.Node{Kind: ast.String, StrIndex: idx, Pos: pos}
		return n, ast.AddType(n)

	case lexer.TokenIdentifier:
		name := p.cur.Lexeme
		if err := p.advance(); err != nil {
			return nil, err
		}
		if p.check(lexer.TokenLeftParen) {
			return p.funcall(name, pos)
		}

		v := p.ctx.LookupVar(name)
		if v == nil {
			return nil, fmt.Errorf("%s: undeclared identifier %q", pos, name)
		}
		n := &ast.Node{Kind: ast.Var, Var: v, Pos: pos}
		return n, ast.AddType(n)

	default:
		if p.check(lexer.TokenEOF) {
			return nil, p.errorf("unexpected end of input")
		}
		return nil, p.errorf("unexpected token %s", p.cur.String())
	}
}

// funcall = ident "(" args? ")"
func (p *Parser) funcall(name string, pos lexer.Position) (*ast.Node, error) {
	if _, err := p.expect(lexer.TokenLeftParen, "'('"); err != nil {
		return nil, err
	}

	var args []*ast.Node
	for !p.check(lexer.TokenRightParen) {
		arg, err := p.assign()
		if err != nil {
			return nil, err
		}
		args = append(args, arg)

		ok, err := p.match(lexer.TokenComma)
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
	}
	if _, err := p.expect(lexer.TokenRightParen, "')'"); err != nil {
		return nil, err
	}

	n := &ast.Node{Kind: ast.Call, FnName: name, Args: args, Pos: pos}
	if fn, ok := p.ctx.LookupFunction(name); ok {
		n.Type = fn.ReturnType
	}
	return n, ast.AddType(n)
}
