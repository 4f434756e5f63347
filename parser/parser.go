// Package parser implements a single-pass recursive-descent parser and code
// generator for B: it consumes a token stream from package lexer and emits
// stack-machine code fragments (package ir) directly, threading symbols
// through package symtab as it goes. There is no separate AST stage.
package parser

import (
	"github.com/jcorbin/bcc/ir"
	"github.com/jcorbin/bcc/lexer"
	"github.com/jcorbin/bcc/symtab"
)

const (
	maxBacktok  = 2  // widest pushback the grammar's label/expression ambiguity needs
	maxCallArgs = 64 // arguments beyond this still parse, but are diagnosed
)

// valueCategory tracks whether an expression's code so far leaves an
// address (LVAL, needing a DEREF to read) or a value (RVAL) on the stack.
type valueCategory int

const (
	lval valueCategory = iota
	rval
)

// Parser drives the grammar over one translation unit, emitting into a
// symtab.Table it owns the lifetime of.
type Parser struct {
	lx   *lexer.Lexer
	syms *symtab.Table

	cur     lexer.Token
	backtok []lexer.Token // pushback stack, at most maxBacktok deep

	retLabel  symtab.SymID
	switches  []*switchCtx
	autoCount int // running frame-slot count for the function being parsed

	Errf   func(line int, format string, args ...interface{})
	failed bool
}

type switchCtx struct {
	cases []caseEntry
}

type caseEntry struct {
	val   int
	label symtab.SymID
}

// NewFromLexer creates a parser consuming lx's token stream into syms.
func NewFromLexer(lx *lexer.Lexer, syms *symtab.Table) *Parser {
	p := &Parser{lx: lx, syms: syms}
	lx.Errf = p.errf
	p.next()
	return p
}

func (p *Parser) errf(line int, format string, args ...interface{}) {
	p.failed = true
	if p.Errf != nil {
		p.Errf(line, format, args...)
	}
}

// Failed reports whether any diagnostic has been emitted so far.
func (p *Parser) Failed() bool { return p.failed }

// next advances to the next token, consuming the pushback stack first.
func (p *Parser) next() {
	if n := len(p.backtok); n > 0 {
		p.cur = p.backtok[n-1]
		p.backtok = p.backtok[:n-1]
		return
	}
	p.cur = p.lx.Next()
}

// pushback re-queues tok to be returned by the next call to next; at most
// maxBacktok tokens may be queued (the grammar only ever needs two, to
// resolve "name :" (a label) from "name op-start-of-expression").
func (p *Parser) pushback(tok lexer.Token) {
	if len(p.backtok) < maxBacktok {
		p.backtok = append(p.backtok, tok)
	}
}

// Program parses an entire translation unit, returning the populated symbol
// table.
func Program(lx *lexer.Lexer, errf func(line int, format string, args ...interface{})) *symtab.Table {
	syms := symtab.New()
	p := NewFromLexer(lx, syms)
	p.Errf = errf
	p.program()
	return syms
}

func (p *Parser) program() {
	for p.cur.Kind != lexer.EOF {
		p.definition()
	}
}

// definition parses one top-level "name ( ... ) { ... }" function or
// "name [ivals];" data definition.
func (p *Parser) definition() {
	if p.cur.Kind != lexer.Name {
		p.errf(p.cur.Line, "name expected")
		p.next()
		return
	}

	id := p.syms.Global.Get(p.cur.Name)
	sym := p.syms.Sym(id)
	if sym.Class == symtab.NEW {
		sym.Class = symtab.EXTERN
	} else {
		p.errf(p.cur.Line, "%q is previously defined", p.cur.Name)
	}

	p.next()

	localScope := p.syms.NewFuncScope()
	sym = p.syms.Sym(id) // re-fetch: NewFuncScope cannot reallocate syms, but be defensive
	sym.Local = localScope
	p.syms.EnterFunc(localScope)

	if p.cur.Kind == lexer.LParen {
		sym.Type = symtab.FUNC
		p.next()
		p.funcdef(id)
	} else {
		p.syms.ExitFunc()
		p.datadef(id)
	}
}

// funcdef parses a function's parameter list and body, lowering it into
// sym's code fragment: ENTER placeholder, body, auto-vector initializers
// spliced back in right after ENTER once the frame size is known, then the
// shared epilogue (push 0, the return label's definition, pop-into-T,
// LEAVE, push T, RET).
func (p *Parser) funcdef(id symtab.SymID) {
	sym := p.syms.Sym(id)
	frag := &ir.Fragment{}
	sym.Code = frag

	savedAuto := p.nextAuto()
	p.resetAuto()
	p.syms.ResetLabelPC()

	savedRet := p.retLabel
	p.retLabel = p.syms.MkLabel()

	if p.cur.Kind == lexer.RParen {
		p.next()
	} else {
		p.funcparms()
	}

	enterAt := frag.EmitN(ir.ENTER, 0)

	p.statement(frag)

	avinit := &ir.Fragment{}
	for _, lid := range p.syms.Local.Names() {
		lsym := p.syms.Sym(lid)
		if lsym.Type == symtab.LABEL && lsym.Forward {
			p.errf(p.cur.Line, "%q: goto target was never defined", lsym.Name)
		}
		if lsym.Class == symtab.AUTO && lsym.Type == symtab.VECTOR {
			avinit.EmitN(ir.AVINIT, lsym.StackOffset)
		}
	}
	frag.SpliceAfter(enterAt, avinit)
	frag.Patch(enterAt, p.nextAuto())

	frag.EmitConstInt(0)
	frag.EmitLabel(p.retLabel)
	frag.Emit(ir.POPT)
	frag.EmitN(ir.LEAVE, p.nextAuto())
	frag.Emit(ir.PUSHT)
	frag.Emit(ir.RET)

	p.syms.ExitFunc()
	p.retLabel = savedRet
	p.restoreAuto(savedAuto)
}

// funcparms parses the "(a, b, c)" parameter list, assigning each a
// positive frame offset starting at 0 in declaration order.
func (p *Parser) funcparms() {
	nextArg := 0
	for {
		if p.cur.Kind != lexer.Name {
			p.next()
			p.errf(p.cur.Line, "name expected")
			return
		}

		id := p.syms.Local.Get(p.cur.Name)
		sym := p.syms.Sym(id)
		p.next()

		if sym.Class == symtab.NEW {
			sym.Class = symtab.AUTO
			sym.StackOffset = nextArg
			nextArg++
		} else {
			p.errf(p.cur.Line, "%q is multiply defined", sym.Name)
		}

		if p.cur.Kind == lexer.RParen {
			break
		} else if p.cur.Kind != lexer.Comma {
			p.errf(p.cur.Line, "')' or ',' expected")
			break
		}
		p.next()
	}
	p.next()
}

// statement parses one statement, appending its code onto frag.
func (p *Parser) statement(frag *ir.Fragment) {
	switch p.cur.Kind {
	case lexer.Semi:
		p.next()
		return

	case lexer.LBrace:
		p.next()
		for p.cur.Kind != lexer.RBrace {
			if p.cur.Kind == lexer.EOF {
				p.errf(p.cur.Line, "'}' expected")
				return
			}
			p.statement(frag)
		}
		p.next()
		return

	case lexer.Auto:
		p.next()
		p.stmtAuto()
		p.statement(frag)
		return

	case lexer.Extrn:
		p.next()
		p.stmtExtrn()
		p.statement(frag)
		return

	case lexer.Case:
		p.next()
		p.stmtCase(frag)
		return

	case lexer.If:
		p.next()
		p.stmtIf(frag)
		return

	case lexer.While:
		p.next()
		p.stmtWhile(frag)
		return

	case lexer.Switch:
		p.next()
		p.stmtSwitch(frag)
		return

	case lexer.Goto:
		p.next()
		p.stmtGoto(frag)
		return

	case lexer.Return:
		p.next()
		p.stmtReturn(frag)
		return

	case lexer.Name:
		// Ambiguous: "name:" is a label, anything else starts an
		// expression-statement. Peek one token to resolve it, pushing
		// both back if it turns out not to be a label.
		saved := p.cur
		p.next()
		if p.cur.Kind == lexer.Colon {
			p.stmtLabel(frag, p.cur.Line, saved.Name)
			p.next()
			return
		}
		p.pushback(p.cur)
		p.pushback(saved)
		p.next()
	}

	// expression-statement: evaluate and discard. POP removes one stack
	// slot regardless of whether it held an address or a value, so no
	// torval conversion is needed before discarding it.
	p.expr(frag)
	frag.Emit(ir.POP)
	if p.cur.Kind == lexer.Semi {
		p.next()
	} else {
		p.errf(p.cur.Line, "';' expected")
	}
}

func (p *Parser) stmtAuto() {
	for {
		if p.cur.Kind != lexer.Name {
			p.errf(p.cur.Line, "name expected")
			p.next()
			return
		}

		id := p.syms.Local.Get(p.cur.Name)
		sym := p.syms.Sym(id)
		if sym.Class != symtab.NEW {
			p.errf(p.cur.Line, "%q is already defined", sym.Name)
		} else {
			sym.Class = symtab.AUTO
			sym.Type = symtab.SIMPLE
		}
		p.next()

		if p.cur.Kind == lexer.IntCon {
			sym.Type = symtab.VECTOR
			sym.VecSize = p.cur.Int
			p.bumpAuto(1 + sym.VecSize)
			sym.StackOffset = -p.nextAuto()
			p.next()
		} else {
			p.bumpAuto(1)
			sym.StackOffset = -p.nextAuto()
		}

		switch p.cur.Kind {
		case lexer.Comma:
			p.next()
		case lexer.Semi:
			p.next()
			return
		default:
			p.errf(p.cur.Line, "',' or ';' expected")
			p.next()
			return
		}
	}
}

func (p *Parser) stmtExtrn() {
	for {
		if p.cur.Kind != lexer.Name {
			p.errf(p.cur.Line, "name expected")
			p.next()
			return
		}

		id := p.syms.Local.Get(p.cur.Name)
		sym := p.syms.Sym(id)
		if sym.Class != symtab.NEW && sym.Class != symtab.EXTERN {
			p.errf(p.cur.Line, "%q is already defined", sym.Name)
		} else {
			sym.Class = symtab.EXTERN
		}
		p.next()

		switch p.cur.Kind {
		case lexer.Comma:
			p.next()
		case lexer.Semi:
			p.next()
			return
		default:
			p.errf(p.cur.Line, "',' or ';' expected")
			p.next()
			return
		}
	}
}

func (p *Parser) stmtLabel(frag *ir.Fragment, line int, name string) {
	id := p.syms.Local.Get(name)
	sym := p.syms.Sym(id)
	switch {
	case sym.Class == symtab.NEW:
		sym.Class = symtab.INTERNAL
		sym.Type = symtab.LABEL
		sym.LabelPC = p.syms.NextLabelPC()
	case sym.Class == symtab.INTERNAL && sym.Type == symtab.LABEL:
		sym.Forward = false
	default:
		p.errf(line, "%q is already defined", name)
	}
	frag.EmitLabel(id)
}

func (p *Parser) stmtGoto(frag *ir.Fragment) {
	if p.cur.Kind != lexer.Name {
		p.errf(p.cur.Line, "name expected")
		p.next()
		return
	}

	id := p.syms.Local.Get(p.cur.Name)
	sym := p.syms.Sym(id)
	switch sym.Class {
	case symtab.INTERNAL:
	case symtab.NEW:
		sym.Class = symtab.INTERNAL
		sym.Type = symtab.LABEL
		sym.Forward = true
		sym.LabelPC = p.syms.NextLabelPC()
	default:
		p.errf(p.cur.Line, "%q is not a label", p.cur.Name)
	}

	frag.EmitBranch(ir.JMP, id)

	p.next()
	if p.cur.Kind != lexer.Semi {
		p.errf(p.cur.Line, "';' expected")
	}
	p.next()
}

func (p *Parser) stmtIf(frag *ir.Fragment) {
	elsePart := p.syms.MkLabel()
	donePart := p.syms.MkLabel()

	if p.cur.Kind != lexer.LParen {
		p.errf(p.cur.Line, "'(' expected")
		return
	}
	p.next()

	if p.expr(frag) == lval {
		frag.Emit(ir.DEREF)
	}

	if p.cur.Kind != lexer.RParen {
		p.errf(p.cur.Line, "')' expected")
		return
	}
	p.next()

	frag.EmitBranch(ir.BZ, elsePart)
	p.statement(frag)

	if p.cur.Kind != lexer.Else {
		frag.EmitLabel(elsePart)
		return
	}
	p.next()
	frag.EmitBranch(ir.JMP, donePart)
	frag.EmitLabel(elsePart)
	p.statement(frag)
	frag.EmitLabel(donePart)
}

func (p *Parser) stmtWhile(frag *ir.Fragment) {
	top := p.syms.MkLabel()
	bottom := p.syms.MkLabel()

	frag.EmitLabel(top)

	if p.cur.Kind != lexer.LParen {
		p.errf(p.cur.Line, "'(' expected")
		return
	}
	p.next()

	if p.expr(frag) == lval {
		frag.Emit(ir.DEREF)
	}

	if p.cur.Kind != lexer.RParen {
		p.errf(p.cur.Line, "')' expected")
		return
	}
	p.next()

	frag.EmitBranch(ir.BZ, bottom)
	p.statement(frag)
	frag.EmitBranch(ir.JMP, top)
	frag.EmitLabel(bottom)
}

// stmtSwitch parses a switch statement. Unlike C, B requires no parens
// around the discriminant. The case table is built up as its own fragment
// while the body is parsed, then spliced in right after the point where the
// discriminant was evaluated.
func (p *Parser) stmtSwitch(frag *ir.Fragment) {
	sw := &switchCtx{}
	p.switches = append(p.switches, sw)

	nomatch := p.syms.MkLabel()

	if p.expr(frag) == lval {
		frag.Emit(ir.DEREF)
	}

	here := frag.Len() - 1

	p.statement(frag)

	frag.EmitLabel(nomatch)
	p.switches = p.switches[:len(p.switches)-1]

	cases := &ir.Fragment{}
	for _, c := range sw.cases {
		cases.EmitCase(c.val, c.label)
	}
	cases.Emit(ir.POP)
	cases.EmitBranch(ir.JMP, nomatch)

	frag.SpliceAfter(here, cases)
}

func (p *Parser) stmtCase(frag *ir.Fragment) {
	if len(p.switches) == 0 {
		p.errf(p.cur.Line, "case statement outside of switch")
	}

	if p.cur.Kind != lexer.IntCon {
		p.errf(p.cur.Line, "integer constant expected")
		p.next()
		return
	}

	label := p.syms.MkLabel()
	if len(p.switches) > 0 {
		sw := p.switches[len(p.switches)-1]
		sw.cases = append(sw.cases, caseEntry{val: p.cur.Int, label: label})
	}
	frag.EmitLabel(label)

	p.next()
	if p.cur.Kind != lexer.Colon {
		p.errf(p.cur.Line, "':' expected")
	}
	p.next()
}

func (p *Parser) stmtReturn(frag *ir.Fragment) {
	if p.cur.Kind == lexer.Semi {
		frag.EmitConstInt(0)
		frag.EmitBranch(ir.JMP, p.retLabel)
		p.next()
		return
	}

	if p.cur.Kind != lexer.LParen {
		p.errf(p.cur.Line, "'(' or ';' expected")
		p.next()
		return
	}
	p.next()

	if p.expr(frag) == lval {
		frag.Emit(ir.DEREF)
	}

	frag.EmitBranch(ir.JMP, p.retLabel)

	if p.cur.Kind != lexer.RParen {
		p.errf(p.cur.Line, "')' expected")
		p.next()
		return
	}
	p.next()

	if p.cur.Kind != lexer.Semi {
		p.errf(p.cur.Line, "';' expected")
	}
	p.next()
}

// datadef parses a top-level data definition: an optional "[size]" vector
// marker followed by a comma-separated list of initializers, deferring
// emission to serialization time by stashing the Ivals on sym and linking
// sym onto the table's ordered data chain.
func (p *Parser) datadef(id symtab.SymID) {
	sym := p.syms.Sym(id)
	sym.Type = symtab.SIMPLE

	if p.cur.Kind == lexer.LBracket {
		sym.Type = symtab.VECTOR
		p.next()

		if p.cur.Kind != lexer.RBracket && p.cur.Kind != lexer.IntCon {
			p.errf(p.cur.Line, "']' or integer constant expected")
			p.next()
			return
		}
		if p.cur.Kind == lexer.IntCon {
			sym.VecSize = p.cur.Int
			p.next()
		}
		if p.cur.Kind != lexer.RBracket {
			p.errf(p.cur.Line, "']' expected")
			p.next()
			return
		}
		p.next()
	}

	emitted := 0
	for p.cur.Kind != lexer.Semi {
		switch p.cur.Kind {
		case lexer.Name:
			refID, ok := p.syms.Find(p.cur.Name)
			if !ok {
				p.errf(p.cur.Line, "%q is not defined", p.cur.Name)
			} else {
				sym.Ivals = append(sym.Ivals, ir.Ival{Kind: ir.IvalSym, Sym: ir.SymRef(refID)})
			}
		case lexer.IntCon:
			sym.Ivals = append(sym.Ivals, ir.Ival{Kind: ir.IvalInt, Int: p.cur.Int})
		case lexer.StrCon:
			sym.Ivals = append(sym.Ivals, ir.Ival{Kind: ir.IvalStr, Str: p.cur.Str})
		default:
			p.errf(p.cur.Line, "name or constant expected")
			p.next()
			return
		}

		p.next()
		emitted++

		if p.cur.Kind == lexer.Semi {
			break
		} else if p.cur.Kind != lexer.Comma {
			p.errf(p.cur.Line, "';' or ',' expected")
			break
		}
		p.next()
	}
	p.next()

	if sym.Type == symtab.SIMPLE && emitted == 0 {
		sym.Ivals = append(sym.Ivals, ir.Ival{Kind: ir.IvalInt, Int: 0})
	}
	if sym.Type == symtab.VECTOR && emitted > sym.VecSize {
		sym.VecSize = emitted
	}

	p.syms.AddData(id)
}

// torval appends a DEREF, converting an lvalue address into the rvalue at
// that address.
func torval(frag *ir.Fragment, kind valueCategory) valueCategory {
	if kind == lval {
		frag.Emit(ir.DEREF)
	}
	return rval
}

const lvalExpected = "lvalue expected"

// expr parses a full expression (the lowest grammar precedence level).
func (p *Parser) expr(frag *ir.Fragment) valueCategory {
	return p.eassign(frag)
}

// ecall parses a call's argument list (the parens having already been
// consumed) and returns the number of arguments emitted, each as a
// fully-converted rvalue. The arguments are appended to frag in reverse
// source order (last argument first), so that arg0 ends up nearest the top
// of the stack, as CALL's stack effect expects.
func (p *Parser) ecall(frag *ir.Fragment) int {
	if p.cur.Kind == lexer.RParen {
		p.next()
		return 0
	}

	var args []*ir.Fragment
	var scratch ir.Fragment
	warned := false
	for {
		// Past maxCallArgs, every further argument is parsed into a
		// scratch fragment that gets overwritten next iteration and is
		// never appended to args or frag: its code is discarded outright,
		// not merely left uncounted, so the stack stays balanced with
		// whatever the caller's DUPN/POPN accounts for. Mirrors ecall()
		// in original_source/compiler/bc.c, which redirects overflow
		// arguments into a throwaway struct codefrag for the same reason.
		var dst *ir.Fragment
		if len(args) >= maxCallArgs {
			if !warned {
				p.errf(p.cur.Line, "too many function call args (max %d)", maxCallArgs)
				warned = true
			}
			scratch = ir.Fragment{}
			dst = &scratch
		} else {
			dst = &ir.Fragment{}
			args = append(args, dst)
		}
		if p.expr(dst) == lval {
			dst.Emit(ir.DEREF)
		}

		switch p.cur.Kind {
		case lexer.RParen:
			p.next()
			goto done
		case lexer.Comma:
			p.next()
		default:
			p.errf(p.cur.Line, "')' or ',' expected")
			p.next()
			goto done
		}
	}
done:
	n := len(args)
	for i := len(args) - 1; i >= 0; i-- {
		frag.Concat(args[i])
	}
	return n
}

func (p *Parser) eprimary(frag *ir.Fragment) valueCategory {
	var kind valueCategory

	switch p.cur.Kind {
	case lexer.Name:
		id, ok := p.syms.Find(p.cur.Name)
		if ok {
			sym := p.syms.Sym(id)
			frag.EmitSym(ir.SymRef(id), sym.Class == symtab.AUTO)
			p.next()
			kind = lval
		} else {
			p.errf(p.cur.Line, "%q is not defined", p.cur.Name)
			p.next()
		}

	case lexer.IntCon:
		frag.EmitConstInt(p.cur.Int)
		p.next()
		kind = rval

	case lexer.StrCon:
		frag.EmitConstStr(p.cur.Str)
		p.next()
		kind = rval

	case lexer.LParen:
		p.next()
		kind = p.expr(frag)
		if p.cur.Kind == lexer.RParen {
			p.next()
		} else {
			p.errf(p.cur.Line, "')' expected")
		}

	default:
		p.errf(p.cur.Line, "expression expected")
		p.next()
	}

	for {
		switch p.cur.Kind {
		case lexer.LParen:
			p.next()
			args := p.ecall(frag)
			frag.EmitN(ir.DUPN, args)
			kind = torval(frag, kind)
			frag.Emit(ir.CALL)
			frag.Emit(ir.POPT)
			frag.EmitN(ir.POPN, args+1)
			frag.Emit(ir.PUSHT)
			kind = rval

		case lexer.LBracket:
			p.next()
			kind = torval(frag, kind)
			if p.expr(frag) == lval {
				frag.Emit(ir.DEREF)
			}
			if p.cur.Kind == lexer.RBracket {
				p.next()
			} else {
				p.errf(p.cur.Line, "']' expected")
			}
			frag.Emit(ir.ADD)
			kind = lval

		case lexer.Incr, lexer.Decr:
			op := ir.ADD
			if p.cur.Kind == lexer.Decr {
				op = ir.SUB
			}
			if kind != lval {
				p.errf(p.cur.Line, lvalExpected)
			} else {
				frag.Emit(ir.DUP)
				frag.Emit(ir.DEREF)
				frag.Emit(ir.DUP)
				frag.Emit(ir.ROT)
				frag.EmitConstInt(1)
				frag.Emit(op)
				frag.Emit(ir.STORE)
			}
			kind = rval
			p.next()

		default:
			return kind
		}
	}
}

func (p *Parser) eunary(frag *ir.Fragment) valueCategory {
	switch p.cur.Kind {
	case lexer.Times, lexer.And, lexer.Minus, lexer.Not, lexer.Incr, lexer.Decr:
		ttype := p.cur.Kind
		p.next()
		kind := p.eunary(frag)

		switch ttype {
		case lexer.Times: // dereference
			kind = torval(frag, kind)
			kind = lval

		case lexer.And: // address-of
			if kind == rval {
				p.errf(p.cur.Line, lvalExpected)
			} else {
				kind = rval
			}

		case lexer.Minus, lexer.Not:
			if kind == lval {
				frag.Emit(ir.DEREF)
				kind = rval
			}
			if ttype == lexer.Minus {
				frag.Emit(ir.NEG)
			} else {
				frag.Emit(ir.NOT)
			}

		case lexer.Incr, lexer.Decr:
			if kind == lval {
				frag.Emit(ir.DUP)
				frag.Emit(ir.DEREF)
				frag.EmitConstInt(1)
				if ttype == lexer.Incr {
					frag.Emit(ir.ADD)
				} else {
					frag.Emit(ir.SUB)
				}
				frag.Emit(ir.DUP)
				frag.Emit(ir.ROT)
				frag.Emit(ir.STORE)
				kind = rval
			} else {
				p.errf(p.cur.Line, lvalExpected)
			}
		}

		return kind
	}

	return p.eprimary(frag)
}

func (p *Parser) emul(frag *ir.Fragment) valueCategory {
	kind := p.eunary(frag)
	for {
		var op ir.Op
		switch p.cur.Kind {
		case lexer.Times:
			op = ir.MUL
		case lexer.Div:
			op = ir.DIV
		case lexer.Mod:
			op = ir.MOD
		default:
			return kind
		}
		kind = torval(frag, kind)
		p.next()
		if p.eunary(frag) == lval {
			frag.Emit(ir.DEREF)
		}
		frag.Emit(op)
		kind = rval
	}
}

func (p *Parser) eadd(frag *ir.Fragment) valueCategory {
	kind := p.emul(frag)
	for {
		var op ir.Op
		switch p.cur.Kind {
		case lexer.Plus:
			op = ir.ADD
		case lexer.Minus:
			op = ir.SUB
		default:
			return kind
		}
		kind = torval(frag, kind)
		p.next()
		if p.emul(frag) == lval {
			frag.Emit(ir.DEREF)
		}
		frag.Emit(op)
		kind = rval
	}
}

func (p *Parser) eshift(frag *ir.Fragment) valueCategory {
	kind := p.eadd(frag)
	for {
		var op ir.Op
		switch p.cur.Kind {
		case lexer.Shl:
			op = ir.SHL
		case lexer.Shr:
			op = ir.SHR
		default:
			return kind
		}
		kind = torval(frag, kind)
		p.next()
		if p.eadd(frag) == lval {
			frag.Emit(ir.DEREF)
		}
		frag.Emit(op)
		kind = rval
	}
}

func (p *Parser) erel(frag *ir.Fragment) valueCategory {
	kind := p.eshift(frag)
	var op ir.Op
	switch p.cur.Kind {
	case lexer.Gt:
		op = ir.GT
	case lexer.Ge:
		op = ir.GE
	case lexer.Lt:
		op = ir.LT
	case lexer.Le:
		op = ir.LE
	default:
		return kind
	}
	kind = torval(frag, kind)
	p.next()
	if p.eshift(frag) == lval {
		frag.Emit(ir.DEREF)
	}
	frag.Emit(op)
	return rval
}

func (p *Parser) eeq(frag *ir.Fragment) valueCategory {
	kind := p.erel(frag)
	var op ir.Op
	switch p.cur.Kind {
	case lexer.Eq:
		op = ir.EQ
	case lexer.Ne:
		op = ir.NE
	default:
		return kind
	}
	kind = torval(frag, kind)
	p.next()
	if p.erel(frag) == lval {
		frag.Emit(ir.DEREF)
	}
	frag.Emit(op)
	return rval
}

func (p *Parser) eand(frag *ir.Fragment) valueCategory {
	kind := p.eeq(frag)
	for p.cur.Kind == lexer.And {
		kind = torval(frag, kind)
		p.next()
		if p.eeq(frag) == lval {
			frag.Emit(ir.DEREF)
		}
		frag.Emit(ir.AND)
	}
	return kind
}

func (p *Parser) eor(frag *ir.Fragment) valueCategory {
	kind := p.eand(frag)
	for p.cur.Kind == lexer.Or {
		kind = torval(frag, kind)
		p.next()
		if p.eand(frag) == lval {
			frag.Emit(ir.DEREF)
		}
		frag.Emit(ir.OR)
	}
	return kind
}

func (p *Parser) econd(frag *ir.Fragment) valueCategory {
	kind := p.eor(frag)
	if p.cur.Kind != lexer.Quest {
		return kind
	}

	skip := p.syms.MkLabel()
	done := p.syms.MkLabel()

	kind = torval(frag, kind)
	p.next()

	frag.EmitBranch(ir.BZ, skip)
	if p.econd(frag) == lval {
		frag.Emit(ir.DEREF)
	}
	frag.EmitBranch(ir.JMP, done)
	frag.EmitLabel(skip)

	if p.cur.Kind == lexer.Colon {
		p.next()
		if p.econd(frag) == lval {
			frag.Emit(ir.DEREF)
		}
		frag.EmitLabel(done)
	} else {
		p.errf(p.cur.Line, "':' expected")
	}

	return rval
}

// assignBinOp maps a compound-assignment token to the binary opcode it
// applies before storing, per the original compiler's assneqs table.
var assignBinOp = map[lexer.Kind]ir.Op{
	lexer.AssignPlus:  ir.ADD,
	lexer.AssignMinus: ir.SUB,
	lexer.AssignAnd:   ir.AND,
	lexer.AssignOr:    ir.OR,
	lexer.AssignEq:    ir.EQ,
	lexer.AssignNe:    ir.NE,
	lexer.AssignLt:    ir.LT,
	lexer.AssignLe:    ir.LE,
	lexer.AssignGt:    ir.GT,
	lexer.AssignGe:    ir.GE,
	lexer.AssignShl:   ir.SHL,
	lexer.AssignShr:   ir.SHR,
	lexer.AssignMod:   ir.MOD,
	lexer.AssignTimes: ir.MUL,
	lexer.AssignDiv:   ir.DIV,
}

func isAssignOp(k lexer.Kind) bool {
	if k == lexer.Assign {
		return true
	}
	_, ok := assignBinOp[k]
	return ok
}

// eassign parses a right-associative assignment, "lval = expr" or
// "lval =op expr" where op is applied to the current and new values before
// storing. The result of an assignment is the stored value, left as an
// rvalue.
func (p *Parser) eassign(frag *ir.Fragment) valueCategory {
	kind := p.econd(frag)

	if !isAssignOp(p.cur.Kind) {
		return kind
	}

	if kind != lval {
		p.errf(p.cur.Line, lvalExpected)
	}
	tt := p.cur.Kind
	p.next()

	if tt != lexer.Assign {
		frag.Emit(ir.DUP) // lval lval
		frag.Emit(ir.DEREF) // lval rval-left
	}

	if p.eassign(frag) == lval {
		frag.Emit(ir.DEREF)
	}

	if tt != lexer.Assign {
		op, ok := assignBinOp[tt]
		if !ok {
			p.errf(p.cur.Line, "internal compiler error: unmapped assignment operator")
			op = ir.ADD
		}
		frag.Emit(op)
	}

	frag.Emit(ir.DUP)
	frag.Emit(ir.ROT)
	frag.Emit(ir.STORE)

	return rval
}

// auto-frame bookkeeping: nextAuto tracks the running count of frame slots
// consumed by AUTO declarations in the function currently being parsed.
func (p *Parser) nextAuto() int     { return p.autoCount }
func (p *Parser) resetAuto()        { p.autoCount = 0 }
func (p *Parser) bumpAuto(n int)    { p.autoCount += n }
func (p *Parser) restoreAuto(n int) { p.autoCount = n }
