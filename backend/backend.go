// Package backend consumes an intermediate file (package internal/irfile)
// and emits pseudo-assembly text: one line per opcode, naming externs and
// frame slots, with no instruction selection or register allocation. It is
// a format consumer only, proving the wire format round-trips to something
// a human (or, eventually, a real target-specific back end) can read.
package backend

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jcorbin/bcc/internal/irfile"
	"github.com/jcorbin/bcc/ir"
)

// mnemonic is a dense, opcode-indexed table of assembly mnemonics, in the
// same spirit as the front end's own opcode-name table: a plain array
// indexed by opcode byte rather than a map.
var mnemonic = [...]string{
	ir.NAMDEF: "label",
	ir.JMP:    "jmp",
	ir.BZ:     "bz",
	ir.CASE:   "case",
	ir.POP:    "pop",
	ir.POPT:   "popt",
	ir.PUSHT:  "pusht",
	ir.POPN:   "popn",
	ir.DUP:    "dup",
	ir.DUPN:   "dupn",
	ir.ROT:    "rot",
	ir.PSHCON: "push",
	ir.PSHSYM: "push",
	ir.DEREF:  "deref",
	ir.STORE:  "store",
	ir.CALL:   "call",
	ir.ENTER:  "enter",
	ir.LEAVE:  "leave",
	ir.RET:    "ret",
	ir.AVINIT: "avinit",
	ir.ADD:    "add",
	ir.SUB:    "sub",
	ir.MUL:    "mul",
	ir.DIV:    "div",
	ir.MOD:    "mod",
	ir.SHL:    "shl",
	ir.SHR:    "shr",
	ir.NEG:    "neg",
	ir.NOT:    "not",
	ir.AND:    "and",
	ir.OR:     "or",
	ir.EQ:     "eq",
	ir.NE:     "ne",
	ir.LT:     "lt",
	ir.LE:     "le",
	ir.GT:     "gt",
	ir.GE:     "ge",
}

func mnemonicOf(op ir.Op) string {
	if int(op) < len(mnemonic) && mnemonic[op] != "" {
		return mnemonic[op]
	}
	return fmt.Sprintf("op(%d)", op)
}

// Emit writes f's data definitions and function bodies to w as pseudo-
// assembly text.
func Emit(w io.Writer, f *irfile.File) error {
	bw := bufio.NewWriter(w)

	for _, d := range f.Data {
		emitData(bw, f, d)
	}
	for _, fn := range f.Funcs {
		emitFunc(bw, fn)
	}

	return bw.Flush()
}

func emitData(w *bufio.Writer, f *irfile.File, d irfile.DataDef) {
	if d.Vector {
		fmt.Fprintf(w, "%s:\t.vec %d\n", d.Name, d.VecSize)
	} else {
		fmt.Fprintf(w, "%s:\t.word\n", d.Name)
	}
	for _, iv := range d.Ivals {
		switch iv.Kind {
		case 0: // ivalName
			fmt.Fprintf(w, "\t.ival %s\n", iv.Name)
		case 1: // ivalInt
			fmt.Fprintf(w, "\t.ival %d\n", iv.Int)
		case 2: // ivalStr
			fmt.Fprintf(w, "\t.ival %q\n", f.StringAt(iv.StrOff))
		case 3: // ivalVec
			fmt.Fprintf(w, "\t.ival &%s\n", iv.Name)
		}
	}
}

func emitFunc(w *bufio.Writer, fn irfile.FuncDef) {
	fmt.Fprintf(w, "%s:\n", fn.Name)
	for _, n := range fn.Code {
		emitNode(w, fn, n)
	}
}

func emitNode(w *bufio.Writer, fn irfile.FuncDef, n irfile.Node) {
	m := mnemonicOf(n.Op)

	switch n.Op {
	case ir.NAMDEF:
		fmt.Fprintf(w, "L%d:\n", n.LabelPC)

	case ir.JMP, ir.BZ:
		fmt.Fprintf(w, "\t%s\tL%d\n", m, n.LabelPC)

	case ir.CASE:
		fmt.Fprintf(w, "\t%s\t%d, L%d\n", m, n.CaseDisc, n.CaseLabelPC)

	case ir.POPN, ir.DUPN, ir.ENTER, ir.AVINIT:
		fmt.Fprintf(w, "\t%s\t%d\n", m, n.N)

	case ir.PSHCON:
		if n.ConstIsStr {
			fmt.Fprintf(w, "\t%s\t$%d\n", m, n.ConstStr)
		} else {
			fmt.Fprintf(w, "\t%s\t$%d\n", m, n.ConstInt)
		}

	case ir.PSHSYM:
		if n.SymIsExtern {
			name := "?"
			if n.SymExternIndex < len(fn.Externs) {
				name = fn.Externs[n.SymExternIndex]
			}
			fmt.Fprintf(w, "\t%s\t%s\n", m, name)
		} else {
			fmt.Fprintf(w, "\t%s\tfp%+d\n", m, n.SymStackOffset)
		}

	default:
		fmt.Fprintf(w, "\t%s\n", m)
	}
}
