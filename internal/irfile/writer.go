package irfile

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jcorbin/bcc/ir"
	"github.com/jcorbin/bcc/symtab"
)

// Write serializes syms's data definitions, function code, and string pool
// to w, in that order, mirroring the reference compiler's own three-section
// layout (data, code, string pool) written in a single forward pass.
func Write(w io.Writer, syms *symtab.Table) error {
	bw := &writer{w: bufio.NewWriter(w), syms: syms, strp: ir.NewStringPool(IntSize)}

	bw.wrint(Magic)
	bw.wrdata()
	bw.wrcode()
	bw.wrstrp()

	if bw.err != nil {
		return bw.err
	}
	return bw.w.Flush()
}

type writer struct {
	w    *bufio.Writer
	syms *symtab.Table
	strp *ir.StringPool
	err  error
}

func (bw *writer) wrbytes(val uint32, n int) {
	if bw.err != nil {
		return
	}
	for i := 0; i < n; i++ {
		if err := bw.w.WriteByte(byte(val)); err != nil {
			bw.err = err
			return
		}
		val >>= 8
	}
}

func (bw *writer) wrint(v int) { bw.wrbytes(uint32(v), IntSize) }
func (bw *writer) wrbyte(v byte) {
	if bw.err != nil {
		return
	}
	bw.err = bw.w.WriteByte(v)
}

func (bw *writer) wrchars(b []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(b)
}

func (bw *writer) wrname(name string) {
	if len(name) > 255 {
		bw.err = fmt.Errorf("irfile: name %q too long to encode", name)
		return
	}
	bw.wrbyte(byte(len(name)))
	bw.wrchars([]byte(name))
}

// wrdata writes the data section: a count, then each EXTERN SIMPLE/VECTOR
// symbol's name, flags, optional vector size, and initializer list, in the
// order data definitions were parsed (symtab.Table.DataOrder), not
// necessarily global declaration order.
func (bw *writer) wrdata() {
	bw.wrint(len(bw.syms.DataOrder))

	for _, id := range bw.syms.DataOrder {
		sym := bw.syms.Sym(id)
		bw.wrname(sym.Name)

		var flags byte
		if sym.Type == symtab.VECTOR {
			flags |= flagVector
		}
		bw.wrbyte(flags)

		if sym.Type == symtab.VECTOR {
			bw.wrint(sym.VecSize)
		}

		bw.wrint(len(sym.Ivals))
		for _, iv := range sym.Ivals {
			bw.wrival(iv)
		}
	}
}

func (bw *writer) wrival(iv ir.Ival) {
	switch iv.Kind {
	case ir.IvalSym:
		ref := bw.syms.Sym(symtab.SymID(iv.Sym))
		if ref.Type == symtab.VECTOR {
			bw.wrbyte(ivalVec)
		} else {
			bw.wrbyte(ivalName)
		}
		bw.wrname(ref.Name)
	case ir.IvalInt:
		bw.wrbyte(ivalInt)
		bw.wrint(iv.Int)
	case ir.IvalStr:
		bw.wrbyte(ivalStr)
		bw.wrint(bw.strp.Add(iv.Str))
	}
}

// wrcode writes the code section: a count, then each EXTERN FUNC symbol's
// name and serialized function body, in global declaration order.
func (bw *writer) wrcode() {
	var funcs []symtab.SymID
	for _, id := range bw.syms.Global.Names() {
		sym := bw.syms.Sym(id)
		if sym.Class == symtab.EXTERN && sym.Type == symtab.FUNC {
			funcs = append(funcs, id)
		}
	}

	bw.wrint(len(funcs))
	for _, id := range funcs {
		sym := bw.syms.Sym(id)
		bw.wrname(sym.Name)
		bw.wrfunc(sym)
	}
}

// wrfunc writes one function: its extern table (the function's own
// EXTERN-class locals first, then every global EXTERN symbol appended
// after -- re-numbered independently per function, not de-duplicated or
// shared, matching the reference compiler exactly) followed by its code
// nodes.
func (bw *writer) wrfunc(fn *symtab.Symbol) {
	exidx := 0
	var externNames []string

	if fn.Local != nil {
		for _, id := range fn.Local.Names() {
			sym := bw.syms.Sym(id)
			if sym.Class == symtab.EXTERN {
				sym.ExternIndex = exidx
				exidx++
				externNames = append(externNames, sym.Name)
			}
		}
	}

	for _, id := range bw.syms.Global.Names() {
		sym := bw.syms.Sym(id)
		if sym.Class == symtab.EXTERN {
			sym.ExternIndex = exidx
			exidx++
			externNames = append(externNames, sym.Name)
		}
	}

	bw.wrint(exidx)
	for _, name := range externNames {
		bw.wrname(name)
	}

	nodes := fn.Code.Nodes()
	bw.wrint(len(nodes))
	for _, n := range nodes {
		bw.wrnode(n)
	}
}

func (bw *writer) wrnode(n ir.Node) {
	bw.wrbyte(byte(n.Op))
	switch n.Op {
	case ir.NAMDEF, ir.JMP, ir.BZ:
		bw.wrint(bw.syms.Sym(symtab.SymID(n.Sym)).LabelPC)

	case ir.CASE:
		bw.wrint(n.Case.Disc)
		bw.wrint(bw.syms.Sym(symtab.SymID(n.Case.Label)).LabelPC)

	case ir.POPN, ir.DUPN, ir.ENTER, ir.AVINIT:
		bw.wrint(n.N)

	case ir.PSHCON:
		if !n.Con.String {
			bw.wrbyte(conInt)
			bw.wrint(n.Con.Int)
		} else {
			bw.wrbyte(conStr)
			bw.wrint(bw.strp.Add(n.Con.Str))
		}

	case ir.PSHSYM:
		sym := bw.syms.Sym(symtab.SymID(n.Sym))
		if sym.Class == symtab.EXTERN {
			bw.wrbyte(symExtern)
			bw.wrint(sym.ExternIndex)
		} else if sym.Class != symtab.AUTO {
			bw.err = fmt.Errorf("irfile: internal error: PSHSYM %q neither EXTERN nor AUTO", sym.Name)
		} else {
			bw.wrbyte(symAuto)
			bw.wrint(sym.StackOffset)
		}
	}
}

func (bw *writer) wrstrp() {
	buf := bw.strp.Bytes()
	bw.wrint(len(buf))
	bw.wrchars(buf)
}
