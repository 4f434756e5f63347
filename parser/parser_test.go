package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcorbin/bcc/ir"
	"github.com/jcorbin/bcc/lexer"
	"github.com/jcorbin/bcc/symtab"
)

func compile(t *testing.T, src string) (*symtab.Table, []string) {
	t.Helper()
	var errs []string
	lx := lexer.New("test", strings.NewReader(src))
	syms := Program(lx, func(line int, format string, args ...interface{}) {
		errs = append(errs, strings.TrimSpace(fmt.Sprintf(format, args...)))
	})
	return syms, errs
}

func Test_Parser_simpleDataDef(t *testing.T) {
	// Scenario 1: `x 5;` -> one data def named x, flags=0, one IINT(5) init.
	syms, errs := compile(t, "x 5;")
	require.Empty(t, errs)

	require.Len(t, syms.DataOrder, 1)
	sym := syms.Sym(syms.DataOrder[0])
	require.Equal(t, "x", sym.Name)
	require.Equal(t, symtab.EXTERN, sym.Class)
	require.Equal(t, symtab.SIMPLE, sym.Type)
	require.Len(t, sym.Ivals, 1)
	require.Equal(t, ir.IvalInt, sym.Ivals[0].Kind)
	require.Equal(t, 5, sym.Ivals[0].Int)
}

func Test_Parser_mainReturnsConstant(t *testing.T) {
	// Scenario 2: main() { return(0); } -> ENTER 0 prologue, PSHCON 0, JMP to
	// the return label, then the shared epilogue ending in the label's
	// NAMDEF, POPT, LEAVE, PUSHT, RET.
	syms, errs := compile(t, "main() { return(0); }")
	require.Empty(t, errs)

	id, ok := syms.Global.Lookup("main")
	require.True(t, ok)
	sym := syms.Sym(id)
	require.Equal(t, symtab.FUNC, sym.Type)

	nodes := sym.Code.Nodes()
	require.True(t, len(nodes) >= 6)
	require.Equal(t, ir.ENTER, nodes[0].Op)
	require.Equal(t, 0, nodes[0].N)

	// last five ops are always the shared epilogue tail.
	require.Equal(t, ir.RET, nodes[len(nodes)-1].Op)
	require.Equal(t, ir.PUSHT, nodes[len(nodes)-2].Op)
	require.Equal(t, ir.LEAVE, nodes[len(nodes)-3].Op)
	require.Equal(t, ir.POPT, nodes[len(nodes)-4].Op)
	require.Equal(t, ir.NAMDEF, nodes[len(nodes)-5].Op)

	retLabel := nodes[len(nodes)-5].Sym

	// somewhere before the epilogue's label, the explicit return pushed 0
	// and jumped to that same label.
	var sawJmp bool
	for i, n := range nodes {
		if n.Op == ir.JMP && n.Sym == retLabel {
			require.Equal(t, ir.PSHCON, nodes[i-1].Op)
			require.Equal(t, 0, nodes[i-1].Con.Int)
			sawJmp = true
		}
	}
	require.True(t, sawJmp)
}

func Test_Parser_whileLoopIncrement(t *testing.T) {
	// Scenario 3: main() { auto i; i = 0; while (i<10) i++; } -- exactly one
	// ENTER(n=1), two label definitions inside the while, one BZ to the
	// bottom label, one JMP to the top label, and the documented
	// DUP/DEREF/DUP/ROT/PSHCON 1/ADD/STORE sequence for i++.
	syms, errs := compile(t, "main() { auto i; i = 0; while (i<10) i++; }")
	require.Empty(t, errs)

	id, _ := syms.Global.Lookup("main")
	sym := syms.Sym(id)
	nodes := sym.Code.Nodes()

	var enterCount, namdefCount, bzCount, jmpCount int
	for _, n := range nodes {
		switch n.Op {
		case ir.ENTER:
			enterCount++
			require.Equal(t, 1, n.N)
		case ir.NAMDEF:
			namdefCount++
		case ir.BZ:
			bzCount++
		case ir.JMP:
			jmpCount++
		}
	}
	require.Equal(t, 1, enterCount)
	// two labels belong to the while (top, bottom); a third is the
	// function's own return label.
	require.Equal(t, 3, namdefCount)
	require.Equal(t, 1, bzCount)
	// one JMP closes the while's loop back-edge. The body has no return
	// statement, and the epilogue falls through into the return label
	// rather than jumping to it, so no other JMP appears.
	require.Equal(t, 1, jmpCount)

	// find the i++ sequence.
	var seq []ir.Op
	for i, n := range nodes {
		if n.Op == ir.DUP && i+6 < len(nodes) {
			seq = []ir.Op{nodes[i].Op, nodes[i+1].Op, nodes[i+2].Op, nodes[i+3].Op, nodes[i+4].Op, nodes[i+5].Op, nodes[i+6].Op}
			if seq[1] == ir.DEREF && seq[2] == ir.DUP && seq[3] == ir.ROT && seq[4] == ir.PSHCON && seq[5] == ir.ADD && seq[6] == ir.STORE {
				break
			}
		}
	}
	require.Equal(t, []ir.Op{ir.DUP, ir.DEREF, ir.DUP, ir.ROT, ir.PSHCON, ir.ADD, ir.STORE}, seq)
}

func Test_Parser_funcParamOffsets(t *testing.T) {
	// Scenario 4: f(a,b) { return(a+b); } -- a=0, b=1, each PSHSYM isAuto.
	syms, errs := compile(t, "f(a,b) { return(a+b); }")
	require.Empty(t, errs)

	id, _ := syms.Global.Lookup("f")
	sym := syms.Sym(id)

	aid, ok := sym.Local.Lookup("a")
	require.True(t, ok)
	bid, ok := sym.Local.Lookup("b")
	require.True(t, ok)

	a, b := syms.Sym(aid), syms.Sym(bid)
	require.Equal(t, symtab.AUTO, a.Class)
	require.Equal(t, 0, a.StackOffset)
	require.Equal(t, symtab.AUTO, b.Class)
	require.Equal(t, 1, b.StackOffset)

	var sawA, sawB bool
	for _, n := range sym.Code.Nodes() {
		if n.Op == ir.PSHSYM {
			switch n.Sym {
			case aid:
				require.True(t, n.IsAuto)
				sawA = true
			case bid:
				require.True(t, n.IsAuto)
				sawB = true
			}
		}
	}
	require.True(t, sawA)
	require.True(t, sawB)
}

func Test_Parser_vectorDataDef(t *testing.T) {
	// Scenario 5: v[3] 1,2,3; -> vector data def, vecSize=3, three IINT inits.
	syms, errs := compile(t, "v[3] 1,2,3;")
	require.Empty(t, errs)

	require.Len(t, syms.DataOrder, 1)
	sym := syms.Sym(syms.DataOrder[0])
	require.Equal(t, symtab.VECTOR, sym.Type)
	require.Equal(t, 3, sym.VecSize)
	require.Len(t, sym.Ivals, 3)
	for i, want := range []int{1, 2, 3} {
		require.Equal(t, ir.IvalInt, sym.Ivals[i].Kind)
		require.Equal(t, want, sym.Ivals[i].Int)
	}
}

func Test_Parser_duplicateDefinitionDiagnostic(t *testing.T) {
	// Scenario 6: `x; x;` -> diagnostic on the second definition.
	_, errs := compile(t, "x; x;")
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0], "previously defined")
}

func Test_Parser_labelUniqueness(t *testing.T) {
	// Within one function every NAMDEF's labpc is distinct.
	syms, errs := compile(t, `main() {
		auto i;
		i = 0;
		switch (i) {
			case 1: i = 1;
			case 2: i = 2;
		}
		if (i) i = 3; else i = 4;
	}`)
	require.Empty(t, errs)

	id, _ := syms.Global.Lookup("main")
	sym := syms.Sym(id)

	seen := map[int]bool{}
	for _, n := range sym.Code.Nodes() {
		if n.Op == ir.NAMDEF {
			lpc := syms.Sym(n.Sym).LabelPC
			require.False(t, seen[lpc], "label %d reused", lpc)
			seen[lpc] = true
		}
	}
}

func Test_Parser_autoVectorOffset(t *testing.T) {
	// Auto-frame offsets: `auto x 3;` (a size-3 vector) offset is -(1+3).
	syms, errs := compile(t, "main() { auto x 3; x[0] = 1; }")
	require.Empty(t, errs)

	id, _ := syms.Global.Lookup("main")
	sym := syms.Sym(id)
	xid, ok := sym.Local.Lookup("x")
	require.True(t, ok)
	x := syms.Sym(xid)
	require.Equal(t, symtab.VECTOR, x.Type)
	require.Equal(t, 3, x.VecSize)
	require.Equal(t, -(1 + 3), x.StackOffset)

	var sawAvinit bool
	for _, n := range sym.Code.Nodes() {
		if n.Op == ir.AVINIT && n.N == x.StackOffset {
			sawAvinit = true
		}
	}
	require.True(t, sawAvinit)
}

func Test_Parser_gotoForwardReference(t *testing.T) {
	syms, errs := compile(t, `main() {
		goto done;
		done: ;
	}`)
	require.Empty(t, errs)

	id, _ := syms.Global.Lookup("main")
	sym := syms.Sym(id)
	did, ok := sym.Local.Lookup("done")
	require.True(t, ok)
	d := syms.Sym(did)
	require.Equal(t, symtab.LABEL, d.Type)
	require.False(t, d.Forward)
}

func Test_Parser_danglingGotoDiagnosed(t *testing.T) {
	_, errs := compile(t, `main() {
		goto nowhere;
	}`)
	require.NotEmpty(t, errs)
	require.Contains(t, errs[0], "never defined")
}
