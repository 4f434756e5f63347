package irfile_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jcorbin/bcc/internal/irfile"
	"github.com/jcorbin/bcc/ir"
	"github.com/jcorbin/bcc/lexer"
	"github.com/jcorbin/bcc/parser"
)

func compile(t *testing.T, src string) []byte {
	t.Helper()
	lx := lexer.New("test", strings.NewReader(src))
	var errs []string
	syms := parser.Program(lx, func(line int, format string, args ...interface{}) {
		errs = append(errs, format)
	})
	require.Empty(t, errs)

	var buf bytes.Buffer
	require.NoError(t, irfile.Write(&buf, syms))
	return buf.Bytes()
}

func TestWriteRead_magicAndRoundTrip(t *testing.T) {
	raw := compile(t, `
		x 5;
		v[3] 1,2,3;
		main(a,b) {
			auto i;
			extrn x;
			i = a + b;
			return(x);
		}
	`)

	// magic is the first four little-endian bytes: 0x4642.
	require.Equal(t, []byte{0x42, 0x46, 0x00, 0x00}, raw[:4])

	f, err := irfile.Read(bytes.NewReader(raw))
	require.NoError(t, err)

	require.Len(t, f.Data, 2)
	require.Equal(t, "x", f.Data[0].Name)
	require.False(t, f.Data[0].Vector)
	require.Len(t, f.Data[0].Ivals, 1)
	require.Equal(t, 5, f.Data[0].Ivals[0].Int)

	require.Equal(t, "v", f.Data[1].Name)
	require.True(t, f.Data[1].Vector)
	require.Equal(t, 3, f.Data[1].VecSize)
	require.Len(t, f.Data[1].Ivals, 3)

	require.Len(t, f.Funcs, 1)
	require.Equal(t, "main", f.Funcs[0].Name)
	require.NotEmpty(t, f.Funcs[0].Code)

	// x is referenced via extrn inside main: it must appear in main's own
	// per-function extern table.
	require.Contains(t, f.Funcs[0].Externs, "x")
}

func TestWriteRead_stringPoolNoDedup(t *testing.T) {
	raw := compile(t, `
		main() {
			extrn f;
			f("hi");
			f("hi");
			return;
		}
		f(s) { return(0); }
	`)

	f, err := irfile.Read(bytes.NewReader(raw))
	require.NoError(t, err)

	var mainFn *irfile.FuncDef
	for i := range f.Funcs {
		if f.Funcs[i].Name == "main" {
			mainFn = &f.Funcs[i]
		}
	}
	require.NotNil(t, mainFn)

	var offs []int
	for _, n := range mainFn.Code {
		if n.Op == ir.PSHCON && n.ConstIsStr {
			offs = append(offs, n.ConstStr)
		}
	}
	require.Len(t, offs, 2)

	for _, off := range offs {
		got := f.StringAt(off)
		require.True(t, bytes.HasPrefix(got, []byte("hi")))
	}
}

func TestWriteRead_externNumberingNotDeduplicated(t *testing.T) {
	// per-function extern tables are independently numbered and not shared:
	// two functions each referencing the same global extern both carry
	// their own copy of its name, each at index 0 (the sole extern each
	// references).
	raw := compile(t, `
		g 1;
		a() { extrn g; return(g); }
		b() { extrn g; return(g); }
	`)

	f, err := irfile.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, f.Funcs, 2)
	for _, fn := range f.Funcs {
		require.Contains(t, fn.Externs, "g")
	}
}

func TestWriteRead_labelTargetsResolveWithinFunction(t *testing.T) {
	raw := compile(t, `main() {
		auto i;
		i = 0;
		while (i < 3) i++;
	}`)

	f, err := irfile.Read(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Len(t, f.Funcs, 1)

	labels := map[int]bool{}
	for _, n := range f.Funcs[0].Code {
		if n.Op == ir.NAMDEF {
			labels[n.LabelPC] = true
		}
	}
	for _, n := range f.Funcs[0].Code {
		switch n.Op {
		case ir.JMP, ir.BZ:
			require.True(t, labels[n.LabelPC], "branch target %d has no NAMDEF", n.LabelPC)
		case ir.CASE:
			require.True(t, labels[n.CaseLabelPC], "case target %d has no NAMDEF", n.CaseLabelPC)
		}
	}
}

func TestWriteRead_truncatedInputErrors(t *testing.T) {
	raw := compile(t, "x 5;")
	_, err := irfile.Read(bytes.NewReader(raw[:2]))
	require.Error(t, err)
}

func TestWriteRead_badMagicErrors(t *testing.T) {
	_, err := irfile.Read(bytes.NewReader([]byte{0, 0, 0, 0}))
	require.Error(t, err)
}
