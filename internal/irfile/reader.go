package irfile

import (
	"bufio"
	"fmt"
	"io"

	"github.com/jcorbin/bcc/ir"
)

// Ival is one decoded initializer element in a DataDef.
type Ival struct {
	Kind   byte // ivalName, ivalInt, ivalStr, or ivalVec
	Name   string
	Int    int
	StrOff int // byte offset into File.StringPool, when Kind == ivalStr
}

// DataDef is one decoded EXTERN data symbol.
type DataDef struct {
	Name    string
	Vector  bool
	VecSize int
	Ivals   []Ival
}

// Node is one decoded function-body instruction. Only the fields relevant
// to Op carry meaningful values; see ir.Op for the opcode set.
type Node struct {
	Op Op

	N int // POPN, DUPN, ENTER, AVINIT operand

	LabelPC int // NAMDEF, JMP, BZ target

	CaseDisc    int // CASE
	CaseLabelPC int

	ConstIsStr bool // PSHCON
	ConstInt   int
	ConstStr   int // string-pool offset, when ConstIsStr

	SymIsExtern    bool // PSHSYM
	SymExternIndex int
	SymStackOffset int
}

// Op re-exports ir.Op so that callers of this package need not import ir
// directly just to switch on an opcode.
type Op = ir.Op

// FuncDef is one decoded EXTERN function: its per-function extern table (the
// function's own extrn names, then every global EXTERN name, numbered
// independently of every other function) plus its code.
type FuncDef struct {
	Name    string
	Externs []string // indexed by SymExternIndex
	Code    []Node
}

// File is the fully-decoded contents of an intermediate file.
type File struct {
	Data       []DataDef
	Funcs      []FuncDef
	StringPool []byte
}

// StringAt returns the sentinel-terminated byte string the string pool
// holds at off, stopping at the first ByteEOF-convention terminator if n is
// unknown to the caller; here callers that already know the literal's
// length should use File.StringPool[off:off+n] directly instead.
func (f *File) StringAt(off int) []byte {
	end := off
	for end < len(f.StringPool) && f.StringPool[end] != 0xff {
		end++
	}
	if end < len(f.StringPool) {
		end++ // include the sentinel
	}
	return f.StringPool[off:end]
}

// Read parses an intermediate file from r.
func Read(r io.Reader) (*File, error) {
	br := &reader{r: bufio.NewReader(r)}

	magic := br.rdint()
	if br.err != nil {
		return nil, br.err
	}
	if magic != Magic {
		return nil, fmt.Errorf("irfile: bad magic %#x", magic)
	}

	f := &File{}
	f.Data = br.rddata()
	f.Funcs = br.rdcode()
	f.StringPool = br.rdstrp()

	if br.err != nil {
		return nil, br.err
	}
	return f, nil
}

type reader struct {
	r   *bufio.Reader
	err error
}

func (br *reader) rdbytes(n int) uint32 {
	if br.err != nil {
		return 0
	}
	var val uint32
	for i := 0; i < n; i++ {
		b, err := br.r.ReadByte()
		if err != nil {
			br.err = err
			return 0
		}
		val |= uint32(b) << (8 * i)
	}
	return val
}

func (br *reader) rdint() int { return int(int32(br.rdbytes(IntSize))) }

func (br *reader) rdbyte() byte {
	if br.err != nil {
		return 0
	}
	b, err := br.r.ReadByte()
	if err != nil {
		br.err = err
	}
	return b
}

func (br *reader) rdchars(n int) []byte {
	if br.err != nil {
		return nil
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(br.r, buf); err != nil {
		br.err = err
		return nil
	}
	return buf
}

func (br *reader) rdname() string {
	n := int(br.rdbyte())
	return string(br.rdchars(n))
}

func (br *reader) rddata() []DataDef {
	n := br.rdint()
	defs := make([]DataDef, 0, n)
	for i := 0; i < n && br.err == nil; i++ {
		var d DataDef
		d.Name = br.rdname()
		flags := br.rdbyte()
		d.Vector = flags&flagVector != 0
		if d.Vector {
			d.VecSize = br.rdint()
		}
		nivals := br.rdint()
		d.Ivals = make([]Ival, 0, nivals)
		for j := 0; j < nivals && br.err == nil; j++ {
			d.Ivals = append(d.Ivals, br.rdival())
		}
		defs = append(defs, d)
	}
	return defs
}

func (br *reader) rdival() Ival {
	var iv Ival
	iv.Kind = br.rdbyte()
	switch iv.Kind {
	case ivalName, ivalVec:
		iv.Name = br.rdname()
	case ivalInt:
		iv.Int = br.rdint()
	case ivalStr:
		iv.StrOff = br.rdint()
	}
	return iv
}

func (br *reader) rdcode() []FuncDef {
	n := br.rdint()
	funcs := make([]FuncDef, 0, n)
	for i := 0; i < n && br.err == nil; i++ {
		var fn FuncDef
		fn.Name = br.rdname()
		br.rdfunc(&fn)
		funcs = append(funcs, fn)
	}
	return funcs
}

func (br *reader) rdfunc(fn *FuncDef) {
	nexterns := br.rdint()
	fn.Externs = make([]string, 0, nexterns)
	for i := 0; i < nexterns && br.err == nil; i++ {
		fn.Externs = append(fn.Externs, br.rdname())
	}

	nnodes := br.rdint()
	fn.Code = make([]Node, 0, nnodes)
	for i := 0; i < nnodes && br.err == nil; i++ {
		fn.Code = append(fn.Code, br.rdnode())
	}
}

func (br *reader) rdnode() Node {
	var n Node
	n.Op = Op(br.rdbyte())

	switch n.Op {
	case ir.NAMDEF, ir.JMP, ir.BZ:
		n.LabelPC = br.rdint()

	case ir.CASE:
		n.CaseDisc = br.rdint()
		n.CaseLabelPC = br.rdint()

	case ir.POPN, ir.DUPN, ir.ENTER, ir.AVINIT:
		n.N = br.rdint()

	case ir.PSHCON:
		tag := br.rdbyte()
		if tag == conInt {
			n.ConstInt = br.rdint()
		} else {
			n.ConstIsStr = true
			n.ConstStr = br.rdint()
		}

	case ir.PSHSYM:
		tag := br.rdbyte()
		if tag == symExtern {
			n.SymIsExtern = true
			n.SymExternIndex = br.rdint()
		} else {
			n.SymStackOffset = br.rdint()
		}
	}

	return n
}

func (br *reader) rdstrp() []byte {
	n := br.rdint()
	return br.rdchars(n)
}
