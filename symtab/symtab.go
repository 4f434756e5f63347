// Package symtab implements the B compiler's symbol table: one global
// ordered scope plus, while a function body is being parsed, a current
// per-function local ordered scope. Names are unique within a scope;
// lookups search local then global.
//
// Symbols and code nodes form a cyclic graph -- a LABEL symbol points back
// at the code node that defines it, and JMP/BZ/CASE nodes point at the
// label's symbol -- so, per the arena+handle design in spec.md's design
// notes, symbols live in a flat slice owned by the Table and are referenced
// everywhere else by SymID (an ir.SymRef), never by pointer.
package symtab

import "github.com/jcorbin/bcc/ir"

// SymID is a handle into a Table's symbol arena.
type SymID = ir.SymRef

// NoSym is never a valid symbol id.
const NoSym = ir.NoSym

// StorageClass is a symbol's storage class. NEW is transient: by the end of
// a successful parse every symbol still reachable is EXTERN, AUTO, or
// INTERNAL.
type StorageClass int

const (
	NEW StorageClass = iota
	EXTERN
	AUTO
	INTERNAL
)

func (sc StorageClass) String() string {
	switch sc {
	case NEW:
		return "NEW"
	case EXTERN:
		return "EXTERN"
	case AUTO:
		return "AUTO"
	case INTERNAL:
		return "INTERNAL"
	}
	return "StorageClass(?)"
}

// ObjType is the kind of object a symbol names. It is fixed once a symbol's
// storage class leaves NEW, except that INTERNAL symbols are always LABEL.
type ObjType int

const (
	SIMPLE ObjType = iota
	VECTOR
	FUNC
	LABEL
)

func (t ObjType) String() string {
	switch t {
	case SIMPLE:
		return "SIMPLE"
	case VECTOR:
		return "VECTOR"
	case FUNC:
		return "FUNC"
	case LABEL:
		return "LABEL"
	}
	return "ObjType(?)"
}

// MaxNameLen is the maximum length of an identifier; longer names are
// truncated by the lexer, which also reports a diagnostic.
const MaxNameLen = 8

// Symbol is one symbol-table entry (the "stabent" of spec.md).
type Symbol struct {
	Name  string
	Class StorageClass
	Type  ObjType

	// FUNC
	Code  *ir.Fragment
	Local *Scope

	// LABEL
	DefNode  int // NAMDEF node index; the parser never assigns it, so it stays 0
	Forward  bool
	LabelPC  int

	// AUTO
	StackOffset int

	// VECTOR
	VecSize int

	// EXTERN data
	Ivals []ir.Ival

	// serializer scratch: this symbol's index within a function's extern
	// table, assigned at write time.
	ExternIndex int

}

// Scope is an ordered, name-indexed collection of symbols: either the
// process-wide global scope, or one function's local scope.
type Scope struct {
	table *Table
	order []SymID
	index map[string]SymID
}

func newScope(t *Table) *Scope {
	return &Scope{table: t, index: make(map[string]SymID)}
}

// Names returns the symbols declared in this scope, in declaration order.
func (s *Scope) Names() []SymID { return s.order }

// Get returns the existing entry named name in this scope, or creates a new
// NEW-class entry and appends it.
func (s *Scope) Get(name string) SymID {
	if id, ok := s.index[name]; ok {
		return id
	}
	id := s.table.alloc(name)
	s.index[name] = id
	s.order = append(s.order, id)
	return id
}

// Lookup searches this scope only, without creating an entry.
func (s *Scope) Lookup(name string) (SymID, bool) {
	id, ok := s.index[name]
	return id, ok
}

// Table owns the symbol arena, the global scope, and (while a function body
// is being compiled) the current local scope.
type Table struct {
	syms   []Symbol
	Global *Scope
	Local  *Scope // nil outside of a function body

	// DataOrder lists EXTERN SIMPLE/VECTOR symbols in the order their data
	// definitions were parsed, separate from Global's declaration order
	// (which also interleaves FUNC symbols). The writer walks this chain
	// to emit the data section, mirroring the original compiler's own
	// separate datasyms list.
	DataOrder []SymID

	nextLabel int
	labelPC   int
}

// New creates an empty table with an initialized, empty global scope.
func New() *Table {
	t := &Table{}
	t.Global = newScope(t)
	return t
}

func (t *Table) alloc(name string) SymID {
	id := SymID(len(t.syms))
	t.syms = append(t.syms, Symbol{Name: name})
	return id
}

// Sym returns a pointer to the symbol identified by id, for in-place
// mutation (e.g. assigning storage class, code fragment, offsets).
func (t *Table) Sym(id SymID) *Symbol { return &t.syms[id] }

// EnterFunc installs scope as the current local scope (called when a
// function definition's parameter list begins).
func (t *Table) EnterFunc(scope *Scope) { t.Local = scope }

// ExitFunc clears the current local scope (called at the end of a function
// definition).
func (t *Table) ExitFunc() { t.Local = nil }

// NewFuncScope allocates a fresh local scope for a function symbol.
func (t *Table) NewFuncScope() *Scope { return newScope(t) }

// AddData appends id to the ordered chain of global data definitions. The
// parser calls this once per data definition, after filling in the symbol's
// Ivals, so the writer can later emit the data section in source order.
func (t *Table) AddData(id SymID) {
	t.DataOrder = append(t.DataOrder, id)
}

// Find searches the local scope (if any) then the global scope, and reports
// whether name was found.
func (t *Table) Find(name string) (SymID, bool) {
	if t.Local != nil {
		if id, ok := t.Local.Lookup(name); ok {
			return id, true
		}
	}
	if id, ok := t.Global.Lookup(name); ok {
		return id, true
	}
	return NoSym, false
}

// MkLabel creates a fresh, uniquely-numbered LABEL symbol in the current
// local scope, named "@N" where N increases monotonically within the
// enclosing function. The label is an anonymous INTERNAL/LABEL symbol with
// Forward clear and a fresh LabelPC. User-named labels are not created here;
// they take their LabelPC from NextLabelPC instead.
func (t *Table) MkLabel() SymID {
	name := "@" + itoa(t.nextLabel)
	t.nextLabel++
	id := t.Local.Get(name)
	sym := t.Sym(id)
	sym.Class = INTERNAL
	sym.Type = LABEL
	sym.LabelPC = t.nextLabelPC()
	return id
}

// NextLabelPC hands out the next monotonic labpc to a caller that is
// defining a user-named label (stmtLabel) or registering a forward
// reference to one (stmtGoto) -- cases where the label symbol already
// exists under its own name, so MkLabel's anonymous-symbol allocation
// doesn't apply, but the same per-function labpc sequence must still be
// used.
func (t *Table) NextLabelPC() int { return t.nextLabelPC() }

// nextLabelPC hands out the next monotonic labpc. It is a method (rather
// than reading/writing a package global) so that multiple Tables --
// e.g. one per test case -- don't share state; each Table tracks its own
// per-function labpc counter, which the parser resets via ResetLabelPC at
// the start of every function body.
func (t *Table) nextLabelPC() int {
	pc := t.labelPC
	t.labelPC++
	return pc
}

// ResetLabelPC restarts the labpc counter; called when a new function body
// begins parsing, since labpc numbering is per-function.
func (t *Table) ResetLabelPC() { t.labelPC = 0 }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
