package ir

// SymRef is an opaque handle to a symbol-table entry. Code nodes, and the
// ivals attached to data-definition symbols, refer to other symbols by this
// handle rather than by pointer -- the cyclic graph of "code references
// label, label points back into code" is rendered as two parallel slices
// addressed by integer, not by pointer chasing.
type SymRef int

// NoSym is never a valid symbol index (valid indices start at 0).
const NoSym SymRef = -1

// Const is an embedded constant operand for PSHCON: either an integer value
// (String == false) or a byte string destined for the string pool.
type Const struct {
	String bool
	Int    int
	Str    []byte
}

// CaseArm is the operand of a CASE opcode: compare the stack top against
// Disc, and if equal pop and branch to Label.
type CaseArm struct {
	Disc  int
	Label SymRef
}

// Node is one instruction in a function's code fragment. Only the fields
// relevant to Op are meaningful; see opcode.go for the stack-effect table.
type Node struct {
	Op     Op
	N      int     // POPN, DUPN, ENTER, LEAVE, AVINIT operand
	Sym    SymRef  // NAMDEF, JMP, BZ target; PSHSYM symbol
	Con    Const   // PSHCON operand
	Case   CaseArm // CASE operand
	IsAuto bool    // PSHSYM: true if Sym is a frame-relative AUTO, false if EXTERN
}

// Fragment is an ordered, appendable sequence of code nodes forming one
// function body (or a sub-sequence spliced into one, e.g. a switch's case
// table or a function's auto-vector initializers).
type Fragment struct {
	nodes []Node
}

// Len returns the number of nodes currently in the fragment.
func (f *Fragment) Len() int { return len(f.nodes) }

// Nodes returns the fragment's nodes in emission order. The returned slice
// aliases the fragment's storage and must not be retained across further
// mutation.
func (f *Fragment) Nodes() []Node { return f.nodes }

// At returns the node at position i.
func (f *Fragment) At(i int) Node { return f.nodes[i] }

// Append adds a node to the end of the fragment and returns its index,
// usable later as a splice point.
func (f *Fragment) Append(n Node) int {
	f.nodes = append(f.nodes, n)
	return len(f.nodes) - 1
}

// Emit is a convenience for appending a no-operand opcode.
func (f *Fragment) Emit(op Op) int { return f.Append(Node{Op: op}) }

// EmitN appends an opcode carrying an integer operand (POPN, DUPN, ENTER,
// LEAVE, AVINIT).
func (f *Fragment) EmitN(op Op, n int) int { return f.Append(Node{Op: op, N: n}) }

// EmitBranch appends a branch-class opcode (JMP, BZ) targeting a label.
func (f *Fragment) EmitBranch(op Op, target SymRef) int {
	return f.Append(Node{Op: op, Sym: target})
}

// EmitLabel appends a NAMDEF marking the current position as target's
// definition site.
func (f *Fragment) EmitLabel(target SymRef) int {
	return f.Append(Node{Op: NAMDEF, Sym: target})
}

// EmitCase appends a CASE opcode.
func (f *Fragment) EmitCase(disc int, target SymRef) int {
	return f.Append(Node{Op: CASE, Case: CaseArm{Disc: disc, Label: target}})
}

// EmitConstInt appends a PSHCON carrying an integer constant.
func (f *Fragment) EmitConstInt(v int) int {
	return f.Append(Node{Op: PSHCON, Con: Const{Int: v}})
}

// EmitConstStr appends a PSHCON carrying a string-literal constant; the byte
// slice is later materialized into the string pool by the writer.
func (f *Fragment) EmitConstStr(s []byte) int {
	return f.Append(Node{Op: PSHCON, Con: Const{String: true, Str: s}})
}

// EmitSym appends a PSHSYM pushing a symbol's address.
func (f *Fragment) EmitSym(sym SymRef, isAuto bool) int {
	return f.Append(Node{Op: PSHSYM, Sym: sym, IsAuto: isAuto})
}

// Concat appends all of other's nodes to the end of f, in order.
func (f *Fragment) Concat(other *Fragment) {
	f.nodes = append(f.nodes, other.nodes...)
}

// SpliceAfter inserts other's nodes immediately after position after
// (0-based index into f, as returned by Append), shifting the remainder
// down. Used to drop a function's auto-vector initializers in right after
// its ENTER, and a switch's case-comparison table in right after its
// discriminant evaluation.
func (f *Fragment) SpliceAfter(after int, other *Fragment) {
	if other.Len() == 0 {
		return
	}
	tail := append([]Node(nil), f.nodes[after+1:]...)
	f.nodes = append(f.nodes[:after+1], other.nodes...)
	f.nodes = append(f.nodes, tail...)
}

// Patch overwrites the operand of an already-emitted node, used to back-fill
// ENTER's slot count once a function's auto-variable count is known.
func (f *Fragment) Patch(i int, n int) {
	f.nodes[i].N = n
}
