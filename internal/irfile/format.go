// Package irfile reads and writes the compiler's intermediate file: the
// binary hand-off between the front end (lexer/symtab/parser) and a back
// end that turns stack-machine code into assembler. The format is a
// direct, little-endian serialization of a symtab.Table's data
// definitions, function code, and string pool -- nothing here depends on
// the in-memory arena/handle representation surviving the trip, so a back
// end built against this package never imports symtab or ir's mutable
// Fragment type, only the flat File shape below.
package irfile

// Magic opens every intermediate file, a sanity check before anything else
// is trusted.
const Magic = 0x4642 // "BF"

// IntSize is the width, in bytes, of an encoded integer operand -- the
// target machine word size the compiler assumes throughout.
const IntSize = 4

// Data-definition flag bits.
const (
	flagVector = 0x01
)

// Initializer element tags.
const (
	ivalName byte = iota // reference to a named symbol
	ivalInt              // integer constant
	ivalStr              // string constant (string-pool offset follows)
	ivalVec              // reference to a vector symbol
)

// PSHCON operand tags.
const (
	conInt byte = iota
	conStr
)

// PSHSYM operand tags.
const (
	symExtern byte = iota
	symAuto
)
