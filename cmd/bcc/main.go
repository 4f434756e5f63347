// Command bcc compiles B source to the compiler's intermediate file and,
// optionally, straight through to textual pseudo-assembly: the front-end and
// format-consumer back-end described in SPEC_FULL.md, wired together
// directly with no external assembler or linker invoked. A standalone
// driver covering target code generation and linking remains out of scope.
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jcorbin/bcc/backend"
	"github.com/jcorbin/bcc/internal/flushio"
	"github.com/jcorbin/bcc/internal/irfile"
	"github.com/jcorbin/bcc/internal/logio"
	"github.com/jcorbin/bcc/internal/panicerr"
	"github.com/jcorbin/bcc/lexer"
	"github.com/jcorbin/bcc/parser"
)

func main() {
	var (
		outPath string
		trace   bool
		dumpIR  bool
		asm     bool
	)
	flag.StringVar(&outPath, "o", "", "output path (default: stdout)")
	flag.BoolVar(&trace, "trace", false, "log each diagnostic as it is reported, not just at exit")
	flag.BoolVar(&dumpIR, "dump-ir", false, "print the decoded intermediate file's structure to stderr")
	flag.BoolVar(&asm, "S", false, "emit pseudo-assembly instead of the binary intermediate file")
	flag.Parse()

	log := logio.Logger{}
	log.SetOutput(os.Stderr)
	defer os.Exit(log.ExitCode())

	in, name, closeIn, err := openInput(flag.Arg(0))
	if err != nil {
		log.Errorf("%v", err)
		return
	}
	defer closeIn()

	var partial string
	if outPath != "" && outPath != "-" {
		partial = outPath
	}

	err = panicerr.Recover("compile", func() error {
		return run(name, in, outPath, trace, dumpIR, asm, &log)
	})
	if err != nil {
		log.Errorf("%v", err)
		if partial != "" {
			os.Remove(partial)
		}
	}
}

// run drives one source file through the lexer, parser, and intermediate
// writer, then optionally re-reads the result through the back-end to emit
// pseudo-assembly -- exercising the exact same reader the back-end would use
// against a file written by a separate invocation, per the intermediate
// file's round-trip property.
func run(name string, r io.Reader, outPath string, trace, dumpIR, asm bool, log *logio.Logger) error {
	lx := lexer.New(name, r)

	var failed bool
	var diags []string
	syms := parser.Program(lx, func(line int, format string, args ...interface{}) {
		failed = true
		mess := fmt.Sprintf("%s:%d: %s", name, line, fmt.Sprintf(format, args...))
		if trace {
			log.Printf("ERROR", "%s", mess)
		} else {
			diags = append(diags, mess)
		}
	})
	for _, mess := range diags {
		log.Errorf("%s", mess)
	}
	if failed {
		return fmt.Errorf("%s: compilation failed", name)
	}

	var irbuf bytes.Buffer
	if err := irfile.Write(&irbuf, syms); err != nil {
		fatal(fmt.Errorf("writing intermediate file: %w", err))
	}

	if !asm && !dumpIR {
		return writeOutput(outPath, irbuf.Bytes())
	}

	f, err := irfile.Read(bytes.NewReader(irbuf.Bytes()))
	if err != nil {
		// the writer and reader disagree about the wire format: an
		// internal inconsistency, not a diagnosable source error.
		fatal(fmt.Errorf("re-reading just-written intermediate file: %w", err))
	}

	if dumpIR {
		dumpFile(log, f)
	}

	if asm {
		var out bytes.Buffer
		if err := backend.Emit(&out, f); err != nil {
			fatal(fmt.Errorf("emitting assembly: %w", err))
		}
		return writeOutput(outPath, out.Bytes())
	}

	return writeOutput(outPath, irbuf.Bytes())
}

// fatalError marks an error as an internal inconsistency rather than a
// diagnosable source problem -- the analog of the teacher's haltError,
// panicked here and recovered only at main's outermost boundary.
type fatalError struct{ error }

func (err fatalError) Unwrap() error { return err.error }

func fatal(err error) { panic(fatalError{err}) }

func dumpFile(log *logio.Logger, f *irfile.File) {
	logf := log.Leveledf("DUMP")
	logf("%d data definition(s), %d function(s)", len(f.Data), len(f.Funcs))
	for _, d := range f.Data {
		logf("data %s: vector=%v vecSize=%d ivals=%d", d.Name, d.Vector, d.VecSize, len(d.Ivals))
	}
	for _, fn := range f.Funcs {
		logf("func %s: externs=%d nodes=%d", fn.Name, len(fn.Externs), len(fn.Code))
	}
}

func writeOutput(path string, data []byte) error {
	out, closeOut, err := openOutput(path)
	if err != nil {
		return err
	}
	defer closeOut()

	wf := flushio.NewWriteFlusher(out)
	if _, err := wf.Write(data); err != nil {
		return err
	}
	return wf.Flush()
}

func openInput(path string) (r io.Reader, name string, closeFn func() error, err error) {
	if path == "" || path == "-" {
		return os.Stdin, "<stdin>", func() error { return nil }, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", nil, err
	}
	return f, path, f.Close, nil
}

func openOutput(path string) (w io.Writer, closeFn func() error, err error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, f.Close, nil
}
