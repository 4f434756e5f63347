package lexer

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func scanAll(t *testing.T, src string) ([]Token, []string) {
	t.Helper()
	var errs []string
	lx := New("test", strings.NewReader(src))
	lx.Errf = func(line int, format string, args ...interface{}) {
		errs = append(errs, strings.TrimSpace(fmt.Sprintf(format, args...)))
	}
	var toks []Token
	for {
		tok := lx.Next()
		toks = append(toks, tok)
		if tok.Kind == EOF {
			break
		}
	}
	return toks, errs
}

func Test_Lexer_tokens(t *testing.T) {
	for _, tc := range []struct {
		name string
		src  string
		want []Kind
	}{
		{
			name: "keywords and name",
			src:  "auto extrn foobar",
			want: []Kind{Auto, Extrn, Name, EOF},
		},
		{
			name: "punctuation",
			src:  "(){}[];,",
			want: []Kind{LParen, RParen, LBrace, RBrace, LBracket, RBracket, Semi, Comma, EOF},
		},
		{
			name: "incr decr",
			src:  "++ -- - !",
			want: []Kind{Incr, Decr, Minus, Not, EOF},
		},
		{
			name: "relational maximal munch",
			src:  "< <= << > >= >>",
			want: []Kind{Lt, Le, Shl, Gt, Ge, Shr, EOF},
		},
		{
			name: "bare assign",
			src:  "=",
			want: []Kind{Assign, EOF},
		},
		{
			name: "equality is two equals",
			src:  "==",
			want: []Kind{Eq, EOF},
		},
		{
			name: "compound assign with equality is three equals",
			src:  "===",
			want: []Kind{AssignEq, EOF},
		},
		{
			name: "compound assign plus",
			src:  "=+",
			want: []Kind{AssignPlus, EOF},
		},
		{
			name: "integer constants octal and decimal",
			src:  "0 010 42",
			want: []Kind{IntCon, IntCon, IntCon, EOF},
		},
		{
			name: "comment between tokens is whitespace",
			src:  "a /* comment */ b",
			want: []Kind{Name, Name, EOF},
		},
		{
			name: "comment glued to a token is not recognized",
			src:  "a/**/b",
			want: []Kind{Name, Div, Times, Times, Div, Name, EOF},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			toks, errs := scanAll(t, tc.src)
			require.Empty(t, errs)
			var got []Kind
			for _, tok := range toks {
				got = append(got, tok.Kind)
			}
			require.Equal(t, tc.want, got)
		})
	}
}

func Test_Lexer_intValues(t *testing.T) {
	toks, errs := scanAll(t, "0 010 42 'a' 'ab'")
	require.Empty(t, errs)
	require.Equal(t, 0, toks[0].Int)
	require.Equal(t, 8, toks[1].Int)
	require.Equal(t, 42, toks[2].Int)
	require.Equal(t, int('a'), toks[3].Int)
	require.Equal(t, int('a')<<8|int('b'), toks[4].Int)
}

func Test_Lexer_stringConstant(t *testing.T) {
	toks, errs := scanAll(t, `"hi*n"`)
	require.Empty(t, errs)
	require.Equal(t, StrCon, toks[0].Kind)
	require.Equal(t, []byte{'h', 'i', '\n', byte(strEOF)}, toks[0].Str)
}

func Test_Lexer_diagnostics(t *testing.T) {
	for _, tc := range []struct {
		name    string
		src     string
		wantErr string
	}{
		{name: "name too long", src: "abcdefghijk;", wantErr: "name too long"},
		{name: "unterminated char", src: "'ab", wantErr: "unterminated char constant"},
		{name: "empty char", src: "''", wantErr: "empty char constant"},
		{name: "unterminated string", src: `"abc`, wantErr: "unterminated string constant"},
		{name: "invalid escape", src: `"*q"`, wantErr: "invalid escape"},
		{name: "invalid token char", src: "@", wantErr: "invalid character"},
		{name: "bad compound assign bang", src: "=!x", wantErr: "not a valid token"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, errs := scanAll(t, tc.src)
			require.NotEmpty(t, errs)
			require.Contains(t, errs[0], tc.wantErr)
		})
	}
}
