package parser

import (
	"fmt"
	"os"

	"github.com/alecthomas/participle/v2"

	"oath/internal/ast"
	"oath/internal/diag"
)

var oathParser = participle.MustBuild[fileNode](
	participle.Lexer(oathLexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(3),
)

// ParseModule parses one Oath source file. A nil module means the source
// was too broken to recover a tree; diagnostics may be non-empty either way.
func ParseModule(filename, source string) (*ast.Module, []diag.Diagnostic) {
	file, err := oathParser.ParseString(filename, source)
	if err != nil {
		return nil, []diag.Diagnostic{parseErrorDiag(filename, err)}
	}

	conv := &converter{}
	module := conv.module(file.Module)
	return module, conv.diags
}

// ParseFile reads and parses a file from disk. The error covers I/O only;
// syntax problems come back as diagnostics.
func ParseFile(path string) (*ast.Module, []diag.Diagnostic, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read file: %w", err)
	}
	module, diags := ParseModule(path, string(source))
	return module, diags, nil
}

func parseErrorDiag(filename string, err error) diag.Diagnostic {
	pe, ok := err.(participle.Error)
	if !ok {
		span := ast.Span{Start: ast.Position{Filename: filename, Line: 1, Column: 1}}
		span.End = span.Start
		return diag.New(diag.CodeParseError, err.Error(), span).Build()
	}

	pos := ast.Position{
		Filename: pe.Position().Filename,
		Offset:   pe.Position().Offset,
		Line:     pe.Position().Line,
		Column:   pe.Position().Column,
	}
	end := pos
	end.Column++
	return diag.New(diag.CodeParseError, pe.Message(), ast.Span{Start: pos, End: end}).Build()
}
