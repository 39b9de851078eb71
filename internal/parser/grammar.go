package parser

import (
	"github.com/alecthomas/participle/v2/lexer"
)

// Grammar structs for the Oath surface syntax. participle fills Pos and
// EndPos from the token stream; convert.go lowers these into the typed AST
// the engine consumes.

var oathLexer = lexer.MustStateful(lexer.Rules{
	"Root": {
		// Comments
		{Name: "Comment", Pattern: `//[^\n]*`, Action: nil},

		// Literals
		{Name: "String", Pattern: `"(\\.|[^"\\])*"`, Action: nil},
		{Name: "Integer", Pattern: `0x[0-9a-fA-F]+|[0-9]+`, Action: nil},

		// Keywords and identifiers
		{Name: "Ident", Pattern: `[a-zA-Z_][a-zA-Z0-9_]*`, Action: nil},

		// Multi-character tokens (order matters)
		{Name: "DColon", Pattern: `::`, Action: nil},
		{Name: "Range", Pattern: `\.\.`, Action: nil},
		{Name: "Arrow", Pattern: `->`, Action: nil},
		{Name: "Operator", Pattern: `\|\||&&|==|!=|<=|>=|[-+*/%<>=!]`, Action: nil},

		// Punctuation
		{Name: "Punctuation", Pattern: `[{}()\[\]#:,;?]`, Action: nil},

		// Whitespace
		{Name: "Whitespace", Pattern: `[ \t\r\n]+`, Action: nil},
	},
})

type posIdent struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Value  string `parser:"@Ident"`
}

type fileNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Module *moduleNode `parser:"@@"`
}

type moduleNode struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Name      posIdent        `parser:"\"module\" @@ \"{\""`
	Functions []*functionNode `parser:"@@*"`
	Close     string          `parser:"\"}\""`
}

type attributeNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   string `parser:"\"#\" \"[\" @Ident \"]\""`
}

type functionNode struct {
	Pos       lexer.Position
	EndPos    lexer.Position
	Attribute *attributeNode `parser:"@@?"`
	Name      posIdent       `parser:"\"fn\" @@"`
	Params    []*paramNode   `parser:"\"(\" [ @@ { \",\" @@ } ] \")\""`
	Return    *typeRefNode   `parser:"[ \"->\" @@ ]"`
	Clauses   []*clauseNode  `parser:"@@*"`
	Body      *blockNode     `parser:"@@"`
}

type paramNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   posIdent     `parser:"@@ \":\""`
	Type   *typeRefNode `parser:"@@"`
}

type typeRefNode struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Name     posIdent       `parser:"@@"`
	Generics []*typeRefNode `parser:"[ \"<\" @@ { \",\" @@ } \">\" ]"`
	Nullable bool           `parser:"[ @\"?\" ]"`
}

// clauseNode is one contract or effect clause between the signature and
// the body: requires(...), ensures(...), reads(...), writes(...).
type clauseNode struct {
	Pos      lexer.Position
	EndPos   lexer.Position
	Requires *exprNode   `parser:"  \"requires\" \"(\" @@ \")\""`
	Ensures  *exprNode   `parser:"| \"ensures\" \"(\" @@ \")\""`
	Reads    []*posIdent `parser:"| \"reads\" \"(\" @@ { \",\" @@ } \")\""`
	Writes   []*posIdent `parser:"| \"writes\" \"(\" @@ { \",\" @@ } \")\""`
}

type blockNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Stmts  []*stmtNode `parser:"\"{\" @@* \"}\""`
}

type stmtNode struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Let     *letNode     `parser:"  @@"`
	If      *ifNode      `parser:"| @@"`
	While   *whileNode   `parser:"| @@"`
	DoWhile *doWhileNode `parser:"| @@"`
	For     *forNode     `parser:"| @@"`
	Return  *returnNode  `parser:"| @@"`
	Throw   *throwNode   `parser:"| @@"`
	Simple  *simpleNode  `parser:"| @@"`
}

type letNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Name   posIdent     `parser:"\"let\" @@"`
	Type   *typeRefNode `parser:"[ \":\" @@ ]"`
	Value  *exprNode    `parser:"[ \"=\" @@ ] \";\""`
}

type ifNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Cond   *exprNode   `parser:"\"if\" @@"`
	Then   *blockNode  `parser:"@@"`
	Else   *elseClause `parser:"@@?"`
}

type elseClause struct {
	Pos    lexer.Position
	EndPos lexer.Position
	If     *ifNode    `parser:"\"else\" ( @@"`
	Block  *blockNode `parser:"| @@ )"`
}

type whileNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Cond   *exprNode  `parser:"\"while\" @@"`
	Body   *blockNode `parser:"@@"`
}

type doWhileNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Body   *blockNode `parser:"\"do\" @@"`
	Cond   *exprNode  `parser:"\"while\" @@ \";\""`
}

type forNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Var    posIdent   `parser:"\"for\" @@ \"in\""`
	From   *exprNode  `parser:"@@ \"..\""`
	To     *exprNode  `parser:"@@"`
	Body   *blockNode `parser:"@@"`
}

type returnNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Value  *exprNode `parser:"\"return\" [ @@ ] \";\""`
}

type throwNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Value  *exprNode `parser:"\"throw\" [ @@ ] \";\""`
}

// simpleNode covers both assignment and bare call statements: an
// expression optionally followed by "=" value.
type simpleNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Target *exprNode `parser:"@@"`
	Value  *exprNode `parser:"[ \"=\" @@ ] \";\""`
}

// Expression cascade, loosest binding first. Each level left-folds in
// convert.go so operators associate the usual way.

type exprNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *andNode `parser:"@@"`
	Rest   []*orRHS `parser:"@@*"`
}

type orRHS struct {
	Op    string   `parser:"@\"||\""`
	Right *andNode `parser:"@@"`
}

type andNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *cmpNode  `parser:"@@"`
	Rest   []*andRHS `parser:"@@*"`
}

type andRHS struct {
	Op    string   `parser:"@\"&&\""`
	Right *cmpNode `parser:"@@"`
}

type cmpNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *addNode  `parser:"@@"`
	Rest   []*cmpRHS `parser:"@@*"`
}

type cmpRHS struct {
	Op    string   `parser:"@(\"==\" | \"!=\" | \"<=\" | \">=\" | \"<\" | \">\")"`
	Right *addNode `parser:"@@"`
}

type addNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *mulNode  `parser:"@@"`
	Rest   []*addRHS `parser:"@@*"`
}

type addRHS struct {
	Op    string   `parser:"@(\"+\" | \"-\")"`
	Right *mulNode `parser:"@@"`
}

type mulNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Left   *unaryNode `parser:"@@"`
	Rest   []*mulRHS  `parser:"@@*"`
}

type mulRHS struct {
	Op    string     `parser:"@(\"*\" | \"/\" | \"%\")"`
	Right *unaryNode `parser:"@@"`
}

type unaryNode struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Op      string       `parser:"[ @(\"-\" | \"!\") ]"`
	Postfix *postfixNode `parser:"@@"`
}

type postfixNode struct {
	Pos     lexer.Position
	EndPos  lexer.Position
	Primary *primaryNode `parser:"@@"`
	Indexes []*indexRHS  `parser:"@@*"`
}

type indexRHS struct {
	Index *exprNode `parser:"\"[\" @@ \"]\""`
}

type primaryNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Int    *string   `parser:"  @Integer"`
	Str    *string   `parser:"| @String"`
	True   bool      `parser:"| @\"true\""`
	False  bool      `parser:"| @\"false\""`
	Null   bool      `parser:"| @\"null\""`
	Path   *pathNode `parser:"| @@"`
	Paren  *exprNode `parser:"| \"(\" @@ \")\""`
}

// pathNode is an identifier, a qualified name, or a call of either.
type pathNode struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Head   posIdent    `parser:"@@"`
	Tail   []*posIdent `parser:"{ \"::\" @@ }"`
	Call   *callArgs   `parser:"@@?"`
}

type callArgs struct {
	Pos    lexer.Position
	EndPos lexer.Position
	Args   []*exprNode `parser:"\"(\" [ @@ { \",\" @@ } ] \")\""`
}
