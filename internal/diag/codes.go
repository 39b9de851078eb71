package diag

// Diagnostic codes used across the engine and the front end.
//
// Code ranges:
// E0001-E0099: front end (parse, name resolution, typing)
// D0001-D0099: dataflow analysis
// B0001-B0099: bug-pattern detection
// S0001-S0099: taint/security analysis
// A0001-A0099: coordinator and policy findings

const (
	// Front end

	// E0001: reference to an undeclared variable
	CodeUndefinedVariable = "E0001"

	// E0002: call to an unknown function
	CodeUndefinedFunction = "E0002"

	// E0003: operand or assignment type mismatch
	CodeTypeMismatch = "E0003"

	// E0004: return value inconsistent with the declared return type
	CodeInvalidReturn = "E0004"

	// E0005: non-boolean condition in if/while/do-while
	CodeInvalidCondition = "E0005"

	// E0006: duplicate declaration in the same scope
	CodeDuplicateDeclaration = "E0006"

	// E0007: numeric literal outside its type's range
	CodeNumericOverflow = "E0007"

	// E0008: contract expression is not boolean
	CodeContractNotBoolean = "E0008"

	// E0009: reserved name 'result' used outside a postcondition
	CodeResultOutsidePost = "E0009"

	// E0010: malformed reads/writes effect clause
	CodeInvalidEffect = "E0010"

	// E0011: wrong argument count or argument types in a call
	CodeInvalidArguments = "E0011"

	// E0012: syntax error from the parser
	CodeParseError = "E0012"

	// E0013: assignment to something that is not a variable or element
	CodeInvalidAssignTarget = "E0013"

	// Dataflow

	// D0001: variable read while uninitialized on every path
	CodeUninitializedRead = "D0001"

	// D0002: variable read while uninitialized on some path
	CodeMaybeUninitializedRead = "D0002"

	// D0003: statement can never execute
	CodeUnreachableCode = "D0003"

	// D0004: assigned value is never used
	CodeDeadStore = "D0004"

	// Bug patterns

	// B0001: divisor is definitely zero
	CodeDivisionByZero = "B0001"

	// B0002: divisor may be zero
	CodePossibleDivisionByZero = "B0002"

	// B0003: possible null dereference
	CodeNullDereference = "B0003"

	// B0004: constant arithmetic exceeds the declared type's range
	CodeIntegerOverflow = "B0004"

	// B0005: index provably outside [0, length)
	CodeIndexOutOfBounds = "B0005"

	// Security

	// S0001: tainted value reaches a sink without sanitization
	CodeTaintedSink = "S0001"

	// Coordinator

	// A0001: analyzer fault confined to one function
	CodeAnalyzerFault = "A0001"

	// A0002: unknown external call rejected under the strict policy
	CodeUnknownCallStrict = "A0002"

	// A0003: unknown external call assumed effectful under the default policy
	CodeUnknownCallAssumed = "A0003"
)

type codeInfo struct {
	Severity Severity
	Category Category
}

var codeTable = map[string]codeInfo{
	CodeUndefinedVariable:    {Error, Other},
	CodeUndefinedFunction:    {Error, Other},
	CodeTypeMismatch:         {Error, Other},
	CodeInvalidReturn:        {Error, Other},
	CodeInvalidCondition:     {Error, Other},
	CodeDuplicateDeclaration: {Error, Other},
	CodeNumericOverflow:      {Error, Other},
	CodeContractNotBoolean:   {Error, Other},
	CodeResultOutsidePost:    {Error, Other},
	CodeInvalidEffect:        {Error, Other},
	CodeInvalidArguments:     {Error, Other},
	CodeParseError:           {Error, Other},
	CodeInvalidAssignTarget:  {Error, Other},

	CodeUninitializedRead:      {Error, Dataflow},
	CodeMaybeUninitializedRead: {Warning, Dataflow},
	CodeUnreachableCode:        {Warning, Dataflow},
	CodeDeadStore:              {Warning, Dataflow},

	CodeDivisionByZero:         {Error, BugPattern},
	CodePossibleDivisionByZero: {Warning, BugPattern},
	CodeNullDereference:        {Warning, BugPattern},
	CodeIntegerOverflow:        {Error, BugPattern},
	CodeIndexOutOfBounds:       {Error, BugPattern},

	CodeTaintedSink: {Error, Security},

	CodeAnalyzerFault:      {Warning, Other},
	CodeUnknownCallStrict:  {Error, Other},
	CodeUnknownCallAssumed: {Warning, Other},
}

func infoFor(code string) codeInfo {
	if info, ok := codeTable[code]; ok {
		return info
	}
	return codeInfo{Severity: Error, Category: Other}
}
