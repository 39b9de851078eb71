package effects

// Class is a semantic effect class derived from a function's declared
// reads/writes resources. Sink classes mark operations that must never
// receive unsanitized external input.
type Class int

const (
	None Class = iota
	DatabaseRead
	DatabaseWrite
	ProcessExec
	MarkupEmit
	ExternalInput
	ConsoleWrite
)

func (c Class) String() string {
	switch c {
	case DatabaseRead:
		return "database read"
	case DatabaseWrite:
		return "database write"
	case ProcessExec:
		return "process execution"
	case MarkupEmit:
		return "markup emission"
	case ExternalInput:
		return "external input"
	case ConsoleWrite:
		return "console write"
	}
	return "none"
}

// IsSink reports whether the class is one of the fixed sink classes.
func (c Class) IsSink() bool {
	switch c {
	case DatabaseWrite, ProcessExec, MarkupEmit:
		return true
	}
	return false
}

// IsSource reports whether the class introduces externally supplied data.
func (c Class) IsSource() bool {
	return c == ExternalInput
}

// Resource names usable in reads(...) and writes(...) clauses.
var KnownResources = map[string]bool{
	"Database": true,
	"Process":  true,
	"Markup":   true,
	"Input":    true,
	"Console":  true,
}

// ClassOfRead maps a reads(resource) clause to its effect class.
func ClassOfRead(resource string) Class {
	switch resource {
	case "Database":
		return DatabaseRead
	case "Input":
		return ExternalInput
	}
	return None
}

// ClassOfWrite maps a writes(resource) clause to its effect class.
func ClassOfWrite(resource string) Class {
	switch resource {
	case "Database":
		return DatabaseWrite
	case "Process":
		return ProcessExec
	case "Markup":
		return MarkupEmit
	case "Console":
		return ConsoleWrite
	}
	return None
}
