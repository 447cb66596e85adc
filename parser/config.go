package parser

import "github.com/coregx/apg/grammar"

// Config defines one parse: the input, the starting rule and the bounds and
// limits the interpreter honors.
type Config struct {
	// Input is the string to parse, borrowed for the duration of the
	// parse.
	Input []grammar.Achar

	// StartRule is the starting rule index. A negative value selects the
	// grammar's recorded start rule.
	StartRule int

	// ParseSub restricts the parse to Input[SubBegin:SubBegin+SubLength].
	// A SubLength of zero extends the substring to the end of the input.
	ParseSub  bool
	SubBegin  int
	SubLength int

	// MaxLookBehind bounds the candidate walk of look-behind operators.
	// Zero means unbounded (back to the substring beginning).
	MaxLookBehind int

	// MaxDepth bounds the execution stack. Zero means unlimited; parses
	// that exceed a non-zero bound fail with ErrDepthExceeded.
	MaxDepth int

	// UserData is handed to every callback unexamined.
	UserData any
}

// DefaultConfig returns a configuration parsing all of input from the
// grammar's start rule.
func DefaultConfig(input []grammar.Achar) Config {
	return Config{Input: input, StartRule: -1}
}

// Result is the final state of a parse: the only numeric outputs the
// engine reports. Everything else is delivered through callbacks or the
// AST sequence.
type Result struct {
	// State is Match, Empty or Nomatch.
	State State
	// Success reports whether the entire substring was consumed.
	Success bool
	// PhraseLength is the length of the matched phrase.
	PhraseLength int
	// InputLength is the length of the parsed substring.
	InputLength int
	// MaxTreeDepth is the deepest execution stack reached.
	MaxTreeDepth int
	// NodeCount is the number of parse tree nodes visited.
	NodeCount int
}

// CallbackData is the view a rule or UDT callback receives.
type CallbackData struct {
	// Input is the full input string; the phrase under consideration
	// starts at Offset.
	Input []grammar.Achar
	// Offset is the cursor at the callback's node.
	Offset int
	// SubEnd is the substring end; a UDT may not match past it.
	SubEnd int
	// State is Active on rule entry, the node's result on rule exit.
	State State
	// PhraseLength is the engine's matched length on rule exit, 0
	// otherwise.
	PhraseLength int
	// RuleIndex identifies a rule callback; -1 for UDT callbacks.
	RuleIndex int
	// UdtIndex identifies a UDT callback; -1 for rule callbacks.
	UdtIndex int
	// UserData is the Config.UserData pointer.
	UserData any
}

// RuleCallback observes rule entry and exit. On entry (State==Active) a
// non-Active return overrides the engine: the subtree is not descended and
// the returned state and length stand in for it, subject to range checks.
// On exit the returned state and length are ignored. A non-nil error is
// fatal to the parse.
type RuleCallback func(d *CallbackData) (State, int, error)

// UdtCallback decides acceptance for a user-defined terminal. It must
// return Match, Empty or Nomatch; Active violates the UDT contract, as
// does an empty match from a "u_" UDT or a length past the substring end.
// A non-nil error is fatal to the parse.
type UdtCallback func(d *CallbackData) (State, int, error)
