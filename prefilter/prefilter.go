// Package prefilter provides fast candidate filtering for grammar phrase
// searches using the grammar's leading literal terminals.
//
// A prefilter is used to reject start offsets that cannot possibly begin a
// match of the start rule, so a forward search runs the full interpreter
// only at offsets where one of the leading literals actually occurs. The
// literal set is extracted from the opcode table: an extraction succeeds
// only when every alternative path through the start rule begins with a
// fixed literal, making the candidate set exhaustive. Matching uses an
// Aho-Corasick automaton over the extracted literals.
//
// Prefiltering never changes what matches; it only skips offsets the full
// parse would reject anyway.
package prefilter

import (
	"github.com/coregx/ahocorasick"

	"github.com/coregx/apg/grammar"
)

// extraction limits: deep or wide leading-literal sets stop paying for
// themselves
const (
	maxExtractDepth = 20
	maxTrgSpread    = 16
	maxLiterals     = 256
)

// Literals is a prefilter over a grammar's leading literal set.
type Literals struct {
	auto     *ahocorasick.Automaton
	count    int
	complete bool
}

// FromGrammar extracts the leading literals of the given start rule and
// builds the automaton. The result is never nil; IsUseful reports whether
// the extraction produced an exhaustive, non-empty literal set.
func FromGrammar(g *grammar.Grammar, startRule int) *Literals {
	l := &Literals{}
	if startRule < 0 || startRule >= g.RuleCount() {
		return l
	}
	e := &extractor{g: g, seen: make(map[int]bool)}
	lits := e.rule(startRule, 0)
	if len(lits) == 0 || len(lits) > maxLiterals {
		return l
	}
	builder := ahocorasick.NewBuilder()
	for _, lit := range lits {
		builder.AddPattern(lit)
	}
	auto, err := builder.Build()
	if err != nil {
		return l
	}
	l.auto = auto
	l.count = len(lits)
	l.complete = true
	return l
}

// IsUseful reports whether the prefilter can reject offsets: the leading
// literal set must be exhaustive and non-empty.
func (l *Literals) IsUseful() bool {
	return l.complete && l.count > 0
}

// Count returns the number of extracted literals.
func (l *Literals) Count() int {
	return l.count
}

// Find returns the first offset at or after start where a leading literal
// occurs, or -1. Offsets the full parse could accept are never skipped.
func (l *Literals) Find(haystack []byte, start int) int {
	if !l.IsUseful() || start > len(haystack) {
		return -1
	}
	m := l.auto.Find(haystack, start)
	if m == nil {
		return -1
	}
	return m.Start
}

// extractor walks opcodes collecting the literals a phrase can begin with.
// A nil return means the walk hit something undecidable (an operator that
// can match empty or a non-literal terminal) and the set is not
// exhaustive.
type extractor struct {
	g    *grammar.Grammar
	seen map[int]bool
}

func (e *extractor) rule(index, depth int) [][]byte {
	if e.seen[index] {
		return nil // recursive leading position, bail out
	}
	e.seen[index] = true
	defer delete(e.seen, index)
	return e.op(e.g.Rule(index).OpOffset, depth)
}

//nolint:gocyclo // pattern walking naturally branches per opcode kind
func (e *extractor) op(opIdx, depth int) [][]byte {
	if depth > maxExtractDepth {
		return nil
	}
	op := e.g.Opcode(opIdx)
	switch op.Kind {
	case grammar.KindAlt:
		var out [][]byte
		for _, c := range e.g.Children(op) {
			lits := e.op(c, depth+1)
			if lits == nil {
				return nil
			}
			out = append(out, lits...)
		}
		return out

	case grammar.KindCat:
		for _, c := range e.g.Children(op) {
			// anchors consume nothing; the literal comes from what follows
			if k := e.g.Opcode(c).Kind; k == grammar.KindAbg || k == grammar.KindAen {
				continue
			}
			return e.op(c, depth+1)
		}
		return nil

	case grammar.KindRep:
		if op.Min == 0 {
			return nil // may match empty, set would not be exhaustive
		}
		return e.op(opIdx+1, depth+1)

	case grammar.KindRnm:
		return e.rule(op.Rule, depth+1)

	case grammar.KindTrg:
		if op.Hi-op.Lo >= maxTrgSpread || op.Hi > 0xFF {
			return nil
		}
		var out [][]byte
		for c := op.Lo; c <= op.Hi; c++ {
			out = append(out, []byte{byte(c)})
		}
		return out

	case grammar.KindTbs:
		return e.literal(op)

	case grammar.KindTls:
		lit := e.g.Literal(op)
		if len(lit) == 0 {
			return nil
		}
		for _, c := range lit {
			if isAsciiLetter(c) {
				// case variants would explode the set
				return nil
			}
		}
		return e.literal(op)

	default:
		// UDT, BKR, predicates: undecidable from the image alone
		return nil
	}
}

func (e *extractor) literal(op *grammar.Opcode) [][]byte {
	lit := e.g.Literal(op)
	out := make([]byte, len(lit))
	for i, c := range lit {
		if c > 0xFF {
			return nil
		}
		out[i] = byte(c)
	}
	return [][]byte{out}
}

func isAsciiLetter(c grammar.Achar) bool {
	return (c >= 0x41 && c <= 0x5A) || (c >= 0x61 && c <= 0x7A)
}
