package parser

import "github.com/coregx/apg/grammar"

// OpEvent describes one opcode-boundary event delivered to a Tracer.
type OpEvent struct {
	// OpIndex is the absolute opcode index, or -1 for the parse root.
	OpIndex int
	Kind    grammar.Kind
	Cursor  int
	// Lookaround reports whether the event fired inside a look-ahead or
	// look-behind predicate.
	Lookaround bool
	// Depth is the execution stack depth at the event.
	Depth int
}

// Tracer receives every opcode-boundary event of a parse. Tracers must not
// mutate parser state; they cannot perturb parse semantics.
type Tracer interface {
	Enter(e OpEvent)
	Exit(e OpEvent, st State, length int)
}

// Stats accumulates node-visit statistics over one or more parses. Visits
// made inside look-around predicates are not counted, matching the
// suppression applied to AST recording.
type Stats struct {
	byKind   [32]kindStats
	total    kindStats
	maxDepth int
}

type kindStats struct {
	Match   int
	Empty   int
	Nomatch int
}

// Total returns the total counted visits.
func (s *Stats) Total() int {
	return s.total.Match + s.total.Empty + s.total.Nomatch
}

// Matched returns counted visits that ended in Match or Empty.
func (s *Stats) Matched() int {
	return s.total.Match + s.total.Empty
}

// Kind returns the (match, empty, nomatch) visit counts for one opcode
// kind.
func (s *Stats) Kind(k grammar.Kind) (match, empty, nomatch int) {
	ks := &s.byKind[k]
	return ks.Match, ks.Empty, ks.Nomatch
}

// MaxDepth returns the deepest execution stack observed.
func (s *Stats) MaxDepth() int {
	return s.maxDepth
}

// Reset zeroes the collector.
func (s *Stats) Reset() {
	*s = Stats{}
}

func (s *Stats) hit(k grammar.Kind, st State, depth int) {
	ks := &s.byKind[k]
	switch st {
	case Match:
		ks.Match++
		s.total.Match++
	case Empty:
		ks.Empty++
		s.total.Empty++
	case Nomatch:
		ks.Nomatch++
		s.total.Nomatch++
	}
	if depth > s.maxDepth {
		s.maxDepth = depth
	}
}
