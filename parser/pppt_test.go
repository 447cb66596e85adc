package parser

import (
	"testing"

	"github.com/coregx/apg/grammar"
)

// ppptDef builds S = "a" / "bc" over the alphabet spanning 'A'..'c', with
// or without the rule-level PPPT map.
func ppptDef(withMap bool) *grammar.Def {
	def := &grammar.Def{
		ACharMin: 'A',
		ACharMax: 'c',
		Rules: []grammar.RuleDef{
			{Name: "S", Ops: []grammar.Op{
				{Kind: grammar.KindAlt, Children: []int{1, 2}},
				{Kind: grammar.KindTls, Lit: []grammar.Achar{'a'}},
				{Kind: grammar.KindTls, Lit: []grammar.Achar{'b', 'c'}},
			}},
		},
	}
	if !withMap {
		return def
	}
	m := make([]byte, grammar.MapSize('A', 'c')) // all NOMATCH
	m['a'-'A'] = grammar.PpptMatch
	m['A'-'A'] = grammar.PpptMatch
	m['b'-'A'] = grammar.PpptActive
	m['B'-'A'] = grammar.PpptActive
	def.Rules[0].Map = m
	return def
}

// countingTracer records every opcode-boundary enter event.
type countingTracer struct {
	enters []OpEvent
}

func (c *countingTracer) Enter(e OpEvent)          { c.enters = append(c.enters, e) }
func (c *countingTracer) Exit(OpEvent, State, int) {}

func TestPppt_ShortCircuitAtRoot(t *testing.T) {
	g, err := grammar.Build(ppptDef(true))
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	p := New(g)
	defer p.Close()
	tr := &countingTracer{}
	p.SetTracer(tr)

	res := mustParse(t, p, "A")
	if res.State != Match || res.PhraseLength != 1 {
		t.Errorf("A: got (%v, %d), want (MATCH, 1)", res.State, res.PhraseLength)
	}
	if res.NodeCount != 1 || len(tr.enters) != 1 {
		t.Errorf("A: visited %d nodes (%d traced), want the map to decide at the root", res.NodeCount, len(tr.enters))
	}

	tr.enters = nil
	res = mustParse(t, p, "c")
	if res.State != Nomatch {
		t.Errorf("c: state = %v, want NOMATCH", res.State)
	}
	if res.NodeCount != 1 {
		t.Errorf("c: visited %d nodes, want 1", res.NodeCount)
	}

	// ACTIVE cell falls through to the full descent
	res = mustParse(t, p, "bc")
	if res.State != Match || res.PhraseLength != 2 {
		t.Errorf("bc: got (%v, %d), want (MATCH, 2)", res.State, res.PhraseLength)
	}
	if res.NodeCount == 1 {
		t.Error("bc: expected a full descent for an ACTIVE map cell")
	}
}

func TestPppt_Transparency(t *testing.T) {
	gWith, err := grammar.Build(ppptDef(true))
	if err != nil {
		t.Fatalf("Build(with map) failed: %v", err)
	}
	gWithout, err := grammar.Build(ppptDef(false))
	if err != nil {
		t.Fatalf("Build(without map) failed: %v", err)
	}
	pWith, pWithout := New(gWith), New(gWithout)
	defer pWith.Close()
	defer pWithout.Close()

	for _, input := range []string{"", "a", "A", "b", "bc", "BC", "c", "ab", "ba"} {
		t.Run("input_"+input, func(t *testing.T) {
			with := mustParse(t, pWith, input)
			without := mustParse(t, pWithout, input)
			if with.State != without.State || with.PhraseLength != without.PhraseLength {
				t.Errorf("diverged: with map (%v, %d), without (%v, %d)",
					with.State, with.PhraseLength, without.State, without.PhraseLength)
			}
		})
	}
}

func TestPppt_EndOfInputCell(t *testing.T) {
	// an EMPTY end-of-input cell decides the parse without a descent
	def := ppptDef(true)
	def.Rules[0].Map[grammar.MapSize('A', 'c')-1] = grammar.PpptEmpty
	g, err := grammar.Build(def)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	p := New(g)
	defer p.Close()

	res := mustParse(t, p, "")
	if res.State != Empty || res.NodeCount != 1 {
		t.Errorf("got (%v, %d nodes), want (EMPTY, 1)", res.State, res.NodeCount)
	}
}
