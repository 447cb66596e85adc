package parser

import (
	"testing"

	"github.com/coregx/apg/conv"
	"github.com/coregx/apg/grammar"
)

// opcode construction shorthand for hand-built test grammars

func opTls(s string) grammar.Op {
	return grammar.Op{Kind: grammar.KindTls, Lit: conv.String(s)}
}

func opTbs(s string) grammar.Op {
	return grammar.Op{Kind: grammar.KindTbs, Lit: conv.String(s)}
}

func opAlt(children ...int) grammar.Op {
	return grammar.Op{Kind: grammar.KindAlt, Children: children}
}

func opCat(children ...int) grammar.Op {
	return grammar.Op{Kind: grammar.KindCat, Children: children}
}

func opRep(min, max uint64) grammar.Op {
	return grammar.Op{Kind: grammar.KindRep, Min: min, Max: max}
}

func opRnm(name string) grammar.Op {
	return grammar.Op{Kind: grammar.KindRnm, Rule: name}
}

func opTrg(lo, hi grammar.Achar) grammar.Op {
	return grammar.Op{Kind: grammar.KindTrg, Lo: lo, Hi: hi}
}

func opKind(k grammar.Kind) grammar.Op {
	return grammar.Op{Kind: k}
}

func opBkr(target string, mode grammar.BkrMode, cs grammar.BkrCase) grammar.Op {
	return grammar.Op{Kind: grammar.KindBkr, Target: target, Mode: mode, Case: cs}
}

func mustBuild(t *testing.T, def *grammar.Def) *grammar.Grammar {
	t.Helper()
	g, err := grammar.Build(def)
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	return g
}

// singleRule builds a one-rule grammar from an opcode sequence.
func singleRule(t *testing.T, name string, ops ...grammar.Op) *grammar.Grammar {
	t.Helper()
	return mustBuild(t, &grammar.Def{
		Rules: []grammar.RuleDef{{Name: name, Ops: ops}},
	})
}

func mustParse(t *testing.T, p *Parser, input string) *Result {
	t.Helper()
	cfg := DefaultConfig(conv.String(input))
	res, err := p.Parse(&cfg)
	if err != nil {
		t.Fatalf("Parse(%q) failed: %v", input, err)
	}
	return res
}
