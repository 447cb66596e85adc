package parser

import (
	"strings"
	"testing"

	"github.com/coregx/apg/conv"
	"github.com/coregx/apg/grammar"
)

// csvGrammar is record = field *("," field) ; field = *%d97-122
func csvGrammar(b *testing.B) *grammar.Grammar {
	b.Helper()
	g, err := grammar.Build(&grammar.Def{
		Rules: []grammar.RuleDef{
			{Name: "record", Ops: []grammar.Op{
				{Kind: grammar.KindCat, Children: []int{1, 2}},
				{Kind: grammar.KindRnm, Rule: "field"},
				{Kind: grammar.KindRep, Min: 0, Max: grammar.Infinite},
				{Kind: grammar.KindCat, Children: []int{4, 5}},
				{Kind: grammar.KindTbs, Lit: conv.String(",")},
				{Kind: grammar.KindRnm, Rule: "field"},
			}},
			{Name: "field", Ops: []grammar.Op{
				{Kind: grammar.KindRep, Min: 0, Max: grammar.Infinite},
				{Kind: grammar.KindTrg, Lo: 'a', Hi: 'z'},
			}},
		},
	})
	if err != nil {
		b.Fatalf("Build() failed: %v", err)
	}
	return g
}

func BenchmarkParse_Record(b *testing.B) {
	p := New(csvGrammar(b))
	defer p.Close()
	input := conv.String(strings.TrimSuffix(strings.Repeat("abcdef,", 64), ","))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := DefaultConfig(input)
		res, err := p.Parse(&cfg)
		if err != nil {
			b.Fatal(err)
		}
		if !res.Success {
			b.Fatal("unexpected parse failure")
		}
	}
}

func BenchmarkParse_DeepNesting(b *testing.B) {
	// S = "(" S ")" / "x"
	g, err := grammar.Build(&grammar.Def{
		Rules: []grammar.RuleDef{
			{Name: "S", Ops: []grammar.Op{
				{Kind: grammar.KindAlt, Children: []int{1, 5}},
				{Kind: grammar.KindCat, Children: []int{2, 3, 4}},
				{Kind: grammar.KindTbs, Lit: conv.String("(")},
				{Kind: grammar.KindRnm, Rule: "S"},
				{Kind: grammar.KindTbs, Lit: conv.String(")")},
				{Kind: grammar.KindTbs, Lit: conv.String("x")},
			}},
		},
	})
	if err != nil {
		b.Fatalf("Build() failed: %v", err)
	}
	p := New(g)
	defer p.Close()
	depth := 256
	input := conv.String(strings.Repeat("(", depth) + "x" + strings.Repeat(")", depth))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cfg := DefaultConfig(input)
		res, err := p.Parse(&cfg)
		if err != nil {
			b.Fatal(err)
		}
		if !res.Success {
			b.Fatal("unexpected parse failure")
		}
	}
}
