// Package apg provides a recursive-descent parsing engine for phrases
// described by ABNF grammars with the SABNF superset of operators.
//
// apg evaluates a compiled grammar image against an input string with:
//   - Deterministic depth-first evaluation over fifteen opcode variants
//   - A Partially-Predictive Parsing Table (PPPT) single-character
//     short-circuit when the image carries prediction maps
//   - Look-ahead and look-behind predicates, anchors, and universal and
//     parent-frame back-references
//   - User-defined terminals decided by host callbacks
//   - Optional AST capture of an application-selected rule subset
//
// The grammar image is produced by the external generator and loaded with
// the grammar package; this package is the runtime only.
//
// Basic usage:
//
//	g, err := grammar.Load(imageInit)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	p := apg.New(g)
//	res, err := p.Parse(conv.String("abc"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if res.Success {
//	    fmt.Println("matched", res.PhraseLength, "characters")
//	}
//
// A grammar image is immutable and may be shared by any number of Parser
// instances concurrently. A Parser instance is not safe for concurrent
// use; its only cross-goroutine operation is Engine().Cancel.
package apg

import (
	"github.com/coregx/apg/grammar"
	"github.com/coregx/apg/parser"
	"github.com/coregx/apg/prefilter"
)

// Config controls facade behavior.
type Config struct {
	// EnablePrefilter enables the leading-literal prefilter used by Find.
	// When false, Find tries every offset.
	// Default: true
	EnablePrefilter bool

	// MaxDepth bounds the interpreter's execution stack. Zero means
	// unlimited.
	MaxDepth int

	// MaxLookBehind bounds the look-behind candidate walk. Zero means
	// unbounded.
	MaxLookBehind int
}

// DefaultConfig returns the default facade configuration.
func DefaultConfig() Config {
	return Config{EnablePrefilter: true}
}

// Parser is the public parsing facade: one grammar image, one interpreter
// instance, reusable across any number of parses.
type Parser struct {
	g      *grammar.Grammar
	engine *parser.Parser
	cfg    Config
	pf     *prefilter.Literals
}

// New creates a parser for the grammar image with the default
// configuration.
func New(g *grammar.Grammar) *Parser {
	return NewWithConfig(g, DefaultConfig())
}

// NewWithConfig creates a parser with a custom facade configuration.
func NewWithConfig(g *grammar.Grammar, cfg Config) *Parser {
	p := &Parser{g: g, engine: parser.New(g), cfg: cfg}
	if cfg.EnablePrefilter {
		p.pf = prefilter.FromGrammar(g, g.StartRule())
	}
	return p
}

// Grammar returns the image this parser evaluates.
func (p *Parser) Grammar() *grammar.Grammar {
	return p.g
}

// Engine exposes the underlying interpreter for configuration beyond the
// facade surface: AST capture, tracing, statistics, per-index callbacks.
func (p *Parser) Engine() *parser.Parser {
	return p.engine
}

// Close releases the instance's working memory.
func (p *Parser) Close() {
	p.engine.Close()
}

// SetRuleCallback installs a callback for the named rule.
func (p *Parser) SetRuleCallback(name string, fn parser.RuleCallback) error {
	i, ok := p.g.RuleIndex(name)
	if !ok {
		return unknownName("rule", name)
	}
	p.engine.SetRuleCallback(i, fn)
	return nil
}

// SetUdtCallback installs the callback for the named UDT. Every declared
// UDT needs one before parsing.
func (p *Parser) SetUdtCallback(name string, fn parser.UdtCallback) error {
	i, ok := p.g.UdtIndex(name)
	if !ok {
		return unknownName("UDT", name)
	}
	p.engine.SetUdtCallback(i, fn)
	return nil
}

// SetAstCallback opts the named rule or UDT into AST capture with an
// optional callback.
func (p *Parser) SetAstCallback(name string, fn parser.AstCallback) error {
	if i, ok := p.g.RuleIndex(name); ok {
		p.engine.SetAstRuleCallback(i, fn)
		return nil
	}
	if i, ok := p.g.UdtIndex(name); ok {
		p.engine.SetAstUdtCallback(i, fn)
		return nil
	}
	return unknownName("rule or UDT", name)
}

// Parse evaluates the grammar's start rule against the whole input.
func (p *Parser) Parse(input []grammar.Achar) (*parser.Result, error) {
	cfg := parser.DefaultConfig(input)
	cfg.MaxDepth = p.cfg.MaxDepth
	cfg.MaxLookBehind = p.cfg.MaxLookBehind
	return p.engine.Parse(&cfg)
}

// ParseAt evaluates the grammar's start rule against input from offset to
// the end.
func (p *Parser) ParseAt(input []grammar.Achar, offset int) (*parser.Result, error) {
	cfg := parser.DefaultConfig(input)
	cfg.ParseSub = true
	cfg.SubBegin = offset
	cfg.MaxDepth = p.cfg.MaxDepth
	cfg.MaxLookBehind = p.cfg.MaxLookBehind
	return p.engine.Parse(&cfg)
}

// Match reports whether the start rule matches the entire input.
func (p *Parser) Match(input []grammar.Achar) bool {
	res, err := p.Parse(input)
	return err == nil && res.Success
}

func unknownName(what, name string) error {
	return &parser.ConfigError{Field: what, Message: "unknown name " + name}
}
