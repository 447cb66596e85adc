// Package parser implements the opcode interpreter: a depth-first
// evaluator of a compiled SABNF grammar against an input string.
//
// Evaluation runs over an explicit execution-item stack rather than host
// recursion, so deeply nested grammars cannot overflow the call stack. The
// interpreter honors the PPPT single-character short-circuit when the
// grammar image carries prediction maps, records AST events for the
// opted-in subset of rules, and keeps the two back-reference disciplines
// (universal and parent-frame) as the parse proceeds. Operator evaluation
// is strictly deterministic: given the same grammar, input and callback
// behavior, every observable effect is reproducible.
//
// A Parser is not safe for concurrent use. The grammar image it evaluates
// is immutable and may be shared across any number of Parser instances.
package parser

import (
	"sync/atomic"

	"github.com/coregx/apg/grammar"
	"github.com/coregx/apg/internal/arena"
)

// lifecycle stages of a parser instance
type stage uint8

const (
	stageFresh stage = iota
	stageConfigured
	stageDone
)

// Parser evaluates one grammar image. It may be reused for any number of
// parses; all mutable state is reset between them.
type Parser struct {
	g  *grammar.Grammar
	ar *arena.Arena

	ruleCbs []RuleCallback
	udtCbs  []UdtCallback

	ast    *astRecorder
	bk     *backrefs
	tracer Tracer
	stats  *Stats

	cancel atomic.Bool
	stage  stage

	// per-parse state
	input      []grammar.Achar
	subBegin   int
	subEnd     int // effective end; clamped during look-behind
	realEnd    int // configured substring end
	cursor     int
	stack      []xitem
	retState   State
	retLen     int
	descending bool
	lookaround int
	maxLB      int
	maxDepth   int
	depthSeen  int
	hits       int
	userData   any
	cbData     CallbackData
}

// New creates a parser instance for the given grammar image. The instance
// owns its working memory; the grammar is borrowed read-only.
func New(g *grammar.Grammar) *Parser {
	ar := arena.New()
	ar.Acquire() // the instance itself
	p := &Parser{
		g:       g,
		ar:      ar,
		ruleCbs: make([]RuleCallback, g.RuleCount()),
		udtCbs:  make([]UdtCallback, g.UdtCount()),
		ast:     newAstRecorder(g),
		bk:      newBackrefs(g.RuleCount() + g.UdtCount()),
	}
	return p
}

// Grammar returns the image this parser evaluates.
func (p *Parser) Grammar() *grammar.Grammar {
	return p.g
}

// Close releases the instance's working memory. The parser must not be
// used afterwards; the grammar image is unaffected.
func (p *Parser) Close() {
	p.stack = nil
	p.ast.reset()
	p.ar.Release()
}

// MemStats exposes the arena accounting of this instance.
func (p *Parser) MemStats() arena.Stats {
	return p.ar.Stats()
}

// SetRuleCallback installs fn for the rule at index. A nil fn removes a
// previously installed callback.
func (p *Parser) SetRuleCallback(index int, fn RuleCallback) {
	p.ruleCbs[index] = fn
	p.stage = stageConfigured
}

// SetUdtCallback installs fn for the UDT at index. Every declared UDT must
// have a callback installed before Parse.
func (p *Parser) SetUdtCallback(index int, fn UdtCallback) {
	p.udtCbs[index] = fn
	p.stage = stageConfigured
}

// SetAstRuleCallback opts the rule at index into AST capture and installs
// its optional callback (nil captures without one).
func (p *Parser) SetAstRuleCallback(index int, fn AstCallback) {
	p.ast.ruleOn[index] = true
	p.ast.ruleCb[index] = fn
	p.stage = stageConfigured
}

// SetAstUdtCallback opts the UDT at index into AST capture and installs
// its optional callback.
func (p *Parser) SetAstUdtCallback(index int, fn AstCallback) {
	p.ast.udtOn[index] = true
	p.ast.udtCb[index] = fn
	p.stage = stageConfigured
}

// SetTracer installs a hook receiving every opcode-boundary event.
func (p *Parser) SetTracer(t Tracer) {
	p.tracer = t
}

// CollectStats directs node-visit statistics into s for subsequent parses.
func (p *Parser) CollectStats(s *Stats) {
	p.stats = s
}

// RuleIndex returns the index of the named rule.
func (p *Parser) RuleIndex(name string) (int, bool) {
	return p.g.RuleIndex(name)
}

// UdtIndex returns the index of the named UDT.
func (p *Parser) UdtIndex(name string) (int, bool) {
	return p.g.UdtIndex(name)
}

// Cancel requests cooperative termination of the parse in progress. It is
// the only Parser method safe to call from another goroutine; the
// interpreter observes the flag at the next opcode boundary and fails with
// ErrCancelled.
func (p *Parser) Cancel() {
	p.cancel.Store(true)
}

// AstRecords returns the record sequence of the last successful parse.
// The slice is owned by the parser and valid until the next parse.
func (p *Parser) AstRecords() []AstRecord {
	return p.ast.records.Slice()
}

// TranslateAst re-walks the captured AST in order, invoking the installed
// AST callbacks with userData.
func (p *Parser) TranslateAst(userData any) error {
	return p.ast.translate(p.input, userData)
}

// Parse evaluates the configured start rule against cfg.Input and reports
// the final parser state. Fatal conditions (configuration defects, depth
// or contract violations, cancellation, callback failures) return a nil
// Result and an error from the package taxonomy; the AST captured by a
// failed parse is cleared.
func (p *Parser) Parse(cfg *Config) (*Result, error) {
	if err := p.begin(cfg); err != nil {
		p.stage = stageDone
		return nil, err
	}

	startRule := cfg.StartRule
	if startRule < 0 {
		startRule = p.g.StartRule()
	}

	p.ar.Acquire() // parse scope
	st, n, err := p.run(startRule)
	p.ar.ReleaseOne()
	p.stage = stageDone
	if err != nil {
		p.ast.reset() // a partial AST is invalid under error
		return nil, err
	}
	subLen := p.realEnd - p.subBegin
	return &Result{
		State:        st,
		Success:      st.Matched() && n == subLen,
		PhraseLength: n,
		InputLength:  subLen,
		MaxTreeDepth: p.depthSeen,
		NodeCount:    p.hits,
	}, nil
}

// begin validates cfg and resets all mutable parse state.
func (p *Parser) begin(cfg *Config) error {
	start := cfg.StartRule
	if start >= p.g.RuleCount() {
		return configErr("StartRule", "rule index %d out of range", start)
	}
	inLen := len(cfg.Input)
	begin, end := 0, inLen
	if cfg.ParseSub {
		if cfg.SubBegin < 0 || cfg.SubBegin > inLen {
			return configErr("SubBegin", "offset %d outside input of length %d", cfg.SubBegin, inLen)
		}
		begin = cfg.SubBegin
		if cfg.SubLength > 0 {
			if cfg.SubLength > inLen-begin {
				return configErr("SubLength", "substring [%d,+%d) runs past input of length %d", begin, cfg.SubLength, inLen)
			}
			end = begin + cfg.SubLength
		}
		if end < begin {
			end = begin
		}
	}
	if cfg.MaxLookBehind < 0 {
		return configErr("MaxLookBehind", "negative length %d", cfg.MaxLookBehind)
	}
	if cfg.MaxDepth < 0 {
		return configErr("MaxDepth", "negative depth %d", cfg.MaxDepth)
	}
	for i := 0; i < p.g.UdtCount(); i++ {
		if p.udtCbs[i] == nil {
			return configErr("UdtCallback", "UDT %s has no registered callback", p.g.Udt(i).Name)
		}
	}

	p.input = cfg.Input
	p.subBegin = begin
	p.subEnd = end
	p.realEnd = end
	p.cursor = begin
	p.stack = p.stack[:0]
	p.lookaround = 0
	p.maxLB = cfg.MaxLookBehind
	p.maxDepth = cfg.MaxDepth
	p.depthSeen = 0
	p.hits = 0
	p.userData = cfg.UserData
	p.cancel.Store(false)
	p.ast.reset()
	p.bk.reset()
	return nil
}
