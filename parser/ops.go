package parser

import (
	"fmt"

	"github.com/coregx/apg/grammar"
)

// xitem is one execution item: one opcode invocation at a given cursor.
// The interpreter drives an explicit stack of these instead of recursing
// on the host stack.
type xitem struct {
	opIdx int // absolute opcode index; -1 for the parse root
	kind  grammar.Kind
	begin int // cursor on entry

	childOrd  int // ALT/CAT child ordinal; REP completed repetitions
	phraseLen int // CAT/REP accumulated length

	ruleIdx int // RNM target
	astPre  int // index of this rule's PRE record, -1 none

	astMark int // AST length on entry, for NOMATCH rollback
	jMark   int // back-reference journal mark on entry

	savedEnd int // BKA/BKN: substring end before clamping
	cand     int // BKA/BKN: candidate start position under trial
	lbMin    int // BKA/BKN: smallest candidate to try
}

// run evaluates the start rule at the current cursor and returns the final
// state and matched phrase length.
func (p *Parser) run(startRule int) (State, int, error) {
	p.descending = true
	p.stack = append(p.stack, xitem{
		opIdx:   -1,
		kind:    grammar.KindRnm,
		ruleIdx: startRule,
		begin:   p.cursor,
		astPre:  -1,
		astMark: p.ast.mark(),
		jMark:   p.bk.mark(),
	})
	for len(p.stack) > 0 {
		var err error
		if p.descending {
			err = p.enter()
		} else {
			err = p.resume()
		}
		if err != nil {
			p.stack = p.stack[:0]
			return Active, 0, err
		}
	}
	return p.retState, p.retLen, nil
}

// push opens a child execution item at the current cursor.
func (p *Parser) push(opIdx int) {
	p.stack = append(p.stack, xitem{
		opIdx:   opIdx,
		kind:    p.g.Opcode(opIdx).Kind,
		begin:   p.cursor,
		astPre:  -1,
		astMark: p.ast.mark(),
		jMark:   p.bk.mark(),
	})
	p.descending = true
}

// deliver resolves the top item. A NOMATCH restores the cursor to the
// item's entry position and rolls back the AST records and universal
// back-reference updates its subtree made.
func (p *Parser) deliver(st State, n int) {
	ti := len(p.stack) - 1
	it := &p.stack[ti]
	if st == Nomatch {
		n = 0
		p.cursor = it.begin
		p.ast.truncate(it.astMark)
		p.bk.rollback(it.jMark)
	}
	if p.tracer != nil {
		p.tracer.Exit(p.opEvent(it), st, n)
	}
	if p.stats != nil && p.lookaround == 0 {
		p.stats.hit(it.kind, st, len(p.stack))
	}
	p.stack = p.stack[:ti]
	p.retState, p.retLen = st, n
	p.descending = false
}

func (p *Parser) opEvent(it *xitem) OpEvent {
	return OpEvent{
		OpIndex:    it.opIdx,
		Kind:       it.kind,
		Cursor:     p.cursor,
		Lookaround: p.lookaround > 0,
		Depth:      len(p.stack),
	}
}

func matchOrEmpty(n int) State {
	if n > 0 {
		return Match
	}
	return Empty
}

// enter dispatches the top item for the first time: bookkeeping, PPPT
// short-circuit, then either a direct terminal result or a descent into
// the first child.
//
//nolint:gocyclo // one arm per opcode kind
func (p *Parser) enter() error {
	ti := len(p.stack) - 1
	it := &p.stack[ti]
	p.hits++
	if len(p.stack) > p.depthSeen {
		p.depthSeen = len(p.stack)
	}
	if p.maxDepth > 0 && len(p.stack) > p.maxDepth {
		return &DepthError{Limit: p.maxDepth}
	}
	if p.cancel.Load() {
		return ErrCancelled
	}
	if p.tracer != nil {
		p.tracer.Enter(p.opEvent(it))
	}

	var op *grammar.Opcode
	mapRef := grammar.NoMap
	if it.opIdx >= 0 {
		op = p.g.Opcode(it.opIdx)
		mapRef = op.MapRef
	} else {
		mapRef = p.g.Rule(it.ruleIdx).MapRef
	}

	// single-character predictive short-circuit
	if mapRef != grammar.NoMap {
		eos := p.cursor >= p.subEnd
		var c grammar.Achar
		if !eos {
			c = p.input[p.cursor]
		}
		switch p.g.PpptCell(mapRef, c, eos) {
		case grammar.PpptNomatch:
			p.deliver(Nomatch, 0)
			return nil
		case grammar.PpptMatch:
			p.cursor++
			p.deliver(Match, 1)
			return nil
		case grammar.PpptEmpty:
			p.deliver(Empty, 0)
			return nil
		}
	}

	switch it.kind {
	case grammar.KindAlt, grammar.KindCat:
		p.push(p.g.Children(op)[0])

	case grammar.KindRep:
		if op.Max == 0 {
			p.deliver(Empty, 0)
			return nil
		}
		p.push(it.opIdx + 1)

	case grammar.KindRnm:
		if op != nil {
			it.ruleIdx = op.Rule
		}
		return p.enterRule(ti)

	case grammar.KindTrg:
		if p.cursor < p.subEnd {
			c := p.input[p.cursor]
			if c >= op.Lo && c <= op.Hi {
				p.cursor++
				p.deliver(Match, 1)
				return nil
			}
		}
		p.deliver(Nomatch, 0)

	case grammar.KindTbs:
		lit := p.g.Literal(op)
		if p.subEnd-p.cursor >= len(lit) {
			i := 0
			for ; i < len(lit); i++ {
				if p.input[p.cursor+i] != lit[i] {
					break
				}
			}
			if i == len(lit) {
				p.cursor += len(lit)
				p.deliver(Match, len(lit))
				return nil
			}
		}
		p.deliver(Nomatch, 0)

	case grammar.KindTls:
		lit := p.g.Literal(op)
		if len(lit) == 0 {
			p.deliver(Empty, 0)
			return nil
		}
		if p.subEnd-p.cursor >= len(lit) {
			i := 0
			for ; i < len(lit); i++ {
				if grammar.FoldAchar(p.input[p.cursor+i]) != grammar.FoldAchar(lit[i]) {
					break
				}
			}
			if i == len(lit) {
				p.cursor += len(lit)
				p.deliver(Match, len(lit))
				return nil
			}
		}
		p.deliver(Nomatch, 0)

	case grammar.KindUdt:
		return p.evalUdt(op)

	case grammar.KindBkr:
		p.evalBkr(op)

	case grammar.KindAbg:
		if p.cursor == p.subBegin {
			p.deliver(Empty, 0)
		} else {
			p.deliver(Nomatch, 0)
		}

	case grammar.KindAen:
		if p.cursor == p.subEnd {
			p.deliver(Empty, 0)
		} else {
			p.deliver(Nomatch, 0)
		}

	case grammar.KindAnd, grammar.KindNot:
		p.lookaround++
		p.push(it.opIdx + 1)

	case grammar.KindBka, grammar.KindBkn:
		it.savedEnd = p.subEnd
		it.lbMin = p.subBegin
		if p.maxLB > 0 && it.begin-p.maxLB > it.lbMin {
			it.lbMin = it.begin - p.maxLB
		}
		// the candidate walk starts at the anchor itself so an
		// empty-matching child can land its end there
		it.cand = it.begin
		p.lookaround++
		p.subEnd = it.begin
		p.cursor = it.cand
		p.push(it.opIdx + 1)

	default:
		return fmt.Errorf("interpreter: unreachable opcode kind %v", it.kind)
	}
	return nil
}

// resume applies a child's result to the top item.
//
//nolint:gocyclo // one arm per composite opcode kind
func (p *Parser) resume() error {
	ti := len(p.stack) - 1
	it := &p.stack[ti]
	st, n := p.retState, p.retLen

	switch it.kind {
	case grammar.KindAlt:
		if st != Nomatch {
			p.deliver(st, n)
			return nil
		}
		children := p.g.Children(p.g.Opcode(it.opIdx))
		it.childOrd++
		if it.childOrd < len(children) {
			ord := it.childOrd
			p.cursor = it.begin
			p.push(children[ord])
			return nil
		}
		p.deliver(Nomatch, 0)

	case grammar.KindCat:
		if st == Nomatch {
			p.deliver(Nomatch, 0)
			return nil
		}
		children := p.g.Children(p.g.Opcode(it.opIdx))
		it.phraseLen += n
		it.childOrd++
		if it.childOrd < len(children) {
			ord := it.childOrd
			p.push(children[ord])
			return nil
		}
		p.deliver(matchOrEmpty(it.phraseLen), it.phraseLen)

	case grammar.KindRep:
		op := p.g.Opcode(it.opIdx)
		switch st {
		case Nomatch:
			if uint64(it.childOrd) >= op.Min {
				p.deliver(matchOrEmpty(it.phraseLen), it.phraseLen)
			} else {
				p.deliver(Nomatch, 0)
			}
		case Empty:
			// an empty repetition would loop forever; it also satisfies
			// any remaining required count
			p.deliver(matchOrEmpty(it.phraseLen), it.phraseLen)
		default: // Match
			it.childOrd++
			it.phraseLen += n
			if op.Max != grammar.Infinite && uint64(it.childOrd) >= op.Max {
				p.deliver(Match, it.phraseLen)
			} else {
				p.push(it.opIdx + 1)
			}
		}

	case grammar.KindRnm:
		return p.exitRule(ti, st, n)

	case grammar.KindAnd:
		p.lookaround--
		p.cursor = it.begin
		if st != Nomatch {
			p.deliver(Empty, 0)
		} else {
			p.deliver(Nomatch, 0)
		}

	case grammar.KindNot:
		p.lookaround--
		p.cursor = it.begin
		if st == Nomatch {
			p.deliver(Empty, 0)
		} else {
			p.deliver(Nomatch, 0)
		}

	case grammar.KindBka, grammar.KindBkn:
		if st.Matched() && n == it.begin-it.cand {
			p.finishBehind(it, true)
			return nil
		}
		it.cand--
		if it.cand >= it.lbMin {
			p.cursor = it.cand
			p.push(it.opIdx + 1)
			return nil
		}
		p.finishBehind(it, false)

	default:
		return fmt.Errorf("interpreter: resume on leaf opcode kind %v", it.kind)
	}
	return nil
}

// finishBehind closes a look-behind trial walk. childMatched reports
// whether some candidate start landed a match ending at the anchor.
func (p *Parser) finishBehind(it *xitem, childMatched bool) {
	p.subEnd = it.savedEnd
	p.lookaround--
	p.cursor = it.begin
	success := childMatched
	if it.kind == grammar.KindBkn {
		success = !childMatched
	}
	if success {
		p.deliver(Empty, 0)
	} else {
		p.deliver(Nomatch, 0)
	}
}

// enterRule performs RNM entry bookkeeping: AST PRE capture, the parent
// back-reference frame, and the optional rule callback, which may override
// the engine's descent.
func (p *Parser) enterRule(ti int) error {
	it := &p.stack[ti]
	rule := p.g.Rule(it.ruleIdx)

	if p.lookaround == 0 && p.ast.captures(it.ruleIdx, false) {
		it.astPre = p.ast.appendPre(it.ruleIdx, false, rule.Name, p.cursor)
		if cb := p.ast.ruleCb[it.ruleIdx]; cb != nil {
			d := AstData{Input: p.input, Record: *p.ast.records.At(it.astPre), UserData: p.userData}
			ret, err := cb(&d)
			if err != nil {
				return &CallbackError{Name: rule.Name, Err: err}
			}
			if ret == AstSkip {
				// record the pair as an empty match; no descent
				p.bk.pushFrame()
				return p.exitRule(ti, Empty, 0)
			}
		}
	}
	p.bk.pushFrame()

	if cb := p.ruleCbs[it.ruleIdx]; cb != nil {
		d := &p.cbData
		*d = CallbackData{
			Input:     p.input,
			Offset:    p.cursor,
			SubEnd:    p.subEnd,
			State:     Active,
			RuleIndex: it.ruleIdx,
			UdtIndex:  -1,
			UserData:  p.userData,
		}
		st, n, err := cb(d)
		if err != nil {
			return &CallbackError{Name: rule.Name, Err: err}
		}
		if st != Active {
			st, n, err = p.checkOverride(rule.Name, st, n)
			if err != nil {
				return err
			}
			p.cursor += n
			return p.exitRule(ti, st, n)
		}
	}
	p.push(rule.OpOffset)
	return nil
}

// checkOverride validates a rule callback's entry override against the
// remaining input.
func (p *Parser) checkOverride(name string, st State, n int) (State, int, error) {
	switch st {
	case Match, Empty, Nomatch:
	default:
		return st, 0, &CallbackError{Name: name, Err: fmt.Errorf("invalid override state %v", st)}
	}
	if st != Match {
		return st, 0, nil
	}
	if n < 0 {
		return st, 0, fmt.Errorf("%w: callback for %s returned negative phrase length %d", ErrOverflow, name, n)
	}
	if n > p.subEnd-p.cursor {
		return st, 0, &CallbackError{Name: name, Err: fmt.Errorf("phrase length %d runs past substring end", n)}
	}
	if n == 0 {
		return Empty, 0, nil
	}
	return Match, n, nil
}

// exitRule performs RNM exit bookkeeping: back-reference recording or
// rollback, AST POST capture, the exit callback, and delivery.
func (p *Parser) exitRule(ti int, st State, n int) error {
	it := &p.stack[ti]
	rule := p.g.Rule(it.ruleIdx)

	if st == Nomatch {
		p.bk.popFrame()
		// journal and AST roll back in deliver
	} else {
		p.bk.popFrame()
		p.bk.record(it.ruleIdx, it.begin, n)
		if it.astPre >= 0 {
			if cb := p.ast.ruleCb[it.ruleIdx]; cb != nil {
				rec := *p.ast.records.At(it.astPre)
				rec.State = AstPost
				rec.PhraseLength = n
				d := AstData{Input: p.input, Record: rec, UserData: p.userData}
				if _, err := cb(&d); err != nil {
					return &CallbackError{Name: rule.Name, Err: err}
				}
			}
			p.ast.appendPost(it.astPre, n)
		}
	}

	if cb := p.ruleCbs[it.ruleIdx]; cb != nil {
		d := &p.cbData
		*d = CallbackData{
			Input:        p.input,
			Offset:       it.begin,
			SubEnd:       p.subEnd,
			State:        st,
			PhraseLength: n,
			RuleIndex:    it.ruleIdx,
			UdtIndex:     -1,
			UserData:     p.userData,
		}
		if _, _, err := cb(d); err != nil {
			return &CallbackError{Name: rule.Name, Err: err}
		}
	}
	p.deliver(st, n)
	return nil
}

// evalUdt invokes the registered user-defined terminal callback and
// validates its contract.
func (p *Parser) evalUdt(op *grammar.Opcode) error {
	udt := p.g.Udt(op.Udt)
	cb := p.udtCbs[op.Udt]
	d := &p.cbData
	*d = CallbackData{
		Input:     p.input,
		Offset:    p.cursor,
		SubEnd:    p.subEnd,
		State:     Active,
		RuleIndex: -1,
		UdtIndex:  op.Udt,
		UserData:  p.userData,
	}
	st, n, err := cb(d)
	if err != nil {
		return &CallbackError{Name: udt.Name, Err: err}
	}
	switch st {
	case Match:
		if n < 0 {
			return fmt.Errorf("%w: callback for %s returned negative phrase length %d", ErrOverflow, udt.Name, n)
		}
		if n > p.subEnd-p.cursor {
			return &UdtContractError{Udt: udt.Name, Message: fmt.Sprintf("phrase length %d outside remaining substring", n)}
		}
		if n == 0 {
			if !udt.Empty {
				return &UdtContractError{Udt: udt.Name, Message: "non-empty UDT matched the empty phrase"}
			}
			st = Empty
		}
	case Empty:
		if !udt.Empty {
			return &UdtContractError{Udt: udt.Name, Message: "non-empty UDT matched the empty phrase"}
		}
		n = 0
	case Nomatch:
		n = 0
	default:
		return &UdtContractError{Udt: udt.Name, Message: "callback returned ACTIVE"}
	}

	if st.Matched() {
		begin := p.cursor
		p.cursor += n
		p.bk.record(p.g.RuleCount()+op.Udt, begin, n)
		if p.lookaround == 0 && p.ast.captures(op.Udt, true) {
			pre := p.ast.appendPre(op.Udt, true, udt.Name, begin)
			p.ast.appendPost(pre, n)
		}
	}
	p.deliver(st, n)
	return nil
}

// evalBkr matches the phrase most recently recorded for the referenced
// rule or UDT under the opcode's scoping discipline.
func (p *Parser) evalBkr(op *grammar.Opcode) {
	var loc phraseLoc
	if op.BkrMode == grammar.BkrParent {
		loc = p.bk.parentLookup(op.BkrIndex)
	} else {
		loc = p.bk.universalLookup(op.BkrIndex)
	}
	if !loc.ok {
		p.deliver(Nomatch, 0)
		return
	}
	if loc.length == 0 {
		p.deliver(Empty, 0)
		return
	}
	if p.subEnd-p.cursor < loc.length {
		p.deliver(Nomatch, 0)
		return
	}
	fold := op.BkrCase == grammar.BkrCaseInsensitive
	for i := 0; i < loc.length; i++ {
		a, b := p.input[p.cursor+i], p.input[loc.offset+i]
		if fold {
			a, b = grammar.FoldAchar(a), grammar.FoldAchar(b)
		}
		if a != b {
			p.deliver(Nomatch, 0)
			return
		}
	}
	p.cursor += loc.length
	p.deliver(Match, loc.length)
}
