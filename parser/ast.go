package parser

import (
	"github.com/coregx/apg/grammar"
	"github.com/coregx/apg/internal/seq"
)

// AstState marks the traversal direction of an AST record.
type AstState uint8

const (
	// AstPre opens a node on the way down the tree.
	AstPre AstState = iota
	// AstPost closes a node on the way up.
	AstPost
)

// AstReturn is an AST callback's verdict.
type AstReturn uint8

const (
	// AstOK continues the traversal normally.
	AstOK AstReturn = iota
	// AstSkip skips the branch below this node. During capture the rule is
	// recorded as an empty match and not descended; during translation the
	// walk jumps to the node's matching POST record. Ignored on POST.
	AstSkip
)

// AstRecord is one entry of the AST sequence. Records come in PRE/POST
// pairs with symmetric pair indices: ThatRecord of a PRE is the index of
// its POST and vice versa.
type AstRecord struct {
	State AstState
	// Index is the rule or UDT index of the node.
	Index int
	IsUdt bool
	Name  string
	// PhraseOffset and PhraseLength locate the matched phrase.
	PhraseOffset int
	PhraseLength int
	// ThisRecord and ThatRecord are the pair indices.
	ThisRecord int
	ThatRecord int
}

// AstData is the view an AST callback receives.
type AstData struct {
	Input []grammar.Achar
	// Record is the record being visited. During capture-time PRE calls
	// the phrase length is not yet known and reads zero.
	Record AstRecord
	// UserData is the translate or parse user data pointer.
	UserData any
}

// AstCallback observes AST nodes at capture and translation time. A
// non-nil error aborts the parse or translation.
type AstCallback func(d *AstData) (AstReturn, error)

// astRecorder captures enter/exit events for the opted-in subset of rules
// and UDTs.
type astRecorder struct {
	g       *grammar.Grammar
	ruleOn  []bool
	udtOn   []bool
	ruleCb  []AstCallback
	udtCb   []AstCallback
	records *seq.Seq[AstRecord]
}

func newAstRecorder(g *grammar.Grammar) *astRecorder {
	return &astRecorder{
		g:       g,
		ruleOn:  make([]bool, g.RuleCount()),
		udtOn:   make([]bool, g.UdtCount()),
		ruleCb:  make([]AstCallback, g.RuleCount()),
		udtCb:   make([]AstCallback, g.UdtCount()),
		records: seq.New[AstRecord](64),
	}
}

func (a *astRecorder) reset() {
	a.records.Reset()
}

func (a *astRecorder) mark() int {
	return a.records.Len()
}

// truncate rolls the sequence back to a mark, discarding the records of a
// failed subtree.
func (a *astRecorder) truncate(mark int) {
	a.records.Truncate(mark)
}

// appendPre opens a node and returns the PRE record's index.
func (a *astRecorder) appendPre(index int, isUdt bool, name string, offset int) int {
	return a.records.Append(AstRecord{
		State:        AstPre,
		Index:        index,
		IsUdt:        isUdt,
		Name:         name,
		PhraseOffset: offset,
		ThisRecord:   a.records.Len(),
		ThatRecord:   -1,
	})
}

// appendPost closes the node opened at preIndex and fixes both pair
// indices and the phrase length.
func (a *astRecorder) appendPost(preIndex, length int) {
	pre := a.records.At(preIndex)
	this := a.records.Len()
	pre.ThatRecord = this
	pre.PhraseLength = length
	rec := *pre
	a.records.Append(AstRecord{
		State:        AstPost,
		Index:        rec.Index,
		IsUdt:        rec.IsUdt,
		Name:         rec.Name,
		PhraseOffset: rec.PhraseOffset,
		PhraseLength: length,
		ThisRecord:   this,
		ThatRecord:   preIndex,
	})
}

func (a *astRecorder) callback(index int, isUdt bool) AstCallback {
	if isUdt {
		return a.udtCb[index]
	}
	return a.ruleCb[index]
}

func (a *astRecorder) captures(index int, isUdt bool) bool {
	if isUdt {
		return a.udtOn[index]
	}
	return a.ruleOn[index]
}

// translate walks the completed record sequence in order, invoking the
// registered callbacks. AstSkip from a PRE callback jumps to the node's
// matching POST record: the callbacks of everything below never fire, the
// node's own POST still does.
func (a *astRecorder) translate(input []grammar.Achar, userData any) error {
	d := AstData{Input: input, UserData: userData}
	for i := 0; i < a.records.Len(); i++ {
		rec := a.records.At(i)
		cb := a.callback(rec.Index, rec.IsUdt)
		if cb == nil {
			continue
		}
		d.Record = *rec
		ret, err := cb(&d)
		if err != nil {
			return &CallbackError{Name: rec.Name, Err: err}
		}
		if rec.State == AstPre && ret == AstSkip {
			i = rec.ThatRecord - 1 // next iteration lands on the POST
		}
	}
	return nil
}
