package apg

import (
	"github.com/coregx/apg/conv"
	"github.com/coregx/apg/grammar"
	"github.com/coregx/apg/parser"
)

// Find scans input forward for the first offset where the start rule
// matches and returns the offset and that parse's result. It returns
// (-1, nil, nil) when no offset matches.
//
// When the facade's prefilter is enabled and the grammar's leading-literal
// set is exhaustive, offsets that cannot begin a match are skipped without
// running the interpreter. The outcome is identical either way.
func (p *Parser) Find(input []grammar.Achar) (int, *parser.Result, error) {
	var hay []byte
	usePf := false
	if p.pf != nil && p.pf.IsUseful() {
		if b, ok := conv.PhraseBytes(input); ok {
			hay = b
			usePf = true
		}
	}

	offset := 0
	for offset <= len(input) {
		if usePf {
			offset = p.pf.Find(hay, offset)
			if offset < 0 {
				return -1, nil, nil
			}
		}
		res, err := p.ParseAt(input, offset)
		if err != nil {
			return -1, nil, err
		}
		if res.State.Matched() {
			return offset, res, nil
		}
		offset++
	}
	return -1, nil, nil
}
