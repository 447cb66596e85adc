package parser

import "github.com/coregx/apg/internal/seq"

// phraseLoc locates a recorded phrase in the input.
type phraseLoc struct {
	offset int
	length int
	ok     bool
}

// backrefs is the back-reference registry. It keeps two disciplines:
//
// Universal: one entry per rule/UDT index, updated on every accepted
// RNM/UDT exit anywhere in the tree. Updates are journaled so a rule
// subtree that ultimately fails unwinds the entries it wrote.
//
// Parent-frame: a table per open rule frame. An accepted child records
// into its enclosing frame's table; a parent-mode BKR inside a frame reads
// that frame's own table. Frame tables die with their frame, so their
// rollback is structural.
type backrefs struct {
	universal []phraseLoc
	journal   *seq.Seq[journalEntry]
	frames    []map[int]phraseLoc
}

type journalEntry struct {
	index int
	prev  phraseLoc
}

func newBackrefs(total int) *backrefs {
	return &backrefs{
		universal: make([]phraseLoc, total),
		journal:   seq.New[journalEntry](64),
	}
}

func (b *backrefs) reset() {
	for i := range b.universal {
		b.universal[i] = phraseLoc{}
	}
	b.journal.Reset()
	b.frames = b.frames[:0]
	b.pushFrame() // root frame backs parent-mode BKRs outside any RNM
}

// mark returns the journal position for a later rollback.
func (b *backrefs) mark() int {
	return b.journal.Len()
}

// rollback undoes universal updates recorded since mark.
func (b *backrefs) rollback(mark int) {
	for i := b.journal.Len() - 1; i >= mark; i-- {
		e := b.journal.At(i)
		b.universal[e.index] = e.prev
	}
	b.journal.Truncate(mark)
}

func (b *backrefs) pushFrame() {
	b.frames = append(b.frames, nil)
}

func (b *backrefs) popFrame() {
	b.frames = b.frames[:len(b.frames)-1]
}

// record notes an accepted match of the rule or UDT at index, in both
// disciplines: universally (journaled) and in the current innermost frame.
func (b *backrefs) record(index, offset, length int) {
	b.journal.Append(journalEntry{index: index, prev: b.universal[index]})
	b.universal[index] = phraseLoc{offset: offset, length: length, ok: true}

	top := len(b.frames) - 1
	if b.frames[top] == nil {
		b.frames[top] = make(map[int]phraseLoc)
	}
	b.frames[top][index] = phraseLoc{offset: offset, length: length, ok: true}
}

// universalLookup reads the most recent accepted match of index.
func (b *backrefs) universalLookup(index int) phraseLoc {
	return b.universal[index]
}

// parentLookup reads the enclosing frame's record of index.
func (b *backrefs) parentLookup(index int) phraseLoc {
	top := b.frames[len(b.frames)-1]
	if top == nil {
		return phraseLoc{}
	}
	return top[index]
}
