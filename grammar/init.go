package grammar

import (
	"encoding/binary"
	"fmt"
)

// Init is a grammar image as emitted by the external generator: a packed
// word stream plus the appended character, string and PPPT map tables. The
// generator records the word widths it packed with; Load widens everything
// to the interpreter's native types.
//
// The word stream is little-endian, SizeofUint bytes per word, laid out as:
//
//	header     ruleCount udtCount opcodeCount childListLength startRule
//	rule table per rule: nameOffset mapOffset opOffset opCount emptyFlag
//	udt table  per UDT: nameOffset
//	opcodes    per opcode: kind, then the kind's payload:
//	             ALT/CAT  mapOffset childOffset childCount
//	             REP      mapOffset min max
//	             RNM      mapOffset ruleIndex
//	             TRG      mapOffset lo hi
//	             TLS/TBS  mapOffset litOffset litLen
//	             UDT      udtIndex
//	             BKR      targetIndex caseFlag modeFlag
//	             AND/NOT  mapOffset
//	             BKA/BKN/ABG/AEN  (none)
//	child list childListLength absolute opcode indices
//
// A word of all one-bits is the "undefined/infinite" sentinel at any width:
// no PPPT map, unbounded repetition. Name offsets index the null-terminated
// string table; map offsets are cell offsets into the PPPT table; literal
// offsets index the character table, itself packed at SizeofAchar bytes per
// character.
//
// Prose operators (<...>) are accepted by the SABNF syntax but never
// compile to an opcode; an image claiming one carries an out-of-range kind
// word and is rejected here.
type Init struct {
	SizeofAchar int
	SizeofUint  int

	// ACharMin and ACharMax bound the used alphabet; read only when
	// PpptMaps is non-empty.
	ACharMin uint64
	ACharMax uint64

	Words       []byte
	AcharTable  []byte
	StringTable []byte
	PpptMaps    []byte
}

// undefined is the widened all-ones sentinel.
const undefined = ^uint64(0)

// rawOp is an opcode record as read from the word stream, before child and
// name resolution.
type rawOp struct {
	kind      Kind
	mapOffset uint64
	a, b, c   uint64 // kind-dependent payload words
}

// rawRule is a rule-table record before opcode distribution.
type rawRule struct {
	name      string
	mapOffset uint64
	opOffset  int
	opCount   int
	empty     bool
}

// Load decodes and validates an initializer, producing the immutable
// grammar image. Defects fail with an error unwrapping to ErrImage, except
// a count, index or payload word that does not fit a native int, which
// fails with an error unwrapping to ErrOverflow.
//
//nolint:gocyclo // decoding walks every table of the image
func Load(init *Init) (*Grammar, error) {
	words, err := widenWords(init.Words, init.SizeofUint)
	if err != nil {
		return nil, err
	}
	chars, err := widenAchars(init.AcharTable, init.SizeofAchar)
	if err != nil {
		return nil, err
	}

	r := &wordReader{words: words}
	ruleCount, err := r.count("header")
	if err != nil {
		return nil, err
	}
	udtCount, err := r.count("header")
	if err != nil {
		return nil, err
	}
	opcodeCount, err := r.count("header")
	if err != nil {
		return nil, err
	}
	childListLen, err := r.count("header")
	if err != nil {
		return nil, err
	}
	startRule, err := r.count("header")
	if err != nil {
		return nil, err
	}

	rules := make([]rawRule, ruleCount)
	for i := range rules {
		nameOff, err := r.word("rules")
		if err != nil {
			return nil, err
		}
		name, err := tableName(init.StringTable, nameOff, "rules", i)
		if err != nil {
			return nil, err
		}
		mapOff, err := r.word("rules")
		if err != nil {
			return nil, err
		}
		opOff, err := r.count("rules")
		if err != nil {
			return nil, err
		}
		opCnt, err := r.count("rules")
		if err != nil {
			return nil, err
		}
		empty, err := r.word("rules")
		if err != nil {
			return nil, err
		}
		rules[i] = rawRule{name: name, mapOffset: mapOff, opOffset: opOff, opCount: opCnt, empty: empty != 0}
	}

	udtNames := make([]string, udtCount)
	for i := range udtNames {
		nameOff, err := r.word("udts")
		if err != nil {
			return nil, err
		}
		if udtNames[i], err = tableName(init.StringTable, nameOff, "udts", i); err != nil {
			return nil, err
		}
	}

	raws := make([]rawOp, opcodeCount)
	for i := range raws {
		if raws[i], err = readRawOp(r, i); err != nil {
			return nil, err
		}
	}

	childList := make([]int, childListLen)
	for i := range childList {
		c, err := r.count("childlist")
		if err != nil {
			return nil, err
		}
		if c >= opcodeCount {
			return nil, imageErr("childlist", i, "child opcode index %d out of range", c)
		}
		childList[i] = c
	}
	if r.pos != len(words) {
		return nil, imageErr("header", -1, "trailing words in initializer")
	}

	mapSize := 0
	if len(init.PpptMaps) > 0 {
		if init.ACharMax < init.ACharMin {
			return nil, imageErr("header", -1, "alphabet range [%d,%d] inverted", init.ACharMin, init.ACharMax)
		}
		mapSize = MapSize(Achar(init.ACharMin), Achar(init.ACharMax))
	}
	sliceMap := func(section string, index int, off uint64) ([]byte, error) {
		if off == undefined {
			return nil, nil
		}
		if mapSize == 0 {
			return nil, imageErr(section, index, "PPPT map offset without a map table")
		}
		end := off + uint64(mapSize)
		if end > uint64(len(init.PpptMaps)) {
			return nil, imageErr(section, index, "PPPT map offset %d out of range", off)
		}
		return init.PpptMaps[off:end], nil
	}

	def := &Def{
		ACharMin:  Achar(init.ACharMin),
		ACharMax:  Achar(init.ACharMax),
		StartRule: startRule,
	}
	if mapSize == 0 {
		// no alphabet declared; Build only reads it for maps
		def.ACharMin, def.ACharMax = 1, 0
	}
	for _, name := range udtNames {
		def.Udts = append(def.Udts, UdtDef{Name: name})
	}

	for ri, raw := range rules {
		if raw.opCount == 0 || raw.opOffset < 0 || raw.opOffset+raw.opCount > opcodeCount {
			return nil, imageErr("rules", ri, "opcode range [%d,+%d) out of range", raw.opOffset, raw.opCount)
		}
		m, err := sliceMap("rules", ri, raw.mapOffset)
		if err != nil {
			return nil, err
		}
		rd := RuleDef{Name: raw.name, Empty: raw.empty, Map: m}
		for oi := 0; oi < raw.opCount; oi++ {
			abs := raw.opOffset + oi
			op, err := resolveOp(&raws[abs], abs, raw.opOffset, raw.opCount,
				rules, udtNames, chars, childList, sliceMap)
			if err != nil {
				return nil, err
			}
			rd.Ops = append(rd.Ops, op)
		}
		def.Rules = append(def.Rules, rd)
	}
	return Build(def)
}

func readRawOp(r *wordReader, index int) (rawOp, error) {
	op := rawOp{mapOffset: undefined}
	kindWord, err := r.word("opcodes")
	if err != nil {
		return op, err
	}
	if kindWord == 0 || kindWord >= uint64(kindMax) {
		return op, imageErr("opcodes", index, "unrecognized opcode kind %d", kindWord)
	}
	op.kind = Kind(kindWord)

	var payload int // words after the optional map offset
	hasMap := mayCarryMap(op.kind)
	switch op.kind {
	case KindAlt, KindCat, KindRep, KindTrg, KindTls, KindTbs:
		payload = 2
	case KindRnm:
		payload = 1
	case KindUdt:
		payload = 1
	case KindBkr:
		payload = 3
	case KindAnd, KindNot, KindBka, KindBkn, KindAbg, KindAen:
		payload = 0
	}
	if hasMap {
		if op.mapOffset, err = r.word("opcodes"); err != nil {
			return op, err
		}
	}
	dst := []*uint64{&op.a, &op.b, &op.c}
	for i := 0; i < payload; i++ {
		if *dst[i], err = r.word("opcodes"); err != nil {
			return op, err
		}
	}
	return op, nil
}

//nolint:gocyclo // one arm per opcode kind
func resolveOp(raw *rawOp, abs, ruleOpOffset, ruleOpCount int, rules []rawRule,
	udtNames []string, chars []Achar, childList []int, sliceMap mapSlicer) (Op, error) {

	op := Op{Kind: raw.kind}
	if mayCarryMap(raw.kind) {
		m, err := sliceMap("opcodes", abs, raw.mapOffset)
		if err != nil {
			return op, err
		}
		op.Map = m
	}

	intArg := func(w uint64, what string) (int, error) {
		n := int(w)
		if w == undefined || uint64(n) != w || n < 0 {
			return 0, fmt.Errorf("%w: %s of opcode %d does not fit a native int", ErrOverflow, what, abs)
		}
		return n, nil
	}

	switch raw.kind {
	case KindAlt, KindCat:
		childOff, err := intArg(raw.a, "child offset")
		if err != nil {
			return op, err
		}
		childCnt, err := intArg(raw.b, "child count")
		if err != nil {
			return op, err
		}
		if childOff+childCnt > len(childList) {
			return op, imageErr("opcodes", abs, "child list run [%d,+%d) out of range", childOff, childCnt)
		}
		for _, c := range childList[childOff : childOff+childCnt] {
			if c < ruleOpOffset || c >= ruleOpOffset+ruleOpCount {
				return op, imageErr("childlist", c, "child of opcode %d escapes its rule", abs)
			}
			op.Children = append(op.Children, c-ruleOpOffset)
		}

	case KindRep:
		op.Min = raw.a
		op.Max = raw.b // undefined widens to Infinite already

	case KindRnm:
		target, err := intArg(raw.a, "rule index")
		if err != nil {
			return op, err
		}
		if target >= len(rules) {
			return op, imageErr("opcodes", abs, "RNM rule index %d out of range", target)
		}
		op.Rule = rules[target].name

	case KindTrg:
		op.Lo, op.Hi = Achar(raw.a), Achar(raw.b)

	case KindTls, KindTbs:
		litOff, err := intArg(raw.a, "literal offset")
		if err != nil {
			return op, err
		}
		litLen, err := intArg(raw.b, "literal length")
		if err != nil {
			return op, err
		}
		if litOff+litLen > len(chars) {
			return op, imageErr("opcodes", abs, "literal [%d,+%d) out of range", litOff, litLen)
		}
		op.Lit = chars[litOff : litOff+litLen]

	case KindUdt:
		target, err := intArg(raw.a, "UDT index")
		if err != nil {
			return op, err
		}
		if target >= len(udtNames) {
			return op, imageErr("opcodes", abs, "UDT index %d out of range", target)
		}
		op.Udt = udtNames[target]

	case KindBkr:
		target, err := intArg(raw.a, "BKR target")
		if err != nil {
			return op, err
		}
		switch {
		case target < len(rules):
			op.Target = rules[target].name
		case target < len(rules)+len(udtNames):
			op.Target = udtNames[target-len(rules)]
		default:
			return op, imageErr("opcodes", abs, "BKR target index %d out of range", target)
		}
		if raw.b != 0 {
			op.Case = BkrCaseInsensitive
		}
		if raw.c != 0 {
			op.Mode = BkrParent
		}

	case KindAnd, KindNot, KindBka, KindBkn, KindAbg, KindAen:
		// no payload
	}
	return op, nil
}

type mapSlicer func(section string, index int, off uint64) ([]byte, error)

type wordReader struct {
	words []uint64
	pos   int
}

func (r *wordReader) word(section string) (uint64, error) {
	if r.pos >= len(r.words) {
		return 0, imageErr(section, r.pos, "initializer truncated")
	}
	w := r.words[r.pos]
	r.pos++
	return w, nil
}

// count reads a word that must be a valid in-range count or index.
func (r *wordReader) count(section string) (int, error) {
	w, err := r.word(section)
	if err != nil {
		return 0, err
	}
	n := int(w)
	if w == undefined || uint64(n) != w || n < 0 {
		return 0, fmt.Errorf("%w: %s word %d does not fit a native int", ErrOverflow, section, w)
	}
	return n, nil
}

func widenWords(data []byte, size int) ([]uint64, error) {
	switch size {
	case 1, 2, 4, 8:
	default:
		return nil, imageErr("header", -1, "unsupported uint width %d", size)
	}
	if len(data)%size != 0 {
		return nil, imageErr("header", -1, "word stream length %d not a multiple of width %d", len(data), size)
	}
	out := make([]uint64, len(data)/size)
	for i := range out {
		out[i] = widenAt(data, i, size)
	}
	return out, nil
}

func widenAchars(data []byte, size int) ([]Achar, error) {
	switch size {
	case 1, 2, 4, 8:
	default:
		return nil, imageErr("header", -1, "unsupported achar width %d", size)
	}
	if len(data)%size != 0 {
		return nil, imageErr("header", -1, "achar table length %d not a multiple of width %d", len(data), size)
	}
	out := make([]Achar, len(data)/size)
	for i := range out {
		out[i] = Achar(rawAt(data, i, size))
	}
	return out, nil
}

// widenAt preserves the all-ones sentinel across widths: a narrow word of
// all one-bits widens to the 64-bit undefined value.
func widenAt(data []byte, i, size int) uint64 {
	v := rawAt(data, i, size)
	var ones uint64
	switch size {
	case 1:
		ones = 0xFF
	case 2:
		ones = 0xFFFF
	case 4:
		ones = 0xFFFFFFFF
	case 8:
		ones = undefined
	}
	if v == ones {
		return undefined
	}
	return v
}

func rawAt(data []byte, i, size int) uint64 {
	off := i * size
	switch size {
	case 1:
		return uint64(data[off])
	case 2:
		return uint64(binary.LittleEndian.Uint16(data[off:]))
	case 4:
		return uint64(binary.LittleEndian.Uint32(data[off:]))
	default:
		return binary.LittleEndian.Uint64(data[off:])
	}
}

func tableName(table []byte, off uint64, section string, index int) (string, error) {
	if off >= uint64(len(table)) {
		return "", imageErr(section, index, "name offset %d out of range", off)
	}
	end := off
	for end < uint64(len(table)) && table[end] != 0 {
		end++
	}
	if end == uint64(len(table)) {
		return "", imageErr(section, index, "unterminated name at offset %d", off)
	}
	return string(table[off:end]), nil
}
