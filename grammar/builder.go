package grammar

import "strings"

// Def is the typed form of a grammar initializer. Generated parsers embed
// one as Go initializer data; the binary loader decodes an image into one.
// Build validates it and produces the immutable Grammar.
type Def struct {
	// ACharMin and ACharMax bound the grammar's used alphabet. Required
	// when any PPPT map is present; ignored otherwise.
	ACharMin Achar
	ACharMax Achar

	// StartRule is the default starting rule index.
	StartRule int

	Rules []RuleDef
	Udts  []UdtDef
}

// RuleDef defines one rule and its opcode sequence. Opcode child indices
// are relative to the rule's own sequence.
type RuleDef struct {
	Name string
	// Empty reports whether the rule can match the empty phrase.
	Empty bool
	// Map is the rule's optional PPPT map.
	Map []byte
	Ops []Op
}

// UdtDef declares one user-defined terminal. The name prefix fixes the
// empty-phrase contract: "e_" may match empty, "u_" must not.
type UdtDef struct {
	Name string
}

// Op defines one opcode. Kind selects which fields are read.
type Op struct {
	Kind Kind

	// Children are rule-relative opcode indices of an ALT or CAT.
	Children []int

	// Min and Max bound a REP; Max may be Infinite.
	Min uint64
	Max uint64

	// Rule names the RNM target.
	Rule string

	// Lo and Hi bound a TRG.
	Lo Achar
	Hi Achar

	// Lit is the TLS/TBS payload.
	Lit []Achar

	// Udt names the UDT of a UDT opcode.
	Udt string

	// Target names the rule or UDT a BKR refers back to.
	Target string
	Mode   BkrMode
	Case   BkrCase

	// Map is the opcode's optional PPPT map.
	Map []byte
}

// prefix operators take the next opcode in sequence as their child
func takesNextOpChild(k Kind) bool {
	switch k {
	case KindRep, KindAnd, KindNot, KindBka, KindBkn:
		return true
	}
	return false
}

func mayCarryMap(k Kind) bool {
	switch k {
	case KindAlt, KindCat, KindRep, KindRnm, KindTrg, KindTbs, KindTls, KindAnd, KindNot:
		return true
	}
	return false
}

// Build validates a definition and constructs the grammar image.
// It fails with an error unwrapping to ErrImage on any defect.
func Build(def *Def) (*Grammar, error) {
	if len(def.Rules) == 0 {
		return nil, imageErr("rules", -1, "grammar has no rules")
	}
	if def.StartRule < 0 || def.StartRule >= len(def.Rules) {
		return nil, imageErr("header", -1, "start rule %d out of range", def.StartRule)
	}

	g := &Grammar{
		ruleIndex: make(map[string]int, len(def.Rules)),
		udtIndex:  make(map[string]int, len(def.Udts)),
		acharMin:  def.ACharMin,
		acharMax:  def.ACharMax,
		startRule: def.StartRule,
	}
	if def.ACharMax >= def.ACharMin {
		g.mapSize = MapSize(def.ACharMin, def.ACharMax)
	}

	for i, rd := range def.Rules {
		if rd.Name == "" {
			return nil, imageErr("rules", i, "empty rule name")
		}
		key := strings.ToLower(rd.Name)
		if _, dup := g.ruleIndex[key]; dup {
			return nil, imageErr("rules", i, "duplicate rule name %q", rd.Name)
		}
		g.ruleIndex[key] = i
	}
	for i, ud := range def.Udts {
		empty, err := udtEmpty(ud.Name, i)
		if err != nil {
			return nil, err
		}
		key := strings.ToLower(ud.Name)
		if _, dup := g.udtIndex[key]; dup {
			return nil, imageErr("udts", i, "duplicate UDT name %q", ud.Name)
		}
		g.udtIndex[key] = i
		g.udts = append(g.udts, Udt{Name: ud.Name, Index: i, Empty: empty})
	}

	for ri := range def.Rules {
		rd := &def.Rules[ri]
		if len(rd.Ops) == 0 {
			return nil, imageErr("rules", ri, "rule %q has no opcodes", rd.Name)
		}
		mapRef, err := g.appendMap("rules", ri, rd.Map)
		if err != nil {
			return nil, err
		}
		rule := Rule{
			Name:     rd.Name,
			Index:    ri,
			OpOffset: len(g.ops),
			OpCount:  len(rd.Ops),
			Empty:    rd.Empty,
			MapRef:   mapRef,
		}
		for oi := range rd.Ops {
			op, err := g.buildOp(def, ri, oi)
			if err != nil {
				return nil, err
			}
			g.ops = append(g.ops, op)
		}
		g.rules = append(g.rules, rule)
	}
	return g, nil
}

func udtEmpty(name string, index int) (bool, error) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasPrefix(lower, "e_"):
		return true, nil
	case strings.HasPrefix(lower, "u_"):
		return false, nil
	default:
		return false, imageErr("udts", index, "UDT name %q must begin with u_ or e_", name)
	}
}

func (g *Grammar) appendMap(section string, index int, m []byte) (int, error) {
	if m == nil {
		return NoMap, nil
	}
	if g.mapSize == 0 {
		return 0, imageErr(section, index, "PPPT map present but alphabet range undeclared")
	}
	if len(m) != g.mapSize {
		return 0, imageErr(section, index, "PPPT map length %d, want %d", len(m), g.mapSize)
	}
	for _, cell := range m {
		if cell > PpptActive {
			return 0, imageErr(section, index, "PPPT map cell %d out of range", cell)
		}
	}
	ref := len(g.maps)
	g.maps = append(g.maps, m...)
	return ref, nil
}

//nolint:gocyclo // validation naturally enumerates every opcode kind
func (g *Grammar) buildOp(def *Def, ri, oi int) (Opcode, error) {
	rd := &def.Rules[ri]
	src := &rd.Ops[oi]
	abs := len(g.ops)
	op := Opcode{Kind: src.Kind, MapRef: NoMap}

	if src.Map != nil && !mayCarryMap(src.Kind) {
		return op, imageErr("opcodes", abs, "%s may not carry a PPPT map", src.Kind)
	}
	ref, err := g.appendMap("opcodes", abs, src.Map)
	if err != nil {
		return op, err
	}
	op.MapRef = ref

	if takesNextOpChild(src.Kind) && oi+1 >= len(rd.Ops) {
		return op, imageErr("opcodes", abs, "%s has no following child opcode", src.Kind)
	}

	switch src.Kind {
	case KindAlt, KindCat:
		if len(src.Children) == 0 {
			return op, imageErr("opcodes", abs, "%s has no children", src.Kind)
		}
		op.ChildOffset = len(g.childList)
		op.ChildCount = len(src.Children)
		base := abs - oi // rule's first absolute opcode index
		for _, rel := range src.Children {
			if rel < 0 || rel >= len(rd.Ops) || rel == oi {
				return op, imageErr("opcodes", abs, "child index %d out of range", rel)
			}
			g.childList = append(g.childList, base+rel)
		}

	case KindRep:
		if src.Min > src.Max {
			return op, imageErr("opcodes", abs, "REP min %d exceeds max %d", src.Min, src.Max)
		}
		op.Min, op.Max = src.Min, src.Max

	case KindRnm:
		target, ok := g.ruleIndex[strings.ToLower(src.Rule)]
		if !ok {
			return op, imageErr("opcodes", abs, "RNM target %q undefined", src.Rule)
		}
		op.Rule = target

	case KindTrg:
		if src.Lo > src.Hi {
			return op, imageErr("opcodes", abs, "TRG range [%d,%d] inverted", src.Lo, src.Hi)
		}
		op.Lo, op.Hi = src.Lo, src.Hi

	case KindTbs:
		if len(src.Lit) == 0 {
			return op, imageErr("opcodes", abs, "TBS literal is empty")
		}
		op.LitOffset, op.LitLen = g.appendLit(src.Lit)

	case KindTls:
		op.LitOffset, op.LitLen = g.appendLit(src.Lit)

	case KindUdt:
		target, ok := g.udtIndex[strings.ToLower(src.Udt)]
		if !ok {
			return op, imageErr("opcodes", abs, "UDT %q undeclared", src.Udt)
		}
		op.Udt = target

	case KindBkr:
		if target, ok := g.ruleIndex[strings.ToLower(src.Target)]; ok {
			op.BkrIndex = target
		} else if target, ok := g.udtIndex[strings.ToLower(src.Target)]; ok {
			op.BkrIndex = len(def.Rules) + target
		} else {
			return op, imageErr("opcodes", abs, "BKR target %q undefined", src.Target)
		}
		op.BkrMode, op.BkrCase = src.Mode, src.Case

	case KindAnd, KindNot, KindBka, KindBkn, KindAbg, KindAen:
		// no payload beyond the implicit child

	default:
		return op, imageErr("opcodes", abs, "unrecognized opcode kind %d", uint8(src.Kind))
	}
	return op, nil
}

func (g *Grammar) appendLit(lit []Achar) (offset, length int) {
	offset = len(g.chars)
	g.chars = append(g.chars, lit...)
	return offset, len(lit)
}
