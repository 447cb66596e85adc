package grammar

import (
	"encoding/binary"
	"errors"
	"testing"
)

// packWords packs a word stream at the given width, narrowing the
// undefined sentinel to all one-bits of that width.
func packWords(t *testing.T, words []uint64, size int) []byte {
	t.Helper()
	out := make([]byte, 0, len(words)*size)
	for _, w := range words {
		v := w
		if w == undefined {
			v = (1 << (8 * size)) - 1
			if size == 8 {
				v = undefined
			}
		} else if size < 8 && w >= (uint64(1)<<(8*size))-1 {
			t.Fatalf("word %d does not fit width %d", w, size)
		}
		var buf [8]byte
		binary.LittleEndian.PutUint64(buf[:], v)
		out = append(out, buf[:size]...)
	}
	return out
}

// testImageWords is S = "ab" / %d48-57 as an initializer word stream.
func testImageWords() []uint64 {
	return []uint64{
		// header: rules, udts, opcodes, child list length, start rule
		1, 0, 3, 2, 0,
		// rule S: nameOffset, mapOffset, opOffset, opCount, empty
		0, undefined, 0, 3, 0,
		// ALT: kind, map, childOffset, childCount
		uint64(KindAlt), undefined, 0, 2,
		// TLS: kind, map, litOffset, litLen
		uint64(KindTls), undefined, 0, 2,
		// TRG: kind, map, lo, hi
		uint64(KindTrg), undefined, 48, 57,
		// child list
		1, 2,
	}
}

func testInit(t *testing.T, uintSize, acharSize int) *Init {
	t.Helper()
	return &Init{
		SizeofAchar: acharSize,
		SizeofUint:  uintSize,
		Words:       packWords(t, testImageWords(), uintSize),
		AcharTable:  packWords(t, []uint64{'a', 'b'}, acharSize),
		StringTable: []byte("S\x00"),
	}
}

func TestLoad_WidthVariants(t *testing.T) {
	for _, uintSize := range []int{1, 2, 4, 8} {
		for _, acharSize := range []int{1, 2, 4, 8} {
			g, err := Load(testInit(t, uintSize, acharSize))
			if err != nil {
				t.Fatalf("Load(uint %d, achar %d) failed: %v", uintSize, acharSize, err)
			}
			if g.RuleCount() != 1 || g.OpcodeCount() != 3 {
				t.Fatalf("width (%d,%d): got %d rules, %d opcodes", uintSize, acharSize, g.RuleCount(), g.OpcodeCount())
			}
			if g.Rule(0).Name != "S" {
				t.Errorf("rule name = %q, want S", g.Rule(0).Name)
			}
			alt := g.Opcode(0)
			if alt.Kind != KindAlt || len(g.Children(alt)) != 2 {
				t.Errorf("opcode 0 = %v with %d children, want ALT/2", alt.Kind, len(g.Children(alt)))
			}
			if tls := g.Opcode(1); tls.Kind != KindTls || len(g.Literal(tls)) != 2 {
				t.Errorf("opcode 1 = %v, want TLS of 2 chars", tls.Kind)
			}
			if trg := g.Opcode(2); trg.Lo != 48 || trg.Hi != 57 {
				t.Errorf("TRG bounds = [%d,%d], want [48,57]", trg.Lo, trg.Hi)
			}
		}
	}
}

func TestLoad_InfiniteRepSentinel(t *testing.T) {
	words := []uint64{
		1, 0, 2, 0, 0,
		0, undefined, 0, 2, 0,
		uint64(KindRep), undefined, 1, undefined, // 1*
		uint64(KindTbs), undefined, 0, 1,
	}
	for _, size := range []int{1, 2, 4, 8} {
		init := &Init{
			SizeofAchar: 1,
			SizeofUint:  size,
			Words:       packWords(t, words, size),
			AcharTable:  []byte("x"),
			StringTable: []byte("S\x00"),
		}
		g, err := Load(init)
		if err != nil {
			t.Fatalf("Load(width %d) failed: %v", size, err)
		}
		if rep := g.Opcode(0); rep.Min != 1 || rep.Max != Infinite {
			t.Errorf("width %d: REP = [%d,%d], want [1,inf]", size, rep.Min, rep.Max)
		}
	}
}

func TestLoad_UdtAndBkr(t *testing.T) {
	words := []uint64{
		1, 1, 3, 3, 0,
		// rule S
		0, undefined, 0, 3, 0,
		// udt u_x
		2, // nameOffset of "u_x"
		// CAT
		uint64(KindCat), undefined, 0, 2,
		// UDT: kind, udtIndex
		uint64(KindUdt), 0,
		// BKR: kind, target, caseFlag, modeFlag
		uint64(KindBkr), 1, 1, 1,
		// child list
		1, 2, 0,
	}
	init := &Init{
		SizeofAchar: 1,
		SizeofUint:  2,
		Words:       packWords(t, words, 2),
		StringTable: []byte("S\x00u_x\x00"),
	}
	g, err := Load(init)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if g.UdtCount() != 1 || g.Udt(0).Name != "u_x" {
		t.Fatalf("UDT table = %d entries", g.UdtCount())
	}
	bkr := g.Opcode(2)
	if bkr.Kind != KindBkr || bkr.BkrIndex != 1 /* ruleCount + udt 0 */ {
		t.Errorf("BKR = %v target %d, want UDT target 1", bkr.Kind, bkr.BkrIndex)
	}
	if bkr.BkrCase != BkrCaseInsensitive || bkr.BkrMode != BkrParent {
		t.Errorf("BKR flags = (%v, %v), want insensitive parent", bkr.BkrCase, bkr.BkrMode)
	}
}

func TestLoad_Malformed(t *testing.T) {
	mutate := func(mut func(words []uint64) []uint64) *Init {
		words := mut(testImageWords())
		return &Init{
			SizeofAchar: 1,
			SizeofUint:  4,
			Words:       packWords(t, words, 4),
			AcharTable:  []byte("ab"),
			StringTable: []byte("S\x00"),
		}
	}
	tests := []struct {
		name string
		init *Init
	}{
		{"prose_or_unknown_kind", mutate(func(w []uint64) []uint64 {
			w[10] = 19 // no opcode id above AEN is valid
			return w
		})},
		{"zero_kind", mutate(func(w []uint64) []uint64 {
			w[10] = 0
			return w
		})},
		{"truncated_stream", mutate(func(w []uint64) []uint64 {
			return w[:8]
		})},
		{"trailing_words", mutate(func(w []uint64) []uint64 {
			return append(w, 0)
		})},
		{"name_offset_out_of_range", mutate(func(w []uint64) []uint64 {
			w[5] = 77
			return w
		})},
		{"child_escapes_rule", mutate(func(w []uint64) []uint64 {
			w[len(w)-1] = 9 // out of the opcode table entirely
			return w
		})},
		{"bad_uint_width", &Init{SizeofAchar: 1, SizeofUint: 3, StringTable: []byte{0}}},
		{"bad_achar_width", &Init{SizeofAchar: 5, SizeofUint: 4, StringTable: []byte{0}}},
		{"ragged_word_stream", &Init{SizeofAchar: 1, SizeofUint: 4, Words: []byte{1, 2, 3}, StringTable: []byte{0}}},
		{"map_offset_without_table", mutate(func(w []uint64) []uint64 {
			w[6] = 0 // rule claims a PPPT map, none appended
			return w
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.init); !errors.Is(err, ErrImage) {
				t.Errorf("err = %v, want ErrImage", err)
			}
		})
	}
}

func TestLoad_UnterminatedName(t *testing.T) {
	init := testInit(t, 4, 1)
	init.StringTable = []byte("S") // missing terminator
	if _, err := Load(init); !errors.Is(err, ErrImage) {
		t.Errorf("err = %v, want ErrImage", err)
	}
}

func TestLoad_RoundTripThroughParseShape(t *testing.T) {
	// the loaded image and the directly built one agree structurally
	g1, err := Load(testInit(t, 4, 1))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	g2, err := Build(&Def{
		Rules: []RuleDef{{Name: "S", Ops: []Op{
			{Kind: KindAlt, Children: []int{1, 2}},
			{Kind: KindTls, Lit: lit("ab")},
			{Kind: KindTrg, Lo: 48, Hi: 57},
		}}},
	})
	if err != nil {
		t.Fatalf("Build() failed: %v", err)
	}
	if g1.OpcodeCount() != g2.OpcodeCount() {
		t.Fatalf("opcode counts differ: %d vs %d", g1.OpcodeCount(), g2.OpcodeCount())
	}
	for i := 0; i < g1.OpcodeCount(); i++ {
		a, b := g1.Opcode(i), g2.Opcode(i)
		if a.Kind != b.Kind {
			t.Errorf("opcode %d kind %v vs %v", i, a.Kind, b.Kind)
		}
	}
}
