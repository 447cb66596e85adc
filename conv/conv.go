// Package conv maps Go strings, byte slices and rune slices to the
// alphabet-character slices the parsing engine consumes, and back.
//
// Grammars over byte-oriented protocols use one character per input byte;
// Unicode grammars use one character per code point. Both views are lossless
// in the byte/rune direction. PhraseString renders a matched phrase for
// reporting, substituting U+FFFD for characters outside the valid code
// point range.
package conv

import (
	"unicode/utf8"

	"github.com/coregx/apg/grammar"
)

// Bytes returns one alphabet character per input byte.
func Bytes(in []byte) []grammar.Achar {
	out := make([]grammar.Achar, len(in))
	for i, b := range in {
		out[i] = grammar.Achar(b)
	}
	return out
}

// String returns one alphabet character per byte of s.
func String(s string) []grammar.Achar {
	out := make([]grammar.Achar, len(s))
	for i := 0; i < len(s); i++ {
		out[i] = grammar.Achar(s[i])
	}
	return out
}

// Runes returns one alphabet character per code point of s.
func Runes(s string) []grammar.Achar {
	out := make([]grammar.Achar, 0, len(s))
	for _, r := range s {
		out = append(out, grammar.Achar(r))
	}
	return out
}

// PhraseBytes narrows a phrase back to bytes. The second result is false if
// any character exceeds one byte.
func PhraseBytes(phrase []grammar.Achar) ([]byte, bool) {
	out := make([]byte, len(phrase))
	for i, a := range phrase {
		if a > 0xFF {
			return nil, false
		}
		out[i] = byte(a)
	}
	return out, true
}

// PhraseString renders a phrase as a string, one rune per character.
// Characters outside the Unicode code point range, and surrogates, render
// as U+FFFD.
func PhraseString(phrase []grammar.Achar) string {
	buf := make([]rune, len(phrase))
	for i, a := range phrase {
		switch {
		case a > utf8.MaxRune:
			buf[i] = utf8.RuneError
		case a >= 0xD800 && a <= 0xDFFF:
			buf[i] = utf8.RuneError
		default:
			buf[i] = rune(a)
		}
	}
	return string(buf)
}
