// Package codec maps raw bytes onto the reduced trigram character alphabet
// used by the index. The alphabet is the printable ASCII range with
// uppercase letters folded onto lowercase, so "Hello" and "hello" produce
// the same trigrams.
package codec

// TrigramChar is a byte remapped into the trigram alphabet, or
// UndefinedTrigramChar for bytes that cannot participate in a trigram.
type TrigramChar int16

// Trigram encodes three consecutive trigram characters as a single
// integer in [0, TrigramCount), or UndefinedTrigram.
type Trigram int32

const (
	// AlphabetSize is the number of distinct trigram characters:
	// printable ASCII (' ' through '~') minus the 26 uppercase letters.
	AlphabetSize = '~' - ' ' + 1 - 26

	// TrigramCount is the number of distinct trigrams.
	TrigramCount = AlphabetSize * AlphabetSize * AlphabetSize

	UndefinedTrigramChar TrigramChar = -1
	UndefinedTrigram     Trigram     = -1
)

// binaryChars marks control bytes whose presence classifies content as
// binary: [0,9), [14,32) and DEL. Tab and the newline-adjacent codes
// (LF, VT, FF, CR) are deliberately excluded.
var binaryChars = buildBinaryChars()

// trigramChars maps every byte value to its trigram character.
var trigramChars = buildTrigramChars()

func buildBinaryChars() [256]bool {
	var t [256]bool
	for c := 0; c < 9; c++ {
		t[c] = true
	}
	for c := 14; c < 32; c++ {
		t[c] = true
	}
	t[127] = true
	return t
}

func buildTrigramChars() [256]TrigramChar {
	var t [256]TrigramChar
	for i := range t {
		t[i] = trigramCharForByte(byte(i))
	}
	return t
}

func trigramCharForByte(b byte) TrigramChar {
	if b > 127 {
		return UndefinedTrigramChar
	}
	if b == '\t' {
		b = ' '
	}
	if b >= 'A' && b <= 'Z' {
		b = b - 'A' + 'a'
	}
	if binaryChars[b] || b < ' ' {
		return UndefinedTrigramChar
	}
	// Close the gap left by the folded-away uppercase range so the
	// alphabet stays contiguous.
	if b > 'Z' {
		b -= 26
	}
	return TrigramChar(b - ' ')
}

// IsBinaryChar reports whether b marks its containing content as binary.
func IsBinaryChar(b byte) bool {
	return binaryChars[b]
}

// TrigramCharForByte returns the trigram character for b, or
// UndefinedTrigramChar if b is outside the indexable alphabet.
func TrigramCharForByte(b byte) TrigramChar {
	return trigramChars[b]
}

// TrigramAt combines chars[i], chars[i+1] and chars[i+2] into a trigram.
// Any undefined character makes the whole trigram undefined.
func TrigramAt(chars []TrigramChar, i int) Trigram {
	c0, c1, c2 := chars[i], chars[i+1], chars[i+2]
	if c0 == UndefinedTrigramChar || c1 == UndefinedTrigramChar || c2 == UndefinedTrigramChar {
		return UndefinedTrigram
	}
	return Trigram(c0)*AlphabetSize*AlphabetSize + Trigram(c1)*AlphabetSize + Trigram(c2)
}

// TrigramChars maps every byte of data to its trigram character.
func TrigramChars(data []byte) []TrigramChar {
	chars := make([]TrigramChar, len(data))
	for i, b := range data {
		chars[i] = trigramChars[b]
	}
	return chars
}

// Trigrams returns the valid trigrams of data in window order, including
// duplicates. Windows containing an undefined character are dropped.
func Trigrams(data []byte) []Trigram {
	if len(data) < 3 {
		return nil
	}
	chars := TrigramChars(data)
	out := make([]Trigram, 0, len(data)-2)
	for i := 0; i+2 < len(chars); i++ {
		if t := TrigramAt(chars, i); t != UndefinedTrigram {
			out = append(out, t)
		}
	}
	return out
}
