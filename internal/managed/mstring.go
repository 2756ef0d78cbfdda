package managed

import (
	"sync/atomic"
	"unicode/utf16"
	"unicode/utf8"

	"corevm/internal/vmerrors"
)

// MString is the managed string representation of spec.md §4.5: a shared
// UTF-16 char array plus an offset/count window into it, and a lazily
// computed, 0-sentinel polynomial hash. Grounded on vmregister/value.go's
// StringObj wrapping a Go string, generalized to the char-array-sharing,
// substring-friendly layout spec.md §4.5 specifies.
type MString struct {
	Object
	chars  *Array // backing char[] array, possibly shared by several MStrings
	offset uint32
	count  uint32
	hash   atomic.Uint32 // 0 means "not yet computed" for a non-empty string; see computeHash
}

// AllocString implements spec.md §4.5's alloc(utf16_length): allocate a
// fresh char[] of the given length and wrap it with offset 0.
func AllocString(rt *Runtime, stringClass, charArrayClass *Class, utf16Length uint32) (*MString, error) {
	chars, err := AllocArray(rt, charArrayClass, utf16Length)
	if err != nil {
		return nil, err
	}
	s := &MString{Object: Object{storage: newStorage(0)}, chars: chars, offset: 0, count: utf16Length}
	s.classPtr.Store(stringClass)
	return s, nil
}

// FromUTF16 builds a string over an existing shared char array, the
// substring/StringFactory path spec.md §4.5 describes, rather than copying.
func FromUTF16(stringClass *Class, chars *Array, offset, count uint32) (*MString, error) {
	if offset+count > chars.Length() {
		return nil, vmerrors.StringIndexOutOfBounds(int(offset), int(chars.Length()))
	}
	s := &MString{Object: Object{storage: newStorage(0)}, chars: chars, offset: offset, count: count}
	s.classPtr.Store(stringClass)
	return s, nil
}

// Length returns the string's UTF-16 code-unit count.
func (s *MString) Length() uint32 { return s.count }

// CharAt implements spec.md §4.5's char_at: bounds-checked read through the
// offset window into the shared backing array.
func (s *MString) CharAt(index uint32) (uint16, error) {
	if index >= s.count {
		return 0, vmerrors.StringIndexOutOfBounds(int(index), int(s.count))
	}
	return s.chars.GetChar(s.offset + index)
}

// computeHash implements spec.md §4.5's 31*h+c polynomial hash over the
// string's UTF-16 code units. The empty string hashes to exactly 0, which
// GetHash's caching relies on never being confused with the "uncomputed"
// sentinel: it recomputes the empty string's hash (still 0) on every call,
// which is cheap since the loop below is a no-op when count is 0.
func computeHash(s *MString) uint32 {
	var h uint32
	for i := uint32(0); i < s.count; i++ {
		c, _ := s.chars.GetChar(s.offset + i)
		h = 31*h + uint32(c)
	}
	return h
}

// GetHash returns the string's hash, computing and caching it on first use.
// Racing callers may compute it redundantly but will agree on the result,
// so no synchronization beyond an atomic publish is needed (spec.md §9).
func (s *MString) GetHash() uint32 {
	if h := s.hash.Load(); h != 0 {
		return h
	}
	h := computeHash(s)
	s.hash.Store(h)
	return h
}

// Equals implements spec.md §4.5's equals: same length and identical
// code-unit sequence, irrespective of each string's offset/backing array.
func (s *MString) Equals(other *MString) bool {
	if s == other {
		return true
	}
	if s.count != other.count {
		return false
	}
	if s.GetHash() != other.GetHash() {
		return false
	}
	for i := uint32(0); i < s.count; i++ {
		a, _ := s.chars.GetChar(s.offset + i)
		b, _ := other.chars.GetChar(other.offset + i)
		if a != b {
			return false
		}
	}
	return true
}

// EqualsUTF16 compares against a raw UTF-16 slice without allocating an
// MString, the fast path the intern table and literal-resolution code use.
func (s *MString) EqualsUTF16(u []uint16) bool {
	if uint32(len(u)) != s.count {
		return false
	}
	for i := uint32(0); i < s.count; i++ {
		c, _ := s.chars.GetChar(s.offset + i)
		if c != u[i] {
			return false
		}
	}
	return true
}

// Intern implements spec.md §4.5's intern: defer to the runtime's weak
// intern table.
func (s *MString) Intern(rt *Runtime) *MString { return rt.InternTable().InternWeak(s) }

// ToUTF16 materializes the string's code units as a plain Go slice.
func (s *MString) ToUTF16() []uint16 {
	out := make([]uint16, s.count)
	for i := uint32(0); i < s.count; i++ {
		out[i], _ = s.chars.GetChar(s.offset + i)
	}
	return out
}

// ToModifiedUTF8 encodes the string per spec.md §4.5's modified UTF-8: NUL
// becomes the two-byte form 0xC0 0x80, supplementary characters are
// re-encoded from their surrogate pair rather than collapsed to one
// 4-byte UTF-8 sequence, and there is no 4-byte form at all.
func ToModifiedUTF8(units []uint16) []byte {
	out := make([]byte, 0, len(units))
	for _, c := range units {
		switch {
		case c == 0:
			out = append(out, 0xC0, 0x80)
		case c < 0x80:
			out = append(out, byte(c))
		case c < 0x800:
			out = append(out, byte(0xC0|(c>>6)), byte(0x80|(c&0x3F)))
		default:
			out = append(out, byte(0xE0|(c>>12)), byte(0x80|((c>>6)&0x3F)), byte(0x80|(c&0x3F)))
		}
	}
	return out
}

// FromModifiedUTF8 decodes spec.md §4.5's modified UTF-8 back into UTF-16
// code units, including the two-byte NUL form and 3-byte supplementary
// character encodings re-paired into surrogate pairs by the caller's
// decoder when both halves are present consecutively (the format stores
// each surrogate half as its own 3-byte sequence, same as standard CESU-8).
func FromModifiedUTF8(b []byte) ([]uint16, error) {
	var units []uint16
	i := 0
	for i < len(b) {
		switch {
		case b[i]&0x80 == 0:
			units = append(units, uint16(b[i]))
			i++
		case b[i]&0xE0 == 0xC0:
			if i+1 >= len(b) {
				return nil, vmerrors.New(vmerrors.IllegalArgumentError, "mstring: truncated 2-byte sequence")
			}
			c := (uint16(b[i]&0x1F) << 6) | uint16(b[i+1]&0x3F)
			units = append(units, c)
			i += 2
		case b[i]&0xF0 == 0xE0:
			if i+2 >= len(b) {
				return nil, vmerrors.New(vmerrors.IllegalArgumentError, "mstring: truncated 3-byte sequence")
			}
			c := (uint16(b[i]&0x0F) << 12) | (uint16(b[i+1]&0x3F) << 6) | uint16(b[i+2]&0x3F)
			units = append(units, c)
			i += 3
		default:
			return nil, vmerrors.New(vmerrors.IllegalArgumentError, "mstring: invalid modified UTF-8 lead byte 0x%02x", b[i])
		}
	}
	return units, nil
}

// FromUTF8String converts well-formed standard UTF-8 (e.g. literals
// synthesized in Go) to UTF-16 code units. Class-file string-pool loading
// (DescriptorFile.ResolveString) does not use it; it decodes modified
// UTF-8 through FromModifiedUTF8.
func FromUTF8String(s string) []uint16 {
	return utf16.Encode([]rune(s))
}

// ToUTF8String renders code units as a standard Go string for diagnostics
// (error messages, logging); lone surrogates are replaced per utf8 rules.
func ToUTF8String(units []uint16) string {
	runes := utf16.Decode(units)
	buf := make([]byte, 0, len(runes)*utf8.UTFMax)
	for _, r := range runes {
		buf = utf8.AppendRune(buf, r)
	}
	return string(buf)
}
