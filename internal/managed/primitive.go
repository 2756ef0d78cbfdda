package managed

import "fmt"

// Primitive enumerates the primitive kinds of spec.md §3, where Not means
// "reference, not a primitive". Grounded on internal/bytecode's original
// flat byte-sized const/iota enum idiom.
type Primitive int8

const (
	PrimBool Primitive = iota
	PrimByte
	PrimChar
	PrimShort
	PrimInt
	PrimLong
	PrimFloat
	PrimDouble
	PrimVoid
	PrimNot
)

func (p Primitive) String() string {
	switch p {
	case PrimBool:
		return "boolean"
	case PrimByte:
		return "byte"
	case PrimChar:
		return "char"
	case PrimShort:
		return "short"
	case PrimInt:
		return "int"
	case PrimLong:
		return "long"
	case PrimFloat:
		return "float"
	case PrimDouble:
		return "double"
	case PrimVoid:
		return "void"
	case PrimNot:
		return "<reference>"
	default:
		return fmt.Sprintf("Primitive(%d)", int8(p))
	}
}

// PointerSize is the size in bytes of a reference value on this core's
// target ABI (spec.md's "storage size ... ptr" for the Not/reference case).
const PointerSize uint32 = 8

// DescriptorChar returns the primitive's descriptor character (Z B C S I J
// F D V); it panics for PrimNot, which has no primitive descriptor char of
// its own (references use their class's descriptor instead).
func (p Primitive) DescriptorChar() byte {
	switch p {
	case PrimBool:
		return 'Z'
	case PrimByte:
		return 'B'
	case PrimChar:
		return 'C'
	case PrimShort:
		return 'S'
	case PrimInt:
		return 'I'
	case PrimLong:
		return 'J'
	case PrimFloat:
		return 'F'
	case PrimDouble:
		return 'D'
	case PrimVoid:
		return 'V'
	default:
		panic("managed: DescriptorChar called on non-primitive kind")
	}
}

// PrimitiveFromDescriptorChar is the inverse of DescriptorChar; it reports
// ok=false for 'L' and '[' (reference/array descriptors, handled by the
// class loader rather than this taxonomy).
func PrimitiveFromDescriptorChar(c byte) (Primitive, bool) {
	switch c {
	case 'Z':
		return PrimBool, true
	case 'B':
		return PrimByte, true
	case 'C':
		return PrimChar, true
	case 'S':
		return PrimShort, true
	case 'I':
		return PrimInt, true
	case 'J':
		return PrimLong, true
	case 'F':
		return PrimFloat, true
	case 'D':
		return PrimDouble, true
	case 'V':
		return PrimVoid, true
	default:
		return PrimNot, false
	}
}

// storageSize returns the primitive's declared storage width in bytes,
// following the conventional JVM/Dalvik primitive sizing (boolean/byte=1,
// char/short=2, int/float=4, long/double=8, void=0); spec.md §3's prose list
// of sizes is off-by-one against its own 10-member enum, so we follow the
// conventional sizing every other component of this core (alignment,
// register width) already assumes.
func storageSize(p Primitive) uint32 {
	switch p {
	case PrimBool, PrimByte:
		return 1
	case PrimChar, PrimShort:
		return 2
	case PrimInt, PrimFloat:
		return 4
	case PrimLong, PrimDouble:
		return 8
	case PrimVoid:
		return 0
	default:
		return PointerSize
	}
}

// FieldSize returns the declared storage width for kind, substituting
// PointerSize for a reference kind (spec.md §4.1).
func FieldSize(kind Primitive) uint32 {
	if kind == PrimNot {
		return PointerSize
	}
	return storageSize(kind)
}

// RegisterWidth returns the argument-register width (1 or 2 slots): wide
// types (long, double) occupy two registers, everything else one.
func (p Primitive) RegisterWidth() int {
	if p == PrimLong || p == PrimDouble {
		return 2
	}
	return 1
}

// IsWide reports whether the primitive occupies two argument registers.
func (p Primitive) IsWide() bool { return p.RegisterWidth() == 2 }

// ShortyCharToSize implements spec.md §4.1: 0 for 'V', PointerSize for 'L'
// or '[', 8 for 'D'/'J', else 4.
func ShortyCharToSize(c byte) int {
	switch c {
	case 'V':
		return 0
	case 'L', '[':
		return int(PointerSize)
	case 'D', 'J':
		return 8
	default:
		return 4
	}
}

// NumArgRegisters implements spec.md §4.1: sum 2 per 'D'/'J' and 1 per other
// shorty character, skipping index 0 (the return kind).
func NumArgRegisters(shorty string) int {
	n := 0
	for i := 1; i < len(shorty); i++ {
		if c := shorty[i]; c == 'D' || c == 'J' {
			n += 2
		} else {
			n++
		}
	}
	return n
}
