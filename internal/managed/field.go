package managed

import (
	"sync/atomic"

	"corevm/internal/vmerrors"
)

// FieldAccessFlags mirrors the subset of access flags spec.md §4.6 cares
// about for dispatch purposes (static vs instance, volatile vs plain).
type FieldAccessFlags uint32

const (
	FieldStatic   FieldAccessFlags = 1 << 0
	FieldVolatile FieldAccessFlags = 1 << 1
	FieldFinal    FieldAccessFlags = 1 << 2
)

// Field is one declared field slot, per spec.md §4.6: the owning
// DescriptorFile and its own type-descriptor index, a resolved-type cache,
// the access flags, and the header-relative offset class linking assigns.
// Grounded on vmregister's PropertyDescriptor{Name, Kind} shape, generalized
// to the index-resolved, offset-addressed, static-vs-instance model spec.md
// requires.
type Field struct {
	df       *DescriptorFile
	typeIdx  uint32
	Name     string
	flags    FieldAccessFlags
	offset   uint32 // header-relative for instance fields, byte offset into the class's static storage for static
	declType atomic.Pointer[Class] // resolved lazily via GetType
}

// NewField constructs a Field descriptor. offset is assigned by the class
// linker during layout (spec.md §4.8) and passed in already computed;
// this constructor does not itself perform layout.
func NewField(df *DescriptorFile, typeIdx uint32, name string, flags FieldAccessFlags, offset uint32) *Field {
	return &Field{df: df, typeIdx: typeIdx, Name: name, flags: flags, offset: offset}
}

func (f *Field) IsStatic() bool   { return f.flags&FieldStatic != 0 }
func (f *Field) IsVolatile() bool { return f.flags&FieldVolatile != 0 }
func (f *Field) IsFinal() bool    { return f.flags&FieldFinal != 0 }

// GetTypeDescriptor returns the field's raw type descriptor string without
// forcing resolution, per spec.md §4.6's get_type_descriptor.
func (f *Field) GetTypeDescriptor() string {
	return f.df.source.GetTypeDescriptor(f.typeIdx)
}

// GetTypeDuringLinking resolves the field's type eagerly, bypassing the
// lazy cache; used only while the owning class is still being linked,
// before GetType's normal caching path is safe to use (spec.md
// §4.6, §4.8).
func (f *Field) GetTypeDuringLinking() (*Class, error) {
	return f.df.Runtime().ClassLinker().ResolveType(f.df, f.typeIdx)
}

// GetType implements spec.md §4.6's get_type: resolve through the owning
// DescriptorFile's ResolveType cache (which is itself single-flighted and
// write-once), caching the result locally too so repeated reads after the
// first never re-enter the cache at all.
func (f *Field) GetType() (*Class, error) {
	if c := f.declType.Load(); c != nil {
		return c, nil
	}
	c, err := f.df.ResolveType(f.typeIdx)
	if err != nil {
		return nil, err
	}
	f.declType.Store(c)
	return c, nil
}

// primitiveKind reports the field's Primitive kind, PrimNot for a reference
// field, without forcing resolution (only the descriptor's leading
// character is needed to distinguish primitive from reference/array).
func (f *Field) primitiveKind() Primitive {
	d := f.GetTypeDescriptor()
	if d == "" {
		return PrimNot
	}
	if p, ok := PrimitiveFromDescriptorChar(d[0]); ok {
		return p
	}
	return PrimNot
}

func (f *Field) checkKind(want Primitive) error {
	if f.df == nil {
		return nil // no DescriptorFile to read the declared kind from
	}
	got := f.primitiveKind()
	if got != want {
		return vmerrors.New(vmerrors.IllegalArgumentError,
			"field %s is of kind %s, not %s", f.Name, got, want)
	}
	return nil
}

// target selects the byte-addressable storage the field lives in: the
// owning Class's static storage area for a static field, or the passed
// instance's storage for an instance field (spec.md §4.6).
func (f *Field) target(owner *Class, instance *Object) *storage {
	if f.IsStatic() {
		return owner.staticStorage()
	}
	return &instance.storage
}

// GetInt/SetInt/... are spec.md §4.6's typed accessors: DebugChecks (here,
// whenever the field has a DescriptorFile; a field without one is not
// checked) validate the field's declared kind before reading or writing
// through a header-relative offset in the appropriate storage.

func (f *Field) GetBool(owner *Class, instance *Object) (bool, error) {
	if err := f.checkKind(PrimBool); err != nil {
		return false, err
	}
	return f.target(owner, instance).getByte(f.storageOffset()) != 0, nil
}

func (f *Field) SetBool(owner *Class, instance *Object, v bool) error {
	if err := f.checkKind(PrimBool); err != nil {
		return err
	}
	b := byte(0)
	if v {
		b = 1
	}
	f.target(owner, instance).setByte(f.storageOffset(), b)
	return nil
}

func (f *Field) GetByte(owner *Class, instance *Object) (int8, error) {
	if err := f.checkKind(PrimByte); err != nil {
		return 0, err
	}
	return int8(f.target(owner, instance).getByte(f.storageOffset())), nil
}

func (f *Field) SetByte(owner *Class, instance *Object, v int8) error {
	if err := f.checkKind(PrimByte); err != nil {
		return err
	}
	f.target(owner, instance).setByte(f.storageOffset(), byte(v))
	return nil
}

// GetChar/SetChar use the dedicated 16-bit accessor rather than the 32-bit
// one volatile int/long fields use: char is a half-word field, and reading
// it through get32 would read two bytes past the end of a tightly packed
// storage buffer when the char field is the last one laid out.
func (f *Field) GetChar(owner *Class, instance *Object) (uint16, error) {
	if err := f.checkKind(PrimChar); err != nil {
		return 0, err
	}
	return f.target(owner, instance).get16(f.storageOffset()), nil
}

func (f *Field) SetChar(owner *Class, instance *Object, v uint16) error {
	if err := f.checkKind(PrimChar); err != nil {
		return err
	}
	f.target(owner, instance).set16(f.storageOffset(), v)
	return nil
}

func (f *Field) GetInt(owner *Class, instance *Object) (int32, error) {
	if err := f.checkKind(PrimInt); err != nil {
		return 0, err
	}
	return int32(f.target(owner, instance).get32(f.storageOffset(), f.IsVolatile())), nil
}

func (f *Field) SetInt(owner *Class, instance *Object, v int32) error {
	if err := f.checkKind(PrimInt); err != nil {
		return err
	}
	f.target(owner, instance).set32(f.storageOffset(), uint32(v), f.IsVolatile())
	return nil
}

func (f *Field) GetLong(owner *Class, instance *Object) (int64, error) {
	if err := f.checkKind(PrimLong); err != nil {
		return 0, err
	}
	return int64(f.target(owner, instance).get64(f.storageOffset(), f.IsVolatile())), nil
}

func (f *Field) SetLong(owner *Class, instance *Object, v int64) error {
	if err := f.checkKind(PrimLong); err != nil {
		return err
	}
	f.target(owner, instance).set64(f.storageOffset(), uint64(v), f.IsVolatile())
	return nil
}

// GetObject/SetObject implement spec.md §4.6's reference accessor,
// rejecting a write that violates the field's declared type.
func (f *Field) GetObject(owner *Class, instance *Object) (*Object, error) {
	if f.primitiveKind() != PrimNot {
		return nil, vmerrors.New(vmerrors.IllegalArgumentError, "field %s is not a reference field", f.Name)
	}
	return f.target(owner, instance).getRef(f.storageOffset()), nil
}

func (f *Field) SetObject(owner *Class, instance *Object, v *Object) error {
	if f.primitiveKind() != PrimNot {
		return vmerrors.New(vmerrors.IllegalArgumentError, "field %s is not a reference field", f.Name)
	}
	if v != nil {
		declType, err := f.GetType()
		if err == nil && declType != nil && !declType.IsAssignableFrom(v.Class()) {
			return vmerrors.ClassCast(v.Class().Descriptor(), declType.Descriptor())
		}
	}
	f.target(owner, instance).setRef(f.storageOffset(), v)
	return nil
}

// storageOffset adjusts a header-relative instance offset for the
// (*storage).get32/set32 family, which index from the start of the
// storage's own raw slice rather than the conceptual object header. Static
// storage has no header to subtract, so its offset is used unadjusted.
func (f *Field) storageOffset() uint32 {
	if f.IsStatic() {
		return f.offset
	}
	if f.offset < HeaderSize {
		return 0
	}
	return f.offset - HeaderSize
}
