package managed

import (
	"sync/atomic"
	"unsafe"

	"corevm/internal/vmerrors"
)

// HeaderSize is the conceptual byte size of the object header (class
// reference + lock word) that spec.md §3 describes; field offsets assigned
// during class linking are header-relative, so every accessor below
// subtracts it before indexing into an Object's own storage. This core does
// not lay out real machine memory, so the header itself is represented as
// two Go struct fields rather than raw bytes — only the size convention
// (offsets start past it) is preserved for the invariants spec.md §8 tests.
const HeaderSize uint32 = 8

// storage is the byte-addressed field/component backing store shared by
// Object (instance fields) and Class (the static storage area): raw bytes
// for primitive values, a parallel reference slice for managed pointers.
// Grounded on spec.md §9's call to confine byte-offset arithmetic and
// unchecked memory access to one narrow accessor module.
type storage struct {
	raw  []byte
	refs []atomic.Pointer[Object]
}

func newStorage(size uint32) storage {
	return storage{
		raw:  make([]byte, size),
		refs: make([]atomic.Pointer[Object], size/PointerSize+1),
	}
}

func (s *storage) get32(offset uint32, volatile bool) uint32 {
	p := (*uint32)(unsafe.Pointer(&s.raw[offset]))
	if volatile {
		return atomic.LoadUint32(p)
	}
	return *p
}

func (s *storage) set32(offset uint32, v uint32, volatile bool) {
	p := (*uint32)(unsafe.Pointer(&s.raw[offset]))
	if volatile {
		atomic.StoreUint32(p, v)
		return
	}
	*p = v
}

func (s *storage) get64(offset uint32, volatile bool) uint64 {
	p := (*uint64)(unsafe.Pointer(&s.raw[offset]))
	if volatile {
		return atomic.LoadUint64(p)
	}
	return *p
}

func (s *storage) set64(offset uint32, v uint64, volatile bool) {
	p := (*uint64)(unsafe.Pointer(&s.raw[offset]))
	if volatile {
		atomic.StoreUint64(p, v)
		return
	}
	*p = v
}

func (s *storage) getByte(offset uint32) byte { return s.raw[offset] }
func (s *storage) setByte(offset uint32, v byte) { s.raw[offset] = v }

func (s *storage) get16(offset uint32) uint16 {
	return uint16(s.raw[offset]) | uint16(s.raw[offset+1])<<8
}

func (s *storage) set16(offset uint32, v uint16) {
	s.raw[offset] = byte(v)
	s.raw[offset+1] = byte(v >> 8)
}

// getRef/setRef always publish through an atomic.Pointer regardless of the
// volatile flag: reference values must stay GC-visible, so this is a
// strictly stronger guarantee than spec.md §5's non-volatile "natural load/
// store", never a weaker one.
func (s *storage) getRef(offset uint32) *Object {
	return s.refs[offset/PointerSize].Load()
}

func (s *storage) setRef(offset uint32, v *Object) {
	s.refs[offset/PointerSize].Store(v)
}

// Object is the common header every managed value begins with: a reference
// to its Class and a 32-bit lock word (thin-lock id or fat monitor
// reference), per spec.md §3. Array and MString embed Object as their first
// field, so a *Object obtained from a reference slot can be reinterpreted
// back to *Array/*MString via unsafe.Pointer — the header IS the instance
// pointer, matching the "common header, fields at class-specific offsets
// past it" invariant bit-for-bit.
type Object struct {
	storage
	classPtr atomic.Pointer[Class]
	lockWord atomic.Uint32
}

// NewObject allocates the Go-level representation of a new instance of
// class. Callers that need heap/OOM semantics should go through
// Class.AllocObject instead; this is the shared constructor both that and
// Clone use once the heap has agreed to the allocation.
func NewObject(class *Class) *Object {
	o := &Object{storage: newStorage(dataSize(class.ObjectSize()))}
	o.classPtr.Store(class)
	return o
}

func dataSize(objectSize uint32) uint32 {
	if objectSize <= HeaderSize {
		return 0
	}
	return objectSize - HeaderSize
}

// Class returns the object's class. Set once at allocation time and never
// changed afterward (spec.md §3 invariant).
func (o *Object) Class() *Class { return o.classPtr.Load() }

// AsArray reinterprets an Object reference known to be an array instance as
// its *Array view. The caller must have already established
// o.Class().IsArray(); this performs no check of its own, matching the
// "confined, unchecked" accessor module design note.
func AsArray(o *Object) *Array { return (*Array)(unsafe.Pointer(o)) }

// AsMString reinterprets an Object reference known to be a string instance
// as its *MString view. See AsArray for the header-identity rationale.
func AsMString(o *Object) *MString { return (*MString)(unsafe.Pointer(o)) }

// SizeOf implements spec.md §4.3's size_of: class.object_size for a
// non-array, or the array formula (header + len*component_size) when the
// object's class is an array class.
func SizeOf(o *Object) uint32 {
	c := o.Class()
	if c.IsArray() {
		return AsArray(o).totalSize()
	}
	return c.ObjectSize()
}

// Get32/Set32/Get64/Set64/GetRef/SetRef are the typed field accessors of
// spec.md §4.3, taking a header-relative offset and a volatile flag.
func (o *Object) Get32(offset uint32, volatile bool) uint32 {
	return o.storage.get32(offset-HeaderSize, volatile)
}
func (o *Object) Set32(offset uint32, v uint32, volatile bool) {
	o.storage.set32(offset-HeaderSize, v, volatile)
}
func (o *Object) Get64(offset uint32, volatile bool) uint64 {
	return o.storage.get64(offset-HeaderSize, volatile)
}
func (o *Object) Set64(offset uint32, v uint64, volatile bool) {
	o.storage.set64(offset-HeaderSize, v, volatile)
}
func (o *Object) GetRef(offset uint32) *Object { return o.storage.getRef(offset - HeaderSize) }
func (o *Object) SetRef(offset uint32, v *Object) { o.storage.setRef(offset-HeaderSize, v) }

// IsString implements spec.md §4.3's is_string: true iff the object's class
// is the runtime's distinguished String class. This is the self-consistent
// identity check spec.md §9 flags as an open question; we implement it as
// specified without resolving the question further (see DESIGN.md).
func (o *Object) IsString(rt *Runtime) bool { return o.Class() == rt.WellKnown.StringClass }

// ThinLockID, MonitorEnter/Exit, Wait, Notify/NotifyAll delegate to the
// Runtime's Monitor collaborator (spec.md §4.3).
func (o *Object) ThinLockID(rt *Runtime) uint32 { return rt.Monitor().ThinLockIDOf(o) }
func (o *Object) MonitorEnter(rt *Runtime)       { rt.Monitor().Enter(o) }
func (o *Object) MonitorExit(rt *Runtime)        { rt.Monitor().Exit(o) }
func (o *Object) Wait(rt *Runtime, timeoutMS int64, timeoutNS int32) error {
	return rt.Monitor().Wait(o, timeoutMS, timeoutNS)
}
func (o *Object) Notify(rt *Runtime)    { rt.Monitor().Notify(o) }
func (o *Object) NotifyAll(rt *Runtime) { rt.Monitor().NotifyAll(o) }

// Clone implements spec.md §4.3's clone: allocate a new object of the same
// class and size, copy bytes and reference slots past the header, and
// register a finalizer if the class is finalizable.
func Clone(rt *Runtime, o *Object) (*Object, error) {
	c := o.Class()
	if c.IsArray() {
		return cloneArray(rt, AsArray(o))
	}
	size := SizeOf(o)
	raw, err := rt.Heap().Alloc(c, size)
	if err != nil || raw == nil {
		return nil, vmerrors.OutOfMemory(uint64(size))
	}
	clone := NewObject(c)
	copy(clone.storage.raw, o.storage.raw)
	for i := range o.storage.refs {
		clone.storage.refs[i].Store(o.storage.refs[i].Load())
	}
	if c.IsFinalizable() {
		rt.Heap().AddFinalizerReference(clone)
	}
	return clone, nil
}
