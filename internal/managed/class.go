package managed

import (
	"math/bits"
	"strings"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"corevm/internal/vmerrors"
)

// Status is a class's position in spec.md §4.8's linking/initialization
// state machine. Values are explicit (not iota) so a corrupted or
// zero-valued Status is distinguishable from a deliberately constructed one
// and so the monotonic ordering spec.md §8 tests ("status never regresses")
// reads directly off the numeric value.
type Status int32

const (
	StatusError             Status = -1
	StatusNotReady          Status = 0
	StatusIdx               Status = 1
	StatusLoaded            Status = 2
	StatusResolving         Status = 3
	StatusResolved          Status = 4
	StatusVerifying         Status = 5
	StatusVerified          Status = 6
	StatusInitializing      Status = 7
	StatusInitialized       Status = 8
)

func (s Status) String() string {
	switch s {
	case StatusError:
		return "Error"
	case StatusNotReady:
		return "NotReady"
	case StatusIdx:
		return "Idx"
	case StatusLoaded:
		return "Loaded"
	case StatusResolving:
		return "Resolving"
	case StatusResolved:
		return "Resolved"
	case StatusVerifying:
		return "Verifying"
	case StatusVerified:
		return "Verified"
	case StatusInitializing:
		return "Initializing"
	case StatusInitialized:
		return "Initialized"
	default:
		return "Unknown"
	}
}

// InterfaceEntry is one row of a class's interface table: the interface
// itself and the vtable-slot-indexed method array implementing it for this
// class (spec.md §4.8's iftable).
type InterfaceEntry struct {
	Iface   *Class
	Methods []*Method // parallel to Iface's own virtual method list
}

// Class is the managed type descriptor of spec.md §4.8: status, super,
// vtable/iftable, declared members, and the reference-offset bitmaps the
// garbage collector scans by. Grounded on vmregister/value.go's ClassObj
// shape, generalized with the full linking/initialization lifecycle and
// layout bookkeeping spec.md requires.
type Class struct {
	id         ClassId
	df         *DescriptorFile
	descriptor string
	loader     LoaderID

	status atomic.Int32 // Status, stored as int32 for atomic access

	super      *Class
	interfaces []InterfaceEntry
	vtable     []*Method
	directMethods   []*Method
	virtualMethods  []*Method
	instanceFields  []*Field
	staticFields    []*Field

	objectSize       uint32 // header + instance field bytes; 0 until computed
	referenceOffsets uint32 // popcount bitmap over 32-bit-aligned reference slots
	staticRefOffsets uint32

	componentType *Class // non-nil iff this class is an array class
	primitive     Primitive // PrimNot unless this is a primitive pseudo-class
	isInterface   bool
	isFinalizable bool

	statics storage // static field storage area
}

// NewClass constructs an unlinked Class in StatusNotReady. The class
// linker (out of scope) is the only caller expected to use this directly;
// everything else reaches a Class via ClassLinker.FindClass or a
// DescriptorFile's resolved-types cache.
func NewClass(df *DescriptorFile, descriptor string, loader LoaderID) *Class {
	c := &Class{id: newClassId(), df: df, descriptor: descriptor, loader: loader, primitive: PrimNot}
	c.status.Store(int32(StatusNotReady))
	return c
}

// NewPrimitiveClass constructs one of the nine bootstrap pseudo-classes
// (spec.md §3's Primitive taxonomy projected into class space, the way the
// int.class / void.class singletons work).
func NewPrimitiveClass(p Primitive) *Class {
	c := &Class{id: newClassId(), descriptor: string(p.DescriptorChar()), primitive: p}
	c.status.Store(int32(StatusInitialized))
	return c
}

// NewArrayClass constructs an array class over component, per spec.md
// §4.8: its descriptor is "[" prepended to component's, it has no declared
// fields/methods of its own, and it is immediately usable (array classes
// skip most of the linking pipeline).
func NewArrayClass(df *DescriptorFile, component *Class, loader LoaderID) *Class {
	c := &Class{
		id:            newClassId(),
		df:            df,
		descriptor:    "[" + component.Descriptor(),
		loader:        loader,
		componentType: component,
		primitive:     PrimNot,
	}
	c.status.Store(int32(StatusInitialized))
	return c
}

func (c *Class) Id() ClassId         { return c.id }
func (c *Class) Descriptor() string  { return c.descriptor }
func (c *Class) Loader() LoaderID    { return c.loader }
func (c *Class) DescriptorFile() *DescriptorFile { return c.df }

func (c *Class) Status() Status { return Status(c.status.Load()) }

// SetStatus implements spec.md §4.8's set_status: the transition must be
// monotonically forward (or to StatusError, from which no further progress
// is possible), matching the "class status never regresses" invariant
// spec.md §8 tests.
func (c *Class) SetStatus(next Status) error {
	cur := c.Status()
	if cur == StatusError {
		return vmerrors.New(vmerrors.IllegalArgumentError, "class %s already in Error status", c.descriptor)
	}
	if next != StatusError && next < cur {
		return vmerrors.New(vmerrors.IllegalArgumentError,
			"class %s status cannot regress from %s to %s", c.descriptor, cur, next)
	}
	c.status.Store(int32(next))
	return nil
}

func (c *Class) IsPrimitive() bool { return c.primitive != PrimNot }
func (c *Class) IsArray() bool     { return c.componentType != nil }
func (c *Class) IsInterface() bool { return c.isInterface }
func (c *Class) IsFinalizable() bool { return c.isFinalizable }

// ComponentType returns the array class's component type, nil for a
// non-array class.
func (c *Class) ComponentType() *Class { return c.componentType }

// ComponentElementSize returns the storage width of one array component:
// the primitive's fixed size for a primitive array, PointerSize for a
// reference array (spec.md §4.1/§4.4).
func (c *Class) ComponentElementSize() uint32 {
	if c.componentType == nil {
		return 0
	}
	if c.componentType.IsPrimitive() {
		return storageSize(c.componentType.primitive)
	}
	return PointerSize
}

// ObjectSize returns the allocation size of a non-array instance: header
// plus the instance field bytes class linking has laid out.
func (c *Class) ObjectSize() uint32 {
	if c.objectSize == 0 {
		return HeaderSize
	}
	return c.objectSize
}

func (c *Class) staticStorage() *storage { return &c.statics }

// IsInstantiable implements spec.md §4.8's is_instantiable: non-interface,
// non-primitive, and at least StatusResolved. Abstract classes are not
// distinguished; Class carries no abstract flag.
func (c *Class) IsInstantiable() bool {
	if c.IsPrimitive() || c.isInterface {
		return false
	}
	return c.Status() >= StatusResolved
}

// AllocObject implements spec.md §4.8's alloc_object: refuse until the
// runtime has started and the class is instantiable, then ask the heap.
func (c *Class) AllocObject(rt *Runtime) (*Object, error) {
	if !rt.Started() {
		return nil, vmerrors.New(vmerrors.IllegalArgumentError, "runtime not started")
	}
	if !c.IsInstantiable() {
		return nil, vmerrors.New(vmerrors.IllegalArgumentError, "class %s is not instantiable (status=%s)", c.descriptor, c.Status())
	}
	size := c.ObjectSize()
	raw, err := rt.Heap().Alloc(c, size)
	if err != nil || raw == nil {
		return nil, vmerrors.OutOfMemory(uint64(size))
	}
	o := NewObject(c)
	if c.isFinalizable {
		rt.Heap().AddFinalizerReference(o)
	}
	return o, nil
}

// SetReferenceInstanceOffsets/SetReferenceStaticOffsets install the
// reference-offset bitmaps the garbage collector scans by, checking the
// popcount-equals-declared-reference-field-count invariant spec.md §8
// requires before accepting the new value.
func (c *Class) SetReferenceInstanceOffsets(bitmap uint32, declaredRefFields int) error {
	if bits.OnesCount32(bitmap) != declaredRefFields {
		return vmerrors.New(vmerrors.IllegalArgumentError,
			"reference instance offset bitmap popcount %d does not match %d declared reference fields",
			bits.OnesCount32(bitmap), declaredRefFields)
	}
	c.referenceOffsets = bitmap
	return nil
}

func (c *Class) SetReferenceStaticOffsets(bitmap uint32, declaredRefFields int) error {
	if bits.OnesCount32(bitmap) != declaredRefFields {
		return vmerrors.New(vmerrors.IllegalArgumentError,
			"reference static offset bitmap popcount %d does not match %d declared reference fields",
			bits.OnesCount32(bitmap), declaredRefFields)
	}
	c.staticRefOffsets = bitmap
	return nil
}

func (c *Class) ReferenceInstanceOffsets() uint32 { return c.referenceOffsets }
func (c *Class) ReferenceStaticOffsets() uint32    { return c.staticRefOffsets }

func (c *Class) Super() *Class { return c.super }

// packagePrefix returns the package portion of a class descriptor, after
// stripping any leading array markers: the slash-delimited path up to (not
// including) the final component, per spec.md §4.8's in_same_package.
func packagePrefix(descriptor string) string {
	trimmed := strings.TrimLeft(descriptor, "[")
	trimmed = strings.TrimPrefix(trimmed, "L")
	trimmed = strings.TrimSuffix(trimmed, ";")
	if i := strings.LastIndexByte(trimmed, '/'); i >= 0 {
		return trimmed[:i]
	}
	return ""
}

// InSamePackage implements spec.md §4.8's is_in_same_package: the same
// loader and the same package prefix (see packagePrefix).
func (c *Class) InSamePackage(other *Class) bool {
	return c.loader == other.loader && packagePrefix(c.descriptor) == packagePrefix(other.descriptor)
}

// IsAssignableFrom implements spec.md §4.8's is_assignable_from(src):
// identity; a primitive class on either side matches only itself; for an
// array target, src must be an array whose component is assignable
// (primitive components must be the identical class); for an interface
// target, src.Implements(c); otherwise c is the root Object class or
// appears on src's superclass chain.
//
// The method takes no Runtime/context parameter; it recognizes the root
// Object class through c's own DescriptorFile's Runtime back-reference, so
// a class with no DescriptorFile is never treated as the root Object class
// (an array src is then assignable to it only through src's super chain).
func (c *Class) IsAssignableFrom(src *Class) bool {
	if c == src {
		return true
	}
	if c.IsPrimitive() || src.IsPrimitive() {
		return false
	}
	if c.IsArray() {
		if !src.IsArray() {
			return false
		}
		cct, sct := c.ComponentType(), src.ComponentType()
		if cct.IsPrimitive() || sct.IsPrimitive() {
			return cct == sct
		}
		return cct.IsAssignableFrom(sct)
	}
	if c.isInterface {
		return src.Implements(c)
	}
	if objectClass := c.rootObjectClass(); c == objectClass {
		return true
	}
	for s := src.super; s != nil; s = s.super {
		if s == c {
			return true
		}
	}
	return false
}

func (c *Class) rootObjectClass() *Class {
	if c.df == nil {
		return nil
	}
	return c.df.Runtime().WellKnown.ObjectClass
}

// Implements implements spec.md §4.8's implements: true iff iface appears
// directly or transitively (via a superinterface) in src's iftable, or in
// any superclass's iftable walking up the chain.
func (c *Class) Implements(iface *Class) bool {
	for k := c; k != nil; k = k.super {
		for _, e := range k.interfaces {
			if e.Iface == iface || e.Iface.Implements(iface) {
				return true
			}
		}
	}
	return false
}

// find helpers walk the chain a declared-member lookup of the given kind
// uses; "Declared" variants look only at this class, the undecorated
// variants (FindVirtual, FindDirect) walk the super chain.

func (c *Class) FindDeclaredVirtual(name, signature string) *Method {
	return findMethod(c.virtualMethods, name, signature)
}

func (c *Class) FindVirtual(name, signature string) *Method {
	for k := c; k != nil; k = k.super {
		if m := k.FindDeclaredVirtual(name, signature); m != nil {
			return m
		}
	}
	return nil
}

func (c *Class) FindDeclaredDirect(name, signature string) *Method {
	return findMethod(c.directMethods, name, signature)
}

// FindDirect implements spec.md §4.8's find_direct: analogous to
// FindVirtual, it walks the superclass chain looking for a declared direct
// method at each level (original_source/object.cc's FindDirectMethod does
// the same walk). FindDeclaredDirect itself never inherits; FindDirect is
// what does the walking.
func (c *Class) FindDirect(name, signature string) *Method {
	for k := c; k != nil; k = k.super {
		if m := k.FindDeclaredDirect(name, signature); m != nil {
			return m
		}
	}
	return nil
}

func findMethod(methods []*Method, name, signature string) *Method {
	for _, m := range methods {
		if m.Name == name && m.Signature == signature {
			return m
		}
	}
	return nil
}

// FindInterfaceMethod looks up a method declared directly on this
// interface class.
func (c *Class) FindInterfaceMethod(name, signature string) *Method {
	return findMethod(c.virtualMethods, name, signature)
}

// FindVirtualForInterface implements spec.md §4.8's
// find_virtual_method_for_interface / §8 scenario 3: resolve iface's
// method against c's vtable by the interface method's slot in c's iftable
// entry for iface, raising IncompatibleClassChangeError if c has no
// corresponding iftable entry (the class claims to implement the
// interface but the vtable has no slot for it — a verification-time
// invariant violation surfaced here as a runtime error for callers that
// skip verification).
func (c *Class) FindVirtualForInterface(iface *Class, name, signature string) (*Method, error) {
	im := iface.FindInterfaceMethod(name, signature)
	if im == nil {
		return nil, vmerrors.NoSuchMethod(iface.descriptor, name, signature)
	}
	for k := c; k != nil; k = k.super {
		idx := slices.IndexFunc(k.interfaces, func(e InterfaceEntry) bool { return e.Iface == iface })
		if idx < 0 {
			continue
		}
		entry := k.interfaces[idx]
		slot := slices.IndexFunc(iface.virtualMethods, func(m *Method) bool { return m == im })
		if slot < 0 || slot >= len(entry.Methods) || entry.Methods[slot] == nil {
			return nil, vmerrors.IncompatibleClassChange(c.descriptor, iface.descriptor)
		}
		return entry.Methods[slot], nil
	}
	return nil, vmerrors.IncompatibleClassChange(c.descriptor, iface.descriptor)
}

func (c *Class) FindDeclaredInstance(name string) *Field {
	return findField(c.instanceFields, name)
}

func (c *Class) FindInstance(name string) *Field {
	for k := c; k != nil; k = k.super {
		if f := k.FindDeclaredInstance(name); f != nil {
			return f
		}
	}
	return nil
}

func (c *Class) FindDeclaredStatic(name string) *Field {
	return findField(c.staticFields, name)
}

func (c *Class) FindStatic(name string) *Field {
	for k := c; k != nil; k = k.super {
		if f := k.FindDeclaredStatic(name); f != nil {
			return f
		}
	}
	return nil
}

func findField(fields []*Field, name string) *Field {
	for _, f := range fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}
