// Package managed is the managed object and reflection core: Object, Array,
// String, Field, Method, Class, and the per-file DescriptorFile resolution
// cache, plus the narrow collaborator interfaces this core consumes from the
// bytecode decoder, class loader, garbage-collected heap, monitor subsystem,
// and intern table (spec.md §6). Those collaborators are out of scope here —
// only their interfaces are defined, so a real implementation can be plugged
// in by an executor package that does own them.
//
// Class, Method, Field, and DescriptorFile form a cyclic reference graph
// (Class ↔ DescriptorFile ↔ Method ↔ Class); they live in one package for
// that reason (see SPEC_FULL.md §5 and DESIGN.md).
package managed

import (
	"sync/atomic"

	"github.com/google/uuid"
)

// LoaderID is the opaque namespace handle a class loader hands us; we never
// interpret it beyond equality comparison (spec.md §1 "loader identity").
type LoaderID uuid.UUID

// NewLoaderID mints a fresh, collision-resistant loader identity.
func NewLoaderID() LoaderID { return LoaderID(uuid.New()) }

// ClassId and MethodId are typed identity values minted from random UUIDs.
// Every Class gets a ClassId at construction; no Method is assigned a
// MethodId. The Class/DescriptorFile/Method back-edges themselves are plain
// Go pointers, not lookups by these ids.
type ClassId uuid.UUID
type MethodId uuid.UUID

func newClassId() ClassId   { return ClassId(uuid.New()) }
func newMethodId() MethodId { return MethodId(uuid.New()) }

// CodeEntryPoint is an opaque compiled-code address. This core never
// executes it; it only publishes, compares, and passes it through the
// DescriptorFile cache and the resolution trampoline contract (spec.md §6).
type CodeEntryPoint uint64

const (
	// NullEntryPoint marks "no compiled code installed".
	NullEntryPoint CodeEntryPoint = 0
	// TrampolineSentinel is the shared resolution trampoline's address as
	// this core sees it: any DescriptorFile code slot still holding this
	// value has not yet been resolved (spec.md §4.9, §8 scenario 6).
	TrampolineSentinel CodeEntryPoint = 1
	// JNIStubSentinel is the shared native-method stub's address.
	JNIStubSentinel CodeEntryPoint = 2
)

// ThreadState mirrors the subset of mutator thread states this core cares
// about (spec.md §5's suspension-point precondition).
type ThreadState int32

const (
	ThreadUnknown ThreadState = iota
	ThreadRunnable
	ThreadNative
	ThreadSuspended
)

// Thread is the narrow slice of the thread/monitor subsystem this core
// calls into: state transitions, the NativeToManaged frame marker
// Method.Invoke pushes and pops, and exception raising (spec.md §6).
type Thread interface {
	State() ThreadState
	SetState(ThreadState) ThreadState
	PushNativeToManaged()
	PopNativeToManaged()
	ThrowNewException(descriptor, format string, args ...interface{})
}

// MonitorOps is the thin-lock/monitor subsystem's interface (spec.md §6).
type MonitorOps interface {
	Enter(obj *Object)
	Exit(obj *Object)
	Wait(obj *Object, timeoutMS int64, timeoutNS int32) error
	Notify(obj *Object)
	NotifyAll(obj *Object)
	ThinLockIDOf(obj *Object) uint32
}

// Heap is the garbage-collected heap's interface (spec.md §6).
type Heap interface {
	Alloc(class *Class, size uint32) ([]byte, error)
	AddFinalizerReference(obj *Object)
}

// InternTable is the intern table's interface (spec.md §6).
type InternTable interface {
	InternWeak(s *MString) *MString
}

// ClassLinker is the class loader hierarchy's interface (spec.md §6). It is
// the only collaborator allowed to construct new Class/Method/Field values
// during resolution; this core only ever reads from or caches what it
// returns.
type ClassLinker interface {
	FindClass(descriptor string, loader LoaderID) (*Class, error)
	FindPrimitiveClass(descriptorChar byte) (*Class, error)
	FindSystemClass(descriptor string) (*Class, error)
	ResolveType(df *DescriptorFile, typeIdx uint32) (*Class, error)
	ResolveMethod(df *DescriptorFile, methodIdx uint32) (*Method, error)
	ResolveField(df *DescriptorFile, fieldIdx uint32) (*Field, error)
}

// WellKnown holds the bootstrap class references the teacher kept as
// process-wide globals (String.java_lang_String_ and friends). spec.md §9
// asks for these to become fields of an explicitly-passed Runtime context
// instead of hidden globals; this struct is that re-architecture.
type WellKnown struct {
	ObjectClass           *Class
	StringClass           *Class
	ThrowableClass        *Class
	ExceptionClass        *Class
	RuntimeExceptionClass *Class
	ErrorClass            *Class
}

// Runtime is the single explicit context every operation that would
// otherwise reach for a process-wide global takes instead: the collaborator
// interfaces, the started flag, and the well-known bootstrap classes.
type Runtime struct {
	linker  ClassLinker
	heap    Heap
	monitor MonitorOps
	interns InternTable
	started atomic.Bool

	WellKnown WellKnown
}

// New constructs a Runtime context. Start/Teardown model the explicit
// init -> teardown lifecycle spec.md §9 asks for in place of static
// initialization order.
func New(linker ClassLinker, heap Heap, monitor MonitorOps, interns InternTable) *Runtime {
	return &Runtime{linker: linker, heap: heap, monitor: monitor, interns: interns}
}

// Start flips the runtime to "started"; Class.AllocObject and
// DescriptorFile.Init consult this (spec.md §4.3, §4.8). Class.SetStatus
// does not: its monotonicity check applies whether or not the runtime has
// started.
func (rt *Runtime) Start() { rt.started.Store(true) }

// Teardown flips the runtime back to "not started", for test isolation.
func (rt *Runtime) Teardown() { rt.started.Store(false) }

func (rt *Runtime) Started() bool         { return rt.started.Load() }
func (rt *Runtime) ClassLinker() ClassLinker { return rt.linker }
func (rt *Runtime) Heap() Heap             { return rt.heap }
func (rt *Runtime) Monitor() MonitorOps    { return rt.monitor }
func (rt *Runtime) InternTable() InternTable { return rt.interns }

// ResolutionTrampoline returns the shared resolution-trampoline address
// DescriptorFile.Init seeds into each registered direct-method code slot
// still at NullEntryPoint, once the runtime has started (spec.md §4.9, §6's "resolution trampoline
// contract"). The trampoline's own behavior — receive (method_idx,
// calling_method), return a compiled entry point, and publish it via
// DescriptorFile.SetResolvedDirectMethod — is implemented by the executor,
// not this core; we only hand out the sentinel address it is known by.
func (rt *Runtime) ResolutionTrampoline() CodeEntryPoint { return TrampolineSentinel }

// JNIStub returns the shared native-method stub address (spec.md §6's "JNI
// stub array").
func (rt *Runtime) JNIStub() CodeEntryPoint { return JNIStubSentinel }
