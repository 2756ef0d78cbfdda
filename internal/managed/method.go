package managed

import (
	"sync/atomic"

	"corevm/internal/bytecode"
	"corevm/internal/vmerrors"
)

// MethodAccessFlags mirrors the subset of access flags spec.md §4.2 cares
// about for dispatch purposes.
type MethodAccessFlags uint32

const (
	MethodStatic   MethodAccessFlags = 1 << 0
	MethodPrivate  MethodAccessFlags = 1 << 1
	MethodAbstract MethodAccessFlags = 1 << 2
	MethodNative   MethodAccessFlags = 1 << 3
	MethodFinal    MethodAccessFlags = 1 << 4
)

// StubFunc is the calling-convention trampoline a Method's entry point
// invokes to marshal managed arguments into a native call and back (spec.md
// §4.2's "invocation stub"). NativeFunc is the pointer a bound native
// method installs. Both are opaque to this core — it only stores and
// invokes them — mirroring how CodeEntryPoint is opaque in runtime.go.
type StubFunc func(m *Method, receiver *Object, args []Arg) (Result, error)
type NativeFunc func(rt *Runtime, receiver *Object, args []Arg) (Result, error)

// Arg is one boxed argument/return value crossing the managed/native
// boundary; Kind disambiguates which union member is live.
type Arg struct {
	Kind Primitive
	I64  int64
	F64  float64
	Ref  *Object
}

type Result = Arg

// Method is one declared method, per spec.md §4.2: the owning
// DescriptorFile, its vtable slot (or NoIndex16 if none), the code item
// (absent for abstract/native methods), reflective type info resolved
// lazily, and the installed entry point. Grounded on vmregister's
// FunctionObj{Name, Params, Body} shape, generalized to vtable slots,
// PC-mapped bytecode, and native binding.
type Method struct {
	df         *DescriptorFile
	Name       string
	Signature  string
	flags      MethodAccessFlags
	vtableSlot uint16 // bytecode.NoIndex16 if not virtually dispatched
	methodIdx  uint32 // slot within df's method arrays
	code       *bytecode.CodeItem
	codeBase   uint32 // native-PC base this method's code is laid out from

	// Reflective state, initialized lazily by InitReflectiveState: raw
	// descriptor strings parsed from the signature, rather than
	// DescriptorFile type indices. No Class is resolved for them here,
	// neither through the class loader's FindClass nor through
	// ClassLinker.ResolveType (the path Field.GetType uses, spec.md §4.6).
	reflectOnce      atomic.Bool
	ParamDescriptors []string
	ReturnDescriptor string
	shorty           string

	entryPoint       atomic.Uint64 // CodeEntryPoint, 0 == NullEntryPoint
	nativeFunc       atomic.Pointer[NativeFunc]
	nativeRegistered atomic.Bool
	stub             StubFunc
}

// NewMethod constructs a Method descriptor; vtableSlot should be
// bytecode.NoIndex16 for a method with no virtual dispatch slot (statics,
// constructors, private methods).
func NewMethod(df *DescriptorFile, methodIdx uint32, name, signature string, flags MethodAccessFlags, vtableSlot uint16, code *bytecode.CodeItem, stub StubFunc) *Method {
	return &Method{df: df, methodIdx: methodIdx, Name: name, Signature: signature, flags: flags, vtableSlot: vtableSlot, code: code, stub: stub}
}

func (m *Method) IsStatic() bool   { return m.flags&MethodStatic != 0 }
func (m *Method) IsPrivate() bool  { return m.flags&MethodPrivate != 0 }
func (m *Method) IsAbstract() bool { return m.flags&MethodAbstract != 0 }
func (m *Method) IsNative() bool   { return m.flags&MethodNative != 0 }
func (m *Method) IsFinal() bool    { return m.flags&MethodFinal != 0 }

// IsDirect implements spec.md §4.2's is_direct: static, private, or a
// constructor dispatch statically rather than virtually.
func (m *Method) IsDirect() bool {
	return m.IsStatic() || m.IsPrivate() || m.Name == "<init>"
}

func (m *Method) HasVTableIndex() bool { return m.vtableSlot != bytecode.NoIndex16 }
func (m *Method) VTableIndex() uint16  { return m.vtableSlot }

// CodeItem returns the method's bytecode, nil for abstract/native methods.
func (m *Method) CodeItem() *bytecode.CodeItem { return m.code }

// InitReflectiveState lazily parses the method's signature into its
// parameter and return descriptor strings and its shorty. It does not
// resolve those descriptors to Classes through the class loader (nor
// through Field.GetType's index-based ClassLinker.ResolveType path).
// Guarded by reflectOnce so concurrent first callers agree on one result,
// mirroring DescriptorFile's singleflight-backed caches without pulling in
// the dependency for a single field.
func (m *Method) InitReflectiveState() error {
	if m.reflectOnce.Load() {
		return nil
	}
	params, ret, err := ParseSignature(m.Signature)
	if err != nil {
		return err
	}
	m.ParamDescriptors = params
	m.ReturnDescriptor = ret
	m.shorty = ShortyOf(ret, params)
	m.reflectOnce.Store(true)
	return nil
}

// Shorty returns the method's compact per-argument shorty string,
// resolving reflective state first if needed.
func (m *Method) Shorty() (string, error) {
	if err := m.InitReflectiveState(); err != nil {
		return "", err
	}
	return m.shorty, nil
}

// NumArgRegisters returns the number of argument registers this method's
// shorty implies (spec.md §4.1).
func (m *Method) NumArgRegisters() (int, error) {
	s, err := m.Shorty()
	if err != nil {
		return 0, err
	}
	return NumArgRegisters(s), nil
}

// SetCodeBase records the native-PC base the method's CodeItem.Mapping
// table is laid out relative to, installed once the (out-of-scope) code
// generator places the method.
func (m *Method) SetCodeBase(base uint32) { m.codeBase = base }

// ToBytecodePC/ToNativePC delegate to the method's CodeItem PC mapping
// table (spec.md §4.7).
func (m *Method) ToBytecodePC(nativePC uint32) (int, bool) {
	if m.code == nil {
		return bytecode.NoIndex, false
	}
	bc := m.code.ToBytecodePC(m.codeBase, nativePC)
	return bc, bc != bytecode.NoIndex
}

func (m *Method) ToNativePC(bytecodePC uint32) (uint32, bool) {
	if m.code == nil {
		return 0, false
	}
	return m.code.ToNativePC(m.codeBase, bytecodePC)
}

// FindCatchHandler delegates to the CodeItem's try/catch table, the search
// spec.md §4.7 and §8 scenario 5 describe: the try item whose range covers
// the PC, then the first handler within it whose type the thrown
// exception's class is assignable to, falling back to the NoIndex16
// catch-all wherever it sits in the list.
func (m *Method) FindCatchHandler(bytecodePC uint32, isAssignable func(typeIdx uint32) bool) (bytecode.CatchHandler, bool) {
	if m.code == nil {
		return bytecode.CatchHandler{}, false
	}
	t := m.code.HandlersFor(bytecodePC)
	if t == nil {
		return bytecode.CatchHandler{}, false
	}
	for _, h := range t.Handlers {
		if h.TypeIdx != bytecode.NoIndex16 && isAssignable(h.TypeIdx) {
			return h, true
		}
	}
	for _, h := range t.Handlers {
		if h.TypeIdx == bytecode.NoIndex16 {
			return h, true
		}
	}
	return bytecode.CatchHandler{}, false
}

// EntryPoint/SetEntryPoint publish the method's current compiled-code
// address (spec.md §4.9's code_and_direct_methods slot, installed by the
// resolution trampoline or by RegisterNative).
func (m *Method) EntryPoint() CodeEntryPoint { return CodeEntryPoint(m.entryPoint.Load()) }
func (m *Method) SetEntryPoint(ep CodeEntryPoint) { m.entryPoint.Store(uint64(ep)) }

// RegisterNative implements spec.md §4.2's register_native: install the
// native function pointer and flip the method's entry point to the JNI
// stub sentinel so future invocations route through it instead of the
// resolution trampoline.
func (m *Method) RegisterNative(rt *Runtime, fn NativeFunc) error {
	if !m.IsNative() {
		return vmerrors.New(vmerrors.IllegalArgumentError, "%s.%s is not declared native", m.df.source.Location(), m.Name)
	}
	m.nativeFunc.Store(&fn)
	m.nativeRegistered.Store(true)
	m.SetEntryPoint(rt.JNIStub())
	return nil
}

func (m *Method) IsNativeRegistered() bool { return m.nativeRegistered.Load() }

// Invoke implements spec.md §4.2's invoke: push a NativeToManaged frame
// marker (mirrored here regardless of direction, since this core never
// actually executes bytecode — only the bookkeeping invariant "every
// invocation is balanced" is modeled, per spec.md §8's "invocation
// balance" property), dispatch to the registered native function or the
// installed stub, and pop the frame marker whether or not the call
// succeeded.
func (m *Method) Invoke(rt *Runtime, thread Thread, receiver *Object, args []Arg) (Result, error) {
	loc := "<unknown>"
	if m.df != nil && m.df.source != nil {
		loc = m.df.source.Location()
	}
	if m.IsAbstract() {
		return Result{}, vmerrors.New(vmerrors.IllegalArgumentError, "cannot invoke abstract method %s.%s", loc, m.Name)
	}
	if thread.State() != ThreadRunnable {
		return Result{}, vmerrors.New(vmerrors.IllegalArgumentError, "cannot invoke %s.%s: calling thread is not Runnable", loc, m.Name)
	}
	thread.PushNativeToManaged()
	defer thread.PopNativeToManaged()

	if m.IsNative() {
		if !m.IsNativeRegistered() {
			return Result{}, vmerrors.New(vmerrors.NoSuchMethodError, "native method %s.%s is not bound", loc, m.Name)
		}
		fn := m.nativeFunc.Load()
		return (*fn)(rt, receiver, args)
	}
	if m.stub == nil {
		return Result{}, vmerrors.New(vmerrors.NoSuchMethodError, "method %s.%s has no invocation stub", loc, m.Name)
	}
	return m.stub(m, receiver, args)
}
