package managed

import (
	"sync"
	"sync/atomic"
)

// Shared test fakes for the managed package's collaborator interfaces.
// Grounded on the teacher's table-driven test style; these stand in for
// the out-of-scope heap/monitor/intern/class-linker subsystems.

type fakeHeap struct {
	mu         sync.Mutex
	allocs     int
	finalizers []*Object
	failNext   bool
}

func (h *fakeHeap) Alloc(class *Class, size uint32) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.failNext {
		h.failNext = false
		return nil, nil
	}
	h.allocs++
	return make([]byte, size), nil
}

func (h *fakeHeap) AddFinalizerReference(obj *Object) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.finalizers = append(h.finalizers, obj)
}

type fakeMonitor struct {
	entered int32
}

func (m *fakeMonitor) Enter(obj *Object)      { atomic.AddInt32(&m.entered, 1) }
func (m *fakeMonitor) Exit(obj *Object)       { atomic.AddInt32(&m.entered, -1) }
func (m *fakeMonitor) Wait(obj *Object, ms int64, ns int32) error { return nil }
func (m *fakeMonitor) Notify(obj *Object)     {}
func (m *fakeMonitor) NotifyAll(obj *Object)  {}
func (m *fakeMonitor) ThinLockIDOf(obj *Object) uint32 { return 1 }

type fakeInterns struct {
	mu    sync.Mutex
	table map[string]*MString
}

func newFakeInterns() *fakeInterns { return &fakeInterns{table: make(map[string]*MString)} }

func (t *fakeInterns) InternWeak(s *MString) *MString {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := ToUTF8String(s.ToUTF16())
	if existing, ok := t.table[key]; ok {
		return existing
	}
	t.table[key] = s
	return s
}

// fakeLinker counts calls so tests can assert at-most-once resolution.
type fakeLinker struct {
	mu          sync.Mutex
	typeCalls   int
	methodCalls int
	fieldCalls  int
	typeResult  *Class
	methodResult *Method
	fieldResult *Field
}

func (l *fakeLinker) FindClass(descriptor string, loader LoaderID) (*Class, error) {
	return NewClass(nil, descriptor, loader), nil
}
func (l *fakeLinker) FindPrimitiveClass(c byte) (*Class, error) {
	p, _ := PrimitiveFromDescriptorChar(c)
	return NewPrimitiveClass(p), nil
}
func (l *fakeLinker) FindSystemClass(descriptor string) (*Class, error) {
	return NewClass(nil, descriptor, LoaderID{}), nil
}
func (l *fakeLinker) ResolveType(df *DescriptorFile, typeIdx uint32) (*Class, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.typeCalls++
	return l.typeResult, nil
}
func (l *fakeLinker) ResolveMethod(df *DescriptorFile, methodIdx uint32) (*Method, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.methodCalls++
	return l.methodResult, nil
}
func (l *fakeLinker) ResolveField(df *DescriptorFile, fieldIdx uint32) (*Field, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.fieldCalls++
	return l.fieldResult, nil
}

type fakeThread struct {
	state    ThreadState
	depth    int32
	thrown   []string
}

func (t *fakeThread) State() ThreadState { return t.state }
func (t *fakeThread) SetState(s ThreadState) ThreadState { old := t.state; t.state = s; return old }
func (t *fakeThread) PushNativeToManaged()               { atomic.AddInt32(&t.depth, 1) }
func (t *fakeThread) PopNativeToManaged()                { atomic.AddInt32(&t.depth, -1) }
func (t *fakeThread) ThrowNewException(descriptor, format string, args ...interface{}) {
	t.thrown = append(t.thrown, descriptor)
}

type fakeClassFileData struct {
	location    string
	strings     map[uint32]string
	typeDescs   map[uint32]string
}

func (c *fakeClassFileData) Location() string { return c.location }
func (c *fakeClassFileData) StringByIdx(idx uint32) (string, error) { return c.strings[idx], nil }
func (c *fakeClassFileData) TypeId(idx uint32) (string, error)      { return c.typeDescs[idx], nil }
func (c *fakeClassFileData) FindClassDefIdx(descriptor string) (uint32, bool) { return 0, false }
func (c *fakeClassFileData) FindStringId(s string) (uint32, bool)            { return 0, false }
func (c *fakeClassFileData) FindProtoId(signature string) (uint32, bool)     { return 0, false }
func (c *fakeClassFileData) FindMethodId(classIdx, nameIdx, protoIdx uint32) (uint32, bool) {
	return 0, false
}
func (c *fakeClassFileData) IndexForMethodId(methodIdx uint32) (uint32, uint32, uint32) {
	return 0, 0, 0
}
func (c *fakeClassFileData) GetTypeDescriptor(typeIdx uint32) string { return c.typeDescs[typeIdx] }

func newTestRuntime(linker ClassLinker) *Runtime {
	rt := New(linker, &fakeHeap{}, &fakeMonitor{}, newFakeInterns())
	return rt
}
