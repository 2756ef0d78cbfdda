package managed

import (
	"testing"

	"corevm/internal/bytecode"
)

func TestIsDirectForStaticPrivateAndConstructor(t *testing.T) {
	cases := []struct {
		name  string
		flags MethodAccessFlags
		want  bool
	}{
		{"run", MethodStatic, true},
		{"helper", MethodPrivate, true},
		{"<init>", 0, true},
		{"run", 0, false},
	}
	for _, c := range cases {
		m := NewMethod(nil, 0, c.name, "()V", c.flags, bytecode.NoIndex16, nil, nil)
		if got := m.IsDirect(); got != c.want {
			t.Errorf("IsDirect(name=%s flags=%v) = %v, want %v", c.name, c.flags, got, c.want)
		}
	}
}

func TestInitReflectiveStateParsesSignature(t *testing.T) {
	m := NewMethod(nil, 0, "add", "(II)I", MethodStatic, bytecode.NoIndex16, nil, nil)
	if err := m.InitReflectiveState(); err != nil {
		t.Fatalf("InitReflectiveState error: %v", err)
	}
	if len(m.ParamDescriptors) != 2 || m.ReturnDescriptor != "I" {
		t.Fatalf("params=%v ret=%q", m.ParamDescriptors, m.ReturnDescriptor)
	}
	shorty, err := m.Shorty()
	if err != nil {
		t.Fatalf("Shorty error: %v", err)
	}
	if shorty != "III" {
		t.Errorf("Shorty() = %q, want III", shorty)
	}
}

func TestPCMappingDelegatesToCodeItem(t *testing.T) {
	code := &bytecode.CodeItem{Mapping: []bytecode.PCMapEntry{
		{NativeOffset: 0, BytecodeOffset: 0},
		{NativeOffset: 4, BytecodeOffset: 2},
	}}
	m := NewMethod(nil, 0, "run", "()V", 0, bytecode.NoIndex16, code, nil)

	native, ok := m.ToNativePC(2)
	if !ok || native != 4 {
		t.Fatalf("ToNativePC = %d, %v; want 4, true", native, ok)
	}
	bc, ok := m.ToBytecodePC(native)
	if !ok || bc != 2 {
		t.Fatalf("ToBytecodePC = %d, %v; want 2, true", bc, ok)
	}
}

func TestFindCatchHandlerPrefersAssignableOverCatchAll(t *testing.T) {
	code := &bytecode.CodeItem{Tries: []bytecode.TryItem{
		{StartAddr: 0, InsnCount: 10, Handlers: []bytecode.CatchHandler{
			{TypeIdx: 5, HandlerAddr: 100},
			{TypeIdx: bytecode.NoIndex16, HandlerAddr: 200},
		}},
	}}
	m := NewMethod(nil, 0, "run", "()V", 0, bytecode.NoIndex16, code, nil)

	h, ok := m.FindCatchHandler(3, func(typeIdx uint32) bool { return typeIdx == 5 })
	if !ok || h.HandlerAddr != 100 {
		t.Fatalf("expected the assignable handler at 100, got %+v, ok=%v", h, ok)
	}
}

func TestFindCatchHandlerFallsBackToCatchAll(t *testing.T) {
	code := &bytecode.CodeItem{Tries: []bytecode.TryItem{
		{StartAddr: 0, InsnCount: 10, Handlers: []bytecode.CatchHandler{
			{TypeIdx: 5, HandlerAddr: 100},
			{TypeIdx: bytecode.NoIndex16, HandlerAddr: 200},
		}},
	}}
	m := NewMethod(nil, 0, "run", "()V", 0, bytecode.NoIndex16, code, nil)

	h, ok := m.FindCatchHandler(3, func(typeIdx uint32) bool { return false })
	if !ok || h.HandlerAddr != 200 {
		t.Fatalf("expected catch-all handler at 200, got %+v, ok=%v", h, ok)
	}
}

func TestInvokeRejectsAbstractMethod(t *testing.T) {
	m := NewMethod(nil, 0, "run", "()V", MethodAbstract, bytecode.NoIndex16, nil, nil)
	rt := newTestRuntime(&fakeLinker{})
	thread := &fakeThread{state: ThreadRunnable}
	if _, err := m.Invoke(rt, thread, nil, nil); err == nil {
		t.Fatal("expected error invoking an abstract method")
	}
}

func TestInvokeRejectsNonRunnableThread(t *testing.T) {
	called := false
	stub := func(m *Method, receiver *Object, args []Arg) (Result, error) {
		called = true
		return Result{}, nil
	}
	m := NewMethod(nil, 0, "run", "()V", 0, bytecode.NoIndex16, nil, stub)
	rt := newTestRuntime(&fakeLinker{})
	thread := &fakeThread{} // zero value: ThreadUnknown, not Runnable

	if _, err := m.Invoke(rt, thread, nil, nil); err == nil {
		t.Fatal("expected error invoking with a non-Runnable thread")
	}
	if called {
		t.Fatal("stub must not run when the thread precondition fails")
	}
}

func TestInvokeBalancesNativeToManagedFrames(t *testing.T) {
	called := false
	stub := func(m *Method, receiver *Object, args []Arg) (Result, error) {
		called = true
		return Result{Kind: PrimInt, I64: 7}, nil
	}
	m := NewMethod(nil, 0, "run", "()I", 0, bytecode.NoIndex16, nil, stub)
	rt := newTestRuntime(&fakeLinker{})
	thread := &fakeThread{state: ThreadRunnable}

	res, err := m.Invoke(rt, thread, nil, nil)
	if err != nil {
		t.Fatalf("Invoke error: %v", err)
	}
	if !called {
		t.Fatal("stub was not invoked")
	}
	if res.I64 != 7 {
		t.Errorf("result = %d, want 7", res.I64)
	}
	if thread.depth != 0 {
		t.Errorf("thread.depth = %d after Invoke, want 0 (push/pop must balance)", thread.depth)
	}
}

func TestInvokeNativeRequiresRegistration(t *testing.T) {
	m := NewMethod(&DescriptorFile{source: &fakeClassFileData{location: "Lfoo/Bar;"}}, 0, "run", "()V", MethodNative, bytecode.NoIndex16, nil, nil)
	rt := newTestRuntime(&fakeLinker{})
	thread := &fakeThread{state: ThreadRunnable}
	if _, err := m.Invoke(rt, thread, nil, nil); err == nil {
		t.Fatal("expected error invoking an unregistered native method")
	}
}

func TestRegisterNativeInstallsJNIStubEntryPoint(t *testing.T) {
	df := &DescriptorFile{source: &fakeClassFileData{location: "Lfoo/Bar;"}}
	m := NewMethod(df, 0, "run", "()V", MethodNative, bytecode.NoIndex16, nil, nil)
	rt := newTestRuntime(&fakeLinker{})

	called := false
	err := m.RegisterNative(rt, func(rt *Runtime, receiver *Object, args []Arg) (Result, error) {
		called = true
		return Result{}, nil
	})
	if err != nil {
		t.Fatalf("RegisterNative error: %v", err)
	}
	if m.EntryPoint() != rt.JNIStub() {
		t.Errorf("EntryPoint() = %v, want JNIStub sentinel", m.EntryPoint())
	}

	thread := &fakeThread{state: ThreadRunnable}
	if _, err := m.Invoke(rt, thread, nil, nil); err != nil {
		t.Fatalf("Invoke error after registration: %v", err)
	}
	if !called {
		t.Fatal("native function was not invoked")
	}
}

func TestRegisterNativeRejectsNonNativeMethod(t *testing.T) {
	m := NewMethod(&DescriptorFile{source: &fakeClassFileData{location: "Lfoo/Bar;"}}, 0, "run", "()V", 0, bytecode.NoIndex16, nil, nil)
	rt := newTestRuntime(&fakeLinker{})
	if err := m.RegisterNative(rt, func(rt *Runtime, receiver *Object, args []Arg) (Result, error) { return Result{}, nil }); err == nil {
		t.Fatal("expected error registering a native function on a non-native method")
	}
}
