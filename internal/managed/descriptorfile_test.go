package managed

import (
	"sync"
	"testing"
)

func TestResolveTypeCachesAndIsWriteOnce(t *testing.T) {
	target := NewClass(nil, "Ljava/lang/String;", LoaderID{})
	linker := &fakeLinker{typeResult: target}
	rt := newTestRuntime(linker)
	df := NewDescriptorFile(rt, &fakeClassFileData{location: "Lfoo/Bar;"}, LoaderID{})

	got1, err := df.ResolveType(3)
	if err != nil {
		t.Fatalf("ResolveType error: %v", err)
	}
	got2, err := df.ResolveType(3)
	if err != nil {
		t.Fatalf("ResolveType error: %v", err)
	}
	if got1 != target || got2 != target {
		t.Fatal("ResolveType did not return the resolved class")
	}
	if linker.typeCalls != 1 {
		t.Errorf("ClassLinker.ResolveType called %d times, want 1 (cached on second call)", linker.typeCalls)
	}
}

func TestResolveTypeConcurrentCallersResolveAtMostOnce(t *testing.T) {
	target := NewClass(nil, "Ljava/lang/String;", LoaderID{})
	linker := &fakeLinker{typeResult: target}
	rt := newTestRuntime(linker)
	df := NewDescriptorFile(rt, &fakeClassFileData{location: "Lfoo/Bar;"}, LoaderID{})

	const n = 20
	var wg sync.WaitGroup
	results := make([]*Class, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := df.ResolveType(7)
			if err != nil {
				t.Errorf("ResolveType error: %v", err)
				return
			}
			results[i] = c
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		if r != target {
			t.Fatalf("goroutine saw %v, want %v", r, target)
		}
	}
	if linker.typeCalls != 1 {
		t.Errorf("ClassLinker.ResolveType called %d times across %d concurrent callers, want 1", linker.typeCalls, n)
	}
}

func TestMarkClassInitializedIsWriteOnce(t *testing.T) {
	rt := newTestRuntime(&fakeLinker{})
	df := NewDescriptorFile(rt, &fakeClassFileData{}, LoaderID{})

	if df.IsClinitDone(1) {
		t.Fatal("expected IsClinitDone false before MarkClassInitialized")
	}
	df.MarkClassInitialized(1)
	df.MarkClassInitialized(1) // idempotent
	if !df.IsClinitDone(1) {
		t.Fatal("expected IsClinitDone true after MarkClassInitialized")
	}
	if df.IsClinitDone(2) {
		t.Fatal("unrelated class def idx must not report done")
	}
}

func TestCodeSlotDefaultsToNullThenTrampolineAfterInit(t *testing.T) {
	rt := newTestRuntime(&fakeLinker{})
	df := NewDescriptorFile(rt, &fakeClassFileData{}, LoaderID{})
	df.SetResolvedDirectMethod(0, NewMethod(df, 0, "run", "()V", MethodStatic, 0, nil, nil), NullEntryPoint)

	if df.CodeSlot(0) != NullEntryPoint {
		t.Fatalf("CodeSlot before Init = %v, want NullEntryPoint", df.CodeSlot(0))
	}
	rt.Start()
	df.Init()
	if df.CodeSlot(0) != TrampolineSentinel {
		t.Fatalf("CodeSlot after Init = %v, want TrampolineSentinel", df.CodeSlot(0))
	}
}

func TestSetResolvedDirectMethodOverridesTrampoline(t *testing.T) {
	rt := newTestRuntime(&fakeLinker{})
	rt.Start()
	df := NewDescriptorFile(rt, &fakeClassFileData{}, LoaderID{})
	m := NewMethod(df, 0, "run", "()V", MethodStatic, 0, nil, nil)
	df.SetResolvedDirectMethod(0, m, NullEntryPoint)
	df.Init()
	if df.CodeSlot(0) != TrampolineSentinel {
		t.Fatal("expected trampoline sentinel before resolution")
	}

	resolved := CodeEntryPoint(0xABCD)
	df.SetResolvedDirectMethod(0, m, resolved)
	if df.CodeSlot(0) != resolved {
		t.Fatalf("CodeSlot after resolution = %v, want %v", df.CodeSlot(0), resolved)
	}
	got, ok := df.DirectMethodAt(0)
	if !ok || got != m {
		t.Fatal("DirectMethodAt did not return the installed method")
	}
}

func TestResolveStringDecodesAndCaches(t *testing.T) {
	linker := &fakeLinker{}
	rt := newTestRuntime(linker)
	source := &fakeClassFileData{strings: map[uint32]string{0: string(ToModifiedUTF8([]uint16{'h', 'i'}))}}
	df := NewDescriptorFile(rt, source, LoaderID{})

	stringClass := NewClass(nil, "Ljava/lang/String;", LoaderID{})
	charArrClass := NewArrayClass(nil, NewPrimitiveClass(PrimChar), LoaderID{})

	s1, err := df.ResolveString(0, stringClass, charArrClass)
	if err != nil {
		t.Fatalf("ResolveString error: %v", err)
	}
	if s1.Length() != 2 {
		t.Fatalf("Length() = %d, want 2", s1.Length())
	}
	s2, err := df.ResolveString(0, stringClass, charArrClass)
	if err != nil {
		t.Fatalf("ResolveString error: %v", err)
	}
	if s1 != s2 {
		t.Fatal("expected second ResolveString call to hit the cache and return the same instance")
	}
}
