package bytecode

import "testing"

func TestToBytecodePCFindsLargestMappedOffsetBelowSought(t *testing.T) {
	c := &CodeItem{Mapping: []PCMapEntry{
		{NativeOffset: 0, BytecodeOffset: 0},
		{NativeOffset: 4, BytecodeOffset: 2},
		{NativeOffset: 12, BytecodeOffset: 6},
	}}
	if got := c.ToBytecodePC(0, 4); got != 2 {
		t.Errorf("exact match: got %d, want 2", got)
	}
	if got := c.ToBytecodePC(0, 9); got != 2 {
		t.Errorf("between entries: got %d, want 2 (largest <= sought)", got)
	}
	if got := c.ToBytecodePC(0, 100); got != 6 {
		t.Errorf("past last entry: got %d, want 6", got)
	}
}

func TestToBytecodePCEmptyMappingIsNoIndex(t *testing.T) {
	c := &CodeItem{}
	if got := c.ToBytecodePC(0, 0); got != NoIndex {
		t.Errorf("got %d, want NoIndex", got)
	}
}

func TestToNativePCRoundTripsWithToBytecodePC(t *testing.T) {
	c := &CodeItem{Mapping: []PCMapEntry{
		{NativeOffset: 0, BytecodeOffset: 0},
		{NativeOffset: 8, BytecodeOffset: 4},
	}}
	const base = 0x1000
	native, ok := c.ToNativePC(base, 4)
	if !ok || native != base+8 {
		t.Fatalf("ToNativePC = %d, %v; want %d, true", native, ok, base+8)
	}
	back := c.ToBytecodePC(base, native)
	if back != 4 {
		t.Errorf("round trip: got bytecode pc %d, want 4", back)
	}
}

func TestToNativePCEmptyMappingOnlyAcceptsZero(t *testing.T) {
	c := &CodeItem{}
	if native, ok := c.ToNativePC(0x40, 0); !ok || native != 0x40 {
		t.Errorf("zero pc with empty mapping: got %d, %v", native, ok)
	}
	if _, ok := c.ToNativePC(0x40, 1); ok {
		t.Error("nonzero pc with empty mapping should fail")
	}
}

func TestHandlersForReturnsCoveringTryRange(t *testing.T) {
	c := &CodeItem{Tries: []TryItem{
		{StartAddr: 0, InsnCount: 10, Handlers: []CatchHandler{{TypeIdx: 5, HandlerAddr: 20}}},
		{StartAddr: 10, InsnCount: 5, Handlers: []CatchHandler{{TypeIdx: NoIndex16, HandlerAddr: 30}}},
	}}
	if got := c.HandlersFor(3); got == nil || got.StartAddr != 0 {
		t.Fatalf("pc 3 should hit first try range, got %+v", got)
	}
	if got := c.HandlersFor(12); got == nil || got.StartAddr != 10 {
		t.Fatalf("pc 12 should hit second try range, got %+v", got)
	}
	if got := c.HandlersFor(100); got != nil {
		t.Errorf("pc outside all ranges should return nil, got %+v", got)
	}
}

func TestSortMappingOrdersByNativeOffset(t *testing.T) {
	c := &CodeItem{Mapping: []PCMapEntry{
		{NativeOffset: 8, BytecodeOffset: 4},
		{NativeOffset: 0, BytecodeOffset: 0},
		{NativeOffset: 4, BytecodeOffset: 2},
	}}
	c.SortMapping()
	for i := 1; i < len(c.Mapping); i++ {
		if c.Mapping[i-1].NativeOffset > c.Mapping[i].NativeOffset {
			t.Fatalf("mapping not sorted: %+v", c.Mapping)
		}
	}
}
