// Package bytecode holds the shape of the data the (out-of-scope) bytecode
// decoder hands the object/reflection core for one method body: a flat
// instruction buffer plus two parallel tables describing PC correspondence
// and exception handler ranges. This package does not decode or execute
// instructions — see spec.md §1, the decoder and executor are external
// collaborators.
//
// The parallel-table idiom (one slice walked in lockstep with the
// instruction buffer, each entry describing "what's true at this offset")
// is the same one the teacher used for per-instruction debug info; only the
// payload changed.
package bytecode

import "sort"

// NoIndex is the sentinel spec.md uses for "no bytecode offset" / "handler
// not found" (the mapping-table NO_INDEX constant and NO_INDEX_16 for
// catch-all handlers share this value's role at two different widths).
const NoIndex = -1

// NoIndex16 is the 16-bit-width sentinel used in catch handler entries to
// mean "catch-all" (spec.md §4.7 catch-handler search).
const NoIndex16 = 0xFFFF

// PCMapEntry is one row of a method's native-PC ↔ bytecode-offset mapping
// table (spec.md §4.7).
type PCMapEntry struct {
	NativeOffset    uint32
	BytecodeOffset  uint32
}

// CatchHandler is one entry in a code item's exception handler list for a
// given try range (spec.md §4.7 catch-handler search).
type CatchHandler struct {
	TypeIdx     uint32 // index into DescriptorFile.resolved_types; NoIndex16 sentinel == catch-all
	HandlerAddr uint32 // bytecode offset of the handler's first instruction
}

// TryItem associates one [StartAddr, StartAddr+InsnCount) bytecode range with
// the handlers that may catch an exception raised inside it.
type TryItem struct {
	StartAddr uint32
	InsnCount uint32
	Handlers  []CatchHandler
}

// CodeItem is one method body as supplied by the decoder: raw instructions,
// the PC mapping table, and the try/handler ranges.
type CodeItem struct {
	Insns    []byte
	Mapping  []PCMapEntry // sorted by NativeOffset ascending
	Tries    []TryItem
}

// ToBytecodePC implements spec.md §4.7's to_bytecode_pc: return the
// bytecode offset of the largest mapped NativeOffset <= sought, or the exact
// match if present. Returns NoIndex if the mapping table is empty (the
// caller is expected to know, per spec, that this means the method is
// native or a callee-save stub).
func (c *CodeItem) ToBytecodePC(codeBase, nativePC uint32) int {
	if len(c.Mapping) == 0 {
		return NoIndex
	}
	sought := nativePC - codeBase
	best := -1
	bestOff := uint32(0)
	for _, e := range c.Mapping {
		if e.NativeOffset == sought {
			return int(e.BytecodeOffset)
		}
		if e.NativeOffset <= sought && (best == -1 || e.NativeOffset > bestOff) {
			best = int(e.BytecodeOffset)
			bestOff = e.NativeOffset
		}
	}
	return best
}

// ToNativePC implements spec.md §4.7's to_native_pc: exact-match linear
// lookup of bytecodePC, returning codeBase+NativeOffset. Missing mapping
// table requires bytecodePC == 0 (the caller must enforce that precondition;
// violating it is the "lookup failure is fatal" case spec.md §4.7/§7 names).
func (c *CodeItem) ToNativePC(codeBase uint32, bytecodePC uint32) (uint32, bool) {
	if len(c.Mapping) == 0 {
		if bytecodePC == 0 {
			return codeBase, true
		}
		return 0, false
	}
	for _, e := range c.Mapping {
		if e.BytecodeOffset == bytecodePC {
			return codeBase + e.NativeOffset, true
		}
	}
	return 0, false
}

// SortMapping orders Mapping by NativeOffset, for a decoder that didn't
// already sort it. ToBytecodePC and ToNativePC scan every entry and do not
// depend on this order.
func (c *CodeItem) SortMapping() {
	sort.Slice(c.Mapping, func(i, j int) bool { return c.Mapping[i].NativeOffset < c.Mapping[j].NativeOffset })
}

// HandlersFor returns the try item covering bytecodePC, or nil if the PC is
// not covered by any try range.
func (c *CodeItem) HandlersFor(bytecodePC uint32) *TryItem {
	for i := range c.Tries {
		t := &c.Tries[i]
		if bytecodePC >= t.StartAddr && bytecodePC < t.StartAddr+t.InsnCount {
			return t
		}
	}
	return nil
}
