package managed

import "corevm/internal/vmerrors"

// StackTraceElement is one frame of a materialized backtrace, the public
// shape spec.md §4 (supplemented from original_source/) asks a thrown
// exception to expose once something actually asks for it — getStackTrace
// is lazy in the original runtime, filling in file/line only on demand
// rather than at throw time, and this core preserves that laziness rather
// than eagerly stringifying every frame.
type StackTraceElement struct {
	DeclaringClass string
	MethodName     string
	FileName       string
	LineNumber     int
}

// stackTraceSource is implemented by whatever owns the raw (unsymbolized)
// call stack captured at throw time; this core only knows how to turn one
// into StackTraceElements on demand, not how to capture it.
type stackTraceSource interface {
	RawFrames() []vmerrors.Frame
}

// BuildStackTrace lazily materializes a full backtrace from a
// ManagedException's already-captured raw frames. Each frame's line number
// comes from resolveLine, called with the frame's captured Line as the
// bytecode PC; with a nil resolveLine the captured Line is kept as is. The
// function itself does not consult any CodeItem PC mapping table.
func BuildStackTrace(exc *vmerrors.ManagedException, resolveLine func(descriptor, method string, bytecodePC uint32) int) []StackTraceElement {
	var out []StackTraceElement
	for _, f := range exc.Frames {
		line := f.Line
		if resolveLine != nil {
			line = resolveLine(f.Descriptor, f.Method, uint32(f.Line))
		}
		out = append(out, StackTraceElement{
			DeclaringClass: f.Descriptor,
			MethodName:     f.Method,
			FileName:       f.Descriptor,
			LineNumber:     line,
		})
	}
	return out
}

// checkedExceptionRoots is the set of descriptors original_source treats
// as the unchecked-exception roots; anything assignable to neither is a
// checked exception by exclusion, per the supplemented classification
// spec.md itself is silent on.
var checkedExceptionRoots = []string{
	"Ljava/lang/RuntimeException;",
	"Ljava/lang/Error;",
}

// IsCheckedException classifies a thrown class as checked or unchecked by
// walking its supertype chain for one of the two unchecked roots
// (RuntimeException, Error); anything that reaches neither before Object
// is checked. This supplements spec.md's exception Kind taxonomy (which
// only names VM-internal exception kinds) with the broader checked/
// unchecked distinction original_source's verifier enforces at compile
// time.
func IsCheckedException(class *Class) bool {
	for k := class; k != nil; k = k.Super() {
		for _, root := range checkedExceptionRoots {
			if k.Descriptor() == root {
				return false
			}
		}
	}
	return true
}
