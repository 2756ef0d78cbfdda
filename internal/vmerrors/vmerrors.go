// Package vmerrors builds the managed exceptions the object/reflection core
// throws in place of raw Go errors (spec.md §7). A ManagedException is what
// would, in a full runtime, become a real heap-allocated Throwable handed to
// Thread.throw_new_exception; here it is the value that crosses the boundary
// between this core and its caller.
package vmerrors

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Kind enumerates the exception kinds named in spec.md §7's error table.
type Kind string

const (
	OutOfMemoryError            Kind = "OutOfMemoryError"
	ArrayIndexOutOfBoundsError  Kind = "ArrayIndexOutOfBoundsError"
	ArrayStoreError             Kind = "ArrayStoreError"
	StringIndexOutOfBoundsError Kind = "StringIndexOutOfBoundsError"
	IncompatibleClassChangeError Kind = "IncompatibleClassChangeError"
	NoSuchMethodError            Kind = "NoSuchMethodError"
	NoSuchFieldError              Kind = "NoSuchFieldError"
	IllegalArgumentError         Kind = "IllegalArgumentError"
	ClassLoadError               Kind = "ClassLoadError"
	ClassCastException           Kind = "ClassCastException"
)

// Site pins a ManagedException to the descriptor-file location it was raised
// from, analogous to the teacher's SourceLocation.
type Site struct {
	Descriptor string // owning class/method descriptor, if known
	Member     string // field/method name, if known
}

// Frame mirrors the teacher's StackFrame: one entry in a materialized
// backtrace (see internal/managed/stacktrace.go for lazy construction).
type Frame struct {
	Method     string
	Descriptor string
	Line       int
}

// ManagedException is the core's exception value: a Kind, a human message,
// the site it was raised at, and (once materialized) a backtrace.
type ManagedException struct {
	Kind    Kind
	Message string
	Site    Site
	Frames  []Frame
	cause   error
}

// Error implements the error interface, rendering the same multi-section
// layout the teacher's SentraError.Error used (kind+message, site, frames).
func (e *ManagedException) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: %s\n", e.Kind, e.Message)
	if e.Site.Descriptor != "" {
		fmt.Fprintf(&sb, "  at %s", e.Site.Descriptor)
		if e.Site.Member != "" {
			fmt.Fprintf(&sb, ".%s", e.Site.Member)
		}
		sb.WriteString("\n")
	}
	for _, f := range e.Frames {
		fmt.Fprintf(&sb, "  at %s.%s (%s:%d)\n", f.Descriptor, f.Method, f.Descriptor, f.Line)
	}
	if e.cause != nil {
		fmt.Fprintf(&sb, "caused by: %v\n", e.cause)
	}
	return sb.String()
}

// Unwrap exposes the wrapped cause, if any, to errors.Is/errors.As.
func (e *ManagedException) Unwrap() error { return e.cause }

// New constructs a bare ManagedException of the given kind.
func New(kind Kind, format string, args ...interface{}) *ManagedException {
	return &ManagedException{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs a ManagedException that carries an underlying Go error as
// its cause, via github.com/pkg/errors so the original stack survives.
func Wrap(kind Kind, cause error, format string, args ...interface{}) *ManagedException {
	return &ManagedException{
		Kind:    kind,
		Message: fmt.Sprintf(format, args...),
		cause:   errors.WithStack(cause),
	}
}

// AtSite attaches the raising site and returns the receiver for chaining,
// mirroring the teacher's WithSource/WithStack fluent builder.
func (e *ManagedException) AtSite(descriptor, member string) *ManagedException {
	e.Site = Site{Descriptor: descriptor, Member: member}
	return e
}

// WithFrames attaches a materialized backtrace.
func (e *ManagedException) WithFrames(frames []Frame) *ManagedException {
	e.Frames = frames
	return e
}

// OutOfMemory builds the OutOfMemoryError spec.md §8 scenario 1 requires:
// the message must contain "exceeds the VM limit" and render the requested
// size in a human-readable form.
func OutOfMemory(requestedBytes uint64) *ManagedException {
	return New(OutOfMemoryError,
		"Failed to allocate %s (%d bytes); request exceeds the VM limit",
		humanize.Bytes(requestedBytes), requestedBytes)
}

// ArrayIndexOutOfBounds builds the bounds-check exception for an array
// access outside [0, length).
func ArrayIndexOutOfBounds(index, length int) *ManagedException {
	return New(ArrayIndexOutOfBoundsError, "length=%d; index=%d", length, index)
}

// ArrayStore builds the exception for a reference store an array's
// component type rejects.
func ArrayStore(valueDescriptor, componentDescriptor string) *ManagedException {
	return New(ArrayStoreError, "%s cannot be stored in an array of type %s",
		valueDescriptor, componentDescriptor)
}

// IncompatibleClassChange builds the interface-dispatch-miss exception
// spec.md §8 scenario 3 requires, naming both the interface and the class.
func IncompatibleClassChange(class, iface string) *ManagedException {
	return New(IncompatibleClassChangeError,
		"Class %s does not implement interface %s", class, iface)
}

// StringIndexOutOfBounds builds the bounds-check exception for a char_at
// access outside [0, length) on a managed string.
func StringIndexOutOfBounds(index, length int) *ManagedException {
	return New(StringIndexOutOfBoundsError, "String index out of range: %d (length=%d)", index, length)
}

// NoSuchMethod builds the exception a failed method lookup raises.
func NoSuchMethod(class, name, signature string) *ManagedException {
	return New(NoSuchMethodError, "No method %s.%s%s", class, name, signature)
}

// NoSuchField builds the exception a failed field lookup raises.
func NoSuchField(class, name string) *ManagedException {
	return New(NoSuchFieldError, "No field %s.%s", class, name)
}

// ClassCast builds the exception a failed checked reference assignment or
// cast raises.
func ClassCast(from, to string) *ManagedException {
	return New(ClassCastException, "%s cannot be cast to %s", from, to)
}
