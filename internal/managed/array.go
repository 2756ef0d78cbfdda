package managed

import (
	"math"
	"math/bits"

	"corevm/internal/vmerrors"
)

// arrayHeaderSize is the conceptual header+length-word size spec.md §4.4
// measures allocation size against (the object header plus the 32-bit
// length field that precedes the component data).
const arrayHeaderSize = HeaderSize + 4

// Array is an Object plus a length; components[i] live at
// header+i*component_size in the real VM's memory model. Grounded on
// vmregister/value.go's ArrayObj{Object, Elements []Value} shape,
// generalized to the typed, offset-addressed layout spec.md §4 requires.
type Array struct {
	Object
	length uint32 // immutable once set by AllocArray
}

// Length returns the array's element count.
func (a *Array) Length() uint32 { return a.length }

// ComponentType returns the array class's component type (spec.md §3).
func (a *Array) ComponentType() *Class { return a.Class().ComponentType() }

func (a *Array) componentSize() uint32 { return a.Class().ComponentElementSize() }

func (a *Array) totalSize() uint32 {
	return arrayHeaderSize + a.length*a.componentSize()
}

// checkOverflow implements spec.md §4.4's overflow predicate exactly:
//
//	(data_size >> (bits(size_t) - 1 - clz(elem_size))) != n || size < data_size
//
// evaluated in 32-bit size_t arithmetic (the width spec.md §8 scenario 1
// exercises), rather than a naive "does n*elemSize overflow" multiply-check,
// since the two diverge for some component sizes.
func checkOverflow(n, elemSize uint32) (size uint32, ok bool) {
	if elemSize == 0 {
		return arrayHeaderSize, true
	}
	dataSize := n * elemSize // 32-bit wraparound is the point of the check
	shift := 31 - bits.LeadingZeros32(elemSize)
	size = arrayHeaderSize + dataSize
	if (dataSize>>uint(shift)) != n || size < dataSize {
		return 0, false
	}
	return size, true
}

// AllocArray implements spec.md §4.4's alloc(klass, n, elem_size): compute
// size, overflow-check it, ask the heap, and install the length.
func AllocArray(rt *Runtime, klass *Class, n uint32) (*Array, error) {
	if !klass.IsArray() {
		return nil, vmerrors.New(vmerrors.IllegalArgumentError, "AllocArray: %s is not an array class", klass.Descriptor())
	}
	elemSize := klass.ComponentElementSize()
	size, ok := checkOverflow(n, elemSize)
	if !ok {
		return nil, vmerrors.OutOfMemory(uint64(n) * uint64(elemSize))
	}
	raw, err := rt.Heap().Alloc(klass, size)
	if err != nil || raw == nil {
		return nil, vmerrors.OutOfMemory(uint64(size))
	}
	arr := &Array{Object: Object{storage: newStorage(n * elemSize)}, length: n}
	arr.classPtr.Store(klass)
	return arr, nil
}

func cloneArray(rt *Runtime, src *Array) (*Object, error) {
	size := src.totalSize()
	raw, err := rt.Heap().Alloc(src.Class(), size)
	if err != nil || raw == nil {
		return nil, vmerrors.OutOfMemory(uint64(size))
	}
	clone := &Array{Object: Object{storage: newStorage(src.length * src.componentSize())}, length: src.length}
	clone.classPtr.Store(src.Class())
	copy(clone.storage.raw, src.storage.raw)
	for i := range src.storage.refs {
		clone.storage.refs[i].Store(src.storage.refs[i].Load())
	}
	return &clone.Object, nil
}

func (a *Array) checkBounds(i uint32) error {
	if i >= a.length {
		return vmerrors.ArrayIndexOutOfBounds(int(i), int(a.length))
	}
	return nil
}

// GetRef/SetRef are the reference-component accessors; SetRef enforces the
// assignability check spec.md §3/§4.4 requires, raising ArrayStoreError on
// violation.
func (a *Array) GetRef(i uint32) (*Object, error) {
	if err := a.checkBounds(i); err != nil {
		return nil, err
	}
	return a.storage.getRef(i * PointerSize), nil
}

func (a *Array) SetRef(i uint32, v *Object) error {
	if err := a.checkBounds(i); err != nil {
		return err
	}
	comp := a.ComponentType()
	if v != nil && !comp.IsAssignableFrom(v.Class()) {
		return vmerrors.ArrayStore(v.Class().Descriptor(), comp.Descriptor())
	}
	a.storage.setRef(i*PointerSize, v)
	return nil
}

// Get32/Set32/Get64/Set64 are the raw fixed-width component accessors;
// typed wrappers below reinterpret the bits per spec.md §4.1's primitive
// taxonomy.
func (a *Array) Get32(i uint32) (uint32, error) {
	if err := a.checkBounds(i); err != nil {
		return 0, err
	}
	return a.storage.get32(i*a.componentSize(), false), nil
}

func (a *Array) Set32(i uint32, v uint32) error {
	if err := a.checkBounds(i); err != nil {
		return err
	}
	a.storage.set32(i*a.componentSize(), v, false)
	return nil
}

func (a *Array) Get64(i uint32) (uint64, error) {
	if err := a.checkBounds(i); err != nil {
		return 0, err
	}
	return a.storage.get64(i*8, false), nil
}

func (a *Array) Set64(i uint32, v uint64) error {
	if err := a.checkBounds(i); err != nil {
		return err
	}
	a.storage.set64(i*8, v, false)
	return nil
}

func (a *Array) GetByte(i uint32) (int8, error) {
	if err := a.checkBounds(i); err != nil {
		return 0, err
	}
	return int8(a.storage.getByte(i)), nil
}

func (a *Array) SetByte(i uint32, v int8) error {
	if err := a.checkBounds(i); err != nil {
		return err
	}
	a.storage.setByte(i, byte(v))
	return nil
}

func (a *Array) GetBool(i uint32) (bool, error) {
	v, err := a.GetByte(i)
	return v != 0, err
}

func (a *Array) SetBool(i uint32, v bool) error {
	if v {
		return a.SetByte(i, 1)
	}
	return a.SetByte(i, 0)
}

func (a *Array) GetChar(i uint32) (uint16, error) {
	if err := a.checkBounds(i); err != nil {
		return 0, err
	}
	return a.storage.get16(i * 2), nil
}

func (a *Array) SetChar(i uint32, v uint16) error {
	if err := a.checkBounds(i); err != nil {
		return err
	}
	a.storage.set16(i*2, v)
	return nil
}

func (a *Array) GetShort(i uint32) (int16, error) {
	c, err := a.GetChar(i)
	return int16(c), err
}

func (a *Array) GetInt(i uint32) (int32, error) {
	v, err := a.Get32(i)
	return int32(v), err
}

func (a *Array) SetInt(i uint32, v int32) error { return a.Set32(i, uint32(v)) }

func (a *Array) GetLong(i uint32) (int64, error) {
	v, err := a.Get64(i)
	return int64(v), err
}

func (a *Array) SetLong(i uint32, v int64) error { return a.Set64(i, uint64(v)) }

func (a *Array) GetFloat(i uint32) (float32, error) {
	v, err := a.Get32(i)
	return math.Float32frombits(v), err
}

func (a *Array) SetFloat(i uint32, v float32) error { return a.Set32(i, math.Float32bits(v)) }

func (a *Array) GetDouble(i uint32) (float64, error) {
	v, err := a.Get64(i)
	return math.Float64frombits(v), err
}

func (a *Array) SetDouble(i uint32, v float64) error { return a.Set64(i, math.Float64bits(v)) }
