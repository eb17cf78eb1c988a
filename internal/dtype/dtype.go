// Package dtype converts between HDF5 element bytes and Go slices of
// numeric types.
package dtype

import (
	"errors"
	"fmt"
	"math"
	"reflect"

	"github.com/tensorleaf/go-hdf5/internal/message"
)

var (
	ErrMismatch    = errors.New("dtype: type mismatch")
	ErrUnsupported = errors.New("dtype: unsupported datatype")
)

// For returns the little-endian datatype stored for Go elements of type t.
func For(t reflect.Type) (*message.Datatype, error) {
	switch t.Kind() {
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64, reflect.Int:
		return message.NewInteger(uint32(t.Size()), true), nil
	case reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uint:
		return message.NewInteger(uint32(t.Size()), false), nil
	case reflect.Float32, reflect.Float64:
		return message.NewFloat(uint32(t.Size())), nil
	}
	return nil, fmt.Errorf("%w: Go type %s", ErrUnsupported, t)
}

// SliceOf checks that v is a slice (or pointer to one) and returns it.
func SliceOf(v any) (reflect.Value, error) {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer && !rv.IsNil() {
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Slice {
		return reflect.Value{}, fmt.Errorf("%w: %T is not a slice", ErrMismatch, v)
	}
	return rv, nil
}

// Numeric reports whether elements of dt can be converted by this package.
func Numeric(dt *message.Datatype) bool {
	switch dt.Class {
	case message.ClassFixed, message.ClassBitfield, message.ClassEnum:
		return validSize(dt.Size)
	case message.ClassFloat:
		return dt.Size == 4 || dt.Size == 8
	}
	return false
}

func validSize(n uint32) bool { return n == 1 || n == 2 || n == 4 || n == 8 }

// load reads an unsigned integer of len(b) bytes in the datatype's order.
func load(b []byte, bigEndian bool) uint64 {
	var v uint64
	if bigEndian {
		for _, c := range b {
			v = v<<8 | uint64(c)
		}
		return v
	}
	for i := len(b) - 1; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}

func store(b []byte, v uint64, bigEndian bool) {
	n := len(b)
	for i := range n {
		if bigEndian {
			b[n-1-i] = byte(v)
		} else {
			b[i] = byte(v)
		}
		v >>= 8
	}
}

// Decode converts raw element bytes into the slice dest points to. The slice
// is replaced by one holding every element.
func Decode(dt *message.Datatype, raw []byte, dest any) error {
	pv := reflect.ValueOf(dest)
	if pv.Kind() != reflect.Pointer || pv.IsNil() || pv.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("%w: destination %T is not a pointer to a slice", ErrMismatch, dest)
	}
	size := int(dt.Size)
	if size == 0 || len(raw)%size != 0 {
		return fmt.Errorf("%w: %d bytes for element size %d", ErrMismatch, len(raw), size)
	}
	n := len(raw) / size
	out := reflect.MakeSlice(pv.Elem().Type(), n, n)
	kind := out.Type().Elem().Kind()

	switch dt.Class {
	case message.ClassFixed, message.ClassBitfield, message.ClassEnum, message.ClassReference:
		if !validSize(dt.Size) {
			return fmt.Errorf("%w: %d-byte integer", ErrUnsupported, size)
		}
		if !isInt(kind) && !isUint(kind) && !isFloat(kind) {
			return fmt.Errorf("%w: %s elements into %s", ErrMismatch, dt.Class, kind)
		}
		shift := 64 - 8*size
		for i := range n {
			u := load(raw[i*size:(i+1)*size], dt.BigEndian)
			elem := out.Index(i)
			switch {
			case dt.Signed:
				s := int64(u<<shift) >> shift
				setInt(elem, s)
			case isInt(kind):
				elem.SetInt(int64(u))
			case isUint(kind):
				elem.SetUint(u)
			default:
				elem.SetFloat(float64(u))
			}
		}
	case message.ClassFloat:
		if !isFloat(kind) {
			return fmt.Errorf("%w: float elements into %s", ErrMismatch, kind)
		}
		for i := range n {
			u := load(raw[i*size:(i+1)*size], dt.BigEndian)
			switch size {
			case 4:
				out.Index(i).SetFloat(float64(math.Float32frombits(uint32(u))))
			case 8:
				out.Index(i).SetFloat(math.Float64frombits(u))
			default:
				return fmt.Errorf("%w: %d-byte float", ErrUnsupported, size)
			}
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, dt.Class)
	}
	pv.Elem().Set(out)
	return nil
}

func setInt(v reflect.Value, s int64) {
	switch {
	case isInt(v.Kind()):
		v.SetInt(s)
	case isUint(v.Kind()):
		v.SetUint(uint64(s))
	default:
		v.SetFloat(float64(s))
	}
}

// Encode converts the slice src into element bytes of dt.
func Encode(dt *message.Datatype, src any) ([]byte, error) {
	sv, err := SliceOf(src)
	if err != nil {
		return nil, err
	}
	size := int(dt.Size)
	kind := sv.Type().Elem().Kind()
	out := make([]byte, sv.Len()*size)

	switch dt.Class {
	case message.ClassFixed, message.ClassReference:
		if !validSize(dt.Size) {
			return nil, fmt.Errorf("%w: %d-byte integer", ErrUnsupported, size)
		}
		for i := range sv.Len() {
			var u uint64
			switch e := sv.Index(i); {
			case isInt(kind):
				u = uint64(e.Int())
			case isUint(kind):
				u = e.Uint()
			default:
				return nil, fmt.Errorf("%w: %s elements as %s", ErrMismatch, kind, dt.Class)
			}
			store(out[i*size:(i+1)*size], u, dt.BigEndian)
		}
	case message.ClassFloat:
		if !isFloat(kind) {
			return nil, fmt.Errorf("%w: %s elements as float", ErrMismatch, kind)
		}
		for i := range sv.Len() {
			f := sv.Index(i).Float()
			switch size {
			case 4:
				store(out[i*4:(i+1)*4], uint64(math.Float32bits(float32(f))), dt.BigEndian)
			case 8:
				store(out[i*8:(i+1)*8], math.Float64bits(f), dt.BigEndian)
			default:
				return nil, fmt.Errorf("%w: %d-byte float", ErrUnsupported, size)
			}
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, dt.Class)
	}
	return out, nil
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uint64
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}
