// Package gguf reads the header and key/value metadata of GGUF model files
// without touching tensor data. It backs file probing before a model is
// handed to the runtime and the header-only inspect command.
package gguf

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
)

const magicGGUF = "GGUF"

// maxArrayValues bounds how many array elements are kept in memory. Longer
// arrays (token lists, merges) only record their length.
const maxArrayValues = 1024

// ErrNotGGUF is returned for files that do not start with the GGUF magic.
var ErrNotGGUF = errors.New("not a GGUF file")

type ValueType uint32

const (
	TypeUint8   ValueType = 0
	TypeInt8    ValueType = 1
	TypeUint16  ValueType = 2
	TypeInt16   ValueType = 3
	TypeUint32  ValueType = 4
	TypeInt32   ValueType = 5
	TypeFloat32 ValueType = 6
	TypeBool    ValueType = 7
	TypeString  ValueType = 8
	TypeArray   ValueType = 9
	TypeUint64  ValueType = 10
	TypeInt64   ValueType = 11
	TypeFloat64 ValueType = 12
)

var valueTypeNames = [...]string{
	TypeUint8: "u8", TypeInt8: "i8", TypeUint16: "u16", TypeInt16: "i16",
	TypeUint32: "u32", TypeInt32: "i32", TypeFloat32: "f32", TypeBool: "bool",
	TypeString: "string", TypeArray: "array", TypeUint64: "u64", TypeInt64: "i64",
	TypeFloat64: "f64",
}

func (t ValueType) String() string {
	if int(t) < len(valueTypeNames) {
		return valueTypeNames[t]
	}
	return fmt.Sprintf("type(%d)", uint32(t))
}

// ArrayValue is a decoded array. Values is nil when Len exceeds the
// in-memory limit.
type ArrayValue struct {
	ElemType ValueType
	Len      uint64
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

type Header struct {
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

// Metadata is the header and key/value section of a GGUF file.
type Metadata struct {
	Path   string
	Header Header
	KV     KV
}

// Probe checks that path is a readable GGUF file and returns its header.
func Probe(path string) (Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Header{}, err
	}
	return readHeader(newDecoder(bufio.NewReader(f), st.Size()))
}

// ReadFile reads the header and metadata of the GGUF file at path.
func ReadFile(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	md, err := Read(bufio.NewReaderSize(f, 1<<16), st.Size())
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	md.Path = path
	return md, nil
}

// Read decodes the header and metadata from r. size bounds string and
// array lengths; pass 0 when unknown.
func Read(r io.Reader, size int64) (*Metadata, error) {
	d := newDecoder(r, size)
	hdr, err := readHeader(d)
	if err != nil {
		return nil, err
	}

	md := &Metadata{Header: hdr, KV: make(KV, min(hdr.KVCount, 4096))}
	for i := uint64(0); i < hdr.KVCount; i++ {
		key, err := d.str()
		if err != nil {
			return nil, fmt.Errorf("key #%d: %w", i, err)
		}
		vt, err := scalar[ValueType](d)
		if err != nil {
			return nil, fmt.Errorf("%s: value type: %w", key, err)
		}
		v, err := d.value(vt)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", key, err)
		}
		md.KV[key] = Value{Type: vt, Value: v}
	}
	return md, nil
}

func readHeader(d *decoder) (Header, error) {
	magic, err := d.take(len(magicGGUF))
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return Header{}, ErrNotGGUF
	case err != nil:
		return Header{}, err
	case string(magic) != magicGGUF:
		return Header{}, fmt.Errorf("%w: magic %q", ErrNotGGUF, magic)
	}

	var hdr Header
	if hdr.Version, err = scalar[uint32](d); err != nil {
		return Header{}, err
	}
	if hdr.Version < 2 {
		return Header{}, fmt.Errorf("GGUF version %d predates v2", hdr.Version)
	}
	if hdr.TensorCount, err = scalar[uint64](d); err != nil {
		return Header{}, err
	}
	hdr.KVCount, err = scalar[uint64](d)
	return hdr, err
}

// value decodes one value of type vt. Signed and float types are read as
// their unsigned bit patterns and reinterpreted.
func (d *decoder) value(vt ValueType) (any, error) {
	switch vt {
	case TypeUint8, TypeInt8, TypeBool:
		b, err := scalar[uint8](d)
		if vt == TypeInt8 {
			return int8(b), err
		}
		if vt == TypeBool {
			return b != 0, err
		}
		return b, err
	case TypeUint16, TypeInt16:
		u, err := scalar[uint16](d)
		if vt == TypeInt16 {
			return int16(u), err
		}
		return u, err
	case TypeUint32, TypeInt32, TypeFloat32:
		u, err := scalar[uint32](d)
		switch vt {
		case TypeInt32:
			return int32(u), err
		case TypeFloat32:
			return math.Float32frombits(u), err
		}
		return u, err
	case TypeUint64, TypeInt64, TypeFloat64:
		u, err := scalar[uint64](d)
		switch vt {
		case TypeInt64:
			return int64(u), err
		case TypeFloat64:
			return math.Float64frombits(u), err
		}
		return u, err
	case TypeString:
		return d.str()
	case TypeArray:
		return d.array()
	}
	return nil, fmt.Errorf("unknown value type %d", uint32(vt))
}

func (d *decoder) array() (ArrayValue, error) {
	et, err := scalar[ValueType](d)
	if err != nil {
		return ArrayValue{}, err
	}
	n, err := scalar[uint64](d)
	if err != nil {
		return ArrayValue{}, err
	}
	arr := ArrayValue{ElemType: et, Len: n}
	if n <= maxArrayValues {
		arr.Values = make([]any, 0, n)
	}
	for i := uint64(0); i < n; i++ {
		v, err := d.value(et)
		if err != nil {
			return ArrayValue{}, fmt.Errorf("element %d of %d: %w", i, n, err)
		}
		if arr.Values != nil {
			arr.Values = append(arr.Values, v)
		}
	}
	return arr, nil
}
