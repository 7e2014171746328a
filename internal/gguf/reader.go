package gguf

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"
)

// decoder consumes the little-endian GGUF encoding. limit is the file size
// when known and bounds every length prefix.
type decoder struct {
	src     io.Reader
	pos     int64
	limit   int64
	scratch [8]byte
}

func newDecoder(src io.Reader, limit int64) *decoder {
	return &decoder{src: src, limit: limit}
}

func (d *decoder) remaining() int64 {
	if d.limit <= 0 {
		return math.MaxInt64
	}
	return d.limit - d.pos
}

func (d *decoder) take(n int) ([]byte, error) {
	if int64(n) > d.remaining() {
		return nil, io.ErrUnexpectedEOF
	}
	p := d.scratch[:]
	if n > len(p) {
		p = make([]byte, n)
	}
	p = p[:n]
	if _, err := io.ReadFull(d.src, p); err != nil {
		return nil, err
	}
	d.pos += int64(n)
	return p, nil
}

type unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// scalar reads one fixed-width unsigned integer.
func scalar[T unsigned](d *decoder) (T, error) {
	var v T
	b, err := d.take(binary.Size(v))
	if err != nil {
		return 0, err
	}
	switch len(b) {
	case 1:
		v = T(b[0])
	case 2:
		v = T(binary.LittleEndian.Uint16(b))
	case 4:
		v = T(binary.LittleEndian.Uint32(b))
	default:
		v = T(binary.LittleEndian.Uint64(b))
	}
	return v, nil
}

func (d *decoder) str() (string, error) {
	n, err := scalar[uint64](d)
	if err != nil {
		return "", err
	}
	if n > uint64(d.remaining()) {
		return "", fmt.Errorf("string of %d bytes at offset %d runs past end of file", n, d.pos)
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
