// Package serialize provides plain memory-layout encoding helpers for
// building pipe message payloads. Fixed-size values are encoded as their raw
// little-endian bytes; strings are encoded as a length prefix (including one
// terminator slot), the raw bytes, and a zero terminator. Decoding is the
// exact inverse and fails with ErrOutOfData when a read would pass the end
// of the source buffer.
package serialize

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrOutOfData is returned when decoding requests more bytes than remain in
// the source buffer.
var ErrOutOfData = errors.New("serialize: data of requested size not available")

// Buffer collects encoded bytes. The zero value is an empty buffer ready
// for use.
type Buffer struct {
	data []byte
}

// Put appends raw bytes to the buffer.
//
// Parameters:
//   - p: The bytes to append
func (b *Buffer) Put(p []byte) {
	b.data = append(b.data, p...)
}

// Write implements io.Writer so encoding/binary can target the buffer.
// It never fails.
func (b *Buffer) Write(p []byte) (int, error) {
	b.Put(p)
	return len(p), nil
}

// Bytes returns the encoded contents. The returned slice aliases the
// buffer's storage.
//
// Returns:
//   - The bytes accumulated so far
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Len returns the number of encoded bytes.
//
// Returns:
//   - The current buffer length
func (b *Buffer) Len() int {
	return len(b.data)
}

// Append encodes a fixed-layout value as its raw little-endian bytes.
//
// Parameters:
//   - b: The destination buffer
//   - v: The value to encode; must have a fixed binary size
//
// Returns:
//   - An error if the value has no fixed binary size
func Append[T any](b *Buffer, v T) error {
	if err := binary.Write(b, binary.LittleEndian, v); err != nil {
		return fmt.Errorf("serialize: cannot encode %T: %w", v, err)
	}

	return nil
}

// AppendString encodes a string as a uint64 length prefix counting one
// terminator slot, the raw bytes, and a zero terminator.
//
// Parameters:
//   - b: The destination buffer
//   - s: The string to encode
func AppendString(b *Buffer, s string) {
	// uint64 encoding of a fixed-size value cannot fail.
	_ = Append(b, uint64(len(s)+1))
	b.Put([]byte(s))
	b.Put([]byte{0})
}

// Reader takes encoded bytes back out of a buffer in order.
type Reader struct {
	data []byte
	pos  int
}

// NewReader creates a Reader over the given bytes. The Reader does not copy
// the slice.
//
// Parameters:
//   - data: The encoded bytes to read from
//
// Returns:
//   - A Reader positioned at the start of data
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// Take returns the next n bytes and advances the position. The returned
// slice aliases the source buffer.
//
// Parameters:
//   - n: The number of bytes to take
//
// Returns:
//   - The next n bytes of the source
//   - ErrOutOfData if fewer than n bytes remain
func (r *Reader) Take(n int) ([]byte, error) {
	if n < 0 || n > len(r.data)-r.pos {
		return nil, ErrOutOfData
	}

	taken := r.data[r.pos : r.pos+n]
	r.pos += n
	return taken, nil
}

// Remaining returns the number of bytes left to read.
//
// Returns:
//   - The count of unread bytes
func (r *Reader) Remaining() int {
	return len(r.data) - r.pos
}

// Take decodes a fixed-layout value from its raw little-endian bytes.
//
// Parameters:
//   - r: The source reader
//
// Returns:
//   - The decoded value
//   - ErrOutOfData if the source does not hold enough bytes; another error
//     if the type has no fixed binary size
func Take[T any](r *Reader) (T, error) {
	var v T
	size := binary.Size(v)
	if size < 0 {
		return v, fmt.Errorf("serialize: cannot decode %T: no fixed binary size", v)
	}

	raw, err := r.Take(size)
	if err != nil {
		return v, err
	}

	if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &v); err != nil {
		return v, fmt.Errorf("serialize: cannot decode %T: %w", v, err)
	}

	return v, nil
}

// TakeString decodes a string written by AppendString.
//
// Parameters:
//   - r: The source reader
//
// Returns:
//   - The decoded string
//   - ErrOutOfData if the source does not hold the announced bytes
func TakeString(r *Reader) (string, error) {
	// The prefix counts the terminator, so it is always at least one.
	lenPlusTerminator, err := Take[uint64](r)
	if err != nil {
		return "", err
	}
	if lenPlusTerminator == 0 {
		return "", ErrOutOfData
	}

	raw, err := r.Take(int(lenPlusTerminator))
	if err != nil {
		return "", err
	}

	return string(raw[:len(raw)-1]), nil
}
