// Package stream provides small helpers for reading fixed-size fields out
// of BGP message bodies, on both live connections and decoded buffers.
package stream

import (
	"bytes"
	"encoding/binary"
	"io"
)

// Read consumes exactly count bytes from r, blocking until they arrive or
// the reader returns an error. A short read from a TCP socket is normal,
// not an error, so this uses io.ReadFull rather than looping on Read
// directly; callers get io.ErrUnexpectedEOF or the underlying error back
// instead of spinning.
func Read(r io.Reader, count int) ([]byte, error) {
	if count == 0 {
		return nil, nil
	}
	b := make([]byte, count)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadBytes reads n bytes from the byte buffer and returns them.
func ReadBytes(n int, buf *bytes.Buffer) []byte {
	bs := make([]byte, n)
	buf.Read(bs)
	return bs
}

// ReadByte reads a single byte off the given byte buffer and returns it.
func ReadByte(buf *bytes.Buffer) byte {
	b, _ := buf.ReadByte()
	return b
}

// ReadUint16 reads 2 bytes off the buffer and returns it as a uint16.
func ReadUint16(buf *bytes.Buffer) uint16 {
	return binary.BigEndian.Uint16(ReadBytes(2, buf))
}

// ReadUint32 reads 4 bytes off the buffer and returns it as a uint32.
func ReadUint32(buf *bytes.Buffer) uint32 {
	return binary.BigEndian.Uint32(ReadBytes(4, buf))
}

// PutUint16 appends v to buf in network byte order.
func PutUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

// PutUint32 appends v to buf in network byte order.
func PutUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}
