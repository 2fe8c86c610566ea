// Package message implements the BGP-4 wire codec: message framing and
// the OPEN, UPDATE, KEEPALIVE, and NOTIFICATION bodies, per RFC 4271
// section 4.
package message

import (
	"bytes"
	"fmt"

	"github.com/transitorykris/bgpd/stream"
)

// HeaderLength is the fixed size of a BGP message header: a 16-byte
// marker, a 2-byte length, and a 1-byte type.
const HeaderLength = 19

// MaxMessageLength is the largest message a speaker may send or accept,
// header included.
const MaxMessageLength = 4096

// MinMessageLength is the smallest legal message: a header with no body
// (a KEEPALIVE).
const MinMessageLength = HeaderLength

// Type identifies a BGP message's body.
type Type byte

// The four message types defined by RFC 4271 section 4.
const (
	TypeOpen         Type = 1
	TypeUpdate       Type = 2
	TypeNotification Type = 3
	TypeKeepalive    Type = 4
)

func (t Type) String() string {
	switch t {
	case TypeOpen:
		return "OPEN"
	case TypeUpdate:
		return "UPDATE"
	case TypeNotification:
		return "NOTIFICATION"
	case TypeKeepalive:
		return "KEEPALIVE"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", byte(t))
	}
}

// marker is the all-ones 16-byte field RFC 4271 requires at the start of
// every message; it predates BGP's authentication scheme and is no longer
// used for anything but framing.
var marker = bytes.Repeat([]byte{0xff}, 16)

// Header is the 19-byte envelope around every BGP message body.
type Header struct {
	Length uint16 // total message length, header included
	Type   Type
}

// ReadHeader reads and validates a 19-byte header from b. A bad marker or
// an out-of-range length is reported as a NotificationError with the
// Message Header Error code, matching RFC 4271 section 6.1.
func ReadHeader(b []byte) (Header, error) {
	if len(b) != HeaderLength {
		return Header{}, fmt.Errorf("message: header must be %d bytes, got %d", HeaderLength, len(b))
	}
	if !bytes.Equal(b[:16], marker) {
		return Header{}, &NotificationError{Code: MessageHeaderError, Subcode: ConnectionNotSynchronized}
	}
	buf := bytes.NewBuffer(b[16:])
	length := stream.ReadUint16(buf)
	typ := Type(stream.ReadByte(buf))
	if length < MinMessageLength || length > MaxMessageLength {
		return Header{}, &NotificationError{Code: MessageHeaderError, Subcode: BadMessageLength}
	}
	switch typ {
	case TypeOpen, TypeUpdate, TypeNotification, TypeKeepalive:
	default:
		return Header{}, &NotificationError{Code: MessageHeaderError, Subcode: BadMessageType}
	}
	return Header{Length: length, Type: typ}, nil
}

// Bytes encodes the header.
func (h Header) Bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, HeaderLength))
	buf.Write(marker)
	stream.PutUint16(buf, h.Length)
	buf.WriteByte(byte(h.Type))
	return buf.Bytes()
}

// frame wraps an encoded body with its header, computing Length itself.
func frame(t Type, body []byte) []byte {
	h := Header{Length: uint16(HeaderLength + len(body)), Type: t}
	return append(h.Bytes(), body...)
}
