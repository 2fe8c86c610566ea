package message

import (
	"io"

	"github.com/transitorykris/bgpd/stream"
)

// Message is any of the four BGP message bodies, encodable back to the
// wire format it was read from.
type Message interface {
	Encode() []byte
}

// ReadMessage reads one complete framed message off r: the 19-byte
// header, then exactly Length-HeaderLength more bytes for the body,
// dispatching to the right decoder by message type. A malformed header
// or body surfaces as a *NotificationError, which the session's FSM
// sends back to the peer before closing the connection.
func ReadMessage(r io.Reader) (Message, error) {
	headerBytes, err := stream.Read(r, HeaderLength)
	if err != nil {
		return nil, err
	}
	h, err := ReadHeader(headerBytes)
	if err != nil {
		return nil, err
	}
	body, err := stream.Read(r, int(h.Length)-HeaderLength)
	if err != nil {
		return nil, err
	}
	switch h.Type {
	case TypeOpen:
		return readOpen(body)
	case TypeUpdate:
		return readUpdate(body)
	case TypeKeepalive:
		return readKeepalive(body)
	case TypeNotification:
		return readNotification(body)
	default:
		return nil, &NotificationError{Code: MessageHeaderError, Subcode: BadMessageType}
	}
}
