package message

import (
	"bytes"

	"github.com/transitorykris/bgpd/stream"
)

// MinNotificationLength is the smallest legal NOTIFICATION body: a code
// and subcode with no data.
const MinNotificationLength = 2

// NotificationMessage is sent when an error condition is detected and
// closes the connection immediately after being sent (RFC 4271 section 4.5).
type NotificationMessage struct {
	Code    byte
	Subcode byte
	Data    []byte
}

// NewNotification builds a NOTIFICATION message from a NotificationError.
func NewNotification(e *NotificationError) *NotificationMessage {
	return &NotificationMessage{Code: e.Code, Subcode: e.Subcode, Data: e.Data}
}

// readNotification decodes a NOTIFICATION body.
func readNotification(body []byte) (*NotificationMessage, error) {
	if len(body) < MinNotificationLength {
		return nil, &NotificationError{Code: MessageHeaderError, Subcode: BadMessageLength}
	}
	buf := bytes.NewBuffer(body)
	n := &NotificationMessage{
		Code:    stream.ReadByte(buf),
		Subcode: stream.ReadByte(buf),
	}
	if buf.Len() > 0 {
		n.Data = stream.ReadBytes(buf.Len(), buf)
	}
	return n, nil
}

// Err converts the message back into the Go error type the rest of the
// codebase raises NOTIFICATIONs with.
func (n *NotificationMessage) Err() *NotificationError {
	return &NotificationError{Code: n.Code, Subcode: n.Subcode, Data: n.Data}
}

func (n *NotificationMessage) bytes() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, MinNotificationLength+len(n.Data)))
	buf.WriteByte(n.Code)
	buf.WriteByte(n.Subcode)
	buf.Write(n.Data)
	return frame(TypeNotification, buf.Bytes())
}

// Encode renders the NOTIFICATION as a complete framed message.
func (n *NotificationMessage) Encode() []byte {
	return n.bytes()
}
