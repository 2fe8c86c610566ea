package message

import "time"

// MinKeepaliveInterval is the fastest rate at which KEEPALIVE messages
// may be sent; RFC 4271 section 4.4 prohibits sending them more than once
// per second.
const MinKeepaliveInterval = 1 * time.Second

// KeepaliveMessage consists of only the message header (RFC 4271 section 4.4).
type KeepaliveMessage struct{}

func readKeepalive(body []byte) (*KeepaliveMessage, error) {
	if len(body) != 0 {
		return nil, &NotificationError{Code: MessageHeaderError, Subcode: BadMessageLength}
	}
	return &KeepaliveMessage{}, nil
}

func (k *KeepaliveMessage) bytes() []byte {
	return frame(TypeKeepalive, nil)
}

// Encode renders the KEEPALIVE as a complete framed message.
func (k *KeepaliveMessage) Encode() []byte {
	return k.bytes()
}
