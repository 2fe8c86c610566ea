package message

import (
	"bytes"
	"net"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/stream"
)

// UpdateMessage advertises and withdraws routes between a BGP speaker and
// its peer. A single message may do both, or either with the other field
// empty; an UPDATE with all three fields empty is a valid keepalive-like
// no-op some implementations send (RFC 4271 section 4.3).
type UpdateMessage struct {
	WithdrawnRoutes []bgp.Prefix
	PathAttributes  []PathAttribute
	NLRI            []bgp.Prefix
}

func readUpdate(body []byte) (*UpdateMessage, error) {
	buf := bytes.NewBuffer(body)
	if buf.Len() < 2 {
		return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedAttributeList}
	}
	withdrawnLen := int(stream.ReadUint16(buf))
	if buf.Len() < withdrawnLen {
		return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedAttributeList}
	}
	withdrawn, err := decodePrefixes(stream.ReadBytes(withdrawnLen, buf))
	if err != nil {
		return nil, err
	}

	if buf.Len() < 2 {
		return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedAttributeList}
	}
	attrLen := int(stream.ReadUint16(buf))
	if buf.Len() < attrLen {
		return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedAttributeList}
	}
	attrs, err := decodeAttributes(stream.ReadBytes(attrLen, buf))
	if err != nil {
		return nil, err
	}

	nlri, err := decodePrefixes(buf.Bytes())
	if err != nil {
		return nil, err
	}

	return &UpdateMessage{
		WithdrawnRoutes: withdrawn,
		PathAttributes:  attrs,
		NLRI:            nlri,
	}, nil
}

func (u *UpdateMessage) bytes() []byte {
	withdrawn := encodePrefixes(u.WithdrawnRoutes)
	var attrBuf bytes.Buffer
	for _, a := range u.PathAttributes {
		attrBuf.Write(encodeAttribute(a))
	}
	nlri := encodePrefixes(u.NLRI)

	buf := new(bytes.Buffer)
	stream.PutUint16(buf, uint16(len(withdrawn)))
	buf.Write(withdrawn)
	stream.PutUint16(buf, uint16(attrBuf.Len()))
	buf.Write(attrBuf.Bytes())
	buf.Write(nlri)
	return frame(TypeUpdate, buf.Bytes())
}

// Encode renders the UPDATE as a complete framed message.
func (u *UpdateMessage) Encode() []byte {
	return u.bytes()
}

// EndOfRIB reports whether this message is the End-of-RIB marker: an
// UPDATE with nothing in any of its three fields, sent once a peer has
// finished its initial table dump.
func (u *UpdateMessage) EndOfRIB() bool {
	return len(u.WithdrawnRoutes) == 0 && len(u.PathAttributes) == 0 && len(u.NLRI) == 0
}

// encodePrefixes renders a list of prefixes in the compact
// <length-in-bits><prefix-bytes> form UPDATE uses for both withdrawn
// routes and NLRI.
func encodePrefixes(prefixes []bgp.Prefix) []byte {
	buf := new(bytes.Buffer)
	for _, p := range prefixes {
		buf.WriteByte(byte(p.Length))
		buf.Write(p.Addr.To4()[:p.ByteLen()])
	}
	return buf.Bytes()
}

func decodePrefixes(data []byte) ([]bgp.Prefix, error) {
	buf := bytes.NewBuffer(data)
	var prefixes []bgp.Prefix
	for buf.Len() > 0 {
		length := int(stream.ReadByte(buf))
		if length > 32 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: InvalidNetworkField}
		}
		byteLen := (length + 7) / 8
		if buf.Len() < byteLen {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: InvalidNetworkField}
		}
		raw := stream.ReadBytes(byteLen, buf)
		addr := make(net.IP, 4)
		copy(addr, raw)
		prefixes = append(prefixes, bgp.Prefix{Addr: addr, Length: length})
	}
	return prefixes, nil
}
