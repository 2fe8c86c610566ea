package message

import (
	"bytes"
	"time"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/stream"
)

// MinOpenMessageLength is the smallest legal OPEN body: version, AS,
// hold time, identifier, and a zero-length optional parameters field.
const MinOpenMessageLength = 10

// MaxHoldTime is the largest hold time a speaker may propose or accept:
// the field is a 2-octet count of seconds.
const MaxHoldTime = 65535 * time.Second

// optionalParameterCapability is the Optional Parameter Type reserved for
// capability advertisement (RFC 5492 section 4).
const optionalParameterCapability byte = 2

// Capability codes this speaker understands; any other code is parsed and
// kept but not interpreted.
const (
	CapabilityMultiprotocol byte = 1  // RFC 4760, accepted but ignored: IPv4 unicast only
	Capability4OctetAS      byte = 65 // RFC 6793
)

// ASTrans is the reserved AS number a 4-octet-AS speaker places in the
// 2-octet My Autonomous System field of OPEN when its real AS doesn't fit,
// carrying the real value instead in the Capability4OctetAS capability.
const ASTrans bgp.ASN = 23456

// Capability is one <Code, Length, Value> entry from the capability
// optional parameter (RFC 5492).
type Capability struct {
	Code  byte
	Value []byte
}

// OpenMessage is the first message sent on a new TCP connection (RFC 4271
// section 4.2).
type OpenMessage struct {
	Version       bgp.Version
	AS2           uint16 // the wire-format 2-octet AS field, ASTrans if MyAS doesn't fit
	HoldTime      uint16
	Identifier    bgp.Identifier
	Capabilities  []Capability
}

// NewOpen builds an OPEN message, placing myAS in the 4-octet-AS
// capability and ASTrans in the legacy 2-octet field when it doesn't fit
// in 16 bits.
func NewOpen(myAS bgp.ASN, holdTime uint16, id bgp.Identifier) *OpenMessage {
	as2 := uint16(myAS)
	caps := []Capability{{Code: CapabilityMultiprotocol, Value: []byte{0x00, 0x01, 0x00, 0x01}}}
	fourOctetBuf := new(bytes.Buffer)
	stream.PutUint32(fourOctetBuf, uint32(myAS))
	caps = append(caps, Capability{Code: Capability4OctetAS, Value: fourOctetBuf.Bytes()})
	if uint32(myAS) > 0xffff {
		as2 = uint16(ASTrans)
	}
	return &OpenMessage{
		Version:      bgp.CurrentVersion,
		AS2:          as2,
		HoldTime:     holdTime,
		Identifier:   id,
		Capabilities: caps,
	}
}

// MyAS returns the sender's AS number, preferring the 4-octet-AS
// capability over the legacy 2-octet field when both are present.
func (o *OpenMessage) MyAS() bgp.ASN {
	for _, c := range o.Capabilities {
		if c.Code == Capability4OctetAS && len(c.Value) == 4 {
			return bgp.ASN(stream.ReadUint32(bytes.NewBuffer(c.Value)))
		}
	}
	return bgp.ASN(o.AS2)
}

func readOpen(body []byte) (*OpenMessage, error) {
	if len(body) < MinOpenMessageLength {
		return nil, &NotificationError{Code: OpenMessageError, Subcode: NoErrorSubcode}
	}
	buf := bytes.NewBuffer(body)
	o := &OpenMessage{
		Version:    bgp.Version(stream.ReadByte(buf)),
		AS2:        stream.ReadUint16(buf),
		HoldTime:   stream.ReadUint16(buf),
		Identifier: bgp.Identifier(stream.ReadUint32(buf)),
	}
	optLen := int(stream.ReadByte(buf))
	if buf.Len() < optLen {
		return nil, &NotificationError{Code: OpenMessageError, Subcode: NoErrorSubcode}
	}
	caps, err := readOptionalParameters(stream.ReadBytes(optLen, buf))
	if err != nil {
		return nil, err
	}
	o.Capabilities = caps
	return o, nil
}

// readOptionalParameters decodes every capability carried in the OPEN's
// optional parameters. Parameter types other than the capability
// parameter are skipped: this speaker has none of its own to offer.
func readOptionalParameters(data []byte) ([]Capability, error) {
	buf := bytes.NewBuffer(data)
	var caps []Capability
	for buf.Len() > 0 {
		if buf.Len() < 2 {
			return nil, &NotificationError{Code: OpenMessageError, Subcode: UnsupportedOptionalParameter}
		}
		parmType := stream.ReadByte(buf)
		parmLen := int(stream.ReadByte(buf))
		if buf.Len() < parmLen {
			return nil, &NotificationError{Code: OpenMessageError, Subcode: UnsupportedOptionalParameter}
		}
		value := stream.ReadBytes(parmLen, buf)
		if parmType == optionalParameterCapability {
			cs, err := readCapabilities(value)
			if err != nil {
				return nil, err
			}
			caps = append(caps, cs...)
		}
	}
	return caps, nil
}

func readCapabilities(data []byte) ([]Capability, error) {
	buf := bytes.NewBuffer(data)
	var caps []Capability
	for buf.Len() > 0 {
		if buf.Len() < 2 {
			return nil, &NotificationError{Code: OpenMessageError, Subcode: UnsupportedOptionalParameter}
		}
		code := stream.ReadByte(buf)
		length := int(stream.ReadByte(buf))
		if buf.Len() < length {
			return nil, &NotificationError{Code: OpenMessageError, Subcode: UnsupportedOptionalParameter}
		}
		caps = append(caps, Capability{Code: code, Value: stream.ReadBytes(length, buf)})
	}
	return caps, nil
}

func encodeOptionalParameters(caps []Capability) []byte {
	var capBuf bytes.Buffer
	for _, c := range caps {
		capBuf.WriteByte(c.Code)
		capBuf.WriteByte(byte(len(c.Value)))
		capBuf.Write(c.Value)
	}
	buf := new(bytes.Buffer)
	if capBuf.Len() > 0 {
		buf.WriteByte(optionalParameterCapability)
		buf.WriteByte(byte(capBuf.Len()))
		buf.Write(capBuf.Bytes())
	}
	return buf.Bytes()
}

// Validate checks the fields of a just-received OPEN against the local
// configuration for this peer, returning the NOTIFICATION to send back
// when it is not acceptable (RFC 4271 section 6.2).
func (o *OpenMessage) Validate(expectedRemoteAS bgp.ASN, localHoldTime uint16) *NotificationError {
	if o.Version != bgp.CurrentVersion {
		return &NotificationError{Code: OpenMessageError, Subcode: UnsupportedVersionNumber}
	}
	if expectedRemoteAS != 0 && o.MyAS() != expectedRemoteAS {
		return &NotificationError{Code: OpenMessageError, Subcode: BadPeerAS}
	}
	if o.HoldTime > 0 && o.HoldTime < 3 {
		return &NotificationError{Code: OpenMessageError, Subcode: UnacceptableHoldTime}
	}
	return nil
}

func (o *OpenMessage) bytes() []byte {
	optParms := encodeOptionalParameters(o.Capabilities)

	buf := new(bytes.Buffer)
	buf.WriteByte(byte(o.Version))
	stream.PutUint16(buf, o.AS2)
	stream.PutUint16(buf, o.HoldTime)
	stream.PutUint32(buf, uint32(o.Identifier))
	buf.WriteByte(byte(len(optParms)))
	buf.Write(optParms)
	return frame(TypeOpen, buf.Bytes())
}

// Encode renders the OPEN as a complete framed message.
func (o *OpenMessage) Encode() []byte {
	return o.bytes()
}

// NegotiatedHoldTime picks the smaller of two hold times proposed by each
// side of a session, per RFC 4271 section 4.2.
func NegotiatedHoldTime(local, remote uint16) uint16 {
	if local < remote {
		return local
	}
	return remote
}
