package message

import (
	"bytes"
	"fmt"
	"net"

	"github.com/transitorykris/bgpd/bgp"
	"github.com/transitorykris/bgpd/stream"
)

// Path attribute flag bits (RFC 4271 section 4.3).
const (
	flagOptional       byte = 0x80
	flagTransitive     byte = 0x40
	flagPartial        byte = 0x20
	flagExtendedLength byte = 0x10
)

// Path attribute type codes this speaker understands. Anything else
// decodes into an UnknownAttribute and is carried opaquely.
const (
	AttrOrigin          byte = 1
	AttrASPath          byte = 2
	AttrNextHop         byte = 3
	AttrMultiExitDisc   byte = 4
	AttrLocalPref       byte = 5
	AttrAtomicAggregate byte = 6
	AttrAggregator      byte = 7
)

// ORIGIN values (RFC 4271 section 5.1.1).
const (
	OriginIGP        byte = 0
	OriginEGP        byte = 1
	OriginIncomplete byte = 2
)

// AS_PATH segment types (RFC 4271 section 4.3).
const (
	ASPathSet      byte = 1
	ASPathSequence byte = 2
)

// PathAttribute is the sum type for the five attributes this speaker
// builds and inspects directly. Attributes it doesn't recognize still
// round-trip, as an UnknownAttribute, so a speaker never silently drops
// data it was asked to relay.
type PathAttribute interface {
	attrType() byte
	flags() byte
	valueBytes() []byte
}

func encodeAttribute(a PathAttribute) []byte {
	value := a.valueBytes()
	buf := new(bytes.Buffer)
	f := a.flags()
	if len(value) > 255 {
		f |= flagExtendedLength
	}
	buf.WriteByte(f)
	buf.WriteByte(a.attrType())
	if f&flagExtendedLength != 0 {
		stream.PutUint16(buf, uint16(len(value)))
	} else {
		buf.WriteByte(byte(len(value)))
	}
	buf.Write(value)
	return buf.Bytes()
}

// decodeAttributes reads zero or more path attributes out of body, which
// must contain exactly the Path Attributes portion of an UPDATE message.
func decodeAttributes(body []byte) ([]PathAttribute, error) {
	buf := bytes.NewBuffer(body)
	var attrs []PathAttribute
	for buf.Len() > 0 {
		if buf.Len() < 3 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedAttributeList}
		}
		f := stream.ReadByte(buf)
		typ := stream.ReadByte(buf)
		var length int
		if f&flagExtendedLength != 0 {
			if buf.Len() < 2 {
				return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedAttributeList}
			}
			length = int(stream.ReadUint16(buf))
		} else {
			length = int(stream.ReadByte(buf))
		}
		if buf.Len() < length {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: AttributeLengthError}
		}
		value := stream.ReadBytes(length, buf)
		attr, err := decodeAttribute(f, typ, value)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

func decodeAttribute(flags, typ byte, value []byte) (PathAttribute, error) {
	switch typ {
	case AttrOrigin:
		if len(value) != 1 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: InvalidOriginAttribute}
		}
		return OriginAttribute{Value: value[0]}, nil
	case AttrASPath:
		segs, err := decodeASPath(value)
		if err != nil {
			return nil, err
		}
		return ASPathAttribute{Segments: segs}, nil
	case AttrNextHop:
		if len(value) != 4 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: InvalidNextHopAttribute}
		}
		return NextHopAttribute{IP: net.IP(value).To4()}, nil
	case AttrMultiExitDisc:
		if len(value) != 4 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: AttributeLengthError}
		}
		return MEDAttribute{Value: stream.ReadUint32(bytes.NewBuffer(value))}, nil
	case AttrLocalPref:
		if len(value) != 4 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: AttributeLengthError}
		}
		return LocalPrefAttribute{Value: stream.ReadUint32(bytes.NewBuffer(value))}, nil
	default:
		return UnknownAttribute{TypeCode: typ, RawFlags: flags, Value: value}, nil
	}
}

// OriginAttribute is the well-known mandatory ORIGIN attribute.
type OriginAttribute struct {
	Value byte
}

func (OriginAttribute) attrType() byte    { return AttrOrigin }
func (OriginAttribute) flags() byte       { return flagTransitive }
func (a OriginAttribute) valueBytes() []byte { return []byte{a.Value} }

func (a OriginAttribute) String() string {
	switch a.Value {
	case OriginIGP:
		return "IGP"
	case OriginEGP:
		return "EGP"
	case OriginIncomplete:
		return "INCOMPLETE"
	default:
		return fmt.Sprintf("ORIGIN(%d)", a.Value)
	}
}

// ASPathSegment is one SET or SEQUENCE run within an AS_PATH attribute.
type ASPathSegment struct {
	Type  byte
	ASNs  []bgp.ASN
}

// ASPathAttribute is the well-known mandatory AS_PATH attribute.
type ASPathAttribute struct {
	Segments []ASPathSegment
}

func (ASPathAttribute) attrType() byte { return AttrASPath }
func (ASPathAttribute) flags() byte    { return flagTransitive }

func (a ASPathAttribute) valueBytes() []byte {
	buf := new(bytes.Buffer)
	for _, seg := range a.Segments {
		buf.WriteByte(seg.Type)
		buf.WriteByte(byte(len(seg.ASNs)))
		for _, asn := range seg.ASNs {
			stream.PutUint32(buf, uint32(asn))
		}
	}
	return buf.Bytes()
}

func decodeASPath(value []byte) ([]ASPathSegment, error) {
	buf := bytes.NewBuffer(value)
	var segs []ASPathSegment
	for buf.Len() > 0 {
		if buf.Len() < 2 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedASPath}
		}
		typ := stream.ReadByte(buf)
		count := int(stream.ReadByte(buf))
		if buf.Len() < count*4 {
			return nil, &NotificationError{Code: UpdateMessageError, Subcode: MalformedASPath}
		}
		seg := ASPathSegment{Type: typ, ASNs: make([]bgp.ASN, count)}
		for i := 0; i < count; i++ {
			seg.ASNs[i] = bgp.ASN(stream.ReadUint32(buf))
		}
		segs = append(segs, seg)
	}
	return segs, nil
}

// Length returns the total number of AS numbers across all segments, the
// measure the decision process uses for AS_PATH length comparisons. A SET
// counts once regardless of its membership size (RFC 4271 section 9.1.2.2 b).
func (a ASPathAttribute) Length() int {
	n := 0
	for _, seg := range a.Segments {
		if seg.Type == ASPathSet {
			n++
			continue
		}
		n += len(seg.ASNs)
	}
	return n
}

// Prepend returns a copy of the attribute with asn inserted at the front
// of the leading SEQUENCE segment, creating one if the path is empty or
// begins with a SET (used when advertising to an eBGP peer).
func (a ASPathAttribute) Prepend(asn bgp.ASN) ASPathAttribute {
	if len(a.Segments) == 0 || a.Segments[0].Type != ASPathSequence {
		segs := make([]ASPathSegment, 0, len(a.Segments)+1)
		segs = append(segs, ASPathSegment{Type: ASPathSequence, ASNs: []bgp.ASN{asn}})
		segs = append(segs, a.Segments...)
		return ASPathAttribute{Segments: segs}
	}
	segs := make([]ASPathSegment, len(a.Segments))
	copy(segs, a.Segments)
	asns := make([]bgp.ASN, 0, len(segs[0].ASNs)+1)
	asns = append(asns, asn)
	asns = append(asns, segs[0].ASNs...)
	segs[0] = ASPathSegment{Type: ASPathSequence, ASNs: asns}
	return ASPathAttribute{Segments: segs}
}

// NextHopAttribute is the well-known mandatory NEXT_HOP attribute.
type NextHopAttribute struct {
	IP net.IP
}

func (NextHopAttribute) attrType() byte       { return AttrNextHop }
func (NextHopAttribute) flags() byte          { return flagTransitive }
func (a NextHopAttribute) valueBytes() []byte { return a.IP.To4() }

// MEDAttribute is the optional non-transitive MULTI_EXIT_DISC attribute.
type MEDAttribute struct {
	Value uint32
}

func (MEDAttribute) attrType() byte { return AttrMultiExitDisc }
func (MEDAttribute) flags() byte    { return flagOptional }
func (a MEDAttribute) valueBytes() []byte {
	buf := new(bytes.Buffer)
	stream.PutUint32(buf, a.Value)
	return buf.Bytes()
}

// LocalPrefAttribute is the well-known discretionary LOCAL_PREF attribute.
// It is only valid between iBGP peers: the advertisement policy strips it
// before sending to an eBGP peer. No attribute is added on ingest from an
// eBGP peer; a route without one reads as DefaultLocalPref.
type LocalPrefAttribute struct {
	Value uint32
}

func (LocalPrefAttribute) attrType() byte { return AttrLocalPref }
func (LocalPrefAttribute) flags() byte    { return flagTransitive }
func (a LocalPrefAttribute) valueBytes() []byte {
	buf := new(bytes.Buffer)
	stream.PutUint32(buf, a.Value)
	return buf.Bytes()
}

// DefaultLocalPref is the value assigned to a route with no LOCAL_PREF on
// ingest from an eBGP peer.
const DefaultLocalPref uint32 = 100

// UnknownAttribute carries any attribute type this speaker does not
// interpret. Optional transitive attributes it doesn't recognize are
// re-advertised with the partial bit set, per RFC 4271 section 5.
type UnknownAttribute struct {
	TypeCode byte
	RawFlags byte
	Value    []byte
}

func (a UnknownAttribute) attrType() byte { return a.TypeCode }
func (a UnknownAttribute) flags() byte {
	if a.RawFlags&flagTransitive != 0 {
		return a.RawFlags | flagPartial
	}
	return a.RawFlags
}
func (a UnknownAttribute) valueBytes() []byte { return a.Value }

// findOrigin, findASPath, findNextHop, and findLocalPref pick the one
// instance of each mandatory/discretionary attribute out of a decoded
// attribute set; UPDATE bodies carry at most one of each by construction.

func findOrigin(attrs []PathAttribute) (OriginAttribute, bool) {
	for _, a := range attrs {
		if o, ok := a.(OriginAttribute); ok {
			return o, true
		}
	}
	return OriginAttribute{}, false
}

func findASPath(attrs []PathAttribute) (ASPathAttribute, bool) {
	for _, a := range attrs {
		if p, ok := a.(ASPathAttribute); ok {
			return p, true
		}
	}
	return ASPathAttribute{}, false
}

func findNextHop(attrs []PathAttribute) (NextHopAttribute, bool) {
	for _, a := range attrs {
		if n, ok := a.(NextHopAttribute); ok {
			return n, true
		}
	}
	return NextHopAttribute{}, false
}

func findMED(attrs []PathAttribute) (MEDAttribute, bool) {
	for _, a := range attrs {
		if m, ok := a.(MEDAttribute); ok {
			return m, true
		}
	}
	return MEDAttribute{}, false
}

func findLocalPref(attrs []PathAttribute) (LocalPrefAttribute, bool) {
	for _, a := range attrs {
		if l, ok := a.(LocalPrefAttribute); ok {
			return l, true
		}
	}
	return LocalPrefAttribute{}, false
}

// FindOrigin, FindASPath, FindNextHop, FindMED, and FindLocalPref expose
// the attribute-set lookups other packages (rib, session) need without
// reaching into the sum-type's unexported methods.
func FindOrigin(attrs []PathAttribute) (OriginAttribute, bool)       { return findOrigin(attrs) }
func FindASPath(attrs []PathAttribute) (ASPathAttribute, bool)       { return findASPath(attrs) }
func FindNextHop(attrs []PathAttribute) (NextHopAttribute, bool)     { return findNextHop(attrs) }
func FindMED(attrs []PathAttribute) (MEDAttribute, bool)             { return findMED(attrs) }
func FindLocalPref(attrs []PathAttribute) (LocalPrefAttribute, bool) { return findLocalPref(attrs) }
