// Package bgp holds the small value types shared by the wire codec, the
// RIB, and the session and agent layers, so none of them need to import
// each other just to talk about an AS number or a prefix.
package bgp

import (
	"fmt"
	"net"
)

// Version is a BGP version implemented by a speaker
type Version uint8

// CurrentVersion is the only version this speaker supports.
const CurrentVersion Version = 4

// ASN is an autonomous system number, held as 4 octets (RFC 6793).
// AS_PATH segments are always encoded with 4-octet AS numbers, whether or
// not the peer advertised message.Capability4OctetAS; there is no 2-octet
// AS_PATH encoding. OPEN carries message.ASTrans in its 2-octet My AS
// field when the number does not fit in 2 octets.
type ASN uint32

// Identifier is a BGP Identifier, the value carried in OPEN and used to
// break connection collisions (RFC 4271 section 6.8). It is conventionally
// an IPv4 address assigned to the speaker.
type Identifier uint32

// NewIdentifier packs an IPv4 address into a BGP Identifier.
func NewIdentifier(ip net.IP) (Identifier, error) {
	v4 := ip.To4()
	if v4 == nil {
		return 0, fmt.Errorf("bgp: %s is not an IPv4 address", ip)
	}
	return Identifier(uint32(v4[0])<<24 | uint32(v4[1])<<16 | uint32(v4[2])<<8 | uint32(v4[3])), nil
}

// IP renders the identifier back as a dotted-quad IPv4 address.
func (id Identifier) IP() net.IP {
	return net.IPv4(byte(id>>24), byte(id>>16), byte(id>>8), byte(id))
}

func (id Identifier) String() string {
	return id.IP().String()
}

// Prefix is an (address, prefix-length) pair. The core is IPv4 only.
type Prefix struct {
	Addr   net.IP // always a 4-byte (To4) address
	Length int    // 0..32
}

// NewPrefix parses a "1.2.3.0/24"-style string into a Prefix, masking any
// host bits so that two equal networks always compare equal regardless of
// how a caller wrote the host portion.
func NewPrefix(s string) (Prefix, error) {
	ip, ipnet, err := net.ParseCIDR(s)
	if err != nil {
		return Prefix{}, err
	}
	if ip.To4() == nil {
		return Prefix{}, fmt.Errorf("bgp: %s is not an IPv4 prefix", s)
	}
	ones, _ := ipnet.Mask.Size()
	return Prefix{Addr: ipnet.IP.To4(), Length: ones}, nil
}

// MustPrefix is NewPrefix but panics on error; used for literals in tests
// and static route tables.
func MustPrefix(s string) Prefix {
	p, err := NewPrefix(s)
	if err != nil {
		panic(err)
	}
	return p
}

func (p Prefix) String() string {
	return fmt.Sprintf("%s/%d", p.Addr.String(), p.Length)
}

// Equal compares network address and length; the address is assumed
// already masked to Length, as NewPrefix guarantees.
func (p Prefix) Equal(o Prefix) bool {
	return p.Length == o.Length && p.Addr.Equal(o.Addr)
}

// ByteLen is the number of address octets carried on the wire for this
// prefix length: ceil(Length/8).
func (p Prefix) ByteLen() int {
	return (p.Length + 7) / 8
}
