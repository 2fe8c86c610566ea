package network

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFindIdentifier(t *testing.T) {
	id, err := FindIdentifier()
	if err != nil {
		// Sandboxed/offline test hosts may have no global-unicast
		// interface at all; that's a legitimate result, not a bug.
		return
	}
	assert.NotEqual(t, "0.0.0.0", id.IP().String())
}

func TestSplitHostPort(t *testing.T) {
	host, port := SplitHostPort(&net.TCPAddr{IP: net.ParseIP("10.0.0.1"), Port: 179})
	assert.Equal(t, "10.0.0.1", host)
	assert.EqualValues(t, 179, port)
}

func TestSplitHostPortNoPort(t *testing.T) {
	host, port := SplitHostPort(fakeAddr("10.0.0.1"))
	assert.Equal(t, "10.0.0.1", host)
	assert.EqualValues(t, 0, port)
}

type fakeAddr string

func (f fakeAddr) Network() string { return "fake" }
func (f fakeAddr) String() string  { return string(f) }
