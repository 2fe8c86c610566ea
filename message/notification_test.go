package message

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationRoundTrip(t *testing.T) {
	n := NewNotification(&NotificationError{Code: HoldTimerExpired, Subcode: NoErrorSubcode})
	msg, err := ReadMessage(bytes.NewReader(n.Encode()))
	require.NoError(t, err)

	got, ok := msg.(*NotificationMessage)
	require.True(t, ok)
	assert.Equal(t, HoldTimerExpired, got.Code)
	assert.Equal(t, NoErrorSubcode, got.Subcode)
}

func TestNotificationCarriesData(t *testing.T) {
	n := NewNotification(&NotificationError{Code: OpenMessageError, Subcode: UnsupportedVersionNumber, Data: []byte{0x00, 0x04}})
	msg, err := ReadMessage(bytes.NewReader(n.Encode()))
	require.NoError(t, err)
	got := msg.(*NotificationMessage)
	assert.Equal(t, []byte{0x00, 0x04}, got.Data)
}

func TestNotificationErrorMessage(t *testing.T) {
	e := &NotificationError{Code: Cease, Subcode: NoErrorSubcode}
	assert.Contains(t, e.Error(), "Cease")
}
