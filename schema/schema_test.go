package schema

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenRoundTrip(t *testing.T) {
	m := Open{DiscoveryKey: []byte("dk"), Capability: []byte("cap")}
	out, err := UnmarshalOpen(m.Marshal())
	require.NoError(t, err)
	require.Equal(t, m, out)
}

func TestOpenRoundTripNoCapability(t *testing.T) {
	m := Open{DiscoveryKey: []byte("dk")}
	out, err := UnmarshalOpen(m.Marshal())
	require.NoError(t, err)
	require.Equal(t, m, out)
}

func TestCloseRoundTrip(t *testing.T) {
	m := Close{DiscoveryKey: []byte("dk")}
	out, err := UnmarshalClose(m.Marshal())
	require.NoError(t, err)
	require.Equal(t, m, out)
}

func TestRequestRoundTrip(t *testing.T) {
	m := Request{Index: 42}
	out, err := UnmarshalRequest(m.Marshal())
	require.NoError(t, err)
	require.Equal(t, m, out)
}

func TestDataRoundTrip(t *testing.T) {
	m := Data{
		Index:         7,
		Content:       []byte("hello world"),
		DataSignature: make([]byte, 64),
		TreeSignature: make([]byte, 64),
	}
	out, err := UnmarshalData(m.Marshal())
	require.NoError(t, err)
	require.Equal(t, m, out)
}

func TestChannelMessageHeaderRoundTrip(t *testing.T) {
	encoded := EncodeChannelMessage(3, TypeRequest, Request{Index: 5}.Marshal())
	cm, err := DecodeChannelMessage(encoded)
	require.NoError(t, err)
	require.EqualValues(t, 3, cm.ChannelID)
	require.Equal(t, TypeRequest, cm.Type)

	req, err := UnmarshalRequest(cm.Payload)
	require.NoError(t, err)
	require.EqualValues(t, 5, req.Index)
}

func TestChannelIDZeroReserved(t *testing.T) {
	encoded := EncodeHeader(0, TypeOpen)
	channelID, typ, _, err := DecodeHeader(encoded)
	require.NoError(t, err)
	require.EqualValues(t, 0, channelID)
	require.Equal(t, TypeOpen, typ)
}
