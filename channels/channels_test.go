package channels

import (
	"testing"

	"github.com/datacore/datacore/keys"
	"github.com/stretchr/testify/require"
)

func TestAttachLocalThenRemoteOpensChannel(t *testing.T) {
	public, _, err := keys.Generate()
	require.NoError(t, err)
	dk := keys.DiscoveryKey(public)

	m := New()
	local := m.AttachLocal(public)
	require.False(t, local.IsOpen())
	require.EqualValues(t, 1, local.Local.LocalID)

	remote := m.AttachRemote(dk, 7, []byte("capability"))
	require.True(t, remote.IsOpen())
	require.Same(t, local, remote)
}

func TestLocalIDsStartAtOneAndReuseFreedSlots(t *testing.T) {
	m := New()
	p1, _, _ := keys.Generate()
	p2, _, _ := keys.Generate()
	p3, _, _ := keys.Generate()

	h1 := m.AttachLocal(p1)
	h2 := m.AttachLocal(p2)
	require.EqualValues(t, 1, h1.Local.LocalID)
	require.EqualValues(t, 2, h2.Local.LocalID)

	m.Remove(h1.DiscoveryKey)
	h3 := m.AttachLocal(p3)
	require.EqualValues(t, 1, h3.Local.LocalID)
}

func TestGetLocalAndGetRemote(t *testing.T) {
	public, _, err := keys.Generate()
	require.NoError(t, err)
	dk := keys.DiscoveryKey(public)

	m := New()
	h := m.AttachLocal(public)
	m.AttachRemote(dk, 3, nil)

	byLocal, ok := m.GetLocal(h.Local.LocalID)
	require.True(t, ok)
	require.Same(t, h, byLocal)

	byRemote, ok := m.GetRemote(3)
	require.True(t, ok)
	require.Same(t, h, byRemote)

	_, ok = m.GetLocal(99)
	require.False(t, ok)
	_, ok = m.GetRemote(99)
	require.False(t, ok)
}

func TestPrepareToVerifyFailsUntilBothSidesAttached(t *testing.T) {
	public, _, err := keys.Generate()
	require.NoError(t, err)

	m := New()
	h := m.AttachLocal(public)
	_, err = h.PrepareToVerify()
	require.Error(t, err)

	m.AttachRemote(h.DiscoveryKey, 1, []byte("cap"))
	gotCap, err := h.PrepareToVerify()
	require.NoError(t, err)
	require.Equal(t, []byte("cap"), gotCap)
}

func TestRemoveFreesSlotsAndDeletesChannel(t *testing.T) {
	public, _, err := keys.Generate()
	require.NoError(t, err)
	dk := keys.DiscoveryKey(public)

	m := New()
	m.AttachLocal(public)
	m.AttachRemote(dk, 4, nil)
	require.Equal(t, 1, m.Len())

	m.Remove(dk)
	require.Equal(t, 0, m.Len())
	_, ok := m.Get(dk)
	require.False(t, ok)
	_, ok = m.GetRemote(4)
	require.False(t, ok)
}

func TestChannelZeroSlotNeverAllocated(t *testing.T) {
	public, _, err := keys.Generate()
	require.NoError(t, err)

	m := New()
	h := m.AttachLocal(public)
	require.NotEqualValues(t, 0, h.Local.LocalID)
}
