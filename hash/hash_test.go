package hash

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLeafDeterministic(t *testing.T) {
	a := Leaf([]byte("hello world"))
	b := Leaf([]byte("hello world"))
	require.Equal(t, a, b)

	c := Leaf([]byte("hello mundo"))
	require.NotEqual(t, a, c)
}

func TestLeafEmpty(t *testing.T) {
	a := Leaf(nil)
	b := Leaf([]byte{})
	require.Equal(t, a, b)
}

func TestParentDependsOnOrder(t *testing.T) {
	left := Leaf([]byte("a"))
	right := Leaf([]byte("b"))
	p1 := Parent(left, right, 2)
	p2 := Parent(right, left, 2)
	require.NotEqual(t, p1, p2)
}

func TestParentDependsOnLength(t *testing.T) {
	left := Leaf([]byte("a"))
	right := Leaf([]byte("b"))
	p1 := Parent(left, right, 2)
	p2 := Parent(left, right, 3)
	require.NotEqual(t, p1, p2)
}

func TestRootsOrderSensitive(t *testing.T) {
	a := RootEntry{Hash: Leaf([]byte("x")), Length: 1}
	b := RootEntry{Hash: Leaf([]byte("y")), Length: 1}
	r1 := Roots([]RootEntry{a, b})
	r2 := Roots([]RootEntry{b, a})
	require.NotEqual(t, r1, r2)
}

func TestRootsEmpty(t *testing.T) {
	r := Roots(nil)
	require.NotEqual(t, Hash{}, r)
}

func TestFromBytesRoundTrip(t *testing.T) {
	h := Leaf([]byte("round trip"))
	out, err := FromBytes(h.Bytes())
	require.NoError(t, err)
	require.Equal(t, h, out)
}

func TestFromBytesWrongLength(t *testing.T) {
	_, err := FromBytes(make([]byte, 31))
	require.Error(t, err)
	_, err = FromBytes(make([]byte, 33))
	require.Error(t, err)
}

func TestKeyedDiscoveryDifferentKeysDiffer(t *testing.T) {
	var k1, k2 [32]byte
	k1[0] = 1
	k2[0] = 2
	d1 := KeyedDiscovery(k1, []byte("hypercore"))
	d2 := KeyedDiscovery(k2, []byte("hypercore"))
	require.NotEqual(t, d1, d2)
}

func TestDeriveKeyDeterministic(t *testing.T) {
	secret := []byte("super secret material")
	s1 := DeriveKey("datacore/writer", secret)
	s2 := DeriveKey("datacore/writer", secret)
	require.Equal(t, s1, s2)

	s3 := DeriveKey("datacore/other", secret)
	require.NotEqual(t, s1, s3)
}
