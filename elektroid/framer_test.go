package elektroid

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

var testHeader = VendorHeader{0xF0, 0x00, 0x20, 0x3C, 0x10, 0x00}

func TestFrameUnframe_RoundTrip(t *testing.T) {
	body := newMessageBody(0x01)
	sysex := frameMessage(testHeader, 42, body)

	require.Equal(t, byte(sysexStart), sysex[0])
	require.Equal(t, byte(sysexEnd), sysex[len(sysex)-1])

	got, err := unframeMessage(testHeader, sysex)
	require.NoError(t, err)

	want := make([]byte, len(body))
	copy(want, body)
	putBE16(want[:2], 42)
	assert.Equal(t, want, got)
}

func TestUnframeMessage_HeaderMismatch(t *testing.T) {
	other := VendorHeader{0xF0, 0x00, 0x20, 0x6b, 0x05, 0x01}
	sysex := frameMessage(testHeader, 0, newMessageBody(0x01))

	_, err := unframeMessage(other, sysex)
	require.ErrorIs(t, err, ErrProtocol)
}

func TestFrameUnframe_Property(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		opcode := rapid.Uint8().Draw(t, "opcode")
		args := rapid.SliceOfN(rapid.Uint8(), 0, 64).Draw(t, "args")
		seq := uint16(rapid.IntRange(0, math.MaxUint16).Draw(t, "seq"))

		body := newMessageBody(opcode, args...)
		sysex := frameMessage(testHeader, seq, body)
		got, err := unframeMessage(testHeader, sysex)
		require.NoError(t, err)

		want := make([]byte, len(body))
		copy(want, body)
		putBE16(want[:2], seq)
		assert.Equal(t, want, got)
	})
}

func TestSeqCounter_WrapsAt65536(t *testing.T) {
	var c seqCounter
	c.next = 65535
	assert.Equal(t, uint16(65535), c.allocate())
	assert.Equal(t, uint16(0), c.allocate())
}

func TestSeqCounter_StrictlyIncreasingModulo(t *testing.T) {
	var c seqCounter
	prev := c.allocate()
	for i := 0; i < 1000; i++ {
		next := c.allocate()
		assert.Equal(t, prev+1, next)
		prev = next
	}
}
