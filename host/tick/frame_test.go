package tick

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCRC16(t *testing.T) {
	// Klipper's empty-frame ACK for sequence 0x10.
	crc := crc16([]byte{5, 0x10})
	frame := AppendFrame(nil, 0)
	assert.Equal(t, []byte{5, 0x10, byte(crc >> 8), byte(crc), frameSync}, frame)
	assert.Equal(t, uint16(0xFFFF), crc16(nil))
}

func TestVLQRoundTrip(t *testing.T) {
	for _, v := range []int32{0, 1, 31, 32, 95, 96, 4095, 12287, 12288, 1 << 20, 3 << 26, -1, -32, -33, -(1 << 26)} {
		enc := appendVLQ(nil, v)
		got, rest, err := readVLQ(enc)
		require.NoError(t, err, "v=%d", v)
		assert.Equal(t, v, got, "v=%d", v)
		assert.Empty(t, rest)
	}

	_, _, err := readVLQ([]byte{0x81})
	assert.ErrorIs(t, err, errShortVLQ)
	_, _, err = readVLQ(nil)
	assert.ErrorIs(t, err, errShortVLQ)
}

func TestFrameDecoder(t *testing.T) {
	d := newFrameDecoder()
	stream := AppendFrame(nil, 0, 4)
	stream = AppendFrame(stream, 1, 1000)

	assert.Equal(t, uint64(0), d.feed(stream[:3]))
	assert.Equal(t, uint64(1004), d.feed(stream[3:]))
	assert.Zero(t, d.bad)
	assert.Zero(t, d.gap)
	assert.Empty(t, d.buf)
}

func TestFrameDecoderResyncsAfterCorruption(t *testing.T) {
	d := newFrameDecoder()
	bad := AppendFrame(nil, 0, 7)
	bad[2] ^= 0x01 // payload no longer matches the CRC

	stream := append([]byte{0x00, 0x01}, bad...)
	stream = AppendFrame(stream, 1, 2)

	assert.Equal(t, uint64(2), d.feed(stream))
	assert.NotZero(t, d.bad)
}

func TestFrameDecoderCountsSequenceGaps(t *testing.T) {
	d := newFrameDecoder()
	stream := AppendFrame(nil, 3, 1)
	stream = AppendFrame(stream, 4, 1)
	stream = AppendFrame(stream, 7, 1)
	stream = AppendFrame(stream, 8, 1)

	assert.Equal(t, uint64(4), d.feed(stream))
	assert.Equal(t, uint64(1), d.gap)
}

func TestFrameDecoderRejectsNegativeCount(t *testing.T) {
	d := newFrameDecoder()
	stream := AppendFrame(nil, 0)
	// Rebuild by hand with a negative VLQ payload.
	payload := appendVLQ([]byte{0, frameDest}, -5)
	payload[0] = byte(len(payload) + frameTrailerSize)
	crc := crc16(payload)
	stream = append(stream, payload...)
	stream = append(stream, byte(crc>>8), byte(crc), frameSync)

	assert.Equal(t, uint64(0), d.feed(stream))
	assert.Equal(t, uint64(1), d.bad)
}
