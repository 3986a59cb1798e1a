package tick

import (
	"errors"
)

// Tick frames carry batched tick counts from a device that cannot keep up
// with one byte per tick:
//
//	len | seq | vlq(count)... | crc16 hi | crc16 lo | 0x7E
//
// len covers the whole frame. seq is 0x10 | (n & 0x0F). The CRC is the
// Klipper CRC16 over len, seq and the payload.
const (
	frameHeaderSize  = 2
	frameTrailerSize = 3
	frameMinLen      = frameHeaderSize + frameTrailerSize
	frameMaxLen      = 64
	frameSync        = 0x7E
	frameDest        = 0x10
	frameSeqMask     = 0x0F
)

// Framing names accepted in Config.Framing.
const (
	FramingRaw   = "raw"
	FramingFrame = "frame"
)

var errShortVLQ = errors.New("truncated VLQ")

func crc16(data []byte) uint16 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		b ^= uint8(crc & 0xFF)
		b ^= b << 4
		w := uint16(b)
		crc = (w<<8 | crc>>8) ^ (w >> 4) ^ (w << 3)
	}
	return crc
}

// appendVLQ appends v in Klipper's variable-length encoding.
func appendVLQ(dst []byte, v int32) []byte {
	if !(-(1<<26) <= v && v < (3<<26)) {
		dst = append(dst, byte((v>>28)&0x7F)|0x80)
	}
	if !(-(1<<19) <= v && v < (3<<19)) {
		dst = append(dst, byte((v>>21)&0x7F)|0x80)
	}
	if !(-(1<<12) <= v && v < (3<<12)) {
		dst = append(dst, byte((v>>14)&0x7F)|0x80)
	}
	if !(-(1<<5) <= v && v < (3<<5)) {
		dst = append(dst, byte((v>>7)&0x7F)|0x80)
	}
	return append(dst, byte(v&0x7F))
}

// readVLQ decodes one value from the front of data and returns the rest.
func readVLQ(data []byte) (int32, []byte, error) {
	if len(data) == 0 {
		return 0, data, errShortVLQ
	}
	c := uint32(data[0])
	data = data[1:]
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	for c&0x80 != 0 {
		if len(data) == 0 {
			return 0, data, errShortVLQ
		}
		c = uint32(data[0])
		data = data[1:]
		v = v<<7 | c&0x7F
	}
	return int32(v), data, nil
}

// AppendFrame appends a tick frame carrying counts to dst.
func AppendFrame(dst []byte, seq uint8, counts ...uint32) []byte {
	start := len(dst)
	dst = append(dst, 0, frameDest|seq&frameSeqMask)
	for _, c := range counts {
		dst = appendVLQ(dst, int32(c))
	}
	dst[start] = byte(len(dst) - start + frameTrailerSize)
	crc := crc16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), frameSync)
}

// frameDecoder reassembles tick frames from a byte stream. On any framing
// error it drops input up to the next sync byte.
type frameDecoder struct {
	buf     []byte
	synced  bool
	nextSeq uint8
	started bool

	bad uint64
	gap uint64
}

func newFrameDecoder() *frameDecoder {
	return &frameDecoder{synced: true}
}

// feed consumes data and returns the total tick count of the complete
// frames it contained.
func (d *frameDecoder) feed(data []byte) uint64 {
	d.buf = append(d.buf, data...)
	var ticks uint64
	in := d.buf
	for len(in) > 0 {
		if !d.synced {
			i := 0
			for i < len(in) && in[i] != frameSync {
				i++
			}
			if i == len(in) {
				in = in[:0]
				break
			}
			in = in[i+1:]
			d.synced = true
			continue
		}
		if in[0] == frameSync {
			in = in[1:]
			continue
		}
		if len(in) < frameMinLen {
			break
		}

		n := int(in[0])
		seq := in[1]
		if n < frameMinLen || n > frameMaxLen || seq&^frameSeqMask != frameDest {
			d.resync()
			continue
		}
		if len(in) < n {
			break
		}
		want := uint16(in[n-3])<<8 | uint16(in[n-2])
		if in[n-1] != frameSync || crc16(in[:n-frameTrailerSize]) != want {
			d.resync()
			continue
		}

		count, ok := d.payload(in[frameHeaderSize : n-frameTrailerSize])
		in = in[n:]
		if !ok {
			d.bad++
			continue
		}
		d.sequence(seq & frameSeqMask)
		ticks += count
	}
	d.buf = append(d.buf[:0], in...)
	return ticks
}

func (d *frameDecoder) payload(p []byte) (uint64, bool) {
	var total uint64
	for len(p) > 0 {
		v, rest, err := readVLQ(p)
		if err != nil || v < 0 {
			return 0, false
		}
		total += uint64(v)
		p = rest
	}
	return total, true
}

func (d *frameDecoder) sequence(seq uint8) {
	if d.started && seq != d.nextSeq {
		d.gap++
	}
	d.started = true
	d.nextSeq = (seq + 1) & frameSeqMask
}

func (d *frameDecoder) resync() {
	d.bad++
	d.synced = false
}
