package flashlog

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_HeaderSlots(t *testing.T) {
	assert.Equal(t, uint32(0x0000), headerAddr(0))
	assert.Equal(t, uint32(0x0100), headerAddr(1))
}

func Test_HeaderLayout(t *testing.T) {
	h := &header{
		magic:       headerMagic,
		version:     headerVersion,
		writeAddr:   0x00012340,
		recordCount: 500,
		sequence:    500,
		oldestAddr:  0x00001000,
		flags:       0,
	}
	h.seal()
	b := h.marshal()
	assert.Equal(t, headerSize, len(b))
	assert.Equal(t, []byte{0xAD, 0xDE, 0xA5, 0xF1}, b[0:4])
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(0x00012340), binary.LittleEndian.Uint32(b[8:12]))
	assert.Equal(t, uint32(500), binary.LittleEndian.Uint32(b[12:16]))
	assert.Equal(t, uint32(500), binary.LittleEndian.Uint32(b[16:20]))
	assert.Equal(t, uint32(0x00001000), binary.LittleEndian.Uint32(b[20:24]))
	assert.Equal(t, Checksum(b[:40]), binary.LittleEndian.Uint32(b[40:44]))
}

func Test_HeaderRoundTrip(t *testing.T) {
	h := &header{
		magic:       headerMagic,
		version:     headerVersion,
		writeAddr:   0x2000,
		recordCount: 33,
		sequence:    33,
		oldestAddr:  0x1000,
	}
	h.seal()
	assert.True(t, h.valid())

	decoded := &header{}
	assert.NoError(t, decoded.unmarshal(h.marshal()))
	assert.True(t, decoded.valid())
	assert.Equal(t, h, decoded)
}

func Test_HeaderValidation(t *testing.T) {
	good := &header{magic: headerMagic, version: headerVersion, writeAddr: 0x1000}
	good.seal()
	assert.True(t, good.valid())

	wrongMagic := *good
	wrongMagic.magic = 0xDEADBEEF
	wrongMagic.seal()
	assert.False(t, wrongMagic.valid())

	wrongVersion := *good
	wrongVersion.version = 2
	wrongVersion.seal()
	assert.False(t, wrongVersion.valid())

	tampered := *good
	tampered.recordCount = 999
	assert.False(t, tampered.valid())

	erased := &header{}
	blank := make([]byte, headerSize)
	for i := range blank {
		blank[i] = 0xFF
	}
	assert.NoError(t, erased.unmarshal(blank))
	assert.False(t, erased.valid())

	short := &header{}
	assert.ErrorIs(t, short.unmarshal(make([]byte, headerSize-4)), ErrParam)
}
