package flashlog

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	headerMagic   uint32 = 0xF1A5DEAD
	headerVersion uint32 = 1
	headerSize           = 44

	// The two header slots live at fixed offsets inside sector 0.
	headerAddrA uint32 = 0x0000
	headerAddrB uint32 = 0x0100

	headerCRCOffset = 40
)

// header is the on-flash commit record. Two copies are kept and
// written alternately; the sequence field decides which one is
// authoritative after a restart.
type header struct {
	magic       uint32
	version     uint32
	writeAddr   uint32
	recordCount uint32
	sequence    uint32
	oldestAddr  uint32
	flags       uint32
	reserved    [3]uint32
	crc         uint32
}

func headerAddr(slot uint8) uint32 {
	if slot == 0 {
		return headerAddrA
	}
	return headerAddrB
}

func (h *header) marshal() []byte {
	b := make([]byte, headerSize)
	binary.LittleEndian.PutUint32(b[0:4], h.magic)
	binary.LittleEndian.PutUint32(b[4:8], h.version)
	binary.LittleEndian.PutUint32(b[8:12], h.writeAddr)
	binary.LittleEndian.PutUint32(b[12:16], h.recordCount)
	binary.LittleEndian.PutUint32(b[16:20], h.sequence)
	binary.LittleEndian.PutUint32(b[20:24], h.oldestAddr)
	binary.LittleEndian.PutUint32(b[24:28], h.flags)
	for i, v := range h.reserved {
		binary.LittleEndian.PutUint32(b[28+4*i:32+4*i], v)
	}
	binary.LittleEndian.PutUint32(b[headerCRCOffset:headerSize], h.crc)
	return b
}

func (h *header) unmarshal(b []byte) error {
	if len(b) < headerSize {
		return errors.Wrapf(ErrParam, "header needs %d bytes, got %d", headerSize, len(b))
	}
	h.magic = binary.LittleEndian.Uint32(b[0:4])
	h.version = binary.LittleEndian.Uint32(b[4:8])
	h.writeAddr = binary.LittleEndian.Uint32(b[8:12])
	h.recordCount = binary.LittleEndian.Uint32(b[12:16])
	h.sequence = binary.LittleEndian.Uint32(b[16:20])
	h.oldestAddr = binary.LittleEndian.Uint32(b[20:24])
	h.flags = binary.LittleEndian.Uint32(b[24:28])
	for i := range h.reserved {
		h.reserved[i] = binary.LittleEndian.Uint32(b[28+4*i : 32+4*i])
	}
	h.crc = binary.LittleEndian.Uint32(b[headerCRCOffset:headerSize])
	return nil
}

// seal computes and stores the CRC over the encoded fields before it.
func (h *header) seal() {
	h.crc = Checksum(h.marshal()[:headerCRCOffset])
}

// valid checks magic, version, and CRC.
func (h *header) valid() bool {
	if h.magic != headerMagic || h.version != headerVersion {
		return false
	}
	return Checksum(h.marshal()[:headerCRCOffset]) == h.crc
}
