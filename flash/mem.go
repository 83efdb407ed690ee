package flash

import (
	"sync"

	"github.com/pkg/errors"
)

// MemDevice is an in-memory NOR flash emulation. It reproduces the
// program semantics of the real chip: a write ANDs the new bits into
// whatever the cells hold, so programming a range twice without an
// erase corrupts it the same way hardware would.
type MemDevice struct {
	mtx sync.Mutex
	geo Geometry
	buf []byte
}

var _ BlockDevice = (*MemDevice)(nil)

// NewMemDevice creates a fully erased in-memory device.
func NewMemDevice(geo Geometry) (*MemDevice, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	buf := make([]byte, geo.Size)
	for i := range buf {
		buf[i] = ErasedByte
	}
	return &MemDevice{geo: geo, buf: buf}, nil
}

func (d *MemDevice) Read(addr uint32, p []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, len(p)) {
		return errors.Wrapf(ErrOutOfRange, "read %d bytes at 0x%06x", len(p), addr)
	}
	copy(p, d.buf[addr:int(addr)+len(p)])
	return nil
}

func (d *MemDevice) Write(addr uint32, p []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, len(p)) {
		return errors.Wrapf(ErrOutOfRange, "write %d bytes at 0x%06x", len(p), addr)
	}
	for i, b := range p {
		d.buf[int(addr)+i] &= b
	}
	return nil
}

func (d *MemDevice) EraseSector(addr uint32) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, 1) {
		return errors.Wrapf(ErrOutOfRange, "erase at 0x%06x", addr)
	}
	base := d.geo.SectorBase(addr)
	for i := base; i < base+d.geo.SectorSize; i++ {
		d.buf[i] = ErasedByte
	}
	return nil
}

func (d *MemDevice) Geometry() Geometry {
	return d.geo
}

// Image returns a copy of the full device contents.
func (d *MemDevice) Image() []byte {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	out := make([]byte, len(d.buf))
	copy(out, d.buf)
	return out
}

// LoadImage replaces the device contents with a previously captured
// image of the same size.
func (d *MemDevice) LoadImage(img []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if len(img) != len(d.buf) {
		return errors.Wrapf(ErrGeometry, "image is %d bytes, device is %d", len(img), len(d.buf))
	}
	copy(d.buf, img)
	return nil
}
