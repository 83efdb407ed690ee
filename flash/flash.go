// Package flash abstracts NOR flash block devices: byte-addressable
// reads, page-bounded programming, and sector erase. Programming can
// only clear bits (1 to 0); only a sector erase sets them back, so
// callers must erase before rewriting a range.
package flash

import (
	"github.com/pkg/errors"
)

// ErasedByte is the value every cell holds after an erase.
const ErasedByte byte = 0xFF

var (
	// ErrOutOfRange marks an access outside the device address space.
	ErrOutOfRange = errors.New("flash: access outside device range")
	// ErrGeometry marks an invalid or inconsistent device geometry.
	ErrGeometry = errors.New("flash: invalid geometry")
)

// Geometry describes the capacity constants of a device.
type Geometry struct {
	// Size is the total capacity in bytes.
	Size uint32
	// SectorSize is the smallest erasable unit.
	SectorSize uint32
	// PageSize is the largest single program operation.
	PageSize uint32
}

// DefaultGeometry returns the W25Q16JV layout: 2MB in 4KB sectors of
// 256-byte pages.
func DefaultGeometry() Geometry {
	return Geometry{
		Size:       2 * 1024 * 1024,
		SectorSize: 4096,
		PageSize:   256,
	}
}

// Validate checks the internal consistency of the geometry.
func (g Geometry) Validate() error {
	if g.PageSize == 0 || g.SectorSize == 0 || g.Size == 0 {
		return errors.Wrap(ErrGeometry, "zero dimension")
	}
	if g.SectorSize%g.PageSize != 0 {
		return errors.Wrapf(ErrGeometry, "sector size %d not a multiple of page size %d", g.SectorSize, g.PageSize)
	}
	if g.Size%g.SectorSize != 0 {
		return errors.Wrapf(ErrGeometry, "size %d not a multiple of sector size %d", g.Size, g.SectorSize)
	}
	if g.Size < 2*g.SectorSize {
		return errors.Wrapf(ErrGeometry, "size %d smaller than two sectors", g.Size)
	}
	return nil
}

// SectorCount returns the number of erasable sectors.
func (g Geometry) SectorCount() uint32 {
	return g.Size / g.SectorSize
}

// SectorBase returns the first address of the sector containing addr.
func (g Geometry) SectorBase(addr uint32) uint32 {
	return addr - addr%g.SectorSize
}

// Contains reports whether [addr, addr+n) lies inside the device.
func (g Geometry) Contains(addr uint32, n int) bool {
	return n >= 0 && uint64(addr)+uint64(n) <= uint64(g.Size)
}

// BlockDevice is the storage contract the log engine runs on.
type BlockDevice interface {
	// Read fills p from the device contents starting at addr. Any
	// length and alignment is allowed.
	Read(addr uint32, p []byte) error
	// Write programs p at addr, splitting at page boundaries where the
	// hardware requires it. The destination must already be erased; the
	// device does not verify that, and programming over old data merges
	// the bit patterns.
	Write(addr uint32, p []byte) error
	// EraseSector erases the whole sector containing addr to 0xFF.
	EraseSector(addr uint32) error
	// Geometry reports the device capacity constants.
	Geometry() Geometry
}
