package flash

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/pkg/errors"

	"github.com/stratotrack/sondelog/tool"
)

// FileDevice persists a flash image in a regular file, byte for byte
// the same layout a real chip would hold. A missing file is created
// fully erased; an existing file must match the geometry exactly.
// Program semantics follow NOR rules like MemDevice.
type FileDevice struct {
	mtx  sync.Mutex
	geo  Geometry
	f    *os.File
	path string
}

var _ BlockDevice = (*FileDevice)(nil)

// OpenFileDevice opens or creates the image file at path.
func OpenFileDevice(path string, geo Geometry) (*FileDevice, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := tool.FSCreateMultiDir(dir); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "opening flash image %s", path)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.Wrapf(err, "stat flash image %s", path)
	}
	d := &FileDevice{geo: geo, f: f, path: path}
	switch uint32(st.Size()) {
	case 0:
		if err := d.fillErased(); err != nil {
			f.Close()
			return nil, err
		}
	case geo.Size:
		// Existing image, use as is.
	default:
		f.Close()
		return nil, errors.Wrapf(ErrGeometry, "image %s is %d bytes, geometry wants %d", path, st.Size(), geo.Size)
	}
	return d, nil
}

func (d *FileDevice) fillErased() error {
	blank := make([]byte, d.geo.SectorSize)
	for i := range blank {
		blank[i] = ErasedByte
	}
	for addr := uint32(0); addr < d.geo.Size; addr += d.geo.SectorSize {
		if _, err := d.f.WriteAt(blank, int64(addr)); err != nil {
			return errors.Wrapf(err, "formatting flash image %s", d.path)
		}
	}
	return nil
}

func (d *FileDevice) Read(addr uint32, p []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, len(p)) {
		return errors.Wrapf(ErrOutOfRange, "read %d bytes at 0x%06x", len(p), addr)
	}
	if _, err := d.f.ReadAt(p, int64(addr)); err != nil {
		return errors.Wrapf(err, "reading flash image at 0x%06x", addr)
	}
	return nil
}

func (d *FileDevice) Write(addr uint32, p []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, len(p)) {
		return errors.Wrapf(ErrOutOfRange, "write %d bytes at 0x%06x", len(p), addr)
	}
	old := make([]byte, len(p))
	if _, err := d.f.ReadAt(old, int64(addr)); err != nil {
		return errors.Wrapf(err, "reading back flash image at 0x%06x", addr)
	}
	for i, b := range p {
		old[i] &= b
	}
	if _, err := d.f.WriteAt(old, int64(addr)); err != nil {
		return errors.Wrapf(err, "writing flash image at 0x%06x", addr)
	}
	return nil
}

func (d *FileDevice) EraseSector(addr uint32) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, 1) {
		return errors.Wrapf(ErrOutOfRange, "erase at 0x%06x", addr)
	}
	blank := make([]byte, d.geo.SectorSize)
	for i := range blank {
		blank[i] = ErasedByte
	}
	if _, err := d.f.WriteAt(blank, int64(d.geo.SectorBase(addr))); err != nil {
		return errors.Wrapf(err, "erasing flash image sector at 0x%06x", addr)
	}
	return nil
}

func (d *FileDevice) Geometry() Geometry {
	return d.geo
}

// Path returns the image file location.
func (d *FileDevice) Path() string {
	return d.path
}

// Sync flushes the image to stable storage.
func (d *FileDevice) Sync() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return errors.Wrapf(d.f.Sync(), "syncing flash image %s", d.path)
}

// Close syncs and closes the image file.
func (d *FileDevice) Close() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if err := d.f.Sync(); err != nil {
		d.f.Close()
		return errors.Wrapf(err, "syncing flash image %s", d.path)
	}
	return errors.Wrapf(d.f.Close(), "closing flash image %s", d.path)
}
