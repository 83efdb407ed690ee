// Package w25q drives Winbond W25Q-series SPI NOR flash chips over a
// periph.io SPI port. It implements flash.BlockDevice plus the chip's
// maintenance operations: block and chip erase, power-down, software
// reset, and erased-range checks.
//
// Every mutating command is bracketed by a write-enable (verified via
// the WEL status bit) and a busy-poll with the operation's datasheet
// deadline. The poll sleeps through an injected clock so it can run
// against a fake in tests.
package w25q

import (
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/stratotrack/sondelog/flash"
	"github.com/stratotrack/sondelog/log"
)

var (
	// ErrTimeout marks a device that did not clear its busy flag
	// within the operation deadline.
	ErrTimeout = errors.New("w25q: device busy timeout")
	// ErrUnknownChip marks a JEDEC identity that is not a Winbond
	// W25Q-series NOR device.
	ErrUnknownChip = errors.New("w25q: unrecognized JEDEC id")
	// ErrWriteEnable marks a chip that refused the write-enable latch.
	ErrWriteEnable = errors.New("w25q: write enable not latched")
)

// Options configures the driver. The zero value of every field selects
// a default.
type Options struct {
	// Frequency is the SPI bus speed. Default 8 MHz.
	Frequency physic.Frequency
	// Geometry is the chip layout. Default W25Q16JV (2MB).
	Geometry flash.Geometry
	// Clock is the timing source for busy-polls and settle delays.
	// Default is the wall clock; tests inject a mock.
	Clock clock.Clock
}

// Device is one W25Q chip on an SPI port.
type Device struct {
	mtx   sync.Mutex
	conn  spi.Conn
	clk   clock.Clock
	geo   flash.Geometry
	jedec uint32
}

var _ flash.BlockDevice = (*Device)(nil)

// New connects to the chip, wakes it from power-down, and verifies its
// JEDEC identity. opts may be nil for defaults.
func New(port spi.Port, opts *Options) (*Device, error) {
	if port == nil {
		return nil, errors.New("w25q: nil spi port")
	}
	o := Options{}
	if opts != nil {
		o = *opts
	}
	if o.Frequency == 0 {
		o.Frequency = 8 * physic.MegaHertz
	}
	if o.Geometry == (flash.Geometry{}) {
		o.Geometry = flash.DefaultGeometry()
	}
	if err := o.Geometry.Validate(); err != nil {
		return nil, err
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}

	conn, err := port.Connect(o.Frequency, spi.Mode0, 8)
	if err != nil {
		return nil, errors.Wrap(err, "w25q: connecting spi port")
	}
	d := &Device{conn: conn, clk: o.Clock, geo: o.Geometry}

	// The chip may still be asleep from a previous session.
	if err := d.releasePowerDownLocked(); err != nil {
		return nil, err
	}
	id, err := d.readJEDECIDLocked()
	if err != nil {
		return nil, err
	}
	if byte(id>>16) != jedecManufacturerWinbond || byte(id>>8) != jedecMemoryTypeNOR {
		return nil, errors.Wrapf(ErrUnknownChip, "0x%06x", id)
	}
	d.jedec = id
	log.Info(fmt.Sprintf("w25q: detected chip jedec=0x%06x size=%d", id, d.geo.Size))
	return d, nil
}

// JEDECID returns the chip identity read during New: manufacturer,
// memory type, and capacity bytes packed high to low.
func (d *Device) JEDECID() uint32 {
	return d.jedec
}

func (d *Device) Geometry() flash.Geometry {
	return d.geo
}

// Read fills p starting at addr using the plain read command.
func (d *Device) Read(addr uint32, p []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, len(p)) {
		return errors.Wrapf(flash.ErrOutOfRange, "read %d bytes at 0x%06x", len(p), addr)
	}
	if len(p) == 0 {
		return nil
	}
	if err := d.waitReadyLocked(timeoutGeneral); err != nil {
		return err
	}
	resp, err := d.txLocked([]byte{cmdReadData, byte(addr >> 16), byte(addr >> 8), byte(addr)}, len(p))
	if err != nil {
		return err
	}
	copy(p, resp)
	return nil
}

// FastRead fills p starting at addr using the fast-read command, which
// carries one dummy byte and allows the full rated bus speed.
func (d *Device) FastRead(addr uint32, p []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, len(p)) {
		return errors.Wrapf(flash.ErrOutOfRange, "fast read %d bytes at 0x%06x", len(p), addr)
	}
	if len(p) == 0 {
		return nil
	}
	if err := d.waitReadyLocked(timeoutGeneral); err != nil {
		return err
	}
	resp, err := d.txLocked([]byte{cmdFastRead, byte(addr >> 16), byte(addr >> 8), byte(addr), 0x00}, len(p))
	if err != nil {
		return err
	}
	copy(p, resp)
	return nil
}

// Write programs p at addr, splitting at 256-byte page boundaries so a
// spanning write issues multiple program commands. The destination
// must already be erased.
func (d *Device) Write(addr uint32, p []byte) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, len(p)) {
		return errors.Wrapf(flash.ErrOutOfRange, "write %d bytes at 0x%06x", len(p), addr)
	}
	written := 0
	for written < len(p) {
		pageOffset := addr % d.geo.PageSize
		chunk := int(d.geo.PageSize - pageOffset)
		if chunk > len(p)-written {
			chunk = len(p) - written
		}
		if err := d.pageProgramLocked(addr, p[written:written+chunk]); err != nil {
			return err
		}
		addr += uint32(chunk)
		written += chunk
	}
	return nil
}

func (d *Device) pageProgramLocked(addr uint32, p []byte) error {
	if err := d.waitReadyLocked(timeoutGeneral); err != nil {
		return err
	}
	if err := d.writeEnableLocked(); err != nil {
		return err
	}
	cmd := make([]byte, 4+len(p))
	cmd[0] = cmdPageProgram
	cmd[1] = byte(addr >> 16)
	cmd[2] = byte(addr >> 8)
	cmd[3] = byte(addr)
	copy(cmd[4:], p)
	if err := d.conn.Tx(cmd, nil); err != nil {
		return errors.Wrapf(err, "w25q: page program at 0x%06x", addr)
	}
	return d.waitReadyLocked(timeoutPageProgram)
}

// EraseSector erases the 4KB sector containing addr.
func (d *Device) EraseSector(addr uint32) error {
	return d.erase(cmdSectorErase, addr, timeoutSectorErase)
}

// EraseBlock32K erases the 32KB block containing addr.
func (d *Device) EraseBlock32K(addr uint32) error {
	return d.erase(cmdBlockErase32K, addr, timeoutBlockErase)
}

// EraseBlock64K erases the 64KB block containing addr.
func (d *Device) EraseBlock64K(addr uint32) error {
	return d.erase(cmdBlockErase64K, addr, timeoutBlockErase)
}

func (d *Device) erase(opcode byte, addr uint32, timeout time.Duration) error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, 1) {
		return errors.Wrapf(flash.ErrOutOfRange, "erase at 0x%06x", addr)
	}
	if err := d.waitReadyLocked(timeoutGeneral); err != nil {
		return err
	}
	if err := d.writeEnableLocked(); err != nil {
		return err
	}
	if err := d.conn.Tx([]byte{opcode, byte(addr >> 16), byte(addr >> 8), byte(addr)}, nil); err != nil {
		return errors.Wrapf(err, "w25q: erase 0x%02x at 0x%06x", opcode, addr)
	}
	return d.waitReadyLocked(timeout)
}

// EraseChip erases the entire device. The datasheet ceiling is 100
// seconds; the call blocks until the chip reports ready.
func (d *Device) EraseChip() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if err := d.waitReadyLocked(timeoutGeneral); err != nil {
		return err
	}
	if err := d.writeEnableLocked(); err != nil {
		return err
	}
	if err := d.conn.Tx([]byte{cmdChipErase}, nil); err != nil {
		return errors.Wrap(err, "w25q: chip erase")
	}
	return d.waitReadyLocked(timeoutChipErase)
}

// IsErased reports whether every byte in [addr, addr+length) reads as
// 0xFF.
func (d *Device) IsErased(addr, length uint32) (bool, error) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if !d.geo.Contains(addr, int(length)) {
		return false, errors.Wrapf(flash.ErrOutOfRange, "erased check %d bytes at 0x%06x", length, addr)
	}
	buf := make([]byte, d.geo.PageSize)
	for length > 0 {
		chunk := uint32(len(buf))
		if chunk > length {
			chunk = length
		}
		if err := d.waitReadyLocked(timeoutGeneral); err != nil {
			return false, err
		}
		resp, err := d.txLocked([]byte{cmdReadData, byte(addr >> 16), byte(addr >> 8), byte(addr)}, int(chunk))
		if err != nil {
			return false, err
		}
		for _, b := range resp {
			if b != flash.ErasedByte {
				return false, nil
			}
		}
		addr += chunk
		length -= chunk
	}
	return true, nil
}

// PowerDown puts the chip into its minimum-current state. Only
// ReleasePowerDown (or a power cycle) wakes it.
func (d *Device) PowerDown() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if err := d.conn.Tx([]byte{cmdPowerDown}, nil); err != nil {
		return errors.Wrap(err, "w25q: power down")
	}
	d.clk.Sleep(settleDelay)
	return nil
}

// ReleasePowerDown wakes the chip from power-down.
func (d *Device) ReleasePowerDown() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	return d.releasePowerDownLocked()
}

func (d *Device) releasePowerDownLocked() error {
	if err := d.conn.Tx([]byte{cmdReleasePowerDown}, nil); err != nil {
		return errors.Wrap(err, "w25q: release power down")
	}
	d.clk.Sleep(settleDelay)
	return nil
}

// Reset issues the two-step software reset sequence.
func (d *Device) Reset() error {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	if err := d.conn.Tx([]byte{cmdEnableReset}, nil); err != nil {
		return errors.Wrap(err, "w25q: enable reset")
	}
	if err := d.conn.Tx([]byte{cmdReset}, nil); err != nil {
		return errors.Wrap(err, "w25q: reset")
	}
	d.clk.Sleep(settleDelay)
	return nil
}

// Close powers the chip down. The SPI port itself stays open; it
// belongs to the caller.
func (d *Device) Close() error {
	return d.PowerDown()
}

func (d *Device) readJEDECIDLocked() (uint32, error) {
	resp, err := d.txLocked([]byte{cmdReadJEDECID}, 3)
	if err != nil {
		return 0, err
	}
	return uint32(resp[0])<<16 | uint32(resp[1])<<8 | uint32(resp[2]), nil
}

func (d *Device) readStatus1Locked() (byte, error) {
	resp, err := d.txLocked([]byte{cmdReadStatus1}, 1)
	if err != nil {
		return 0, err
	}
	return resp[0], nil
}

// writeEnableLocked sets the write-enable latch and verifies it took.
func (d *Device) writeEnableLocked() error {
	if err := d.conn.Tx([]byte{cmdWriteEnable}, nil); err != nil {
		return errors.Wrap(err, "w25q: write enable")
	}
	st, err := d.readStatus1Locked()
	if err != nil {
		return err
	}
	if st&statusWEL == 0 {
		return ErrWriteEnable
	}
	return nil
}

// waitReadyLocked polls status register 1 until the busy bit clears or
// the deadline passes.
func (d *Device) waitReadyLocked(timeout time.Duration) error {
	deadline := d.clk.Now().Add(timeout)
	for {
		st, err := d.readStatus1Locked()
		if err != nil {
			return err
		}
		if st&statusBusy == 0 {
			return nil
		}
		if !d.clk.Now().Before(deadline) {
			return errors.Wrapf(ErrTimeout, "after %v", timeout)
		}
		d.clk.Sleep(pollInterval)
	}
}

// txLocked sends cmd and reads readLen bytes of response in one
// full-duplex transaction, padding the transmit side as the bus
// requires.
func (d *Device) txLocked(cmd []byte, readLen int) ([]byte, error) {
	w := make([]byte, len(cmd)+readLen)
	copy(w, cmd)
	r := make([]byte, len(w))
	if err := d.conn.Tx(w, r); err != nil {
		return nil, errors.Wrapf(err, "w25q: command 0x%02x", cmd[0])
	}
	return r[len(cmd):], nil
}
