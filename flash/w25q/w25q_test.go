package w25q

import (
	"fmt"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"github.com/stratotrack/sondelog/flash"
)

// fakeChip is a behavioral model of a W25Q part: enough state machine
// to catch a driver that skips write-enable, forgets the fast-read
// dummy byte, or crosses a page boundary in one program.
type fakeChip struct {
	mem       []byte
	status    byte
	busyLeft  int
	powered   bool
	resetArm  bool
	jedec     [3]byte
	ops       []string
	refuseWEL bool
	stuckBusy bool
}

func newFakeChip(size uint32) *fakeChip {
	mem := make([]byte, size)
	for i := range mem {
		mem[i] = 0xFF
	}
	return &fakeChip{mem: mem, jedec: [3]byte{0xEF, 0x40, 0x15}}
}

func (c *fakeChip) addr(w []byte) uint32 {
	return uint32(w[1])<<16 | uint32(w[2])<<8 | uint32(w[3])
}

func (c *fakeChip) eraseRange(base, size uint32) {
	for i := base; i < base+size && i < uint32(len(c.mem)); i++ {
		c.mem[i] = 0xFF
	}
}

func (c *fakeChip) finishOp() {
	c.status |= statusBusy
	c.busyLeft = 1
	c.status &^= statusWEL
}

func (c *fakeChip) tx(w, r []byte) {
	op := w[0]
	if !c.powered && op != cmdReleasePowerDown {
		return
	}
	switch op {
	case cmdWriteEnable:
		if !c.refuseWEL {
			c.status |= statusWEL
		}
	case cmdWriteDisable:
		c.status &^= statusWEL
	case cmdReadStatus1:
		if r != nil && len(r) > 1 {
			r[1] = c.status
		}
		if c.status&statusBusy != 0 && !c.stuckBusy {
			c.busyLeft--
			if c.busyLeft <= 0 {
				c.status &^= statusBusy
			}
		}
	case cmdReadJEDECID:
		if r != nil && len(r) >= 4 {
			copy(r[1:4], c.jedec[:])
		}
	case cmdReadData:
		if r != nil && len(r) > 4 {
			copy(r[4:], c.mem[c.addr(w):])
		}
	case cmdFastRead:
		if r != nil && len(r) > 5 {
			copy(r[5:], c.mem[c.addr(w):])
		}
	case cmdPageProgram:
		if c.status&statusWEL == 0 {
			c.ops = append(c.ops, "prog-refused")
			return
		}
		addr := c.addr(w)
		data := w[4:]
		if int(addr%256)+len(data) > 256 {
			c.ops = append(c.ops, fmt.Sprintf("page-violation@0x%06x+%d", addr, len(data)))
			return
		}
		for i, b := range data {
			c.mem[addr+uint32(i)] &= b
		}
		c.ops = append(c.ops, fmt.Sprintf("prog@0x%06x+%d", addr, len(data)))
		c.finishOp()
	case cmdSectorErase:
		if c.status&statusWEL == 0 {
			c.ops = append(c.ops, "erase-refused")
			return
		}
		base := c.addr(w) &^ (4096 - 1)
		c.eraseRange(base, 4096)
		c.ops = append(c.ops, fmt.Sprintf("erase4k@0x%06x", base))
		c.finishOp()
	case cmdBlockErase32K:
		if c.status&statusWEL == 0 {
			c.ops = append(c.ops, "erase-refused")
			return
		}
		base := c.addr(w) &^ (32*1024 - 1)
		c.eraseRange(base, 32*1024)
		c.ops = append(c.ops, fmt.Sprintf("erase32k@0x%06x", base))
		c.finishOp()
	case cmdBlockErase64K:
		if c.status&statusWEL == 0 {
			c.ops = append(c.ops, "erase-refused")
			return
		}
		base := c.addr(w) &^ (64*1024 - 1)
		c.eraseRange(base, 64*1024)
		c.ops = append(c.ops, fmt.Sprintf("erase64k@0x%06x", base))
		c.finishOp()
	case cmdChipErase:
		if c.status&statusWEL == 0 {
			c.ops = append(c.ops, "erase-refused")
			return
		}
		c.eraseRange(0, uint32(len(c.mem)))
		c.ops = append(c.ops, "erase-chip")
		c.finishOp()
	case cmdPowerDown:
		c.powered = false
		c.ops = append(c.ops, "power-down")
	case cmdReleasePowerDown:
		c.powered = true
		c.ops = append(c.ops, "release-power-down")
	case cmdEnableReset:
		c.resetArm = true
	case cmdReset:
		if c.resetArm {
			c.status = 0
			c.busyLeft = 0
			c.resetArm = false
			c.ops = append(c.ops, "reset")
		}
	}
}

type fakeConn struct {
	chip *fakeChip
}

func (f *fakeConn) String() string { return "fake-w25q" }

func (f *fakeConn) Duplex() conn.Duplex { return conn.Full }

func (f *fakeConn) Tx(w, r []byte) error {
	f.chip.tx(w, r)
	return nil
}

func (f *fakeConn) TxPackets(p []spi.Packet) error {
	for _, pkt := range p {
		f.chip.tx(pkt.W, pkt.R)
	}
	return nil
}

type fakePort struct {
	chip *fakeChip
}

func (f *fakePort) String() string { return "fake-port" }

func (f *fakePort) Connect(freq physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	return &fakeConn{chip: f.chip}, nil
}

func testGeometry() flash.Geometry {
	return flash.Geometry{Size: 4 * 64 * 1024, SectorSize: 4096, PageSize: 256}
}

func newTestDevice(t *testing.T) (*Device, *fakeChip) {
	chip := newFakeChip(testGeometry().Size)
	dev, err := New(&fakePort{chip: chip}, &Options{Geometry: testGeometry()})
	assert.NoError(t, err)
	return dev, chip
}

func Test_NewProbesIdentity(t *testing.T) {
	dev, chip := newTestDevice(t)
	assert.Equal(t, uint32(0xEF4015), dev.JEDECID())
	assert.Equal(t, testGeometry(), dev.Geometry())
	// The chip may be asleep at power-on, so the wake comes first.
	assert.NotEmpty(t, chip.ops)
	assert.Equal(t, "release-power-down", chip.ops[0])
}

func Test_NewRejectsUnknownChip(t *testing.T) {
	chip := newFakeChip(testGeometry().Size)
	chip.jedec = [3]byte{0xC2, 0x20, 0x16}
	_, err := New(&fakePort{chip: chip}, &Options{Geometry: testGeometry()})
	assert.ErrorIs(t, err, ErrUnknownChip)
}

func Test_ReadAndFastRead(t *testing.T) {
	dev, chip := newTestDevice(t)
	want := []byte{0x10, 0x20, 0x30, 0x40, 0x50}
	copy(chip.mem[8192:], want)

	got := make([]byte, len(want))
	assert.NoError(t, dev.Read(8192, got))
	assert.Equal(t, want, got)

	// Fast read carries a dummy byte; a driver off by one would return
	// shifted data here.
	got = make([]byte, len(want))
	assert.NoError(t, dev.FastRead(8192, got))
	assert.Equal(t, want, got)
}

func Test_WriteSplitsPages(t *testing.T) {
	dev, chip := newTestDevice(t)
	data := make([]byte, 600)
	for i := range data {
		data[i] = byte(i)
	}
	assert.NoError(t, dev.Write(4096+200, data))

	got := make([]byte, len(data))
	assert.NoError(t, dev.Read(4096+200, got))
	assert.Equal(t, data, got)

	var progs []string
	for _, op := range chip.ops {
		assert.NotContains(t, op, "violation")
		assert.NotContains(t, op, "refused")
		if len(op) > 4 && op[:4] == "prog" {
			progs = append(progs, op)
		}
	}
	// 200 into a page: 56 bytes to the page end, two full pages, 32 left.
	assert.Equal(t, []string{
		"prog@0x0010c8+56",
		"prog@0x001100+256",
		"prog@0x001200+256",
		"prog@0x001300+32",
	}, progs)
}

func Test_WriteEnableRefused(t *testing.T) {
	dev, chip := newTestDevice(t)
	chip.refuseWEL = true
	err := dev.Write(4096, []byte{0x00})
	assert.ErrorIs(t, err, ErrWriteEnable)
	err = dev.EraseSector(4096)
	assert.ErrorIs(t, err, ErrWriteEnable)
}

func Test_EraseSector(t *testing.T) {
	dev, chip := newTestDevice(t)
	assert.NoError(t, dev.Write(4096, []byte{0x00, 0x01, 0x02}))

	// Any address inside the sector erases all of it.
	assert.NoError(t, dev.EraseSector(4096+1234))
	assert.Contains(t, chip.ops, "erase4k@0x001000")

	erased, err := dev.IsErased(4096, 4096)
	assert.NoError(t, err)
	assert.True(t, erased)
}

func Test_BlockAndChipErase(t *testing.T) {
	dev, chip := newTestDevice(t)
	assert.NoError(t, dev.Write(0, []byte{0x00}))
	assert.NoError(t, dev.Write(100*1024, []byte{0x00}))

	assert.NoError(t, dev.EraseBlock32K(100))
	assert.Contains(t, chip.ops, "erase32k@0x000000")
	erased, err := dev.IsErased(0, 32*1024)
	assert.NoError(t, err)
	assert.True(t, erased)

	assert.NoError(t, dev.EraseBlock64K(100*1024))
	assert.Contains(t, chip.ops, "erase64k@0x010000")

	assert.NoError(t, dev.Write(0, []byte{0x00}))
	assert.NoError(t, dev.EraseChip())
	erased, err = dev.IsErased(0, testGeometry().Size)
	assert.NoError(t, err)
	assert.True(t, erased)
}

func Test_IsErased(t *testing.T) {
	dev, _ := newTestDevice(t)
	erased, err := dev.IsErased(0, 4096)
	assert.NoError(t, err)
	assert.True(t, erased)

	assert.NoError(t, dev.Write(500, []byte{0x7F}))
	erased, err = dev.IsErased(0, 4096)
	assert.NoError(t, err)
	assert.False(t, erased)
}

func Test_OutOfRange(t *testing.T) {
	dev, _ := newTestDevice(t)
	size := testGeometry().Size
	assert.ErrorIs(t, dev.Read(size, make([]byte, 1)), flash.ErrOutOfRange)
	assert.ErrorIs(t, dev.Write(size-1, []byte{0, 0}), flash.ErrOutOfRange)
	assert.ErrorIs(t, dev.EraseSector(size), flash.ErrOutOfRange)
	_, err := dev.IsErased(size-10, 20)
	assert.ErrorIs(t, err, flash.ErrOutOfRange)
}

func Test_PowerDownAndReset(t *testing.T) {
	dev, chip := newTestDevice(t)
	assert.NoError(t, dev.PowerDown())
	assert.False(t, chip.powered)
	assert.NoError(t, dev.ReleasePowerDown())
	assert.True(t, chip.powered)

	assert.NoError(t, dev.Reset())
	assert.Contains(t, chip.ops, "reset")

	assert.NoError(t, dev.Close())
	assert.False(t, chip.powered)
}

func Test_WaitReadyTimeout(t *testing.T) {
	chip := newFakeChip(testGeometry().Size)
	chip.powered = true
	chip.status = statusBusy
	chip.stuckBusy = true
	clk := clock.NewMock()
	dev := &Device{conn: &fakeConn{chip: chip}, clk: clk, geo: testGeometry()}

	errCh := make(chan error, 1)
	go func() {
		errCh <- dev.waitReadyLocked(timeoutGeneral)
	}()
	for {
		select {
		case err := <-errCh:
			assert.ErrorIs(t, err, ErrTimeout)
			return
		default:
			clk.Add(pollInterval)
		}
	}
}
