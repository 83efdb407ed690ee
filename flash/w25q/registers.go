package w25q

import "time"

// Command opcodes of the W25Q command set.
const (
	cmdWriteEnable      byte = 0x06
	cmdWriteDisable     byte = 0x04
	cmdReadStatus1      byte = 0x05
	cmdReadStatus2      byte = 0x35
	cmdReadData         byte = 0x03
	cmdFastRead         byte = 0x0B
	cmdPageProgram      byte = 0x02
	cmdSectorErase      byte = 0x20
	cmdBlockErase32K    byte = 0x52
	cmdBlockErase64K    byte = 0xD8
	cmdChipErase        byte = 0xC7
	cmdPowerDown        byte = 0xB9
	cmdReleasePowerDown byte = 0xAB
	cmdEnableReset      byte = 0x66
	cmdReset            byte = 0x99
	cmdReadJEDECID      byte = 0x9F
	cmdReadUniqueID     byte = 0x4B
)

// Status register 1 bits.
const (
	statusBusy byte = 0x01
	statusWEL  byte = 0x02
)

// JEDEC identity. The capacity byte varies across the series and is
// reported, not enforced.
const (
	jedecManufacturerWinbond byte = 0xEF
	jedecMemoryTypeNOR       byte = 0x40
)

// Worst-case completion times from the datasheet, used as busy-poll
// deadlines.
const (
	timeoutPageProgram = 5 * time.Millisecond
	timeoutSectorErase = 500 * time.Millisecond
	timeoutBlockErase  = 2 * time.Second
	timeoutChipErase   = 100 * time.Second
	timeoutGeneral     = 100 * time.Millisecond

	pollInterval = time.Millisecond

	// Settle times after power-state and reset commands (tRES1, tDP,
	// tRST are all well under a millisecond).
	settleDelay = time.Millisecond
)
