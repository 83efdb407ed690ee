// Package flashlog implements a power-safe append-only record log over
// NOR flash, bit-compatible with the radiosonde flight firmware.
//
// Fixed 64-byte records fill a circular region starting at sector 1;
// sector 0 holds two alternately written header copies whose sequence
// numbers decide, after a restart, which one describes the last fully
// committed state. A record is always durably written before any
// header references it, so an abrupt power cut loses at most the
// records written since the last header commit and never produces a
// state recovery cannot handle: torn records fail their CRC and read
// back as never written.
package flashlog

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/stratotrack/sondelog/flash"
	"github.com/stratotrack/sondelog/log"
	"github.com/stratotrack/sondelog/telemetry"
)

// Stats summarizes the engine counters. Capacity and Used count
// records currently retrievable; Free counts writes left before the
// buffer begins overwriting itself (zero once it has).
type Stats struct {
	Capacity uint32
	Used     uint32
	Free     uint32
	Wrapped  bool
}

// Log is the flash log engine. It owns the write cursor and counter
// state for one device region and assumes exclusive ownership of that
// device. Operations are serialized internally, but the semantics
// assume a single caller.
type Log struct {
	mtx sync.Mutex
	dev flash.BlockDevice
	geo flash.Geometry
	cfg Config

	dataStart  uint32
	dataEnd    uint32
	maxRecords uint32

	writeAddr   uint32
	oldestAddr  uint32
	recordCount uint32
	nextSeq     uint32
	activeSlot  uint8
	initialized bool
}

// Open recovers the log state from the device's header slots and
// returns a ready engine. With no valid header on flash (first boot or
// a wiped chip), it initializes an empty log, erasing sector 0 and
// committing a fresh header. cfg may be nil for defaults.
func Open(dev flash.BlockDevice, cfg *Config) (*Log, error) {
	if dev == nil {
		return nil, errors.Wrap(ErrParam, "nil device")
	}
	geo := dev.Geometry()
	if err := geo.Validate(); err != nil {
		return nil, errors.Wrapf(ErrParam, "%v", err)
	}
	if headerAddrB+headerSize > geo.SectorSize {
		return nil, errors.Wrapf(ErrParam, "sector size %d cannot hold both header slots", geo.SectorSize)
	}
	if geo.SectorSize%RecordSize != 0 {
		return nil, errors.Wrapf(ErrParam, "sector size %d not a multiple of the record size", geo.SectorSize)
	}

	l := &Log{
		dev:        dev,
		geo:        geo,
		dataStart:  geo.SectorSize,
		dataEnd:    geo.Size,
		maxRecords: (geo.Size - geo.SectorSize) / RecordSize,
	}
	if cfg != nil {
		l.cfg = *cfg
	}
	l.cfg = l.cfg.withDefaults()

	ha, validA, err := l.readHeader(0)
	if err != nil {
		return nil, err
	}
	hb, validB, err := l.readHeader(1)
	if err != nil {
		return nil, err
	}

	switch {
	case validA && validB:
		// Higher sequence is the more recent commit; slot A wins ties.
		if ha.sequence >= hb.sequence {
			l.adopt(ha, 0)
		} else {
			l.adopt(hb, 1)
		}
	case validA:
		l.adopt(ha, 0)
	case validB:
		l.adopt(hb, 1)
	default:
		// First-ever boot or both slots lost: start empty.
		l.writeAddr = l.dataStart
		l.recordCount = 0
		l.oldestAddr = l.dataStart
		l.activeSlot = 0
		if err := dev.EraseSector(0); err != nil {
			return nil, errors.Wrapf(ErrFlash, "erasing header sector: %v", err)
		}
		if err := l.commitHeader(); err != nil {
			return nil, err
		}
		log.Info("flashlog: no valid header, initialized empty log")
	}

	l.nextSeq = l.recordCount
	l.initialized = true
	if validA || validB {
		log.Info(fmt.Sprintf("flashlog: recovered slot=%d records=%d write_addr=0x%06x",
			l.activeSlot, l.recordCount, l.writeAddr))
	}
	return l, nil
}

func (l *Log) adopt(h *header, slot uint8) {
	l.writeAddr = h.writeAddr
	l.recordCount = h.recordCount
	l.oldestAddr = h.oldestAddr
	l.activeSlot = slot
}

func (l *Log) readHeader(slot uint8) (*header, bool, error) {
	buf := make([]byte, headerSize)
	if err := l.dev.Read(headerAddr(slot), buf); err != nil {
		return nil, false, errors.Wrapf(ErrFlash, "reading header slot %d: %v", slot, err)
	}
	h := &header{}
	if err := h.unmarshal(buf); err != nil {
		return nil, false, err
	}
	return h, h.valid(), nil
}

// commitHeader durably records the current counters, alternating
// between the two slots. The slot is toggled first so the previous
// commit stays untouched while the new one is being programmed.
func (l *Log) commitHeader() error {
	h := &header{
		magic:       headerMagic,
		version:     headerVersion,
		writeAddr:   l.writeAddr,
		recordCount: l.recordCount,
		sequence:    l.recordCount,
		oldestAddr:  l.oldestAddr,
	}
	h.seal()
	l.activeSlot ^= 1
	if err := l.dev.Write(headerAddr(l.activeSlot), h.marshal()); err != nil {
		return errors.Wrapf(ErrFlash, "committing header to slot %d: %v", l.activeSlot, err)
	}
	log.Debug(fmt.Sprintf("flashlog: header commit slot=%d sequence=%d", l.activeSlot, h.sequence))
	return nil
}

// WriteRecord serializes the sample into the next record slot. The
// record is on flash before any counter moves; on failure the engine
// state is exactly what it was before the call.
func (l *Log) WriteRecord(sample *telemetry.Sample, timestamp uint32) error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return ErrInit
	}
	if sample == nil {
		return errors.Wrap(ErrParam, "nil sample")
	}
	if l.cfg.DisableWrap && l.recordCount >= l.maxRecords {
		return errors.Wrapf(ErrFull, "%d records", l.recordCount)
	}

	if err := l.eraseSectorIfNeeded(l.writeAddr); err != nil {
		return err
	}

	rec := NewRecord(sample, l.nextSeq, timestamp)
	buf, _ := rec.MarshalBinary()
	if err := l.dev.Write(l.writeAddr, buf); err != nil {
		return errors.Wrapf(ErrFlash, "writing record %d at 0x%06x: %v", rec.Sequence, l.writeAddr, err)
	}

	l.nextSeq++
	l.writeAddr += RecordSize
	l.recordCount++
	if l.writeAddr >= l.dataEnd {
		l.writeAddr = l.dataStart
	}
	if l.recordCount > l.maxRecords {
		l.oldestAddr = l.writeAddr
	}

	if l.recordCount%l.cfg.HeaderSyncInterval == 0 {
		return l.commitHeader()
	}
	return nil
}

// eraseSectorIfNeeded erases the sector the cursor is entering. Only
// addresses exactly at a sector start trigger an erase, so each sector
// is erased once per pass, right before its first record.
func (l *Log) eraseSectorIfNeeded(addr uint32) error {
	if addr%l.geo.SectorSize != 0 {
		return nil
	}
	if err := l.dev.EraseSector(addr); err != nil {
		return errors.Wrapf(ErrFlash, "erasing sector at 0x%06x: %v", addr, err)
	}
	return nil
}

// ReadRecord returns the record offset positions before the newest:
// offset 0 is the most recently written record, offset 1 the one
// before it, and so on through the available records.
func (l *Log) ReadRecord(offset uint32) (*Record, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.readRecordLocked(offset)
}

func (l *Log) readRecordLocked(offset uint32) (*Record, error) {
	if !l.initialized {
		return nil, ErrInit
	}
	available := l.availableLocked()
	if offset >= available {
		return nil, errors.Wrapf(ErrEmpty, "offset %d with %d records available", offset, available)
	}
	index := l.nextSeq - 1 - offset
	addr := l.recordAddr(index)
	buf := make([]byte, RecordSize)
	if err := l.dev.Read(addr, buf); err != nil {
		return nil, errors.Wrapf(ErrFlash, "reading record at 0x%06x: %v", addr, err)
	}
	rec := &Record{}
	if err := rec.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	if !rec.Verify() {
		return nil, errors.Wrapf(ErrCRC, "record at 0x%06x", addr)
	}
	return rec, nil
}

// recordAddr maps a record sequence number to its flash address.
func (l *Log) recordAddr(index uint32) uint32 {
	return l.dataStart + (index%l.maxRecords)*RecordSize
}

// ReadRecords reads up to maxCount records newest-first beginning at
// startOffset. It stops at the end of the available records or at the
// first failure, returning the records read so far together with the
// error; it does not skip past a corrupt record.
func (l *Log) ReadRecords(maxCount, startOffset uint32) ([]*Record, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return nil, ErrInit
	}
	available := l.availableLocked()
	if startOffset >= available {
		return nil, errors.Wrapf(ErrEmpty, "offset %d with %d records available", startOffset, available)
	}
	var out []*Record
	for i := uint32(0); i < maxCount; i++ {
		offset := startOffset + i
		if offset >= available {
			break
		}
		rec, err := l.readRecordLocked(offset)
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// EraseAll erases every sector of the device and commits a fresh empty
// header. This is a maintenance operation: on real hardware it runs
// for seconds and there is no partial-erase recovery, only the safe
// fallback of the next Open finding no valid header.
func (l *Log) EraseAll() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return ErrInit
	}
	sectors := l.geo.SectorCount()
	log.Info(fmt.Sprintf("flashlog: erasing all %d sectors", sectors))
	for s := uint32(0); s < sectors; s++ {
		if err := l.dev.EraseSector(s * l.geo.SectorSize); err != nil {
			return errors.Wrapf(ErrFlash, "erasing sector %d: %v", s, err)
		}
	}
	l.writeAddr = l.dataStart
	l.recordCount = 0
	l.oldestAddr = l.dataStart
	l.nextSeq = 0
	l.activeSlot = 0
	return l.commitHeader()
}

// SyncHeader forces a header commit now instead of waiting for the
// periodic interval.
func (l *Log) SyncHeader() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return ErrInit
	}
	return l.commitHeader()
}

// Close commits the header a final time and marks the log unusable.
// Further operations fail with ErrInit.
func (l *Log) Close() error {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return ErrInit
	}
	err := l.commitHeader()
	l.initialized = false
	return err
}

// RecordCount returns the lifetime number of records written, which
// can exceed the capacity once the buffer has wrapped. Zero after
// Close.
func (l *Log) RecordCount() uint32 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return 0
	}
	return l.recordCount
}

// AvailableRecords returns how many records ReadRecord can currently
// reach.
func (l *Log) AvailableRecords() uint32 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return 0
	}
	return l.availableLocked()
}

func (l *Log) availableLocked() uint32 {
	if l.recordCount <= l.maxRecords {
		return l.recordCount
	}
	return l.maxRecords
}

// HasWrapped reports whether the buffer has begun overwriting its
// oldest records.
func (l *Log) HasWrapped() bool {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return false
	}
	return l.recordCount > l.maxRecords
}

// Stats returns the capacity accounting for the log.
func (l *Log) Stats() (Stats, error) {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if !l.initialized {
		return Stats{}, ErrInit
	}
	st := Stats{
		Capacity: l.maxRecords,
		Used:     l.availableLocked(),
		Wrapped:  l.recordCount > l.maxRecords,
	}
	if l.recordCount < l.maxRecords {
		st.Free = l.maxRecords - l.recordCount
	}
	return st, nil
}
