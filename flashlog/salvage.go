package flashlog

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/pkg/errors"

	"github.com/stratotrack/sondelog/flash"
	"github.com/stratotrack/sondelog/log"
)

// Salvage scans the record area of a device directly, ignoring both
// header slots, and returns every record that validates, ordered by
// sequence. It is the read path of last resort for recovered flash
// images whose headers did not survive: records carry their own magic
// and CRC, so the data outlives the index. Sequence numbers restart
// after an EraseAll, so an image holding records from more than one
// log lifetime can yield duplicate sequences; all survivors are
// returned in sequence order.
//
// A device read failure stops the scan and returns the records
// collected so far along with the error.
func Salvage(dev flash.BlockDevice) ([]*Record, error) {
	if dev == nil {
		return nil, errors.Wrap(ErrParam, "nil device")
	}
	geo := dev.Geometry()
	if err := geo.Validate(); err != nil {
		return nil, errors.Wrapf(ErrParam, "%v", err)
	}

	var out []*Record
	buf := make([]byte, geo.SectorSize)
	for base := geo.SectorSize; base < geo.Size; base += geo.SectorSize {
		if err := dev.Read(base, buf); err != nil {
			return out, errors.Wrapf(ErrFlash, "reading sector at 0x%06x: %v", base, err)
		}
		for off := uint32(0); off+RecordSize <= geo.SectorSize; off += RecordSize {
			cell := buf[off : off+RecordSize]
			if binary.LittleEndian.Uint32(cell[0:4]) != RecordMagic {
				continue
			}
			rec := &Record{}
			if err := rec.UnmarshalBinary(cell); err != nil {
				continue
			}
			if !rec.Verify() {
				continue
			}
			out = append(out, rec)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Sequence < out[j].Sequence
	})
	log.Info(fmt.Sprintf("flashlog: salvage scan found %d valid records", len(out)))
	return out, nil
}
