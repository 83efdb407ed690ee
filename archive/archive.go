// Package archive turns recovered flight logs into ground-side
// artifacts: CSV exports in natural units, raw flash images, and
// uploads to S3-compatible object storage.
package archive

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/pkg/errors"

	"github.com/stratotrack/sondelog/flash"
	"github.com/stratotrack/sondelog/flashlog"
)

// WriteCSV exports every readable record oldest first as CSV. Records
// that fail their checksum are skipped, not fatal; the skipped count
// tells the caller how many. Any other read error aborts the export.
func WriteCSV(w io.Writer, lg *flashlog.Log) (written int, skipped int, err error) {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader()); err != nil {
		return 0, 0, errors.Wrap(err, "archive: writing csv header")
	}
	available := lg.AvailableRecords()
	for i := available; i > 0; i-- {
		r, err := lg.ReadRecord(i - 1)
		if err != nil {
			if errors.Is(err, flashlog.ErrCRC) {
				skipped++
				continue
			}
			cw.Flush()
			return written, skipped, err
		}
		if err := cw.Write(csvRow(r)); err != nil {
			return written, skipped, errors.Wrap(err, "archive: writing csv row")
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, skipped, errors.Wrap(err, "archive: flushing csv")
	}
	return written, skipped, nil
}

// WriteSalvageCSV exports records found by a header-independent scan of
// the device, ordered by sequence. It is the export of last resort for
// images whose headers no longer decode. A read failure mid-scan still
// exports what was found before returning the error.
func WriteSalvageCSV(w io.Writer, dev flash.BlockDevice) (int, error) {
	records, salvageErr := flashlog.Salvage(dev)
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader()); err != nil {
		return 0, errors.Wrap(err, "archive: writing csv header")
	}
	written := 0
	for _, r := range records {
		if err := cw.Write(csvRow(r)); err != nil {
			return written, errors.Wrap(err, "archive: writing csv row")
		}
		written++
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return written, errors.Wrap(err, "archive: flushing csv")
	}
	return written, salvageErr
}

// WriteImage copies the raw device contents to w, sector by sector.
// The result reopens as a FileDevice or MemDevice with the same
// geometry.
func WriteImage(w io.Writer, dev flash.BlockDevice) (int64, error) {
	geo := dev.Geometry()
	buf := make([]byte, geo.SectorSize)
	var total int64
	for addr := uint32(0); addr < geo.Size; addr += geo.SectorSize {
		if err := dev.Read(addr, buf); err != nil {
			return total, errors.Wrapf(err, "archive: reading sector at 0x%06x", addr)
		}
		n, err := w.Write(buf)
		total += int64(n)
		if err != nil {
			return total, errors.Wrap(err, "archive: writing image")
		}
	}
	return total, nil
}

// SnapshotImage dumps the device to a temporary file and uploads it to
// remotePath on the store.
func SnapshotImage(store Store, dev flash.BlockDevice, remotePath string) error {
	f, err := os.CreateTemp("", "sondelog-image-*.bin")
	if err != nil {
		return errors.Wrap(err, "archive: creating image temp file")
	}
	defer os.Remove(f.Name())
	if _, err := WriteImage(f, dev); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return errors.Wrap(err, "archive: closing image temp file")
	}
	return store.Put(f.Name(), remotePath)
}

func csvHeader() []string {
	return []string{
		"sequence", "timestamp", "pressure_hpa", "temperature_c",
		"humidity_pct", "latitude_deg", "longitude_deg", "altitude_gps_m",
		"altitude_baro_m", "satellites", "fix_quality", "hdop",
		"gnss_valid", "battery_v", "flags",
	}
}

func csvRow(r *flashlog.Record) []string {
	s := r.Sample()
	return []string{
		strconv.FormatUint(uint64(r.Sequence), 10),
		strconv.FormatUint(uint64(r.Timestamp), 10),
		strconv.FormatFloat(float64(s.Pressure), 'f', -1, 32),
		strconv.FormatFloat(float64(s.Temperature), 'f', -1, 32),
		strconv.FormatFloat(float64(s.Humidity), 'f', -1, 32),
		strconv.FormatFloat(s.Latitude, 'f', 6, 64),
		strconv.FormatFloat(s.Longitude, 'f', 6, 64),
		strconv.FormatInt(int64(s.AltitudeGPS), 10),
		strconv.FormatInt(int64(s.AltitudeBaro), 10),
		strconv.FormatUint(uint64(s.Satellites), 10),
		strconv.FormatUint(uint64(s.FixQuality), 10),
		strconv.FormatFloat(float64(s.HDOP), 'f', 1, 32),
		strconv.FormatBool(s.GNSSValid),
		strconv.FormatFloat(float64(s.Battery), 'f', 3, 32),
		fmt.Sprintf("0x%02x", r.Flags),
	}
}
