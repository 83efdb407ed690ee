package flashlog

import (
	"encoding/binary"
	"math"

	"github.com/pkg/errors"

	"github.com/stratotrack/sondelog/telemetry"
)

const (
	// RecordMagic tags every valid record on flash.
	RecordMagic uint32 = 0xFEEDDA7A
	// RecordSize is the fixed encoded size of a record.
	RecordSize = 64

	recordCRCOffset = 60
)

// Record is one telemetry entry in its stored form. All multi-byte
// fields encode little-endian at fixed offsets; the layout is frozen
// so images written by the flight firmware decode here unchanged.
type Record struct {
	Magic       uint32
	Sequence    uint32
	Timestamp   uint32
	Pressure    float32
	Temperature float32
	Humidity    float32
	Latitude    int32
	Longitude   int32
	AltitudeGPS int16
	AltitudeBar int16
	Satellites  uint8
	FixQuality  uint8
	HDOPx10     uint8
	GNSSValid   uint8
	BatteryMV   uint16
	Flags       uint8
	CRC         uint32

	// Reserved regions are kept so a decode/encode round trip is
	// byte-exact even for images from newer firmware.
	reserved1 byte
	reserved2 byte
	reserved3 byte
	reserved  [14]byte
}

// NewRecord serializes a telemetry sample into a sealed record carrying
// the given sequence number and timestamp.
func NewRecord(s *telemetry.Sample, sequence, timestamp uint32) *Record {
	r := &Record{
		Magic:       RecordMagic,
		Sequence:    sequence,
		Timestamp:   timestamp,
		Pressure:    s.Pressure,
		Temperature: s.Temperature,
		Humidity:    s.Humidity,
		Latitude:    telemetry.LatitudeToBinary(s.Latitude),
		Longitude:   telemetry.LongitudeToBinary(s.Longitude),
		AltitudeGPS: s.AltitudeGPS,
		AltitudeBar: s.AltitudeBaro,
		Satellites:  s.Satellites,
		FixQuality:  s.FixQuality,
		HDOPx10:     telemetry.HDOPToBinary(s.HDOP),
		BatteryMV:   telemetry.VoltsToMillivolts(s.Battery),
	}
	if s.GNSSValid {
		r.GNSSValid = 1
	}
	r.seal()
	return r
}

// MarshalBinary encodes the record into its fixed 64-byte layout.
func (r *Record) MarshalBinary() ([]byte, error) {
	b := make([]byte, RecordSize)
	binary.LittleEndian.PutUint32(b[0:4], r.Magic)
	binary.LittleEndian.PutUint32(b[4:8], r.Sequence)
	binary.LittleEndian.PutUint32(b[8:12], r.Timestamp)
	binary.LittleEndian.PutUint32(b[12:16], math.Float32bits(r.Pressure))
	binary.LittleEndian.PutUint32(b[16:20], math.Float32bits(r.Temperature))
	binary.LittleEndian.PutUint32(b[20:24], math.Float32bits(r.Humidity))
	binary.LittleEndian.PutUint32(b[24:28], uint32(r.Latitude))
	binary.LittleEndian.PutUint32(b[28:32], uint32(r.Longitude))
	binary.LittleEndian.PutUint16(b[32:34], uint16(r.AltitudeGPS))
	binary.LittleEndian.PutUint16(b[34:36], uint16(r.AltitudeBar))
	b[36] = r.Satellites
	b[37] = r.FixQuality
	b[38] = r.HDOPx10
	b[39] = r.GNSSValid
	b[40] = r.reserved1
	b[41] = r.reserved2
	binary.LittleEndian.PutUint16(b[42:44], r.BatteryMV)
	b[44] = r.Flags
	b[45] = r.reserved3
	copy(b[46:recordCRCOffset], r.reserved[:])
	binary.LittleEndian.PutUint32(b[recordCRCOffset:RecordSize], r.CRC)
	return b, nil
}

// UnmarshalBinary decodes a 64-byte stored record. It does not check
// validity; use Verify to tell a genuine record from erased or torn
// flash.
func (r *Record) UnmarshalBinary(b []byte) error {
	if len(b) < RecordSize {
		return errors.Wrapf(ErrParam, "record needs %d bytes, got %d", RecordSize, len(b))
	}
	r.Magic = binary.LittleEndian.Uint32(b[0:4])
	r.Sequence = binary.LittleEndian.Uint32(b[4:8])
	r.Timestamp = binary.LittleEndian.Uint32(b[8:12])
	r.Pressure = math.Float32frombits(binary.LittleEndian.Uint32(b[12:16]))
	r.Temperature = math.Float32frombits(binary.LittleEndian.Uint32(b[16:20]))
	r.Humidity = math.Float32frombits(binary.LittleEndian.Uint32(b[20:24]))
	r.Latitude = int32(binary.LittleEndian.Uint32(b[24:28]))
	r.Longitude = int32(binary.LittleEndian.Uint32(b[28:32]))
	r.AltitudeGPS = int16(binary.LittleEndian.Uint16(b[32:34]))
	r.AltitudeBar = int16(binary.LittleEndian.Uint16(b[34:36]))
	r.Satellites = b[36]
	r.FixQuality = b[37]
	r.HDOPx10 = b[38]
	r.GNSSValid = b[39]
	r.reserved1 = b[40]
	r.reserved2 = b[41]
	r.BatteryMV = binary.LittleEndian.Uint16(b[42:44])
	r.Flags = b[44]
	r.reserved3 = b[45]
	copy(r.reserved[:], b[46:recordCRCOffset])
	r.CRC = binary.LittleEndian.Uint32(b[recordCRCOffset:RecordSize])
	return nil
}

// Verify reports whether the record carries the record magic and a CRC
// matching its first 60 encoded bytes.
func (r *Record) Verify() bool {
	if r.Magic != RecordMagic {
		return false
	}
	b, _ := r.MarshalBinary()
	return Checksum(b[:recordCRCOffset]) == r.CRC
}

// seal computes and stores the CRC over the encoded payload.
func (r *Record) seal() {
	b, _ := r.MarshalBinary()
	r.CRC = Checksum(b[:recordCRCOffset])
}

// Sample decodes the stored fields back into natural units.
func (r *Record) Sample() telemetry.Sample {
	return telemetry.Sample{
		Pressure:     r.Pressure,
		Temperature:  r.Temperature,
		Humidity:     r.Humidity,
		Latitude:     telemetry.BinaryToLatitude(r.Latitude),
		Longitude:    telemetry.BinaryToLongitude(r.Longitude),
		AltitudeGPS:  r.AltitudeGPS,
		AltitudeBaro: r.AltitudeBar,
		Satellites:   r.Satellites,
		FixQuality:   r.FixQuality,
		HDOP:         telemetry.BinaryToHDOP(r.HDOPx10),
		GNSSValid:    r.GNSSValid != 0,
		Battery:      telemetry.MillivoltsToVolts(r.BatteryMV),
	}
}
