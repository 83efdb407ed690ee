// Package telemetry defines the sensor sample the flight computer
// assembles each cycle and the fixed-point encodings shared by the
// radio link and the flash record format.
package telemetry

import "math"

// coordScale is the full scale of the packed coordinate format: a
// latitude of +90 or longitude of +180 degrees encodes as 2^23-1.
const coordScale = 8388607

// Sample carries one cycle of sensor readings in natural units. The
// log engine serializes samples into records; it never reads sensors
// itself.
type Sample struct {
	Pressure     float32 // mbar
	Temperature  float32 // degrees C
	Humidity     float32 // percent RH
	Latitude     float64 // degrees, north positive
	Longitude    float64 // degrees, east positive
	AltitudeGPS  int16   // meters
	AltitudeBaro int16   // meters x10
	Satellites   uint8
	FixQuality   uint8
	HDOP         float32
	GNSSValid    bool
	Battery      float32 // volts
}

// LatitudeToBinary packs a latitude in degrees into the fixed-point
// wire format, saturating at +/-90 degrees.
func LatitudeToBinary(deg float64) int32 {
	return packCoordinate(deg, 90)
}

// BinaryToLatitude is the inverse of LatitudeToBinary.
func BinaryToLatitude(v int32) float64 {
	return float64(v) * 90 / coordScale
}

// LongitudeToBinary packs a longitude in degrees into the fixed-point
// wire format, saturating at +/-180 degrees.
func LongitudeToBinary(deg float64) int32 {
	return packCoordinate(deg, 180)
}

// BinaryToLongitude is the inverse of LongitudeToBinary.
func BinaryToLongitude(v int32) float64 {
	return float64(v) * 180 / coordScale
}

func packCoordinate(deg, fullScale float64) int32 {
	v := math.Round(deg * coordScale / fullScale)
	if v > coordScale {
		return coordScale
	}
	if v < -coordScale {
		return -coordScale
	}
	return int32(v)
}

// VoltsToMillivolts converts a battery voltage the way the firmware
// does: truncating toward zero, clamped to the uint16 range.
func VoltsToMillivolts(v float32) uint16 {
	mv := float64(v) * 1000
	if mv <= 0 {
		return 0
	}
	if mv >= math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(mv)
}

// MillivoltsToVolts is the inverse of VoltsToMillivolts.
func MillivoltsToVolts(mv uint16) float32 {
	return float32(mv) / 1000
}

// HDOPToBinary packs a horizontal dilution of precision into tenths,
// truncating, clamped to the uint8 range.
func HDOPToBinary(h float32) uint8 {
	v := float64(h) * 10
	if v <= 0 {
		return 0
	}
	if v >= math.MaxUint8 {
		return math.MaxUint8
	}
	return uint8(v)
}

// BinaryToHDOP is the inverse of HDOPToBinary.
func BinaryToHDOP(b uint8) float32 {
	return float32(b) / 10
}
