package imu

// Scale factors for converting raw counts to physical units, per configured
// full-scale range. Raw counts go over the wire; conversion happens on the
// host only.

const gravity = 9.80665 // m/s² per g

// accelScales is g per LSB for ranges 0=±2g, 1=±4g, 2=±8g, 3=±16g.
var accelScales = [4]float64{0.000061, 0.000122, 0.000244, 0.000488}

// gyroScales is deg/s per LSB for ranges 0=±250, 1=±500, 2=±1000, 3=±2000 dps.
var gyroScales = [4]float64{0.00875, 0.0175, 0.035, 0.07}

// AccelScale returns m/s² per LSB for the given accelerometer range (0-3).
func AccelScale(rng byte) float64 {
	return accelScales[rng&3] * gravity
}

// GyroScale returns deg/s per LSB for the given gyroscope range (0-3).
func GyroScale(rng byte) float64 {
	return gyroScales[rng&3]
}

// Physical is a sample converted to SI-ish units: accel in m/s², gyro in deg/s.
type Physical struct {
	Ax float64 `json:"ax_ms2"`
	Ay float64 `json:"ay_ms2"`
	Az float64 `json:"az_ms2"`

	Gx float64 `json:"gx_dps"`
	Gy float64 `json:"gy_dps"`
	Gz float64 `json:"gz_dps"`

	Seq uint16 `json:"seq"`
}

// Convert applies the range-dependent scale factors to a raw sample.
func Convert(s Sample, accelRange, gyroRange byte) Physical {
	as := AccelScale(accelRange)
	gs := GyroScale(gyroRange)
	return Physical{
		Ax: float64(s.Ax) * as,
		Ay: float64(s.Ay) * as,
		Az: float64(s.Az) * as,
		Gx: float64(s.Gx) * gs,
		Gy: float64(s.Gy) * gs,
		Gz: float64(s.Gz) * gs,
		Seq: s.Seq,
	}
}
