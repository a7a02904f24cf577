// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lsm6

// LSM6DSV16X register addresses and values used by the driver.
const (
	RegWhoAmI byte = 0x0F
	RegCtrl1  byte = 0x10 // accelerometer ODR + operating mode
	RegCtrl2  byte = 0x11 // gyroscope ODR + operating mode
	RegCtrl3  byte = 0x12 // BDU, IF_INC, SW_RESET
	RegCtrl6  byte = 0x15 // gyroscope full scale
	RegCtrl8  byte = 0x17 // accelerometer full scale
	RegStatus byte = 0x1E
	RegOutXLG byte = 0x22 // OUTX_L_G; gyro X..Z then accel X..Z, 12 bytes

	WhoAmIValue byte = 0x70

	// CTRL3: block data update + auto address increment
	ctrl3BDUIncr byte = 0x44

	// STATUS_REG data-available bits
	statusXLDA byte = 0x01
	statusGDA  byte = 0x02

	// OUTX_L_G..OUTZ_H_A burst length
	outBurstLen = 12
)

// odrBits maps output data rate in Hz to the ODR field of CTRL1/CTRL2
// (high-performance mode).
var odrBits = map[int]byte{
	15:   0x03,
	30:   0x04,
	60:   0x05,
	120:  0x06,
	240:  0x07,
	480:  0x08,
	960:  0x09,
	1920: 0x0A,
}

// ctrl6Value encodes the gyro full-scale range (0=±250 .. 3=±2000 dps).
func ctrl6Value(gyroRange byte) byte {
	return (gyroRange & 3) + 1
}

// ctrl8Value encodes the accel full-scale range (0=±2g .. 3=±16g).
func ctrl8Value(accelRange byte) byte {
	return accelRange & 3
}
