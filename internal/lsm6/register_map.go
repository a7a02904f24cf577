// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lsm6

// BitField describes one field of a register for the debug tooling.
type BitField struct {
	Bits        string `json:"bits"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Values      string `json:"values,omitempty"`
}

// RegisterInfo is register metadata served to the register debug UI.
type RegisterInfo struct {
	Address     string     `json:"address"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Access      string     `json:"access"` // "R", "W", "RW"
	Default     string     `json:"default,omitempty"`
	BitFields   []BitField `json:"bit_fields,omitempty"`
}

// RegisterMap returns metadata for the LSM6DSV16X registers the firmware
// touches, plus the output registers, for the register debug tool.
func RegisterMap() []RegisterInfo {
	return []RegisterInfo{
		{Address: "0x0F", Name: "WHO_AM_I", Description: "Device ID (should be 0x70)", Access: "R", Default: "0x70"},
		{Address: "0x10", Name: "CTRL1", Description: "Accelerometer control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6:4", Name: "OP_MODE_XL", Description: "Accelerometer operating mode", Values: "0=High performance"},
				{Bits: "3:0", Name: "ODR_XL", Description: "Accelerometer output data rate", Values: "0=Off, 3=15Hz ... 10=1920Hz"},
			}},
		{Address: "0x11", Name: "CTRL2", Description: "Gyroscope control", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "6:4", Name: "OP_MODE_G", Description: "Gyroscope operating mode", Values: "0=High performance"},
				{Bits: "3:0", Name: "ODR_G", Description: "Gyroscope output data rate", Values: "0=Off, 3=15Hz ... 10=1920Hz"},
			}},
		{Address: "0x12", Name: "CTRL3", Description: "Control register 3", Access: "RW", Default: "0x04",
			BitFields: []BitField{
				{Bits: "7", Name: "BOOT", Description: "Reboot memory content", Values: "1=Reboot"},
				{Bits: "6", Name: "BDU", Description: "Block data update", Values: "0=Continuous, 1=Not updated until read"},
				{Bits: "2", Name: "IF_INC", Description: "Register address auto-increment", Values: "0=Disabled, 1=Enabled"},
				{Bits: "0", Name: "SW_RESET", Description: "Software reset", Values: "1=Reset"},
			}},
		{Address: "0x15", Name: "CTRL6", Description: "Gyroscope full scale", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "3:0", Name: "FS_G", Description: "Gyro full scale", Values: "1=±250°/s, 2=±500°/s, 3=±1000°/s, 4=±2000°/s"},
			}},
		{Address: "0x17", Name: "CTRL8", Description: "Accelerometer full scale", Access: "RW", Default: "0x00",
			BitFields: []BitField{
				{Bits: "1:0", Name: "FS_XL", Description: "Accel full scale", Values: "0=±2g, 1=±4g, 2=±8g, 3=±16g"},
			}},
		{Address: "0x1E", Name: "STATUS_REG", Description: "Data-ready status", Access: "R", Default: "0x00",
			BitFields: []BitField{
				{Bits: "0", Name: "XLDA", Description: "Accelerometer data available", Values: ""},
				{Bits: "1", Name: "GDA", Description: "Gyroscope data available", Values: ""},
				{Bits: "2", Name: "TDA", Description: "Temperature data available", Values: ""},
			}},

		// Output registers (little-endian pairs)
		{Address: "0x22", Name: "OUTX_L_G", Description: "Gyroscope X low byte", Access: "R"},
		{Address: "0x23", Name: "OUTX_H_G", Description: "Gyroscope X high byte", Access: "R"},
		{Address: "0x24", Name: "OUTY_L_G", Description: "Gyroscope Y low byte", Access: "R"},
		{Address: "0x25", Name: "OUTY_H_G", Description: "Gyroscope Y high byte", Access: "R"},
		{Address: "0x26", Name: "OUTZ_L_G", Description: "Gyroscope Z low byte", Access: "R"},
		{Address: "0x27", Name: "OUTZ_H_G", Description: "Gyroscope Z high byte", Access: "R"},
		{Address: "0x28", Name: "OUTX_L_A", Description: "Accelerometer X low byte", Access: "R"},
		{Address: "0x29", Name: "OUTX_H_A", Description: "Accelerometer X high byte", Access: "R"},
		{Address: "0x2A", Name: "OUTY_L_A", Description: "Accelerometer Y low byte", Access: "R"},
		{Address: "0x2B", Name: "OUTY_H_A", Description: "Accelerometer Y high byte", Access: "R"},
		{Address: "0x2C", Name: "OUTZ_L_A", Description: "Accelerometer Z low byte", Access: "R"},
		{Address: "0x2D", Name: "OUTZ_H_A", Description: "Accelerometer Z high byte", Access: "R"},
	}
}
