package telemetry

import (
	"encoding/binary"

	"github.com/Neel20/moteus-imu-firmware/internal/imu"
)

// IMUPayloadLen is the fixed size of the ModeIMURaw payload. Receivers
// must reject a ModeIMURaw frame with any other declared length.
const IMUPayloadLen = 15

// Status bits carried in the last payload byte.
const (
	StatusValid   byte = 0x01 // sample comes from a completed, checked read
	StatusStale   byte = 0x02 // sample older than the staleness window
	StatusFaulted byte = 0x04 // sensor session is in the faulted state
)

// EncodeIMUPayload packs a sample into the fixed ModeIMURaw layout:
// ax, ay, az, gx, gy, gz as little-endian int16, seq as little-endian
// uint16, then the status byte.
func EncodeIMUPayload(s imu.Sample, status byte) []byte {
	p := make([]byte, IMUPayloadLen)
	binary.LittleEndian.PutUint16(p[0:2], uint16(s.Ax))
	binary.LittleEndian.PutUint16(p[2:4], uint16(s.Ay))
	binary.LittleEndian.PutUint16(p[4:6], uint16(s.Az))
	binary.LittleEndian.PutUint16(p[6:8], uint16(s.Gx))
	binary.LittleEndian.PutUint16(p[8:10], uint16(s.Gy))
	binary.LittleEndian.PutUint16(p[10:12], uint16(s.Gz))
	binary.LittleEndian.PutUint16(p[12:14], s.Seq)
	p[14] = status
	return p
}

// DecodeIMUPayload unpacks a ModeIMURaw payload. The tick timestamp does
// not cross the wire; age is judged host-side from the sequence counter.
func DecodeIMUPayload(p []byte) (imu.Sample, byte, error) {
	if len(p) != IMUPayloadLen {
		return imu.Sample{}, 0, ErrLength
	}
	status := p[14]
	s := imu.Sample{
		Ax:    int16(binary.LittleEndian.Uint16(p[0:2])),
		Ay:    int16(binary.LittleEndian.Uint16(p[2:4])),
		Az:    int16(binary.LittleEndian.Uint16(p[4:6])),
		Gx:    int16(binary.LittleEndian.Uint16(p[6:8])),
		Gy:    int16(binary.LittleEndian.Uint16(p[8:10])),
		Gz:    int16(binary.LittleEndian.Uint16(p[10:12])),
		Seq:   binary.LittleEndian.Uint16(p[12:14]),
		Valid: status&StatusValid != 0,
	}
	return s, status, nil
}
