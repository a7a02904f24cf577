// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package telemetry

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// Telemetry mode identifiers. A mode selects which payload a
// query/response frame carries. The motor modes predate the IMU work and
// keep their layouts; ModeIMURaw is the reserved new value. Changing a
// payload layout requires a new mode id, never a resize of an existing one.
const (
	ModePosition byte = 0x01 // float32 LE, revolutions
	ModeVelocity byte = 0x02 // float32 LE, rev/s
	ModeTorque   byte = 0x03 // float32 LE, N·m
	ModeIMURaw   byte = 0x05 // see EncodeIMUPayload
)

// SyncByte opens every frame on the wire.
const SyncByte byte = 0xA5

const (
	headerLen     = 4 // sync, addr, mode, len
	crcLen        = 2
	maxPayloadLen = 255
)

var (
	ErrBadSync  = errors.New("telemetry: bad sync byte")
	ErrShort    = errors.New("telemetry: frame truncated")
	ErrChecksum = errors.New("telemetry: checksum mismatch")
	ErrLength   = errors.New("telemetry: declared length mismatch")
)

// Frame is one envelope on the command/response bus: a target address, a
// mode id and the mode's payload. A query is a frame with an empty payload.
type Frame struct {
	Addr    byte
	Mode    byte
	Payload []byte
}

// ChecksumFunc computes the envelope checksum over addr, mode, len and
// payload. The deployed bus dictates the algorithm; the codec carries it
// as a parameter so the frame layout code stays independent of it.
type ChecksumFunc func([]byte) uint16

// CRC16CCITT is the default envelope checksum (poly 0x1021, init 0).
func CRC16CCITT(data []byte) uint16 {
	var crc uint16
	for _, b := range data {
		crc ^= uint16(b) << 8
		for i := 0; i < 8; i++ {
			tmp := crc << 1
			if crc&0x8000 != 0 {
				tmp ^= 0x1021
			}
			crc = tmp
		}
	}
	return crc
}

// Codec marshals and unmarshals envelope frames:
//
//	<sync> <addr> <mode> <len> <payload...> <crc_hi> <crc_lo>
//
// The checksum covers addr through the last payload byte.
type Codec struct {
	Checksum ChecksumFunc
}

// NewCodec returns a codec with the default CRC-16/CCITT checksum.
func NewCodec() Codec {
	return Codec{Checksum: CRC16CCITT}
}

// Marshal serializes a frame.
func (c Codec) Marshal(f Frame) []byte {
	if len(f.Payload) > maxPayloadLen {
		panic(fmt.Sprintf("telemetry: payload %d exceeds %d bytes", len(f.Payload), maxPayloadLen))
	}
	out := make([]byte, 0, headerLen+len(f.Payload)+crcLen)
	out = append(out, SyncByte, f.Addr, f.Mode, byte(len(f.Payload)))
	out = append(out, f.Payload...)
	crc := c.Checksum(out[1:])
	out = append(out, byte(crc>>8), byte(crc))
	return out
}

// Unmarshal parses exactly one frame from b. The whole buffer must be
// consumed; trailing bytes fail with ErrLength.
func (c Codec) Unmarshal(b []byte) (Frame, error) {
	if len(b) < headerLen+crcLen {
		return Frame{}, ErrShort
	}
	if b[0] != SyncByte {
		return Frame{}, ErrBadSync
	}
	n := int(b[3])
	if len(b) != headerLen+n+crcLen {
		return Frame{}, ErrLength
	}
	want := uint16(b[headerLen+n])<<8 | uint16(b[headerLen+n+1])
	if got := c.Checksum(b[1 : headerLen+n]); got != want {
		return Frame{}, ErrChecksum
	}
	f := Frame{Addr: b[1], Mode: b[2]}
	if n > 0 {
		f.Payload = make([]byte, n)
		copy(f.Payload, b[headerLen:headerLen+n])
	}
	return f, nil
}

// ReadFrame scans r for the next sync byte and reads one complete frame.
// Bytes before the sync are discarded. Blocking; used by the controller's
// bus service goroutine, never the control loop.
func (c Codec) ReadFrame(r *bufio.Reader) (Frame, error) {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == SyncByte {
			break
		}
	}
	hdr := make([]byte, headerLen-1) // addr, mode, len
	if _, err := io.ReadFull(r, hdr); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrShort, err)
	}
	rest := make([]byte, int(hdr[2])+crcLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrShort, err)
	}
	raw := make([]byte, 0, headerLen+len(rest))
	raw = append(raw, SyncByte)
	raw = append(raw, hdr...)
	raw = append(raw, rest...)
	return c.Unmarshal(raw)
}
