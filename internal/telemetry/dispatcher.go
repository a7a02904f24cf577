package telemetry

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// MotorTelemetry supplies the pre-existing motor telemetry modes. The
// motor control algorithms themselves live outside this module; the
// dispatcher only reads their published values.
type MotorTelemetry interface {
	Position() float32 // revolutions
	Velocity() float32 // rev/s
	Torque() float32   // N·m
}

// ErrUnknownMode reports a query for a mode this controller does not serve.
var ErrUnknownMode = errors.New("telemetry: unknown mode")

// Dispatcher routes incoming query frames to the per-mode encoders and
// produces response frames. It runs in the bus service context, not the
// control loop.
type Dispatcher struct {
	addr  byte
	codec Codec
	imu   *Encoder
	motor MotorTelemetry
}

// NewDispatcher serves queries addressed to addr. motor may be nil on a
// build without motor telemetry wired in; those modes then report unknown.
func NewDispatcher(addr byte, codec Codec, imu *Encoder, motor MotorTelemetry) *Dispatcher {
	return &Dispatcher{addr: addr, codec: codec, imu: imu, motor: motor}
}

// Handle parses one raw query frame and returns the response frame.
// Frames addressed to another controller return (nil, nil) and must be
// ignored, not answered. Malformed frames and unknown modes return an
// error and no response.
func (d *Dispatcher) Handle(raw []byte) ([]byte, error) {
	q, err := d.codec.Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	return d.HandleFrame(q)
}

// HandleFrame answers an already-parsed query frame.
func (d *Dispatcher) HandleFrame(q Frame) ([]byte, error) {
	if q.Addr != d.addr {
		return nil, nil
	}
	switch q.Mode {
	case ModeIMURaw:
		return d.imu.Encode(), nil
	case ModePosition:
		return d.motorResponse(q.Mode, MotorTelemetry.Position)
	case ModeVelocity:
		return d.motorResponse(q.Mode, MotorTelemetry.Velocity)
	case ModeTorque:
		return d.motorResponse(q.Mode, MotorTelemetry.Torque)
	default:
		return nil, fmt.Errorf("%w: 0x%02X", ErrUnknownMode, q.Mode)
	}
}

func (d *Dispatcher) motorResponse(mode byte, get func(MotorTelemetry) float32) ([]byte, error) {
	if d.motor == nil {
		return nil, fmt.Errorf("%w: 0x%02X (no motor telemetry)", ErrUnknownMode, mode)
	}
	p := make([]byte, 4)
	binary.LittleEndian.PutUint32(p, math.Float32bits(get(d.motor)))
	return d.codec.Marshal(Frame{Addr: d.addr, Mode: mode, Payload: p}), nil
}
