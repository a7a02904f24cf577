package telemetry

import (
	"github.com/Neel20/moteus-imu-firmware/internal/imu"
)

// FaultSource exposes the sensor session's faulted state to the encoder
// without coupling it to the driver package.
type FaultSource interface {
	Faulted() bool
}

// Encoder answers ModeIMURaw queries with the latest published sample.
// It only ever reads the published side of the double buffer: a query
// never triggers a sensor read and never stalls waiting on the bus. It
// may run in a different goroutine than the control loop.
type Encoder struct {
	addr       byte
	buf        *imu.LatestBuffer
	faults     FaultSource
	now        func() uint32 // current control-loop tick
	staleAfter uint32        // ticks before a sample is flagged stale
	codec      Codec
}

// NewEncoder wires the encoder to the shared sample buffer. now supplies
// the current control-loop tick for staleness derivation.
func NewEncoder(addr byte, buf *imu.LatestBuffer, faults FaultSource, now func() uint32, staleAfter uint32, codec Codec) *Encoder {
	return &Encoder{
		addr:       addr,
		buf:        buf,
		faults:     faults,
		now:        now,
		staleAfter: staleAfter,
		codec:      codec,
	}
}

// Encode builds a complete ModeIMURaw response frame from the current
// published sample. With no sample published yet the payload carries
// zeroes and a cleared valid bit.
func (e *Encoder) Encode() []byte {
	s, ok := e.buf.Load()

	var status byte
	if ok && s.Valid {
		status |= StatusValid
	}
	if !ok || s.Age(e.now()) > e.staleAfter {
		status |= StatusStale
	}
	if e.faults != nil && e.faults.Faulted() {
		status |= StatusFaulted
	}

	return e.codec.Marshal(Frame{
		Addr:    e.addr,
		Mode:    ModeIMURaw,
		Payload: EncodeIMUPayload(s, status),
	})
}
