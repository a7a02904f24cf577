package bus

import (
	"errors"
	"time"
)

// Transactor models one in-flight register transaction on the shared sensor
// bus. The real-time path never blocks on I/O: a transaction is started on
// one control-loop tick and polled for completion on later ticks. At most
// one transaction may be in flight per transactor.
type Transactor interface {
	// StartWrite begins writing value to a device register.
	// Returns ErrBusy if a transaction is already in flight.
	StartWrite(reg, value byte) error

	// StartRead begins reading n bytes starting at reg.
	// Returns ErrBusy if a transaction is already in flight.
	StartRead(reg byte, n int) error

	// Poll checks the in-flight transaction without blocking.
	// done is false while the transaction is still pending. When done,
	// data holds the read bytes (nil for writes) and err reports a bus
	// fault such as ErrNack. Poll after completion returns ErrNoPending.
	Poll() (done bool, data []byte, err error)
}

var (
	ErrBusy      = errors.New("bus: transaction already in flight")
	ErrNack      = errors.New("bus: device did not acknowledge")
	ErrNoPending = errors.New("bus: no transaction in flight")
)

// ReadReg runs a register read to completion by busy-polling.
// Blocking; for setup and debug paths only, never the control loop.
func ReadReg(t Transactor, reg byte, n int) ([]byte, error) {
	if err := t.StartRead(reg, n); err != nil {
		return nil, err
	}
	return await(t)
}

// WriteReg runs a register write to completion by busy-polling.
// Blocking; for setup and debug paths only, never the control loop.
func WriteReg(t Transactor, reg, value byte) error {
	if err := t.StartWrite(reg, value); err != nil {
		return err
	}
	_, err := await(t)
	return err
}

func await(t Transactor) ([]byte, error) {
	for {
		done, data, err := t.Poll()
		if done {
			return data, err
		}
		time.Sleep(100 * time.Microsecond)
	}
}
