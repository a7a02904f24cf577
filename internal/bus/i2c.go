// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package bus

import (
	"fmt"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type result struct {
	data []byte
	err  error
}

// I2CTransactor drives a device on an I2C bus through periph.io. Each
// transaction runs in its own goroutine so that Start/Poll stay
// non-blocking regardless of how long the kernel holds the transfer.
type I2CTransactor struct {
	bus     i2c.BusCloser
	dev     *i2c.Dev
	pending chan result
}

// NewI2C opens the named I2C bus (empty string picks the first available)
// and targets the device at addr.
func NewI2C(busName string, addr uint16) (*I2CTransactor, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	b, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open I2C bus %q: %w", busName, err)
	}
	return &I2CTransactor{
		bus: b,
		dev: &i2c.Dev{Bus: b, Addr: addr},
	}, nil
}

func (t *I2CTransactor) StartWrite(reg, value byte) error {
	if t.pending != nil {
		return ErrBusy
	}
	ch := make(chan result, 1)
	t.pending = ch
	go func() {
		err := t.dev.Tx([]byte{reg, value}, nil)
		if err != nil {
			err = fmt.Errorf("%w: write reg 0x%02X: %v", ErrNack, reg, err)
		}
		ch <- result{err: err}
	}()
	return nil
}

func (t *I2CTransactor) StartRead(reg byte, n int) error {
	if t.pending != nil {
		return ErrBusy
	}
	ch := make(chan result, 1)
	t.pending = ch
	go func() {
		buf := make([]byte, n)
		err := t.dev.Tx([]byte{reg}, buf)
		if err != nil {
			err = fmt.Errorf("%w: read reg 0x%02X: %v", ErrNack, reg, err)
			buf = nil
		}
		ch <- result{data: buf, err: err}
	}()
	return nil
}

func (t *I2CTransactor) Poll() (bool, []byte, error) {
	if t.pending == nil {
		return true, nil, ErrNoPending
	}
	select {
	case res := <-t.pending:
		t.pending = nil
		return true, res.data, res.err
	default:
		return false, nil, nil
	}
}

func (t *I2CTransactor) Close() error {
	return t.bus.Close()
}
