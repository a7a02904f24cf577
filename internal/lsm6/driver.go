// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package lsm6

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync/atomic"

	"github.com/Neel20/moteus-imu-firmware/internal/bus"
	"github.com/Neel20/moteus-imu-firmware/internal/imu"
)

// State is the sensor session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateConfiguring
	StateStreaming
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConfiguring:
		return "configuring"
	case StateStreaming:
		return "streaming"
	case StateFaulted:
		return "faulted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Config is the sensor session configuration, supplied once at Initialize.
type Config struct {
	ODRHz      int  // output data rate, must be a supported rate
	AccelRange byte // 0=±2g, 1=±4g, 2=±8g, 3=±16g
	GyroRange  byte // 0=±250°/s, 1=±500°/s, 2=±1000°/s, 3=±2000°/s

	InitRetries    int // attempts per configuration step before Faulted (default 3)
	FaultThreshold int // consecutive read faults before Faulted (default 5)
}

func (c *Config) applyDefaults() {
	if c.InitRetries == 0 {
		c.InitRetries = 3
	}
	if c.FaultThreshold == 0 {
		c.FaultThreshold = 5
	}
}

func (c *Config) validate() error {
	if _, ok := odrBits[c.ODRHz]; !ok {
		return fmt.Errorf("lsm6: unsupported ODR %d Hz", c.ODRHz)
	}
	if c.AccelRange > 3 {
		return fmt.Errorf("lsm6: accel range must be 0-3, got %d", c.AccelRange)
	}
	if c.GyroRange > 3 {
		return fmt.Errorf("lsm6: gyro range must be 0-3, got %d", c.GyroRange)
	}
	return nil
}

// configStep is one register access of the initialization sequence.
// A read step compares the result against val instead of writing.
type configStep struct {
	read bool
	reg  byte
	val  byte
}

// readPhase tracks the streaming state machine across ticks. Each phase
// costs exactly one bus operation per Advance call.
type readPhase int

const (
	phaseIdle readPhase = iota
	phaseStatusWait
	phaseDataStart
	phaseDataWait
)

// Driver owns the physical sensor session and drives it forward one bus
// operation at a time. The control loop is the only caller of Advance;
// everything here runs in that single context. Completed samples are
// published to the shared LatestBuffer.
type Driver struct {
	tr  bus.Transactor
	buf *imu.LatestBuffer
	cfg Config

	// state is read concurrently by the telemetry path (Faulted is
	// called from the bus service goroutine), so it lives behind an
	// atomic. All transitions happen in the loop context.
	state atomic.Int32

	// configuration progress
	steps    []configStep
	stepIdx  int
	attempts int
	inFlight bool

	// streaming progress
	phase             readPhase
	seq               uint16
	consecutiveFaults int

	samples  uint64
	faultTot uint64
}

// New creates a driver over the given transactor. The LatestBuffer is
// shared with the telemetry encoder; the driver is its only writer.
func New(tr bus.Transactor, buf *imu.LatestBuffer) *Driver {
	return &Driver{tr: tr, buf: buf}
}

// Initialize records the configuration and begins the setup sequence.
// The register writes themselves are issued by subsequent Advance calls,
// one bus operation per tick.
func (d *Driver) Initialize(cfg Config) error {
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return err
	}
	d.cfg = cfg
	d.steps = []configStep{
		{read: true, reg: RegWhoAmI, val: WhoAmIValue},
		{reg: RegCtrl3, val: ctrl3BDUIncr},
		{reg: RegCtrl6, val: ctrl6Value(cfg.GyroRange)},
		{reg: RegCtrl8, val: ctrl8Value(cfg.AccelRange)},
		{reg: RegCtrl2, val: odrBits[cfg.ODRHz]},
		{reg: RegCtrl1, val: odrBits[cfg.ODRHz]},
	}
	d.stepIdx = 0
	d.attempts = 0
	d.inFlight = false
	d.phase = phaseIdle
	d.consecutiveFaults = 0
	d.state.Store(int32(StateConfiguring))
	log.Printf("lsm6: configuring (odr=%dHz accel=±%dg gyro=±%d°/s)",
		cfg.ODRHz, []int{2, 4, 8, 16}[cfg.AccelRange], []int{250, 500, 1000, 2000}[cfg.GyroRange])
	return nil
}

// Reinitialize resets a faulted session and re-runs the setup sequence
// with the original configuration. Called from the fault-recovery path.
func (d *Driver) Reinitialize() error {
	d.state.Store(int32(StateUninitialized))
	return d.Initialize(d.cfg)
}

// Advance is called exactly once per control-loop tick. It performs at
// most one bus operation (start a read or write, or poll completion) and
// returns immediately. Faults never propagate to the caller; they only
// move the session state.
func (d *Driver) Advance(tick uint32) {
	switch d.State() {
	case StateConfiguring:
		d.advanceConfig()
	case StateStreaming:
		d.advanceStream(tick)
	}
	// Uninitialized and Faulted issue nothing until (re)initialized.
}

// State reports the current session state.
func (d *Driver) State() State { return State(d.state.Load()) }

// Faulted reports whether the session requires Reinitialize to resume.
func (d *Driver) Faulted() bool { return d.State() == StateFaulted }

// ConsecutiveFaults reports the current run of failed reads.
func (d *Driver) ConsecutiveFaults() int { return d.consecutiveFaults }

// Samples reports the total number of published samples.
func (d *Driver) Samples() uint64 { return d.samples }

func (d *Driver) advanceConfig() {
	st := d.steps[d.stepIdx]
	if !d.inFlight {
		var err error
		if st.read {
			err = d.tr.StartRead(st.reg, 1)
		} else {
			err = d.tr.StartWrite(st.reg, st.val)
		}
		if err != nil {
			d.configFault(fmt.Errorf("start reg 0x%02X: %w", st.reg, err))
			return
		}
		d.inFlight = true
		return
	}

	done, data, err := d.tr.Poll()
	if !done {
		return
	}
	d.inFlight = false
	if err != nil {
		d.configFault(fmt.Errorf("reg 0x%02X: %w", st.reg, err))
		return
	}
	if st.read && (len(data) != 1 || data[0] != st.val) {
		d.configFault(fmt.Errorf("reg 0x%02X: got 0x%02X, want 0x%02X", st.reg, data, st.val))
		return
	}

	d.stepIdx++
	d.attempts = 0
	if d.stepIdx == len(d.steps) {
		d.state.Store(int32(StateStreaming))
		d.phase = phaseIdle
		log.Printf("lsm6: configuration complete, streaming")
	}
}

// configFault retries the failed step immediately on the next tick; no
// backoff inside the real-time path. After InitRetries attempts the
// session is Faulted.
func (d *Driver) configFault(err error) {
	d.attempts++
	log.Printf("lsm6: config step %d attempt %d/%d failed: %v",
		d.stepIdx, d.attempts, d.cfg.InitRetries, err)
	if d.attempts >= d.cfg.InitRetries {
		d.state.Store(int32(StateFaulted))
		log.Printf("lsm6: configuration faulted")
	}
}

func (d *Driver) advanceStream(tick uint32) {
	switch d.phase {
	case phaseIdle:
		if err := d.tr.StartRead(RegStatus, 1); err != nil {
			d.readFault(err)
			return
		}
		d.phase = phaseStatusWait

	case phaseStatusWait:
		done, data, err := d.tr.Poll()
		if !done {
			return
		}
		d.phase = phaseIdle
		if err != nil {
			d.readFault(err)
			return
		}
		if len(data) != 1 {
			d.readFault(fmt.Errorf("status read returned %d bytes", len(data)))
			return
		}
		d.consecutiveFaults = 0
		if data[0]&(statusXLDA|statusGDA) == statusXLDA|statusGDA {
			d.phase = phaseDataStart
		}
		// No new data yet is not a fault; try again next tick.

	case phaseDataStart:
		if err := d.tr.StartRead(RegOutXLG, outBurstLen); err != nil {
			d.phase = phaseIdle
			d.readFault(err)
			return
		}
		d.phase = phaseDataWait

	case phaseDataWait:
		done, data, err := d.tr.Poll()
		if !done {
			return
		}
		d.phase = phaseIdle
		if err != nil {
			d.readFault(err)
			return
		}
		if len(data) != outBurstLen {
			d.readFault(fmt.Errorf("burst read returned %d bytes, want %d", len(data), outBurstLen))
			return
		}
		d.consecutiveFaults = 0
		d.publish(data, tick)
	}
}

// readFault counts a failed read. The previously published sample stays
// valid and keeps being served; past FaultThreshold consecutive failures
// the session stops issuing reads until Reinitialize.
func (d *Driver) readFault(err error) {
	d.consecutiveFaults++
	d.faultTot++
	log.Printf("lsm6: read fault %d/%d: %v", d.consecutiveFaults, d.cfg.FaultThreshold, err)
	if d.consecutiveFaults >= d.cfg.FaultThreshold {
		d.state.Store(int32(StateFaulted))
		log.Printf("lsm6: streaming faulted after %d consecutive faults", d.consecutiveFaults)
	}
}

// publish assembles the staging sample from a completed burst and makes
// it current with a single atomic swap. Layout: gyro X,Y,Z then accel
// X,Y,Z, little-endian int16 each.
func (d *Driver) publish(data []byte, tick uint32) {
	d.seq++
	d.samples++
	st := d.buf.Staging()
	st.Gx = int16(binary.LittleEndian.Uint16(data[0:2]))
	st.Gy = int16(binary.LittleEndian.Uint16(data[2:4]))
	st.Gz = int16(binary.LittleEndian.Uint16(data[4:6]))
	st.Ax = int16(binary.LittleEndian.Uint16(data[6:8]))
	st.Ay = int16(binary.LittleEndian.Uint16(data[8:10]))
	st.Az = int16(binary.LittleEndian.Uint16(data[10:12]))
	st.Seq = d.seq
	st.Tick = tick
	st.Valid = true
	d.buf.Publish()
}
