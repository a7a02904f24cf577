// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package host

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Neel20/moteus-imu-firmware/internal/imu"
	"github.com/Neel20/moteus-imu-firmware/internal/telemetry"
)

// CommunicationError reports a missing or incomplete response from the
// controller within the request timeout. The request is simply abandoned;
// no partial state is kept across attempts.
type CommunicationError struct {
	Op  string
	Err error
}

func (e *CommunicationError) Error() string {
	return fmt.Sprintf("host: communication error during %s: %v", e.Op, e.Err)
}

func (e *CommunicationError) Unwrap() error { return e.Err }

// ProtocolError reports a response that arrived but failed validation:
// bad checksum, wrong length, or an unexpected mode. No partial sample is
// ever surfaced; the caller retries.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("host: protocol error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("host: protocol error: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// Reading is one decoded IMU sample plus the controller-reported status
// and the host-side staleness judgement.
type Reading struct {
	imu.Sample

	Stale   bool // controller flagged the sample older than its window
	Faulted bool // sensor session on the controller is faulted

	// StaleWarning is raised when the sequence counter has not advanced
	// across more than the configured number of consecutive polls. It is
	// a warning, never a hard failure: the sample is still returned.
	StaleWarning bool
}

// deadliner is implemented by transports with I/O deadlines (net.Pipe,
// TCP). Serial ports bound their own reads instead.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// Client issues ModeIMURaw queries to one controller address and decodes
// the responses.
type Client struct {
	rw         io.ReadWriter
	addr       byte
	codec      telemetry.Codec
	timeout    time.Duration
	stalePolls int

	lastSeq uint16
	haveSeq bool
	repeats int
}

// NewClient wraps an open transport to the controller at addr. timeout
// bounds each request/response exchange; stalePolls is the number of
// consecutive unchanged sequence counters tolerated before ReadSample
// raises StaleWarning (default 3 when zero).
//
// The transport must either implement SetDeadline or have its reads
// return periodically on their own (a serial port opened with an
// inter-character timeout). A transport whose Read can block forever
// would pin RequestSample past the timeout.
func NewClient(rw io.ReadWriter, addr byte, timeout time.Duration, stalePolls int) *Client {
	if stalePolls == 0 {
		stalePolls = 3
	}
	return &Client{
		rw:         rw,
		addr:       addr,
		codec:      telemetry.NewCodec(),
		timeout:    timeout,
		stalePolls: stalePolls,
	}
}

// RequestSample sends one ModeIMURaw query and returns the raw response
// frame bytes, or a CommunicationError if no complete frame arrives
// within the timeout.
func (c *Client) RequestSample() ([]byte, error) {
	query := c.codec.Marshal(telemetry.Frame{Addr: c.addr, Mode: telemetry.ModeIMURaw})
	deadline := time.Now().Add(c.timeout)
	if d, ok := c.rw.(deadliner); ok {
		c.drainStale(d)
		if err := d.SetDeadline(deadline); err != nil {
			return nil, &CommunicationError{Op: "set deadline", Err: err}
		}
	}

	if _, err := c.rw.Write(query); err != nil {
		return nil, &CommunicationError{Op: "write query", Err: err}
	}

	// Scan for the sync byte, then read header, payload and checksum.
	var b [1]byte
	for {
		if err := c.readExact(b[:], deadline); err != nil {
			return nil, &CommunicationError{Op: "await response", Err: err}
		}
		if b[0] == telemetry.SyncByte {
			break
		}
	}
	hdr := make([]byte, 3) // addr, mode, len
	if err := c.readExact(hdr, deadline); err != nil {
		return nil, &CommunicationError{Op: "read header", Err: err}
	}
	rest := make([]byte, int(hdr[2])+2)
	if err := c.readExact(rest, deadline); err != nil {
		return nil, &CommunicationError{Op: "read payload", Err: err}
	}

	raw := make([]byte, 0, 4+len(rest))
	raw = append(raw, telemetry.SyncByte)
	raw = append(raw, hdr...)
	raw = append(raw, rest...)
	return raw, nil
}

// Decode validates a raw response frame and extracts the sample. Any
// checksum, length or mode failure returns a ProtocolError and no data.
func (c *Client) Decode(raw []byte) (Reading, error) {
	f, err := c.codec.Unmarshal(raw)
	if err != nil {
		return Reading{}, &ProtocolError{Reason: "invalid frame", Err: err}
	}
	if f.Addr != c.addr {
		return Reading{}, &ProtocolError{Reason: fmt.Sprintf("response from address %d, want %d", f.Addr, c.addr)}
	}
	if f.Mode != telemetry.ModeIMURaw {
		return Reading{}, &ProtocolError{Reason: fmt.Sprintf("unexpected mode 0x%02X", f.Mode)}
	}
	s, status, err := telemetry.DecodeIMUPayload(f.Payload)
	if err != nil {
		return Reading{}, &ProtocolError{Reason: "bad payload length", Err: err}
	}
	return Reading{
		Sample:  s,
		Stale:   status&telemetry.StatusStale != 0,
		Faulted: status&telemetry.StatusFaulted != 0,
	}, nil
}

// ReadSample performs one query/response exchange and tracks sequence
// counter progress across calls for the staleness warning.
func (c *Client) ReadSample() (Reading, error) {
	raw, err := c.RequestSample()
	if err != nil {
		return Reading{}, err
	}
	r, err := c.Decode(raw)
	if err != nil {
		return Reading{}, err
	}

	if c.haveSeq && r.Seq == c.lastSeq {
		c.repeats++
	} else {
		c.repeats = 0
	}
	c.lastSeq = r.Seq
	c.haveSeq = true
	r.StaleWarning = c.repeats > c.stalePolls
	return r, nil
}

// drainStale discards bytes left over from a previous timed-out
// exchange so a late response is never taken for the answer to the next
// query. Only transports with deadlines can be drained; on a serial
// link a late response is at most one poll old and shows up through the
// sequence-repeat warning.
func (c *Client) drainStale(d deadliner) {
	d.SetDeadline(time.Now().Add(time.Millisecond))
	var junk [64]byte
	for {
		if _, err := c.rw.Read(junk[:]); err != nil {
			return
		}
	}
}

// readExact fills buf completely within the deadline, tolerating short
// reads from transports that return early. A zero-byte read ending in
// io.EOF is how a serial port with an inter-character timeout reports
// "nothing yet"; the deadline, not the read result, decides when to
// give up.
func (c *Client) readExact(buf []byte, deadline time.Time) error {
	got := 0
	for got < len(buf) {
		if !time.Now().Before(deadline) {
			return fmt.Errorf("timeout after %d/%d bytes", got, len(buf))
		}
		n, err := c.rw.Read(buf[got:])
		got += n
		if err != nil && n == 0 && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read failed after %d/%d bytes: %w", got, len(buf), err)
		}
	}
	return nil
}
