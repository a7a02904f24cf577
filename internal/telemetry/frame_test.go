package telemetry

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/Neel20/moteus-imu-firmware/internal/imu"
)

func TestFrameRoundTrip(t *testing.T) {
	c := NewCodec()
	f := Frame{Addr: 1, Mode: ModeIMURaw, Payload: []byte{1, 2, 3, 4, 5}}

	got, err := c.Unmarshal(c.Marshal(f))
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.Addr != f.Addr || got.Mode != f.Mode || !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestQueryFrameEmptyPayload(t *testing.T) {
	c := NewCodec()
	raw := c.Marshal(Frame{Addr: 3, Mode: ModeIMURaw})
	if len(raw) != 6 {
		t.Fatalf("query frame is %d bytes, want 6", len(raw))
	}
	f, err := c.Unmarshal(raw)
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(f.Payload) != 0 {
		t.Errorf("query payload = %v, want empty", f.Payload)
	}
}

func TestUnmarshalRejectsCorruption(t *testing.T) {
	c := NewCodec()
	good := c.Marshal(Frame{Addr: 1, Mode: ModeIMURaw, Payload: EncodeIMUPayload(imu.Sample{Ax: 1}, StatusValid)})

	// Flip one bit anywhere covered by the checksum.
	for i := 1; i < len(good)-2; i++ {
		bad := bytes.Clone(good)
		bad[i] ^= 0x10
		if _, err := c.Unmarshal(bad); err == nil {
			t.Errorf("corrupt byte %d accepted", i)
		}
	}

	// Corrupt checksum itself.
	bad := bytes.Clone(good)
	bad[len(bad)-1] ^= 0xFF
	if _, err := c.Unmarshal(bad); !errors.Is(err, ErrChecksum) {
		t.Errorf("corrupt crc: err = %v, want ErrChecksum", err)
	}

	// Bad sync.
	bad = bytes.Clone(good)
	bad[0] = 0x00
	if _, err := c.Unmarshal(bad); !errors.Is(err, ErrBadSync) {
		t.Errorf("bad sync: err = %v, want ErrBadSync", err)
	}

	// Truncation and trailing garbage.
	if _, err := c.Unmarshal(good[:4]); !errors.Is(err, ErrShort) {
		t.Errorf("short frame: err = %v, want ErrShort", err)
	}
	if _, err := c.Unmarshal(append(bytes.Clone(good), 0x00)); !errors.Is(err, ErrLength) {
		t.Errorf("trailing byte: err = %v, want ErrLength", err)
	}
}

func TestIMUPayloadRoundTrip(t *testing.T) {
	samples := []imu.Sample{
		{Ax: 32767, Ay: -32768, Az: 1, Gx: -1, Gy: 12345, Gz: -12345, Seq: 65535, Valid: true},
		{Seq: 0},
		{Ax: -558, Ay: 42, Az: 16000, Gx: 7, Gy: -7, Gz: 0, Seq: 1, Valid: true},
	}
	for _, want := range samples {
		status := byte(0)
		if want.Valid {
			status = StatusValid
		}
		got, gotStatus, err := DecodeIMUPayload(EncodeIMUPayload(want, status))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		if got != want {
			t.Errorf("round trip mismatch:\n got %+v\nwant %+v", got, want)
		}
		if gotStatus != status {
			t.Errorf("status = 0x%02X, want 0x%02X", gotStatus, status)
		}
	}
}

func TestDecodeIMUPayloadLength(t *testing.T) {
	if _, _, err := DecodeIMUPayload(make([]byte, IMUPayloadLen-1)); !errors.Is(err, ErrLength) {
		t.Errorf("short payload: err = %v, want ErrLength", err)
	}
	if _, _, err := DecodeIMUPayload(make([]byte, IMUPayloadLen+1)); !errors.Is(err, ErrLength) {
		t.Errorf("long payload: err = %v, want ErrLength", err)
	}
}

func TestReadFrameSkipsNoise(t *testing.T) {
	c := NewCodec()
	frame := c.Marshal(Frame{Addr: 2, Mode: ModeVelocity, Payload: []byte{0, 0, 0x80, 0x3F}})
	stream := append([]byte{0x00, 0x13, 0x37}, frame...)

	got, err := c.ReadFrame(bufio.NewReader(bytes.NewReader(stream)))
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if got.Addr != 2 || got.Mode != ModeVelocity {
		t.Fatalf("frame mismatch: %+v", got)
	}
}

type fixedFaults bool

func (f fixedFaults) Faulted() bool { return bool(f) }

func TestEncoderStatusBits(t *testing.T) {
	buf := &imu.LatestBuffer{}
	tick := uint32(0)
	now := func() uint32 { return tick }
	faulted := fixedFaults(false)
	enc := NewEncoder(1, buf, &faulted, now, 10, NewCodec())
	c := NewCodec()

	decode := func(raw []byte) (imu.Sample, byte) {
		t.Helper()
		f, err := c.Unmarshal(raw)
		if err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		if f.Mode != ModeIMURaw {
			t.Fatalf("mode = 0x%02X, want ModeIMURaw", f.Mode)
		}
		s, status, err := DecodeIMUPayload(f.Payload)
		if err != nil {
			t.Fatalf("DecodeIMUPayload: %v", err)
		}
		return s, status
	}

	// Nothing published yet: invalid and stale.
	_, status := decode(enc.Encode())
	if status&StatusValid != 0 || status&StatusStale == 0 {
		t.Errorf("empty buffer status = 0x%02X, want stale and not valid", status)
	}

	// Fresh sample.
	*buf.Staging() = imu.Sample{Ax: 9, Seq: 1, Tick: 0, Valid: true}
	buf.Publish()
	tick = 5
	s, status := decode(enc.Encode())
	if status != StatusValid {
		t.Errorf("fresh sample status = 0x%02X, want StatusValid only", status)
	}
	if s.Ax != 9 || s.Seq != 1 {
		t.Errorf("sample mismatch: %+v", s)
	}

	// Same sample past the staleness window.
	tick = 20
	_, status = decode(enc.Encode())
	if status&StatusStale == 0 || status&StatusValid == 0 {
		t.Errorf("aged sample status = 0x%02X, want valid and stale", status)
	}

	// Faulted driver: last sample still served, faulted bit set.
	faulted = true
	s, status = decode(enc.Encode())
	if status&StatusFaulted == 0 {
		t.Errorf("faulted status = 0x%02X, want StatusFaulted set", status)
	}
	if s.Ax != 9 {
		t.Errorf("faulted encoder dropped retained sample: %+v", s)
	}
}

type fixedMotor struct{}

func (fixedMotor) Position() float32 { return 1.5 }
func (fixedMotor) Velocity() float32 { return -0.25 }
func (fixedMotor) Torque() float32   { return 0.125 }

func TestDispatcherRouting(t *testing.T) {
	c := NewCodec()
	buf := &imu.LatestBuffer{}
	*buf.Staging() = imu.Sample{Seq: 4, Valid: true}
	buf.Publish()
	enc := NewEncoder(1, buf, nil, func() uint32 { return 0 }, 10, c)
	d := NewDispatcher(1, c, enc, fixedMotor{})

	// IMU mode.
	resp, err := d.Handle(c.Marshal(Frame{Addr: 1, Mode: ModeIMURaw}))
	if err != nil {
		t.Fatalf("Handle imu: %v", err)
	}
	f, err := c.Unmarshal(resp)
	if err != nil || f.Mode != ModeIMURaw || len(f.Payload) != IMUPayloadLen {
		t.Fatalf("imu response: %+v, err %v", f, err)
	}

	// Existing motor mode through the same envelope.
	resp, err = d.Handle(c.Marshal(Frame{Addr: 1, Mode: ModePosition}))
	if err != nil {
		t.Fatalf("Handle position: %v", err)
	}
	f, _ = c.Unmarshal(resp)
	if len(f.Payload) != 4 {
		t.Fatalf("position payload = %d bytes, want 4", len(f.Payload))
	}

	// Another controller's address: ignored, no response.
	resp, err = d.Handle(c.Marshal(Frame{Addr: 9, Mode: ModeIMURaw}))
	if resp != nil || err != nil {
		t.Errorf("foreign address: resp=%v err=%v, want nil/nil", resp, err)
	}

	// Unknown mode.
	if _, err := d.Handle(c.Marshal(Frame{Addr: 1, Mode: 0x7F})); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("unknown mode: err = %v, want ErrUnknownMode", err)
	}

	// Corrupt query never yields a response.
	bad := c.Marshal(Frame{Addr: 1, Mode: ModeIMURaw})
	bad[2] ^= 0xFF
	if resp, err := d.Handle(bad); err == nil || resp != nil {
		t.Errorf("corrupt query: resp=%v err=%v, want error", resp, err)
	}
}
