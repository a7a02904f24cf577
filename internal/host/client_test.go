package host

import (
	"bufio"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/Neel20/moteus-imu-firmware/internal/imu"
	"github.com/Neel20/moteus-imu-firmware/internal/telemetry"
)

// serveController runs a dispatcher over the far end of a pipe, emulating
// the controller's bus service.
func serveController(t *testing.T, conn net.Conn, buf *imu.LatestBuffer, faulted *fixedFaults) {
	t.Helper()
	codec := telemetry.NewCodec()
	enc := telemetry.NewEncoder(1, buf, faulted, func() uint32 { return 0 }, 100, codec)
	d := telemetry.NewDispatcher(1, codec, enc, nil)

	go func() {
		r := bufio.NewReader(conn)
		for {
			f, err := codec.ReadFrame(r)
			if err != nil {
				return
			}
			resp, err := d.HandleFrame(f)
			if err != nil || resp == nil {
				continue
			}
			if _, err := conn.Write(resp); err != nil {
				return
			}
		}
	}()
}

type fixedFaults bool

func (f *fixedFaults) Faulted() bool { return bool(*f) }

func publish(buf *imu.LatestBuffer, s imu.Sample) {
	*buf.Staging() = s
	buf.Publish()
}

func TestReadSampleEndToEnd(t *testing.T) {
	hostEnd, ctrlEnd := net.Pipe()
	defer hostEnd.Close()
	defer ctrlEnd.Close()

	buf := &imu.LatestBuffer{}
	publish(buf, imu.Sample{Ax: -558, Ay: 42, Az: 16000, Gx: 7, Gy: -7, Gz: 100, Seq: 12, Valid: true})
	faulted := fixedFaults(false)
	serveController(t, ctrlEnd, buf, &faulted)

	c := NewClient(hostEnd, 1, time.Second, 3)
	r, err := c.ReadSample()
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if r.Ax != -558 || r.Az != 16000 || r.Gz != 100 || r.Seq != 12 {
		t.Fatalf("decoded sample mismatch: %+v", r)
	}
	if !r.Valid || r.Stale || r.Faulted || r.StaleWarning {
		t.Errorf("flags = %+v, want valid only", r)
	}
}

func TestRequestTimeout(t *testing.T) {
	hostEnd, ctrlEnd := net.Pipe()
	defer hostEnd.Close()
	defer ctrlEnd.Close()
	// Controller never answers.

	c := NewClient(hostEnd, 1, 50*time.Millisecond, 3)
	start := time.Now()
	_, err := c.ReadSample()

	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Fatalf("err = %v, want CommunicationError", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, want bounded by ~50ms", elapsed)
	}
}

// quietSerial behaves like a silent serial port opened with an
// inter-character timeout: no deadlines, writes succeed, and each read
// waits a moment before reporting no data.
type quietSerial struct{}

func (quietSerial) Read(p []byte) (int, error) {
	time.Sleep(5 * time.Millisecond)
	return 0, io.EOF
}

func (quietSerial) Write(p []byte) (int, error) { return len(p), nil }

func TestTimeoutOnDeadlinelessTransport(t *testing.T) {
	c := NewClient(quietSerial{}, 1, 50*time.Millisecond, 3)
	start := time.Now()
	_, err := c.ReadSample()

	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Fatalf("err = %v, want CommunicationError", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("timeout took %v, want bounded by ~50ms", elapsed)
	}
}

// brokenDeadline claims deadline support but rejects every deadline.
type brokenDeadline struct{ quietSerial }

func (brokenDeadline) SetDeadline(time.Time) error {
	return errors.New("deadlines unsupported")
}

func TestSetDeadlineFailureSurfaces(t *testing.T) {
	c := NewClient(brokenDeadline{}, 1, 50*time.Millisecond, 3)
	_, err := c.ReadSample()

	var commErr *CommunicationError
	if !errors.As(err, &commErr) {
		t.Fatalf("err = %v, want CommunicationError", err)
	}
	if commErr.Op != "set deadline" {
		t.Errorf("Op = %q, want %q", commErr.Op, "set deadline")
	}
}

func TestLateResponseDiscarded(t *testing.T) {
	hostEnd, ctrlEnd := net.Pipe()
	defer hostEnd.Close()
	defer ctrlEnd.Close()

	codec := telemetry.NewCodec()
	frameFor := func(seq uint16) []byte {
		return codec.Marshal(telemetry.Frame{
			Addr:    1,
			Mode:    telemetry.ModeIMURaw,
			Payload: telemetry.EncodeIMUPayload(imu.Sample{Seq: seq, Valid: true}, telemetry.StatusValid),
		})
	}

	stalePending := make(chan struct{})
	go func() {
		r := bufio.NewReader(ctrlEnd)
		// Swallow the first query, then deliver its response only after
		// the client has given up on it.
		if _, err := codec.ReadFrame(r); err != nil {
			return
		}
		time.Sleep(80 * time.Millisecond)
		close(stalePending)
		go ctrlEnd.Write(frameFor(1))
		// Answer the second query promptly.
		if _, err := codec.ReadFrame(r); err != nil {
			return
		}
		ctrlEnd.Write(frameFor(2))
	}()

	c := NewClient(hostEnd, 1, 50*time.Millisecond, 3)

	var commErr *CommunicationError
	if _, err := c.ReadSample(); !errors.As(err, &commErr) {
		t.Fatalf("first poll: err = %v, want CommunicationError", err)
	}

	// Let the late response reach the pipe before polling again.
	<-stalePending
	time.Sleep(10 * time.Millisecond)

	r, err := c.ReadSample()
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if r.Seq != 2 {
		t.Fatalf("second poll returned seq %d, want 2; the late response must not be taken", r.Seq)
	}
}

func TestDecodeRejectsCorruptFrame(t *testing.T) {
	codec := telemetry.NewCodec()
	c := NewClient(nil, 1, time.Second, 3)

	good := codec.Marshal(telemetry.Frame{
		Addr:    1,
		Mode:    telemetry.ModeIMURaw,
		Payload: telemetry.EncodeIMUPayload(imu.Sample{Ax: 1, Seq: 5, Valid: true}, telemetry.StatusValid),
	})

	// Corrupted checksum must fail with ProtocolError, never partial data.
	bad := append([]byte(nil), good...)
	bad[len(bad)-1] ^= 0xFF
	r, err := c.Decode(bad)
	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("corrupt crc: err = %v, want ProtocolError", err)
	}
	if r != (Reading{}) {
		t.Errorf("corrupt frame surfaced data: %+v", r)
	}

	// Matching mode but wrong declared length must be rejected.
	short := codec.Marshal(telemetry.Frame{Addr: 1, Mode: telemetry.ModeIMURaw, Payload: make([]byte, telemetry.IMUPayloadLen-2)})
	if _, err := c.Decode(short); !errors.As(err, &protoErr) {
		t.Errorf("short payload: err = %v, want ProtocolError", err)
	}

	// Unexpected mode.
	wrongMode := codec.Marshal(telemetry.Frame{Addr: 1, Mode: telemetry.ModePosition, Payload: make([]byte, 4)})
	if _, err := c.Decode(wrongMode); !errors.As(err, &protoErr) {
		t.Errorf("wrong mode: err = %v, want ProtocolError", err)
	}

	// Good frame decodes.
	if _, err := c.Decode(good); err != nil {
		t.Errorf("good frame rejected: %v", err)
	}
}

func TestStaleWarningThreshold(t *testing.T) {
	hostEnd, ctrlEnd := net.Pipe()
	defer hostEnd.Close()
	defer ctrlEnd.Close()

	buf := &imu.LatestBuffer{}
	publish(buf, imu.Sample{Seq: 40, Valid: true})
	faulted := fixedFaults(false)
	serveController(t, ctrlEnd, buf, &faulted)

	c := NewClient(hostEnd, 1, time.Second, 3)

	// First poll plus three unchanged repeats: no warning yet.
	for i := 0; i < 4; i++ {
		r, err := c.ReadSample()
		if err != nil {
			t.Fatalf("poll %d: %v", i, err)
		}
		if r.StaleWarning {
			t.Fatalf("poll %d raised StaleWarning early", i)
		}
	}

	// Fourth unchanged repeat crosses the threshold.
	r, err := c.ReadSample()
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if !r.StaleWarning {
		t.Fatal("StaleWarning not raised past the poll threshold")
	}
	if r.Seq != 40 {
		t.Errorf("warning reading lost its sample: %+v", r)
	}

	// A fresh sample clears the warning.
	publish(buf, imu.Sample{Seq: 41, Valid: true})
	r, err = c.ReadSample()
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if r.StaleWarning {
		t.Error("StaleWarning still set after the counter advanced")
	}
}

func TestFaultedControllerStillServesRetainedSample(t *testing.T) {
	hostEnd, ctrlEnd := net.Pipe()
	defer hostEnd.Close()
	defer ctrlEnd.Close()

	buf := &imu.LatestBuffer{}
	publish(buf, imu.Sample{Ax: 77, Seq: 9, Valid: true})
	faulted := fixedFaults(true)
	serveController(t, ctrlEnd, buf, &faulted)

	c := NewClient(hostEnd, 1, time.Second, 3)
	r, err := c.ReadSample()
	if err != nil {
		t.Fatalf("ReadSample: %v", err)
	}
	if !r.Faulted {
		t.Error("Faulted flag not set")
	}
	if r.Ax != 77 || !r.Valid {
		t.Errorf("retained sample not served: %+v", r)
	}
}
