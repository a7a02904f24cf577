package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	serial "github.com/jacobsa/go-serial/serial"

	"github.com/Neel20/moteus-imu-firmware/internal/bus"
	"github.com/Neel20/moteus-imu-firmware/internal/config"
	"github.com/Neel20/moteus-imu-firmware/internal/imu"
	"github.com/Neel20/moteus-imu-firmware/internal/loop"
	"github.com/Neel20/moteus-imu-firmware/internal/lsm6"
	"github.com/Neel20/moteus-imu-firmware/internal/telemetry"
)

// motorSim stands in for the motor control algorithms, which live in a
// separate codebase. It tracks a slow sinusoidal trajectory so the motor
// telemetry modes return moving values. Values are published through
// atomics: the hook writes from the loop goroutine, the dispatcher reads
// from the bus service goroutine.
type motorSim struct {
	tickSeconds float64

	pos atomic.Uint32
	vel atomic.Uint32
	trq atomic.Uint32
}

func (m *motorSim) hook(tick uint32) {
	t := float64(tick) * m.tickSeconds
	m.pos.Store(math.Float32bits(float32(math.Sin(t))))
	m.vel.Store(math.Float32bits(float32(math.Cos(t))))
	m.trq.Store(math.Float32bits(float32(0.1 * math.Sin(t))))
}

func (m *motorSim) Position() float32 { return math.Float32frombits(m.pos.Load()) }
func (m *motorSim) Velocity() float32 { return math.Float32frombits(m.vel.Load()) }
func (m *motorSim) Torque() float32   { return math.Float32frombits(m.trq.Load()) }

// sensorSupervisor wraps the driver with the fault-recovery policy: once
// the session faults, wait recoverAfter ticks and reinitialize. The
// driver itself never retries past its thresholds; that decision belongs
// here. Runs entirely in the loop context.
type sensorSupervisor struct {
	drv          *lsm6.Driver
	recoverAfter uint32

	waiting   bool
	faultedAt uint32
}

func (s *sensorSupervisor) Advance(tick uint32) {
	if s.drv.Faulted() {
		if !s.waiting {
			s.waiting = true
			s.faultedAt = tick
			return
		}
		if tick-s.faultedAt >= s.recoverAfter {
			s.waiting = false
			log.Println("controller: reinitializing faulted sensor session")
			if err := s.drv.Reinitialize(); err != nil {
				log.Printf("controller: reinitialize failed: %v", err)
			}
		}
		return
	}
	s.waiting = false
	s.drv.Advance(tick)
}

// RunController runs the controller side end to end: the fixed-period
// control loop with the sensor driver inside it, and the serial bus
// service answering telemetry queries. With useSim the I2C transactor is
// replaced by the register-level sensor simulator so the whole pipeline
// runs on a desk with a loopback serial pair.
func RunController(useSim bool) error {
	cfg := config.Get()

	var (
		tr  bus.Transactor
		sim *lsm6.Sim
	)
	if useSim {
		sim = lsm6.NewSim()
		// One sample roughly every ODR period, in loop ticks.
		ticksPerSample := 1000000 / cfg.LoopPeriodUS / cfg.IMUODRHz
		if ticksPerSample < 1 {
			ticksPerSample = 1
		}
		sim.ReadyEvery = ticksPerSample
		tr = sim
		log.Println("controller: using simulated sensor bus")
	} else {
		i2cTr, err := bus.NewI2C(cfg.IMUI2CBus, cfg.IMUI2CAddr)
		if err != nil {
			return fmt.Errorf("open sensor bus: %w", err)
		}
		defer i2cTr.Close()
		tr = i2cTr
		log.Printf("controller: sensor on I2C addr 0x%02X", cfg.IMUI2CAddr)
	}

	buf := &imu.LatestBuffer{}
	drv := lsm6.New(tr, buf)
	if err := drv.Initialize(lsm6.Config{
		ODRHz:          cfg.IMUODRHz,
		AccelRange:     cfg.IMUAccelRange,
		GyroRange:      cfg.IMUGyroRange,
		InitRetries:    cfg.IMUInitRetries,
		FaultThreshold: cfg.IMUFaultThreshold,
	}); err != nil {
		return fmt.Errorf("sensor init: %w", err)
	}

	period := time.Duration(cfg.LoopPeriodUS) * time.Microsecond
	motor := &motorSim{tickSeconds: period.Seconds()}
	super := &sensorSupervisor{drv: drv, recoverAfter: uint32(cfg.IMUODRHz)}

	hook := motor.hook
	if sim != nil {
		// The simulator needs its own notion of time passing; let it
		// ride the motor slot so it advances exactly once per tick.
		hook = func(tick uint32) {
			sim.Tick()
			motor.hook(tick)
		}
	}

	ctl := loop.New(period, hook, super)

	codec := telemetry.NewCodec()
	enc := telemetry.NewEncoder(cfg.BusAddress, buf, drv, ctl.Now, uint32(cfg.StaleTicks), codec)
	disp := telemetry.NewDispatcher(cfg.BusAddress, codec, enc, motor)

	port, err := serial.Open(serial.OpenOptions{
		PortName:        cfg.SerialPort,
		BaudRate:        uint(cfg.SerialBaudRate),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return fmt.Errorf("open bus port %s: %w", cfg.SerialPort, err)
	}
	defer port.Close()
	log.Printf("controller: bus service on %s at %d baud, address %d",
		cfg.SerialPort, cfg.SerialBaudRate, cfg.BusAddress)

	go ServeBus(port, codec, disp)

	stop := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		close(stop)
	}()

	log.Printf("controller: loop running at %v per tick", period)
	ctl.Run(stop)

	log.Printf("controller: shutting down (samples=%d overruns=%d state=%s)",
		drv.Samples(), ctl.Overruns(), drv.State())
	return nil
}

// ServeBus reads query frames from the transport and writes dispatcher
// responses back. Frames for other addresses are skipped silently; parse
// errors resynchronize on the next sync byte. Returns when the transport
// reports EOF or closes.
func ServeBus(rw io.ReadWriter, codec telemetry.Codec, disp *telemetry.Dispatcher) {
	r := bufio.NewReader(rw)
	for {
		q, err := codec.ReadFrame(r)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			log.Printf("controller: bus read: %v", err)
			continue
		}
		resp, err := disp.HandleFrame(q)
		if err != nil {
			log.Printf("controller: query mode 0x%02X: %v", q.Mode, err)
			continue
		}
		if resp == nil {
			continue
		}
		if _, err := rw.Write(resp); err != nil {
			log.Printf("controller: bus write: %v", err)
			return
		}
	}
}
