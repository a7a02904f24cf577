package lsm6

import (
	"encoding/binary"

	"github.com/Neel20/moteus-imu-firmware/internal/bus"
)

// Sim is an in-memory LSM6DSV16X behind a bus.Transactor. It backs the
// controller binary when no hardware is present and the driver tests,
// which need deterministic fault injection and bus-operation counting.
type Sim struct {
	regs [0x80]byte

	// ReadyEvery makes a fresh sample available every N calls to Tick.
	// Zero means data is ready immediately and after every burst read.
	ReadyEvery int

	// NackAll fails every transaction at Poll time with bus.ErrNack.
	NackAll bool

	// NackNext fails the next N transactions, then recovers.
	NackNext int

	// Latency is how many Poll calls a transaction stays pending before
	// completing. Zero completes on the first Poll.
	Latency int

	ticks  int
	sample int16

	pending   bool
	isRead    bool
	reg       byte
	n         int
	pollsLeft int

	ops int
}

// NewSim returns a simulated sensor with WHO_AM_I preloaded and, when
// ReadyEvery is zero, data available from the start.
func NewSim() *Sim {
	s := &Sim{}
	s.regs[RegWhoAmI] = WhoAmIValue
	s.generate()
	return s
}

// Tick advances the simulated sensor clock. The controller loop calls it
// once per control tick so sample availability tracks the configured rate.
func (s *Sim) Tick() {
	s.ticks++
	if s.ReadyEvery > 0 && s.ticks%s.ReadyEvery == 0 {
		s.generate()
	}
}

// generate loads the next synthetic sample into the output registers and
// raises the data-available bits.
func (s *Sim) generate() {
	s.sample++
	put := func(reg byte, v int16) {
		binary.LittleEndian.PutUint16(s.regs[reg:reg+2], uint16(v))
	}
	put(RegOutXLG+0, 100+s.sample)  // gx
	put(RegOutXLG+2, -200-s.sample) // gy
	put(RegOutXLG+4, 300+s.sample)  // gz
	put(RegOutXLG+6, 1000+s.sample) // ax
	put(RegOutXLG+8, -50-s.sample)  // ay
	put(RegOutXLG+10, 16000)        // az, roughly 1g at ±2g
	s.regs[RegStatus] |= statusXLDA | statusGDA
}

// Ops reports the number of bus operations started since the last reset.
func (s *Sim) Ops() int { return s.ops }

// ResetOps clears the operation counter.
func (s *Sim) ResetOps() { s.ops = 0 }

// SetWhoAmI overrides the identification register, for wrong-device tests.
func (s *Sim) SetWhoAmI(v byte) { s.regs[RegWhoAmI] = v }

func (s *Sim) StartWrite(reg, value byte) error {
	if s.pending {
		return bus.ErrBusy
	}
	s.ops++
	s.pending = true
	s.isRead = false
	s.reg = reg
	s.n = int(value) // stashed; applied at completion
	s.pollsLeft = s.Latency
	return nil
}

func (s *Sim) StartRead(reg byte, n int) error {
	if s.pending {
		return bus.ErrBusy
	}
	s.ops++
	s.pending = true
	s.isRead = true
	s.reg = reg
	s.n = n
	s.pollsLeft = s.Latency
	return nil
}

func (s *Sim) Poll() (bool, []byte, error) {
	if !s.pending {
		return true, nil, bus.ErrNoPending
	}
	if s.pollsLeft > 0 {
		s.pollsLeft--
		return false, nil, nil
	}
	s.pending = false

	if s.NackAll {
		return true, nil, bus.ErrNack
	}
	if s.NackNext > 0 {
		s.NackNext--
		return true, nil, bus.ErrNack
	}

	if !s.isRead {
		s.regs[s.reg] = byte(s.n)
		return true, nil, nil
	}

	data := make([]byte, s.n)
	copy(data, s.regs[s.reg:int(s.reg)+s.n])
	if s.reg == RegOutXLG {
		// Burst read consumes the sample, like BDU on the real part.
		s.regs[RegStatus] &^= statusXLDA | statusGDA
		if s.ReadyEvery == 0 {
			s.generate()
		}
	}
	return true, data, nil
}
