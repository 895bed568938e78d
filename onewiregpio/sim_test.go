// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"errors"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
)

// simSlave emulates the electrical behaviour of a single 1-wire device on an
// open-drain line. It implements gpio.PinIO and also provides the delay
// function injected through Opts, so the protocol runs against a virtual
// microsecond clock instead of the wall clock.
//
// Slots are classified by how long the master held the line low before
// releasing it: ≥480µs is a reset pulse, <5µs opens a read slot (the driver
// uses 2µs), 5–15µs is a written 1 (released at 10µs) and anything longer is
// a written 0. This mirrors how a real device discriminates the waveforms.
type simSlave struct {
	now    time.Duration // virtual clock
	driven bool          // master currently asserts the line
	fellAt time.Duration // virtual time of the last falling edge
	low    []span        // spans during which the slave pulls the line low

	out   []bool // bits the slave returns on read slots, LSB of each byte first
	slots []bool // every master write-slot bit, in wire order
	wrote []byte // master write-slot bits assembled into bytes, LSB first

	present        bool          // answer reset pulses with a presence pulse
	presenceDelay  time.Duration // rising edge to start of presence pulse
	presenceWidth  time.Duration // duration of the presence pulse
	stuckLow       bool          // line shorted to ground
	openDrive      bool          // broken driver, the line never goes low
	holdAfterReset bool          // slave jams the line low once reset ends

	resets    int   // reset pulses seen
	droveHigh bool  // master illegally drove the line high
	failOut   error // Out calls return this while set
	failIn    error // In calls return this while set
	lastPull  gpio.Pull
}

type span struct {
	from, to time.Duration
}

const forever = time.Duration(1 << 62)

// newSim returns a slave that answers reset pulses with a well-formed
// presence pulse when present is true.
func newSim(present bool) *simSlave {
	return &simSlave{
		present:       present,
		presenceDelay: 20 * time.Microsecond,
		presenceWidth: 100 * time.Microsecond,
	}
}

// delay advances the virtual clock. Wired into the Dev through Opts.Delay.
func (s *simSlave) delay(d time.Duration) {
	s.now += d
}

// queue appends bytes for the slave to transmit on upcoming read slots.
func (s *simSlave) queue(bytes ...byte) {
	for _, b := range bytes {
		for i := 0; i < 8; i++ {
			s.out = append(s.out, b&(1<<i) != 0)
		}
	}
}

func (s *simSlave) Out(l gpio.Level) error {
	if s.failOut != nil {
		return s.failOut
	}
	if l == gpio.High {
		s.droveHigh = true
		return nil
	}
	if !s.driven {
		s.driven = true
		s.fellAt = s.now
	}
	return nil
}

func (s *simSlave) In(pull gpio.Pull, edge gpio.Edge) error {
	if s.failIn != nil {
		return s.failIn
	}
	s.lastPull = pull
	if !s.driven {
		return nil
	}
	s.driven = false
	lowFor := s.now - s.fellAt
	switch {
	case lowFor >= 480*time.Microsecond:
		s.resets++
		if s.holdAfterReset {
			s.low = append(s.low, span{s.now, forever})
		} else if s.present {
			start := s.now + s.presenceDelay
			s.low = append(s.low, span{start, start + s.presenceWidth})
		}
	case lowFor < 5*time.Microsecond:
		// Read slot: transmit the next queued bit, a 0 by holding the line
		// low past the master's sampling point. An empty queue floats high.
		bit := true
		if len(s.out) > 0 {
			bit = s.out[0]
			s.out = s.out[1:]
		}
		if !bit {
			s.low = append(s.low, span{s.fellAt, s.fellAt + 30*time.Microsecond})
		}
	case lowFor <= 15*time.Microsecond:
		s.writeSlot(true)
	default:
		s.writeSlot(false)
	}
	return nil
}

func (s *simSlave) writeSlot(bit bool) {
	s.slots = append(s.slots, bit)
	if n := len(s.slots); n%8 == 0 {
		var b byte
		for i, v := range s.slots[n-8:] {
			if v {
				b |= 1 << i
			}
		}
		s.wrote = append(s.wrote, b)
	}
}

func (s *simSlave) Read() gpio.Level {
	if s.stuckLow {
		return gpio.Low
	}
	if s.driven && !s.openDrive {
		return gpio.Low
	}
	for _, v := range s.low {
		if s.now >= v.from && s.now < v.to {
			return gpio.Low
		}
	}
	return gpio.High
}

func (s *simSlave) String() string   { return "simslave" }
func (s *simSlave) Halt() error      { return nil }
func (s *simSlave) Name() string     { return "SIM1" }
func (s *simSlave) Number() int      { return 1 }
func (s *simSlave) Function() string { return "In/Out" }

func (s *simSlave) WaitForEdge(timeout time.Duration) bool { return false }
func (s *simSlave) Pull() gpio.Pull                        { return s.lastPull }
func (s *simSlave) DefaultPull() gpio.Pull                 { return gpio.PullUp }
func (s *simSlave) PWM(gpio.Duty, physic.Frequency) error {
	return errors.New("simslave: pwm not supported")
}

// countingCrit verifies that every critical section entered is exited.
type countingCrit struct {
	enters, exits int
}

func (c *countingCrit) Enter() { c.enters++ }
func (c *countingCrit) Exit()  { c.exits++ }

var _ gpio.PinIO = &simSlave{}
