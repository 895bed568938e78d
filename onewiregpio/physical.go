// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"runtime"
	"time"

	"periph.io/x/conn/v3/gpio"
)

// CritSection brackets a timed pulse sequence on the bus.
//
// Enter must mask whatever preemption sources the platform allows to be
// masked, Exit must restore them. The driver guarantees that every Enter is
// paired with an Exit on all code paths, so an implementation backed by
// interrupt masking cannot be left disabled by a bus fault.
type CritSection interface {
	Enter()
	Exit()
}

// lockOSThread pins the goroutine to its OS thread for the duration of a
// pulse sequence. User space cannot mask kernel preemption, so this only
// removes scheduler-induced goroutine migration; deployments that need hard
// timing supply a platform critical section through Opts.Crit.
type lockOSThread struct{}

func (lockOSThread) Enter() { runtime.LockOSThread() }
func (lockOSThread) Exit()  { runtime.UnlockOSThread() }

// All protocol timing, in order of appearance in a transaction. Bit slots are
// a minimum of 60µs with at least 1µs of recovery between them; the recovery
// is covered by call overhead.
const (
	tSettle       = 5 * time.Microsecond   // float high after release before the initial line check
	tResetLow     = 250 * time.Microsecond // half of the ≥480µs reset pulse
	tResetRelease = 10 * time.Microsecond  // release to stuck-line check
	tPresenceWait = 60 * time.Microsecond  // device replies 15–60µs after the rising edge
	tPresenceMin  = 10 * time.Microsecond  // presence pulse must outlast this check
	tPresenceMax  = 240 * time.Microsecond // presence pulse lasts 60–240µs
	tResetTail    = 240 * time.Microsecond // completes the ≥480µs presence window

	tSlot         = 60 * time.Microsecond // minimum bit slot
	tWriteRelease = 10 * time.Microsecond // a 1 bit releases here, inside the 15µs sampling window
	tReadSetup    = 2 * time.Microsecond  // ≥1µs low opens a read slot
	tReadSample   = 10 * time.Microsecond // sample 12µs into the slot, before the 15µs deadline
)

// reset issues a reset pulse and classifies the line's response.
//
// The exact sequence: release and verify the line floats high, drive low for
// 2×250µs verifying the line follows, release, then sample the presence pulse
// against its 15–60µs start and 60–240µs duration windows. The critical
// section is entered once the line checks out and is restored on every path.
func (d *Dev) reset() error {
	d.release()
	d.delay(tSettle)
	if !d.sample() {
		// Line held low before we even drove it: wiring or pull-up fault.
		return d.failure(ErrBusLow)
	}

	d.crit.Enter()
	defer d.crit.Exit()

	d.driveLow()
	d.delay(tResetLow)
	if d.sample() {
		// Line did not follow the driver.
		d.release()
		return d.failure(ErrBusHigh)
	}
	d.delay(tResetLow)
	d.release()

	d.delay(tResetRelease)
	if !d.sample() {
		return d.failure(ErrBusStuck)
	}

	d.delay(tPresenceWait)
	if d.sample() {
		return d.failure(ErrNoDevice)
	}
	d.delay(tPresenceMin)
	if d.sample() {
		return d.failure(ErrPresenceShort)
	}
	d.delay(tPresenceMax)
	if !d.sample() {
		return d.failure(ErrPresenceLong)
	}
	d.delay(tResetTail)
	return d.err
}

// writeBit generates a single write slot.
//
// Devices sample the line 15–60µs after the falling edge, so a 1 releases the
// line early and a 0 holds it low for the whole slot.
func (d *Dev) writeBit(bit bool) {
	d.crit.Enter()
	defer d.crit.Exit()

	d.driveLow()
	d.delay(tWriteRelease)
	if bit {
		d.release()
	}
	d.delay(tSlot - tWriteRelease)
	d.release()
}

// readBit generates a read slot and returns the sampled level.
//
// The device holds the line low to send a 0 or leaves it floating for a 1,
// valid only within 15µs of the falling edge.
func (d *Dev) readBit() bool {
	d.crit.Enter()
	defer d.crit.Exit()

	d.driveLow()
	d.delay(tReadSetup)
	d.release()
	d.delay(tReadSample)
	bit := d.sample()
	d.delay(tSlot - tReadSetup - tReadSample)
	return bit
}

//

// driveLow asserts the line. The line is only ever driven low; a 1 is
// signalled by releasing it to the pull-up.
func (d *Dev) driveLow() {
	if d.err != nil {
		return
	}
	d.err = d.p.Out(gpio.Low)
}

// release tri-states the driver so the external pull-up can bring the line
// high.
func (d *Dev) release() {
	if d.err != nil {
		return
	}
	d.err = d.p.In(d.pull, gpio.NoEdge)
}

// sample reads the line level. It returns false when the device is in the
// persistent error state; callers report d.err ahead of any bus condition
// derived from the sample.
func (d *Dev) sample() bool {
	if d.err != nil {
		return false
	}
	return d.p.Read() == gpio.High
}

// failure reports the persistent pin error if there is one, otherwise the
// observed bus condition.
func (d *Dev) failure(cause error) error {
	if d.err != nil {
		return d.err
	}
	return cause
}
