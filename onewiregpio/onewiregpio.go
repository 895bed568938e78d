// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package onewiregpio implements a 1-wire bus master by bit-banging a single
// GPIO pin.
//
// The data line is open-drain: the master only ever drives it low or releases
// it, and relies on an external pull-up resistor of roughly 4.7kΩ to bring it
// back high. The internal pull-up of most hosts is too weak to meet the
// rise-time budget; without the external resistor devices are detected
// unreliably, if at all.
//
// Bit slots are 60µs long and the sampling windows inside them are 15µs, so
// the delays between pin operations must be reasonably accurate. Timing is
// busy-waited and each pulse sequence is bracketed by a critical section (see
// CritSection); on a stock preemptive kernel this is best effort and an
// occasional corrupted slot must be expected. Callers retry; the driver does
// not.
//
// Only a single device per bus is supported for discovery: the ROM search
// algorithm needed to enumerate several devices is not implemented. Devices
// with known ROM codes can still share the bus and be addressed individually
// with SendCommand.
//
// # Datasheet
//
// https://www.analog.com/en/resources/technical-articles/1wire-communication-through-software.html
package onewiregpio

import (
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	// Pull is applied to the pin whenever the bus is released. It defaults to
	// gpio.PullUp, which matches most wiring but does not replace the external
	// pull-up resistor. Use gpio.Float on hosts whose internal pull-up is
	// strong enough to distort the presence pulse.
	Pull gpio.Pull

	// Delay busy-waits for the given duration. It defaults to time.Sleep and
	// exists so tests can run the protocol against a virtual clock.
	Delay func(time.Duration)

	// Crit bounds every timed pulse sequence. It defaults to pinning the
	// goroutine to its OS thread.
	Crit CritSection
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{Pull: gpio.PullUp}

// New returns a bus master that bit-bangs the 1-wire protocol on pin p.
//
// The returned object implements onewire.Bus and can be used with device
// drivers such as ds18b20. It releases the bus so the line idles high;
// discovery of the attached device is done separately with ReadROM or Search.
func New(p gpio.PinIO, opts *Opts) (*Dev, error) {
	if opts == nil {
		opts = &DefaultOpts
	}
	d := &Dev{p: p, pull: opts.Pull, delay: opts.Delay, crit: opts.Crit}
	if d.pull == gpio.PullNoChange {
		d.pull = gpio.PullUp
	}
	if d.delay == nil {
		d.delay = time.Sleep
	}
	if d.crit == nil {
		d.crit = lockOSThread{}
	}
	// Let the bus idle high.
	d.release()
	if d.err != nil {
		return nil, d.err
	}
	return d, nil
}

// Dev is a handle to a 1-wire bus on a GPIO pin and implements the
// onewire.Bus interface.
//
// Dev implements a persistent error model: if the pin itself fails it places
// itself into an error state and immediately returns the last error on all
// subsequent calls. Conditions observed on the 1-wire bus (missing device,
// short, malformed presence pulse) are not persistent and implement the
// onewire.BusError interface to indicate this fact.
type Dev struct {
	sync.Mutex                     // lock for the bus while a transaction is in progress
	p          gpio.PinIO          // open-drain data line
	pull       gpio.Pull           // pull applied while the bus is released
	delay      func(time.Duration) // blocking busy-wait
	crit       CritSection         // masks preemption during pulse sequences
	err        error               // persistent error, device will no longer operate
}

func (d *Dev) String() string {
	return "onewiregpio{" + d.p.String() + "}"
}

// Halt implements conn.Resource. It releases the bus.
func (d *Dev) Halt() error {
	d.Lock()
	defer d.Unlock()
	d.release()
	return d.err
}

// Q returns the data line, implementing onewire.Pins.
func (d *Dev) Q() gpio.PinIO {
	return d.p
}

// Reset issues a reset pulse and waits for a presence pulse in reply.
//
// It returns nil if a device responded, ErrNoDevice if the bus is idle, and
// one of the other Err values if the line misbehaved electrically. Every bus
// transaction starts with a reset; this is exported for callers that want to
// probe the bus without transferring anything.
func (d *Dev) Reset() error {
	d.Lock()
	defer d.Unlock()
	return d.reset()
}

// WriteBit transmits a single bit.
func (d *Dev) WriteBit(bit bool) error {
	d.Lock()
	defer d.Unlock()
	d.writeBit(bit)
	return d.err
}

// ReadBit generates a read slot and samples the line.
func (d *Dev) ReadBit() (bool, error) {
	d.Lock()
	defer d.Unlock()
	bit := d.readBit()
	return bit, d.err
}

// WriteByte transmits a byte, least significant bit first.
func (d *Dev) WriteByte(b byte) error {
	d.Lock()
	defer d.Unlock()
	d.writeByte(b)
	return d.err
}

// ReadByte reads a byte, least significant bit first.
func (d *Dev) ReadByte() (byte, error) {
	d.Lock()
	defer d.Unlock()
	b := d.readByte()
	return b, d.err
}

// Write transmits len(p) bytes on the bus.
//
// A bus fault in the middle of the transfer is not detectable at this layer;
// a caller that needs fault isolation issues a fresh Reset and retries.
func (d *Dev) Write(p []byte) (int, error) {
	d.Lock()
	defer d.Unlock()
	d.writeBytes(p)
	if d.err != nil {
		return 0, d.err
	}
	return len(p), nil
}

// Read fills p with bytes read from the bus.
func (d *Dev) Read(p []byte) (int, error) {
	d.Lock()
	defer d.Unlock()
	d.readBytes(p)
	if d.err != nil {
		return 0, d.err
	}
	return len(p), nil
}

// ReadROM reads the ROM code of the only device on the bus.
//
// It must not be used when more than one device is attached: all of them
// answer at once and the wire-ANDed reply is garbage. The CRC byte is
// returned as read and not checked here; use ROMCode.Valid or Search when
// validation is wanted.
func (d *Dev) ReadROM() (ROMCode, error) {
	d.Lock()
	defer d.Unlock()
	var rom ROMCode
	if err := d.reset(); err != nil {
		return rom, err
	}
	d.writeByte(cmdReadROM)
	d.readBytes(rom[:])
	// Dummy function command so the transaction ends in a defined state.
	d.writeByte(cmdRecall)
	return rom, d.err
}

// SendCommand addresses the device with the given ROM code and sends it a
// function command.
//
// Several devices may share the bus as long as their ROM codes are already
// known.
func (d *Dev) SendCommand(rom ROMCode, cmd byte) error {
	d.Lock()
	defer d.Unlock()
	if err := d.reset(); err != nil {
		return err
	}
	d.writeByte(cmdMatchROM)
	d.writeBytes(rom[:])
	d.writeByte(cmd)
	return d.err
}

// Broadcast sends a function command that every device on the bus executes.
func (d *Dev) Broadcast(cmd byte) error {
	d.Lock()
	defer d.Unlock()
	if err := d.reset(); err != nil {
		return err
	}
	d.writeByte(cmdSkipROM)
	d.writeByte(cmd)
	return d.err
}

// Ready samples the bus with a single read slot.
//
// Devices hold the line low while busy with a long-running command such as a
// temperature conversion, so true means the previously issued command has
// completed. What the sample means is defined by the device's datasheet;
// Ready only exposes the raw bit.
func (d *Dev) Ready() (bool, error) {
	d.Lock()
	defer d.Unlock()
	bit := d.readBit()
	return bit, d.err
}

// Tx performs a bus transaction: reset, write all of w, then read len(r)
// bytes into r. It implements onewire.Bus.
//
// Strong pull-up is rejected: an open-drain GPIO master must never drive the
// line high, so parasitically powered devices need their own supply pin.
func (d *Dev) Tx(w, r []byte, power onewire.Pullup) error {
	if power == onewire.StrongPullup {
		return errStrongPullup
	}
	d.Lock()
	defer d.Unlock()
	if err := d.reset(); err != nil {
		return err
	}
	d.writeBytes(w)
	d.readBytes(r)
	return d.err
}

// Search returns the address of the device on the bus, implementing
// onewire.Bus.
//
// This master does not implement the ROM search algorithm, so Search is
// limited to single-drop buses: it reads the lone device's ROM code and
// validates its CRC. When several devices answer at once their wire-ANDed
// replies fail the CRC check and an error is returned. An idle bus returns an
// empty slice.
func (d *Dev) Search(alarmOnly bool) ([]onewire.Address, error) {
	if alarmOnly {
		return nil, errAlarmSearch
	}
	rom, err := d.ReadROM()
	if err != nil {
		if err == ErrNoDevice {
			return nil, nil
		}
		return nil, err
	}
	if !rom.Valid() {
		return nil, errBadROMCRC
	}
	return []onewire.Address{rom.Address()}, nil
}

//

// writeByte emits the 8 bits of b, least significant first.
func (d *Dev) writeByte(b byte) {
	for i := 0; i < 8; i++ {
		d.writeBit(b&1 != 0)
		b >>= 1
	}
}

// readByte accumulates 8 bits, least significant first.
func (d *Dev) readByte() byte {
	var b byte
	for i := 0; i < 8; i++ {
		b >>= 1
		if d.readBit() {
			b |= 0x80
		}
	}
	return b
}

func (d *Dev) writeBytes(p []byte) {
	for _, b := range p {
		d.writeByte(b)
	}
}

func (d *Dev) readBytes(p []byte) {
	for i := range p {
		p[i] = d.readByte()
	}
}

const (
	cmdReadROM  = 0x33 // read the ROM code of the only device on the bus
	cmdMatchROM = 0x55 // address the device whose ROM code follows
	cmdSkipROM  = 0xcc // address every device at once
	cmdRecall   = 0xb8 // no-op function command issued after a ROM read
)

var _ conn.Resource = &Dev{}
var _ onewire.Bus = &Dev{}
var _ onewire.Pins = &Dev{}
