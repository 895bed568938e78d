// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

// Outcomes of a bus reset. ErrNoDevice is the expected answer on an idle bus;
// the others describe a line that misbehaved electrically. All of them are
// bus conditions, not persistent device errors, and can be retried by the
// caller after fixing whatever the message points at.
var (
	// ErrBusLow means the line did not float high after being released.
	// Almost always a missing or too weak pull-up resistor, or a wiring
	// fault.
	ErrBusLow = busError("onewiregpio: bus not high after release, check wiring and the external pull-up")

	// ErrBusHigh means the line stayed high while the driver held it low.
	ErrBusHigh = busError("onewiregpio: bus not low while driven, driver or wiring fault")

	// ErrBusStuck means the line stayed low after the reset pulse ended.
	ErrBusStuck = shortedBusError("onewiregpio: bus stuck low after reset pulse")

	// ErrPresenceShort means the device released its presence pulse before
	// the minimum 60µs.
	ErrPresenceShort = busError("onewiregpio: presence pulse released too early")

	// ErrPresenceLong means the device was still holding the line low after
	// the maximum 240µs.
	ErrPresenceLong = busError("onewiregpio: presence pulse held too long")

	// ErrNoDevice means no device answered the reset pulse.
	ErrNoDevice = noDevicesError("onewiregpio: no device present")
)

var (
	errStrongPullup = busError("onewiregpio: strong pull-up not supported on an open-drain GPIO master")
	errAlarmSearch  = busError("onewiregpio: alarm search needs the ROM search algorithm, not implemented")
	errBadROMCRC    = busError("onewiregpio: ROM code fails CRC, more than one device on the bus?")
)

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// shortedBusError implements error and onewire.ShortedBusError.
type shortedBusError string

func (e shortedBusError) Error() string   { return string(e) }
func (e shortedBusError) IsShorted() bool { return true }
func (e shortedBusError) BusError() bool  { return true }

// noDevicesError implements error and onewire.NoDevicesError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
