// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package onewiregpio

import (
	"encoding/binary"
	"fmt"

	"periph.io/x/conn/v3/onewire"
	"periph.io/x/onewiregpio/common"
)

// ROMCode is the identity lasered into every 1-wire device, in bus order: a
// family code, a 48-bit serial number and a CRC over the first 7 bytes.
//
// It is read once from the hardware and never changes; device drivers hold on
// to it to address their device.
type ROMCode [8]byte

// ROMCodeFromAddress converts a periph 1-wire address back into bus order.
func ROMCodeFromAddress(a onewire.Address) ROMCode {
	var r ROMCode
	binary.LittleEndian.PutUint64(r[:], uint64(a))
	return r
}

// Family returns the device type code, e.g. 0x28 for a DS18B20.
func (r ROMCode) Family() byte {
	return r[0]
}

// Serial returns the 48-bit serial number.
func (r ROMCode) Serial() uint64 {
	var b [8]byte
	copy(b[:6], r[1:7])
	return binary.LittleEndian.Uint64(b[:])
}

// CRC returns the checksum byte as read from the device.
func (r ROMCode) CRC() byte {
	return r[7]
}

// Valid reports whether the checksum byte matches the first 7 bytes.
func (r ROMCode) Valid() bool {
	return common.CRC8Dallas(r[:7]) == r[7]
}

// Address returns the code as a periph onewire.Address, whose least
// significant byte is the family code.
func (r ROMCode) Address() onewire.Address {
	return onewire.Address(binary.LittleEndian.Uint64(r[:]))
}

func (r ROMCode) String() string {
	return fmt.Sprintf("%02x-%012x", r.Family(), r.Serial())
}
