// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package common contains functions used across multiple packages. For
// example, a CRC8 calculation
package common

// CRC8Dallas calculates the 8-bit CRC used by Dallas/Maxim 1-wire devices
// (X^8+X^5+X^4+1, bit-reversed, zero init) and returns the calculated value.
// Devices append it to their ROM code and scratchpad; running it over the
// data plus the received CRC byte yields zero when the data is intact.
func CRC8Dallas(bytes []byte) byte {
	var crc byte
	for _, val := range bytes {
		crc ^= val
		for i := 0; i < 8; i++ {
			if (crc & 0x01) == 0 {
				crc >>= 1
			} else {
				crc = (crc >> 1) ^ 0x8c
			}
		}
	}
	return crc
}
