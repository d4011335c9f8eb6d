// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package crc implements the Modbus RTU CRC-16 (polynomial 0xA001, reflected).
package crc

const polynomial = 0xA001

// CRC is a running Modbus checksum.
type CRC struct {
	high byte
	low  byte
}

// Reset loads the 0xFFFF preset.
func (crc *CRC) Reset() *CRC {
	crc.high = 0xFF
	crc.low = 0xFF
	return crc
}

// PushByte folds one byte into the register.
func (crc *CRC) PushByte(b byte) *CRC {
	reg := uint16(crc.high)<<8 | uint16(crc.low)
	reg ^= uint16(b & 0xFF)
	for i := 0; i < 8; i++ {
		if reg&0x0001 != 0 {
			reg = (reg >> 1) ^ polynomial
		} else {
			reg >>= 1
		}
	}
	crc.high = byte(reg >> 8)
	crc.low = byte(reg)
	return crc
}

func (crc *CRC) PushBytes(bs []byte) *CRC {
	for _, b := range bs {
		crc.PushByte(b)
	}
	return crc
}

// PushWrapped folds n bytes of a circular buffer starting at start. remain is
// the number of bytes left before the physical end of buf; once it is used up
// reading continues at index start-len(buf), i.e. from the front of buf.
func (crc *CRC) PushWrapped(buf []byte, start, remain, n int) *CRC {
	idx := start
	for i := 0; i < n; i++ {
		if i == remain {
			idx -= len(buf)
		}
		crc.PushByte(buf[idx])
		idx++
	}
	return crc
}

func (crc *CRC) Value() uint16 {
	return uint16(crc.high)<<8 | uint16(crc.low)
}

// Checksum returns the CRC of data.
func Checksum(data []byte) uint16 {
	var c CRC
	return c.Reset().PushBytes(data).Value()
}

// Append appends the checksum of frame to frame, low byte first.
func Append(frame []byte) []byte {
	sum := Checksum(frame)
	return append(frame, byte(sum), byte(sum>>8))
}

// Valid reports whether the last two bytes of frame are its correct checksum.
func Valid(frame []byte) bool {
	if len(frame) < 3 {
		return false
	}
	return Checksum(frame) == 0
}
