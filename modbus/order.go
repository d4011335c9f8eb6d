// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package modbus

// ByteOrder is the wire ordering of the four bytes A (MSB) .. D (LSB) of a
// 32-bit value.
type ByteOrder uint8

const (
	OrderABCD ByteOrder = iota
	OrderBADC
	OrderCDAB
	OrderDCBA
)

func (o ByteOrder) String() string {
	switch o {
	case OrderABCD:
		return "ABCD"
	case OrderBADC:
		return "BADC"
	case OrderCDAB:
		return "CDAB"
	case OrderDCBA:
		return "DCBA"
	}
	return "invalid"
}

// Put writes v into b[0:4] in order o.
func (o ByteOrder) Put(b []byte, v uint32) {
	a, bb, c, d := byte(v>>24), byte(v>>16), byte(v>>8), byte(v)
	switch o {
	case OrderBADC:
		b[0], b[1], b[2], b[3] = bb, a, d, c
	case OrderCDAB:
		b[0], b[1], b[2], b[3] = c, d, a, bb
	case OrderDCBA:
		b[0], b[1], b[2], b[3] = d, c, bb, a
	default:
		b[0], b[1], b[2], b[3] = a, bb, c, d
	}
}

// Uint32 reads a value encoded in order o from b[0:4].
func (o ByteOrder) Uint32(b []byte) uint32 {
	var a, bb, c, d byte
	switch o {
	case OrderBADC:
		bb, a, d, c = b[0], b[1], b[2], b[3]
	case OrderCDAB:
		c, d, a, bb = b[0], b[1], b[2], b[3]
	case OrderDCBA:
		d, c, bb, a = b[0], b[1], b[2], b[3]
	default:
		a, bb, c, d = b[0], b[1], b[2], b[3]
	}
	return uint32(a)<<24 | uint32(bb)<<16 | uint32(c)<<8 | uint32(d)
}

// Canonical rewrites the 4 bytes in b, received in order o, into ABCD in place.
func (o ByteOrder) Canonical(b []byte) {
	OrderABCD.Put(b, o.Uint32(b))
}
