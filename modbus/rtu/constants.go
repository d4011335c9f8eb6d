// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

const (
	MinSize = 4
	MaxSize = 256

	ExceptionSize = 5

	// CRCSize is the trailing checksum, low byte first.
	CRCSize = 2

	// MinRequestSize is the shortest complete request on the line; fewer
	// buffered bytes always mean an incomplete frame.
	MinRequestSize = 8

	// ShortPrefixSize and LongPrefixSize are the address field widths:
	// [slave] or [0xFA][serial(4, big-endian)].
	ShortPrefixSize = 1
	LongPrefixSize  = 5

	// MaxWritePayload bounds the data section of a write-multiple request.
	MaxWritePayload = 255
)

// Fixed request bodies (function code to last data byte, CRC excluded).
const (
	queryBodySize          = 5 // fc, address(2), quantity/value(2)
	writeMultipleHeadSize  = 6 // fc, address(2), quantity(2), byte count
	diagnosticBodySize     = 5 // fc, tuning value(4)
	forceAddressBodySize   = 6 // fc, serial(4), new address
	DiagnosticResponseRegs = 34
)
