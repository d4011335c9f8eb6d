// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"errors"
	"fmt"

	"github.com/ffutop/analyzer-rtu/modbus"
)

// ErrUnsupportedFunction is returned for function codes the slave does not serve.
var ErrUnsupportedFunction = errors.New("rtu: unsupported function code")

// ErrNeedMore is returned when the header is too short to size the frame.
var ErrNeedMore = errors.New("rtu: need more bytes to size frame")

// PrefixSize returns the address field width implied by the first byte.
func PrefixSize(first byte) int {
	if first == modbus.LongAddressMarker {
		return LongPrefixSize
	}
	return ShortPrefixSize
}

// CalculateRequestLength returns the expected total length of a request ADU
// (address field + PDU + CRC). header holds the bytes received so far,
// beginning with the address field.
func CalculateRequestLength(header []byte) (int, error) {
	if len(header) == 0 {
		return 0, ErrNeedMore
	}
	prefix := PrefixSize(header[0])
	if len(header) <= prefix {
		return 0, ErrNeedMore
	}

	funcCode := header[prefix]
	switch funcCode {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		// [addr, Func, Addr(2), Val(2), CRC(2)]
		return prefix + queryBodySize + CRCSize, nil
	case modbus.FuncCodeWriteMultipleRegisters:
		// [addr, Func, Addr(2), Quant(2), ByteCount(1), Data(N), CRC(2)]
		if len(header) < prefix+writeMultipleHeadSize {
			return 0, fmt.Errorf("need %d bytes to determine length for 0x%02X, got %d: %w",
				prefix+writeMultipleHeadSize, funcCode, len(header), ErrNeedMore)
		}
		byteCount := int(header[prefix+writeMultipleHeadSize-1])
		return prefix + writeMultipleHeadSize + byteCount + CRCSize, nil
	case modbus.FuncCodeDiagnosticSample:
		return prefix + diagnosticBodySize + CRCSize, nil
	case modbus.FuncCodeForceSlaveAddress:
		return prefix + forceAddressBodySize + CRCSize, nil
	default:
		return 0, fmt.Errorf("0x%02X: %w", funcCode, ErrUnsupportedFunction)
	}
}
