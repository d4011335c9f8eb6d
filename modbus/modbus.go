// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package modbus holds the protocol constants shared by the framer, the
// register dispatcher and the response encoders.
package modbus

import "fmt"

// Function codes served by the analyzer.
const (
	FuncCodeReadCoils              = 0x01
	FuncCodeReadDiscreteInputs     = 0x02
	FuncCodeReadHoldingRegisters   = 0x03
	FuncCodeReadInputRegisters     = 0x04
	FuncCodeWriteSingleCoil        = 0x05
	FuncCodeWriteSingleRegister    = 0x06
	FuncCodeWriteMultipleRegisters = 0x10

	// Vendor extensions.
	FuncCodeDiagnosticSample   = 66
	FuncCodeForceSlaveAddress  = 68
	FuncCodeExceptionFlag byte = 0x80
)

// Exception codes. Only these four are ever put on the wire.
const (
	ExceptionCodeIllegalFunction    = 0x01 // BAD_FXN
	ExceptionCodeIllegalDataAddress = 0x02 // BAD_ADDRESS
	ExceptionCodeIllegalDataValue   = 0x03 // BAD_VALUE
	ExceptionCodeSlaveDeviceFailure = 0x04 // SLAVE_FAIL
)

// ValidException reports whether code belongs to the supported exception set.
func ValidException(code byte) bool {
	return code >= ExceptionCodeIllegalFunction && code <= ExceptionCodeSlaveDeviceFailure
}

// Addressing.
const (
	BroadcastAddress byte = 0x00
	// LongAddressMarker opens a frame addressed by the 4-byte pipe serial
	// number instead of the 1-byte slave address.
	LongAddressMarker byte = 0xFA
)

// ProtocolDataUnit (PDU) is independent of underlying communication layers.
type ProtocolDataUnit struct {
	FunctionCode byte
	Data         []byte
}

// ExceptionError carries a Modbus exception code through Go error returns.
type ExceptionError struct {
	Code byte
}

func (e *ExceptionError) Error() string {
	var name string
	switch e.Code {
	case ExceptionCodeIllegalFunction:
		name = "illegal function"
	case ExceptionCodeIllegalDataAddress:
		name = "illegal data address"
	case ExceptionCodeIllegalDataValue:
		name = "illegal data value"
	case ExceptionCodeSlaveDeviceFailure:
		name = "slave device failure"
	default:
		name = "unknown"
	}
	return fmt.Sprintf("modbus: exception '%v' (%s)", e.Code, name)
}
