// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"

	"github.com/ffutop/analyzer-rtu/modbus"
)

// Request PDU builders, used by the bench tooling and the tests to produce
// frames a master would send.

// QueryPDU builds the fixed 4-byte body shared by reads and single writes.
func QueryPDU(funcCode byte, address, value uint16) modbus.ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], value)
	return modbus.ProtocolDataUnit{FunctionCode: funcCode, Data: data}
}

// WriteMultiplePDU builds a 0x10 request. quantity is in 16-bit registers.
func WriteMultiplePDU(address, quantity uint16, payload []byte) modbus.ProtocolDataUnit {
	data := make([]byte, 5, 5+len(payload))
	binary.BigEndian.PutUint16(data[0:2], address)
	binary.BigEndian.PutUint16(data[2:4], quantity)
	data[4] = byte(len(payload))
	data = append(data, payload...)
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeWriteMultipleRegisters, Data: data}
}

// DiagnosticPDU builds a vendor diagnostic-sample request carrying the
// tuning value the slave echoes back.
func DiagnosticPDU(tuning uint32) modbus.ProtocolDataUnit {
	data := make([]byte, 4)
	binary.BigEndian.PutUint32(data, tuning)
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeDiagnosticSample, Data: data}
}

// ForceAddressPDU builds a vendor force-slave-address request.
func ForceAddressPDU(serial uint32, address byte) modbus.ProtocolDataUnit {
	data := make([]byte, 5)
	binary.BigEndian.PutUint32(data, serial)
	data[4] = address
	return modbus.ProtocolDataUnit{FunctionCode: modbus.FuncCodeForceSlaveAddress, Data: data}
}
