// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"fmt"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/modbus"
)

// PayloadSize bounds the data a write request can carry.
const PayloadSize = 256

// RegisterClass selects the response encoder and its silence timer.
type RegisterClass uint8

const (
	ClassInteger RegisterClass = iota
	ClassLong
	ClassFloat
	ClassCoil
	ClassDiagnostic
	ClassForceAddress
	// ClassException carries an exception decided while receiving.
	ClassException

	numClasses
)

var classNames = [numClasses]string{
	ClassInteger:      "integer",
	ClassLong:         "long",
	ClassFloat:        "float",
	ClassCoil:         "coil",
	ClassDiagnostic:   "diagnostic",
	ClassForceAddress: "force-address",
	ClassException:    "exception",
}

func (c RegisterClass) String() string {
	if c < numClasses {
		return classNames[c]
	}
	return fmt.Sprintf("RegisterClass(%d)", uint8(c))
}

// width is the wire width in bytes of one value of the class.
func (c RegisterClass) width() int {
	switch c {
	case ClassLong, ClassFloat:
		return 4
	default:
		return 2
	}
}

// PendingRequest is a classified, CRC-checked request waiting for its
// response. It is not modified after the receiver built it.
type PendingRequest struct {
	SlaveAddress byte
	FunctionCode byte

	// StartRegister is 1-based with the byte-order / band offset removed.
	StartRegister int
	// Count is in values: registers for 16-bit classes, 32-bit values for
	// long and float, coils for coils.
	Count int
	Class RegisterClass
	Table registers.TableID
	Write bool

	ByteCount   int
	LongAddress bool
	Broadcast   bool
	Order       modbus.ByteOrder
	Extended    bool

	// WireAddress and WireQuantity are the address and quantity (or single
	// value) words as received, echoed by write responses.
	WireAddress  uint16
	WireQuantity uint16

	// ExceptionCode is set for ClassException.
	ExceptionCode byte

	Payload [PayloadSize]byte
}

// step is the register number distance between consecutive values.
func (r *PendingRequest) step() int {
	if r.Class.width() == 4 {
		return 2
	}
	return 1
}
