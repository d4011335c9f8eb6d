// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"errors"
	"log/slog"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/modbus"
)

// ErrBadFunction means the function code cannot be served by the addressed
// register class.
var ErrBadFunction = errors.New("slave: function not supported for register class")

// exceptionCode maps an encoder error to the Modbus exception it answers with.
func exceptionCode(err error) byte {
	var ex *modbus.ExceptionError
	switch {
	case errors.As(err, &ex):
		return ex.Code
	case errors.Is(err, registers.ErrNotFound):
		return modbus.ExceptionCodeIllegalDataAddress
	case errors.Is(err, registers.ErrPermission):
		return modbus.ExceptionCodeIllegalDataValue
	case errors.Is(err, ErrBadFunction):
		return modbus.ExceptionCodeIllegalFunction
	default:
		return modbus.ExceptionCodeSlaveDeviceFailure
	}
}

// putException builds {prefix, fc|0x80, code} into the empty TX ring. Codes
// outside the supported set produce no frame. The caller appends the CRC.
func (e *Engine) putException(req *PendingRequest, code byte) {
	if !modbus.ValidException(code) {
		slog.Debug("Ignoring invalid exception code", "code", code, "fc", req.FunctionCode)
		return
	}
	e.putPrefix(req)
	e.tx.Put(req.FunctionCode | modbus.FuncCodeExceptionFlag)
	e.tx.Put(code)
}
