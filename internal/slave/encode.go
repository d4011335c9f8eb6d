// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"
	"log/slog"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/modbus"
)

// writeback collects what a response leaves to do once the engine lock is
// released.
type writeback struct {
	sent           bool
	slots          []int
	effects        []effect
	addressChanged bool
	address        byte
}

// note records the follow-up of a value written through b.
func (wb *writeback) note(b registers.Binding, v float64) {
	if b.Persistent() {
		wb.slots = append(wb.slots, b.Slot)
	}
	if b.Kind == registers.KindAnnotated && b.Effect != "" {
		wb.effects = append(wb.effects, effect{name: b.Effect, value: v})
	}
}

type encoderFunc func(e *Engine, req *PendingRequest, wb *writeback) error

var encoders = [numClasses]encoderFunc{
	ClassInteger:      (*Engine).encodeRegisters,
	ClassLong:         (*Engine).encodeRegisters,
	ClassFloat:        (*Engine).encodeRegisters,
	ClassCoil:         (*Engine).encodeCoils,
	ClassDiagnostic:   (*Engine).encodeDiagnostic,
	ClassForceAddress: (*Engine).encodeForceAddress,
}

// encode builds the response to req into the TX ring. A failing encoder is
// rolled back and replaced by an exception frame; broadcast responses are
// rolled back entirely. Caller must hold e.mu with the TX path idle.
func (e *Engine) encode(req *PendingRequest) writeback {
	var wb writeback
	mark := e.tx.Mark()

	var err error
	if fn := encoders[req.Class]; fn != nil {
		err = fn(e, req, &wb)
	} else {
		err = &modbus.ExceptionError{Code: req.ExceptionCode}
	}
	if err != nil {
		e.tx.Rollback(mark)
		code := exceptionCode(err)
		e.counters.Inc(CntExceptions)
		slog.Warn("Answering with exception", "fc", req.FunctionCode, "class", req.Class,
			"register", req.StartRegister, "code", code, "err", err)
		e.putException(req, code)
	}

	if req.Broadcast || e.tx.Since(mark) == 0 {
		e.tx.Rollback(mark)
		return wb
	}
	crc := e.tx.ChecksumSince(mark)
	e.tx.Put(byte(crc))
	e.tx.Put(byte(crc >> 8))
	e.txBusy = true
	e.counters.Inc(CntResponses)
	wb.sent = true
	return wb
}

// putPrefix emits the address field matching the request's addressing mode.
func (e *Engine) putPrefix(req *PendingRequest) {
	if req.LongAddress {
		var serial [4]byte
		binary.BigEndian.PutUint32(serial[:], e.device.SerialNumber)
		e.tx.Put(modbus.LongAddressMarker)
		e.tx.Write(serial[:])
		return
	}
	e.tx.Put(e.device.SlaveAddress)
}

func (e *Engine) putHeader(req *PendingRequest) {
	e.putPrefix(req)
	e.tx.Put(req.FunctionCode)
}

func (e *Engine) putUint16(v uint16) {
	e.tx.Put(byte(v >> 8))
	e.tx.Put(byte(v))
}

// putEcho emits the address and quantity/value words of a write request.
func (e *Engine) putEcho(req *PendingRequest) {
	e.putUint16(req.WireAddress)
	e.putUint16(req.WireQuantity)
}
