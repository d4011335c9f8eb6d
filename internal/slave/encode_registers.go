// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/ffutop/analyzer-rtu/internal/registers"
)

// maxWriteValues bounds the values of one write-multiple request.
const maxWriteValues = PayloadSize / 2

// encodeRegisters serves the integer, long and float classes.
func (e *Engine) encodeRegisters(req *PendingRequest, wb *writeback) error {
	if req.Write {
		return e.writeRegisters(req, wb)
	}
	return e.readRegisters(req)
}

func (e *Engine) readRegisters(req *PendingRequest) error {
	lock := e.device.lock()
	e.putHeader(req)
	e.tx.Put(byte(req.Count * req.Class.width()))
	for i := 0; i < req.Count; i++ {
		reg := req.StartRegister + i*req.step()
		b, err := e.disp.Resolve(req.Table, reg, registers.Read, lock)
		if err != nil {
			return err
		}
		v, err := e.store.Float(b)
		if err != nil {
			return err
		}
		e.putValue(req, v)
	}
	return nil
}

// putValue emits v in the wire representation of the request's class.
func (e *Engine) putValue(req *PendingRequest, v float64) {
	var word [4]byte
	switch req.Class {
	case ClassInteger:
		// A 16-bit word carries either a signed or an unsigned value.
		e.putUint16(uint16(int32(saturate(v, math.MinInt16, math.MaxUint16))))
		return
	case ClassLong:
		req.Order.Put(word[:], uint32(int32(saturate(v, math.MinInt32, math.MaxInt32))))
	default:
		req.Order.Put(word[:], math.Float32bits(float32(v)))
	}
	e.tx.Write(word[:])
}

// value decodes the i-th value of a write payload. 32-bit payloads are
// already in ABCD order.
func (req *PendingRequest) value(i int) float64 {
	switch req.Class {
	case ClassInteger:
		return float64(int16(binary.BigEndian.Uint16(req.Payload[2*i:])))
	case ClassLong:
		return float64(int32(binary.BigEndian.Uint32(req.Payload[4*i:])))
	default:
		return float64(math.Float32frombits(binary.BigEndian.Uint32(req.Payload[4*i:])))
	}
}

// writeRegisters resolves and checks every target before it stores anything,
// so a request either applies completely or not at all.
func (e *Engine) writeRegisters(req *PendingRequest, wb *writeback) error {
	if req.Count > maxWriteValues {
		return fmt.Errorf("%d values: %w", req.Count, ErrBadFunction)
	}
	lock := e.device.lock()
	var bindings [maxWriteValues]registers.Binding
	for i := 0; i < req.Count; i++ {
		reg := req.StartRegister + i*req.step()
		b, err := e.disp.Resolve(req.Table, reg, registers.Write, lock)
		if err != nil {
			return err
		}
		bindings[i] = b
	}
	for i := 0; i < req.Count; i++ {
		v := req.value(i)
		if err := e.store.SetFloat(bindings[i], v); err != nil {
			return fmt.Errorf("write %d of %d: %w", i+1, req.Count, err)
		}
		wb.note(bindings[i], v)
	}
	e.putHeader(req)
	e.putEcho(req)
	return nil
}

func saturate(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, math.Round(v)))
}
