// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"fmt"
	"math"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/modbus"
	"github.com/ffutop/analyzer-rtu/modbus/rtu"
)

// encodeDiagnostic answers the vendor diagnostic sample with a fixed block of
// 32-bit values in ABCD order: frequency, reference power, the tuning value
// echoed as received, temperature, then zero padding.
func (e *Engine) encodeDiagnostic(req *PendingRequest, _ *writeback) error {
	src := e.disp.Diagnostics
	e.putHeader(req)
	e.tx.Put(rtu.DiagnosticResponseRegs * 2)

	e.putSample(src.Frequency)
	e.putSample(src.ReferencePower)
	e.tx.Write(req.Payload[:4])
	e.putSample(src.Temperature)
	for i := 4; i < rtu.DiagnosticResponseRegs/2; i++ {
		e.tx.Write([]byte{0, 0, 0, 0})
	}
	return nil
}

// putSample emits the float-table register reg, or zero when it is not
// provisioned.
func (e *Engine) putSample(reg int) {
	var v float64
	if reg > 0 {
		if b, err := e.disp.Lookup(registers.TableFloat, reg); err == nil {
			v, _ = e.store.Float(b)
		}
	}
	var word [4]byte
	modbus.OrderABCD.Put(word[:], math.Float32bits(float32(v)))
	e.tx.Write(word[:])
}

// encodeForceAddress changes the slave address, then echoes the request
// under the new address. With an address slot in the register map the new
// address is stored and handed to the persister.
func (e *Engine) encodeForceAddress(req *PendingRequest, wb *writeback) error {
	addr := req.Payload[4]
	if b := e.disp.Device.Address; b != nil {
		if err := e.store.SetFloat(*b, float64(addr)); err != nil {
			return fmt.Errorf("store slave address: %w", err)
		}
		wb.slots = append(wb.slots, b.Slot)
	}
	e.device.SlaveAddress = addr
	wb.addressChanged = true
	wb.address = addr

	e.putHeader(req)
	e.tx.Write(req.Payload[:5])
	return nil
}

// StoredAddress returns the slave address kept in the address slot of d, if
// the map has one and it holds a valid unicast address.
func StoredAddress(d *registers.Dispatcher, s *registers.Store) (byte, bool) {
	b := d.Device.Address
	if b == nil {
		return 0, false
	}
	v, err := s.Float(*b)
	if err != nil || v < 1 || v > maxSlaveAddress {
		return 0, false
	}
	return byte(v), true
}
