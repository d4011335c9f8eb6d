// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import "github.com/ffutop/analyzer-rtu/internal/registers"

func (e *Engine) encodeCoils(req *PendingRequest, wb *writeback) error {
	lock := e.device.lock()
	if req.Write {
		b, err := e.disp.Resolve(registers.TableCoil, req.StartRegister, registers.Write, lock)
		if err != nil {
			return err
		}
		v := float64(req.Payload[0])
		if err := e.store.SetFloat(b, v); err != nil {
			return err
		}
		wb.note(b, v)
		e.putHeader(req)
		e.putEcho(req)
		return nil
	}

	// Coils are packed LSB first, eight per byte.
	e.putHeader(req)
	e.tx.Put(byte((req.Count + 7) / 8))
	var packed byte
	for i := 0; i < req.Count; i++ {
		b, err := e.disp.Resolve(registers.TableCoil, req.StartRegister+i, registers.Read, lock)
		if err != nil {
			return err
		}
		v, err := e.store.Float(b)
		if err != nil {
			return err
		}
		if v != 0 {
			packed |= 1 << (i % 8)
		}
		if i%8 == 7 || i == req.Count-1 {
			e.tx.Put(packed)
			packed = 0
		}
	}
	return nil
}
