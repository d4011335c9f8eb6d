// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/modbus"
	"github.com/ffutop/analyzer-rtu/modbus/rtu"
)

// Request limits.
const (
	maxReadRegisters = 125
	maxReadCoils     = 2000
	maxSlaveAddress  = 247
)

// Address band layout of the holding/input registers outside the integer and
// long bands.
const (
	bandWidth    = 10000
	orderStep    = 2000
	extendedBand = 60000
	longViaFloat = 8000
)

// receive runs the frame receiver until the RX ring holds no further complete
// frame. Caller must hold e.mu.
func (e *Engine) receive() {
	for e.receiveFrame() {
	}
}

// receiveFrame consumes at most one frame and reports whether another one may
// follow.
func (e *Engine) receiveFrame() bool {
	n := e.rx.Len()
	if n == 0 {
		e.cancelWatchdog()
		return false
	}
	if n < rtu.MinRequestSize {
		e.armWatchdog(n)
		return false
	}
	e.cancelWatchdog()

	frame := e.scratch[:e.rx.Copy(e.scratch[:], 0)]
	prefix := rtu.PrefixSize(frame[0])

	broadcast := false
	if prefix == rtu.LongPrefixSize {
		if serial := binary.BigEndian.Uint32(frame[1:5]); serial != e.device.SerialNumber {
			e.dropAll(CntAddressMismatch, "serial number mismatch", frame)
			return false
		}
	} else {
		switch frame[0] {
		case e.device.SlaveAddress:
		case modbus.BroadcastAddress:
			broadcast = true
		default:
			e.dropAll(CntAddressMismatch, "slave address mismatch", frame)
			return false
		}
	}

	length, err := rtu.CalculateRequestLength(frame)
	if errors.Is(err, rtu.ErrUnsupportedFunction) {
		e.dropAll(CntUnknownFunction, "unsupported function", frame)
		return false
	}
	if err != nil || length > n {
		// 0x10 and long-addressed frames may still be arriving.
		e.armWatchdog(n)
		return false
	}
	frame = frame[:length]

	want := e.rx.Checksum(0, length-rtu.CRCSize)
	if got := uint16(frame[length-2]) | uint16(frame[length-1])<<8; got != want {
		e.dropAll(CntCRCErrors, "crc mismatch", frame)
		return false
	}
	e.counters.Inc(CntBusMessages)

	req, ok := e.decode(frame, prefix, broadcast)
	e.rx.Discard(length)
	if !ok {
		return true
	}
	if _, ok := e.queue.Create(req); !ok {
		e.counters.Inc(CntQueueOverruns)
		slog.Warn("Request queue full, dropping", "fc", req.FunctionCode, "class", req.Class)
		return true
	}
	e.armClass(req.Class, e.timing.Delays[req.Class])
	return true
}

// dropAll discards the whole RX ring.
func (e *Engine) dropAll(cnt Counter, reason string, frame []byte) {
	e.counters.Inc(cnt)
	slog.Debug("Dropping frame", "reason", reason, "len", len(frame), "frame", hex.EncodeToString(frame))
	e.rx.Clear()
}

// decode classifies a complete, CRC-checked frame. It reports false when the
// frame is dropped without any response.
func (e *Engine) decode(frame []byte, prefix int, broadcast bool) (PendingRequest, bool) {
	pdu := frame[prefix : len(frame)-rtu.CRCSize]
	req := PendingRequest{
		SlaveAddress: frame[0],
		FunctionCode: pdu[0],
		LongAddress:  prefix == rtu.LongPrefixSize,
		Broadcast:    broadcast,
	}
	if req.LongAddress {
		req.SlaveAddress = e.device.SlaveAddress
	}

	switch req.FunctionCode {
	case modbus.FuncCodeReadCoils, modbus.FuncCodeReadDiscreteInputs:
		if broadcast {
			return e.drop(&req, CntMalformed, "broadcast read")
		}
		readQuery(&req, pdu)
		req.Class, req.Table = ClassCoil, registers.TableCoil
		req.StartRegister = int(req.WireAddress) + 1
		req.Count = int(req.WireQuantity)
		if req.Count == 0 || req.Count > maxReadCoils {
			req.fail(modbus.ExceptionCodeIllegalDataValue)
		}

	case modbus.FuncCodeReadHoldingRegisters, modbus.FuncCodeReadInputRegisters:
		if broadcast {
			return e.drop(&req, CntMalformed, "broadcast read")
		}
		readQuery(&req, pdu)
		e.classify(&req, int(req.WireAddress)+1)
		qty := int(req.WireQuantity)
		req.Count = qty / req.step()
		if qty == 0 || qty > maxReadRegisters || req.Count == 0 {
			req.fail(modbus.ExceptionCodeIllegalDataValue)
		}

	case modbus.FuncCodeWriteSingleCoil:
		readQuery(&req, pdu)
		switch req.WireQuantity {
		case 0xFF00:
			req.Payload[0] = 1
		case 0x0000:
		default:
			return e.drop(&req, CntMalformed, "invalid coil value")
		}
		req.Class, req.Table = ClassCoil, registers.TableCoil
		req.StartRegister = int(req.WireAddress) + 1
		req.Count = 1
		req.Write = true

	case modbus.FuncCodeWriteSingleRegister:
		readQuery(&req, pdu)
		e.classify(&req, int(req.WireAddress)+1)
		req.Count = 1
		req.Write = true
		req.ByteCount = 2
		copy(req.Payload[:2], pdu[3:5])
		if req.Class.width() != 2 {
			req.fail(modbus.ExceptionCodeIllegalFunction)
		}

	case modbus.FuncCodeWriteMultipleRegisters:
		readQuery(&req, pdu)
		e.classify(&req, int(req.WireAddress)+1)
		req.Write = true
		req.ByteCount = int(pdu[5])
		qty := int(req.WireQuantity)
		req.Count = qty / req.step()
		if req.ByteCount != qty*2 || req.ByteCount == 0 || req.ByteCount > rtu.MaxWritePayload || qty%req.step() != 0 {
			req.fail(modbus.ExceptionCodeIllegalDataValue)
			break
		}
		copy(req.Payload[:req.ByteCount], pdu[6:6+req.ByteCount])
		if req.Class.width() == 4 {
			for off := 0; off+4 <= req.ByteCount; off += 4 {
				req.Order.Canonical(req.Payload[off : off+4])
			}
		}

	case modbus.FuncCodeDiagnosticSample:
		if broadcast {
			return e.drop(&req, CntMalformed, "broadcast read")
		}
		req.Class = ClassDiagnostic
		req.ByteCount = 4
		copy(req.Payload[:4], pdu[1:5])

	case modbus.FuncCodeForceSlaveAddress:
		if serial := binary.BigEndian.Uint32(pdu[1:5]); serial != e.device.SerialNumber {
			return e.drop(&req, CntAddressMismatch, "force address serial mismatch")
		}
		req.Class = ClassForceAddress
		req.Write = true
		req.ByteCount = 5
		copy(req.Payload[:5], pdu[1:6])
		if addr := pdu[5]; addr == modbus.BroadcastAddress || addr > maxSlaveAddress {
			req.fail(modbus.ExceptionCodeIllegalDataValue)
		}
	}

	if req.Class == ClassException {
		slog.Debug("Request rejected", "fc", req.FunctionCode, "code", req.ExceptionCode)
	}
	return req, true
}

func (e *Engine) drop(req *PendingRequest, cnt Counter, reason string) (PendingRequest, bool) {
	e.counters.Inc(cnt)
	slog.Debug("Dropping request", "reason", reason, "fc", req.FunctionCode)
	return PendingRequest{}, false
}

// readQuery decodes the address and quantity/value words shared by the fixed
// 8-byte queries and the 0x10 header.
func readQuery(req *PendingRequest, pdu []byte) {
	req.WireAddress = binary.BigEndian.Uint16(pdu[1:3])
	req.WireQuantity = binary.BigEndian.Uint16(pdu[3:5])
}

// classify resolves a 1-based register number into class, table, byte order
// and the register number to look up.
func (e *Engine) classify(req *PendingRequest, start int) {
	req.Order = modbus.OrderABCD
	switch e.disp.Bands.Classify(start) {
	case registers.TableInteger:
		req.Class, req.Table = ClassInteger, registers.TableInteger
		req.StartRegister = start
		return
	case registers.TableLong:
		req.Class, req.Table = ClassLong, registers.TableLong
		req.StartRegister = start
		return
	}

	band := start - start%bandWidth
	if band == extendedBand {
		req.Class, req.Table = ClassFloat, registers.TableExtended
		req.Extended = true
		req.StartRegister = start
		return
	}

	rem := start - band
	sub := rem - rem%orderStep
	req.Class, req.Table = ClassFloat, registers.TableFloat
	switch sub {
	case 0:
	case orderStep:
		req.Order = modbus.OrderBADC
	case 2 * orderStep:
		req.Order = modbus.OrderCDAB
	case 3 * orderStep:
		req.Order = modbus.OrderDCBA
	case longViaFloat:
		req.Class = ClassLong
	}
	req.StartRegister = start - sub
}

// fail turns req into an exception response carrying code.
func (r *PendingRequest) fail(code byte) {
	r.Class = ClassException
	r.ExceptionCode = code
}
