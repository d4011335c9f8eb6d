// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"bytes"
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/modbus"
)

func TestReadHoldingScenario(t *testing.T) {
	rig := newRig(t)
	rig.setFloat(t, slotInt1, registers.KindInteger, 1234)
	rig.setFloat(t, slotInt2, registers.KindDouble, -5.6)

	rig.Feed(adu(0x01, 0x03, 0x00, 0x00, 0x00, 0x02))
	rig.Process()

	head := rig.queue.Head()
	if head == nil {
		t.Fatal("no pending request")
	}
	if head.StartRegister != 1 || head.Count != 2 || head.Class != ClassInteger {
		t.Errorf("request = start %d count %d class %v, want 1 2 integer", head.StartRegister, head.Count, head.Class)
	}
	if rig.rx.Len() != 0 {
		t.Errorf("rx holds %d bytes after frame", rig.rx.Len())
	}
	if tm := rig.timer(ClassInteger); tm == nil || !tm.active || tm.d != silenceDelay {
		t.Fatalf("integer silence timer not armed: %+v", tm)
	}

	rig.fireResponse()
	var out bytes.Buffer
	if err := rig.Transmit(&out); err != nil {
		t.Fatal(err)
	}
	want := adu(0x01, 0x03, 0x04, 0x04, 0xD2, 0xFF, 0xFA)
	if !bytes.Equal(out.Bytes(), want) {
		t.Errorf("response = % X, want % X", out.Bytes(), want)
	}
	if rig.Pending() != 0 || rig.Busy() {
		t.Errorf("engine not idle after transmit: %v", rig.Engine)
	}
}

func TestReadIntegerRange(t *testing.T) {
	tests := []struct {
		value float64
		want  []byte
	}{
		{40000, []byte{0x9C, 0x40}},
		{65535, []byte{0xFF, 0xFF}},
		{70000, []byte{0xFF, 0xFF}},
		{-1, []byte{0xFF, 0xFF}},
		{-40000, []byte{0x80, 0x00}},
		{12.4, []byte{0x00, 0x0C}},
	}
	for _, tt := range tests {
		rig := newRig(t)
		// Register 2 is backed by a double.
		rig.setFloat(t, slotInt2, registers.KindDouble, tt.value)
		resp := rig.exchange(t, adu(0x01, 0x03, 0x00, 0x01, 0x00, 0x01))
		want := adu(append([]byte{0x01, 0x03, 0x02}, tt.want...)...)
		if !bytes.Equal(resp, want) {
			t.Errorf("%v: response % X, want % X", tt.value, resp, want)
		}
	}
}

func TestReadResponseByteCount(t *testing.T) {
	tests := []struct {
		name    string
		address uint16
		qty     uint16
		want    int
	}{
		{"integer x1", 0, 1, 2},
		{"integer x8", 0, 8, 16},
		{"float x1", 100, 2, 4},
		{"float x2", 100, 4, 8},
		{"long x2", 300, 4, 8},
		{"float CDAB x1", 4100, 2, 4},
		{"long via float x2", 8100, 4, 8},
		{"extended x4", 60000, 8, 16},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(t)
			resp := rig.exchange(t, adu(0x01, 0x03, byte(tt.address>>8), byte(tt.address), byte(tt.qty>>8), byte(tt.qty)))
			if len(resp) != 3+tt.want+2 {
				t.Fatalf("response % X: length %d, want %d", resp, len(resp), 3+tt.want+2)
			}
			if resp[1] != 0x03 || int(resp[2]) != tt.want {
				t.Errorf("fc %02X byte count %d, want 03 %d", resp[1], resp[2], tt.want)
			}
		})
	}
}

func TestFloatByteOrders(t *testing.T) {
	tests := []struct {
		address uint16
		want    []byte
	}{
		{100, []byte{0x3F, 0xC0, 0x00, 0x00}},
		{2100, []byte{0xC0, 0x3F, 0x00, 0x00}},
		{4100, []byte{0x00, 0x00, 0x3F, 0xC0}},
		{6100, []byte{0x00, 0x00, 0xC0, 0x3F}},
	}
	for _, tt := range tests {
		rig := newRig(t)
		rig.setFloat(t, slotFloat101, registers.KindDouble, 1.5)
		resp := rig.exchange(t, adu(0x01, 0x04, byte(tt.address>>8), byte(tt.address), 0x00, 0x02))
		want := adu(append([]byte{0x01, 0x04, 0x04}, tt.want...)...)
		if !bytes.Equal(resp, want) {
			t.Errorf("address %d: response % X, want % X", tt.address, resp, want)
		}
	}
}

func TestLongViaFloatTable(t *testing.T) {
	rig := newRig(t)
	rig.setFloat(t, slotFloat101, registers.KindDouble, -2.4)
	resp := rig.exchange(t, adu(0x01, 0x03, 0x1F, 0xA4, 0x00, 0x02)) // 8100
	want := adu(0x01, 0x03, 0x04, 0xFF, 0xFF, 0xFF, 0xFE)
	if !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
}

func TestWriteMultipleBadByteCount(t *testing.T) {
	rig := newRig(t)
	rig.setFloat(t, slotInt1, registers.KindInteger, 11)
	rig.setFloat(t, slotInt1+2, registers.KindInteger, 22)

	resp := rig.exchange(t, adu(0x01, 0x10, 0x00, 0x02, 0x00, 0x02, 0x03, 0xAA, 0xBB, 0xCC))
	want := adu(0x01, 0x90, modbus.ExceptionCodeIllegalDataValue)
	if !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
	if v := rig.float(t, slotInt1, registers.KindInteger); v != 11 {
		t.Errorf("register 1 = %v, want 11", v)
	}
	if v := rig.float(t, slotInt1+2, registers.KindInteger); v != 22 {
		t.Errorf("register 3 = %v, want 22", v)
	}
	if got := rig.Counters().Get(CntExceptions); got != 1 {
		t.Errorf("exceptions = %d, want 1", got)
	}
}

func TestWriteMultipleAtomic(t *testing.T) {
	rig := newRig(t)
	// Registers 7 and 8 are volatile, 9 is write-only and refuses writes.
	resp := rig.exchange(t, adu(0x01, 0x10, 0x00, 0x06, 0x00, 0x03, 0x06,
		0x00, 0x01, 0x00, 0x02, 0x00, 0x03))
	want := adu(0x01, 0x90, modbus.ExceptionCodeIllegalDataValue)
	if !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
	for _, slot := range []int{6, 7, slotWriteOnly} {
		if v := rig.float(t, slot, registers.KindInteger); v != 0 {
			t.Errorf("slot %d = %v after refused write", slot, v)
		}
	}

	resp = rig.exchange(t, adu(0x01, 0x10, 0x00, 0x06, 0x00, 0x02, 0x04, 0xFF, 0xFF, 0x01, 0x00))
	want = adu(0x01, 0x10, 0x00, 0x06, 0x00, 0x02)
	if !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
	if v := rig.float(t, 6, registers.KindInteger); v != -1 {
		t.Errorf("register 7 = %v, want -1", v)
	}
	if v := rig.float(t, 7, registers.KindInteger); v != 256 {
		t.Errorf("register 8 = %v, want 256", v)
	}
}

func TestWriteFloatNormalizesOrder(t *testing.T) {
	rig := newRig(t)
	// 2100 selects register 101 in BADC order; 1.5 is 3F C0 00 00.
	resp := rig.exchange(t, adu(0x01, 0x10, 0x08, 0x34, 0x00, 0x02, 0x04, 0xC0, 0x3F, 0x00, 0x00))
	want := adu(0x01, 0x10, 0x08, 0x34, 0x00, 0x02)
	if !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
	if v := rig.float(t, slotFloat101, registers.KindDouble); v != 1.5 {
		t.Errorf("register 101 = %v, want 1.5", v)
	}
	if len(rig.persister.slots) != 0 {
		t.Errorf("volatile write persisted slots %v", rig.persister.slots)
	}
}

func TestWritePersistsAndSchedulesEffects(t *testing.T) {
	rig := newRig(t)

	// Password register while locked.
	resp := rig.exchange(t, adu(0x01, 0x10, 0x00, 0x66, 0x00, 0x02, 0x04, 0x40, 0x20, 0x00, 0x00))
	if want := adu(0x01, 0x90, modbus.ExceptionCodeIllegalDataValue); !bytes.Equal(resp, want) {
		t.Fatalf("locked write: response % X, want % X", resp, want)
	}

	rig.SetUnlocked(true)
	resp = rig.exchange(t, adu(0x01, 0x10, 0x00, 0x66, 0x00, 0x02, 0x04, 0x40, 0x20, 0x00, 0x00))
	if want := adu(0x01, 0x10, 0x00, 0x66, 0x00, 0x02); !bytes.Equal(resp, want) {
		t.Fatalf("unlocked write: response % X, want % X", resp, want)
	}
	if v := rig.float(t, slotFloat103, registers.KindDouble); v != 2.5 {
		t.Errorf("register 103 = %v, want 2.5", v)
	}
	if len(rig.persister.slots) != 1 || rig.persister.slots[0] != slotFloat103 {
		t.Errorf("persisted slots = %v, want [%d]", rig.persister.slots, slotFloat103)
	}

	// Annotated register 105.
	rig.exchange(t, adu(0x01, 0x10, 0x00, 0x68, 0x00, 0x02, 0x04, 0x41, 0x20, 0x00, 0x00))
	select {
	case ef := <-rig.effects.queue:
		if ef.name != effectRecalib || ef.value != 10 {
			t.Errorf("effect = %+v, want %s(10)", ef, effectRecalib)
		}
	default:
		t.Error("no effect scheduled")
	}
}

func TestWriteSingleRegisterErrors(t *testing.T) {
	tests := []struct {
		name    string
		address uint16
		code    byte
	}{
		{"read-only", 200, modbus.ExceptionCodeIllegalDataValue},
		{"not provisioned", 210, modbus.ExceptionCodeIllegalDataAddress},
		{"float class", 100, modbus.ExceptionCodeIllegalFunction},
		{"factory locked", 9, modbus.ExceptionCodeIllegalDataValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(t)
			resp := rig.exchange(t, adu(0x01, 0x06, byte(tt.address>>8), byte(tt.address), 0x00, 0x07))
			want := adu(0x01, 0x86, tt.code)
			if !bytes.Equal(resp, want) {
				t.Errorf("response % X, want % X", resp, want)
			}
		})
	}
}

func TestWriteSingleFactory(t *testing.T) {
	rig := newRig(t)
	rig.SetUnlocked(true)
	rig.SetFactoryUnlocked(true)
	req := adu(0x01, 0x06, 0x00, 0x09, 0x80, 0x00)
	resp := rig.exchange(t, req)
	if !bytes.Equal(resp, req) {
		t.Errorf("response % X, want echo % X", resp, req)
	}
	if v := rig.float(t, slotFactory, registers.KindInteger); v != -32768 {
		t.Errorf("register 10 = %v, want -32768", v)
	}
	if len(rig.persister.slots) != 1 || rig.persister.slots[0] != slotFactory {
		t.Errorf("persisted slots = %v", rig.persister.slots)
	}
}

func TestBroadcast(t *testing.T) {
	rig := newRig(t)

	rig.Feed(adu(0x00, 0x03, 0x00, 0x00, 0x00, 0x01))
	rig.Process()
	if rig.Pending() != 0 {
		t.Fatal("broadcast read was queued")
	}

	if resp := rig.exchange(t, adu(0x00, 0x06, 0x00, 0x00, 0x00, 0x07)); len(resp) != 0 {
		t.Errorf("broadcast write answered % X", resp)
	}
	if v := rig.float(t, slotInt1, registers.KindInteger); v != 7 {
		t.Errorf("register 1 = %v, want 7", v)
	}
	if rig.Busy() || rig.tx.Len() != 0 {
		t.Error("transmit path left busy after broadcast")
	}
}

func TestDroppedFrames(t *testing.T) {
	bad := adu(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)
	bad[len(bad)-1] ^= 0xFF

	tests := []struct {
		name    string
		frame   []byte
		counter Counter
	}{
		{"crc", bad, CntCRCErrors},
		{"other slave", adu(0x02, 0x03, 0x00, 0x00, 0x00, 0x01), CntAddressMismatch},
		{"unknown function", adu(0x01, 0x07, 0x00, 0x00, 0x00, 0x01), CntUnknownFunction},
		{"other serial", adu(0xFA, 0x00, 0x00, 0x30, 0x3A, 0x03, 0x00, 0x00, 0x00, 0x01), CntAddressMismatch},
		{"bad coil value", adu(0x01, 0x05, 0x00, 0x00, 0x12, 0x34), CntMalformed},
		{"force address other serial", adu(0x01, 0x44, 0x00, 0x00, 0x00, 0x01, 0x05), CntAddressMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rig := newRig(t)
			if resp := rig.exchange(t, tt.frame); len(resp) != 0 {
				t.Errorf("answered % X", resp)
			}
			if rig.rx.Len() != 0 {
				t.Errorf("rx holds %d bytes", rig.rx.Len())
			}
			if got := rig.Counters().Get(tt.counter); got != 1 {
				t.Errorf("%v = %d, want 1", tt.counter, got)
			}
		})
	}
}

func TestWatchdogDiscardsArmedCount(t *testing.T) {
	rig := newRig(t)
	rig.Feed([]byte{0x01, 0x03, 0x00, 0x00, 0x00})
	rig.Process()

	if rig.Pending() != 0 {
		t.Fatal("partial frame was queued")
	}
	wd := rig.watchdogTimer()
	if wd == nil || !wd.active || rig.watchdogCount != 5 {
		t.Fatalf("watchdog not armed for 5 bytes: %+v count %d", wd, rig.watchdogCount)
	}
	if rig.rx.Len() != 5 {
		t.Fatalf("rx = %d bytes, want 5", rig.rx.Len())
	}

	// Two more bytes land before the deferred task runs again.
	rig.Feed([]byte{0xAA, 0xBB})
	wd.fire()

	if rig.rx.Len() != 2 {
		t.Errorf("rx = %d bytes after expiry, want 2", rig.rx.Len())
	}
	if rig.rx.Peek(0) != 0xAA {
		t.Errorf("rx head = %02X, want AA", rig.rx.Peek(0))
	}
	if got := rig.Counters().Get(CntWatchdogExpiries); got != 1 {
		t.Errorf("watchdog expiries = %d, want 1", got)
	}
	if wd := rig.watchdogTimer(); !wd.active || rig.watchdogCount != 2 {
		t.Errorf("watchdog not re-armed for the leftover bytes")
	}
}

func TestWatchdogStaleExpiry(t *testing.T) {
	rig := newRig(t)
	rig.Feed([]byte{0x01, 0x03, 0x00})
	rig.Process()
	stale := rig.watchdogTimer()

	// More bytes re-arm the watchdog while the first expiry is still
	// waiting for the lock.
	rig.Feed([]byte{0x00, 0x00})
	rig.Process()
	if rig.watchdogTimer() == stale {
		t.Fatal("re-arm reused the expired timer")
	}
	stale.f()

	if rig.rx.Len() != 5 {
		t.Errorf("rx = %d bytes after stale expiry, want 5", rig.rx.Len())
	}
	if got := rig.Counters().Get(CntWatchdogExpiries); got != 0 {
		t.Errorf("watchdog expiries = %d, want 0", got)
	}

	rig.watchdogTimer().fire()
	if rig.rx.Len() != 0 {
		t.Errorf("rx = %d bytes after expiry, want 0", rig.rx.Len())
	}
}

func TestFrameInPieces(t *testing.T) {
	rig := newRig(t)
	frame := adu(0x01, 0x10, 0x00, 0x00, 0x00, 0x02, 0x04, 0x00, 0x01, 0x00, 0x02)

	rig.Feed(frame[:9])
	rig.Process()
	if rig.Pending() != 0 {
		t.Fatal("incomplete 0x10 frame was queued")
	}
	if wd := rig.watchdogTimer(); wd == nil || !wd.active {
		t.Fatal("watchdog not armed while 0x10 payload is arriving")
	}

	rig.Feed(frame[9:])
	rig.Process()
	if rig.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", rig.Pending())
	}
	if rig.watchdogTimer().active {
		t.Error("watchdog still armed after complete frame")
	}
}

func TestBackToBackFrames(t *testing.T) {
	rig := newRig(t)
	rig.Feed(append(adu(0x01, 0x03, 0x00, 0x00, 0x00, 0x01), adu(0x01, 0x04, 0x00, 0x64, 0x00, 0x02)...))
	rig.Process()
	if rig.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", rig.Pending())
	}

	if !rig.timer(ClassInteger).fire() {
		t.Fatal("integer timer not armed")
	}
	if !rig.Busy() {
		t.Fatal("first response not built")
	}

	// The float response must wait for the line.
	float := rig.timer(ClassFloat)
	if !float.fire() {
		t.Fatal("float timer not armed")
	}
	if !float.active || float.d != retryDelay {
		t.Errorf("busy float timer: active %v delay %v, want retry %v", float.active, float.d, retryDelay)
	}
	if rig.Pending() != 1 {
		t.Errorf("pending = %d while busy, want 1", rig.Pending())
	}

	var out bytes.Buffer
	if err := rig.Transmit(&out); err != nil {
		t.Fatal(err)
	}
	if want := adu(0x01, 0x03, 0x02, 0x00, 0x00); !bytes.Equal(out.Bytes(), want) {
		t.Errorf("first response % X, want % X", out.Bytes(), want)
	}
	if float.d != silenceDelay {
		t.Errorf("float timer delay after transmit = %v, want %v", float.d, silenceDelay)
	}

	out.Reset()
	float.fire()
	if err := rig.Transmit(&out); err != nil {
		t.Fatal(err)
	}
	if want := adu(0x01, 0x04, 0x04, 0x00, 0x00, 0x00, 0x00); !bytes.Equal(out.Bytes(), want) {
		t.Errorf("second response % X, want % X", out.Bytes(), want)
	}
}

func TestClassDelays(t *testing.T) {
	rig := newRig(t)
	rig.timing.SetDelay(ClassCoil, 10*time.Millisecond)
	rig.timing.SetDelay(ClassInteger, 2*time.Millisecond)

	rig.Feed(append(adu(0x01, 0x01, 0x00, 0x00, 0x00, 0x01), adu(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)...))
	rig.Process()
	if rig.Pending() != 2 {
		t.Fatalf("pending = %d, want 2", rig.Pending())
	}

	// The integer silence runs out first but the coil request is ahead.
	if !rig.timer(ClassInteger).fire() {
		t.Fatal("integer timer not armed")
	}
	if rig.Busy() || rig.Pending() != 2 {
		t.Fatalf("integer timer answered the coil request: busy %v pending %d", rig.Busy(), rig.Pending())
	}
	coil := rig.timer(ClassCoil)
	if !coil.active || coil.d != 10*time.Millisecond {
		t.Fatalf("coil timer: active %v delay %v, want armed 10ms", coil.active, coil.d)
	}

	coil.fire()
	var out bytes.Buffer
	if err := rig.Transmit(&out); err != nil {
		t.Fatal(err)
	}
	if want := adu(0x01, 0x01, 0x01, 0x00); !bytes.Equal(out.Bytes(), want) {
		t.Errorf("first response % X, want % X", out.Bytes(), want)
	}

	integer := rig.timer(ClassInteger)
	if !integer.active || integer.d != 2*time.Millisecond {
		t.Fatalf("integer timer after transmit: active %v delay %v, want armed 2ms", integer.active, integer.d)
	}
	out.Reset()
	integer.fire()
	if err := rig.Transmit(&out); err != nil {
		t.Fatal(err)
	}
	if want := adu(0x01, 0x03, 0x02, 0x00, 0x00); !bytes.Equal(out.Bytes(), want) {
		t.Errorf("second response % X, want % X", out.Bytes(), want)
	}
}

func TestQueueOverrun(t *testing.T) {
	rig := newRig(t)
	req := adu(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)
	for i := 0; i < 5; i++ {
		rig.Feed(req)
	}
	rig.Process()
	if rig.Pending() != 3 {
		t.Errorf("pending = %d, want 3", rig.Pending())
	}
	if got := rig.Counters().Get(CntQueueOverruns); got != 2 {
		t.Errorf("queue overruns = %d, want 2", got)
	}
}

func TestLongAddress(t *testing.T) {
	rig := newRig(t)
	rig.setFloat(t, slotInt1, registers.KindInteger, 258)

	resp := rig.exchange(t, adu(0xFA, 0x00, 0x00, 0x30, 0x39, 0x03, 0x00, 0x00, 0x00, 0x01))
	want := adu(0xFA, 0x00, 0x00, 0x30, 0x39, 0x03, 0x02, 0x01, 0x02)
	if !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}

	// Register 210 is in the integer band but not provisioned.
	resp = rig.exchange(t, adu(0xFA, 0x00, 0x00, 0x30, 0x39, 0x03, 0x00, 0xD1, 0x00, 0x01))
	want = adu(0xFA, 0x00, 0x00, 0x30, 0x39, 0x83, modbus.ExceptionCodeIllegalDataAddress)
	if !bytes.Equal(resp, want) {
		t.Errorf("exception % X, want % X", resp, want)
	}
	if len(resp) != 9 {
		t.Errorf("long exception length = %d, want 9", len(resp))
	}
}

func TestCoils(t *testing.T) {
	rig := newRig(t)
	for _, reg := range []int{1, 3, 8, 9} {
		if err := rig.store.SetCoil(slotCoil1+reg-1, true); err != nil {
			t.Fatal(err)
		}
	}

	resp := rig.exchange(t, adu(0x01, 0x01, 0x00, 0x00, 0x00, 0x0A))
	want := adu(0x01, 0x01, 0x02, 0x85, 0x01)
	if !bytes.Equal(resp, want) {
		t.Errorf("read coils % X, want % X", resp, want)
	}

	req := adu(0x01, 0x05, 0x00, 0x01, 0xFF, 0x00)
	if resp := rig.exchange(t, req); !bytes.Equal(resp, req) {
		t.Errorf("write coil % X, want echo", resp)
	}
	if !rig.store.Coil(slotCoil1 + 1) {
		t.Error("coil 2 not set")
	}

	resp = rig.exchange(t, adu(0x01, 0x05, 0x00, 0x0A, 0x00, 0x00))
	if want := adu(0x01, 0x85, modbus.ExceptionCodeIllegalDataValue); !bytes.Equal(resp, want) {
		t.Errorf("write read-only coil % X, want % X", resp, want)
	}

	resp = rig.exchange(t, adu(0x01, 0x02, 0x00, 0x00, 0x00, 0x00))
	if want := adu(0x01, 0x82, modbus.ExceptionCodeIllegalDataValue); !bytes.Equal(resp, want) {
		t.Errorf("zero coils % X, want % X", resp, want)
	}
}

func TestDiagnosticSample(t *testing.T) {
	rig := newRig(t)
	rig.setFloat(t, slotFloat101, registers.KindDouble, 50)
	rig.setFloat(t, slotFloat103, registers.KindDouble, 2.5)
	rig.setFloat(t, slotTemp, registers.KindDouble, 25)

	resp := rig.exchange(t, adu(0x01, 66, 0x11, 0x22, 0x33, 0x44))
	body := []byte{0x01, 66, 68,
		0x42, 0x48, 0x00, 0x00,
		0x40, 0x20, 0x00, 0x00,
		0x11, 0x22, 0x33, 0x44,
		0x41, 0xC8, 0x00, 0x00,
	}
	body = append(body, make([]byte, 13*4)...)
	if want := adu(body...); !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
}

func TestForceAddress(t *testing.T) {
	rig := newRig(t)

	resp := rig.exchange(t, adu(0x01, 68, 0x00, 0x00, 0x30, 0x39, 0x05))
	if want := adu(0x05, 68, 0x00, 0x00, 0x30, 0x39, 0x05); !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
	if got := rig.Device().SlaveAddress; got != 5 {
		t.Errorf("slave address = %d, want 5", got)
	}
	if len(rig.addresses) != 1 || rig.addresses[0] != 5 {
		t.Errorf("address callbacks = %v", rig.addresses)
	}
	if len(rig.persister.slots) != 1 || rig.persister.slots[0] != slotAddress {
		t.Errorf("persisted slots = %v, want [%d]", rig.persister.slots, slotAddress)
	}
	if addr, ok := StoredAddress(rig.disp, rig.store); !ok || addr != 5 {
		t.Errorf("StoredAddress() = %d, %v, want 5", addr, ok)
	}

	if resp := rig.exchange(t, adu(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)); len(resp) != 0 {
		t.Errorf("old address still answered % X", resp)
	}

	resp = rig.exchange(t, adu(0x05, 68, 0x00, 0x00, 0x30, 0x39, 0x00))
	if want := adu(0x05, 68|0x80, modbus.ExceptionCodeIllegalDataValue); !bytes.Equal(resp, want) {
		t.Errorf("address 0: response % X, want % X", resp, want)
	}
	if len(rig.persister.slots) != 1 {
		t.Errorf("refused address persisted: %v", rig.persister.slots)
	}
}

func TestForceAddressWithoutSlot(t *testing.T) {
	rig := newRig(t)
	rig.disp.Device.Address = nil

	resp := rig.exchange(t, adu(0x01, 68, 0x00, 0x00, 0x30, 0x39, 0x07))
	if want := adu(0x07, 68, 0x00, 0x00, 0x30, 0x39, 0x07); !bytes.Equal(resp, want) {
		t.Errorf("response % X, want % X", resp, want)
	}
	if len(rig.persister.slots) != 0 {
		t.Errorf("persisted slots = %v without an address slot", rig.persister.slots)
	}
	if _, ok := StoredAddress(rig.disp, rig.store); ok {
		t.Error("StoredAddress() reported an address without a slot")
	}
}

func TestStoredAddress(t *testing.T) {
	rig := newRig(t)
	for _, tt := range []struct {
		value float64
		ok    bool
	}{
		{0, false},
		{1, true},
		{247, true},
		{248, false},
	} {
		rig.setFloat(t, slotAddress, registers.KindInteger, tt.value)
		addr, ok := StoredAddress(rig.disp, rig.store)
		if ok != tt.ok || (ok && float64(addr) != tt.value) {
			t.Errorf("stored %v: StoredAddress() = %d, %v", tt.value, addr, ok)
		}
	}
}

func TestInvalidExceptionCodeIgnored(t *testing.T) {
	rig := newRig(t)
	rig.mu.Lock()
	req := &PendingRequest{SlaveAddress: testSlave, FunctionCode: 0x03, Class: ClassException, ExceptionCode: 0x0B}
	wb := rig.encode(req)
	rig.mu.Unlock()
	if wb.sent || rig.tx.Len() != 0 {
		t.Errorf("invalid exception code produced a frame")
	}
}

type pipeWriter struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (w *pipeWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *pipeWriter) Bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]byte(nil), w.buf.Bytes()...)
}

type mockPort struct {
	io.Reader
	io.Writer
}

func TestRun(t *testing.T) {
	e, err := New(Options{
		Device:     Device{SlaveAddress: testSlave, SerialNumber: testSerial},
		Dispatcher: fixtureDispatcher(t),
		Store:      registers.NewStore(fixtureSlots),
		Timing:     testTiming(),
	})
	if err != nil {
		t.Fatal(err)
	}

	pr, pw := io.Pipe()
	out := &pipeWriter{}
	done := make(chan error, 1)
	go func() {
		done <- e.Run(context.Background(), &mockPort{Reader: pr, Writer: out})
	}()

	if _, err := pw.Write(adu(0x01, 0x03, 0x00, 0x00, 0x00, 0x01)); err != nil {
		t.Fatal(err)
	}
	want := adu(0x01, 0x03, 0x02, 0x00, 0x00)
	deadline := time.Now().Add(2 * time.Second)
	for !bytes.Equal(out.Bytes(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("response % X, want % X", out.Bytes(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}

	pw.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return at EOF")
	}
}
