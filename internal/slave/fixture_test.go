// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/modbus/crc"
)

const (
	testSlave  = 0x01
	testSerial = 12345
)

// Fixture slots.
const (
	slotInt1       = 0 // integer 1..8 -> slots 0..7
	slotInt2       = 1
	slotWriteOnly  = 8  // integer 9
	slotFactory    = 9  // integer 10
	slotReadOnly   = 10 // integer 201
	slotLong301    = 11
	slotLong303    = 12
	slotFloat101   = 13
	slotFloat103   = 14 // password
	slotAnnotated  = 15 // float 105
	slotTemp       = 16 // float 107, read-only
	slotCoil1      = 20 // coils 1..10 -> slots 20..29
	slotCoilRO     = 30 // coil 11
	slotExtended   = 32 // extended 60001.. -> slots 32..35
	slotAddress    = 36
	fixtureSlots   = 40
	effectRecalib  = "recalibrate"
	retryDelay     = 3 * time.Millisecond
	silenceDelay   = 2 * time.Millisecond
	watchdogPeriod = 50 * time.Millisecond
)

func fixtureDispatcher(t *testing.T) *registers.Dispatcher {
	t.Helper()

	var ints []registers.Entry
	for reg := 1; reg <= 8; reg++ {
		ints = append(ints, registers.Entry{Address: reg, Binding: registers.Binding{
			Slot: slotInt1 + reg - 1, Kind: registers.KindInteger, Perm: registers.PermVolatile}})
	}
	ints[1].Binding = registers.Binding{Slot: slotInt2, Kind: registers.KindDouble, Perm: registers.PermPassword}
	ints = append(ints,
		registers.Entry{Address: 9, Binding: registers.Binding{Slot: slotWriteOnly, Kind: registers.KindInteger, Perm: registers.PermWriteOnly}},
		registers.Entry{Address: 10, Binding: registers.Binding{Slot: slotFactory, Kind: registers.KindInteger, Perm: registers.PermFactory}},
		registers.Entry{Address: 201, Binding: registers.Binding{Slot: slotReadOnly, Kind: registers.KindInteger, Perm: registers.PermReadOnly}},
	)
	longs := []registers.Entry{
		{Address: 301, Binding: registers.Binding{Slot: slotLong301, Kind: registers.KindLong, Perm: registers.PermVolatile}},
		{Address: 303, Binding: registers.Binding{Slot: slotLong303, Kind: registers.KindLong, Perm: registers.PermVolatile}},
	}
	floats := []registers.Entry{
		{Address: 101, Binding: registers.Binding{Slot: slotFloat101, Kind: registers.KindDouble, Perm: registers.PermVolatile}},
		{Address: 103, Binding: registers.Binding{Slot: slotFloat103, Kind: registers.KindDouble, Perm: registers.PermPassword}},
		{Address: 105, Binding: registers.Binding{Slot: slotAnnotated, Kind: registers.KindAnnotated, Perm: registers.PermVolatile, Effect: effectRecalib}},
		{Address: 107, Binding: registers.Binding{Slot: slotTemp, Kind: registers.KindDouble, Perm: registers.PermReadOnly}},
	}
	var coils []registers.Entry
	for reg := 1; reg <= 10; reg++ {
		coils = append(coils, registers.Entry{Address: reg, Binding: registers.Binding{
			Slot: slotCoil1 + reg - 1, Kind: registers.KindCoil, Perm: registers.PermVolatile}})
	}
	coils = append(coils, registers.Entry{Address: 11, Binding: registers.Binding{Slot: slotCoilRO, Kind: registers.KindCoil, Perm: registers.PermReadOnly}})

	d := &registers.Dispatcher{
		Bands: registers.Bands{
			Integer: []registers.Range{{First: 1, Last: 10}, {First: 201, Last: 300}},
			Long:    []registers.Range{{First: 301, Last: 400}},
		},
		Diagnostics: registers.DiagnosticSources{Frequency: 101, ReferencePower: 103, Temperature: 107},
		Device: registers.DeviceSlots{
			Address: &registers.Binding{Slot: slotAddress, Kind: registers.KindInteger, Perm: registers.PermFactory},
		},
	}
	var err error
	if d.Integer, err = registers.NewTable(ints); err != nil {
		t.Fatal(err)
	}
	if d.Long, err = registers.NewTable(longs); err != nil {
		t.Fatal(err)
	}
	if d.Float, err = registers.NewTable(floats); err != nil {
		t.Fatal(err)
	}
	if d.Coil, err = registers.NewTable(coils); err != nil {
		t.Fatal(err)
	}
	d.Extended, err = registers.NewExtendedTable([]registers.Segment{
		{Start: 60001, Base: slotExtended, Length: 4, Kind: registers.KindDouble, Perm: registers.PermVolatile},
	})
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func testTiming() Timing {
	tm := Timing{Watchdog: watchdogPeriod, Retry: retryDelay}
	for c := range tm.Delays {
		tm.Delays[c] = silenceDelay
	}
	return tm
}

type fakeTimer struct {
	d      time.Duration
	f      func()
	active bool
}

func (t *fakeTimer) Stop() bool {
	was := t.active
	t.active = false
	return was
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	was := t.active
	t.active = true
	t.d = d
	return was
}

// fire runs the callback if the timer is armed.
func (t *fakeTimer) fire() bool {
	if !t.active {
		return false
	}
	t.active = false
	t.f()
	return true
}

type fakeClock struct {
	timers []*fakeTimer
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	t := &fakeTimer{d: d, f: f, active: true}
	c.timers = append(c.timers, t)
	return t
}

type recordingPersister struct {
	mu    sync.Mutex
	slots []int
}

func (p *recordingPersister) OnWrite(slot int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots = append(p.slots, slot)
}

type testRig struct {
	*Engine
	store     *registers.Store
	persister *recordingPersister
	effects   *EffectScheduler
	addresses []byte
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	rig := &testRig{
		store:     registers.NewStore(fixtureSlots),
		persister: &recordingPersister{},
		effects:   NewEffectScheduler(nil, 4),
	}
	e, err := New(Options{
		Device:          Device{SlaveAddress: testSlave, SerialNumber: testSerial},
		Dispatcher:      fixtureDispatcher(t),
		Store:           rig.store,
		Persister:       rig.persister,
		Effects:         rig.effects,
		Timing:          testTiming(),
		QueueCapacity:   4,
		Clock:           &fakeClock{},
		OnAddressChange: func(addr byte) { rig.addresses = append(rig.addresses, addr) },
	})
	if err != nil {
		t.Fatal(err)
	}
	rig.Engine = e
	return rig
}

// timer returns the fake response timer of class c, or nil if never armed.
func (r *testRig) timer(c RegisterClass) *fakeTimer {
	t, _ := r.timers[c].(*fakeTimer)
	return t
}

func (r *testRig) watchdogTimer() *fakeTimer {
	t, _ := r.watchdog.(*fakeTimer)
	return t
}

// fireResponse fires the first armed response timer.
func (r *testRig) fireResponse() bool {
	for c := RegisterClass(0); c < numClasses; c++ {
		if t := r.timer(c); t != nil && t.fire() {
			return true
		}
	}
	return false
}

// exchange feeds a request and returns everything transmitted until the
// queue drains.
func (r *testRig) exchange(t *testing.T, req []byte) []byte {
	t.Helper()
	r.Feed(req)
	r.Process()
	var out bytes.Buffer
	for i := 0; i < 8 && (r.Pending() > 0 || r.Busy()); i++ {
		r.fireResponse()
		if err := r.Transmit(&out); err != nil {
			t.Fatalf("Transmit: %v", err)
		}
	}
	return out.Bytes()
}

func adu(b ...byte) []byte {
	return crc.Append(b)
}

func (r *testRig) setFloat(t *testing.T, slot int, kind registers.Kind, v float64) {
	t.Helper()
	if err := r.store.SetFloat(registers.Binding{Slot: slot, Kind: kind}, v); err != nil {
		t.Fatal(err)
	}
}

func (r *testRig) float(t *testing.T, slot int, kind registers.Kind) float64 {
	t.Helper()
	v, err := r.store.Float(registers.Binding{Slot: slot, Kind: kind})
	if err != nil {
		t.Fatal(err)
	}
	return v
}
