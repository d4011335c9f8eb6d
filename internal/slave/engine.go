// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package slave is the analyzer's Modbus RTU slave engine: it assembles
// request frames from the receive ring, queues them, and builds timed
// responses into the transmit ring.
//
// All engine state is guarded by one mutex, which stands in for masking the
// serial interrupt. Feed plays the receive interrupt, Process the deferred
// frame task and Transmit the transmit-empty interrupt.
package slave

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/internal/ring"
)

const (
	DefaultRingSize      = 512
	DefaultQueueCapacity = 8
)

// Persister receives persistence requests for modified non-volatile slots.
type Persister interface {
	OnWrite(slot int)
}

// Options configure an Engine.
type Options struct {
	Device     Device
	Dispatcher *registers.Dispatcher
	Store      *registers.Store

	// Persister and Effects are optional.
	Persister Persister
	Effects   *EffectScheduler

	Timing        Timing
	QueueCapacity int
	RingSize      int

	// Clock defaults to the wall clock.
	Clock Clock

	// OnAddressChange is called outside the engine lock after a force-address
	// request changed the slave address.
	OnAddressChange func(addr byte)
}

// Engine is the slave-side protocol engine.
type Engine struct {
	mu sync.Mutex

	rx, tx  *ring.Ring
	scratch []byte
	queue   *RequestQueue
	txBusy  bool
	device  Device

	disp      *registers.Dispatcher
	store     *registers.Store
	persister Persister
	effects   *EffectScheduler
	onAddress func(byte)

	timing        Timing
	clock         Clock
	watchdog      Timer
	watchdogArmed bool
	watchdogCount int
	watchdogGen   uint64
	timers        [numClasses]Timer

	counters Counters

	rxKick chan struct{}
	txKick chan struct{}
}

// New creates an engine.
func New(opts Options) (*Engine, error) {
	if opts.Dispatcher == nil || opts.Store == nil {
		return nil, errors.New("slave: dispatcher and store are required")
	}
	if opts.RingSize <= 0 {
		opts.RingSize = DefaultRingSize
	}
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = DefaultQueueCapacity
	}
	if opts.Clock == nil {
		opts.Clock = realClock{}
	}
	if opts.Timing.Watchdog <= 0 {
		opts.Timing.Watchdog = DefaultTiming(0).Watchdog
	}
	if opts.Timing.Retry <= 0 {
		opts.Timing.Retry = DefaultTiming(0).Retry
	}
	return &Engine{
		rx:        ring.New(opts.RingSize),
		tx:        ring.New(opts.RingSize),
		scratch:   make([]byte, opts.RingSize),
		queue:     NewRequestQueue(opts.QueueCapacity),
		device:    opts.Device,
		disp:      opts.Dispatcher,
		store:     opts.Store,
		persister: opts.Persister,
		effects:   opts.Effects,
		onAddress: opts.OnAddressChange,
		timing:    opts.Timing,
		clock:     opts.Clock,
		rxKick:    make(chan struct{}, 1),
		txKick:    make(chan struct{}, 1),
	}, nil
}

// Device returns the current device state.
func (e *Engine) Device() Device {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.device
}

// SetUnlocked sets the general (password) unlock flag.
func (e *Engine) SetUnlocked(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.device.Unlocked = on
}

// SetFactoryUnlocked sets the factory-default unlock flag.
func (e *Engine) SetFactoryUnlocked(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.device.FactoryUnlocked = on
}

// Counters returns the engine's fault and traffic counters.
func (e *Engine) Counters() *Counters {
	return &e.counters
}

// Feed appends received bytes to the RX ring and schedules frame processing.
func (e *Engine) Feed(p []byte) {
	e.mu.Lock()
	if lost := e.rx.Write(p); lost > 0 {
		e.counters.Add(CntRingOverruns, uint64(lost))
		slog.Warn("RX ring overrun", "lost", lost)
	}
	e.mu.Unlock()
	kick(e.rxKick)
}

// Process runs the frame receiver over the buffered bytes.
func (e *Engine) Process() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.receive()
}

// Pending returns the number of queued requests.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.queue.Len()
}

// Run serves the engine on port until ctx is done or the port reaches EOF.
// Closing the port is left to the caller.
func (e *Engine) Run(ctx context.Context, port io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		e.processLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		e.transmitLoop(ctx, port)
	}()
	if e.effects != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.effects.Run(ctx)
		}()
	}

	err := e.readLoop(ctx, port)
	cancel()
	wg.Wait()
	e.Stop()
	return err
}

// Stop cancels every pending timer.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelWatchdog()
	for _, t := range e.timers {
		if t != nil {
			t.Stop()
		}
	}
}

func (e *Engine) readLoop(ctx context.Context, r io.Reader) error {
	buf := make([]byte, 256)
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		if n > 0 {
			e.Feed(buf[:n])
		}
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			slog.Debug("Serial read failed", "err", err)
		}
	}
}

func (e *Engine) processLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.rxKick:
			e.Process()
		}
	}
}

func (e *Engine) transmitLoop(ctx context.Context, w io.Writer) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.txKick:
			if err := e.Transmit(w); err != nil {
				slog.Error("Serial write failed", "err", err)
			}
		}
	}
}

func kick(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}

// armWatchdog (re)starts the incomplete-frame timer, recording count as the
// number of bytes to discard on expiry. Every arm gets a new generation, so an
// expiry already waiting on e.mu from an earlier arm is ignored. Caller must
// hold e.mu.
func (e *Engine) armWatchdog(count int) {
	if e.watchdog != nil {
		e.watchdog.Stop()
	}
	e.watchdogGen++
	gen := e.watchdogGen
	e.watchdogCount = count
	e.watchdogArmed = true
	e.watchdog = e.clock.AfterFunc(e.timing.Watchdog, func() { e.onWatchdog(gen) })
}

func (e *Engine) cancelWatchdog() {
	if !e.watchdogArmed {
		return
	}
	e.watchdogArmed = false
	if e.watchdog != nil {
		e.watchdog.Stop()
	}
}

// onWatchdog discards exactly the bytes counted when the watchdog was armed,
// even if newer bytes arrived since.
func (e *Engine) onWatchdog(gen uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.watchdogArmed || gen != e.watchdogGen {
		return
	}
	e.watchdogArmed = false
	e.counters.Inc(CntWatchdogExpiries)
	slog.Debug("Incomplete frame timed out", "discarded", e.watchdogCount, "buffered", e.rx.Len())
	e.rx.Discard(e.watchdogCount)
	e.watchdogCount = 0
	e.receive()
}

// armClass (re)starts the response timer of class c. Caller must hold e.mu.
func (e *Engine) armClass(c RegisterClass, d time.Duration) {
	if e.timers[c] == nil {
		e.timers[c] = e.clock.AfterFunc(d, func() { e.onResponseTimer(c) })
		return
	}
	e.timers[c].Reset(d)
}

// armHead starts the response timer of the oldest queued request.
func (e *Engine) armHead() {
	if head := e.queue.Head(); head != nil {
		e.armClass(head.Class, e.timing.Delays[head.Class])
	}
}

// onResponseTimer builds the response to the head of the queue once the
// transmit path is idle, retrying after Timing.Retry otherwise. Only the
// timer of the head's own class may answer it; a later request is armed
// again when it reaches the head.
func (e *Engine) onResponseTimer(c RegisterClass) {
	e.mu.Lock()
	head := e.queue.Head()
	if head == nil || head.Class != c {
		e.mu.Unlock()
		return
	}
	if e.txBusy || e.tx.Len() > 0 {
		e.armClass(c, e.timing.Retry)
		e.mu.Unlock()
		return
	}
	wb := e.encode(head)
	e.queue.DiscardHead()
	if !wb.sent {
		e.armHead()
	}
	e.mu.Unlock()

	if wb.sent {
		kick(e.txKick)
	}
	e.apply(wb)
}

// apply runs the work a response left behind, outside the engine lock.
func (e *Engine) apply(wb writeback) {
	if e.persister != nil {
		for _, slot := range wb.slots {
			e.persister.OnWrite(slot)
		}
	}
	if e.effects != nil {
		for _, ef := range wb.effects {
			e.effects.Schedule(ef.name, ef.value)
		}
	}
	if wb.addressChanged && e.onAddress != nil {
		e.onAddress(wb.address)
	}
}

// String summarizes the engine state for logs.
func (e *Engine) String() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return fmt.Sprintf("slave %d serial %d: rx %d tx %d queued %d busy %v",
		e.device.SlaveAddress, e.device.SerialNumber, e.rx.Len(), e.tx.Len(), e.queue.Len(), e.txBusy)
}
