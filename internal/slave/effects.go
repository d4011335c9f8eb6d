// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"context"
	"log/slog"
)

// EffectFunc runs after a write to an annotated register, with the value
// written.
type EffectFunc func(value float64)

type effect struct {
	name  string
	value float64
}

// EffectScheduler runs annotated-register side effects on a worker goroutine,
// outside the engine lock.
type EffectScheduler struct {
	handlers map[string]EffectFunc
	queue    chan effect
}

// NewEffectScheduler creates a scheduler with a backlog of size pending
// effects.
func NewEffectScheduler(handlers map[string]EffectFunc, size int) *EffectScheduler {
	if size <= 0 {
		size = 16
	}
	return &EffectScheduler{
		handlers: handlers,
		queue:    make(chan effect, size),
	}
}

// Register adds or replaces a handler. It must not race with Run.
func (s *EffectScheduler) Register(name string, fn EffectFunc) {
	if s.handlers == nil {
		s.handlers = make(map[string]EffectFunc)
	}
	s.handlers[name] = fn
}

// Schedule queues an effect; it never blocks and reports false when the
// backlog is full.
func (s *EffectScheduler) Schedule(name string, value float64) bool {
	select {
	case s.queue <- effect{name: name, value: value}:
		return true
	default:
		slog.Warn("Effect backlog full, dropping", "effect", name)
		return false
	}
}

// Run executes queued effects until ctx is done.
func (s *EffectScheduler) Run(ctx context.Context) {
	slog.Debug("Effect worker started")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Effect worker stopped")
			return
		case ef := <-s.queue:
			fn, ok := s.handlers[ef.name]
			if !ok {
				slog.Warn("No handler for effect", "effect", ef.name)
				continue
			}
			fn(ef.value)
		}
	}
}
