// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"
)

// SlotSize is the width of one storage cell in bytes.
const SlotSize = 8

// Store holds the analyzer's register backing values as fixed 8-byte slots.
// Doubles are stored as IEEE-754 bits, integers as two's complement, coils as
// 0/1, all little-endian, so the byte image can be persisted as is.
type Store struct {
	mu   sync.RWMutex
	data []byte
}

// NewStore creates an in-memory store of n zeroed slots.
func NewStore(n int) *Store {
	return &Store{data: make([]byte, n*SlotSize)}
}

// NewStoreOn wraps an existing byte image (e.g. a mapped file). len(data)
// must be a multiple of SlotSize.
func NewStoreOn(data []byte) *Store {
	return &Store{data: data[:len(data)/SlotSize*SlotSize]}
}

// Slots returns the number of slots.
func (s *Store) Slots() int {
	return len(s.data) / SlotSize
}

// Bytes exposes the raw image for persistence backends.
func (s *Store) Bytes() []byte {
	return s.data
}

// RLock and RUnlock let persistence backends take a consistent image.
func (s *Store) RLock()   { s.mu.RLock() }
func (s *Store) RUnlock() { s.mu.RUnlock() }

func (s *Store) cell(slot int) ([]byte, error) {
	if slot < 0 || slot >= s.Slots() {
		return nil, fmt.Errorf("slot %d out of range (0-%d)", slot, s.Slots()-1)
	}
	return s.data[slot*SlotSize : (slot+1)*SlotSize], nil
}

// Float reads the value bound by b, coerced to float64.
func (s *Store) Float(b Binding) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, err := s.cell(b.Slot)
	if err != nil {
		return 0, err
	}
	raw := binary.LittleEndian.Uint64(c)
	switch b.Kind {
	case KindDouble, KindAnnotated:
		return math.Float64frombits(raw), nil
	case KindInteger, KindLong:
		return float64(int64(raw)), nil
	case KindCoil:
		if raw != 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 0, fmt.Errorf("slot %d: invalid kind %v", b.Slot, b.Kind)
}

// SetFloat writes v through b, coercing it to the bound representation.
// Integer kinds round to nearest and saturate at their width.
func (s *Store) SetFloat(b Binding, v float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, err := s.cell(b.Slot)
	if err != nil {
		return err
	}
	var raw uint64
	switch b.Kind {
	case KindDouble, KindAnnotated:
		raw = math.Float64bits(v)
	case KindInteger:
		raw = uint64(int64(clamp(math.Round(v), math.MinInt16, math.MaxInt16)))
	case KindLong:
		raw = uint64(int64(clamp(math.Round(v), math.MinInt32, math.MaxInt32)))
	case KindCoil:
		if v != 0 {
			raw = 1
		}
	default:
		return fmt.Errorf("slot %d: invalid kind %v", b.Slot, b.Kind)
	}
	binary.LittleEndian.PutUint64(c, raw)
	return nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(lo, math.Min(hi, v))
}

// Double and SetDouble access a slot directly as float64. The host uses them
// to publish live measurements.
func (s *Store) Double(slot int) float64 {
	v, _ := s.Float(Binding{Slot: slot, Kind: KindDouble})
	return v
}

func (s *Store) SetDouble(slot int, v float64) error {
	return s.SetFloat(Binding{Slot: slot, Kind: KindDouble}, v)
}

// Integer and SetInteger access a slot directly as a 32-bit integer.
func (s *Store) Integer(slot int) int32 {
	v, _ := s.Float(Binding{Slot: slot, Kind: KindLong})
	return int32(v)
}

func (s *Store) SetInteger(slot int, v int32) error {
	return s.SetFloat(Binding{Slot: slot, Kind: KindLong}, float64(v))
}

// Coil and SetCoil access a slot directly as a boolean.
func (s *Store) Coil(slot int) bool {
	v, _ := s.Float(Binding{Slot: slot, Kind: KindCoil})
	return v != 0
}

func (s *Store) SetCoil(slot int, on bool) error {
	var v float64
	if on {
		v = 1
	}
	return s.SetFloat(Binding{Slot: slot, Kind: KindCoil}, v)
}
