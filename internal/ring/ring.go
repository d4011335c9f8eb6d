// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package ring provides the fixed-capacity byte rings used for the serial
// receive and transmit paths.
//
// A Ring is not safe for concurrent use. The engine guards both rings with the
// same lock that guards the request queue, which plays the role of masking the
// serial interrupt.
package ring

import "github.com/ffutop/analyzer-rtu/modbus/crc"

// Empty is returned by Get when the ring holds no bytes.
const Empty byte = 0x00

// Ring is a circular byte buffer. Invariant: 0 <= count <= len(buf) and
// tail == (head+count) % len(buf).
type Ring struct {
	buf   []byte
	head  int
	tail  int
	count int
}

// Mark is a saved tail position used to roll back a partially built frame.
type Mark struct {
	tail  int
	count int
}

// New allocates a ring holding up to capacity bytes.
func New(capacity int) *Ring {
	if capacity <= 0 {
		panic("ring: capacity must be > 0")
	}
	return &Ring{buf: make([]byte, capacity)}
}

func (r *Ring) Cap() int { return len(r.buf) }
func (r *Ring) Len() int { return r.count }

// Free returns the number of bytes that can be put without overwriting.
func (r *Ring) Free() int { return len(r.buf) - r.count }

// Put appends b. When the ring is full the oldest byte is overwritten and
// Put reports true; head advances with it so the invariant keeps holding.
func (r *Ring) Put(b byte) (overwritten bool) {
	r.buf[r.tail] = b
	r.tail = r.next(r.tail)
	if r.count == len(r.buf) {
		r.head = r.next(r.head)
		return true
	}
	r.count++
	return false
}

// Write puts every byte of p and returns how many older bytes were lost.
func (r *Ring) Write(p []byte) (lost int) {
	for _, b := range p {
		if r.Put(b) {
			lost++
		}
	}
	return lost
}

// Get removes and returns the oldest byte. On an empty ring it returns Empty
// and resynchronizes head to tail.
func (r *Ring) Get() byte {
	if r.count == 0 {
		r.head = r.tail
		return Empty
	}
	b := r.buf[r.head]
	r.head = r.next(r.head)
	r.count--
	return b
}

// Peek returns the i-th oldest byte without removing it.
func (r *Ring) Peek(i int) byte {
	if i < 0 || i >= r.count {
		return Empty
	}
	return r.buf[(r.head+i)%len(r.buf)]
}

// Copy copies up to len(p) bytes starting at logical offset off into p.
func (r *Ring) Copy(p []byte, off int) int {
	n := 0
	for ; n < len(p) && off+n < r.count; n++ {
		p[n] = r.buf[(r.head+off+n)%len(r.buf)]
	}
	return n
}

// Discard drops the n oldest bytes (all of them if n >= Len).
func (r *Ring) Discard(n int) {
	if n >= r.count {
		r.Clear()
		return
	}
	if n <= 0 {
		return
	}
	r.head = (r.head + n) % len(r.buf)
	r.count -= n
}

// Clear empties the ring.
func (r *Ring) Clear() {
	r.head = 0
	r.tail = 0
	r.count = 0
}

// Mark snapshots the tail so that bytes put afterwards can be undone.
func (r *Ring) Mark() Mark {
	return Mark{tail: r.tail, count: r.count}
}

// Rollback removes everything put since m was taken.
func (r *Ring) Rollback(m Mark) {
	if r.count < m.count {
		return
	}
	r.tail = m.tail
	r.count = m.count
}

// Since returns how many bytes were put after m.
func (r *Ring) Since(m Mark) int {
	return r.count - m.count
}

// Checksum computes the Modbus CRC of the n bytes at logical offset off,
// following the ring across its physical end.
func (r *Ring) Checksum(off, n int) uint16 {
	start := (r.head + off) % len(r.buf)
	var c crc.CRC
	return c.Reset().PushWrapped(r.buf, start, len(r.buf)-start, n).Value()
}

// ChecksumSince computes the CRC of the bytes put after m.
func (r *Ring) ChecksumSince(m Mark) uint16 {
	return r.Checksum(m.count, r.Since(m))
}

func (r *Ring) next(i int) int {
	i++
	if i == len(r.buf) {
		return 0
	}
	return i
}
