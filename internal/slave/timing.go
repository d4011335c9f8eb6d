// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import "time"

// Timer is the subset of *time.Timer the engine uses.
type Timer interface {
	Stop() bool
	Reset(d time.Duration) bool
}

// Clock creates one-shot timers. Tests substitute a manual clock.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Timing holds the engine's delays.
type Timing struct {
	// Watchdog is how long a partial frame may sit in the receive ring.
	Watchdog time.Duration
	// Retry is the back-off when the transmit path is busy.
	Retry time.Duration
	// Delays is the silence interval per register class between the end of
	// a request and the start of its response.
	Delays [numClasses]time.Duration
}

// SetDelay sets the silence interval of one class.
func (t *Timing) SetDelay(c RegisterClass, d time.Duration) {
	if c < numClasses {
		t.Delays[c] = d
	}
}

// DefaultTiming derives the delays from the line speed: 3.5 character times
// of silence (fixed 1750µs above 19200 baud), a one-frame retry back-off and
// a watchdog long enough for a maximum frame.
func DefaultTiming(baudRate int) Timing {
	characterDelay, frameDelay := characterTimes(baudRate)
	silence := time.Duration(frameDelay) * time.Microsecond
	t := Timing{
		Watchdog: time.Duration(characterDelay*maxFrameChars+frameDelay) * time.Microsecond,
		Retry:    silence,
	}
	for c := range t.Delays {
		t.Delays[c] = silence
	}
	return t
}

const maxFrameChars = 261

// characterTimes returns 1.5 and 3.5 character times in microseconds.
func characterTimes(baudRate int) (characterDelay, frameDelay int) {
	if baudRate <= 0 || baudRate > 19200 {
		characterDelay = 750
		frameDelay = 1750
	} else {
		characterDelay = 15000000 / baudRate
		frameDelay = 35000000 / baudRate
	}
	return
}
