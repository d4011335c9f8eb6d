// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"fmt"
	"sync"
)

type Counter int

const (
	CntBusMessages Counter = iota
	CntCRCErrors
	CntUnknownFunction
	CntAddressMismatch
	CntMalformed
	CntExceptions
	CntResponses
	CntQueueOverruns
	CntRingOverruns
	CntWatchdogExpiries

	numCounters = iota
)

var counterNames = [numCounters]string{
	"bus_messages",
	"crc_errors",
	"unknown_function",
	"address_mismatch",
	"malformed",
	"exceptions",
	"responses",
	"queue_overruns",
	"ring_overruns",
	"watchdog_expiries",
}

func (c Counter) String() string {
	if c >= 0 && int(c) < numCounters {
		return counterNames[c]
	}
	return fmt.Sprintf("Counter(%d)", int(c))
}

// Counters are the link fault and traffic counters.
type Counters struct {
	mu sync.Mutex
	ca [numCounters]uint64
}

func (c *Counters) Inc(cnt Counter) {
	c.Add(cnt, 1)
}

func (c *Counters) Add(cnt Counter, n uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cnt < 0 || int(cnt) >= numCounters {
		return
	}
	c.ca[cnt] += n
}

func (c *Counters) Get(cnt Counter) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cnt < 0 || int(cnt) >= numCounters {
		return 0
	}
	return c.ca[cnt]
}

// Snapshot returns all counters by name.
func (c *Counters) Snapshot() map[string]uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	m := make(map[string]uint64, numCounters)
	for i, v := range c.ca {
		m[counterNames[i]] = v
	}
	return m
}

func (c *Counters) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ca = [numCounters]uint64{}
}
