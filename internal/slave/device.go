// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import "github.com/ffutop/analyzer-rtu/internal/registers"

// Device is the analyzer's identity and access state on the link.
type Device struct {
	SlaveAddress byte
	// SerialNumber is the pipe serial number used by long-address frames.
	SerialNumber    uint32
	Unlocked        bool
	FactoryUnlocked bool
}

func (d Device) lock() registers.Lock {
	return registers.Lock{Unlocked: d.Unlocked, FactoryUnlocked: d.FactoryUnlocked}
}
