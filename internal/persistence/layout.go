// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/analyzer-rtu/internal/registers"

// The persisted image is the store's slot array, slot i at offset
// i*registers.SlotSize, little-endian. Growing the register map keeps existing
// slots in place.

func imageSize(slots int) int {
	return slots * registers.SlotSize
}

func slotOffset(slot int) int64 {
	return int64(slot) * registers.SlotSize
}
