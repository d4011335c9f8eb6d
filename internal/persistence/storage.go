// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"github.com/ffutop/analyzer-rtu/internal/registers"
)

// Storage defines the interface for persisting the register store.
type Storage interface {
	// Load returns a store of at least slots slots, restored from storage
	// when data exists.
	Load(slots int) (*registers.Store, error)

	// Save saves the whole store.
	Save(store *registers.Store) error

	// OnWrite is the persistence request raised after a non-volatile slot
	// was modified.
	OnWrite(slot int)

	Close() error
}

// New picks a backend by its configured type name.
func New(kind, path string) Storage {
	switch kind {
	case "file":
		return NewFileStorage(path)
	case "mmap":
		return NewMmapStorage(path)
	default:
		return NewMemoryStorage()
	}
}
