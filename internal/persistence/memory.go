// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import "github.com/ffutop/analyzer-rtu/internal/registers"

// MemoryStorage is a no-op storage (non-persistent).
type MemoryStorage struct{}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (ms *MemoryStorage) Load(slots int) (*registers.Store, error) {
	return registers.NewStore(slots), nil
}

func (ms *MemoryStorage) Save(store *registers.Store) error {
	return nil
}

func (ms *MemoryStorage) OnWrite(slot int) {
	// No-op
}

func (ms *MemoryStorage) Close() error {
	return nil
}
