// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/ffutop/analyzer-rtu/internal/registers"
)

// MmapStorage implements persistence using memory-mapped files.
// The store operates directly on the mapping, so a persistence request only
// has to flush it.
type MmapStorage struct {
	path string
	file *os.File
	data mmap.MMap
}

// NewMmapStorage creates a new MmapStorage.
func NewMmapStorage(path string) *MmapStorage {
	return &MmapStorage{
		path: path,
	}
}

// Load loads the store by memory-mapping the file.
func (ms *MmapStorage) Load(slots int) (*registers.Store, error) {
	// Open file, creating if necessary
	f, err := os.OpenFile(ms.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open mmap file: %w", err)
	}

	// Ensure file size
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if fi.Size() < int64(imageSize(slots)) {
		if err := f.Truncate(int64(imageSize(slots))); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize mmap file: %w", err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap failed: %w", err)
	}
	ms.file = f
	ms.data = data

	return registers.NewStoreOn(data), nil
}

// Save flushes the mmap to disk.
func (ms *MmapStorage) Save(store *registers.Store) error {
	if ms.data == nil {
		return fmt.Errorf("mmap data is nil")
	}
	return ms.data.Flush()
}

// OnWrite triggers a flush for persistence.
func (ms *MmapStorage) OnWrite(slot int) {
	if ms.data == nil {
		return
	}
	if err := ms.data.Flush(); err != nil {
		slog.Error("Failed to flush mmap", "slot", slot, "err", err)
	}
}

// Close unmaps and closes the file.
func (ms *MmapStorage) Close() error {
	var err error
	if ms.data != nil {
		if e := ms.data.Unmap(); e != nil {
			err = e
		}
		ms.data = nil
	}
	if ms.file != nil {
		if e := ms.file.Close(); e != nil {
			err = e
		}
		ms.file = nil
	}
	return err
}
