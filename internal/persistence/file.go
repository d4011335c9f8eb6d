// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ffutop/analyzer-rtu/internal/registers"
)

// FileStorage persists the store with plain file writes: the image is read
// once on Load and each persistence request writes back the touched slot.
type FileStorage struct {
	path  string
	file  *os.File
	store *registers.Store
}

// NewFileStorage creates a new FileStorage.
func NewFileStorage(path string) *FileStorage {
	return &FileStorage{
		path: path,
	}
}

// Load reads the image from the file, creating or growing it as needed.
func (fs *FileStorage) Load(slots int) (*registers.Store, error) {
	f, err := os.OpenFile(fs.path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	if fi.Size() < int64(imageSize(slots)) {
		if err := f.Truncate(int64(imageSize(slots))); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to resize file: %w", err)
		}
	}

	data, err := io.ReadAll(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	fs.file = f
	fs.store = registers.NewStoreOn(data)
	return fs.store, nil
}

// Save writes the whole image and syncs it.
func (fs *FileStorage) Save(store *registers.Store) error {
	if fs.file == nil {
		return nil
	}
	store.RLock()
	_, err := fs.file.WriteAt(store.Bytes(), 0)
	store.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := fs.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file to disk: %w", err)
	}
	return nil
}

// OnWrite writes back the slot and syncs.
func (fs *FileStorage) OnWrite(slot int) {
	if fs.file == nil || fs.store == nil || slot < 0 || slot >= fs.store.Slots() {
		return
	}
	off := slotOffset(slot)
	fs.store.RLock()
	_, err := fs.file.WriteAt(fs.store.Bytes()[off:off+registers.SlotSize], off)
	fs.store.RUnlock()
	if err != nil {
		slog.Error("Failed to write slot", "slot", slot, "err", err)
		return
	}
	if err := fs.file.Sync(); err != nil {
		slog.Error("Failed to sync file", "err", err)
	}
}

// Close the file.
func (fs *FileStorage) Close() error {
	if fs.file == nil {
		return nil
	}
	err := fs.file.Close()
	fs.file = nil
	return err
}
