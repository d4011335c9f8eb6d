// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package persistence

import (
	"path/filepath"
	"testing"
)

func TestStorageSurvivesReload(t *testing.T) {
	tests := []struct {
		kind string
	}{
		{"file"},
		{"mmap"},
	}
	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "registers.bin")

			st := New(tt.kind, path)
			store, err := st.Load(16)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			store.SetDouble(3, 101.325)
			st.OnWrite(3)
			if err := st.Close(); err != nil {
				t.Fatalf("Close failed: %v", err)
			}

			st = New(tt.kind, path)
			store, err = st.Load(32)
			if err != nil {
				t.Fatalf("reload failed: %v", err)
			}
			defer st.Close()
			if store.Slots() < 32 {
				t.Errorf("Slots() = %d, want >= 32 after growing the map", store.Slots())
			}
			if got := store.Double(3); got != 101.325 {
				t.Errorf("Double(3) = %v, want 101.325", got)
			}
		})
	}
}

func TestFileStorageSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registers.bin")
	fs := NewFileStorage(path)
	store, err := fs.Load(4)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	store.SetInteger(0, 42)
	store.SetCoil(1, true)
	if err := fs.Save(store); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	fs.Close()

	fs = NewFileStorage(path)
	store, err = fs.Load(4)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	defer fs.Close()
	if store.Integer(0) != 42 || !store.Coil(1) {
		t.Errorf("reloaded %v %v", store.Integer(0), store.Coil(1))
	}
}

func TestMemoryStorageIsFresh(t *testing.T) {
	st := New("memory", "")
	store, err := st.Load(8)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if store.Slots() != 8 {
		t.Errorf("Slots() = %d, want 8", store.Slots())
	}
	st.OnWrite(0)
	if err := st.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
