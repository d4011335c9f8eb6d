// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import "testing"

func TestIsNoPermission(t *testing.T) {
	locked := Lock{}
	unlocked := Lock{Unlocked: true}
	factory := Lock{Unlocked: true, FactoryUnlocked: true}
	factoryOnly := Lock{FactoryUnlocked: true}

	tests := []struct {
		perm Permission
		dir  Direction
		lock Lock
		want bool
	}{
		// Reads: only write-only is refused, whatever the lock state.
		{PermVolatile, Read, locked, false},
		{PermPassword, Read, locked, false},
		{PermReadOnly, Read, locked, false},
		{PermWriteOnly, Read, locked, true},
		{PermFactory, Read, locked, false},
		{PermVolatile, Read, factory, false},
		{PermPassword, Read, factory, false},
		{PermReadOnly, Read, factory, false},
		{PermWriteOnly, Read, factory, true},
		{PermFactory, Read, factory, false},

		// Writes while locked.
		{PermVolatile, Write, locked, false},
		{PermPassword, Write, locked, true},
		{PermReadOnly, Write, locked, true},
		{PermWriteOnly, Write, locked, true},
		{PermFactory, Write, locked, true},

		// Writes while unlocked.
		{PermVolatile, Write, unlocked, false},
		{PermPassword, Write, unlocked, false},
		{PermReadOnly, Write, unlocked, true},
		{PermWriteOnly, Write, unlocked, true},
		{PermFactory, Write, unlocked, true},

		// Factory registers need both flags.
		{PermFactory, Write, factoryOnly, true},
		{PermFactory, Write, factory, false},
		{PermPassword, Write, factoryOnly, true},
	}
	for _, tt := range tests {
		got := IsNoPermission(tt.perm, tt.dir, tt.lock)
		if got != tt.want {
			t.Errorf("IsNoPermission(%v, %v, %+v) = %v, want %v", tt.perm, tt.dir, tt.lock, got, tt.want)
		}
	}
}

func TestParseNames(t *testing.T) {
	for k, name := range kindNames {
		got, err := ParseKind(name)
		if err != nil || got != k {
			t.Errorf("ParseKind(%q) = %v, %v", name, got, err)
		}
	}
	for p, name := range permNames {
		got, err := ParsePermission(name)
		if err != nil || got != p {
			t.Errorf("ParsePermission(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseKind("pointer"); err == nil {
		t.Error("ParseKind accepted unknown name")
	}
}
