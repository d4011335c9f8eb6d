// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import "fmt"

// Kind is the representation of the value a register is bound to.
type Kind uint8

const (
	KindDouble    Kind = iota + 1 // raw float64
	KindInteger                   // raw 16-bit signed integer
	KindLong                      // raw 32-bit signed integer
	KindAnnotated                 // float64 whose write schedules a side effect
	KindCoil                      // boolean
)

var kindNames = map[Kind]string{
	KindDouble:    "double",
	KindInteger:   "integer",
	KindLong:      "long",
	KindAnnotated: "annotated",
	KindCoil:      "coil",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind maps a register map name to a Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown register kind %q", s)
}

// Permission is the access class of a register.
type Permission uint8

const (
	// PermVolatile registers are always writable and never persisted.
	PermVolatile Permission = iota
	PermPassword
	PermReadOnly
	PermWriteOnly
	// PermFactory registers need both the factory and the general unlock.
	PermFactory
)

var permNames = map[Permission]string{
	PermVolatile:  "volatile",
	PermPassword:  "password",
	PermReadOnly:  "read-only",
	PermWriteOnly: "write-only",
	PermFactory:   "factory",
}

func (p Permission) String() string {
	if s, ok := permNames[p]; ok {
		return s
	}
	return fmt.Sprintf("Permission(%d)", uint8(p))
}

// ParsePermission maps a register map name to a Permission.
func ParsePermission(s string) (Permission, error) {
	for p, name := range permNames {
		if name == s {
			return p, nil
		}
	}
	return 0, fmt.Errorf("unknown register permission %q", s)
}

// Direction of an access.
type Direction uint8

const (
	Read Direction = iota
	Write
)

// Lock is the unlock state of the device.
type Lock struct {
	Unlocked        bool
	FactoryUnlocked bool
}

// IsNoPermission reports whether an access in direction dir to a register of
// class perm must be refused.
func IsNoPermission(perm Permission, dir Direction, lock Lock) bool {
	if dir == Read {
		return perm == PermWriteOnly
	}
	switch perm {
	case PermVolatile:
		return false
	case PermPassword:
		return !lock.Unlocked
	case PermFactory:
		return !(lock.FactoryUnlocked && lock.Unlocked)
	default:
		return true
	}
}

// Binding is the result of a register lookup: where the value lives, how it is
// represented and who may touch it.
type Binding struct {
	Slot   int
	Kind   Kind
	Perm   Permission
	Effect string // KindAnnotated only
}

// Persistent reports whether a write through b must be persisted.
func (b Binding) Persistent() bool {
	return b.Perm != PermVolatile
}
