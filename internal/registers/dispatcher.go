// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no table entry resolves the address.
	ErrNotFound = errors.New("registers: address not provisioned")
	// ErrPermission means the access class forbids the access.
	ErrPermission = errors.New("registers: no permission")
)

// TableID selects one of the dispatcher's tables.
type TableID uint8

const (
	TableInteger TableID = iota
	TableLong
	TableFloat
	TableCoil
	TableExtended
)

func (t TableID) String() string {
	switch t {
	case TableInteger:
		return "integer"
	case TableLong:
		return "long"
	case TableFloat:
		return "float"
	case TableCoil:
		return "coil"
	case TableExtended:
		return "extended"
	}
	return fmt.Sprintf("TableID(%d)", uint8(t))
}

// Range is an inclusive register number range.
type Range struct {
	First int `yaml:"first"`
	Last  int `yaml:"last"`
}

func (r Range) Contains(reg int) bool {
	return reg >= r.First && reg <= r.Last
}

// Bands classifies holding/input register numbers. Anything outside the
// integer and long bands belongs to the float table.
type Bands struct {
	Integer []Range
	Long    []Range
}

// DefaultBands is the analyzer's standard layout.
func DefaultBands() Bands {
	return Bands{
		Integer: []Range{{201, 300}, {401, 500}},
		Long:    []Range{{301, 400}},
	}
}

// Classify returns the table a 1-based register number belongs to.
func (b Bands) Classify(reg int) TableID {
	for _, r := range b.Integer {
		if r.Contains(reg) {
			return TableInteger
		}
	}
	for _, r := range b.Long {
		if r.Contains(reg) {
			return TableLong
		}
	}
	return TableFloat
}

// DiagnosticSources names the float-table registers sampled by the vendor
// diagnostic function.
type DiagnosticSources struct {
	Frequency      int
	ReferencePower int
	Temperature    int
}

// DeviceSlots locates device state that lives in the store so it survives a
// restart.
type DeviceSlots struct {
	// Address holds the slave address set by force-address. Nil keeps the
	// address in memory only.
	Address *Binding
}

// Dispatcher resolves register numbers to bindings.
type Dispatcher struct {
	Integer     Table
	Long        Table
	Float       Table
	Coil        Table
	Extended    ExtendedTable
	Bands       Bands
	Diagnostics DiagnosticSources
	Device      DeviceSlots
}

// Lookup resolves address in table id.
func (d *Dispatcher) Lookup(id TableID, address int) (Binding, error) {
	var (
		b  Binding
		ok bool
	)
	switch id {
	case TableInteger:
		b, ok = d.Integer.Lookup(address)
	case TableLong:
		b, ok = d.Long.Lookup(address)
	case TableFloat:
		b, ok = d.Float.Lookup(address)
	case TableCoil:
		b, ok = d.Coil.Lookup(address)
	case TableExtended:
		b, ok = d.Extended.Lookup(address)
	}
	if !ok {
		return Binding{}, fmt.Errorf("%v register %d: %w", id, address, ErrNotFound)
	}
	return b, nil
}

// Resolve looks address up and checks the access in direction dir.
func (d *Dispatcher) Resolve(id TableID, address int, dir Direction, lock Lock) (Binding, error) {
	b, err := d.Lookup(id, address)
	if err != nil {
		return Binding{}, err
	}
	if IsNoPermission(b.Perm, dir, lock) {
		return Binding{}, fmt.Errorf("%v register %d (%v): %w", id, address, b.Perm, ErrPermission)
	}
	return b, nil
}
