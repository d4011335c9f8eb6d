// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"fmt"
	"sort"
)

// Entry binds one register number.
type Entry struct {
	Address int
	Binding
}

// Table is a flat register table terminated by an entry with address 0.
// Entries need not be sorted.
type Table struct {
	entries []Entry
}

// NewTable copies entries and appends the terminating sentinel.
func NewTable(entries []Entry) (Table, error) {
	t := Table{entries: make([]Entry, 0, len(entries)+1)}
	for _, e := range entries {
		if e.Address <= 0 {
			return Table{}, fmt.Errorf("register address %d: must be > 0", e.Address)
		}
		t.entries = append(t.entries, e)
	}
	t.entries = append(t.entries, Entry{})
	return t, nil
}

// Len returns the number of entries, sentinel excluded.
func (t Table) Len() int {
	if len(t.entries) == 0 {
		return 0
	}
	return len(t.entries) - 1
}

// Lookup scans from the first entry until address matches or the sentinel is
// reached.
func (t Table) Lookup(address int) (Binding, bool) {
	for i := 0; i < len(t.entries) && t.entries[i].Address != 0; i++ {
		if t.entries[i].Address == address {
			return t.entries[i].Binding, true
		}
	}
	return Binding{}, false
}

// Segment maps a register range onto Length consecutive slots from Base.
// Registers address the segment by even offsets: register Start+2k is slot
// Base+k.
type Segment struct {
	Start  int
	Base   int
	Length int
	Kind   Kind
	Perm   Permission
}

// ExtendedTable is an ordered interval table of segments, terminated by a
// sentinel with Start 0.
type ExtendedTable struct {
	segs []Segment
}

// NewExtendedTable sorts segs by Start and appends the sentinel.
func NewExtendedTable(segs []Segment) (ExtendedTable, error) {
	sorted := make([]Segment, len(segs), len(segs)+1)
	copy(sorted, segs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })
	for i, s := range sorted {
		if s.Start <= 0 || s.Length <= 0 {
			return ExtendedTable{}, fmt.Errorf("extended segment at %d: start and length must be > 0", s.Start)
		}
		if i > 0 && sorted[i-1].Start == s.Start {
			return ExtendedTable{}, fmt.Errorf("extended segment at %d: duplicate start", s.Start)
		}
	}
	return ExtendedTable{segs: append(sorted, Segment{})}, nil
}

// Lookup finds the segment i with Start_i <= address < Start_{i+1} and
// resolves the slot at offset (address-Start_i)/2.
func (t ExtendedTable) Lookup(address int) (Binding, bool) {
	for i := 0; i < len(t.segs) && t.segs[i].Start != 0; i++ {
		seg := t.segs[i]
		next := t.segs[i+1].Start
		if address < seg.Start || (next != 0 && address >= next) {
			continue
		}
		off := (address - seg.Start) / 2
		if off >= seg.Length {
			return Binding{}, false
		}
		return Binding{Slot: seg.Base + off, Kind: seg.Kind, Perm: seg.Perm}, true
	}
	return Binding{}, false
}
