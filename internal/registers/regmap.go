// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package registers

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// MapFile is the on-disk register map.
type MapFile struct {
	Slots      int             `yaml:"slots"`
	Bands      *BandsFile      `yaml:"bands"`
	Integer    []EntryFile     `yaml:"integer"`
	Long       []EntryFile     `yaml:"long"`
	Float      []EntryFile     `yaml:"float"`
	Coil       []EntryFile     `yaml:"coil"`
	Extended   []SegmentFile   `yaml:"extended"`
	Diagnostic DiagnosticsFile `yaml:"diagnostic"`
	Device     DeviceFile      `yaml:"device"`
}

type BandsFile struct {
	Integer []Range `yaml:"integer"`
	Long    []Range `yaml:"long"`
}

type EntryFile struct {
	Address    int    `yaml:"address"`
	Slot       int    `yaml:"slot"`
	Kind       string `yaml:"kind"`
	Permission string `yaml:"permission"`
	Effect     string `yaml:"effect"`
}

type SegmentFile struct {
	Start      int    `yaml:"start"`
	Slot       int    `yaml:"slot"`
	Length     int    `yaml:"length"`
	Kind       string `yaml:"kind"`
	Permission string `yaml:"permission"`
}

type DiagnosticsFile struct {
	Frequency      int `yaml:"frequency"`
	ReferencePower int `yaml:"reference_power"`
	Temperature    int `yaml:"temperature"`
}

type DeviceFile struct {
	AddressSlot *int `yaml:"address_slot"`
}

// Map is a validated register map: the slot count the store needs and the
// dispatcher over it.
type Map struct {
	Slots      int
	Dispatcher *Dispatcher
	// Effects lists the side effects named by annotated registers.
	Effects []string
}

// LoadMap reads and validates a register map file.
func LoadMap(path string) (*Map, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read register map: %w", err)
	}
	m, err := ParseMap(raw)
	if err != nil {
		return nil, fmt.Errorf("register map %s: %w", path, err)
	}
	return m, nil
}

// ParseMap decodes a YAML register map.
func ParseMap(raw []byte) (*Map, error) {
	var f MapFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("failed to unmarshal register map: %w", err)
	}
	return f.Build()
}

// Build validates f and constructs the dispatcher.
func (f *MapFile) Build() (*Map, error) {
	if f.Slots <= 0 {
		return nil, fmt.Errorf("slots must be > 0")
	}
	d := &Dispatcher{Bands: DefaultBands()}
	if f.Bands != nil {
		d.Bands = Bands{Integer: f.Bands.Integer, Long: f.Bands.Long}
	}

	tables := []struct {
		name    string
		entries []EntryFile
		dst     *Table
		coil    bool
	}{
		{"integer", f.Integer, &d.Integer, false},
		{"long", f.Long, &d.Long, false},
		{"float", f.Float, &d.Float, false},
		{"coil", f.Coil, &d.Coil, true},
	}
	effects := make(map[string]bool)
	for _, tbl := range tables {
		entries := make([]Entry, 0, len(tbl.entries))
		seen := make(map[int]bool, len(tbl.entries))
		for _, ef := range tbl.entries {
			e, err := ef.build(f.Slots, tbl.coil)
			if err != nil {
				return nil, fmt.Errorf("%s table: %w", tbl.name, err)
			}
			if seen[e.Address] {
				return nil, fmt.Errorf("%s table: duplicate address %d", tbl.name, e.Address)
			}
			seen[e.Address] = true
			if e.Effect != "" {
				effects[e.Effect] = true
			}
			entries = append(entries, e)
		}
		t, err := NewTable(entries)
		if err != nil {
			return nil, fmt.Errorf("%s table: %w", tbl.name, err)
		}
		*tbl.dst = t
	}

	segs := make([]Segment, 0, len(f.Extended))
	for _, sf := range f.Extended {
		s, err := sf.build(f.Slots)
		if err != nil {
			return nil, fmt.Errorf("extended table: %w", err)
		}
		segs = append(segs, s)
	}
	ext, err := NewExtendedTable(segs)
	if err != nil {
		return nil, err
	}
	d.Extended = ext

	d.Diagnostics = DiagnosticSources{
		Frequency:      f.Diagnostic.Frequency,
		ReferencePower: f.Diagnostic.ReferencePower,
		Temperature:    f.Diagnostic.Temperature,
	}
	if slot := f.Device.AddressSlot; slot != nil {
		if *slot < 0 || *slot >= f.Slots {
			return nil, fmt.Errorf("device address slot %d out of range", *slot)
		}
		d.Device.Address = &Binding{Slot: *slot, Kind: KindInteger, Perm: PermFactory}
	}
	m := &Map{Slots: f.Slots, Dispatcher: d}
	for name := range effects {
		m.Effects = append(m.Effects, name)
	}
	sort.Strings(m.Effects)
	return m, nil
}

func (ef EntryFile) build(slots int, coil bool) (Entry, error) {
	if ef.Slot < 0 || ef.Slot >= slots {
		return Entry{}, fmt.Errorf("address %d: slot %d out of range", ef.Address, ef.Slot)
	}
	kindName := ef.Kind
	if kindName == "" {
		kindName = "double"
		if coil {
			kindName = "coil"
		}
	}
	kind, err := ParseKind(kindName)
	if err != nil {
		return Entry{}, fmt.Errorf("address %d: %w", ef.Address, err)
	}
	perm, err := parsePermissionOrDefault(ef.Permission)
	if err != nil {
		return Entry{}, fmt.Errorf("address %d: %w", ef.Address, err)
	}
	if kind == KindAnnotated && ef.Effect == "" {
		return Entry{}, fmt.Errorf("address %d: annotated register needs an effect", ef.Address)
	}
	return Entry{
		Address: ef.Address,
		Binding: Binding{Slot: ef.Slot, Kind: kind, Perm: perm, Effect: ef.Effect},
	}, nil
}

func (sf SegmentFile) build(slots int) (Segment, error) {
	if sf.Slot < 0 || sf.Slot+sf.Length > slots {
		return Segment{}, fmt.Errorf("segment %d: slots %d..%d out of range", sf.Start, sf.Slot, sf.Slot+sf.Length-1)
	}
	kindName := sf.Kind
	if kindName == "" {
		kindName = "double"
	}
	kind, err := ParseKind(kindName)
	if err != nil {
		return Segment{}, fmt.Errorf("segment %d: %w", sf.Start, err)
	}
	if kind == KindAnnotated {
		return Segment{}, fmt.Errorf("segment %d: annotated values are not allowed in arrays", sf.Start)
	}
	perm, err := parsePermissionOrDefault(sf.Permission)
	if err != nil {
		return Segment{}, fmt.Errorf("segment %d: %w", sf.Start, err)
	}
	return Segment{Start: sf.Start, Base: sf.Slot, Length: sf.Length, Kind: kind, Perm: perm}, nil
}

func parsePermissionOrDefault(s string) (Permission, error) {
	if s == "" {
		return PermReadOnly, nil
	}
	return ParsePermission(s)
}
