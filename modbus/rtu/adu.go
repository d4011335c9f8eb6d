// Copyright (c) 2025 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"encoding/binary"
	"fmt"

	"github.com/ffutop/analyzer-rtu/modbus"
	"github.com/ffutop/analyzer-rtu/modbus/crc"
)

// ApplicationDataUnit is an RTU frame. When Long is set the frame is addressed
// by SerialNumber behind the 0xFA marker and SlaveID is ignored.
type ApplicationDataUnit struct {
	SlaveID      byte
	Long         bool
	SerialNumber uint32
	Pdu          modbus.ProtocolDataUnit
}

func (adu *ApplicationDataUnit) prefixSize() int {
	if adu.Long {
		return LongPrefixSize
	}
	return ShortPrefixSize
}

// Decode parses and checks a complete frame.
func Decode(raw []byte) (adu *ApplicationDataUnit, err error) {
	length := len(raw)
	// Minimum size (including address, function and CRC)
	if length < MinSize {
		err = fmt.Errorf("modbus: frame length '%v' does not meet minimum '%v'", length, MinSize)
		return
	}
	prefix := PrefixSize(raw[0])
	if length < prefix+1+CRCSize {
		err = fmt.Errorf("modbus: frame length '%v' too short for address field", length)
		return
	}

	var c crc.CRC
	c.Reset().PushBytes(raw[0 : length-2])
	checksum := uint16(raw[length-1])<<8 | uint16(raw[length-2])
	if checksum != c.Value() {
		err = fmt.Errorf("modbus: frame crc '%v' does not match expected '%v'", checksum, c.Value())
		return
	}
	adu = &ApplicationDataUnit{}
	if prefix == LongPrefixSize {
		adu.Long = true
		adu.SerialNumber = binary.BigEndian.Uint32(raw[1:5])
	} else {
		adu.SlaveID = raw[0]
	}
	adu.Pdu.FunctionCode = raw[prefix]
	adu.Pdu.Data = raw[prefix+1 : length-2]
	return
}

// Encode encodes PDU in an RTU frame:
//
//	Address         : 1 byte, or 0xFA + 4-byte serial number
//	Function        : 1 byte
//	Data            : 0 up to 252 bytes
//	CRC             : 2 bytes
func (adu *ApplicationDataUnit) Encode() (raw []byte, err error) {
	prefix := adu.prefixSize()
	length := prefix + 1 + len(adu.Pdu.Data) + CRCSize
	if length > MaxSize+LongPrefixSize-ShortPrefixSize {
		err = fmt.Errorf("modbus: length of data '%v' must not be bigger than '%v'", length, MaxSize)
		return
	}
	raw = make([]byte, 0, length)
	if adu.Long {
		raw = append(raw, modbus.LongAddressMarker)
		raw = binary.BigEndian.AppendUint32(raw, adu.SerialNumber)
	} else {
		raw = append(raw, adu.SlaveID)
	}
	raw = append(raw, adu.Pdu.FunctionCode)
	raw = append(raw, adu.Pdu.Data...)
	raw = crc.Append(raw)
	return
}

// Exception reports whether the frame is an exception response and its code.
func (adu *ApplicationDataUnit) Exception() (byte, bool) {
	if adu.Pdu.FunctionCode&modbus.FuncCodeExceptionFlag == 0 || len(adu.Pdu.Data) != 1 {
		return 0, false
	}
	return adu.Pdu.Data[0], true
}
