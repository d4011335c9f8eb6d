// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ffutop/analyzer-rtu/modbus"
	"github.com/ffutop/analyzer-rtu/modbus/crc"
	"github.com/ffutop/analyzer-rtu/modbus/rtu"
	"github.com/spf13/cobra"
)

func newCRCCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "crc <hex>",
		Short:   "Print the Modbus CRC of a byte string",
		Example: `  analyzer-rtu crc "01 03 00 00 00 0A"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseHex(args[0])
			if err != nil {
				return err
			}
			sum := crc.Checksum(data)
			fmt.Fprintf(cmd.OutOrStdout(), "CRC 0x%04X, on the wire: %02X %02X\n", sum, byte(sum), byte(sum>>8))
			return nil
		},
	}
}

type frameFlags struct {
	slave    uint8
	serial   uint32
	long     bool
	function uint8
	address  uint16
	value    uint16
	data     string
	tuning   uint32
	newAddr  uint8
}

func newFrameCmd() *cobra.Command {
	flags := &frameFlags{}

	cmd := &cobra.Command{
		Use:   "frame",
		Short: "Build a request frame for bench testing",
		Long: `Build a request frame as a master would send it, CRC included, and print
it as hex. Functions 1-6 take --address and --value (quantity for reads),
16 takes --address, --value (register quantity) and --data, 66 takes
--tuning and 68 takes --serial and --new-address.`,
		Example: `  analyzer-rtu frame --slave 1 --function 3 --address 0 --value 2
  analyzer-rtu frame --long --serial 12345 --function 16 --address 100 --value 2 --data "3F C0 00 00"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := buildFrame(flags)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.ToUpper(hex.EncodeToString(raw)))
			return nil
		},
	}

	cmd.Flags().Uint8Var(&flags.slave, "slave", 1, "Slave address")
	cmd.Flags().BoolVar(&flags.long, "long", false, "Address the frame by serial number")
	cmd.Flags().Uint32Var(&flags.serial, "serial", 0, "Pipe serial number")
	cmd.Flags().Uint8Var(&flags.function, "function", modbus.FuncCodeReadHoldingRegisters, "Function code")
	cmd.Flags().Uint16Var(&flags.address, "address", 0, "Register or coil address (0-based)")
	cmd.Flags().Uint16Var(&flags.value, "value", 1, "Quantity or value")
	cmd.Flags().StringVar(&flags.data, "data", "", "Write payload as hex")
	cmd.Flags().Uint32Var(&flags.tuning, "tuning", 0, "Diagnostic tuning value")
	cmd.Flags().Uint8Var(&flags.newAddr, "new-address", 0, "Address to force")

	return cmd
}

func buildFrame(flags *frameFlags) ([]byte, error) {
	adu := rtu.ApplicationDataUnit{
		SlaveID:      flags.slave,
		Long:         flags.long,
		SerialNumber: flags.serial,
	}
	switch flags.function {
	case modbus.FuncCodeReadCoils,
		modbus.FuncCodeReadDiscreteInputs,
		modbus.FuncCodeReadHoldingRegisters,
		modbus.FuncCodeReadInputRegisters,
		modbus.FuncCodeWriteSingleCoil,
		modbus.FuncCodeWriteSingleRegister:
		adu.Pdu = rtu.QueryPDU(flags.function, flags.address, flags.value)
	case modbus.FuncCodeWriteMultipleRegisters:
		payload, err := parseHex(flags.data)
		if err != nil {
			return nil, err
		}
		if len(payload) == 0 || len(payload) > rtu.MaxWritePayload {
			return nil, fmt.Errorf("--data must hold 1 to %d bytes", rtu.MaxWritePayload)
		}
		adu.Pdu = rtu.WriteMultiplePDU(flags.address, flags.value, payload)
	case modbus.FuncCodeDiagnosticSample:
		adu.Pdu = rtu.DiagnosticPDU(flags.tuning)
	case modbus.FuncCodeForceSlaveAddress:
		adu.Pdu = rtu.ForceAddressPDU(flags.serial, flags.newAddr)
	default:
		return nil, fmt.Errorf("unsupported function %d", flags.function)
	}
	return adu.Encode()
}

// parseHex accepts hex with optional spaces, colons or a 0x prefix.
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "-", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", s, err)
	}
	return data, nil
}
