// Copyright (c) 2014 Quoc-Viet Nguyen. All rights reserved.
// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package rtu

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/ffutop/analyzer-rtu/internal/config"
	"github.com/grid-x/serial"
)

// openFunc opens a serial line. Tests replace it.
type openFunc func(c *serial.Config) (io.ReadWriteCloser, error)

// serialPort has configuration and I/O controller.
type serialPort struct {
	// Serial port configuration.
	serial.Config

	open openFunc

	mu sync.Mutex
	// port is platform-dependent data structure for serial port.
	port io.ReadWriteCloser
}

func newSerialPort(cfg config.SerialConfig) *serialPort {
	return &serialPort{
		Config: serialConfig(cfg),
		open:   openSerial,
	}
}

func openSerial(c *serial.Config) (io.ReadWriteCloser, error) {
	return serial.Open(c)
}

// serialConfig maps the configuration onto the driver's options.
func serialConfig(cfg config.SerialConfig) serial.Config {
	return serial.Config{
		Address:  cfg.Device,
		BaudRate: cfg.BaudRate,
		DataBits: cfg.DataBits,
		StopBits: cfg.StopBits,
		Parity:   cfg.Parity,
		Timeout:  cfg.Timeout,
		RS485: serial.RS485Config{
			Enabled:            cfg.RS485,
			DelayRtsBeforeSend: cfg.DelayRtsBeforeSend,
			DelayRtsAfterSend:  cfg.DelayRtsAfterSend,
			RtsHighDuringSend:  cfg.RtsHighDuringSend,
			RtsHighAfterSend:   cfg.RtsHighAfterSend,
			RxDuringTx:         cfg.RxDuringTx,
		},
	}
}

func (sp *serialPort) Connect(ctx context.Context) (io.ReadWriteCloser, error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.connect(ctx)
}

// connect opens the serial port if it is not open. Caller must hold the mutex.
func (sp *serialPort) connect(ctx context.Context) (io.ReadWriteCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}
	if sp.port == nil {
		port, err := sp.open(&sp.Config)
		if err != nil {
			return nil, fmt.Errorf("could not open %s: %w", sp.Config.Address, err)
		}
		sp.port = port
		slog.Info("Serial port opened", "device", sp.Config.Address, "baud", sp.Config.BaudRate,
			"parity", sp.Config.Parity, "rs485", sp.Config.RS485.Enabled)
	}
	return sp.port, nil
}

func (sp *serialPort) Close() (err error) {
	sp.mu.Lock()
	defer sp.mu.Unlock()

	return sp.close()
}

// close closes the serial port if it is open. Caller must hold the mutex.
func (sp *serialPort) close() (err error) {
	if sp.port != nil {
		err = sp.port.Close()
		sp.port = nil
		slog.Info("Serial port closed", "device", sp.Config.Address)
	}
	return
}
