// Copyright (c) 2025-2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

// Package rtu puts the slave engine on a serial line.
package rtu

import (
	"context"
	"log/slog"

	"github.com/ffutop/analyzer-rtu/internal/config"
	"github.com/ffutop/analyzer-rtu/internal/slave"
)

// Server implements the analyzer's Modbus RTU slave on a serial bus, answering
// an external master.
type Server struct {
	Config config.SerialConfig
	Engine *slave.Engine

	port *serialPort
}

// NewServer creates a new RTU Server.
func NewServer(cfg config.SerialConfig, engine *slave.Engine) *Server {
	return &Server{
		Config: cfg,
		Engine: engine,
		port:   newSerialPort(cfg),
	}
}

// Start opens the serial port and serves the engine until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	port, err := s.port.Connect(ctx)
	if err != nil {
		return err
	}
	defer s.port.Close()
	slog.Info("RTU slave listening", "device", s.Config.Device)

	// Closing the port unblocks the pending read.
	stop := context.AfterFunc(ctx, func() {
		s.port.Close()
	})
	defer stop()

	err = s.Engine.Run(ctx, port)
	slog.Info("RTU slave stopped", "device", s.Config.Device, "counters", s.Engine.Counters().Snapshot())
	return err
}

func (s *Server) Close() error {
	return s.port.Close()
}
