// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/ffutop/analyzer-rtu/internal/config"
	"github.com/ffutop/analyzer-rtu/internal/persistence"
	"github.com/ffutop/analyzer-rtu/internal/registers"
	"github.com/ffutop/analyzer-rtu/internal/slave"
	"github.com/ffutop/analyzer-rtu/transport/rtu"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the register map on the serial line",
		Example: `  analyzer-rtu serve -c /etc/analyzer-rtu/config.yaml
  analyzer-rtu serve -p /dev/ttyUSB0 -s 19200 -a 3 -m registers.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			setupLogger(cfg.Log)

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "Configuration file path.")
	config.AddFlags(cmd.Flags())
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.Registers.Map == "" {
		return errors.New("registers.map is required")
	}
	m, err := registers.LoadMap(cfg.Registers.Map)
	if err != nil {
		return err
	}

	storage := persistence.New(cfg.Persistence.Type, cfg.Persistence.Path)
	defer storage.Close()
	store, err := storage.Load(m.Slots)
	if err != nil {
		return fmt.Errorf("failed to load registers: %w", err)
	}

	address := cfg.Device.SlaveAddress
	if stored, ok := slave.StoredAddress(m.Dispatcher, store); ok {
		if stored != address {
			slog.Info("Using slave address forced by master", "address", stored, "configured", address)
		}
		address = stored
	}

	effects := slave.NewEffectScheduler(nil, 16)
	for _, name := range m.Effects {
		name := name
		effects.Register(name, func(v float64) {
			slog.Info("Applying register effect", "effect", name, "value", v)
			if err := storage.Save(store); err != nil {
				slog.Error("Failed to save registers", "effect", name, "err", err)
			}
		})
	}

	engine, err := slave.New(slave.Options{
		Device: slave.Device{
			SlaveAddress:    address,
			SerialNumber:    cfg.Device.SerialNumber,
			Unlocked:        cfg.Device.Unlocked,
			FactoryUnlocked: cfg.Device.FactoryUnlocked,
		},
		Dispatcher:    m.Dispatcher,
		Store:         store,
		Persister:     storage,
		Effects:       effects,
		Timing:        timing(cfg),
		QueueCapacity: cfg.Queue.Capacity,
		OnAddressChange: func(addr byte) {
			if m.Dispatcher.Device.Address == nil {
				slog.Warn("Slave address forced by master; no address slot, it is lost on restart", "address", addr)
				return
			}
			slog.Info("Slave address forced by master", "address", addr)
		},
	})
	if err != nil {
		return err
	}

	slog.Info("Starting analyzer RTU slave", "slave", address, "serial", cfg.Device.SerialNumber,
		"slots", m.Slots, "persistence", cfg.Persistence.Type)
	err = rtu.NewServer(cfg.Serial, engine).Start(ctx)
	if serr := storage.Save(store); serr != nil {
		slog.Error("Failed to save registers", "err", serr)
	}
	slog.Info("Goodbye.")
	return err
}

// timing derives the engine delays from the baud rate and applies the
// configured overrides.
func timing(cfg *config.Config) slave.Timing {
	t := slave.DefaultTiming(cfg.Serial.BaudRate)
	tc := cfg.Timing
	if tc.Watchdog > 0 {
		t.Watchdog = tc.Watchdog
	}
	if tc.Retry > 0 {
		t.Retry = tc.Retry
	}
	if tc.ResponseDelay > 0 {
		for c := range t.Delays {
			t.Delays[c] = tc.ResponseDelay
		}
	}
	overrides := []struct {
		class slave.RegisterClass
		delay time.Duration
	}{
		{slave.ClassInteger, tc.ClassDelays.Integer},
		{slave.ClassLong, tc.ClassDelays.Long},
		{slave.ClassFloat, tc.ClassDelays.Float},
		{slave.ClassCoil, tc.ClassDelays.Coil},
		{slave.ClassDiagnostic, tc.ClassDelays.Diagnostic},
		{slave.ClassForceAddress, tc.ClassDelays.ForceAddress},
	}
	for _, o := range overrides {
		if o.delay > 0 {
			t.SetDelay(o.class, o.delay)
		}
	}
	return t
}
