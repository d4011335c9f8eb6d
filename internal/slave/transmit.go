// Copyright (c) 2026 Li Jinling. All rights reserved.
// This software may be modified and distributed under the terms
// of the BSD-3 Clause License. See the LICENSE file for details.

package slave

import (
	"encoding/hex"
	"io"
	"log/slog"
)

// Transmit drains the TX ring into w. When the write completes the transmit
// path is released and the next queued request, if any, gets its silence
// timer.
func (e *Engine) Transmit(w io.Writer) error {
	e.mu.Lock()
	n := e.tx.Len()
	if n == 0 {
		e.txBusy = false
		e.mu.Unlock()
		return nil
	}
	frame := make([]byte, n)
	e.tx.Copy(frame, 0)
	e.tx.Clear()
	e.mu.Unlock()

	slog.Debug("Sending response", "frame", hex.EncodeToString(frame))
	_, err := w.Write(frame)

	e.mu.Lock()
	e.txBusy = false
	e.armHead()
	e.mu.Unlock()
	return err
}

// Busy reports whether a response is built or in transmission.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.txBusy || e.tx.Len() > 0
}
