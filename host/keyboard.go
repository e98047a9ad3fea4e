// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"os"
	"sync"
	"time"

	"github.com/beevik/cmd"
	"github.com/beevik/term"
	"github.com/llmp16/llmp16/cpu"
)

// keyDetach (ctrl-]) returns from keyboard mode to the command prompt.
const keyDetach = 0x1d

// translateKey maps a byte read from a raw terminal to the scan code the
// emulated keyboard receives.
func translateKey(b byte) uint16 {
	switch b {
	case '\r':
		return '\n'
	case 0x7f:
		return 0x08
	}
	return uint16(b)
}

func (h *Host) cmdKeyboard(c cmd.Selection) error {
	fd := int(os.Stdin.Fd())
	if !h.interactive || !term.IsTerminal(fd) {
		h.println("Keyboard mode requires an interactive terminal.")
		return nil
	}

	detach := make(chan struct{})
	var once sync.Once
	kr, err := startKeyReader(fd, func(b byte) {
		if b == keyDetach {
			once.Do(func() { close(detach) })
			h.m.Break()
			return
		}
		if !h.m.InjectScanCode(translateKey(b)) {
			h.log.WithField("key", b).Warn("keyboard buffer full")
		}
	})
	if err != nil {
		h.printf("Failed to attach keyboard: %v\n", err)
		return nil
	}

	h.printf("Keyboard attached at $%04X. Press ctrl-] to detach.\r\n", h.m.CPU.Reg.R[cpu.PC])

	chunk := h.settings.KeyboardChunk
	if chunk <= 0 {
		chunk = runChunk
	}

	h.state = stateRunning
	h.running.Store(true)
	for h.state == stateRunning {
		select {
		case <-detach:
			h.state = stateProcessingCommands
			continue
		default:
		}

		h.m.Run(chunk)
		if h.interrupted.Swap(false) {
			break
		}
		if h.m.Idle() {
			time.Sleep(5 * time.Millisecond)
		}
	}
	h.running.Store(false)
	kr.Stop()

	h.state = stateProcessingCommands
	h.println()
	h.println("Keyboard detached.")
	h.displayPC()
	return nil
}
