// Copyright 2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/llmp16/llmp16/cpu"

// The debugHandler receives notifications from the cpu debugger and
// forwards them to the host. The machine has already asked itself to stop
// by the time either method is called.
type debugHandler struct {
	host *Host
}

func newDebugHandler(h *Host) *debugHandler {
	return &debugHandler{host: h}
}

func (h *debugHandler) OnBreakpoint(cpu *cpu.CPU, b *cpu.Breakpoint) {
	h.host.log.WithField("addr", b.Address).Debug("breakpoint")
	h.host.onBreakpoint(cpu, b)
}

func (h *debugHandler) OnDataBreakpoint(cpu *cpu.CPU, b *cpu.DataBreakpoint) {
	h.host.log.WithField("addr", b.Address).Debug("data breakpoint")
	h.host.onDataBreakpoint(cpu, b)
}
