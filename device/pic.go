// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package device

import (
	"math/bits"

	"github.com/llmp16/llmp16/memory"
	log "github.com/sirupsen/logrus"
)

// PIC registers.
const (
	PICIMR  = 0 // interrupt mask, 1 = masked
	PICISR  = 1 // in service
	PICIRR  = 2 // requested
	PICEOI  = 3 // end of interrupt: bits written here leave ISR
	PICBase = 4 // vector base address
)

// An Interrupter receives the vector address of a dispatched interrupt.
type Interrupter interface {
	Interrupt(vector uint16)
}

// PIC is the programmable interrupt controller. It latches requests in IRR
// and dispatches the lowest-numbered unmasked line to the CPU once nothing
// is in service.
type PIC struct {
	ports *memory.Ports
	cpu   Interrupter
	log   *log.Entry
}

// NewPIC creates an interrupt controller that dispatches to cpu.
func NewPIC(ports *memory.Ports, cpu Interrupter) *PIC {
	p := &PIC{ports: ports, cpu: cpu, log: logger("pic")}
	p.Reset()
	return p
}

// Reset masks every line and clears all pending state.
func (p *PIC) Reset() {
	p.ports.Out(memory.PortPIC, PICIMR, 0xffff)
	p.ports.Out(memory.PortPIC, PICISR, 0)
	p.ports.Out(memory.PortPIC, PICIRR, 0)
	p.ports.Out(memory.PortPIC, PICEOI, 0)
	p.ports.Out(memory.PortPIC, PICBase, 0)
}

// Raise requests an interrupt on a line. Requests on masked lines are
// dropped.
func (p *PIC) Raise(line int) {
	if line < 0 || line > 15 {
		return
	}
	bit := uint16(1) << line
	if p.ports.In(memory.PortPIC, PICIMR)&bit != 0 {
		p.log.WithField("line", line).Trace("masked irq dropped")
		return
	}
	irr := p.ports.In(memory.PortPIC, PICIRR)
	p.ports.Out(memory.PortPIC, PICIRR, irr|bit)
}

// Update acknowledges end-of-interrupt writes and, when no line is in
// service, moves the highest-priority pending line to ISR and signals the
// CPU with vector BASE+line.
func (p *PIC) Update() {
	imr := p.ports.In(memory.PortPIC, PICIMR)
	isr := p.ports.In(memory.PortPIC, PICISR)
	irr := p.ports.In(memory.PortPIC, PICIRR)
	eoi := p.ports.In(memory.PortPIC, PICEOI)
	base := p.ports.In(memory.PortPIC, PICBase)

	if eoi != 0 {
		isr &^= eoi
		p.ports.Out(memory.PortPIC, PICEOI, 0)
	}

	if isr == 0 {
		if pending := irr &^ imr &^ isr; pending != 0 {
			line := bits.TrailingZeros16(pending)
			bit := uint16(1) << line
			irr &^= bit
			isr |= bit
			vector := base + uint16(line)
			p.cpu.Interrupt(vector)
			p.log.WithFields(log.Fields{
				"line":   line,
				"vector": vector,
			}).Debug("irq dispatched")
		}
	}

	p.ports.Out(memory.PortPIC, PICIRR, irr)
	p.ports.Out(memory.PortPIC, PICISR, isr)
}

// Masked reports whether a line is masked in IMR.
func (p *PIC) Masked(line int) bool {
	return p.ports.In(memory.PortPIC, PICIMR)&(1<<uint(line&0x0f)) != 0
}

// InService reports whether any line is in service in ISR.
func (p *PIC) InService() bool {
	return p.ports.In(memory.PortPIC, PICISR) != 0
}

// Pending reports whether an unmasked request in IRR can be dispatched.
// Nothing is dispatched while a line is in service.
func (p *PIC) Pending() bool {
	irr := p.ports.In(memory.PortPIC, PICIRR)
	imr := p.ports.In(memory.PortPIC, PICIMR)
	return irr&^imr != 0 && !p.InService()
}
