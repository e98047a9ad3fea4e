// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

// Size of the I/O register file.
const (
	NumPorts     = 16
	NumRegisters = 16
)

// I/O port assignments.
const (
	PortMMU      = 0x0
	PortKeyboard = 0x2
	PortDisk     = 0x3
	PortTimer    = 0x4
	PortDMA      = 0x7
	PortPIC      = 0x8
	PortBlitter  = 0x9
)

// MMU control registers on PortMMU.
const (
	MMULow   = 0 // low-half mapping: kind<<8 | bank
	MMUHigh  = 1 // high-half mapping
	MMUVideo = 2 // active VRAM bank for VLD/VST, blitter and DMA
)

var portNames = [NumPorts]string{
	PortMMU:      "MMU",
	PortKeyboard: "KBD",
	PortDisk:     "DISK",
	PortTimer:    "TIMER",
	PortDMA:      "DMA",
	PortPIC:      "PIC",
	PortBlitter:  "BLIT",
}

// PortName returns a short name for the device attached to a port, or an
// empty string if the port is unassigned.
func PortName(port byte) string {
	return portNames[port&0x0f]
}

// Ports is the machine's I/O register file: 16 ports of 16 16-bit
// registers. The CPU reaches it with IN and OUT; devices read their
// configuration from it and publish their status to it. Registers are
// plain storage with no side effects on access.
type Ports struct {
	regs [NumPorts][NumRegisters]uint16
}

// NewPorts creates a zeroed register file.
func NewPorts() *Ports {
	return &Ports{}
}

// In reads a register. Port and register numbers are taken modulo 16.
func (p *Ports) In(port, reg byte) uint16 {
	return p.regs[port&0x0f][reg&0x0f]
}

// Out writes a register. Port and register numbers are taken modulo 16.
func (p *Ports) Out(port, reg byte, v uint16) {
	p.regs[port&0x0f][reg&0x0f] = v
}

// Port returns a copy of all registers of a port.
func (p *Ports) Port(port byte) [NumRegisters]uint16 {
	return p.regs[port&0x0f]
}

// Reset clears every register.
func (p *Ports) Reset() {
	p.regs = [NumPorts][NumRegisters]uint16{}
}
