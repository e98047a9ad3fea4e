// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

// The Memory interface presents an interface to the CPU through which all
// memory accesses occur.
type Memory interface {
	// LoadByte loads a single byte from the address and returns it.
	LoadByte(addr uint16) byte

	// LoadBytes loads multiple bytes from the address and stores them into
	// the buffer 'b'.
	LoadBytes(addr uint16, b []byte)

	// LoadWord loads a little-endian 16-bit value from the address.
	LoadWord(addr uint16) uint16

	// StoreByte stores a byte to the requested address.
	StoreByte(addr uint16, v byte)

	// StoreBytes stores multiple bytes to the requested address.
	StoreBytes(addr uint16, b []byte)
}

// VideoMemory gives the CPU byte access to the active video bank.
type VideoMemory interface {
	LoadVideo(offset uint16) byte
	StoreVideo(offset uint16, v byte)
}

// Ports is the I/O register file addressed by the IN and OUT instructions.
type Ports interface {
	In(port, reg byte) uint16
	Out(port, reg byte, v uint16)
}

// FlatMemory represents an entire 16-bit address space as a singular
// 64K buffer, together with a single 64K video bank and a flat I/O
// register file. It is useful for running code without an MMU.
type FlatMemory struct {
	b     [64 * 1024]byte
	video [64 * 1024]byte
	io    [16][16]uint16
}

// NewFlatMemory creates a new 16-bit memory space.
func NewFlatMemory() *FlatMemory {
	return &FlatMemory{}
}

// LoadByte loads a single byte from the address and returns it.
func (m *FlatMemory) LoadByte(addr uint16) byte {
	return m.b[addr]
}

// LoadBytes loads multiple bytes from the address, wrapping at the top of
// the address space.
func (m *FlatMemory) LoadBytes(addr uint16, b []byte) {
	for i := range b {
		b[i] = m.b[addr+uint16(i)]
	}
}

// LoadWord loads a little-endian 16-bit value from the address.
func (m *FlatMemory) LoadWord(addr uint16) uint16 {
	return uint16(m.b[addr]) | uint16(m.b[addr+1])<<8
}

// StoreByte stores a byte at the requested address.
func (m *FlatMemory) StoreByte(addr uint16, v byte) {
	m.b[addr] = v
}

// StoreBytes stores multiple bytes to the requested address.
func (m *FlatMemory) StoreBytes(addr uint16, b []byte) {
	for i, v := range b {
		m.b[addr+uint16(i)] = v
	}
}

// LoadVideo reads a byte of video memory.
func (m *FlatMemory) LoadVideo(offset uint16) byte {
	return m.video[offset]
}

// StoreVideo writes a byte of video memory.
func (m *FlatMemory) StoreVideo(offset uint16, v byte) {
	m.video[offset] = v
}

// In reads an I/O register.
func (m *FlatMemory) In(port, reg byte) uint16 {
	return m.io[port&0x0f][reg&0x0f]
}

// Out writes an I/O register.
func (m *FlatMemory) Out(port, reg byte, v uint16) {
	m.io[port&0x0f][reg&0x0f] = v
}
