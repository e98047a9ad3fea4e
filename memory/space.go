// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package memory implements the LLMP16 I/O register file and the banked
// 16-bit address space.
//
// The logical address space is split into two 32 KiB halves. Each half is
// mapped onto one 32 KiB bank of a backing store by a register on the MMU
// port, so remapping takes effect on the very next access.
package memory

import "fmt"

// BankSize is the size of a bank and of each half of the address space.
const BankSize = 0x8000

// Backing store sizes.
const (
	ROMBanks      = 128
	RAMBanks      = 8
	VRAMBanks     = 2       // video banks as seen by VLD/VST and devices
	VRAMBankSize  = 0x10000 // size of one video bank
	VRAMMMUBanks  = VRAMBanks * VRAMBankSize / BankSize
	defaultLow    = uint16(KindROM)<<8 | 0
	defaultHigh   = uint16(KindRAM)<<8 | 0
	videoBankMask = VRAMBanks - 1
)

// Kind identifies a backing store.
type Kind byte

// Backing store kinds, as written to the MMU mapping registers.
const (
	KindROM Kind = iota
	KindDisk
	KindRAM
	KindVRAM
)

var kindNames = []string{"ROM", "DISK", "RAM", "VRAM"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("KIND%d", k)
}

// Mapping encodes a kind and bank as an MMU mapping register value.
func Mapping(kind Kind, bank int) uint16 {
	return uint16(kind)<<8 | uint16(bank&0xff)
}

// Space is the banked address space seen by the CPU and the DMA-capable
// devices. It implements the cpu.Memory and cpu.VideoMemory interfaces.
type Space struct {
	ports *Ports
	rom   []byte
	ram   []byte
	disk  []byte
	vram  []byte
}

// NewSpace creates an address space whose mapping registers live in ports.
// The disk store is rounded up to a whole number of banks.
func NewSpace(ports *Ports, diskSize int) *Space {
	diskBanks := (diskSize + BankSize - 1) / BankSize
	s := &Space{
		ports: ports,
		rom:   make([]byte, ROMBanks*BankSize),
		ram:   make([]byte, RAMBanks*BankSize),
		disk:  make([]byte, diskBanks*BankSize),
		vram:  make([]byte, VRAMBanks*VRAMBankSize),
	}
	s.Reset()
	return s
}

// Reset clears RAM and video memory and restores the power-on mapping: ROM
// bank 0 in the low half and RAM bank 0 in the high half. ROM and disk
// contents survive a reset.
func (s *Space) Reset() {
	clear(s.ram)
	clear(s.vram)
	s.ports.Out(PortMMU, MMULow, defaultLow)
	s.ports.Out(PortMMU, MMUHigh, defaultHigh)
	s.ports.Out(PortMMU, MMUVideo, 0)
}

// Store returns the raw contents of a backing store, or nil for an unknown
// kind. The slice aliases the store.
func (s *Space) Store(kind Kind) []byte {
	switch kind {
	case KindROM:
		return s.rom
	case KindDisk:
		return s.disk
	case KindRAM:
		return s.ram
	case KindVRAM:
		return s.vram
	default:
		return nil
	}
}

// Banks returns the number of 32 KiB banks in a backing store.
func (s *Space) Banks(kind Kind) int {
	return len(s.Store(kind)) / BankSize
}

// Resolve translates a logical address through the current MMU mapping.
func (s *Space) Resolve(addr uint16) (kind Kind, bank int, offset uint16) {
	reg := byte(MMULow)
	if addr&0x8000 != 0 {
		reg = MMUHigh
	}
	m := s.ports.In(PortMMU, reg)
	return Kind(m >> 8), int(m & 0xff), addr & 0x7fff
}

// Locate the byte behind a store coordinate; returns -1 when the bank lies
// outside the store.
func (s *Space) index(kind Kind, bank int, offset uint16) ([]byte, int) {
	st := s.Store(kind)
	i := bank*BankSize + int(offset&0x7fff)
	if st == nil || bank < 0 || i >= len(st) {
		return nil, -1
	}
	return st, i
}

// Peek reads a byte by store coordinates, bypassing the MMU.
func (s *Space) Peek(kind Kind, bank int, offset uint16) byte {
	st, i := s.index(kind, bank, offset)
	if i < 0 {
		return 0
	}
	return st[i]
}

// Poke writes a byte by store coordinates, bypassing the MMU. Unlike CPU
// stores, Poke may write ROM.
func (s *Space) Poke(kind Kind, bank int, offset uint16, v byte) {
	st, i := s.index(kind, bank, offset)
	if i >= 0 {
		st[i] = v
	}
}

// LoadByte reads a byte through the MMU. Unmapped banks read as zero.
func (s *Space) LoadByte(addr uint16) byte {
	return s.Peek(s.Resolve(addr))
}

// LoadBytes reads len(b) consecutive bytes, wrapping at the top of the
// address space.
func (s *Space) LoadBytes(addr uint16, b []byte) {
	for i := range b {
		b[i] = s.LoadByte(addr + uint16(i))
	}
}

// LoadWord reads a little-endian word as two byte accesses.
func (s *Space) LoadWord(addr uint16) uint16 {
	return uint16(s.LoadByte(addr)) | uint16(s.LoadByte(addr+1))<<8
}

// StoreByte writes a byte through the MMU. Writes to ROM and to unmapped
// banks are dropped.
func (s *Space) StoreByte(addr uint16, v byte) {
	kind, bank, offset := s.Resolve(addr)
	if kind == KindROM {
		return
	}
	s.Poke(kind, bank, offset, v)
}

// StoreBytes writes consecutive bytes, wrapping at the top of the address
// space.
func (s *Space) StoreBytes(addr uint16, b []byte) {
	for i, v := range b {
		s.StoreByte(addr+uint16(i), v)
	}
}

// StoreWord writes a little-endian word as two byte accesses.
func (s *Space) StoreWord(addr uint16, v uint16) {
	s.StoreByte(addr, byte(v))
	s.StoreByte(addr+1, byte(v>>8))
}

// VideoBank returns the index of the active video bank.
func (s *Space) VideoBank() int {
	return int(s.ports.In(PortMMU, MMUVideo)) & videoBankMask
}

// Video returns the active 64 KiB video bank. The slice aliases video
// memory.
func (s *Space) Video() []byte {
	b := s.VideoBank() * VRAMBankSize
	return s.vram[b : b+VRAMBankSize]
}

// LoadVideo reads a byte of the active video bank.
func (s *Space) LoadVideo(offset uint16) byte {
	return s.Video()[offset]
}

// StoreVideo writes a byte of the active video bank.
func (s *Space) StoreVideo(offset uint16, v byte) {
	s.Video()[offset] = v
}
