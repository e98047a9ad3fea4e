// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package memory

import "testing"

func newTestSpace() (*Space, *Ports) {
	ports := NewPorts()
	return NewSpace(ports, 2*BankSize), ports
}

func expectByte(t *testing.T, s *Space, addr uint16, want byte) {
	t.Helper()
	if got := s.LoadByte(addr); got != want {
		t.Errorf("byte at $%04X = $%02X, expected $%02X", addr, got, want)
	}
}

func TestResetMapping(t *testing.T) {
	s, ports := newTestSpace()
	if v := ports.In(PortMMU, MMULow); v != Mapping(KindROM, 0) {
		t.Errorf("low mapping = $%04X", v)
	}
	if v := ports.In(PortMMU, MMUHigh); v != Mapping(KindRAM, 0) {
		t.Errorf("high mapping = $%04X", v)
	}

	kind, bank, off := s.Resolve(0x8123)
	if kind != KindRAM || bank != 0 || off != 0x0123 {
		t.Errorf("Resolve($8123) = %v %d $%04X", kind, bank, off)
	}
}

func TestROMIsReadOnly(t *testing.T) {
	s, _ := newTestSpace()
	s.Poke(KindROM, 0, 0x0010, 0xAB)
	s.StoreByte(0x0010, 0x55)
	expectByte(t, s, 0x0010, 0xAB)
}

func TestBankSwitch(t *testing.T) {
	s, ports := newTestSpace()
	s.Poke(KindROM, 3, 0x0010, 0x42)
	expectByte(t, s, 0x0010, 0x00)

	ports.Out(PortMMU, MMULow, Mapping(KindROM, 3))
	expectByte(t, s, 0x0010, 0x42)

	// Remapping the high half to a different RAM bank hides earlier writes.
	s.StoreByte(0x8000, 0x11)
	ports.Out(PortMMU, MMUHigh, Mapping(KindRAM, 1))
	expectByte(t, s, 0x8000, 0x00)
	s.StoreByte(0x8000, 0x22)
	ports.Out(PortMMU, MMUHigh, Mapping(KindRAM, 0))
	expectByte(t, s, 0x8000, 0x11)
	if v := s.Peek(KindRAM, 1, 0); v != 0x22 {
		t.Errorf("RAM bank 1 offset 0 = $%02X, expected $22", v)
	}
}

func TestOutOfRangeBank(t *testing.T) {
	s, ports := newTestSpace()
	ports.Out(PortMMU, MMUHigh, Mapping(KindRAM, RAMBanks))
	s.StoreByte(0x9000, 0x77)
	expectByte(t, s, 0x9000, 0x00)

	ports.Out(PortMMU, MMUHigh, Mapping(Kind(9), 0))
	s.StoreByte(0x9000, 0x77)
	expectByte(t, s, 0x9000, 0x00)
}

func TestWords(t *testing.T) {
	s, _ := newTestSpace()
	s.StoreWord(0x8000, 0xBEEF)
	expectByte(t, s, 0x8000, 0xEF)
	expectByte(t, s, 0x8001, 0xBE)
	if v := s.LoadWord(0x8000); v != 0xBEEF {
		t.Errorf("LoadWord = $%04X", v)
	}
}

func TestDiskAndVideoMapping(t *testing.T) {
	s, ports := newTestSpace()
	if n := s.Banks(KindDisk); n != 2 {
		t.Errorf("disk banks = %d, expected 2", n)
	}

	ports.Out(PortMMU, MMUHigh, Mapping(KindDisk, 1))
	s.StoreByte(0x8004, 0x99)
	if v := s.Store(KindDisk)[BankSize+4]; v != 0x99 {
		t.Errorf("disk store byte = $%02X", v)
	}

	// MMU bank 2 of VRAM is the first half of video bank 1.
	ports.Out(PortMMU, MMUHigh, Mapping(KindVRAM, 2))
	s.StoreByte(0x8010, 0x5A)
	ports.Out(PortMMU, MMUVideo, 1)
	if v := s.LoadVideo(0x0010); v != 0x5A {
		t.Errorf("video bank 1 byte = $%02X, expected $5A", v)
	}
	ports.Out(PortMMU, MMUVideo, 0)
	if v := s.LoadVideo(0x0010); v != 0 {
		t.Errorf("video bank 0 byte = $%02X, expected 0", v)
	}
}

func TestResetKeepsROM(t *testing.T) {
	s, ports := newTestSpace()
	s.Poke(KindROM, 0, 0, 0x12)
	s.StoreByte(0x8000, 0x34)
	ports.Out(PortMMU, MMULow, Mapping(KindRAM, 2))

	s.Reset()
	expectByte(t, s, 0x0000, 0x12)
	expectByte(t, s, 0x8000, 0x00)
}

func TestPorts(t *testing.T) {
	p := NewPorts()
	p.Out(0x13, 0x24, 0xCAFE)
	if v := p.In(3, 4); v != 0xCAFE {
		t.Errorf("port wrap: got $%04X", v)
	}
	if PortName(PortPIC) != "PIC" || PortName(0xF) != "" {
		t.Error("unexpected port names")
	}
	p.Reset()
	if v := p.In(3, 4); v != 0 {
		t.Errorf("after reset: got $%04X", v)
	}
}
