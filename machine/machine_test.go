// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package machine

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/llmp16/llmp16/asm"
	"github.com/llmp16/llmp16/cpu"
	"github.com/llmp16/llmp16/device"
	"github.com/llmp16/llmp16/memory"
)

// Assemble code at address 0, flash it into ROM and reset the machine.
func loadMachine(t *testing.T, code string) *Machine {
	t.Helper()
	a, _, err := asm.Assemble(strings.NewReader(code), "test", 0, io.Discard, 0)
	if err != nil {
		t.Fatal(err, a.Errors)
	}
	img, err := a.Image()
	if err != nil {
		t.Fatal(err)
	}

	m := New(Options{})
	if err := m.LoadROM(img); err != nil {
		t.Fatal(err)
	}
	m.Reset()
	return m
}

func runMachine(t *testing.T, m *Machine, limit int) int {
	t.Helper()
	n, err := m.Run(limit)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	return n
}

func expectReg(t *testing.T, m *Machine, r byte, v uint16) {
	t.Helper()
	if got := m.CPU.Reg.R[r]; got != v {
		t.Errorf("%s = $%04X, expected $%04X", cpu.RegisterName(r), got, v)
	}
}

func TestRunToHalt(t *testing.T) {
	m := loadMachine(t, `
	MOVI R0, #5
	ADDI R0, #3
	HALT`)

	n := runMachine(t, m, 100)
	if n != 3 {
		t.Errorf("ran %d steps, expected 3", n)
	}
	expectReg(t, m, cpu.ACC, 8)
	if m.CPU.Reg.Flags.IsSet(cpu.FlagZ) {
		t.Error("zero flag set")
	}
	if !m.Idle() {
		t.Error("machine not idle after HALT")
	}
	if m.Ticks != 3 {
		t.Errorf("ticks = %d, expected 3", m.Ticks)
	}
}

func TestRunLimit(t *testing.T) {
	m := loadMachine(t, `
loop:
	INC R0
	JMP loop`)

	if n := runMachine(t, m, 50); n != 50 {
		t.Errorf("ran %d steps, expected 50", n)
	}
	expectReg(t, m, 0, 25)
}

func TestResetKeepsROM(t *testing.T) {
	m := loadMachine(t, `
	MOVI R0, #$1234
	STRI R0, $8000
	HALT`)

	runMachine(t, m, 10)
	if v := m.Space.LoadWord(0x8000); v != 0x1234 {
		t.Fatalf("RAM = $%04X", v)
	}

	m.Reset()
	if v := m.Space.LoadWord(0x8000); v != 0 {
		t.Errorf("RAM survived reset: $%04X", v)
	}
	if m.CPU.Reg.R[cpu.PC] != 0 || m.CPU.Reg.R[cpu.SP] != 0xffff {
		t.Error("registers not reset")
	}
	runMachine(t, m, 10)
	expectReg(t, m, 0, 0x1234)
}

func TestROMBankSwitch(t *testing.T) {
	m := loadMachine(t, `
	MOVI R1, #$0001
	OUT R1, 0, 1
	LDI R2, $8010
	HALT`)

	m.Space.Poke(memory.KindROM, 1, 0x0010, 0xcd)
	m.Space.Poke(memory.KindROM, 1, 0x0011, 0xab)

	runMachine(t, m, 10)
	expectReg(t, m, 2, 0xabcd)
}

func TestKeyboardInterrupt(t *testing.T) {
	m := loadMachine(t, `
	MOVI R0, #$01FD
	OUT R0, 8, 4
	MOVI R0, #$FFF7
	OUT R0, 8, 0
	EI
	HALT

	.org $0200
	IN R1, 2, 0
	INC R3
	MOVI R2, #0
	OUT R2, 2, 1
	MOVI R2, #8
	OUT R2, 8, 3
	RETI`)

	runMachine(t, m, 100)
	if !m.CPU.Reg.Halted {
		t.Fatal("CPU not halted")
	}

	if !m.InjectScanCode(0x1c) {
		t.Fatal("scan code dropped")
	}
	if m.Idle() {
		t.Fatal("machine idle with a key pending")
	}
	runMachine(t, m, 100)

	expectReg(t, m, 1, 0x1c)
	expectReg(t, m, 3, 1)
	if v := m.Ports.In(memory.PortKeyboard, device.KbdReady); v != 0 {
		t.Errorf("keyboard ready = %d", v)
	}
	if v := m.Ports.In(memory.PortPIC, device.PICISR); v != 0 {
		t.Errorf("ISR = $%04X", v)
	}
	if m.CPU.Reg.R[cpu.PC] != 0x000e || !m.CPU.Reg.Halted {
		t.Errorf("PC = $%04X, expected halt at $000E", m.CPU.Reg.R[cpu.PC])
	}
	if m.CPU.Reg.R[cpu.SP] != 0xffff {
		t.Errorf("SP = $%04X", m.CPU.Reg.R[cpu.SP])
	}
}

func TestMaskedKeyboardIdle(t *testing.T) {
	m := loadMachine(t, "\tHALT")
	runMachine(t, m, 10)

	m.InjectScanCode(0x20)
	if !m.Idle() {
		t.Error("masked keyboard line kept the machine awake")
	}
}

func TestDisabledInterruptsIdle(t *testing.T) {
	m := loadMachine(t, `
	DI
	HALT`)
	runMachine(t, m, 10)

	m.Interrupt(device.IRQDisk)
	if !m.Idle() {
		t.Error("machine not idle with interrupts disabled")
	}
}

func TestInServiceHaltIdle(t *testing.T) {
	m := loadMachine(t, `
	MOVI R0, #0
	OUT R0, 8, 0
	MOVI R0, #$0200
	OUT R0, 8, 4
	EI
	HALT

	.org $0200
	EI
	HALT`)
	runMachine(t, m, 100)

	m.Interrupt(device.IRQTimer0)
	runMachine(t, m, 100)
	if m.CPU.Reg.R[cpu.PC] != 0x0204 || !m.CPU.Reg.Halted {
		t.Fatalf("PC = $%04X, expected halt at $0204", m.CPU.Reg.R[cpu.PC])
	}
	if v := m.Ports.In(memory.PortPIC, device.PICISR); v != 0x0001 {
		t.Fatalf("ISR = $%04X, expected $0001", v)
	}

	// The handler never writes EOI, so the second request stays queued.
	m.Interrupt(device.IRQTimer1)
	if !m.Idle() {
		t.Error("machine not idle with a line in service")
	}
	if n := runMachine(t, m, 1000); n != 0 {
		t.Errorf("ran %d steps, expected 0", n)
	}
	if v := m.Ports.In(memory.PortPIC, device.PICIRR); v != 0x0002 {
		t.Errorf("IRR = $%04X, expected $0002", v)
	}
}

func TestMaskedTimerIdle(t *testing.T) {
	m := loadMachine(t, `
	MOVI R0, #6
	OUT R0, 4, 0
	EI
	HALT`)

	if n := runMachine(t, m, 1000); n != 4 {
		t.Errorf("ran %d steps, expected 4", n)
	}
	if !m.Idle() {
		t.Error("masked timer kept the machine awake")
	}

	m.Ports.Out(memory.PortPIC, device.PICIMR, 0xfffe)
	if m.Idle() {
		t.Error("machine idle with an unmasked timer armed")
	}
}

type stopHandler struct {
	hits int
}

func (h *stopHandler) OnBreakpoint(c *cpu.CPU, b *cpu.Breakpoint)         { h.hits++ }
func (h *stopHandler) OnDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) { h.hits++ }

func TestBreakpoint(t *testing.T) {
	m := loadMachine(t, `
	NOP
	NOP
stop:
	NOP
	HALT`)

	h := &stopHandler{}
	d := m.AttachDebugger(h)
	d.AddBreakpoint(4)

	n, err := m.Run(100)
	if !errors.Is(err, ErrBreak) {
		t.Fatalf("run returned %v, expected ErrBreak", err)
	}
	if n != 2 || h.hits != 1 {
		t.Errorf("steps=%d hits=%d", n, h.hits)
	}
	if m.CPU.Reg.R[cpu.PC] != 4 {
		t.Errorf("PC = $%04X", m.CPU.Reg.R[cpu.PC])
	}

	if _, err := m.Run(100); err != nil {
		t.Errorf("resumed run: %v", err)
	}
	if !m.CPU.Reg.Halted {
		t.Error("not halted after resume")
	}
}

func TestStaleBreakDiscarded(t *testing.T) {
	m := loadMachine(t, `
loop:
	INC R0
	JMP loop`)

	h := &stopHandler{}
	d := m.AttachDebugger(h)
	d.AddBreakpoint(2)
	m.Step()
	if h.hits != 1 {
		t.Fatalf("hits = %d", h.hits)
	}

	d.RemoveBreakpoint(2)
	n, err := m.Run(10)
	if err != nil || n != 10 {
		t.Errorf("n=%d err=%v", n, err)
	}
}

func TestDiskImage(t *testing.T) {
	m := New(Options{Geometry: device.Geometry{Cylinders: 2, Heads: 2, Sectors: 4}})
	if len(m.Disk()) != 2*2*4*device.SectorSize {
		t.Fatalf("disk size = %d", len(m.Disk()))
	}

	img := bytes.Repeat([]byte{0x5a}, 600)
	if err := m.LoadDisk(bytes.NewReader(img)); err != nil {
		t.Fatal(err)
	}
	if m.Disk()[599] != 0x5a || m.Disk()[600] != 0 {
		t.Error("disk contents wrong")
	}

	big := make([]byte, len(m.Space.Store(memory.KindDisk))+1)
	big[0] = 0xff
	if err := m.LoadDisk(bytes.NewReader(big)); !errors.Is(err, ErrDiskTooLarge) {
		t.Errorf("got %v, expected ErrDiskTooLarge", err)
	}
	if m.Disk()[0] != 0x5a {
		t.Error("failed load modified the disk")
	}

	var buf bytes.Buffer
	if err := m.SaveDisk(&buf); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != len(m.Disk()) {
		t.Errorf("saved %d bytes", buf.Len())
	}
}

func TestDiskRead(t *testing.T) {
	m := loadMachine(t, `
	MOVI R0, #$0102
	OUT R0, 3, 0
	MOVI R0, #$9000
	OUT R0, 3, 1
	MOVI R0, #1
	OUT R0, 3, 2
	NOP
	IN R1, 3, 3
	HALT`)

	geom := m.DiskCtl.Geometry()
	off, err := geom.Offset(device.CHS(1, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	copy(m.Disk()[off:], []byte("LLMP16"))

	runMachine(t, m, 100)
	expectReg(t, m, 1, device.DiskDone)

	b := make([]byte, 6)
	m.Space.LoadBytes(0x9000, b)
	if string(b) != "LLMP16" {
		t.Errorf("read %q", b)
	}
}

func TestLoadCode(t *testing.T) {
	m := New(Options{})
	m.LoadCode(0x7ffe, []byte{1, 2, 3, 4})

	if v := m.Space.Peek(memory.KindROM, 0, 0x7ffe); v != 1 {
		t.Errorf("ROM byte = %d", v)
	}
	if v := m.Space.LoadByte(0x8001); v != 4 {
		t.Errorf("RAM byte = %d", v)
	}
}
