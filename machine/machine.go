// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package machine assembles the LLMP16 CPU, the banked address space and
// the peripherals into one computer and drives it one instruction at a
// time.
//
// A machine step executes one CPU instruction and then steps the keyboard,
// the timers, the disk controller, the DMA engine and the blitter, in that
// order, before letting the PIC dispatch any interrupt they raised. The
// dispatched interrupt is entered at the start of the next step.
package machine

import (
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/llmp16/llmp16/cpu"
	"github.com/llmp16/llmp16/device"
	"github.com/llmp16/llmp16/memory"
	"github.com/llmp16/llmp16/rom"
	log "github.com/sirupsen/logrus"
)

// Errors returned by the machine.
var (
	ErrBreak         = errors.New("execution interrupted")
	ErrDiskTooLarge  = errors.New("disk image larger than disk store")
	ErrImageTooLarge = errors.New("ROM image larger than ROM store")
)

// Options configure a new machine.
type Options struct {
	// Geometry of the attached disk. The zero value selects
	// device.DefaultGeometry.
	Geometry device.Geometry
}

// A Machine is a complete LLMP16 computer.
type Machine struct {
	Ports    *memory.Ports
	Space    *memory.Space
	CPU      *cpu.CPU
	PIC      *device.PIC
	Timers   *device.Timers
	DMA      *device.DMA
	Blitter  *device.Blitter
	Keyboard *device.Keyboard
	DiskCtl  *device.DiskController
	Ticks    uint64 // machine steps since reset

	debugger *cpu.Debugger
	brk      atomic.Bool
	log      *log.Entry
}

// New creates a machine in its power-on state.
func New(opts Options) *Machine {
	geom := opts.Geometry
	if geom == (device.Geometry{}) {
		geom = device.DefaultGeometry
	}

	m := &Machine{log: log.WithField("component", "machine")}
	m.Ports = memory.NewPorts()
	m.Space = memory.NewSpace(m.Ports, geom.Size())
	m.CPU = cpu.NewCPU(m.Space, m.Space, m.Ports)
	m.PIC = device.NewPIC(m.Ports, m.CPU)
	m.Timers = device.NewTimers(m.Ports, m.PIC)
	m.DMA = device.NewDMA(m.Ports, m.Space, m.Space, m.PIC)
	m.Blitter = device.NewBlitter(m.Ports, m.Space, m.Space)
	m.Keyboard = device.NewKeyboard(m.Ports, m.PIC)
	m.DiskCtl = device.NewDiskController(m.Ports, m.Space, m.Space.Store(memory.KindDisk), geom, m.PIC)

	m.Reset()
	return m
}

// Reset returns the machine to its power-on state. ROM and disk contents
// are preserved.
func (m *Machine) Reset() {
	m.Ports.Reset()
	m.Space.Reset()
	m.PIC.Reset()
	m.Timers.Reset()
	m.Keyboard.Reset()
	m.CPU.Reset()
	m.Ticks = 0
	m.brk.Store(false)
	m.log.Debug("reset")
}

// Step executes one instruction and steps every peripheral once.
func (m *Machine) Step() {
	if m.log.Logger.IsLevelEnabled(log.TraceLevel) {
		pc := m.CPU.Reg.R[cpu.PC]
		m.log.WithFields(log.Fields{
			"tick": m.Ticks,
			"pc":   fmt.Sprintf("%04X", pc),
			"word": fmt.Sprintf("%04X", m.Space.LoadWord(pc)),
		}).Trace("step")
	}

	m.CPU.Step()
	m.Keyboard.Step()
	m.Timers.Step(m.Ticks)
	m.DiskCtl.Step()
	m.DMA.Step()
	m.Blitter.Step()
	m.PIC.Update()
	m.Ticks++
}

// Idle reports whether the CPU is halted with nothing left that could wake
// it.
func (m *Machine) Idle() bool {
	r := &m.CPU.Reg
	switch {
	case !r.Halted:
		return false
	case !r.IntEnable:
		return true
	case r.IntPending:
		return false
	case m.PIC.InService():
		// Only the halted CPU could write EOI.
		return true
	case m.PIC.Pending(), m.Timers.Armed(m.PIC.Masked):
		return false
	case m.Keyboard.Pending() > 0 && !m.PIC.Masked(device.IRQKeyboard):
		return false
	}
	return true
}

// Run steps the machine until it goes idle, a breakpoint or Break stops
// it, or limit steps have run. A limit of zero or less means none. Run
// returns the number of steps taken, and ErrBreak if it was stopped. Break
// requests made before Run starts are discarded.
func (m *Machine) Run(limit int) (int, error) {
	m.brk.Store(false)
	steps := 0
	for limit <= 0 || steps < limit {
		if m.Idle() {
			break
		}
		m.Step()
		steps++
		if m.brk.Swap(false) {
			return steps, ErrBreak
		}
	}
	return steps, nil
}

// Break asks a running machine to stop after the current step. It is safe
// to call from any goroutine.
func (m *Machine) Break() {
	m.brk.Store(true)
}

// AttachDebugger attaches a CPU debugger that reports to h. Any breakpoint
// hit also stops Run.
func (m *Machine) AttachDebugger(h cpu.BreakpointHandler) *cpu.Debugger {
	m.debugger = cpu.NewDebugger(&breakHandler{m: m, next: h})
	m.CPU.AttachDebugger(m.debugger)
	return m.debugger
}

// Debugger returns the attached debugger, or nil.
func (m *Machine) Debugger() *cpu.Debugger {
	return m.debugger
}

type breakHandler struct {
	m    *Machine
	next cpu.BreakpointHandler
}

func (b *breakHandler) OnBreakpoint(c *cpu.CPU, bp *cpu.Breakpoint) {
	b.m.Break()
	if b.next != nil {
		b.next.OnBreakpoint(c, bp)
	}
}

func (b *breakHandler) OnDataBreakpoint(c *cpu.CPU, bp *cpu.DataBreakpoint) {
	b.m.Break()
	if b.next != nil {
		b.next.OnDataBreakpoint(c, bp)
	}
}

// InjectScanCode queues a key press for the keyboard. It is the only entry
// point safe to call while another goroutine is running the machine.
func (m *Machine) InjectScanCode(code uint16) bool {
	return m.Keyboard.Inject(code)
}

// Interrupt raises an interrupt request line on the PIC.
func (m *Machine) Interrupt(line int) {
	m.PIC.Raise(line)
}

// LoadROM flashes an image into the ROM store, page i into bank i.
func (m *Machine) LoadROM(img *rom.Image) error {
	if len(img.Pages) > m.Space.Banks(memory.KindROM) {
		return fmt.Errorf("%w: %d pages", ErrImageTooLarge, len(img.Pages))
	}
	img.LoadInto(m.Space)
	m.log.WithFields(log.Fields{
		"pages": len(img.Pages),
		"bytes": img.Size(),
	}).Debug("rom loaded")
	return nil
}

// LoadCode copies code into the address space at addr through the current
// mapping. Bytes landing in ROM are flashed rather than dropped.
func (m *Machine) LoadCode(addr uint16, code []byte) {
	for i, v := range code {
		a := addr + uint16(i)
		kind, bank, off := m.Space.Resolve(a)
		if kind == memory.KindROM {
			m.Space.Poke(kind, bank, off, v)
		} else {
			m.Space.StoreByte(a, v)
		}
	}
	m.log.WithFields(log.Fields{
		"addr":  fmt.Sprintf("%04X", addr),
		"bytes": len(code),
	}).Debug("code loaded")
}

// LoadDisk reads a disk image into the disk store. The image is read
// completely before the store is touched; the rest of the store is zeroed.
func (m *Machine) LoadDisk(r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	disk := m.Space.Store(memory.KindDisk)
	if len(b) > len(disk) {
		return fmt.Errorf("%w: %d bytes", ErrDiskTooLarge, len(b))
	}
	clear(disk)
	copy(disk, b)
	m.log.WithField("bytes", len(b)).Debug("disk loaded")
	return nil
}

// Disk returns the contents of the disk store, sized to the disk geometry.
// The slice aliases the store.
func (m *Machine) Disk() []byte {
	return m.Space.Store(memory.KindDisk)[:m.DiskCtl.Geometry().Size()]
}

// SaveDisk writes the disk image to w.
func (m *Machine) SaveDisk(w io.Writer) error {
	_, err := w.Write(m.Disk())
	return err
}
