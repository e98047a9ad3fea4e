// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// Special-purpose register indices within the register file.
const (
	PC  = 12 // program counter
	SP  = 13 // stack pointer (full descending)
	IDX = 14 // index register
	ACC = 15 // accumulator
)

// NumRegisters is the size of the register file.
const NumRegisters = 16

// Flags holds the processor status bits.
type Flags byte

// Bits assigned to the processor status byte
const (
	FlagV Flags = 1 << 0 // signed overflow
	FlagC Flags = 1 << 1 // carry (set when no borrow on subtract)
	FlagZ Flags = 1 << 2 // zero
	FlagN Flags = 1 << 3 // negative

	flagsNZ   = FlagN | FlagZ
	flagsNZC  = FlagN | FlagZ | FlagC
	flagsNZCV = FlagN | FlagZ | FlagC | FlagV
)

// IsSet reports whether all bits in f are set.
func (p Flags) IsSet(f Flags) bool {
	return p&f == f
}

// String returns the flags as a fixed-width "NZCV" string, with a dash for
// each clear bit.
func (p Flags) String() string {
	var b strings.Builder
	for i, c := range "NZCV" {
		if p&(FlagN>>uint(i)) != 0 {
			b.WriteRune(c)
		} else {
			b.WriteByte('-')
		}
	}
	return b.String()
}

// Registers contains the state of the LLMP16 register file.
type Registers struct {
	R          [NumRegisters]uint16 // R0-R11, PC, SP, IDX, ACC
	Flags      Flags                // processor status
	IntEnable  bool                 // interrupts are accepted
	IntPending bool                 // an interrupt vector is waiting
	IntVector  uint16               // address of the pending interrupt handler
	Halted     bool                 // a HALT instruction was executed
}

// Init initializes all registers. SP = $FFFF, everything else zero.
// Interrupts are enabled.
func (r *Registers) Init() {
	*r = Registers{}
	r.R[SP] = 0xffff
	r.IntEnable = true
}

// set assigns a register through an operand selector. Writes to the program
// counter are discarded; it only moves by control flow.
func (r *Registers) set(i byte, v uint16) {
	if i == PC {
		return
	}
	r.R[i&0x0f] = v
}

// update replaces the flag bits selected by mask with those in f.
func (r *Registers) update(mask, f Flags) {
	r.Flags = (r.Flags &^ mask) | (f & mask)
}

var registerNames = [NumRegisters]string{
	"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7",
	"R8", "R9", "R10", "R11", "PC", "SP", "IDX", "ACC",
}

// RegisterName returns the assembly name of register i.
func RegisterName(i byte) string {
	return registerNames[i&0x0f]
}

// RegisterIndex looks up a register by name (case insensitive). R12-R15
// are accepted as aliases for the special registers.
func RegisterIndex(name string) (byte, bool) {
	name = strings.ToUpper(name)
	for i, n := range registerNames {
		if n == name {
			return byte(i), true
		}
	}
	switch name {
	case "R12":
		return PC, true
	case "R13":
		return SP, true
	case "R14":
		return IDX, true
	case "R15", "A":
		return ACC, true
	}
	return 0, false
}
