// Copyright 2014 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements an LLMP16 instruction set disassembler.
package disasm

import (
	"fmt"
	"strings"

	"github.com/llmp16/llmp16/cpu"
)

// Disassembler formatting for operand forms. Register fields are
// substituted as names, the extension word as hex.
var formFormat = []string{
	cpu.FormNone:  "%s",
	cpu.FormX:     "%s %s",
	cpu.FormXY:    "%s %s, %s",
	cpu.FormXMem:  "%s %s, [%s]",
	cpu.FormMemX:  "%s [%s], %s",
	cpu.FormXIdx:  "%s %s, [IDX+%s]",
	cpu.FormIdxX:  "%s [IDX+%s], %s",
	cpu.FormXImm:  "%s %s, #$%04X",
	cpu.FormXAddr: "%s %s, $%s",
	cpu.FormAddr:  "%s $%s",
	cpu.FormIO:    "%s %s, %d, %d",
}

// Wide addresses print with five digits only when they need them.
func addrString(a uint32) string {
	if a > 0xffff {
		return fmt.Sprintf("%05X", a)
	}
	return fmt.Sprintf("%04X", a)
}

// Disassemble the machine code in memory 'm' at address 'addr'. Return a
// 'line' string representing the disassembled instruction and a 'next'
// address that starts the following line of machine code. Words that do
// not decode to an instruction are shown as data.
func Disassemble(m cpu.Memory, addr uint16) (line string, next uint16) {
	pc := addr
	fetch := func() uint16 {
		v := m.LoadWord(pc)
		pc += 2
		return v
	}

	d := cpu.GetInstructionSet().Decode(fetch(), fetch)
	inst := d.Inst
	if !inst.Valid {
		return fmt.Sprintf(".dw $%04X", d.Word), addr + 2
	}

	x, y := cpu.RegisterName(d.X), cpu.RegisterName(d.Y)
	format := formFormat[inst.Form]
	switch inst.Form {
	case cpu.FormNone:
		line = fmt.Sprintf(format, inst.Name)
	case cpu.FormX:
		line = fmt.Sprintf(format, inst.Name, x)
	case cpu.FormXImm:
		line = fmt.Sprintf(format, inst.Name, x, d.Imm)
	case cpu.FormXAddr:
		line = fmt.Sprintf(format, inst.Name, x, addrString(d.Addr))
	case cpu.FormAddr:
		line = fmt.Sprintf(format, inst.Name, addrString(d.Addr))
	case cpu.FormIO:
		line = fmt.Sprintf(format, inst.Name, x, d.Y, d.T)
	default:
		line = fmt.Sprintf(format, inst.Name, x, y)
	}
	return line, addr + d.Length()
}

// GetRegisterString returns a compact string describing the special
// registers and flags.
func GetRegisterString(r *cpu.Registers) string {
	ie := "--"
	if r.IntEnable {
		ie = "IE"
	}
	return fmt.Sprintf("ACC=%04X IDX=%04X SP=%04X %s %s",
		r.R[cpu.ACC], r.R[cpu.IDX], r.R[cpu.SP], r.Flags, ie)
}

// GetRegisterDump returns the whole register file as lines of four
// registers each, followed by a status line.
func GetRegisterDump(r *cpu.Registers) []string {
	var lines []string
	for i := 0; i < cpu.NumRegisters; i += 4 {
		var b strings.Builder
		for j := i; j < i+4; j++ {
			if j > i {
				b.WriteByte(' ')
			}
			fmt.Fprintf(&b, "%-3s=%04X", cpu.RegisterName(byte(j)), r.R[j])
		}
		lines = append(lines, b.String())
	}
	lines = append(lines, fmt.Sprintf("F=%s IE=%v PEND=%v VEC=%04X HALT=%v",
		r.Flags, r.IntEnable, r.IntPending, r.IntVector, r.Halted))
	return lines
}
