// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/llmp16/llmp16/asm"
	"github.com/llmp16/llmp16/cpu"
)

const origin = 0x0200

var listing = []string{
	"NOP",
	"HALT",
	"RET",
	"INC R3",
	"ADD R0, R1",
	"LSL ACC, R11",
	"LD R2, [R5]",
	"STR [SP], R0",
	"LDX R4, [IDX+R6]",
	"STX [IDX+R7], R8",
	"MOVI R9, #$BEEF",
	"CMPI R0, #$0000",
	"LDI R1, $8000",
	"STRI R2, $12345",
	"JMP $0200",
	"JLE $F0010",
	"CALL R10",
	"IN R1, 3, 2",
	"OUT ACC, 15, 0",
}

func load(t *testing.T, lines []string) *cpu.FlatMemory {
	t.Helper()
	src := "\t" + strings.Join(lines, "\n\t")
	a, _, err := asm.Assemble(strings.NewReader(src), "test", origin, io.Discard, 0)
	if err != nil {
		t.Fatal(err, a.Errors)
	}
	mem := cpu.NewFlatMemory()
	mem.StoreBytes(origin, a.Code)
	return mem
}

func TestDisassemble(t *testing.T) {
	mem := load(t, listing)

	addr := uint16(origin)
	for _, want := range listing {
		line, next := Disassemble(mem, addr)
		if line != want {
			t.Errorf("$%04X: got %q, expected %q", addr, line, want)
		}
		if next <= addr {
			t.Fatalf("$%04X: next address %04X does not advance", addr, next)
		}
		addr = next
	}
}

// Disassembly output must assemble back to the same machine code.
func TestRoundTrip(t *testing.T) {
	mem := load(t, listing)
	orig, _, _ := asm.Assemble(strings.NewReader("\t"+strings.Join(listing, "\n\t")), "a", origin, io.Discard, 0)

	var lines []string
	for addr := uint16(origin); int(addr) < origin+len(orig.Code); {
		var line string
		line, addr = Disassemble(mem, addr)
		lines = append(lines, line)
	}

	again := load(t, lines)
	b1 := make([]byte, len(orig.Code))
	b2 := make([]byte, len(orig.Code))
	mem.LoadBytes(origin, b1)
	again.LoadBytes(origin, b2)
	if !bytes.Equal(b1, b2) {
		t.Errorf("round trip mismatch:\n%x\n%x", b1, b2)
	}
}

func TestInvalidWord(t *testing.T) {
	mem := cpu.NewFlatMemory()
	mem.StoreBytes(0, []byte{0x0b, 0x1f, 0x00, 0xb0})

	line, next := Disassemble(mem, 0)
	if line != ".dw $1F0B" || next != 2 {
		t.Errorf("got %q, %04X", line, next)
	}
	line, next = Disassemble(mem, next)
	if line != ".dw $B000" || next != 4 {
		t.Errorf("got %q, %04X", line, next)
	}
}

func TestRegisterStrings(t *testing.T) {
	var r cpu.Registers
	r.Init()
	r.R[cpu.ACC] = 0x0012
	r.Flags = cpu.FlagZ | cpu.FlagC

	if s := GetRegisterString(&r); s != "ACC=0012 IDX=0000 SP=FFFF -ZC- IE" {
		t.Errorf("got %q", s)
	}

	dump := GetRegisterDump(&r)
	if len(dump) != 5 {
		t.Fatalf("got %d lines", len(dump))
	}
	if dump[3] != "PC =0000 SP =FFFF IDX=0000 ACC=0012" {
		t.Errorf("got %q", dump[3])
	}
}
