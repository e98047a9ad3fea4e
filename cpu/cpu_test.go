// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu_test

import (
	"io"
	"strings"
	"testing"

	"github.com/llmp16/llmp16/asm"
	"github.com/llmp16/llmp16/cpu"
)

const origin = 0x0100

func loadCPU(t *testing.T, asmString string) (*cpu.CPU, *cpu.FlatMemory) {
	t.Helper()
	b := strings.NewReader(asmString)
	r, sm, err := asm.Assemble(b, "test.asm", origin, io.Discard, 0)
	if err != nil {
		t.Fatal(err, r.Errors)
	}

	mem := cpu.NewFlatMemory()
	c := cpu.NewCPU(mem, mem, mem)
	mem.StoreBytes(uint16(sm.Origin), r.Code)
	c.SetPC(uint16(sm.Origin))
	return c, mem
}

func stepCPU(c *cpu.CPU, steps int) {
	for i := 0; i < steps; i++ {
		c.Step()
	}
}

func runCPU(t *testing.T, asmString string, steps int) *cpu.CPU {
	t.Helper()
	c, _ := loadCPU(t, asmString)
	stepCPU(c, steps)
	return c
}

func expectPC(t *testing.T, c *cpu.CPU, pc uint16) {
	t.Helper()
	if c.Reg.R[cpu.PC] != pc {
		t.Errorf("PC incorrect. exp: $%04X, got: $%04X", pc, c.Reg.R[cpu.PC])
	}
}

func expectReg(t *testing.T, c *cpu.CPU, r byte, v uint16) {
	t.Helper()
	if c.Reg.R[r] != v {
		t.Errorf("%s incorrect. exp: $%04X, got: $%04X", cpu.RegisterName(r), v, c.Reg.R[r])
	}
}

func expectACC(t *testing.T, c *cpu.CPU, acc uint16) {
	t.Helper()
	expectReg(t, c, cpu.ACC, acc)
}

func expectSP(t *testing.T, c *cpu.CPU, sp uint16) {
	t.Helper()
	expectReg(t, c, cpu.SP, sp)
}

func expectFlags(t *testing.T, c *cpu.CPU, flags string) {
	t.Helper()
	if got := c.Reg.Flags.String(); got != flags {
		t.Errorf("flags incorrect. exp: %s, got: %s", flags, got)
	}
}

func expectMem(t *testing.T, c *cpu.CPU, addr uint16, v byte) {
	t.Helper()
	got := c.Mem.LoadByte(addr)
	if got != v {
		t.Errorf("Memory at $%04X incorrect. exp: $%02X, got: $%02X", addr, v, got)
	}
}

func TestMoveAdd(t *testing.T) {
	asm := `
	MOVI R0, #5
	ADDI R0, #3
	HALT`

	c := runCPU(t, asm, 3)
	expectACC(t, c, 8)
	expectReg(t, c, 0, 5)
	expectFlags(t, c, "----")
	expectPC(t, c, origin+8)
	if !c.Reg.Halted {
		t.Error("CPU not halted")
	}

	// A halted CPU stays put.
	stepCPU(c, 5)
	expectPC(t, c, origin+8)
	if c.Cycles != 3 {
		t.Errorf("Cycles incorrect. exp: 3, got: %d", c.Cycles)
	}
}

func TestAddFlags(t *testing.T) {
	asm := `
	MOVI R0, #$FFFF
	ADDI R0, #1
	MOVI R1, #$7FFF
	ADDI R1, #1`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 2)
	expectACC(t, c, 0)
	expectFlags(t, c, "-ZC-")
	stepCPU(c, 2)
	expectACC(t, c, 0x8000)
	expectFlags(t, c, "N--V")
}

func TestSubFlags(t *testing.T) {
	asm := `
	MOVI R0, #3
	SUBI R0, #5
	MOVI R0, #5
	SUB R0, R0`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 2)
	expectACC(t, c, 0xfffe)
	expectFlags(t, c, "N---")
	stepCPU(c, 2)
	expectACC(t, c, 0)
	expectFlags(t, c, "-ZC-")
}

func TestAddSubInverse(t *testing.T) {
	values := []uint16{0, 1, 0x7fff, 0x8000, 0xffff, 0x1234}
	for _, a := range values {
		for _, b := range values {
			mem := cpu.NewFlatMemory()
			c := cpu.NewCPU(mem, mem, mem)
			c.Reg.R[0], c.Reg.R[1] = a, b

			// ADD R0, R1 then SUB ACC, R1
			mem.StoreBytes(0, []byte{0x10, 0x10, 0x11, 0x1f})
			stepCPU(c, 2)
			if c.Reg.R[cpu.ACC] != a {
				t.Errorf("(%04X + %04X) - %04X = %04X", a, b, b, c.Reg.R[cpu.ACC])
			}
		}
	}
}

func TestMultiply(t *testing.T) {
	asm := `
	CMPI R0, #1
	MOVI R0, #$0300
	MULI R0, #$0100`

	c := runCPU(t, asm, 3)
	expectACC(t, c, 0)
	expectFlags(t, c, "-Z--")
}

func TestDivide(t *testing.T) {
	asm := `
	MOVI R0, #7
	CMPI R0, #7
	MOVI ACC, #$1234
	DIVI R0, #0
	DIVI R0, #2`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 4)
	expectACC(t, c, 0x1234)
	expectFlags(t, c, "-ZC-")
	stepCPU(c, 1)
	expectACC(t, c, 3)
	expectFlags(t, c, "--C-")
}

func TestSignedDivide(t *testing.T) {
	asm := `
	MOVI R0, #-7
	SDIVI R0, #2
	MOVI R1, #$8000
	SDIVI R1, #-1`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 2)
	expectACC(t, c, 0xfffd)
	expectFlags(t, c, "N---")
	stepCPU(c, 2)
	expectACC(t, c, 0x8000)
	expectFlags(t, c, "N--V")
}

func TestShifts(t *testing.T) {
	asm := `
	MOVI R0, #$8001
	LSRI R0, #1
	LSRI R0, #16
	MOVI R1, #$C000
	LSLI R1, #1
	MOVI R2, #$8000
	ASRI R2, #3
	MOVI R3, #2
	LSR R2, R3`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 2)
	expectReg(t, c, 0, 0x4000)
	expectFlags(t, c, "--C-")
	stepCPU(c, 1)
	expectReg(t, c, 0, 0x4000)
	expectFlags(t, c, "--C-")
	stepCPU(c, 2)
	expectReg(t, c, 1, 0x8000)
	expectFlags(t, c, "N-C-")
	stepCPU(c, 2)
	expectReg(t, c, 2, 0xf000)
	expectFlags(t, c, "N---")
	stepCPU(c, 2)
	expectReg(t, c, 2, 0x3c00)
	expectFlags(t, c, "----")
}

func TestLogic(t *testing.T) {
	asm := `
	MOVI R0, #$0F0F
	ANDI R0, #$00FF
	ORI R0, #$F000
	XORI R0, #$0F0F
	NOT R0
	TSTI R0, #$0F0F`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 2)
	expectACC(t, c, 0x000f)
	stepCPU(c, 1)
	expectACC(t, c, 0xff0f)
	expectFlags(t, c, "N---")
	stepCPU(c, 1)
	expectACC(t, c, 0x0000)
	expectFlags(t, c, "-Z--")
	stepCPU(c, 1)
	expectReg(t, c, 0, 0xf0f0)
	expectFlags(t, c, "N---")
	stepCPU(c, 1)
	expectFlags(t, c, "-Z--")
	expectReg(t, c, 0, 0xf0f0)
}

func TestIncDec(t *testing.T) {
	asm := `
	MOVI R0, #$FFFF
	INC R0
	DEC R0`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 2)
	expectReg(t, c, 0, 0)
	expectFlags(t, c, "-Z--")
	stepCPU(c, 1)
	expectReg(t, c, 0, 0xffff)
	expectFlags(t, c, "N---")
}

func TestStack(t *testing.T) {
	asm := `
	MOVI R0, #$1234
	PUSH R0
	POP R1`

	c, _ := loadCPU(t, asm)
	expectSP(t, c, 0xffff)
	stepCPU(c, 2)
	expectSP(t, c, 0xfffd)
	expectMem(t, c, 0xfffd, 0x34)
	expectMem(t, c, 0xfffe, 0x12)
	stepCPU(c, 1)
	expectReg(t, c, 1, 0x1234)
	expectSP(t, c, 0xffff)
}

func TestLoadStore(t *testing.T) {
	asm := `
	MOVI R0, #$BEEF
	STRI R0, $2000
	LDI R1, $2000
	MOVI R2, #$2000
	LD R3, [R2]
	MOVI R4, #$AA
	STB [R2], R4
	LDB R5, [R2]
	MOVI IDX, #$2000
	MOVI R6, #2
	STX [IDX+R6], R0
	LDX R7, [IDX+R6]
	STR [R6], R0`

	c := runCPU(t, asm, 13)
	expectReg(t, c, 1, 0xbeef)
	expectReg(t, c, 3, 0xbeef)
	expectMem(t, c, 0x2000, 0xaa)
	expectMem(t, c, 0x2001, 0xbe)
	expectReg(t, c, 5, 0xaa)
	expectMem(t, c, 0x2002, 0xef)
	expectMem(t, c, 0x2003, 0xbe)
	expectReg(t, c, 7, 0xbeef)
	expectMem(t, c, 0x0002, 0xef)
}

func TestVideo(t *testing.T) {
	asm := `
	MOVI R0, #$10
	MOVI R1, #$1FF
	VST [R0], R1
	VLD R2, [R0]
	VSTI R1, #$20
	VLDI R3, #$20`

	c, mem := loadCPU(t, asm)
	stepCPU(c, 6)
	if v := mem.LoadVideo(0x10); v != 0xff {
		t.Errorf("video byte = $%02X", v)
	}
	expectReg(t, c, 2, 0xff)
	expectReg(t, c, 3, 0xff)
}

func TestIO(t *testing.T) {
	asm := `
	MOVI R0, #$ABCD
	OUT R0, 7, 3
	IN R1, 7, 3`

	c, mem := loadCPU(t, asm)
	stepCPU(c, 3)
	if v := mem.In(7, 3); v != 0xabcd {
		t.Errorf("port 7 reg 3 = $%04X", v)
	}
	expectReg(t, c, 1, 0xabcd)
}

func TestPCWriteDiscarded(t *testing.T) {
	asm := `
	MOVI PC, #$5000
	POP PC`

	c := runCPU(t, asm, 2)
	expectPC(t, c, origin+6)
	expectSP(t, c, 0x0001)
}

func TestJumpConditions(t *testing.T) {
	tests := []struct {
		op    string
		a, b  string
		taken bool
	}{
		{"JMP", "0", "1", true},
		{"JEQ", "5", "5", true},
		{"JEQ", "5", "3", false},
		{"JNE", "5", "5", false},
		{"JNE", "5", "3", true},
		{"JCS", "5", "3", true},
		{"JCS", "3", "5", false},
		{"JCC", "3", "5", true},
		{"JVS", "$8000", "1", true},
		{"JVS", "5", "3", false},
		{"JVC", "5", "3", true},
		{"JGT", "5", "3", true},
		{"JGT", "5", "5", false},
		{"JGT", "-1", "1", false},
		{"JLT", "-1", "1", true},
		{"JLT", "1", "-1", false},
		{"JGE", "5", "5", true},
		{"JGE", "-5", "5", false},
		{"JLE", "5", "5", true},
		{"JLE", "3", "5", true},
		{"JLE", "5", "3", false},
		{"JHI", "$FFFF", "1", true},
		{"JHI", "5", "5", false},
		{"JHI", "1", "$FFFF", false},
		{"JLS", "5", "5", true},
		{"JLS", "1", "$FFFF", true},
		{"JLS", "$FFFF", "1", false},
	}

	for _, tt := range tests {
		asm := `
	MOVI R0, #` + tt.a + `
	CMPI R0, #` + tt.b + `
	` + tt.op + ` taken
	HALT
taken:	HALT`

		c := runCPU(t, asm, 3)
		pc := uint16(origin + 12)
		if tt.taken {
			pc = origin + 14
		}
		if c.Reg.R[cpu.PC] != pc {
			t.Errorf("%s after CMP %s, %s: taken=%v expected", tt.op, tt.a, tt.b, tt.taken)
		}
	}
}

func TestJumpRegister(t *testing.T) {
	asm := `
	MOVI R5, #target
	JMP R5
	HALT
target:	MOVI R0, #1`

	c := runCPU(t, asm, 3)
	expectReg(t, c, 0, 1)
}

func TestCallReturn(t *testing.T) {
	asm := `
	MOVI R1, #sub
	CALL sub
	CALL R1
	HALT
sub:	INC R0
	RET`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 2)
	expectPC(t, c, origin+12)
	expectSP(t, c, 0xfffd)
	expectMem(t, c, 0xfffd, 0x08)
	expectMem(t, c, 0xfffe, 0x01)
	stepCPU(c, 6)
	expectReg(t, c, 0, 2)
	expectPC(t, c, origin+10)
	expectSP(t, c, 0xffff)
	if !c.Reg.Halted {
		t.Error("CPU not halted")
	}
}

func TestInterrupt(t *testing.T) {
	asm := `
	.org $0100
	MOVI R0, #1
	NOP
	HALT
	.org $0200
	MOVI R1, #7
	RETI`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 1)
	c.Reg.Flags = cpu.FlagN | cpu.FlagC

	c.Interrupt(0x0200)
	stepCPU(c, 1)
	expectReg(t, c, 1, 7)
	expectPC(t, c, 0x0204)
	expectSP(t, c, 0xfffb)
	expectMem(t, c, 0xfffd, 0x04)
	expectMem(t, c, 0xfffe, 0x01)
	expectMem(t, c, 0xfffb, byte(cpu.FlagN|cpu.FlagC))
	if c.Reg.IntEnable || c.Reg.IntPending {
		t.Error("interrupt state not cleared on entry")
	}

	c.Reg.Flags = 0
	stepCPU(c, 1)
	expectPC(t, c, 0x0104)
	expectSP(t, c, 0xffff)
	expectFlags(t, c, "N-C-")
	if !c.Reg.IntEnable {
		t.Error("RETI did not re-enable interrupts")
	}
}

func TestInterruptMasking(t *testing.T) {
	asm := `
	DI
	NOP
	EI
	NOP
	HALT`

	c, _ := loadCPU(t, asm)
	stepCPU(c, 1)
	c.Interrupt(0x4000)
	stepCPU(c, 2)
	expectPC(t, c, origin+6)
	if !c.Reg.IntPending {
		t.Error("pending interrupt lost while disabled")
	}
	stepCPU(c, 1)
	expectPC(t, c, 0x4002)
}

func TestInterruptWakesHalt(t *testing.T) {
	c := runCPU(t, "\tHALT", 2)
	if !c.Reg.Halted {
		t.Fatal("CPU not halted")
	}
	c.Interrupt(0x0300)
	stepCPU(c, 1)
	if c.Reg.Halted {
		t.Error("interrupt did not wake the CPU")
	}
	expectPC(t, c, 0x0302)
	expectMem(t, c, 0xfffd, 0x00)
	expectMem(t, c, 0xfffe, 0x01)
}

func TestInvalidOpcode(t *testing.T) {
	mem := cpu.NewFlatMemory()
	c := cpu.NewCPU(mem, mem, mem)
	mem.StoreBytes(0, []byte{0x0b, 0x1f, 0x10, 0x00})
	stepCPU(c, 2)
	expectPC(t, c, 4)
	expectFlags(t, c, "----")
	expectACC(t, c, 0)
}

func TestDecode(t *testing.T) {
	set := cpu.GetInstructionSet()
	tests := []struct {
		word   uint16
		name   string
		length byte
		valid  bool
	}{
		{0x0000, "NOP", 2, true},
		{0x0001, "HALT", 2, true},
		{0x0010, "???", 2, false},
		{0x2000, "ADDI", 4, true},
		{0x200a, "LSLI", 4, true},
		{0x2005, "???", 2, false},
		{0x5129, "LDX", 2, true},
		{0x6111, "LDI", 4, true},
		{0x700e, "RET", 2, true},
		{0x800d, "CALL", 4, true},
		{0x9f3c, "IN", 2, true},
		{0xa000, "OUT", 2, true},
		{0xb000, "???", 2, false},
	}
	for _, tt := range tests {
		inst := set.Lookup(tt.word)
		if inst.Name != tt.name || inst.Length != tt.length || inst.Valid != tt.valid {
			t.Errorf("$%04X: got %s/%d/%v, expected %s/%d/%v", tt.word,
				inst.Name, inst.Length, inst.Valid, tt.name, tt.length, tt.valid)
		}
	}

	d := set.Decode(0x6151, func() uint16 { return 0x2345 })
	if !d.HasAddr || d.Addr != 0x52345 || d.X != 1 || d.Length() != 4 {
		t.Errorf("wide address decode: %+v", d)
	}
	d = set.Decode(0x9f3c, func() uint16 { t.Error("unexpected fetch"); return 0 })
	if d.X != 0xf || d.Y != 3 || d.T != 0xc || d.Length() != 2 {
		t.Errorf("IO decode: %+v", d)
	}

	if vs := set.GetInstructions("jmp"); len(vs) != 2 {
		t.Errorf("JMP has %d variants, expected 2", len(vs))
	}
}

type testHandler struct {
	hits []uint16
	data []uint16
}

func (h *testHandler) OnBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	h.hits = append(h.hits, b.Address)
}

func (h *testHandler) OnDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	h.data = append(h.data, b.Address)
}

func TestBreakpoints(t *testing.T) {
	asm := `
	NOP
	MOVI R0, #$12
	STB [R1], R0
	MOVI R0, #$34
	STB [R1], R0`

	c, _ := loadCPU(t, asm)
	h := &testHandler{}
	d := cpu.NewDebugger(h)
	c.AttachDebugger(d)
	c.Reg.R[1] = 0x3000

	d.AddBreakpoint(origin + 2)
	d.AddBreakpoint(origin + 6).Disabled = true
	d.AddConditionalDataBreakpoint(0x3000, 0x34)

	stepCPU(c, 5)
	if len(h.hits) != 1 || h.hits[0] != origin+2 {
		t.Errorf("breakpoint hits %v", h.hits)
	}
	if len(h.data) != 1 || h.data[0] != 0x3000 {
		t.Errorf("data breakpoint hits %v", h.data)
	}
	if bps := d.GetBreakpoints(); len(bps) != 2 || bps[0].Address != origin+2 {
		t.Errorf("unexpected breakpoint list")
	}
}
