// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cpu

import "strings"

// An opsym is an internal symbol used to associate an encoding's data
// with its implementation.
type opsym byte

const (
	symNOP opsym = iota
	symHALT
	symRETI
	symEI
	symDI
	symADD
	symSUB
	symMUL
	symDIV
	symSDIV
	symINC
	symDEC
	symCMP
	symLSR
	symASR
	symLSL
	symADDI
	symSUBI
	symMULI
	symDIVI
	symSDIVI
	symCMPI
	symLSRI
	symASRI
	symLSLI
	symAND
	symOR
	symXOR
	symNOT
	symTST
	symANDI
	symORI
	symXORI
	symTSTI
	symMOV
	symLD
	symSTR
	symPUSH
	symPOP
	symVLD
	symVST
	symLDB
	symSTB
	symLDX
	symSTX
	symMOVI
	symLDI
	symSTRI
	symVLDI
	symVSTI
	symJMP
	symJEQ
	symJNE
	symJCS
	symJCC
	symJVS
	symJVC
	symJGT
	symJLT
	symJGE
	symJLE
	symJHI
	symJLS
	symCALL
	symRET
	symIN
	symOUT
)

type instfunc func(c *CPU, d *Decoded)

// Emulator implementation for each symbol
type opcodeImpl struct {
	sym  opsym
	name string
	fn   instfunc
}

var impl = []opcodeImpl{
	{symNOP, "NOP", (*CPU).nop},
	{symHALT, "HALT", (*CPU).halt},
	{symRETI, "RETI", (*CPU).reti},
	{symEI, "EI", (*CPU).ei},
	{symDI, "DI", (*CPU).di},
	{symADD, "ADD", (*CPU).add},
	{symSUB, "SUB", (*CPU).sub},
	{symMUL, "MUL", (*CPU).mul},
	{symDIV, "DIV", (*CPU).div},
	{symSDIV, "SDIV", (*CPU).sdiv},
	{symINC, "INC", (*CPU).inc},
	{symDEC, "DEC", (*CPU).dec},
	{symCMP, "CMP", (*CPU).cmp},
	{symLSR, "LSR", (*CPU).lsr},
	{symASR, "ASR", (*CPU).asr},
	{symLSL, "LSL", (*CPU).lsl},
	{symADDI, "ADDI", (*CPU).add},
	{symSUBI, "SUBI", (*CPU).sub},
	{symMULI, "MULI", (*CPU).mul},
	{symDIVI, "DIVI", (*CPU).div},
	{symSDIVI, "SDIVI", (*CPU).sdiv},
	{symCMPI, "CMPI", (*CPU).cmp},
	{symLSRI, "LSRI", (*CPU).lsr},
	{symASRI, "ASRI", (*CPU).asr},
	{symLSLI, "LSLI", (*CPU).lsl},
	{symAND, "AND", (*CPU).and},
	{symOR, "OR", (*CPU).or},
	{symXOR, "XOR", (*CPU).xor},
	{symNOT, "NOT", (*CPU).not},
	{symTST, "TST", (*CPU).tst},
	{symANDI, "ANDI", (*CPU).and},
	{symORI, "ORI", (*CPU).or},
	{symXORI, "XORI", (*CPU).xor},
	{symTSTI, "TSTI", (*CPU).tst},
	{symMOV, "MOV", (*CPU).mov},
	{symLD, "LD", (*CPU).ld},
	{symSTR, "STR", (*CPU).str},
	{symPUSH, "PUSH", (*CPU).push},
	{symPOP, "POP", (*CPU).pop},
	{symVLD, "VLD", (*CPU).vld},
	{symVST, "VST", (*CPU).vst},
	{symLDB, "LDB", (*CPU).ldb},
	{symSTB, "STB", (*CPU).stb},
	{symLDX, "LDX", (*CPU).ldx},
	{symSTX, "STX", (*CPU).stx},
	{symMOVI, "MOVI", (*CPU).mov},
	{symLDI, "LDI", (*CPU).ld},
	{symSTRI, "STRI", (*CPU).stri},
	{symVLDI, "VLDI", (*CPU).vld},
	{symVSTI, "VSTI", (*CPU).vsti},
	{symJMP, "JMP", (*CPU).jmp},
	{symJEQ, "JEQ", (*CPU).jmp},
	{symJNE, "JNE", (*CPU).jmp},
	{symJCS, "JCS", (*CPU).jmp},
	{symJCC, "JCC", (*CPU).jmp},
	{symJVS, "JVS", (*CPU).jmp},
	{symJVC, "JVC", (*CPU).jmp},
	{symJGT, "JGT", (*CPU).jmp},
	{symJLT, "JLT", (*CPU).jmp},
	{symJGE, "JGE", (*CPU).jmp},
	{symJLE, "JLE", (*CPU).jmp},
	{symJHI, "JHI", (*CPU).jmp},
	{symJLS, "JLS", (*CPU).jmp},
	{symCALL, "CALL", (*CPU).call},
	{symRET, "RET", (*CPU).ret},
	{symIN, "IN", (*CPU).in},
	{symOUT, "OUT", (*CPU).out},
}

// Form describes how an instruction's operands are written in assembly.
type Form byte

// All operand forms
const (
	FormNone  Form = iota // no operands
	FormX                 // X register
	FormXY                // X, Y registers
	FormXMem              // X, [Y]
	FormMemX              // [X], Y
	FormXIdx              // X, [IDX+Y]
	FormIdxX              // [IDX+X], Y
	FormXImm              // X, #imm
	FormXAddr             // X, addr
	FormAddr              // addr
	FormIO                // X, port, reg
)

// Extra identifies the extension word fetched after the instruction word.
type Extra byte

// Extension word kinds
const (
	ExtraNone Extra = iota // no extension word
	ExtraImm               // 16-bit immediate
	ExtraAddr              // wide address: Y field is bits 19..16
)

func (f Form) extra() Extra {
	switch f {
	case FormXImm:
		return ExtraImm
	case FormXAddr, FormAddr:
		return ExtraAddr
	default:
		return ExtraNone
	}
}

// Encoding data for a (class, t) pair
type opcodeData struct {
	sym   opsym
	class byte
	t     byte // sub-opcode, or raw word for class 0
	form  Form
	anyT  bool // the t field is an operand, not a sub-opcode
}

// All valid (class, t) pairs
var data = []opcodeData{
	{symNOP, 0x0, 0x0, FormNone, false},
	{symHALT, 0x0, 0x1, FormNone, false},
	{symRETI, 0x0, 0x2, FormNone, false},
	{symEI, 0x0, 0x3, FormNone, false},
	{symDI, 0x0, 0x4, FormNone, false},

	{symADD, 0x1, 0x0, FormXY, false},
	{symSUB, 0x1, 0x1, FormXY, false},
	{symMUL, 0x1, 0x2, FormXY, false},
	{symDIV, 0x1, 0x3, FormXY, false},
	{symSDIV, 0x1, 0x4, FormXY, false},
	{symINC, 0x1, 0x5, FormX, false},
	{symDEC, 0x1, 0x6, FormX, false},
	{symCMP, 0x1, 0x7, FormXY, false},
	{symLSR, 0x1, 0x8, FormXY, false},
	{symASR, 0x1, 0x9, FormXY, false},
	{symLSL, 0x1, 0xa, FormXY, false},

	{symADDI, 0x2, 0x0, FormXImm, false},
	{symSUBI, 0x2, 0x1, FormXImm, false},
	{symMULI, 0x2, 0x2, FormXImm, false},
	{symDIVI, 0x2, 0x3, FormXImm, false},
	{symSDIVI, 0x2, 0x4, FormXImm, false},
	{symCMPI, 0x2, 0x7, FormXImm, false},
	{symLSRI, 0x2, 0x8, FormXImm, false},
	{symASRI, 0x2, 0x9, FormXImm, false},
	{symLSLI, 0x2, 0xa, FormXImm, false},

	{symAND, 0x3, 0x0, FormXY, false},
	{symOR, 0x3, 0x1, FormXY, false},
	{symXOR, 0x3, 0x2, FormXY, false},
	{symNOT, 0x3, 0x3, FormX, false},
	{symTST, 0x3, 0x4, FormXY, false},

	{symANDI, 0x4, 0x0, FormXImm, false},
	{symORI, 0x4, 0x1, FormXImm, false},
	{symXORI, 0x4, 0x2, FormXImm, false},
	{symTSTI, 0x4, 0x4, FormXImm, false},

	{symMOV, 0x5, 0x0, FormXY, false},
	{symLD, 0x5, 0x1, FormXMem, false},
	{symSTR, 0x5, 0x2, FormMemX, false},
	{symPUSH, 0x5, 0x3, FormX, false},
	{symPOP, 0x5, 0x4, FormX, false},
	{symVLD, 0x5, 0x5, FormXMem, false},
	{symVST, 0x5, 0x6, FormMemX, false},
	{symLDB, 0x5, 0x7, FormXMem, false},
	{symSTB, 0x5, 0x8, FormMemX, false},
	{symLDX, 0x5, 0x9, FormXIdx, false},
	{symSTX, 0x5, 0xa, FormIdxX, false},

	{symMOVI, 0x6, 0x0, FormXImm, false},
	{symLDI, 0x6, 0x1, FormXAddr, false},
	{symSTRI, 0x6, 0x2, FormXAddr, false},
	{symVLDI, 0x6, 0x3, FormXImm, false},
	{symVSTI, 0x6, 0x4, FormXImm, false},

	{symJMP, 0x7, 0x0, FormX, false},
	{symJEQ, 0x7, 0x1, FormX, false},
	{symJNE, 0x7, 0x2, FormX, false},
	{symJCS, 0x7, 0x3, FormX, false},
	{symJCC, 0x7, 0x4, FormX, false},
	{symJVS, 0x7, 0x5, FormX, false},
	{symJVC, 0x7, 0x6, FormX, false},
	{symJGT, 0x7, 0x7, FormX, false},
	{symJLT, 0x7, 0x8, FormX, false},
	{symJGE, 0x7, 0x9, FormX, false},
	{symJLE, 0x7, 0xa, FormX, false},
	{symJHI, 0x7, 0xb, FormX, false},
	{symJLS, 0x7, 0xc, FormX, false},
	{symCALL, 0x7, 0xd, FormX, false},
	{symRET, 0x7, 0xe, FormNone, false},

	{symJMP, 0x8, 0x0, FormAddr, false},
	{symJEQ, 0x8, 0x1, FormAddr, false},
	{symJNE, 0x8, 0x2, FormAddr, false},
	{symJCS, 0x8, 0x3, FormAddr, false},
	{symJCC, 0x8, 0x4, FormAddr, false},
	{symJVS, 0x8, 0x5, FormAddr, false},
	{symJVC, 0x8, 0x6, FormAddr, false},
	{symJGT, 0x8, 0x7, FormAddr, false},
	{symJLT, 0x8, 0x8, FormAddr, false},
	{symJGE, 0x8, 0x9, FormAddr, false},
	{symJLE, 0x8, 0xa, FormAddr, false},
	{symJHI, 0x8, 0xb, FormAddr, false},
	{symJLS, 0x8, 0xc, FormAddr, false},
	{symCALL, 0x8, 0xd, FormAddr, false},

	{symIN, 0x9, 0x0, FormIO, true},
	{symOUT, 0xa, 0x0, FormIO, true},
}

// An Instruction describes one entry of the LLMP16 ISA table: its name,
// its encoding, its operand form and its length.
type Instruction struct {
	Name   string   // all-caps name of the instruction
	Class  byte     // operation class (bits 15..12)
	T      byte     // sub-opcode (bits 3..0), raw word for class 0
	Form   Form     // operand form
	Extra  Extra    // extension word kind
	Length byte     // combined size of the instruction and extension, in bytes
	Valid  bool     // false for encodings that execute as a no-op
	fn     instfunc // emulator implementation of the instruction
}

// Encode assembles the instruction word for the given X and Y fields. For
// class 0 instructions the raw word is returned; for I/O instructions Y is
// the port and t the register.
func (inst *Instruction) Encode(x, y, t byte) uint16 {
	if inst.Class == 0 {
		return uint16(inst.T)
	}
	if !inst.anyT() {
		t = inst.T
	}
	return uint16(inst.Class)<<12 | uint16(x&0x0f)<<8 | uint16(y&0x0f)<<4 | uint16(t&0x0f)
}

func (inst *Instruction) anyT() bool {
	return inst.Form == FormIO
}

// An InstructionSet defines the set of all possible instructions that
// can run on the emulated CPU.
type InstructionSet struct {
	instructions [16][16]Instruction      // all instructions by class and t
	variants     map[string][]*Instruction // variants of each instruction
	invalid      Instruction
}

// Lookup retrieves the instruction corresponding to an instruction word.
func (s *InstructionSet) Lookup(word uint16) *Instruction {
	class := byte(word >> 12)
	if class == 0 && word > 0x000f {
		return &s.invalid
	}
	return &s.instructions[class][word&0x0f]
}

// GetInstructions returns all instructions whose name matches the provided
// string.
func (s *InstructionSet) GetInstructions(name string) []*Instruction {
	return s.variants[strings.ToUpper(name)]
}

// Decoded is the structured description of one fetched instruction.
type Decoded struct {
	Word    uint16       // raw instruction word
	Class   byte         // bits 15..12
	X       byte         // bits 11..8
	Y       byte         // bits 7..4
	T       byte         // bits 3..0
	HasImm  bool         // an immediate word was fetched
	Imm     uint16       // immediate word
	HasAddr bool         // a wide address was fetched
	Addr    uint32       // 20-bit wide address
	Inst    *Instruction // ISA table entry
}

// Length returns the number of bytes consumed by the instruction.
func (d *Decoded) Length() uint16 {
	if d.HasImm || d.HasAddr {
		return 4
	}
	return 2
}

// Decode splits an instruction word into its fields and fetches the
// extension word, if the ISA table says the encoding has one. Decoding never
// fails; unknown encodings map to an invalid no-op instruction.
func (s *InstructionSet) Decode(word uint16, fetch func() uint16) Decoded {
	d := Decoded{
		Word:  word,
		Class: byte(word >> 12),
		X:     byte(word>>8) & 0x0f,
		Y:     byte(word>>4) & 0x0f,
		T:     byte(word) & 0x0f,
		Inst:  s.Lookup(word),
	}
	switch d.Inst.Extra {
	case ExtraImm:
		d.HasImm, d.Imm = true, fetch()
	case ExtraAddr:
		d.HasAddr, d.Addr = true, uint32(d.Y)<<16|uint32(fetch())
	}
	return d
}

// Create the LLMP16 instruction set.
func newInstructionSet() *InstructionSet {
	set := &InstructionSet{}

	// Create a map from symbol to implementation for fast lookups.
	symToImpl := make(map[opsym]*opcodeImpl, len(impl))
	for i := range impl {
		symToImpl[impl[i].sym] = &impl[i]
	}

	set.variants = make(map[string][]*Instruction)

	set.invalid = Instruction{Name: "???", Length: 2, fn: (*CPU).nop}
	for c := range set.instructions {
		for t := range set.instructions[c] {
			inst := set.invalid
			inst.Class, inst.T = byte(c), byte(t)
			set.instructions[c][t] = inst
		}
	}

	for _, d := range data {
		impl := symToImpl[d.sym]
		extra := d.form.extra()
		length := byte(2)
		if extra != ExtraNone {
			length = 4
		}

		first, last := d.t, d.t
		if d.anyT {
			first, last = 0, 15
		}
		for t := first; t <= last; t++ {
			inst := &set.instructions[d.class][t]
			inst.Name = impl.name
			inst.Class = d.class
			inst.T = t
			inst.Form = d.form
			inst.Extra = extra
			inst.Length = length
			inst.Valid = true
			inst.fn = impl.fn
		}

		inst := &set.instructions[d.class][d.t]
		set.variants[inst.Name] = append(set.variants[inst.Name], inst)
	}

	return set
}

var instructionSet *InstructionSet

// GetInstructionSet returns the LLMP16 instruction set.
func GetInstructionSet() *InstructionSet {
	if instructionSet == nil {
		// Lazy-create the instruction set.
		instructionSet = newInstructionSet()
	}
	return instructionSet
}
