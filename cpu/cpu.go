// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cpu implements the LLMP16 instruction set and emulator.
package cpu

// CPU represents a single LLMP16 CPU. It contains pointers to the memory,
// video memory and I/O registers associated with the CPU.
type CPU struct {
	Reg       Registers       // CPU registers
	Mem       Memory          // assigned memory
	Video     VideoMemory     // active video bank
	IO        Ports           // I/O register file
	Cycles    uint64          // total executed instructions
	LastPC    uint16          // address of the last executed instruction
	InstSet   *InstructionSet // instruction set used by the CPU
	debugger  *Debugger
	storeByte func(cpu *CPU, addr uint16, v byte)
}

// NewCPU creates an emulated LLMP16 CPU bound to the specified memory, video
// memory and I/O ports.
func NewCPU(m Memory, v VideoMemory, io Ports) *CPU {
	cpu := &CPU{
		Mem:       m,
		Video:     v,
		IO:        io,
		InstSet:   GetInstructionSet(),
		storeByte: (*CPU).storeByteNormal,
	}

	cpu.Reg.Init()
	return cpu
}

// Reset returns the registers to their power-on state.
func (cpu *CPU) Reset() {
	cpu.Reg.Init()
	cpu.Cycles = 0
	cpu.LastPC = 0
}

// SetPC updates the CPU program counter to 'addr'.
func (cpu *CPU) SetPC(addr uint16) {
	cpu.Reg.R[PC] = addr
}

// GetInstruction returns the instruction stored at the requested address.
func (cpu *CPU) GetInstruction(addr uint16) *Instruction {
	return cpu.InstSet.Lookup(cpu.Mem.LoadWord(addr))
}

// NextAddr returns the address of the next instruction following the
// instruction at addr.
func (cpu *CPU) NextAddr(addr uint16) uint16 {
	return addr + uint16(cpu.GetInstruction(addr).Length)
}

// Interrupt leaves a pending interrupt for the CPU to dispatch before its
// next fetch.
func (cpu *CPU) Interrupt(vector uint16) {
	cpu.Reg.IntPending = true
	cpu.Reg.IntVector = vector
}

// Step the cpu by one instruction.
func (cpu *CPU) Step() {
	if cpu.Reg.IntPending && cpu.Reg.IntEnable {
		cpu.enterInterrupt()
	}
	if cpu.Reg.Halted {
		return
	}

	cpu.LastPC = cpu.Reg.R[PC]
	word := cpu.fetch()
	d := cpu.InstSet.Decode(word, cpu.fetch)
	d.Inst.fn(cpu, &d)
	cpu.Cycles++

	// Update the debugger so it handle breakpoints.
	if cpu.debugger != nil {
		cpu.debugger.onUpdatePC(cpu, cpu.Reg.R[PC])
	}
}

// AttachDebugger attaches a debugger to the CPU. The debugger receives
// notifications whenever the CPU executes an instruction or stores a byte
// to memory.
func (cpu *CPU) AttachDebugger(debugger *Debugger) {
	cpu.debugger = debugger
	cpu.storeByte = (*CPU).storeByteDebugger
}

// DetachDebugger detaches the currently debugger from the CPU.
func (cpu *CPU) DetachDebugger() {
	cpu.debugger = nil
	cpu.storeByte = (*CPU).storeByteNormal
}

func (cpu *CPU) fetch() uint16 {
	pc := cpu.Reg.R[PC]
	v := cpu.Mem.LoadWord(pc)
	cpu.Reg.R[PC] = pc + 2
	return v
}

func (cpu *CPU) enterInterrupt() {
	cpu.pushWord(cpu.Reg.R[PC])
	cpu.pushWord(uint16(cpu.Reg.Flags))
	cpu.Reg.R[PC] = cpu.Reg.IntVector
	cpu.Reg.IntEnable = false
	cpu.Reg.IntPending = false
	cpu.Reg.Halted = false
}

// Store the byte value 'v' at the address 'addr'.
func (cpu *CPU) storeByteNormal(addr uint16, v byte) {
	cpu.Mem.StoreByte(addr, v)
}

// Store the byte value 'v' at the address 'addr'.
func (cpu *CPU) storeByteDebugger(addr uint16, v byte) {
	cpu.debugger.onDataStore(cpu, addr, v)
	cpu.Mem.StoreByte(addr, v)
}

func (cpu *CPU) storeWord(addr uint16, v uint16) {
	cpu.storeByte(cpu, addr, byte(v))
	cpu.storeByte(cpu, addr+1, byte(v>>8))
}

// Push a 16-bit value onto the stack.
func (cpu *CPU) pushWord(v uint16) {
	cpu.Reg.R[SP] -= 2
	cpu.storeWord(cpu.Reg.R[SP], v)
}

// Pop a 16-bit value from the stack and return it.
func (cpu *CPU) popWord() uint16 {
	v := cpu.Mem.LoadWord(cpu.Reg.R[SP])
	cpu.Reg.R[SP] += 2
	return v
}

// The second source operand: the immediate word when one was fetched,
// otherwise register Y.
func (cpu *CPU) operandB(d *Decoded) uint16 {
	if d.HasImm {
		return d.Imm
	}
	return cpu.Reg.R[d.Y]
}

// The memory address of a load: the wide address when one was fetched,
// otherwise register Y.
func (cpu *CPU) loadAddr(d *Decoded) uint16 {
	if d.HasAddr {
		return uint16(d.Addr)
	}
	return cpu.Reg.R[d.Y]
}

// Evaluate a jump condition from the flags.
func (cpu *CPU) condition(t byte) bool {
	f := cpu.Reg.Flags
	n, z, c, v := f.IsSet(FlagN), f.IsSet(FlagZ), f.IsSet(FlagC), f.IsSet(FlagV)
	switch t {
	case 0x0:
		return true
	case 0x1:
		return z
	case 0x2:
		return !z
	case 0x3:
		return c
	case 0x4:
		return !c
	case 0x5:
		return v
	case 0x6:
		return !v
	case 0x7:
		return n == v && !z
	case 0x8:
		return n != v
	case 0x9:
		return n == v
	case 0xa:
		return n != v || z
	case 0xb:
		return c && !z
	case 0xc:
		return !c || z
	}
	return false
}

// No-operation
func (cpu *CPU) nop(d *Decoded) {
	// Do nothing
}

// Halt: rewind onto the HALT word and stop fetching.
func (cpu *CPU) halt(d *Decoded) {
	cpu.Reg.R[PC] -= 2
	cpu.Reg.Halted = true
}

// Return from interrupt
func (cpu *CPU) reti(d *Decoded) {
	cpu.Reg.Flags = Flags(cpu.popWord()) & flagsNZCV
	cpu.Reg.R[PC] = cpu.popWord()
	cpu.Reg.IntEnable = true
}

// Enable interrupts
func (cpu *CPU) ei(d *Decoded) {
	cpu.Reg.IntEnable = true
}

// Disable interrupts
func (cpu *CPU) di(d *Decoded) {
	cpu.Reg.IntEnable = false
}

// Add to accumulator
func (cpu *CPU) add(d *Decoded) {
	res, f := add16(cpu.Reg.R[d.X], cpu.operandB(d))
	cpu.Reg.R[ACC] = res
	cpu.Reg.update(flagsNZCV, f)
}

// Subtract to accumulator
func (cpu *CPU) sub(d *Decoded) {
	res, f := sub16(cpu.Reg.R[d.X], cpu.operandB(d))
	cpu.Reg.R[ACC] = res
	cpu.Reg.update(flagsNZCV, f)
}

// Multiply to accumulator
func (cpu *CPU) mul(d *Decoded) {
	res, f := mul16(cpu.Reg.R[d.X], cpu.operandB(d))
	cpu.Reg.R[ACC] = res
	cpu.Reg.update(flagsNZCV, f)
}

// Unsigned divide to accumulator. Division by zero does nothing.
func (cpu *CPU) div(d *Decoded) {
	res, f, ok := div16(cpu.Reg.R[d.X], cpu.operandB(d))
	if !ok {
		return
	}
	cpu.Reg.R[ACC] = res
	cpu.Reg.update(flagsNZ, f)
}

// Signed divide to accumulator. Division by zero does nothing.
func (cpu *CPU) sdiv(d *Decoded) {
	res, f, ok := sdiv16(cpu.Reg.R[d.X], cpu.operandB(d))
	if !ok {
		return
	}
	cpu.Reg.R[ACC] = res
	cpu.Reg.update(flagsNZ|FlagV, f)
}

// Increment register
func (cpu *CPU) inc(d *Decoded) {
	v := cpu.Reg.R[d.X] + 1
	cpu.Reg.set(d.X, v)
	cpu.Reg.update(flagsNZ, nz(v))
}

// Decrement register
func (cpu *CPU) dec(d *Decoded) {
	v := cpu.Reg.R[d.X] - 1
	cpu.Reg.set(d.X, v)
	cpu.Reg.update(flagsNZ, nz(v))
}

// Compare
func (cpu *CPU) cmp(d *Decoded) {
	_, f := sub16(cpu.Reg.R[d.X], cpu.operandB(d))
	cpu.Reg.update(flagsNZCV, f)
}

func (cpu *CPU) shift(d *Decoded, fn func(v uint16, n uint) (uint16, bool, bool)) {
	res, carry, changed := fn(cpu.Reg.R[d.X], uint(cpu.operandB(d)))
	cpu.Reg.set(d.X, res)
	f := nz(res)
	mask := flagsNZ
	if changed {
		mask = flagsNZC
		if carry {
			f |= FlagC
		}
	}
	cpu.Reg.update(mask, f)
}

// Logical shift right
func (cpu *CPU) lsr(d *Decoded) {
	cpu.shift(d, lsr16)
}

// Arithmetic shift right
func (cpu *CPU) asr(d *Decoded) {
	cpu.shift(d, asr16)
}

// Logical shift left
func (cpu *CPU) lsl(d *Decoded) {
	cpu.shift(d, lsl16)
}

// Boolean AND
func (cpu *CPU) and(d *Decoded) {
	cpu.Reg.R[ACC] = cpu.Reg.R[d.X] & cpu.operandB(d)
	cpu.Reg.update(flagsNZ, nz(cpu.Reg.R[ACC]))
}

// Boolean OR
func (cpu *CPU) or(d *Decoded) {
	cpu.Reg.R[ACC] = cpu.Reg.R[d.X] | cpu.operandB(d)
	cpu.Reg.update(flagsNZ, nz(cpu.Reg.R[ACC]))
}

// Boolean XOR
func (cpu *CPU) xor(d *Decoded) {
	cpu.Reg.R[ACC] = cpu.Reg.R[d.X] ^ cpu.operandB(d)
	cpu.Reg.update(flagsNZ, nz(cpu.Reg.R[ACC]))
}

// Boolean NOT, in place
func (cpu *CPU) not(d *Decoded) {
	v := ^cpu.Reg.R[d.X]
	cpu.Reg.set(d.X, v)
	cpu.Reg.update(flagsNZ, nz(v))
}

// Bit test
func (cpu *CPU) tst(d *Decoded) {
	cpu.Reg.update(flagsNZ, nz(cpu.Reg.R[d.X]&cpu.operandB(d)))
}

// Move register or immediate
func (cpu *CPU) mov(d *Decoded) {
	cpu.Reg.set(d.X, cpu.operandB(d))
}

// Load word
func (cpu *CPU) ld(d *Decoded) {
	cpu.Reg.set(d.X, cpu.Mem.LoadWord(cpu.loadAddr(d)))
}

// Store word at [X]
func (cpu *CPU) str(d *Decoded) {
	cpu.storeWord(cpu.Reg.R[d.X], cpu.Reg.R[d.Y])
}

// Store word at an absolute address
func (cpu *CPU) stri(d *Decoded) {
	cpu.storeWord(uint16(d.Addr), cpu.Reg.R[d.X])
}

// Push register
func (cpu *CPU) push(d *Decoded) {
	cpu.pushWord(cpu.Reg.R[d.X])
}

// Pop register
func (cpu *CPU) pop(d *Decoded) {
	cpu.Reg.set(d.X, cpu.popWord())
}

// Load video byte
func (cpu *CPU) vld(d *Decoded) {
	cpu.Reg.set(d.X, uint16(cpu.Video.LoadVideo(cpu.operandB(d))))
}

// Store video byte at [X]
func (cpu *CPU) vst(d *Decoded) {
	cpu.Video.StoreVideo(cpu.Reg.R[d.X], byte(cpu.Reg.R[d.Y]))
}

// Store video byte at an immediate offset
func (cpu *CPU) vsti(d *Decoded) {
	cpu.Video.StoreVideo(d.Imm, byte(cpu.Reg.R[d.X]))
}

// Load byte
func (cpu *CPU) ldb(d *Decoded) {
	cpu.Reg.set(d.X, uint16(cpu.Mem.LoadByte(cpu.Reg.R[d.Y])))
}

// Store byte
func (cpu *CPU) stb(d *Decoded) {
	cpu.storeByte(cpu, cpu.Reg.R[d.X], byte(cpu.Reg.R[d.Y]))
}

// Load word, indexed
func (cpu *CPU) ldx(d *Decoded) {
	cpu.Reg.set(d.X, cpu.Mem.LoadWord(cpu.Reg.R[IDX]+cpu.Reg.R[d.Y]))
}

// Store word, indexed
func (cpu *CPU) stx(d *Decoded) {
	cpu.storeWord(cpu.Reg.R[IDX]+cpu.Reg.R[d.X], cpu.Reg.R[d.Y])
}

func (cpu *CPU) target(d *Decoded) uint16 {
	if d.HasAddr {
		return uint16(d.Addr)
	}
	return cpu.Reg.R[d.X]
}

// Conditional jump
func (cpu *CPU) jmp(d *Decoded) {
	if cpu.condition(d.T) {
		cpu.Reg.R[PC] = cpu.target(d)
	}
}

// Call subroutine
func (cpu *CPU) call(d *Decoded) {
	addr := cpu.target(d)
	cpu.pushWord(cpu.Reg.R[PC])
	cpu.Reg.R[PC] = addr
}

// Return from subroutine
func (cpu *CPU) ret(d *Decoded) {
	cpu.Reg.R[PC] = cpu.popWord()
}

// Read I/O register
func (cpu *CPU) in(d *Decoded) {
	cpu.Reg.set(d.X, cpu.IO.In(d.Y, d.T))
}

// Write I/O register
func (cpu *CPU) out(d *Decoded) {
	cpu.IO.Out(d.Y, d.T, cpu.Reg.R[d.X])
}
