// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/cmd"
	"github.com/llmp16/llmp16/cpu"
	lua "github.com/yuin/gopher-lua"
)

func (h *Host) cmdScript(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	err := h.RunScript(c.Args[0])
	switch {
	case errors.Is(err, ErrQuit):
		return err
	case err != nil:
		h.printf("Script failed: %v\n", err)
	}
	return nil
}

// RunScript runs a Lua script against the machine. Besides the standard
// Lua library the script sees these globals:
//
//	step([n])                 execute n machine steps (default 1)
//	run([limit])              run until idle, a breakpoint or limit steps;
//	                          returns the steps taken and whether it broke
//	reg(name)                 read a register, or "flags"
//	setreg(name, value)       write a register, or "flags"
//	peek(addr), peekw(addr)   read a byte or word through the current mapping
//	poke(addr, v), pokew(addr, v)
//	inport(port, reg)         read an I/O register
//	outport(port, reg, v)     write an I/O register
//	key(code|string)          queue keyboard scan codes
//	irq(line)                 raise an interrupt request line
//	halted()                  report whether the CPU is halted
//	idle()                    report whether the machine is idle
//	cmd(line)                 execute a host command
//
// print writes to the host's output.
func (h *Host) RunScript(filename string) error {
	L := lua.NewState()
	defer L.Close()

	var quit bool
	funcs := map[string]lua.LGFunction{
		"step":    h.luaStep,
		"run":     h.luaRun,
		"reg":     h.luaReg,
		"setreg":  h.luaSetReg,
		"peek":    h.luaPeek,
		"peekw":   h.luaPeekW,
		"poke":    h.luaPoke,
		"pokew":   h.luaPokeW,
		"inport":  h.luaInPort,
		"outport": h.luaOutPort,
		"key":     h.luaKey,
		"irq":     h.luaIRQ,
		"halted":  h.luaHalted,
		"idle":    h.luaIdle,
		"print":   h.luaPrint,
		"cmd": func(L *lua.LState) int {
			if err := h.Exec(L.CheckString(1)); err != nil {
				quit = true
				L.RaiseError("%v", err)
			}
			return 0
		},
	}
	for name, fn := range funcs {
		L.SetGlobal(name, L.NewFunction(fn))
	}

	h.log.WithField("file", filename).Debug("running script")
	err := L.DoFile(filename)
	h.flush()
	if quit {
		return ErrQuit
	}
	return err
}

func (h *Host) luaStep(L *lua.LState) int {
	n := L.OptInt(1, 1)
	for i := 0; i < n; i++ {
		h.m.Step()
	}
	return 0
}

func (h *Host) luaRun(L *lua.LState) int {
	n, err := h.m.Run(L.OptInt(1, 0))
	L.Push(lua.LNumber(n))
	L.Push(lua.LBool(err != nil))
	return 2
}

func (h *Host) luaRegister(L *lua.LState) (r byte, flags bool) {
	name := L.CheckString(1)
	if strings.EqualFold(name, "flags") {
		return 0, true
	}
	r, ok := cpu.RegisterIndex(name)
	if !ok {
		L.ArgError(1, fmt.Sprintf("unknown register '%s'", name))
	}
	return r, false
}

func (h *Host) luaReg(L *lua.LState) int {
	r, flags := h.luaRegister(L)
	if flags {
		L.Push(lua.LNumber(h.m.CPU.Reg.Flags))
	} else {
		L.Push(lua.LNumber(h.m.CPU.Reg.R[r]))
	}
	return 1
}

func (h *Host) luaSetReg(L *lua.LState) int {
	r, flags := h.luaRegister(L)
	v := uint16(L.CheckInt(2))
	if flags {
		h.m.CPU.Reg.Flags = cpu.Flags(v & 0x0f)
	} else {
		h.m.CPU.Reg.R[r] = v
	}
	return 0
}

func (h *Host) luaPeek(L *lua.LState) int {
	L.Push(lua.LNumber(h.m.Space.LoadByte(uint16(L.CheckInt(1)))))
	return 1
}

func (h *Host) luaPeekW(L *lua.LState) int {
	L.Push(lua.LNumber(h.m.Space.LoadWord(uint16(L.CheckInt(1)))))
	return 1
}

func (h *Host) luaPoke(L *lua.LState) int {
	h.m.Space.StoreByte(uint16(L.CheckInt(1)), byte(L.CheckInt(2)))
	return 0
}

func (h *Host) luaPokeW(L *lua.LState) int {
	h.m.Space.StoreWord(uint16(L.CheckInt(1)), uint16(L.CheckInt(2)))
	return 0
}

func (h *Host) luaInPort(L *lua.LState) int {
	v := h.m.Ports.In(byte(L.CheckInt(1)), byte(L.CheckInt(2)))
	L.Push(lua.LNumber(v))
	return 1
}

func (h *Host) luaOutPort(L *lua.LState) int {
	h.m.Ports.Out(byte(L.CheckInt(1)), byte(L.CheckInt(2)), uint16(L.CheckInt(3)))
	return 0
}

func (h *Host) luaKey(L *lua.LState) int {
	var codes []uint16
	switch v := L.Get(1).(type) {
	case lua.LString:
		for _, r := range string(v) {
			codes = append(codes, uint16(r))
		}
	case lua.LNumber:
		codes = append(codes, uint16(v))
	default:
		L.ArgError(1, "scan code or string expected")
	}

	queued := 0
	for _, c := range codes {
		if !h.m.InjectScanCode(c) {
			break
		}
		queued++
	}
	L.Push(lua.LNumber(queued))
	return 1
}

func (h *Host) luaIRQ(L *lua.LState) int {
	h.m.Interrupt(L.CheckInt(1))
	return 0
}

func (h *Host) luaHalted(L *lua.LState) int {
	L.Push(lua.LBool(h.m.CPU.Reg.Halted))
	return 1
}

func (h *Host) luaIdle(L *lua.LState) int {
	L.Push(lua.LBool(h.m.Idle()))
	return 1
}

func (h *Host) luaPrint(L *lua.LState) int {
	top := L.GetTop()
	args := make([]string, top)
	for i := 1; i <= top; i++ {
		args[i-1] = L.ToStringMeta(L.Get(i)).String()
	}
	h.println(strings.Join(args, "\t"))
	return 0
}
