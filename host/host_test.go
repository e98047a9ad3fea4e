// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import (
	"bytes"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/llmp16/llmp16/asm"
	"github.com/llmp16/llmp16/cpu"
	"golang.org/x/image/bmp"
)

// Create a host with code assembled at address 0 and flashed into ROM.
func newTestHost(t *testing.T, code string) *Host {
	t.Helper()
	h := New()
	if code != "" {
		a, _, err := asm.Assemble(strings.NewReader(code), "test", 0, io.Discard, 0)
		if err != nil {
			t.Fatal(err, a.Errors)
		}
		h.Machine().LoadCode(0, a.Code)
	}
	return h
}

func runHost(h *Host, lines ...string) string {
	var out bytes.Buffer
	h.RunCommands(strings.NewReader(strings.Join(lines, "\n")), &out, false)
	return out.String()
}

func expectOutput(t *testing.T, got string, want ...string) {
	t.Helper()
	if exp := strings.Join(want, "\n") + "\n"; got != exp {
		t.Errorf("output mismatch\n got: %q\nwant: %q", got, exp)
	}
}

func TestEvaluate(t *testing.T) {
	h := newTestHost(t, "")
	out := runHost(h,
		"evaluate 1+2*3",
		"e -1",
		"set hexmode true",
		"e 10",
	)
	expectOutput(t, out,
		"$0007",
		"$FFFF",
		"Setting updated.",
		"$0010",
	)
}

func TestSetRegister(t *testing.T) {
	h := newTestHost(t, "")
	out := runHost(h,
		"set r3 $1234",
		"set acc 2",
		"set flags 5",
		"evaluate r3+acc",
	)
	expectOutput(t, out,
		"Register R3 set to $1234.",
		"Register ACC set to $0002.",
		"Flags set to -Z-V.",
		"$1236",
	)
	if h.Machine().CPU.Reg.Flags != cpu.FlagZ|cpu.FlagV {
		t.Errorf("flags = %v", h.Machine().CPU.Reg.Flags)
	}
}

func TestCommandErrors(t *testing.T) {
	h := newTestHost(t, "")
	out := runHost(h,
		"bogus",
		"# a comment",
		"evaluate",
		"evaluate nothere",
		"set nothere 1",
	)
	expectOutput(t, out,
		"Command not found.",
		"Syntax: evaluate <expression>",
		"identifier 'nothere' not found",
		"Setting 'nothere' not found",
	)
}

func TestMemorySetDump(t *testing.T) {
	h := newTestHost(t, "")
	out := runHost(h,
		"memory set $8000 $41 $42",
		"m $8000 2",
	)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "Stored 2 bytes at $8000." {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.HasPrefix(lines[1], "8000- 41 42 ") || !strings.HasSuffix(lines[1], "AB") {
		t.Errorf("dump line %q", lines[1])
	}
	if v := h.Machine().Space.LoadWord(0x8000); v != 0x4241 {
		t.Errorf("memory = $%04X", v)
	}
}

func TestMemoryMap(t *testing.T) {
	h := newTestHost(t, "")
	out := runHost(h, "memory map")
	expectOutput(t, out,
		"$0000-$7FFF  ROM  bank 0",
		"$8000-$FFFF  RAM  bank 0",
		"Video        VRAM bank 0",
	)
}

func TestRunBreakpoint(t *testing.T) {
	h := newTestHost(t, `
	NOP
	NOP
	NOP
	HALT`)

	out := runHost(h,
		"breakpoint add 4",
		"run",
		"run",
		"bl",
	)
	expectOutput(t, out,
		"Breakpoint added at $0004.",
		"Breakpoint hit at $0004.",
		"CPU halted.",
		"Addr  Enabled  Hits",
		"----- -------  ----",
		"$0004 true     1",
	)
}

func TestDataBreakpoint(t *testing.T) {
	h := newTestHost(t, `
	MOVI R0, #$1234
	STRI R0, $8000
	HALT`)

	out := runHost(h,
		"dba $8001 $12",
		"run",
	)
	lines := strings.Split(out, "\n")
	if len(lines) < 3 ||
		lines[0] != "Conditional data breakpoint added at $8001 for value $12." ||
		lines[1] != "Data breakpoint hit on address $8001." ||
		!strings.Contains(lines[2], "STRI") {
		t.Errorf("unexpected output %q", out)
	}
	if h.Machine().CPU.Reg.Halted {
		t.Error("CPU ran past the data breakpoint")
	}
}

func TestStepOver(t *testing.T) {
	h := newTestHost(t, `
	CALL sub
	HALT
sub:	INC R0
	INC R0
	RET`)

	runHost(h, "step over")
	c := h.Machine().CPU
	if c.Reg.R[cpu.PC] != 4 || c.Reg.R[0] != 2 {
		t.Errorf("PC=$%04X R0=%d", c.Reg.R[cpu.PC], c.Reg.R[0])
	}
	if h.debugger.GetBreakpoint(4) != nil {
		t.Error("temporary breakpoint left behind")
	}
}

func TestStepInOut(t *testing.T) {
	h := newTestHost(t, `
	CALL sub
	HALT
sub:	INC R0
	INC R0
	RET`)

	runHost(h, "step in 2")
	c := h.Machine().CPU
	if c.Reg.R[cpu.PC] != 8 || c.Reg.R[0] != 1 {
		t.Fatalf("after step in: PC=$%04X R0=%d", c.Reg.R[cpu.PC], c.Reg.R[0])
	}

	runHost(h, "step out")
	if c.Reg.R[cpu.PC] != 4 || c.Reg.R[0] != 2 {
		t.Errorf("after step out: PC=$%04X R0=%d", c.Reg.R[cpu.PC], c.Reg.R[0])
	}
}

func TestKeyAndIRQ(t *testing.T) {
	h := newTestHost(t, "")
	out := runHost(h,
		"key $68 $69 $0d",
		"irq 5",
	)
	expectOutput(t, out,
		"3 scan codes queued.",
		"Interrupt request 5 raised.",
	)
	if n := h.Machine().Keyboard.Pending(); n != 3 {
		t.Errorf("pending = %d", n)
	}
}

func TestIO(t *testing.T) {
	h := newTestHost(t, "")
	out := runHost(h,
		"io set 9 2 $abcd",
		"io dump 9",
	)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || lines[0] != "Port 9 register 2 set to $ABCD." {
		t.Fatalf("unexpected output %q", out)
	}
	if !strings.HasPrefix(lines[1], "BLIT   9: 0000 0000 ABCD") {
		t.Errorf("dump line %q", lines[1])
	}
}

func TestAnnotate(t *testing.T) {
	h := newTestHost(t, "\tHALT")
	out := runHost(h,
		"annotate 0 stop here",
		"d 0 1",
	)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 || !strings.HasSuffix(lines[1], "; stop here") {
		t.Errorf("unexpected output %q", out)
	}
	if !strings.Contains(lines[1], "HALT") {
		t.Errorf("disassembly %q", lines[1])
	}
}

func TestSettings(t *testing.T) {
	s := newSettings()

	if k := s.Kind("hex"); k != reflect.Bool {
		t.Errorf("kind = %v", k)
	}
	if k := s.Kind("next"); k != reflect.Invalid {
		t.Errorf("ambiguous prefix kind = %v", k)
	}
	if err := s.Set("memdump", 32); err != nil || s.MemDumpBytes != 32 {
		t.Errorf("set memdumpbytes: %v, %d", err, s.MemDumpBytes)
	}
	if err := s.Set("disasmlines", "ten"); err == nil {
		t.Error("string accepted for an int setting")
	}

	var out bytes.Buffer
	s.Display(&out)
	if !strings.Contains(out.String(), "MemDumpBytes     32") {
		t.Errorf("display output %q", out.String())
	}
}

func TestLogLevelSetting(t *testing.T) {
	h := newTestHost(t, "")
	prev := h.settings.LogLevel
	out := runHost(h, "set loglevel bogus")
	if !strings.Contains(out, "not a valid logrus Level") {
		t.Errorf("output %q", out)
	}
	if h.settings.LogLevel != prev {
		t.Errorf("log level = %q, expected %q", h.settings.LogLevel, prev)
	}
}

func TestScript(t *testing.T) {
	h := newTestHost(t, `
	MOVI R0, #5
	ADDI R0, #3
	HALT`)

	path := filepath.Join(t.TempDir(), "test.lua")
	script := `
local n, broke = run(100)
print(n, broke, reg("acc"))
poke(0x8000, 0x41)
print(peek(0x8000))
cmd("set r1 7")
print(reg("r1"), halted())
`
	if err := os.WriteFile(path, []byte(script), 0600); err != nil {
		t.Fatal(err)
	}

	out := runHost(h, "script "+path)
	expectOutput(t, out,
		"3\tfalse\t8",
		"65",
		"Register R1 set to $0007.",
		"7\ttrue",
	)
}

func TestScriptError(t *testing.T) {
	h := newTestHost(t, "")
	path := filepath.Join(t.TempDir(), "bad.lua")
	if err := os.WriteFile(path, []byte(`reg("nope")`), 0600); err != nil {
		t.Fatal(err)
	}
	out := runHost(h, "script "+path)
	if !strings.HasPrefix(out, "Script failed:") {
		t.Errorf("output %q", out)
	}
}

func TestVRAMSave(t *testing.T) {
	h := newTestHost(t, "")
	space := h.Machine().Space
	space.StoreVideo(0, 0xe0)
	space.StoreVideo(screenWidth*screenHeight-1, 0x03)

	path := filepath.Join(t.TempDir(), "screen.bmp")
	out := runHost(h, "vram save "+path)
	expectOutput(t, out, "Saved video bank 0 to 'screen.bmp'.")

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	img, err := bmp.Decode(f)
	if err != nil {
		t.Fatal(err)
	}
	if b := img.Bounds(); b.Dx() != screenWidth || b.Dy() != screenHeight {
		t.Fatalf("bounds = %v", b)
	}

	red := color.RGBAModel.Convert(img.At(0, 0)).(color.RGBA)
	if red != (color.RGBA{0xff, 0, 0, 0xff}) {
		t.Errorf("pixel 0 = %v", red)
	}
	blue := color.RGBAModel.Convert(img.At(screenWidth-1, screenHeight-1)).(color.RGBA)
	if blue != (color.RGBA{0, 0, 0xff, 0xff}) {
		t.Errorf("last pixel = %v", blue)
	}
}
