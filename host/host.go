// Copyright 2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package host allows you to create a "host" that emulates a complete
// LLMP16 computer, with a built-in assembler, a built-in debugger, and other
// useful tools.
//
// Within the host it is possible to assemble and load machine code into ROM
// or memory, debug and step through machine code, set address and data
// breakpoints, dump the contents of memory and I/O registers, disassemble
// code, raise interrupts, feed the keyboard, attach disk images, save the
// screen, run Lua scripts against the machine, and evaluate arbitrary
// expressions.
package host

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/beevik/cmd"
	"github.com/llmp16/llmp16/asm"
	"github.com/llmp16/llmp16/cpu"
	"github.com/llmp16/llmp16/disasm"
	"github.com/llmp16/llmp16/expr"
	"github.com/llmp16/llmp16/machine"
	"github.com/llmp16/llmp16/memory"
	"github.com/llmp16/llmp16/rom"
	log "github.com/sirupsen/logrus"
)

// Number of machine steps run between checks for a user interrupt.
const runChunk = 10000

type displayFlags uint8

const (
	displayRegisters displayFlags = 1 << iota
	displayCycles
	displayAnnotations

	displayAll = displayRegisters | displayCycles | displayAnnotations
)

type state byte

const (
	stateProcessingCommands state = iota
	stateRunning
	stateBreakpoint
	stateStepOverBreakpoint
)

// ErrQuit is returned when a command asks the host to exit.
var ErrQuit = errors.New("Exiting program")

// A Host represents a fully emulated LLMP16 computer with a built-in
// assembler, a built-in debugger, and other useful tools.
type Host struct {
	input       *bufio.Scanner
	output      *bufio.Writer
	interactive bool
	m           *machine.Machine
	debugger    *cpu.Debugger
	lastCmd     *cmd.Selection
	state       state
	parser      expr.Parser
	sourceMap   *asm.SourceMap
	settings    *settings
	annotations map[uint16]string
	running     atomic.Bool
	interrupted atomic.Bool
	log         *log.Entry
}

// New creates a new LLMP16 host environment.
func New() *Host {
	h := &Host{
		output:      bufio.NewWriter(os.Stdout),
		state:       stateProcessingCommands,
		settings:    newSettings(),
		annotations: make(map[uint16]string),
		log:         log.WithField("component", "host"),
	}

	// Create the emulated machine and attach a debugger to its CPU.
	h.m = machine.New(machine.Options{})
	h.debugger = h.m.AttachDebugger(newDebugHandler(h))

	return h
}

// Machine returns the emulated machine driven by the host.
func (h *Host) Machine() *machine.Machine {
	return h.m
}

// RunCommands accepts host commands from a reader and outputs the results
// to a writer. If the commands are interactive, a prompt is displayed while
// the host waits for the the next command to be entered.
func (h *Host) RunCommands(r io.Reader, w io.Writer, interactive bool) {
	h.input = bufio.NewScanner(r)
	h.output = bufio.NewWriter(w)
	h.interactive = interactive

	if interactive {
		h.println()
	}

	h.displayPC()

	for {
		h.prompt()

		line, err := h.getLine()
		if err != nil {
			break
		}

		if err := h.Exec(line); err != nil {
			break
		}
	}
	h.flush()
}

// Exec executes a single command line. An empty line repeats the previous
// command when the host is interactive. Exec returns an error only when
// the command asks the host to exit.
func (h *Host) Exec(line string) error {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return nil
	}

	var c cmd.Selection
	if line != "" {
		var err error
		c, err = cmds.Lookup(line)
		switch {
		case err == cmd.ErrNotFound:
			h.println("Command not found.")
			return nil
		case err == cmd.ErrAmbiguous:
			h.println("Command is ambiguous.")
			return nil
		case err != nil:
			h.printf("ERROR: %v.\n", err)
			return nil
		}
	} else if h.lastCmd != nil && h.interactive {
		c = *h.lastCmd
	}

	if c.Command == nil {
		return nil
	}

	hc, ok := c.Command.Data.(*hostCommand)
	if !ok {
		h.println("Command is incomplete. Type help for a list of commands.")
		return nil
	}
	h.lastCmd = &c

	err := hc.fn(h, c)
	h.flush()
	return err
}

// Break interrupts a running CPU. It is safe to call from any goroutine.
func (h *Host) Break() {
	if h.running.Load() {
		h.interrupted.Store(true)
		h.m.Break()
		return
	}
	h.println()
	h.prompt()
}

// AssembleFile assembles a file and saves the binary and source map next
// to it.
func (h *Host) AssembleFile(filename string) error {
	return h.assembleFile(filename, false)
}

func (h *Host) printf(format string, args ...any) {
	fmt.Fprintf(h.output, format, args...)
	h.flush()
}

func (h *Host) println(args ...any) {
	fmt.Fprintln(h.output, args...)
	h.flush()
}

func (h *Host) flush() {
	h.output.Flush()
}

func (h *Host) getLine() (string, error) {
	if h.input.Scan() {
		return h.input.Text(), nil
	}
	if h.input.Err() != nil {
		return "", h.input.Err()
	}
	return "", io.EOF
}

func (h *Host) prompt() {
	if h.interactive {
		h.printf("* ")
	}
}

func (h *Host) displayPC() {
	if h.interactive {
		d, _ := h.disassemble(h.m.CPU.Reg.R[cpu.PC], displayAll)
		h.println(d)
	}
}

func (h *Host) cmdAnnotate(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	var annotation string
	if len(c.Args) >= 2 {
		annotation = strings.Join(c.Args[1:], " ")
	}

	if annotation == "" {
		delete(h.annotations, addr)
		h.printf("Annotation removed at $%04X.\n", addr)
	} else {
		h.annotations[addr] = annotation
		h.printf("Annotation added at $%04X.\n", addr)
	}

	return nil
}

func (h *Host) cmdAssembleFile(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	verbose := false
	if len(c.Args) > 1 {
		v, err := stringToBool(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		verbose = v
	}

	if err := h.assembleFile(c.Args[0], verbose); err != nil {
		h.printf("Failed to assemble '%s': %v\n", filepath.Base(c.Args[0]), err)
	}
	return nil
}

func (h *Host) assembleFile(filename string, verbose bool) error {
	if filepath.Ext(filename) == "" {
		filename += ".asm"
	}

	var options asm.Option
	if verbose {
		options |= asm.Verbose
	}

	err := asm.AssembleFile(filename, options, h.output)
	h.flush()
	if err == nil {
		h.log.WithField("file", filename).Debug("assembled")
	}
	return err
}

func (h *Host) cmdAssembleROM(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".asm"
	}

	file, err := os.Open(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return nil
	}
	defer file.Close()

	assembly, _, err := asm.Assemble(file, filename, asm.DefaultOrigin, h.output, 0)
	if err != nil {
		h.printf("Failed to assemble: %s\n", filepath.Base(filename))
		for _, e := range assembly.Errors {
			h.println(e)
		}
		return nil
	}

	img, err := assembly.Image()
	if err != nil {
		h.printf("Failed to build ROM image: %v\n", err)
		return nil
	}

	ext := filepath.Ext(filename)
	romFilename := filename[:len(filename)-len(ext)] + ".rom"
	out, err := os.OpenFile(romFilename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		h.printf("Failed to create '%s': %v\n", filepath.Base(romFilename), err)
		return nil
	}
	defer out.Close()

	if _, err := img.WriteTo(out); err != nil {
		h.printf("Failed to save '%s': %v\n", filepath.Base(romFilename), err)
		return nil
	}

	h.printf("Assembled '%s' to '%s' (%d pages).\n", filepath.Base(filename),
		filepath.Base(romFilename), len(img.Pages))
	return nil
}

func (h *Host) cmdBreakpointList(c cmd.Selection) error {
	h.println("Addr  Enabled  Hits")
	h.println("----- -------  ----")
	for _, b := range h.debugger.GetBreakpoints() {
		h.printf("$%04X %-5v    %d\n", b.Address, !b.Disabled, b.Hits)
	}
	return nil
}

func (h *Host) cmdBreakpointAdd(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.debugger.AddBreakpoint(addr)
	h.printf("Breakpoint added at $%04X.\n", addr)
	return nil
}

func (h *Host) cmdBreakpointRemove(c cmd.Selection) error {
	b := h.lookupBreakpoint(c)
	if b == nil {
		return nil
	}

	h.debugger.RemoveBreakpoint(b.Address)
	h.printf("Breakpoint at $%04X removed.\n", b.Address)
	return nil
}

func (h *Host) cmdBreakpointEnable(c cmd.Selection) error {
	if b := h.lookupBreakpoint(c); b != nil {
		b.Disabled = false
		h.printf("Breakpoint at $%04X enabled.\n", b.Address)
	}
	return nil
}

func (h *Host) cmdBreakpointDisable(c cmd.Selection) error {
	if b := h.lookupBreakpoint(c); b != nil {
		b.Disabled = true
		h.printf("Breakpoint at $%04X disabled.\n", b.Address)
	}
	return nil
}

func (h *Host) lookupBreakpoint(c cmd.Selection) *cpu.Breakpoint {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := h.debugger.GetBreakpoint(addr)
	if b == nil {
		h.printf("No breakpoint was set on $%04X.\n", addr)
	}
	return b
}

func (h *Host) cmdDataBreakpointList(c cmd.Selection) error {
	h.println("Addr  Enabled  Value   Hits")
	h.println("----- -------  ------  ----")
	for _, b := range h.debugger.GetDataBreakpoints() {
		if b.Conditional {
			h.printf("$%04X %-5v    $%02X     %d\n", b.Address, !b.Disabled, b.Value, b.Hits)
		} else {
			h.printf("$%04X %-5v    <none>  %d\n", b.Address, !b.Disabled, b.Hits)
		}
	}
	return nil
}

func (h *Host) cmdDataBreakpointAdd(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	if len(c.Args) > 1 {
		value, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.debugger.AddConditionalDataBreakpoint(addr, byte(value))
		h.printf("Conditional data breakpoint added at $%04X for value $%02X.\n", addr, byte(value))
	} else {
		h.debugger.AddDataBreakpoint(addr)
		h.printf("Data breakpoint added at $%04X.\n", addr)
	}

	return nil
}

func (h *Host) cmdDataBreakpointRemove(c cmd.Selection) error {
	if b := h.lookupDataBreakpoint(c); b != nil {
		h.debugger.RemoveDataBreakpoint(b.Address)
		h.printf("Data breakpoint at $%04X removed.\n", b.Address)
	}
	return nil
}

func (h *Host) cmdDataBreakpointEnable(c cmd.Selection) error {
	if b := h.lookupDataBreakpoint(c); b != nil {
		b.Disabled = false
		h.printf("Data breakpoint at $%04X enabled.\n", b.Address)
	}
	return nil
}

func (h *Host) cmdDataBreakpointDisable(c cmd.Selection) error {
	if b := h.lookupDataBreakpoint(c); b != nil {
		b.Disabled = true
		h.printf("Data breakpoint at $%04X disabled.\n", b.Address)
	}
	return nil
}

func (h *Host) lookupDataBreakpoint(c cmd.Selection) *cpu.DataBreakpoint {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := h.debugger.GetDataBreakpoint(addr)
	if b == nil {
		h.printf("No data breakpoint was set on $%04X.\n", addr)
	}
	return b
}

func (h *Host) cmdDisassemble(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	var addr uint16
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextDisasmAddr
		if addr == 0 {
			addr = h.m.CPU.Reg.R[cpu.PC]
		}
	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	lines := h.settings.DisasmLines
	if len(c.Args) > 1 {
		l, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		lines = int(l)
	}

	for i := 0; i < lines; i++ {
		d, next := h.disassemble(addr, displayAnnotations)
		h.println(d)
		addr = next
	}

	h.settings.NextDisasmAddr = addr
	h.lastCmd.Args = []string{"$", strconv.Itoa(lines)}
	return nil
}

func (h *Host) cmdDiskAttach(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	filename := c.Args[0]
	file, err := os.Open(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return nil
	}
	defer file.Close()

	if err := h.m.LoadDisk(file); err != nil {
		h.printf("Failed to attach '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	h.printf("Attached disk image '%s'.\n", filepath.Base(filename))
	return nil
}

func (h *Host) cmdDiskSave(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	filename := c.Args[0]
	file, err := os.OpenFile(filename, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		h.printf("Failed to create '%s': %v\n", filepath.Base(filename), err)
		return nil
	}
	defer file.Close()

	if err := h.m.SaveDisk(file); err != nil {
		h.printf("Failed to save '%s': %v\n", filepath.Base(filename), err)
		return nil
	}

	h.printf("Saved disk image to '%s'.\n", filepath.Base(filename))
	return nil
}

func (h *Host) cmdDiskInfo(c cmd.Selection) error {
	g := h.m.DiskCtl.Geometry()
	h.printf("Cylinders: %d\n", g.Cylinders)
	h.printf("Heads:     %d\n", g.Heads)
	h.printf("Sectors:   %d\n", g.Sectors)
	h.printf("Size:      %d bytes\n", g.Size())
	return nil
}

func (h *Host) cmdEval(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	v, err := h.parseExpr(strings.Join(c.Args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	h.printf("$%04X\n", v)
	return nil
}

func (h *Host) cmdExports(c cmd.Selection) error {
	if h.sourceMap == nil || len(h.sourceMap.Exports) == 0 {
		h.println("No active exports.")
		return nil
	}
	for _, e := range h.sourceMap.Exports {
		h.printf("%-16s $%04X\n", e.Label, e.Address)
	}
	return nil
}

func (h *Host) cmdHelp(c cmd.Selection) error {
	if len(c.Args) == 0 {
		h.println("Commands:")
		for _, t := range helpTopics {
			h.printf("    %-15s  %s\n", t.name, t.brief)
		}
		return nil
	}

	s, err := cmds.Lookup(strings.Join(c.Args, " "))
	if err == nil && s.Command != nil {
		if hc, ok := s.Command.Data.(*hostCommand); ok {
			h.displayCommandHelp(hc)
			return nil
		}
	}

	name := strings.ToLower(c.Args[0])
	for _, t := range helpTopics {
		if t.name == name && len(t.commands) > 1 {
			h.printf("%s:\n", t.brief)
			for _, hc := range t.commands {
				h.printf("    %-22s  %s\n", hc.path, hc.brief)
			}
			return nil
		}
	}

	h.println("Command not found.")
	return nil
}

func (h *Host) displayCommandHelp(hc *hostCommand) {
	if hc.usage != "" {
		h.printf("Syntax: %s\n\n", hc.usage)
	}
	switch {
	case hc.desc != "":
		h.printf("Description:\n%s\n\n", indentWrap(3, hc.desc))
	case hc.brief != "":
		h.printf("Description:\n%s.\n\n", indentWrap(3, hc.brief))
	}
}

func (h *Host) cmdIODump(c cmd.Selection) error {
	if len(c.Args) > 0 {
		p, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		if p >= memory.NumPorts {
			h.printf("Invalid port %d.\n", p)
			return nil
		}
		h.dumpPort(byte(p))
		return nil
	}

	for p := byte(0); p < memory.NumPorts; p++ {
		if memory.PortName(p) != "" {
			h.dumpPort(p)
		}
	}
	return nil
}

func (h *Host) dumpPort(p byte) {
	regs := h.m.Ports.Port(p)
	name := memory.PortName(p)
	if name == "" {
		name = "-"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-5s %2d:", name, p)
	for i, v := range regs {
		if i == memory.NumRegisters/2 {
			b.WriteString(" ")
		}
		fmt.Fprintf(&b, " %04X", v)
	}
	h.println(b.String())
}

func (h *Host) cmdIOSet(c cmd.Selection) error {
	if len(c.Args) < 3 {
		h.displayUsage(c)
		return nil
	}

	var v [3]uint16
	for i := range v {
		n, err := h.parseExpr(c.Args[i])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		v[i] = n
	}
	if v[0] >= memory.NumPorts || v[1] >= memory.NumRegisters {
		h.println("Invalid port or register.")
		return nil
	}

	h.m.Ports.Out(byte(v[0]), byte(v[1]), v[2])
	h.printf("Port %d register %d set to $%04X.\n", v[0], v[1], v[2])
	return nil
}

func (h *Host) cmdIRQ(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	line, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}
	if line >= 16 {
		h.printf("Invalid interrupt line %d.\n", line)
		return nil
	}

	h.m.Interrupt(int(line))
	h.printf("Interrupt request %d raised.\n", line)
	return nil
}

func (h *Host) cmdKey(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	codes, err := h.parseKeys(strings.Join(c.Args, " "))
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	queued := 0
	for _, code := range codes {
		if !h.m.InjectScanCode(code) {
			break
		}
		queued++
	}
	if queued < len(codes) {
		h.printf("Keyboard buffer full; %d of %d codes queued.\n", queued, len(codes))
	} else {
		h.printf("%d scan codes queued.\n", queued)
	}
	return nil
}

// parseKeys splits a key command line into scan codes. Quoted runs queue
// the codes of their characters; everything else is an expression.
func (h *Host) parseKeys(s string) ([]uint16, error) {
	var codes []uint16
	for s = strings.TrimSpace(s); s != ""; s = strings.TrimSpace(s) {
		if s[0] == '"' {
			end := strings.IndexByte(s[1:], '"')
			if end < 0 {
				return nil, errors.New("unterminated string")
			}
			for _, r := range s[1 : end+1] {
				codes = append(codes, uint16(r))
			}
			s = s[end+2:]
			continue
		}

		tok := s
		if i := strings.IndexAny(s, " \t"); i >= 0 {
			tok, s = s[:i], s[i:]
		} else {
			s = ""
		}
		v, err := h.parseExpr(tok)
		if err != nil {
			return nil, err
		}
		codes = append(codes, v)
	}
	return codes, nil
}

func (h *Host) cmdLoad(c cmd.Selection) error {
	if len(c.Args) < 1 {
		h.displayUsage(c)
		return nil
	}

	filename := c.Args[0]
	if filepath.Ext(filename) == "" {
		filename += ".bin"
	}

	if strings.EqualFold(filepath.Ext(filename), ".rom") {
		h.loadROM(filename)
		return nil
	}

	loadAddr := -1
	if len(c.Args) >= 2 {
		addr, err := h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		loadAddr = int(addr)
	}

	h.load(filename, loadAddr)
	return nil
}

func (h *Host) loadROM(filename string) {
	file, err := os.Open(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return
	}
	defer file.Close()

	img := &rom.Image{}
	if _, err := img.ReadFrom(file); err != nil {
		h.printf("Failed to read '%s': %v\n", filepath.Base(filename), err)
		return
	}
	if err := h.m.LoadROM(img); err != nil {
		h.printf("Failed to flash '%s': %v\n", filepath.Base(filename), err)
		return
	}

	h.printf("Flashed '%s' into ROM (%d pages, %d bytes).\n",
		filepath.Base(filename), len(img.Pages), img.Size())
}

func (h *Host) load(filename string, addr int) {
	file, err := os.Open(filename)
	if err != nil {
		h.printf("Failed to open '%s': %v\n", filepath.Base(filename), err)
		return
	}
	defer file.Close()

	a := &asm.Assembly{}
	if _, err := a.ReadFrom(file); err != nil {
		h.printf("Failed to read '%s': %v\n", filepath.Base(filename), err)
		return
	}

	// A source map next to the binary supplies its origin and exports.
	ext := filepath.Ext(filename)
	mapFilename := filename[:len(filename)-len(ext)] + ".map"
	var sourceMap *asm.SourceMap
	if mf, err := os.Open(mapFilename); err == nil {
		sm := &asm.SourceMap{}
		if _, err := sm.ReadFrom(mf); err != nil {
			h.printf("Failed to read '%s': %v\n", filepath.Base(mapFilename), err)
		} else {
			sourceMap = sm
		}
		mf.Close()
	}

	var origin uint16
	switch {
	case addr >= 0:
		origin = uint16(addr)
	case sourceMap != nil:
		origin = uint16(sourceMap.Origin)
	default:
		h.printf("File '%s' has no source map and requires an address.\n", filepath.Base(filename))
		return
	}

	h.m.LoadCode(origin, a.Code)
	h.printf("Loaded '%s' to $%04X..$%04X.\n", filepath.Base(filename), origin, int(origin)+len(a.Code)-1)

	if sourceMap != nil {
		h.sourceMap = sourceMap
		h.printf("Loaded '%s' source map.\n", filepath.Base(mapFilename))
	}

	h.m.CPU.SetPC(origin)
	h.settings.NextDisasmAddr = origin
}

func (h *Host) cmdMemoryDump(c cmd.Selection) error {
	if len(c.Args) == 0 {
		c.Args = []string{"$"}
	}

	var addr uint16
	switch c.Args[0] {
	case "$":
		addr = h.settings.NextMemDumpAddr
	default:
		a, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		addr = a
	}

	bytes := uint16(h.settings.MemDumpBytes)
	if len(c.Args) >= 2 {
		var err error
		bytes, err = h.parseExpr(c.Args[1])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
	}

	h.dumpMemory(addr, bytes)

	h.settings.NextMemDumpAddr = addr + bytes
	h.lastCmd.Args = []string{"$", strconv.Itoa(int(bytes))}
	return nil
}

func (h *Host) cmdMemorySet(c cmd.Selection) error {
	if len(c.Args) < 2 {
		h.displayUsage(c)
		return nil
	}

	addr, err := h.parseExpr(c.Args[0])
	if err != nil {
		h.printf("%v\n", err)
		return nil
	}

	b := make([]byte, 0, len(c.Args)-1)
	for _, arg := range c.Args[1:] {
		v, err := h.parseExpr(arg)
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		if v > 0xff {
			h.printf("Value $%04X does not fit in a byte.\n", v)
			return nil
		}
		b = append(b, byte(v))
	}

	h.m.LoadCode(addr, b)
	h.printf("Stored %d bytes at $%04X.\n", len(b), addr)
	return nil
}

func (h *Host) cmdMemoryMap(c cmd.Selection) error {
	for _, base := range []uint16{0x0000, memory.BankSize} {
		kind, bank, _ := h.m.Space.Resolve(base)
		h.printf("$%04X-$%04X  %-4s bank %d\n", base, base+memory.BankSize-1, kind, bank)
	}
	h.printf("Video        VRAM bank %d\n", h.m.Space.VideoBank())
	return nil
}

func (h *Host) cmdQuit(c cmd.Selection) error {
	return ErrQuit
}

func (h *Host) cmdRegister(c cmd.Selection) error {
	for _, l := range disasm.GetRegisterDump(&h.m.CPU.Reg) {
		h.println(l)
	}
	h.printf("Cycles=%d Ticks=%d\n", h.m.CPU.Cycles, h.m.Ticks)
	d, _ := h.disassemble(h.m.CPU.Reg.R[cpu.PC], displayAnnotations)
	h.println(d)
	return nil
}

func (h *Host) cmdReset(c cmd.Selection) error {
	h.m.Reset()
	h.settings.NextDisasmAddr = 0
	h.println("Machine reset.")
	h.displayPC()
	return nil
}

func (h *Host) cmdRun(c cmd.Selection) error {
	if len(c.Args) > 0 {
		pc, err := h.parseExpr(c.Args[0])
		if err != nil {
			h.printf("%v\n", err)
			return nil
		}
		h.m.CPU.SetPC(pc)
	}

	if h.interactive {
		h.printf("Running from $%04X. Press ctrl-C to break.\n", h.m.CPU.Reg.R[cpu.PC])
	}

	h.state = stateRunning
	h.runUntilStopped()
	h.state = stateProcessingCommands

	h.settings.NextDisasmAddr = h.m.CPU.Reg.R[cpu.PC]
	return nil
}

// runUntilStopped runs the machine in chunks until a breakpoint changes
// the host state, the user interrupts it or the machine goes idle.
func (h *Host) runUntilStopped() {
	h.running.Store(true)
	defer h.running.Store(false)

	for h.state == stateRunning {
		h.m.Run(runChunk)
		if h.checkStopped() {
			return
		}
	}
}

// checkStopped reports whether a user interrupt or an idle machine should
// end the current run. It leaves the host state at stateBreakpoint when
// it does.
func (h *Host) checkStopped() bool {
	switch {
	case h.interrupted.Swap(false):
		h.println("Interrupted.")
		h.displayPC()
	case h.state == stateRunning && h.m.Idle():
		h.println("CPU halted.")
		h.displayPC()
	default:
		return false
	}
	h.state = stateBreakpoint
	return true
}

func (h *Host) cmdSet(c cmd.Selection) error {
	switch len(c.Args) {
	case 0:
		h.println("Variables:")
		h.settings.Display(h.output)
		h.flush()

	case 1:
		h.displayUsage(c)

	default:
		key, value := strings.ToLower(c.Args[0]), strings.Join(c.Args[1:], " ")
		v, errV := h.parseExpr(value)

		// Setting a register?
		if errV == nil {
			if key == "." {
				key = "pc"
			}
			if r, ok := cpu.RegisterIndex(key); ok {
				h.m.CPU.Reg.R[r] = v
				h.printf("Register %s set to $%04X.\n", cpu.RegisterName(r), v)
				return nil
			}
			switch key {
			case "flags":
				h.m.CPU.Reg.Flags = cpu.Flags(v & 0x0f)
				h.printf("Flags set to %s.\n", h.m.CPU.Reg.Flags)
				return nil
			case "ie":
				h.m.CPU.Reg.IntEnable = v != 0
				h.printf("Interrupt enable set to %v.\n", v != 0)
				return nil
			}
		}

		// Setting a host setting?
		var err error
		switch h.settings.Kind(key) {
		case reflect.Invalid:
			err = fmt.Errorf("Setting '%s' not found", key)
		case reflect.String:
			err = h.settings.Set(key, value)
		case reflect.Bool:
			var b bool
			b, err = stringToBool(value)
			if err == nil {
				err = h.settings.Set(key, b)
			}
		default:
			err = errV
			if err == nil {
				err = h.settings.Set(key, v)
			}
		}

		if err == nil {
			err = h.onSettingsUpdate()
		}

		if err == nil {
			h.println("Setting updated.")
		} else {
			h.printf("%v\n", err)
		}
	}

	return nil
}

func (h *Host) cmdStepIn(c cmd.Selection) error {
	count := h.stepCount(c)

	// Step the machine count times.
	h.state = stateRunning
	h.running.Store(true)
	for i := count - 1; i >= 0 && h.state == stateRunning; i-- {
		h.m.Step()
		if h.interrupted.Swap(false) {
			h.println("Interrupted.")
			h.state = stateBreakpoint
		}
		h.displayStep(i)
	}
	h.running.Store(false)
	h.state = stateProcessingCommands

	h.settings.NextDisasmAddr = h.m.CPU.Reg.R[cpu.PC]
	return nil
}

func (h *Host) cmdStepOver(c cmd.Selection) error {
	count := h.stepCount(c)

	// Step over the next instruction count times.
	h.state = stateRunning
	for i := count - 1; i >= 0 && h.state == stateRunning; i-- {
		h.stepOver()
		h.displayStep(i)
	}
	h.state = stateProcessingCommands

	h.settings.NextDisasmAddr = h.m.CPU.Reg.R[cpu.PC]
	return nil
}

func (h *Host) cmdStepOut(c cmd.Selection) error {
	h.state = stateRunning
	h.stepOut()
	if h.state == stateRunning {
		h.displayPC()
	}
	h.state = stateProcessingCommands

	h.settings.NextDisasmAddr = h.m.CPU.Reg.R[cpu.PC]
	return nil
}

func (h *Host) stepCount(c cmd.Selection) int {
	count := 1
	if len(c.Args) > 0 {
		n, err := h.parseExpr(c.Args[0])
		if err == nil {
			count = int(n)
		}
	}
	return count
}

// Display the current instruction after a step, eliding all but the last
// MaxStepLines lines of a long run.
func (h *Host) displayStep(remaining int) {
	switch {
	case remaining == h.settings.MaxStepLines:
		h.println("...")
	case remaining < h.settings.MaxStepLines:
		h.displayPC()
	}
}

func (h *Host) stepOver() {
	c := h.m.CPU

	// CALL instructions need to be handled specially.
	pc := c.Reg.R[cpu.PC]
	inst := c.GetInstruction(pc)
	if inst.Name != "CALL" || c.Reg.Halted {
		h.m.Step()
		return
	}

	// Place a step-over breakpoint on the instruction following the CALL.
	// Either modify an already existing breakpoint on that instruction, or
	// create a temporary one.
	next := pc + uint16(inst.Length)
	tmpBreakpointCreated := false
	b := h.debugger.GetBreakpoint(next)
	if b == nil {
		b = h.debugger.AddBreakpoint(next)
		tmpBreakpointCreated = true
	}
	b.StepOver = true

	// Run until interrupted.
	h.runUntilStopped()
	b.StepOver = false

	// If we were interrupted by the temporary step-over breakpoint,
	// then continue as normal.
	if h.state == stateStepOverBreakpoint {
		h.state = stateRunning
	}

	// Remove the temporarily created breakpoint.
	if tmpBreakpointCreated {
		h.debugger.RemoveBreakpoint(next)
	}
}

// stepOut runs until a RET or RETI pops the stack above the frame that was
// current when it started.
func (h *Host) stepOut() {
	c := h.m.CPU
	sp0 := c.Reg.R[cpu.SP]

	h.running.Store(true)
	defer h.running.Store(false)

	for h.state == stateRunning {
		inst := c.GetInstruction(c.Reg.R[cpu.PC])
		h.m.Step()

		if (inst.Name == "RET" || inst.Name == "RETI") && c.Reg.R[cpu.SP] > sp0 {
			return
		}
		if h.checkStopped() {
			return
		}
	}
}

func (h *Host) onSettingsUpdate() error {
	h.parser.HexMode = h.settings.HexMode

	lvl, err := log.ParseLevel(h.settings.LogLevel)
	if err != nil {
		h.settings.LogLevel = log.GetLevel().String()
		return err
	}
	log.SetLevel(lvl)
	return nil
}

func (h *Host) parseExpr(s string) (uint16, error) {
	v, err := h.parser.Parse(s, expr.ResolverFunc(h.resolveIdentifier))
	if err != nil {
		return 0, err
	}

	if v < 0 {
		v = 0x10000 + v
	}
	return uint16(v), nil
}

func (h *Host) resolveIdentifier(s string) (int64, error) {
	s = strings.ToLower(s)

	if s == "." {
		return int64(h.m.CPU.Reg.R[cpu.PC]), nil
	}
	if r, ok := cpu.RegisterIndex(s); ok {
		return int64(h.m.CPU.Reg.R[r]), nil
	}
	if s == "flags" {
		return int64(h.m.CPU.Reg.Flags), nil
	}

	if h.sourceMap != nil {
		for _, e := range h.sourceMap.Exports {
			if strings.ToLower(e.Label) == s {
				return int64(e.Address), nil
			}
		}
	}

	return 0, fmt.Errorf("identifier '%s' not found", s)
}

func (h *Host) disassemble(addr uint16, flags displayFlags) (str string, next uint16) {
	var line string
	line, next = disasm.Disassemble(h.m.Space, addr)

	b := make([]byte, next-addr)
	h.m.Space.LoadBytes(addr, b)

	str = fmt.Sprintf("%04X-   %-14s  %-24s", addr, codeString(b), line)

	if (flags & displayRegisters) != 0 {
		str += " " + disasm.GetRegisterString(&h.m.CPU.Reg)
	}

	if (flags & displayCycles) != 0 {
		str += fmt.Sprintf(" C=%-12d", h.m.CPU.Cycles)
	}

	if (flags & displayAnnotations) != 0 {
		if anno, ok := h.annotations[addr]; ok {
			str += " ; " + anno
		}
	}

	return str, next
}

func (h *Host) dumpMemory(addr0, bytes uint16) {
	if bytes == 0 {
		return
	}

	addr1 := addr0 + bytes - 1
	if addr1 < addr0 {
		addr1 = 0xffff
	}

	buf := []byte("    -" + strings.Repeat(" ", 35))

	// Don't align display for short dumps.
	if addr1-addr0 < 8 {
		addrToBuf(addr0, buf[0:4])
		for a, c1, c2 := uint32(addr0), 6, 32; a <= uint32(addr1); a, c1, c2 = a+1, c1+3, c2+1 {
			m := h.m.Space.LoadByte(uint16(a))
			byteToBuf(m, buf[c1:c1+2])
			buf[c2] = toPrintableChar(m)
		}
		h.println(strings.TrimRight(string(buf), " "))
		return
	}

	// Align addr0 and addr1 to 8-byte boundaries.
	start := uint32(addr0) & 0xfff8
	stop := (uint32(addr1) + 8) & 0xffff8
	if stop > 0x10000 {
		stop = 0x10000
	}

	a := uint16(start)
	for r := start; r < stop; r += 8 {
		addrToBuf(a, buf[0:4])
		for c1, c2 := 6, 32; c1 < 29; c1, c2, a = c1+3, c2+1, a+1 {
			if a >= addr0 && a <= addr1 {
				m := h.m.Space.LoadByte(a)
				byteToBuf(m, buf[c1:c1+2])
				buf[c2] = toPrintableChar(m)
			} else {
				buf[c1] = ' '
				buf[c1+1] = ' '
				buf[c2] = ' '
			}
		}
		h.println(strings.TrimRight(string(buf), " "))
	}
}

func (h *Host) displayUsage(c cmd.Selection) {
	if hc, ok := c.Command.Data.(*hostCommand); ok && hc.usage != "" {
		h.printf("Syntax: %s\n", hc.usage)
	} else {
		h.println("<no help text>")
	}
}

func (h *Host) onBreakpoint(c *cpu.CPU, b *cpu.Breakpoint) {
	if b.StepOver {
		h.state = stateStepOverBreakpoint
	} else {
		h.state = stateBreakpoint
		h.printf("Breakpoint hit at $%04X.\n", b.Address)
		h.displayPC()
	}
}

func (h *Host) onDataBreakpoint(c *cpu.CPU, b *cpu.DataBreakpoint) {
	h.printf("Data breakpoint hit on address $%04X.\n", b.Address)

	h.state = stateBreakpoint

	if c.LastPC != c.Reg.R[cpu.PC] {
		d, _ := h.disassemble(c.LastPC, displayAll)
		h.println(d)
	}

	h.displayPC()
}
