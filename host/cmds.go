// Copyright 2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package host

import "github.com/beevik/cmd"

type handler func(*Host, cmd.Selection) error

// A hostCommand is stored as the Data of every command in the tree. It
// keeps a copy of the command's help text for the help command.
type hostCommand struct {
	path  string
	brief string
	desc  string
	usage string
	fn    handler
}

// A helpTopic is a top-level entry in the help listing: either a command
// or a group of subcommands.
type helpTopic struct {
	name     string
	brief    string
	commands []*hostCommand
}

var (
	cmds       *cmd.Tree
	helpTopics []*helpTopic
)

// Add a command to tree t. Commands on the root tree get a help topic of
// their own; the rest are listed under their group's topic.
func addCommand(t *cmd.Tree, topic *helpTopic, d cmd.CommandDescriptor) {
	hc := &hostCommand{
		path:  d.Name,
		brief: d.Brief,
		desc:  d.Description,
		usage: d.Usage,
		fn:    d.Data.(func(*Host, cmd.Selection) error),
	}
	if topic == nil {
		helpTopics = append(helpTopics, &helpTopic{name: d.Name, brief: d.Brief, commands: []*hostCommand{hc}})
	} else {
		hc.path = topic.name + " " + d.Name
		topic.commands = append(topic.commands, hc)
	}
	d.Data = hc
	t.AddCommand(d)
}

func addSubtree(brief, name string) (*cmd.Tree, *helpTopic) {
	topic := &helpTopic{name: name, brief: brief}
	helpTopics = append(helpTopics, topic)
	return cmds.AddSubtree(cmd.TreeDescriptor{Name: name, Brief: brief}), topic
}

func init() {
	cmds = cmd.NewTree(cmd.TreeDescriptor{Name: "llmp16"})

	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:        "help",
		Brief:       "Display help for a command",
		Description: "Display help for a command or a group of commands.",
		Usage:       "help [<command>]",
		Data:        (*Host).cmdHelp,
	})

	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "annotate",
		Brief: "Annotate an address",
		Description: "Provide a code annotation at a memory address." +
			" When disassembling code at this address, the annotation will" +
			" be displayed. An empty annotation removes it.",
		Usage: "annotate <address> [<string>]",
		Data:  (*Host).cmdAnnotate,
	})

	// Assemble commands
	as, ast := addSubtree("Assemble commands", "assemble")
	addCommand(as, ast, cmd.CommandDescriptor{
		Name:  "file",
		Brief: "Assemble a file and save the binary",
		Description: "Run the cross-assembler on the specified file," +
			" producing a binary file and source map file if successful." +
			" If you want verbose output, specify true as a second parameter.",
		Usage: "assemble file <filename> [<verbose>]",
		Data:  (*Host).cmdAssembleFile,
	})
	addCommand(as, ast, cmd.CommandDescriptor{
		Name:  "rom",
		Brief: "Assemble a file into a ROM image",
		Description: "Run the cross-assembler on the specified file and" +
			" save the code as a ROM image file with a .rom extension." +
			" The code's origin is its offset within ROM.",
		Usage: "assemble rom <filename>",
		Data:  (*Host).cmdAssembleROM,
	})

	// Breakpoint commands
	bp, bpt := addSubtree("Breakpoint commands", "breakpoint")
	addCommand(bp, bpt, cmd.CommandDescriptor{
		Name:        "list",
		Brief:       "List breakpoints",
		Description: "List all current breakpoints.",
		Usage:       "breakpoint list",
		Data:        (*Host).cmdBreakpointList,
	})
	addCommand(bp, bpt, cmd.CommandDescriptor{
		Name:  "add",
		Brief: "Add a breakpoint",
		Description: "Add a breakpoint at the specified address." +
			" The breakpoint starts enabled.",
		Usage: "breakpoint add <address>",
		Data:  (*Host).cmdBreakpointAdd,
	})
	addCommand(bp, bpt, cmd.CommandDescriptor{
		Name:        "remove",
		Brief:       "Remove a breakpoint",
		Description: "Remove a breakpoint at the specified address.",
		Usage:       "breakpoint remove <address>",
		Data:        (*Host).cmdBreakpointRemove,
	})
	addCommand(bp, bpt, cmd.CommandDescriptor{
		Name:        "enable",
		Brief:       "Enable a breakpoint",
		Description: "Enable a previously added breakpoint.",
		Usage:       "breakpoint enable <address>",
		Data:        (*Host).cmdBreakpointEnable,
	})
	addCommand(bp, bpt, cmd.CommandDescriptor{
		Name:  "disable",
		Brief: "Disable a breakpoint",
		Description: "Disable a previously added breakpoint. This" +
			" prevents the breakpoint from being hit when running the" +
			" CPU.",
		Usage: "breakpoint disable <address>",
		Data:  (*Host).cmdBreakpointDisable,
	})

	// Data breakpoint commands
	db, dbt := addSubtree("Data breakpoint commands", "databreakpoint")
	addCommand(db, dbt, cmd.CommandDescriptor{
		Name:        "list",
		Brief:       "List data breakpoints",
		Description: "List all current data breakpoints.",
		Usage:       "databreakpoint list",
		Data:        (*Host).cmdDataBreakpointList,
	})
	addCommand(db, dbt, cmd.CommandDescriptor{
		Name:  "add",
		Brief: "Add a data breakpoint",
		Description: "Add a new data breakpoint at the specified" +
			" memory address. When the CPU stores data at this address, the" +
			" breakpoint will stop the CPU. Optionally, a byte" +
			" value may be specified, and the CPU will stop only" +
			" when this value is stored. The data breakpoint starts" +
			" enabled.",
		Usage: "databreakpoint add <address> [<value>]",
		Data:  (*Host).cmdDataBreakpointAdd,
	})
	addCommand(db, dbt, cmd.CommandDescriptor{
		Name:  "remove",
		Brief: "Remove a data breakpoint",
		Description: "Remove a previously added data breakpoint at" +
			" the specified memory address.",
		Usage: "databreakpoint remove <address>",
		Data:  (*Host).cmdDataBreakpointRemove,
	})
	addCommand(db, dbt, cmd.CommandDescriptor{
		Name:        "enable",
		Brief:       "Enable a data breakpoint",
		Description: "Enable a previously added data breakpoint.",
		Usage:       "databreakpoint enable <address>",
		Data:        (*Host).cmdDataBreakpointEnable,
	})
	addCommand(db, dbt, cmd.CommandDescriptor{
		Name:        "disable",
		Brief:       "Disable a data breakpoint",
		Description: "Disable a previously added data breakpoint.",
		Usage:       "databreakpoint disable <address>",
		Data:        (*Host).cmdDataBreakpointDisable,
	})

	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "disassemble",
		Brief: "Disassemble code",
		Description: "Disassemble machine code starting at the requested" +
			" address. The number of instructions to disassemble may be" +
			" specified as an option. If no address is specified, the" +
			" disassembly continues from where the last disassembly left off.",
		Usage: "disassemble [<address>] [<count>]",
		Data:  (*Host).cmdDisassemble,
	})

	// Disk commands
	dk, dkt := addSubtree("Disk commands", "disk")
	addCommand(dk, dkt, cmd.CommandDescriptor{
		Name:  "attach",
		Brief: "Attach a disk image",
		Description: "Load a disk image file into the disk store. The" +
			" image is read completely before the store is replaced.",
		Usage: "disk attach <filename>",
		Data:  (*Host).cmdDiskAttach,
	})
	addCommand(dk, dkt, cmd.CommandDescriptor{
		Name:        "save",
		Brief:       "Save the disk image",
		Description: "Write the contents of the disk store to a file.",
		Usage:       "disk save <filename>",
		Data:        (*Host).cmdDiskSave,
	})
	addCommand(dk, dkt, cmd.CommandDescriptor{
		Name:        "info",
		Brief:       "Display disk geometry",
		Description: "Display the geometry and size of the attached disk.",
		Usage:       "disk info",
		Data:        (*Host).cmdDiskInfo,
	})

	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:        "evaluate",
		Brief:       "Evaluate an expression",
		Description: "Evaluate a mathematical expression.",
		Usage:       "evaluate <expression>",
		Data:        (*Host).cmdEval,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "exports",
		Brief: "List exported addresses",
		Description: "Display a list of all memory addresses exported by" +
			" loaded binary files. Exported addresses are stored in a binary" +
			" file's associated source map file.",
		Usage: "exports",
		Data:  (*Host).cmdExports,
	})

	// I/O register commands
	iop, iot := addSubtree("I/O register commands", "io")
	addCommand(iop, iot, cmd.CommandDescriptor{
		Name:  "dump",
		Brief: "Dump I/O registers",
		Description: "Display the registers of one I/O port, or of every" +
			" port with a device attached.",
		Usage: "io dump [<port>]",
		Data:  (*Host).cmdIODump,
	})
	addCommand(iop, iot, cmd.CommandDescriptor{
		Name:        "set",
		Brief:       "Set an I/O register",
		Description: "Write a value to a register of an I/O port.",
		Usage:       "io set <port> <register> <value>",
		Data:        (*Host).cmdIOSet,
	})

	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "irq",
		Brief: "Raise an interrupt request",
		Description: "Raise an interrupt request line on the interrupt" +
			" controller. Requests on masked lines are dropped.",
		Usage: "irq <line>",
		Data:  (*Host).cmdIRQ,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "key",
		Brief: "Queue keyboard scan codes",
		Description: "Queue one or more scan codes for the keyboard. A" +
			" quoted string queues the codes of its characters.",
		Usage: "key <code>|\"<string>\" ...",
		Data:  (*Host).cmdKey,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "keyboard",
		Brief: "Run with the terminal attached to the keyboard",
		Description: "Run the machine while every key typed at the terminal" +
			" is passed to the emulated keyboard. Press ctrl-] to return to" +
			" the command prompt.",
		Usage: "keyboard",
		Data:  (*Host).cmdKeyboard,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "load",
		Brief: "Load a binary file or ROM image",
		Description: "Load the contents of a binary file into the emulated" +
			" system's memory. If the file has an associated source map, it" +
			" will be loaded too and gives the load address. Otherwise you" +
			" must specify the address where the data will be loaded. Files" +
			" with a .rom extension are flashed into ROM as ROM images.",
		Usage: "load <filename> [<address>]",
		Data:  (*Host).cmdLoad,
	})

	// Memory commands
	me, met := addSubtree("Memory commands", "memory")
	addCommand(me, met, cmd.CommandDescriptor{
		Name:  "dump",
		Brief: "Dump memory at address",
		Description: "Dump the contents of memory starting from the" +
			" specified address. The number of bytes to dump may be" +
			" specified as an option.",
		Usage: "memory dump [<address>] [<bytes>]",
		Data:  (*Host).cmdMemoryDump,
	})
	addCommand(me, met, cmd.CommandDescriptor{
		Name:  "set",
		Brief: "Set memory at address",
		Description: "Set the contents of memory starting from the specified" +
			" address. Bytes landing in ROM are flashed.",
		Usage: "memory set <address> <byte> [<byte> ...]",
		Data:  (*Host).cmdMemorySet,
	})
	addCommand(me, met, cmd.CommandDescriptor{
		Name:  "map",
		Brief: "Display the memory map",
		Description: "Display the backing store and bank mapped into each" +
			" half of the address space, and the active video bank.",
		Usage: "memory map",
		Data:  (*Host).cmdMemoryMap,
	})

	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:        "quit",
		Brief:       "Quit the program",
		Description: "Quit the program.",
		Usage:       "quit",
		Data:        (*Host).cmdQuit,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:        "register",
		Brief:       "Display register contents",
		Description: "Display the contents of all CPU registers.",
		Usage:       "register",
		Data:        (*Host).cmdRegister,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "reset",
		Brief: "Reset the machine",
		Description: "Return the machine to its power-on state. ROM and" +
			" disk contents are kept.",
		Usage: "reset",
		Data:  (*Host).cmdReset,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "run",
		Brief: "Run the CPU",
		Description: "Run the CPU until a breakpoint is hit, the CPU" +
			" halts with nothing left to wake it, or until the user types" +
			" Ctrl-C.",
		Usage: "run [<address>]",
		Data:  (*Host).cmdRun,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "script",
		Brief: "Run a Lua script",
		Description: "Run a Lua script that drives the machine. Scripts can" +
			" step and run the CPU, read and write memory, registers and I/O" +
			" ports, queue keys and execute host commands.",
		Usage: "script <filename>",
		Data:  (*Host).cmdScript,
	})
	addCommand(cmds, nil, cmd.CommandDescriptor{
		Name:  "set",
		Brief: "Set a configuration variable",
		Description: "Set the value of a configuration variable or CPU" +
			" register. To see the current values of all configuration" +
			" variables, type set without any arguments.",
		Usage: "set [<var> <value>]",
		Data:  (*Host).cmdSet,
	})

	// Step commands
	st, stt := addSubtree("Step the debugger", "step")
	addCommand(st, stt, cmd.CommandDescriptor{
		Name:  "in",
		Brief: "Step into next instruction",
		Description: "Step the CPU by a single instruction. If the" +
			" instruction is a subroutine call, step into the subroutine." +
			" The number of steps may be specified as an option.",
		Usage: "step in [<count>]",
		Data:  (*Host).cmdStepIn,
	})
	addCommand(st, stt, cmd.CommandDescriptor{
		Name:  "over",
		Brief: "Step over next instruction",
		Description: "Step the CPU by a single instruction. If the" +
			" instruction is a subroutine call, step over the subroutine." +
			" The number of steps may be specified as an option.",
		Usage: "step over [<count>]",
		Data:  (*Host).cmdStepOver,
	})
	addCommand(st, stt, cmd.CommandDescriptor{
		Name:  "out",
		Brief: "Step out of the current subroutine",
		Description: "Step the CPU until it executes a RET or RETI" +
			" instruction. This has the effect of stepping until the" +
			" currently running subroutine has returned.",
		Usage: "step out",
		Data:  (*Host).cmdStepOut,
	})

	// Video memory commands
	vr, vrt := addSubtree("Video memory commands", "vram")
	addCommand(vr, vrt, cmd.CommandDescriptor{
		Name:  "save",
		Brief: "Save the screen as a bitmap",
		Description: "Save the active video bank as a 320x200 BMP file," +
			" decoding each byte as an RGB332 pixel.",
		Usage: "vram save <filename>",
		Data:  (*Host).cmdVRAMSave,
	})

	// Add command shortcuts.
	cmds.AddShortcut("a", "assemble file")
	cmds.AddShortcut("ar", "assemble rom")
	cmds.AddShortcut("b", "breakpoint")
	cmds.AddShortcut("bp", "breakpoint")
	cmds.AddShortcut("ba", "breakpoint add")
	cmds.AddShortcut("br", "breakpoint remove")
	cmds.AddShortcut("bl", "breakpoint list")
	cmds.AddShortcut("be", "breakpoint enable")
	cmds.AddShortcut("bd", "breakpoint disable")
	cmds.AddShortcut("d", "disassemble")
	cmds.AddShortcut("db", "databreakpoint")
	cmds.AddShortcut("dbp", "databreakpoint")
	cmds.AddShortcut("dbl", "databreakpoint list")
	cmds.AddShortcut("dba", "databreakpoint add")
	cmds.AddShortcut("dbr", "databreakpoint remove")
	cmds.AddShortcut("dbe", "databreakpoint enable")
	cmds.AddShortcut("dbd", "databreakpoint disable")
	cmds.AddShortcut("e", "evaluate")
	cmds.AddShortcut("m", "memory dump")
	cmds.AddShortcut("ms", "memory set")
	cmds.AddShortcut("r", "register")
	cmds.AddShortcut("s", "step over")
	cmds.AddShortcut("si", "step in")
	cmds.AddShortcut("so", "step out")
	cmds.AddShortcut("?", "help")
	cmds.AddShortcut(".", "register")
}
