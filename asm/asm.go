// Copyright 2014-2018 Brett Vickers. All rights reserved.
// Copyright 2024 The LLMP16 Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm implements a two-pass assembler for the LLMP16 instruction
// set.
//
// Source lines have the form
//
//	[label[:]] [mnemonic|directive] [operand, ...] [; comment]
//
// Registers are written R0-R15 or by their special names PC, SP, IDX and
// ACC. Immediates take a '#' prefix, register-indirect memory operands are
// written [Rn] and indexed operands [IDX+Rn]. Labels beginning with a '.'
// are local to the preceding global label.
package asm

import (
	"bufio"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/llmp16/llmp16/cpu"
	"github.com/llmp16/llmp16/expr"
	"github.com/llmp16/llmp16/rom"
	log "github.com/sirupsen/logrus"
)

// ErrParse is returned by Assemble when the source contains errors. The
// individual messages are collected in Assembly.Errors.
var ErrParse = errors.New("parse error")

type directive func(a *assembler, ln *sourceLine, label, args string) error

var directives map[string]directive

func init() {
	// Assigned in init to break the initialization cycle through
	// parseInclude.
	directives = map[string]directive{
		".org":     (*assembler).parseOrigin,
		".equ":     (*assembler).parseEquate,
		"=":        (*assembler).parseEquate,
		".db":      (*assembler).parseBytes,
		".byte":    (*assembler).parseBytes,
		".dw":      (*assembler).parseWords,
		".word":    (*assembler).parseWords,
		".align":   (*assembler).parseAlign,
		".pad":     (*assembler).parsePadding,
		".export":  (*assembler).parseExport,
		".include": (*assembler).parseInclude,
	}
}

// A sourceLine identifies the origin of a segment for error reporting and
// the source map.
type sourceLine struct {
	fileIndex int
	line      int
	text      string
	scope     string // global label in scope
}

// A segment is a chunk of output that occupies a fixed number of bytes once
// its address is known.
type segment interface {
	source() *sourceLine
	address() int
	setAddress(addr int)
	size() int
}

type base struct {
	src  *sourceLine
	addr int
}

func (b *base) source() *sourceLine { return b.src }
func (b *base) address() int        { return b.addr }
func (b *base) setAddress(addr int) { b.addr = addr }

// An instruction segment holds one encoded instruction and the unevaluated
// text of its extension word, if it has one.
type instruction struct {
	base
	inst *cpu.Instruction
	x, y byte
	t    byte
	ext  string // immediate or address expression
	port string // IN/OUT port expression
	reg  string // IN/OUT register expression
}

func (i *instruction) size() int { return int(i.inst.Length) }

// A data segment holds byte or word expressions and string literals.
type data struct {
	base
	unit  int
	items []dataItem
}

type dataItem struct {
	str  []byte // string literal, emitted as-is
	expr string
}

func (d *data) size() int {
	n := 0
	for _, it := range d.items {
		if it.str != nil {
			n += len(it.str)
		} else {
			n += d.unit
		}
	}
	return n
}

// An alignment segment pads to the next multiple of align.
type alignment struct {
	base
	align int
	pad   int
}

func (a *alignment) size() int { return a.pad }

// A padding segment emits count copies of a fill byte. An origin directive
// that moves the address forward becomes a padding segment too.
type padding struct {
	base
	count     int
	countExpr string
	fill      string
	origin    bool
}

func (p *padding) size() int { return p.count }

// An export segment publishes a label in the source map.
type export struct {
	base
	label string
}

func (e *export) size() int { return 0 }

type asmerror struct {
	src *sourceLine
	msg string
}

type constant struct {
	src       *sourceLine
	text      string
	value     int64
	evaluated bool
	busy      bool
}

type assembler struct {
	instSet    *cpu.InstructionSet
	origin     int
	originSet  bool
	pc         int
	code       []byte
	files      []string
	scope      string
	constants  map[string]*constant
	labels     map[string]int // label -> segment index
	segments   []segment
	exports    []Export
	lines      []SourceLine
	exprParser expr.Parser
	errors     []asmerror
	out        io.Writer
	verbose    bool
}

// An Export describes an exported address.
type Export struct {
	Label   string
	Address uint16
}

// Assembly contains the assembled machine code.
type Assembly struct {
	Origin uint16   // Load address of the first byte of Code
	Code   []byte   // Assembled machine code
	Errors []string // Errors encountered during assembly
}

// ReadFrom reads machine code from a binary input source.
func (a *Assembly) ReadFrom(r io.Reader) (n int64, err error) {
	a.Errors = nil
	a.Code, err = io.ReadAll(r)
	n = int64(len(a.Code))
	if n > 0x10000 {
		return n, fmt.Errorf("code exceeded 64K size")
	}
	return n, err
}

// WriteTo saves machine code as binary data into an output writer.
func (a *Assembly) WriteTo(w io.Writer) (n int64, err error) {
	nn, err := w.Write(a.Code)
	return int64(nn), err
}

// Image returns a ROM image holding the code at ROM offset Origin. Code
// assembled for the low half of the address space lands where reset maps
// ROM bank 0.
func (a *Assembly) Image() (*rom.Image, error) {
	return rom.FromBinary(a.Code, int(a.Origin))
}

// Option type used by the Assemble function.
type Option uint

// Options for the Assemble function.
const (
	Verbose Option = 1 << iota // print a listing during assembly
)

// DefaultOrigin is the origin used by AssembleFile. Bank 0 of ROM is mapped
// at address 0 after reset.
const DefaultOrigin = 0x0000

// AssembleFile reads a file containing LLMP16 assembly code, assembles it,
// and produces a binary output file and a source map file.
func AssembleFile(path string, options Option, out io.Writer) error {
	inFile, err := os.Open(path)
	if err != nil {
		return err
	}
	defer inFile.Close()

	assembly, sourceMap, err := Assemble(inFile, path, DefaultOrigin, out, options)
	if err != nil {
		for _, e := range assembly.Errors {
			fmt.Fprintln(out, e)
		}
		return err
	}

	ext := filepath.Ext(path)
	prefix := path[:len(path)-len(ext)]

	binPath := prefix + ".bin"
	if err := writeFile(binPath, assembly); err != nil {
		return err
	}
	mapPath := prefix + ".map"
	if err := writeFile(mapPath, sourceMap); err != nil {
		return err
	}

	fmt.Fprintf(out, "Assembled '%s' to produce '%s' and '%s'.\n",
		filepath.Base(path),
		filepath.Base(binPath),
		filepath.Base(mapPath))
	return nil
}

func writeFile(path string, w io.WriterTo) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	if _, err := w.WriteTo(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Assemble reads LLMP16 assembly source from r and assembles it starting at
// the given origin. The returned Assembly is never nil; on failure its Errors
// field lists every problem found.
func Assemble(r io.Reader, filename string, origin uint16, out io.Writer, options Option) (*Assembly, *SourceMap, error) {
	if out == nil {
		out = os.Stdout
	}

	a := &assembler{
		instSet:   cpu.GetInstructionSet(),
		origin:    int(origin),
		files:     []string{filename},
		constants: make(map[string]*constant),
		labels:    make(map[string]int),
		out:       out,
		verbose:   options&Verbose != 0,
	}

	steps := []func(a *assembler) error{
		func(a *assembler) error { return a.parse(r, 0) }, // parse source lines into segments
		(*assembler).assignAddresses,                       // assign an address to every segment
		(*assembler).resolveExports,                        // look up exported labels
		(*assembler).generateCode,                          // evaluate expressions and emit code
		(*assembler).checkConstants,                        // report unused broken constants
	}
	for _, step := range steps {
		if err := step(a); err != nil {
			break
		}
	}

	assembly := &Assembly{Origin: uint16(a.origin), Code: a.code}
	for _, e := range a.errors {
		assembly.Errors = append(assembly.Errors,
			fmt.Sprintf("%s:%d: %s", a.files[e.src.fileIndex], e.src.line, e.msg))
	}
	if len(a.errors) > 0 {
		log.WithFields(log.Fields{
			"component": "asm",
			"file":      filename,
			"errors":    len(a.errors),
		}).Debug("assembly failed")
		return assembly, nil, fmt.Errorf("%s: %w", filename, ErrParse)
	}

	sourceMap := &SourceMap{
		Origin:  a.origin,
		Size:    len(a.code),
		CRC:     crc32.ChecksumIEEE(a.code),
		Files:   a.files,
		Lines:   a.lines,
		Exports: a.exports,
	}

	log.WithFields(log.Fields{
		"component": "asm",
		"file":      filename,
		"origin":    fmt.Sprintf("%04X", a.origin),
		"size":      len(a.code),
	}).Debug("assembled")
	return assembly, sourceMap, nil
}

// Parse all lines of the reader, recursing into included files.
func (a *assembler) parse(r io.Reader, fileIndex int) error {
	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		ln := &sourceLine{fileIndex: fileIndex, line: n, text: scanner.Text()}
		a.parseLine(ln)
	}
	if err := scanner.Err(); err != nil {
		a.addError(&sourceLine{fileIndex: fileIndex}, err.Error())
	}
	return a.failed()
}

func (a *assembler) parseLine(ln *sourceLine) {
	text := strings.TrimRight(stripComment(ln.text), " \t")
	if strings.TrimSpace(text) == "" {
		return
	}

	// A token in the first column is a label, as is any token ending in a
	// colon.
	var label string
	head, rest := nextField(text)
	switch {
	case strings.HasSuffix(head, ":"):
		label, text = strings.TrimSuffix(head, ":"), rest
	case !isSpace(text[0]) && !a.isKeyword(head):
		label, text = head, rest
	}

	op, args := nextField(text)
	if label != "" && !isConstantDirective(op) {
		if !a.storeLabel(ln, label) {
			return
		}
	}
	ln.scope = a.scope

	switch {
	case op == "":
		return
	case directives[strings.ToLower(op)] != nil:
		if err := directives[strings.ToLower(op)](a, ln, label, args); err != nil {
			a.addError(ln, err.Error())
		}
	default:
		if err := a.parseInstruction(ln, op, args); err != nil {
			a.addError(ln, err.Error())
		}
	}
}

func (a *assembler) isKeyword(s string) bool {
	if directives[strings.ToLower(s)] != nil {
		return true
	}
	return a.instSet.GetInstructions(s) != nil
}

func isConstantDirective(op string) bool {
	op = strings.ToLower(op)
	return op == ".equ" || op == "="
}

// Record a label at the next segment. Returns false if the label was
// rejected.
func (a *assembler) storeLabel(ln *sourceLine, label string) bool {
	if !validIdentifier(label) {
		a.addError(ln, fmt.Sprintf("invalid label '%s'", label))
		return false
	}
	name := label
	if label[0] == '.' {
		if a.scope == "" {
			a.addError(ln, fmt.Sprintf("local label '%s' has no enclosing global label", label))
			return false
		}
		name = a.scope + label
	} else {
		a.scope = label
	}

	if _, ok := a.labels[name]; ok {
		a.addError(ln, fmt.Sprintf("label '%s' defined more than once", label))
		return false
	}
	if _, ok := a.constants[name]; ok {
		a.addError(ln, fmt.Sprintf("label '%s' already defined as a constant", label))
		return false
	}
	a.labels[name] = len(a.segments)
	return true
}

func (a *assembler) parseEquate(ln *sourceLine, label, args string) error {
	if label == "" {
		// ".equ NAME, value" form
		fields := splitOperands(args)
		if len(fields) != 2 {
			return errors.New("constant requires a name and a value")
		}
		label, args = fields[0], fields[1]
	}
	if !validIdentifier(label) || label[0] == '.' {
		return fmt.Errorf("invalid constant name '%s'", label)
	}
	if strings.TrimSpace(args) == "" {
		return fmt.Errorf("constant '%s' has no value", label)
	}
	if _, ok := a.constants[label]; ok {
		return fmt.Errorf("constant '%s' defined more than once", label)
	}
	if _, ok := a.labels[label]; ok {
		return fmt.Errorf("constant '%s' already defined as a label", label)
	}
	a.constants[label] = &constant{src: ln, text: strings.TrimSpace(args)}
	return nil
}

func (a *assembler) parseOrigin(ln *sourceLine, label, args string) error {
	if strings.TrimSpace(args) == "" {
		return errors.New("origin requires an address")
	}
	if len(a.segments) == 0 && !a.originSet {
		v, err := a.exprParser.Parse(args, a.constResolver())
		if err != nil {
			return err
		}
		if v < 0 || v > 0xffff {
			return fmt.Errorf("origin $%X out of range", v)
		}
		a.origin, a.originSet = int(v), true
		return nil
	}
	a.segments = append(a.segments, &padding{base: base{src: ln}, countExpr: args, origin: true})
	return nil
}

func (a *assembler) parseBytes(ln *sourceLine, label, args string) error {
	return a.parseData(ln, args, 1)
}

func (a *assembler) parseWords(ln *sourceLine, label, args string) error {
	return a.parseData(ln, args, 2)
}

func (a *assembler) parseData(ln *sourceLine, args string, unit int) error {
	fields := splitOperands(args)
	if len(fields) == 0 {
		return errors.New("data directive requires at least one value")
	}

	d := &data{base: base{src: ln}, unit: unit}
	for _, f := range fields {
		if f == "" {
			return errors.New("empty data value")
		}
		if f[0] == '"' {
			if unit != 1 {
				return errors.New("string literals are only allowed in byte data")
			}
			s, err := unquote(f)
			if err != nil {
				return err
			}
			d.items = append(d.items, dataItem{str: []byte(s)})
			continue
		}
		d.items = append(d.items, dataItem{expr: f})
	}
	a.segments = append(a.segments, d)
	return nil
}

func (a *assembler) parseAlign(ln *sourceLine, label, args string) error {
	v, err := a.exprParser.Parse(args, a.constResolver())
	if err != nil {
		return err
	}
	if v < 1 || v > 0x8000 || v&(v-1) != 0 {
		return fmt.Errorf("alignment %d must be a power of two", v)
	}
	a.segments = append(a.segments, &alignment{base: base{src: ln}, align: int(v)})
	return nil
}

func (a *assembler) parsePadding(ln *sourceLine, label, args string) error {
	fields := splitOperands(args)
	if len(fields) < 1 || len(fields) > 2 {
		return errors.New("padding requires a count and an optional fill value")
	}
	p := &padding{base: base{src: ln}, countExpr: fields[0]}
	if len(fields) == 2 {
		p.fill = fields[1]
	}
	a.segments = append(a.segments, p)
	return nil
}

func (a *assembler) parseExport(ln *sourceLine, label, args string) error {
	name := strings.TrimSpace(args)
	if !validIdentifier(name) || name[0] == '.' {
		return fmt.Errorf("invalid export '%s'", name)
	}
	a.segments = append(a.segments, &export{base: base{src: ln}, label: name})
	return nil
}

func (a *assembler) parseInclude(ln *sourceLine, label, args string) error {
	name, err := unquote(strings.TrimSpace(args))
	if err != nil {
		return fmt.Errorf("include requires a quoted filename")
	}
	dir := filepath.Dir(a.files[ln.fileIndex])
	path := filepath.Join(dir, name)
	for _, f := range a.files {
		if f == path {
			return fmt.Errorf("file '%s' included more than once", name)
		}
	}

	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	a.files = append(a.files, path)
	a.parse(file, len(a.files)-1)
	return nil
}

// Operand kinds recognized by the parser.
type operandKind byte

const (
	kindReg  operandKind = iota // Rn
	kindMem                     // [Rn]
	kindIdx                     // [IDX+Rn]
	kindImm                     // #expr
	kindExpr                    // expr
)

type operand struct {
	kind operandKind
	reg  byte
	text string
}

func (a *assembler) parseOperand(s string) (operand, error) {
	switch {
	case s == "":
		return operand{}, errors.New("missing operand")

	case s[0] == '#':
		text := strings.TrimSpace(s[1:])
		if text == "" {
			return operand{}, errors.New("missing immediate value")
		}
		return operand{kind: kindImm, text: text}, nil

	case s[0] == '[':
		if !strings.HasSuffix(s, "]") {
			return operand{}, fmt.Errorf("unterminated memory operand '%s'", s)
		}
		inner := strings.ReplaceAll(s[1:len(s)-1], " ", "")
		inner = strings.ReplaceAll(inner, "\t", "")
		if base, off, ok := strings.Cut(inner, "+"); ok {
			if r, ok := cpu.RegisterIndex(base); !ok || r != cpu.IDX {
				return operand{}, fmt.Errorf("indexed operand must use IDX: '%s'", s)
			}
			r, ok := cpu.RegisterIndex(off)
			if !ok {
				return operand{}, fmt.Errorf("invalid index register '%s'", off)
			}
			return operand{kind: kindIdx, reg: r}, nil
		}
		r, ok := cpu.RegisterIndex(inner)
		if !ok {
			return operand{}, fmt.Errorf("invalid register '%s'", inner)
		}
		return operand{kind: kindMem, reg: r}, nil
	}

	if r, ok := cpu.RegisterIndex(s); ok {
		return operand{kind: kindReg, reg: r}, nil
	}
	return operand{kind: kindExpr, text: s}, nil
}

var formOperands = map[cpu.Form][]operandKind{
	cpu.FormNone:  {},
	cpu.FormX:     {kindReg},
	cpu.FormXY:    {kindReg, kindReg},
	cpu.FormXMem:  {kindReg, kindMem},
	cpu.FormMemX:  {kindMem, kindReg},
	cpu.FormXIdx:  {kindReg, kindIdx},
	cpu.FormIdxX:  {kindIdx, kindReg},
	cpu.FormXImm:  {kindReg, kindImm},
	cpu.FormXAddr: {kindReg, kindExpr},
	cpu.FormAddr:  {kindExpr},
	cpu.FormIO:    {kindReg, kindExpr, kindExpr},
}

func formMatches(form cpu.Form, ops []operand) bool {
	kinds := formOperands[form]
	if len(kinds) != len(ops) {
		return false
	}
	for i, k := range kinds {
		got := ops[i].kind
		if got != k && !(k == kindImm && got == kindExpr) {
			return false
		}
	}
	return true
}

// Select the instruction variant whose operand form matches. A mnemonic
// given an immediate or address operand also matches its "I" counterpart,
// so "ADD R0, #1" assembles as ADDI.
func (a *assembler) findInstruction(name string, ops []operand) *cpu.Instruction {
	for _, inst := range a.instSet.GetInstructions(name) {
		if formMatches(inst.Form, ops) {
			return inst
		}
	}
	for _, inst := range a.instSet.GetInstructions(name + "I") {
		if formMatches(inst.Form, ops) {
			return inst
		}
	}
	return nil
}

func (a *assembler) parseInstruction(ln *sourceLine, op, args string) error {
	if a.instSet.GetInstructions(op) == nil && a.instSet.GetInstructions(op+"I") == nil {
		return fmt.Errorf("unknown instruction '%s'", op)
	}

	var ops []operand
	for _, f := range splitOperands(args) {
		o, err := a.parseOperand(f)
		if err != nil {
			return err
		}
		ops = append(ops, o)
	}

	inst := a.findInstruction(op, ops)
	if inst == nil {
		return fmt.Errorf("invalid operands for '%s'", strings.ToUpper(op))
	}

	seg := &instruction{base: base{src: ln}, inst: inst}
	switch inst.Form {
	case cpu.FormX:
		seg.x = ops[0].reg
	case cpu.FormXY, cpu.FormXMem, cpu.FormMemX, cpu.FormXIdx, cpu.FormIdxX:
		seg.x, seg.y = ops[0].reg, ops[1].reg
	case cpu.FormXImm, cpu.FormXAddr:
		seg.x, seg.ext = ops[0].reg, ops[1].text
	case cpu.FormAddr:
		seg.ext = ops[0].text
	case cpu.FormIO:
		seg.x, seg.port, seg.reg = ops[0].reg, ops[1].text, ops[2].text
	}
	a.segments = append(a.segments, seg)
	return nil
}

// Evaluate a constant on first use. Each evaluation gets its own parser
// because constants may be resolved while another expression is being
// parsed.
func (a *assembler) constant(name string, r expr.Resolver) (int64, error) {
	c := a.constants[name]
	if c.evaluated {
		return c.value, nil
	}
	if c.busy {
		return 0, fmt.Errorf("constant '%s' refers to itself", name)
	}
	c.busy = true
	var p expr.Parser
	v, err := p.Parse(c.text, r)
	c.busy = false
	if err != nil {
		return 0, err
	}
	c.value, c.evaluated = v, true
	return v, nil
}

// A resolver that only knows about constants, used before addresses are
// assigned.
func (a *assembler) constResolver() expr.Resolver {
	var r expr.ResolverFunc
	r = func(s string) (int64, error) {
		if _, ok := a.constants[s]; ok {
			return a.constant(s, r)
		}
		return 0, fmt.Errorf("'%s' is not a constant", s)
	}
	return r
}

// A resolver that knows constants and labels, used once addresses are
// assigned.
func (a *assembler) fullResolver(scope string) expr.Resolver {
	var r expr.ResolverFunc
	r = func(s string) (int64, error) {
		name := s
		if s[0] == '.' {
			name = scope + s
		}
		if idx, ok := a.labels[name]; ok {
			return int64(a.labelAddr(idx)), nil
		}
		if _, ok := a.constants[s]; ok {
			return a.constant(s, r)
		}
		return 0, fmt.Errorf("undefined identifier '%s'", s)
	}
	return r
}

// Report constants that no instruction referenced but that fail to
// evaluate.
func (a *assembler) checkConstants() error {
	names := make([]string, 0, len(a.constants))
	for name := range a.constants {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if _, err := a.constant(name, a.fullResolver("")); err != nil {
			a.addError(a.constants[name].src, err.Error())
		}
	}
	return a.failed()
}

func (a *assembler) labelAddr(segIndex int) int {
	if segIndex < len(a.segments) {
		return a.segments[segIndex].address()
	}
	return a.pc
}

// Walk the segments assigning each an address. Instruction lengths depend
// only on the mnemonic, so a single pass suffices.
func (a *assembler) assignAddresses() error {
	a.pc = a.origin
	for _, s := range a.segments {
		s.setAddress(a.pc)
		switch ss := s.(type) {
		case *alignment:
			ss.pad = (ss.align - a.pc%ss.align) % ss.align
		case *padding:
			v, err := a.exprParser.Parse(ss.countExpr, a.constResolver())
			if err != nil {
				a.addError(ss.src, err.Error())
				continue
			}
			if ss.origin {
				if int(v) < a.pc || v > 0xffff {
					a.addError(ss.src, fmt.Sprintf("origin $%04X is behind the current address $%04X", v, a.pc))
					continue
				}
				ss.count = int(v) - a.pc
			} else {
				if v < 0 || v > 0xffff {
					a.addError(ss.src, fmt.Sprintf("padding count %d out of range", v))
					continue
				}
				ss.count = int(v)
			}
		}
		a.pc += s.size()
		if a.pc > 0x10000 {
			a.addError(s.source(), "code exceeds the 64K address space")
			return ErrParse
		}
	}
	return a.failed()
}

func (a *assembler) resolveExports() error {
	for _, s := range a.segments {
		if e, ok := s.(*export); ok {
			idx, ok := a.labels[e.label]
			if !ok {
				a.addError(e.src, fmt.Sprintf("exported label '%s' not defined", e.label))
				continue
			}
			a.exports = append(a.exports, Export{Label: e.label, Address: uint16(a.labelAddr(idx))})
		}
	}
	return a.failed()
}

func (a *assembler) generateCode() error {
	a.code = make([]byte, 0, a.pc-a.origin)
	for _, s := range a.segments {
		start := len(a.code)
		src := s.source()
		r := a.fullResolver(src.scope)

		switch ss := s.(type) {
		case *instruction:
			a.generateInstruction(ss, r)
			a.lines = append(a.lines, SourceLine{
				Address:   ss.addr,
				FileIndex: src.fileIndex,
				Line:      src.line,
			})
		case *data:
			a.generateData(ss, r)
		case *alignment:
			a.code = append(a.code, make([]byte, ss.pad)...)
		case *padding:
			fill := byte(0)
			if ss.fill != "" {
				v, err := a.exprParser.Parse(ss.fill, r)
				switch {
				case err != nil:
					a.addError(src, err.Error())
				case v < -128 || v > 0xff:
					a.addError(src, fmt.Sprintf("fill value %d out of byte range", v))
				default:
					fill = byte(v)
				}
			}
			for i := 0; i < ss.count; i++ {
				a.code = append(a.code, fill)
			}
		}

		if a.verbose && len(a.code) > start {
			a.logLine(s.address(), a.code[start:], src.text)
		}
	}
	return a.failed()
}

func (a *assembler) generateInstruction(i *instruction, r expr.Resolver) {
	x, y, t := i.x, i.y, i.t

	if i.inst.Form == cpu.FormIO {
		port, err1 := a.evalField(i.port, r)
		reg, err2 := a.evalField(i.reg, r)
		if err := errors.Join(err1, err2); err != nil {
			a.addError(i.src, err.Error())
		}
		y, t = port, reg
	}

	var ext uint16
	switch i.inst.Extra {
	case cpu.ExtraImm:
		v, err := a.exprParser.Parse(i.ext, r)
		switch {
		case err != nil:
			a.addError(i.src, err.Error())
		case v < -0x8000 || v > 0xffff:
			a.addError(i.src, fmt.Sprintf("immediate %d out of 16-bit range", v))
		default:
			ext = uint16(v)
		}
	case cpu.ExtraAddr:
		v, err := a.exprParser.Parse(i.ext, r)
		switch {
		case err != nil:
			a.addError(i.src, err.Error())
		case v < 0 || v > 0xfffff:
			a.addError(i.src, fmt.Sprintf("address $%X out of 20-bit range", v))
		default:
			y, ext = byte(v>>16), uint16(v)
		}
	}

	w := i.inst.Encode(x, y, t)
	a.code = append(a.code, byte(w), byte(w>>8))
	if i.inst.Extra != cpu.ExtraNone {
		a.code = append(a.code, byte(ext), byte(ext>>8))
	}
}

// Evaluate a 4-bit instruction field.
func (a *assembler) evalField(s string, r expr.Resolver) (byte, error) {
	v, err := a.exprParser.Parse(s, r)
	if err != nil {
		return 0, err
	}
	if v < 0 || v > 15 {
		return 0, fmt.Errorf("value %d does not fit in a 4-bit field", v)
	}
	return byte(v), nil
}

func (a *assembler) generateData(d *data, r expr.Resolver) {
	for _, it := range d.items {
		if it.str != nil {
			a.code = append(a.code, it.str...)
			continue
		}
		v, err := a.exprParser.Parse(it.expr, r)
		if err != nil {
			a.addError(d.src, err.Error())
			v = 0
		}
		switch d.unit {
		case 1:
			if v < -128 || v > 0xff {
				a.addError(d.src, fmt.Sprintf("byte value %d out of range", v))
			}
			a.code = append(a.code, byte(v))
		case 2:
			if v < -0x8000 || v > 0xffff {
				a.addError(d.src, fmt.Sprintf("word value %d out of range", v))
			}
			a.code = append(a.code, byte(v), byte(v>>8))
		}
	}
}

func (a *assembler) addError(src *sourceLine, msg string) {
	a.errors = append(a.errors, asmerror{src: src, msg: msg})
}

func (a *assembler) failed() error {
	if len(a.errors) > 0 {
		return ErrParse
	}
	return nil
}

func (a *assembler) logLine(addr int, b []byte, text string) {
	const maxBytes = 6
	shown := b
	if len(shown) > maxBytes {
		shown = shown[:maxBytes]
	}
	fmt.Fprintf(a.out, "%04X  %-17s  %s\n", addr, byteString(shown), strings.TrimSpace(text))
}
