// Package compiler turns assembly source text into an executable
// vm.Program. The language is line oriented: each line is a blank, a
// commented-out marker, a pragma, a label declaration or an instruction,
// classified in that order.
package compiler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/chazu/machina/vm"
)

var log = commonlog.GetLogger("machina.compiler")

// IllegalLineError reports a line that matches none of the recognized
// shapes. Compilation aborts at the first illegal line; no partial program
// is returned.
type IllegalLineError struct {
	Line   string
	Number int // 1-based source line
}

func (e *IllegalLineError) Error() string {
	return fmt.Sprintf("line %d: illegal line %q", e.Number, e.Line)
}

var (
	commentRe  = regexp.MustCompile(`^COMMENT\s+\d+$`)
	defineRe   = regexp.MustCompile(`^DEFINE\s+(?:COMMENT|LABEL)\s+\d+$`)
	labelRe    = regexp.MustCompile(`^([a-z]+):$`)
	commandRe  = regexp.MustCompile(`^([A-Z]+)(?:\s+(.*))?$`)
	addressRe  = regexp.MustCompile(`^(\[\d+\]|\d+)$`)
	labelArgRe = regexp.MustCompile(`^[a-z]+$`)
)

type lineKind uint8

const (
	lineSkip lineKind = iota // blank, commented-out code, pragma
	lineDefine
	lineLabel
	lineInstruction
)

type parsedLine struct {
	kind  lineKind
	label string
	instr vm.Instruction
}

// Compile parses the whole source, resolving labels to instruction
// indexes. A DEFINE pragma ends the program body: exported programs carry
// a trailing sprite blob behind it.
func Compile(source string) (*vm.Program, error) {
	b := vm.NewProgramBuilder()
	count := 0

	for i, raw := range strings.Split(source, "\n") {
		line, ok := classify(strings.TrimSpace(raw))
		if !ok {
			return nil, &IllegalLineError{Line: strings.TrimSpace(raw), Number: i + 1}
		}
		switch line.kind {
		case lineLabel:
			b.Label(line.label)
		case lineInstruction:
			b.Add(line.instr)
			count++
		case lineDefine:
			log.Debugf("stopping at DEFINE pragma on line %d", i+1)
			return b.Build(), nil
		}
	}

	log.Debugf("compiled %d instructions", count)
	return b.Build(), nil
}

// classify matches a trimmed line against the recognized shapes, first
// match wins.
func classify(line string) (parsedLine, bool) {
	if line == "" {
		return parsedLine{kind: lineSkip}, true
	}
	if strings.HasPrefix(line, "--") && strings.HasSuffix(line, "--") {
		return parsedLine{kind: lineSkip}, true
	}
	if commentRe.MatchString(line) {
		return parsedLine{kind: lineSkip}, true
	}
	if defineRe.MatchString(line) {
		return parsedLine{kind: lineDefine}, true
	}
	if m := labelRe.FindStringSubmatch(line); m != nil {
		return parsedLine{kind: lineLabel, label: m[1]}, true
	}
	if in, ok := parseInstruction(line); ok {
		return parsedLine{kind: lineInstruction, instr: in}, true
	}
	return parsedLine{}, false
}

// parseInstruction parses a keyword plus argument line. The keyword is
// resolved by exact match against the instruction set; the argument
// grammar is strict, any deviation fails the whole line.
func parseInstruction(line string) (vm.Instruction, bool) {
	m := commandRe.FindStringSubmatch(line)
	if m == nil {
		return vm.Instruction{}, false
	}
	keyword, args := m[1], m[2]

	op, ok := vm.OpcodeForKeyword(keyword)
	if !ok {
		return vm.Instruction{}, false
	}

	switch op.OperandKind() {
	case vm.OperandNone:
		if args != "" {
			return vm.Instruction{}, false
		}
		return vm.Instruction{Op: op}, true

	case vm.OperandAddress:
		operand, ok := parseOperand(args)
		if !ok {
			return vm.Instruction{}, false
		}
		return vm.Instruction{Op: op, Operand: operand}, true

	case vm.OperandLabel:
		if !labelArgRe.MatchString(args) {
			return vm.Instruction{}, false
		}
		return vm.Instruction{Op: op, Label: args}, true
	}
	return vm.Instruction{}, false
}

// parseOperand parses a memory operand: a bare unsigned integer for
// direct addressing, or one wrapped in brackets for indirect.
func parseOperand(args string) (vm.Operand, bool) {
	if !addressRe.MatchString(args) {
		return vm.Operand{}, false
	}
	mode := vm.Direct
	digits := args
	if strings.HasPrefix(args, "[") {
		mode = vm.Indirect
		digits = args[1 : len(args)-1]
	}
	index, err := strconv.Atoi(digits)
	if err != nil {
		return vm.Operand{}, false
	}
	return vm.Operand{Mode: mode, Index: index}, true
}
