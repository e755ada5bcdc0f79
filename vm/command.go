package vm

import "strconv"

// ---------------------------------------------------------------------------
// Instruction set
// ---------------------------------------------------------------------------

// Opcode identifies one of the eleven instructions. The set is closed:
// behavior hangs off the opcode table instead of open-ended dispatch, so
// the keyword list, parser arity and execution semantics cannot drift
// apart.
type Opcode uint8

const (
	OpInbox Opcode = iota
	OpOutbox
	OpCopyFrom
	OpCopyTo
	OpAdd
	OpSub
	OpBumpUp
	OpBumpDown
	OpJump
	OpJumpZero
	OpJumpNegative

	opcodeCount
)

// OperandKind describes the argument an opcode takes.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	OperandAddress
	OperandLabel
)

// AddressMode selects how an address operand resolves to a memory index.
type AddressMode uint8

const (
	// Direct uses the written index as the target cell.
	Direct AddressMode = iota
	// Indirect reads an Int out of the written cell and uses it as the
	// target index.
	Indirect
)

// Operand is a memory reference: a written index plus an addressing mode.
type Operand struct {
	Mode  AddressMode
	Index int
}

// Instruction is one decoded program step. Operand is meaningful only for
// address-taking opcodes, Label only for jumps. Instructions carry no
// per-run state; everything mutable lives in State.
type Instruction struct {
	Op      Opcode
	Operand Operand
	Label   string
}

type opSpec struct {
	keyword string
	operand OperandKind
	doc     string
	execute func(in Instruction, st *State) error
	next    func(in Instruction, p *Program, st *State) (int, error)
}

var opTable = [opcodeCount]opSpec{
	OpInbox: {
		keyword: "INBOX",
		operand: OperandNone,
		doc:     "Take the next value from the input tape into the accumulator. Ends the run when the tape is empty.",
		execute: execInbox,
		next:    nextSequential,
	},
	OpOutbox: {
		keyword: "OUTBOX",
		operand: OperandNone,
		doc:     "Send the accumulator to the output tape. The value must match the next expected output.",
		execute: execOutbox,
		next:    nextSequential,
	},
	OpCopyFrom: {
		keyword: "COPYFROM",
		operand: OperandAddress,
		doc:     "Copy a memory cell into the accumulator.",
		execute: execCopyFrom,
		next:    nextSequential,
	},
	OpCopyTo: {
		keyword: "COPYTO",
		operand: OperandAddress,
		doc:     "Copy the accumulator into a memory cell.",
		execute: execCopyTo,
		next:    nextSequential,
	},
	OpAdd: {
		keyword: "ADD",
		operand: OperandAddress,
		doc:     "Add a memory cell to the accumulator.",
		execute: execAdd,
		next:    nextSequential,
	},
	OpSub: {
		keyword: "SUB",
		operand: OperandAddress,
		doc:     "Subtract a memory cell from the accumulator.",
		execute: execSub,
		next:    nextSequential,
	},
	OpBumpUp: {
		keyword: "BUMPUP",
		operand: OperandAddress,
		doc:     "Increment a memory cell and load the result into the accumulator.",
		execute: execBumpUp,
		next:    nextSequential,
	},
	OpBumpDown: {
		keyword: "BUMPDN",
		operand: OperandAddress,
		doc:     "Decrement a memory cell and load the result into the accumulator.",
		execute: execBumpDown,
		next:    nextSequential,
	},
	OpJump: {
		keyword: "JUMP",
		operand: OperandLabel,
		doc:     "Jump to a label unconditionally.",
		execute: execNop,
		next:    nextJump,
	},
	OpJumpZero: {
		keyword: "JUMPZ",
		operand: OperandLabel,
		doc:     "Jump to a label when the accumulator is the integer zero.",
		execute: execReadAcc,
		next:    nextJumpZero,
	},
	OpJumpNegative: {
		keyword: "JUMPN",
		operand: OperandLabel,
		doc:     "Jump to a label when the accumulator is a negative integer.",
		execute: execReadAcc,
		next:    nextJumpNegative,
	},
}

var keywordToOpcode = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op := Opcode(0); op < opcodeCount; op++ {
		m[opTable[op].keyword] = op
	}
	return m
}()

// Keyword returns the opcode's source keyword, e.g. "COPYFROM".
func (op Opcode) Keyword() string { return opTable[op].keyword }

// OperandKind returns the kind of argument the opcode takes.
func (op Opcode) OperandKind() OperandKind { return opTable[op].operand }

// Doc returns a one-line description of the opcode.
func (op Opcode) Doc() string { return opTable[op].doc }

// OpcodeForKeyword maps a source keyword to its opcode by exact match.
func OpcodeForKeyword(keyword string) (Opcode, bool) {
	op, ok := keywordToOpcode[keyword]
	return op, ok
}

// Keywords enumerates every instruction keyword in opcode order. The set
// is derived from the opcode table, not maintained separately.
func Keywords() []string {
	kws := make([]string, opcodeCount)
	for op := Opcode(0); op < opcodeCount; op++ {
		kws[op] = opTable[op].keyword
	}
	return kws
}

// Keyword returns the instruction's source keyword.
func (in Instruction) Keyword() string { return in.Op.Keyword() }

// StaticIndex returns the memory cell the instruction statically
// references, when it takes an address operand. Both addressing modes
// touch the written cell: directly as the target, or indirectly as the
// pointer cell.
func (in Instruction) StaticIndex() (int, bool) {
	if in.Op.OperandKind() != OperandAddress {
		return 0, false
	}
	return in.Operand.Index, true
}

// LabelRef returns the label the instruction jumps to, when it takes one.
func (in Instruction) LabelRef() (string, bool) {
	if in.Op.OperandKind() != OperandLabel {
		return "", false
	}
	return in.Label, true
}

func (in Instruction) String() string {
	switch in.Op.OperandKind() {
	case OperandAddress:
		if in.Operand.Mode == Indirect {
			return in.Keyword() + " [" + strconv.Itoa(in.Operand.Index) + "]"
		}
		return in.Keyword() + " " + strconv.Itoa(in.Operand.Index)
	case OperandLabel:
		return in.Keyword() + " " + in.Label
	}
	return in.Keyword()
}
