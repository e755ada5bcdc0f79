// Package bundle defines the archived form of a compiled program: the
// source, its compiled instruction sequence and an optional score, CBOR
// encoded. Encoding is canonical, so equal programs encode to identical
// bytes.
package bundle

import (
	"crypto/sha256"
	"fmt"
	"os"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/machina/vm"
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bundle: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Instruction is the wire form of one compiled instruction.
type Instruction struct {
	Keyword string `cbor:"keyword"`
	Mode    uint8  `cbor:"mode,omitempty"`
	Index   int    `cbor:"index,omitempty"`
	Label   string `cbor:"label,omitempty"`
}

// Bundle carries a compiled solution: the original source, its SHA-256,
// the compiled form and optionally the score it achieved.
type Bundle struct {
	Name         string         `cbor:"name"`
	Source       string         `cbor:"source"`
	SourceHash   [32]byte       `cbor:"source_hash"`
	Instructions []Instruction  `cbor:"instructions"`
	Labels       map[string]int `cbor:"labels"`
	Score        *vm.Score      `cbor:"score,omitempty"`
}

// New builds a bundle from a compiled program. score may be nil for a
// program that has not been run.
func New(name, source string, p *vm.Program, score *vm.Score) *Bundle {
	instrs := p.Instructions()
	wire := make([]Instruction, len(instrs))
	for i, in := range instrs {
		w := Instruction{Keyword: in.Keyword()}
		switch in.Op.OperandKind() {
		case vm.OperandAddress:
			w.Mode = uint8(in.Operand.Mode)
			w.Index = in.Operand.Index
		case vm.OperandLabel:
			w.Label = in.Label
		}
		wire[i] = w
	}
	return &Bundle{
		Name:         name,
		Source:       source,
		SourceHash:   sha256.Sum256([]byte(source)),
		Instructions: wire,
		Labels:       p.Labels(),
		Score:        score,
	}
}

// Program reconstructs the compiled program carried by the bundle.
func (b *Bundle) Program() (*vm.Program, error) {
	// Labels are declared before the instruction they bind to; trailing
	// labels bind past the last instruction.
	byIndex := make(map[int][]string)
	for name, idx := range b.Labels {
		if idx < 0 || idx > len(b.Instructions) {
			return nil, fmt.Errorf("bundle: label %q bound to index %d", name, idx)
		}
		byIndex[idx] = append(byIndex[idx], name)
	}
	for _, names := range byIndex {
		sort.Strings(names)
	}

	pb := vm.NewProgramBuilder()
	for i := 0; i <= len(b.Instructions); i++ {
		for _, name := range byIndex[i] {
			pb.Label(name)
		}
		if i == len(b.Instructions) {
			break
		}
		in, err := decodeInstruction(b.Instructions[i])
		if err != nil {
			return nil, err
		}
		pb.Add(in)
	}
	return pb.Build(), nil
}

func decodeInstruction(w Instruction) (vm.Instruction, error) {
	op, ok := vm.OpcodeForKeyword(w.Keyword)
	if !ok {
		return vm.Instruction{}, fmt.Errorf("bundle: unknown instruction %q", w.Keyword)
	}
	in := vm.Instruction{Op: op}
	switch op.OperandKind() {
	case vm.OperandAddress:
		if w.Mode > uint8(vm.Indirect) {
			return vm.Instruction{}, fmt.Errorf("bundle: bad addressing mode %d", w.Mode)
		}
		in.Operand = vm.Operand{Mode: vm.AddressMode(w.Mode), Index: w.Index}
	case vm.OperandLabel:
		if w.Label == "" {
			return vm.Instruction{}, fmt.Errorf("bundle: %s without a label", w.Keyword)
		}
		in.Label = w.Label
	}
	return in, nil
}

// Marshal serializes a bundle to canonical CBOR bytes.
func Marshal(b *Bundle) ([]byte, error) {
	return encMode.Marshal(b)
}

// Unmarshal deserializes a bundle from CBOR bytes.
func Unmarshal(data []byte) (*Bundle, error) {
	var b Bundle
	if err := cbor.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("bundle: unmarshal: %w", err)
	}
	return &b, nil
}

// WriteFile marshals the bundle into a file.
func WriteFile(path string, b *Bundle) error {
	data, err := Marshal(b)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile reads and unmarshals a bundle file.
func ReadFile(path string) (*Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bundle: %w", err)
	}
	return Unmarshal(data)
}
