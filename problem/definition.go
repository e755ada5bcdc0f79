// Package problem loads problem definitions and turns them into
// vm.Problem values. Definitions come from JSON or TOML files; JSON input
// is validated against a CUE schema before decoding.
package problem

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/chazu/machina/vm"
)

// Definition is the interchange shape of a problem: IO cases, an optional
// memory specification and the enabled instruction keywords.
type Definition struct {
	IOs      []IODefinition    `json:"ios" toml:"ios"`
	Memory   *MemoryDefinition `json:"memory,omitempty" toml:"memory"`
	Commands []string          `json:"commands" toml:"commands"`
}

// IODefinition is one input/expected-output tape pair. Values are bare
// integers or one-character strings.
type IODefinition struct {
	Input  []vm.Value `json:"input" toml:"input"`
	Output []vm.Value `json:"output" toml:"output"`
}

// MemoryDefinition specifies initial memory either as a full array of
// cells (null meaning empty, JSON only) or as a sparse size-plus-slots
// form.
type MemoryDefinition struct {
	Full    []vm.Value     `json:"full,omitempty" toml:"full"`
	Partial *PartialMemory `json:"partial,omitempty" toml:"partial"`
}

// PartialMemory is the sparse memory form: a size and the seeded slots,
// keyed by their decimal index.
type PartialMemory struct {
	Dim    int                 `json:"dim" toml:"dim"`
	Values map[string]vm.Value `json:"values" toml:"values"`
}

// Problem converts the definition into a vm.Problem, rejecting unknown
// command keywords, out-of-range memory slots and malformed slot keys.
func (d *Definition) Problem() (*vm.Problem, error) {
	b := vm.NewProblemBuilder()
	for _, io := range d.IOs {
		b.AddIO(io.Input, io.Output)
	}

	if d.Memory != nil {
		switch {
		case d.Memory.Full != nil:
			b.MemorySize(len(d.Memory.Full))
			for i, v := range d.Memory.Full {
				if !v.IsEmpty() {
					b.SetSlot(i, v)
				}
			}
		case d.Memory.Partial != nil:
			b.MemorySize(d.Memory.Partial.Dim)
			for key, v := range d.Memory.Partial.Values {
				i, err := strconv.Atoi(key)
				if err != nil {
					return nil, fmt.Errorf("problem: bad memory slot key %q", key)
				}
				b.SetSlot(i, v)
			}
		}
	}

	for _, kw := range d.Commands {
		if _, ok := vm.OpcodeForKeyword(kw); !ok {
			return nil, fmt.Errorf("problem: unknown command %q", kw)
		}
		b.Enable(kw)
	}

	return b.Build()
}

// DecodeJSON validates data against the definition schema and decodes it.
func DecodeJSON(data []byte) (*Definition, error) {
	if err := validateJSON(data); err != nil {
		return nil, err
	}
	var d Definition
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("problem: decode: %w", err)
	}
	return &d, nil
}

// DecodeTOML decodes a TOML definition.
func DecodeTOML(data []byte) (*Definition, error) {
	var d Definition
	if err := toml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("problem: decode: %w", err)
	}
	return &d, nil
}

// LoadDefinition reads a definition file, dispatching on its extension.
func LoadDefinition(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("problem: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return DecodeJSON(data)
	case ".toml":
		return DecodeTOML(data)
	}
	return nil, fmt.Errorf("problem: unsupported definition format %q", filepath.Ext(path))
}

// Load reads a definition file and converts it into a vm.Problem.
func Load(path string) (*vm.Problem, error) {
	d, err := LoadDefinition(path)
	if err != nil {
		return nil, err
	}
	return d.Problem()
}
