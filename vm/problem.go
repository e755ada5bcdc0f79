package vm

import (
	"errors"
	"fmt"
)

// ---------------------------------------------------------------------------
// Problem: the static test-harness definition
// ---------------------------------------------------------------------------

// IOCase pairs an input tape with the output tape a correct program must
// produce, in order.
type IOCase struct {
	Input  []Value
	Output []Value
}

// Problem describes a puzzle: its IO cases, the memory layout programs run
// against, and the set of instruction keywords programs may use.
type Problem struct {
	ios     []IOCase
	memory  []Value
	enabled map[string]struct{}
}

// IOCases returns the problem's IO cases.
func (p *Problem) IOCases() []IOCase { return p.ios }

// MemorySize returns the length of the memory template.
func (p *Problem) MemorySize() int { return len(p.memory) }

// MemoryTemplate returns a fresh copy of the initial memory image.
func (p *Problem) MemoryTemplate() []Value {
	return append([]Value(nil), p.memory...)
}

// Allows reports whether programs may use the given instruction keyword.
func (p *Problem) Allows(keyword string) bool {
	_, ok := p.enabled[keyword]
	return ok
}

// EnabledKeywords returns the allowed keywords in opcode order.
func (p *Problem) EnabledKeywords() []string {
	var kws []string
	for _, kw := range Keywords() {
		if p.Allows(kw) {
			kws = append(kws, kw)
		}
	}
	return kws
}

// ---------------------------------------------------------------------------
// ProblemBuilder
// ---------------------------------------------------------------------------

// ProblemBuilder assembles a Problem. Memory defaults to size zero; slots
// seeded outside the declared size fail at Build.
type ProblemBuilder struct {
	ios     []IOCase
	slots   map[int]Value
	size    int
	enabled map[string]struct{}
}

// NewProblemBuilder creates an empty builder.
func NewProblemBuilder() *ProblemBuilder {
	return &ProblemBuilder{
		slots:   make(map[int]Value),
		enabled: make(map[string]struct{}),
	}
}

// AddIO appends an IO case.
func (b *ProblemBuilder) AddIO(input, output []Value) *ProblemBuilder {
	b.ios = append(b.ios, IOCase{
		Input:  append([]Value(nil), input...),
		Output: append([]Value(nil), output...),
	})
	return b
}

// MemorySize fixes the memory length.
func (b *ProblemBuilder) MemorySize(n int) *ProblemBuilder {
	b.size = n
	return b
}

// SetSlot seeds one memory cell of the template.
func (b *ProblemBuilder) SetSlot(i int, v Value) *ProblemBuilder {
	b.slots[i] = v
	return b
}

// EnableAll allows every instruction.
func (b *ProblemBuilder) EnableAll() *ProblemBuilder {
	for _, kw := range Keywords() {
		b.enabled[kw] = struct{}{}
	}
	return b
}

// Enable allows one instruction keyword. Unknown keywords are ignored;
// callers that need strictness check against Keywords first.
func (b *ProblemBuilder) Enable(keyword string) *ProblemBuilder {
	if _, ok := OpcodeForKeyword(keyword); ok {
		b.enabled[keyword] = struct{}{}
	}
	return b
}

// Disable forbids one instruction keyword.
func (b *ProblemBuilder) Disable(keyword string) *ProblemBuilder {
	delete(b.enabled, keyword)
	return b
}

// Build produces the problem. It fails when no IO case was added or a
// seeded slot lies outside the memory.
func (b *ProblemBuilder) Build() (*Problem, error) {
	if len(b.ios) == 0 {
		return nil, errors.New("problem: no io cases")
	}
	if b.size < 0 {
		return nil, fmt.Errorf("problem: negative memory size %d", b.size)
	}
	memory := make([]Value, b.size)
	for i, v := range b.slots {
		if i < 0 || i >= b.size {
			return nil, fmt.Errorf("problem: memory slot %d outside 0..%d", i, b.size)
		}
		memory[i] = v
	}
	enabled := make(map[string]struct{}, len(b.enabled))
	for kw := range b.enabled {
		enabled[kw] = struct{}{}
	}
	return &Problem{
		ios:     append([]IOCase(nil), b.ios...),
		memory:  memory,
		enabled: enabled,
	}, nil
}
