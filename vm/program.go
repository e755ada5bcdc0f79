package vm

import (
	"fmt"
	"sort"

	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("machina.vm")

// ---------------------------------------------------------------------------
// Program: an ordered, label-resolved instruction sequence
// ---------------------------------------------------------------------------

// Program is an immutable compiled program: the instruction sequence plus
// the label table mapping each label to the index of the instruction
// following its declaration. A program must pass Validate against a
// problem before Run can be trusted to stay inside that problem's bounds.
type Program struct {
	instructions []Instruction
	labels       map[string]int
}

// ProgramBuilder accumulates instructions and labels in source order.
type ProgramBuilder struct {
	instructions []Instruction
	labels       map[string]int
}

// NewProgramBuilder creates an empty builder.
func NewProgramBuilder() *ProgramBuilder {
	return &ProgramBuilder{labels: make(map[string]int)}
}

// Add appends an instruction.
func (b *ProgramBuilder) Add(in Instruction) *ProgramBuilder {
	b.instructions = append(b.instructions, in)
	return b
}

// Label binds a label to the index of the next added instruction. A
// redeclared label keeps its last binding.
func (b *ProgramBuilder) Label(name string) *ProgramBuilder {
	b.labels[name] = len(b.instructions)
	return b
}

// Build produces the program.
func (b *ProgramBuilder) Build() *Program {
	labels := make(map[string]int, len(b.labels))
	for name, idx := range b.labels {
		labels[name] = idx
	}
	return &Program{
		instructions: append([]Instruction(nil), b.instructions...),
		labels:       labels,
	}
}

// Size returns the instruction count.
func (p *Program) Size() int { return len(p.instructions) }

// Instructions returns a copy of the instruction sequence.
func (p *Program) Instructions() []Instruction {
	return append([]Instruction(nil), p.instructions...)
}

// Labels returns a copy of the label table.
func (p *Program) Labels() map[string]int {
	labels := make(map[string]int, len(p.labels))
	for name, idx := range p.labels {
		labels[name] = idx
	}
	return labels
}

func (p *Program) labelIndex(name string) (int, error) {
	idx, ok := p.labels[name]
	if !ok {
		// Validate rules this out; reaching it means the program was
		// run unvalidated.
		return 0, &MissingLabelError{Label: name}
	}
	return idx, nil
}

// Validate checks the program against a problem's static constraints:
// every instruction must be enabled, every static memory reference must be
// inside the problem's memory, every jump target must be declared, and
// every label must be bound inside the program. The first violation found
// is returned.
func (p *Program) Validate(problem *Problem) error {
	for _, in := range p.instructions {
		if !problem.Allows(in.Keyword()) {
			return &NotAvailableError{Keyword: in.Keyword()}
		}
		if idx, ok := in.StaticIndex(); ok && idx >= problem.MemorySize() {
			return &BadIndexError{Index: idx}
		}
		if label, ok := in.LabelRef(); ok {
			if _, declared := p.labels[label]; !declared {
				return &MissingLabelError{Label: label}
			}
		}
	}

	// Deterministic order: the label table is a map.
	names := make([]string, 0, len(p.labels))
	for name := range p.labels {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if idx := p.labels[name]; idx > len(p.instructions) {
			return &BadLabelError{Label: name, Index: idx}
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Run
// ---------------------------------------------------------------------------

// Score is the performance result of a successful run: program size and
// step statistics across the problem's IO cases.
type Score struct {
	Size     int
	StepsMin int
	StepsMax int
	StepsAvg float64
}

func (s Score) String() string {
	return fmt.Sprintf("size %d, steps min %d / max %d / avg %.1f",
		s.Size, s.StepsMin, s.StepsMax, s.StepsAvg)
}

// RunOption configures a run.
type RunOption func(*runConfig)

type runConfig struct {
	maxSteps int
}

// WithStepLimit caps the steps a single IO case may take; exceeding it
// aborts the run with ErrStepLimit. Zero means unlimited, which is the
// default: a program with a non-terminating jump cycle runs forever.
func WithStepLimit(n int) RunOption {
	return func(c *runConfig) { c.maxSteps = n }
}

// Run executes the program against every IO case of the problem, each with
// a fresh copy of the problem's memory template and fresh machine state.
// The first runtime error aborts the whole run; there is no partial
// scoring. Run does not mutate the program or the problem.
func (p *Program) Run(problem *Problem, opts ...RunOption) (Score, error) {
	var cfg runConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	score := Score{Size: len(p.instructions)}
	total := 0
	for i, io := range problem.IOCases() {
		st := NewState(io.Input, io.Output, problem.MemoryTemplate())
		if err := p.runCase(st, cfg); err != nil {
			return Score{}, fmt.Errorf("io case %d: %w", i, err)
		}
		log.Debugf("io case %d finished in %d steps", i, st.Steps)
		if i == 0 || st.Steps < score.StepsMin {
			score.StepsMin = st.Steps
		}
		if st.Steps > score.StepsMax {
			score.StepsMax = st.Steps
		}
		total += st.Steps
	}
	score.StepsAvg = float64(total) / float64(len(problem.IOCases()))
	return score, nil
}

// runCase drives the fetch-decode-execute loop for one IO case.
func (p *Program) runCase(st *State, cfg runConfig) error {
	for st.PC < len(p.instructions) {
		in := p.instructions[st.PC]

		// An Inbox facing an empty tape ends the run; its step is
		// never charged.
		if in.Op == OpInbox && !st.HasInput() {
			break
		}

		if err := opTable[in.Op].execute(in, st); err != nil {
			return err
		}
		st.Steps++
		if cfg.maxSteps > 0 && st.Steps > cfg.maxSteps {
			return ErrStepLimit
		}

		next, err := opTable[in.Op].next(in, p, st)
		if err != nil {
			return err
		}
		st.PC = next
	}

	// The Inbox step that drained the input tape is not charged either:
	// a run that consumed its whole input ends one step cheaper.
	if len(st.Input) > 0 && st.In == len(st.Input) && st.Steps > 0 {
		st.Steps--
	}
	return nil
}
