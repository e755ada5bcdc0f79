package vm

import (
	"errors"
	"testing"
)

func mustProblem(t *testing.T, b *ProblemBuilder) *Problem {
	t.Helper()
	p, err := b.Build()
	if err != nil {
		t.Fatalf("Build returned error: %v", err)
	}
	return p
}

func passThrough() *Program {
	return NewProgramBuilder().
		Add(Instruction{Op: OpInbox}).
		Add(Instruction{Op: OpOutbox}).
		Build()
}

func passThroughLoop() *Program {
	return NewProgramBuilder().
		Label("start").
		Add(Instruction{Op: OpInbox}).
		Add(Instruction{Op: OpOutbox}).
		Add(Instruction{Op: OpJump, Label: "start"}).
		Build()
}

// ---------------------------------------------------------------------------
// Validate
// ---------------------------------------------------------------------------

func TestValidate_AllowedProgram(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		EnableAll())

	if err := passThroughLoop().Validate(prob); err != nil {
		t.Errorf("Validate returned error: %v", err)
	}
}

func TestValidate_DisallowedInstruction(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		Enable("INBOX"))

	err := passThrough().Validate(prob)
	var notAvailable *NotAvailableError
	if !errors.As(err, &notAvailable) {
		t.Fatalf("Validate error = %v, want NotAvailableError", err)
	}
	if notAvailable.Keyword != "OUTBOX" {
		t.Errorf("offending keyword = %q, want OUTBOX", notAvailable.Keyword)
	}
}

func TestValidate_MemoryReferenceOutOfBounds(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		MemorySize(2).
		EnableAll())

	for _, mode := range []AddressMode{Direct, Indirect} {
		p := NewProgramBuilder().
			Add(Instruction{Op: OpCopyTo, Operand: Operand{Mode: mode, Index: 2}}).
			Build()

		err := p.Validate(prob)
		var badIndex *BadIndexError
		if !errors.As(err, &badIndex) {
			t.Fatalf("mode %d: Validate error = %v, want BadIndexError", mode, err)
		}
		if badIndex.Index != 2 {
			t.Errorf("mode %d: offending index = %d, want 2", mode, badIndex.Index)
		}
	}
}

func TestValidate_ZeroMemoryRejectsAnyReference(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		EnableAll())

	p := NewProgramBuilder().
		Add(Instruction{Op: OpBumpDown, Operand: Operand{Index: 0}}).
		Build()

	var badIndex *BadIndexError
	if err := p.Validate(prob); !errors.As(err, &badIndex) {
		t.Errorf("Validate error = %v, want BadIndexError", err)
	}
}

func TestValidate_MissingLabel(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		EnableAll())

	p := NewProgramBuilder().
		Add(Instruction{Op: OpJump, Label: "nowhere"}).
		Build()

	var missing *MissingLabelError
	if err := p.Validate(prob); !errors.As(err, &missing) {
		t.Fatalf("Validate error = %v, want MissingLabelError", err)
	}
	if missing.Label != "nowhere" {
		t.Errorf("offending label = %q, want nowhere", missing.Label)
	}
}

func TestValidate_TrailingLabelIsLegal(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		EnableAll())

	// A label bound just past the last instruction is a legal jump
	// target: jumping there ends the run.
	p := NewProgramBuilder().
		Add(Instruction{Op: OpInbox}).
		Add(Instruction{Op: OpOutbox}).
		Add(Instruction{Op: OpJump, Label: "done"}).
		Label("done").
		Build()

	if err := p.Validate(prob); err != nil {
		t.Errorf("Validate returned error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Run: scoring
// ---------------------------------------------------------------------------

func TestRun_CopyAndOutput(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(5)}, []Value{Int(5)}).
		EnableAll())

	score, err := passThrough().Run(prob)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if score.Size != 2 {
		t.Errorf("size = %d, want 2", score.Size)
	}
	// The Inbox that drained the tape is not charged.
	if score.StepsMin != 1 || score.StepsMax != 1 {
		t.Errorf("steps = %d/%d, want 1/1", score.StepsMin, score.StepsMax)
	}
}

func TestRun_LoopUntilInputExhausted(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1), Int(9), Int(4)}, []Value{Int(1), Int(9), Int(4)}).
		EnableAll())

	score, err := passThroughLoop().Run(prob)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if score.Size != 3 {
		t.Errorf("size = %d, want 3", score.Size)
	}
	// Three INBOX/OUTBOX/JUMP rounds, minus the uncharged final drain.
	if score.StepsMax != 8 {
		t.Errorf("steps = %d, want 8", score.StepsMax)
	}
}

func TestRun_ScoreAcrossCases(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		AddIO([]Value{Int(1), Int(2), Int(3)}, []Value{Int(1), Int(2), Int(3)}).
		EnableAll())

	score, err := passThroughLoop().Run(prob)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if score.StepsMin != 2 {
		t.Errorf("steps min = %d, want 2", score.StepsMin)
	}
	if score.StepsMax != 8 {
		t.Errorf("steps max = %d, want 8", score.StepsMax)
	}
	if score.StepsAvg != 5 {
		t.Errorf("steps avg = %v, want 5", score.StepsAvg)
	}
}

func TestRun_EmptyInputTakesNoSteps(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO(nil, nil).
		EnableAll())

	score, err := passThroughLoop().Run(prob)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if score.StepsMax != 0 {
		t.Errorf("steps = %d, want 0", score.StepsMax)
	}
}

// ---------------------------------------------------------------------------
// Run: failures
// ---------------------------------------------------------------------------

func TestRun_IncorrectOutput(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(3)}, []Value{Int(4)}).
		EnableAll())

	_, err := passThrough().Run(prob)
	var incorrect *IncorrectOutputError
	if !errors.As(err, &incorrect) {
		t.Fatalf("Run error = %v, want IncorrectOutputError", err)
	}
	if !incorrect.Expected.Equal(Int(4)) || !incorrect.Actual.Equal(Int(3)) {
		t.Errorf("error = %v, want expected 4 actual 3", incorrect)
	}
}

func TestRun_FirstFailingCaseAborts(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		AddIO([]Value{Int(2)}, []Value{Int(99)}).
		AddIO([]Value{Int(3)}, []Value{Int(3)}).
		EnableAll())

	_, err := passThroughLoop().Run(prob)
	if err == nil {
		t.Fatal("Run should fail on the second case")
	}
	var incorrect *IncorrectOutputError
	if !errors.As(err, &incorrect) {
		t.Fatalf("Run error = %v, want IncorrectOutputError", err)
	}
}

func TestRun_StepLimit(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO(nil, nil).
		EnableAll())

	p := NewProgramBuilder().
		Label("spin").
		Add(Instruction{Op: OpJump, Label: "spin"}).
		Build()

	_, err := p.Run(prob, WithStepLimit(100))
	if !errors.Is(err, ErrStepLimit) {
		t.Errorf("Run error = %v, want ErrStepLimit", err)
	}
}

func TestRun_MemoryTemplateFreshPerCase(t *testing.T) {
	// The program increments slot 0 once per case; a shared template
	// would leak the bump into the next case.
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		AddIO([]Value{Int(1)}, []Value{Int(1)}).
		MemorySize(1).
		SetSlot(0, Int(0)).
		EnableAll())

	p := NewProgramBuilder().
		Add(Instruction{Op: OpBumpUp, Operand: Operand{Index: 0}}).
		Add(Instruction{Op: OpInbox}).
		Add(Instruction{Op: OpOutbox}).
		Build()

	if _, err := p.Run(prob); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if !prob.MemoryTemplate()[0].Equal(Int(0)) {
		t.Errorf("memory template mutated to %s", prob.MemoryTemplate()[0])
	}
}

func TestRun_Deterministic(t *testing.T) {
	prob := mustProblem(t, NewProblemBuilder().
		AddIO([]Value{Int(1), Int(2)}, []Value{Int(1), Int(2)}).
		EnableAll())

	p := passThroughLoop()
	first, err1 := p.Run(prob)
	second, err2 := p.Run(prob)
	if err1 != nil || err2 != nil {
		t.Fatalf("Run returned errors: %v, %v", err1, err2)
	}
	if first != second {
		t.Errorf("scores differ: %+v vs %+v", first, second)
	}
}
