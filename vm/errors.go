package vm

import (
	"errors"
	"fmt"
)

// Runtime errors abort the current IO case and the whole run. They describe
// dynamic defects that validation cannot rule out statically.
var (
	// ErrEmptyAcc is returned when an instruction reads an empty accumulator.
	ErrEmptyAcc = errors.New("empty accumulator")

	// ErrEmptyMemory is returned when an instruction reads an empty memory cell.
	ErrEmptyMemory = errors.New("empty memory cell")

	// ErrIncompatibleTypes is returned for arithmetic on an undefined
	// Int/Char combination.
	ErrIncompatibleTypes = errors.New("incompatible value types")

	// ErrStepLimit is returned when a run exceeds its configured step cap.
	ErrStepLimit = errors.New("step limit exceeded")
)

// IndexError reports a resolved memory index outside the memory bounds.
type IndexError struct {
	Value Value
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("memory index %s out of range", e.Value)
}

// CharIndexError reports an indirect access through a cell holding a
// character.
type CharIndexError struct {
	Value Value
}

func (e *CharIndexError) Error() string {
	return fmt.Sprintf("character %s used as memory index", e.Value)
}

// IncorrectOutputError reports an Outbox value that does not match the
// expected output tape. Expected is empty when the tape was already
// exhausted.
type IncorrectOutputError struct {
	Expected Value
	Actual   Value
}

func (e *IncorrectOutputError) Error() string {
	if e.Expected.IsEmpty() {
		return fmt.Sprintf("incorrect output: produced %s but no more output was expected", e.Actual)
	}
	return fmt.Sprintf("incorrect output: expected %s, got %s", e.Expected, e.Actual)
}

// Validation errors describe static structural defects found before any
// execution. The first violation wins; validation never aggregates.

// NotAvailableError reports an instruction the problem does not allow.
type NotAvailableError struct {
	Keyword string
}

func (e *NotAvailableError) Error() string {
	return fmt.Sprintf("instruction %s is not available in this problem", e.Keyword)
}

// BadIndexError reports a static memory reference beyond the problem's
// memory.
type BadIndexError struct {
	Index int
}

func (e *BadIndexError) Error() string {
	return fmt.Sprintf("instruction references memory cell %d beyond the memory size", e.Index)
}

// MissingLabelError reports a jump to a label the program never declares.
type MissingLabelError struct {
	Label string
}

func (e *MissingLabelError) Error() string {
	return fmt.Sprintf("jump target %q is not declared", e.Label)
}

// BadLabelError reports a label bound past the end of the program.
type BadLabelError struct {
	Label string
	Index int
}

func (e *BadLabelError) Error() string {
	return fmt.Sprintf("label %q is bound to index %d beyond the program end", e.Label, e.Index)
}
