package vm

// ---------------------------------------------------------------------------
// State: per-case machine state
// ---------------------------------------------------------------------------

// State is the mutable execution context for a single IO case: the tapes
// and their cursors, memory, the accumulator, the program counter and a
// step counter. A State is created fresh per IO case and discarded after.
type State struct {
	Input    []Value
	Expected []Value
	Memory   []Value
	Acc      Value

	In    int // input cursor
	Out   int // output cursor
	PC    int
	Steps int
}

// NewState creates a machine state over the given tapes and memory image.
// The memory slice is owned by the state afterwards.
func NewState(input, expected, memory []Value) *State {
	return &State{
		Input:    input,
		Expected: expected,
		Memory:   memory,
	}
}

// HasInput reports whether the input tape has values left. This is a pure
// function of the cursors; no instruction remembers end-of-input on its
// own.
func (st *State) HasInput() bool { return st.In < len(st.Input) }

// readAcc returns the accumulator, or ErrEmptyAcc when it is empty.
func (st *State) readAcc() (Value, error) {
	if st.Acc.IsEmpty() {
		return Value{}, ErrEmptyAcc
	}
	return st.Acc, nil
}

// load reads memory cell i, which must be in bounds, and fails with
// ErrEmptyMemory when the cell is empty.
func (st *State) load(i int) (Value, error) {
	v := st.Memory[i]
	if v.IsEmpty() {
		return Value{}, ErrEmptyMemory
	}
	return v, nil
}

// resolve turns an operand into a concrete memory index. The written index
// must be in bounds; for Indirect the referenced cell must hold an Int
// that is itself in bounds.
func (st *State) resolve(op Operand) (int, error) {
	idx := op.Index
	if idx < 0 || idx >= len(st.Memory) {
		return 0, &IndexError{Value: Int(int32(idx))}
	}
	if op.Mode == Direct {
		return idx, nil
	}
	cell := st.Memory[idx]
	switch {
	case cell.IsEmpty():
		return 0, ErrEmptyMemory
	case cell.IsChar():
		return 0, &CharIndexError{Value: cell}
	}
	target := int(cell.IntVal())
	if target < 0 || target >= len(st.Memory) {
		return 0, &IndexError{Value: cell}
	}
	return target, nil
}
