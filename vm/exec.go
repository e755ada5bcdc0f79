package vm

// Per-opcode execute and next functions. Execute mutates state without
// touching the program counter; next computes the following instruction
// index. The run loop in program.go drives both.

func execNop(in Instruction, st *State) error { return nil }

// execReadAcc only checks the accumulator; conditional jumps fail on an
// empty accumulator even when they would fall through.
func execReadAcc(in Instruction, st *State) error {
	_, err := st.readAcc()
	return err
}

func execInbox(in Instruction, st *State) error {
	if !st.HasInput() {
		// The run loop halts before executing an Inbox on an empty
		// tape; tolerate the call anyway.
		return nil
	}
	st.Acc = st.Input[st.In]
	st.In++
	return nil
}

func execOutbox(in Instruction, st *State) error {
	v, err := st.readAcc()
	if err != nil {
		return err
	}
	log.Debugf("outbox produced %s", v)
	if st.Out == len(st.Expected) {
		return &IncorrectOutputError{Actual: v}
	}
	if !v.Equal(st.Expected[st.Out]) {
		return &IncorrectOutputError{Expected: st.Expected[st.Out], Actual: v}
	}
	st.Out++
	return nil
}

func execCopyFrom(in Instruction, st *State) error {
	i, err := st.resolve(in.Operand)
	if err != nil {
		return err
	}
	v, err := st.load(i)
	if err != nil {
		return err
	}
	st.Acc = v
	return nil
}

func execCopyTo(in Instruction, st *State) error {
	v, err := st.readAcc()
	if err != nil {
		return err
	}
	i, err := st.resolve(in.Operand)
	if err != nil {
		return err
	}
	st.Memory[i] = v
	return nil
}

func execAdd(in Instruction, st *State) error {
	return execArith(in, st, Value.Add)
}

func execSub(in Instruction, st *State) error {
	return execArith(in, st, Value.Sub)
}

func execArith(in Instruction, st *State, apply func(Value, Value) (Value, error)) error {
	acc, err := st.readAcc()
	if err != nil {
		return err
	}
	i, err := st.resolve(in.Operand)
	if err != nil {
		return err
	}
	m, err := st.load(i)
	if err != nil {
		return err
	}
	result, err := apply(acc, m)
	if err != nil {
		return err
	}
	st.Acc = result
	return nil
}

func execBumpUp(in Instruction, st *State) error {
	return execBump(in, st, Value.Add)
}

func execBumpDown(in Instruction, st *State) error {
	return execBump(in, st, Value.Sub)
}

// execBump adjusts a memory cell by one and mirrors the new value into the
// accumulator. A Char cell cannot be bumped.
func execBump(in Instruction, st *State, apply func(Value, Value) (Value, error)) error {
	i, err := st.resolve(in.Operand)
	if err != nil {
		return err
	}
	m, err := st.load(i)
	if err != nil {
		return err
	}
	bumped, err := apply(m, Int(1))
	if err != nil {
		return err
	}
	st.Memory[i] = bumped
	st.Acc = bumped
	return nil
}

func nextSequential(in Instruction, p *Program, st *State) (int, error) {
	return st.PC + 1, nil
}

func nextJump(in Instruction, p *Program, st *State) (int, error) {
	return p.labelIndex(in.Label)
}

func nextJumpZero(in Instruction, p *Program, st *State) (int, error) {
	if st.Acc.IsZero() {
		return p.labelIndex(in.Label)
	}
	return st.PC + 1, nil
}

func nextJumpNegative(in Instruction, p *Program, st *State) (int, error) {
	if st.Acc.IsNegative() {
		return p.labelIndex(in.Label)
	}
	return st.PC + 1, nil
}
