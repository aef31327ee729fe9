// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package vm

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/ezrec/atic/asm"
)

// linkLogger is looked up on use; the backend is selected at startup.
func linkLogger() commonlog.Logger {
	return commonlog.GetLogger("atic.linker")
}

// Linker translates parsed function bodies into one instruction stream.
type Linker struct {
	Verbose      bool          // If set, logs every linked instruction.
	Instructions []Instruction // Linked instruction stream.
}

// number parses an operand permissively: anything that is not a number is 0.
// Overflow keeps the infinity.
func number(word string) float64 {
	value, err := strconv.ParseFloat(word, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	return value
}

// register truncates an operand to a register index, saturating at the
// int8 limits.
func register(word string) Register {
	value := number(word)
	switch {
	case math.IsNaN(value):
		return 0
	case value >= math.MaxInt8:
		return math.MaxInt8
	case value <= math.MinInt8:
		return math.MinInt8
	}
	return Register(value)
}

// labelIndex truncates an operand to a label id.
func labelIndex(word string) int32 {
	value := number(word)
	switch {
	case math.IsNaN(value):
		return 0
	case value >= math.MaxInt32:
		return math.MaxInt32
	case value <= math.MinInt32:
		return math.MinInt32
	}
	return int32(value)
}

// unescape decodes the escapes kept by the parser inside string literals.
func unescape(text string) string {
	if !strings.Contains(text, "\\") {
		return text
	}

	var sb strings.Builder
	runes := []rune(text)
	for n := 0; n < len(runes); n++ {
		c := runes[n]
		if c != '\\' || n+1 == len(runes) {
			sb.WriteRune(c)
			continue
		}
		n++
		switch runes[n] {
		case 'n':
			sb.WriteRune('\n')
		case 't':
			sb.WriteRune('\t')
		case 'r':
			sb.WriteRune('\r')
		case '0':
			sb.WriteRune(0)
		default:
			sb.WriteRune(runes[n])
		}
	}
	return sb.String()
}

// matchCases parses a Match table: tag:label pairs separated by '|'.
func matchCases(text string) (cases map[int32]Label, err error) {
	if len(text) == 0 {
		return
	}

	cases = map[int32]Label{}

	for _, pair := range strings.Split(text, "|") {
		tag, label, ok := strings.Cut(pair, ":")
		if !ok {
			err = ErrMatchSyntax
			return
		}
		cases[labelIndex(tag)] = Label{Index: labelIndex(label), Address: LABEL_UNRESOLVED}
	}

	return
}

// decode selects the instruction variant for a mnemonic and coerces its operands.
func decode(entry asm.Entry) (in Instruction, err error) {
	op, ok := mnemonicMap[entry.Name]
	if !ok {
		err = ErrMnemonic(entry.Name)
		return
	}

	param := func(n int) string {
		if n < len(entry.Params) {
			return entry.Params[n]
		}
		return ""
	}
	target := func(n int) Label {
		return Label{Index: labelIndex(param(n)), Address: LABEL_UNRESOLVED}
	}

	in.Op = op

	switch op {
	case OP_NOP:
	case OP_DEBUG, OP_RETURN, OP_THROW, OP_LOAD_RESULT:
		in.A = register(param(0))
	case OP_LOAD_CONST:
		in.A = register(param(0))
		in.Constant = number(param(1))
	case OP_EXIT:
		in.Constant = number(param(0))
	case OP_LOAD_STRING:
		in.A = register(param(0))
		in.Text = unescape(param(1))
	case OP_LOAD_FUNCTION:
		in.A = register(param(0))
		in.Callable = &Callable{Name: param(1), Address: LABEL_UNRESOLVED}
	case OP_COPY, OP_NOT, OP_NEGATE, OP_ARGUMENT, OP_CREATE_STRUCT,
		OP_CREATE_CLOSURE, OP_LOAD_ENUM_TYPE, OP_INVOKE_FUNCTION:
		in.A = register(param(0))
		in.B = register(param(1))
	case OP_JUMP:
		in.Target = target(0)
	case OP_JUMP_IF_NOT:
		in.A = register(param(0))
		in.Target = target(1)
	case OP_MATCH:
		in.A = register(param(0))
		in.Target = target(1)
		in.Cases, err = matchCases(param(2))
	default:
		in.A = register(param(0))
		in.B = register(param(1))
		in.C = register(param(2))
	}

	return
}

// FeedInstructions links the entries of one function and appends them to
// the instruction stream. It returns the callables the function refers
// to by name; they are resolved by Finalize.
//
// Labels are resolved in two passes: the first collects every label
// address and decodes the instructions, the second patches the jump
// targets. Nothing is appended if the function fails to link.
func (lk *Linker) FeedInstructions(entries []asm.Entry) (callables []*Callable, err error) {
	var lineno int
	defer func() {
		if err != nil {
			err = &ErrLink{LineNo: lineno, Err: err}
		}
	}()

	labels := map[int32]int32{}
	var local []Instruction
	var lines []int

	for _, entry := range entries {
		lineno = entry.LineNo
		index := int32(len(lk.Instructions) + len(local))

		switch entry.Kind {
		case asm.ENTRY_LABEL:
			if _, perr := strconv.ParseFloat(entry.Label, 64); perr != nil {
				err = ErrLabelInvalid
				return
			}
			key := labelIndex(entry.Label)
			if _, ok := labels[key]; ok {
				err = ErrLabelDuplicate
				return
			}
			labels[key] = index
		case asm.ENTRY_INSTRUCTION:
			var in Instruction
			in, err = decode(entry)
			if err != nil {
				return
			}
			if in.Callable != nil {
				callables = append(callables, in.Callable)
			}
			local = append(local, in)
			lines = append(lines, entry.LineNo)
		}
	}

	end := int32(len(lk.Instructions) + len(local))
	resolve := func(label *Label) (err error) {
		address, ok := labels[label.Index]
		if !ok {
			return ErrLabelMissing(label.Index)
		}
		// A label after the last instruction has nothing to jump to.
		if address >= end {
			return ErrLabelRange(label.Index)
		}
		label.Address = address
		return
	}

	for n := range local {
		in := &local[n]
		lineno = lines[n]

		if !in.Op.IsJump() {
			continue
		}

		err = resolve(&in.Target)
		if err != nil {
			return
		}

		for tag, label := range in.Cases {
			err = resolve(&label)
			if err != nil {
				return
			}
			in.Cases[tag] = label
		}
	}

	if lk.Verbose {
		base := len(lk.Instructions)
		for n, in := range local {
			linkLogger().Debugf("%04d: %v", base+n, in)
		}
	}

	lk.Instructions = append(lk.Instructions, local...)

	return
}

// Finalize fills in every referenced callable from the function table
// and returns the name indexed callable table for all functions.
func (lk *Linker) Finalize(functions []*asm.Function, callables []*Callable) (table map[string]*Callable, err error) {
	byName := make(map[string]*asm.Function, len(functions))
	table = make(map[string]*Callable, len(functions))

	for _, fn := range functions {
		if _, ok := byName[fn.Name]; ok {
			err = &ErrLink{Function: fn.Name, LineNo: fn.LineNo, Err: ErrFunctionDuplicate}
			return
		}
		byName[fn.Name] = fn
		table[fn.Name] = &Callable{
			Name:      fn.Name,
			Address:   fn.Address,
			Args:      fn.Args,
			Registers: fn.Registers,
		}
	}

	for _, callable := range callables {
		fn, ok := byName[callable.Name]
		if !ok {
			err = ErrFunctionMissing(callable.Name)
			return
		}
		callable.Address = fn.Address
		callable.Args = fn.Args
		callable.Registers = fn.Registers
	}

	return
}

// Link lays out every function, links it, and finalizes the callable table.
func (lk *Linker) Link(functions []*asm.Function) (prog *Program, err error) {
	var callables []*Callable
	var infos []FunctionInfo

	for _, fn := range functions {
		fn.Address = int32(len(lk.Instructions))

		var referenced []*Callable
		referenced, err = lk.FeedInstructions(fn.Entries)
		if err != nil {
			var le *ErrLink
			if errors.As(err, &le) {
				le.Function = fn.Name
			}
			return
		}

		size := len(lk.Instructions) - int(fn.Address)
		if size == 0 {
			err = &ErrLink{Function: fn.Name, LineNo: fn.LineNo, Err: ErrFunctionEmpty}
			return
		}

		if lk.Verbose {
			linkLogger().Debugf("fn %v @%d: %d instructions, %d callables",
				fn.Name, fn.Address, size, len(referenced))
		}

		callables = append(callables, referenced...)
		infos = append(infos, FunctionInfo{
			Name:      fn.Name,
			Address:   fn.Address,
			Size:      int32(size),
			Args:      fn.Args,
			Registers: fn.Registers,
			LineNo:    fn.LineNo,
		})
	}

	table, err := lk.Finalize(functions, callables)
	if err != nil {
		return
	}

	prog = &Program{
		Instructions: lk.Instructions,
		Callables:    table,
		Functions:    infos,
	}

	return
}
