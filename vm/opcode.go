package vm

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
)

// Register is a register index relative to the activation record.
// Offsets and sizes share the same width.
type Register int8

// Opcode identifies an instruction variant.
type Opcode uint8

//go:generate go tool stringer -linecomment -type=Opcode
const (
	OP_NOP              = Opcode(0)  // Nop
	OP_DEBUG            = Opcode(1)  // Debug
	OP_LOAD_CONST       = Opcode(2)  // LoadConst
	OP_COPY             = Opcode(3)  // Copy
	OP_NOT              = Opcode(4)  // Not
	OP_NEGATE           = Opcode(5)  // Negate
	OP_LOAD_STRING      = Opcode(6)  // LoadString
	OP_LOAD_FUNCTION    = Opcode(7)  // LoadFunction
	OP_LOAD_RESULT      = Opcode(8)  // LoadResult
	OP_ARGUMENT         = Opcode(9)  // Argument
	OP_EXIT             = Opcode(10) // Exit
	OP_INVOKE_FUNCTION  = Opcode(11) // InvokeFunction
	OP_RETURN           = Opcode(12) // Return
	OP_JUMP_IF_NOT      = Opcode(13) // JumpIfNot
	OP_JUMP             = Opcode(14) // Jump
	OP_LOAD_MEMBER      = Opcode(15) // LoadMember
	OP_LOAD_ARRAY       = Opcode(16) // LoadArray
	OP_STORE_MEMBER     = Opcode(17) // StoreMember
	OP_STORE_ARRAY      = Opcode(18) // StoreArray
	OP_CREATE_STRUCT    = Opcode(19) // CreateStruct
	OP_CREATE_ENUM      = Opcode(20) // CreateEnumEntry
	OP_CREATE_CLOSURE   = Opcode(21) // CreateClosure
	OP_LOAD_ENUM_TYPE   = Opcode(22) // LoadEnumType
	OP_LOAD_ENUM_MEMBER = Opcode(23) // LoadEnumMember
	OP_COPY_ENUM_MEMBER = Opcode(24) // CopyEnumMember
	OP_THROW            = Opcode(25) // Throw
	OP_MATCH            = Opcode(26) // Match
	OP_ADD              = Opcode(27) // Add
	OP_SUBTRACT         = Opcode(28) // Subtract
	OP_MULTIPLY         = Opcode(29) // Multiply
	OP_DIVIDE           = Opcode(30) // Divide
	OP_OR               = Opcode(31) // Or
	OP_AND              = Opcode(32) // And
	OP_GREATER          = Opcode(33) // Greater
	OP_GREATER_EQ       = Opcode(34) // GreaterEq
	OP_SMALLER          = Opcode(35) // Smaller
	OP_SMALLER_EQ       = Opcode(36) // SmallerEq
	OP_EQUALS           = Opcode(37) // Equals
	OP_NON_EQUALS       = Opcode(38) // NonEquals
	OP_STRING_EQUALS    = Opcode(39) // StringEquals
	OP_STRING_NON_EQ    = Opcode(40) // StringNonEquals
	OP_CONCAT           = Opcode(41) // Concat

	opcodeCount = 42
)

// mnemonicMap maps mnemonics back to opcodes.
var mnemonicMap = func() map[string]Opcode {
	m := make(map[string]Opcode, opcodeCount)
	for op := range Opcode(opcodeCount) {
		m[op.String()] = op
	}
	return m
}()

// Mnemonics returns all known mnemonics, sorted.
func Mnemonics() []string {
	return slices.Sorted(maps.Keys(mnemonicMap))
}

// LookupOpcode returns the opcode for a mnemonic.
func LookupOpcode(mnemonic string) (op Opcode, ok bool) {
	op, ok = mnemonicMap[mnemonic]
	return
}

// Valid returns true for a member of the instruction set.
func (op Opcode) Valid() bool {
	return op < opcodeCount
}

// IsJump returns true if the opcode carries label targets.
func (op Opcode) IsJump() bool {
	return op == OP_JUMP || op == OP_JUMP_IF_NOT || op == OP_MATCH
}

// LABEL_UNRESOLVED is the address of a label before linking.
const LABEL_UNRESOLVED = int32(-1)

// Label is a jump target: the source label id and its resolved address.
type Label struct {
	Index   int32
	Address int32
}

// Resolved returns true once the linker has assigned an address.
func (label Label) Resolved() bool {
	return label.Address != LABEL_UNRESOLVED
}

// Instruction is one decoded instruction. Operand use depends on Op:
//
//	A, B, C   registers, offsets or sizes, in mnemonic order
//	Constant  LoadConst value, Exit code
//	Target    Jump, JumpIfNot and Match default target
//	Text      LoadString literal
//	Callable  LoadFunction target
//	Cases     Match tag to target table
type Instruction struct {
	Op       Opcode
	A, B, C  Register
	Constant float64
	Target   Label
	Text     string
	Callable *Callable
	Cases    map[int32]Label
}

func formatNumber(value float64) string {
	return strconv.FormatFloat(value, 'f', -1, 64)
}

// String returns the assembly representation of the instruction, with
// resolved label addresses appended.
func (in Instruction) String() string {
	var args []string
	regs := func(rs ...Register) {
		for _, r := range rs {
			args = append(args, strconv.Itoa(int(r)))
		}
	}
	target := func(label Label) string {
		if label.Resolved() {
			return fmt.Sprintf("%d@%d", label.Index, label.Address)
		}
		return strconv.Itoa(int(label.Index))
	}

	switch in.Op {
	case OP_NOP:
	case OP_DEBUG, OP_RETURN, OP_THROW, OP_LOAD_RESULT:
		regs(in.A)
	case OP_LOAD_CONST:
		regs(in.A)
		args = append(args, formatNumber(in.Constant))
	case OP_EXIT:
		args = append(args, formatNumber(in.Constant))
	case OP_LOAD_STRING:
		regs(in.A)
		args = append(args, strconv.Quote(in.Text))
	case OP_LOAD_FUNCTION:
		regs(in.A)
		name := ""
		if in.Callable != nil {
			name = in.Callable.Name
		}
		args = append(args, name)
	case OP_COPY, OP_NOT, OP_NEGATE, OP_ARGUMENT, OP_CREATE_STRUCT,
		OP_CREATE_CLOSURE, OP_LOAD_ENUM_TYPE, OP_INVOKE_FUNCTION:
		regs(in.A, in.B)
	case OP_JUMP:
		args = append(args, target(in.Target))
	case OP_JUMP_IF_NOT:
		regs(in.A)
		args = append(args, target(in.Target))
	case OP_MATCH:
		regs(in.A)
		args = append(args, target(in.Target))
		var cases []string
		for _, tag := range slices.Sorted(maps.Keys(in.Cases)) {
			cases = append(cases, fmt.Sprintf("%d:%v", tag, target(in.Cases[tag])))
		}
		args = append(args, strings.Join(cases, "|"))
	default:
		regs(in.A, in.B, in.C)
	}

	if len(args) == 0 {
		return in.Op.String() + ":"
	}
	return in.Op.String() + ": " + strings.Join(args, ", ")
}
