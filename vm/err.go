package vm

import (
	"errors"

	"github.com/ezrec/atic/translate"
)

var f = translate.From

var (
	// Execution errors
	ErrHalted            = errors.New(f("vm halted"))
	ErrPcRange           = errors.New(f("pc out of range"))
	ErrStackOverflow     = errors.New(f("stack overflow"))
	ErrCallStackOverflow = errors.New(f("call stack overflow"))
	ErrCallStackEmpty    = errors.New(f("call stack empty"))
	ErrIndexRange        = errors.New(f("index out of range"))
	ErrCallBufferRange   = errors.New(f("call buffer offset out of range"))
	ErrArgsRange         = errors.New(f("arguments exceed the activation record"))
	ErrNotImplemented    = errors.New(f("Instruction not implemented"))

	// Link errors
	ErrLabelInvalid      = errors.New(f("label is not a number"))
	ErrLabelDuplicate    = errors.New(f("label duplicated"))
	ErrMatchSyntax       = errors.New(f("match table syntax"))
	ErrFunctionDuplicate = errors.New(f("function duplicated"))
	ErrFunctionEmpty     = errors.New(f("function has no instructions"))

	// Program encoding errors
	ErrEncodingVersion = errors.New(f("program encoding version"))
	ErrEncodingRange   = errors.New(f("program encoding address out of range"))
)

// ErrMnemonic reports an unknown instruction mnemonic.
type ErrMnemonic string

func (err ErrMnemonic) Error() string {
	return f("Unknown cmd %v", string(err))
}

// ErrLabelMissing reports a jump to a label the function never defines.
type ErrLabelMissing int32

func (err ErrLabelMissing) Error() string {
	return f("Cant find Adress of Label %v", int(err))
}

// ErrLabelRange reports a jump to a label placed after the last
// instruction of its function.
type ErrLabelRange int32

func (err ErrLabelRange) Error() string {
	return f("Label %v has no instruction", int(err))
}

// ErrFunctionMissing reports a reference to an unknown function.
type ErrFunctionMissing string

func (err ErrFunctionMissing) Error() string {
	return f("Cant find function %v", string(err))
}

// ErrRegisterRange reports a register outside of the activation record.
type ErrRegisterRange Register

func (err ErrRegisterRange) Error() string {
	return f("register %v out of range", int(err))
}

// ErrValueKind reports a register read with a view it does not hold.
type ErrValueKind struct {
	Want ValueKind
	Got  ValueKind
}

func (err *ErrValueKind) Error() string {
	return f("expected %v value, found %v", err.Want.String(), err.Got.String())
}

// ErrThrow carries a value raised by Throw.
type ErrThrow struct {
	Value Value
}

func (err *ErrThrow) Error() string {
	return f("uncaught throw of %v", err.Value.String())
}

// ErrOpcode identifies the instruction that failed.
type ErrOpcode Instruction

func (eo ErrOpcode) Error() string {
	return f("bad instruction %v", Instruction(eo).String())
}

func (eo ErrOpcode) Is(err error) (ok bool) {
	_, ok = err.(ErrOpcode)
	return
}

// ErrLink locates a link failure.
type ErrLink struct {
	Function string
	LineNo   int
	Err      error
}

func (err *ErrLink) Error() string {
	return f("fn %v line %v %v", err.Function, err.LineNo, err.Err)
}

func (err *ErrLink) Unwrap() error {
	return err.Err
}
