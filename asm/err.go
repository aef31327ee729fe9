package asm

import (
	"errors"

	"github.com/ezrec/atic/translate"
)

var f = translate.From

var (
	ErrHeaderInvalid    = errors.New(f("function header invalid"))
	ErrRegistersMissing = errors.New(f("Missing \"registers\" parameter"))
	ErrParamsMissing    = errors.New(f("Missing \"params\" parameter"))
	ErrEndMissing       = errors.New(f("Missing \"end\" parameter"))
	ErrParamsExpected   = errors.New(f("Expected \"params\" parameter"))
	ErrEndExpected      = errors.New(f("Expected \"end\" parameter"))
	ErrRegistersNumber  = errors.New(f("Cant parse register argument as number"))
	ErrParamsNumber     = errors.New(f("Cant parse params argument as number"))
	ErrDefineSyntax     = errors.New(f("define syntax"))
	ErrDefineDuplicate  = errors.New(f("define duplicated"))
	ErrStringOpen       = errors.New(f("unterminated string"))
)

// ErrRegistersExpected reports a line found where the "registers"
// declaration was required.
type ErrRegistersExpected string

func (err ErrRegistersExpected) Error() string {
	return f("Expected \"registers\" parameter, but got %v", string(err))
}

// ErrParseExpression reports a $(...) operand that does not evaluate to a number.
type ErrParseExpression string

func (err ErrParseExpression) Error() string {
	return f("$(%v) is not a valid expression", string(err))
}

// ErrSyntax locates a parse failure in the input.
type ErrSyntax struct {
	LineNo int
	Line   string
	Err    error
}

func (err *ErrSyntax) Error() string {
	return f("line %v '%v' %v", err.LineNo, err.Line, err.Err)
}

func (err *ErrSyntax) Unwrap() error {
	return err.Err
}
