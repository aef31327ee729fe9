package machine

import (
	"errors"

	"github.com/ezrec/atic/translate"
)

var f = translate.From

var (
	ErrProgramMissing = errors.New(f("no program loaded"))
	ErrNotStarted     = errors.New(f("machine not reset"))
)

// ErrRuntime indicates the location of a runtime error.
type ErrRuntime struct {
	Function string
	Pc       int
	Err      error
}

func (err *ErrRuntime) Error() string {
	return f("fn %v pc %v %v", err.Function, err.Pc, err.Err)
}

func (err *ErrRuntime) Unwrap() error {
	return err.Err
}
