// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

// Package machine drives a program from source text to its exit code.
package machine

import (
	"context"
	"io"
	"iter"
	"maps"
	"os"
	"strconv"

	"github.com/tliron/commonlog"

	"github.com/ezrec/atic/asm"
	"github.com/ezrec/atic/config"
	"github.com/ezrec/atic/vm"
)

// logger is looked up on use; the backend is selected at startup.
func logger() commonlog.Logger {
	return commonlog.GetLogger("atic.machine")
}

const (
	CONTEXT_TICKS = 1024 // Ticks between checks for cancellation.
)

// Machine state. Parser + linker output + VM.
type Machine struct {
	Verbose bool           // If set, enables verbose logging.
	Config  *config.Config // Machine configuration.
	Program *vm.Program    // Currently loaded program.
	VM      *vm.VM         // Running VM, created by Reset.
	Output  io.Writer      // Debug output, stdout if nil.
}

// New creates a machine. A nil configuration uses the defaults.
func New(cfg *config.Config) (m *Machine) {
	if cfg == nil {
		cfg = config.Default()
	}

	m = &Machine{
		Verbose: cfg.Verbose,
		Config:  cfg,
		Output:  os.Stdout,
	}

	return
}

// Defines returns an iterator over the equates visible to programs.
func (m *Machine) Defines() iter.Seq2[string, string] {
	defines := map[string]string{
		"STACK_SIZE":       strconv.Itoa(m.Config.VM.StackSize),
		"CALL_STACK_SIZE":  strconv.Itoa(m.Config.VM.CallStackSize),
		"CALL_BUFFER_SIZE": strconv.Itoa(m.Config.VM.CallBufferSize),
		"FRAME_WORDS":      strconv.Itoa(vm.FRAME_WORDS),
	}
	return maps.All(defines)
}

// Load parses and links a program listing.
func (m *Machine) Load(input io.Reader) (err error) {
	parser := &asm.Parser{Verbose: m.Verbose}
	for name, value := range m.Defines() {
		parser.Predefine(name, value)
	}

	functions, err := parser.Parse(input)
	if err != nil {
		return
	}

	linker := &vm.Linker{Verbose: m.Verbose}
	prog, err := linker.Link(functions)
	if err != nil {
		return
	}

	if m.Verbose {
		logger().Infof("linked %d functions, %d instructions", len(prog.Functions), len(prog.Instructions))
	}

	m.Program = prog
	m.VM = nil

	return
}

// LoadEncoding restores a program saved with vm.Program.Encode.
func (m *Machine) LoadEncoding(input io.Reader) (err error) {
	data, err := io.ReadAll(input)
	if err != nil {
		return
	}

	prog, err := vm.Decode(data)
	if err != nil {
		return
	}

	if m.Verbose {
		logger().Infof("decoded %d functions, %d instructions", len(prog.Functions), len(prog.Instructions))
	}

	m.Program = prog
	m.VM = nil

	return
}

// Reset resolves the entry function and starts a fresh VM on it.
func (m *Machine) Reset() (err error) {
	m.VM = nil

	if m.Program == nil {
		err = ErrProgramMissing
		return
	}

	entry, err := m.Program.Lookup(m.Config.Entry)
	if err != nil {
		return
	}

	opts := m.Config.Options()
	opts.Output = m.Output
	opts.Verbose = m.Verbose

	m.VM = vm.New(m.Program.Instructions, opts)
	err = m.VM.Start(entry)
	if err != nil {
		m.VM = nil
	}

	return
}

// Function returns the name of the function holding the program counter.
func (m *Machine) Function() string {
	if m.VM == nil || m.Program == nil {
		return ""
	}

	dbg := m.Program.Debug(m.VM.Pc())
	if dbg.FunctionInfo == nil {
		return ""
	}

	return dbg.Name
}

// LineNo returns the source line of the function holding the program counter.
func (m *Machine) LineNo() int {
	if m.VM == nil || m.Program == nil {
		return 0
	}

	dbg := m.Program.Debug(m.VM.Pc())
	if dbg.FunctionInfo == nil {
		return 0
	}

	return dbg.LineNo
}

// Ticks returns the total ticks since a reset.
func (m *Machine) Ticks() int64 {
	if m.VM == nil {
		return 0
	}
	return m.VM.Ticks()
}

// ExitCode returns the exit code of a halted program.
func (m *Machine) ExitCode() float64 {
	if m.VM == nil {
		return 0
	}
	return m.VM.ExitCode()
}

// Tick performs a single tick of the machine.
func (m *Machine) Tick() (done bool, err error) {
	if m.VM == nil {
		err = ErrNotStarted
		return
	}

	if !m.VM.Running() {
		done = true
		return
	}

	pc := m.VM.Pc()
	function := m.Function()
	defer func() {
		if err != nil {
			err = &ErrRuntime{Function: function, Pc: pc, Err: err}
		}
	}()

	m.VM.Verbose = m.Verbose

	err = m.VM.Tick()
	if err != nil {
		return
	}

	done = !m.VM.Running()

	return
}

// Run ticks until the program exits, fails, or ctx is done.
func (m *Machine) Run(ctx context.Context) (err error) {
	for n := 0; ; n++ {
		if n%CONTEXT_TICKS == 0 {
			err = ctx.Err()
			if err != nil {
				return
			}
		}

		var done bool
		done, err = m.Tick()
		if err != nil || done {
			return
		}
	}
}
