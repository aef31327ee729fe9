// Copyright 2024, Jason S. McMullan <jason.mcmullan@gmail.com>

package vm

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/tliron/commonlog"

	"github.com/ezrec/atic/internal"
)

// logger is looked up on use; the backend is selected at startup.
func logger() commonlog.Logger {
	return commonlog.GetLogger("atic.vm")
}

const (
	STACK_SIZE       = 10000 // Default value stack slots.
	CALL_STACK_SIZE  = 10000 // Default call stack words.
	CALL_BUFFER_SIZE = 255   // Default call buffer slots.
	HALT_PC          = -1    // Return address of the entry frame.
)

// Options sizes a VM.
type Options struct {
	StackSize      int       // Value stack slots.
	CallStackSize  int       // Call stack words, FRAME_WORDS per frame.
	CallBufferSize int       // Argument staging slots.
	GcThreshold    int       // Collect when more objects are live. 0 never collects.
	Output         io.Writer // Debug output, stdout if nil.
	Verbose        bool      // Trace every executed instruction.
}

// DefaultOptions returns the standard VM limits.
func DefaultOptions() Options {
	return Options{
		StackSize:      STACK_SIZE,
		CallStackSize:  CALL_STACK_SIZE,
		CallBufferSize: CALL_BUFFER_SIZE,
	}
}

// VM is the execution engine.
type VM struct {
	Verbose     bool      // Set to enable verbose logging.
	Output      io.Writer // Destination of Debug output.
	Heap        Heap      // Retained objects.
	GcThreshold int       // Live object count that triggers a collection.

	instructions []Instruction
	stack        []Value
	callStack    CallStack
	callBuffer   []Value

	pc  int // Program counter.
	arp int // Activation record pointer.
	ars int // Active record size.

	running  bool
	exitCode float64
	ticks    int64
	nextGc   int
}

// New creates a VM owning the linked instructions. Zero sized limits in
// opts take their defaults.
func New(instructions []Instruction, opts Options) (vm *VM) {
	def := DefaultOptions()
	if opts.StackSize <= 0 {
		opts.StackSize = def.StackSize
	}
	if opts.CallStackSize <= 0 {
		opts.CallStackSize = def.CallStackSize
	}
	if opts.CallBufferSize <= 0 {
		opts.CallBufferSize = def.CallBufferSize
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	vm = &VM{
		Verbose:      opts.Verbose,
		Output:       opts.Output,
		GcThreshold:  opts.GcThreshold,
		instructions: instructions,
		stack:        make([]Value, opts.StackSize),
		callStack:    NewCallStack(opts.CallStackSize),
		callBuffer:   make([]Value, opts.CallBufferSize),
		nextGc:       opts.GcThreshold,
	}

	return
}

// String returns the register state as a string.
func (vm *VM) String() (state string) {
	state = fmt.Sprintf("   pc: %d\n  arp: %d\n  ars: %d\n   sp: %d\n", vm.pc, vm.arp, vm.ars, vm.callStack.Sp)
	for r := 0; r < vm.ars && vm.arp+r < len(vm.stack); r++ {
		state += fmt.Sprintf("%5s: %v\n", fmt.Sprintf("r%d", r), vm.stack[vm.arp+r])
	}
	return
}

// Start prepares a call of c from an empty machine. Returning from c
// halts the VM with the returned number as exit code.
func (vm *VM) Start(c *Callable, args ...Value) (err error) {
	if c.Address < 0 || int(c.Address) >= len(vm.instructions) {
		err = ErrPcRange
		return
	}

	vm.pc = 0
	vm.arp = 0
	vm.ars = 0
	vm.ticks = 0
	vm.exitCode = 0
	vm.running = false
	vm.callStack.Reset()
	vm.Heap.Reset()
	vm.nextGc = vm.GcThreshold
	clear(vm.stack)
	clear(vm.callBuffer)

	err = vm.enter(c, args, HALT_PC)
	if err != nil {
		return
	}

	vm.running = true

	if vm.Verbose {
		logger().Infof("start fn %v @%d", c.Name, c.Address)
	}

	return
}

// enter pushes a frame returning to ret and activates c with args.
func (vm *VM) enter(c *Callable, args []Value, ret int) (err error) {
	captures := c.Captures()
	size := int(c.Registers)
	if len(args)+len(captures) > size {
		err = ErrArgsRange
		return
	}

	arp := vm.arp + vm.ars
	if size < 0 || arp+size > len(vm.stack) {
		err = ErrStackOverflow
		return
	}

	if !vm.callStack.Push(int32(ret), int32(vm.arp), int32(vm.ars)) {
		err = ErrCallStackOverflow
		return
	}

	record := vm.stack[arp : arp+size]
	n := copy(record, args)
	n += copy(record[n:], captures)
	clear(record[n:])

	vm.arp = arp
	vm.ars = size
	vm.pc = int(c.Address)

	return
}

// Running returns true until Exit or a return from the entry function.
func (vm *VM) Running() bool {
	return vm.running
}

// ExitCode returns the code set when the VM halted.
func (vm *VM) ExitCode() float64 {
	return vm.exitCode
}

// Ticks returns the number of executed instructions.
func (vm *VM) Ticks() int64 {
	return vm.ticks
}

// Pc returns the program counter.
func (vm *VM) Pc() int {
	return vm.pc
}

// Depth returns the number of active call frames.
func (vm *VM) Depth() int {
	return vm.callStack.Depth()
}

// Register reads a register of the current activation record.
func (vm *VM) Register(r Register) (value Value, err error) {
	v, err := vm.reg(r)
	if err != nil {
		return
	}
	value = *v
	return
}

// Result returns the value staged by the last Return.
func (vm *VM) Result() Value {
	return vm.callBuffer[0]
}

// Collect runs the collector rooted at the live stack window and the
// call buffer. It returns the number of objects released.
func (vm *VM) Collect() (freed int) {
	live := func(v Value) bool { return v.ref != nil }
	roots := internal.IterSeqFilter(internal.IterSeqConcat(
		slices.Values(vm.stack[:vm.arp+vm.ars]),
		slices.Values(vm.callBuffer),
	), live)

	freed = vm.Heap.Collect(roots)

	if vm.Verbose {
		logger().Debugf("gc: released %d, retained %d", freed, vm.Heap.Len())
	}

	return
}

func (vm *VM) halt(code float64) {
	vm.running = false
	vm.exitCode = code
	if vm.Verbose {
		logger().Infof("Exit with code %v", formatNumber(code))
	}
}

// Run ticks until the VM halts.
func (vm *VM) Run() (err error) {
	for vm.running {
		err = vm.Tick()
		if err != nil {
			return
		}
	}
	return
}

// Tick executes a single instruction.
func (vm *VM) Tick() (err error) {
	if !vm.running {
		err = ErrHalted
		return
	}
	if vm.pc < 0 || vm.pc >= len(vm.instructions) {
		err = ErrPcRange
		return
	}

	in := &vm.instructions[vm.pc]
	vm.ticks++

	if vm.Verbose {
		logger().Debugf("%04d: %v", vm.pc, in)
	}

	err = vm.execute(in)
	if err != nil {
		err = errors.Join(ErrOpcode(*in), err)
	}

	return
}

// reg returns the stack slot of register r.
func (vm *VM) reg(r Register) (*Value, error) {
	if r < 0 || int(r) >= vm.ars {
		return nil, ErrRegisterRange(r)
	}
	return &vm.stack[vm.arp+int(r)], nil
}

// regs2 returns the slots of the A and B registers.
func (vm *VM) regs2(in *Instruction) (a, b *Value, err error) {
	if a, err = vm.reg(in.A); err != nil {
		return
	}
	b, err = vm.reg(in.B)
	return
}

// regs3 returns the slots of the A, B and C registers.
func (vm *VM) regs3(in *Instruction) (a, b, c *Value, err error) {
	if a, b, err = vm.regs2(in); err != nil {
		return
	}
	c, err = vm.reg(in.C)
	return
}

func kindError(want ValueKind, got Value) error {
	return &ErrValueKind{Want: want, Got: got.Kind()}
}

func text(v *Value) (string, error) {
	s, ok := v.Text()
	if !ok {
		return "", kindError(KIND_STRING, *v)
	}
	return s, nil
}

func object(v *Value) (*Object, error) {
	obj, ok := v.Object()
	if !ok {
		return nil, kindError(KIND_OBJECT, *v)
	}
	return obj, nil
}

// slot returns a member slot of obj.
func slot(obj *Object, index int) (*Value, error) {
	if index < 0 || index >= len(obj.Slots) {
		return nil, ErrIndexRange
	}
	return &obj.Slots[index], nil
}

// index converts a number to a slot index.
func index(num float64) int {
	if math.IsNaN(num) || num < math.MinInt32 || num > math.MaxInt32 {
		return -1
	}
	return int(num)
}

// tagKey truncates a Match tag. NaN and out of range tags have no key.
func tagKey(num float64) (key int32, ok bool) {
	if math.IsNaN(num) || num <= math.MinInt32-1 || num >= math.MaxInt32+1 {
		return
	}
	return int32(num), true
}

// staged returns the first n slots of the call buffer.
func (vm *VM) staged(n int) ([]Value, error) {
	if n < 0 || n > len(vm.callBuffer) {
		return nil, ErrCallBufferRange
	}
	return vm.callBuffer[:n], nil
}

// allocated is called after an object reference has been stored.
func (vm *VM) allocated() {
	if vm.GcThreshold <= 0 || vm.Heap.Len() <= vm.nextGc {
		return
	}
	vm.Collect()
	vm.nextGc = max(vm.GcThreshold, 2*vm.Heap.Len())
}

// execute dispatches one instruction and advances the program counter.
func (vm *VM) execute(in *Instruction) (err error) {
	var a, b, c *Value
	next := vm.pc + 1

	switch in.Op {
	case OP_NOP:
	case OP_DEBUG:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		_, err = fmt.Fprintln(vm.Output, formatNumber(a.num))
	case OP_LOAD_CONST:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		*a = Number(in.Constant)
	case OP_COPY:
		if a, b, err = vm.regs2(in); err != nil {
			return
		}
		*a = *b
	case OP_NOT:
		if a, b, err = vm.regs2(in); err != nil {
			return
		}
		*a = Bool(!b.Truthy())
	case OP_NEGATE:
		if a, b, err = vm.regs2(in); err != nil {
			return
		}
		*a = Number(-b.num)
	case OP_LOAD_STRING:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		*a = String(in.Text)
	case OP_LOAD_FUNCTION:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		*a = CallableValue(in.Callable)
	case OP_LOAD_RESULT:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		*a = vm.callBuffer[0]
	case OP_ARGUMENT:
		if int(in.A) < 0 || int(in.A) >= len(vm.callBuffer) {
			err = ErrCallBufferRange
			return
		}
		if b, err = vm.reg(in.B); err != nil {
			return
		}
		vm.callBuffer[in.A] = *b
	case OP_CREATE_STRUCT:
		var args []Value
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		if args, err = vm.staged(int(in.B)); err != nil {
			return
		}
		obj := vm.Heap.Alloc(len(args))
		copy(obj.Slots, args)
		*a = ObjectValue(obj)
		vm.allocated()
	case OP_CREATE_ENUM:
		var args []Value
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		if in.C < 1 {
			err = ErrIndexRange
			return
		}
		if args, err = vm.staged(int(in.C) - 1); err != nil {
			return
		}
		obj := vm.Heap.Alloc(int(in.C))
		obj.Slots[0] = Number(float64(in.B))
		copy(obj.Slots[1:], args)
		*a = ObjectValue(obj)
		vm.allocated()
	case OP_CREATE_CLOSURE:
		var args []Value
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		if in.B < 1 {
			err = ErrIndexRange
			return
		}
		if args, err = vm.staged(int(in.B)); err != nil {
			return
		}
		fn, ok := args[0].Callable()
		if !ok {
			err = kindError(KIND_CALLABLE, args[0])
			return
		}
		env := vm.Heap.Alloc(len(args))
		copy(env.Slots, args)
		*a = CallableValue(fn.Bind(env))
		vm.allocated()
	case OP_LOAD_MEMBER, OP_LOAD_ENUM_MEMBER:
		var obj *Object
		if a, b, err = vm.regs2(in); err != nil {
			return
		}
		if obj, err = object(b); err != nil {
			return
		}
		k := int(in.C)
		if in.Op == OP_LOAD_ENUM_MEMBER {
			k++
		}
		if c, err = slot(obj, k); err != nil {
			return
		}
		*a = *c
	case OP_STORE_MEMBER:
		var obj *Object
		if a, b, err = vm.regs2(in); err != nil {
			return
		}
		if obj, err = object(a); err != nil {
			return
		}
		if c, err = slot(obj, int(in.C)); err != nil {
			return
		}
		*c = *b
	case OP_LOAD_ARRAY:
		var obj *Object
		var elem *Value
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		if obj, err = object(b); err != nil {
			return
		}
		if elem, err = slot(obj, index(c.num)); err != nil {
			return
		}
		*a = *elem
	case OP_STORE_ARRAY:
		var obj *Object
		var elem *Value
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		if obj, err = object(a); err != nil {
			return
		}
		if elem, err = slot(obj, index(c.num)); err != nil {
			return
		}
		*elem = *b
	case OP_LOAD_ENUM_TYPE:
		var obj *Object
		if a, b, err = vm.regs2(in); err != nil {
			return
		}
		if obj, err = object(b); err != nil {
			return
		}
		if c, err = slot(obj, 0); err != nil {
			return
		}
		*a = *c
	case OP_COPY_ENUM_MEMBER:
		var dst, src *Object
		var from, to *Value
		if a, b, err = vm.regs2(in); err != nil {
			return
		}
		if dst, err = object(a); err != nil {
			return
		}
		if src, err = object(b); err != nil {
			return
		}
		if from, err = slot(src, int(in.C)+1); err != nil {
			return
		}
		if to, err = slot(dst, int(in.C)+1); err != nil {
			return
		}
		*to = *from
	case OP_INVOKE_FUNCTION:
		var args []Value
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		fn, ok := a.Callable()
		if !ok {
			err = kindError(KIND_CALLABLE, *a)
			return
		}
		if args, err = vm.staged(int(in.B)); err != nil {
			return
		}
		if err = vm.enter(fn, args, next); err != nil {
			return
		}
		next = vm.pc
	case OP_RETURN:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		vm.callBuffer[0] = *a
		pc, arp, ars, ok := vm.callStack.Pop()
		if !ok {
			err = ErrCallStackEmpty
			return
		}
		vm.arp = int(arp)
		vm.ars = int(ars)
		next = int(pc)
		if next == HALT_PC {
			vm.halt(vm.callBuffer[0].num)
			return
		}
	case OP_JUMP:
		next = int(in.Target.Address)
	case OP_JUMP_IF_NOT:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		if a.num < 0.5 {
			next = int(in.Target.Address)
		}
	case OP_MATCH:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		tag := a.num
		if obj, ok := a.Object(); ok && len(obj.Slots) > 0 {
			tag = obj.Slots[0].num
		}
		next = int(in.Target.Address)
		if key, ok := tagKey(tag); ok {
			if target, ok := in.Cases[key]; ok {
				next = int(target.Address)
			}
		}
	case OP_THROW:
		if a, err = vm.reg(in.A); err != nil {
			return
		}
		err = &ErrThrow{Value: *a}
		return
	case OP_ADD:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Number(b.num + c.num)
	case OP_SUBTRACT:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Number(b.num - c.num)
	case OP_MULTIPLY:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Number(b.num * c.num)
	case OP_DIVIDE:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Number(b.num / c.num)
	case OP_OR:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.Truthy() || c.Truthy())
	case OP_AND:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.Truthy() && c.Truthy())
	case OP_GREATER:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.num > c.num)
	case OP_GREATER_EQ:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.num >= c.num)
	case OP_SMALLER:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.num < c.num)
	case OP_SMALLER_EQ:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.num <= c.num)
	case OP_EQUALS:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.num == c.num)
	case OP_NON_EQUALS:
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		*a = Bool(b.num != c.num)
	case OP_STRING_EQUALS, OP_STRING_NON_EQ, OP_CONCAT:
		var s1, s2 string
		if a, b, c, err = vm.regs3(in); err != nil {
			return
		}
		if s1, err = text(b); err != nil {
			return
		}
		if s2, err = text(c); err != nil {
			return
		}
		switch in.Op {
		case OP_STRING_EQUALS:
			*a = Bool(s1 == s2)
		case OP_STRING_NON_EQ:
			*a = Bool(s1 != s2)
		default:
			*a = String(s1 + s2)
		}
	case OP_EXIT:
		vm.halt(in.Constant)
		return
	default:
		err = ErrNotImplemented
		return
	}

	if err != nil {
		return
	}

	vm.pc = next
	return
}
