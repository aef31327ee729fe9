package vm

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

const tickLimit = 100000

// fn wraps a body into a function listing.
func fn(name string, registers, params int, body ...string) (lines []string) {
	lines = append(lines, "fn "+name)
	lines = append(lines, body...)
	lines = append(lines,
		fmt.Sprintf("registers %d", registers),
		fmt.Sprintf("params %d", params),
		"end")
	return
}

// start links the listing and starts Main.main.
func start(t *testing.T, opts Options, program []string, args ...Value) (vm *VM, output *bytes.Buffer) {
	t.Helper()

	prog, err := link(t, program...)
	if err != nil {
		t.Fatal(err)
	}

	output = &bytes.Buffer{}
	opts.Output = output
	vm = New(prog.Instructions, opts)

	main, err := prog.Lookup("Main.main")
	if err != nil {
		t.Fatal(err)
	}

	err = vm.Start(main, args...)
	if err != nil {
		t.Fatal(err)
	}

	return
}

// run ticks until the VM halts, fails, or the tick limit is reached.
func run(vm *VM) (err error) {
	for n := 0; n < tickLimit && vm.Running(); n++ {
		err = vm.Tick()
		if err != nil {
			return
		}
	}
	return
}

func TestVmConstantExit(t *testing.T) {
	assert := assert.New(t)

	vm, output := start(t, DefaultOptions(), fn("Main.main", 1, 0,
		"LoadConst: 0, 7",
		"Exit: 0",
	))

	assert.True(vm.Running())
	assert.NoError(run(vm))
	assert.False(vm.Running())
	assert.Equal(0.0, vm.ExitCode())
	assert.Equal("", output.String())
	assert.Equal(int64(2), vm.Ticks())

	r0, err := vm.Register(0)
	assert.NoError(err)
	assert.Equal(Number(7), r0)

	assert.ErrorIs(vm.Tick(), ErrHalted)
}

func TestVmAddition(t *testing.T) {
	assert := assert.New(t)

	vm, output := start(t, DefaultOptions(), fn("Main.main", 3, 0,
		"LoadConst: 0, 2",
		"LoadConst: 1, 3",
		"Add: 2, 0, 1",
		"Debug: 2",
		"Exit: 0",
	))

	assert.NoError(run(vm))
	assert.Equal("5\n", output.String())
}

func TestVmCountdown(t *testing.T) {
	assert := assert.New(t)

	vm, output := start(t, DefaultOptions(), fn("Main.main", 4, 0,
		"LoadConst: 0, 3",
		"LoadConst: 1, 1",
		"LoadConst: 2, 0",
		"#0",
		"Smaller: 3, 2, 0",
		"JumpIfNot: 3, 1",
		"Debug: 0",
		"Subtract: 0, 0, 1",
		"Jump: 0",
		"#1",
		"Exit: 0",
	))

	assert.NoError(run(vm))
	assert.Equal("3\n2\n1\n", output.String())
	assert.Equal(0.0, vm.ExitCode())
}

func TestVmJumpIfNot(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		value string
		code  float64
	}){
		{"0.5", 1},
		{"1", 1},
		{"0.49", 2},
		{"0", 2},
		{"-3", 2},
	}

	for _, entry := range table {
		vm, _ := start(t, DefaultOptions(), fn("Main.main", 1, 0,
			"LoadConst: 0, "+entry.value,
			"JumpIfNot: 0, 1",
			"Exit: 1",
			"#1",
			"Exit: 2",
		))
		assert.NoError(run(vm), entry.value)
		assert.Equal(entry.code, vm.ExitCode(), entry.value)
	}
}

func TestVmArithmetic(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		op       string
		a, b     string
		expected float64
	}){
		{"Add", "6", "3", 9},
		{"Add", "3", "6", 9},
		{"Subtract", "6", "3", 3},
		{"Multiply", "6", "3", 18},
		{"Divide", "6", "3", 2},
		{"Or", "6", "3", 1},
		{"Or", "0", "0.5", 1},
		{"Or", "0", "0.4", 0},
		{"And", "6", "3", 1},
		{"And", "0", "0.5", 0},
		{"Greater", "6", "3", 1},
		{"Greater", "3", "3", 0},
		{"GreaterEq", "3", "3", 1},
		{"Smaller", "6", "3", 0},
		{"Smaller", "-1", "3", 1},
		{"SmallerEq", "3", "3", 1},
		{"Equals", "6", "3", 0},
		{"Equals", "3", "3", 1},
		{"NonEquals", "6", "3", 1},
		{"NonEquals", "3", "3", 0},
	}

	for _, entry := range table {
		name := fmt.Sprintf("%v(%v, %v)", entry.op, entry.a, entry.b)
		vm, _ := start(t, DefaultOptions(), fn("Main.main", 3, 0,
			"LoadConst: 0, "+entry.a,
			"LoadConst: 1, "+entry.b,
			entry.op+": 2, 0, 1",
			"Return: 2",
		))
		assert.NoError(run(vm), name)
		assert.False(vm.Running(), name)
		assert.Equal(entry.expected, vm.ExitCode(), name)
	}
}

func TestVmCommutative(t *testing.T) {
	assert := assert.New(t)

	values := []string{"0", "1", "-3", "2.5", "1e300", "-1e300", "NaN", "1e400"}
	ops := []string{"Add", "Multiply", "Equals", "NonEquals", "Or", "And"}

	exit := func(op, a, b string) float64 {
		vm, _ := start(t, DefaultOptions(), fn("Main.main", 3, 0,
			"LoadConst: 0, "+a,
			"LoadConst: 1, "+b,
			op+": 2, 0, 1",
			"Return: 2",
		))
		assert.NoError(run(vm))
		return vm.ExitCode()
	}

	for _, op := range ops {
		for _, a := range values {
			for _, b := range values {
				name := fmt.Sprintf("%v(%v, %v)", op, a, b)
				ab := exit(op, a, b)
				ba := exit(op, b, a)
				if math.IsNaN(ab) {
					assert.True(math.IsNaN(ba), name)
					continue
				}
				assert.Equal(ab, ba, name)
			}
		}
	}
}

func TestVmUnary(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		op       string
		value    string
		expected float64
	}){
		{"Not", "0", 1},
		{"Not", "0.5", 0},
		{"Not", "0.2", 1},
		{"Negate", "4", -4},
		{"Negate", "-2.5", 2.5},
		{"Copy", "11", 11},
	}

	for _, entry := range table {
		vm, _ := start(t, DefaultOptions(), fn("Main.main", 2, 0,
			"LoadConst: 0, "+entry.value,
			entry.op+": 1, 0",
			"Return: 1",
		))
		assert.NoError(run(vm), entry.op)
		assert.Equal(entry.expected, vm.ExitCode(), entry.op)
	}
}

func TestVmStartArgs(t *testing.T) {
	assert := assert.New(t)

	vm, _ := start(t, DefaultOptions(), fn("Main.main", 2, 1,
		"LoadConst: 1, 1",
		"Add: 0, 0, 1",
		"Return: 0",
	), Number(41))

	assert.Equal(1, vm.Depth())
	assert.NoError(run(vm))
	assert.Equal(42.0, vm.ExitCode())
	assert.Equal(0, vm.Depth())
	assert.Equal(Number(42), vm.Result())
}

func TestVmInvoke(t *testing.T) {
	assert := assert.New(t)

	program := fn("Main.main", 4, 0,
		"LoadFunction: 0, Main.add",
		"LoadConst: 1, 2",
		"LoadConst: 2, 40",
		"Argument: 0, 1",
		"Argument: 1, 2",
		"InvokeFunction: 0, 2",
		"LoadResult: 3",
		"Debug: 3",
		"Debug: 1",
		"Exit: 0",
	)
	program = append(program, fn("Main.add", 3, 2,
		"Add: 2, 0, 1",
		"LoadConst: 0, 99",
		"Return: 2",
	)...)

	vm, output := start(t, DefaultOptions(), program)
	assert.NoError(run(vm))
	// The callee frame does not alias the caller registers.
	assert.Equal("42\n2\n", output.String())
}

func TestVmRecursion(t *testing.T) {
	assert := assert.New(t)

	program := fn("Main.main", 3, 0,
		"LoadFunction: 0, Main.fact",
		"LoadConst: 1, 5",
		"Argument: 0, 1",
		"InvokeFunction: 0, 1",
		"LoadResult: 2",
		"Return: 2",
	)
	program = append(program, fn("Main.fact", 5, 1,
		"LoadConst: 1, 1",
		"SmallerEq: 2, 0, 1",
		"JumpIfNot: 2, 0",
		"Return: 1",
		"#0",
		"Subtract: 3, 0, 1",
		"LoadFunction: 4, Main.fact",
		"Argument: 0, 3",
		"InvokeFunction: 4, 1",
		"LoadResult: 3",
		"Multiply: 3, 3, 0",
		"Return: 3",
	)...)

	vm, _ := start(t, DefaultOptions(), program)
	assert.NoError(run(vm))
	assert.False(vm.Running())
	assert.Equal(120.0, vm.ExitCode())
}

func TestVmClosure(t *testing.T) {
	assert := assert.New(t)

	program := fn("Main.main", 4, 0,
		"LoadFunction: 0, Main.adder",
		"LoadConst: 1, 10",
		"Argument: 0, 0",
		"Argument: 1, 1",
		"CreateClosure: 2, 2",
		"LoadConst: 3, 5",
		"Argument: 0, 3",
		"InvokeFunction: 2, 1",
		"LoadResult: 3",
		"Return: 3",
	)
	program = append(program, fn("Main.adder", 3, 1,
		"Add: 2, 0, 1",
		"Return: 2",
	)...)

	vm, _ := start(t, DefaultOptions(), program)
	assert.NoError(run(vm))
	assert.Equal(15.0, vm.ExitCode())
	assert.Equal(1, vm.Heap.Len())

	// The closure must be staged first.
	vm, _ = start(t, DefaultOptions(), fn("Main.main", 1, 0,
		"Argument: 0, 0",
		"CreateClosure: 0, 1",
		"Exit: 0",
	))
	err := run(vm)
	var kind *ErrValueKind
	if assert.True(errors.As(err, &kind)) {
		assert.Equal(KIND_CALLABLE, kind.Want)
		assert.Equal(KIND_NUMBER, kind.Got)
	}
}

func TestVmStruct(t *testing.T) {
	assert := assert.New(t)

	vm, _ := start(t, DefaultOptions(), fn("Main.main", 7, 0,
		"LoadConst: 0, 1",
		"LoadConst: 1, 2",
		"Argument: 0, 0",
		"Argument: 1, 1",
		"CreateStruct: 2, 2",
		"LoadMember: 3, 2, 1",
		"LoadConst: 4, 7",
		"StoreMember: 2, 4, 0",
		"LoadConst: 5, 0",
		"LoadArray: 6, 2, 5",
		"Add: 6, 6, 3",
		"LoadConst: 5, 1",
		"StoreArray: 2, 6, 5",
		"LoadMember: 0, 2, 1",
		"Exit: 0",
	))

	assert.NoError(run(vm))
	assert.Equal(1, vm.Heap.Len())

	r0, err := vm.Register(0)
	assert.NoError(err)
	assert.Equal(Number(9), r0)

	r2, err := vm.Register(2)
	assert.NoError(err)
	obj, ok := r2.Object()
	if assert.True(ok) {
		assert.Equal([]Value{Number(7), Number(9)}, obj.Slots)
	}
}

func TestVmEnum(t *testing.T) {
	assert := assert.New(t)

	vm, _ := start(t, DefaultOptions(), fn("Main.main", 7, 0,
		"LoadConst: 0, 42",
		"Argument: 0, 0",
		"CreateEnumEntry: 1, 3, 2",
		"LoadEnumType: 2, 1",
		"LoadEnumMember: 3, 1, 0",
		"Argument: 0, 2",
		"CreateEnumEntry: 4, 3, 2",
		"CopyEnumMember: 4, 1, 0",
		"LoadEnumMember: 5, 4, 0",
		"Match: 1, 0, 3:1|4:2",
		"#0",
		"Exit: 0",
		"#1",
		"Add: 6, 5, 2",
		"Return: 6",
		"#2",
		"Exit: 2",
	))

	assert.NoError(run(vm))
	assert.Equal(45.0, vm.ExitCode())
}

func TestVmMatch(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		tag  string
		code float64
	}){
		{"1", 1},
		{"2", 2},
		{"2.7", 2},
		{"7", 9},
		{"-1", 3},
		{"-1.5", 3},
		{"-2", 9},
		{"NaN", 9},
		{"1e20", 9},
		{"-1e20", 9},
		{"1e400", 9},
	}

	for _, entry := range table {
		vm, _ := start(t, DefaultOptions(), fn("Main.main", 1, 0,
			"LoadConst: 0, "+entry.tag,
			"Match: 0, 0, 1:1|2:2|-1:3",
			"#0",
			"Exit: 9",
			"#1",
			"Exit: 1",
			"#2",
			"Exit: 2",
			"#3",
			"Exit: 3",
		))
		assert.NoError(run(vm), entry.tag)
		assert.Equal(entry.code, vm.ExitCode(), entry.tag)
	}
}

func TestVmStrings(t *testing.T) {
	assert := assert.New(t)

	vm, _ := start(t, DefaultOptions(), fn("Main.main", 6, 0,
		`LoadString: 0, "foo"`,
		`LoadString: 1, "bar"`,
		"Concat: 2, 0, 1",
		`LoadString: 3, "foobar"`,
		"StringEquals: 4, 2, 3",
		"StringNonEquals: 5, 2, 0",
		"Add: 4, 4, 5",
		"Exit: 0",
	))

	assert.NoError(run(vm))

	r4, _ := vm.Register(4)
	assert.Equal(Number(2), r4)

	r2, _ := vm.Register(2)
	text, ok := r2.Text()
	assert.True(ok)
	assert.Equal("foobar", text)
}

func TestVmErrors(t *testing.T) {
	assert := assert.New(t)

	small := DefaultOptions()
	small.StackSize = 10
	shallow := DefaultOptions()
	shallow.CallStackSize = 3 * FRAME_WORDS
	narrow := DefaultOptions()
	narrow.CallBufferSize = 4

	recurse := fn("Main.main", 1, 0,
		"LoadFunction: 0, Main.main",
		"InvokeFunction: 0, 0",
		"Exit: 0",
	)

	table := [](struct {
		name    string
		opts    Options
		program []string
		err     error
	}){
		{"register", DefaultOptions(), fn("Main.main", 1, 0, "Copy: 5, 0", "Exit: 0"), ErrRegisterRange(5)},
		{"negative", DefaultOptions(), fn("Main.main", 1, 0, "Debug: -1", "Exit: 0"), ErrRegisterRange(-1)},
		{"stack", small, recurse, ErrStackOverflow},
		{"call_stack", shallow, recurse, ErrCallStackOverflow},
		{"call_buffer", narrow, fn("Main.main", 1, 0, "Argument: 5, 0", "Exit: 0"), ErrCallBufferRange},
		{"struct_size", narrow, fn("Main.main", 1, 0, "CreateStruct: 0, 5", "Exit: 0"), ErrCallBufferRange},
		{"member", DefaultOptions(), fn("Main.main", 2, 0, "CreateStruct: 0, 0", "LoadMember: 1, 0, 3", "Exit: 0"), ErrIndexRange},
		{"array", DefaultOptions(), fn("Main.main", 2, 0, "CreateStruct: 0, 0", "LoadConst: 1, -1", "StoreArray: 0, 1, 1", "Exit: 0"), ErrIndexRange},
		{"pc", DefaultOptions(), fn("Main.main", 1, 0, "Nop:"), ErrPcRange},
	}

	for _, entry := range table {
		vm, _ := start(t, entry.opts, entry.program)
		err := run(vm)
		assert.ErrorIs(err, entry.err, entry.name)
		if entry.err != ErrPcRange {
			assert.ErrorIs(err, ErrOpcode{}, entry.name)
		}
		assert.True(vm.Running(), entry.name)
	}
}

func TestVmValueKind(t *testing.T) {
	assert := assert.New(t)

	table := [](struct {
		name string
		body []string
		want ValueKind
	}){
		{"member", []string{"LoadMember: 1, 0, 0"}, KIND_OBJECT},
		{"store", []string{"StoreMember: 0, 1, 0"}, KIND_OBJECT},
		{"enum", []string{"LoadEnumType: 1, 0"}, KIND_OBJECT},
		{"invoke", []string{"InvokeFunction: 0, 0"}, KIND_CALLABLE},
		{"concat", []string{`LoadString: 1, "x"`, "Concat: 1, 1, 0"}, KIND_STRING},
	}

	for _, entry := range table {
		body := append(entry.body, "Exit: 0")
		vm, _ := start(t, DefaultOptions(), fn("Main.main", 2, 0, body...))
		err := run(vm)
		var kind *ErrValueKind
		if assert.True(errors.As(err, &kind), entry.name) {
			assert.Equal(entry.want, kind.Want, entry.name)
			assert.Equal(KIND_NUMBER, kind.Got, entry.name)
		}
	}
}

func TestVmThrow(t *testing.T) {
	assert := assert.New(t)

	vm, _ := start(t, DefaultOptions(), fn("Main.main", 1, 0,
		"LoadConst: 0, 3",
		"Throw: 0",
		"Exit: 0",
	))

	err := run(vm)
	var thrown *ErrThrow
	if assert.True(errors.As(err, &thrown)) {
		assert.Equal(Number(3), thrown.Value)
	}
	assert.Equal(1, vm.Pc())
}

func TestVmStartErrors(t *testing.T) {
	assert := assert.New(t)

	vm := New([]Instruction{{Op: OP_EXIT}}, DefaultOptions())
	assert.ErrorIs(vm.Tick(), ErrHalted)

	err := vm.Start(&Callable{Name: "f", Address: 3, Registers: 1})
	assert.ErrorIs(err, ErrPcRange)

	err = vm.Start(&Callable{Name: "f", Registers: 1}, Number(1), Number(2))
	assert.ErrorIs(err, ErrArgsRange)
	assert.False(vm.Running())

	err = vm.Start(&Callable{Name: "f", Registers: 1}, Number(1))
	assert.NoError(err)
	assert.NoError(vm.Run())
	assert.False(vm.Running())
}

func TestVmRestart(t *testing.T) {
	assert := assert.New(t)

	prog, err := link(t, fn("Main.main", 2, 0,
		"CreateStruct: 0, 0",
		"LoadConst: 1, 4",
		"Debug: 1",
		"Exit: 1",
	)...)
	if !assert.NoError(err) {
		return
	}

	output := &bytes.Buffer{}
	opts := DefaultOptions()
	opts.Output = output
	vm := New(prog.Instructions, opts)
	main, _ := prog.Lookup("Main.main")

	for range 2 {
		assert.NoError(vm.Start(main))
		assert.NoError(vm.Run())
		assert.Equal(1.0, vm.ExitCode())
		assert.Equal(int64(4), vm.Ticks())
		assert.Equal(1, vm.Heap.Len())
	}
	assert.Equal("4\n4\n", output.String())
}

func TestVmCollect(t *testing.T) {
	assert := assert.New(t)

	program := fn("Main.main", 5, 0,
		"LoadConst: 0, 100",
		"LoadConst: 1, 1",
		"LoadConst: 2, 0",
		"#0",
		"Smaller: 3, 2, 0",
		"JumpIfNot: 3, 1",
		"CreateStruct: 4, 0",
		"Subtract: 0, 0, 1",
		"Jump: 0",
		"#1",
		"Exit: 0",
	)

	vm, _ := start(t, DefaultOptions(), program)
	assert.NoError(run(vm))
	assert.Equal(100, vm.Heap.Len())
	assert.Equal(99, vm.Collect())
	assert.Equal(1, vm.Heap.Len())

	opts := DefaultOptions()
	opts.GcThreshold = 4
	vm, _ = start(t, opts, program)
	assert.NoError(run(vm))
	assert.LessOrEqual(vm.Heap.Len(), 5)
	assert.Equal(100, vm.Heap.Allocated())

	// Values staged in the call buffer stay reachable.
	vm, _ = start(t, DefaultOptions(), fn("Main.main", 1, 0,
		"CreateStruct: 0, 0",
		"Argument: 0, 0",
		"LoadConst: 0, 0",
		"Exit: 0",
	))
	assert.NoError(run(vm))
	assert.Equal(0, vm.Collect())
	assert.Equal(1, vm.Heap.Len())
}
