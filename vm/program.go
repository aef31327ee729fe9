package vm

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/fxamacker/cbor/v2"
)

// FunctionInfo records where a function landed in the instruction stream.
type FunctionInfo struct {
	Name      string
	Address   int32
	Size      int32
	Args      int32
	Registers int32
	LineNo    int
}

// Program is the output of the linker.
type Program struct {
	Instructions []Instruction
	Callables    map[string]*Callable
	Functions    []FunctionInfo
}

// Lookup returns the callable for a function name.
func (prog *Program) Lookup(name string) (c *Callable, err error) {
	c, ok := prog.Callables[name]
	if !ok {
		err = ErrFunctionMissing(name)
	}
	return
}

type Debug struct {
	*FunctionInfo
	Offset int
}

// Debug finds the function containing pc.
func (prog *Program) Debug(pc int) (dbg Debug) {
	for n, fn := range prog.Functions {
		if pc >= int(fn.Address) && pc < int(fn.Address+fn.Size) {
			dbg = Debug{
				FunctionInfo: &prog.Functions[n],
				Offset:       pc - int(fn.Address),
			}
			break
		}
	}

	return
}

// Opcodes iterates the opcode sequence.
func (prog *Program) Opcodes() iter.Seq2[int, Opcode] {
	return func(yield func(pc int, op Opcode) bool) {
		for pc, in := range prog.Instructions {
			if !yield(pc, in.Op) {
				return
			}
		}
	}
}

// Disassemble writes a listing of the linked program.
func (prog *Program) Disassemble(w io.Writer) (err error) {
	for _, fn := range prog.Functions {
		_, err = fmt.Fprintf(w, "; fn %v (registers %d, params %d)\n", fn.Name, fn.Registers, fn.Args)
		if err != nil {
			return
		}
		for pc := fn.Address; pc < fn.Address+fn.Size; pc++ {
			_, err = fmt.Fprintf(w, "%04d: %v\n", pc, prog.Instructions[pc])
			if err != nil {
				return
			}
		}
	}
	return
}

const ENCODING_VERSION = 1

var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("vm: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

type encodedInstruction struct {
	_        struct{} `cbor:",toarray"`
	Op       Opcode
	A        Register
	B        Register
	C        Register
	Constant float64
	Index    int32
	Address  int32
	Text     string
	Function string
	Cases    map[int32][2]int32
}

type encodedProgram struct {
	_            struct{} `cbor:",toarray"`
	Version      int
	Functions    []FunctionInfo
	Instructions []encodedInstruction
}

// Encode serializes the program with canonical CBOR. Linking the same
// source twice yields identical bytes.
func (prog *Program) Encode() (data []byte, err error) {
	ep := encodedProgram{
		Version:      ENCODING_VERSION,
		Functions:    prog.Functions,
		Instructions: make([]encodedInstruction, len(prog.Instructions)),
	}

	for n, in := range prog.Instructions {
		ei := &ep.Instructions[n]
		ei.Op = in.Op
		ei.A, ei.B, ei.C = in.A, in.B, in.C
		ei.Constant = in.Constant
		ei.Index = in.Target.Index
		ei.Address = in.Target.Address
		ei.Text = in.Text
		if in.Callable != nil {
			ei.Function = in.Callable.Name
		}
		if len(in.Cases) > 0 {
			ei.Cases = make(map[int32][2]int32, len(in.Cases))
			for tag, label := range in.Cases {
				ei.Cases[tag] = [2]int32{label.Index, label.Address}
			}
		}
	}

	return cborEncMode.Marshal(&ep)
}

// Fingerprint is the hex SHA-256 of the program encoding.
func (prog *Program) Fingerprint() (sum string, err error) {
	data, err := prog.Encode()
	if err != nil {
		return
	}
	digest := sha256.Sum256(data)
	sum = hex.EncodeToString(digest[:])
	return
}

// Decode restores a program serialized by Encode. Function extents and
// jump targets must lie inside the instruction stream.
func Decode(data []byte) (prog *Program, err error) {
	var ep encodedProgram
	err = cbor.Unmarshal(data, &ep)
	if err != nil {
		err = fmt.Errorf("vm: decode program: %w", err)
		return
	}
	if ep.Version != ENCODING_VERSION {
		err = ErrEncodingVersion
		return
	}

	prog = &Program{
		Instructions: make([]Instruction, len(ep.Instructions)),
		Callables:    make(map[string]*Callable, len(ep.Functions)),
		Functions:    ep.Functions,
	}

	size := int64(len(ep.Instructions))
	inside := func(address int32) bool {
		return address >= 0 && int64(address) < size
	}

	for _, fn := range ep.Functions {
		if fn.Address < 0 || fn.Size < 0 || int64(fn.Address)+int64(fn.Size) > size {
			err = fmt.Errorf("fn %v: %w", fn.Name, ErrEncodingRange)
			return
		}
		prog.Callables[fn.Name] = &Callable{
			Name:      fn.Name,
			Address:   fn.Address,
			Args:      fn.Args,
			Registers: fn.Registers,
		}
	}

	for n, ei := range ep.Instructions {
		in := &prog.Instructions[n]
		in.Op = ei.Op
		if !in.Op.Valid() {
			err = ErrOpcode(*in)
			return
		}
		in.A, in.B, in.C = ei.A, ei.B, ei.C
		in.Constant = ei.Constant
		in.Target = Label{Index: ei.Index, Address: ei.Address}
		if in.Op.IsJump() && !inside(in.Target.Address) {
			err = errors.Join(ErrOpcode(*in), ErrEncodingRange)
			return
		}
		in.Text = ei.Text
		if in.Op == OP_LOAD_FUNCTION {
			in.Callable, err = prog.Lookup(ei.Function)
			if err != nil {
				return
			}
		}
		if len(ei.Cases) > 0 {
			in.Cases = make(map[int32]Label, len(ei.Cases))
			for tag, label := range ei.Cases {
				if !inside(label[1]) {
					err = errors.Join(ErrOpcode(*in), ErrEncodingRange)
					return
				}
				in.Cases[tag] = Label{Index: label[0], Address: label[1]}
			}
		}
	}

	return
}
