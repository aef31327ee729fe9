// Package vm implements the linker and the register virtual machine.
//
// The Linker turns the entries of parsed functions into one flat
// instruction stream, resolving jump labels to absolute addresses and
// function names to Callables. The VM executes that stream against a
// fixed size value stack:
//
//   - every function call owns an activation record of Registers slots
//     starting at the activation record pointer (arp);
//   - call frames are (return pc, previous arp, previous record size)
//     triples on a separate integer stack;
//   - arguments and return values travel through the call buffer.
//
// Values are untagged in the instruction stream: the opcode decides
// whether a register is read as a number, a string, an object or a
// callable.
package vm
