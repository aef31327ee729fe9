// Package asm parses the textual function listing format.
//
// A listing is a sequence of functions:
//
//	fn Main.main
//	  LoadConst: 0, 7
//	  #0
//	  Exit: 0
//	  registers 1
//	  params 0
//	  end
//
// The parser does not interpret mnemonics; it yields one Function per
// header with its ordered label and instruction entries. Operands stay
// textual and are resolved by the linker in package vm.
//
// Two conveniences are layered over the raw format: `define NAME VALUE`
// substitutes whole operands, and `$(expr)` operands are evaluated as
// Starlark expressions at parse time.
package asm
