package vm

// Callable describes an invocable function.
type Callable struct {
	Name      string  // Function name.
	Address   int32   // First instruction.
	Args      int32   // Declared argument count.
	Registers int32   // Activation record size.
	Env       *Object // Captured environment for closures. Slot 0 is the closed callable.
}

// Captures returns the captured values of a closure.
func (c *Callable) Captures() []Value {
	if c.Env == nil || len(c.Env.Slots) == 0 {
		return nil
	}
	return c.Env.Slots[1:]
}

// Bind returns a closure of c over env.
func (c *Callable) Bind(env *Object) *Callable {
	return &Callable{
		Name:      c.Name,
		Address:   c.Address,
		Args:      c.Args,
		Registers: c.Registers,
		Env:       env,
	}
}
