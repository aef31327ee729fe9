package vm

import (
	"fmt"
)

// ValueKind is the view a Value was last written with. The VM never
// dispatches on it; opcodes choose the view.
type ValueKind int

//go:generate go tool stringer -linecomment -type=ValueKind
const (
	KIND_NUMBER   = ValueKind(0) // number
	KIND_STRING   = ValueKind(1) // string
	KIND_OBJECT   = ValueKind(2) // object
	KIND_CALLABLE = ValueKind(3) // callable
)

// Value is a single VM datum: a number, a string, an object reference
// or a callable reference. The zero Value is the number 0.
type Value struct {
	num float64
	ref any
}

// Number returns a number value.
func Number(value float64) Value {
	return Value{num: value}
}

// Bool returns 1 for true and 0 for false.
func Bool(value bool) Value {
	if value {
		return Value{num: 1}
	}
	return Value{}
}

// String returns a string value.
func String(text string) Value {
	return Value{ref: text}
}

// ObjectValue returns a reference to a heap object.
func ObjectValue(obj *Object) Value {
	return Value{ref: obj}
}

// CallableValue returns a reference to a callable.
func CallableValue(c *Callable) Value {
	return Value{ref: c}
}

// Number returns the number view. References read as 0.
func (v Value) Number() float64 {
	return v.num
}

// Truthy is the boolean view: value >= 0.5.
func (v Value) Truthy() bool {
	return v.num >= 0.5
}

// Text returns the string view.
func (v Value) Text() (text string, ok bool) {
	text, ok = v.ref.(string)
	return
}

// Object returns the object view.
func (v Value) Object() (obj *Object, ok bool) {
	obj, ok = v.ref.(*Object)
	return
}

// Callable returns the callable view.
func (v Value) Callable() (c *Callable, ok bool) {
	c, ok = v.ref.(*Callable)
	return
}

// Kind reports the view the value was written with.
func (v Value) Kind() ValueKind {
	switch v.ref.(type) {
	case string:
		return KIND_STRING
	case *Object:
		return KIND_OBJECT
	case *Callable:
		return KIND_CALLABLE
	}
	return KIND_NUMBER
}

func (v Value) String() string {
	switch ref := v.ref.(type) {
	case string:
		return fmt.Sprintf("%q", ref)
	case *Object:
		return fmt.Sprintf("object[%d]", len(ref.Slots))
	case *Callable:
		return "fn " + ref.Name
	}
	return formatNumber(v.num)
}
