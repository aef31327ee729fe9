package vm

import (
	"iter"
)

// Object is a heap allocated sequence of values.
type Object struct {
	Slots []Value

	next  *Object
	epoch uint32
}

// Heap retains every allocated object on an intrusive list until it is
// collected.
type Heap struct {
	head  *Object
	count int // Live objects.
	total int // Objects ever allocated.
	epoch uint32
}

// Alloc allocates and retains an object of size slots.
func (h *Heap) Alloc(size int) (obj *Object) {
	obj = &Object{
		Slots: make([]Value, size),
		next:  h.head,
		epoch: h.epoch,
	}
	h.head = obj
	h.count++
	h.total++
	return
}

// Len is the number of retained objects.
func (h *Heap) Len() int {
	return h.count
}

// Allocated is the number of objects allocated since the last Reset.
func (h *Heap) Allocated() int {
	return h.total
}

// Objects iterates the retained objects, newest first.
func (h *Heap) Objects() iter.Seq[*Object] {
	return func(yield func(*Object) bool) {
		for obj := h.head; obj != nil; obj = obj.next {
			if !yield(obj) {
				return
			}
		}
	}
}

// Reset releases every object.
func (h *Heap) Reset() {
	h.head = nil
	h.count = 0
	h.total = 0
}

// Collect marks everything reachable from roots and unlinks the rest.
// It returns the number of objects released.
func (h *Heap) Collect(roots iter.Seq[Value]) (freed int) {
	h.epoch++

	var work []Value
	for root := range roots {
		work = append(work, root)
	}

	for len(work) > 0 {
		value := work[len(work)-1]
		work = work[:len(work)-1]

		switch ref := value.ref.(type) {
		case *Object:
			if ref.epoch == h.epoch {
				continue
			}
			ref.epoch = h.epoch
			work = append(work, ref.Slots...)
		case *Callable:
			if ref.Env != nil {
				work = append(work, ObjectValue(ref.Env))
			}
		}
	}

	link := &h.head
	for obj := h.head; obj != nil; obj = obj.next {
		if obj.epoch == h.epoch {
			link = &obj.next
			continue
		}
		*link = obj.next
		h.count--
		freed++
	}

	return
}
