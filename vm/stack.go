package vm

const (
	FRAME_WORDS = 3 // return pc, previous arp, previous record size
)

// CallStack holds call frames as consecutive word triples.
type CallStack struct {
	Data []int32 // Fixed capacity frame storage.
	Sp   int     // Words in use, FRAME_WORDS per frame.
}

// NewCallStack creates a call stack of the given capacity in words.
func NewCallStack(words int) (s CallStack) {
	s.Data = make([]int32, words)
	return
}

// Push adds a frame. It returns false when the stack is full.
func (s *CallStack) Push(pc, arp, ars int32) bool {
	if s.Full() {
		return false
	}
	s.Data[s.Sp] = pc
	s.Data[s.Sp+1] = arp
	s.Data[s.Sp+2] = ars
	s.Sp += FRAME_WORDS
	return true
}

// Pop removes the top frame.
func (s *CallStack) Pop() (pc, arp, ars int32, ok bool) {
	pc, arp, ars, ok = s.Peek()
	if ok {
		s.Sp -= FRAME_WORDS
	}
	return
}

// Peek returns the top frame.
func (s *CallStack) Peek() (pc, arp, ars int32, ok bool) {
	if s.Empty() {
		return
	}
	top := s.Data[s.Sp-FRAME_WORDS : s.Sp]
	return top[0], top[1], top[2], true
}

// Depth is the number of frames.
func (s *CallStack) Depth() int {
	return s.Sp / FRAME_WORDS
}

func (s *CallStack) Empty() bool {
	return s.Sp < FRAME_WORDS
}

func (s *CallStack) Full() bool {
	return s.Sp+FRAME_WORDS > len(s.Data)
}

func (s *CallStack) Reset() {
	s.Sp = 0
}
