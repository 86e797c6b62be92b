package scoreboard

// Set tracks the live scoreboards so they can all be grown when a new vcpu starts.
// It is not safe for concurrent use; the registry serializes it under its lock.
type Set struct {
	boards   map[*Scoreboard]struct{}
	capacity int
}

// NewSet creates an empty set sized for n vcpus
func NewSet(n int) *Set {
	return &Set{boards: make(map[*Scoreboard]struct{}), capacity: n}
}

// Create allocates a scoreboard sized for every vcpu seen so far
func (s *Set) Create(elemSize int) *Scoreboard {
	sb := New(elemSize, s.capacity)
	s.boards[sb] = struct{}{}
	return sb
}

// Destroy forgets a scoreboard. It reports whether sb was a member.
func (s *Set) Destroy(sb *Scoreboard) bool {
	if _, ok := s.boards[sb]; !ok {
		return false
	}
	delete(s.boards, sb)
	return true
}

// Grow raises the capacity of every scoreboard to at least n
func (s *Set) Grow(n int) {
	if n <= s.capacity {
		return
	}
	s.capacity = n
	for sb := range s.boards {
		sb.Grow(n)
	}
}

// Capacity returns the vcpu count every member is sized for
func (s *Set) Capacity() int { return s.capacity }

// Len returns the number of live scoreboards
func (s *Set) Len() int { return len(s.boards) }
