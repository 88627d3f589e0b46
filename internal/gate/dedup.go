package gate

import "sync"

// dedupSet is a capacity-bounded set of recently seen message-sequence
// tokens. When the capacity is exceeded the oldest tokens are evicted first.
// It carries no persistence guarantee across restarts; a restart only risks
// re-processing a notification during the narrow race window.
type dedupSet struct {
	mu       sync.Mutex
	capacity int
	order    []string
	seen     map[string]struct{}
}

func newDedupSet(capacity int) *dedupSet {
	if capacity <= 0 {
		capacity = 1000
	}
	return &dedupSet{
		capacity: capacity,
		seen:     make(map[string]struct{}, capacity),
	}
}

// CheckAndMark reports whether token was already seen, marking it seen
// either way. Empty tokens are never tracked.
func (s *dedupSet) CheckAndMark(token string) bool {
	if token == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.seen[token]; ok {
		return true
	}
	s.seen[token] = struct{}{}
	s.order = append(s.order, token)

	for len(s.order) > s.capacity {
		oldest := s.order[0]
		s.order = s.order[1:]
		delete(s.seen, oldest)
	}
	return false
}

// Len returns the number of tracked tokens.
func (s *dedupSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}
