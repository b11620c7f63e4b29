package memory

import "github.com/BrandonDHaskell/datavault/server/internal/vault/types"

// TamperEvent overwrites the stored event at seq without resealing it.
func (s *LedgerStore) TamperEvent(seq int64, fn func(*types.Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if seq < 1 || seq > int64(len(s.events)) {
		return
	}
	fn(&s.events[seq-1])
}

// DropLastEvent removes the newest event row but leaves the recorded head.
func (s *LedgerStore) DropLastEvent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n := len(s.events); n > 0 {
		s.events = s.events[:n-1]
	}
}
