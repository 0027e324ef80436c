package broadcast

import "sync"

// Sequencer hands out one mutex per chat. A service holds it from the start
// of its transaction until Publish returns, so events for a chat enter the
// registry in commit order. Different chats never contend.
type Sequencer struct {
	mu    sync.Mutex
	locks map[int64]*seqLock
}

type seqLock struct {
	mu   sync.Mutex
	refs int
}

func NewSequencer() *Sequencer {
	return &Sequencer{locks: make(map[int64]*seqLock)}
}

// Lock blocks until the caller owns chatID's sequence. The returned func
// releases it and must be called exactly once.
func (s *Sequencer) Lock(chatID int64) (unlock func()) {
	s.mu.Lock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &seqLock{}
		s.locks[chatID] = l
	}
	l.refs++
	s.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, chatID)
		}
		s.mu.Unlock()
	}
}
