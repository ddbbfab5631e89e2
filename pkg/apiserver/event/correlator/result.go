package correlator

import (
	"sync"

	"github.com/shopspring/decimal"
)

// resultSlot is written at most once; readers block on Done.
type resultSlot struct {
	once  sync.Once
	done  chan struct{}
	value decimal.Decimal
	err   error
}

func newResultSlot() *resultSlot {
	return &resultSlot{done: make(chan struct{})}
}

// resolve stores the result and releases waiters. It reports whether this call won.
func (s *resultSlot) resolve(value decimal.Decimal, err error) bool {
	won := false
	s.once.Do(func() {
		s.value, s.err = value, err
		close(s.done)
		won = true
	})
	return won
}

func (s *resultSlot) Done() <-chan struct{} { return s.done }

// result must only be read after Done is closed.
func (s *resultSlot) result() (decimal.Decimal, error) {
	<-s.done
	return s.value, s.err
}
