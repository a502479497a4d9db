package lens

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

const ErrorLogPrefix = "!! "

// ErrGroupLimitCPU returns an errgroup limited to NumCPU.
func ErrGroupLimitCPU() *errgroup.Group {
	errGroup := &errgroup.Group{}
	errGroup.SetLimit(runtime.NumCPU())
	return errGroup
}

type limitingWaitGroup struct {
	limit int
	c     chan struct{}
}

func (l *limitingWaitGroup) Take() {
	<-l.c
}

func (l *limitingWaitGroup) Release() {
	l.c <- struct{}{}
}

func (l *limitingWaitGroup) Join() {
	for i := 0; i < l.limit; i++ {
		l.Take() // take all capacity to ensure all have finished
	}
	for i := 0; i < l.limit; i++ {
		l.Release()
	}
}

// LimitingWaitGroup restricts concurrent deliveries and waits for their completion.
type LimitingWaitGroup interface {
	// Take blocks until the wait group has capacity.
	Take()
	// Release should be invoked (typically in defer) to indicate the activity following Take() has completed.
	Release()
	// Join blocks until all activities have completed, then returns the capacity so the group can be reused.
	Join()
}

// NewLimitingWaitGroup creates a LimitingWaitGroup with the given limit.
func NewLimitingWaitGroup(concurrencyLimit int) LimitingWaitGroup {
	concurrencyLimit = max(1, concurrencyLimit)
	c := make(chan struct{}, concurrencyLimit)
	for i := 0; i < concurrencyLimit; i++ {
		c <- struct{}{}
	}
	return &limitingWaitGroup{
		limit: concurrencyLimit,
		c:     c,
	}
}
