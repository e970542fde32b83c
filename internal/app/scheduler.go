package app

import (
	"sync/atomic"
	"time"
)

// CancelToken guards one scheduled callback. Once cancelled the callback must not act.
type CancelToken struct {
	cancelled atomic.Bool
	stop      func() bool
}

func NewCancelToken(stop func() bool) *CancelToken {
	return &CancelToken{stop: stop}
}

func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	if t.cancelled.CompareAndSwap(false, true) && t.stop != nil {
		t.stop()
	}
}

func (t *CancelToken) Cancelled() bool {
	return t == nil || t.cancelled.Load()
}

// Scheduler runs fn after d. fn is only invoked while the token is live.
type Scheduler interface {
	Schedule(d time.Duration, fn func()) *CancelToken
}

// PostScheduler hands timer fires to post, which is expected to run them on the
// owner's event loop. The token is checked again on the loop before fn runs.
type PostScheduler struct {
	Post func(func())
}

func (s PostScheduler) Schedule(d time.Duration, fn func()) *CancelToken {
	tok := &CancelToken{}
	timer := time.AfterFunc(d, func() {
		if tok.Cancelled() {
			return
		}
		s.Post(func() {
			if tok.Cancelled() {
				return
			}
			fn()
		})
	})
	tok.stop = timer.Stop
	return tok
}
