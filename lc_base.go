package ectopq

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/ectopq/ectopq/internal"
)

const (
	stopped = iota
	started
)

var (
	// ErrDoubleStarted is returned when Start is called on a component
	// that has already been started.
	//
	// The Poll Queue Loop follows a strict lifecycle and must not be
	// started more than once without being stopped.
	ErrDoubleStarted = errors.New("ectopq: double start")

	// ErrDoubleStopped is returned when Stop is called on a component
	// that is not currently running.
	ErrDoubleStopped = errors.New("ectopq: double stop")

	// ErrStopTimeout is returned when a component fails to shut down
	// within the provided timeout during Stop.
	//
	// In this case, the component may still be terminating in the
	// background.
	ErrStopTimeout = errors.New("ectopq: stop timeout")

	// ErrJobLost is wrapped into a Source's Ack/Nack error when the row a
	// reserved Job refers to can no longer be found. This can happen if
	// the application deleted the row out from under the queue — allowed
	// once a row is Finished, never before.
	ErrJobLost = errors.New("ectopq: job row lost")
)

// lcBase is the Loop's start/stop state machine: it may only transition
// stopped->started->stopped.
type lcBase struct {
	state atomic.Int32
}

func (lb *lcBase) tryStart() error {
	if !lb.state.CompareAndSwap(stopped, started) {
		return ErrDoubleStarted
	}
	return nil
}

func (lb *lcBase) tryStop(timeout time.Duration, df internal.DoneFunc) error {
	if !lb.state.CompareAndSwap(started, stopped) {
		return ErrDoubleStopped
	}
	done := df()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return ErrStopTimeout
	}
}
