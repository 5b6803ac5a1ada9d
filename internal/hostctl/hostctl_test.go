package hostctl

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestRegisterPeriodicFiresRepeatedly(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var count int32
	cancel := l.RegisterPeriodic(10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	defer cancel()

	time.Sleep(55 * time.Millisecond)
	if atomic.LoadInt32(&count) < 3 {
		t.Fatalf("expected at least 3 ticks in 55ms at a 10ms interval, got %d", count)
	}
}

func TestCancelStopsFurtherTicks(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	var count int32
	cancel := l.RegisterPeriodic(10*time.Millisecond, func() { atomic.AddInt32(&count, 1) })
	time.Sleep(25 * time.Millisecond)
	cancel()
	after := atomic.LoadInt32(&count)

	time.Sleep(50 * time.Millisecond)
	if atomic.LoadInt32(&count) != after {
		t.Fatalf("expected no further ticks after cancel, before=%d after=%d", after, count)
	}
}

func TestRegisterFDInvokesOnReadableWhenMarkedReadable(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	calls := make(chan struct{}, 10)
	if err := l.RegisterFD(99, func() { calls <- struct{}{} }, nil); err != nil {
		t.Fatalf("RegisterFD: %v", err)
	}
	l.SetReadable(99, true)

	select {
	case <-calls:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected onReadable to fire once the fd is marked readable")
	}

	l.SetReadable(99, false)
	// Drain anything already queued, then confirm no more calls arrive.
	drain := time.After(50 * time.Millisecond)
drainLoop:
	for {
		select {
		case <-calls:
		case <-drain:
			break drainLoop
		}
	}
	select {
	case <-calls:
		t.Fatalf("onReadable fired after the fd was marked not readable")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestUnregisterFDStopsCallbacks(t *testing.T) {
	l := NewLoop()
	defer l.Close()

	calls := make(chan struct{}, 10)
	l.RegisterFD(7, func() { calls <- struct{}{} }, nil)
	l.SetReadable(7, true)
	<-calls

	l.UnregisterFD(7)
	// Drain a call that was already in flight, then confirm no more arrive.
	drain := time.After(50 * time.Millisecond)
drainLoop:
	for {
		select {
		case <-calls:
		case <-drain:
			break drainLoop
		}
	}
	select {
	case <-calls:
		t.Fatalf("onReadable fired after the fd was unregistered")
	case <-time.After(100 * time.Millisecond):
	}
}
