package alarm

import (
	"sync/atomic"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestArmFiresOnce(t *testing.T) {
	a := New("beep", nil)
	var fired int32

	a.Arm(time.Now().Add(20*time.Millisecond), func() { atomic.AddInt32(&fired, 1) })
	if _, ok := a.Armed(); !ok {
		t.Fatal("expected alarm to be armed")
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&fired) == 1 })
	time.Sleep(50 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 1 {
		t.Fatalf("expected exactly one firing, got %d", n)
	}
	if _, ok := a.Armed(); ok {
		t.Fatal("expected alarm idle after firing")
	}
}

func TestRearmReplacesPrevious(t *testing.T) {
	a := New("beep", nil)
	var first, second int32

	a.Arm(time.Now().Add(30*time.Millisecond), func() { atomic.AddInt32(&first, 1) })
	at := time.Now().Add(60 * time.Millisecond)
	a.Arm(at, func() { atomic.AddInt32(&second, 1) })

	if armedAt, ok := a.Armed(); !ok || !armedAt.Equal(at) {
		t.Fatalf("expected alarm armed at %v, got %v (armed=%v)", at, armedAt, ok)
	}

	waitFor(t, func() bool { return atomic.LoadInt32(&second) == 1 })
	if n := atomic.LoadInt32(&first); n != 0 {
		t.Fatalf("replaced arm fired %d times", n)
	}
}

func TestCancelPreventsFiring(t *testing.T) {
	a := New("beep", nil)
	var fired int32

	a.Arm(time.Now().Add(20*time.Millisecond), func() { atomic.AddInt32(&fired, 1) })
	a.Cancel()
	a.Cancel()

	time.Sleep(60 * time.Millisecond)
	if n := atomic.LoadInt32(&fired); n != 0 {
		t.Fatalf("cancelled alarm fired %d times", n)
	}
}

func TestPastTimeFiresImmediately(t *testing.T) {
	a := New("beep", nil)
	done := make(chan struct{})

	a.Arm(time.Now().Add(-time.Hour), func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected past alarm to fire immediately")
	}
}
