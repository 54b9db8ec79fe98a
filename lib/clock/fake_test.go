// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"testing"
	"time"
)

func TestFakeAfter(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	ch := c.After(5 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired before the clock advanced")
	default:
	}

	c.Advance(4 * time.Second)
	select {
	case <-ch:
		t.Fatal("After fired one second early")
	default:
	}

	c.Advance(time.Second)
	select {
	case at := <-ch:
		if got := at.Sub(time.Unix(0, 0)); got != 5*time.Second {
			t.Errorf("fired at +%v, want +5s", got)
		}
	default:
		t.Fatal("After did not fire at its deadline")
	}
}

func TestFakeAfterImmediate(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	select {
	case <-c.After(0):
	default:
		t.Fatal("After(0) did not fire immediately")
	}
}

func TestFakeAfterFunc(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	fired := 0
	timer := c.AfterFunc(time.Second, func() { fired++ })

	c.Advance(2 * time.Second)
	if fired != 1 {
		t.Fatalf("callback fired %d times, want 1", fired)
	}
	if timer.Stop() {
		t.Error("Stop returned true after the timer fired")
	}

	// A second advance must not re-fire a one-shot timer.
	c.Advance(10 * time.Second)
	if fired != 1 {
		t.Errorf("one-shot callback fired %d times, want 1", fired)
	}
}

func TestFakeAfterFuncStop(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	fired := false
	timer := c.AfterFunc(time.Second, func() { fired = true })
	if !timer.Stop() {
		t.Fatal("Stop returned false on a pending timer")
	}
	c.Advance(time.Minute)
	if fired {
		t.Error("stopped timer fired anyway")
	}
	if n := c.PendingCount(); n != 0 {
		t.Errorf("PendingCount = %d after stop, want 0", n)
	}
}

func TestFakeTicker(t *testing.T) {
	c := Fake(time.Unix(0, 0))
	ticker := c.NewTicker(10 * time.Second)
	defer ticker.Stop()

	ticks := 0
	for i := 0; i < 3; i++ {
		c.Advance(10 * time.Second)
		select {
		case <-ticker.C:
			ticks++
		default:
			t.Fatalf("no tick after advance %d", i+1)
		}
	}
	if ticks != 3 {
		t.Errorf("got %d ticks, want 3", ticks)
	}

	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Error("tick delivered after Stop")
	default:
	}
}

func TestFakeAdvanceFiresInDeadlineOrder(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	var order []string
	c.AfterFunc(3*time.Second, func() { order = append(order, "late") })
	c.AfterFunc(1*time.Second, func() { order = append(order, "early") })
	c.AfterFunc(2*time.Second, func() { order = append(order, "middle") })

	c.Advance(5 * time.Second)
	want := []string{"early", "middle", "late"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("fire order = %v, want %v", order, want)
		}
	}
}

func TestFakeAdvanceFiresTimersRegisteredByCallbacks(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	chained := false
	c.AfterFunc(time.Second, func() {
		c.AfterFunc(time.Second, func() { chained = true })
	})

	c.Advance(5 * time.Second)
	if !chained {
		t.Error("timer registered inside a callback did not fire within the same Advance")
	}
}

func TestFakeWaitForTimers(t *testing.T) {
	c := Fake(time.Unix(0, 0))

	done := make(chan struct{})
	go func() {
		c.WaitForTimers(1)
		close(done)
	}()

	c.AfterFunc(time.Second, func() {})
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("WaitForTimers did not observe the registered timer")
	}
}
