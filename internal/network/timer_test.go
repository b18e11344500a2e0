package network

import "testing"

func TestTimerCountdown(t *testing.T) {
	timer := NewTimer(3, 1)

	if timer.Clock() {
		t.Error("Clock() on stopped timer = true, want false")
	}

	timer.Start()
	var fired []int
	for tick := 1; tick <= 10; tick++ {
		if timer.Clock() {
			fired = append(fired, tick)
		}
	}

	want := []int{1, 4, 7, 10}
	if len(fired) != len(want) {
		t.Fatalf("fired on ticks %v, want %v", fired, want)
	}
	for i := range want {
		if fired[i] != want[i] {
			t.Errorf("fired on ticks %v, want %v", fired, want)
			break
		}
	}
}

func TestTimerStop(t *testing.T) {
	timer := NewTimer(2, 2)
	timer.Start()
	timer.Clock()
	timer.Stop()

	if timer.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	if timer.Clock() {
		t.Error("Clock() after Stop() = true, want false")
	}
	if timer.Remaining() != 1 {
		t.Errorf("Remaining() = %d, want 1", timer.Remaining())
	}
}

func TestTimerMinimumPeriod(t *testing.T) {
	timer := NewTimer(0, 1)
	if timer.Period() != 1 {
		t.Errorf("Period() = %d, want 1", timer.Period())
	}
}
