package network

// Timer counts scheduler ticks down to zero and reloads itself with its
// period. The link's resynchronization probe runs off one.
type Timer struct {
	period    int
	remaining int
	running   bool
}

// NewTimer creates a stopped timer that first expires after initial ticks
// and every period ticks after that.
func NewTimer(period, initial int) *Timer {
	if period < 1 {
		period = 1
	}
	return &Timer{
		period:    period,
		remaining: initial,
	}
}

// Start arms the timer
func (t *Timer) Start() {
	t.running = true
}

// Stop disarms the timer; Clock becomes a no-op
func (t *Timer) Stop() {
	t.running = false
}

// IsRunning returns true if timer is currently running
func (t *Timer) IsRunning() bool {
	return t.running
}

// Clock advances the timer by one tick. It returns true on the tick that
// reaches zero, and reloads the period.
func (t *Timer) Clock() bool {
	if !t.running {
		return false
	}

	t.remaining--
	if t.remaining > 0 {
		return false
	}

	t.remaining = t.period
	return true
}

// Remaining returns the ticks left before the next expiry
func (t *Timer) Remaining() int {
	return t.remaining
}

// Period returns the reload value
func (t *Timer) Period() int {
	return t.period
}
