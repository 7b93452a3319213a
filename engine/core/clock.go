package core

import (
	"time"

	"github.com/loov/hrtime"
)

// Clock measures elapsed seconds since Start using the high resolution timer.
type Clock struct {
	startTime time.Duration
	elapsed   float64
	running   bool
	now       func() time.Duration
}

func NewClock() *Clock {
	return &Clock{now: hrtime.Now}
}

// Updates the provided clock. Should be called just before checking elapsed time.
// Has no effect on non-started clocks.
func (c *Clock) Update() {
	if c.running {
		c.elapsed = (c.now() - c.startTime).Seconds()
	}
}

// Starts the provided clock. Resets elapsed time.
func (c *Clock) Start() {
	c.startTime = c.now()
	c.elapsed = 0
	c.running = true
}

// Stops the provided clock. Does not reset elapsed time.
func (c *Clock) Stop() {
	c.running = false
}

// Elapsed returns the seconds between Start and the last Update.
func (c *Clock) Elapsed() float64 {
	return c.elapsed
}
