package scheduler

import "time"

const (
	defaultRunInterval = time.Minute
	defaultSlotWindow  = time.Hour
)

// Config tunes the trigger loop. The zero value is usable.
type Config struct {
	// RunInterval is how often the loop re-checks the schedule.
	RunInterval time.Duration
	// SlotWindow is how long after the scheduled hour a missed trigger
	// may still fire.
	SlotWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.RunInterval <= 0 {
		c.RunInterval = defaultRunInterval
	}
	if c.SlotWindow <= 0 {
		c.SlotWindow = defaultSlotWindow
	}
	return c
}
