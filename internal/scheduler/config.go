package scheduler

import (
	"time"
)

// Config controls the scheduler interval, job timeout and refresh window.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration

	// LookBackMonths is how many trailing months, current month included,
	// each run re-derives snapshots for. Credits can land months after the
	// charge they reverse, so a wider window means fewer stale snapshots.
	LookBackMonths int

	// EnabledJobs limits the run to the named jobs. Empty means all.
	EnabledJobs []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:    time.Hour,
		JobTimeout:     10 * time.Minute,
		LookBackMonths: 12,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.LookBackMonths <= 0 {
		c.LookBackMonths = defaults.LookBackMonths
	}
	return c
}
