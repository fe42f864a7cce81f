// Package scheduler runs periodic maintenance jobs with a bounded worker pool.
package scheduler

import "time"

// Config defines the scheduler configuration.
type Config struct {
	// Tick is how often the scheduler looks for due jobs.
	Tick time.Duration `yaml:"tick"`
	// GlobalMax is the maximum number of jobs running at once.
	GlobalMax int `yaml:"global_max"`
	// Intervals overrides per-job run intervals.
	Intervals map[string]time.Duration `yaml:"intervals"`
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		Tick:      time.Second,
		GlobalMax: 2,
		Intervals: map[string]time.Duration{
			JobBudgetRollover: time.Hour,
			JobRetireReview:   24 * time.Hour,
		},
	}
}

// IntervalFor returns the interval for a job, or def if none is configured.
func (c *Config) IntervalFor(name string, def time.Duration) time.Duration {
	if d, ok := c.Intervals[name]; ok && d > 0 {
		return d
	}
	return def
}
