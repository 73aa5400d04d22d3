package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "revrec", cfg.AppName)
	assert.InDelta(t, 0.25, cfg.TaxRate, 0.001)
	assert.Equal(t, 12, cfg.SnapshotLookBack)
	assert.Equal(t, time.Hour, cfg.SchedulerInterval)
	assert.True(t, cfg.SchedulerEnabled)
}

func TestLoad_SchedulerEnabledFlag(t *testing.T) {
	for _, tc := range []struct {
		raw  string
		want bool
	}{
		{"false", false},
		{"0", false},
		{"off", false},
		{"true", true},
		{"yes", true},
		{"garbage", true},
	} {
		t.Setenv("SCHEDULER_ENABLED", tc.raw)
		assert.Equal(t, tc.want, Load().SchedulerEnabled, "SCHEDULER_ENABLED=%s", tc.raw)
	}
}
