package pgdb

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestOverCapacityThreshold(t *testing.T) {
	tests := []struct {
		name     string
		opened   int
		max      int
		reserved int
		want     bool
	}{
		{name: "above 80 percent of usable", opened: 78, max: 100, reserved: 3, want: true},
		{name: "below 80 percent of usable", opened: 70, max: 100, reserved: 3, want: false},
		{name: "exactly at threshold is not pressure", opened: 80, max: 103, reserved: 3, want: false},
		{name: "limits not loaded", opened: 50, max: 0, reserved: 0, want: false},
		{name: "reserved swallows everything", opened: 1, max: 3, reserved: 3, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overCapacityThreshold(tt.opened, tt.max, tt.reserved))
		})
	}
}

func TestConnectionCacheLimits(t *testing.T) {
	var c connectionCache

	_, _, ok := c.limits()
	assert.False(t, ok)

	c.setLimits(100, 3)
	max, reserved, ok := c.limits()
	assert.True(t, ok)
	assert.Equal(t, 100, max)
	assert.Equal(t, 3, reserved)
}

func TestConnectionCacheOpenedFreshness(t *testing.T) {
	var c connectionCache
	now := time.Now()

	_, fresh := c.opened(now)
	assert.False(t, fresh, "no reading yet")

	c.setOpened(42, now)

	opened, fresh := c.opened(now.Add(2 * time.Second))
	assert.True(t, fresh)
	assert.Equal(t, 42, opened)

	_, fresh = c.opened(now.Add(openedTTL))
	assert.False(t, fresh, "reading expires after the freshness window")
}

func TestConnectionCacheQueryCounter(t *testing.T) {
	var c connectionCache

	assert.Equal(t, int64(1), c.countQuery())
	assert.Equal(t, int64(2), c.countQuery())
	assert.Equal(t, int64(2), c.snapshot().Queries)
}
