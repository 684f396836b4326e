package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTickingClock(t *testing.T) {
	start := time.Date(2024, 11, 15, 10, 30, 0, 0, time.UTC)
	c := NewTickingClock(start, time.Second)

	assert.Equal(t, start, c.Now())
	assert.Equal(t, start.Add(time.Second), c.Now())
	assert.Equal(t, start.Add(2*time.Second), c.Now())

	c.Reset(start)
	assert.Equal(t, start, c.Now())
}
