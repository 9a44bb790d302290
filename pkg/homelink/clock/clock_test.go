package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("fires timers in deadline order", func(t *testing.T) {
		c := NewFake(start)
		var order []string

		c.AfterFunc(2*time.Second, func() { order = append(order, "b") })
		c.AfterFunc(1*time.Second, func() { order = append(order, "a") })
		c.AfterFunc(5*time.Second, func() { order = append(order, "c") })

		c.Advance(3 * time.Second)
		assert.Equal(t, []string{"a", "b"}, order)
		assert.Equal(t, start.Add(3*time.Second), c.Now())
		assert.Equal(t, []time.Duration{2 * time.Second}, c.Pending())

		c.Advance(2 * time.Second)
		assert.Equal(t, []string{"a", "b", "c"}, order)
		assert.Empty(t, c.Pending())
	})

	t.Run("stopped timers never fire", func(t *testing.T) {
		c := NewFake(start)
		fired := false

		timer := c.AfterFunc(time.Second, func() { fired = true })
		assert.True(t, timer.Stop())
		assert.False(t, timer.Stop())

		c.Advance(time.Minute)
		assert.False(t, fired)
	})

	t.Run("callbacks may schedule follow-ups inside the window", func(t *testing.T) {
		c := NewFake(start)
		count := 0

		var tick func()
		tick = func() {
			count++
			c.AfterFunc(time.Second, tick)
		}
		c.AfterFunc(time.Second, tick)

		c.Advance(3 * time.Second)
		assert.Equal(t, 3, count)
	})

	t.Run("stop after fire reports false", func(t *testing.T) {
		c := NewFake(start)
		timer := c.AfterFunc(time.Millisecond, func() {})
		c.Advance(time.Second)
		assert.False(t, timer.Stop())
	})
}
