package hitcount

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestThresholdCrossing(t *testing.T) {
	c := NewCounter(2, 0, 30)

	// seconds 100, 100, 101: the third hit crosses threshold 2
	_, crossed := c.Add(100, "10.1.1.1")
	assert.False(t, crossed)
	_, crossed = c.Add(100, "10.1.1.1")
	assert.False(t, crossed)
	count, crossed := c.Add(101, "10.1.1.1")
	assert.True(t, crossed)
	assert.Equal(t, 3, count)
}

func TestNthHitDoesNotFire(t *testing.T) {
	c := NewCounter(3, 0, 30)

	for i := 0; i < 3; i++ {
		_, crossed := c.Add(200, "k")
		assert.False(t, crossed, "hit %d", i+1)
	}
	_, crossed := c.Add(200, "k")
	assert.True(t, crossed, "hit N+1")
}

func TestKeysIndependent(t *testing.T) {
	c := NewCounter(1, 0, 30)

	_, crossed := c.Add(100, "a")
	assert.False(t, crossed)
	_, crossed = c.Add(100, "b")
	assert.False(t, crossed)
	_, crossed = c.Add(100, "a")
	assert.True(t, crossed)
}

func TestCrossingClearsBucket(t *testing.T) {
	c := NewCounter(2, 0, 30)

	c.Add(100, "k")
	c.Add(100, "k")
	_, crossed := c.Add(101, "k")
	assert.True(t, crossed)

	// the cleared second-101 bucket keeps the very next hit from compounding
	count, _ := c.Add(101, "k")
	assert.Equal(t, 3, count)
}

func TestOutOfOrderTolerance(t *testing.T) {
	// spec scenario: threshold 2, hits at 200, 201, then a late 170, then 202
	c := NewCounter(2, 0, 30)

	_, crossed := c.Add(200, "k")
	assert.False(t, crossed)
	_, crossed = c.Add(201, "k")
	assert.False(t, crossed)

	// the late record lands in its own second instead of being discarded
	_, crossed = c.Add(170, "k")
	assert.False(t, crossed)
	assert.Equal(t, 170, c.OldestBucket())

	// 170 is outside the count window at 202, so only 200 and 201 count
	count, crossed := c.Add(202, "k")
	assert.True(t, crossed)
	assert.Equal(t, 3, count)
}

func TestWindowPurge(t *testing.T) {
	threshold, window := 5, 30
	c := NewCounter(threshold, 0, window)

	c.Add(100, "k")
	c.Add(400, "k")

	// no bucket at or before s - threshold - window may remain
	assert.Equal(t, 1, c.Buckets())
	assert.Equal(t, 400, c.OldestBucket())
}

func TestGraceBucketsNotCounted(t *testing.T) {
	c := NewCounter(2, 0, 30)

	c.Add(100, "k")
	c.Add(100, "k")

	// 25 seconds later the old hits sit in the grace buffer: retained but
	// outside the count window
	count, crossed := c.Add(125, "k")
	assert.False(t, crossed)
	assert.Equal(t, 1, count)
	assert.Equal(t, 100, c.OldestBucket())
}

func TestIntervalOverridesSpan(t *testing.T) {
	// threshold 2 hits inside a 10 second window
	c := NewCounter(2, 10, 30)

	c.Add(100, "k")
	c.Add(105, "k")
	_, crossed := c.Add(109, "k")
	assert.True(t, crossed)

	c.Flush()
	c.Add(100, "k")
	c.Add(105, "k")
	_, crossed = c.Add(120, "k")
	assert.False(t, crossed)
}

func TestFlush(t *testing.T) {
	c := NewCounter(1, 0, 30)
	c.Add(100, "k")
	c.Flush()
	assert.Equal(t, 0, c.Buckets())

	_, crossed := c.Add(100, "k")
	assert.False(t, crossed)
}
