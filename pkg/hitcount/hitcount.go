package hitcount

type (
	//Counter is a sliding-window hit counter bucketed by second of day.
	//Buckets older than the count window are retained for a grace period so
	//slightly out-of-order records still land in their own second, without
	//letting stale buckets inflate the count.
	Counter struct {
		Threshold int // hits allowed in the window before the next one fires
		Interval  int // count window length in seconds; 0 means Threshold
		Window    int // grace buffer length in seconds

		hits map[int]map[string]int // second of day -> key -> count
	}
)

// NewCounter creates an empty counter. interval may be 0, in which case the
// count window spans threshold seconds.
func NewCounter(threshold int, interval int, window int) *Counter {
	return &Counter{
		Threshold: threshold,
		Interval:  interval,
		Window:    window,
		hits:      make(map[int]map[string]int),
	}
}

func (c *Counter) span() int {
	if c.Interval > 0 {
		return c.Interval
	}
	return c.Threshold
}

// Add records one hit for key at second sec and reports the in-window count
// and whether the threshold was crossed. On a crossing the key's bucket for
// sec is cleared so those hits do not compound into later counts; following
// lines of the same burst can still cross, and the violation queue
// deduplicates those.
func (c *Counter) Add(sec int, key string) (int, bool) {
	countWindow := sec - c.span()
	bufferWindow := countWindow - c.Window

	// purge buckets past the grace buffer
	for second := range c.hits {
		if second <= bufferWindow {
			delete(c.hits, second)
		}
	}

	bucket := c.hits[sec]
	if bucket == nil {
		bucket = make(map[string]int)
		c.hits[sec] = bucket
	}
	bucket[key]++

	// Count only the window ending at this record's own second. The lower
	// bound leaves grace-buffer buckets retained but uncounted; the upper
	// bound keeps a late record from seeing buckets in its future, so an
	// out-of-order record can never cross the threshold on behalf of the
	// newer records around it.
	count := 0
	for second, keys := range c.hits {
		if second >= countWindow && second <= sec {
			count += keys[key]
		}
	}

	if count > c.Threshold {
		delete(bucket, key)
		return count, true
	}
	return count, false
}

// Flush drops every bucket. Called on date or timezone rollover and on
// ruleset reload.
func (c *Counter) Flush() {
	c.hits = make(map[int]map[string]int)
}

// Buckets reports how many seconds currently hold hits.
func (c *Counter) Buckets() int {
	return len(c.hits)
}

// OldestBucket returns the smallest second holding hits, or -1 when empty.
func (c *Counter) OldestBucket() int {
	oldest := -1
	for second := range c.hits {
		if oldest < 0 || second < oldest {
			oldest = second
		}
	}
	return oldest
}
