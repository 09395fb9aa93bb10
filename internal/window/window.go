// Package window tracks the error share of the most recent requests.
package window

// Tracker is a fixed-capacity ring of request outcomes with a running error
// count, so recording and reading the ratio are both O(1).
// It is not safe for concurrent use.
type Tracker struct {
	ring       []bool
	next       int // slot the next outcome is written to
	size       int
	errors     int
	minSamples int
}

// New creates a Tracker holding at most capacity outcomes. Ratio stays
// undefined until minSamples outcomes have been recorded.
func New(capacity, minSamples int) *Tracker {
	if capacity < 1 {
		capacity = 1
	}
	if minSamples < 1 {
		minSamples = 1
	}
	return &Tracker{
		ring:       make([]bool, capacity),
		minSamples: minSamples,
	}
}

// Record appends one outcome, evicting the oldest once the ring is full.
func (t *Tracker) Record(isError bool) {
	if t.size == len(t.ring) {
		if t.ring[t.next] {
			t.errors--
		}
	} else {
		t.size++
	}
	t.ring[t.next] = isError
	if isError {
		t.errors++
	}
	t.next = (t.next + 1) % len(t.ring)
}

// Ratio returns the error percentage (0-100) over the current contents.
// ok is false while fewer than minSamples outcomes are held.
func (t *Tracker) Ratio() (pct float64, ok bool) {
	if t.size < t.minSamples {
		return 0, false
	}
	return 100 * float64(t.errors) / float64(t.size), true
}

// Breached reports whether the ratio is defined and at or above threshold.
func (t *Tracker) Breached(threshold float64) (pct float64, breached bool) {
	pct, ok := t.Ratio()
	return pct, ok && pct >= threshold
}

func (t *Tracker) Len() int      { return t.size }
func (t *Tracker) Errors() int   { return t.errors }
func (t *Tracker) Capacity() int { return len(t.ring) }
