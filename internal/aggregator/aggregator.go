package aggregator

import (
	"sync"
	"time"

	"github.com/atikulmunna/loomwatch/internal/model"
)

// epsWindow is the span, in seconds, used for the lines-per-second figure.
const epsWindow = 5

// Stats holds a point-in-time snapshot of the monitor's diagnostics.
type Stats struct {
	Uptime           string             `json:"uptime"`
	LinesRead        int64              `json:"lines_read"`
	LinesParsed      int64              `json:"lines_parsed"`
	LinesUnparsed    int64              `json:"lines_unparsed"`
	LPS              float64            `json:"lines_per_sec"`
	ErrorRate        *float64           `json:"error_rate"` // nil until the sample floor is reached
	WindowLen        int                `json:"window_len"`
	WindowCapacity   int                `json:"window_capacity"`
	WindowErrors     int                `json:"window_errors"`
	CurrentPool      string             `json:"current_pool"`
	Alerts           map[string]int64   `json:"alerts"` // by decision
	DeliveryFailures int64              `json:"delivery_failures"`
	LastAlert        *model.AlertRecord `json:"last_alert,omitempty"`
	Reopens          int64              `json:"reopens"`
	DroppedRecords   int64              `json:"dropped_records"`
	Maintenance      bool               `json:"maintenance"`
}

// Sources supplies live values owned by other components.
type Sources struct {
	Reopens     func() int64
	Dropped     func() int64
	Maintenance func() bool
}

type bucket struct {
	sec int64
	n   int64
}

// Aggregator collects counters from the monitor loop and serves snapshots
// to other goroutines.
type Aggregator struct {
	mu        sync.RWMutex
	now       func() time.Time
	startTime time.Time
	src       Sources

	linesRead     int64
	linesParsed   int64
	linesUnparsed int64
	buckets       [epsWindow]bucket

	ratio       float64
	ratioOK     bool
	windowLen   int
	windowCap   int
	windowErrs  int
	currentPool string

	alerts    map[string]int64
	failures  int64
	lastAlert *model.AlertRecord
}

// New creates an Aggregator. Nil source funcs report zero values.
func New(src Sources) *Aggregator {
	return newWithClock(src, time.Now)
}

func newWithClock(src Sources, now func() time.Time) *Aggregator {
	if src.Reopens == nil {
		src.Reopens = func() int64 { return 0 }
	}
	if src.Dropped == nil {
		src.Dropped = func() int64 { return 0 }
	}
	if src.Maintenance == nil {
		src.Maintenance = func() bool { return false }
	}
	return &Aggregator{
		now:       now,
		startTime: now(),
		src:       src,
		alerts:    make(map[string]int64),
	}
}

// RecordLine counts one line read from the log.
func (a *Aggregator) RecordLine(parsed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.linesRead++
	if parsed {
		a.linesParsed++
	} else {
		a.linesUnparsed++
	}

	sec := a.now().Unix()
	b := &a.buckets[sec%epsWindow]
	if b.sec != sec {
		b.sec, b.n = sec, 0
	}
	b.n++
}

// RecordWindow stores the current sliding window state.
func (a *Aggregator) RecordWindow(ratio float64, ok bool, length, capacity, errors int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ratio, a.ratioOK = ratio, ok
	a.windowLen, a.windowCap, a.windowErrs = length, capacity, errors
}

// RecordPool stores the last observed pool.
func (a *Aggregator) RecordPool(pool string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentPool = pool
}

// RecordAlert counts a dispatcher outcome.
func (a *Aggregator) RecordAlert(rec model.AlertRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.alerts[rec.Decision]++
	if rec.Error != "" {
		a.failures++
	}
	a.lastAlert = &rec
}

// Snapshot returns the current metrics.
func (a *Aggregator) Snapshot() Stats {
	a.mu.RLock()
	defer a.mu.RUnlock()

	alerts := make(map[string]int64, len(a.alerts))
	for k, v := range a.alerts {
		alerts[k] = v
	}

	// Lines per second over the last full epsWindow seconds.
	now := a.now()
	cutoff := now.Unix() - epsWindow
	var recent int64
	for _, b := range a.buckets {
		if b.sec > cutoff {
			recent += b.n
		}
	}

	var ratio *float64
	if a.ratioOK {
		r := a.ratio
		ratio = &r
	}

	return Stats{
		Uptime:           now.Sub(a.startTime).Truncate(time.Second).String(),
		LinesRead:        a.linesRead,
		LinesParsed:      a.linesParsed,
		LinesUnparsed:    a.linesUnparsed,
		LPS:              float64(recent) / epsWindow,
		ErrorRate:        ratio,
		WindowLen:        a.windowLen,
		WindowCapacity:   a.windowCap,
		WindowErrors:     a.windowErrs,
		CurrentPool:      a.currentPool,
		Alerts:           alerts,
		DeliveryFailures: a.failures,
		LastAlert:        a.lastAlert,
		Reopens:          a.src.Reopens(),
		DroppedRecords:   a.src.Dropped(),
		Maintenance:      a.src.Maintenance(),
	}
}
