// Package monitor wires the log pipeline together: every line is parsed,
// fed to the window and pool trackers, and any resulting finding goes
// through the alert dispatcher.
package monitor

import (
	"context"
	"time"

	"github.com/atikulmunna/loomwatch/internal/alert"
	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/atikulmunna/loomwatch/internal/parser"
	"github.com/atikulmunna/loomwatch/internal/pool"
	"github.com/atikulmunna/loomwatch/internal/window"
	"github.com/rs/zerolog"
)

// Recorder receives diagnostics. *aggregator.Aggregator implements it.
type Recorder interface {
	RecordLine(parsed bool)
	RecordWindow(ratio float64, ok bool, length, capacity, errors int)
	RecordPool(pool string)
	RecordAlert(rec model.AlertRecord)
}

// Publisher receives every dispatcher outcome. *hub.Hub implements it.
type Publisher interface {
	Publish(rec model.AlertRecord)
}

type Options struct {
	Parser     parser.Parser
	Window     *window.Tracker
	Pools      *pool.Tracker
	Dispatcher *alert.Dispatcher
	Threshold  float64 // error percentage that triggers an alert, inclusive

	Recorder  Recorder         // optional
	Publisher Publisher        // optional
	Clock     func() time.Time // defaults to time.Now
	Logger    zerolog.Logger
}

// Monitor owns all detection state. It is driven by a single goroutine and
// needs no locking.
type Monitor struct {
	parser     parser.Parser
	window     *window.Tracker
	pools      *pool.Tracker
	dispatcher *alert.Dispatcher
	threshold  float64
	recorder   Recorder
	publisher  Publisher
	clock      func() time.Time
	log        zerolog.Logger
}

func New(o Options) *Monitor {
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Recorder == nil {
		o.Recorder = nopRecorder{}
	}
	if o.Publisher == nil {
		o.Publisher = nopPublisher{}
	}
	return &Monitor{
		parser:     o.Parser,
		window:     o.Window,
		pools:      o.Pools,
		dispatcher: o.Dispatcher,
		threshold:  o.Threshold,
		recorder:   o.Recorder,
		publisher:  o.Publisher,
		clock:      o.Clock,
		log:        o.Logger,
	}
}

// Run consumes lines until the channel closes or the context is cancelled.
func (m *Monitor) Run(ctx context.Context, lines <-chan model.RawLine) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-lines:
			if !ok {
				return nil
			}
			m.HandleLine(ctx, raw.Text)
		}
	}
}

// HandleLine processes one raw line and returns the dispatcher outcomes it
// caused, if any.
func (m *Monitor) HandleLine(ctx context.Context, line string) []model.AlertRecord {
	ev, ok := m.parser.Parse(line)
	m.recorder.RecordLine(ok)
	if !ok {
		return nil
	}

	m.window.Record(ev.IsServerError())
	fo, switched := m.pools.Observe(ev.Pool)
	m.recorder.RecordPool(m.pools.Current())

	now := m.clock()
	var records []model.AlertRecord

	if switched {
		m.log.Info().Str("from", fo.From).Str("to", fo.To).Msg("failover_detected")
		records = append(records, m.dispatch(ctx, alert.Failover(fo, ev, now), now))
	}

	pct, breached := m.window.Breached(m.threshold)
	_, defined := m.window.Ratio()
	m.recorder.RecordWindow(pct, defined, m.window.Len(), m.window.Capacity(), m.window.Errors())
	if breached {
		a := alert.ErrorRate(pct, m.window.Len(), m.threshold, m.pools.Current(), now)
		records = append(records, m.dispatch(ctx, a, now))
	}

	return records
}

func (m *Monitor) dispatch(ctx context.Context, a model.Alert, now time.Time) model.AlertRecord {
	res := m.dispatcher.Dispatch(ctx, a, now)
	rec := model.AlertRecord{Alert: res.Alert, Decision: res.Decision.String()}
	if res.Err != nil {
		rec.Error = res.Err.Error()
	}
	m.recorder.RecordAlert(rec)
	m.publisher.Publish(rec)
	return rec
}

type nopRecorder struct{}

func (nopRecorder) RecordLine(bool)                           {}
func (nopRecorder) RecordWindow(float64, bool, int, int, int) {}
func (nopRecorder) RecordPool(string)                         {}
func (nopRecorder) RecordAlert(model.AlertRecord)             {}

type nopPublisher struct{}

func (nopPublisher) Publish(model.AlertRecord) {}
