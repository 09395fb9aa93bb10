// Package alert decides whether detector findings become notifications.
//
// A Dispatcher applies, in order: the global maintenance switch, a per-key
// cooldown, and finally delivery through a Notifier. Delivery failures still
// consume the cooldown so a dead webhook is not hammered.
package alert

import (
	"context"
	"time"

	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Notifier delivers an alert to the outside world.
type Notifier interface {
	Notify(ctx context.Context, a model.Alert) error
}

// Decision is the dispatcher's verdict for one alert.
type Decision int

const (
	Dispatched Decision = iota
	SuppressedMaintenance
	SuppressedCooldown
)

func (d Decision) String() string {
	switch d {
	case Dispatched:
		return "dispatched"
	case SuppressedMaintenance:
		return "suppressed_maintenance"
	case SuppressedCooldown:
		return "suppressed_cooldown"
	default:
		return "unknown"
	}
}

// Result is returned by Dispatch. Alert is the input with its ID assigned.
// Err is set only for a dispatched alert whose delivery failed.
type Result struct {
	Alert    model.Alert
	Decision Decision
	Err      error
}

// Dispatcher is not safe for concurrent use; the monitor loop owns it.
type Dispatcher struct {
	notifier    Notifier
	cooldown    time.Duration
	maintenance func() bool
	last        map[string]time.Time
	log         zerolog.Logger
}

// NewDispatcher creates a Dispatcher. maintenance is consulted on every
// call so the flag can change at runtime; nil means never in maintenance.
func NewDispatcher(n Notifier, cooldown time.Duration, maintenance func() bool, log zerolog.Logger) *Dispatcher {
	if maintenance == nil {
		maintenance = func() bool { return false }
	}
	return &Dispatcher{
		notifier:    n,
		cooldown:    cooldown,
		maintenance: maintenance,
		last:        make(map[string]time.Time),
		log:         log,
	}
}

// Dispatch sends a unless maintenance mode or the cooldown for a.DedupKey
// suppresses it.
func (d *Dispatcher) Dispatch(ctx context.Context, a model.Alert, now time.Time) Result {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}

	// Maintenance must not touch cooldown bookkeeping.
	if d.maintenance() {
		d.log.Debug().Str("kind", string(a.Kind)).Msg("alert_suppressed_maintenance")
		return Result{Alert: a, Decision: SuppressedMaintenance}
	}

	if last, ok := d.last[a.DedupKey]; ok && now.Sub(last) < d.cooldown {
		d.log.Debug().
			Str("kind", string(a.Kind)).
			Dur("remaining", d.cooldown-now.Sub(last)).
			Msg("alert_suppressed_cooldown")
		return Result{Alert: a, Decision: SuppressedCooldown}
	}

	d.last[a.DedupKey] = now

	if err := d.notifier.Notify(ctx, a); err != nil {
		d.log.Error().Err(err).Str("kind", string(a.Kind)).Str("alert_id", a.ID).Msg("alert_delivery_failed")
		return Result{Alert: a, Decision: Dispatched, Err: err}
	}
	d.log.Info().Str("kind", string(a.Kind)).Str("alert_id", a.ID).Msg("alert_dispatched")
	return Result{Alert: a, Decision: Dispatched}
}

// LastDispatch returns when key last dispatched, if ever.
func (d *Dispatcher) LastDispatch(key string) (time.Time, bool) {
	t, ok := d.last[key]
	return t, ok
}
