package hub

import (
	"testing"
	"time"

	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func record(decision string) model.AlertRecord {
	return model.AlertRecord{Alert: model.Alert{Kind: model.KindFailover}, Decision: decision}
}

func TestHubBroadcast(t *testing.T) {
	h := New(zerolog.Nop())

	sub1, _ := h.Subscribe()
	sub2, _ := h.Subscribe()

	h.Publish(record("dispatched"))

	for i, sub := range []<-chan model.AlertRecord{sub1, sub2} {
		select {
		case rec := <-sub:
			assert.Equal(t, "dispatched", rec.Decision, "sub%d", i+1)
		case <-time.After(time.Second):
			t.Fatalf("sub%d: timed out", i+1)
		}
	}
}

func TestHubSlowConsumer(t *testing.T) {
	h := New(zerolog.Nop())

	// Subscribe but never read.
	_, _ = h.Subscribe()

	for i := 0; i < subscriberBuffer+10; i++ {
		h.Publish(record("suppressed_cooldown"))
	}

	assert.Equal(t, int64(10), h.Dropped())
}

func TestHubUnsubscribe(t *testing.T) {
	h := New(zerolog.Nop())

	sub, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel() // idempotent
	assert.Equal(t, 0, h.Subscribers())

	_, ok := <-sub
	assert.False(t, ok)

	h.Publish(record("dispatched")) // no panic on a removed subscriber
}

func TestHubClose(t *testing.T) {
	h := New(zerolog.Nop())
	sub, cancel := h.Subscribe()

	h.Close()
	_, ok := <-sub
	assert.False(t, ok)
	cancel()

	late, _ := h.Subscribe()
	_, ok = <-late
	assert.False(t, ok)
}
