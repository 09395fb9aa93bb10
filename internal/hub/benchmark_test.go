package hub

import (
	"testing"

	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/rs/zerolog"
)

// BenchmarkHubPublish measures the cost of publishing to N subscribers.
func BenchmarkHubPublish1(b *testing.B)  { benchHubPublish(b, 1) }
func BenchmarkHubPublish5(b *testing.B)  { benchHubPublish(b, 5) }
func BenchmarkHubPublish10(b *testing.B) { benchHubPublish(b, 10) }

func benchHubPublish(b *testing.B, numSubs int) {
	h := New(zerolog.Nop())
	defer h.Close()

	// Create subscribers and drain them.
	for i := 0; i < numSubs; i++ {
		ch, _ := h.Subscribe()
		go func() {
			for range ch {
			}
		}()
	}

	rec := model.AlertRecord{Alert: model.Alert{Kind: model.KindErrorRate}, Decision: "dispatched"}

	b.ResetTimer()
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		h.Publish(rec)
	}
}
