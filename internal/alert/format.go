package alert

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/atikulmunna/loomwatch/internal/model"
)

// Dedup keys. Cooldowns are per alert kind, so a flapping pair of pools
// produces one failover alert per cooldown period.
const (
	KeyFailover  = "failover"
	KeyErrorRate = "error_rate"
)

// Failover builds the alert for a pool switch revealed by ev.
func Failover(fo model.Failover, ev model.LogEvent, now time.Time) model.Alert {
	return model.Alert{
		Kind:      model.KindFailover,
		DedupKey:  KeyFailover,
		Timestamp: now,
		Summary:   fmt.Sprintf("Failover detected: pool changed %s → %s", fo.From, fo.To),
		Metadata: map[string]string{
			"previous_pool":   fo.From,
			"current_pool":    fo.To,
			"release":         orDash(ev.Release),
			"upstream_addr":   orDash(ev.UpstreamAddr),
			"upstream_status": orDash(ev.UpstreamStatus),
		},
	}
}

// ErrorRate builds the alert for a breached 5xx ratio.
func ErrorRate(pct float64, samples int, threshold float64, pool string, now time.Time) model.Alert {
	return model.Alert{
		Kind:      model.KindErrorRate,
		DedupKey:  KeyErrorRate,
		Timestamp: now,
		Summary: fmt.Sprintf("High upstream 5xx rate: %.2f%% over last %d requests (threshold %s%%)",
			pct, samples, formatFloat(threshold)),
		Metadata: map[string]string{
			"error_rate":   fmt.Sprintf("%.2f", pct),
			"sample_size":  strconv.Itoa(samples),
			"threshold":    formatFloat(threshold),
			"current_pool": orDash(pool),
		},
	}
}

// Text renders an alert as plain multi-line text: a headline followed by
// sorted metadata.
func Text(a model.Alert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s\n%s", a.Kind, a.Timestamp.UTC().Format(time.RFC3339), a.Summary)
	for _, k := range SortedKeys(a.Metadata) {
		fmt.Fprintf(&b, "\n%s: %s", k, a.Metadata[k])
	}
	return b.String()
}

// SortedKeys returns the metadata keys in stable order.
func SortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
