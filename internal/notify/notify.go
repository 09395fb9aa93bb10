// Package notify delivers alerts: to a Slack-compatible incoming webhook, or
// to the local console when no endpoint is configured.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/atikulmunna/loomwatch/internal/alert"
	"github.com/atikulmunna/loomwatch/internal/model"
	"github.com/atikulmunna/loomwatch/internal/output"
	"github.com/tidwall/sjson"
)

// ErrDeliveryFailed wraps every transport error and non-2xx response.
var ErrDeliveryFailed = errors.New("alert delivery failed")

const defaultTimeout = 5 * time.Second

// Webhook posts alerts as Slack-style JSON payloads.
type Webhook struct {
	url     string
	client  *http.Client
	timeout time.Duration
}

// NewWebhook creates a Webhook for url. A non-positive timeout uses 5s.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Webhook{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

func (w *Webhook) Notify(ctx context.Context, a model.Alert) error {
	body, err := Payload(a)
	if err != nil {
		return fmt.Errorf("%w: building payload: %v", ErrDeliveryFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook returned %s", ErrDeliveryFailed, resp.Status)
	}
	return nil
}

// Payload builds the webhook body: a bold headline in "text" and one
// attachment whose fields carry the alert metadata.
func Payload(a model.Alert) ([]byte, error) {
	doc := []byte(`{}`)
	set := func(path string, v interface{}) error {
		var err error
		doc, err = sjson.SetBytes(doc, path, v)
		return err
	}

	if err := set("text", "*"+a.Summary+"*"); err != nil {
		return nil, err
	}
	if err := set("attachments.0.color", color(a.Kind)); err != nil {
		return nil, err
	}
	for i, k := range alert.SortedKeys(a.Metadata) {
		if err := set(fmt.Sprintf("attachments.0.fields.%d.title", i), k); err != nil {
			return nil, err
		}
		if err := set(fmt.Sprintf("attachments.0.fields.%d.value", i), a.Metadata[k]); err != nil {
			return nil, err
		}
		if err := set(fmt.Sprintf("attachments.0.fields.%d.short", i), true); err != nil {
			return nil, err
		}
	}
	if err := set("attachments.0.footer", "loomwatch "+a.ID); err != nil {
		return nil, err
	}
	if err := set("attachments.0.ts", a.Timestamp.Unix()); err != nil {
		return nil, err
	}
	return doc, nil
}

func color(kind model.AlertKind) string {
	switch kind {
	case model.KindFailover:
		return "warning"
	case model.KindErrorRate:
		return "danger"
	default:
		return "#439FE0"
	}
}

// Console renders alerts locally. It is the notifier used when no webhook
// endpoint is configured, so nothing ever leaves the host.
type Console struct {
	r output.Renderer
}

func NewConsole(r output.Renderer) *Console {
	return &Console{r: r}
}

func (c *Console) Notify(_ context.Context, a model.Alert) error {
	return c.r.Render(a)
}
