// Package process forwards committed workflow steps to an external process
// engine over HTTP.
package process

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"

	"collabhub/internal/engine"
)

const defaultTimeout = 5 * time.Second

// Webhook posts each event as JSON to URL.
type Webhook struct {
	URL    string
	Secret string
	Client *http.Client
}

func NewWebhook(url, secret string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout
	return &Webhook{URL: url, Secret: secret, Client: client}
}

func (w *Webhook) Notify(ctx context.Context, ev engine.ProcessEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Collabhub-Event", ev.Type)
	req.Header.Set("X-Collabhub-Entity", strconv.FormatInt(ev.EntityID, 10))
	if strings.TrimSpace(w.Secret) != "" {
		req.Header.Set("X-Collabhub-Secret", w.Secret)
	}
	client := w.Client
	if client == nil {
		client = cleanhttp.DefaultClient()
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}
