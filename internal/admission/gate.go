// Package admission implements the client side of the external admission
// coordinator. Generation-class dispatches acquire a rate-limited execution
// slot per relay server before any attempt is issued; the coordinator paces
// callers with a fixed per-server cooldown window.
package admission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	log "github.com/sirupsen/logrus"
)

// DefaultCooldownSeconds is the per-server cooldown window requested from
// the coordinator when none is configured.
const DefaultCooldownSeconds = 30

// Gate is an HTTP client for the admission coordinator. It makes a single
// blocking round trip per Acquire and never retries: admission control
// failing open would defeat its purpose, so coordinator failures abort the
// whole dispatch.
type Gate struct {
	endpoint        string
	cooldownSeconds int
	client          *http.Client
}

// slotRequest is the coordinator wire format.
type slotRequest struct {
	CooldownSeconds int    `json:"cooldown_seconds"`
	ServerURL       string `json:"server_url"`
}

// New creates a gate against the coordinator at endpoint. cooldownSeconds
// <= 0 selects DefaultCooldownSeconds. The HTTP client carries no timeout of
// its own; the coordinator may legitimately hold the request while pacing,
// so cancellation is the caller's context's job.
func New(endpoint string, cooldownSeconds int) *Gate {
	if cooldownSeconds <= 0 {
		cooldownSeconds = DefaultCooldownSeconds
	}
	return &Gate{
		endpoint:        endpoint,
		cooldownSeconds: cooldownSeconds,
		client:          &http.Client{},
	}
}

// Acquire blocks until the coordinator grants an execution slot for
// serverURL, or fails.
func (g *Gate) Acquire(ctx context.Context, serverURL string) error {
	body, err := json.Marshal(slotRequest{
		CooldownSeconds: g.cooldownSeconds,
		ServerURL:       serverURL,
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("acquire slot for %s: %w", serverURL, err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("admission gate: close response body error: %v", errClose)
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("coordinator rejected slot for %s: status %d: %s", serverURL, resp.StatusCode, string(b))
	}
	log.Debugf("admission gate: slot granted for %s (cooldown %ds)", serverURL, g.cooldownSeconds)
	return nil
}
