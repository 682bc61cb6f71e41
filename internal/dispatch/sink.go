package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
)

// FailureRecord summarizes one fully exhausted dispatch for the failure log
// sink. At most one record is emitted per dispatch.
type FailureRecord struct {
	ID       string `json:"id"`
	Label    string `json:"label"`
	Input    string `json:"input"`
	Output   string `json:"output"`
	Status   string `json:"status"`
	Error    string `json:"error"`
	Attempts int    `json:"attempts"`
}

// FailureSink receives failure records. Implementations are fire-and-forget:
// they must never block the caller's result or surface their own errors into
// the dispatch outcome.
type FailureSink interface {
	Record(ctx context.Context, rec FailureRecord)
}

// HTTPSink posts failure records to a remote collector.
type HTTPSink struct {
	url    string
	client *http.Client
}

// NewHTTPSink creates a sink posting to url.
func NewHTTPSink(url string) *HTTPSink {
	return &HTTPSink{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Record implements FailureSink. The post runs on its own goroutine with a
// detached context so an abandoned dispatch cannot cancel the emission.
func (s *HTTPSink) Record(_ context.Context, rec FailureRecord) {
	go func() {
		body, err := json.Marshal(rec)
		if err != nil {
			log.WithError(err).Warn("failure sink: marshal record")
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			log.WithError(err).Warn("failure sink: build request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			log.WithError(err).Warnf("failure sink: post to %s", s.url)
			return
		}
		_ = resp.Body.Close()
	}()
}
