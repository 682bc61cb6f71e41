package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/relayforge/relayctl/internal/credential"
)

// DefaultAttemptTimeout bounds each individual network attempt. The relay
// protocol itself imposes no per-attempt deadline; without one a single hung
// relay would stall the whole plan.
const DefaultAttemptTimeout = 120 * time.Second

// Gate grants a rate-limited execution slot before generation-class calls
// are attempted. Acquire blocks until the external coordinator answers; its
// failure aborts the whole dispatch without issuing any attempt.
type Gate interface {
	Acquire(ctx context.Context, serverURL string) error
}

// Result reports a successful dispatch: the payload plus exactly which
// (token, server) pair produced it.
type Result struct {
	// Payload is the relay response body.
	Payload []byte
	// Token is the credential that succeeded.
	Token credential.Credential
	// Server is the relay that answered.
	Server string
	// Source labels where Token came from.
	Source credential.Source
	// Attempts is how many network calls were made, including the success.
	Attempts int
}

// Options configures a Dispatcher.
type Options struct {
	// HTTPClient issues the attempts. Defaults to a client with
	// DefaultAttemptTimeout.
	HTTPClient *http.Client
	// Gate paces generation-class calls. nil disables admission control.
	Gate Gate
	// Sink receives one failure record per fully exhausted dispatch.
	// nil disables the sink.
	Sink FailureSink
	// Servers resolves primary and backup relays.
	Servers ServerOptions
	// Rand drives plan shuffling. Inject a seeded source in tests for
	// deterministic plans. Defaults to a time-seeded source.
	Rand *rand.Rand
}

// Dispatcher executes calls against relay servers with (token, server)
// failover. A single dispatcher is safe for concurrent use; dispatches are
// independent and share no state beyond the shuffle source.
type Dispatcher struct {
	client  *http.Client
	gate    Gate
	sink    FailureSink
	servers ServerOptions

	mu  sync.Mutex
	rng *rand.Rand
}

// New constructs a Dispatcher.
func New(opts Options) *Dispatcher {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultAttemptTimeout}
	}
	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Dispatcher{
		client:  client,
		gate:    opts.Gate,
		sink:    opts.Sink,
		servers: opts.Servers,
		rng:     rng,
	}
}

// UpdateServers replaces the relay server options, e.g. after a config
// reload. In-flight dispatches keep the options they started with; new
// dispatches pick up the replacement.
func (d *Dispatcher) UpdateServers(opts ServerOptions) {
	d.mu.Lock()
	d.servers = opts
	d.mu.Unlock()
}

// Do runs one dispatch: admission (generation calls only), plan construction,
// then strictly sequential attempts until success, a terminal failure, or
// exhaustion. At most one network call succeeds per dispatch; attempts after
// a success are never issued.
func (d *Dispatcher) Do(ctx context.Context, call Call, snap credential.Snapshot) (*Result, error) {
	d.mu.Lock()
	servers := d.servers
	d.mu.Unlock()

	primary := primaryServer(call, servers)

	if d.gate != nil && IsGenerationLabel(call.LogLabel) {
		if err := d.gate.Acquire(ctx, primary); err != nil {
			return nil, fmt.Errorf("admission gate: %w", err)
		}
	}

	d.mu.Lock()
	plan, err := buildPlan(call, snap, servers, d.rng)
	d.mu.Unlock()
	if err != nil {
		dispatchesTotal.WithLabelValues(string(call.Service), string(credential.SourcePool), outcomeNoCredentials).Inc()
		return nil, err
	}

	username := snap.Username
	if username == "" {
		username = "unknown"
	}

	service := string(call.Service)
	source := string(plan[0].Source)
	var lastErr error

	for i, attempt := range plan {
		start := time.Now()
		payload, errAttempt := d.attempt(ctx, call, attempt, username)
		attemptDurationSeconds.WithLabelValues(service, source).Observe(time.Since(start).Seconds())

		if errAttempt == nil {
			attemptsTotal.WithLabelValues(service, source, outcomeSuccess).Inc()
			dispatchesTotal.WithLabelValues(service, source, outcomeSuccess).Inc()
			return &Result{
				Payload:  payload,
				Token:    attempt.Token,
				Server:   attempt.Server,
				Source:   attempt.Source,
				Attempts: i + 1,
			}, nil
		}

		if se, ok := errAttempt.(statusErr); ok &&
			(isTerminalStatus(se.code) || isContentPolicyMessage(se.msg)) {
			attemptsTotal.WithLabelValues(service, source, outcomeTerminal).Inc()
			dispatchesTotal.WithLabelValues(service, source, outcomeTerminal).Inc()
			log.Debugf("dispatch %s: terminal failure on %s (token %s), status %d: %s",
				call.LogLabel, attempt.Server, attempt.Token.Fingerprint(), se.code, se.msg)
			return nil, attemptsError{err: errAttempt, attempts: i + 1}
		}

		attemptsTotal.WithLabelValues(service, source, outcomeRetriable).Inc()
		log.Debugf("dispatch %s: attempt %d/%d failed on %s (token %s): %v",
			call.LogLabel, i+1, len(plan), attempt.Server, attempt.Token.Fingerprint(), errAttempt)
		lastErr = errAttempt
	}

	dispatchesTotal.WithLabelValues(service, source, outcomeExhausted).Inc()

	if call.SpecificToken == nil {
		d.reportExhaustion(ctx, call, len(plan), lastErr)
	}
	return nil, attemptsError{err: lastErr, attempts: len(plan)}
}

// attempt issues exactly one network call. Transport errors come back as-is
// (retriable); non-success statuses come back as statusErr with the message
// extracted from the body.
func (d *Dispatcher) attempt(ctx context.Context, call Call, at Attempt, username string) ([]byte, error) {
	url := at.Server + "/api/" + string(call.Service) + call.RelativePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(call.Body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+at.Token.Token)
	req.Header.Set("x-user-username", username)

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.Errorf("dispatch: close response body error: %v", errClose)
		}
	}()

	// Read the full body as text before any structured interpretation; relays
	// forward backend output verbatim and it is not always well-formed JSON.
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if isSuccessStatus(resp.StatusCode) {
		return body, nil
	}
	return nil, statusErr{code: resp.StatusCode, msg: errorMessageFromBody(resp.StatusCode, body)}
}

// reportExhaustion emits the single structured failure record for a fully
// retriable-failed dispatch. Terminal and pinned-token failures never reach
// here: the former are user-input issues, the latter belong to the caller's
// own flow.
func (d *Dispatcher) reportExhaustion(ctx context.Context, call Call, attempts int, lastErr error) {
	errText := "unknown error"
	if lastErr != nil {
		errText = lastErr.Error()
	}
	log.WithFields(log.Fields{
		"label":    call.LogLabel,
		"service":  call.Service,
		"attempts": attempts,
	}).Errorf("dispatch exhausted all attempts: %s", errText)

	if d.sink == nil {
		return
	}
	d.sink.Record(ctx, FailureRecord{
		ID:       uuid.NewString(),
		Label:    call.LogLabel,
		Input:    summarize(call.Body, 256),
		Output:   summarize([]byte(errText), 256),
		Status:   "error",
		Error:    errText,
		Attempts: attempts,
	})
}

// summarize truncates b to at most limit bytes, backing off to the previous
// rune boundary so the result stays valid UTF-8.
func summarize(b []byte, limit int) string {
	if len(b) <= limit {
		return string(b)
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(b[cut]) {
		cut--
	}
	return string(b[:cut]) + "..."
}
