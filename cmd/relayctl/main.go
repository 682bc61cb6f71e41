// Package main provides the entry point for relayctl. The binary either
// performs a one-shot dispatch against the configured relay servers or, with
// --serve, runs a local HTTP facade exposing dispatch, health, metrics,
// statistics, and recent logs.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/sjson"

	"github.com/relayforge/relayctl/internal/admission"
	"github.com/relayforge/relayctl/internal/api"
	"github.com/relayforge/relayctl/internal/config"
	"github.com/relayforge/relayctl/internal/credential"
	"github.com/relayforge/relayctl/internal/dispatch"
	"github.com/relayforge/relayctl/internal/logging"
)

var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// init initializes the shared logger setup.
func init() {
	logging.SetupBaseLogger()
}

func main() {
	var (
		configPath     string
		serve          bool
		service        string
		callPath       string
		label          string
		payload        string
		prompt         string
		overrideServer string
		pinnedToken    string
		setToken       string
		checkToken     string
		showVersion    bool
	)

	flag.StringVar(&configPath, "config", "config.yaml", "path to the configuration file")
	flag.BoolVar(&serve, "serve", false, "run the local HTTP facade")
	flag.StringVar(&service, "service", "image", `relay service ("image" or "video")`)
	flag.StringVar(&callPath, "path", "/generate", "relative API path")
	flag.StringVar(&label, "label", "generate-image", "operation label")
	flag.StringVar(&payload, "payload", "", "raw JSON request payload")
	flag.StringVar(&prompt, "prompt", "", "generation prompt (builds the payload when --payload is not given)")
	flag.StringVar(&overrideServer, "server", "", "pin the dispatch to one relay server")
	flag.StringVar(&pinnedToken, "token", "", "pin the dispatch to one credential")
	flag.StringVar(&setToken, "set-token", "", "store a personal credential and exit")
	flag.StringVar(&checkToken, "check-token", "", "health-check a credential and exit")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("relayctl %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return
	}

	// .env is optional; it typically carries RELAYCTL_USERNAME overrides.
	_ = godotenv.Load()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logging.Configure(cfg.Debug, cfg.LogFile)
	dispatch.RegisterMetrics()

	username := cfg.Username
	if env := os.Getenv("RELAYCTL_USERNAME"); env != "" {
		username = env
	}

	storePath := cfg.StorePath
	if storePath == "" {
		storePath = "relayctl.db"
	}
	store, err := credential.OpenStore(storePath)
	if err != nil {
		log.Fatalf("open credential store: %v", err)
	}
	defer func() {
		if errClose := store.Close(); errClose != nil {
			log.Errorf("close credential store: %v", errClose)
		}
	}()

	ctx := context.Background()

	if setToken != "" {
		if err = store.SetPersonalToken(ctx, username, setToken); err != nil {
			log.Fatalf("store personal token: %v", err)
		}
		fmt.Println("personal token stored")
		return
	}

	pool, err := credential.NewPoolFile(cfg.PoolFile)
	if err != nil {
		log.Fatalf("load credential pool: %v", err)
	}
	if err = pool.Watch(); err != nil {
		log.WithError(err).Warn("credential pool: watch disabled")
	}
	defer func() {
		if errClose := pool.Close(); errClose != nil {
			log.Errorf("close credential pool: %v", errClose)
		}
	}()

	dispatcher := newDispatcher(cfg, store)

	snapshot := func(ctx context.Context) (credential.Snapshot, error) {
		personal, errPersonal := store.PersonalToken(ctx, username)
		if errPersonal != nil {
			return credential.Snapshot{}, errPersonal
		}
		return credential.Snapshot{
			Personal: personal,
			Pool:     pool.Snapshot(),
			Username: username,
		}, nil
	}

	if serve {
		// Long-running mode follows configuration edits: logging settings and
		// server options are re-applied on every reload.
		closeWatch, errWatch := config.Watch(configPath, func(next *config.Config) {
			logging.Configure(next.Debug, next.LogFile)
			dispatcher.UpdateServers(serverOptions(next))
		})
		if errWatch != nil {
			log.WithError(errWatch).Warn("config: hot reload disabled")
		} else {
			defer func() {
				if errClose := closeWatch(); errClose != nil {
					log.Errorf("close config watcher: %v", errClose)
				}
			}()
		}

		port := cfg.Serve.Port
		if port <= 0 {
			port = config.DefaultServePort
		}
		if err = api.NewServer(dispatcher, snapshot).Run(port); err != nil {
			log.Fatalf("serve: %v", err)
		}
		return
	}

	if checkToken != "" {
		runCheckToken(ctx, dispatcher, checkToken, username)
		return
	}

	runDispatch(ctx, dispatcher, snapshot, oneShotCall{
		service:        dispatch.Service(service),
		path:           callPath,
		label:          label,
		payload:        payload,
		prompt:         prompt,
		overrideServer: overrideServer,
		pinnedToken:    pinnedToken,
	})
}

// newDispatcher assembles the dispatcher from configuration: HTTP client
// timeout, admission gate, failure sink, and server options.
func newDispatcher(cfg *config.Config, store *credential.Store) *dispatch.Dispatcher {
	timeout := dispatch.DefaultAttemptTimeout
	if cfg.RequestTimeoutSeconds > 0 {
		timeout = time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	}

	var gate dispatch.Gate
	if cfg.Admission.Endpoint != "" {
		gate = admission.New(cfg.Admission.Endpoint, cfg.Admission.CooldownSeconds)
	}

	var sink dispatch.FailureSink
	if cfg.FailureSinkURL != "" {
		sink = dispatch.NewHTTPSink(cfg.FailureSinkURL)
	} else {
		sink = storeSink{store: store}
	}

	return dispatch.New(dispatch.Options{
		HTTPClient: &http.Client{Timeout: timeout},
		Gate:       gate,
		Sink:       sink,
		Servers:    serverOptions(cfg),
		Rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	})
}

// serverOptions maps the configuration's server section onto dispatcher
// options. Shared between startup wiring and config hot reload.
func serverOptions(cfg *config.Config) dispatch.ServerOptions {
	return dispatch.ServerOptions{
		Endpoints: map[dispatch.Service]string{
			dispatch.ServiceImage: cfg.Servers.Image,
			dispatch.ServiceVideo: cfg.Servers.Video,
		},
		ActiveServer: cfg.Servers.Active,
		Fallbacks:    cfg.Servers.Fallbacks,
		LocalMode:    cfg.Servers.Local,
		LocalURL:     cfg.Servers.LocalURL,
	}
}

type oneShotCall struct {
	service        dispatch.Service
	path           string
	label          string
	payload        string
	prompt         string
	overrideServer string
	pinnedToken    string
}

func runDispatch(ctx context.Context, dispatcher *dispatch.Dispatcher, snapshot api.SnapshotFunc, c oneShotCall) {
	body := []byte(c.payload)
	if c.payload == "" {
		body = []byte(`{}`)
		if c.prompt != "" {
			body, _ = sjson.SetBytes(body, "prompt", c.prompt)
		}
	}

	call := dispatch.Call{
		RelativePath:   c.path,
		Service:        c.service,
		Body:           body,
		LogLabel:       c.label,
		OverrideServer: c.overrideServer,
	}
	if c.pinnedToken != "" {
		call.SpecificToken = &credential.Credential{Token: c.pinnedToken}
	}

	snap, err := snapshot(ctx)
	if err != nil {
		log.Fatalf("credential snapshot: %v", err)
	}
	snap.Specific = call.SpecificToken

	result, err := dispatcher.Do(ctx, call, snap)
	if err != nil {
		if dispatch.IsPolicyRejection(err) {
			log.Fatalf("prompt rejected by content policy: %v", err)
		}
		log.Fatalf("dispatch failed: %v", err)
	}
	log.Infof("dispatch succeeded via %s (token %s, %d attempt(s))",
		result.Server, result.Token.Fingerprint(), result.Attempts)
	fmt.Println(string(result.Payload))
}

// runCheckToken issues an isolated health check with a pinned credential.
func runCheckToken(ctx context.Context, dispatcher *dispatch.Dispatcher, token, username string) {
	cred := &credential.Credential{Token: token}
	call := dispatch.Call{
		RelativePath:  "/status",
		Service:       dispatch.ServiceImage,
		Body:          []byte(`{}`),
		LogLabel:      "check-token",
		SpecificToken: cred,
	}
	snap := credential.Snapshot{Specific: cred, Username: username}
	result, err := dispatcher.Do(ctx, call, snap)
	if err != nil {
		log.Fatalf("token check failed: %v", err)
	}
	fmt.Printf("token %s ok via %s\n", cred.Fingerprint(), result.Server)
}

// storeSink records failures into the local SQLite history when no remote
// sink is configured.
type storeSink struct {
	store *credential.Store
}

func (s storeSink) Record(_ context.Context, rec dispatch.FailureRecord) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.store.RecordFailure(ctx, rec.ID, rec.Label, rec.Input, rec.Output, rec.Attempts, rec.Error); err != nil {
			log.WithError(err).Warn("failure sink: record to store")
		}
	}()
}
