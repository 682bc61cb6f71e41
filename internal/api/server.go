package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/relayforge/relayctl/internal/credential"
	"github.com/relayforge/relayctl/internal/dispatch"
	"github.com/relayforge/relayctl/internal/logging"
	"github.com/relayforge/relayctl/internal/usage"
)

// SnapshotFunc produces the credential snapshot for one inbound request.
type SnapshotFunc func(ctx context.Context) (credential.Snapshot, error)

// Server is the local HTTP facade over the dispatcher.
type Server struct {
	engine     *gin.Engine
	dispatcher *dispatch.Dispatcher
	snapshot   SnapshotFunc
	stats      *usage.DispatchStatistics
}

// NewServer wires the facade routes.
func NewServer(dispatcher *dispatch.Dispatcher, snapshot SnapshotFunc) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(ginRecovery(), ginLogrusLogger())

	s := &Server{
		engine:     engine,
		dispatcher: dispatcher,
		snapshot:   snapshot,
		stats:      usage.Default(),
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))
	engine.GET("/v1/stats", s.handleStats)
	engine.GET("/v1/logs", s.handleLogs)
	engine.POST("/v1/dispatch", s.handleDispatch)

	return s
}

// Run serves until the listener fails.
func (s *Server) Run(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Infof("serve: listening on %s", addr)
	return s.engine.Run(addr)
}

// Handler exposes the underlying handler for tests.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Snapshot())
}

func (s *Server) handleLogs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"entries": logging.Recent().Snapshot()})
}

// handleDispatch accepts a dispatch request of the form:
//
//	{
//	  "service": "image",
//	  "path": "/generate",
//	  "label": "generate-image",
//	  "payload": { ... },
//	  "override_server": "https://relay.example.com",   // optional
//	  "specific_token": "sk-..."                        // optional
//	}
func (s *Server) handleDispatch(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "read request body: " + err.Error()}})
		return
	}
	if !gjson.ValidBytes(body) {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": "request body is not valid JSON"}})
		return
	}

	service := dispatch.Service(gjson.GetBytes(body, "service").String())
	if service != dispatch.ServiceImage && service != dispatch.ServiceVideo {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": `service must be "image" or "video"`}})
		return
	}
	path := gjson.GetBytes(body, "path").String()
	if path == "" || path[0] != '/' {
		c.JSON(http.StatusBadRequest, gin.H{"error": gin.H{"message": `path must start with "/"`}})
		return
	}

	call := dispatch.Call{
		RelativePath:   path,
		Service:        service,
		Body:           []byte(gjson.GetBytes(body, "payload").Raw),
		LogLabel:       gjson.GetBytes(body, "label").String(),
		OverrideServer: gjson.GetBytes(body, "override_server").String(),
	}
	if token := gjson.GetBytes(body, "specific_token").String(); token != "" {
		call.SpecificToken = &credential.Credential{Token: token}
	}

	snap, err := s.snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{"message": "credential snapshot: " + err.Error()}})
		return
	}
	snap.Specific = call.SpecificToken

	result, err := s.dispatcher.Do(c.Request.Context(), call, snap)
	if err != nil {
		s.stats.Record(string(service), "", "error", dispatch.AttemptsFromError(err), false)
		c.JSON(dispatchErrorStatus(err), gin.H{"error": gin.H{"message": err.Error()}})
		return
	}
	s.stats.Record(string(service), string(result.Source), "success", result.Attempts, true)

	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "server", result.Server)
	out, _ = sjson.SetBytes(out, "source", string(result.Source))
	out, _ = sjson.SetBytes(out, "token_fingerprint", result.Token.Fingerprint())
	out, _ = sjson.SetBytes(out, "attempts", result.Attempts)
	if gjson.ValidBytes(result.Payload) {
		out, _ = sjson.SetRawBytes(out, "payload", result.Payload)
	} else {
		out, _ = sjson.SetBytes(out, "payload", string(result.Payload))
	}
	c.Data(http.StatusOK, "application/json", out)
}

// dispatchErrorStatus maps dispatcher failures onto facade response codes.
func dispatchErrorStatus(err error) int {
	if errors.Is(err, dispatch.ErrNoCredentials) {
		return http.StatusServiceUnavailable
	}
	var se dispatch.StatusError
	if errors.As(err, &se) {
		return se.StatusCode()
	}
	return http.StatusBadGateway
}
