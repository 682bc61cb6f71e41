// Package dispatch implements the resilient request dispatcher: it expands
// an eligible credential set and candidate relay servers into an ordered
// attempt plan, then walks the plan sequentially until one attempt succeeds,
// a terminal failure is detected, or the plan is exhausted.
package dispatch

import (
	"strings"

	"github.com/relayforge/relayctl/internal/credential"
)

// Service selects which relay-side API family a call targets. It becomes the
// path segment between /api/ and the call's relative path.
type Service string

const (
	// ServiceImage targets the image generation API.
	ServiceImage Service = "image"
	// ServiceVideo targets the video generation API.
	ServiceVideo Service = "video"
)

// Call is the immutable context for one dispatch.
type Call struct {
	// RelativePath is appended to /api/{service}; it must start with "/".
	RelativePath string
	// Service selects the relay API family.
	Service Service
	// Body is the JSON request payload forwarded to the relay.
	Body []byte
	// LogLabel names the operation for logging, statistics, and admission
	// control (generation-class labels pass through the admission gate).
	LogLabel string
	// SpecificToken pins this call to exactly one credential. Used by
	// multi-step flows (a status poll must reuse the token that started the
	// job) and by isolated token health checks.
	SpecificToken *credential.Credential
	// OverrideServer pins this call to one relay server, e.g. because the
	// job was already enqueued there. Overrides disable backup servers.
	OverrideServer string
}

// IsGenerationLabel reports whether a log label names a heavyweight
// generation operation. Only those acquire an admission slot; status checks
// and other light calls skip the gate entirely.
func IsGenerationLabel(label string) bool {
	return strings.Contains(strings.ToLower(label), "generate")
}
