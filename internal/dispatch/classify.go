package dispatch

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// isSuccessStatus reports whether an upstream status ends the dispatch with
// the attempt's payload.
func isSuccessStatus(code int) bool {
	return code >= http.StatusOK && code < http.StatusMultipleChoices
}

// isTerminalStatus reports whether a status must never be retried: the
// request itself is malformed, so every remaining (token, server) pair would
// fail identically.
func isTerminalStatus(code int) bool {
	return code == http.StatusBadRequest
}

// isContentPolicyMessage reports whether an upstream error message indicates
// a content-safety or policy block. This is a heuristic over message text,
// not a protocol contract; it is kept as a named predicate so it can be
// tested and evolved independently of the HTTP plumbing.
func isContentPolicyMessage(message string) bool {
	m := strings.ToLower(message)
	return strings.Contains(m, "safety") ||
		strings.Contains(m, "blocked") ||
		strings.Contains(m, "content policy")
}

// errorMessageFromBody extracts an error message from an upstream response
// body. Bodies are read as text first and parsed leniently: relays forward
// whatever the backend produced, which is not always well-formed JSON. When
// no message can be extracted, one is synthesized from the status code.
func errorMessageFromBody(status int, body []byte) string {
	if gjson.ValidBytes(body) {
		if msg := gjson.GetBytes(body, "error.message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
		if msg := gjson.GetBytes(body, "message"); msg.Exists() && msg.String() != "" {
			return msg.String()
		}
	}
	if trimmed := strings.TrimSpace(string(body)); trimmed != "" && len(trimmed) <= 512 {
		return trimmed
	}
	return fmt.Sprintf("relay returned status %d", status)
}
