package dispatch

import (
	"math/rand"
	"strings"
)

// maxBackupServers caps how many fallback relays a pool-mode plan may add
// after the primary.
const maxBackupServers = 2

// ServerOptions describes how the primary and backup relay servers are
// resolved for a dispatch. It is snapshotted from configuration at startup.
type ServerOptions struct {
	// Endpoints maps each service to its public relay endpoint.
	Endpoints map[Service]string
	// ActiveServer is a relay the user chose in a previous session. It is
	// consulted only when no per-service endpoint is configured.
	ActiveServer string
	// Fallbacks lists additional relay servers eligible as backups.
	Fallbacks []string
	// LocalMode routes everything to LocalURL, for development against a
	// relay running on this machine.
	LocalMode bool
	// LocalURL is the local relay address. Defaults to DefaultLocalURL.
	LocalURL string
}

// DefaultLocalURL is where a locally run relay listens.
const DefaultLocalURL = "http://127.0.0.1:8317"

// primaryServer resolves the single server every plan starts with. An
// explicit override expresses caller intent to pin one relay and always wins.
func primaryServer(call Call, opts ServerOptions) string {
	if s := strings.TrimSpace(call.OverrideServer); s != "" {
		return normalizeServer(s)
	}
	if opts.LocalMode {
		if opts.LocalURL != "" {
			return normalizeServer(opts.LocalURL)
		}
		return DefaultLocalURL
	}
	if s := strings.TrimSpace(opts.Endpoints[call.Service]); s != "" {
		return normalizeServer(s)
	}
	return normalizeServer(strings.TrimSpace(opts.ActiveServer))
}

// backupServers returns up to maxBackupServers fallback relays, excluding
// the primary, in shuffled order. Shuffling spreads pool load across relays
// instead of hammering the list head on every dispatch.
func backupServers(primary string, opts ServerOptions, rng *rand.Rand) []string {
	candidates := make([]string, 0, len(opts.Fallbacks))
	for _, s := range opts.Fallbacks {
		s = normalizeServer(strings.TrimSpace(s))
		if s == "" || s == primary {
			continue
		}
		candidates = append(candidates, s)
	}
	rng.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > maxBackupServers {
		candidates = candidates[:maxBackupServers]
	}
	return candidates
}

func normalizeServer(s string) string {
	return strings.TrimSuffix(s, "/")
}
