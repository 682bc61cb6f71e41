package dispatch

import (
	"errors"
	"math/rand"

	"github.com/relayforge/relayctl/internal/credential"
)

// backupTokenLimit caps how many pool credentials are retried on each backup
// server during phase 2.
const backupTokenLimit = 3

// ErrNoCredentials is returned when no credential at all is eligible for a
// call. It fails fast, before any network I/O.
var ErrNoCredentials = errors.New("no credentials available: configure a personal token or wait for the shared pool to refresh")

// Attempt pairs one credential with one relay server. Plan order is try
// order; attempts are never reordered or raced.
type Attempt struct {
	Token  credential.Credential
	Server string
	Source credential.Source
}

// key is the deduplication identity for an attempt.
func (a Attempt) key() string {
	return a.Token.Fingerprint() + "@" + a.Server
}

// buildPlan expands (credentials x servers) into the ordered, deduplicated
// attempt plan for one call.
//
// Pinned and personal modes yield exactly one attempt against the primary
// server. Pool mode shuffles the eligible pool once and plans phase 1 (every
// shuffled credential against the primary), then, only when no override
// server pins the call, phase 2 (the first backupTokenLimit shuffled
// credentials against each backup server). The same shuffle is reused for
// phase 2 rather than re-rolled per backup.
func buildPlan(call Call, snap credential.Snapshot, opts ServerOptions, rng *rand.Rand) ([]Attempt, error) {
	creds, source := credential.Resolve(snap)
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}

	primary := primaryServer(call, opts)

	if source != credential.SourcePool {
		return []Attempt{{Token: creds[0], Server: primary, Source: source}}, nil
	}

	shuffled := make([]credential.Credential, len(creds))
	copy(shuffled, creds)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	plan := make([]Attempt, 0, len(shuffled))
	seen := make(map[string]struct{}, len(shuffled))
	add := func(a Attempt) {
		if _, ok := seen[a.key()]; ok {
			return
		}
		seen[a.key()] = struct{}{}
		plan = append(plan, a)
	}

	for _, c := range shuffled {
		add(Attempt{Token: c, Server: primary, Source: source})
	}

	if call.OverrideServer == "" {
		head := shuffled
		if len(head) > backupTokenLimit {
			head = head[:backupTokenLimit]
		}
		for _, server := range backupServers(primary, opts, rng) {
			for _, c := range head {
				add(Attempt{Token: c, Server: server, Source: source})
			}
		}
	}

	if len(plan) == 0 {
		return nil, ErrNoCredentials
	}
	return plan, nil
}
