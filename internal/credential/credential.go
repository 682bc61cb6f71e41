// Package credential manages the bearer credentials used to authenticate
// dispatches against relay servers. It resolves which credentials are
// eligible for a given call (pinned, personal, or shared pool), loads the
// shared pool from a file refreshed by an external process, and persists
// the per-user personal credential.
package credential

import (
	"sort"
	"time"
)

// PoolLimit bounds how many shared-pool credentials a single dispatch may
// try. Attempts are sequential, so this directly bounds worst-case latency.
const PoolLimit = 10

// Source labels where a credential came from when an attempt was planned.
type Source string

const (
	// SourceSpecific marks a credential pinned by the caller, e.g. a status
	// poll that must reuse the token that started the job.
	SourceSpecific Source = "specific"
	// SourcePersonal marks the caller's own configured credential.
	SourcePersonal Source = "personal"
	// SourcePool marks a credential drawn from the shared pool.
	SourcePool Source = "pool"
)

// Credential is an opaque bearer token plus the metadata the pool refresher
// attaches to it. Uniqueness is by token value.
type Credential struct {
	Token      string    `json:"token"`
	CreatedAt  time.Time `json:"created_at"`
	TotalUsers int       `json:"total_users,omitempty"`
}

// Fingerprint returns a short stable identifier for the credential, used for
// attempt deduplication and for logging without leaking the full token.
func (c Credential) Fingerprint() string {
	if len(c.Token) <= 6 {
		return c.Token
	}
	return c.Token[len(c.Token)-6:]
}

// Snapshot is the read-only credential state captured at dispatch time.
// The dispatcher never reaches into storage itself; callers hand it an
// explicit snapshot so plan construction stays deterministic and testable.
type Snapshot struct {
	// Specific pins a single credential for this call. When set, no other
	// credential is considered.
	Specific *Credential
	// Personal is the caller's own credential, if configured.
	Personal *Credential
	// Pool holds the shared credentials, refreshed out-of-band.
	Pool []Credential
	// Username identifies the caller on the wire (x-user-username header).
	Username string
}

// Resolve returns the credentials eligible for one dispatch and the source
// label they carry. The three modes are mutually exclusive, checked in order:
// pinned specific, personal-only, shared pool (newest first, capped at
// PoolLimit). An empty result is not an error here; the planner surfaces it
// as a configuration failure before any network I/O.
func Resolve(snap Snapshot) ([]Credential, Source) {
	if snap.Specific != nil {
		source := SourceSpecific
		if snap.Personal != nil && snap.Personal.Token == snap.Specific.Token {
			source = SourcePersonal
		}
		return []Credential{*snap.Specific}, source
	}

	if snap.Personal != nil && snap.Personal.Token != "" {
		// A user who opted into a personal credential accepts its single
		// point of failure; the pool is never consulted in this mode.
		return []Credential{*snap.Personal}, SourcePersonal
	}

	pool := make([]Credential, 0, len(snap.Pool))
	for _, c := range snap.Pool {
		if c.Token == "" {
			continue
		}
		pool = append(pool, c)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].CreatedAt.After(pool[j].CreatedAt)
	})
	if len(pool) > PoolLimit {
		pool = pool[:PoolLimit]
	}
	return pool, SourcePool
}
