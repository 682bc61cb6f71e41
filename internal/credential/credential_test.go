package credential

import (
	"testing"
	"time"
)

func TestResolve_SpecificPinsSingleCredential(t *testing.T) {
	pinned := Credential{Token: "tok-specific-123456"}
	snap := Snapshot{
		Specific: &pinned,
		Pool: []Credential{
			{Token: "pool-a", CreatedAt: time.Now()},
			{Token: "pool-b", CreatedAt: time.Now()},
		},
	}

	creds, source := Resolve(snap)
	if len(creds) != 1 {
		t.Fatalf("expected 1 credential, got %d", len(creds))
	}
	if creds[0].Token != pinned.Token {
		t.Fatalf("expected pinned token, got %q", creds[0].Token)
	}
	if source != SourceSpecific {
		t.Fatalf("expected source %q, got %q", SourceSpecific, source)
	}
}

func TestResolve_SpecificMatchingPersonalIsLabeledPersonal(t *testing.T) {
	personal := Credential{Token: "tok-mine"}
	snap := Snapshot{
		Specific: &Credential{Token: "tok-mine"},
		Personal: &personal,
	}

	creds, source := Resolve(snap)
	if len(creds) != 1 || creds[0].Token != "tok-mine" {
		t.Fatalf("unexpected credentials: %#v", creds)
	}
	if source != SourcePersonal {
		t.Fatalf("expected source %q, got %q", SourcePersonal, source)
	}
}

func TestResolve_PersonalExcludesPool(t *testing.T) {
	snap := Snapshot{
		Personal: &Credential{Token: "tok-mine"},
		Pool: []Credential{
			{Token: "pool-a", CreatedAt: time.Now()},
		},
	}

	creds, source := Resolve(snap)
	if len(creds) != 1 || creds[0].Token != "tok-mine" {
		t.Fatalf("expected only the personal credential, got %#v", creds)
	}
	if source != SourcePersonal {
		t.Fatalf("expected source %q, got %q", SourcePersonal, source)
	}
}

func TestResolve_PoolSortsNewestFirstAndCaps(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	pool := make([]Credential, 0, PoolLimit+5)
	for i := 0; i < PoolLimit+5; i++ {
		pool = append(pool, Credential{
			Token:     "tok-" + string(rune('a'+i)),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		})
	}

	creds, source := Resolve(Snapshot{Pool: pool})
	if source != SourcePool {
		t.Fatalf("expected source %q, got %q", SourcePool, source)
	}
	if len(creds) != PoolLimit {
		t.Fatalf("expected %d credentials, got %d", PoolLimit, len(creds))
	}
	for i := 1; i < len(creds); i++ {
		if creds[i].CreatedAt.After(creds[i-1].CreatedAt) {
			t.Fatalf("pool not sorted newest first at index %d", i)
		}
	}
	// The newest entry must survive the cap.
	if creds[0].CreatedAt != base.Add(time.Duration(PoolLimit+4)*time.Hour) {
		t.Fatalf("newest credential missing, got %v", creds[0].CreatedAt)
	}
}

func TestResolve_EmptySnapshotYieldsEmptySet(t *testing.T) {
	creds, source := Resolve(Snapshot{})
	if len(creds) != 0 {
		t.Fatalf("expected no credentials, got %d", len(creds))
	}
	if source != SourcePool {
		t.Fatalf("expected pool source for empty snapshot, got %q", source)
	}
}

func TestResolve_SkipsEmptyPoolTokens(t *testing.T) {
	creds, _ := Resolve(Snapshot{Pool: []Credential{{Token: ""}, {Token: "tok-a"}}})
	if len(creds) != 1 || creds[0].Token != "tok-a" {
		t.Fatalf("expected empty tokens skipped, got %#v", creds)
	}
}

func TestFingerprint(t *testing.T) {
	if got := (Credential{Token: "abcdefgh"}).Fingerprint(); got != "cdefgh" {
		t.Fatalf("expected last 6 characters, got %q", got)
	}
	if got := (Credential{Token: "abc"}).Fingerprint(); got != "abc" {
		t.Fatalf("short tokens fingerprint to themselves, got %q", got)
	}
}
