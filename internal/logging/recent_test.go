package logging

import (
	"fmt"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
)

func fire(t *testing.T, b *RecentBuffer, level log.Level, msg string) {
	t.Helper()
	if err := b.Fire(&log.Entry{Time: time.Now(), Level: level, Message: msg, Data: log.Fields{}}); err != nil {
		t.Fatalf("fire: %v", err)
	}
}

func TestRecentBuffer_OrderAndLevels(t *testing.T) {
	b := NewRecentBuffer(10)
	fire(t, b, log.InfoLevel, "first")
	fire(t, b, log.WarnLevel, "second")
	fire(t, b, log.ErrorLevel, "third")

	entries := b.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Message != "first" || entries[2].Message != "third" {
		t.Fatalf("entries out of order: %#v", entries)
	}
	if entries[1].Level != "warn" {
		t.Fatalf("warning level must render as %q, got %q", "warn", entries[1].Level)
	}
}

func TestRecentBuffer_WrapsAtCapacity(t *testing.T) {
	b := NewRecentBuffer(3)
	for i := 0; i < 5; i++ {
		fire(t, b, log.InfoLevel, fmt.Sprintf("msg-%d", i))
	}

	entries := b.Snapshot()
	if len(entries) != 3 {
		t.Fatalf("expected capacity-bounded snapshot, got %d", len(entries))
	}
	if entries[0].Message != "msg-2" || entries[2].Message != "msg-4" {
		t.Fatalf("oldest entries not evicted: %#v", entries)
	}
}

func TestRecentBuffer_CapturesFields(t *testing.T) {
	b := NewRecentBuffer(4)
	entry := &log.Entry{
		Time:    time.Now(),
		Level:   log.InfoLevel,
		Message: "dispatched",
		Data:    log.Fields{"service": "image", "attempts": 2},
	}
	if err := b.Fire(entry); err != nil {
		t.Fatalf("fire: %v", err)
	}
	got := b.Snapshot()[0]
	if got.Fields["service"] != "image" {
		t.Fatalf("unexpected fields: %#v", got.Fields)
	}
}
