package logging

import (
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// DefaultRecentCapacity is the default capacity of the recent-entries buffer.
const DefaultRecentCapacity = 500

// Entry is one captured log record, as exposed by /v1/logs.
type Entry struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// RecentBuffer is a thread-safe circular buffer of recent log entries. It
// implements logrus.Hook so it captures everything the logger emits.
type RecentBuffer struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	head     int
	count    int
}

var defaultRecentBuffer = NewRecentBuffer(DefaultRecentCapacity)

// Recent returns the shared buffer installed by SetupBaseLogger.
func Recent() *RecentBuffer { return defaultRecentBuffer }

// NewRecentBuffer creates a buffer holding up to capacity entries.
func NewRecentBuffer(capacity int) *RecentBuffer {
	if capacity <= 0 {
		capacity = DefaultRecentCapacity
	}
	return &RecentBuffer{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// Levels implements logrus.Hook. All levels are captured.
func (b *RecentBuffer) Levels() []log.Level { return log.AllLevels }

// Fire implements logrus.Hook.
func (b *RecentBuffer) Fire(entry *log.Entry) error {
	fields := make(map[string]any, len(entry.Data))
	for k, v := range entry.Data {
		fields[k] = v
	}
	level := entry.Level.String()
	if level == "warning" {
		level = "warn"
	}

	b.mu.Lock()
	b.entries[b.head] = Entry{
		Timestamp: entry.Time,
		Level:     level,
		Message:   entry.Message,
		Fields:    fields,
	}
	b.head = (b.head + 1) % b.capacity
	if b.count < b.capacity {
		b.count++
	}
	b.mu.Unlock()
	return nil
}

// Snapshot returns the buffered entries, oldest first.
func (b *RecentBuffer) Snapshot() []Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, b.count)
	start := b.head - b.count
	if start < 0 {
		start += b.capacity
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.entries[(start+i)%b.capacity])
	}
	return out
}
