package syncer

import (
	"sync"

	"propsyncd/models"
)

const logCapacity = 100

// LogBuffer is the fixed-capacity operational log: last 100 entries, oldest
// evicted first.
type LogBuffer struct {
	mu       sync.Mutex
	entries  []models.LogEntry
	capacity int
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{capacity: logCapacity}
}

func (b *LogBuffer) Append(entry models.LogEntry) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.entries = append(b.entries, entry)
	if len(b.entries) > b.capacity {
		b.entries = b.entries[len(b.entries)-b.capacity:]
	}
}

// Recent returns a copy of the buffered entries, oldest first.
func (b *LogBuffer) Recent() []models.LogEntry {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]models.LogEntry, len(b.entries))
	copy(out, b.entries)
	return out
}

func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries = nil
}
