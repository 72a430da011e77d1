package api

import (
	"strings"
	"sync"
	"time"
)

// LogEntry represents a single captured log line
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Raw       string    `json:"raw"`
}

// LogBuffer is a thread-safe ring buffer of recent log lines, exposed by
// the admin API. It implements io.Writer so the zerolog output can be
// teed into it.
type LogBuffer struct {
	entries []LogEntry
	size    int
	head    int
	count   int
	mu      sync.RWMutex
}

// NewLogBuffer creates a log buffer with the specified capacity
func NewLogBuffer(size int) *LogBuffer {
	return &LogBuffer{
		entries: make([]LogEntry, size),
		size:    size,
	}
}

// Write implements io.Writer for capturing log output
func (lb *LogBuffer) Write(p []byte) (n int, err error) {
	lb.mu.Lock()
	defer lb.mu.Unlock()

	raw := string(p)
	lb.entries[lb.head] = LogEntry{
		Timestamp: time.Now(),
		Level:     parseLevel(raw),
		Message:   parseMessage(raw),
		Raw:       raw,
	}
	lb.head = (lb.head + 1) % lb.size
	if lb.count < lb.size {
		lb.count++
	}

	return len(p), nil
}

// RecentEntries returns up to n most recent entries in chronological order
func (lb *LogBuffer) RecentEntries(n int) []LogEntry {
	lb.mu.RLock()
	defer lb.mu.RUnlock()

	if lb.count == 0 {
		return nil
	}

	start := 0
	if lb.count == lb.size {
		start = lb.head
	}

	entries := make([]LogEntry, 0, lb.count)
	for i := 0; i < lb.count; i++ {
		entries = append(entries, lb.entries[(start+i)%lb.size])
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries
}

// parseLevel extracts the log level from a zerolog JSON line
func parseLevel(raw string) string {
	for _, level := range []string{"debug", "info", "warn", "error", "fatal"} {
		if strings.Contains(raw, `"level":"`+level+`"`) {
			return level
		}
	}
	return "info"
}

// parseMessage extracts the message field from a zerolog JSON line
func parseMessage(raw string) string {
	start := strings.Index(raw, `"message":"`)
	if start == -1 {
		return raw
	}
	start += len(`"message":"`)
	end := start
	for end < len(raw) && raw[end] != '"' {
		if raw[end] == '\\' && end+1 < len(raw) {
			end += 2
			continue
		}
		end++
	}
	if end > start {
		return raw[start:end]
	}
	return raw
}
