// Package audit provides structured event logging for sandbox lifecycle events.
// Events are stored as JSON Lines (JSONL) files, one per sandbox key.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/ksuid"
)

// EventType classifies a lifecycle event.
type EventType string

const (
	EventStart   EventType = "start"
	EventReady   EventType = "ready"
	EventStop    EventType = "stop"
	EventEvict   EventType = "evict"
	EventCrash   EventType = "crash"
	EventTimeout EventType = "timeout"
	EventHealth  EventType = "health"
	EventError   EventType = "error"

	EventMachineCreate  EventType = "machine-create"
	EventMachineDestroy EventType = "machine-destroy"
	EventExec           EventType = "exec"
)

// Event represents a single audit log entry.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Type      EventType `json:"type"`
	Sandbox   string    `json:"sandbox"`
	Port      int       `json:"port,omitempty"`
	PID       int       `json:"pid,omitempty"`
	Details   string    `json:"details,omitempty"`
}

// Logger writes and reads audit events.
// Events for key owner/branch are stored in {dir}/owner/branch.jsonl.
type Logger struct {
	dir string
	mu  sync.Mutex
}

// NewLogger creates a new audit logger rooted at dir.
func NewLogger(dir string) *Logger {
	return &Logger{dir: dir}
}

// eventPath returns the path to the JSONL event log for a sandbox key.
func (l *Logger) eventPath(sandbox string) string {
	parts := strings.SplitN(sandbox, "/", 2)
	if len(parts) == 1 {
		return filepath.Join(l.dir, "_", parts[0]+".jsonl")
	}
	return filepath.Join(l.dir, parts[0], parts[1]+".jsonl")
}

// Log appends an event to the sandbox's audit log.
func (l *Logger) Log(event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.ID == "" {
		// ksuids sort by creation time, so ids order like the log.
		event.ID = ksuid.New().String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	path := l.eventPath(event.Sandbox)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create audit log directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}

	return nil
}

// LogEvent is a convenience method that creates and logs an event.
func (l *Logger) LogEvent(eventType EventType, sandbox, details string) error {
	return l.Log(Event{
		Type:    eventType,
		Sandbox: sandbox,
		Details: details,
	})
}

// Events reads all events for a sandbox in chronological order.
func (l *Logger) Events(sandbox string) ([]Event, error) {
	path := l.eventPath(sandbox)

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var events []Event
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(line, &event); err != nil {
			continue // Skip malformed lines
		}
		events = append(events, event)
	}

	if err := scanner.Err(); err != nil {
		return events, fmt.Errorf("error reading audit log: %w", err)
	}

	return events, nil
}

// Remove deletes the audit log for a sandbox.
func (l *Logger) Remove(sandbox string) error {
	path := l.eventPath(sandbox)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
