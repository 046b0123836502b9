// Package telemetry records product events as newline-delimited JSON.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Event types.
const (
	EventAgentReply       = "agent_reply"
	EventMissionDetection = "mission_detection"
	EventEvaluation       = "evaluation"
	EventPointerChange    = "pointer_change"
)

// Event is one telemetry record.
type Event struct {
	Timestamp  time.Time      `json:"ts"`
	Type       string         `json:"type"`
	UserID     string         `json:"userId,omitempty"`
	SessionID  string         `json:"sessionId,omitempty"`
	ScenarioID string         `json:"scenarioId,omitempty"`
	Model      string         `json:"model,omitempty"`
	DurationMS int64          `json:"durationMs,omitempty"`
	Outcome    string         `json:"outcome,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

// Tracker accepts events. Track must not block the caller.
type Tracker interface {
	Track(Event)
	Close() error
}

// Noop discards every event.
type Noop struct{}

// Track implements Tracker.
func (Noop) Track(Event) {}

// Close implements Tracker.
func (Noop) Close() error { return nil }

// Config configures an NDJSONTracker.
type Config struct {
	Path       string
	QueueSize  int
	MaxSizeMB  int
	MaxBackups int
}

// NDJSONTracker writes events on a background goroutine through a rotating file.
type NDJSONTracker struct {
	out    io.WriteCloser
	queue  chan Event
	done   chan struct{}
	logger *slog.Logger

	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
	dropped   atomic.Int64
}

// NewNDJSONTracker creates the parent directory and starts the writer.
func NewNDJSONTracker(cfg Config, logger *slog.Logger) (*NDJSONTracker, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("telemetry path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create telemetry dir: %w", err)
	}
	out := &lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		Compress:   true,
	}
	return newTracker(out, cfg.QueueSize, logger), nil
}

func newTracker(out io.WriteCloser, queueSize int, logger *slog.Logger) *NDJSONTracker {
	if queueSize <= 0 {
		queueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &NDJSONTracker{
		out:    out,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go t.run()
	return t
}

// Track enqueues ev, dropping it when the queue is full or the tracker is closed.
func (t *NDJSONTracker) Track(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	select {
	case t.queue <- ev:
	default:
		if n := t.dropped.Add(1); n == 1 || n%100 == 0 {
			t.logger.Warn("telemetry queue full, dropping events", "dropped", n)
		}
	}
}

// Close drains queued events and closes the file.
func (t *NDJSONTracker) Close() error {
	var err error
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		close(t.queue)
		t.mu.Unlock()

		<-t.done
		err = t.out.Close()
	})
	return err
}

func (t *NDJSONTracker) run() {
	defer close(t.done)
	enc := json.NewEncoder(t.out)
	enc.SetEscapeHTML(false)
	for ev := range t.queue {
		if err := enc.Encode(ev); err != nil {
			t.logger.Warn("failed to write telemetry event", "type", ev.Type, "error", err)
		}
	}
}
