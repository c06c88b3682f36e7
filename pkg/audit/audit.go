// Package audit keeps an append-only trail of graph mutations.
//
// Node creations and deletions, edge creations, rejected edges, seed imports
// and failed write-token checks are each written as one JSON object per line.
// The graph lives only in memory; the trail is a file and outlives it.
//
// Example Usage:
//
//	trail, err := audit.NewLogger(audit.Config{Enabled: true, LogPath: "./logs/audit.log"})
//	if err != nil {
//		return err
//	}
//	defer trail.Close()
//
//	ctx = audit.WithRequest(ctx, requestID, remoteAddr)
//	trail.LogMutation(ctx, audit.EventNodeCreate, "node", id, true, "")
//
//	// kgraph audit query reads it back:
//	res, _ := audit.NewReader("./logs/audit.log").Query(audit.Query{
//		EventTypes: []audit.EventType{audit.EventNodeDelete},
//	})
package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"
)

// ErrClosed is returned by Log after Close.
var ErrClosed = errors.New("audit logger is closed")

// EventType names what happened.
type EventType string

const (
	EventNodeCreate   EventType = "NODE_CREATE"
	EventNodeDelete   EventType = "NODE_DELETE"
	EventEdgeCreate   EventType = "EDGE_CREATE"
	EventEdgeRejected EventType = "EDGE_REJECTED"
	EventSeedImport   EventType = "SEED_IMPORT"
	EventAuthFailed   EventType = "AUTH_FAILED"
)

// Event is one line of the trail.
type Event struct {
	// Seq numbers events written by one Logger, starting at 1. It restarts
	// when the file is reopened.
	Seq        uint64    `json:"seq"`
	Time       time.Time `json:"time"`
	Type       EventType `json:"type"`
	Resource   string    `json:"resource,omitempty"` // node, edge, seed, http
	ResourceID string    `json:"resource_id,omitempty"`
	Success    bool      `json:"success"`
	Reason     string    `json:"reason,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
}

// Config selects where events go.
type Config struct {
	Enabled bool
	LogPath string
	// SyncWrites fsyncs the file after every event.
	SyncWrites bool
}

// DefaultConfig returns a disabled config pointing at ./logs/audit.log.
func DefaultConfig() Config {
	return Config{LogPath: "./logs/audit.log"}
}

// Logger appends events to a file or writer.
//
// A nil *Logger, or one built from a disabled Config, accepts and drops
// every event, so callers never check whether auditing is on. All methods
// are safe for concurrent use.
type Logger struct {
	mu     sync.Mutex
	enc    *json.Encoder
	file   *os.File // nil when writing to a plain io.Writer
	sync   bool
	seq    uint64
	closed bool
	now    func() time.Time
}

// NewLogger opens config.LogPath for appending, creating parent
// directories as needed.
func NewLogger(config Config) (*Logger, error) {
	if !config.Enabled {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(config.LogPath), 0750); err != nil {
		return nil, fmt.Errorf("audit: creating log directory: %w", err)
	}
	file, err := os.OpenFile(config.LogPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0640)
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", config.LogPath, err)
	}
	l := NewLoggerWithWriter(file)
	l.file = file
	l.sync = config.SyncWrites
	return l, nil
}

// NewLoggerWithWriter returns a Logger writing to w.
func NewLoggerWithWriter(w io.Writer) *Logger {
	return &Logger{enc: json.NewEncoder(w), now: time.Now}
}

// Log appends event, assigning Seq and, when zero, Time.
func (l *Logger) Log(event Event) error {
	if l == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	l.seq++
	event.Seq = l.seq
	if event.Time.IsZero() {
		event.Time = l.now().UTC()
	}
	if err := l.enc.Encode(event); err != nil {
		return fmt.Errorf("audit: writing event: %w", err)
	}
	if l.sync && l.file != nil {
		if err := l.file.Sync(); err != nil {
			return fmt.Errorf("audit: sync: %w", err)
		}
	}
	return nil
}

// LogMutation logs an event stamped with the request identity carried by
// ctx (see WithRequest).
func (l *Logger) LogMutation(ctx context.Context, eventType EventType, resource, resourceID string, success bool, reason string) error {
	req := requestFrom(ctx)
	return l.Log(Event{
		Type:       eventType,
		Resource:   resource,
		ResourceID: resourceID,
		Success:    success,
		Reason:     reason,
		RequestID:  req.id,
		RemoteAddr: req.addr,
	})
}

// Close closes the file, if any. Later calls to Log return ErrClosed.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

type requestKey struct{}

type request struct {
	id   string
	addr string
}

// WithRequest returns a context carrying the request id and client address
// for LogMutation.
func WithRequest(ctx context.Context, requestID, remoteAddr string) context.Context {
	return context.WithValue(ctx, requestKey{}, request{id: requestID, addr: remoteAddr})
}

func requestFrom(ctx context.Context) request {
	if ctx == nil {
		return request{}
	}
	req, _ := ctx.Value(requestKey{}).(request)
	return req
}

// =============================================================================
// Reading the trail
// =============================================================================

// Query selects events. Zero fields do not filter.
type Query struct {
	Since      time.Time
	Until      time.Time
	EventTypes []EventType
	ResourceID string
	Success    *bool

	Offset int
	Limit  int
}

// QueryResult is one page of matching events.
type QueryResult struct {
	Events []Event
	// TotalCount counts every match, before Offset and Limit.
	TotalCount int
	HasMore    bool
	// SkippedLines lists unreadable lines of the file, whether or not they
	// would have matched.
	SkippedLines []int
}

// Reader reads a trail file.
type Reader struct {
	path string
}

// NewReader returns a Reader for path.
func NewReader(path string) *Reader {
	return &Reader{path: path}
}

// maxLineSize bounds one trail line. Events are far smaller; a longer line
// is treated as corrupt.
const maxLineSize = 1 << 20

// Scan calls fn for each event in file order until fn returns false.
//
// A missing file has no events. Lines that are not a JSON event, such as a
// line cut short by a crash, are skipped and their 1-based line numbers
// returned; the lines after them are still read.
func (r *Reader) Scan(fn func(Event) bool) (skipped []int, err error) {
	file, err := os.Open(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("audit: opening %s: %w", r.path, err)
	}
	defer file.Close()

	sc := bufio.NewScanner(file)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var event Event
		if err := json.Unmarshal(raw, &event); err != nil {
			skipped = append(skipped, line)
			continue
		}
		if !fn(event) {
			return skipped, nil
		}
	}
	if err := sc.Err(); err != nil {
		return skipped, fmt.Errorf("audit: reading %s after line %d: %w", r.path, line, err)
	}
	return skipped, nil
}

// Query returns the page of events matching q.
func (r *Reader) Query(q Query) (*QueryResult, error) {
	res := &QueryResult{Events: []Event{}}
	skipped, err := r.Scan(func(e Event) bool {
		if !q.matches(e) {
			return true
		}
		res.TotalCount++
		if res.TotalCount > q.Offset && (q.Limit <= 0 || len(res.Events) < q.Limit) {
			res.Events = append(res.Events, e)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	res.SkippedLines = skipped
	res.HasMore = min(q.Offset, res.TotalCount)+len(res.Events) < res.TotalCount
	return res, nil
}

func (q Query) matches(e Event) bool {
	switch {
	case !q.Since.IsZero() && e.Time.Before(q.Since):
		return false
	case !q.Until.IsZero() && e.Time.After(q.Until):
		return false
	case len(q.EventTypes) > 0 && !slices.Contains(q.EventTypes, e.Type):
		return false
	case q.ResourceID != "" && e.ResourceID != q.ResourceID:
		return false
	case q.Success != nil && e.Success != *q.Success:
		return false
	}
	return true
}
