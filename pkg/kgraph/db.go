// Package kgraph is the service facade over the graph engine.
//
// DB owns one storage.MemoryEngine and serializes access to it with a
// sync.RWMutex: writers (node and edge creation, node deletion, imports)
// take the write lock, everything else takes the read lock. The lock is held
// for a single logical operation, never across requests.
//
// On top of the engine DB adds what a service needs:
//   - identifier and timestamp assignment for new records
//   - input validation mapped to sentinel errors
//   - a query result cache invalidated by every mutation
//   - an audit trail of mutations
//   - Prometheus metrics and OpenTelemetry spans per operation
//
// Example Usage:
//
//	db, err := kgraph.Open(kgraph.DefaultConfig(), kgraph.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer db.Close()
//
//	auth, _ := db.CreateNode(ctx, kgraph.NodeInput{Name: "handleAuth", Kind: storage.NodeFunction})
//	token, _ := db.CreateNode(ctx, kgraph.NodeInput{Name: "verifyToken", Kind: storage.NodeFunction})
//	_, err = db.CreateEdge(ctx, kgraph.EdgeInput{SourceID: auth.ID, TargetID: token.ID, Kind: storage.EdgeCalls})
//
//	path, err := db.FindPath(ctx, kgraph.PathQuery{SourceID: auth.ID, TargetID: token.ID})
//	if errors.Is(err, kgraph.ErrNoPath) {
//		// unreachable
//	}
package kgraph

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/orneryd/kgraph/pkg/audit"
	"github.com/orneryd/kgraph/pkg/cache"
	"github.com/orneryd/kgraph/pkg/storage"
)

// Errors returned by DB operations. Check them with errors.Is.
var (
	ErrNodeNotFound    = errors.New("node not found")
	ErrUnknownEndpoint = errors.New("source or target node not found")
	ErrNoPath          = errors.New("no path found")
	ErrInvalidInput    = errors.New("invalid input")
	ErrClosed          = errors.New("database is closed")
)

// Config configures a DB.
type Config struct {
	// CacheEnabled turns on the query result cache.
	CacheEnabled bool
	// CacheSize is the maximum number of cached results.
	CacheSize int
	// CacheTTL bounds how long a result may be served (0 = until the next
	// mutation).
	CacheTTL time.Duration
}

// DefaultConfig returns a cache-enabled configuration.
func DefaultConfig() *Config {
	return &Config{
		CacheEnabled: true,
		CacheSize:    1000,
		CacheTTL:     5 * time.Minute,
	}
}

// Option customizes a DB at Open time.
type Option func(*DB)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(logger *slog.Logger) Option {
	return func(db *DB) {
		if logger != nil {
			db.logger = logger
		}
	}
}

// WithAuditLogger records mutations to the given audit trail.
func WithAuditLogger(logger *audit.Logger) Option {
	return func(db *DB) { db.audit = logger }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(db *DB) {
		if now != nil {
			db.now = now
		}
	}
}

// WithIDGenerator overrides identifier assignment (UUIDv4 by default).
func WithIDGenerator(newID func() string) Option {
	return func(db *DB) {
		if newID != nil {
			db.newID = newID
		}
	}
}

// DB is a concurrency-safe knowledge graph.
type DB struct {
	mu     sync.RWMutex
	engine *storage.MemoryEngine
	closed atomic.Bool

	cache  *cache.QueryCache
	audit  *audit.Logger
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

// Open creates an empty graph. A nil config uses DefaultConfig.
func Open(config *Config, opts ...Option) (*DB, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.CacheEnabled && config.CacheSize <= 0 {
		return nil, errors.New("kgraph: cache size must be positive")
	}

	db := &DB{
		engine: storage.NewMemoryEngine(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	if config.CacheEnabled {
		db.cache = cache.NewQueryCache(config.CacheSize, config.CacheTTL)
	}
	for _, opt := range opts {
		opt(db)
	}
	return db, nil
}

// Close releases the audit trail. Operations after Close return ErrClosed.
func (db *DB) Close() error {
	if db.closed.Swap(true) {
		return nil
	}
	return db.audit.Close()
}

// CacheStats reports query cache statistics. ok is false when caching is
// disabled.
func (db *DB) CacheStats() (stats cache.Stats, ok bool) {
	if db.cache == nil {
		return cache.Stats{}, false
	}
	return db.cache.Stats(), true
}

// invalidate drops cached results and refreshes the size gauges.
// Caller must hold the write lock.
func (db *DB) invalidate() {
	if db.cache != nil {
		db.cache.Invalidate()
	}
	graphNodes.Set(float64(db.engine.NodeCount()))
	graphEdges.Set(float64(db.engine.EdgeCount()))
}

// cached returns the value stored under key or computes and stores it.
// Caller must hold at least the read lock. Cached values are shared and
// must not be mutated.
func (db *DB) cached(op string, key uint64, compute func() any) any {
	if db.cache == nil {
		return compute()
	}
	if v, ok := db.cache.Get(key); ok {
		cacheLookups.WithLabelValues(op, "hit").Inc()
		return v
	}
	cacheLookups.WithLabelValues(op, "miss").Inc()
	v := compute()
	db.cache.Put(key, v)
	return v
}
