// Package main provides the kgraph CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"

	"github.com/orneryd/kgraph/pkg/audit"
	"github.com/orneryd/kgraph/pkg/auth"
	"github.com/orneryd/kgraph/pkg/config"
	"github.com/orneryd/kgraph/pkg/kgraph"
	"github.com/orneryd/kgraph/pkg/seed"
	"github.com/orneryd/kgraph/pkg/server"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "kgraph",
		Short: "kgraph - in-memory knowledge graph service",
		Long: `kgraph keeps a directed property graph of code and agent entities
(repositories, files, functions, agents, tasks) in memory and serves it
over an HTTP/JSON API.

Features:
  • Weighted shortest paths between entities
  • Bounded neighborhood expansion by edge type and direction
  • Substring search over names and descriptions
  • Seed files for a known graph at startup
  • Prometheus metrics and an append-only audit trail`,
		SilenceUsage: true,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "kgraph v%s (%s)\n", version, commit)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Path to a YAML config file")
	serveCmd.Flags().Int("port", 0, "HTTP port (overrides config and environment)")
	serveCmd.Flags().String("seed", "", "Seed file loaded on startup (overrides config)")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.AddCommand(serveCmd)

	initCmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write a default config file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runInit,
	}
	initCmd.Flags().Bool("force", false, "Overwrite an existing file")
	rootCmd.AddCommand(initCmd)

	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Seed file operations",
	}
	seedCmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Load a seed file into an empty graph and print its stats",
		Args:  cobra.ExactArgs(1),
		RunE:  runSeedCheck,
	})
	rootCmd.AddCommand(seedCmd)

	hashCmd := &cobra.Command{
		Use:   "hash-token [token]",
		Short: "Print a bcrypt hash for auth.write_token_hash",
		Args:  cobra.ExactArgs(1),
		RunE:  runHashToken,
	}
	hashCmd.Flags().Int("cost", bcrypt.DefaultCost, "bcrypt cost")
	rootCmd.AddCommand(hashCmd)

	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Audit trail operations",
	}
	queryCmd := &cobra.Command{
		Use:   "query [file]",
		Short: "Print audit events as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE:  runAuditQuery,
	}
	queryCmd.Flags().StringSlice("type", nil, "Event types to include (e.g. NODE_DELETE)")
	queryCmd.Flags().String("resource-id", "", "Only events for this resource id")
	queryCmd.Flags().Duration("since", 0, "Only events newer than this (e.g. 24h)")
	queryCmd.Flags().Bool("failed", false, "Only failed events")
	queryCmd.Flags().Int("limit", 100, "Maximum events to print (0 = all)")
	auditCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(auditCmd)

	return rootCmd
}

func runServe(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	port, _ := cmd.Flags().GetInt("port")
	seedPath, _ := cmd.Flags().GetString("seed")
	logLevel, _ := cmd.Flags().GetString("log-level")

	cfg, err := config.LoadFromEnvOrFile(configPath)
	if err != nil {
		return err
	}
	if port != 0 {
		cfg.Server.Port = port
	}
	if seedPath != "" {
		cfg.Seed.File = seedPath
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := cfg.Logging.NewLogger(os.Stderr)
	logger.Info("starting kgraph", "version", version, "commit", commit, "config", cfg.String())

	auditLogger, err := audit.NewLogger(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		LogPath:    cfg.Audit.Path,
		SyncWrites: cfg.Audit.SyncWrites,
	})
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}

	db, err := kgraph.Open(&kgraph.Config{
		CacheEnabled: cfg.Query.CacheEnabled,
		CacheSize:    cfg.Query.CacheSize,
		CacheTTL:     cfg.Query.CacheTTL,
	}, kgraph.WithLogger(logger), kgraph.WithAuditLogger(auditLogger))
	if err != nil {
		auditLogger.Close()
		return fmt.Errorf("opening graph: %w", err)
	}
	defer db.Close()

	if cfg.Seed.File != "" {
		file, err := seed.ReadFile(cfg.Seed.File)
		if err != nil {
			return err
		}
		result, err := seed.Apply(cmd.Context(), db, file)
		if err != nil {
			return fmt.Errorf("loading seed %s: %w", cfg.Seed.File, err)
		}
		logger.Info("seed loaded", "file", cfg.Seed.File, "nodes", result.NodesImported, "edges", result.EdgesImported)
	}

	httpServer, err := server.New(db, server.FromConfig(cfg), logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	httpServer.SetAuditLogger(auditLogger)

	if err := httpServer.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpServer.Stop(ctx); err != nil {
		return fmt.Errorf("stopping server: %w", err)
	}

	stats := httpServer.Stats()
	logger.Info("server stopped",
		"uptime", stats.Uptime.Round(time.Second),
		"requests", stats.RequestCount,
		"errors", stats.ErrorCount,
	)
	return nil
}

const defaultConfigYAML = `# kgraph configuration
# Environment variables (KGRAPH_*, PORT) override values in this file.

server:
  address: 0.0.0.0
  port: 9010
  read_timeout: 30s
  write_timeout: 30s
  idle_timeout: 120s
  max_request_size: 10485760
  enable_cors: true
  cors_origins: ["*"]

query:
  max_depth: 10
  max_limit: 1000
  default_depth: 1
  default_limit: 20
  cache_enabled: true
  cache_size: 1000
  cache_ttl: 5m

auth:
  # bcrypt hash from "kgraph hash-token <token>"; empty disables write protection
  write_token_hash: ""

logging:
  level: info   # debug, info, warn, error
  format: text  # text, json

seed:
  file: ""

audit:
  enabled: false
  path: ./logs/audit.log
  sync_writes: false
`

func runInit(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")

	path := "kgraph.yaml"
	if len(args) == 1 {
		path = args[0]
	}

	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, []byte(defaultConfigYAML), 0644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	// The written file must load and validate.
	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}

func runSeedCheck(cmd *cobra.Command, args []string) error {
	file, err := seed.ReadFile(args[0])
	if err != nil {
		return err
	}

	db, err := kgraph.Open(&kgraph.Config{CacheEnabled: false})
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := seed.Apply(cmd.Context(), db, file); err != nil {
		return err
	}
	stats, err := db.Stats(cmd.Context())
	if err != nil {
		return err
	}
	return writeIndentedJSON(cmd.OutOrStdout(), stats)
}

func runHashToken(cmd *cobra.Command, args []string) error {
	cost, _ := cmd.Flags().GetInt("cost")
	hash, err := auth.HashToken(args[0], cost)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), hash)
	return nil
}

func runAuditQuery(cmd *cobra.Command, args []string) error {
	types, _ := cmd.Flags().GetStringSlice("type")
	resourceID, _ := cmd.Flags().GetString("resource-id")
	since, _ := cmd.Flags().GetDuration("since")
	failed, _ := cmd.Flags().GetBool("failed")
	limit, _ := cmd.Flags().GetInt("limit")

	q := audit.Query{
		ResourceID: resourceID,
		Limit:      limit,
	}
	for _, t := range types {
		q.EventTypes = append(q.EventTypes, audit.EventType(t))
	}
	if since > 0 {
		q.Since = time.Now().Add(-since)
	}
	if failed {
		success := false
		q.Success = &success
	}

	result, err := audit.NewReader(args[0]).Query(q)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	for _, event := range result.Events {
		if err := enc.Encode(event); err != nil {
			return err
		}
	}
	if result.HasMore {
		fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d events shown\n", len(result.Events), result.TotalCount)
	}
	if n := len(result.SkippedLines); n > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: skipped %d unreadable line(s): %v\n", n, result.SkippedLines)
	}
	return nil
}

func writeIndentedJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
