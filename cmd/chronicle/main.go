package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/skoglund/chronicle/internal/config"
	"github.com/skoglund/chronicle/internal/engine"
	"github.com/skoglund/chronicle/internal/ingest"
	"github.com/skoglund/chronicle/internal/llm"
	"github.com/skoglund/chronicle/internal/storage"
	"github.com/skoglund/chronicle/internal/storage/postgres"
	"github.com/skoglund/chronicle/internal/storage/sqlite"
	"github.com/skoglund/chronicle/pkg/types"
)

func main() {
	logFile := flag.String("ingest-file", "", "Path to a log file to ingest before assembling context")
	server := flag.String("server", "TheIsland", "Server scope for ingest and queries")
	cluster := flag.String("cluster", "", "Cluster scope")
	query := flag.String("query", "", "Query text for context assembly")
	entities := flag.String("entities", "", "Comma-separated entity names for profile summaries")
	budget := flag.Int("budget", 500, "Token budget for the assembled context")
	listen := flag.Bool("listen", false, "Run the websocket ingest listener instead of a one-shot assembly")
	flag.Parse()

	cfg := config.Load()

	recordStore, profileStore, closeStores, err := openStores(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize storage: %v", err)
	}
	defer closeStores()

	embedder := llm.NewRateLimitedEmbedder(
		llm.NewOllamaEmbedder(llm.OllamaConfig{
			BaseURL: cfg.Embedding.OllamaURL,
			Model:   cfg.Embedding.Model,
			Timeout: cfg.Embedding.Timeout,
		}),
		cfg.Embedding.RatePerSec,
		cfg.Embedding.RateBurst,
	)

	engineCfg := engine.Config{}
	engineCfg.Profile.CacheTTL = cfg.Engine.ProfileCacheTTL
	engineCfg.Profile.DedupEvents = cfg.Engine.DedupEvents
	if cfg.Engine.TunablesPath != "" {
		tunables, err := config.LoadTunables(cfg.Engine.TunablesPath)
		if err != nil {
			log.Fatalf("Failed to load tunables: %v", err)
		}
		engineCfg, err = tunables.EngineConfig(engineCfg)
		if err != nil {
			log.Fatalf("Failed to apply tunables: %v", err)
		}
	}

	eng := engine.New(recordStore, profileStore, embedder, llm.NewHeuristicTokenCounter(), engineCfg)
	scope := types.Scope{Server: *server, Cluster: *cluster}
	ctx := context.Background()

	if *listen {
		runListener(eng, cfg.Ingest.Addr)
		return
	}

	if *logFile != "" {
		if err := ingestFile(ctx, eng, *logFile, scope); err != nil {
			log.Fatalf("Failed to ingest %s: %v", *logFile, err)
		}
	}

	var entityKeys []string
	for _, name := range strings.Split(*entities, ",") {
		if name = strings.TrimSpace(name); name != "" {
			entityKeys = append(entityKeys, name)
		}
	}

	segments, err := eng.BuildContext(ctx, *query, scope, entityKeys, *budget)
	if err != nil {
		log.Fatalf("Failed to assemble context: %v", err)
	}

	total := 0
	for _, seg := range segments {
		fmt.Printf("[%s] %s\n", seg.Source, seg.Text)
		total += seg.Tokens
	}
	fmt.Printf("-- %d segments, %d/%d tokens\n", len(segments), total, *budget)

	d := eng.Diagnostics()
	log.Printf("ingest diagnostics: %d matched, %d unmatched, %d deduped",
		d.MatchedLines, d.UnmatchedLines, d.DedupedEvents)
}

// openStores opens the configured storage backend and returns the stores
// plus a close function.
func openStores(cfg *config.Config) (storage.RecordStore, storage.ProfileStore, func(), error) {
	switch cfg.Storage.Engine {
	case "postgres":
		records, err := postgres.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return records, postgres.NewProfileStore(records.DB()), func() { records.Close() }, nil
	case "sqlite":
		db, err := sqlite.Open(cfg.Storage.DSN)
		if err != nil {
			return nil, nil, nil, err
		}
		return sqlite.NewRecordStore(db), sqlite.NewProfileStore(db), func() { db.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.Engine)
	}
}

// ingestFile streams a log file into the engine line by line.
func ingestFile(ctx context.Context, eng *engine.ContextEngine, path string, scope types.Scope) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	log.Printf("ingesting %d lines into %s", len(lines), scope.Server)
	return eng.IngestLogs(ctx, lines, scope)
}

// runListener serves the websocket intake until interrupted.
func runListener(eng *engine.ContextEngine, addr string) {
	listener := ingest.NewListener(eng, addr)

	errCh := make(chan error, 1)
	go func() { errCh <- listener.ListenAndServe() }()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			log.Fatalf("Ingest listener failed: %v", err)
		}
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := listener.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down listener: %v", err)
		}
	}
}
