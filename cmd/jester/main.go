// Package main is the Jester CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	iofs "io/fs"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/siestheapp/jester-remote/internal/config"
	"github.com/siestheapp/jester-remote/internal/embedding"
	"github.com/siestheapp/jester-remote/internal/extract"
	"github.com/siestheapp/jester-remote/internal/ingest"
	"github.com/siestheapp/jester-remote/internal/metrics"
	"github.com/siestheapp/jester-remote/internal/models"
	"github.com/siestheapp/jester-remote/internal/retrieval"
	"github.com/siestheapp/jester-remote/internal/server"
	"github.com/siestheapp/jester-remote/internal/store"
	"github.com/siestheapp/jester-remote/internal/taxonomy"
	"github.com/siestheapp/jester-remote/internal/vector"
	"github.com/siestheapp/jester-remote/internal/watcher"
	"github.com/siestheapp/jester-remote/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/jester/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "jester server" from the project dir uses the project's
// config (including debug).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "search":
		runSearch()
	case "map":
		runMap()
	case "ingest":
		runIngest()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("jester version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (searches, ingestion, watch events)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	metrics.Register()
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	var watchSvc *watcher.Watcher
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Watch.Directories) > 0 {
		ing := components.Ingestor
		watchSvc = watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				if _, err := ing.IngestFile(context.Background(), path, nil); err != nil {
					logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				}
			},
			logger,
		)
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(
		components.Retrieval,
		components.Store,
		components.Ingestor,
		components.Normalizer,
		components.TaxStore,
		watchSvc,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// buildQuery joins all positional args with spaces so multi-word queries work
// the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct store access)")
	k := fs.Int("k", 0, "number of results (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: jester search [flags] <query>")
		os.Exit(1)
	}
	query := buildQuery(fs.Args())
	if query == "" {
		fmt.Println("Usage: jester search [flags] <query>")
		os.Exit(1)
	}

	var results []models.RetrievedChunk
	if *serverURL != "" {
		res, err := searchViaHTTP(*serverURL, query, *k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
		results = res
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		kk := *k
		if kk <= 0 {
			kk = cfg.Retrieval.DefaultK
		}
		results, err = components.Retrieval.Search(context.Background(), query, kk)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
			os.Exit(1)
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(results) == 0 {
			fmt.Println("No results.")
			return
		}
		for i, r := range results {
			fmt.Printf("%d. [%.4f] %s\n", i+1, r.Similarity, utils.Truncate(r.Text, 200))
			if src, ok := r.Metadata["source"]; ok {
				fmt.Printf("   source: %s\n", src)
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL, query string, k int) ([]models.RetrievedChunk, error) {
	body, err := json.Marshal(map[string]interface{}{"query": query, "k": k})
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var out struct {
		Results []models.RetrievedChunk `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Results, nil
}

func runMap() {
	fs := flag.NewFlagSet("map", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct access)")
	threshold := fs.Float64("threshold", 0, "minimum fuzzy match score (0 = strategy default)")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: jester map [flags] <measurement-label>")
		os.Exit(1)
	}
	label := buildQuery(fs.Args())

	var result *models.MatchResult
	if *serverURL != "" {
		body, _ := json.Marshal(map[string]interface{}{"label": label, "threshold": *threshold})
		resp, err := http.Post(*serverURL+"/api/v1/measurements/map", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Map failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Match *models.MatchResult `json:"match"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
		result = out.Match
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		result, err = components.Normalizer.Map(context.Background(), label, *threshold)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Map failed: %v\n", err)
			os.Exit(1)
		}
	}

	if result == nil {
		fmt.Printf("%q: no match\n", label)
		return
	}
	fmt.Printf("%q -> %s (score %.4f, via %q)\n", label, result.Canonical, result.Score, result.MatchedVariant)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	docType := fs.String("type", "research", "document type recorded in chunk metadata")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: jester ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	meta := map[string]string{"type": *docType}
	info, err := os.Stat(path)
	if err != nil {
		fmt.Printf("Failed to stat path: %v\n", err)
		os.Exit(1)
	}
	if info.IsDir() {
		files, total := 0, 0
		walkErr := filepath.WalkDir(path, func(p string, d iofs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			if !extract.Supported(filepath.Ext(p)) {
				return nil
			}
			n, err := components.Ingestor.IngestFile(ctx, p, meta)
			if err != nil {
				logger.Warn("ingest file failed", zap.String("path", p), zap.Error(err))
				return nil
			}
			files++
			total += n
			return nil
		})
		if walkErr != nil {
			fmt.Printf("Ingesting directory failed: %v\n", walkErr)
			os.Exit(1)
		}
		fmt.Printf("Ingested %d chunk(s) from %d file(s) in %s\n", total, files, path)
		return
	}
	n, err := components.Ingestor.IngestFile(ctx, path, meta)
	if err != nil {
		fmt.Printf("Ingesting failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Ingested %d chunk(s) from %s\n", n, path)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = direct access)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status map[string]interface{}
	if *serverURL != "" {
		resp, err := http.Get(*serverURL + "/api/v1/status")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			os.Exit(1)
		}
		logger, err := utils.NewLogger(cfg.Debug)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
			os.Exit(1)
		}
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status = map[string]interface{}{
			"chunks":     components.Store.Len(),
			"dimensions": components.Store.Dimensions(),
			"metric":     string(components.Store.Metric()),
			"categories": components.Normalizer.Categories(),
		}
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("chunks:      %v\n", status["chunks"])
		fmt.Printf("dimensions:  %v\n", status["dimensions"])
		fmt.Printf("metric:      %v\n", status["metric"])
		fmt.Printf("categories:  %v\n", status["categories"])
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Embedder   embedding.Embedder
	Store      *store.Store
	Retrieval  *retrieval.Service
	Normalizer *taxonomy.Normalizer
	TaxStore   *taxonomy.SQLiteStore
	Ingestor   *ingest.Ingestor
}

func (c *Components) Close() {
	if c.TaxStore != nil {
		_ = c.TaxStore.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

// newEmbedder builds the embedding provider selected by config. ONNX falls
// back to the mock embedder when the runtime or model is unavailable so
// development machines without the shared library still work.
func newEmbedder(cfg *config.Config, logger *zap.Logger) embedding.Embedder {
	switch cfg.Embedding.Provider {
	case "openai":
		return embedding.NewOpenAIEmbedder(&embedding.OpenAIConfig{
			APIKey:     os.Getenv(cfg.Embedding.APIKeyEnv),
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
		})
	case "mock":
		return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		onnxEmbedder, err := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if err != nil {
			logger.Warn("ONNX embedder unavailable, using mock", zap.Error(err))
			return embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		}
		return onnxEmbedder
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	embedder := newEmbedder(cfg, logger)
	embedTimeout := time.Duration(cfg.Embedding.TimeoutSeconds) * time.Second

	metric, err := vector.ParseMetric(cfg.Store.Metric)
	if err != nil {
		return nil, err
	}
	st, err := store.New(embedder, store.Options{
		ChunksPath:   cfg.Store.ChunksPath,
		VectorsPath:  cfg.Store.VectorsPath,
		Metric:       metric,
		EmbedTimeout: embedTimeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := st.Load(); err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}
	logger.Info("chunk store loaded",
		zap.Int("chunks", st.Len()),
		zap.Int("dimensions", st.Dimensions()),
		zap.String("metric", string(st.Metric())))

	ctx := context.Background()
	taxStore, err := taxonomy.NewSQLiteStore(cfg.Store.TaxonomyDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open taxonomy database: %w", err)
	}
	if err := taxStore.SeedIfEmpty(ctx, taxonomy.DefaultCategories()); err != nil {
		_ = taxStore.Close()
		return nil, fmt.Errorf("failed to seed taxonomy: %w", err)
	}
	seed, err := taxStore.LoadCategories(ctx)
	if err != nil {
		_ = taxStore.Close()
		return nil, fmt.Errorf("failed to load taxonomy: %w", err)
	}

	strategy, err := taxonomy.ParseStrategy(cfg.Normalizer.Strategy)
	if err != nil {
		_ = taxStore.Close()
		return nil, err
	}
	normalizer, err := taxonomy.NewNormalizer(ctx, seed, taxonomy.Options{
		Strategy:     strategy,
		Embedder:     embedder,
		EmbedTimeout: embedTimeout,
		Logger:       logger,
	})
	if err != nil {
		_ = taxStore.Close()
		return nil, fmt.Errorf("failed to build normalizer: %w", err)
	}

	svc := retrieval.NewService(st, embedder, embedTimeout, logger)
	ingestor := ingest.NewIngestor(st, cfg.Ingest.MaxChunkSize, logger)

	return &Components{
		Embedder:   embedder,
		Store:      st,
		Retrieval:  svc,
		Normalizer: normalizer,
		TaxStore:   taxStore,
		Ingestor:   ingestor,
	}, nil
}

func printUsage() {
	fmt.Println(`jester - size-chart knowledge server

Usage:
  jester server [flags]                Start the HTTP server
  jester search [flags] <query>        Retrieve the most relevant knowledge chunks
  jester map [flags] <label>           Map a measurement label to its canonical category
  jester ingest [flags] <file-or-dir>  Chunk and store research documents
  jester status [flags]                Show store and taxonomy status
  jester version                       Show version
  jester help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/jester/config.yaml)
  --debug            Enable debug logging

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct store access.
  --k int            Number of results (default from config)
  --output string    Output format: text or json (default: text)

Map Flags:
  --server string    Server URL (default: http://localhost:8080). Use empty (--server "") for direct access.
  --threshold float  Minimum fuzzy match score (0 = strategy default)

Ingest Flags:
  --config string    Config file path
  --type string      Document type stored in chunk metadata (default: research)

Examples:
  jester server
  jester search "sleeve length for slim fit shirts"
  jester map "Chest Circumference"
  jester ingest ~/research/size-charts/
  jester status --output json`)
}
