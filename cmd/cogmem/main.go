// cmd/cogmem is the operational wrapper around the memory engine
// core (§6): one subcommand per external operation, each printing a
// single JSON object to stdout and nothing else. All diagnostic
// logging goes to stderr so a pipeline consuming stdout never sees
// anything but the result object.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/bhekanik/cogmem/internal/config"
	"github.com/bhekanik/cogmem/internal/engine"
	"github.com/bhekanik/cogmem/internal/memerrs"
	"github.com/bhekanik/cogmem/internal/scoring"
	"github.com/bhekanik/cogmem/internal/storage"
	"github.com/bhekanik/cogmem/internal/storage/postgres"
	"github.com/bhekanik/cogmem/internal/storage/sqlite"
)

// commandFunc runs one subcommand: parse its own flags out of args,
// call into eng, and return the value to be JSON-encoded to stdout.
type commandFunc func(ctx context.Context, eng *engine.Engine, args []string) (any, error)

var commands = map[string]commandFunc{
	"store":            runStore,
	"retrieve":         runRetrieve,
	"consolidate":      runConsolidate,
	"link":             runLink,
	"extract-topics":   runExtractTopics,
	"score-importance": runScoreImportance,
	"summarize":        runSummarize,
}

func main() {
	log.SetOutput(os.Stderr)
	log.SetPrefix("cogmem: ")
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: cogmem <store|retrieve|consolidate|link|extract-topics|score-importance|summarize> [flags]")
		return 1
	}

	subcommand, rest := args[0], args[1:]
	handler, ok := commands[subcommand]
	if !ok {
		fmt.Fprintf(os.Stderr, "cogmem: unknown subcommand %q\n", subcommand)
		return 1
	}

	configFile, rest := extractConfigFlag(rest)

	cfg, err := config.Load(configFile)
	if err != nil {
		log.Printf("config error: %v", err)
		return memerrs.ExitCode(err)
	}

	store, provider, err := wireports(cfg)
	if err != nil {
		log.Printf("wiring error: %v", err)
		return memerrs.ExitCode(err)
	}
	defer store.Close()

	eng, err := engine.New(store, provider, engine.Defaults{
		DedupThreshold:     cfg.DedupThreshold,
		ReadMinRetention:   cfg.MinRetention,
		PromotionStability: cfg.PromotionStability,
		PromotionAccess:    cfg.PromotionAccess,
	})
	if err != nil {
		log.Printf("engine init error: %v", err)
		return memerrs.ExitCode(err)
	}

	result, err := handler(context.Background(), eng, rest)
	if err != nil {
		log.Printf("%s failed: %v", subcommand, err)
		return memerrs.ExitCode(err)
	}

	if err := json.NewEncoder(os.Stdout).Encode(result); err != nil {
		log.Printf("encode output: %v", err)
		return 1
	}
	return 0
}

// extractConfigFlag pulls a leading "--config path" or
// "--config=path" pair out of args, since every subcommand's own
// flag.FlagSet is built fresh inside its handler and shouldn't also
// have to know about the global override.
func extractConfigFlag(args []string) (string, []string) {
	for i, a := range args {
		if a == "--config" && i+1 < len(args) {
			rest := append(append([]string{}, args[:i]...), args[i+2:]...)
			return args[i+1], rest
		}
		if strings.HasPrefix(a, "--config=") {
			rest := append(append([]string{}, args[:i]...), args[i+1:]...)
			return strings.TrimPrefix(a, "--config="), rest
		}
	}
	return "", args
}

// wireports selects and opens the C2 persistence backend and the C3
// scoring provider from cfg. A memory_db_url that looks like a
// Postgres DSN picks the postgres backend; everything else (a
// filesystem path or ":memory:") picks sqlite.
func wireports(cfg *config.Config) (storage.Store, scoring.Provider, error) {
	var store storage.Store
	var err error
	if isPostgresDSN(cfg.MemoryDBURL) {
		store, err = postgres.NewStore(cfg.MemoryDBURL, cfg.DecayBaseDays)
	} else {
		store, err = sqlite.NewStore(cfg.MemoryDBURL, cfg.DecayBaseDays)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: open store: %v", memerrs.ErrPersistence, err)
	}

	provider, err := scoring.New(scoring.ProviderConfig{
		Provider:       cfg.ScoringProvider,
		APIKey:         cfg.ScoringAPIKey,
		ChatModel:      cfg.ScoringModel,
		EmbeddingModel: cfg.EmbeddingModel,
		BaseURL:        cfg.ScoringBaseURL,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", memerrs.ErrConfig, err)
	}

	return store, provider, nil
}

func isPostgresDSN(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}
