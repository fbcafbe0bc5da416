package main

import (
	"context"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/bhekanik/cogmem/internal/engine"
	"github.com/bhekanik/cogmem/pkg/types"
)

func runStore(ctx context.Context, eng *engine.Engine, args []string) (any, error) {
	fs := flag.NewFlagSet("store", flag.ContinueOnError)
	agent := fs.String("agent", "", "agent id")
	content := fs.String("content", "", "memory content")
	memType := fs.String("type", "episodic", "episodic|semantic|procedural")
	importance := fs.Float64("importance", -1, "importance override in [0,1]")
	topics := fs.String("topics", "", "comma-separated topic list")
	eventDate := fs.String("event-date", "", "YYYY-MM-DD")
	expires := fs.String("expires", "", "YYYY-MM-DD")
	channel := fs.String("channel", "", "source channel")
	session := fs.String("session", "", "source session")
	skipDedup := fs.Bool("skip-dedup", false, "bypass near-duplicate detection")
	autoScore := fs.Bool("auto-score", false, "score importance via the scoring provider")
	autoTopics := fs.Bool("auto-topics", false, "extract topics via the scoring provider")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *agent == "" || *content == "" {
		return nil, fmt.Errorf("store: --agent and --content are required")
	}

	req := engine.WriteRequest{
		AgentID:             *agent,
		Content:             *content,
		MemoryType:          types.MemoryType(*memType),
		Channel:             *channel,
		Session:             *session,
		SkipDedup:           *skipDedup,
		AutoScoreImportance: *autoScore,
		AutoExtractTopics:   *autoTopics,
	}
	if *importance >= 0 {
		req.Importance = importance
	}
	if *topics != "" {
		req.Topics = splitCSV(*topics)
	}
	if *eventDate != "" {
		t, err := time.Parse("2006-01-02", *eventDate)
		if err != nil {
			return nil, fmt.Errorf("store: invalid --event-date: %w", err)
		}
		req.EventDate = &t
	}
	if *expires != "" {
		t, err := time.Parse("2006-01-02", *expires)
		if err != nil {
			return nil, fmt.Errorf("store: invalid --expires: %w", err)
		}
		req.ExpiresAt = &t
	}

	return eng.Store(ctx, req)
}

func runRetrieve(ctx context.Context, eng *engine.Engine, args []string) (any, error) {
	fs := flag.NewFlagSet("retrieve", flag.ContinueOnError)
	agent := fs.String("agent", "", "agent id")
	query := fs.String("query", "", "query text")
	limit := fs.Int("limit", 0, "max primary results (default 5)")
	noAssociations := fs.Bool("no-associations", false, "omit linked associations")
	minRetention := fs.Float64("min-retention", -1, "retention floor (default 0.2)")
	memTypes := fs.String("types", "", "comma-separated memory type filter")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *agent == "" || *query == "" {
		return nil, fmt.Errorf("retrieve: --agent and --query are required")
	}

	req := engine.ReadRequest{
		AgentID:             *agent,
		Query:               *query,
		Limit:               *limit,
		IncludeAssociations: !*noAssociations,
	}
	if *minRetention >= 0 {
		req.MinRetention = minRetention
	}
	if *memTypes != "" {
		for _, t := range splitCSV(*memTypes) {
			req.MemoryTypes = append(req.MemoryTypes, types.MemoryType(t))
		}
	}

	return eng.Retrieve(ctx, req)
}

func runConsolidate(ctx context.Context, eng *engine.Engine, args []string) (any, error) {
	fs := flag.NewFlagSet("consolidate", flag.ContinueOnError)
	agent := fs.String("agent", "", "agent id")
	compressionThreshold := fs.Int("compression-threshold", 0, "minimum fading count before compression runs (default 5)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *agent == "" {
		return nil, fmt.Errorf("consolidate: --agent is required")
	}

	return eng.Consolidate(ctx, *agent, engine.ConsolidateParams{
		CompressionThreshold: *compressionThreshold,
	})
}

func runLink(ctx context.Context, eng *engine.Engine, args []string) (any, error) {
	fs := flag.NewFlagSet("link", flag.ContinueOnError)
	source := fs.String("source", "", "source memory id")
	target := fs.String("target", "", "target memory id")
	strength := fs.Float64("strength", 0, "increment applied to both directions (default 0.1)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if *source == "" || *target == "" {
		return nil, fmt.Errorf("link: --source and --target are required")
	}

	if err := eng.Link(ctx, *source, *target, *strength); err != nil {
		return nil, err
	}
	return map[string]string{"source": *source, "target": *target}, nil
}

func runExtractTopics(ctx context.Context, eng *engine.Engine, args []string) (any, error) {
	fs := flag.NewFlagSet("extract-topics", flag.ContinueOnError)
	text := fs.String("text", "", "text to extract topics from")
	maxK := fs.Int("max", 5, "maximum topic count")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *text == "" {
		return nil, fmt.Errorf("extract-topics: --text is required")
	}

	topics, err := eng.Provider().ExtractTopics(ctx, *text, *maxK)
	if err != nil {
		return nil, err
	}
	return map[string]any{"topics": topics}, nil
}

func runScoreImportance(ctx context.Context, eng *engine.Engine, args []string) (any, error) {
	fs := flag.NewFlagSet("score-importance", flag.ContinueOnError)
	text := fs.String("text", "", "text to score")
	context_ := fs.String("context", "", "optional surrounding context")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *text == "" {
		return nil, fmt.Errorf("score-importance: --text is required")
	}

	importance, err := eng.Provider().ScoreImportance(ctx, *text, *context_)
	if err != nil {
		return nil, err
	}
	return map[string]any{"importance": importance}, nil
}

func runSummarize(ctx context.Context, eng *engine.Engine, args []string) (any, error) {
	fs := flag.NewFlagSet("summarize", flag.ContinueOnError)
	agent := fs.String("agent", "", "agent id")
	ids := fs.String("ids", "", "comma-separated memory ids")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if *agent == "" || *ids == "" {
		return nil, fmt.Errorf("summarize: --agent and --ids are required")
	}

	memories := make([]types.Memory, 0)
	for _, id := range splitCSV(*ids) {
		m, err := eng.Get(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("summarize: fetch %s: %w", id, err)
		}
		if m.AgentID != *agent {
			return nil, fmt.Errorf("summarize: memory %s does not belong to agent %s", id, *agent)
		}
		memories = append(memories, *m)
	}

	summary, err := eng.Provider().Summarize(ctx, memories)
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": summary}, nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
