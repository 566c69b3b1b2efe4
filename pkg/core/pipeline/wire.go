package pipeline

import (
	"context"
	"fmt"
	"net/http"

	"filing_rating/pkg/core/agent"
	"filing_rating/pkg/core/config"
	"filing_rating/pkg/core/ingest"
	"filing_rating/pkg/core/logging"
	"filing_rating/pkg/core/prompt"
	"filing_rating/pkg/core/rating"
	"filing_rating/pkg/core/store"

	"github.com/rs/zerolog"
)

// BuildOptions override parts of the configured wiring.
type BuildOptions struct {
	// Rater replaces the LLM narrative rater when set.
	Rater rating.NarrativeRater
	// DisableStore skips database setup even when a URL is configured.
	DisableStore bool
}

// Wiring is a fully assembled service graph.
type Wiring struct {
	Analyzer *Analyzer
	Agents   *agent.Manager
	Reports  *store.ReportRepo // nil when persistence is disabled
	Prompts  *prompt.Registry

	closers []func()
}

// Close releases connections opened by Build.
func (w *Wiring) Close() {
	for i := len(w.closers) - 1; i >= 0; i-- {
		w.closers[i]()
	}
}

// Build assembles the analyzer and its dependencies from cfg. Redis must be
// reachable when selected; an unreachable database only disables persistence.
func Build(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts BuildOptions) (*Wiring, error) {
	w := &Wiring{}

	fetcher := ingest.NewFetcher(cfg.SEC.UserAgent,
		ingest.WithHTTPClient(&http.Client{Timeout: cfg.SEC.Timeout.Std()}),
		ingest.WithRateLimit(cfg.SEC.RateLimit),
		ingest.WithRetryPolicy(ingest.RetryPolicy{
			MaxAttempts: cfg.SEC.MaxAttempts,
			BaseDelay:   cfg.SEC.BaseBackoff.Std(),
			MaxDelay:    cfg.SEC.MaxBackoff.Std(),
		}),
		ingest.WithLogger(logging.Component(logger, "fetcher")),
	)
	client := ingest.NewEDGARClient(fetcher, ingest.Endpoints{
		DataBaseURL:     cfg.SEC.DataBaseURL,
		ArchivesBaseURL: cfg.SEC.ArchivesBaseURL,
		TickersURL:      cfg.SEC.TickersURL,
	})

	var source ingest.TickerSource = client
	if cfg.SEC.TickerTablePath != "" {
		source = ingest.FileTickerSource{Path: cfg.SEC.TickerTablePath}
	}

	resolverOpts := []ingest.ResolverOption{
		ingest.WithRefreshInterval(cfg.SEC.TickerRefresh.Std()),
		ingest.WithResolverLogger(logging.Component(logger, "resolver")),
	}
	switch cfg.Cache.Backend {
	case "redis":
		rdb, err := ingest.NewRedisClient(ctx, cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		if err != nil {
			return nil, err
		}
		w.closers = append(w.closers, func() { rdb.Close() })
		resolverOpts = append(resolverOpts, ingest.WithTickerCache(ingest.NewRedisCache(rdb, cfg.Cache.TTL.Std(), logging.Component(logger, "cache"))))
	case "memory", "":
		resolverOpts = append(resolverOpts, ingest.WithTickerCache(ingest.NewMemoryCache()))
	}
	resolver := ingest.NewResolver(source, resolverOpts...)

	agentCfg, err := agent.LoadConfig(cfg.ModelsFile)
	if err != nil {
		w.Close()
		return nil, err
	}
	w.Agents = agent.NewManager(agentCfg, nil, logging.Component(logger, "agent"))

	w.Prompts = prompt.NewDefaultRegistry()
	n, err := prompt.LoadFromDirectory(w.Prompts, cfg.ResourcesPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.ResourcesPath).Msg("Failed to load prompt overrides, using built-in prompts")
	} else if n > 0 {
		logger.Info().Int("count", n).Str("path", cfg.ResourcesPath).Msg("Loaded prompt overrides")
	}

	rater := opts.Rater
	if rater == nil {
		rater = rating.NewLLMRater(w.Agents, w.Prompts, cfg.Rating.MaxNarrativeChars, logging.Component(logger, "rater"))
	}

	var saver ReportSaver
	if cfg.Store.DatabaseURL != "" && !opts.DisableStore {
		if err := store.InitDB(ctx, cfg.Store.DatabaseURL); err != nil {
			logger.Warn().Err(err).Msg("Database unavailable, reports will not be persisted")
		} else {
			w.closers = append(w.closers, store.Close)
			repo := store.NewReportRepo(store.GetPool())
			if err := repo.EnsureSchema(ctx); err != nil {
				w.Close()
				return nil, fmt.Errorf("failed to prepare report store: %w", err)
			}
			w.Reports = repo
			saver = repo
		}
	}

	weights := rating.Weights(cfg.Rating.Weights)
	if err := weights.Validate(); err != nil {
		w.Close()
		return nil, err
	}

	w.Analyzer = NewAnalyzer(
		resolver,
		ingest.NewFactsFetcher(client, logging.Component(logger, "facts")),
		ingest.NewNarrativeExtractor(client, logging.Component(logger, "narrative")),
		rater,
		Options{
			Weights:       weights,
			BranchTimeout: cfg.Rating.BranchTimeout.Std(),
			Saver:         saver,
			Logger:        logging.Component(logger, "analyzer"),
		},
	)
	return w, nil
}
