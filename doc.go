// Package toggle provides an OpenFeature provider for Hyphen Toggle feature
// flags.
//
// Toggle evaluates every flag server side for one evaluation context and
// returns them as a bundle. The provider caches that bundle and answers all
// typed evaluations from memory; only Init, OnContextChanged and background
// refreshes talk to the network.
//
// # Basic Usage
//
//	cfg := toggle.DefaultConfig()
//	cfg.PublicKey = os.Getenv("HYPHEN_PUBLIC_KEY")
//	cfg.Application = "checkout"
//	cfg.Environment = "production"
//
//	provider, err := toggle.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	openfeature.SetEvaluationContext(openfeature.NewEvaluationContext("user-123", map[string]any{
//	    "User": map[string]any{"Email": "user@example.com"},
//	}))
//
//	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
//	defer cancel()
//	if err := openfeature.SetProviderWithContextAndWait(ctx, provider); err != nil {
//	    log.Fatal(err)
//	}
//
//	client := openfeature.NewClient("my-app")
//	enabled, _ := client.BooleanValue(context.Background(), "new-feature", false, openfeature.EvaluationContext{})
//
// The bundle is fetched for the context the provider is initialized with,
// so the global evaluation context must be set before the provider.
// Evaluations for another targeting key return their default with
// INVALID_CONTEXT until OnContextChanged fetches a bundle for it.
//
// Evaluations return default values on errors. Use *ValueDetails methods to
// distinguish success from fallback via Reason and ErrorCode fields.
//
// # Configuration
//
// Config can be built in code, starting from DefaultConfig, or read from
// HYPHEN_* environment variables with ConfigFromEnv:
//
//	cfg, err := toggle.ConfigFromEnv()
//	provider, err := toggle.New(cfg,
//	    toggle.WithLogger(logger),
//	    toggle.WithMetricsRegisterer(prometheus.DefaultRegisterer),
//	)
//
// # Staleness
//
// A bundle older than NetworkOptions.CacheTTL keeps answering. The first
// read that observes it emits PROVIDER_STALE and, unless disabled with
// WithRefreshOnStale(false), triggers a background fetch for the last
// context. A successful fetch emits PROVIDER_READY and
// PROVIDER_CONFIGURATION_CHANGED.
//
// # Concurrency
//
// The provider is safe for concurrent use. Evaluations never block on the
// network. Concurrent fetches are not deduplicated; the last one to finish
// replaces the cached bundle.
package toggle
