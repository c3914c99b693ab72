package toggle

import (
	"log/slog"
	"sync"

	of "github.com/open-feature/go-sdk/openfeature"
	"golang.org/x/sync/singleflight"
)

var (
	_ of.FeatureProvider          = (*Provider)(nil)
	_ of.StateHandler             = (*Provider)(nil)
	_ of.ContextAwareStateHandler = (*Provider)(nil)
	_ of.EventHandler             = (*Provider)(nil)
)

// Provider is an OpenFeature provider backed by the Hyphen Toggle service.
//
// Flag values are computed remotely for one evaluation context at a time.
// Init fetches the bundle for the initial context, OnContextChanged fetches
// it again for a new one, and typed evaluations answer from the cached
// bundle without touching the network. A bundle older than the configured
// TTL is still served, but the provider reports PROVIDER_STALE and refreshes
// it in the background.
//
// Create instances with New. A provider cannot be re-initialized after
// Shutdown.
type Provider struct {
	service     *Service
	metrics     *metrics
	logger      *slog.Logger
	eventStream chan of.Event
	stopMonitor chan struct{}
	monitorDone chan struct{}

	refreshOnStale bool

	initGroup singleflight.Group
	initMu    sync.Mutex

	mtx         sync.RWMutex
	state       of.State
	initialized bool

	shutdown uint32
}

// New creates a provider from cfg and opts. Options are applied to cfg
// before it is validated.
//
// Example:
//
//	cfg := toggle.DefaultConfig()
//	cfg.PublicKey = "public_..."
//	cfg.Application = "checkout"
//	cfg.Environment = "production"
//
//	provider, err := toggle.New(cfg, toggle.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := openfeature.SetProviderWithContextAndWait(ctx, provider); err != nil {
//	    log.Fatal(err)
//	}
func New(cfg Config, opts ...Option) (*Provider, error) {
	for _, opt := range opts {
		opt(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("provider", ProviderName)

	m := newMetrics(cfg.registerer)

	p := &Provider{
		service:        newService(cfg, logger, m, cfg.now),
		metrics:        m,
		logger:         logger,
		eventStream:    make(chan of.Event, eventChannelBuffer),
		stopMonitor:    make(chan struct{}),
		monitorDone:    make(chan struct{}),
		refreshOnStale: cfg.RefreshOnStale,
		state:          of.NotReadyState,
	}

	logger.Debug("provider created",
		"application", cfg.Application,
		"environment", cfg.Environment,
		"evaluate_urls", p.service.urls.EvaluateURLs(),
		"cache_ttl", cfg.Network.CacheTTL,
		"usage_telemetry", cfg.EnableToggleUsage)

	return p, nil
}

// Metadata returns the provider name.
func (p *Provider) Metadata() of.Metadata {
	return of.Metadata{Name: ProviderName}
}

// Hooks returns the telemetry hook, which reports every flag read to the
// Toggle service when usage telemetry is enabled.
func (p *Provider) Hooks() []of.Hook {
	return []of.Hook{newTelemetryHook(p.service, p.logger)}
}
