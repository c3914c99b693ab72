package toggle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	of "github.com/open-feature/go-sdk/openfeature"

	"github.com/hyphen/toggle-openfeature-go/internal/cache"
	"github.com/hyphen/toggle-openfeature-go/internal/endpoint"
	"github.com/hyphen/toggle-openfeature-go/internal/signal"
	"github.com/hyphen/toggle-openfeature-go/internal/transport"
	"github.com/hyphen/toggle-openfeature-go/internal/value"
)

// Lookup failures. Typed getters return them alongside the caller's
// default; they are never raised.
var (
	ErrNoEvaluation    = errors.New("could not retrieve evaluation response")
	ErrContextMismatch = errors.New("targeting key does not match the cached evaluation")
	ErrFlagNotFound    = errors.New("flag not found")
	ErrParse           = errors.New("could not extract the value")
)

// Resolution is the outcome of a typed lookup. On failure Value is the
// caller's default and Err is one of the lookup errors.
type Resolution[T any] struct {
	Value  T
	Reason string
	Type   string
	Err    error
}

// Usage describes one flag read for telemetry.
type Usage struct {
	FlagKey      string
	FlagType     of.Type
	Value        any
	Reason       of.Reason
	ErrorMessage string
	Metadata     of.FlagMetadata
}

// Service fetches evaluation bundles, answers typed lookups from the cache
// and reports usage. Fetches never block lookups, which only read the cache.
type Service struct {
	publicKey        string
	ttl              time.Duration
	telemetryEnabled bool
	builder          contextBuilder
	client           *transport.Client
	urls             *endpoint.Resolver
	cache            *cache.Cache[*EvaluationBundle]
	signal           *signal.Broadcaster[signal.Event]
	metrics          *metrics
	logger           *slog.Logger
	now              func() time.Time
	lastContext      atomic.Pointer[of.FlattenedContext]
	lastErrMu        sync.RWMutex
	lastErr          error
}

func newService(cfg Config, logger *slog.Logger, m *metrics, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		publicKey:        cfg.PublicKey,
		ttl:              cfg.Network.CacheTTL,
		telemetryEnabled: cfg.EnableToggleUsage,
		builder: contextBuilder{
			application: cfg.Application,
			environment: cfg.Environment,
			buildInfo:   cfg.Build.withDefaults(DefaultBuildInfo()),
		},
		client: transport.New(cfg.httpClient, transport.Options{
			Timeout:        cfg.Network.Timeout,
			MaxRetries:     cfg.Network.MaxRetries,
			RetryBaseDelay: cfg.Network.RetryBaseDelay,
		}, componentLogger(logger, "transport")),
		urls:    endpoint.NewResolver(endpoint.PublicKey(cfg.PublicKey), cfg.CustomURLs, componentLogger(logger, "endpoint")),
		cache:   cache.NewWithClock[*EvaluationBundle](now),
		signal:  signal.New[signal.Event](componentLogger(logger, "signal")),
		metrics: m,
		logger:  componentLogger(logger, "service"),
		now:     now,
	}
}

// Evaluate fetches a bundle for fc and caches it. It fails only with
// ErrTargetingKeyMissing; transport and decode failures are logged,
// recorded in LastError, and leave the cache untouched. A stored bundle
// publishes signal.ContextChanged.
func (s *Service) Evaluate(ctx context.Context, fc of.FlattenedContext) error {
	ec, err := s.builder.build(fc)
	if err != nil {
		return err
	}
	remembered := copyContext(fc)
	s.lastContext.Store(&remembered)

	start := time.Now()
	var bundle EvaluationBundle
	found, err := s.client.Send(ctx, s.urls.EvaluateURLs(), s.publicKey, ec, &bundle)
	if err != nil {
		s.metrics.observeFetch(outcomeError, time.Since(start))
		s.setLastError(err)
		s.logger.Error("evaluation failed", "targeting_key", ec.TargetingKey, "error", err)
		return nil
	}
	if !found {
		s.metrics.observeFetch(outcomeEmpty, time.Since(start))
		s.logger.Warn("evaluation response was empty, keeping cached bundle", "targeting_key", ec.TargetingKey)
		return nil
	}
	s.metrics.observeFetch(outcomeSuccess, time.Since(start))

	if bundle.Toggles == nil {
		bundle.Toggles = map[string]Evaluation{}
	}
	s.cache.Set(&bundle, s.ttl)
	s.setLastError(nil)
	s.metrics.cachedToggles.Set(float64(len(bundle.Toggles)))
	s.logger.Debug("evaluation cached",
		"targeting_key", bundle.TargetingKey,
		"toggles", len(bundle.Toggles),
		"ttl", s.ttl)

	s.signal.Publish(signal.ContextChanged)
	return nil
}

// Refresh re-evaluates the last context passed to Evaluate. It does
// nothing when Evaluate has not been called yet.
func (s *Service) Refresh(ctx context.Context) error {
	last := s.lastContext.Load()
	if last == nil {
		s.logger.Debug("no context to refresh")
		return nil
	}
	return s.Evaluate(ctx, *last)
}

// LastError returns the error of the most recent failed fetch, or nil
// once a fetch has succeeded.
func (s *Service) LastError() error {
	s.lastErrMu.RLock()
	defer s.lastErrMu.RUnlock()
	return s.lastErr
}

func (s *Service) setLastError(err error) {
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
}

// Bundle returns the cached bundle and whether it has expired.
func (s *Service) Bundle() (bundle *EvaluationBundle, expired bool, ok bool) {
	entry := s.cache.Entry()
	if entry == nil {
		return nil, true, false
	}
	return entry.Value, entry.Expired(s.now()), true
}

// Subscribe returns a channel of lifecycle events and its unsubscribe func.
func (s *Service) Subscribe(bufferSize int) (<-chan signal.Event, func()) {
	return s.signal.Subscribe(bufferSize)
}

// close releases signal subscribers and drops the cached bundle.
func (s *Service) close() {
	s.signal.Close()
	s.cache.Clear()
	s.metrics.cachedToggles.Set(0)
}

// GetBoolean looks up a boolean toggle.
func (s *Service) GetBoolean(key string, def bool, fc of.FlattenedContext) Resolution[bool] {
	return getEvaluation(s, key, def, fc, value.Value.AsBool)
}

// GetString looks up a string toggle.
func (s *Service) GetString(key, def string, fc of.FlattenedContext) Resolution[string] {
	return getEvaluation(s, key, def, fc, value.Value.AsString)
}

// GetInteger looks up an integer toggle.
func (s *Service) GetInteger(key string, def int64, fc of.FlattenedContext) Resolution[int64] {
	return getEvaluation(s, key, def, fc, value.Value.AsInt)
}

// GetDouble looks up a double toggle. Integer values do not match.
func (s *Service) GetDouble(key string, def float64, fc of.FlattenedContext) Resolution[float64] {
	return getEvaluation(s, key, def, fc, value.Value.AsDouble)
}

// GetObject looks up a structured toggle. A string holding a JSON object
// or array is decoded first; any value converts, so extraction never fails.
func (s *Service) GetObject(key string, def any, fc of.FlattenedContext) Resolution[any] {
	return getEvaluation(s, key, def, fc, func(v value.Value) (any, bool) {
		return v.UnwrapEmbeddedJSON().ToAny(), true
	})
}

// getEvaluation is the lookup shared by every typed getter. An expired
// bundle still answers, after publishing signal.Stale.
func getEvaluation[T any](s *Service, key string, def T, fc of.FlattenedContext, extract func(value.Value) (T, bool)) Resolution[T] {
	entry := s.cache.Entry()
	if entry == nil {
		return Resolution[T]{Value: def, Err: ErrNoEvaluation}
	}

	if entry.Expired(s.now()) {
		s.metrics.staleReads.Inc()
		s.signal.Publish(signal.Stale)
	}

	bundle := entry.Value
	if targetingKey := targetingKeyOf(fc); targetingKey == "" || targetingKey != bundle.TargetingKey {
		return Resolution[T]{
			Value: def,
			Err:   fmt.Errorf("%w: got %q, cached %q", ErrContextMismatch, targetingKey, bundle.TargetingKey),
		}
	}

	toggle, ok := bundle.Toggles[key]
	if !ok {
		return Resolution[T]{Value: def, Err: fmt.Errorf("%w: %s", ErrFlagNotFound, key)}
	}

	v, ok := extract(toggle.Value)
	if !ok {
		return Resolution[T]{
			Value: def,
			Type:  toggle.Type,
			Err:   fmt.Errorf("%w: %s holds %s", ErrParse, key, toggle.Value.Kind()),
		}
	}
	return Resolution[T]{Value: v, Reason: toggle.Reason, Type: toggle.Type}
}

// Telemetry reports one flag read. It does nothing when usage reporting is
// disabled and logs instead of returning errors.
func (s *Service) Telemetry(ctx context.Context, fc of.FlattenedContext, u Usage) {
	if !s.telemetryEnabled {
		return
	}

	ec, err := s.builder.build(fc)
	if err != nil {
		s.metrics.telemetry.WithLabelValues(outcomeSkipped).Inc()
		s.logger.Error("failed to build context, telemetry skipped", "flag", u.FlagKey, "error", err)
		return
	}

	payload := TelemetryPayload{
		Context: ec,
		Data: TelemetryData{Toggle: Evaluation{
			Key:          u.FlagKey,
			Value:        value.FromAny(u.Value),
			Type:         usageType(u),
			Reason:       string(u.Reason),
			ErrorMessage: u.ErrorMessage,
		}},
	}

	if _, err := s.client.Send(ctx, s.urls.TelemetryURLs(), s.publicKey, payload, nil); err != nil {
		s.metrics.telemetry.WithLabelValues(outcomeError).Inc()
		s.logger.Error("telemetry update failed", "flag", u.FlagKey, "error", err)
		return
	}
	s.metrics.telemetry.WithLabelValues(outcomeSuccess).Inc()
}

// usageType prefers the declared toggle type from flag metadata, then the
// OpenFeature flag type, then the runtime kind of the value.
func usageType(u Usage) string {
	if t, ok := u.Metadata[MetadataTypeKey].(string); ok && t != "" {
		return t
	}
	if name := flagTypeName(u.FlagType); name != "" {
		return name
	}
	return value.FromAny(u.Value).Kind().String()
}

func flagTypeName(t of.Type) string {
	switch t {
	case of.Boolean:
		return "boolean"
	case of.String:
		return "string"
	case of.Int:
		return "integer"
	case of.Float:
		return "double"
	case of.Object:
		return "object"
	default:
		return ""
	}
}

func copyContext(fc of.FlattenedContext) of.FlattenedContext {
	out := make(of.FlattenedContext, len(fc))
	for k, v := range fc {
		out[k] = v
	}
	return out
}
