package toggle

import (
	"context"
	"log/slog"

	of "github.com/open-feature/go-sdk/openfeature"
)

// telemetryHook reports every flag read to the telemetry endpoint,
// including reads that fell back to the default. One instance serves all
// flag types.
type telemetryHook struct {
	of.UnimplementedHook
	service *Service
	logger  *slog.Logger
}

var _ of.Hook = (*telemetryHook)(nil)

func newTelemetryHook(service *Service, logger *slog.Logger) *telemetryHook {
	return &telemetryHook{
		service: service,
		logger:  componentLogger(logger, "telemetry"),
	}
}

// Finally runs after both successful and failed reads. It sends the
// evaluation in a detached goroutine; the read never waits for it, and
// cancellation of ctx does not abort it.
func (h *telemetryHook) Finally(ctx context.Context, hookContext of.HookContext, details of.InterfaceEvaluationDetails, _ of.HookHints) {
	if !h.service.telemetryEnabled {
		return
	}

	usage := Usage{
		FlagKey:      details.FlagKey,
		FlagType:     hookContext.FlagType(),
		Value:        details.Value,
		Reason:       details.Reason,
		ErrorMessage: details.ErrorMessage,
		Metadata:     details.FlagMetadata,
	}
	fc := flatten(hookContext.EvaluationContext())

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryTimeout)
	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("telemetry goroutine panicked", "flag", usage.FlagKey, "panic", r)
			}
		}()
		h.service.Telemetry(sendCtx, fc, usage)
	}()
}
