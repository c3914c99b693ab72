package toggle

import (
	"context"

	of "github.com/open-feature/go-sdk/openfeature"
)

// BooleanEvaluation evaluates a feature flag and returns a boolean value.
//
// The value is read from the cached bundle; no request is made. The bundle
// must have been fetched for the targeting key in ec, otherwise the result
// is INVALID_CONTEXT. A toggle holding anything but a boolean is a
// PARSE_ERROR.
//
// Returns def if:
//   - The provider is not initialized or has been shut down
//   - Context is canceled or deadline exceeded
//   - No bundle has been fetched yet
//   - The targeting key differs from the cached bundle's
//   - Flag is not found
//   - The toggle value is not a boolean
func (p *Provider) BooleanEvaluation(ctx context.Context, flag string, def bool, ec of.FlattenedContext) of.BoolResolutionDetail {
	value, detail := resolve(ctx, p, of.Boolean, flag, def, ec, p.service.GetBoolean)
	return of.BoolResolutionDetail{
		Value:                    value,
		ProviderResolutionDetail: detail,
	}
}

// StringEvaluation evaluates a feature flag and returns a string value.
//
// A string toggle is returned as is, including strings that happen to hold
// JSON. Returns def under the same conditions as BooleanEvaluation.
func (p *Provider) StringEvaluation(ctx context.Context, flag, def string, ec of.FlattenedContext) of.StringResolutionDetail {
	value, detail := resolve(ctx, p, of.String, flag, def, ec, p.service.GetString)
	return of.StringResolutionDetail{
		Value:                    value,
		ProviderResolutionDetail: detail,
	}
}

// FloatEvaluation evaluates a feature flag and returns a float64 value.
//
// Only double toggles match. An integer toggle is a PARSE_ERROR, so a flag
// declared as integer on the server must be read with IntEvaluation.
func (p *Provider) FloatEvaluation(ctx context.Context, flag string, def float64, ec of.FlattenedContext) of.FloatResolutionDetail {
	value, detail := resolve(ctx, p, of.Float, flag, def, ec, p.service.GetDouble)
	return of.FloatResolutionDetail{
		Value:                    value,
		ProviderResolutionDetail: detail,
	}
}

// IntEvaluation evaluates a feature flag and returns an int64 value.
//
// Only integer toggles match; a double toggle is a PARSE_ERROR even when
// it has no fractional part.
func (p *Provider) IntEvaluation(ctx context.Context, flag string, def int64, ec of.FlattenedContext) of.IntResolutionDetail {
	value, detail := resolve(ctx, p, of.Int, flag, def, ec, p.service.GetInteger)
	return of.IntResolutionDetail{
		Value:                    value,
		ProviderResolutionDetail: detail,
	}
}

// ObjectEvaluation evaluates a feature flag and returns a structured value.
//
// Every toggle kind converts: objects become map[string]any, arrays []any,
// and scalars their Go value (string, int64, float64, bool or nil). A string
// toggle holding a JSON object or array is decoded first, so a server that
// stores structured values as strings still yields maps and slices.
//
// Example:
//
//	ctx := of.NewEvaluationContext("user-123", nil)
//	theme, _ := client.ObjectValue(context.Background(), "theme", nil, ctx)
//	// theme = map[string]any{"primary": "#000", "dense": true}
func (p *Provider) ObjectEvaluation(ctx context.Context, flag string, def any, ec of.FlattenedContext) of.InterfaceResolutionDetail {
	value, detail := resolve(ctx, p, of.Object, flag, def, ec, p.service.GetObject)
	return of.InterfaceResolutionDetail{
		Value:                    value,
		ProviderResolutionDetail: detail,
	}
}

// resolve runs the checks shared by every typed evaluation and converts the
// lookup into a resolution detail.
func resolve[T any](
	ctx context.Context,
	p *Provider,
	flagType of.Type,
	flag string,
	def T,
	ec of.FlattenedContext,
	get func(string, T, of.FlattenedContext) Resolution[T],
) (T, of.ProviderResolutionDetail) {
	typeName := flagTypeName(flagType)
	p.logger.Debug("evaluating flag",
		"flag", flag,
		"type", typeName,
		"targeting_key", targetingKeyOf(ec),
		"default", def)

	if validationDetail := p.validateEvaluationContext(ctx); validationDetail.Error() != nil {
		p.logger.Debug("validation failed", "flag", flag, "error", validationDetail.ResolutionError.Error())
		p.metrics.observeEvaluation(typeName, evaluationResult(validationDetail))
		return def, validationDetail
	}

	res := get(flag, def, ec)
	detail := resolutionDetailFor(res)
	p.metrics.observeEvaluation(typeName, evaluationResult(detail))

	if res.Err != nil {
		p.logger.Debug("returning default", "flag", flag, "type", typeName, "error", res.Err)
		return def, detail
	}
	p.logger.Debug("evaluation successful", "flag", flag, "type", typeName, "value", res.Value, "reason", detail.Reason)
	return res.Value, detail
}
