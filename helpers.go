package toggle

import (
	"context"
	"errors"
	"sync/atomic"

	of "github.com/open-feature/go-sdk/openfeature"
)

// Service returns the evaluation service behind the provider.
//
// It is meant for drivers that manage contexts themselves and for
// diagnostics: Service().Bundle() exposes the cached bundle, and
// Service().Subscribe() the raw lifecycle signal. The service is only
// useful between Init and Shutdown; after Shutdown its signal is closed
// and typed getters keep answering from the last bundle.
func (p *Provider) Service() *Service {
	return p.service
}

// validateEvaluationContext rejects evaluations the provider cannot serve.
// Returns a ProviderResolutionDetail with an error if validation fails, or
// an empty detail if valid. Targeting key checks belong to the lookup,
// which reports a missing or foreign key as INVALID_CONTEXT.
func (p *Provider) validateEvaluationContext(ctx context.Context) of.ProviderResolutionDetail {
	if atomic.LoadUint32(&p.shutdown) == shutdownStateActive || p.Status() == of.NotReadyState {
		return resolutionDetailProviderNotReady()
	}

	if err := ctx.Err(); err != nil {
		return resolutionDetailContextCancelled(err)
	}

	return of.ProviderResolutionDetail{}
}

// ========================================
// OpenFeature Error Code Mapping
// ========================================
//
// Lookup errors from the Service map onto OpenFeature error codes:
//
//   ErrNoEvaluation    -> GENERAL          (no bundle fetched yet)
//   ErrContextMismatch -> INVALID_CONTEXT  (bundle belongs to another targeting key)
//   ErrFlagNotFound    -> FLAG_NOT_FOUND
//   ErrParse           -> PARSE_ERROR      (toggle value has another kind)
//
// PROVIDER_NOT_READY is returned before Init and after Shutdown, and GENERAL
// when the caller's context is already done. TARGETING_KEY_MISSING is only
// returned by Init and OnContextChanged, never by an evaluation.

// resolutionDetailFor converts a lookup result into a resolution detail.
func resolutionDetailFor[T any](res Resolution[T]) of.ProviderResolutionDetail {
	if res.Err != nil {
		return resolutionDetailFromError(res.Err, res.Type)
	}
	return resolutionDetailFound(res.Reason, res.Type)
}

func resolutionDetailFromError(err error, toggleType string) of.ProviderResolutionDetail {
	switch {
	case errors.Is(err, ErrContextMismatch):
		return resolutionDetailInvalidContext(err.Error())
	case errors.Is(err, ErrFlagNotFound):
		return resolutionDetailNotFound()
	case errors.Is(err, ErrParse):
		detail := resolutionDetailParseError(err.Error())
		detail.FlagMetadata = typeMetadata(toggleType)
		return detail
	default:
		return resolutionDetailGeneral(err.Error())
	}
}

// resolutionDetailFound reports the server's reason, or TARGETING_MATCH when
// it sent none, and exposes the declared toggle type as flag metadata.
func resolutionDetailFound(reason, toggleType string) of.ProviderResolutionDetail {
	r := of.TargetingMatchReason
	if reason != "" {
		r = of.Reason(reason)
	}
	return of.ProviderResolutionDetail{
		Reason:       r,
		FlagMetadata: typeMetadata(toggleType),
	}
}

func typeMetadata(toggleType string) of.FlagMetadata {
	if toggleType == "" {
		return nil
	}
	return of.FlagMetadata{MetadataTypeKey: toggleType}
}

// resolutionDetailNotFound creates a resolution detail for a flag not found error.
func resolutionDetailNotFound() of.ProviderResolutionDetail {
	return providerResolutionDetailError(
		of.NewFlagNotFoundResolutionError("flag not found"),
		of.DefaultReason)
}

// resolutionDetailParseError creates a resolution detail for a parse error.
func resolutionDetailParseError(msg string) of.ProviderResolutionDetail {
	return providerResolutionDetailError(
		of.NewParseErrorResolutionError(msg),
		of.ErrorReason)
}

// resolutionDetailInvalidContext creates a resolution detail for invalid context.
func resolutionDetailInvalidContext(msg string) of.ProviderResolutionDetail {
	return providerResolutionDetailError(
		of.NewInvalidContextResolutionError(msg),
		of.ErrorReason)
}

// resolutionDetailGeneral creates a resolution detail for a general error.
func resolutionDetailGeneral(msg string) of.ProviderResolutionDetail {
	return providerResolutionDetailError(
		of.NewGeneralResolutionError(msg),
		of.ErrorReason)
}

// resolutionDetailContextCancelled creates a resolution detail for canceled context.
func resolutionDetailContextCancelled(err error) of.ProviderResolutionDetail {
	return resolutionDetailGeneral(err.Error())
}

// resolutionDetailProviderNotReady creates a resolution detail for provider not ready.
func resolutionDetailProviderNotReady() of.ProviderResolutionDetail {
	return providerResolutionDetailError(
		of.NewProviderNotReadyResolutionError("provider not initialized"),
		of.ErrorReason)
}

// providerResolutionDetailError creates a resolution detail with an error.
func providerResolutionDetailError(resErr of.ResolutionError, reason of.Reason) of.ProviderResolutionDetail {
	return of.ProviderResolutionDetail{
		ResolutionError: resErr,
		Reason:          reason,
	}
}

// evaluationResult labels an evaluation for metrics: "success" or the
// OpenFeature error code.
func evaluationResult(detail of.ProviderResolutionDetail) string {
	if detail.Error() == nil {
		return outcomeSuccess
	}
	return string(detail.ResolutionDetail().ErrorCode)
}
