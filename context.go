package toggle

import (
	"errors"

	"github.com/google/uuid"
	of "github.com/open-feature/go-sdk/openfeature"

	"github.com/hyphen/toggle-openfeature-go/internal/value"
)

// ErrTargetingKeyMissing is returned by Evaluate when the context has no
// targeting key. It is the only evaluate failure surfaced to the caller.
var ErrTargetingKeyMissing = errors.New("targeting key missing")

// EvaluationContext is the subject description sent to the Toggle service.
type EvaluationContext struct {
	TargetingKey     string                 `json:"targetingKey"`
	Application      string                 `json:"application"`
	Environment      string                 `json:"environment"`
	CustomAttributes map[string]value.Value `json:"customAttributes"`
	User             *UserContext           `json:"user,omitempty"`
}

// UserContext describes the user behind a context. ID is generated for
// each instance and does not take part in equality.
type UserContext struct {
	ID               uuid.UUID              `json:"Id"`
	Email            string                 `json:"Email,omitempty"`
	Name             string                 `json:"Name,omitempty"`
	CustomAttributes map[string]value.Value `json:"CustomAttributes"`
}

// NewUserContext returns a user with a fresh ID.
func NewUserContext(email, name string, customAttributes map[string]any) *UserContext {
	return &UserContext{
		ID:               uuid.New(),
		Email:            email,
		Name:             name,
		CustomAttributes: value.MapFromAny(customAttributes),
	}
}

// Equal compares everything but the generated ID.
func (u *UserContext) Equal(other *UserContext) bool {
	if u == nil || other == nil {
		return u == other
	}
	return u.Email == other.Email &&
		u.Name == other.Name &&
		value.MapEqual(u.CustomAttributes, other.CustomAttributes)
}

// Equal reports whether both contexts describe the same subject with the
// same attributes.
func (c *EvaluationContext) Equal(other *EvaluationContext) bool {
	if c == nil || other == nil {
		return c == other
	}
	return c.TargetingKey == other.TargetingKey &&
		c.Application == other.Application &&
		c.Environment == other.Environment &&
		value.MapEqual(c.CustomAttributes, other.CustomAttributes) &&
		c.User.Equal(other.User)
}

// contextBuilder turns an OpenFeature context into the wire context,
// stamping application, environment and diagnostic attributes.
type contextBuilder struct {
	application string
	environment string
	buildInfo   BuildInfo
}

// build maps the flattened OpenFeature context. CustomAttributes and User
// map attributes are read as documented on their keys; every other
// attribute is merged into the custom attributes, with explicit
// CustomAttributes members taking precedence. Diagnostic attributes are
// applied last.
func (b contextBuilder) build(fc of.FlattenedContext) (*EvaluationContext, error) {
	targetingKey := targetingKeyOf(fc)
	if targetingKey == "" {
		return nil, ErrTargetingKeyMissing
	}

	custom := make(map[string]value.Value, len(fc)+4)
	for k, v := range fc {
		switch k {
		case of.TargetingKey, CustomAttributesKey, UserKey:
			continue
		}
		custom[k] = value.FromAny(v)
	}
	if explicit, ok := asMap(fc[CustomAttributesKey]); ok {
		for k, v := range explicit {
			custom[k] = value.FromAny(v)
		}
	}

	custom[attrBundleIdentifier] = value.String(b.buildInfo.BundleIdentifier)
	custom[attrBuildConfiguration] = value.String(b.buildInfo.BuildConfiguration)
	custom[attrAppVersion] = value.String(b.buildInfo.AppVersion)
	custom[attrBuildVersion] = value.String(b.buildInfo.BuildVersion)

	return &EvaluationContext{
		TargetingKey:     targetingKey,
		Application:      b.application,
		Environment:      b.environment,
		CustomAttributes: custom,
		User:             userFrom(fc[UserKey]),
	}, nil
}

func userFrom(raw any) *UserContext {
	m, ok := asMap(raw)
	if !ok {
		return nil
	}
	email, _ := m[UserEmailKey].(string)
	name, _ := m[UserNameKey].(string)
	custom, _ := asMap(m[UserCustomAttributesKey])
	return NewUserContext(email, name, custom)
}

// asMap accepts the map shapes an OpenFeature attribute can take.
func asMap(raw any) (map[string]any, bool) {
	switch m := raw.(type) {
	case map[string]any:
		return m, true
	case of.FlattenedContext:
		return m, true
	case of.FlagMetadata:
		return m, true
	}
	if v := value.FromAny(raw); v.Kind() == value.KindObject {
		obj, _ := v.ToAny().(map[string]any)
		return obj, true
	}
	return nil, false
}

func targetingKeyOf(fc of.FlattenedContext) string {
	key, _ := fc[of.TargetingKey].(string)
	return key
}

// flatten mirrors the SDK's flattening of an EvaluationContext.
func flatten(ec of.EvaluationContext) of.FlattenedContext {
	attrs := ec.Attributes()
	fc := make(of.FlattenedContext, len(attrs)+1)
	for k, v := range attrs {
		fc[k] = v
	}
	if tk := ec.TargetingKey(); tk != "" {
		fc[of.TargetingKey] = tk
	}
	return fc
}

// contextsEqual compares two OpenFeature contexts by targeting key and
// attributes.
func contextsEqual(a, b of.FlattenedContext) bool {
	return targetingKeyOf(a) == targetingKeyOf(b) &&
		value.MapEqual(value.MapFromAny(a), value.MapFromAny(b))
}
