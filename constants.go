package toggle

import "time"

const (
	// ProviderName is reported in provider metadata and on every event.
	ProviderName = "hyphen-toggle"

	// Timeouts

	// defaultInitTimeout bounds Init when no context is supplied. It covers
	// the default request timeout across the default retry count plus backoff.
	defaultInitTimeout = 45 * time.Second

	// defaultShutdownTimeout bounds Shutdown when no context is supplied.
	defaultShutdownTimeout = 30 * time.Second

	// telemetryTimeout bounds a single detached telemetry send, retries
	// included.
	telemetryTimeout = time.Minute

	// Event Handling

	// eventChannelBuffer is the buffer size for the provider's event channel.
	// Overflow events are dropped and logged as warnings.
	eventChannelBuffer = 128

	// signalBuffer is the refresher's subscription buffer. Stale events that
	// do not fit are dropped; one pending event is enough to trigger a refresh.
	signalBuffer = 8

	// Atomic States

	// shutdownStateActive indicates the provider has been shut down (atomic flag = 1).
	shutdownStateActive = 1

	// shutdownStateInactive indicates the provider is active (atomic flag = 0).
	shutdownStateInactive = 0

	// OpenFeature Context Keys

	// CustomAttributesKey holds a map of custom attributes in the
	// OpenFeature evaluation context.
	CustomAttributesKey = "CustomAttributes"

	// UserKey holds a map describing the user: Email, Name and CustomAttributes.
	UserKey = "User"

	// UserEmailKey, UserNameKey and UserCustomAttributesKey are the members
	// read from the UserKey map.
	UserEmailKey            = "Email"
	UserNameKey             = "Name"
	UserCustomAttributesKey = "CustomAttributes"

	// Diagnostic attributes added to every outgoing context.

	attrBundleIdentifier   = "bundle-identifier"
	attrBuildConfiguration = "buildConfiguration"
	attrAppVersion         = "appVersion"
	attrBuildVersion       = "buildVersion"

	// MetadataTypeKey is the flag metadata entry carrying the toggle's
	// declared type.
	MetadataTypeKey = "type"

	// BuildRelease and BuildDebug are the buildConfiguration values.
	BuildRelease = "RELEASE"
	BuildDebug   = "DEBUG"
)
