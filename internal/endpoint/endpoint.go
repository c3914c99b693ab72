// Package endpoint derives the Toggle service URLs for the evaluate and
// telemetry calls, either from custom base URLs or from the organization id
// embedded in a public key.
package endpoint

import (
	"encoding/base64"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

const (
	EvaluatePath  = "toggle/evaluate"
	TelemetryPath = "toggle/telemetry"

	// ServiceHost is the generic host, also the parent domain of the
	// organization scoped hosts.
	ServiceHost = "toggle.hyphen.cloud"

	publicKeyPrefix = "public_"
)

var (
	knownPaths   = []string{EvaluatePath, TelemetryPath}
	orgIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// PublicKey is the client key sent as x-api-key.
type PublicKey string

// OrgID decodes the organization id from the key. The "public_" prefix is
// optional. It reports false when the key is not base64, has no ':'
// separated parts, or the id contains characters outside [a-zA-Z0-9_-].
func (k PublicKey) OrgID() (string, bool) {
	raw := strings.ReplaceAll(string(k), publicKeyPrefix, "")
	if raw == "" {
		return "", false
	}

	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return "", false
	}

	parts := strings.FieldsFunc(string(decoded), func(r rune) bool { return r == ':' })
	if len(parts) < 2 {
		return "", false
	}

	if !orgIDPattern.MatchString(parts[0]) {
		return "", false
	}
	return parts[0], true
}

// Resolver holds the candidate URLs for both endpoints in priority order.
type Resolver struct {
	evaluate  []string
	telemetry []string
}

// NewResolver builds the URL lists. With custom URLs each entry yields one
// candidate; otherwise the organization host (when the key carries a valid
// id) precedes the generic host. Unparseable custom URLs are skipped.
func NewResolver(key PublicKey, customURLs []string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}

	if len(customURLs) == 0 {
		return &Resolver{
			evaluate:  generated(key, EvaluatePath),
			telemetry: generated(key, TelemetryPath),
		}
	}

	r := &Resolver{}
	for _, raw := range customURLs {
		base, err := trimKnownPath(raw, logger)
		if err != nil {
			logger.Warn("skipping invalid custom URL", "url", raw, "error", err)
			continue
		}
		r.evaluate = append(r.evaluate, base.JoinPath(EvaluatePath).String())
		r.telemetry = append(r.telemetry, base.JoinPath(TelemetryPath).String())
	}
	return r
}

// EvaluateURLs returns a copy of the evaluate candidates.
func (r *Resolver) EvaluateURLs() []string { return append([]string(nil), r.evaluate...) }

// TelemetryURLs returns a copy of the telemetry candidates.
func (r *Resolver) TelemetryURLs() []string { return append([]string(nil), r.telemetry...) }

func generated(key PublicKey, path string) []string {
	urls := make([]string, 0, 2)
	if org, ok := key.OrgID(); ok {
		urls = append(urls, fmt.Sprintf("https://%s.%s/%s", org, ServiceHost, path))
	}
	return append(urls, fmt.Sprintf("https://%s/%s", ServiceHost, path))
}

func trimKnownPath(raw string, logger *slog.Logger) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("missing scheme or host")
	}

	p := strings.TrimSuffix(u.Path, "/")
	for _, known := range knownPaths {
		if strings.HasSuffix(p, "/"+known) {
			logger.Warn("custom URL includes a known path, trimming it", "url", raw, "path", known)
			p = strings.TrimSuffix(p, "/"+known)
			break
		}
	}
	u.Path = p
	u.RawPath = ""
	return u, nil
}
