// server.go runs an in-process Toggle service used when no public key is
// configured. Bundles come from testdata/bundles.json, keyed by targeting key.
package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"time"
)

//go:embed testdata/bundles.json
var bundlesJSON []byte

// fakeService answers /toggle/evaluate from the fixture and counts
// telemetry posts.
type fakeService struct {
	*httptest.Server

	bundles     map[string]json.RawMessage
	evaluations atomic.Int64
	telemetry   atomic.Int64
	delay       atomic.Int64
}

func newFakeService(logger *slog.Logger) (*fakeService, error) {
	s := &fakeService{}
	if err := json.Unmarshal(bundlesJSON, &s.bundles); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /toggle/evaluate", func(w http.ResponseWriter, r *http.Request) {
		s.evaluations.Add(1)
		if d := time.Duration(s.delay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}

		var body struct {
			TargetingKey string `json:"targetingKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		logger.Debug("fake service evaluate", "targeting_key", body.TargetingKey)

		bundle, ok := s.bundles[body.TargetingKey]
		if !ok {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(bundle)
	})
	mux.HandleFunc("POST /toggle/telemetry", func(w http.ResponseWriter, r *http.Request) {
		s.telemetry.Add(1)
		w.WriteHeader(http.StatusNoContent)
	})

	s.Server = httptest.NewServer(mux)
	return s, nil
}

// slow makes every evaluate wait d before answering. Zero restores normal
// behavior.
func (s *fakeService) slow(d time.Duration) {
	s.delay.Store(int64(d))
}
