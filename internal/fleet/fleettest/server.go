// Package fleettest serves a fake Fleet and Elasticsearch API for tests.
package fleettest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
)

const (
	Username = "elastic"
	Password = "changeme"
)

// Policy is a stored agent policy.
type Policy struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Key is a stored enrollment key.
type Key struct {
	ID       string `json:"id"`
	APIKey   string `json:"api_key"`
	PolicyID string `json:"policy_id"`
	Active   bool   `json:"active"`
}

// Server is an in-memory Fleet. Creating a policy also creates an active
// enrollment key for it.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	policies []Policy
	keys     []Key
	// failures maps "METHOD /path" to how many more times it answers 503.
	failures map[string]int
	requests []string
	// LegacyKeys answers the enrollment key list under "list".
	LegacyKeys bool
	// Tagline is returned by GET /.
	Tagline string
}

// New starts a Server and closes it when the test ends.
func New(t testing.TB) *Server {
	s := &Server{failures: map[string]int{}, Tagline: "You Know, for Search"}
	r := chi.NewRouter()
	r.Use(s.record, basicAuth)
	r.Get("/", s.root)
	r.Route("/api/fleet", func(r chi.Router) {
		r.With(requireXSRF).Post("/agent_policies", s.createPolicy)
		r.Get("/agent_policies", s.listPolicies)
		r.Get("/enrollment_api_keys", s.listKeys)
	})
	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// FailNext makes the next n requests to "METHOD /path" answer 503.
func (s *Server) FailNext(method, path string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[method+" "+path] = n
}

// AddPolicy stores a policy without an enrollment key.
func (s *Server) AddPolicy(name string) Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Policy{ID: fmt.Sprintf("policy-%d", len(s.policies)+1), Name: name}
	s.policies = append(s.policies, p)
	return p
}

// AddKey stores an enrollment key.
func (s *Server) AddKey(k Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, k)
}

// Requests returns "METHOD /path" for every request received.
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

// Count returns how often "METHOD /path" was requested.
func (s *Server) Count(req string) int {
	n := 0
	for _, r := range s.Requests() {
		if r == req {
			n++
		}
	}
	return n
}

func (s *Server) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests = append(s.requests, key)
		fail := s.failures[key] > 0
		if fail {
			s.failures[key]--
		}
		s.mu.Unlock()
		if fail {
			http.Error(w, `{"error":"Service Unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func basicAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || u != Username || p != Password {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"statusCode": 401, "error": "Unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireXSRF(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("kbn-xsrf") == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"statusCode": 400, "message": "Request must contain a kbn-xsrf header."})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":         "elasticsearch",
		"cluster_name": "docker-cluster",
		"version":      map[string]any{"number": "8.13.4"},
		"tagline":      s.Tagline,
	})
}

func (s *Server) createPolicy(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string `json:"name"`
		Namespace string `json:"namespace"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"statusCode": 400, "message": "invalid body"})
		return
	}
	s.mu.Lock()
	for _, p := range s.policies {
		if p.Name == req.Name {
			s.mu.Unlock()
			writeJSON(w, http.StatusConflict, map[string]any{
				"statusCode": 409,
				"message":    fmt.Sprintf("Agent Policy '%s' already exists with name '%s'", p.ID, p.Name),
			})
			return
		}
	}
	p := Policy{ID: fmt.Sprintf("policy-%d", len(s.policies)+1), Name: req.Name}
	s.policies = append(s.policies, p)
	s.keys = append(s.keys, Key{ID: "key-" + p.ID, APIKey: "token-" + p.ID, PolicyID: p.ID, Active: true})
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"item": p})
}

func (s *Server) listPolicies(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	items := append([]Policy{}, s.policies...)
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "total": len(items), "page": 1})
}

func (s *Server) listKeys(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	keys := append([]Key{}, s.keys...)
	legacy := s.LegacyKeys
	s.mu.Unlock()
	field := "items"
	if legacy {
		field = "list"
	}
	writeJSON(w, http.StatusOK, map[string]any{field: keys, "total": len(keys), "page": 1})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
