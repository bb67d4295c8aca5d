// Package testutil provides the scripted campaign backend used by package
// tests. Every route of the real backend is served with an overridable
// handler, so individual tests can script failures, slow responses, or
// custom payloads without standing up the pipeline.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// MockBackend is an in-process campaign backend.
type MockBackend struct {
	Server *httptest.Server

	// Overridable route handlers. When nil, the scripted default answers.
	StartFunc    http.HandlerFunc
	SessionFunc  http.HandlerFunc
	ResultsFunc  http.HandlerFunc
	ProgressFunc http.HandlerFunc
	AgentFunc    http.HandlerFunc
	OutputFunc   http.HandlerFunc
	StreamFunc   http.HandlerFunc
	FeedbackFunc http.HandlerFunc
	RevisionFunc http.HandlerFunc
	DownloadFunc http.HandlerFunc
	HealthFunc   http.HandlerFunc
	PingFunc     http.HandlerFunc

	mu       sync.Mutex
	requests map[string]int

	results  map[string]map[string]any
	progress map[string]any
	output   []string
	frames   []StreamFrame
}

// StreamFrame is one SSE frame the mock stream endpoint emits.
type StreamFrame struct {
	// Raw overrides the JSON payload entirely when non-empty, which lets
	// tests emit malformed frames.
	Raw  string
	Type string
	Data map[string]any
}

// NewMockBackend starts a scripted backend. Close it with Close.
func NewMockBackend() *MockBackend {
	m := &MockBackend{
		requests: make(map[string]int),
		results:  make(map[string]map[string]any),
		progress: map[string]any{
			"stage":            "audience_analysis",
			"percentage":       0,
			"completed_stages": []string{},
			"status":           "running",
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/api/campaign/start", m.route("start", m.handleStart)).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions", m.route("sessions", m.handleSessions)).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{id}", m.route("session", m.handleSession)).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{id}/results", m.route("results", m.handleResults)).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{id}/progress", m.route("progress", m.handleProgress)).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{id}/agent/{name}", m.route("agent", m.handleAgent)).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{id}/output", m.route("output", m.handleOutput)).Methods(http.MethodGet)
	r.HandleFunc("/api/session/{id}/stream", m.route("stream", m.handleStream)).Methods(http.MethodGet)
	r.HandleFunc("/api/campaign/feedback", m.route("feedback", m.handleFeedback)).Methods(http.MethodPost)
	r.HandleFunc("/api/campaign/advanced-revision", m.route("revision", m.handleRevision)).Methods(http.MethodPost)
	r.HandleFunc("/api/download-s3-content", m.route("download", m.handleDownload)).Methods(http.MethodPost)
	r.HandleFunc("/health", m.route("health", m.handleOK)).Methods(http.MethodGet)
	r.HandleFunc("/test", m.route("test", m.handleOK)).Methods(http.MethodGet)

	m.Server = httptest.NewServer(handlers.LoggingHandler(io.Discard, r))
	return m
}

// URL returns the backend base URL.
func (m *MockBackend) URL() string {
	return m.Server.URL
}

// Close shuts the backend down.
func (m *MockBackend) Close() {
	m.Server.Close()
}

// RequestCount reports how many requests hit a named route.
func (m *MockBackend) RequestCount(route string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.requests[route]
}

// SetResults replaces the scripted stage results, keyed by agent name.
func (m *MockBackend) SetResults(results map[string]map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.results = results
}

// SetProgress replaces the scripted progress snapshot.
func (m *MockBackend) SetProgress(progress map[string]any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = progress
}

// AppendOutput appends pipeline log lines.
func (m *MockBackend) AppendOutput(lines ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = append(m.output, lines...)
}

// SetFrames replaces the frames the stream endpoint will emit before
// closing the connection.
func (m *MockBackend) SetFrames(frames ...StreamFrame) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frames = frames
}

func (m *MockBackend) route(name string, def http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.requests[name]++
		override := m.override(name)
		m.mu.Unlock()

		if override != nil {
			override(w, r)
			return
		}
		def(w, r)
	}
}

func (m *MockBackend) override(name string) http.HandlerFunc {
	switch name {
	case "start":
		return m.StartFunc
	case "session":
		return m.SessionFunc
	case "results":
		return m.ResultsFunc
	case "progress":
		return m.ProgressFunc
	case "agent":
		return m.AgentFunc
	case "output":
		return m.OutputFunc
	case "stream":
		return m.StreamFunc
	case "feedback":
		return m.FeedbackFunc
	case "revision":
		return m.RevisionFunc
	case "download":
		return m.DownloadFunc
	case "health":
		return m.HealthFunc
	case "test":
		return m.PingFunc
	default:
		return nil
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (m *MockBackend) handleStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"success": true,
		"data": map[string]any{
			"session_id": "session-test-1",
			"stage":      "initializing",
			"progress":   0,
		},
	})
}

func (m *MockBackend) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"success":  true,
		"sessions": []string{"session-test-1"},
		"count":    1,
	})
}

func (m *MockBackend) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"success": true,
		"data": map[string]any{
			"session_id": mux.Vars(r)["id"],
			"stage":      "agent_processing",
			"progress":   25,
		},
	})
}

func (m *MockBackend) handleResults(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	results := make(map[string]any, len(m.results))
	for agent, result := range m.results {
		results[agent] = result
	}
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"success":    true,
		"session_id": mux.Vars(r)["id"],
		"results":    results,
	})
}

func (m *MockBackend) handleProgress(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	progress := m.progress
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"success":    true,
		"session_id": mux.Vars(r)["id"],
		"progress":   progress,
	})
}

func (m *MockBackend) handleAgent(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	m.mu.Lock()
	result, ok := m.results[name]
	m.mu.Unlock()

	if !ok {
		http.Error(w, fmt.Sprintf("%s result not found", name), http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"success":    true,
		"session_id": mux.Vars(r)["id"],
		"agent":      name,
		"data":       result,
	})
}

func (m *MockBackend) handleOutput(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	output := append([]string(nil), m.output...)
	m.mu.Unlock()

	writeJSON(w, map[string]any{
		"success": true,
		"output":  output,
		"count":   len(output),
	})
}

func (m *MockBackend) handleStream(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	frames := append([]StreamFrame(nil), m.frames...)
	m.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	flusher, _ := w.(http.Flusher)
	for _, frame := range frames {
		if frame.Raw != "" {
			fmt.Fprintf(w, "data: %s\n\n", frame.Raw)
		} else {
			payload, _ := json.Marshal(map[string]any{
				"type": frame.Type,
				"data": frame.Data,
			})
			fmt.Fprintf(w, "data: %s\n\n", payload)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (m *MockBackend) handleFeedback(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"success": true})
}

func (m *MockBackend) handleRevision(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, map[string]any{
		"success": true,
		"message": "Content revision completed successfully",
		"revision_result": map[string]any{
			"status":   "completed",
			"asset_id": req["asset_id"],
		},
	})
}

func (m *MockBackend) handleDownload(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	_ = json.NewDecoder(r.Body).Decode(&req)

	writeJSON(w, map[string]any{
		"success":    true,
		"local_url":  "/public/media/asset.png",
		"local_path": "public/media/asset.png",
	})
}

func (m *MockBackend) handleOK(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"status": "healthy"})
}
