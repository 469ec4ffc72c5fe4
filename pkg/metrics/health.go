package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Component names reported by nodes
const (
	ComponentListener = "listener"
	ComponentPeers    = "peers"
)

var (
	versionMu sync.RWMutex
	version   string
)

// SetVersion sets the version string reported by every Health
func SetVersion(v string) {
	versionMu.Lock()
	defer versionMu.Unlock()
	version = v
}

func currentVersion() string {
	versionMu.RLock()
	defer versionMu.RUnlock()
	return version
}

// HealthStatus is the JSON body of the health and readiness endpoints
type HealthStatus struct {
	Status     string            `json:"status"` // "healthy", "unhealthy", "ready", "not_ready"
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

type componentHealth struct {
	healthy bool
	message string
}

// Health tracks the components of one node. Each node server owns its own,
// so nodes sharing a process report independently.
type Health struct {
	mu         sync.RWMutex
	components map[string]componentHealth
	critical   []string
	startTime  time.Time
}

// NewHealth creates a registry that reports ready once every critical
// component is registered and healthy
func NewHealth(critical ...string) *Health {
	return &Health{
		components: make(map[string]componentHealth),
		critical:   append([]string(nil), critical...),
		startTime:  time.Now(),
	}
}

// Set records the state of a component, registering it on first use
func (h *Health) Set(name string, healthy bool, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.components[name] = componentHealth{healthy: healthy, message: message}
}

// Status is unhealthy when any registered component is
func (h *Health) Status() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := h.status("healthy")
	for name, comp := range h.components {
		if comp.healthy {
			status.Components[name] = "healthy"
			continue
		}
		status.Status = "unhealthy"
		status.Components[name] = "unhealthy: " + comp.message
	}
	return status
}

// Readiness only considers the critical components
func (h *Health) Readiness() HealthStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := h.status("ready")
	for _, name := range h.critical {
		comp, ok := h.components[name]
		switch {
		case !ok:
			status.Status = "not_ready"
			status.Message = "waiting for " + name + " initialization"
			status.Components[name] = "not registered"
		case !comp.healthy:
			status.Status = "not_ready"
			status.Message = "waiting for " + name
			status.Components[name] = "not ready: " + comp.message
		default:
			status.Components[name] = "ready"
		}
	}
	return status
}

func (h *Health) status(initial string) HealthStatus {
	return HealthStatus{
		Status:     initial,
		Timestamp:  time.Now(),
		Components: make(map[string]string),
		Version:    currentVersion(),
		Uptime:     time.Since(h.startTime).String(),
	}
}

// HealthHandler serves Status, with 503 when unhealthy
func (h *Health) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Status()
		writeStatus(w, status, status.Status == "healthy")
	}
}

// ReadyHandler serves Readiness, with 503 until ready
func (h *Health) ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Readiness()
		writeStatus(w, status, status.Status == "ready")
	}
}

// LivenessHandler always answers 200 while the process is up
func (h *Health) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, map[string]string{
			"status": "alive",
			"uptime": time.Since(h.startTime).String(),
		}, true)
	}
}

func writeStatus(w http.ResponseWriter, body any, ok bool) {
	w.Header().Set("Content-Type", "application/json")
	if ok {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}
