package metrics

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Health states reported by /health and /ready
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
	StatusReady     = "ready"
	StatusNotReady  = "not_ready"
)

// Component names reported by workflowd
const (
	ComponentStore      = "store"
	ComponentLocks      = "locks"
	ComponentManager    = "manager"
	ComponentProcessLog = "processlog"
)

// criticalComponents must be registered and healthy before the daemon is
// ready; any other unhealthy component only degrades health
var criticalComponents = []string{ComponentStore, ComponentLocks, ComponentManager}

// HealthStatus is the body of the health and readiness endpoints
type HealthStatus struct {
	Status     string            `json:"status"`
	Timestamp  time.Time         `json:"timestamp"`
	Components map[string]string `json:"components,omitempty"`
	Message    string            `json:"message,omitempty"`
	Version    string            `json:"version,omitempty"`
	Uptime     string            `json:"uptime,omitempty"`
}

// ComponentHealth tracks the health of a single component
type ComponentHealth struct {
	Name    string
	Healthy bool
	Message string
	Updated time.Time
}

// HealthChecker holds component health and the engine operating mode
type HealthChecker struct {
	mu          sync.RWMutex
	components  map[string]ComponentHealth
	maintenance bool
	startTime   time.Time
	version     string
}

func newHealthChecker() *HealthChecker {
	return &HealthChecker{
		components: make(map[string]ComponentHealth),
		startTime:  time.Now(),
	}
}

var healthChecker = newHealthChecker()

func isCritical(name string) bool {
	for _, c := range criticalComponents {
		if c == name {
			return true
		}
	}
	return false
}

// SetVersion sets the version string for health responses
func SetVersion(version string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.version = version
}

// SetMaintenance records whether the engine is in maintenance mode. A
// disabled engine reports degraded health but stays ready.
func SetMaintenance(on bool) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()
	healthChecker.maintenance = on
}

// RegisterComponent records the health of a component
func RegisterComponent(name string, healthy bool, message string) {
	healthChecker.mu.Lock()
	defer healthChecker.mu.Unlock()

	healthChecker.components[name] = ComponentHealth{
		Name:    name,
		Healthy: healthy,
		Message: message,
		Updated: time.Now(),
	}
}

// UpdateComponent is RegisterComponent for an already registered component
func UpdateComponent(name string, healthy bool, message string) {
	RegisterComponent(name, healthy, message)
}

// GetHealth returns overall health. An unhealthy critical component makes
// the daemon unhealthy; other failures and maintenance mode degrade it.
func GetHealth() HealthStatus {
	h := healthChecker
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:     StatusHealthy,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(h.components)),
		Version:    h.version,
		Uptime:     time.Since(h.startTime).Round(time.Second).String(),
	}
	if h.maintenance {
		status.Status = StatusDegraded
		status.Message = "engine in maintenance mode"
	}

	for name, comp := range h.components {
		if comp.Healthy {
			status.Components[name] = StatusHealthy
			continue
		}
		status.Components[name] = StatusUnhealthy + ": " + comp.Message
		if isCritical(name) {
			status.Status = StatusUnhealthy
			status.Message = name + " unhealthy"
		} else if status.Status == StatusHealthy {
			status.Status = StatusDegraded
			status.Message = name + " unhealthy"
		}
	}
	return status
}

// GetReadiness reports whether every critical component is registered and healthy
func GetReadiness() HealthStatus {
	h := healthChecker
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := HealthStatus{
		Status:     StatusReady,
		Timestamp:  time.Now(),
		Components: make(map[string]string, len(criticalComponents)),
	}
	for _, name := range criticalComponents {
		comp, ok := h.components[name]
		switch {
		case !ok:
			status.Status = StatusNotReady
			status.Message = "waiting for " + name + " initialization"
			status.Components[name] = "not registered"
		case !comp.Healthy:
			status.Status = StatusNotReady
			status.Message = "waiting for " + name
			status.Components[name] = "not ready: " + comp.Message
		default:
			status.Components[name] = StatusReady
		}
	}
	return status
}

func writeHealth(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

// HealthHandler serves /health: 200 unless unhealthy
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		health := GetHealth()
		code := http.StatusOK
		if health.Status == StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, health)
	}
}

// ReadyHandler serves /ready: 200 once all critical components are healthy
func ReadyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		readiness := GetReadiness()
		code := http.StatusOK
		if readiness.Status != StatusReady {
			code = http.StatusServiceUnavailable
		}
		writeHealth(w, code, readiness)
	}
}

// LivenessHandler serves /live, which answers 200 while the process runs
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeHealth(w, http.StatusOK, map[string]string{
			"status": "alive",
			"uptime": time.Since(healthChecker.startTime).Round(time.Second).String(),
		})
	}
}
