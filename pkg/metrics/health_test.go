package metrics

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetHealth(version string) {
	healthChecker = newHealthChecker()
	healthChecker.version = version
}

func TestGetHealth(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		wantStatus string
	}{
		{name: "no components", components: nil, wantStatus: "healthy"},
		{name: "all healthy", components: map[string]bool{ComponentStore: true, ComponentManager: true}, wantStatus: "healthy"},
		{name: "process log down", components: map[string]bool{ComponentStore: true, ComponentProcessLog: false}, wantStatus: "degraded"},
		{name: "store down", components: map[string]bool{ComponentStore: false, ComponentProcessLog: true}, wantStatus: "unhealthy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("1.0.0")
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "database is locked")
			}

			health := GetHealth()
			assert.Equal(t, tt.wantStatus, health.Status)
			assert.Equal(t, "1.0.0", health.Version)
			assert.Len(t, health.Components, len(tt.components))
		})
	}
}

func TestGetHealthComponentMessage(t *testing.T) {
	resetHealth("")
	RegisterComponent(ComponentLocks, false, "locks.db timeout")

	health := GetHealth()
	assert.Equal(t, "unhealthy: locks.db timeout", health.Components[ComponentLocks])
}

func TestGetReadiness(t *testing.T) {
	tests := []struct {
		name       string
		components map[string]bool
		wantStatus string
	}{
		{
			name:       "all critical components ready",
			components: map[string]bool{ComponentStore: true, ComponentLocks: true, ComponentManager: true},
			wantStatus: "ready",
		},
		{
			name:       "manager not registered",
			components: map[string]bool{ComponentStore: true, ComponentLocks: true},
			wantStatus: "not_ready",
		},
		{
			name:       "store unhealthy",
			components: map[string]bool{ComponentStore: false, ComponentLocks: true, ComponentManager: true},
			wantStatus: "not_ready",
		},
		{
			name:       "non-critical component does not block",
			components: map[string]bool{ComponentStore: true, ComponentLocks: true, ComponentManager: true, ComponentProcessLog: false},
			wantStatus: "ready",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetHealth("")
			for name, healthy := range tt.components {
				RegisterComponent(name, healthy, "")
			}

			readiness := GetReadiness()
			assert.Equal(t, tt.wantStatus, readiness.Status)
			if tt.wantStatus != "ready" {
				assert.NotEmpty(t, readiness.Message)
			}
		})
	}
}

func TestHealthHandlers(t *testing.T) {
	resetHealth("test")
	RegisterComponent(ComponentStore, true, "")
	RegisterComponent(ComponentLocks, true, "")

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	var health HealthStatus
	require.NoError(t, json.NewDecoder(w.Body).Decode(&health))
	assert.Equal(t, "test", health.Version)

	// manager missing
	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	UpdateComponent(ComponentManager, true, "online")
	w = httptest.NewRecorder()
	ReadyHandler()(w, httptest.NewRequest("GET", "/ready", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	UpdateComponent(ComponentStore, false, "closed")
	w = httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = httptest.NewRecorder()
	LivenessHandler()(w, httptest.NewRequest("GET", "/live", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	var live map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&live))
	assert.Equal(t, "alive", live["status"])
}

func TestMaintenanceDegradesHealth(t *testing.T) {
	resetHealth("")
	RegisterComponent(ComponentStore, true, "")
	RegisterComponent(ComponentLocks, true, "")
	RegisterComponent(ComponentManager, true, "")

	SetMaintenance(true)
	health := GetHealth()
	assert.Equal(t, StatusDegraded, health.Status)
	assert.Equal(t, "engine in maintenance mode", health.Message)
	assert.Equal(t, StatusReady, GetReadiness().Status)

	w := httptest.NewRecorder()
	HealthHandler()(w, httptest.NewRequest("GET", "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	SetMaintenance(false)
	assert.Equal(t, StatusHealthy, GetHealth().Status)
}
