package manager

import (
	"encoding/json"
	"sort"

	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/cuemby/workflowd/pkg/types"
)

const engineStatusVersion = 1

// engineStatus builds the current engine status from the process table and
// the active exclusive route group locks
func (m *Manager) engineStatus(tx storage.Reader) types.EngineStatus {
	mode := types.OperatingModeOnline
	if !m.enabled {
		mode = types.OperatingModeMaintenance
	}

	status := types.EngineStatus{
		Version:           engineStatusVersion,
		OperatingMode:     mode,
		ProcessTableSize:  m.registry.Len(),
		RunningProcesses:  m.registry.Count(types.ProcessStateRunning),
		QueuedProcesses:   m.registry.Count(types.ProcessStateQueued),
		LockedRouteGroups: []types.LockedRouteGroup{},
	}

	grants, err := m.locks.ActiveExclusive()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Failed to list active locks")
		return status
	}

	seen := make(map[int64]bool)
	for _, grant := range grants {
		if grant.Target.Kind != types.LockTargetRouteGroup || seen[grant.Target.ID] {
			continue
		}
		seen[grant.Target.ID] = true
		name := grant.Target.Name
		if group, err := tx.GetRouteGroup(grant.Target.ID); err == nil {
			name = group.Name
		}
		status.LockedRouteGroups = append(status.LockedRouteGroups, types.LockedRouteGroup{ID: grant.Target.ID, Name: name})
	}
	sort.Slice(status.LockedRouteGroups, func(i, j int) bool {
		return status.LockedRouteGroups[i].ID < status.LockedRouteGroups[j].ID
	})
	return status
}

// publishEngineStatus stores the engine status as a server property and
// hands it to the status publisher
func (m *Manager) publishEngineStatus(tx storage.Tx) {
	status := m.engineStatus(tx)

	data, err := json.Marshal(status)
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to encode engine status")
		return
	}
	if err := tx.SetServerProperty(PropertyNamespace, PropertyEngineStatus, string(data)); err != nil {
		m.logger.Error().Err(err).Msg("Failed to store engine status")
	}

	m.updateTableMetrics()
	if m.enabled {
		metrics.ManagerEnabled.Set(1)
	} else {
		metrics.ManagerEnabled.Set(0)
	}
	metrics.SetMaintenance(!m.enabled)

	if m.status != nil {
		m.status.EngineStatus(status)
	}
	m.logger.Debug().
		Str("mode", string(status.OperatingMode)).
		Int("table_size", status.ProcessTableSize).
		Int("running", status.RunningProcesses).
		Int("queued", status.QueuedProcesses).
		Msg("Engine status published")
}

// ReadEngineStatus decodes the engine status last stored by a manager
func ReadEngineStatus(r storage.Reader) (types.EngineStatus, bool, error) {
	var status types.EngineStatus
	raw, found, err := r.GetServerProperty(PropertyNamespace, PropertyEngineStatus)
	if err != nil || !found {
		return status, false, err
	}
	if err := json.Unmarshal([]byte(raw), &status); err != nil {
		return status, false, err
	}
	return status, true, nil
}
