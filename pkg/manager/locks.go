package manager

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/workflowd/pkg/lock"
	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/cuemby/workflowd/pkg/types"
)

// ErrLockTokenMismatch is returned when the registry and the store disagree on
// the run-lock token of a process
var ErrLockTokenMismatch = errors.New("run lock token mismatch")

// runLockToken reconciles the lock token cached in the registry with the one
// stored as a process property and returns the agreed token, if any.
func (m *Manager) runLockToken(tx storage.Tx, pid int64) (string, error) {
	logger := log.WithProcessID(m.logger, pid)

	rec := m.registry.lookup(pid)
	cached := ""
	if rec != nil {
		cached = rec.LockToken
	}

	stored, found, err := tx.GetProperty(pid, PropertyNamespace, PropertyLockToken)
	if err != nil {
		return "", fmt.Errorf("read lock token of process %d: %w", pid, err)
	}
	stored = strings.TrimSpace(stored)
	found = found && stored != ""

	switch {
	case found && cached != "":
		if cached != stored {
			logger.Error().
				Str("registry_token", cached).
				Str("stored_token", stored).
				Msg("Lock token mismatch between registry and store")
			metrics.LockTokenMismatchesTotal.Inc()
			rec.LockToken = ""
			m.notify(6, fmt.Sprintf("OGo#%d [Process] Lock Token Mismatch", pid),
				fmt.Sprintf("Registry token %q does not match stored token %q for OGo#%d.\n"+
					"The registry token has been discarded.", cached, stored, pid))
			return "", fmt.Errorf("process %d: %w", pid, ErrLockTokenMismatch)
		}
		logger.Debug().Str("token", cached).Msg("Lock token confirmed")
		return cached, nil

	case found:
		logger.Info().Str("token", stored).Msg("Discovered lock token in store not known to registry")
		if rec != nil {
			rec.LockToken = stored
		}
		m.notify(2, fmt.Sprintf("OGo#%d [Process] Lock Token Discovered", pid),
			fmt.Sprintf("Discovered lock token %q for OGo#%d which was not recorded in the process table.", stored, pid))
		return stored, nil

	case cached != "":
		logger.Info().Str("token", cached).Msg("Recording registry lock token in store")
		if err := tx.SetProperty(pid, PropertyNamespace, PropertyLockToken, cached); err != nil {
			return cached, fmt.Errorf("record lock token of process %d: %w", pid, err)
		}
		return cached, nil

	default:
		logger.Info().Msg("No lock token for process")
		return "", nil
	}
}

// refreshRunLock extends the run-lock of a running process
func (m *Manager) refreshRunLock(tx storage.Tx, pid int64) {
	logger := log.WithProcessID(m.logger, pid)

	token, err := m.runLockToken(tx, pid)
	if err != nil {
		logger.Warn().Err(err).Msg("Cannot determine run lock token")
	}
	if token == "" {
		logger.Error().Msg("No lock token for process, run lock not refreshed")
		return
	}

	refreshed, err := m.locks.RefreshAdministratively(token, m.cfg.LockRefreshDuration)
	if err != nil || !refreshed {
		logger.Warn().Err(err).Str("token", token).Msg("Failed to refresh run lock")
		metrics.LockRefreshFailuresTotal.Inc()
		return
	}
	logger.Debug().Str("token", token).Dur("duration", m.cfg.LockRefreshDuration).Msg("Run lock refreshed")
}

// lockTarget returns the entity a process run-lock is placed on: the route
// group when the route has one, otherwise the route itself.
func (m *Manager) lockTarget(tx storage.Reader, route *types.Route) (types.LockTarget, error) {
	target := types.LockTarget{Kind: types.LockTargetRoute, ID: route.ID, Name: route.Name}
	if route.RouteGroupID == 0 {
		return target, nil
	}

	group, err := tx.GetRouteGroup(route.RouteGroupID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Warn().Int64("route_group_id", route.RouteGroupID).Msg("Route group missing, locking route")
			return target, nil
		}
		return target, err
	}
	return types.LockTarget{Kind: types.LockTargetRouteGroup, ID: group.ID, Name: group.Name}, nil
}

// acquireAndRegisterLock takes the run-lock for a queued process, records the
// token on the process and registers it as queued. It returns false when the
// lock is held by another context.
func (m *Manager) acquireAndRegisterLock(tx storage.Tx, process *types.Process, route *types.Route) (bool, error) {
	pid := process.ID
	logger := log.WithProcessID(m.logger, pid)

	contextID := m.cfg.AdminContextID
	if route.IsSingleton {
		contextID = pid
	}

	target, err := m.lockTarget(tx, route)
	if err != nil {
		return false, err
	}

	grant, ok, err := m.locks.Lock(lock.Request{
		Target:    target,
		Duration:  m.cfg.LockDuration,
		Data:      strconv.FormatInt(pid, 10),
		Run:       true,
		ContextID: contextID,
	})
	if err != nil {
		metrics.LockAcquisitionsTotal.WithLabelValues("error").Inc()
		return false, fmt.Errorf("lock %s for process %d: %w", target, pid, err)
	}
	if !ok {
		metrics.LockAcquisitionsTotal.WithLabelValues("contended").Inc()
		logger.Info().Str("target", target.String()).Msg("Manager unable to acquire run lock")
		return false, nil
	}
	metrics.LockAcquisitionsTotal.WithLabelValues("acquired").Inc()

	if err := tx.SetProperty(pid, PropertyNamespace, PropertyLockToken, grant.Token); err != nil {
		m.releaseQuietly(grant.Token)
		return false, fmt.Errorf("record lock token of process %d: %w", pid, err)
	}

	logger.Info().Str("target", target.String()).Str("token", grant.Token).Msg("Acquired run lock")
	m.processLog(pid, fmt.Sprintf("Acquired run lock %q on %s as OGo#%d; process will be started.",
		grant.Token, target, contextID))

	if err := m.register(tx, ByProcess(process), types.ProcessStateQueued, "", grant.Token); err != nil {
		m.releaseQuietly(grant.Token)
		if derr := tx.DeleteProperty(pid, PropertyNamespace, PropertyLockToken); derr != nil {
			logger.Error().Err(derr).Msg("Failed to delete lock token property")
		}
		return false, err
	}
	return true, nil
}

func (m *Manager) releaseQuietly(token string) {
	if _, err := m.locks.ReleaseAdministratively(token); err != nil {
		m.logger.Error().Err(err).Str("token", token).Msg("Failed to release run lock")
	}
}
