package manager

import (
	"errors"
	"fmt"
	"strings"

	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/cuemby/workflowd/pkg/types"
)

const (
	stepScanRunning  = "scan_running"
	stepStartQueued  = "start_queued"
	stepPingParked   = "ping_parked"
	stepDetectZombie = "detect_zombie"
)

// scanRunningProcesses registers running processes the table does not know
// about, promotes started processes the store reports as running and asks
// the executor whether stale running or starting processes are still alive.
func (m *Manager) scanRunningProcesses(tx storage.Tx) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, stepScanRunning)

	ids, err := tx.ListProcessIDsByState(types.ProcessStateRunning)
	if err != nil {
		return fmt.Errorf("list running processes: %w", err)
	}
	for _, pid := range ids {
		rec := m.registry.lookup(pid)
		switch {
		case rec == nil:
			m.logger.Debug().Int64("process_id", pid).Msg("Discovered running process not in table")
		case rec.Status == types.ProcessStateRunning:
			continue
		default:
			m.logger.Debug().Int64("process_id", pid).Str("status", string(rec.Status)).Msg("Store reports process running")
		}
		if err := m.register(tx, ByID(pid), types.ProcessStateRunning, "", ""); err != nil {
			m.logger.Warn().Err(err).Int64("process_id", pid).Msg("Failed to register running process")
		}
	}

	now := m.now()
	for _, rec := range m.registry.sorted() {
		if rec.Status != types.ProcessStateRunning && rec.Status != types.ProcessStateStarting {
			continue
		}
		if now.Sub(rec.LastPingAt) <= m.cfg.PingInterval {
			continue
		}
		if err := m.executor.QueryRunning(rec.ProcessID); err != nil {
			m.logger.Warn().Err(err).Int64("process_id", rec.ProcessID).Msg("Failed to query executor")
			continue
		}
		rec.LastPingAt = now
	}
	return nil
}

// startQueuedProcesses acquires run-locks for queued processes and asks the
// executor to start every process that got one. It returns false when the
// manager is disabled or the cycle failed.
func (m *Manager) startQueuedProcesses(tx storage.Tx) bool {
	if !m.enabled {
		m.logger.Info().Msg("Manager disabled, not starting queued processes")
		return false
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, stepStartQueued)

	if err := m.startQueued(tx); err != nil {
		m.logger.Error().Err(err).Msg("Exception starting queued processes")
		metrics.ReconciliationErrorsTotal.WithLabelValues(stepStartQueued).Inc()
		m.notify(9, "Exception Starting Queued Processes",
			fmt.Sprintf("An exception occurred while starting queued processes:\n%v", err))
		return false
	}
	return true
}

func (m *Manager) startQueued(tx storage.Tx) error {
	queued, err := tx.ListQueued(m.cfg.QueueBatchSize)
	if err != nil {
		return fmt.Errorf("list queued processes: %w", err)
	}
	if len(queued) > 0 {
		m.logger.Debug().Int("count", len(queued)).Msg("Examining queued processes")
	}

	for _, q := range queued {
		if rec := m.registry.lookup(q.Process.ID); rec != nil &&
			(rec.Status == types.ProcessStateStarting || rec.Status == types.ProcessStateRunning) {
			continue
		}
		acquired, err := m.acquireAndRegisterLock(tx, q.Process, q.Route)
		if err != nil {
			return err
		}
		if !acquired {
			continue
		}
		if err := m.requestProcessStart(tx, q.Process.ID, q.Process.OwnerID); err != nil {
			return err
		}
	}

	m.publishEngineStatus(tx)
	return nil
}

// requestProcessStart marks the process as starting, makes the run-lock token
// durable and then asks the executor to start the process.
func (m *Manager) requestProcessStart(tx storage.Tx, pid, contextID int64) error {
	if err := m.register(tx, ByID(pid), types.ProcessStateStarting, "", ""); err != nil {
		return err
	}
	if err := tx.Flush(); err != nil {
		return fmt.Errorf("flush before starting process %d: %w", pid, err)
	}
	if err := m.executor.StartProcess(pid, contextID); err != nil {
		return fmt.Errorf("request start of process %d: %w", pid, err)
	}
	metrics.ProcessesStarted.Inc()
	m.logger.Info().Int64("process_id", pid).Int64("context_id", contextID).Msg("Requested process start")
	return nil
}

// pingParkedProcesses requeues parked processes that are not waiting on a
// label, or whose awaited message has arrived. It returns the number requeued.
func (m *Manager) pingParkedProcesses(tx storage.Tx) (int, error) {
	if !m.enabled {
		return 0, nil
	}

	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, stepPingParked)

	parked, err := tx.ListProcessesByState(types.ProcessStateParked)
	if err != nil {
		return 0, fmt.Errorf("list parked processes: %w", err)
	}
	if len(parked) == 0 {
		m.logger.Debug().Msg("No parked processes")
		return 0, nil
	}

	requeued := 0
	for _, process := range parked {
		label, found, err := tx.GetProperty(process.ID, PropertyNamespace, PropertyWaitingOnLabel)
		if err != nil {
			return requeued, err
		}
		label = strings.TrimSpace(label)

		ping := !found || label == ""
		if !ping {
			_, err := tx.FindMessage(process.ID, label)
			switch {
			case err == nil:
				ping = true
			case !errors.Is(err, storage.ErrNotFound):
				return requeued, err
			}
		}
		if !ping {
			continue
		}

		if err := m.requeue(tx, process); err != nil {
			return requeued, err
		}
		requeued++
	}
	return requeued, nil
}

// requeue moves a parked process back to the queue
func (m *Manager) requeue(tx storage.Tx, process *types.Process) error {
	if err := tx.SetProcessState(process.ID, types.ProcessStateQueued); err != nil {
		return fmt.Errorf("requeue process %d: %w", process.ID, err)
	}
	m.logger.Debug().Int64("process_id", process.ID).Str("from", string(process.State)).Msg("Process requeued")
	m.processLog(process.ID, fmt.Sprintf("Manager changed process state to %q from state %q",
		types.ProcessStateQueued, process.State))
	return nil
}

// detectZombie investigates a process the executor repeatedly denied running.
// A process still marked running in the store is declared a zombie.
func (m *Manager) detectZombie(tx storage.Tx, pid int64) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ReconciliationDuration, stepDetectZombie)

	logger := log.WithProcessID(m.logger, pid)

	process, err := tx.GetProcess(pid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			logger.Debug().Msg("Suspected zombie no longer exists")
			m.deregister(tx, ByID(pid))
			return nil
		}
		return err
	}

	switch process.State {
	case types.ProcessStateCompleted, types.ProcessStateFailed:
		logger.Debug().Str("state", string(process.State)).Msg("Suspected zombie has finished")
		m.deregister(tx, ByProcess(process))
		return nil
	case types.ProcessStateRunning:
	case types.ProcessStateQueued:
		// start request never picked up; forget it so the next cycle retries
		logger.Info().Msg("Start of process was never acknowledged")
		m.deregister(tx, ByProcess(process))
		return nil
	default:
		logger.Debug().Str("state", string(process.State)).Msg("Suspected zombie is not running")
		return nil
	}

	logger.Warn().Msg("Process determined to be in zombie state")

	message := m.zombieReport(tx, process)
	m.notify(3, fmt.Sprintf("OGo#%d [Process] Flagged As Zombie", pid), message)
	m.processLog(pid, message)

	if err := tx.SetProcessState(pid, types.ProcessStateZombie); err != nil {
		return fmt.Errorf("flag process %d as zombie: %w", pid, err)
	}
	metrics.ZombiesTotal.Inc()

	m.deregister(tx, ByProcess(process))
	m.publishEngineStatus(tx)
	return nil
}

func (m *Manager) zombieReport(tx storage.Reader, process *types.Process) string {
	routeName := "n/a"
	if route, err := tx.GetRoute(process.RouteID); err == nil {
		routeName = route.Name
	}
	ownerLogin := "n/a"
	if contact, err := tx.GetContact(process.OwnerID); err == nil {
		ownerLogin = contact.Login
	}

	var b strings.Builder
	fmt.Fprintf(&b, "OGo#%d [Process] determined to be in zombie state.\n", process.ID)
	fmt.Fprintf(&b, "  Route: OGo#%d %q\n", process.RouteID, routeName)
	fmt.Fprintf(&b, "  Owner: OGo#%d %q\n", process.OwnerID, ownerLogin)
	fmt.Fprintf(&b, "  Version: %d\n", process.Version)
	b.WriteString("  Messages:\n")

	messages, err := tx.ListMessages(process.ID)
	if err != nil {
		m.logger.Warn().Err(err).Int64("process_id", process.ID).Msg("Failed to list messages for zombie report")
	}
	for _, msg := range messages {
		fmt.Fprintf(&b, "    UUID#%s\n      Version:%d Size:%d Label:%s\n", msg.UUID, msg.Version, msg.Size, msg.Label)
	}
	return b.String()
}

// hierarchyCheck requeues the parked parent of a finished child process. A
// queued parent is picked up by the start cycle that follows.
func (m *Manager) hierarchyCheck(tx storage.Tx, pid int64) error {
	if !m.enabled {
		return nil
	}

	process, err := tx.GetProcess(pid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	if process.ParentID == 0 {
		return nil
	}

	parent, err := tx.GetProcess(process.ParentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.logger.Info().Int64("process_id", pid).Int64("parent_id", process.ParentID).Msg("Parent process not found")
			return nil
		}
		return err
	}

	switch parent.State {
	case types.ProcessStateParked:
		m.logger.Debug().Int64("process_id", parent.ID).Int64("child_id", pid).Msg("Requesting start of parent due to completion of child")
		return m.requeue(tx, parent)
	case types.ProcessStateQueued:
		m.logger.Debug().Int64("process_id", parent.ID).Int64("child_id", pid).Msg("Parent already queued")
	}
	return nil
}

// recordPing notes a liveness response from the executor
func (m *Manager) recordPing(tx storage.Tx, pid int64, running bool) error {
	if running {
		m.recordPong(tx, pid)
		return nil
	}

	rec := m.registry.lookup(pid)
	misses := 1
	if rec != nil {
		rec.MissCount++
		misses = rec.MissCount
	}
	m.logger.Debug().Int64("process_id", pid).Int("misses", misses).Msg("Executor reports process not running")

	if misses > m.cfg.ZombieMissThreshold {
		return m.detectZombie(tx, pid)
	}
	return nil
}

// recordPong marks the process running. The first pong after a start moves
// the record out of starting, which refreshes its run-lock.
func (m *Manager) recordPong(tx storage.Tx, pid int64) {
	rec := m.registry.lookup(pid)
	if rec == nil || rec.Status != types.ProcessStateRunning {
		if err := m.register(tx, ByID(pid), types.ProcessStateRunning, "", ""); err != nil {
			m.logger.Warn().Err(err).Int64("process_id", pid).Msg("Failed to register running process")
			return
		}
		rec = m.registry.lookup(pid)
	}
	rec.LastPongAt = m.now()
	rec.MissCount = 0
}
