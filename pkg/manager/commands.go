package manager

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/cuemby/workflowd/pkg/types"
)

// CommandKind identifies a manager command
type CommandKind int

const (
	CommandRecordStatus CommandKind = iota + 1
	CommandTickTock
	CommandPingParked
	CommandCheckQueue
	CommandDisable
	CommandEnable
	CommandQueue
	CommandPS
	CommandIsRunning
	CommandFailed
	CommandCompleted
	CommandParked
)

var commandNames = map[CommandKind]string{
	CommandRecordStatus: "record_status",
	CommandTickTock:     "tick_tock",
	CommandPingParked:   "ping_parked",
	CommandCheckQueue:   "checkqueue",
	CommandDisable:      "disable",
	CommandEnable:       "enable",
	CommandQueue:        "queue",
	CommandPS:           "ps",
	CommandIsRunning:    "is_running",
	CommandFailed:       "failed",
	CommandCompleted:    "completed",
	CommandParked:       "parked",
}

func (k CommandKind) String() string {
	if name, ok := commandNames[k]; ok {
		return name
	}
	return fmt.Sprintf("command(%d)", int(k))
}

// ParseCommandKind returns the kind with the given name
func ParseCommandKind(name string) (CommandKind, bool) {
	for kind, n := range commandNames {
		if n == name {
			return kind, true
		}
	}
	return 0, false
}

// Command is a request handled by the manager goroutine
type Command struct {
	Kind      CommandKind
	ProcessID int64
	// Running carries the executor's answer for CommandIsRunning
	Running bool
	// Source names the sender, for logging
	Source string
}

// Reply answers a Command. Status follows HTTP conventions.
type Reply struct {
	Status    int
	Text      string
	Processes []types.ProcessRecord
}

// ParseRunning interprets an executor liveness answer
func ParseRunning(answer string) bool {
	return answer == "YES"
}

type handlerFunc func(m *Manager, cmd Command) Reply

var handlers = map[CommandKind]handlerFunc{
	CommandRecordStatus: (*Manager).handleRecordStatus,
	CommandTickTock:     (*Manager).handleTickTock,
	CommandPingParked:   (*Manager).handlePingParked,
	CommandCheckQueue:   (*Manager).handleCheckQueue,
	CommandDisable:      (*Manager).handleDisable,
	CommandEnable:       (*Manager).handleEnable,
	CommandQueue:        (*Manager).handleQueue,
	CommandPS:           (*Manager).handlePS,
	CommandIsRunning:    (*Manager).handleIsRunning,
	CommandFailed:       (*Manager).handleFailed,
	CommandCompleted:    (*Manager).handleCompleted,
	CommandParked:       (*Manager).handleParked,
}

var replyNone = Reply{Status: http.StatusOK, Text: "OK"}

// dispatch runs the handler for cmd. A handler that panics or leaves its
// transaction open has that transaction rolled back.
func (m *Manager) dispatch(cmd Command) (reply Reply) {
	handler, ok := handlers[cmd.Kind]
	if !ok {
		m.logger.Warn().Int("kind", int(cmd.Kind)).Str("source", cmd.Source).Msg("Unknown command")
		return Reply{Status: http.StatusBadRequest, Text: "Unknown command"}
	}

	defer func() {
		if r := recover(); r != nil {
			m.logger.Error().
				Str("command", cmd.Kind.String()).
				Int64("process_id", cmd.ProcessID).
				Interface("panic", r).
				Msg("Command handler panicked")
			reply = Reply{Status: http.StatusInternalServerError, Text: fmt.Sprintf("Internal error: %v", r)}
		}
		if m.tx != nil {
			if reply.Status < http.StatusInternalServerError {
				m.logger.Warn().Str("command", cmd.Kind.String()).Msg("Handler left transaction open")
			}
			m.rollback()
		}
		metrics.CommandsTotal.WithLabelValues(cmd.Kind.String(), fmt.Sprintf("%d", reply.Status)).Inc()
	}()

	m.logger.Debug().
		Str("command", cmd.Kind.String()).
		Int64("process_id", cmd.ProcessID).
		Str("source", cmd.Source).
		Msg("Handling command")
	return handler(m, cmd)
}

// begin opens the transaction for the current command
func (m *Manager) begin() (storage.Tx, error) {
	tx, err := m.store.Begin()
	if err != nil {
		m.logger.Error().Err(err).Msg("Failed to begin transaction")
		return nil, err
	}
	m.tx = tx
	return tx, nil
}

func (m *Manager) commit() {
	if m.tx == nil {
		return
	}
	if err := m.tx.Commit(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to commit transaction")
	}
	m.tx = nil
}

func (m *Manager) rollback() {
	if m.tx == nil {
		return
	}
	if err := m.tx.Rollback(); err != nil {
		m.logger.Error().Err(err).Msg("Failed to roll back transaction")
	}
	m.tx = nil
}

func storeUnavailable(err error) Reply {
	return Reply{Status: http.StatusServiceUnavailable, Text: err.Error()}
}

// runStartQueued runs a start cycle in its own transaction
func (m *Manager) runStartQueued() bool {
	if !m.enabled {
		return false
	}
	tx, err := m.begin()
	if err != nil {
		return false
	}
	if m.startQueuedProcesses(tx) {
		m.commit()
		return true
	}
	m.rollback()
	return false
}

func (m *Manager) handleRecordStatus(Command) Reply {
	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	m.publishEngineStatus(tx)
	m.commit()
	return replyNone
}

func (m *Manager) handleTickTock(Command) Reply {
	if !m.enabled {
		m.logger.Debug().Msg("Manager disabled, skipping tick")
		return replyNone
	}

	if tx, err := m.begin(); err == nil {
		if err := m.scanRunningProcesses(tx); err != nil {
			m.logger.Error().Err(err).Msg("Scan of running processes failed")
			metrics.ReconciliationErrorsTotal.WithLabelValues(stepScanRunning).Inc()
			m.rollback()
		} else {
			m.commit()
		}
	}

	m.runStartQueued()
	return replyNone
}

func (m *Manager) handlePingParked(Command) Reply {
	if !m.enabled {
		return replyNone
	}

	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	requeued, err := m.pingParkedProcesses(tx)
	if err != nil {
		m.logger.Error().Err(err).Msg("Ping of parked processes failed")
		metrics.ReconciliationErrorsTotal.WithLabelValues(stepPingParked).Inc()
		m.rollback()
		return replyNone
	}
	m.commit()

	if requeued > 0 {
		m.logger.Info().Int("count", requeued).Msg("Parked processes requeued")
		m.runStartQueued()
	}
	return replyNone
}

func (m *Manager) handleCheckQueue(Command) Reply {
	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	if m.startQueuedProcesses(tx) {
		m.commit()
		return Reply{Status: http.StatusCreated, Text: "OK"}
	}
	m.rollback()
	return Reply{Status: http.StatusBadRequest, Text: "NO"}
}

func (m *Manager) handleDisable(cmd Command) Reply {
	m.logger.Warn().Str("source", cmd.Source).Msg("Manager entering maintenance mode")
	m.enabled = false

	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	m.publishEngineStatus(tx)
	m.commit()
	return replyNone
}

func (m *Manager) handleEnable(cmd Command) Reply {
	m.logger.Info().Str("source", cmd.Source).Msg("Manager leaving maintenance mode")
	m.enabled = true

	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	m.publishEngineStatus(tx)
	m.commit()
	return replyNone
}

func (m *Manager) handleQueue(cmd Command) Reply {
	pid := cmd.ProcessID
	if !m.enabled {
		return Reply{Status: http.StatusBadRequest, Text: "Engine in maintenance mode"}
	}
	m.processLog(pid, "Request to place in queued state.")

	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}

	process, err := tx.GetProcess(pid)
	if err != nil {
		m.rollback()
		if errors.Is(err, storage.ErrNotFound) {
			return Reply{Status: http.StatusNotFound, Text: "No such process"}
		}
		return storeUnavailable(err)
	}

	switch {
	case process.State.Queueable():
		if err := tx.SetProcessState(pid, types.ProcessStateQueued); err != nil {
			m.rollback()
			return storeUnavailable(err)
		}
		m.publishEngineStatus(tx)
		m.processLog(pid, fmt.Sprintf("Manager changed process state to %q from state %q",
			types.ProcessStateQueued, process.State))
		m.commit()
		m.runStartQueued()
		return Reply{Status: http.StatusCreated, Text: "OK"}

	case process.State == types.ProcessStateQueued:
		m.rollback()
		return Reply{Status: http.StatusCreated, Text: "OK, No action."}

	default:
		m.rollback()
		return Reply{
			Status: http.StatusForbidden,
			Text:   fmt.Sprintf("OGo#%d [Process] cannot be queued from state %q", pid, process.State),
		}
	}
}

func (m *Manager) handlePS(Command) Reply {
	return Reply{Status: http.StatusOK, Text: "OK", Processes: m.registry.Values()}
}

func (m *Manager) handleIsRunning(cmd Command) Reply {
	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	if err := m.recordPing(tx, cmd.ProcessID, cmd.Running); err != nil {
		m.logger.Error().Err(err).Int64("process_id", cmd.ProcessID).Msg("Failed to record liveness")
		metrics.ReconciliationErrorsTotal.WithLabelValues(stepDetectZombie).Inc()
		m.rollback()
		return replyNone
	}
	m.commit()
	return replyNone
}

func (m *Manager) handleFailed(cmd Command) Reply {
	pid := cmd.ProcessID
	m.processLog(pid, `Process reported as state "F" (failed)`)

	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}

	process, err := tx.GetProcess(pid)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			m.deregister(tx, ByID(pid))
		}
		m.rollback()
		return replyNone
	}

	if process.State == types.ProcessStateRunning {
		m.logger.Warn().Int64("process_id", pid).Msg("Failed process still marked running, worker presumed defunct")
		m.notify(4, "Defunct OIE Worker Detected",
			fmt.Sprintf("OGo#%d [Process] reported failed while in state %q.\n"+
				"The worker is presumed defunct and the process has been marked as failed.", pid, process.State))
		if err := tx.SetProcessState(pid, types.ProcessStateFailed); err != nil {
			m.rollback()
			return storeUnavailable(err)
		}
	}

	m.deregister(tx, ByProcess(process))
	m.publishEngineStatus(tx)
	m.commit()
	m.processLog(pid, "Manager set state of process to failed.")
	return replyNone
}

func (m *Manager) handleCompleted(cmd Command) Reply {
	pid := cmd.ProcessID
	m.processLog(pid, "Process reported as completed")

	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	if err := m.hierarchyCheck(tx, pid); err != nil {
		m.logger.Error().Err(err).Int64("process_id", pid).Msg("Hierarchy check failed")
	}
	m.deregister(tx, ByID(pid))
	m.commit()

	m.runStartQueued()
	return replyNone
}

func (m *Manager) handleParked(cmd Command) Reply {
	pid := cmd.ProcessID
	m.processLog(pid, "Process reported as parked")

	tx, err := m.begin()
	if err != nil {
		return storeUnavailable(err)
	}
	m.deregister(tx, ByID(pid))
	m.commit()

	m.runStartQueued()
	return replyNone
}
