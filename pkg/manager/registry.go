package manager

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/cuemby/workflowd/pkg/types"
)

var (
	// ErrTerminalState is returned when registering a cancelled, failed or completed process
	ErrTerminalState = errors.New("process is in a terminal state")
	// ErrNoRoute is returned when registering a process that has no route
	ErrNoRoute = errors.New("process has no route")
)

// ProcessRef names a process either by id or by an already loaded entity
type ProcessRef struct {
	id      int64
	process *types.Process
}

// ByID refers to a process by id; the entity is loaded when needed
func ByID(id int64) ProcessRef {
	return ProcessRef{id: id}
}

// ByProcess refers to a loaded process entity
func ByProcess(process *types.Process) ProcessRef {
	return ProcessRef{id: process.ID, process: process}
}

// ID returns the referenced process id
func (r ProcessRef) ID() int64 {
	return r.id
}

// Registry is the manager's process table. It is owned by the manager
// goroutine and is not safe for concurrent use.
type Registry struct {
	records map[int64]*types.ProcessRecord
}

// NewRegistry creates an empty process table
func NewRegistry() *Registry {
	return &Registry{records: make(map[int64]*types.ProcessRecord)}
}

// Get returns a copy of the record for id
func (r *Registry) Get(id int64) (types.ProcessRecord, bool) {
	rec, ok := r.records[id]
	if !ok {
		return types.ProcessRecord{}, false
	}
	return *rec, true
}

// Values returns copies of all records ordered by process id
func (r *Registry) Values() []types.ProcessRecord {
	values := make([]types.ProcessRecord, 0, len(r.records))
	for _, rec := range r.sorted() {
		values = append(values, *rec)
	}
	return values
}

// Len returns the number of tracked processes
func (r *Registry) Len() int {
	return len(r.records)
}

// Count returns the number of records in any of the given statuses
func (r *Registry) Count(statuses ...types.ProcessState) int {
	n := 0
	for _, rec := range r.records {
		for _, s := range statuses {
			if rec.Status == s {
				n++
				break
			}
		}
	}
	return n
}

func (r *Registry) lookup(id int64) *types.ProcessRecord {
	return r.records[id]
}

func (r *Registry) put(rec *types.ProcessRecord) {
	r.records[rec.ProcessID] = rec
}

func (r *Registry) remove(id int64) bool {
	if _, ok := r.records[id]; !ok {
		return false
	}
	delete(r.records, id)
	return true
}

func (r *Registry) sorted() []*types.ProcessRecord {
	recs := make([]*types.ProcessRecord, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].ProcessID < recs[j].ProcessID })
	return recs
}

// register makes the manager aware of a process and records it in status.
// First-time registration loads the process and its route; later calls only
// update status, timestamp and (when given) the run token.
func (m *Manager) register(tx storage.Tx, ref ProcessRef, status types.ProcessState, executorID, runToken string) error {
	pid := ref.ID()
	logger := log.WithProcessID(m.logger, pid)

	rec := m.registry.lookup(pid)
	if rec == nil {
		process := ref.process
		if process == nil {
			loaded, err := tx.GetProcess(pid)
			if err != nil {
				if errors.Is(err, storage.ErrNotFound) {
					logger.Info().Msg("Cannot load process, discarding registration request")
				}
				return fmt.Errorf("register process %d: %w", pid, err)
			}
			process = loaded
		}

		if process.State.IsTerminal() {
			logger.Info().Str("state", string(process.State)).Msg("Process in terminal state, refusing registration")
			return fmt.Errorf("register process %d in state %q: %w", pid, process.State, ErrTerminalState)
		}

		route, groupName, err := m.routeOf(tx, process)
		if err != nil {
			logger.Error().Err(err).Msg("No route found for process, refusing registration")
			return fmt.Errorf("register process %d: %w", pid, ErrNoRoute)
		}

		now := m.now()
		rec = &types.ProcessRecord{
			ProcessID:      process.ID,
			ContextID:      process.OwnerID,
			ContextName:    m.contextName(tx, process.OwnerID),
			Status:         types.ProcessStateUnknown,
			Executor:       executorID,
			RouteGroupName: groupName,
			RouteID:        route.ID,
			RouteName:      route.Name,
			Singleton:      route.IsSingleton,
			RegisteredAt:   now,
		}
		m.registry.put(rec)

		logger.Debug().
			Str("route_group", groupName).
			Bool("singleton", route.IsSingleton).
			Msg("New process registered")
		m.processLog(pid, "Process registered by workflow manager.")
	}

	rec.Status = status
	rec.UpdatedAt = m.now()
	if token := strings.TrimSpace(runToken); token != "" {
		rec.LockToken = token
	}
	logger.Debug().Str("status", string(status)).Msg("Process registered in state")

	if status == types.ProcessStateRunning {
		m.refreshRunLock(tx, pid)
	}

	m.updateTableMetrics()
	return nil
}

// routeOf resolves the route of a process and the name of its lock group
func (m *Manager) routeOf(tx storage.Reader, process *types.Process) (*types.Route, string, error) {
	if process.RouteID == 0 {
		return nil, "", storage.ErrNotFound
	}
	route, err := tx.GetRoute(process.RouteID)
	if err != nil {
		return nil, "", err
	}

	groupName := strconv.FormatInt(process.ID, 10)
	if route.Name != "" {
		groupName = strings.ToUpper(route.Name)
	}
	if route.RouteGroupID != 0 {
		group, err := tx.GetRouteGroup(route.RouteGroupID)
		switch {
		case err == nil:
			groupName = strings.ToUpper(group.Name)
		case errors.Is(err, storage.ErrNotFound):
			m.logger.Warn().Int64("route_group_id", route.RouteGroupID).Msg("Route group missing, using route name")
		default:
			return nil, "", err
		}
	}
	return route, groupName, nil
}

// contextName resolves the display name of a process owner
func (m *Manager) contextName(tx storage.Reader, ownerID int64) string {
	switch {
	case ownerID == NetworkContextID:
		return `Coils\Network`
	case ownerID == AnonymousContextID:
		return `Coils\Anonymous`
	case ownerID == AdministratorContextID:
		return `Coils\Administrator`
	case ownerID > AdministratorContextID:
		if name, ok := m.contactNames[ownerID]; ok {
			return name
		}
		contact, err := tx.GetContact(ownerID)
		if err != nil {
			return fmt.Sprintf("OGo%d", ownerID)
		}
		m.contactNames[ownerID] = contact.Login
		return contact.Login
	default:
		return "_undefined_"
	}
}

// deregister releases the run-lock of a process, removes its lock token
// property and drops it from the process table. Failures are logged; every
// step is attempted regardless.
func (m *Manager) deregister(tx storage.Tx, ref ProcessRef) {
	pid := ref.ID()
	logger := log.WithProcessID(m.logger, pid)

	token, err := m.runLockToken(tx, pid)
	if err != nil && !errors.Is(err, ErrLockTokenMismatch) {
		logger.Error().Err(err).Msg("Failed to resolve run lock token")
	}

	if token != "" {
		released, err := m.locks.ReleaseAdministratively(token)
		switch {
		case err != nil:
			logger.Error().Err(err).Str("token", token).Msg("Failed to release run lock")
		case !released:
			logger.Warn().Str("token", token).Msg("Run lock not found to be removed")
			m.processLog(pid, fmt.Sprintf("Run lock %q not found to be removed", token))
		default:
			logger.Debug().Str("token", token).Msg("Removed run lock")
			m.processLog(pid, fmt.Sprintf("Removed run lock %q", token))
		}
	} else {
		logger.Warn().Msg("Requested to deregister a process for which there was no lock token")
	}

	if err := tx.DeleteProperty(pid, PropertyNamespace, PropertyLockToken); err != nil {
		logger.Error().Err(err).Msg("Failed to delete lock token property")
	}

	if m.registry.remove(pid) {
		logger.Info().Msg("Registration of process deleted")
		m.processLog(pid, "Deleted process registration")
	}
	m.updateTableMetrics()
}

func (m *Manager) processLog(pid int64, message string) {
	if err := m.plog.Append(context.Background(), pid, message); err != nil {
		m.logger.Warn().Err(err).Int64("process_id", pid).Msg("Failed to write process log")
	}
}

func (m *Manager) updateTableMetrics() {
	metrics.ProcessTableSize.Set(float64(m.registry.Len()))
	for _, s := range []types.ProcessState{
		types.ProcessStateQueued,
		types.ProcessStateStarting,
		types.ProcessStateRunning,
	} {
		metrics.ProcessesTracked.WithLabelValues(string(s)).Set(float64(m.registry.Count(s)))
	}
}
