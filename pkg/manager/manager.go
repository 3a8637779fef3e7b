package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/workflowd/pkg/lock"
	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/storage"
	"github.com/cuemby/workflowd/pkg/types"
	"github.com/rs/zerolog"
)

// ErrStopped is returned when a command is sent to a stopped manager
var ErrStopped = errors.New("manager stopped")

// LockService grants and manages run-locks
type LockService interface {
	Lock(req lock.Request) (types.LockGrant, bool, error)
	RefreshAdministratively(token string, duration time.Duration) (bool, error)
	ReleaseAdministratively(token string) (bool, error)
	ActiveExclusive() ([]types.LockGrant, error)
}

// Executor starts processes and answers liveness queries. Answers arrive
// later as CommandIsRunning, CommandCompleted, CommandFailed or CommandParked.
type Executor interface {
	StartProcess(processID, contextID int64) error
	QueryRunning(processID int64) error
}

// Notifier delivers administrative notices
type Notifier interface {
	Notify(notice types.AdminNotice)
}

// StatusPublisher receives every engine status the manager publishes
type StatusPublisher interface {
	EngineStatus(status types.EngineStatus)
}

// ProcessLog records per-process audit messages
type ProcessLog interface {
	Append(ctx context.Context, processID int64, message string) error
}

// Deps are the collaborators of a Manager. Status is optional.
type Deps struct {
	Store      storage.Store
	Locks      LockService
	Executor   Executor
	Notifier   Notifier
	Status     StatusPublisher
	ProcessLog ProcessLog
}

type envelope struct {
	cmd   Command
	reply chan Reply
}

// Manager schedules workflow processes. All state is owned by a single
// goroutine that handles one command at a time, each inside its own store
// transaction.
type Manager struct {
	cfg      Config
	store    storage.Store
	locks    LockService
	executor Executor
	notifier Notifier
	status   StatusPublisher
	plog     ProcessLog

	registry     *Registry
	contactNames map[int64]string
	enabled      bool
	tx           storage.Tx
	now          func() time.Time
	logger       zerolog.Logger

	inbox    chan envelope
	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a Manager. The manager starts enabled with an empty table.
func New(cfg Config, deps Deps) (*Manager, error) {
	switch {
	case deps.Store == nil:
		return nil, fmt.Errorf("manager requires a store")
	case deps.Locks == nil:
		return nil, fmt.Errorf("manager requires a lock service")
	case deps.Executor == nil:
		return nil, fmt.Errorf("manager requires an executor")
	case deps.Notifier == nil:
		return nil, fmt.Errorf("manager requires a notifier")
	case deps.ProcessLog == nil:
		return nil, fmt.Errorf("manager requires a process log")
	}

	cfg = cfg.withDefaults()
	return &Manager{
		cfg:          cfg,
		store:        deps.Store,
		locks:        deps.Locks,
		executor:     deps.Executor,
		notifier:     deps.Notifier,
		status:       deps.Status,
		plog:         deps.ProcessLog,
		registry:     NewRegistry(),
		contactNames: make(map[int64]string),
		enabled:      true,
		now:          time.Now,
		logger:       log.WithComponent("manager"),
		inbox:        make(chan envelope, cfg.InboxSize),
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Config returns the effective configuration
func (m *Manager) Config() Config {
	return m.cfg
}

// Start launches the manager goroutine. It does nothing once the manager has
// been started or stopped.
func (m *Manager) Start() {
	if !m.started.CompareAndSwap(false, true) {
		return
	}
	m.logger.Info().
		Dur("tick_interval", m.cfg.TickInterval).
		Dur("ping_parked_interval", m.cfg.PingParkedInterval).
		Msg("Starting workflow manager")
	go m.run()
}

// Stop stops the manager goroutine and waits for the command in flight. It is
// safe to call more than once, and before Start.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.started.CompareAndSwap(false, true) {
			// never started, nothing will close doneCh
			close(m.doneCh)
		} else {
			<-m.doneCh
		}
		m.logger.Info().Msg("Workflow manager stopped")
	})
}

// Do sends a command and waits for its reply
func (m *Manager) Do(ctx context.Context, cmd Command) (Reply, error) {
	env := envelope{cmd: cmd, reply: make(chan Reply, 1)}
	select {
	case m.inbox <- env:
	case <-m.stopCh:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}

	select {
	case reply := <-env.reply:
		return reply, nil
	case <-m.doneCh:
		return Reply{}, ErrStopped
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

// Post sends a command without waiting for the reply. It blocks while the
// inbox is full and returns false once the manager is stopped.
func (m *Manager) Post(cmd Command) bool {
	select {
	case m.inbox <- envelope{cmd: cmd}:
		return true
	case <-m.stopCh:
		return false
	}
}

func (m *Manager) run() {
	defer close(m.doneCh)
	for {
		select {
		case env := <-m.inbox:
			reply := m.dispatch(env.cmd)
			if env.reply != nil {
				env.reply <- reply
			}
		case <-m.stopCh:
			m.rollback()
			return
		}
	}
}

func (m *Manager) notify(urgency int, subject, message string) {
	m.notifier.Notify(types.AdminNotice{
		Category: "workflow",
		Urgency:  urgency,
		Subject:  subject,
		Message:  message,
	})
}
