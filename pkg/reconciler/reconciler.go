package reconciler

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/cuemby/workflowd/pkg/log"
	"github.com/cuemby/workflowd/pkg/manager"
	"github.com/cuemby/workflowd/pkg/metrics"
	"github.com/rs/zerolog"
)

// Poster accepts commands for the manager goroutine
type Poster interface {
	Post(cmd manager.Command) bool
}

// Reconciler drives the manager's periodic work: tick-tock every
// TickInterval and parked process pinging every PingParkedInterval.
type Reconciler struct {
	poster       Poster
	tickInterval time.Duration
	pingInterval time.Duration
	started      atomic.Bool
	stopOnce     sync.Once
	stopCh       chan struct{}
	doneCh       chan struct{}
	logger       zerolog.Logger
}

// NewReconciler creates a reconciler posting to poster. A zero ping-parked
// interval disables parked pinging.
func NewReconciler(poster Poster, cfg manager.Config) *Reconciler {
	tick := cfg.TickInterval
	if tick <= 0 {
		tick = manager.DefaultConfig().TickInterval
	}
	return &Reconciler{
		poster:       poster,
		tickInterval: tick,
		pingInterval: cfg.PingParkedInterval,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
		logger:       log.WithComponent("reconciler"),
	}
}

// Start begins the reconciliation loop
func (r *Reconciler) Start() {
	if r.started.CompareAndSwap(false, true) {
		go r.run()
	}
}

// Stop stops the reconciler and waits for the loop to exit. It is safe to
// call more than once, and before Start.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() {
		close(r.stopCh)
		if r.started.CompareAndSwap(false, true) {
			close(r.doneCh)
			return
		}
		<-r.doneCh
	})
}

func (r *Reconciler) run() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.tickInterval)
	defer ticker.Stop()

	// nil channel never fires when parked pinging is disabled
	var parked <-chan time.Time
	if r.pingInterval > 0 {
		parkedTicker := time.NewTicker(r.pingInterval)
		defer parkedTicker.Stop()
		parked = parkedTicker.C
	}

	r.logger.Info().
		Dur("tick_interval", r.tickInterval).
		Dur("ping_parked_interval", r.pingInterval).
		Msg("Reconciler started")

	// Publish status immediately on start
	r.post(manager.CommandRecordStatus)

	for {
		select {
		case <-ticker.C:
			r.post(manager.CommandTickTock)
		case <-parked:
			r.post(manager.CommandPingParked)
		case <-r.stopCh:
			return
		}
	}
}

func (r *Reconciler) post(kind manager.CommandKind) {
	if !r.poster.Post(manager.Command{Kind: kind, Source: "reconciler"}) {
		r.logger.Warn().Str("command", kind.String()).Msg("Manager not accepting commands")
		return
	}
	metrics.ReconciliationCyclesTotal.WithLabelValues(kind.String()).Inc()
}
