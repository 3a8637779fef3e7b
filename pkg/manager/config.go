package manager

import "time"

// Property names used on process entities and on the server
const (
	PropertyNamespace      = "http://www.opengroupware.us/oie"
	PropertyLockToken      = "lockToken"
	PropertyWaitingOnLabel = "waitingOnLabel"
	PropertyEngineStatus   = "engineStatus"
)

// Well-known context ids
const (
	AnonymousContextID     int64 = 0
	NetworkContextID       int64 = 8999
	AdministratorContextID int64 = 10000
)

// Config holds the manager's timing and sizing parameters
type Config struct {
	// TickInterval drives scan-running and start-queued
	TickInterval time.Duration `yaml:"tickInterval" mapstructure:"tickInterval"`
	// PingParkedInterval drives parked process pinging; zero disables it
	PingParkedInterval time.Duration `yaml:"pingParkedInterval" mapstructure:"pingParkedInterval"`
	// LockDuration is requested for every run-lock acquisition
	LockDuration time.Duration `yaml:"lockDuration" mapstructure:"lockDuration"`
	// LockRefreshDuration is applied when a running process refreshes its run-lock
	LockRefreshDuration time.Duration `yaml:"lockRefreshDuration" mapstructure:"lockRefreshDuration"`
	// PingInterval is the minimum time between liveness queries for one process
	PingInterval time.Duration `yaml:"pingInterval" mapstructure:"pingInterval"`
	// ZombieMissThreshold is exceeded before a process is investigated as a zombie
	ZombieMissThreshold int `yaml:"zombieMissThreshold" mapstructure:"zombieMissThreshold"`
	// QueueBatchSize caps the queued processes examined per start cycle
	QueueBatchSize int `yaml:"queueBatchSize" mapstructure:"queueBatchSize"`
	// AdminContextID owns run-locks of non-singleton routes
	AdminContextID int64 `yaml:"adminContextId" mapstructure:"adminContextId"`
	InboxSize      int   `yaml:"inboxSize" mapstructure:"inboxSize"`
}

// DefaultConfig returns the default manager configuration
func DefaultConfig() Config {
	return Config{
		TickInterval:        60 * time.Second,
		PingParkedInterval:  300 * time.Second,
		LockDuration:        time.Hour,
		LockRefreshDuration: 100 * time.Hour,
		PingInterval:        9 * time.Second,
		ZombieMissThreshold: 3,
		QueueBatchSize:      150,
		AdminContextID:      AdministratorContextID,
		InboxSize:           64,
	}
}

// withDefaults fills zero fields from DefaultConfig. PingParkedInterval is
// left alone so that zero keeps parked pinging disabled.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.TickInterval <= 0 {
		c.TickInterval = d.TickInterval
	}
	if c.PingParkedInterval < 0 {
		c.PingParkedInterval = 0
	}
	if c.LockDuration <= 0 {
		c.LockDuration = d.LockDuration
	}
	if c.LockRefreshDuration <= 0 {
		c.LockRefreshDuration = d.LockRefreshDuration
	}
	if c.PingInterval <= 0 {
		c.PingInterval = d.PingInterval
	}
	if c.ZombieMissThreshold <= 0 {
		c.ZombieMissThreshold = d.ZombieMissThreshold
	}
	if c.QueueBatchSize <= 0 {
		c.QueueBatchSize = d.QueueBatchSize
	}
	if c.AdminContextID == 0 {
		c.AdminContextID = d.AdminContextID
	}
	if c.InboxSize <= 0 {
		c.InboxSize = d.InboxSize
	}
	return c
}
