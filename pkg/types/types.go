package types

import (
	"strconv"
	"time"
)

// ProcessState is the single-letter state stored on a process entity
type ProcessState string

const (
	ProcessStateUnknown   ProcessState = "?"
	ProcessStateInitial   ProcessState = "I"
	ProcessStateHeld      ProcessState = "H"
	ProcessStateQueued    ProcessState = "Q"
	ProcessStateStarting  ProcessState = "U"
	ProcessStateRunning   ProcessState = "R"
	ProcessStateParked    ProcessState = "P"
	ProcessStateCompleted ProcessState = "C"
	ProcessStateFailed    ProcessState = "F"
	ProcessStateZombie    ProcessState = "Z"
	ProcessStateCancelled ProcessState = "X"
)

// IsTerminal reports whether a process in this state can no longer be registered.
func (s ProcessState) IsTerminal() bool {
	switch s {
	case ProcessStateCancelled, ProcessStateFailed, ProcessStateCompleted:
		return true
	}
	return false
}

// Queueable reports whether a process in this state may be moved to Queued.
func (s ProcessState) Queueable() bool {
	switch s {
	case ProcessStateInitial, ProcessStateHeld, ProcessStateParked:
		return true
	}
	return false
}

// ProcessStatusArchived marks processes excluded from queue scans
const ProcessStatusArchived = "archived"

// Process is the durable process entity
type Process struct {
	ID       int64
	OwnerID  int64
	State    ProcessState
	RouteID  int64
	Priority int
	Status   string
	ParentID int64
	Version  int
	Created  time.Time
	Modified time.Time
}

// Route is the definition a process executes against
type Route struct {
	ID           int64
	Name         string
	RouteGroupID int64
	IsSingleton  bool
}

// RouteGroup scopes mutual exclusion across several routes
type RouteGroup struct {
	ID   int64
	Name string
}

// Contact is an account that may own processes
type Contact struct {
	ID    int64
	Login string
}

// Message is a payload attached to a process
type Message struct {
	UUID      string
	ProcessID int64
	Label     string
	Version   int
	Size      int64
	Created   time.Time
}

// ProcessRecord is the manager's in-memory belief about a process
type ProcessRecord struct {
	ProcessID      int64        `json:"processId"`
	ContextID      int64        `json:"contextId"`
	ContextName    string       `json:"contextName"`
	Status         ProcessState `json:"status"`
	Executor       string       `json:"executor"`
	RouteGroupName string       `json:"routeGroup"`
	RouteID        int64        `json:"routeId"`
	RouteName      string       `json:"routeName"`
	Singleton      bool         `json:"singleton"`
	RegisteredAt   time.Time    `json:"registered"`
	UpdatedAt      time.Time    `json:"updated"`
	LockToken      string       `json:"lockToken,omitempty"`
	LastPingAt     time.Time    `json:"lastPing"`
	LastPongAt     time.Time    `json:"lastPong"`
	MissCount      int          `json:"missCount"`
}

// LockTargetKind identifies the entity type a lock is placed on
type LockTargetKind string

const (
	LockTargetRoute      LockTargetKind = "Route"
	LockTargetRouteGroup LockTargetKind = "RouteGroup"
)

// LockTarget is the entity a run-lock is scoped to
type LockTarget struct {
	Kind LockTargetKind `json:"kind"`
	ID   int64          `json:"id"`
	Name string         `json:"name"`
}

func (t LockTarget) String() string {
	return "OGo#" + strconv.FormatInt(t.ID, 10) + " [" + string(t.Kind) + "]"
}

// LockGrant is a run-lock held on a target
type LockGrant struct {
	Token     string     `json:"token"`
	Target    LockTarget `json:"target"`
	ContextID int64      `json:"contextId"`
	Data      string     `json:"data"`
	Run       bool       `json:"run"`
	Exclusive bool       `json:"exclusive"`
	Granted   time.Time  `json:"granted"`
	Expires   time.Time  `json:"expires"`
}

// Expired reports whether the grant has lapsed at the given time
func (g LockGrant) Expired(now time.Time) bool {
	return !g.Expires.After(now)
}

// LockedRouteGroup is one entry of the engine status locked group list
type LockedRouteGroup struct {
	ID   int64  `json:"objectId"`
	Name string `json:"name"`
}

// OperatingMode of the manager as published in the engine status
type OperatingMode string

const (
	OperatingModeOnline      OperatingMode = "online"
	OperatingModeMaintenance OperatingMode = "maintenance"
)

// EngineStatus is the status blob written to the engineStatus server property
type EngineStatus struct {
	Version           int                `json:"version"`
	OperatingMode     OperatingMode      `json:"operatingMode"`
	ProcessTableSize  int                `json:"processTableSize"`
	RunningProcesses  int                `json:"runningProccesses"`
	QueuedProcesses   int                `json:"queuedProcesses"`
	LockedRouteGroups []LockedRouteGroup `json:"lockedRouteGroups"`
}

// AdminNotice is an administrative notification
type AdminNotice struct {
	Category string
	Urgency  int
	Subject  string
	Message  string
}
