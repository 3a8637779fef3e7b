package storage

import (
	"errors"

	"github.com/cuemby/workflowd/pkg/types"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// QueuedProcess is a queued process joined with its route
type QueuedProcess struct {
	Process *types.Process
	Route   *types.Route
}

// Store defines the interface for the workflow system of record
type Store interface {
	// Begin opens a read-write transaction. Only one may be open at a time.
	Begin() (Tx, error)

	// View runs fn inside a read-only transaction
	View(fn func(Reader) error) error

	Close() error
}

// Reader holds the read operations available in any transaction
type Reader interface {
	// Processes
	GetProcess(id int64) (*types.Process, error)
	ListProcessesByState(state types.ProcessState) ([]*types.Process, error)
	ListProcessIDsByState(state types.ProcessState) ([]int64, error)
	// ListQueued returns up to limit queued, non-archived processes with their
	// routes, highest priority first and oldest id first within a priority.
	ListQueued(limit int) ([]QueuedProcess, error)

	// Routes
	GetRoute(id int64) (*types.Route, error)
	GetRouteGroup(id int64) (*types.RouteGroup, error)
	ListRoutes() ([]*types.Route, error)

	// Contacts
	GetContact(id int64) (*types.Contact, error)

	// Messages
	ListMessages(processID int64) ([]*types.Message, error)
	FindMessage(processID int64, label string) (*types.Message, error)

	// Properties
	GetProperty(entityID int64, namespace, name string) (string, bool, error)
	GetServerProperty(namespace, name string) (string, bool, error)
}

// Tx is a read-write transaction against the store
type Tx interface {
	Reader

	CreateProcess(process *types.Process) error
	UpdateProcess(process *types.Process) error
	SetProcessState(id int64, state types.ProcessState) error

	CreateRoute(route *types.Route) error
	CreateRouteGroup(group *types.RouteGroup) error
	CreateContact(contact *types.Contact) error
	CreateMessage(message *types.Message) error

	SetProperty(entityID int64, namespace, name, value string) error
	DeleteProperty(entityID int64, namespace, name string) error
	SetServerProperty(namespace, name, value string) error

	// Flush makes all writes so far durable and continues in a new transaction
	Flush() error
	Commit() error
	Rollback() error
}
