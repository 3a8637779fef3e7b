package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/cuemby/workflowd/pkg/types"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketProcesses        = []byte("processes")
	bucketRoutes           = []byte("routes")
	bucketRouteGroups      = []byte("route_groups")
	bucketContacts         = []byte("contacts")
	bucketMessages         = []byte("messages")
	bucketProperties       = []byte("properties")
	bucketServerProperties = []byte("server_properties")
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore creates a new BoltDB-backed store
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "workflow.db")

	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		buckets := [][]byte{
			bucketProcesses,
			bucketRoutes,
			bucketRouteGroups,
			bucketContacts,
			bucketMessages,
			bucketProperties,
			bucketServerProperties,
		}

		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Begin opens a write transaction
func (s *BoltStore) Begin() (Tx, error) {
	tx, err := s.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &boltTx{db: s.db, tx: tx, writable: true}, nil
}

// View runs fn in a read-only transaction
func (s *BoltStore) View(fn func(Reader) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return fn(&boltTx{db: s.db, tx: tx})
	})
}

// boltTx wraps a bbolt transaction. Flush swaps the underlying transaction.
type boltTx struct {
	db       *bolt.DB
	tx       *bolt.Tx
	writable bool
	done     bool
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func propertyKey(entityID int64, namespace, name string) []byte {
	key := itob(entityID)
	key = append(key, namespace...)
	key = append(key, 0)
	return append(key, name...)
}

func serverPropertyKey(namespace, name string) []byte {
	key := []byte(namespace)
	key = append(key, 0)
	return append(key, name...)
}

func (t *boltTx) bucket(name []byte) (*bolt.Bucket, error) {
	if t.done {
		return nil, bolt.ErrTxClosed
	}
	b := t.tx.Bucket(name)
	if b == nil {
		return nil, fmt.Errorf("bucket %s missing", name)
	}
	return b, nil
}

func (t *boltTx) put(name []byte, key []byte, v any) error {
	b, err := t.bucket(name)
	if err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

func (t *boltTx) get(name []byte, key []byte, v any) error {
	b, err := t.bucket(name)
	if err != nil {
		return err
	}
	data := b.Get(key)
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}

func (t *boltTx) nextID(name []byte) (int64, error) {
	b, err := t.bucket(name)
	if err != nil {
		return 0, err
	}
	seq, err := b.NextSequence()
	if err != nil {
		return 0, err
	}
	return int64(seq), nil
}

// Process operations
func (t *boltTx) CreateProcess(process *types.Process) error {
	if process.ID == 0 {
		id, err := t.nextID(bucketProcesses)
		if err != nil {
			return err
		}
		process.ID = id
	}
	if process.State == "" {
		process.State = types.ProcessStateInitial
	}
	now := time.Now()
	if process.Created.IsZero() {
		process.Created = now
	}
	process.Modified = now
	return t.put(bucketProcesses, itob(process.ID), process)
}

func (t *boltTx) GetProcess(id int64) (*types.Process, error) {
	var process types.Process
	if err := t.get(bucketProcesses, itob(id), &process); err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("process %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &process, nil
}

func (t *boltTx) UpdateProcess(process *types.Process) error {
	if _, err := t.GetProcess(process.ID); err != nil {
		return err
	}
	process.Version++
	process.Modified = time.Now()
	return t.put(bucketProcesses, itob(process.ID), process)
}

func (t *boltTx) SetProcessState(id int64, state types.ProcessState) error {
	process, err := t.GetProcess(id)
	if err != nil {
		return err
	}
	process.State = state
	return t.UpdateProcess(process)
}

func (t *boltTx) ListProcessesByState(state types.ProcessState) ([]*types.Process, error) {
	b, err := t.bucket(bucketProcesses)
	if err != nil {
		return nil, err
	}
	var processes []*types.Process
	err = b.ForEach(func(k, v []byte) error {
		var process types.Process
		if err := json.Unmarshal(v, &process); err != nil {
			return err
		}
		if process.State == state {
			processes = append(processes, &process)
		}
		return nil
	})
	return processes, err
}

func (t *boltTx) ListProcessIDsByState(state types.ProcessState) ([]int64, error) {
	processes, err := t.ListProcessesByState(state)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(processes))
	for _, process := range processes {
		ids = append(ids, process.ID)
	}
	return ids, nil
}

func (t *boltTx) ListQueued(limit int) ([]QueuedProcess, error) {
	processes, err := t.ListProcessesByState(types.ProcessStateQueued)
	if err != nil {
		return nil, err
	}

	var result []QueuedProcess
	for _, process := range processes {
		if process.Status == types.ProcessStatusArchived {
			continue
		}
		route, err := t.GetRoute(process.RouteID)
		if err != nil {
			// Inner join: processes without a route are never started
			continue
		}
		result = append(result, QueuedProcess{Process: process, Route: route})
	}

	sort.SliceStable(result, func(i, j int) bool {
		pi, pj := result[i].Process, result[j].Process
		if pi.Priority != pj.Priority {
			return pi.Priority > pj.Priority
		}
		return pi.ID < pj.ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Route operations
func (t *boltTx) CreateRoute(route *types.Route) error {
	if route.ID == 0 {
		id, err := t.nextID(bucketRoutes)
		if err != nil {
			return err
		}
		route.ID = id
	}
	return t.put(bucketRoutes, itob(route.ID), route)
}

func (t *boltTx) GetRoute(id int64) (*types.Route, error) {
	var route types.Route
	if err := t.get(bucketRoutes, itob(id), &route); err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("route %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &route, nil
}

func (t *boltTx) ListRoutes() ([]*types.Route, error) {
	b, err := t.bucket(bucketRoutes)
	if err != nil {
		return nil, err
	}
	var routes []*types.Route
	err = b.ForEach(func(k, v []byte) error {
		var route types.Route
		if err := json.Unmarshal(v, &route); err != nil {
			return err
		}
		routes = append(routes, &route)
		return nil
	})
	return routes, err
}

func (t *boltTx) CreateRouteGroup(group *types.RouteGroup) error {
	if group.ID == 0 {
		id, err := t.nextID(bucketRouteGroups)
		if err != nil {
			return err
		}
		group.ID = id
	}
	return t.put(bucketRouteGroups, itob(group.ID), group)
}

func (t *boltTx) GetRouteGroup(id int64) (*types.RouteGroup, error) {
	var group types.RouteGroup
	if err := t.get(bucketRouteGroups, itob(id), &group); err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("route group %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &group, nil
}

// Contact operations
func (t *boltTx) CreateContact(contact *types.Contact) error {
	if contact.ID == 0 {
		id, err := t.nextID(bucketContacts)
		if err != nil {
			return err
		}
		contact.ID = id
	}
	return t.put(bucketContacts, itob(contact.ID), contact)
}

func (t *boltTx) GetContact(id int64) (*types.Contact, error) {
	var contact types.Contact
	if err := t.get(bucketContacts, itob(id), &contact); err != nil {
		if err == ErrNotFound {
			return nil, fmt.Errorf("contact %d: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return &contact, nil
}

// Message operations
func (t *boltTx) CreateMessage(message *types.Message) error {
	if message.UUID == "" {
		return fmt.Errorf("message requires a uuid")
	}
	if message.Created.IsZero() {
		message.Created = time.Now()
	}
	return t.put(bucketMessages, []byte(message.UUID), message)
}

func (t *boltTx) ListMessages(processID int64) ([]*types.Message, error) {
	b, err := t.bucket(bucketMessages)
	if err != nil {
		return nil, err
	}
	var messages []*types.Message
	err = b.ForEach(func(k, v []byte) error {
		var message types.Message
		if err := json.Unmarshal(v, &message); err != nil {
			return err
		}
		if message.ProcessID == processID {
			messages = append(messages, &message)
		}
		return nil
	})
	sort.SliceStable(messages, func(i, j int) bool {
		return messages[i].Created.Before(messages[j].Created)
	})
	return messages, err
}

func (t *boltTx) FindMessage(processID int64, label string) (*types.Message, error) {
	messages, err := t.ListMessages(processID)
	if err != nil {
		return nil, err
	}
	for _, message := range messages {
		if message.Label == label {
			return message, nil
		}
	}
	return nil, fmt.Errorf("message %q for process %d: %w", label, processID, ErrNotFound)
}

// Property operations
func (t *boltTx) GetProperty(entityID int64, namespace, name string) (string, bool, error) {
	b, err := t.bucket(bucketProperties)
	if err != nil {
		return "", false, err
	}
	data := b.Get(propertyKey(entityID, namespace, name))
	if data == nil {
		return "", false, nil
	}
	return string(data), true, nil
}

func (t *boltTx) SetProperty(entityID int64, namespace, name, value string) error {
	b, err := t.bucket(bucketProperties)
	if err != nil {
		return err
	}
	return b.Put(propertyKey(entityID, namespace, name), []byte(value))
}

func (t *boltTx) DeleteProperty(entityID int64, namespace, name string) error {
	b, err := t.bucket(bucketProperties)
	if err != nil {
		return err
	}
	return b.Delete(propertyKey(entityID, namespace, name))
}

func (t *boltTx) GetServerProperty(namespace, name string) (string, bool, error) {
	b, err := t.bucket(bucketServerProperties)
	if err != nil {
		return "", false, err
	}
	data := b.Get(serverPropertyKey(namespace, name))
	if data == nil {
		return "", false, nil
	}
	return string(data), true, nil
}

func (t *boltTx) SetServerProperty(namespace, name, value string) error {
	b, err := t.bucket(bucketServerProperties)
	if err != nil {
		return err
	}
	return b.Put(serverPropertyKey(namespace, name), []byte(value))
}

// Transaction control
func (t *boltTx) Flush() error {
	if !t.writable {
		return bolt.ErrTxNotWritable
	}
	if t.done {
		return bolt.ErrTxClosed
	}
	if err := t.tx.Commit(); err != nil {
		t.done = true
		return fmt.Errorf("failed to flush transaction: %w", err)
	}
	next, err := t.db.Begin(true)
	if err != nil {
		t.done = true
		return fmt.Errorf("failed to reopen transaction: %w", err)
	}
	t.tx = next
	return nil
}

func (t *boltTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Commit()
}

func (t *boltTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.tx.Rollback()
}
