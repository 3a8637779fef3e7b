package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/workflowd/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// TokenPrefix is prepended to every issued lock token
const TokenPrefix = "opaquelocktoken:"

var bucketLocks = []byte("locks")

// ErrLockNotFound is returned when no live grant matches a token
var ErrLockNotFound = errors.New("lock not found")

// Request describes a lock acquisition
type Request struct {
	Target    types.LockTarget
	Duration  time.Duration
	Data      string
	Run       bool
	ContextID int64
}

// Service grants exclusive, expiring locks on route and route group targets.
// A context may hold any number of grants on a target; a different context is
// refused while an unexpired grant exists.
type Service struct {
	db  *bolt.DB
	mu  sync.Mutex
	now func() time.Time
}

// Option configures a Service
type Option func(*Service)

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService opens the lock database in dataDir
func NewService(dataDir string, opts ...Option) (*Service, error) {
	db, err := bolt.Open(filepath.Join(dataDir, "locks.db"), 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open lock database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketLocks)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create lock bucket: %w", err)
	}

	s := &Service{db: db, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the lock database
func (s *Service) Close() error {
	return s.db.Close()
}

// Lock attempts to acquire an exclusive lock. ok is false on contention.
func (s *Service) Lock(req Request) (grant types.LockGrant, ok bool, err error) {
	if req.Duration <= 0 {
		return types.LockGrant{}, false, fmt.Errorf("lock duration must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	err = s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)

		var expired [][]byte
		contended := false
		err := b.ForEach(func(k, v []byte) error {
			var existing types.LockGrant
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			if existing.Expired(now) {
				expired = append(expired, append([]byte(nil), k...))
				return nil
			}
			if existing.Target.Kind == req.Target.Kind &&
				existing.Target.ID == req.Target.ID &&
				existing.Exclusive &&
				existing.ContextID != req.ContextID {
				contended = true
			}
			return nil
		})
		if err != nil {
			return err
		}

		for _, k := range expired {
			if err := b.Delete(k); err != nil {
				return err
			}
		}

		if contended {
			return nil
		}

		grant = types.LockGrant{
			Token:     TokenPrefix + uuid.NewString(),
			Target:    req.Target,
			ContextID: req.ContextID,
			Data:      req.Data,
			Run:       req.Run,
			Exclusive: true,
			Granted:   now,
			Expires:   now.Add(req.Duration),
		}
		data, err := json.Marshal(grant)
		if err != nil {
			return err
		}
		ok = true
		return b.Put([]byte(grant.Token), data)
	})
	if err != nil {
		return types.LockGrant{}, false, fmt.Errorf("failed to acquire lock on %s: %w", req.Target, err)
	}
	return grant, ok, nil
}

// Get returns the live grant for a token
func (s *Service) Get(token string) (types.LockGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var grant types.LockGrant
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketLocks).Get([]byte(token))
		if data == nil {
			return ErrLockNotFound
		}
		if err := json.Unmarshal(data, &grant); err != nil {
			return err
		}
		if grant.Expired(s.now()) {
			return ErrLockNotFound
		}
		return nil
	})
	return grant, err
}

// RefreshAdministratively extends a live grant to expire duration from now,
// regardless of the context that holds it.
func (s *Service) RefreshAdministratively(token string, duration time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		data := b.Get([]byte(token))
		if data == nil {
			return nil
		}
		var grant types.LockGrant
		if err := json.Unmarshal(data, &grant); err != nil {
			return err
		}
		now := s.now()
		if grant.Expired(now) {
			return b.Delete([]byte(token))
		}
		grant.Expires = now.Add(duration)
		updated, err := json.Marshal(grant)
		if err != nil {
			return err
		}
		refreshed = true
		return b.Put([]byte(token), updated)
	})
	return refreshed, err
}

// ReleaseAdministratively removes a grant regardless of the context that holds it
func (s *Service) ReleaseAdministratively(token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	released := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocks)
		data := b.Get([]byte(token))
		if data == nil {
			return nil
		}
		var grant types.LockGrant
		if err := json.Unmarshal(data, &grant); err != nil {
			return err
		}
		released = !grant.Expired(s.now())
		return b.Delete([]byte(token))
	})
	return released, err
}

// ActiveExclusive lists unexpired exclusive grants
func (s *Service) ActiveExclusive() ([]types.LockGrant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var grants []types.LockGrant
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLocks).ForEach(func(k, v []byte) error {
			var grant types.LockGrant
			if err := json.Unmarshal(v, &grant); err != nil {
				return err
			}
			if grant.Exclusive && !grant.Expired(now) {
				grants = append(grants, grant)
			}
			return nil
		})
	})
	return grants, err
}
