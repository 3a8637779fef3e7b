package storage

import (
	"testing"

	"github.com/cuemby/workflowd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testNamespace = "http://www.opengroupware.us/oie"

func newTestStore(t *testing.T) *BoltStore {
	t.Helper()
	store, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestListQueuedOrdering(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	require.NoError(t, err)

	route := &types.Route{Name: "ImportInvoices"}
	require.NoError(t, tx.CreateRoute(route))

	specs := []struct {
		priority int
		state    types.ProcessState
		status   string
		routeID  int64
	}{
		{priority: 1, state: types.ProcessStateQueued, routeID: route.ID},
		{priority: 5, state: types.ProcessStateQueued, routeID: route.ID},
		{priority: 5, state: types.ProcessStateQueued, routeID: route.ID},
		{priority: 9, state: types.ProcessStateQueued, status: types.ProcessStatusArchived, routeID: route.ID},
		{priority: 9, state: types.ProcessStateRunning, routeID: route.ID},
		{priority: 9, state: types.ProcessStateQueued, routeID: 999},
	}
	var ids []int64
	for _, spec := range specs {
		p := &types.Process{Priority: spec.priority, State: spec.state, Status: spec.status, RouteID: spec.routeID}
		require.NoError(t, tx.CreateProcess(p))
		ids = append(ids, p.ID)
	}
	require.NoError(t, tx.Commit())

	var queued []QueuedProcess
	require.NoError(t, store.View(func(r Reader) error {
		var err error
		queued, err = r.ListQueued(150)
		return err
	}))

	require.Len(t, queued, 3)
	assert.Equal(t, ids[1], queued[0].Process.ID)
	assert.Equal(t, ids[2], queued[1].Process.ID)
	assert.Equal(t, ids[0], queued[2].Process.ID)
	assert.Equal(t, "ImportInvoices", queued[0].Route.Name)

	require.NoError(t, store.View(func(r Reader) error {
		limited, err := r.ListQueued(1)
		require.NoError(t, err)
		assert.Len(t, limited, 1)
		return nil
	}))
}

func TestProperties(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	_, ok, err := tx.GetProperty(7, testNamespace, "lockToken")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx.SetProperty(7, testNamespace, "lockToken", "tok-A"))
	value, ok, err := tx.GetProperty(7, testNamespace, "lockToken")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok-A", value)

	// Same name on another entity is independent
	_, ok, err = tx.GetProperty(70, testNamespace, "lockToken")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, tx.DeleteProperty(7, testNamespace, "lockToken"))
	_, ok, err = tx.GetProperty(7, testNamespace, "lockToken")
	require.NoError(t, err)
	assert.False(t, ok)

	// Deleting a missing property is not an error
	assert.NoError(t, tx.DeleteProperty(7, testNamespace, "lockToken"))

	require.NoError(t, tx.SetServerProperty(testNamespace, "engineStatus", `{"version":1}`))
	value, ok, err = tx.GetServerProperty(testNamespace, "engineStatus")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"version":1}`, value)
}

func TestRollbackDiscardsWrites(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	p := &types.Process{State: types.ProcessStateQueued}
	require.NoError(t, tx.CreateProcess(p))
	require.NoError(t, tx.Rollback())
	assert.NoError(t, tx.Rollback(), "rollback is idempotent")
	assert.NoError(t, tx.Commit(), "commit after rollback is a no-op")

	err = store.View(func(r Reader) error {
		_, err := r.GetProcess(p.ID)
		return err
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFlushSurvivesRollback(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	require.NoError(t, err)

	flushed := &types.Process{State: types.ProcessStateQueued}
	require.NoError(t, tx.CreateProcess(flushed))
	require.NoError(t, tx.Flush())

	discarded := &types.Process{State: types.ProcessStateQueued}
	require.NoError(t, tx.CreateProcess(discarded))
	require.NoError(t, tx.Rollback())

	require.NoError(t, store.View(func(r Reader) error {
		_, err := r.GetProcess(flushed.ID)
		assert.NoError(t, err)
		_, err = r.GetProcess(discarded.ID)
		assert.ErrorIs(t, err, ErrNotFound)
		return nil
	}))
}

func TestSetProcessStateBumpsVersion(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	p := &types.Process{}
	require.NoError(t, tx.CreateProcess(p))
	assert.Equal(t, types.ProcessStateInitial, p.State)

	require.NoError(t, tx.SetProcessState(p.ID, types.ProcessStateZombie))
	got, err := tx.GetProcess(p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.ProcessStateZombie, got.State)
	assert.Equal(t, 1, got.Version)

	assert.ErrorIs(t, tx.SetProcessState(12345, types.ProcessStateFailed), ErrNotFound)
}

func TestMessages(t *testing.T) {
	store := newTestStore(t)

	tx, err := store.Begin()
	require.NoError(t, err)
	defer tx.Rollback()

	require.NoError(t, tx.CreateMessage(&types.Message{UUID: "m-1", ProcessID: 3, Label: "input"}))
	require.NoError(t, tx.CreateMessage(&types.Message{UUID: "m-2", ProcessID: 3, Label: "ack"}))
	require.NoError(t, tx.CreateMessage(&types.Message{UUID: "m-3", ProcessID: 4, Label: "ack"}))

	messages, err := tx.ListMessages(3)
	require.NoError(t, err)
	assert.Len(t, messages, 2)

	found, err := tx.FindMessage(3, "ack")
	require.NoError(t, err)
	assert.Equal(t, "m-2", found.UUID)

	_, err = tx.FindMessage(3, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
