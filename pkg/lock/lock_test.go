package lock

import (
	"strings"
	"testing"
	"time"

	"github.com/cuemby/workflowd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func newTestService(t *testing.T) (*Service, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(t.TempDir(), WithClock(clock.Now))
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc, clock
}

var routeR1 = types.LockTarget{Kind: types.LockTargetRoute, ID: 1, Name: "R1"}

func TestLockExclusivityByContext(t *testing.T) {
	tests := []struct {
		name         string
		firstCtx     int64
		secondCtx    int64
		secondTarget types.LockTarget
		wantSecond   bool
	}{
		{
			name:         "different context on same target is refused",
			firstCtx:     101,
			secondCtx:    102,
			secondTarget: routeR1,
			wantSecond:   false,
		},
		{
			name:         "same context acquires additively",
			firstCtx:     10000,
			secondCtx:    10000,
			secondTarget: routeR1,
			wantSecond:   true,
		},
		{
			name:         "different target is independent",
			firstCtx:     101,
			secondCtx:    102,
			secondTarget: types.LockTarget{Kind: types.LockTargetRoute, ID: 2, Name: "R2"},
			wantSecond:   true,
		},
		{
			name:         "same id but different kind is independent",
			firstCtx:     101,
			secondCtx:    102,
			secondTarget: types.LockTarget{Kind: types.LockTargetRouteGroup, ID: 1, Name: "G1"},
			wantSecond:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := newTestService(t)

			first, ok, err := svc.Lock(Request{Target: routeR1, Duration: time.Hour, ContextID: tt.firstCtx, Run: true})
			require.NoError(t, err)
			require.True(t, ok)
			assert.True(t, strings.HasPrefix(first.Token, TokenPrefix))

			second, ok, err := svc.Lock(Request{Target: tt.secondTarget, Duration: time.Hour, ContextID: tt.secondCtx, Run: true})
			require.NoError(t, err)
			assert.Equal(t, tt.wantSecond, ok)
			if ok {
				assert.NotEqual(t, first.Token, second.Token)
			} else {
				assert.Empty(t, second.Token)
			}
		})
	}
}

func TestLockExpiry(t *testing.T) {
	svc, clock := newTestService(t)

	first, ok, err := svc.Lock(Request{Target: routeR1, Duration: time.Hour, ContextID: 1})
	require.NoError(t, err)
	require.True(t, ok)

	clock.now = clock.now.Add(61 * time.Minute)

	_, err = svc.Get(first.Token)
	assert.ErrorIs(t, err, ErrLockNotFound)

	_, ok, err = svc.Lock(Request{Target: routeR1, Duration: time.Hour, ContextID: 2})
	require.NoError(t, err)
	assert.True(t, ok, "expired grant must not block")

	refreshed, err := svc.RefreshAdministratively(first.Token, time.Hour)
	require.NoError(t, err)
	assert.False(t, refreshed)
}

func TestRefreshAdministratively(t *testing.T) {
	svc, clock := newTestService(t)

	grant, ok, err := svc.Lock(Request{Target: routeR1, Duration: time.Hour, ContextID: 1})
	require.NoError(t, err)
	require.True(t, ok)

	refreshed, err := svc.RefreshAdministratively(grant.Token, 100*time.Hour)
	require.NoError(t, err)
	assert.True(t, refreshed)

	clock.now = clock.now.Add(50 * time.Hour)
	got, err := svc.Get(grant.Token)
	require.NoError(t, err)
	assert.Equal(t, grant.Token, got.Token)

	refreshed, err = svc.RefreshAdministratively("opaquelocktoken:unknown", time.Hour)
	require.NoError(t, err)
	assert.False(t, refreshed)
}

func TestReleaseAdministratively(t *testing.T) {
	svc, _ := newTestService(t)

	grant, ok, err := svc.Lock(Request{Target: routeR1, Duration: time.Hour, ContextID: 1})
	require.NoError(t, err)
	require.True(t, ok)

	released, err := svc.ReleaseAdministratively(grant.Token)
	require.NoError(t, err)
	assert.True(t, released)

	released, err = svc.ReleaseAdministratively(grant.Token)
	require.NoError(t, err)
	assert.False(t, released)

	_, ok, err = svc.Lock(Request{Target: routeR1, Duration: time.Hour, ContextID: 2})
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestActiveExclusive(t *testing.T) {
	svc, clock := newTestService(t)

	_, _, err := svc.Lock(Request{Target: routeR1, Duration: time.Minute, ContextID: 1})
	require.NoError(t, err)
	group := types.LockTarget{Kind: types.LockTargetRouteGroup, ID: 9, Name: "NIGHTLY"}
	_, _, err = svc.Lock(Request{Target: group, Duration: time.Hour, ContextID: 1})
	require.NoError(t, err)

	clock.now = clock.now.Add(2 * time.Minute)

	grants, err := svc.ActiveExclusive()
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, group, grants[0].Target)
}

func TestLockRejectsNonPositiveDuration(t *testing.T) {
	svc, _ := newTestService(t)
	_, ok, err := svc.Lock(Request{Target: routeR1})
	assert.Error(t, err)
	assert.False(t, ok)
}
