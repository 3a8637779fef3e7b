package events

import (
	"testing"
	"time"

	"github.com/cuemby/workflowd/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case event := <-sub:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerFanOut(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	a := broker.Subscribe()
	b := broker.Subscribe()
	assert.Equal(t, 2, broker.SubscriberCount())

	broker.Publish(&Event{Type: EventEngineStatus, Message: "hello"})

	for _, sub := range []Subscriber{a, b} {
		event := receive(t, sub)
		assert.Equal(t, "hello", event.Message)
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.Timestamp.IsZero())
	}

	broker.Unsubscribe(a)
	broker.Unsubscribe(a)
	assert.Equal(t, 1, broker.SubscriberCount())
}

func TestDispatcherEvents(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()

	d := NewDispatcher(broker)

	require.NoError(t, d.StartProcess(42, 10001))
	event := receive(t, sub)
	assert.Equal(t, EventExecutorStart, event.Type)
	pid, ok := ProcessIDOf(event)
	assert.True(t, ok)
	assert.Equal(t, int64(42), pid)
	assert.Equal(t, "10001", event.Metadata[MetaContextID])

	require.NoError(t, d.QueryRunning(43))
	event = receive(t, sub)
	assert.Equal(t, EventExecutorIsRunning, event.Type)
	pid, _ = ProcessIDOf(event)
	assert.Equal(t, int64(43), pid)

	d.Notify(types.AdminNotice{Category: "workflow", Urgency: 6, Subject: "mismatch", Message: "details"})
	event = receive(t, sub)
	assert.Equal(t, EventAdminNotice, event.Type)
	assert.Equal(t, "6", event.Metadata[MetaUrgency])
	assert.Equal(t, "details", event.Message)

	d.EngineStatus(types.EngineStatus{Version: 1, OperatingMode: types.OperatingModeOnline})
	event = receive(t, sub)
	assert.Equal(t, EventEngineStatus, event.Type)
	assert.Contains(t, event.Message, `"operatingMode":"online"`)
}

func TestProcessIDOfMissing(t *testing.T) {
	_, ok := ProcessIDOf(&Event{Metadata: map[string]string{}})
	assert.False(t, ok)
	_, ok = ProcessIDOf(&Event{Metadata: map[string]string{MetaProcessID: "abc"}})
	assert.False(t, ok)
}

func TestSubscribeFiltersTypes(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	executor := broker.Subscribe(EventExecutorStart, EventExecutorIsRunning)
	all := broker.Subscribe()

	broker.Publish(&Event{Type: EventAdminNotice, Message: "notice"})
	broker.Publish(&Event{Type: EventExecutorStart, Message: "start"})

	assert.Equal(t, "notice", receive(t, all).Message)
	assert.Equal(t, "start", receive(t, all).Message)

	event := receive(t, executor)
	assert.Equal(t, EventExecutorStart, event.Type)
	select {
	case extra := <-executor:
		t.Fatalf("unexpected event %s", extra.Type)
	default:
	}
}
