package events

import (
	"encoding/json"
	"strconv"

	"github.com/cuemby/workflowd/pkg/types"
)

// Metadata keys used by dispatched events
const (
	MetaProcessID = "processId"
	MetaContextID = "contextId"
	MetaCategory  = "category"
	MetaUrgency   = "urgency"
	MetaSubject   = "subject"
)

// Dispatcher publishes the manager's outbound messages on a Broker.
// Executors subscribe for executor.* events and answer through the manager inbox.
type Dispatcher struct {
	broker *Broker
}

// NewDispatcher creates a dispatcher publishing on broker
func NewDispatcher(broker *Broker) *Dispatcher {
	return &Dispatcher{broker: broker}
}

// StartProcess asks an executor to start the process
func (d *Dispatcher) StartProcess(processID, contextID int64) error {
	d.broker.Publish(&Event{
		Type: EventExecutorStart,
		Metadata: map[string]string{
			MetaProcessID: strconv.FormatInt(processID, 10),
			MetaContextID: strconv.FormatInt(contextID, 10),
		},
	})
	return nil
}

// QueryRunning asks the executor whether it has a live worker for the process
func (d *Dispatcher) QueryRunning(processID int64) error {
	d.broker.Publish(&Event{
		Type: EventExecutorIsRunning,
		Metadata: map[string]string{
			MetaProcessID: strconv.FormatInt(processID, 10),
		},
	})
	return nil
}

// Notify publishes an administrative notice
func (d *Dispatcher) Notify(notice types.AdminNotice) {
	d.broker.Publish(&Event{
		Type:    EventAdminNotice,
		Message: notice.Message,
		Metadata: map[string]string{
			MetaCategory: notice.Category,
			MetaUrgency:  strconv.Itoa(notice.Urgency),
			MetaSubject:  notice.Subject,
		},
	})
}

// EngineStatus publishes the latest engine status snapshot
func (d *Dispatcher) EngineStatus(status types.EngineStatus) {
	data, err := json.Marshal(status)
	if err != nil {
		return
	}
	d.broker.Publish(&Event{
		Type:    EventEngineStatus,
		Message: string(data),
	})
}

// ProcessIDOf extracts the process id carried by an event
func ProcessIDOf(event *Event) (int64, bool) {
	raw, ok := event.Metadata[MetaProcessID]
	if !ok {
		return 0, false
	}
	pid, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return pid, true
}
